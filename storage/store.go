// Package storage persists dataset partitions, training histories and
// per-position evaluation summaries by run name.
package storage

import (
	"context"

	"github.com/pkg/errors"

	"github.com/Noofbiz/locaz/evaluate"
	"github.com/Noofbiz/locaz/simple"
	"github.com/Noofbiz/locaz/split"
)

// ErrNotInitialized is returned by every operation before Init.
var ErrNotInitialized = errors.New("storage: store is not initialized")

// Store persists the artifacts of one experiment run. Get methods report
// ok=false for unknown runs. Returned slices are copies.
type Store interface {
	Init(ctx context.Context) error
	SavePartition(ctx context.Context, run string, p split.Partition) error
	GetPartition(ctx context.Context, run string) (split.Partition, bool, error)
	SaveHistory(ctx context.Context, run string, h simple.History) error
	GetHistory(ctx context.Context, run string) (simple.History, bool, error)
	SaveSummaries(ctx context.Context, run string, s []evaluate.PositionSummary) error
	GetSummaries(ctx context.Context, run string) ([]evaluate.PositionSummary, bool, error)
}

func copyPartition(p split.Partition) split.Partition {
	return split.Partition{
		Train:      append([]int{}, p.Train...),
		Validation: append([]int{}, p.Validation...),
		Test:       append([]int{}, p.Test...),
	}
}
