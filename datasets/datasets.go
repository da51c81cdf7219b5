package datasets

import (
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
)

// This package turns the consolidated feature/target tables into training
// batches.
//
// Layout and intended usage:
//
// Store
//   - Holds the feature table (one row per frame of a (condition, position)
//     block), the target table (one row per block, one column per subject),
//     the ID reference table and the condition lookup table.
//   - LoadRaw reads them from the CSV files written by the conversion step.
//
// Sampler
//   - Takes a list of Global Sample IDs (one partition) and the two tables,
//     and emits fixed-size shuffled batches of (feature row, azimuth) pairs.
//   - The trailing partial batch of an epoch is dropped.
//   - Batches are flat float32 buffers; ToGomlxTensors converts them for
//     gomlx training loops.

var (
	// ErrIndex is returned for a batch index outside [0, Len()).
	ErrIndex = errors.New("datasets: batch index out of range")
	// ErrRange is returned when a decomposed ID points outside the tables,
	// which means n_subjects/n_frames do not match the tables.
	ErrRange = errors.New("datasets: row or column outside table bounds")
	// ErrConfig is returned for unusable sampler or table configuration.
	ErrConfig = errors.New("datasets: invalid configuration")
)

// BatchSource is the batch-level view of a dataset consumed by trainers and
// evaluators. Sampler implements it.
type BatchSource interface {
	Len() int
	Batch(k int) (*Batch, error)
	OnEpochEnd()
}

// GomlxDataset is the subset of gomlx's train.Dataset the Sampler provides.
type GomlxDataset interface {
	Name() string
	Yield() (spec any, inputs []*tensors.Tensor, labels []*tensors.Tensor, err error)
	Reset()
}

var (
	_ BatchSource  = (*Sampler)(nil)
	_ GomlxDataset = (*Sampler)(nil)
)
