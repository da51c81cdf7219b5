package storage

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Noofbiz/locaz/evaluate"
	"github.com/Noofbiz/locaz/simple"
	"github.com/Noofbiz/locaz/split"
)

func newStores(t *testing.T) map[string]Store {
	t.Helper()
	ctx := context.Background()

	mem := NewMemoryStore()
	require.NoError(t, mem.Init(ctx))

	lite := NewSQLiteStore(filepath.Join(t.TempDir(), "locaz.db"))
	require.NoError(t, lite.Init(ctx))
	t.Cleanup(func() { _ = lite.Close() })

	return map[string]Store{"memory": mem, "sqlite": lite}
}

func TestStorePartitionRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := store.GetPartition(ctx, "missing")
			require.NoError(t, err)
			assert.False(t, ok)

			p := split.Partition{Train: []int{0, 2, 5}, Validation: []int{1}, Test: []int{}}
			require.NoError(t, store.SavePartition(ctx, "run1", p))

			got, ok, err := store.GetPartition(ctx, "run1")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, p, got)

			// callers get copies
			got.Train[0] = 99
			again, _, err := store.GetPartition(ctx, "run1")
			require.NoError(t, err)
			assert.Equal(t, 0, again.Train[0])

			// overwrite
			p2 := split.Partition{Train: []int{7}, Validation: []int{}, Test: []int{3, 4}}
			require.NoError(t, store.SavePartition(ctx, "run1", p2))
			got, _, err = store.GetPartition(ctx, "run1")
			require.NoError(t, err)
			assert.Equal(t, p2, got)
		})
	}
}

func TestStoreHistoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			h := simple.History{
				{Epoch: 0, Loss: 120.5, ValLoss: math.NaN()},
				{Epoch: 1, Loss: 80.25, ValLoss: 90},
			}
			require.NoError(t, store.SaveHistory(ctx, "run1", h))

			got, ok, err := store.GetHistory(ctx, "run1")
			require.NoError(t, err)
			require.True(t, ok)
			require.Len(t, got, 2)
			assert.Equal(t, 120.5, got[0].Loss)
			assert.True(t, math.IsNaN(got[0].ValLoss))
			assert.Equal(t, simple.EpochStats{Epoch: 1, Loss: 80.25, ValLoss: 90}, got[1])

			_, ok, err = store.GetHistory(ctx, "run2")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestStoreSummariesRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			s := []evaluate.PositionSummary{
				{Position: 3, Trials: 40, MeanError: -1.5, MAE: 4, RMSE: 5, MedianAbs: 3.5, P90Abs: 9},
				{Position: 0, Trials: 40, MeanError: 2, MAE: 2, RMSE: 2.5, MedianAbs: 2, P90Abs: 4},
			}
			require.NoError(t, store.SaveSummaries(ctx, "run1", s))

			got, ok, err := store.GetSummaries(ctx, "run1")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, s, got)
		})
	}
}

func TestStoreNotInitialized(t *testing.T) {
	ctx := context.Background()
	for name, store := range map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": NewSQLiteStore(filepath.Join(t.TempDir(), "x.db")),
	} {
		t.Run(name, func(t *testing.T) {
			err := store.SavePartition(ctx, "r", split.Partition{})
			require.True(t, errors.Is(err, ErrNotInitialized))
			_, _, err = store.GetHistory(ctx, "r")
			require.True(t, errors.Is(err, ErrNotInitialized))
		})
	}
}

func TestSQLiteStoreRejectsOverlappingPartition(t *testing.T) {
	ctx := context.Background()
	store := NewSQLiteStore(filepath.Join(t.TempDir(), "locaz.db"))
	require.NoError(t, store.Init(ctx))
	t.Cleanup(func() { _ = store.Close() })

	err := store.SavePartition(ctx, "bad", split.Partition{Train: []int{1}, Test: []int{1}})
	require.Error(t, err)

	// the failed save leaves nothing behind
	_, ok, err := store.GetPartition(ctx, "bad")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "locaz.db")

	store := NewSQLiteStore(path)
	require.NoError(t, store.Init(ctx))
	p := split.Partition{Train: []int{1, 2}, Validation: []int{3}, Test: []int{4}}
	require.NoError(t, store.SavePartition(ctx, "run", p))
	require.NoError(t, store.Close())

	store = NewSQLiteStore(path)
	require.NoError(t, store.Init(ctx))
	t.Cleanup(func() { _ = store.Close() })
	got, ok, err := store.GetPartition(ctx, "run")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, p, got)
}

func TestNewStore(t *testing.T) {
	s, err := NewStore("", "")
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)
	require.NoError(t, CloseIfSupported(s))

	s, err = NewStore("sqlite", filepath.Join(t.TempDir(), "s.db"))
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	require.NoError(t, CloseIfSupported(s))

	_, err = NewStore("sqlite", "")
	require.Error(t, err)
	_, err = NewStore("postgres", "")
	require.Error(t, err)
}
