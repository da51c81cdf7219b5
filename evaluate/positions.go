package evaluate

import (
	"context"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Noofbiz/locaz/angle"
	"github.com/Noofbiz/locaz/datasets"
	"github.com/Noofbiz/locaz/idindex"
)

// Predictor maps a batch of feature vectors onto azimuth predictions. Only
// the first output of each row is used.
//
// PredictBatch is called concurrently from several workers and must not
// mutate shared state.
type Predictor interface {
	PredictBatch(inputs [][]float32) ([][]float32, error)
}

// Config controls EvaluatePositions.
type Config struct {
	// Sampler configures the per-position samplers. Shuffle and Rand are
	// ignored; evaluation runs in ID order.
	Sampler datasets.SamplerConfig

	// Workers is the size of the worker pool. Zero means runtime.NumCPU().
	Workers int

	// TrialsPerPosition, when positive, is passed to DecomposeNormalized
	// instead of deriving the normalizer from the data. When zero and the
	// positions hold different numbers of trials, every position is trimmed
	// to the smallest count before decomposing.
	TrialsPerPosition int

	Logger *zap.Logger
}

// Result is the outcome of a per-position evaluation.
type Result struct {
	Decomposition
	// Positions are the pos_id values, in the order of PerPosition.
	Positions []int
	// Predictions[x] are the model outputs at Positions[x], in ID order.
	Predictions [][]float64
	// Targets[x] are the corresponding ground truth azimuths.
	Targets [][]float64
	// Trimmed is the number of trials dropped to equalize positions.
	Trimmed int
}

type positionResult struct {
	pred   []float64
	truth  []float64
	deltas []float64
}

// EvaluatePositions runs model over the IDs of every position on a bounded
// worker pool and decomposes the circular errors once all positions are
// done. Every ID is evaluated; IDs that do not fill a batch go through one
// smaller trailing batch.
func EvaluatePositions(ctx context.Context, model Predictor, groups idindex.PositionGroups,
	features, targets *datasets.Table, cfg Config) (*Result, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	n := len(groups.Positions)
	if n == 0 || len(groups.IDs) != n {
		return nil, errors.Wrapf(ErrShape, "%d positions with %d id lists", n, len(groups.IDs))
	}

	scfg := cfg.Sampler
	scfg.Shuffle = false
	scfg.Rand = nil

	// Build every sampler up front so configuration errors surface before
	// any work starts.
	samplers := make([][]*datasets.Sampler, n)
	for x, ids := range groups.IDs {
		s, err := positionSamplers(ids, features, targets, scfg, groups.Positions[x])
		if err != nil {
			return nil, errors.Wrapf(err, "sampler for position %d", groups.Positions[x])
		}
		samplers[x] = s
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > n {
		workers = n
	}

	results := make([]positionResult, n)
	jobs := make(chan int, n)
	errCh := make(chan error, workers)
	var done int64

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for x := range jobs {
				if err := ctx.Err(); err != nil {
					errCh <- err
					return
				}
				r, err := evaluateSampler(model, samplers[x])
				if err != nil {
					errCh <- errors.Wrapf(err, "position %d", groups.Positions[x])
					return
				}
				results[x] = r
				logger.Debug("position evaluated",
					zap.Int("pos_id", groups.Positions[x]),
					zap.Int("trials", len(r.deltas)),
					zap.Int64("done", atomic.AddInt64(&done, 1)),
					zap.Int("total", n))
			}
		}()
	}

	for x := 0; x < n; x++ {
		jobs <- x
	}
	close(jobs)

	wg.Wait()
	close(errCh)

	// If any worker reported an error, return the first one.
	if err := <-errCh; err != nil {
		return nil, err
	}

	res := &Result{
		Positions:   append([]int(nil), groups.Positions...),
		Predictions: make([][]float64, n),
		Targets:     make([][]float64, n),
	}
	deltas := make([][]float64, n)
	for x, r := range results {
		res.Predictions[x] = r.pred
		res.Targets[x] = r.truth
		deltas[x] = r.deltas
	}

	if cfg.TrialsPerPosition <= 0 {
		res.Trimmed = trimToCommon(res, deltas)
		if res.Trimmed > 0 {
			logger.Warn("positions hold different trial counts, trimmed to the smallest",
				zap.Int("trials_per_position", len(deltas[0])),
				zap.Int("dropped", res.Trimmed))
		}
	}

	var err error
	if cfg.TrialsPerPosition > 0 {
		res.Decomposition, err = DecomposeNormalized(deltas, cfg.TrialsPerPosition)
	} else {
		res.Decomposition, err = Decompose(deltas)
	}
	if err != nil {
		return nil, err
	}
	logger.Info("decomposition",
		zap.Int("positions", n),
		zap.Float64("mse", res.MSE),
		zap.Float64("bias_sq", res.BiasSq),
		zap.Float64("variance", res.Variance))
	return res, nil
}

// positionSamplers covers ids with full batches plus, if needed, one
// sampler for the remainder.
func positionSamplers(ids []int, features, targets *datasets.Table, cfg datasets.SamplerConfig, pos int) ([]*datasets.Sampler, error) {
	name := "pos" + strconv.Itoa(pos+1)
	if cfg.BatchSize <= 0 {
		return nil, errors.Wrapf(datasets.ErrConfig, "batch size %d must be positive", cfg.BatchSize)
	}
	full := len(ids) - len(ids)%cfg.BatchSize

	var out []*datasets.Sampler
	if full > 0 {
		c := cfg
		c.Name = name
		s, err := datasets.NewSampler(ids[:full], features, targets, c)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if rest := ids[full:]; len(rest) > 0 {
		c := cfg
		c.Name = name + "_tail"
		c.BatchSize = len(rest)
		s, err := datasets.NewSampler(rest, features, targets, c)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// trimToCommon cuts every position of res and deltas to the smallest trial
// count, keeping the lowest IDs, and returns the number of trials dropped.
func trimToCommon(res *Result, deltas [][]float64) int {
	m := len(deltas[0])
	for _, d := range deltas[1:] {
		m = min(m, len(d))
	}
	dropped := 0
	for x := range deltas {
		dropped += len(deltas[x]) - m
		deltas[x] = deltas[x][:m]
		res.Predictions[x] = res.Predictions[x][:m]
		res.Targets[x] = res.Targets[x][:m]
	}
	return dropped
}

func evaluateSampler(model Predictor, samplers []*datasets.Sampler) (positionResult, error) {
	var r positionResult
	for _, s := range samplers {
		for k := range s.Len() {
			b, err := s.Batch(k)
			if err != nil {
				return r, err
			}
			out, err := model.PredictBatch(b.Inputs())
			if err != nil {
				return r, errors.Wrapf(err, "%s: predict batch %d", s.Name(), k)
			}
			if len(out) != b.Size {
				return r, errors.Wrapf(ErrShape, "%s batch %d: %d predictions for %d inputs", s.Name(), k, len(out), b.Size)
			}
			for i, row := range out {
				if len(row) == 0 {
					return r, errors.Wrapf(ErrShape, "%s batch %d: empty prediction %d", s.Name(), k, i)
				}
				p, y := float64(row[0]), float64(b.Y[i])
				r.pred = append(r.pred, p)
				r.truth = append(r.truth, y)
				r.deltas = append(r.deltas, angle.CircularDifferenceDeg(p, y))
			}
		}
	}
	return r, nil
}
