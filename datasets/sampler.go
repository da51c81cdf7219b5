package datasets

import (
	"io"
	"math/rand"
	"time"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"

	"github.com/Noofbiz/locaz/idindex"
)

// SamplerState is where a Sampler is within an epoch.
type SamplerState int

const (
	StateIdle SamplerState = iota
	StateShuffled
	StateEmitting
	StateEpochDone
)

func (s SamplerState) String() string {
	switch s {
	case StateShuffled:
		return "shuffled"
	case StateEmitting:
		return "emitting"
	case StateEpochDone:
		return "epoch-done"
	default:
		return "idle"
	}
}

// SamplerConfig holds the sampler parameters.
type SamplerConfig struct {
	// Name is reported through the gomlx dataset interface.
	Name string

	BatchSize int

	// Dim is the feature width. Zero means the feature table's width.
	Dim int

	// Shuffle reorders the IDs at construction and on every OnEpochEnd.
	Shuffle bool

	// NFrames is the number of frames per (condition, position) block.
	NFrames int

	// NSubjects is the number of subjects. Zero means the target table's width.
	NSubjects int

	// Rand drives shuffling. If nil, a time-seeded source is used and runs
	// are not reproducible.
	Rand *rand.Rand
}

// Sampler produces fixed-size batches of (feature row, target) pairs from a
// list of Global Sample IDs.
//
// A Sampler is not safe for concurrent use: OnEpochEnd replaces the ordering
// that Batch reads. Use one Sampler per goroutine; the tables themselves may
// be shared.
type Sampler struct {
	cfg      SamplerConfig
	ids      []int
	order    []int
	features *Table
	targets  *Table
	rng      *rand.Rand

	state SamplerState
	// next is the batch Yield emits next.
	next int
}

// NewSampler builds a sampler over ids and performs the initial shuffle
// (identity ordering when cfg.Shuffle is false).
func NewSampler(ids []int, features, targets *Table, cfg SamplerConfig) (*Sampler, error) {
	if features == nil || targets == nil {
		return nil, errors.Wrap(ErrConfig, "feature and target tables are required")
	}
	if cfg.BatchSize <= 0 {
		return nil, errors.Wrapf(ErrConfig, "batch size %d must be positive", cfg.BatchSize)
	}
	if cfg.Dim == 0 {
		cfg.Dim = features.Cols()
	}
	if cfg.Dim != features.Cols() {
		return nil, errors.Wrapf(ErrConfig, "dim %d does not match %d feature columns", cfg.Dim, features.Cols())
	}
	if cfg.NSubjects == 0 {
		cfg.NSubjects = targets.Cols()
	}
	if cfg.NSubjects < 0 || cfg.NFrames <= 0 {
		return nil, errors.Wrapf(ErrConfig, "n_subjects=%d n_frames=%d", cfg.NSubjects, cfg.NFrames)
	}
	if cfg.Name == "" {
		cfg.Name = "sampler"
	}

	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	s := &Sampler{
		cfg:      cfg,
		ids:      append([]int(nil), ids...),
		features: features,
		targets:  targets,
		rng:      rng,
	}
	s.OnEpochEnd()
	return s, nil
}

// ShuffleIDs returns a uniformly random permutation of ids. The input is
// left untouched.
func ShuffleIDs(ids []int, rng *rand.Rand) []int {
	out := append([]int(nil), ids...)
	rng.Shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})
	return out
}

// Len is the number of full batches per epoch.
func (s *Sampler) Len() int {
	return len(s.ids) / s.cfg.BatchSize
}

// BatchSize is the configured batch size.
func (s *Sampler) BatchSize() int { return s.cfg.BatchSize }

// Dim is the feature width.
func (s *Sampler) Dim() int { return s.cfg.Dim }

// State reports the epoch state.
func (s *Sampler) State() SamplerState { return s.state }

// Order returns a copy of the current epoch ordering.
func (s *Sampler) Order() []int { return append([]int(nil), s.order...) }

// OnEpochEnd starts a new epoch, reshuffling when configured to. Callers
// must invoke it between epochs; the sampler never advances on its own.
func (s *Sampler) OnEpochEnd() {
	if s.cfg.Shuffle {
		s.order = ShuffleIDs(s.ids, s.rng)
	} else {
		s.order = append(s.order[:0], s.ids...)
	}
	s.next = 0
	s.state = StateShuffled
}

// Batch builds batch k.
func (s *Sampler) Batch(k int) (*Batch, error) {
	if k < 0 || k >= s.Len() {
		return nil, errors.Wrapf(ErrIndex, "batch %d, have %d", k, s.Len())
	}

	bs := s.cfg.BatchSize
	b := newBatch(bs, s.cfg.Dim)
	for i, id := range s.order[k*bs : (k+1)*bs] {
		c, err := idindex.Decompose(id, s.cfg.NSubjects, s.cfg.NFrames)
		if err != nil {
			return nil, errors.Wrapf(err, "batch %d", k)
		}
		if c.FeatureRow >= s.features.Rows() {
			return nil, errors.Wrapf(ErrRange, "id %d: feature row %d, table has %d", id, c.FeatureRow, s.features.Rows())
		}
		if c.TargetRow >= s.targets.Rows() {
			return nil, errors.Wrapf(ErrRange, "id %d: target row %d, table has %d", id, c.TargetRow, s.targets.Rows())
		}
		if c.Subject >= s.targets.Cols() {
			return nil, errors.Wrapf(ErrRange, "id %d: subject %d, table has %d", id, c.Subject, s.targets.Cols())
		}

		copy(b.Row(i), s.features.Row(c.FeatureRow))
		b.Y[i] = s.targets.At(c.TargetRow, c.Subject)
		b.IDs[i] = id
	}

	s.state = StateEmitting
	if k == s.Len()-1 {
		s.state = StateEpochDone
	}
	return b, nil
}

// Targets gathers the targets of every batch of the current epoch, in
// emission order.
func (s *Sampler) Targets() ([]float32, error) {
	y := make([]float32, 0, s.Len()*s.cfg.BatchSize)
	for k := range s.Len() {
		b, err := s.Batch(k)
		if err != nil {
			return nil, err
		}
		y = append(y, b.Y...)
	}
	return y, nil
}

// Name returns the name of the dataset
func (s *Sampler) Name() string {
	return s.cfg.Name
}

// Yield returns the next batch of the epoch as gomlx tensors, and io.EOF
// once every full batch has been emitted.
func (s *Sampler) Yield() (spec any, inputs []*tensors.Tensor, labels []*tensors.Tensor, err error) {
	if s.next >= s.Len() {
		s.state = StateEpochDone
		return nil, nil, nil, io.EOF
	}
	b, err := s.Batch(s.next)
	if err != nil {
		return nil, nil, nil, err
	}
	s.next++

	in, la, err := b.ToGomlxTensors()
	if err != nil {
		return nil, nil, nil, err
	}
	return nil, []*tensors.Tensor{in}, []*tensors.Tensor{la}, nil
}

// Reset starts a new epoch.
func (s *Sampler) Reset() {
	s.OnEpochEnd()
}
