package simple

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Noofbiz/locaz/angle"
	"github.com/Noofbiz/locaz/datasets"
)

// Config holds configurable hyperparameters for the MLP model and training.
type Config struct {
	// HiddenSizes is the list of hidden layer sizes. Example: []int{64, 32}
	// If empty, a single hidden layer of size 64 will be used.
	HiddenSizes []int `yaml:"hidden_sizes"`

	// InputDim is the dimensionality of the feature vector. Required.
	InputDim int `yaml:"input_dim"`

	// LearningRate used by SGD.
	LearningRate float64 `yaml:"learning_rate"`

	// Epochs to train for (default if 0 will be set by NewModel to 10).
	Epochs int `yaml:"epochs"`

	// Loss is the circular loss minimized during training.
	Loss angle.LossKind `yaml:"loss"`

	// Seed controls RNG for weight init. If zero, time-based seed is used.
	Seed int64 `yaml:"seed"`

	// ClipNorm bounds the L2 norm of each averaged minibatch gradient.
	ClipNorm float64 `yaml:"clip_norm"`
}

// ErrInput is returned for inputs of the wrong width.
var ErrInput = errors.New("simple: input has incorrect dimension")

// Model is a small MLP regressing one azimuth (degrees) from a feature
// vector. Training is a self-contained minibatch SGD with ReLU hidden
// layers and a linear output, minimizing one of the circular losses.
type Model struct {
	// Config used for training / initialization.
	Config Config

	// layerSizes includes input size, hidden sizes, then output size.
	layerSizes []int

	// weights[l] is a matrix of shape [out][in] for layer l -> l+1
	weights [][][]float32

	// biases[l] is a vector of length out for layer l -> l+1
	biases [][]float32

	logger *zap.Logger
}

// NewModel creates a new Model instance with the provided configuration.
// It initializes weights (small random values) and is ready to train.
func NewModel(cfg Config) (*Model, error) {
	if cfg.InputDim <= 0 {
		return nil, errors.Errorf("input dim %d must be positive", cfg.InputDim)
	}
	for _, h := range cfg.HiddenSizes {
		if h <= 0 {
			return nil, errors.Errorf("hidden sizes %v must be positive", cfg.HiddenSizes)
		}
	}
	kind, err := angle.ParseLossKind(string(cfg.Loss))
	if err != nil {
		return nil, err
	}
	cfg.Loss = kind

	// defaults
	if len(cfg.HiddenSizes) == 0 {
		cfg.HiddenSizes = []int{64}
	}
	if cfg.LearningRate == 0 {
		cfg.LearningRate = 0.001
	}
	if cfg.Epochs == 0 {
		cfg.Epochs = 10
	}
	if cfg.ClipNorm == 0 {
		cfg.ClipNorm = 5
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}

	m := &Model{
		Config: cfg,
		logger: zap.NewNop(),
	}
	rng := rand.New(rand.NewSource(cfg.Seed))

	const outputDim = 1

	sizes := make([]int, 0, 2+len(cfg.HiddenSizes))
	sizes = append(sizes, cfg.InputDim)
	sizes = append(sizes, cfg.HiddenSizes...)
	sizes = append(sizes, outputDim)
	m.layerSizes = sizes

	L := len(sizes) - 1
	m.weights = make([][][]float32, L)
	m.biases = make([][]float32, L)
	for l := 0; l < L; l++ {
		in := sizes[l]
		out := sizes[l+1]
		// Xavier/Glorot uniform
		limit := float32(math.Sqrt(6.0 / float64(in+out)))
		mat := make([][]float32, out)
		for j := 0; j < out; j++ {
			row := make([]float32, in)
			for i := 0; i < in; i++ {
				row[i] = (rng.Float32()*2.0 - 1.0) * limit * 0.5
			}
			mat[j] = row
		}
		m.weights[l] = mat
		m.biases[l] = make([]float32, out)
	}

	return m, nil
}

// SetLogger sets the logger used for per-epoch progress. nil disables it.
func (m *Model) SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	m.logger = l
}

// LayerSizes returns input, hidden and output sizes.
func (m *Model) LayerSizes() []int {
	return append([]int(nil), m.layerSizes...)
}

// activationReLU applies ReLU in-place over the slice.
func activationReLU(x []float32) {
	for i := range x {
		if x[i] < 0 {
			x[i] = 0
		}
	}
}

// activationReLUDeriv returns elementwise derivative of ReLU applied to preact.
func activationReLUDeriv(preact []float32) []float32 {
	d := make([]float32, len(preact))
	for i := range preact {
		if preact[i] > 0 {
			d[i] = 1.0
		}
	}
	return d
}

// forwardSingle performs a forward pass for a single input vector, returning
// the pre-activations per layer and the activations per layer, where
// activations[0] is the input.
func (m *Model) forwardSingle(input []float32) (preActs [][]float32, acts [][]float32, err error) {
	if len(input) != m.layerSizes[0] {
		return nil, nil, errors.Wrapf(ErrInput, "got %d, want %d", len(input), m.layerSizes[0])
	}
	L := len(m.weights)
	acts = make([][]float32, L+1)
	acts[0] = append([]float32(nil), input...)

	preActs = make([][]float32, L)
	for l := 0; l < L; l++ {
		inVec := acts[l]
		W := m.weights[l]
		b := m.biases[l]
		pre := make([]float32, len(b))
		for j := range pre {
			sum := b[j]
			for i, w := range W[j] {
				sum += w * inVec[i]
			}
			pre[j] = sum
		}
		preActs[l] = pre

		// ReLU for hidden, linear for last layer
		act := append([]float32(nil), pre...)
		if l < L-1 {
			activationReLU(act)
		}
		acts[l+1] = act
	}
	return preActs, acts, nil
}

// PredictBatch returns one azimuth prediction per input, shape [batch][1].
// It only reads the weights and is safe for concurrent use as long as no
// training runs at the same time.
func (m *Model) PredictBatch(inputs [][]float32) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	for i, in := range inputs {
		_, acts, err := m.forwardSingle(in)
		if err != nil {
			return nil, err
		}
		out[i] = append([]float32(nil), acts[len(acts)-1]...)
	}
	return out, nil
}

// EpochStats is the mean loss of one training epoch. ValLoss is NaN when
// no validation source was given.
type EpochStats struct {
	Epoch   int     `csv:"epoch"`
	Loss    float64 `csv:"loss"`
	ValLoss float64 `csv:"val_loss"`
}

// History is the per-epoch training record.
type History []EpochStats

// Best returns the epoch with the lowest validation loss, or the lowest
// training loss when there was no validation. ok is false for an empty
// history.
func (h History) Best() (best EpochStats, ok bool) {
	for i, e := range h {
		score, bestScore := e.ValLoss, best.ValLoss
		if math.IsNaN(score) {
			score, bestScore = e.Loss, best.Loss
		}
		if i == 0 || score < bestScore {
			best = e
		}
	}
	return best, len(h) > 0
}

// Evaluate returns the mean per-sample loss of the model over every batch
// of src.
func (m *Model) Evaluate(src datasets.BatchSource) (float64, error) {
	var sum float64
	var n int
	for k := range src.Len() {
		b, err := src.Batch(k)
		if err != nil {
			return 0, err
		}
		pred, err := m.PredictBatch(b.Inputs())
		if err != nil {
			return 0, err
		}
		for i, p := range pred {
			sum += angle.SampleLoss(m.Config.Loss, float64(b.Y[i]), float64(p[0]))
			n++
		}
	}
	if n == 0 {
		return 0, errors.Wrap(datasets.ErrConfig, "source has no full batch")
	}
	return sum / float64(n), nil
}

// Train runs Config.Epochs epochs of minibatch SGD over train, calling
// train.OnEpochEnd after every epoch. valid may be nil. Cancellation is
// checked between epochs.
func (m *Model) Train(ctx context.Context, train, valid datasets.BatchSource) (History, error) {
	if train == nil {
		return nil, errors.New("training source is nil")
	}
	if train.Len() == 0 {
		return nil, errors.Wrap(datasets.ErrConfig, "training source has no full batch")
	}

	lr := float32(m.Config.LearningRate)
	history := make(History, 0, m.Config.Epochs)
	for ep := 0; ep < m.Config.Epochs; ep++ {
		if err := ctx.Err(); err != nil {
			return history, err
		}

		var sum float64
		var n int
		for k := range train.Len() {
			b, err := train.Batch(k)
			if err != nil {
				return history, errors.Wrapf(err, "epoch %d", ep)
			}
			loss, err := m.step(b, lr)
			if err != nil {
				return history, errors.Wrapf(err, "epoch %d batch %d", ep, k)
			}
			sum += loss
			n += b.Size
		}
		train.OnEpochEnd()

		stats := EpochStats{Epoch: ep, Loss: sum / float64(n), ValLoss: math.NaN()}
		if valid != nil {
			v, err := m.Evaluate(valid)
			if err != nil {
				return history, errors.Wrapf(err, "validate epoch %d", ep)
			}
			stats.ValLoss = v
		}
		history = append(history, stats)
		m.logger.Info("epoch done",
			zap.Int("epoch", ep+1),
			zap.Int("epochs", m.Config.Epochs),
			zap.Float64("loss", stats.Loss),
			zap.Float64("val_loss", stats.ValLoss))
	}
	return history, nil
}

// step applies one averaged SGD update for batch b and returns the summed
// per-sample loss before the update.
func (m *Model) step(b *datasets.Batch, lr float32) (float64, error) {
	L := len(m.weights)
	gradW := make([][][]float32, L)
	gradB := make([][]float32, L)
	for l := 0; l < L; l++ {
		gradW[l] = make([][]float32, len(m.biases[l]))
		for j := range gradW[l] {
			gradW[l][j] = make([]float32, len(m.weights[l][j]))
		}
		gradB[l] = make([]float32, len(m.biases[l]))
	}

	var loss float64
	for ex := 0; ex < b.Size; ex++ {
		preacts, acts, err := m.forwardSingle(b.Row(ex))
		if err != nil {
			return 0, err
		}

		yTrue := float64(b.Y[ex])
		yPred := float64(acts[len(acts)-1][0])
		loss += angle.SampleLoss(m.Config.Loss, yTrue, yPred)
		delta := []float32{float32(angle.LossGradient(m.Config.Loss, yTrue, yPred))}

		for l := L - 1; l >= 0; l-- {
			inAct := acts[l]
			for j, d := range delta {
				gradB[l][j] += d
				for i, a := range inAct {
					gradW[l][j][i] += d * a
				}
			}

			// propagate delta to previous layer if needed
			if l > 0 {
				prev := make([]float32, len(inAct))
				for i := range prev {
					var sum float32
					for j, d := range delta {
						sum += m.weights[l][j][i] * d
					}
					prev[i] = sum
				}
				deriv := activationReLUDeriv(preacts[l-1])
				for i := range prev {
					prev[i] *= deriv[i]
				}
				delta = prev
			}
		}
	}

	// average, then clip by global norm
	inv := 1.0 / float32(b.Size)
	var norm float64
	for l := 0; l < L; l++ {
		for j := range gradB[l] {
			gradB[l][j] *= inv
			norm += float64(gradB[l][j] * gradB[l][j])
			for i := range gradW[l][j] {
				gradW[l][j][i] *= inv
				norm += float64(gradW[l][j][i] * gradW[l][j][i])
			}
		}
	}
	scale := float32(1)
	if norm = math.Sqrt(norm); m.Config.ClipNorm > 0 && norm > m.Config.ClipNorm {
		scale = float32(m.Config.ClipNorm / norm)
	}

	for l := 0; l < L; l++ {
		for j := range m.biases[l] {
			m.biases[l][j] -= lr * scale * gradB[l][j]
			for i := range m.weights[l][j] {
				m.weights[l][j][i] -= lr * scale * gradW[l][j][i]
			}
		}
	}
	return loss, nil
}
