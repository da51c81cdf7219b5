// Package evaluate splits the circular localization error of a model into
// a systematic (bias) and a stochastic (variance) part, per listening
// position and aggregated over positions.
package evaluate

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"

	"github.com/Noofbiz/locaz/angle"
)

// ErrShape is returned when per-position error arrays cannot be combined.
var ErrShape = errors.New("evaluate: inconsistent error array shapes")

// Decomposition is the bias/variance split of the mean squared circular
// error over X positions with N trials each.
type Decomposition struct {
	// MSE = sum_x sum_i delta_x[i]^2 / (N·X)
	MSE float64
	// BiasSq = sum_x MeanError[x]^2 / X
	BiasSq float64
	// Variance = sum_x sum_i (delta_x[i] - MeanError[x])^2 / (N·X)
	Variance float64

	// PerPosition[x] are the signed circular errors at position x.
	PerPosition [][]float64
	// MeanError[x] is the signed mean error at position x.
	MeanError []float64
}

// CircularErrors returns the signed circular error pred - truth for every
// trial, in degrees.
func CircularErrors(pred, truth []float64) ([]float64, error) {
	if len(pred) != len(truth) {
		return nil, errors.Wrapf(ErrShape, "%d predictions for %d targets", len(pred), len(truth))
	}
	d, err := angle.CircularDifferences(pred, truth)
	if err != nil {
		return nil, errors.Wrap(ErrShape, err.Error())
	}
	return d, nil
}

// Decompose computes the decomposition with N taken from the data. Every
// position must hold the same, non-zero number of trials; MSE equals
// BiasSq + Variance up to rounding.
func Decompose(deltas [][]float64) (Decomposition, error) {
	n, err := trialCount(deltas)
	if err != nil {
		return Decomposition{}, err
	}
	return decompose(deltas, n), nil
}

// DecomposeNormalized uses a fixed trial count N per position as the
// normalizer, regardless of how many trials each position actually holds.
// This reproduces figures computed with a nominal L·B (subjects × frames ×
// repetitions). The identity MSE = BiasSq + Variance only holds when every
// position holds exactly N trials.
func DecomposeNormalized(deltas [][]float64, trialsPerPosition int) (Decomposition, error) {
	if len(deltas) == 0 {
		return Decomposition{}, errors.Wrap(ErrShape, "no positions")
	}
	if trialsPerPosition <= 0 {
		return Decomposition{}, errors.Wrapf(ErrShape, "trials per position %d must be positive", trialsPerPosition)
	}
	return decompose(deltas, trialsPerPosition), nil
}

func trialCount(deltas [][]float64) (int, error) {
	if len(deltas) == 0 {
		return 0, errors.Wrap(ErrShape, "no positions")
	}
	n := len(deltas[0])
	if n == 0 {
		return 0, errors.Wrap(ErrShape, "position 0 has no trials")
	}
	for x, d := range deltas[1:] {
		if len(d) != n {
			return 0, errors.Wrapf(ErrShape, "position %d has %d trials, position 0 has %d", x+1, len(d), n)
		}
	}
	return n, nil
}

func decompose(deltas [][]float64, n int) Decomposition {
	X := float64(len(deltas))
	N := float64(n)

	out := Decomposition{
		PerPosition: make([][]float64, len(deltas)),
		MeanError:   make([]float64, len(deltas)),
	}
	var sq, dev, bias float64
	for x, d := range deltas {
		out.PerPosition[x] = append([]float64(nil), d...)

		mean := floats.Sum(d) / N
		out.MeanError[x] = mean
		bias += mean * mean

		sq += floats.Dot(d, d)

		for _, v := range d {
			dev += (v - mean) * (v - mean)
		}
	}

	out.MSE = sq / (N * X)
	out.BiasSq = bias / X
	out.Variance = dev / (N * X)
	return out
}
