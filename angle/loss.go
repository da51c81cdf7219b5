package angle

import (
	"math"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
)

// LossKind names one of the supported regression losses.
type LossKind string

const (
	// LossMSEWrap is the mean squared circular difference.
	LossMSEWrap LossKind = "mse_wrap"
	// LossMAEWrap is the mean absolute circular difference.
	LossMAEWrap LossKind = "mae_wrap"
	// LossMAEWrapBound is LossMAEWrap after WrapSymmetricDeg on predictions.
	LossMAEWrapBound LossKind = "mae_wrap_bound"
	// LossMSE is the plain, non circular, mean squared error.
	LossMSE LossKind = "mse"
)

// ParseLossKind maps a config string onto a LossKind.
func ParseLossKind(s string) (LossKind, error) {
	switch k := LossKind(strings.ToLower(strings.TrimSpace(s))); k {
	case LossMSEWrap, LossMAEWrap, LossMAEWrapBound, LossMSE:
		return k, nil
	case "":
		return LossMSEWrap, nil
	default:
		return "", errors.Errorf("unknown loss %q", s)
	}
}

// MSEWrapAngle returns mean(d^2) with d the circular difference yPred-yTrue.
func MSEWrapAngle(yTrue, yPred []float64) (float64, error) {
	return Loss(LossMSEWrap, yTrue, yPred)
}

// MAEWrapAngle returns mean(|d|) with d the circular difference yPred-yTrue.
func MAEWrapAngle(yTrue, yPred []float64) (float64, error) {
	return Loss(LossMAEWrap, yTrue, yPred)
}

// MAEWrapAngleBound is MAEWrapAngle with predictions outside [-180, 180]
// negated first.
func MAEWrapAngleBound(yTrue, yPred []float64) (float64, error) {
	return Loss(LossMAEWrapBound, yTrue, yPred)
}

// Loss evaluates the loss of the given kind over a batch.
func Loss(kind LossKind, yTrue, yPred []float64) (float64, error) {
	if len(yTrue) != len(yPred) {
		return 0, errors.Wrapf(ErrShape, "%d targets, %d predictions", len(yTrue), len(yPred))
	}
	if len(yTrue) == 0 {
		return 0, nil
	}
	per := make([]float64, len(yTrue))
	for i := range yTrue {
		per[i] = SampleLoss(kind, yTrue[i], yPred[i])
	}
	return stat.Mean(per, nil), nil
}

// SampleLoss is the loss of a single prediction.
func SampleLoss(kind LossKind, yTrue, yPred float64) float64 {
	switch kind {
	case LossMAEWrap:
		return math.Abs(CircularDifferenceDeg(yPred, yTrue))
	case LossMAEWrapBound:
		return math.Abs(CircularDifferenceDeg(WrapSymmetricDeg(yPred), yTrue))
	case LossMSE:
		d := yPred - yTrue
		return d * d
	default:
		d := CircularDifferenceDeg(yPred, yTrue)
		return d * d
	}
}

// LossGradient is d SampleLoss / d yPred. The circular difference has slope
// one everywhere except at its jump, which is treated as slope one too.
func LossGradient(kind LossKind, yTrue, yPred float64) float64 {
	switch kind {
	case LossMAEWrap:
		return sign(CircularDifferenceDeg(yPred, yTrue))
	case LossMAEWrapBound:
		g := sign(CircularDifferenceDeg(WrapSymmetricDeg(yPred), yTrue))
		if math.Abs(yPred) > 180 {
			g = -g
		}
		return g
	case LossMSE:
		return 2 * (yPred - yTrue)
	default:
		return 2 * CircularDifferenceDeg(yPred, yTrue)
	}
}

func sign(x float64) float64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	}
	return 0
}
