// Package angle holds the circular arithmetic used for localization azimuths.
// All angles are in degrees. Differences are taken on the circle so that
// 359° and 1° are 2° apart, never 358°.
package angle

import (
	"math"

	"github.com/pkg/errors"
)

// ErrShape is returned when two angle slices cannot be broadcast together.
var ErrShape = errors.New("angle: incompatible shapes")

// Deg2Rad converts degrees to radians.
func Deg2Rad(a float64) float64 {
	return a * math.Pi / 180
}

// Rad2Deg converts radians to degrees.
func Rad2Deg(a float64) float64 {
	return a * 180 / math.Pi
}

// CircularDifferenceDeg returns the signed difference a-b on the circle,
// in (-180, 180].
//
// The branch is decided by atan2(sin(a-b), cos(a-b)); the difference is first
// reduced modulo 360 so that exact multiples of 360 come out as exactly zero.
func CircularDifferenceDeg(a, b float64) float64 {
	d := Deg2Rad(math.Mod(a-b, 360))
	r := math.Atan2(math.Sin(d), math.Cos(d))
	if r <= -math.Pi || r >= math.Pi {
		return 180
	}
	diff := Rad2Deg(r)
	if diff <= -180 {
		return 180
	}
	return diff
}

// CircularDifferences applies CircularDifferenceDeg element-wise. Either
// argument may have length one, in which case it is broadcast against the
// other.
func CircularDifferences(a, b []float64) ([]float64, error) {
	n := len(a)
	switch {
	case len(a) == len(b):
	case len(a) == 1:
		n = len(b)
	case len(b) == 1:
	default:
		return nil, errors.Wrapf(ErrShape, "cannot broadcast %d against %d", len(a), len(b))
	}

	out := make([]float64, n)
	for i := range out {
		out[i] = CircularDifferenceDeg(a[min(i, len(a)-1)], b[min(i, len(b)-1)])
	}
	return out, nil
}

// WrapSymmetricDeg negates x when |x| > 180.
//
// This is not a modular wrap: 190 becomes -190, not -170. It mirrors the
// bound applied to raw network outputs before a wrapped MAE and must not be
// used in place of CircularDifferenceDeg.
func WrapSymmetricDeg(x float64) float64 {
	if math.Abs(x) > 180 {
		return -x
	}
	return x
}
