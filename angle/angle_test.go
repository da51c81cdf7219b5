package angle

import (
	"math"
	"math/rand"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircularDifferenceDeg(t *testing.T) {
	tcs := []struct {
		a, b, want float64
	}{
		{10, 0, 10},
		{0, 10, -10},
		{359, 1, -2},
		{1, 359, 2},
		{90, -90, 180},
		{-90, 90, 180},
		{720, 0, 0},
		{-45, 315, 0},
		{181, 0, -179},
		{0, 181, 179},
	}
	for _, tc := range tcs {
		assert.InDelta(t, tc.want, CircularDifferenceDeg(tc.a, tc.b), 1e-9, "a=%v b=%v", tc.a, tc.b)
	}
}

func TestCircularDifferenceDeg_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 5000; i++ {
		a := rng.Float64()*2000 - 1000
		b := rng.Float64()*2000 - 1000

		d := CircularDifferenceDeg(a, b)
		require.True(t, d > -180 && d <= 180, "out of range: %v", d)

		r := CircularDifferenceDeg(b, a)
		if math.Abs(d) < 180-1e-6 {
			require.InDelta(t, d, -r, 1e-9)
		}

		require.Equal(t, 0.0, CircularDifferenceDeg(a, a))
		require.InDelta(t, 0.0, CircularDifferenceDeg(a, a+360), 1e-9)
	}

	for a := -720; a <= 720; a++ {
		require.Equal(t, 0.0, CircularDifferenceDeg(float64(a), float64(a+360)))
	}
}

func TestCircularDifferenceDeg_NaiveBoundary(t *testing.T) {
	// a one-branch "subtract 360 above 180" fails for differences beyond 540
	assert.InDelta(t, 0.0, CircularDifferenceDeg(720, 0), 1e-9)
	assert.InDelta(t, -10.0, CircularDifferenceDeg(-730, 0), 1e-9)
}

func TestCircularDifferences_Broadcast(t *testing.T) {
	got, err := CircularDifferences([]float64{0, 90, 350}, []float64{10})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{-10, 80, -20}, got, 1e-9)

	got, err = CircularDifferences([]float64{0}, []float64{10, 20})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{-10, -20}, got, 1e-9)

	got, err = CircularDifferences([]float64{1, 2}, []float64{359, 358})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{2, 4}, got, 1e-9)

	_, err = CircularDifferences([]float64{1, 2}, []float64{1, 2, 3})
	require.True(t, errors.Is(err, ErrShape))
}

func TestWrapSymmetricDeg(t *testing.T) {
	assert.Equal(t, 170.0, WrapSymmetricDeg(170))
	assert.Equal(t, 180.0, WrapSymmetricDeg(180))
	assert.Equal(t, -190.0, WrapSymmetricDeg(190))
	assert.Equal(t, 200.0, WrapSymmetricDeg(-200))
	assert.Equal(t, -180.0, WrapSymmetricDeg(-180))

	// negation is not the same as a modular wrap
	assert.NotEqual(t, CircularDifferenceDeg(190, 0), WrapSymmetricDeg(190))
}

func TestDegRad(t *testing.T) {
	assert.InDelta(t, math.Pi, Deg2Rad(180), 1e-12)
	assert.InDelta(t, 90.0, Rad2Deg(math.Pi/2), 1e-12)
}
