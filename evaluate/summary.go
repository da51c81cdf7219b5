package evaluate

import (
	"math"

	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
)

// PositionSummary holds error statistics for one listening position, in
// degrees.
type PositionSummary struct {
	Position  int     `csv:"position"`
	Trials    int     `csv:"trials"`
	MeanError float64 `csv:"mean_error"`
	MAE       float64 `csv:"mae"`
	RMSE      float64 `csv:"rmse"`
	MedianAbs float64 `csv:"median_abs"`
	P90Abs    float64 `csv:"p90_abs"`
}

// Summaries computes per-position statistics from a decomposition.
// positions labels the rows; if nil, rows are numbered from 0.
func Summaries(d Decomposition, positions []int) ([]PositionSummary, error) {
	if positions != nil && len(positions) != len(d.PerPosition) {
		return nil, errors.Wrapf(ErrShape, "%d labels for %d positions", len(positions), len(d.PerPosition))
	}
	out := make([]PositionSummary, len(d.PerPosition))
	for x, deltas := range d.PerPosition {
		pos := x
		if positions != nil {
			pos = positions[x]
		}
		s := PositionSummary{Position: pos, Trials: len(deltas)}
		if len(deltas) == 0 {
			out[x] = s
			continue
		}

		abs := make([]float64, len(deltas))
		sq := make([]float64, len(deltas))
		for i, v := range deltas {
			abs[i] = math.Abs(v)
			sq[i] = v * v
		}
		s.MeanError = stat.Mean(deltas, nil)
		s.MAE = stat.Mean(abs, nil)
		s.RMSE = math.Sqrt(stat.Mean(sq, nil))

		var err error
		if s.MedianAbs, err = stats.Median(abs); err != nil {
			return nil, errors.Wrapf(err, "median at position %d", pos)
		}
		if s.P90Abs, err = stats.Percentile(abs, 90); err != nil {
			return nil, errors.Wrapf(err, "percentile at position %d", pos)
		}
		out[x] = s
	}
	return out, nil
}
