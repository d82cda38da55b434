package lda

import (
	"fmt"

	"github.com/montanaflynn/stats"
)

// Scaler standardizes features to zero mean and unit variance. It is fit on
// the training partition only and reapplied identically at inference time.
// Exported fields keep the fitted state gob-encodable.
type Scaler struct {
	Mean []float64
	Std  []float64
}

// Fit computes per-column mean and population standard deviation.
// Zero-variance columns get a unit std so that transformed values become 0.
func (s *Scaler) Fit(X [][]float64) error {
	if len(X) == 0 || len(X[0]) == 0 {
		return fmt.Errorf("cannot fit scaler on empty matrix")
	}

	dims := len(X[0])
	s.Mean = make([]float64, dims)
	s.Std = make([]float64, dims)

	col := make([]float64, len(X))
	for j := 0; j < dims; j++ {
		for i := range X {
			col[i] = X[i][j]
		}

		mean, err := stats.Mean(col)
		if err != nil {
			return fmt.Errorf("column %d mean: %w", j, err)
		}
		std, err := stats.StandardDeviationPopulation(col)
		if err != nil {
			return fmt.Errorf("column %d std: %w", j, err)
		}
		if std == 0 {
			std = 1
		}

		s.Mean[j] = mean
		s.Std[j] = std
	}
	return nil
}

// Transform standardizes a matrix using the fitted parameters.
func (s *Scaler) Transform(X [][]float64) ([][]float64, error) {
	out := make([][]float64, len(X))
	for i, row := range X {
		scaled, err := s.TransformRow(row)
		if err != nil {
			return nil, err
		}
		out[i] = scaled
	}
	return out, nil
}

// TransformRow standardizes a single feature vector.
func (s *Scaler) TransformRow(x []float64) ([]float64, error) {
	if len(x) != len(s.Mean) {
		return nil, fmt.Errorf("expected %d features, got %d", len(s.Mean), len(x))
	}
	out := make([]float64, len(x))
	for j, v := range x {
		out[j] = (v - s.Mean[j]) / s.Std[j]
	}
	return out, nil
}
