// Package lda implements a two-class linear discriminant classifier and the
// standard scaler that accompanies it. The classifier projects features onto
// the direction maximizing between-class separation relative to within-class
// variance and converts the decision score to a class probability.
package lda

import (
	"fmt"
	"math"
)

// ridge is added to the pooled covariance diagonal so near-constant
// features do not make the system singular.
const ridge = 1e-6

// Classifier is a fitted two-class linear discriminant. Exported fields
// keep the fitted state gob-encodable.
type Classifier struct {
	Coef      []float64 // weight per feature, class 1 positive direction
	Intercept float64
}

// Fit estimates class means, the pooled within-class covariance, and the
// discriminant direction. y must contain only 0 and 1, with at least one
// example of each class.
func (c *Classifier) Fit(X [][]float64, y []int) error {
	if len(X) == 0 {
		return fmt.Errorf("cannot fit on empty dataset")
	}
	if len(X) != len(y) {
		return fmt.Errorf("feature/label length mismatch: %d vs %d", len(X), len(y))
	}

	dims := len(X[0])
	var n0, n1 int
	mean0 := make([]float64, dims)
	mean1 := make([]float64, dims)

	for i, x := range X {
		if len(x) != dims {
			return fmt.Errorf("row %d has %d features, expected %d", i, len(x), dims)
		}
		switch y[i] {
		case 0:
			n0++
			for j, v := range x {
				mean0[j] += v
			}
		case 1:
			n1++
			for j, v := range x {
				mean1[j] += v
			}
		default:
			return fmt.Errorf("label %d at row %d: only binary labels supported", y[i], i)
		}
	}
	if n0 == 0 || n1 == 0 {
		return fmt.Errorf("both classes must be present: got %d/%d", n0, n1)
	}

	for j := 0; j < dims; j++ {
		mean0[j] /= float64(n0)
		mean1[j] /= float64(n1)
	}

	// Pooled within-class covariance
	cov := make([][]float64, dims)
	for j := range cov {
		cov[j] = make([]float64, dims)
	}
	for i, x := range X {
		mean := mean0
		if y[i] == 1 {
			mean = mean1
		}
		for j := 0; j < dims; j++ {
			dj := x[j] - mean[j]
			for k := 0; k < dims; k++ {
				cov[j][k] += dj * (x[k] - mean[k])
			}
		}
	}
	denom := float64(len(X) - 2)
	if denom < 1 {
		denom = 1
	}
	for j := 0; j < dims; j++ {
		for k := 0; k < dims; k++ {
			cov[j][k] /= denom
		}
		cov[j][j] += ridge
	}

	// w = Sigma^-1 (mean1 - mean0)
	diff := make([]float64, dims)
	for j := 0; j < dims; j++ {
		diff[j] = mean1[j] - mean0[j]
	}
	w, err := solve(cov, diff)
	if err != nil {
		return fmt.Errorf("solving discriminant direction: %w", err)
	}

	// Intercept places the boundary midway between the projected class
	// means, shifted by the log prior ratio.
	var mid float64
	for j := 0; j < dims; j++ {
		mid += w[j] * (mean0[j] + mean1[j]) / 2
	}
	prior := math.Log(float64(n1) / float64(n0))

	c.Coef = w
	c.Intercept = prior - mid
	return nil
}

// DecisionScore returns the signed distance from the decision boundary.
func (c *Classifier) DecisionScore(x []float64) (float64, error) {
	if len(x) != len(c.Coef) {
		return 0, fmt.Errorf("expected %d features, got %d", len(c.Coef), len(x))
	}
	score := c.Intercept
	for j, v := range x {
		score += c.Coef[j] * v
	}
	return score, nil
}

// PredictProba returns the probability of the positive (admitted) class.
func (c *Classifier) PredictProba(x []float64) (float64, error) {
	score, err := c.DecisionScore(x)
	if err != nil {
		return 0, err
	}
	return sigmoid(score), nil
}

// Predict returns the hard class label.
func (c *Classifier) Predict(x []float64) (int, error) {
	p, err := c.PredictProba(x)
	if err != nil {
		return 0, err
	}
	if p >= 0.5 {
		return 1, nil
	}
	return 0, nil
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

// solve performs Gaussian elimination with partial pivoting on a copy of
// the inputs.
func solve(a [][]float64, b []float64) ([]float64, error) {
	n := len(a)
	m := make([][]float64, n)
	for i := range a {
		m[i] = make([]float64, n+1)
		copy(m[i], a[i])
		m[i][n] = b[i]
	}

	for col := 0; col < n; col++ {
		pivot := col
		for r := col + 1; r < n; r++ {
			if math.Abs(m[r][col]) > math.Abs(m[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(m[pivot][col]) < 1e-12 {
			return nil, fmt.Errorf("singular covariance matrix at column %d", col)
		}
		m[col], m[pivot] = m[pivot], m[col]

		for r := 0; r < n; r++ {
			if r == col {
				continue
			}
			factor := m[r][col] / m[col][col]
			for k := col; k <= n; k++ {
				m[r][k] -= factor * m[col][k]
			}
		}
	}

	x := make([]float64, n)
	for i := 0; i < n; i++ {
		x[i] = m[i][n] / m[i][i]
	}
	return x, nil
}
