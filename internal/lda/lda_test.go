package lda

import (
	"bytes"
	"encoding/gob"
	"math"
	"math/rand"
	"testing"
)

// separableData builds two well-separated Gaussian-ish clusters.
func separableData(n int) ([][]float64, []int) {
	rng := rand.New(rand.NewSource(7))
	X := make([][]float64, 0, 2*n)
	y := make([]int, 0, 2*n)
	for i := 0; i < n; i++ {
		X = append(X, []float64{3.0 + rng.Float64()*0.5, 95 + rng.Float64()*5, 1})
		y = append(y, 1)
		X = append(X, []float64{1.0 + rng.Float64()*0.5, 30 + rng.Float64()*5, 0})
		y = append(y, 0)
	}
	return X, y
}

func TestClassifierFit_SeparatesClasses(t *testing.T) {
	X, y := separableData(30)

	var scaler Scaler
	if err := scaler.Fit(X); err != nil {
		t.Fatalf("scaler fit: %v", err)
	}
	scaled, err := scaler.Transform(X)
	if err != nil {
		t.Fatalf("scaler transform: %v", err)
	}

	var clf Classifier
	if err := clf.Fit(scaled, y); err != nil {
		t.Fatalf("classifier fit: %v", err)
	}

	correct := 0
	for i, x := range scaled {
		pred, err := clf.Predict(x)
		if err != nil {
			t.Fatalf("predict: %v", err)
		}
		if pred == y[i] {
			correct++
		}
	}
	accuracy := float64(correct) / float64(len(y))
	if accuracy < 0.95 {
		t.Errorf("expected near-perfect separation, got accuracy %f", accuracy)
	}
}

func TestClassifier_ProbabilitiesBounded(t *testing.T) {
	X, y := separableData(20)
	var clf Classifier
	if err := clf.Fit(X, y); err != nil {
		t.Fatalf("fit: %v", err)
	}

	for _, x := range X {
		p, err := clf.PredictProba(x)
		if err != nil {
			t.Fatalf("proba: %v", err)
		}
		if p < 0 || p > 1 || math.IsNaN(p) {
			t.Fatalf("probability out of bounds: %f", p)
		}
	}
}

func TestClassifierFit_RejectsBadInput(t *testing.T) {
	var clf Classifier

	if err := clf.Fit(nil, nil); err == nil {
		t.Error("expected error on empty dataset")
	}
	if err := clf.Fit([][]float64{{1, 2}}, []int{0, 1}); err == nil {
		t.Error("expected error on length mismatch")
	}
	if err := clf.Fit([][]float64{{1}, {2}}, []int{0, 0}); err == nil {
		t.Error("expected error with a single class")
	}
	if err := clf.Fit([][]float64{{1}, {2}}, []int{0, 3}); err == nil {
		t.Error("expected error on non-binary labels")
	}
}

func TestClassifier_ConstantFeatureTolerated(t *testing.T) {
	// Third column is constant; the ridge term must keep the solve stable.
	X := [][]float64{
		{3.9, 98, 0}, {3.8, 95, 0}, {3.7, 96, 0}, {3.9, 99, 0},
		{2.0, 30, 0}, {2.1, 35, 0}, {1.9, 28, 0}, {2.2, 33, 0},
	}
	y := []int{1, 1, 1, 1, 0, 0, 0, 0}

	var clf Classifier
	if err := clf.Fit(X, y); err != nil {
		t.Fatalf("fit with constant column failed: %v", err)
	}

	p, err := clf.PredictProba([]float64{3.85, 97, 0})
	if err != nil {
		t.Fatalf("proba: %v", err)
	}
	if p < 0.5 {
		t.Errorf("strong profile should score above 0.5, got %f", p)
	}
}

func TestScaler(t *testing.T) {
	X := [][]float64{{1, 10}, {2, 20}, {3, 30}}

	var s Scaler
	if err := s.Fit(X); err != nil {
		t.Fatalf("fit: %v", err)
	}

	scaled, err := s.Transform(X)
	if err != nil {
		t.Fatalf("transform: %v", err)
	}

	for j := 0; j < 2; j++ {
		var sum float64
		for i := range scaled {
			sum += scaled[i][j]
		}
		if math.Abs(sum) > 1e-9 {
			t.Errorf("column %d not centered: sum %f", j, sum)
		}
	}

	// Middle row sits exactly on the mean
	if math.Abs(scaled[1][0]) > 1e-9 || math.Abs(scaled[1][1]) > 1e-9 {
		t.Error("mean row should transform to zero")
	}

	if _, err := s.TransformRow([]float64{1}); err == nil {
		t.Error("expected dimension mismatch error")
	}
}

func TestScaler_ZeroVariance(t *testing.T) {
	X := [][]float64{{5, 1}, {5, 2}, {5, 3}}

	var s Scaler
	if err := s.Fit(X); err != nil {
		t.Fatalf("fit: %v", err)
	}

	scaled, err := s.TransformRow([]float64{5, 2})
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	if scaled[0] != 0 {
		t.Errorf("constant column should transform to 0, got %f", scaled[0])
	}
}

func TestGobRoundTrip(t *testing.T) {
	X, y := separableData(15)
	var clf Classifier
	if err := clf.Fit(X, y); err != nil {
		t.Fatalf("fit: %v", err)
	}
	var scaler Scaler
	if err := scaler.Fit(X); err != nil {
		t.Fatalf("scaler fit: %v", err)
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&clf); err != nil {
		t.Fatalf("encode classifier: %v", err)
	}
	var clf2 Classifier
	if err := gob.NewDecoder(&buf).Decode(&clf2); err != nil {
		t.Fatalf("decode classifier: %v", err)
	}

	buf.Reset()
	if err := gob.NewEncoder(&buf).Encode(&scaler); err != nil {
		t.Fatalf("encode scaler: %v", err)
	}
	var scaler2 Scaler
	if err := gob.NewDecoder(&buf).Decode(&scaler2); err != nil {
		t.Fatalf("decode scaler: %v", err)
	}

	p1, _ := clf.PredictProba(X[0])
	p2, _ := clf2.PredictProba(X[0])
	if math.Abs(p1-p2) > 1e-12 {
		t.Errorf("round-tripped classifier disagrees: %f vs %f", p1, p2)
	}
}
