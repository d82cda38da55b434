// Package trainer fits, evaluates, versions, and persists one linear
// discriminant classifier per college. Artifacts below the accuracy
// threshold are never persisted; an existing artifact survives any failed
// retrain attempt.
package trainer

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/rs/zerolog/log"

	"admitpredict/internal/cache"
	"admitpredict/internal/features"
	"admitpredict/internal/lda"
)

// splitSeed keeps train/validation partitions reproducible across runs.
const splitSeed = 42

// Tracker is the subset of metrics the trainer reports.
type Tracker interface {
	TrainingRunInc()
	TrainingFailureInc()
	TrainingDurationObserve(float64)
	AccuracyObserve(float64)
}

// Config holds the training thresholds.
type Config struct {
	ModelDir        string
	MinSamples      int
	MinPerClass     int
	MinAccuracy     float64
	ValidationSplit float64
	CVFolds         int
	MinConfidence   float64
	FreshnessDays   int
}

// Metrics are the evaluation results for one trained classifier.
type Metrics struct {
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	CVMean    float64 `json:"cv_mean"`
	CVStd     float64 `json:"cv_std"`
}

// Metadata describes one persisted model artifact.
type Metadata struct {
	CollegeID         int                `json:"college_id"`
	TrainedAt         time.Time          `json:"trained_at"`
	Version           string             `json:"version"`
	SampleCount       int                `json:"sample_count"`
	AcceptedCount     int                `json:"accepted_count"`
	RejectedCount     int                `json:"rejected_count"`
	ClassBalance      float64            `json:"class_balance"`
	FeatureColumns    []string           `json:"feature_columns"`
	Metrics           Metrics            `json:"metrics"`
	FeatureImportance map[string]float64 `json:"feature_importance"`
	IsDeployed        bool               `json:"is_deployed"`
}

// Result is the outcome of a training request. On success the embedded
// metadata is flattened into the JSON document.
type Result struct {
	*Metadata
	Success     bool     `json:"success"`
	Message     string   `json:"message"`
	CollegeID   int      `json:"college_id"`
	SampleCount int      `json:"sample_count,omitempty"`
	Metrics     *Metrics `json:"metrics,omitempty"`
}

// artifact is the unit a reader observes: the classifier, scaler, and
// metadata always swap together so a load never pairs a new classifier
// with an old scaler.
type artifact struct {
	clf    *lda.Classifier
	scaler *lda.Scaler
	meta   *Metadata
}

// Trainer manages classifier lifecycles for all colleges.
type Trainer struct {
	cfg       Config
	artifacts *cache.Cache[int, artifact]
	tracker   Tracker
	now       func() time.Time
}

// New creates a trainer and ensures the model directory exists.
func New(cfg Config) (*Trainer, error) {
	return NewWithTracker(cfg, nil)
}

// NewWithTracker creates a trainer that reports training metrics.
func NewWithTracker(cfg Config, tracker Tracker) (*Trainer, error) {
	if err := ensureDir(cfg.ModelDir); err != nil {
		return nil, fmt.Errorf("creating model directory: %w", err)
	}
	return &Trainer{
		cfg: cfg,
		// Artifacts only change through this trainer, so the
		// read-through cache never expires; retrains refresh it
		// in place.
		artifacts: cache.New[int, artifact](0),
		tracker:   tracker,
		now:       time.Now,
	}, nil
}

// CheckReadiness verifies the dataset slice has enough rows overall and per
// class. The reason string explains any failure.
func (t *Trainer) CheckReadiness(ds *features.Dataset) (bool, string) {
	if ds.Len() < t.cfg.MinSamples {
		return false, fmt.Sprintf("insufficient samples: %d < %d", ds.Len(), t.cfg.MinSamples)
	}

	admitted := ds.AdmittedCount()
	rejected := ds.Len() - admitted

	if admitted < t.cfg.MinPerClass {
		return false, fmt.Sprintf("insufficient accepted samples: %d < %d", admitted, t.cfg.MinPerClass)
	}
	if rejected < t.cfg.MinPerClass {
		return false, fmt.Sprintf("insufficient rejected samples: %d < %d", rejected, t.cfg.MinPerClass)
	}
	return true, "ready for training"
}

// Train fits and evaluates a classifier for one college from raw records.
// Unless forced, a model still inside its freshness window is left alone.
// A classifier below the accuracy threshold is reported as a failure with
// metrics attached and is never persisted.
func (t *Trainer) Train(collegeID int, records []features.Record, force bool) (Result, error) {
	start := t.now()
	if t.tracker != nil {
		t.tracker.TrainingRunInc()
		defer func() {
			t.tracker.TrainingDurationObserve(time.Since(start).Seconds())
		}()
	}

	if !force {
		meta, err := t.LoadMetadata(collegeID)
		if err != nil {
			return Result{}, fmt.Errorf("checking existing model: %w", err)
		}
		if meta != nil {
			daysOld := int(t.now().Sub(meta.TrainedAt).Hours() / 24)
			if daysOld < t.cfg.FreshnessDays {
				return Result{
					Success:   false,
					Message:   fmt.Sprintf("model is only %d days old; freshness window is %d days, use force to retrain", daysOld, t.cfg.FreshnessDays),
					CollegeID: collegeID,
				}, nil
			}
		}
	}

	ds := features.BuildTrainingDataset(records, t.cfg.MinConfidence).FilterCollege(collegeID)

	if ready, reason := t.CheckReadiness(ds); !ready {
		t.failureInc()
		return Result{
			Success:     false,
			Message:     reason,
			CollegeID:   collegeID,
			SampleCount: ds.Len(),
		}, nil
	}

	cols := features.Columns
	X, y := ds.Matrix(cols)

	trainIdx, valIdx := stratifiedSplit(y, t.cfg.ValidationSplit, splitSeed)
	XTrain, yTrain := subset(X, y, trainIdx)
	XVal, yVal := subset(X, y, valIdx)

	// The scaler sees the train partition only
	var scaler lda.Scaler
	if err := scaler.Fit(XTrain); err != nil {
		return Result{}, fmt.Errorf("fitting scaler for college %d: %w", collegeID, err)
	}
	XTrainScaled, err := scaler.Transform(XTrain)
	if err != nil {
		return Result{}, fmt.Errorf("scaling train partition: %w", err)
	}
	XValScaled, err := scaler.Transform(XVal)
	if err != nil {
		return Result{}, fmt.Errorf("scaling validation partition: %w", err)
	}

	var clf lda.Classifier
	if err := clf.Fit(XTrainScaled, yTrain); err != nil {
		return Result{}, fmt.Errorf("fitting classifier for college %d: %w", collegeID, err)
	}

	m, err := evaluate(&clf, XValScaled, yVal)
	if err != nil {
		return Result{}, fmt.Errorf("evaluating classifier: %w", err)
	}

	XScaled, err := scaler.Transform(X)
	if err != nil {
		return Result{}, fmt.Errorf("scaling full dataset: %w", err)
	}
	m.CVMean, m.CVStd, err = crossValidate(XScaled, y, min(t.cfg.CVFolds, len(y)/2))
	if err != nil {
		return Result{}, fmt.Errorf("cross-validating: %w", err)
	}

	// Quality gate: the prior artifact, if any, stays untouched
	if m.Accuracy < t.cfg.MinAccuracy {
		t.failureInc()
		log.Warn().
			Int("college_id", collegeID).
			Float64("accuracy", m.Accuracy).
			Float64("threshold", t.cfg.MinAccuracy).
			Msg("trained model below accuracy threshold, discarding")
		return Result{
			Success:   false,
			Message:   fmt.Sprintf("model accuracy %.1f%% below threshold %.1f%%", m.Accuracy*100, t.cfg.MinAccuracy*100),
			CollegeID: collegeID,
			Metrics:   &m,
		}, nil
	}

	importance := make(map[string]float64, len(cols))
	for i, col := range cols {
		if i < len(clf.Coef) {
			importance[col] = clf.Coef[i]
		}
	}

	admitted := ds.AdmittedCount()
	meta := &Metadata{
		CollegeID:         collegeID,
		TrainedAt:         t.now(),
		Version:           t.nextVersion(collegeID),
		SampleCount:       ds.Len(),
		AcceptedCount:     admitted,
		RejectedCount:     ds.Len() - admitted,
		ClassBalance:      float64(admitted) / float64(ds.Len()),
		FeatureColumns:    cols,
		Metrics:           m,
		FeatureImportance: importance,
		IsDeployed:        true,
	}

	if err := t.saveArtifact(collegeID, &clf, &scaler, meta); err != nil {
		return Result{}, fmt.Errorf("persisting artifact for college %d: %w", collegeID, err)
	}

	t.artifacts.Set(collegeID, artifact{clf: &clf, scaler: &scaler, meta: meta})

	if t.tracker != nil {
		t.tracker.AccuracyObserve(m.Accuracy)
	}
	log.Info().
		Int("college_id", collegeID).
		Str("version", meta.Version).
		Int("samples", meta.SampleCount).
		Float64("accuracy", m.Accuracy).
		Msg("model trained and deployed")

	return Result{
		Metadata:    meta,
		Success:     true,
		Message:     "model trained and deployed successfully",
		CollegeID:   collegeID,
		SampleCount: meta.SampleCount,
		Metrics:     &meta.Metrics,
	}, nil
}

func (t *Trainer) failureInc() {
	if t.tracker != nil {
		t.tracker.TrainingFailureInc()
	}
}

// nextVersion increments the minor version of the existing model, or starts
// at 1.0. The major version never changes here.
func (t *Trainer) nextVersion(collegeID int) string {
	existing, err := t.LoadMetadata(collegeID)
	if err != nil || existing == nil {
		return "1.0"
	}

	var major, minor int
	if _, err := fmt.Sscanf(existing.Version, "%d.%d", &major, &minor); err != nil {
		return "1.0"
	}
	return fmt.Sprintf("%d.%d", major, minor+1)
}

// stratifiedSplit partitions label indices so each class contributes the
// same fraction to the validation set, with at least one example per class.
func stratifiedSplit(y []int, valFraction float64, seed int64) (trainIdx, valIdx []int) {
	rng := rand.New(rand.NewSource(seed))

	byClass := map[int][]int{}
	for i, label := range y {
		byClass[label] = append(byClass[label], i)
	}

	for _, label := range []int{0, 1} {
		idx := byClass[label]
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })

		nVal := int(math.Round(float64(len(idx)) * valFraction))
		if nVal < 1 && len(idx) > 1 {
			nVal = 1
		}
		valIdx = append(valIdx, idx[:nVal]...)
		trainIdx = append(trainIdx, idx[nVal:]...)
	}
	return trainIdx, valIdx
}

func subset(X [][]float64, y []int, idx []int) ([][]float64, []int) {
	xs := make([][]float64, len(idx))
	ys := make([]int, len(idx))
	for i, j := range idx {
		xs[i] = X[j]
		ys[i] = y[j]
	}
	return xs, ys
}

// evaluate computes accuracy, precision, recall, and F1 on the validation
// partition. Undefined ratios (no predicted or actual positives) are 0.
func evaluate(clf *lda.Classifier, X [][]float64, y []int) (Metrics, error) {
	var m Metrics
	var tp, fp, fn, correct int

	for i, x := range X {
		pred, err := clf.Predict(x)
		if err != nil {
			return m, err
		}
		if pred == y[i] {
			correct++
		}
		switch {
		case pred == 1 && y[i] == 1:
			tp++
		case pred == 1 && y[i] == 0:
			fp++
		case pred == 0 && y[i] == 1:
			fn++
		}
	}

	if len(y) > 0 {
		m.Accuracy = float64(correct) / float64(len(y))
	}
	if tp+fp > 0 {
		m.Precision = float64(tp) / float64(tp+fp)
	}
	if tp+fn > 0 {
		m.Recall = float64(tp) / float64(tp+fn)
	}
	if m.Precision+m.Recall > 0 {
		m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
	}
	return m, nil
}

// crossValidate runs stratified k-fold accuracy over the scaled dataset.
// Fewer than two usable folds degenerates to a single full-dataset fit.
func crossValidate(X [][]float64, y []int, folds int) (mean, std float64, err error) {
	if folds < 2 {
		var clf lda.Classifier
		if err := clf.Fit(X, y); err != nil {
			return 0, 0, err
		}
		m, err := evaluate(&clf, X, y)
		if err != nil {
			return 0, 0, err
		}
		return m.Accuracy, 0, nil
	}

	rng := rand.New(rand.NewSource(splitSeed))
	assignment := make([]int, len(y))
	for _, label := range []int{0, 1} {
		var idx []int
		for i, l := range y {
			if l == label {
				idx = append(idx, i)
			}
		}
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		for pos, i := range idx {
			assignment[i] = pos % folds
		}
	}

	scores := make([]float64, 0, folds)
	for fold := 0; fold < folds; fold++ {
		var trainIdx, testIdx []int
		for i := range y {
			if assignment[i] == fold {
				testIdx = append(testIdx, i)
			} else {
				trainIdx = append(trainIdx, i)
			}
		}
		if len(testIdx) == 0 {
			continue
		}

		XTrain, yTrain := subset(X, y, trainIdx)
		XTest, yTest := subset(X, y, testIdx)

		var clf lda.Classifier
		if err := clf.Fit(XTrain, yTrain); err != nil {
			// A fold can lose one class entirely on tiny datasets
			continue
		}
		m, err := evaluate(&clf, XTest, yTest)
		if err != nil {
			return 0, 0, err
		}
		scores = append(scores, m.Accuracy)
	}

	if len(scores) == 0 {
		return 0, 0, fmt.Errorf("no usable cross-validation folds")
	}

	mean, err = stats.Mean(scores)
	if err != nil {
		return 0, 0, err
	}
	std, err = stats.StandardDeviationPopulation(scores)
	if err != nil {
		return 0, 0, err
	}
	return mean, std, nil
}
