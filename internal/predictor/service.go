// Package predictor serves admission probability predictions from trained
// per-college classifiers, with a rule-based fallback whenever no model is
// deployed or inference fails.
package predictor

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"admitpredict/internal/cache"
	"admitpredict/internal/features"
	"admitpredict/internal/lda"
	"admitpredict/internal/trainer"
)

// Tracker is the subset of metrics the prediction service reports.
type Tracker interface {
	PredictionInc()
	FallbackInc()
	InferenceFailureInc()
	PredictLatencyObserve(float64)
	PredictionScoreObserve(float64)
	CacheHitInc()
	CacheMissInc()
}

// Factor explains one input's effect on a prediction. ML predictions carry
// contribution values; rule-based predictions carry detail text.
type Factor struct {
	Factor        string  `json:"factor"`
	Contribution  float64 `json:"contribution,omitempty"`
	Impact        string  `json:"impact"`
	ImpactLevel   string  `json:"impact_level,omitempty"`
	RawImportance float64 `json:"raw_importance,omitempty"`
	Details       string  `json:"details,omitempty"`
}

// ModelInfo records which model produced a prediction, or why none did.
type ModelInfo struct {
	Version     string     `json:"version,omitempty"`
	TrainedAt   *time.Time `json:"trained_at,omitempty"`
	Accuracy    float64    `json:"accuracy,omitempty"`
	SampleCount int        `json:"sample_count,omitempty"`
	Note        string     `json:"note,omitempty"`
	Reason      string     `json:"reason,omitempty"`
}

// CollegeRef identifies the college a batch prediction belongs to.
type CollegeRef struct {
	ID             int      `json:"id"`
	Name           string   `json:"name"`
	AcceptanceRate *float64 `json:"acceptance_rate"`
}

// Prediction is one admission chance estimate.
type Prediction struct {
	Success         bool        `json:"success"`
	PredictionType  string      `json:"prediction_type"`
	Probability     float64     `json:"probability"`
	Percentage      int         `json:"percentage"`
	Category        string      `json:"category"`
	Confidence      float64     `json:"confidence"`
	ConfidenceLevel string      `json:"confidence_level"`
	Factors         []Factor    `json:"factors"`
	ModelInfo       ModelInfo   `json:"model_info"`
	FallbackReason  string      `json:"fallback_reason,omitempty"`
	College         *CollegeRef `json:"college,omitempty"`
}

type artifact struct {
	clf    *lda.Classifier
	scaler *lda.Scaler
	meta   *trainer.Metadata
}

// Config holds prediction service settings.
type Config struct {
	CacheTTL    time.Duration
	MinSamples  int
	MinPerClass int
}

// Service answers prediction requests. Loaded artifacts are cached with a
// TTL so retrains performed by other processes are eventually picked up.
type Service struct {
	cfg     Config
	trainer *trainer.Trainer
	models  *cache.Cache[int, artifact]
	tracker Tracker
}

// New creates a prediction service backed by the trainer's artifact store.
func New(tr *trainer.Trainer, cfg Config) *Service {
	return NewWithTracker(tr, cfg, nil)
}

// NewWithTracker creates a prediction service that reports metrics.
func NewWithTracker(tr *trainer.Trainer, cfg Config, tracker Tracker) *Service {
	return &Service{
		cfg:     cfg,
		trainer: tr,
		models:  cache.New[int, artifact](cfg.CacheTTL),
		tracker: tracker,
	}
}

func (s *Service) cachedArtifact(collegeID int) (artifact, bool, error) {
	if art, ok := s.models.Get(collegeID); ok {
		if s.tracker != nil {
			s.tracker.CacheHitInc()
		}
		return art, true, nil
	}
	if s.tracker != nil {
		s.tracker.CacheMissInc()
	}

	clf, scaler, meta, err := s.trainer.Load(collegeID)
	if err != nil {
		return artifact{}, false, err
	}
	if clf == nil || scaler == nil || meta == nil {
		return artifact{}, false, nil
	}

	art := artifact{clf: clf, scaler: scaler, meta: meta}
	s.models.Set(collegeID, art)
	return art, true, nil
}

// Predict estimates one applicant's admission chance at one college. A
// missing model yields a rule-based estimate; an inference error does too,
// with the reason attached.
func (s *Service) Predict(a features.Applicant, c features.College) Prediction {
	start := time.Now()
	if s.tracker != nil {
		s.tracker.PredictionInc()
		defer func() {
			s.tracker.PredictLatencyObserve(time.Since(start).Seconds())
		}()
	}

	art, ok, err := s.cachedArtifact(c.ID)
	if err != nil {
		log.Warn().Err(err).Int("college_id", c.ID).Msg("loading model artifact failed")
		return s.fallback(a, c, err.Error())
	}
	if !ok {
		return s.fallback(a, c, "")
	}

	pred, err := s.inference(art, a, c)
	if err != nil {
		if s.tracker != nil {
			s.tracker.InferenceFailureInc()
		}
		log.Warn().Err(err).Int("college_id", c.ID).Msg("inference failed, using rule-based estimate")
		return s.fallback(a, c, err.Error())
	}
	return pred
}

func (s *Service) inference(art artifact, a features.Applicant, c features.College) (Prediction, error) {
	feats := features.BuildInferenceFeatures(a, c)

	cols := art.meta.FeatureColumns
	if len(cols) == 0 {
		cols = features.Columns
	}

	x := make([]float64, len(cols))
	for i, col := range cols {
		v := feats[col]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			v = 0
		}
		x[i] = v
	}

	scaled, err := art.scaler.TransformRow(x)
	if err != nil {
		return Prediction{}, fmt.Errorf("scaling input: %w", err)
	}
	prob, err := art.clf.PredictProba(scaled)
	if err != nil {
		return Prediction{}, fmt.Errorf("scoring input: %w", err)
	}

	if s.tracker != nil {
		s.tracker.PredictionScoreObserve(prob)
	}

	confidence := calculateConfidence(art.meta, feats)
	trainedAt := art.meta.TrainedAt

	return Prediction{
		Success:         true,
		PredictionType:  "ml_lda",
		Probability:     prob,
		Percentage:      int(math.Round(prob * 100)),
		Category:        categorize(prob, c.AcceptanceRate),
		Confidence:      confidence,
		ConfidenceLevel: confidenceLevel(confidence),
		Factors:         contributions(scaled, art.clf.Coef, cols, art.meta.FeatureImportance),
		ModelInfo: ModelInfo{
			Version:     art.meta.Version,
			TrainedAt:   &trainedAt,
			Accuracy:    art.meta.Metrics.Accuracy,
			SampleCount: art.meta.SampleCount,
		},
	}, nil
}

// contributions ranks features by their effect on the decision score, the
// product of the scaled value and the classifier coefficient. Only the top
// eight are reported.
func contributions(scaled, coef []float64, cols []string, importance map[string]float64) []Factor {
	factors := make([]Factor, 0, len(cols))

	for i, col := range cols {
		if i >= len(coef) || i >= len(scaled) {
			continue
		}
		c := coef[i] * scaled[i]

		var impact, level string
		switch {
		case c > 0.1:
			impact = "positive"
			level = "moderate"
			if c > 0.3 {
				level = "strong"
			}
		case c < -0.1:
			impact = "negative"
			level = "moderate"
			if c < -0.3 {
				level = "strong"
			}
		default:
			impact = "neutral"
			level = "minimal"
		}

		factors = append(factors, Factor{
			Factor:        features.DisplayName(col),
			Contribution:  math.Round(c*1000) / 1000,
			Impact:        impact,
			ImpactLevel:   level,
			RawImportance: importance[col],
		})
	}

	sort.SliceStable(factors, func(i, j int) bool {
		return math.Abs(factors[i].Contribution) > math.Abs(factors[j].Contribution)
	})
	if len(factors) > 8 {
		factors = factors[:8]
	}
	return factors
}

// categorize maps a probability to a chance band. Very selective colleges
// (under 15% acceptance) use stricter bands: even a coin-flip probability
// is no better than a target there.
func categorize(probability float64, acceptanceRate *float64) string {
	if acceptanceRate != nil && *acceptanceRate < 15 {
		switch {
		case probability >= 0.5:
			return "Target"
		case probability >= 0.25:
			return "Reach"
		default:
			return "Far Reach"
		}
	}

	switch {
	case probability >= 0.7:
		return "Safety"
	case probability >= 0.4:
		return "Target"
	case probability >= 0.2:
		return "Reach"
	default:
		return "Far Reach"
	}
}

// calculateConfidence combines model accuracy, training sample size, and
// profile completeness into a 0.10 to 0.95 score.
func calculateConfidence(meta *trainer.Metadata, feats map[string]float64) float64 {
	confidence := 0.5

	confidence += (meta.Metrics.Accuracy - 0.5) * 0.6

	switch {
	case meta.SampleCount >= 1000:
		confidence += 0.2
	case meta.SampleCount >= 500:
		confidence += 0.15
	case meta.SampleCount >= 100:
		confidence += 0.1
	case meta.SampleCount >= 50:
		confidence += 0.05
	}

	complete := 0
	for _, v := range feats {
		if v != 0 && !math.IsNaN(v) {
			complete++
		}
	}
	if len(feats) > 0 {
		confidence += float64(complete) / float64(len(feats)) * 0.2
	}

	return math.Min(math.Max(confidence, 0.1), 0.95)
}

func confidenceLevel(confidence float64) string {
	switch {
	case confidence >= 0.8:
		return "high"
	case confidence >= 0.6:
		return "medium"
	default:
		return "low"
	}
}

// BatchPredict estimates chances across several colleges, best first.
func (s *Service) BatchPredict(a features.Applicant, colleges []features.College) []Prediction {
	predictions := make([]Prediction, 0, len(colleges))

	for _, c := range colleges {
		pred := s.Predict(a, c)
		pred.College = &CollegeRef{
			ID:             c.ID,
			Name:           c.Name,
			AcceptanceRate: c.AcceptanceRate,
		}
		predictions = append(predictions, pred)
	}

	sort.SliceStable(predictions, func(i, j int) bool {
		return predictions[i].Probability > predictions[j].Probability
	})
	return predictions
}

// Invalidate drops one college's cached artifact so the next prediction
// reloads from disk.
func (s *Service) Invalidate(collegeID int) {
	s.models.Delete(collegeID)
}

// ClearCache drops all cached artifacts.
func (s *Service) ClearCache() {
	s.models.Clear()
}
