package predictor

import (
	"fmt"

	"admitpredict/internal/features"
)

// fallback produces a rule-based estimate when no model is deployed or
// inference failed. Scoring starts at 50 and moves with GPA relative to the
// college average, test percentile, activities, and admission hooks, then
// shrinks for selective colleges.
func (s *Service) fallback(a features.Applicant, c features.College, reason string) Prediction {
	if s.tracker != nil {
		s.tracker.FallbackInc()
	}

	score := 50.0
	var factors []Factor

	acceptanceRate := 50.0
	if c.AcceptanceRate != nil {
		acceptanceRate = *c.AcceptanceRate
	}

	gpa := a.GPAUnweighted
	if gpa == nil {
		gpa = a.GPAWeighted
	}
	avgGPA := 3.5
	if c.AverageGPA != nil {
		avgGPA = *c.AverageGPA
	}
	if gpa != nil {
		diff := *gpa - avgGPA
		switch {
		case diff >= 0.3:
			score += 12
			factors = append(factors, Factor{Factor: "GPA", Impact: "positive",
				Details: fmt.Sprintf("%.2f is above average", *gpa)})
		case diff >= 0:
			score += 5
			factors = append(factors, Factor{Factor: "GPA", Impact: "positive",
				Details: fmt.Sprintf("%.2f matches college profile", *gpa)})
		case diff >= -0.3:
			score -= 5
			factors = append(factors, Factor{Factor: "GPA", Impact: "neutral",
				Details: fmt.Sprintf("%.2f is slightly below average", *gpa)})
		default:
			score -= 10
			factors = append(factors, Factor{Factor: "GPA", Impact: "negative",
				Details: fmt.Sprintf("%.2f is below average", *gpa)})
		}
	}

	if a.SATTotal != nil || a.ACTComposite != nil {
		pct := features.BestTestPercentile(a.SATTotal, a.ACTComposite)
		switch {
		case pct >= 90:
			score += 15
			factors = append(factors, Factor{Factor: "Test Scores", Impact: "positive",
				Details: "Excellent test scores"})
		case pct >= 75:
			score += 8
			factors = append(factors, Factor{Factor: "Test Scores", Impact: "positive",
				Details: "Strong test scores"})
		case pct >= 50:
			factors = append(factors, Factor{Factor: "Test Scores", Impact: "neutral",
				Details: "Average test scores"})
		default:
			score -= 8
			factors = append(factors, Factor{Factor: "Test Scores", Impact: "negative",
				Details: "Test scores below average"})
		}
	}

	switch {
	case a.ActivityTier1Count >= 2:
		score += 10
		factors = append(factors, Factor{Factor: "Extracurriculars", Impact: "positive",
			Details: "National/international achievements"})
	case a.ActivityTier1Count >= 1 || a.ActivityTier2Count >= 2:
		score += 5
		factors = append(factors, Factor{Factor: "Extracurriculars", Impact: "positive",
			Details: "Strong leadership and achievements"})
	}

	if a.IsLegacy {
		score += 8
		factors = append(factors, Factor{Factor: "Legacy", Impact: "positive",
			Details: "Legacy applicant advantage"})
	}
	if a.IsFirstGeneration {
		score += 3
		factors = append(factors, Factor{Factor: "First Generation", Impact: "positive",
			Details: "First-gen consideration"})
	}

	switch {
	case acceptanceRate < 10:
		score *= 0.6
	case acceptanceRate < 20:
		score *= 0.75
	case acceptanceRate < 30:
		score *= 0.85
	}

	if score > 95 {
		score = 95
	}
	if score < 5 {
		score = 5
	}
	probability := score / 100

	return Prediction{
		Success:         true,
		PredictionType:  "rule_based",
		Probability:     probability,
		Percentage:      int(score + 0.5),
		Category:        categorize(probability, &acceptanceRate),
		Confidence:      0.4,
		ConfidenceLevel: "low",
		Factors:         factors,
		ModelInfo: ModelInfo{
			Note: "ML model not available. Using rule-based estimation.",
			Reason: fmt.Sprintf("Insufficient training data. Needs at least %d samples with %d accepted and %d rejected outcomes.",
				s.cfg.MinSamples, s.cfg.MinPerClass, s.cfg.MinPerClass),
		},
		FallbackReason: reason,
	}
}
