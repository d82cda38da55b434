package features

import (
	"math"
	"time"

	"github.com/montanaflynn/stats"
)

// Record is a raw, loosely-structured applicant outcome row from the
// external data source. Optional fields are pointers; absence defaults
// during feature extraction.
type Record struct {
	CollegeID           int
	GPA                 *float64
	GPAScale            string
	SATTotal            *int
	ACTComposite        *int
	ClassRankPercentile *float64
	NumAPCourses        int
	NumIBCourses        int
	ActivityTier1Count  *int
	ActivityTier2Count  *int
	ActivityTier3Count  int
	IsFirstGen          bool
	IsLegacy            bool
	IsAthlete           bool
	IsInState           bool
	AcceptanceRate      *float64
	Decision            string
	Source              string
	IsVerified          bool
	CreatedAt           time.Time
}

// Applicant is a single academic profile submitted for prediction.
type Applicant struct {
	GPAUnweighted       *float64
	GPAWeighted         *float64
	GPAScale            string
	SATTotal            *int
	ACTComposite        *int
	ClassRankPercentile *float64
	NumAPCourses        int
	NumIBCourses        int
	ActivityTier1Count  int
	ActivityTier2Count  int
	ActivityTier3Count  int
	IsFirstGeneration   bool
	IsLegacy            bool
	IsAthlete           bool
	StateProvince       string
}

// College identifies the prediction target.
type College struct {
	ID             int
	Name           string
	AcceptanceRate *float64
	AverageGPA     *float64
	LocationState  string
}

// Row is one training example: the feature map plus the binary label and
// provenance metadata. College id and confidence are metadata, not features.
type Row struct {
	Features   map[string]float64
	Admitted   bool
	CollegeID  int
	Confidence float64
}

// Dataset is a training-ready table derived from raw records after
// suspicion filtering, confidence thresholding, and median imputation.
type Dataset struct {
	Rows []Row
}

// BuildTrainingDataset filters raw records (dropping suspicious entries and
// those below the confidence floor), extracts features and labels, then
// imputes missing numeric columns with the column median over surviving rows.
func BuildTrainingDataset(records []Record, minConfidence float64) *Dataset {
	ds := &Dataset{}

	for _, r := range records {
		if suspicious, _ := FlagSuspicious(r); suspicious {
			continue
		}

		confidence := ConfidenceScore(r)
		if confidence < minConfidence {
			continue
		}

		gpaNorm := math.NaN()
		if v, ok := NormalizeGPA(r.GPA, r.GPAScale); ok {
			gpaNorm = v
		}

		feats := map[string]float64{
			"gpa_normalized":          gpaNorm,
			"test_score_percentile":   BestTestPercentile(r.SATTotal, r.ACTComposite),
			"class_rank_percentile":   floatOrDefault(r.ClassRankPercentile, 50.0),
			"ap_ib_count":             float64(r.NumAPCourses + r.NumIBCourses),
			"activity_tier1_count":    float64(intOrZero(r.ActivityTier1Count)),
			"activity_tier2_count":    float64(intOrZero(r.ActivityTier2Count)),
			"activity_tier3_count":    float64(r.ActivityTier3Count),
			"is_first_gen":            boolToFloat(r.IsFirstGen),
			"is_legacy":               boolToFloat(r.IsLegacy),
			"is_athlete":              boolToFloat(r.IsAthlete),
			"is_in_state":             boolToFloat(r.IsInState),
			"college_acceptance_rate": floatOrDefault(r.AcceptanceRate, 50.0),
		}

		ds.Rows = append(ds.Rows, Row{
			Features:   feats,
			Admitted:   r.Decision == "accepted",
			CollegeID:  r.CollegeID,
			Confidence: confidence,
		})
	}

	ds.imputeMedians()
	return ds
}

// imputeMedians fills missing numeric feature values with the column
// median over rows where the value is present.
func (d *Dataset) imputeMedians() {
	for _, col := range numericColumns {
		var present []float64
		for _, row := range d.Rows {
			if v := row.Features[col]; !math.IsNaN(v) {
				present = append(present, v)
			}
		}
		if len(present) == 0 {
			continue
		}

		median, err := stats.Median(present)
		if err != nil {
			continue
		}
		for _, row := range d.Rows {
			if math.IsNaN(row.Features[col]) {
				row.Features[col] = median
			}
		}
	}
}

// FilterCollege returns the subset of rows belonging to one college.
func (d *Dataset) FilterCollege(collegeID int) *Dataset {
	out := &Dataset{}
	for _, row := range d.Rows {
		if row.CollegeID == collegeID {
			out.Rows = append(out.Rows, row)
		}
	}
	return out
}

// Len returns the number of rows.
func (d *Dataset) Len() int { return len(d.Rows) }

// AdmittedCount returns the number of positive-label rows.
func (d *Dataset) AdmittedCount() int {
	n := 0
	for _, row := range d.Rows {
		if row.Admitted {
			n++
		}
	}
	return n
}

// Matrix extracts the feature matrix and label vector in the given column
// order.
func (d *Dataset) Matrix(cols []string) ([][]float64, []int) {
	X := make([][]float64, len(d.Rows))
	y := make([]int, len(d.Rows))
	for i, row := range d.Rows {
		x := make([]float64, len(cols))
		for j, col := range cols {
			x[j] = row.Features[col]
		}
		X[i] = x
		if row.Admitted {
			y[i] = 1
		}
	}
	return X, y
}

// BuildInferenceFeatures produces the feature map for a single
// applicant/college pair with the same semantics as training. The in-state
// flag comes from comparing the applicant and college location fields.
func BuildInferenceFeatures(a Applicant, c College) map[string]float64 {
	gpa := a.GPAUnweighted
	if gpa == nil {
		gpa = a.GPAWeighted
	}

	gpaNorm := math.NaN()
	if v, ok := NormalizeGPA(gpa, a.GPAScale); ok {
		gpaNorm = v
	}

	inState := 0.0
	if a.StateProvince != "" && a.StateProvince == c.LocationState {
		inState = 1.0
	}

	return map[string]float64{
		"gpa_normalized":          gpaNorm,
		"test_score_percentile":   BestTestPercentile(a.SATTotal, a.ACTComposite),
		"class_rank_percentile":   floatOrDefault(a.ClassRankPercentile, 50.0),
		"ap_ib_count":             float64(a.NumAPCourses + a.NumIBCourses),
		"activity_tier1_count":    float64(a.ActivityTier1Count),
		"activity_tier2_count":    float64(a.ActivityTier2Count),
		"activity_tier3_count":    float64(a.ActivityTier3Count),
		"is_first_gen":            boolToFloat(a.IsFirstGeneration),
		"is_legacy":               boolToFloat(a.IsLegacy),
		"is_athlete":              boolToFloat(a.IsAthlete),
		"is_in_state":             inState,
		"college_acceptance_rate": floatOrDefault(c.AcceptanceRate, 50.0),
	}
}

func floatOrDefault(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

func intOrZero(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

func boolToFloat(b bool) float64 {
	if b {
		return 1.0
	}
	return 0.0
}
