// Package features converts raw applicant outcome records into the fixed,
// ordered numeric feature vector used by the admission classifiers, and
// applies dataset-level quality control (suspicion filtering, confidence
// thresholding, median imputation).
package features

import (
	"fmt"
	"sort"
	"strings"
)

// Columns is the default ordered feature set. A persisted model's metadata
// records the columns it was trained with; that recorded order, not this
// list, is authoritative at inference time.
var Columns = []string{
	"gpa_normalized",
	"test_score_percentile",
	"class_rank_percentile",
	"ap_ib_count",
	"activity_tier1_count",
	"activity_tier2_count",
	"activity_tier3_count",
	"is_first_gen",
	"is_legacy",
	"is_athlete",
	"is_in_state",
	"college_acceptance_rate",
}

// numericColumns are the columns eligible for median imputation.
var numericColumns = []string{
	"gpa_normalized",
	"test_score_percentile",
	"class_rank_percentile",
	"ap_ib_count",
	"activity_tier1_count",
	"activity_tier2_count",
	"activity_tier3_count",
	"college_acceptance_rate",
}

// DisplayNames maps feature columns to human-readable factor names used in
// prediction explanations.
var DisplayNames = map[string]string{
	"gpa_normalized":          "GPA",
	"test_score_percentile":   "Test Scores (SAT/ACT)",
	"class_rank_percentile":   "Class Rank",
	"ap_ib_count":             "Course Rigor (AP/IB)",
	"activity_tier1_count":    "National/International Achievements",
	"activity_tier2_count":    "State/Regional Achievements",
	"activity_tier3_count":    "School-Level Activities",
	"is_first_gen":            "First Generation Status",
	"is_legacy":               "Legacy Status",
	"is_athlete":              "Recruited Athlete",
	"is_in_state":             "In-State Advantage",
	"college_acceptance_rate": "College Selectivity",
}

// DisplayName returns the human-readable name for a feature column,
// title-casing unknown columns.
func DisplayName(col string) string {
	if name, ok := DisplayNames[col]; ok {
		return name
	}
	words := strings.Split(col, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

var gpaScales = map[string]float64{
	"4.0":        4.0,
	"5.0":        5.0,
	"10":         10.0,
	"100":        100.0,
	"percentage": 100.0,
}

// Approximate SAT score to percentile mapping.
var satPercentiles = map[int]float64{
	1600: 99, 1550: 99, 1500: 98, 1450: 96, 1400: 94,
	1350: 91, 1300: 87, 1250: 82, 1200: 74, 1150: 66,
	1100: 57, 1050: 47, 1000: 38, 950: 29, 900: 22,
}

// Approximate ACT score to percentile mapping.
var actPercentiles = map[int]float64{
	36: 99, 35: 99, 34: 99, 33: 98, 32: 97, 31: 96,
	30: 94, 29: 92, 28: 89, 27: 86, 26: 82, 25: 78,
	24: 73, 23: 68, 22: 62, 21: 56, 20: 50, 19: 44,
}

// floorPercentile is assigned to scores below the smallest tabulated value.
const floorPercentile = 10.0

// Activity tier keywords, ranked. Tier 1 is national/international.
var tierKeywords = [4][]string{
	{"national", "international", "olympic", "presidential", "intel",
		"regeneron", "siemens", "imf", "model un", "published", "patent"},
	{"state", "regional", "varsity captain", "president", "founder",
		"startup", "research", "first place", "winner", "awardee"},
	{"school", "club president", "team leader", "editor", "varsity",
		"volunteer", "community", "internship"},
	{"member", "participant", "attendee", "helper", "assistant"},
}

// NormalizeGPA rescales a GPA to the 0-4 range. When the declared scale is
// the default and the raw value exceeds 4.5, the scale is inferred from the
// value's magnitude (5.0, 10, or 100 point). The second return value is
// false when no GPA was provided.
func NormalizeGPA(gpa *float64, scale string) (float64, bool) {
	if gpa == nil {
		return 0, false
	}

	max, ok := gpaScales[scale]
	if !ok {
		max = gpaScales["4.0"]
	}

	// Detect scale if not specified
	if (scale == "" || scale == "4.0") && *gpa > 4.5 {
		switch {
		case *gpa <= 5.0:
			max = gpaScales["5.0"]
		case *gpa <= 10.0:
			max = gpaScales["10"]
		default:
			max = gpaScales["100"]
		}
	}

	normalized := *gpa / max * 4.0
	return clamp(normalized, 0.0, 4.0), true
}

// SATPercentile converts an SAT total to an approximate percentile. Unseen
// scores get the percentile of the largest tabulated value at or below the
// input; scores below the table minimum get the floor percentile.
func SATPercentile(score *int) (float64, bool) {
	if score == nil {
		return 0, false
	}
	return percentileFromTable(*score, satPercentileKeys, satPercentiles), true
}

// ACTPercentile converts an ACT composite to an approximate percentile.
func ACTPercentile(score *int) (float64, bool) {
	if score == nil {
		return 0, false
	}
	return percentileFromTable(*score, actPercentileKeys, actPercentiles), true
}

// Descending key order is fixed at startup; the tables never change.
var (
	satPercentileKeys = sortedKeysDesc(satPercentiles)
	actPercentileKeys = sortedKeysDesc(actPercentiles)
)

func sortedKeysDesc(table map[int]float64) []int {
	keys := make([]int, 0, len(table))
	for k := range table {
		keys = append(keys, k)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(keys)))
	return keys
}

func percentileFromTable(score int, keys []int, table map[int]float64) float64 {
	for _, k := range keys {
		if score >= k {
			return table[k]
		}
	}
	return floorPercentile
}

// BestTestPercentile returns the higher of the available SAT/ACT
// percentiles, or a neutral 50 if neither test is present.
func BestTestPercentile(sat, act *int) float64 {
	satPct, satOK := SATPercentile(sat)
	actPct, actOK := ACTPercentile(act)

	switch {
	case satOK && actOK:
		if satPct >= actPct {
			return satPct
		}
		return actPct
	case satOK:
		return satPct
	case actOK:
		return actPct
	default:
		return 50.0
	}
}

// ClassifyActivityTier assigns an activity to tiers 1-4 by keyword matching
// the concatenated name and description (case-insensitive). The first tier
// whose keywords match wins; no match defaults to tier 4.
func ClassifyActivityTier(name, description string) int {
	text := strings.ToLower(name + " " + description)

	for tier, keywords := range tierKeywords {
		for _, kw := range keywords {
			if strings.Contains(text, kw) {
				return tier + 1
			}
		}
	}
	return 4
}

// ConfidenceScore computes a data-quality score in [0,1] for a raw record:
// essential fields weigh 0.3 each, secondary fields 0.1 each, and the
// provenance metadata earns a graded bonus. The result is earned weight
// over maximum possible weight.
func ConfidenceScore(r Record) float64 {
	var score, maxScore float64

	// Essential fields
	maxScore += 0.3
	if r.GPA != nil {
		score += 0.3
	}
	maxScore += 0.3
	if r.Decision != "" {
		score += 0.3
	}

	// Secondary fields
	secondary := []bool{
		r.SATTotal != nil,
		r.ACTComposite != nil,
		r.ClassRankPercentile != nil,
		r.ActivityTier1Count != nil,
		r.ActivityTier2Count != nil,
	}
	for _, present := range secondary {
		maxScore += 0.1
		if present {
			score += 0.1
		}
	}

	// Provenance
	maxScore += 0.2
	source := strings.ToLower(r.Source)
	switch {
	case strings.Contains(source, "verified") || r.IsVerified:
		score += 0.2
	case strings.Contains(source, "user_submitted"):
		score += 0.15
	case strings.Contains(source, "official"):
		score += 0.18
	case source != "":
		score += 0.1
	}

	if maxScore == 0 {
		return 0
	}
	return score / maxScore
}

// FlagSuspicious reports whether a record looks invalid or fabricated,
// with a human-readable reason for every violation found.
func FlagSuspicious(r Record) (bool, []string) {
	var reasons []string

	if r.GPA != nil {
		gpa := *r.GPA
		if gpa > 5.0 && gpa < 10 {
			reasons = append(reasons, "GPA in unusual range (5-10)")
		}
		if gpa > 100 {
			reasons = append(reasons, "GPA exceeds 100")
		}
		if gpa < 0 {
			reasons = append(reasons, "Negative GPA")
		}
	}

	if r.SATTotal != nil {
		if *r.SATTotal < 400 || *r.SATTotal > 1600 {
			reasons = append(reasons, fmt.Sprintf("SAT score out of range: %d", *r.SATTotal))
		}
	}

	if r.ACTComposite != nil {
		if *r.ACTComposite < 1 || *r.ACTComposite > 36 {
			reasons = append(reasons, fmt.Sprintf("ACT score out of range: %d", *r.ACTComposite))
		}
	}

	if r.ClassRankPercentile != nil {
		if *r.ClassRankPercentile < 0 || *r.ClassRankPercentile > 100 {
			reasons = append(reasons, fmt.Sprintf("Class rank percentile invalid: %g", *r.ClassRankPercentile))
		}
	}

	// Cross-field consistency
	if r.SATTotal != nil && *r.SATTotal >= 1500 && r.GPA != nil && *r.GPA < 2.0 {
		reasons = append(reasons, "High SAT with very low GPA - inconsistent")
	}

	return len(reasons) > 0, reasons
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
