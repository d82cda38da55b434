// Package source provides the narrow read interface over the external
// admission-outcome store. The store is an embedded SQLite database owned by
// another system; this package only queries it.
package source

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"admitpredict/internal/features"
)

// Store is a read-only handle on the admission outcome database.
type Store struct {
	db *sql.DB
}

// Open opens the SQLite database at path. An empty path is rejected: the
// sqlite driver would otherwise open a private temporary database and every
// query would silently come back empty.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is empty, set ADMIT_DB_PATH")
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach database %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// TrainingRecords fetches decided outcome rows, newest first. A collegeID
// of 0 fetches rows for all colleges.
func (s *Store) TrainingRecords(ctx context.Context, collegeID int) ([]features.Record, error) {
	query := `
		SELECT
			t.college_id,
			t.gpa,
			COALESCE(t.gpa_scale, '4.0'),
			t.sat_total,
			t.act_composite,
			t.class_rank_percentile,
			COALESCE(t.num_ap_courses, 0),
			COALESCE(t.num_ib_courses, 0),
			t.activity_tier_1_count,
			t.activity_tier_2_count,
			COALESCE(t.activity_tier_3_count, 0),
			COALESCE(t.is_first_gen, 0),
			COALESCE(t.is_legacy, 0),
			COALESCE(t.is_athlete, 0),
			COALESCE(t.is_in_state, 0),
			t.college_acceptance_rate,
			t.decision,
			COALESCE(t.source, 'user_submitted'),
			COALESCE(t.is_verified, 0),
			t.created_at
		FROM ml_training_data t
		WHERE t.decision IN ('accepted', 'rejected')`

	var args []any
	if collegeID != 0 {
		query += " AND t.college_id = ?"
		args = append(args, collegeID)
	}
	query += " ORDER BY t.created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying training records: %w", err)
	}
	defer rows.Close()

	var records []features.Record
	for rows.Next() {
		var (
			r              features.Record
			gpa, rankPct   sql.NullFloat64
			sat, act       sql.NullInt64
			tier1, tier2   sql.NullInt64
			acceptanceRate sql.NullFloat64
			createdAt      sql.NullString
		)

		err := rows.Scan(
			&r.CollegeID, &gpa, &r.GPAScale, &sat, &act, &rankPct,
			&r.NumAPCourses, &r.NumIBCourses, &tier1, &tier2, &r.ActivityTier3Count,
			&r.IsFirstGen, &r.IsLegacy, &r.IsAthlete, &r.IsInState,
			&acceptanceRate, &r.Decision, &r.Source, &r.IsVerified, &createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning training record: %w", err)
		}

		if gpa.Valid {
			r.GPA = &gpa.Float64
		}
		if sat.Valid {
			v := int(sat.Int64)
			r.SATTotal = &v
		}
		if act.Valid {
			v := int(act.Int64)
			r.ACTComposite = &v
		}
		if rankPct.Valid {
			r.ClassRankPercentile = &rankPct.Float64
		}
		if tier1.Valid {
			v := int(tier1.Int64)
			r.ActivityTier1Count = &v
		}
		if tier2.Valid {
			v := int(tier2.Int64)
			r.ActivityTier2Count = &v
		}
		if acceptanceRate.Valid {
			r.AcceptanceRate = &acceptanceRate.Float64
		}
		if createdAt.Valid {
			if ts, err := time.Parse(time.RFC3339, createdAt.String); err == nil {
				r.CreatedAt = ts
			} else if ts, err := time.Parse("2006-01-02 15:04:05", createdAt.String); err == nil {
				r.CreatedAt = ts
			}
		}

		records = append(records, r)
	}
	return records, rows.Err()
}

// CollegeAggregate summarizes decided outcomes for one college.
type CollegeAggregate struct {
	CollegeID     int
	TotalSamples  int
	AcceptedCount int
	RejectedCount int
	LatestData    string
}

// CollegeAggregates groups decided outcomes by college, keeping only
// colleges with at least minSamples rows.
func (s *Store) CollegeAggregates(ctx context.Context, minSamples int) ([]CollegeAggregate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			college_id,
			COUNT(*) AS total_samples,
			SUM(CASE WHEN decision = 'accepted' THEN 1 ELSE 0 END) AS accepted_count,
			SUM(CASE WHEN decision = 'rejected' THEN 1 ELSE 0 END) AS rejected_count,
			COALESCE(MAX(created_at), '') AS latest_data
		FROM ml_training_data
		WHERE decision IN ('accepted', 'rejected')
		GROUP BY college_id
		HAVING total_samples >= ?`, minSamples)
	if err != nil {
		return nil, fmt.Errorf("querying college aggregates: %w", err)
	}
	defer rows.Close()

	var aggs []CollegeAggregate
	for rows.Next() {
		var a CollegeAggregate
		if err := rows.Scan(&a.CollegeID, &a.TotalSamples, &a.AcceptedCount, &a.RejectedCount, &a.LatestData); err != nil {
			return nil, fmt.Errorf("scanning college aggregate: %w", err)
		}
		aggs = append(aggs, a)
	}
	return aggs, rows.Err()
}

// GrowthStats reports how the training data is accumulating.
type GrowthStats struct {
	TotalRecords    int            `json:"total_records"`
	Last7Days       int            `json:"last_7_days"`
	Last30Days      int            `json:"last_30_days"`
	UniqueColleges  int            `json:"unique_colleges"`
	Decisions       map[string]int `json:"decisions"`
	VerifiedCount   int            `json:"verified_count"`
	UnverifiedCount int            `json:"unverified_count"`
	DailyAverage    float64        `json:"daily_average"`
}

// DataGrowthStats aggregates record counts over rolling windows plus
// decision and verification breakdowns.
func (s *Store) DataGrowthStats(ctx context.Context) (GrowthStats, error) {
	gs := GrowthStats{Decisions: make(map[string]int)}

	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ml_training_data`)
	if err := row.Scan(&gs.TotalRecords); err != nil {
		return gs, fmt.Errorf("counting records: %w", err)
	}

	row = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM ml_training_data
		WHERE created_at >= datetime('now', '-7 days')`)
	if err := row.Scan(&gs.Last7Days); err != nil {
		return gs, fmt.Errorf("counting 7-day records: %w", err)
	}

	row = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM ml_training_data
		WHERE created_at >= datetime('now', '-30 days')`)
	if err := row.Scan(&gs.Last30Days); err != nil {
		return gs, fmt.Errorf("counting 30-day records: %w", err)
	}

	row = s.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT college_id) FROM ml_training_data`)
	if err := row.Scan(&gs.UniqueColleges); err != nil {
		return gs, fmt.Errorf("counting colleges: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT decision, COUNT(*) FROM ml_training_data GROUP BY decision`)
	if err != nil {
		return gs, fmt.Errorf("querying decision breakdown: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var decision string
		var count int
		if err := rows.Scan(&decision, &count); err != nil {
			return gs, fmt.Errorf("scanning decision breakdown: %w", err)
		}
		gs.Decisions[decision] = count
	}
	if err := rows.Err(); err != nil {
		return gs, err
	}

	row = s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN is_verified = 1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN is_verified = 0 OR is_verified IS NULL THEN 1 ELSE 0 END), 0)
		FROM ml_training_data`)
	if err := row.Scan(&gs.VerifiedCount, &gs.UnverifiedCount); err != nil {
		return gs, fmt.Errorf("counting verification breakdown: %w", err)
	}

	if gs.Last7Days > 0 {
		gs.DailyAverage = float64(gs.Last7Days) / 7
	}
	return gs, nil
}

// DataNeed describes a college whose sample count is still below the
// training threshold.
type DataNeed struct {
	CollegeID      int    `json:"college_id"`
	CollegeName    string `json:"college_name"`
	CurrentSamples int    `json:"current_samples"`
	Accepted       int    `json:"accepted"`
	Rejected       int    `json:"rejected"`
	SamplesNeeded  int    `json:"samples_needed"`
}

// CollegesNeedingData lists colleges that cannot be trained yet, ordered by
// how close they are to the threshold.
func (s *Store) CollegesNeedingData(ctx context.Context, minSamples int) ([]DataNeed, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			t.college_id,
			COALESCE(c.name, '') AS college_name,
			COUNT(*) AS current_samples,
			SUM(CASE WHEN t.decision = 'accepted' THEN 1 ELSE 0 END) AS accepted,
			SUM(CASE WHEN t.decision = 'rejected' THEN 1 ELSE 0 END) AS rejected
		FROM ml_training_data t
		LEFT JOIN colleges c ON t.college_id = c.id
		WHERE t.decision IN ('accepted', 'rejected')
		GROUP BY t.college_id
		HAVING current_samples < ?
		ORDER BY current_samples DESC`, minSamples)
	if err != nil {
		return nil, fmt.Errorf("querying colleges needing data: %w", err)
	}
	defer rows.Close()

	var needs []DataNeed
	for rows.Next() {
		var n DataNeed
		if err := rows.Scan(&n.CollegeID, &n.CollegeName, &n.CurrentSamples, &n.Accepted, &n.Rejected); err != nil {
			return nil, fmt.Errorf("scanning data need: %w", err)
		}
		n.SamplesNeeded = minSamples - n.CurrentSamples
		needs = append(needs, n)
	}
	return needs, rows.Err()
}
