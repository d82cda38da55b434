package source

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
)

const testSchema = `
CREATE TABLE ml_training_data (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	student_id INTEGER,
	college_id INTEGER NOT NULL,
	gpa REAL,
	gpa_scale TEXT,
	sat_total INTEGER,
	act_composite INTEGER,
	class_rank_percentile REAL,
	num_ap_courses INTEGER,
	num_ib_courses INTEGER,
	activity_tier_1_count INTEGER,
	activity_tier_2_count INTEGER,
	activity_tier_3_count INTEGER,
	is_first_gen INTEGER,
	is_legacy INTEGER,
	is_athlete INTEGER,
	is_in_state INTEGER,
	state TEXT,
	college_acceptance_rate REAL,
	decision TEXT,
	application_year INTEGER,
	confidence_score REAL,
	is_verified INTEGER,
	source TEXT,
	created_at TEXT
);
CREATE TABLE colleges (
	id INTEGER PRIMARY KEY,
	name TEXT
);
`

func newTestStore(t *testing.T) (*Store, *sql.DB) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "admissions.db")
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("open raw db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := db.Exec(testSchema); err != nil {
		t.Fatalf("create schema: %v", err)
	}

	store, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return store, db
}

func insertOutcome(t *testing.T, db *sql.DB, collegeID int, gpa float64, sat int, decision string, verified bool) {
	t.Helper()
	v := 0
	if verified {
		v = 1
	}
	_, err := db.Exec(`
		INSERT INTO ml_training_data
			(college_id, gpa, sat_total, class_rank_percentile,
			 activity_tier_1_count, activity_tier_2_count, decision,
			 is_verified, source, created_at)
		VALUES (?, ?, ?, 75, 0, 1, ?, ?, 'verified', datetime('now'))`,
		collegeID, gpa, sat, decision, v)
	if err != nil {
		t.Fatalf("insert outcome: %v", err)
	}
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	// An empty path would hand the sqlite driver a private temporary
	// database that answers every query with nothing.
	if _, err := Open(""); err == nil {
		t.Fatal("expected error for empty database path")
	}
}

func TestTrainingRecords(t *testing.T) {
	store, db := newTestStore(t)
	ctx := context.Background()

	insertOutcome(t, db, 1, 3.8, 1400, "accepted", true)
	insertOutcome(t, db, 1, 2.5, 1000, "rejected", true)
	insertOutcome(t, db, 2, 3.2, 1250, "accepted", false)
	// Undecided rows never reach the pipeline
	if _, err := db.Exec(`INSERT INTO ml_training_data (college_id, decision) VALUES (1, 'waitlisted')`); err != nil {
		t.Fatal(err)
	}

	all, err := store.TrainingRecords(ctx, 0)
	if err != nil {
		t.Fatalf("TrainingRecords: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 decided records, got %d", len(all))
	}

	one, err := store.TrainingRecords(ctx, 1)
	if err != nil {
		t.Fatalf("TrainingRecords(1): %v", err)
	}
	if len(one) != 2 {
		t.Fatalf("expected 2 records for college 1, got %d", len(one))
	}

	for _, r := range one {
		if r.CollegeID != 1 {
			t.Errorf("unexpected college id %d", r.CollegeID)
		}
		if r.GPA == nil || r.SATTotal == nil {
			t.Error("expected populated GPA and SAT")
		}
		if r.ACTComposite != nil {
			t.Error("absent ACT must scan to nil")
		}
	}
}

func TestCollegeAggregates(t *testing.T) {
	store, db := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		insertOutcome(t, db, 1, 3.5, 1300, "accepted", true)
		insertOutcome(t, db, 1, 2.5, 1000, "rejected", true)
	}
	insertOutcome(t, db, 2, 3.0, 1200, "accepted", false)

	aggs, err := store.CollegeAggregates(ctx, 10)
	if err != nil {
		t.Fatalf("CollegeAggregates: %v", err)
	}
	if len(aggs) != 1 {
		t.Fatalf("expected only college 1 past the threshold, got %d aggregates", len(aggs))
	}

	a := aggs[0]
	if a.CollegeID != 1 || a.TotalSamples != 10 || a.AcceptedCount != 5 || a.RejectedCount != 5 {
		t.Errorf("unexpected aggregate: %+v", a)
	}
}

func TestDataGrowthStats(t *testing.T) {
	store, db := newTestStore(t)
	ctx := context.Background()

	insertOutcome(t, db, 1, 3.5, 1300, "accepted", true)
	insertOutcome(t, db, 1, 2.5, 1000, "rejected", false)
	insertOutcome(t, db, 2, 3.0, 1200, "accepted", false)

	gs, err := store.DataGrowthStats(ctx)
	if err != nil {
		t.Fatalf("DataGrowthStats: %v", err)
	}

	if gs.TotalRecords != 3 {
		t.Errorf("expected 3 total records, got %d", gs.TotalRecords)
	}
	if gs.Last7Days != 3 {
		t.Errorf("expected 3 records in the last 7 days, got %d", gs.Last7Days)
	}
	if gs.UniqueColleges != 2 {
		t.Errorf("expected 2 unique colleges, got %d", gs.UniqueColleges)
	}
	if gs.Decisions["accepted"] != 2 || gs.Decisions["rejected"] != 1 {
		t.Errorf("unexpected decision breakdown: %v", gs.Decisions)
	}
	if gs.VerifiedCount != 1 || gs.UnverifiedCount != 2 {
		t.Errorf("unexpected verification breakdown: %d/%d", gs.VerifiedCount, gs.UnverifiedCount)
	}
	if gs.DailyAverage <= 0 {
		t.Error("daily average should be positive with recent records")
	}
}

func TestCollegesNeedingData(t *testing.T) {
	store, db := newTestStore(t)
	ctx := context.Background()

	if _, err := db.Exec(`INSERT INTO colleges (id, name) VALUES (1, 'State University')`); err != nil {
		t.Fatal(err)
	}
	insertOutcome(t, db, 1, 3.5, 1300, "accepted", true)
	insertOutcome(t, db, 1, 2.5, 1000, "rejected", true)

	needs, err := store.CollegesNeedingData(ctx, 30)
	if err != nil {
		t.Fatalf("CollegesNeedingData: %v", err)
	}
	if len(needs) != 1 {
		t.Fatalf("expected 1 under-provisioned college, got %d", len(needs))
	}

	n := needs[0]
	if n.CollegeID != 1 || n.CollegeName != "State University" {
		t.Errorf("unexpected college identity: %+v", n)
	}
	if n.CurrentSamples != 2 || n.SamplesNeeded != 28 {
		t.Errorf("unexpected sample math: %+v", n)
	}
}
