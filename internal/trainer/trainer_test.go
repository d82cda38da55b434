package trainer

import (
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"admitpredict/internal/features"
)

func testConfig(dir string) Config {
	return Config{
		ModelDir:        dir,
		MinSamples:      30,
		MinPerClass:     10,
		MinAccuracy:     0.55,
		ValidationSplit: 0.2,
		CVFolds:         5,
		MinConfidence:   0.5,
		FreshnessDays:   7,
	}
}

func newTestTrainer(t *testing.T, cfg Config) *Trainer {
	t.Helper()
	tr, err := New(cfg)
	require.NoError(t, err)
	return tr
}

// separableRecords builds well-separated accepted/rejected outcome records
// for one college: strong profiles admitted, weak profiles rejected.
func separableRecords(collegeID, accepted, rejected int) []features.Record {
	rng := rand.New(rand.NewSource(7))
	records := make([]features.Record, 0, accepted+rejected)

	add := func(n int, decision string, baseGPA float64, baseSAT int) {
		for i := 0; i < n; i++ {
			gpa := baseGPA + rng.Float64()*0.2
			sat := baseSAT + rng.Intn(80)
			rate := 40.0
			records = append(records, features.Record{
				CollegeID:      collegeID,
				GPA:            &gpa,
				GPAScale:       "4.0",
				SATTotal:       &sat,
				AcceptanceRate: &rate,
				Decision:       decision,
				Source:         "verified",
				IsVerified:     true,
				CreatedAt:      time.Now(),
			})
		}
	}

	add(accepted, "accepted", 3.7, 1450)
	add(rejected, "rejected", 2.3, 1020)
	return records
}

func TestTrainFirstModel(t *testing.T) {
	dir := t.TempDir()
	tr := newTestTrainer(t, testConfig(dir))

	res, err := tr.Train(101, separableRecords(101, 20, 20), false)
	require.NoError(t, err)
	require.True(t, res.Success, "message: %s", res.Message)

	assert.Equal(t, "1.0", res.Version)
	assert.Equal(t, 101, res.CollegeID)
	assert.Equal(t, 40, res.SampleCount)
	assert.Equal(t, 20, res.AcceptedCount)
	assert.Equal(t, 20, res.RejectedCount)
	assert.InDelta(t, 0.5, res.ClassBalance, 1e-9)
	assert.True(t, res.IsDeployed)
	assert.Equal(t, features.Columns, res.FeatureColumns)
	assert.GreaterOrEqual(t, res.Metrics.Accuracy, 0.55)
	assert.Len(t, res.FeatureImportance, len(features.Columns))

	for _, name := range []string{"lda_college_101.gob", "scaler_college_101.gob", "metadata_college_101.json"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}

	clf, scaler, meta, err := tr.Load(101)
	require.NoError(t, err)
	require.NotNil(t, clf)
	require.NotNil(t, scaler)
	require.NotNil(t, meta)
	assert.Equal(t, "1.0", meta.Version)
}

func TestTrainVersionBump(t *testing.T) {
	tr := newTestTrainer(t, testConfig(t.TempDir()))
	records := separableRecords(7, 20, 20)

	res, err := tr.Train(7, records, false)
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, "1.0", res.Version)

	res, err = tr.Train(7, records, true)
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, "1.1", res.Version)
}

func TestFreshModelNotRetrainedWithoutForce(t *testing.T) {
	tr := newTestTrainer(t, testConfig(t.TempDir()))
	records := separableRecords(7, 20, 20)

	res, err := tr.Train(7, records, false)
	require.NoError(t, err)
	require.True(t, res.Success)

	res, err = tr.Train(7, records, false)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "force")

	meta, err := tr.LoadMetadata(7)
	require.NoError(t, err)
	assert.Equal(t, "1.0", meta.Version)
}

func TestFreshnessWindowExpires(t *testing.T) {
	tr := newTestTrainer(t, testConfig(t.TempDir()))
	records := separableRecords(7, 20, 20)

	res, err := tr.Train(7, records, false)
	require.NoError(t, err)
	require.True(t, res.Success)

	// Jump the clock past the freshness window
	tr.now = func() time.Time { return time.Now().Add(8 * 24 * time.Hour) }

	res, err = tr.Train(7, records, false)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "1.1", res.Version)
}

func TestReadinessGates(t *testing.T) {
	tests := []struct {
		name     string
		accepted int
		rejected int
		wantMsg  string
	}{
		{"too few total", 5, 5, "insufficient samples"},
		{"too few accepted", 8, 32, "insufficient accepted samples"},
		{"too few rejected", 32, 8, "insufficient rejected samples"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := newTestTrainer(t, testConfig(t.TempDir()))
			res, err := tr.Train(3, separableRecords(3, tt.accepted, tt.rejected), false)
			require.NoError(t, err)
			assert.False(t, res.Success)
			assert.Contains(t, res.Message, tt.wantMsg)
			assert.Equal(t, tt.accepted+tt.rejected, res.SampleCount)

			meta, err := tr.LoadMetadata(3)
			require.NoError(t, err)
			assert.Nil(t, meta, "no artifact should be written")
		})
	}
}

func TestQualityGateKeepsPriorArtifact(t *testing.T) {
	dir := t.TempDir()
	records := separableRecords(9, 20, 20)

	tr := newTestTrainer(t, testConfig(dir))
	res, err := tr.Train(9, records, false)
	require.NoError(t, err)
	require.True(t, res.Success)

	// An unreachable threshold makes the gate fail deterministically
	strict := testConfig(dir)
	strict.MinAccuracy = 1.01
	tr2 := newTestTrainer(t, strict)

	res, err = tr2.Train(9, records, true)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "accuracy")
	require.NotNil(t, res.Metrics)

	meta, err := tr.LoadMetadata(9)
	require.NoError(t, err)
	require.NotNil(t, meta, "prior artifact must survive a failed retrain")
	assert.Equal(t, "1.0", meta.Version)
}

func TestDeleteIdempotent(t *testing.T) {
	tr := newTestTrainer(t, testConfig(t.TempDir()))

	res, err := tr.Train(42, separableRecords(42, 20, 20), false)
	require.NoError(t, err)
	require.True(t, res.Success)

	existed, err := tr.Delete(42)
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = tr.Delete(42)
	require.NoError(t, err)
	assert.False(t, existed)

	clf, scaler, meta, err := tr.Load(42)
	require.NoError(t, err)
	assert.Nil(t, clf)
	assert.Nil(t, scaler)
	assert.Nil(t, meta)
}

func TestVersionRestartsAfterDelete(t *testing.T) {
	tr := newTestTrainer(t, testConfig(t.TempDir()))
	records := separableRecords(5, 20, 20)

	res, err := tr.Train(5, records, false)
	require.NoError(t, err)
	require.True(t, res.Success)

	res, err = tr.Train(5, records, true)
	require.NoError(t, err)
	assert.Equal(t, "1.1", res.Version)

	_, err = tr.Delete(5)
	require.NoError(t, err)

	res, err = tr.Train(5, records, false)
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, "1.0", res.Version)
}

func TestListModelsAndStats(t *testing.T) {
	tr := newTestTrainer(t, testConfig(t.TempDir()))

	for _, id := range []int{20, 10} {
		res, err := tr.Train(id, separableRecords(id, 20, 20), false)
		require.NoError(t, err)
		require.True(t, res.Success)
	}

	models, err := tr.ListModels()
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.Equal(t, 10, models[0].CollegeID)
	assert.Equal(t, 20, models[1].CollegeID)

	stats, err := tr.TrainingStats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalModels)
	assert.Equal(t, 80, stats.TotalSamples)
	assert.Greater(t, stats.AverageAccuracy, 0.0)
	assert.NotNil(t, stats.OldestModel)
	assert.NotNil(t, stats.NewestModel)

	total := 0
	for _, n := range stats.ModelsByQuality {
		total += n
	}
	assert.Equal(t, 2, total)
}

func TestTrainingStatsEmpty(t *testing.T) {
	tr := newTestTrainer(t, testConfig(t.TempDir()))
	stats, err := tr.TrainingStats()
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalModels)
	assert.Nil(t, stats.OldestModel)
}

// Readers must never observe a new classifier paired with an old scaler or
// metadata while a retrain is refreshing the cache. Each dataset below
// produces a distinct, deterministic (sample count, scaler GPA mean) pair,
// so a mixed triple is detectable.
func TestLoadDuringRetrainReturnsMatchedTriple(t *testing.T) {
	tr := newTestTrainer(t, testConfig(t.TempDir()))

	makeRecords := func(n int, gpaHi, gpaLo float64) []features.Record {
		rng := rand.New(rand.NewSource(3))
		var records []features.Record
		add := func(count int, decision string, base float64, baseSAT int) {
			for i := 0; i < count; i++ {
				gpa := base + rng.Float64()*0.2
				sat := baseSAT + rng.Intn(80)
				rate := 40.0
				records = append(records, features.Record{
					CollegeID:      1,
					GPA:            &gpa,
					GPAScale:       "4.0",
					SATTotal:       &sat,
					AcceptanceRate: &rate,
					Decision:       decision,
					Source:         "verified",
					IsVerified:     true,
					CreatedAt:      time.Now(),
				})
			}
		}
		add(n, "accepted", gpaHi, 1450)
		add(n, "rejected", gpaLo, 1020)
		return records
	}

	recordsA := makeRecords(20, 3.7, 2.3)
	recordsB := makeRecords(26, 3.4, 2.0)

	// Fitting is deterministic, so each dataset maps to exactly one
	// scaler. Record the expected pairing up front.
	meanForSamples := map[int]float64{}
	for _, records := range [][]features.Record{recordsA, recordsB} {
		res, err := tr.Train(1, records, true)
		require.NoError(t, err)
		require.True(t, res.Success, "message: %s", res.Message)

		_, scaler, meta, err := tr.Load(1)
		require.NoError(t, err)
		meanForSamples[meta.SampleCount] = scaler.Mean[0]
	}
	require.Len(t, meanForSamples, 2)

	done := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}

				clf, scaler, meta, err := tr.Load(1)
				if err != nil {
					t.Errorf("load: %v", err)
					return
				}
				if clf == nil || scaler == nil || meta == nil {
					t.Errorf("partial triple: clf=%v scaler=%v meta=%v",
						clf != nil, scaler != nil, meta != nil)
					return
				}
				want, ok := meanForSamples[meta.SampleCount]
				if !ok {
					t.Errorf("unexpected sample count %d", meta.SampleCount)
					return
				}
				if math.Abs(scaler.Mean[0]-want) > 1e-12 {
					t.Errorf("scaler does not match metadata: samples=%d mean=%v want=%v",
						meta.SampleCount, scaler.Mean[0], want)
					return
				}
			}
		}()
	}

	for i := 0; i < 6; i++ {
		records := recordsA
		if i%2 == 1 {
			records = recordsB
		}
		res, err := tr.Train(1, records, true)
		require.NoError(t, err)
		require.True(t, res.Success)
	}
	close(done)
	wg.Wait()
}

func TestStratifiedSplit(t *testing.T) {
	y := make([]int, 50)
	for i := 30; i < 50; i++ {
		y[i] = 1
	}

	trainIdx, valIdx := stratifiedSplit(y, 0.2, splitSeed)
	assert.Equal(t, 50, len(trainIdx)+len(valIdx))

	seen := map[int]bool{}
	for _, i := range append(append([]int{}, trainIdx...), valIdx...) {
		assert.False(t, seen[i], "index %d appears twice", i)
		seen[i] = true
	}

	valByClass := map[int]int{}
	for _, i := range valIdx {
		valByClass[y[i]]++
	}
	assert.Equal(t, 6, valByClass[0])
	assert.Equal(t, 4, valByClass[1])
}
