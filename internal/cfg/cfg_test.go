package cfg

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"CONFIG_FILE", "ADMIT_DB_PATH", "ML_MODEL_DIR", "ML_DATA_DIR",
		"MIN_SAMPLES_FOR_TRAINING", "MIN_SAMPLES_PER_CLASS", "MIN_ACCURACY_THRESHOLD",
		"VALIDATION_SPLIT", "CV_FOLDS", "MIN_CONFIDENCE_SCORE", "MODEL_FRESHNESS_DAYS",
		"MODEL_STALE_DAYS", "RETRAIN_GROWTH_FACTOR", "MODEL_CACHE_TTL",
		"MAX_RETRAIN_PER_CYCLE", "RETRAIN_INTERVAL", "METRICS_PORT",
	}
	for _, k := range keys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	s, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if s.MinSamples != 30 {
		t.Errorf("expected MinSamples 30, got %d", s.MinSamples)
	}
	if s.MinPerClass != 10 {
		t.Errorf("expected MinPerClass 10, got %d", s.MinPerClass)
	}
	if s.MinAccuracy != 0.55 {
		t.Errorf("expected MinAccuracy 0.55, got %f", s.MinAccuracy)
	}
	if s.FreshnessDays != 7 {
		t.Errorf("expected FreshnessDays 7, got %d", s.FreshnessDays)
	}
	if s.StaleAfterDays != 30 {
		t.Errorf("expected StaleAfterDays 30, got %d", s.StaleAfterDays)
	}
	if s.CacheTTL != time.Hour {
		t.Errorf("expected CacheTTL 1h, got %v", s.CacheTTL)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("MIN_SAMPLES_FOR_TRAINING", "50")
	t.Setenv("MIN_ACCURACY_THRESHOLD", "0.7")
	t.Setenv("MODEL_CACHE_TTL", "30m")

	s, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if s.MinSamples != 50 {
		t.Errorf("expected MinSamples 50, got %d", s.MinSamples)
	}
	if s.MinAccuracy != 0.7 {
		t.Errorf("expected MinAccuracy 0.7, got %f", s.MinAccuracy)
	}
	if s.CacheTTL != 30*time.Minute {
		t.Errorf("expected CacheTTL 30m, got %v", s.CacheTTL)
	}
}

func TestLoadFromYAML(t *testing.T) {
	clearEnv(t)

	content := `
data:
  databasePath: /tmp/admissions.db
  minConfidence: 0.6
training:
  minSamples: 40
  minPerClass: 12
  minAccuracy: 0.6
  validationSplit: 0.25
  cvFolds: 4
  freshnessDays: 5
prediction:
  cacheTTL: 15m
scheduler:
  staleAfterDays: 45
  growthFactor: 1.5
  maxPerCycle: 20
  retrainInterval: 12h
system:
  modelDir: /tmp/models
  metricsPort: 9090
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", path)

	s, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if s.DatabasePath != "/tmp/admissions.db" {
		t.Errorf("unexpected database path: %s", s.DatabasePath)
	}
	if s.MinSamples != 40 || s.MinPerClass != 12 {
		t.Errorf("unexpected training thresholds: %d/%d", s.MinSamples, s.MinPerClass)
	}
	if s.CacheTTL != 15*time.Minute {
		t.Errorf("expected CacheTTL 15m, got %v", s.CacheTTL)
	}
	if s.RetrainInterval != 12*time.Hour {
		t.Errorf("expected RetrainInterval 12h, got %v", s.RetrainInterval)
	}
	if s.MetricsPort != 9090 {
		t.Errorf("expected MetricsPort 9090, got %d", s.MetricsPort)
	}
}

func TestValidationRejectsBadValues(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"accuracy below 0.5", func(s *Settings) { s.MinAccuracy = 0.3 }},
		{"validation split too large", func(s *Settings) { s.ValidationSplit = 0.9 }},
		{"per-class above total", func(s *Settings) { s.MinPerClass = 500 }},
		{"freshness beyond staleness", func(s *Settings) { s.FreshnessDays = 60 }},
		{"growth factor not above 1", func(s *Settings) { s.GrowthFactor = 1.0 }},
		{"privileged metrics port", func(s *Settings) { s.MetricsPort = 80 }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			s, err := Load()
			if err != nil {
				t.Fatalf("Load() failed: %v", err)
			}
			tc.mutate(&s)
			if err := validateSettings(&s); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}
