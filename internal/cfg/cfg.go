package cfg

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Settings struct {
	DatabasePath    string
	ModelDir        string
	DataPath        string
	MinSamples      int
	MinPerClass     int
	MinAccuracy     float64
	ValidationSplit float64
	CVFolds         int
	MinConfidence   float64
	FreshnessDays   int
	StaleAfterDays  int
	GrowthFactor    float64
	CacheTTL        time.Duration
	MaxPerCycle     int
	RetrainInterval time.Duration
	MetricsPort     int
}

type ConfigFile struct {
	Data struct {
		DatabasePath  string  `yaml:"databasePath"`
		MinConfidence float64 `yaml:"minConfidence"`
	} `yaml:"data"`

	Training struct {
		MinSamples      int     `yaml:"minSamples"`
		MinPerClass     int     `yaml:"minPerClass"`
		MinAccuracy     float64 `yaml:"minAccuracy"`
		ValidationSplit float64 `yaml:"validationSplit"`
		CVFolds         int     `yaml:"cvFolds"`
		FreshnessDays   int     `yaml:"freshnessDays"`
	} `yaml:"training"`

	Prediction struct {
		CacheTTL string `yaml:"cacheTTL"`
	} `yaml:"prediction"`

	Scheduler struct {
		StaleAfterDays  int     `yaml:"staleAfterDays"`
		GrowthFactor    float64 `yaml:"growthFactor"`
		MaxPerCycle     int     `yaml:"maxPerCycle"`
		RetrainInterval string  `yaml:"retrainInterval"`
	} `yaml:"scheduler"`

	System struct {
		ModelDir    string `yaml:"modelDir"`
		DataPath    string `yaml:"dataPath"`
		MetricsPort int    `yaml:"metricsPort"`
	} `yaml:"system"`
}

func Load() (Settings, error) {
	// Try to load from YAML file first
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromYAML(configPath)
	}

	// Fallback to environment variables
	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	cacheTTL, err := time.ParseDuration(config.Prediction.CacheTTL)
	if err != nil {
		cacheTTL = time.Hour
	}

	retrainInterval, err := time.ParseDuration(config.Scheduler.RetrainInterval)
	if err != nil {
		retrainInterval = 24 * time.Hour
	}

	settings := Settings{
		DatabasePath:    getEnvOrDefault("ADMIT_DB_PATH", config.Data.DatabasePath),
		ModelDir:        getEnvOrDefault("ML_MODEL_DIR", orDefault(config.System.ModelDir, "models")),
		DataPath:        getEnvOrDefault("ML_DATA_DIR", orDefault(config.System.DataPath, "data")),
		MinSamples:      getIntFromEnvOrConfig("MIN_SAMPLES_FOR_TRAINING", config.Training.MinSamples, 30),
		MinPerClass:     getIntFromEnvOrConfig("MIN_SAMPLES_PER_CLASS", config.Training.MinPerClass, 10),
		MinAccuracy:     getFloatFromEnvOrConfig("MIN_ACCURACY_THRESHOLD", config.Training.MinAccuracy, 0.55),
		ValidationSplit: getFloatFromEnvOrConfig("VALIDATION_SPLIT", config.Training.ValidationSplit, 0.2),
		CVFolds:         getIntFromEnvOrConfig("CV_FOLDS", config.Training.CVFolds, 5),
		MinConfidence:   getFloatFromEnvOrConfig("MIN_CONFIDENCE_SCORE", config.Data.MinConfidence, 0.5),
		FreshnessDays:   getIntFromEnvOrConfig("MODEL_FRESHNESS_DAYS", config.Training.FreshnessDays, 7),
		StaleAfterDays:  getIntFromEnvOrConfig("MODEL_STALE_DAYS", config.Scheduler.StaleAfterDays, 30),
		GrowthFactor:    getFloatFromEnvOrConfig("RETRAIN_GROWTH_FACTOR", config.Scheduler.GrowthFactor, 1.2),
		CacheTTL:        cacheTTL,
		MaxPerCycle:     getIntFromEnvOrConfig("MAX_RETRAIN_PER_CYCLE", config.Scheduler.MaxPerCycle, 10),
		RetrainInterval: retrainInterval,
		MetricsPort:     getIntFromEnvOrConfig("METRICS_PORT", config.System.MetricsPort, 8080),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func loadFromEnv() (Settings, error) {
	settings := Settings{
		DatabasePath:    os.Getenv("ADMIT_DB_PATH"), // required by the daemon, which rejects an empty path
		ModelDir:        getEnvOrDefault("ML_MODEL_DIR", "models"),
		DataPath:        getEnvOrDefault("ML_DATA_DIR", "data"),
		MinSamples:      getIntOrDefault("MIN_SAMPLES_FOR_TRAINING", 30),
		MinPerClass:     getIntOrDefault("MIN_SAMPLES_PER_CLASS", 10),
		MinAccuracy:     getFloatOrDefault("MIN_ACCURACY_THRESHOLD", 0.55),
		ValidationSplit: getFloatOrDefault("VALIDATION_SPLIT", 0.2),
		CVFolds:         getIntOrDefault("CV_FOLDS", 5),
		MinConfidence:   getFloatOrDefault("MIN_CONFIDENCE_SCORE", 0.5),
		FreshnessDays:   getIntOrDefault("MODEL_FRESHNESS_DAYS", 7),
		StaleAfterDays:  getIntOrDefault("MODEL_STALE_DAYS", 30),
		GrowthFactor:    getFloatOrDefault("RETRAIN_GROWTH_FACTOR", 1.2),
		CacheTTL:        getDurationOrDefault("MODEL_CACHE_TTL", time.Hour),
		MaxPerCycle:     getIntOrDefault("MAX_RETRAIN_PER_CYCLE", 10),
		RetrainInterval: getDurationOrDefault("RETRAIN_INTERVAL", 24*time.Hour),
		MetricsPort:     getIntOrDefault("METRICS_PORT", 8080),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getIntFromEnvOrConfig(key string, configValue, defaultValue int) int {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.Atoi(env); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

func getFloatFromEnvOrConfig(key string, configValue, defaultValue float64) float64 {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.ParseFloat(env, 64); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

// validateSettings performs comprehensive validation of configuration values
func validateSettings(settings *Settings) error {
	if settings.ModelDir == "" {
		return fmt.Errorf("model directory cannot be empty")
	}

	if settings.MinSamples < 4 || settings.MinSamples > 100000 {
		return fmt.Errorf("minimum training samples must be between 4 and 100000, got %d", settings.MinSamples)
	}
	if settings.MinPerClass < 2 || settings.MinPerClass > settings.MinSamples {
		return fmt.Errorf("minimum samples per class must be between 2 and %d, got %d", settings.MinSamples, settings.MinPerClass)
	}
	if settings.MinAccuracy < 0.5 || settings.MinAccuracy > 1.0 {
		return fmt.Errorf("minimum accuracy threshold must be between 0.5 and 1.0, got %f", settings.MinAccuracy)
	}
	if settings.ValidationSplit <= 0 || settings.ValidationSplit >= 0.5 {
		return fmt.Errorf("validation split must be between 0 and 0.5, got %f", settings.ValidationSplit)
	}
	if settings.CVFolds < 2 || settings.CVFolds > 20 {
		return fmt.Errorf("cross-validation folds must be between 2 and 20, got %d", settings.CVFolds)
	}
	if settings.MinConfidence < 0 || settings.MinConfidence > 1 {
		return fmt.Errorf("minimum confidence score must be between 0 and 1, got %f", settings.MinConfidence)
	}
	if settings.FreshnessDays < 1 || settings.FreshnessDays > settings.StaleAfterDays {
		return fmt.Errorf("model freshness window must be between 1 and %d days, got %d", settings.StaleAfterDays, settings.FreshnessDays)
	}
	if settings.StaleAfterDays < 1 || settings.StaleAfterDays > 365 {
		return fmt.Errorf("model staleness threshold must be between 1 and 365 days, got %d", settings.StaleAfterDays)
	}
	if settings.GrowthFactor <= 1.0 || settings.GrowthFactor > 10.0 {
		return fmt.Errorf("retrain growth factor must be between 1.0 and 10.0, got %f", settings.GrowthFactor)
	}
	if settings.CacheTTL < time.Second || settings.CacheTTL > 24*time.Hour {
		return fmt.Errorf("model cache TTL must be between 1s and 24h, got %v", settings.CacheTTL)
	}
	if settings.MaxPerCycle <= 0 || settings.MaxPerCycle > 1000 {
		return fmt.Errorf("max retrains per cycle must be between 1 and 1000, got %d", settings.MaxPerCycle)
	}
	if settings.MetricsPort < 1024 || settings.MetricsPort > 65535 {
		return fmt.Errorf("metrics port must be between 1024 and 65535, got %d", settings.MetricsPort)
	}

	return nil
}
