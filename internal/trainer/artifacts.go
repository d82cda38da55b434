package trainer

import (
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/montanaflynn/stats"

	"admitpredict/internal/lda"
)

// Each deployed model is three co-located files keyed by college id. The
// temp-then-rename dance keeps readers from ever seeing a half-written
// artifact.

func (t *Trainer) modelPath(collegeID int) string {
	return filepath.Join(t.cfg.ModelDir, fmt.Sprintf("lda_college_%d.gob", collegeID))
}

func (t *Trainer) scalerPath(collegeID int) string {
	return filepath.Join(t.cfg.ModelDir, fmt.Sprintf("scaler_college_%d.gob", collegeID))
}

func (t *Trainer) metadataPath(collegeID int) string {
	return filepath.Join(t.cfg.ModelDir, fmt.Sprintf("metadata_college_%d.json", collegeID))
}

func ensureDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("model directory not configured")
	}
	return os.MkdirAll(dir, 0o755)
}

func (t *Trainer) saveArtifact(collegeID int, clf *lda.Classifier, scaler *lda.Scaler, meta *Metadata) error {
	metaBytes, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}

	files := []struct {
		path  string
		write func(path string) error
	}{
		{t.modelPath(collegeID), func(p string) error { return writeGob(p, clf) }},
		{t.scalerPath(collegeID), func(p string) error { return writeGob(p, scaler) }},
		{t.metadataPath(collegeID), func(p string) error { return os.WriteFile(p, metaBytes, 0o644) }},
	}

	// Stage all three before renaming any so a failure mid-way leaves
	// the deployed artifact intact.
	for _, f := range files {
		if err := f.write(f.path + ".tmp"); err != nil {
			return err
		}
	}
	for _, f := range files {
		if err := os.Rename(f.path+".tmp", f.path); err != nil {
			return fmt.Errorf("renaming %s: %w", f.path, err)
		}
	}
	return nil
}

func writeGob(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := gob.NewEncoder(f).Encode(v); err != nil {
		f.Close()
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	return f.Close()
}

func readGob(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return gob.NewDecoder(f).Decode(v)
}

// Load returns the deployed classifier, scaler, and metadata for a college,
// or all nils when no model exists. The three are cached and swapped as one
// unit, so a load during a concurrent retrain sees either the old triple or
// the new one, never a mix.
func (t *Trainer) Load(collegeID int) (*lda.Classifier, *lda.Scaler, *Metadata, error) {
	if art, ok := t.artifacts.Get(collegeID); ok {
		return art.clf, art.scaler, art.meta, nil
	}

	meta, err := t.readMetadata(collegeID)
	if err != nil {
		return nil, nil, nil, err
	}
	if meta == nil {
		return nil, nil, nil, nil
	}

	clf := new(lda.Classifier)
	if err := readGob(t.modelPath(collegeID), clf); err != nil {
		return nil, nil, nil, fmt.Errorf("loading classifier for college %d: %w", collegeID, err)
	}
	scaler := new(lda.Scaler)
	if err := readGob(t.scalerPath(collegeID), scaler); err != nil {
		return nil, nil, nil, fmt.Errorf("loading scaler for college %d: %w", collegeID, err)
	}

	t.artifacts.Set(collegeID, artifact{clf: clf, scaler: scaler, meta: meta})
	return clf, scaler, meta, nil
}

// LoadMetadata returns a college's model metadata, or nil when no model
// exists. A disk read here never populates the cache: the cache only holds
// complete triples.
func (t *Trainer) LoadMetadata(collegeID int) (*Metadata, error) {
	if art, ok := t.artifacts.Get(collegeID); ok {
		return art.meta, nil
	}
	return t.readMetadata(collegeID)
}

func (t *Trainer) readMetadata(collegeID int) (*Metadata, error) {
	data, err := os.ReadFile(t.metadataPath(collegeID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading metadata for college %d: %w", collegeID, err)
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("decoding metadata for college %d: %w", collegeID, err)
	}
	return &meta, nil
}

// Delete removes a college's artifact files and cached entries. It reports
// whether a model existed; deleting an absent model is not an error.
func (t *Trainer) Delete(collegeID int) (bool, error) {
	existed := false
	for _, path := range []string{t.modelPath(collegeID), t.scalerPath(collegeID), t.metadataPath(collegeID)} {
		err := os.Remove(path)
		if err == nil {
			existed = true
			continue
		}
		if !os.IsNotExist(err) {
			return existed, fmt.Errorf("removing %s: %w", path, err)
		}
	}

	t.artifacts.Delete(collegeID)
	return existed, nil
}

// ListModels enumerates metadata for every deployed model, ordered by
// college id.
func (t *Trainer) ListModels() ([]*Metadata, error) {
	entries, err := os.ReadDir(t.cfg.ModelDir)
	if err != nil {
		return nil, fmt.Errorf("reading model directory: %w", err)
	}

	var models []*Metadata
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "metadata_college_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		var collegeID int
		if _, err := fmt.Sscanf(name, "metadata_college_%d.json", &collegeID); err != nil {
			continue
		}
		meta, err := t.LoadMetadata(collegeID)
		if err != nil || meta == nil {
			continue
		}
		models = append(models, meta)
	}

	sort.Slice(models, func(i, j int) bool { return models[i].CollegeID < models[j].CollegeID })
	return models, nil
}

// Stats aggregates the deployed model population.
type Stats struct {
	TotalModels     int            `json:"total_models"`
	TotalSamples    int            `json:"total_samples"`
	AverageAccuracy float64        `json:"average_accuracy"`
	ModelsByQuality map[string]int `json:"models_by_quality"`
	OldestModel     *time.Time     `json:"oldest_model,omitempty"`
	NewestModel     *time.Time     `json:"newest_model,omitempty"`
}

// TrainingStats summarizes all deployed models: counts, mean accuracy, a
// quality histogram (high at 75%, medium at 60%), and the training-time
// range.
func (t *Trainer) TrainingStats() (*Stats, error) {
	models, err := t.ListModels()
	if err != nil {
		return nil, err
	}

	s := &Stats{
		ModelsByQuality: map[string]int{"high": 0, "medium": 0, "low": 0},
	}
	if len(models) == 0 {
		return s, nil
	}

	accuracies := make([]float64, 0, len(models))
	for _, m := range models {
		s.TotalModels++
		s.TotalSamples += m.SampleCount
		accuracies = append(accuracies, m.Metrics.Accuracy)

		switch {
		case m.Metrics.Accuracy >= 0.75:
			s.ModelsByQuality["high"]++
		case m.Metrics.Accuracy >= 0.6:
			s.ModelsByQuality["medium"]++
		default:
			s.ModelsByQuality["low"]++
		}

		trainedAt := m.TrainedAt
		if s.OldestModel == nil || trainedAt.Before(*s.OldestModel) {
			s.OldestModel = &trainedAt
		}
		if s.NewestModel == nil || trainedAt.After(*s.NewestModel) {
			s.NewestModel = &trainedAt
		}
	}

	s.AverageAccuracy, err = stats.Mean(accuracies)
	if err != nil {
		return nil, err
	}
	return s, nil
}
