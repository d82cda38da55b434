// Package scheduler drives periodic model retraining: it finds colleges
// whose models are missing, stale, or starved relative to the data that has
// accumulated, retrains them in bounded cycles, and records cycle history.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"admitpredict/internal/predictor"
	"admitpredict/internal/source"
	"admitpredict/internal/storage"
	"admitpredict/internal/trainer"
)

// Tracker is the subset of metrics the scheduler reports.
type Tracker interface {
	RetrainCycleInc()
	CollegeRetrainedInc()
	ModelAgeSet(float64)
}

// Config holds retraining thresholds.
type Config struct {
	MinSamples     int
	MinPerClass    int
	StaleAfterDays int
	GrowthFactor   float64
	MaxPerCycle    int
}

// Candidate is a college selected for retraining and why.
type Candidate struct {
	CollegeID     int               `json:"college_id"`
	TotalSamples  int               `json:"total_samples"`
	AcceptedCount int               `json:"accepted_count"`
	RejectedCount int               `json:"rejected_count"`
	Reason        string            `json:"reason"`
	CurrentModel  *trainer.Metadata `json:"current_model"`
}

// CycleSummary reports one retraining cycle.
type CycleSummary struct {
	StartedAt         time.Time        `json:"started_at"`
	CompletedAt       time.Time        `json:"completed_at"`
	CollegesChecked   int              `json:"colleges_checked"`
	CollegesRetrained int              `json:"colleges_retrained"`
	CollegesFailed    int              `json:"colleges_failed"`
	Details           []trainer.Result `json:"details"`
}

// Scheduler coordinates the data source, trainer, and prediction cache.
type Scheduler struct {
	cfg       Config
	store     *source.Store
	trainer   *trainer.Trainer
	predictor *predictor.Service
	history   *storage.Store
	tracker   Tracker
	now       func() time.Time

	mu  sync.Mutex
	log []CycleSummary
}

// New creates a scheduler. history and tracker may be nil.
func New(cfg Config, store *source.Store, tr *trainer.Trainer, svc *predictor.Service, history *storage.Store, tracker Tracker) *Scheduler {
	return &Scheduler{
		cfg:       cfg,
		store:     store,
		trainer:   tr,
		predictor: svc,
		history:   history,
		tracker:   tracker,
		now:       time.Now,
	}
}

// CollegesNeedingRetraining selects colleges with enough balanced data whose
// model is missing, older than the staleness cutoff, or trained on
// meaningfully fewer samples than are now available.
func (s *Scheduler) CollegesNeedingRetraining(ctx context.Context) ([]Candidate, error) {
	aggs, err := s.store.CollegeAggregates(ctx, s.cfg.MinSamples)
	if err != nil {
		return nil, fmt.Errorf("listing college aggregates: %w", err)
	}

	var candidates []Candidate
	for _, agg := range aggs {
		if agg.AcceptedCount < s.cfg.MinPerClass || agg.RejectedCount < s.cfg.MinPerClass {
			continue
		}

		meta, err := s.trainer.LoadMetadata(agg.CollegeID)
		if err != nil {
			log.Warn().Err(err).Int("college_id", agg.CollegeID).Msg("skipping college, metadata unreadable")
			continue
		}

		var reason string
		switch {
		case meta == nil:
			reason = "No existing model"
		default:
			daysOld := int(s.now().Sub(meta.TrainedAt).Hours() / 24)
			switch {
			case daysOld >= s.cfg.StaleAfterDays:
				reason = fmt.Sprintf("Model is %d days old", daysOld)
			case float64(agg.TotalSamples) > float64(meta.SampleCount)*s.cfg.GrowthFactor:
				reason = fmt.Sprintf("Significant new data (%d vs %d)", agg.TotalSamples, meta.SampleCount)
			default:
				continue
			}
		}

		candidates = append(candidates, Candidate{
			CollegeID:     agg.CollegeID,
			TotalSamples:  agg.TotalSamples,
			AcceptedCount: agg.AcceptedCount,
			RejectedCount: agg.RejectedCount,
			Reason:        reason,
			CurrentModel:  meta,
		})
	}
	return candidates, nil
}

// RunCycle retrains up to MaxPerCycle colleges that need it. One college's
// failure never aborts the cycle. Successful retrains invalidate the
// prediction cache for that college.
func (s *Scheduler) RunCycle(ctx context.Context) (CycleSummary, error) {
	if s.tracker != nil {
		s.tracker.RetrainCycleInc()
	}
	summary := CycleSummary{StartedAt: s.now()}

	candidates, err := s.CollegesNeedingRetraining(ctx)
	if err != nil {
		return summary, err
	}
	if s.cfg.MaxPerCycle > 0 && len(candidates) > s.cfg.MaxPerCycle {
		candidates = candidates[:s.cfg.MaxPerCycle]
	}
	summary.CollegesChecked = len(candidates)

	for _, cand := range candidates {
		if ctx.Err() != nil {
			break
		}

		records, err := s.store.TrainingRecords(ctx, cand.CollegeID)
		if err != nil {
			summary.CollegesFailed++
			summary.Details = append(summary.Details, trainer.Result{
				CollegeID: cand.CollegeID,
				Message:   fmt.Sprintf("fetching training data: %v", err),
			})
			continue
		}
		if len(records) == 0 {
			summary.CollegesFailed++
			summary.Details = append(summary.Details, trainer.Result{
				CollegeID: cand.CollegeID,
				Message:   "no training data available",
			})
			continue
		}

		res, err := s.trainer.Train(cand.CollegeID, records, true)
		if err != nil {
			summary.CollegesFailed++
			summary.Details = append(summary.Details, trainer.Result{
				CollegeID: cand.CollegeID,
				Message:   err.Error(),
			})
			log.Error().Err(err).Int("college_id", cand.CollegeID).Msg("retraining failed")
			continue
		}

		if res.Success {
			summary.CollegesRetrained++
			if s.predictor != nil {
				s.predictor.Invalidate(cand.CollegeID)
			}
			if s.tracker != nil {
				s.tracker.CollegeRetrainedInc()
			}
		} else {
			summary.CollegesFailed++
		}
		summary.Details = append(summary.Details, res)
	}

	summary.CompletedAt = s.now()

	s.mu.Lock()
	s.log = append(s.log, summary)
	s.mu.Unlock()

	if s.history != nil {
		if err := s.history.StoreCycle(summary.StartedAt, summary); err != nil {
			log.Warn().Err(err).Msg("persisting cycle summary failed")
		}
	}
	s.updateModelAge()

	log.Info().
		Int("checked", summary.CollegesChecked).
		Int("retrained", summary.CollegesRetrained).
		Int("failed", summary.CollegesFailed).
		Msg("retraining cycle finished")
	return summary, nil
}

// updateModelAge publishes the age in days of the oldest deployed model.
func (s *Scheduler) updateModelAge() {
	if s.tracker == nil {
		return
	}
	models, err := s.trainer.ListModels()
	if err != nil || len(models) == 0 {
		return
	}
	oldest := models[0].TrainedAt
	for _, m := range models[1:] {
		if m.TrainedAt.Before(oldest) {
			oldest = m.TrainedAt
		}
	}
	s.tracker.ModelAgeSet(s.now().Sub(oldest).Hours() / 24)
}

// History returns the most recent in-process cycle summaries, oldest first.
func (s *Scheduler) History(limit int) []CycleSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := 0
	if limit > 0 && len(s.log) > limit {
		start = len(s.log) - limit
	}
	out := make([]CycleSummary, len(s.log)-start)
	copy(out, s.log[start:])
	return out
}

// DataGrowthStats reports training data accumulation.
func (s *Scheduler) DataGrowthStats(ctx context.Context) (source.GrowthStats, error) {
	return s.store.DataGrowthStats(ctx)
}

// CollegesNeedingData lists colleges still short of the training threshold.
func (s *Scheduler) CollegesNeedingData(ctx context.Context) ([]source.DataNeed, error) {
	return s.store.CollegesNeedingData(ctx, s.cfg.MinSamples)
}
