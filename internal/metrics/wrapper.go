package metrics

// Method-based access to the collectors so that consumer packages can
// declare narrow tracker interfaces without importing prometheus.

func (m *Metrics) PredictionInc()        { m.PredictionsTotal.Inc() }
func (m *Metrics) FallbackInc()          { m.FallbackUsed.Inc() }
func (m *Metrics) InferenceFailureInc()  { m.InferenceFailures.Inc() }
func (m *Metrics) PredictLatencyObserve(v float64) {
	m.PredictLatency.Observe(v)
}
func (m *Metrics) PredictionScoreObserve(v float64) {
	m.PredictionScores.Observe(v)
}

func (m *Metrics) CacheHitInc()  { m.ModelCacheHits.Inc() }
func (m *Metrics) CacheMissInc() { m.ModelCacheMisses.Inc() }

func (m *Metrics) TrainingRunInc()     { m.TrainingRuns.Inc() }
func (m *Metrics) TrainingFailureInc() { m.TrainingFailures.Inc() }
func (m *Metrics) TrainingDurationObserve(v float64) {
	m.TrainingDuration.Observe(v)
}
func (m *Metrics) AccuracyObserve(v float64) { m.ModelAccuracy.Observe(v) }
func (m *Metrics) ModelAgeSet(v float64)     { m.ModelAge.Set(v) }

func (m *Metrics) RetrainCycleInc()     { m.RetrainCycles.Inc() }
func (m *Metrics) CollegeRetrainedInc() { m.CollegesRetrained.Inc() }
