package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"admitpredict/internal/cfg"
	"admitpredict/internal/metrics"
	"admitpredict/internal/predictor"
	"admitpredict/internal/scheduler"
	"admitpredict/internal/source"
	"admitpredict/internal/storage"
	"admitpredict/internal/trainer"
)

func main() {
	_ = godotenv.Load()

	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()

	store, err := source.Open(c.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Str("path", c.DatabasePath).Msg("opening outcome database failed")
	}
	defer store.Close()

	hist, err := storage.New(c.DataPath)
	if err != nil {
		log.Warn().Err(err).Msg("cycle history store unavailable, continuing without persistence")
		hist = nil
	} else {
		defer hist.Close()
	}

	tr, err := trainer.NewWithTracker(trainer.Config{
		ModelDir:        c.ModelDir,
		MinSamples:      c.MinSamples,
		MinPerClass:     c.MinPerClass,
		MinAccuracy:     c.MinAccuracy,
		ValidationSplit: c.ValidationSplit,
		CVFolds:         c.CVFolds,
		MinConfidence:   c.MinConfidence,
		FreshnessDays:   c.FreshnessDays,
	}, m)
	if err != nil {
		log.Fatal().Err(err).Msg("trainer init failed")
	}

	svc := predictor.NewWithTracker(tr, predictor.Config{
		CacheTTL:    c.CacheTTL,
		MinSamples:  c.MinSamples,
		MinPerClass: c.MinPerClass,
	}, m)

	sched := scheduler.New(scheduler.Config{
		MinSamples:     c.MinSamples,
		MinPerClass:    c.MinPerClass,
		StaleAfterDays: c.StaleAfterDays,
		GrowthFactor:   c.GrowthFactor,
		MaxPerCycle:    c.MaxPerCycle,
	}, store, tr, svc, hist, m)

	startMetricsServer(ctx, cancel, c.MetricsPort)
	go retrainLoop(ctx, sched, c.RetrainInterval)

	log.Info().
		Str("db", c.DatabasePath).
		Str("models", c.ModelDir).
		Dur("interval", c.RetrainInterval).
		Msg("admitd started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
		cancel()
	case <-ctx.Done():
	}
	log.Info().Msg("shutdown complete")
}

func startMetricsServer(ctx context.Context, cancel context.CancelFunc, port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Int("port", port).Msg("metrics server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server failed")
			cancel()
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("metrics server shutdown failed")
		}
	}()
}

// retrainLoop runs one cycle at startup and then on every tick.
func retrainLoop(ctx context.Context, sched *scheduler.Scheduler, interval time.Duration) {
	runCycle(ctx, sched)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runCycle(ctx, sched)
		}
	}
}

func runCycle(ctx context.Context, sched *scheduler.Scheduler) {
	if _, err := sched.RunCycle(ctx); err != nil {
		log.Error().Err(err).Msg("retraining cycle failed")
	}
}
