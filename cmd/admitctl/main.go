// admitctl is the operator CLI: train and inspect per-college models, run
// predictions, and drive retraining cycles against the same artifacts the
// daemon serves.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"admitpredict/internal/cfg"
	"admitpredict/internal/features"
	"admitpredict/internal/predictor"
	"admitpredict/internal/scheduler"
	"admitpredict/internal/source"
	"admitpredict/internal/storage"
	"admitpredict/internal/trainer"
)

type app struct {
	settings cfg.Settings
}

func (a *app) newTrainer() (*trainer.Trainer, error) {
	return trainer.New(trainer.Config{
		ModelDir:        a.settings.ModelDir,
		MinSamples:      a.settings.MinSamples,
		MinPerClass:     a.settings.MinPerClass,
		MinAccuracy:     a.settings.MinAccuracy,
		ValidationSplit: a.settings.ValidationSplit,
		CVFolds:         a.settings.CVFolds,
		MinConfidence:   a.settings.MinConfidence,
		FreshnessDays:   a.settings.FreshnessDays,
	})
}

func (a *app) newPredictor(tr *trainer.Trainer) *predictor.Service {
	return predictor.New(tr, predictor.Config{
		CacheTTL:    a.settings.CacheTTL,
		MinSamples:  a.settings.MinSamples,
		MinPerClass: a.settings.MinPerClass,
	})
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func parseCollegeID(arg string) (int, error) {
	id, err := strconv.Atoi(arg)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid college id %q", arg)
	}
	return id, nil
}

func main() {
	a := &app{}

	root := &cobra.Command{
		Use:           "admitctl",
		Short:         "Manage admission prediction models",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			_ = godotenv.Load()
			settings, err := cfg.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			a.settings = settings
			return nil
		},
	}

	root.AddCommand(
		a.trainCmd(),
		a.predictCmd(),
		a.modelsCmd(),
		a.deleteCmd(),
		a.retrainCmd(),
		a.statsCmd(),
		a.historyCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func (a *app) trainCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "train <college-id>",
		Short: "Train or retrain one college's model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			collegeID, err := parseCollegeID(args[0])
			if err != nil {
				return err
			}

			store, err := source.Open(a.settings.DatabasePath)
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.TrainingRecords(cmd.Context(), collegeID)
			if err != nil {
				return err
			}

			tr, err := a.newTrainer()
			if err != nil {
				return err
			}
			res, err := tr.Train(collegeID, records, force)
			if err != nil {
				return err
			}
			return printJSON(res)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "retrain even if the model is fresh")
	return cmd
}

func (a *app) predictCmd() *cobra.Command {
	var (
		collegeID      int
		collegeName    string
		acceptanceRate float64
		averageGPA     float64
		collegeState   string

		gpa       float64
		gpaScale  string
		sat       int
		act       int
		classRank float64
		apCourses int
		ibCourses int
		tier1     int
		tier2     int
		tier3     int
		firstGen  bool
		legacy    bool
		athlete   bool
		state     string
	)

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Predict admission chance for an applicant profile",
		RunE: func(_ *cobra.Command, _ []string) error {
			if collegeID <= 0 {
				return fmt.Errorf("--college-id is required")
			}

			applicant := features.Applicant{
				GPAScale:           gpaScale,
				NumAPCourses:       apCourses,
				NumIBCourses:       ibCourses,
				ActivityTier1Count: tier1,
				ActivityTier2Count: tier2,
				ActivityTier3Count: tier3,
				IsFirstGeneration:  firstGen,
				IsLegacy:           legacy,
				IsAthlete:          athlete,
				StateProvince:      state,
			}
			if gpa > 0 {
				applicant.GPAUnweighted = &gpa
			}
			if sat > 0 {
				applicant.SATTotal = &sat
			}
			if act > 0 {
				applicant.ACTComposite = &act
			}
			if classRank > 0 {
				applicant.ClassRankPercentile = &classRank
			}

			college := features.College{
				ID:            collegeID,
				Name:          collegeName,
				LocationState: collegeState,
			}
			if acceptanceRate > 0 {
				college.AcceptanceRate = &acceptanceRate
			}
			if averageGPA > 0 {
				college.AverageGPA = &averageGPA
			}

			tr, err := a.newTrainer()
			if err != nil {
				return err
			}
			return printJSON(a.newPredictor(tr).Predict(applicant, college))
		},
	}

	cmd.Flags().IntVar(&collegeID, "college-id", 0, "target college id")
	cmd.Flags().StringVar(&collegeName, "college-name", "", "target college name")
	cmd.Flags().Float64Var(&acceptanceRate, "acceptance-rate", 0, "college acceptance rate in percent")
	cmd.Flags().Float64Var(&averageGPA, "average-gpa", 0, "college average admitted GPA")
	cmd.Flags().StringVar(&collegeState, "college-state", "", "college state or province")
	cmd.Flags().Float64Var(&gpa, "gpa", 0, "unweighted GPA")
	cmd.Flags().StringVar(&gpaScale, "gpa-scale", "4.0", "GPA scale (4.0, 5.0, 10, 100)")
	cmd.Flags().IntVar(&sat, "sat", 0, "SAT total score")
	cmd.Flags().IntVar(&act, "act", 0, "ACT composite score")
	cmd.Flags().Float64Var(&classRank, "class-rank", 0, "class rank percentile")
	cmd.Flags().IntVar(&apCourses, "ap-courses", 0, "number of AP courses")
	cmd.Flags().IntVar(&ibCourses, "ib-courses", 0, "number of IB courses")
	cmd.Flags().IntVar(&tier1, "tier1", 0, "national/international activities")
	cmd.Flags().IntVar(&tier2, "tier2", 0, "state/regional activities")
	cmd.Flags().IntVar(&tier3, "tier3", 0, "school-level activities")
	cmd.Flags().BoolVar(&firstGen, "first-gen", false, "first-generation applicant")
	cmd.Flags().BoolVar(&legacy, "legacy", false, "legacy applicant")
	cmd.Flags().BoolVar(&athlete, "athlete", false, "recruited athlete")
	cmd.Flags().StringVar(&state, "state", "", "applicant state or province")
	return cmd
}

func (a *app) modelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List deployed models",
		RunE: func(_ *cobra.Command, _ []string) error {
			tr, err := a.newTrainer()
			if err != nil {
				return err
			}
			models, err := tr.ListModels()
			if err != nil {
				return err
			}
			return printJSON(models)
		},
	}
}

func (a *app) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <college-id>",
		Short: "Delete one college's model artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			collegeID, err := parseCollegeID(args[0])
			if err != nil {
				return err
			}
			tr, err := a.newTrainer()
			if err != nil {
				return err
			}
			existed, err := tr.Delete(collegeID)
			if err != nil {
				return err
			}
			return printJSON(map[string]any{
				"college_id": collegeID,
				"deleted":    existed,
			})
		},
	}
}

func (a *app) retrainCmd() *cobra.Command {
	var maxColleges int

	cmd := &cobra.Command{
		Use:   "retrain",
		Short: "Run one retraining cycle",
		RunE: func(cmd *cobra.Command, _ []string) error {
			sched, cleanup, err := a.newScheduler(maxColleges)
			if err != nil {
				return err
			}
			defer cleanup()

			summary, err := sched.RunCycle(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(summary)
		},
	}
	cmd.Flags().IntVar(&maxColleges, "max", 0, "max colleges per cycle (0 uses the configured default)")
	return cmd
}

func (a *app) statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show model and training data statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tr, err := a.newTrainer()
			if err != nil {
				return err
			}
			modelStats, err := tr.TrainingStats()
			if err != nil {
				return err
			}

			store, err := source.Open(a.settings.DatabasePath)
			if err != nil {
				return err
			}
			defer store.Close()

			growth, err := store.DataGrowthStats(cmd.Context())
			if err != nil {
				return err
			}
			needs, err := store.CollegesNeedingData(cmd.Context(), a.settings.MinSamples)
			if err != nil {
				return err
			}

			return printJSON(map[string]any{
				"models":                modelStats,
				"data_growth":           growth,
				"colleges_needing_data": needs,
			})
		},
	}
}

func (a *app) historyCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show persisted retraining cycle history",
		RunE: func(_ *cobra.Command, _ []string) error {
			hist, err := storage.New(a.settings.DataPath)
			if err != nil {
				return err
			}
			defer hist.Close()

			cycles, err := hist.RecentCycles(limit)
			if err != nil {
				return err
			}
			return printJSON(cycles)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "number of cycles to show")
	return cmd
}

func (a *app) newScheduler(maxColleges int) (*scheduler.Scheduler, func(), error) {
	store, err := source.Open(a.settings.DatabasePath)
	if err != nil {
		return nil, nil, err
	}

	tr, err := a.newTrainer()
	if err != nil {
		store.Close()
		return nil, nil, err
	}

	hist, err := storage.New(a.settings.DataPath)
	if err != nil {
		store.Close()
		return nil, nil, err
	}

	if maxColleges <= 0 {
		maxColleges = a.settings.MaxPerCycle
	}
	sched := scheduler.New(scheduler.Config{
		MinSamples:     a.settings.MinSamples,
		MinPerClass:    a.settings.MinPerClass,
		StaleAfterDays: a.settings.StaleAfterDays,
		GrowthFactor:   a.settings.GrowthFactor,
		MaxPerCycle:    maxColleges,
	}, store, tr, a.newPredictor(tr), hist, nil)

	cleanup := func() {
		store.Close()
		hist.Close()
	}
	return sched, cleanup, nil
}
