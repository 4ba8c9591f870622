// Command pcosctl is the PCOS tracker operations CLI.
//
// Usage:
//
//	pcosctl migrate
//	pcosctl predict --dates 2025-01-01,2025-01-29,2025-02-26
//	pcosctl predict --user 7f1c... --today 2025-03-20
//	pcosctl eligible --type CYCLE_REMINDER --at 2025-03-20T23:30:00Z --quiet 22:00-07:00
//	pcosctl eligible --type GENERAL --at 2025-03-20T20:00:00Z --quiet 09:00-17:00 --legacy
//	pcosctl reminders run --workers 8
//	pcosctl cleanup
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ovaria/pcos-tracker/internal/config"
	"github.com/ovaria/pcos-tracker/internal/cycles"
	"github.com/ovaria/pcos-tracker/internal/db"
	"github.com/ovaria/pcos-tracker/internal/dedup"
	"github.com/ovaria/pcos-tracker/internal/eligibility"
	"github.com/ovaria/pcos-tracker/internal/logger"
	"github.com/ovaria/pcos-tracker/internal/maintenance"
	"github.com/ovaria/pcos-tracker/internal/notifications"
	"github.com/ovaria/pcos-tracker/internal/prediction"
	"github.com/ovaria/pcos-tracker/internal/reminders"
)

// log is replaced once .env has been read; see newRootCmd.
var log = zap.NewNop()

func main() {
	err := newRootCmd().Execute()
	_ = log.Sync()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		envFile   string
		rulesFile string
	)
	root := &cobra.Command{
		Use:          "pcosctl",
		Short:        "PCOS tracker operations CLI",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load .env if present
			_ = godotenv.Load(envFile)

			if rulesFile == "" {
				rulesFile = os.Getenv("RULES_FILE")
			}
			l, err := logger.New(envOr("LOG_LEVEL", "info"), envOr("ENVIRONMENT", "development"))
			if err != nil {
				return err
			}
			log = l
			return nil
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Dotenv file to load")
	root.PersistentFlags().StringVar(&rulesFile, "rules", "", "YAML rules file (defaults to RULES_FILE)")

	root.AddCommand(migrateCmd())
	root.AddCommand(predictCmd(&rulesFile))
	root.AddCommand(eligibleCmd(&rulesFile))
	root.AddCommand(remindersCmd(&rulesFile))
	root.AddCommand(cleanupCmd())
	return root
}

// --------------------------------------------------------------------------
// migrate command
// --------------------------------------------------------------------------

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			n, err := db.Migrate(ctx, cfg.DatabaseURL, log)
			if err != nil {
				return err
			}
			log.Info("Migrations complete", zap.Int("applied", n))
			return nil
		},
	}
}

// --------------------------------------------------------------------------
// predict command
// --------------------------------------------------------------------------

func predictCmd(rulesFile *string) *cobra.Command {
	var (
		user  string
		dates string
		today string
	)
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Predict the next cycle from a user's entries or a list of dates",
		RunE: func(cmd *cobra.Command, args []string) error {
			rules, err := config.LoadRules(*rulesFile)
			if err != nil {
				return err
			}
			ref := time.Now().UTC()
			if today != "" {
				if ref, err = time.Parse(time.DateOnly, today); err != nil {
					return fmt.Errorf("--today: %w", err)
				}
			}
			predictor := prediction.New(rules.Prediction)

			var starts []time.Time
			switch {
			case dates != "":
				starts = prediction.ParseStartDates(strings.Split(dates, ","))
			case user != "":
				userID, err := uuid.Parse(user)
				if err != nil {
					return fmt.Errorf("--user: %w", err)
				}
				err = withDB(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
					entries, err := cycles.NewPGStore(pool.Pool).List(ctx, userID)
					if err != nil {
						return err
					}
					starts = cycles.StartDates(entries)
					return nil
				})
				if err != nil {
					return err
				}
			default:
				return fmt.Errorf("one of --user or --dates is required")
			}

			result := predictor.Predict(starts, ref)
			if result.Insufficient() {
				return printJSON(cmd, map[string]string{"error": prediction.InsufficientDataMessage})
			}
			return printJSON(cmd, map[string]any{
				"prediction": result.Prediction,
				"insights":   result.Insights,
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "User ID whose logged cycles to use")
	cmd.Flags().StringVar(&dates, "dates", "", "Comma-separated cycle start dates (YYYY-MM-DD)")
	cmd.Flags().StringVar(&today, "today", "", "Reference date (YYYY-MM-DD), defaults to today UTC")
	return cmd
}

// --------------------------------------------------------------------------
// eligible command
// --------------------------------------------------------------------------

func eligibleCmd(rulesFile *string) *cobra.Command {
	var (
		typ      string
		at       string
		quiet    string
		tz       string
		legacy   bool
		disabled []string
	)
	cmd := &cobra.Command{
		Use:   "eligible",
		Short: "Evaluate the eligibility rules offline",
		RunE: func(cmd *cobra.Command, args []string) error {
			rules, err := config.LoadRules(*rulesFile)
			if err != nil {
				return err
			}
			t, err := eligibility.ParseType(typ)
			if err != nil {
				return err
			}
			now := time.Now()
			if at != "" {
				if now, err = time.Parse(time.RFC3339, at); err != nil {
					return fmt.Errorf("--at: %w", err)
				}
			}

			p := eligibility.DefaultPreferences(uuid.Nil)
			p.Timezone = tz
			if quiet != "" {
				start, end, ok := strings.Cut(quiet, "-")
				if !ok {
					return fmt.Errorf("--quiet must be HH:MM-HH:MM")
				}
				p.QuietHoursEnabled = true
				p.QuietHoursStart, p.QuietHoursEnd = start, end
			}
			for _, name := range disabled {
				if err := disableToggle(&p, name); err != nil {
					return err
				}
			}
			if err := p.Validate(); err != nil {
				return err
			}

			policy := rules.QuietHoursPolicy
			if legacy {
				policy = eligibility.PolicyLegacy
			}
			decision := eligibility.Evaluator{Policy: policy}.Decide(p, t, now.In(p.Location()))
			return printJSON(cmd, decision)
		},
	}
	cmd.Flags().StringVar(&typ, "type", string(eligibility.TypeGeneral), "Notification type")
	cmd.Flags().StringVar(&at, "at", "", "Evaluation time (RFC 3339), defaults to now")
	cmd.Flags().StringVar(&quiet, "quiet", "", "Quiet window HH:MM-HH:MM (enables quiet hours)")
	cmd.Flags().StringVar(&tz, "tz", eligibility.DefaultTimezone, "IANA timezone")
	cmd.Flags().BoolVar(&legacy, "legacy", false, "Use the legacy quiet-window policy (overrides --rules)")
	cmd.Flags().StringSliceVar(&disabled, "disable", nil, "Toggles to turn off (e.g. cycle_reminders)")
	return cmd
}

func disableToggle(p *eligibility.Preferences, name string) error {
	switch name {
	case "cycle_reminders":
		p.EnableCycleReminders = false
	case "medication_reminders":
		p.EnableMedicationReminders = false
	case "symptom_reminders":
		p.EnableSymptomReminders = false
	case "appointment_reminders":
		p.EnableAppointmentReminders = false
	case "milestones":
		p.EnableMilestones = false
	case "risk_updates":
		p.EnableRiskUpdates = false
	case "daily_log_reminders":
		p.EnableDailyLogReminders = false
	default:
		return fmt.Errorf("unknown toggle %q", name)
	}
	return nil
}

// --------------------------------------------------------------------------
// reminders command
// --------------------------------------------------------------------------

func remindersCmd(rulesFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reminders",
		Short: "Reminder scheduler operations",
	}

	var (
		workers  int
		anyHour  bool
		redisURL string
	)
	run := &cobra.Command{
		Use:   "run",
		Short: "Run one reminder pass now",
		RunE: func(cmd *cobra.Command, args []string) error {
			rules, err := config.LoadRules(*rulesFile)
			if err != nil {
				return err
			}
			if anyHour {
				rules.Reminders.LocalHour = -1
			}
			return withDB(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
				store := notifications.NewPGStore(pool.Pool)
				svc := notifications.NewService(store, rules.QuietHoursPolicy, log)

				var claimer dedup.Claimer = dedup.NewMemoryClaimer()
				addr := redisURL
				if addr == "" {
					addr = cfg.RedisAddr
				}
				if addr != "" {
					rdb, err := dedup.Dial(ctx, addr, cfg.RedisPassword, cfg.RedisDB)
					if err != nil {
						log.Warn("Redis unavailable, using in-process dedup", zap.Error(err))
					} else {
						defer rdb.Close()
						claimer = dedup.NewRedisClaimer(rdb, log)
					}
				}

				runner := reminders.NewRunner(store, cycles.NewPGStore(pool.Pool),
					prediction.New(rules.Prediction), svc, claimer, rules.Reminders, workers, log)
				result := runner.RunOnce(ctx, time.Now())
				for _, e := range result.Errors {
					log.Error("reminder error", zap.String("error", e))
				}
				log.Info("Reminder run finished",
					zap.Duration("duration", result.Duration.Round(time.Millisecond)),
					zap.String("summary", result.Summary()))
				return nil
			})
		},
	}
	run.Flags().IntVar(&workers, "workers", 4, "Concurrent users")
	run.Flags().BoolVar(&anyHour, "any-hour", false, "Ignore the local send hour")
	run.Flags().StringVar(&redisURL, "redis", "", "Redis address (overrides REDIS_ADDR)")
	cmd.AddCommand(run)
	return cmd
}

// --------------------------------------------------------------------------
// cleanup command
// --------------------------------------------------------------------------

func cleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete read notifications past the retention age",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
				svc := notifications.NewService(notifications.NewPGStore(pool.Pool),
					eligibility.PolicyOvernightSafe, log)
				n := maintenance.Cleanup(ctx, svc, log)
				fmt.Fprintf(cmd.OutOrStdout(), "removed %d notifications\n", n)
				return nil
			})
		},
	}
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

func withDB(fn func(ctx context.Context, cfg *config.Config, pool *db.Pool) error) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	pool, err := db.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	return fn(ctx, cfg, pool)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
