package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/K2LinTeams/AutoCheckin-Next/internal/app"
	"github.com/K2LinTeams/AutoCheckin-Next/internal/config"
	"github.com/K2LinTeams/AutoCheckin-Next/internal/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var dbPath string

	root := &cobra.Command{
		Use:           "autocheckin",
		Short:         "Scheduled course check-in automation",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (overrides DB_PATH)")

	root.AddCommand(newServeCmd(&dbPath))
	root.AddCommand(newLoginCmd(&dbPath))
	root.AddCommand(newRunCmd(&dbPath))
	root.AddCommand(newTaskCmd(&dbPath))
	root.AddCommand(newConfigCmd(&dbPath))
	return root
}

// loadApp reads the environment, applies the --db override and opens the
// store. Callers must Close the returned app.
func loadApp(ctx context.Context, dbPath string) (*app.App, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		_ = log.Sync()
		return nil, nil, err
	}
	return a, log, nil
}

func newServeCmd(dbPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler and the optional Telegram bot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, log, err := loadApp(ctx, *dbPath)
			if err != nil {
				return err
			}
			// Ignore sync error (common on some platforms).
			defer func() { _ = log.Sync() }()
			defer a.Close()
			return a.Serve(ctx)
		},
	}
}

func newLoginCmd(dbPath *string) *cobra.Command {
	var opts loginOptions

	login := &cobra.Command{
		Use:   "login",
		Short: "Log in by QR code and print (or bind) the captured session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, *dbPath, func(ctx context.Context, a *app.App) error {
				return runLogin(ctx, cmd, a, opts)
			})
		},
	}
	login.Flags().StringVar(&opts.out, "out", "login-qr.png", "where to write the QR image")
	login.Flags().StringVar(&opts.taskID, "task", "", "bind the captured session to this task id")
	login.Flags().DurationVar(&opts.timeout, "timeout", 3*time.Minute, "how long to wait for the scan")
	login.Flags().DurationVar(&opts.interval, "interval", 2*time.Second, "status poll interval")
	return login
}

type loginOptions struct {
	out, taskID       string
	timeout, interval time.Duration
}

func runLogin(ctx context.Context, cmd *cobra.Command, a *app.App, o loginOptions) error {
	if o.taskID != "" {
		if _, err := a.Repo().GetTask(ctx, o.taskID); err != nil {
			return fmt.Errorf("task %s: %w", o.taskID, err)
		}
	}

	flow, err := a.NewLogin()
	if err != nil {
		return err
	}
	code, err := flow.Code(ctx)
	if err != nil {
		return err
	}
	if err := os.WriteFile(o.out, code.PNG, 0o644); err != nil {
		return fmt.Errorf("write qr image: %w", err)
	}
	w := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(w, "scan %s with WeChat (link: %s)\n", o.out, code.Link)
	_, _ = fmt.Fprintf(w, "waiting up to %s...\n", o.timeout)

	sess, err := flow.Poll(ctx, code.CheckURL, o.interval, o.timeout)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(w, "state: %s\ncookie: %s\nclass_id: %s\n", flow.State(), sess.Cookie, sess.ClassID)

	if o.taskID == "" {
		return nil
	}
	if err := a.Repo().SetSession(ctx, o.taskID, sess); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(w, "session bound to task %s\n", o.taskID)
	return nil
}

func newRunCmd(dbPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run <task-id>",
		Short: "Run one task now, ignoring its trigger time",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, *dbPath, func(ctx context.Context, a *app.App) error {
				outcomes, err := a.RunTask(ctx, args[0])
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				if len(outcomes) == 0 {
					_, _ = fmt.Fprintln(w, "no open check-ins")
					return nil
				}
				for _, o := range outcomes {
					_, _ = fmt.Fprintf(w, "%s\tsuccess=%t\t%s\t(Loc: %s,%s)\n", o.OpportunityID, o.Success, o.Message, o.Coord.Lat, o.Coord.Lng)
				}
				return nil
			})
		},
	}
}

