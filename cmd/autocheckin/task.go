package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/K2LinTeams/AutoCheckin-Next/internal/app"
	"github.com/K2LinTeams/AutoCheckin-Next/internal/domain"
)

// taskFlags are the editable task fields shared by add and update.
type taskFlags struct {
	name, clock, classID, cookie string
	lat, lng, acc                string
	disabled                     bool
}

func (f *taskFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.name, "name", "", "task name")
	cmd.Flags().StringVar(&f.clock, "time", "", "trigger time HH:MM (local)")
	cmd.Flags().StringVar(&f.classID, "class", "", "course id")
	cmd.Flags().StringVar(&f.cookie, "cookie", "", "session cookie")
	cmd.Flags().StringVar(&f.lat, "lat", "", "latitude")
	cmd.Flags().StringVar(&f.lng, "lng", "", "longitude")
	cmd.Flags().StringVar(&f.acc, "acc", "", "reported accuracy")
	cmd.Flags().BoolVar(&f.disabled, "disabled", false, "create or keep the task paused")
}

// apply copies every flag set on cmd into t.
func (f *taskFlags) apply(cmd *cobra.Command, t *domain.Task) {
	set := func(name string, dst *string, v string) {
		if cmd.Flags().Changed(name) {
			*dst = v
		}
	}
	set("name", &t.Name, f.name)
	set("time", &t.Time, f.clock)
	set("class", &t.ClassID, f.classID)
	set("cookie", &t.Cookie, f.cookie)
	set("lat", &t.Location.Lat, f.lat)
	set("lng", &t.Location.Lng, f.lng)
	set("acc", &t.Location.Acc, f.acc)
	if cmd.Flags().Changed("disabled") {
		t.Enabled = !f.disabled
	}
}

// withApp opens the app for one subcommand and closes it afterwards.
func withApp(cmd *cobra.Command, dbPath string, f func(ctx context.Context, a *app.App) error) error {
	ctx := cmd.Context()
	a, log, err := loadApp(ctx, dbPath)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	defer a.Close()
	return f(ctx, a)
}

func newTaskCmd(dbPath *string) *cobra.Command {
	task := &cobra.Command{Use: "task", Short: "Manage check-in tasks"}

	task.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, *dbPath, func(ctx context.Context, a *app.App) error {
				tasks, err := a.Repo().ListTasks(ctx)
				if err != nil {
					return err
				}
				if len(tasks) == 0 {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no tasks")
					return nil
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				_, _ = fmt.Fprintln(tw, "ID\tTIME\tNAME\tCLASS\tENABLED\tSESSION")
				for _, t := range tasks {
					session := "yes"
					if t.Cookie == "" {
						session = "no"
					}
					_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\t%s\n", t.ID, t.Time, t.Name, t.ClassID, t.Enabled, session)
				}
				return tw.Flush()
			})
		},
	})

	var addFlags taskFlags
	add := &cobra.Command{
		Use:   "add --name <name> --time HH:MM --class <id>",
		Short: "Add a task",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, *dbPath, func(ctx context.Context, a *app.App) error {
				t := domain.Task{Enabled: true}
				addFlags.apply(cmd, &t)
				added, err := a.Repo().AddTask(ctx, t)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "task added: %s (%s at %s)\n", added.ID, added.Name, added.Time)
				return nil
			})
		},
	}
	addFlags.register(add)
	task.AddCommand(add)

	var updateFlags taskFlags
	update := &cobra.Command{
		Use:   "update <task-id>",
		Short: "Change the fields given as flags",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, *dbPath, func(ctx context.Context, a *app.App) error {
				t, err := a.Repo().GetTask(ctx, args[0])
				if err != nil {
					return err
				}
				updateFlags.apply(cmd, t)
				updated, err := a.Repo().UpdateTask(ctx, *t)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "task updated: %s (%s at %s)\n", updated.ID, updated.Name, updated.Time)
				return nil
			})
		},
	}
	updateFlags.register(update)
	task.AddCommand(update)

	task.AddCommand(&cobra.Command{
		Use:   "delete <task-id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, *dbPath, func(ctx context.Context, a *app.App) error {
				if err := a.Repo().DeleteTask(ctx, args[0]); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "task deleted: %s\n", args[0])
				return nil
			})
		},
	})

	task.AddCommand(newToggleCmd(dbPath, "enable", true), newToggleCmd(dbPath, "disable", false))
	return task
}

func newToggleCmd(dbPath *string, verb string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <task-id>",
		Short: verb + " a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, *dbPath, func(ctx context.Context, a *app.App) error {
				if err := a.Repo().SetEnabled(ctx, args[0], enabled); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "task %sd: %s\n", verb, args[0])
				return nil
			})
		},
	}
}
