package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/K2LinTeams/AutoCheckin-Next/internal/app"
	"github.com/K2LinTeams/AutoCheckin-Next/internal/domain"
)

func encodeSnapshot(w io.Writer, snap domain.Snapshot) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(snap); err != nil {
		return err
	}
	return enc.Close()
}

// decodeSnapshot parses a YAML configuration document. Unknown keys are
// rejected and a missing wecom section keeps the defaults.
func decodeSnapshot(r io.Reader) (domain.Snapshot, error) {
	snap := domain.Snapshot{Notifier: domain.DefaultNotifierConfig()}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&snap); err != nil {
		if errors.Is(err, io.EOF) {
			return snap, nil
		}
		return domain.Snapshot{}, fmt.Errorf("parse config: %w", err)
	}
	return snap, nil
}

func newConfigCmd(dbPath *string) *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Export or import the whole configuration as YAML"}

	cfg.AddCommand(&cobra.Command{
		Use:   "export [file]",
		Short: "Write tasks and notifier settings to a file or stdout",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, *dbPath, func(ctx context.Context, a *app.App) error {
				snap, err := a.Repo().Load(ctx)
				if err != nil {
					return err
				}
				if len(args) == 0 {
					return encodeSnapshot(cmd.OutOrStdout(), snap)
				}
				var buf bytes.Buffer
				if err := encodeSnapshot(&buf, snap); err != nil {
					return err
				}
				// Cookies and secrets live in this file.
				if err := os.WriteFile(args[0], buf.Bytes(), 0o600); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "exported %d task(s) to %s\n", len(snap.Tasks), args[0])
				return nil
			})
		},
	})

	cfg.AddCommand(&cobra.Command{
		Use:   "import <file>",
		Short: "Replace tasks and notifier settings from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			snap, err := decodeSnapshot(f)
			if err != nil {
				return err
			}
			return withApp(cmd, *dbPath, func(ctx context.Context, a *app.App) error {
				if err := a.Repo().ReplaceAll(ctx, snap); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "imported %d task(s)\n", len(snap.Tasks))
				return nil
			})
		},
	})
	return cfg
}
