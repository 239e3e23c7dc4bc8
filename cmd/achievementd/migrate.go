package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/alem-hub/achievement-hub/config"
	"github.com/alem-hub/achievement-hub/internal/infrastructure/persistence/postgres"
	"github.com/alem-hub/achievement-hub/internal/infrastructure/persistence/sqlite"
	"github.com/alem-hub/achievement-hub/pkg/logger"
)

// migrationRow is one line of `migrate status`, whatever the driver.
type migrationRow struct {
	Name      string
	Applied   bool
	AppliedAt time.Time
}

// schemaMigrator is the part of both drivers' migrators the CLI drives.
type schemaMigrator interface {
	Migrate(ctx context.Context) error
	Rollback(ctx context.Context) error
	Status(ctx context.Context) ([]migrationRow, error)
}

type postgresMigrator struct{ *postgres.Migrator }

func (m postgresMigrator) Status(ctx context.Context) ([]migrationRow, error) {
	list, err := m.Migrator.Status(ctx)
	if err != nil {
		return nil, err
	}
	rows := make([]migrationRow, 0, len(list))
	for _, mg := range list {
		rows = append(rows, migrationRow{
			Name:      fmt.Sprintf("%03d_%s", mg.Version, mg.Name),
			Applied:   mg.IsApplied,
			AppliedAt: mg.AppliedAt,
		})
	}
	return rows, nil
}

type sqliteMigrator struct{ *sqlite.Migrator }

func (m sqliteMigrator) Status(ctx context.Context) ([]migrationRow, error) {
	list, err := m.Migrator.Status(ctx)
	if err != nil {
		return nil, err
	}
	rows := make([]migrationRow, 0, len(list))
	for _, mg := range list {
		rows = append(rows, migrationRow{Name: mg.Name, Applied: mg.IsApplied, AppliedAt: mg.AppliedAt})
	}
	return rows, nil
}

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	run := func(fn func(ctx context.Context, m schemaMigrator, out io.Writer) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(opts)
			if err != nil {
				return err
			}
			m, closeDB, err := openMigrator(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer closeDB()
			return fn(cmd.Context(), m, cmd.OutOrStdout())
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: run(func(ctx context.Context, m schemaMigrator, out io.Writer) error {
			if err := m.Migrate(ctx); err != nil {
				return err
			}
			fmt.Fprintln(out, "schema is up to date")
			return nil
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		RunE: run(func(ctx context.Context, m schemaMigrator, out io.Writer) error {
			if err := m.Rollback(ctx); err != nil {
				return err
			}
			fmt.Fprintln(out, "rolled back one migration")
			return nil
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List migrations and whether they are applied",
		RunE: run(func(ctx context.Context, m schemaMigrator, out io.Writer) error {
			rows, err := m.Status(ctx)
			if err != nil {
				return err
			}
			return printStatus(out, rows)
		}),
	})

	return cmd
}

func openMigrator(ctx context.Context, cfg *config.Config, log *logger.Logger) (schemaMigrator, func(), error) {
	if cfg.Database.Driver == config.DriverPostgres {
		conn, err := connectPostgres(ctx, cfg, log)
		if err != nil {
			return nil, nil, err
		}
		return postgresMigrator{postgres.NewMigrator(conn)}, conn.Close, nil
	}

	db, err := sqlite.OpenDB(cfg.Database.Path)
	if err != nil {
		return nil, nil, err
	}
	return sqliteMigrator{sqlite.NewMigrator(db)}, func() { _ = db.Close() }, nil
}

func printStatus(out io.Writer, rows []migrationRow) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MIGRATION\tSTATE\tAPPLIED AT")
	for _, r := range rows {
		state, at := "pending", "-"
		if r.Applied {
			state, at = "applied", r.AppliedAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", r.Name, state, at)
	}
	return w.Flush()
}
