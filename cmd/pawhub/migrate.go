package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/pawhub/pawhub/internal/app"
	"github.com/pawhub/pawhub/internal/platform/db"
)

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL schema",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: withMigrator(func(cmd *cobra.Command, m *db.Migrator) error {
			if err := m.Up(); err != nil {
				return err
			}
			cmd.Println("migrations applied")
			return nil
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back every migration",
		RunE: withMigrator(func(cmd *cobra.Command, m *db.Migrator) error {
			if err := m.Down(); err != nil {
				return err
			}
			cmd.Println("migrations rolled back")
			return nil
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		RunE: withMigrator(func(cmd *cobra.Command, m *db.Migrator) error {
			version, dirty, err := m.Version()
			if err != nil {
				return err
			}
			cmd.Printf("version=%d dirty=%t\n", version, dirty)
			return nil
		}),
	})
	return cmd
}

func withMigrator(fn func(*cobra.Command, *db.Migrator) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		cfg, err := app.LoadConfig()
		if err != nil {
			return oops.Code("CONFIG_INVALID").Wrap(err)
		}
		if cfg.StoreDriver != app.StoreDriverPostgres {
			return oops.Code("CONFIG_INVALID").Errorf("migrations require STORE_DRIVER=postgres")
		}
		m, err := db.NewMigrator(cfg.PGDSN)
		if err != nil {
			return err
		}
		defer func() {
			_ = m.Close()
		}()
		return fn(cmd, m)
	}
}
