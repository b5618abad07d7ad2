package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"checkout-3ds-api/config"
	"checkout-3ds-api/database"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the 3D Secure attempt schema",
	}

	rootCmd.AddCommand(upCmd())
	rootCmd.AddCommand(downCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// withMigrator opens a migrator on the configured database for one command.
func withMigrator(run func(mg *database.Migrator) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()

		log.Printf("Connecting to database %s on %s...", cfg.Database.DBName, cfg.Database.Host)
		mg, err := database.NewMigrator(cfg.Database)
		if err != nil {
			return err
		}
		defer mg.Close()

		return run(mg)
	}
}

func upCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply every pending migration",
		RunE: withMigrator(func(mg *database.Migrator) error {
			log.Println("Running migrations up...")
			return mg.Up()
		}),
	}
}

func downCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "down",
		Short: "Roll back every migration",
		RunE: withMigrator(func(mg *database.Migrator) error {
			log.Println("Rolling back migrations...")
			if err := mg.Down(); err != nil {
				return err
			}
			log.Println("Rollback completed successfully")
			return nil
		}),
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the current schema version",
		RunE: withMigrator(func(mg *database.Migrator) error {
			version, dirty, err := mg.Version()
			if err != nil {
				return fmt.Errorf("failed to get version: %w", err)
			}
			log.Printf("Current version: %d (dirty: %v)", version, dirty)
			return nil
		}),
	}
}
