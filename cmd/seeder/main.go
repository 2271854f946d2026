// cmd/seeder/main.go
package main

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/unclebandit/campaign-dispatch/internal/config"
	"github.com/unclebandit/campaign-dispatch/internal/db"
	"github.com/unclebandit/campaign-dispatch/internal/logger"
)

var seedFiles = []string{
	"companies.sql",
	"templates.sql",
}

func main() {
	_ = godotenv.Load()
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var databaseURL string
	root := &cobra.Command{
		Use:          "seeder",
		Short:        "Database maintenance for the campaign service",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&databaseURL, "database-url", "", "Postgres DSN (defaults to DATABASE_URL)")

	open := func(cmd *cobra.Command) (*cmdEnv, error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, err
		}
		if databaseURL != "" {
			cfg.DatabaseURL = databaseURL
		}
		conn, err := db.Open(cmd.Context(), cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return &cmdEnv{db: conn, log: logger.New(cfg.AppEnv, cfg.LogFile)}, nil
	}

	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded schema migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := open(cmd)
			if err != nil {
				return err
			}
			defer env.db.Close()
			return db.Migrate(cmd.Context(), env.db, env.log)
		},
	})

	var dir string
	seed := &cobra.Command{
		Use:   "seed",
		Short: "Migrate, then load the fixture companies and templates",
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := open(cmd)
			if err != nil {
				return err
			}
			defer env.db.Close()
			if err := db.Migrate(cmd.Context(), env.db, env.log); err != nil {
				return err
			}
			for _, name := range seedFiles {
				file := filepath.Join(dir, name)
				content, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("read %s: %w", file, err)
				}
				if _, err := env.db.ExecContext(cmd.Context(), string(content)); err != nil {
					return fmt.Errorf("execute %s: %w", file, err)
				}
				env.log.Info().Str("file", file).Msg("seeded")
			}
			env.log.Info().Msg("database seeding completed")
			return nil
		},
	}
	seed.Flags().StringVar(&dir, "dir", "seed", "directory holding the seed SQL files")
	root.AddCommand(seed)
	return root
}

type cmdEnv struct {
	db  *sql.DB
	log zerolog.Logger
}
