package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"cyberquiz/internal/bank"
	"cyberquiz/internal/config"
	"cyberquiz/internal/server"
	postgresstore "cyberquiz/internal/store/postgres"
)

func newMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the Postgres schema and seed the question bank",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.Context(), *configPath)
		},
	}
}

func runMigrate(ctx context.Context, configPath string) error {
	c := server.Defaults()
	if err := config.Load(configPath, &c); err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if c.Postgres.Addr == "" {
		return fmt.Errorf("postgres is not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	db, err := pgxpool.New(ctx, fmt.Sprintf("postgres://%s:%s@%s/%s",
		c.Postgres.User, c.Postgres.Pass, c.Postgres.Addr, c.Postgres.Name))
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	if err := postgresstore.Migrate(ctx, db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	b, err := bank.NewStaticBank()
	if err != nil {
		return err
	}

	if err := bank.SeedQuestions(ctx, db, b.All()); err != nil {
		return fmt.Errorf("seed questions: %w", err)
	}

	slog.InfoContext(ctx, "migrate: schema ready and question bank seeded",
		"questions", len(b.All()),
	)
	return nil
}
