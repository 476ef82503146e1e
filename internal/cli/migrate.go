package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/NDI05/ums-dental-platform-sub001/internal/config"
	"github.com/NDI05/ums-dental-platform-sub001/internal/infra/memory"
	pgstore "github.com/NDI05/ums-dental-platform-sub001/internal/infra/postgres"
	pgmigrations "github.com/NDI05/ums-dental-platform-sub001/internal/infra/postgres/migrations"
	redisstore "github.com/NDI05/ums-dental-platform-sub001/internal/infra/redis"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun/migrate"
)

// NewMigrateCmd applies database migrations and optionally seeds the question bank.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(cmd)
			v := viperForCmd(cmd)
			cfg, err := loadConfig(cmd, v)
			if err != nil {
				return err
			}
			if v.GetBool("rollback") {
				return rollbackMigrations(cmd.Context(), cfg)
			}
			if err := runMigrationsWithConfig(cmd.Context(), cfg); err != nil {
				return err
			}
			if seed := v.GetString("seed"); seed != "" {
				return seedQuestions(cmd.Context(), cfg, seed)
			}
			return nil
		},
	}
	cmd.Flags().String("seed", "", "YAML question file to upsert into the questions table")
	cmd.Flags().Bool("rollback", false, "roll back the last migration group")
	return cmd
}

func runMigrationsWithConfig(ctx context.Context, cfg config.Config) error {
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}

	db := openBunDB(cfg.Postgres.URL)
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}

	group, err := migrator.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if group.IsZero() {
		slog.Info("database schema up to date")
		return nil
	}
	slog.Info("migrations applied", "group", group.String())
	return nil
}

func rollbackMigrations(ctx context.Context, cfg config.Config) error {
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}
	db := openBunDB(cfg.Postgres.URL)
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	group, err := migrator.Rollback(ctx)
	if err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	if group.IsZero() {
		slog.Info("nothing to roll back")
		return nil
	}
	slog.Info("rolled back", "group", group.String())
	return nil
}

func seedQuestions(ctx context.Context, cfg config.Config, path string) error {
	seed, err := memory.LoadSeedFile(path)
	if err != nil {
		return err
	}
	questions, err := seed.LoadQuestions(ctx)
	if err != nil {
		return err
	}

	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	loader := pgstore.NewQuestionLoader(pool)
	if err := loader.SeedQuestions(ctx, questions); err != nil {
		return err
	}
	slog.Info("seeded questions", "path", path, "count", len(questions))
	return invalidateQuestionCache(ctx, cfg, loader)
}

// invalidateQuestionCache drops the shared Redis pool so running servers pick up
// a fresh seed on their next read instead of after the cache ttl.
func invalidateQuestionCache(ctx context.Context, cfg config.Config, loader memory.QuestionLoader) error {
	if cfg.Redis.Addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	defer client.Close()

	if err := redisstore.NewQuestionBank(client, loader, 0).Invalidate(ctx); err != nil {
		return fmt.Errorf("invalidate question cache: %w", err)
	}
	slog.Info("question cache invalidated", "redis", cfg.Redis.Addr)
	return nil
}
