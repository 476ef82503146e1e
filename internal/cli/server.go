package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/NDI05/ums-dental-platform-sub001/internal/app"
	"github.com/NDI05/ums-dental-platform-sub001/internal/auth"
	"github.com/NDI05/ums-dental-platform-sub001/internal/config"
	"github.com/NDI05/ums-dental-platform-sub001/internal/infra/memory"
	pgstore "github.com/NDI05/ums-dental-platform-sub001/internal/infra/postgres"
	redisstore "github.com/NDI05/ums-dental-platform-sub001/internal/infra/redis"
	transport "github.com/NDI05/ums-dental-platform-sub001/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"golang.org/x/sync/errgroup"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the quiz session server",
		RunE:  runServer,
	}
	cmd.Flags().String("port", "", "port to listen on (overrides server.port)")
	cmd.Flags().String("redis-addr", "", "Redis address (overrides redis.addr)")
	cmd.Flags().String("seed-file", "", "YAML question bank used when Postgres is not configured")
	cmd.Flags().String("store", "", "session store: memory, redis or postgres")
	return cmd
}

// backends holds the opened connections so they can be health-checked and closed.
type backends struct {
	redis *redis.Client
	pool  *pgxpool.Pool
	db    *bun.DB
}

func (b *backends) Close() {
	if b.redis != nil {
		_ = b.redis.Close()
	}
	if b.pool != nil {
		b.pool.Close()
	}
	if b.db != nil {
		_ = b.db.Close()
	}
}

func (b *backends) healthChecks() map[string]transport.HealthCheck {
	checks := map[string]transport.HealthCheck{}
	if b.redis != nil {
		checks["redis"] = func(ctx context.Context) error { return b.redis.Ping(ctx).Err() }
	}
	if b.pool != nil {
		checks["postgres"] = func(ctx context.Context) error { return b.pool.Ping(ctx) }
	}
	return checks
}

func runServer(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	cfg, err := loadConfig(cmd, v)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conns, err := openBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer conns.Close()

	service, err := buildService(cfg, conns)
	if err != nil {
		return err
	}

	pollInterval := config.TTLDuration(cfg.Session.PollInterval, app.DefaultPollInterval)
	router := transport.NewRouter(
		transport.NewSessionHandler(service),
		transport.NewWSHandler(service, pollInterval, cfg.Server.AllowedOrigins),
		auth.NewVerifier(cfg.Auth.Secret),
		transport.RouterConfig{
			AllowedOrigins: cfg.Server.AllowedOrigins,
			HealthChecks:   conns.healthChecks(),
		},
	)

	port := cfg.Server.Port
	if port == "" {
		port = "8080"
	}
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// no WriteTimeout: websocket status streams are long-lived
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("starting quiz service", "port", port, "store", cfg.SessionStore())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		slog.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func openBackends(ctx context.Context, cfg config.Config) (*backends, error) {
	b := &backends{}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return nil, err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		b.pool = pool
		if cfg.SessionStore() == config.StorePostgres {
			b.db = openBunDB(cfg.Postgres.URL)
		}
	}

	if cfg.Redis.Addr != "" {
		b.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := b.redis.Ping(ctx).Err(); err != nil {
			b.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
	}
	return b, nil
}

func buildService(cfg config.Config, b *backends) (*app.SessionService, error) {
	var loader memory.QuestionLoader
	switch {
	case b.pool != nil:
		loader = pgstore.NewQuestionLoader(b.pool)
	case cfg.Questions.SeedFile != "":
		seed, err := memory.LoadSeedFile(cfg.Questions.SeedFile)
		if err != nil {
			return nil, fmt.Errorf("load seed file: %w", err)
		}
		loader = seed
	default:
		slog.Warn("no question source configured; sessions cannot be created until one is")
		loader = memory.NewStaticQuestionLoader(nil)
	}

	questionTTL := config.TTLDuration(cfg.Questions.TTL, 5*time.Minute)
	var bank app.QuestionBank
	if b.redis != nil {
		bank = redisstore.NewQuestionBank(b.redis, loader, questionTTL)
	} else {
		bank = memory.NewQuestionBank(loader, questionTTL)
	}

	var store app.SessionRepository
	switch cfg.SessionStore() {
	case config.StoreRedis:
		store = redisstore.NewSessionStore(b.redis, config.TTLDuration(cfg.Redis.TTL, 12*time.Hour))
	case config.StorePostgres:
		store = pgstore.NewSessionStore(b.db)
	default:
		store = memory.NewSessionStore()
	}

	var opts []app.Option
	if cfg.Session.CodeAttempts > 0 {
		opts = append(opts, app.WithCodeAttempts(cfg.Session.CodeAttempts))
	}
	return app.NewSessionService(store, bank, opts...), nil
}

func openBunDB(dsn string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}
