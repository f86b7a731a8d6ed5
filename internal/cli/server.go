package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/config"
	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/infra/memory"
	pginfra "quiz-attempt-service/internal/infra/postgres"
	"quiz-attempt-service/internal/infra/rabbit"
	redisinfra "quiz-attempt-service/internal/infra/redis"
	transport "quiz-attempt-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the attempt service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := setupLogger(os.Stdout, cfg.Log.Env, cfg.Log.Level)
	slog.SetDefault(logger)

	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret (JWT_SECRET) is required")
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	deps, err := buildDeps(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.close()

	attempts := app.NewAttemptService(deps.store, deps.tests, deps.options...)
	stats := app.NewStatisticsService(deps.tests, deps.store)
	router := transport.NewRouter(
		transport.NewAttemptHandler(attempts, stats, logger),
		transport.NewAttemptWSHandler(attempts, logger),
		transport.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer),
	)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		logger.Info("starting attempt service", "port", finalPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("shutting down server")
	case <-ctx.Done():
		logger.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// deps holds the backing stores chosen from config. Anything not configured falls back to memory.
type deps struct {
	tests   app.TestRepository
	store   app.AttemptStore
	options []app.ServiceOption
	closers []func()
}

func (d *deps) close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

func buildDeps(ctx context.Context, cfg config.Config, logger *slog.Logger) (*deps, error) {
	d := &deps{options: []app.ServiceOption{app.WithLogger(logger)}}
	fail := func(err error) (*deps, error) {
		d.close()
		return nil, err
	}

	var loader memory.TestLoader = memory.NewStaticTestLoader(sampleTests())
	d.store = memory.NewAttemptStore()
	if cfg.Postgres.URL != "" {
		db := openBunDB(cfg.Postgres.URL)
		d.closers = append(d.closers, func() { _ = db.Close() })
		if err := runMigrations(ctx, db, logger); err != nil {
			return fail(err)
		}
		d.store = pginfra.NewAttemptStore(db)

		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return fail(fmt.Errorf("connect postgres: %w", err))
		}
		d.closers = append(d.closers, pool.Close)
		loader = pginfra.NewTestLoader(pool)
	} else {
		logger.Warn("postgres not configured, attempts are kept in memory")
	}

	cacheTTL := config.TTLDuration(cfg.Cache.TTL, 10*time.Minute)
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		d.closers = append(d.closers, func() { _ = client.Close() })
		if err := client.Ping(ctx).Err(); err != nil {
			return fail(fmt.Errorf("ping redis: %w", err))
		}
		d.tests = redisinfra.NewTestRepository(client, loader, cacheTTL)
		lockTTL := config.TTLDuration(cfg.Lock.TTL, 15*time.Second)
		d.options = append(d.options, app.WithLocker(redisinfra.NewAttemptLocker(client, lockTTL)))
	} else {
		d.tests = memory.NewTestRepository(loader, cacheTTL)
		d.options = append(d.options, app.WithLocker(memory.NewKeyedLocker()))
	}

	if cfg.Rabbit.URL != "" {
		publisher, err := rabbit.Dial(cfg.Rabbit.URL, cfg.Rabbit.Exchange)
		if err != nil {
			return fail(fmt.Errorf("connect rabbitmq: %w", err))
		}
		d.closers = append(d.closers, func() { _ = publisher.Close() })
		d.options = append(d.options, app.WithPublisher(publisher))
	}
	return d, nil
}

// sampleTests backs the in-memory mode so the service is usable without Postgres.
func sampleTests() map[string]domain.Test {
	limit := 15
	answer := "Paris"
	return map[string]domain.Test{
		"demo-test": {
			ID:        "demo-test",
			Title:     "Demo test",
			CreatorID: "demo-creator",
			TimeLimit: &limit,
			Status:    domain.TestStatusActive,
			CreatedAt: time.Date(2024, 11, 22, 0, 0, 0, 0, time.UTC),
			Questions: []domain.Question{
				{
					ID: "q1", Text: "What is 2 + 2?", Type: domain.QuestionSingleChoice, Order: 1,
					Options: []domain.Option{
						{ID: "o1", Text: "3", Order: 1},
						{ID: "o2", Text: "4", IsCorrect: true, Order: 2},
						{ID: "o3", Text: "5", Order: 3},
					},
				},
				{
					ID: "q2", Text: "Which numbers are prime?", Type: domain.QuestionMultipleChoice, Order: 2,
					Options: []domain.Option{
						{ID: "p1", Text: "2", IsCorrect: true, Order: 1},
						{ID: "p2", Text: "4", Order: 2},
						{ID: "p3", Text: "7", IsCorrect: true, Order: 3},
					},
				},
				{ID: "q3", Text: "Capital of France?", Type: domain.QuestionTextInput, Order: 3, CorrectTextAnswer: &answer},
			},
		},
	}
}
