package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"trivia-room-service/internal/app"
	"trivia-room-service/internal/config"
	"trivia-room-service/internal/infra/memory"
	"trivia-room-service/internal/infra/postgres"
	redisinfra "trivia-room-service/internal/infra/redis"
	transport "trivia-room-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the trivia server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := newLogger(cfg.Log)

	if cfg.Postgres.URL != "" {
		if err := runMigrations(ctx, cfg, log); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	apiOpts := []transport.APIOption{
		transport.WithAllowedOrigins(cfg.AllowedOrigins()),
		transport.WithRateLimits(cfg.RateLimits()),
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("pinging redis: %w", err)
		}
		log.Info().Str("addr", cfg.Redis.Addr).Msg("connected to redis")
		apiOpts = append(apiOpts, transport.WithHealthCheck("redis", func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}))
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 3*time.Hour)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return fmt.Errorf("connecting to postgres: %w", err)
		}
		defer pool.Close()
		log.Info().Msg("connected to postgres")
		apiOpts = append(apiOpts, transport.WithHealthCheck("postgres", func(ctx context.Context) error {
			return pool.Ping(ctx)
		}))
	}

	var loader memory.QuestionLoader
	if pool != nil {
		loader = postgres.NewQuestionLoader(pool)
	} else {
		questions, err := memory.SeedQuestions()
		if err != nil {
			return fmt.Errorf("loading embedded questions: %w", err)
		}
		loader = memory.NewStaticQuestionLoader(questions)
		log.Info().Int("questions", len(questions)).Msg("serving embedded question set")
	}

	questionTTL := config.TTLDuration(cfg.Questions.TTL, 10*time.Minute)
	// banks also serve the question browser from the same cached pools
	var bank interface {
		app.QuestionBank
		transport.QuestionCatalog
	}
	if redisClient != nil {
		bank = redisinfra.NewQuestionBank(redisClient, loader, questionTTL)
	} else {
		bank = memory.NewQuestionBank(loader, questionTTL)
	}
	apiOpts = append(apiOpts, transport.WithQuestionCatalog(bank))

	var store app.SessionRepository
	if redisClient != nil {
		redisStore := redisinfra.NewSessionStore(redisClient, redisTTL)
		store = redisStore
		apiOpts = append(apiOpts, transport.WithSessionCounter(func(ctx context.Context) (int, error) {
			n, err := redisStore.Len(ctx)
			return int(n), err
		}))
	} else {
		memStore := memory.NewSessionStore()
		store = memStore
		apiOpts = append(apiOpts, transport.WithSessionCounter(func(context.Context) (int, error) {
			return memStore.Len(), nil
		}))
	}

	registry := transport.NewRegistry(log)
	timing := cfg.Timing()
	engine := app.NewGameService(store, bank, registry, app.WithLogger(log), app.WithTiming(timing))
	api := transport.NewAPI(engine, registry, log, apiOpts...)

	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           api.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	shutdownTimeout := config.TTLDuration(cfg.Server.ShutdownTimeout, 10*time.Second)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", server.Addr).Msg("starting trivia service")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		engine.RunSweeper(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	err = g.Wait()
	logFinalState(log, engine, registry)
	return err
}

func logFinalState(log zerolog.Logger, engine *app.GameService, registry *transport.Registry) {
	log.Info().Int("rooms", engine.ActiveRooms()).Int("connections", registry.Connections()).Msg("server stopped")
}
