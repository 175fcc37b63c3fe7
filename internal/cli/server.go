package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"quiztrack-service/internal/analytics"
	"quiztrack-service/internal/config"
	"quiztrack-service/internal/infra/memory"
	"quiztrack-service/internal/infra/postgres"
	redisprogress "quiztrack-service/internal/infra/redis"
	"quiztrack-service/internal/infra/sqlite"
	"quiztrack-service/internal/repo"
	"quiztrack-service/internal/store"
	transport "quiztrack-service/internal/transport/http"
	"quiztrack-service/internal/trivia"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
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

	log := newLogger(cfg.Log.Level)

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
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

	// Durable store: Postgres when configured, SQLite otherwise.
	var quizStore store.Store
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		pg := postgres.NewStore(pool)
		defer pg.Close()
		quizStore = pg
		log.WithField("store", "postgres").Info("using durable store")
	} else {
		sq, err := sqlite.NewStore(cfg.SQLite.Path)
		if err != nil {
			return err
		}
		defer sq.Close()
		quizStore = sq
		log.WithField("store", "sqlite").Info("using durable store")
	}

	// Resume state: Redis when configured, in-process otherwise.
	var progress store.ProgressStore = memory.NewProgressStore()
	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		progress = redisprogress.NewProgressStore(redisClient, config.TTLDuration(cfg.Redis.TTL, 24*time.Hour))
		log.WithField("addr", cfg.Redis.Addr).Info("using redis resume store")
	}

	httpClient := &http.Client{Timeout: config.TTLDuration(cfg.Trivia.Timeout, 10*time.Second)}
	source := trivia.NewClientWithBaseURL(httpClient, cfg.Trivia.BaseURL)
	cachedSource := repo.NewCachedQuestionSource(source, config.TTLDuration(cfg.Quiz.CacheTTL, 10*time.Minute))

	repository := repo.NewRepository(quizStore, cachedSource)
	aggregator := analytics.NewAggregator(quizStore)

	api := transport.NewAPI(repository, aggregator, log)
	wsHandler := transport.NewWSHandler(repository, progress, log)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	api.Register(mux)
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.WithField("port", finalPort).Info("starting quiztrack service")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("failed to start server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server...")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func newLogger(level string) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	if parsed, err := logrus.ParseLevel(level); err == nil {
		log.SetLevel(parsed)
	}
	return log
}
