package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/shokenteam/shoken-core/internal/config"
	"github.com/shokenteam/shoken-core/internal/feed"
	"github.com/shokenteam/shoken-core/internal/metrics"
	"github.com/shokenteam/shoken-core/internal/publish"
	"github.com/shokenteam/shoken-core/internal/risk"
	"github.com/shokenteam/shoken-core/internal/store"
	"github.com/shokenteam/shoken-core/internal/trade"
)

// publishQueueSize is the number of committed batches that may wait for
// Kafka before new ones are dropped.
const publishQueueSize = 4096

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	configPath := flag.String("config", os.Getenv("SHOKEN_CONFIG"), "path to a config file (yaml, json or toml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Initialize store ---
	st, cleanup, err := openStore(ctx, cfg)
	if err != nil {
		slog.Error("store initialization failed", "err", err)
		os.Exit(1)
	}
	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Exposure limits ---
	limiter := risk.NewExposureLimiter(cfg.MaxPerMarket, cfg.MaxCorrelated, nil)

	// --- Event publishing ---
	// Commands only enqueue; the forwarder runs in the errgroup below.
	var pub publish.Publisher = publish.Nop{}
	var outbox *publish.Async
	if len(cfg.KafkaBrokers) > 0 {
		outbox = publish.NewAsync(publish.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic), publishQueueSize)
		pub = outbox
		slog.Info("publishing wallet events to Kafka", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}
	defer pub.Close()

	// --- WebSocket hub ---
	wsHub := trade.NewWSHub()

	// --- Trade service ---
	tradeSvc := trade.NewService(st, limiter, pub, wsHub, trade.Options{
		FeeBps:             cfg.FeeBps,
		RejectCrossedBooks: cfg.RejectCrossedBooks,
	})
	if err := tradeSvc.Recover(ctx); err != nil {
		slog.Error("state recovery failed", "err", err)
		os.Exit(1)
	}

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"shoken-core"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for fills, book tops and marks. It is
		// registered outside the timeout group so upgrades stay open.
		r.Get("/ws", wsHub.HandleWS)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))
			tradeSvc.Routes(r)
		})
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("shoken-core listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return wsHub.Run(gctx)
	})

	if outbox != nil {
		g.Go(func() error {
			return outbox.Run(gctx)
		})
	}

	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaMarksTopic != "" {
		consumer := feed.NewConsumer(cfg.KafkaBrokers, cfg.KafkaMarksTopic, cfg.KafkaGroupID, tradeSvc)
		g.Go(func() error {
			return consumer.Run(gctx)
		})
	}

	// Graceful shutdown.
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down shoken-core...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("shoken-core stopped with error", "err", err)
		os.Exit(1)
	}
	fmt.Println("shoken-core stopped")
}

// openStore picks the event log backend: PostgreSQL (optionally behind
// Redis), then Pebble, then memory.
func openStore(ctx context.Context, cfg config.Config) (store.Store, []func(), error) {
	var cleanup []func()

	switch {
	case cfg.DatabaseURL != "":
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("database connection failed: %w", err)
		}
		cleanup = append(cleanup, pool.Close)
		pg := store.NewPostgresStore(pool)
		if err := pg.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if cfg.RedisURL == "" {
			return pg, cleanup, nil
		}
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opt)
		cleanup = append(cleanup, func() { rdb.Close() })
		slog.Info("Redis cache enabled", "ttl", cfg.CacheTTL)
		return store.NewCachedStore(pg, rdb, cfg.CacheTTL), cleanup, nil

	case cfg.PebbleDir != "":
		ps, err := store.OpenPebble(cfg.PebbleDir)
		if err != nil {
			return nil, nil, fmt.Errorf("open pebble at %s: %w", cfg.PebbleDir, err)
		}
		cleanup = append(cleanup, func() { ps.Close() })
		slog.Info("using Pebble event log", "dir", cfg.PebbleDir)
		return ps, cleanup, nil
	}

	slog.Warn("no DATABASE_URL or PEBBLE_DIR set, using in-memory store (data will not persist)")
	return store.NewMemoryStore(), nil, nil
}
