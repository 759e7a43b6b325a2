package main

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	"github.com/example/kaede/internal/platform/config"
	"github.com/example/kaede/internal/platform/db"
	"github.com/example/kaede/internal/platform/events"
	"github.com/example/kaede/internal/platform/httpserver"
	"github.com/example/kaede/internal/platform/logging"
	"github.com/example/kaede/internal/platform/mongodb"
	"github.com/example/kaede/internal/platform/natsconn"
	"github.com/example/kaede/internal/platform/run"
	"github.com/example/kaede/services/comments/internal/cache"
	commentsconfig "github.com/example/kaede/services/comments/internal/config"
	"github.com/example/kaede/services/comments/internal/credential"
	"github.com/example/kaede/services/comments/internal/ghost"
	"github.com/example/kaede/services/comments/internal/grpcapi"
	"github.com/example/kaede/services/comments/internal/handlers"
	"github.com/example/kaede/services/comments/internal/idgen"
	"github.com/example/kaede/services/comments/internal/pagination"
	"github.com/example/kaede/services/comments/internal/store"
	"github.com/example/kaede/services/comments/internal/thread"
)

func main() {
	app, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logging.New(app.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()
	cfg := commentsconfig.Load()

	var closers []func(context.Context) error

	st, closeStore := initStore(log, app, cfg)
	if closeStore != nil {
		closers = append(closers, closeStore)
	}

	nc := initNATS(log, app, cfg)
	var publisher *events.Publisher
	if nc != nil {
		publisher = initEvents(log, nc)
	}

	pageCache, closeCache := initCache(log, cfg, nc)
	if closeCache != nil {
		closers = append(closers, closeCache)
	}
	if nc != nil {
		closers = append(closers, func(context.Context) error { return nc.Drain() })
	}

	cb := ghost.NewCircuitBreaker(cfg.CBFailureThreshold, cfg.CBTimeout, log)
	ghostClient := ghost.New(cfg.GhostURL, cfg.GhostKey, ghost.WithCircuitBreaker(cb), ghost.WithLogger(log))
	if cfg.GhostKey == "" {
		log.Warn("GHOST_KEY not set, post lookups will fail")
	}
	if cfg.AdminPassword == "" {
		log.Info("ADMIN_PASSWORD not set, admin deletion disabled")
	}

	svc := thread.NewService(thread.Options{
		Store:  st,
		Posts:  ghostClient,
		Admin:  credential.NewAdminMatcher(cfg.AdminPassword),
		IDs:    idgen.New(),
		Cache:  pageCache,
		Events: publisher,
		Limits: thread.Limits{
			MaxCount:   cfg.MaxCount,
			MaxAuthor:  cfg.MaxAuthor,
			MaxContent: cfg.MaxContent,
			PageSize:   pagination.PageSize,
		},
		Log: log,
	})

	r := chi.NewRouter()
	httpserver.SetupRouter(r, httpserver.RouterConfig{
		CORSOrigins: cfg.CORSOrigins,
		Logger:      log,
		ReadyFunc: func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return svc.Ping(ctx)
		},
	})
	handlers.Mount(r, svc, log)

	srv := httpserver.New(httpserver.Options{Addr: app.HTTP.Addr, ServiceName: app.ServiceName, Logger: log, Router: r})

	shutdowns := []func(context.Context) error{srv.Shutdown}
	if cfg.GRPCAddr != "" {
		grpcSrv, err := startGRPC(log, cfg.GRPCAddr, svc)
		if err != nil {
			log.Error("grpc listen", zap.Error(err))
			run.Exit(1)
		}
		shutdowns = append(shutdowns, func(ctx context.Context) error {
			stopped := make(chan struct{})
			go func() {
				grpcSrv.GracefulStop()
				close(stopped)
			}()
			select {
			case <-stopped:
			case <-ctx.Done():
				grpcSrv.Stop()
			}
			return nil
		})
	}

	runner := run.New(log)
	code := runner.WithSignals(func(context.Context) error {
		return srv.Start(log)
	})
	runner.Graceful(10*time.Second, append(shutdowns, closers...)...)

	log.Info("exit", zap.Int("code", code))
	_ = log.Sync()
	run.Exit(code)
}

func startGRPC(log *zap.Logger, addr string, svc *thread.Service) (*grpc.Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	grpcSrv := grpc.NewServer()
	grpcapi.Register(grpcSrv, &grpcapi.CommentService{Comments: svc, Log: log})
	reflection.Register(grpcSrv)
	go func() {
		log.Info("grpc server starting", zap.String("addr", addr))
		if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			log.Error("grpc serve", zap.Error(err))
		}
	}()
	return grpcSrv, nil
}

// initStore selects the backend: MongoDB when configured, else Postgres when
// DATABASE_URL is set, else memory. Production refuses the in-memory
// fallback and terminates the process.
func initStore(log *zap.Logger, app config.AppConfig, cfg commentsconfig.Config) (store.Store, func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	fallback := func(msg string, err error) (store.Store, func(context.Context) error) {
		if app.IsProduction() {
			log.Error(msg+" (required in production)", zap.Error(err))
			_ = log.Sync()
			run.Exit(1)
		}
		log.Warn(msg+", using in-memory store (development only)", zap.Error(err))
		return store.NewInMemoryStore(), nil
	}

	switch {
	case cfg.Mongo.Configured():
		client, err := mongodb.Connect(ctx, cfg.Mongo)
		if err != nil {
			return fallback("mongodb unavailable", err)
		}
		s := store.NewMongoStore(client, cfg.Mongo.DatabaseName())
		if err := s.EnsureIndexes(ctx); err != nil {
			log.Warn("mongodb indexes", zap.Error(err))
		}
		log.Info("comments store: mongodb", zap.String("database", cfg.Mongo.DatabaseName()))
		return s, client.Disconnect

	case cfg.DatabaseURL != "":
		pool, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return fallback("postgres unavailable", err)
		}
		s := store.NewPostgresStore(pool)
		if err := s.EnsureSchema(ctx); err != nil {
			pool.Close()
			return fallback("postgres schema", err)
		}
		log.Info("comments store: postgres")
		return s, func(context.Context) error { pool.Close(); return nil }

	default:
		return fallback("no MONGODB_URI, MONGODB_HOST or DATABASE_URL set", nil)
	}
}

// initNATS connects when NATS_URL is set. The broker is optional.
func initNATS(log *zap.Logger, app config.AppConfig, cfg commentsconfig.Config) *nats.Conn {
	if cfg.NATSURL == "" {
		log.Info("NATS_URL not set, events and cross-instance cache invalidation disabled")
		return nil
	}
	nc, err := natsconn.Connect(natsconn.Options{URL: cfg.NATSURL, Name: app.ServiceName, Logger: log})
	if err != nil {
		log.Error("nats connect", zap.Error(err))
		return nil
	}
	return nc
}

func initEvents(log *zap.Logger, nc *nats.Conn) *events.Publisher {
	js, err := nc.JetStream()
	if err != nil {
		log.Warn("jetstream unavailable, events disabled", zap.Error(err))
		return nil
	}
	p := events.New(js, log)
	if err := p.EnsureStream(); err != nil {
		log.Warn("events stream", zap.Error(err))
	}
	return p
}

func initCache(log *zap.Logger, cfg commentsconfig.Config, nc *nats.Conn) (cache.Cache, func(context.Context) error) {
	if cfg.CacheTTL <= 0 {
		log.Info("page cache disabled")
		return cache.Nop{}, nil
	}
	if cfg.RedisURL != "" {
		rc, err := cache.NewRedisCache(cfg.RedisURL, cfg.CacheTTL)
		if err == nil {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			err = rc.Ping(ctx)
			cancel()
			if err == nil {
				log.Info("page cache: redis", zap.Duration("ttl", cfg.CacheTTL))
				return rc, func(context.Context) error { return rc.Close() }
			}
			_ = rc.Close()
		}
		log.Warn("redis unavailable, using in-memory page cache", zap.Error(err))
	}
	tc := cache.NewTTLCache(cfg.CacheTTL, log)
	if nc != nil {
		sub, err := tc.Attach(nc)
		if err != nil {
			log.Warn("cache invalidation subscribe", zap.Error(err))
		} else {
			log.Info("page cache: memory with nats invalidation", zap.Duration("ttl", cfg.CacheTTL))
			return tc, func(context.Context) error { return sub.Unsubscribe() }
		}
	}
	return tc, nil
}
