package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"cyberquiz/internal/api"
	"cyberquiz/internal/bank"
	"cyberquiz/internal/event"
	"cyberquiz/internal/leaderboard"
	"cyberquiz/internal/session"
	memorystore "cyberquiz/internal/store/memory"
	postgresstore "cyberquiz/internal/store/postgres"
	redisstore "cyberquiz/internal/store/redis"
	"cyberquiz/internal/telemetry"
)

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Bank sources.
const (
	BankEmbedded = "embedded"
	BankPostgres = "postgres"
)

type Config struct {
	HTTP struct {
		Port int32
	}

	Storage struct {
		// Backend picks where sessions and the leaderboard live:
		// memory, redis or postgres.
		Backend string
	}

	Redis struct {
		Addrs  []string
		Pass   string
		Prefix string
	}

	Postgres struct {
		Addr string
		User string
		Pass string
		Name string
	}

	Bank struct {
		// Source picks the question bank: embedded or postgres.
		Source   string
		CacheTTL time.Duration
	}

	Sweep struct {
		Interval time.Duration
	}
}

// Defaults returns a config that runs entirely in process.
func Defaults() Config {
	var c Config
	c.HTTP.Port = 8080
	c.Storage.Backend = BackendMemory
	c.Redis.Prefix = "cyberquiz"
	c.Bank.Source = BankEmbedded
	c.Bank.CacheTTL = 5 * time.Minute
	c.Sweep.Interval = time.Hour
	return c
}

type Server struct {
	c Config

	eb *event.Bus

	infra struct {
		redis    redis.UniversalClient
		postgres *pgxpool.Pool
	}

	service struct {
		session     *session.Service
		leaderboard *leaderboard.Service
	}

	http *http.Server

	sweepCtx    context.Context
	sweepCancel context.CancelFunc
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c}
	s.sweepCtx, s.sweepCancel = context.WithCancel(context.Background())

	s.eb = event.NewBus()

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	if err := s.initService(); err != nil {
		return nil, fmt.Errorf("server: init service: %w", err)
	}

	s.initAPI()
	return s, nil
}

func (s *Server) initInfra() error {
	if s.needRedis() {
		if err := s.initRedis(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}

	if s.needPostgres() {
		if err := s.initPostgres(); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}

	return nil
}

func (s *Server) needRedis() bool {
	return s.c.Storage.Backend == BackendRedis || len(s.c.Redis.Addrs) > 0
}

func (s *Server) needPostgres() bool {
	return s.c.Storage.Backend == BackendPostgres || s.c.Bank.Source == BankPostgres
}

func (s *Server) initRedis() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	r := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    s.c.Redis.Addrs,
		Password: s.c.Redis.Pass,
	})

	if err := telemetry.MonitorRedis(r); err != nil {
		return err
	}

	if err := r.Ping(ctx).Err(); err != nil {
		return err
	}

	s.infra.redis = r
	return nil
}

func (s *Server) initPostgres() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cc, err := pgxpool.ParseConfig(fmt.Sprintf("postgres://%s:%s@%s/%s",
		s.c.Postgres.User, s.c.Postgres.Pass, s.c.Postgres.Addr, s.c.Postgres.Name))
	if err != nil {
		return err
	}

	db, err := pgxpool.NewWithConfig(ctx, cc)
	if err != nil {
		return err
	}

	if err := db.Ping(ctx); err != nil {
		return err
	}

	s.infra.postgres = db
	return nil
}

func (s *Server) initService() error {
	var (
		sessions session.Store
		board    leaderboard.Store
	)

	switch s.c.Storage.Backend {
	case BackendMemory, "":
		sessions = memorystore.NewStore()
		board = memorystore.NewLeaderboard()
	case BackendRedis:
		sessions = redisstore.NewStore(s.infra.redis, s.c.Redis.Prefix)
		board = redisstore.NewLeaderboard(s.infra.redis, s.c.Redis.Prefix)
	case BackendPostgres:
		sessions = postgresstore.NewStore(s.infra.postgres)
		board = postgresstore.NewLeaderboard(s.infra.postgres)
	default:
		return fmt.Errorf("unknown storage backend %q", s.c.Storage.Backend)
	}

	var (
		questions bank.Bank
		err       error
	)

	switch s.c.Bank.Source {
	case BankEmbedded, "":
		questions, err = bank.NewStaticBank()
		if err != nil {
			return err
		}
	case BankPostgres:
		questions = bank.NewPostgresBank(s.infra.postgres, s.c.Bank.CacheTTL)
	default:
		return fmt.Errorf("unknown bank source %q", s.c.Bank.Source)
	}

	s.service.leaderboard = leaderboard.NewService(leaderboard.Config{
		Store:    board,
		EventBus: s.eb,
	})

	s.service.session = session.NewService(session.Config{
		Store:       sessions,
		Bank:        questions,
		Leaderboard: s.service.leaderboard,
		EventBus:    s.eb,
	})

	return nil
}

func (s *Server) initAPI() {
	e := gin.New()
	e.Use(gin.Recovery())

	// Every endpoint is open to any origin; the opaque session id is the
	// only credential.
	e.Use(cors.Default())

	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	pprof.Register(e, "/debug/pprof")

	ac := api.Config{
		Engine:      e,
		Session:     s.service.session,
		Leaderboard: s.service.leaderboard,
		EventBus:    s.eb,
	}
	if s.infra.redis != nil {
		ac.Redis = s.infra.redis
		ac.PubsubPrefix = s.c.Redis.Prefix
	}

	api.New(ac)

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

func (s *Server) Start() {
	ctx := s.sweepCtx

	var eg errgroup.Group

	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	eg.Go(func() error {
		s.runSweeper(ctx)
		return nil
	})

	if err := eg.Wait(); err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

// runSweeper retires sessions past the retention window on a fixed cadence.
func (s *Server) runSweeper(ctx context.Context) {
	if s.c.Sweep.Interval <= 0 {
		return
	}

	t := time.NewTicker(s.c.Sweep.Interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := s.service.session.Sweep(ctx)
			if err != nil {
				slog.ErrorContext(ctx, "server: session sweep failed", "error", err)
				continue
			}
			if n > 0 {
				slog.InfoContext(ctx, "server: swept expired sessions", "count", n)
			}
		}
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.sweepCancel()

	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	s.eb.Stop()

	slog.InfoContext(ctx, "server: shutdown completed")
}
