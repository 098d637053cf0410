package server

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"backend-playerroutes/internal/auth"
	"backend-playerroutes/internal/config"
	"backend-playerroutes/internal/storage"
	"backend-playerroutes/internal/stream"
	"backend-playerroutes/internal/tiles"
	"backend-playerroutes/internal/tracking"
	"backend-playerroutes/internal/world"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Server struct {
	App       *fiber.App
	Cfg       config.Config
	Log       *zap.Logger
	DB        *pgxpool.Pool
	Redis     *redis.Client
	World     *world.Registry
	Loop      *world.Loop
	Tracker   *tracking.Tracker
	Tiles     *tiles.Scheduler
	TilePaths tiles.Paths
	Store     storage.Store
	Stream    *stream.Hub

	cancel context.CancelFunc
	timers sync.WaitGroup
}

func NewServer(cfg config.Config, log *zap.Logger, db *pgxpool.Pool, redisClient *redis.Client) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	s := &Server{
		App:       app,
		Cfg:       cfg,
		Log:       log,
		DB:        db,
		Redis:     redisClient,
		World:     world.NewRegistry(),
		TilePaths: tiles.NewPaths(cfg.JSONDir),
	}
	s.Store = openStore(cfg, log, db)

	renderer := tiles.NewPNGRenderer(s.TilePaths, world.Terrain{})
	s.Tiles = tiles.NewScheduler(renderer, tiles.CenterFunc(s.centers), tiles.Options{
		HighPerCycle:  cfg.TileHighPerCycle,
		LowPerCycle:   cfg.TileLowPerCycle,
		InnerRadius:   cfg.TileInnerRadius,
		OuterRadius:   cfg.TileOuterRadius,
		Interval:      time.Duration(cfg.TileRenderIntervalMs) * time.Millisecond,
		RenderTimeout: time.Duration(cfg.TileRenderTimeoutMs) * time.Millisecond,
	}, log.Named("tiles"))

	s.Stream = stream.NewHub(stream.Options{
		Token:      cfg.WSToken,
		Sessions:   stream.SessionSourceFunc(func() []tracking.Session { return s.Tracker.ActiveSessions() }),
		Clock:      s.World,
		Tiles:      s.Tiles,
		Commands:   s.World,
		Redis:      redisClient,
		Log:        log.Named("stream"),
		SendBuffer: cfg.WSSendBuffer,
	})

	var store tracking.Store
	if s.Store != nil {
		store = s.Store
	}
	s.Tracker = tracking.NewTracker(tracking.Options{
		SampleIntervalMs:    cfg.SampleIntervalMs,
		MinMoveBlocks:       cfg.MinMoveBlocks,
		MaxIdleIntervalMs:   cfg.MaxIdleIntervalMs,
		MaxPointsPerSession: cfg.MaxPointsPerSession,
	}, store, s.Stream, s.Tiles, s.World, log.Named("tracking"))
	s.Loop = world.NewLoop(s.World, s.Tracker, log.Named("world"))

	registerRoutes(s)
	return s
}

// openStore picks the configured provider. Failure leaves tracking running
// without persistence.
func openStore(cfg config.Config, log *zap.Logger, db *pgxpool.Pool) storage.Store {
	if cfg.StorageProvider == "postgres" {
		if db == nil {
			log.Warn("postgres storage requested without a connection, falling back to json")
		} else {
			pg := storage.NewPostgresStore(db)
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := pg.EnsureSchema(ctx); err != nil {
				log.Error("failed to prepare session table", zap.Error(err))
				return nil
			}
			return pg
		}
	}

	fs, err := storage.NewFileStore(filepath.Join(cfg.JSONDir, "sessions"), log.Named("storage"))
	if err != nil {
		log.Error("session storage unavailable", zap.Error(err))
		return nil
	}
	return fs
}

func (s *Server) centers() []tiles.Key {
	entities := s.World.Entities()
	keys := make([]tiles.Key, 0, len(entities))
	for _, e := range entities {
		if _, ok := s.Tracker.ActiveSession(e.ID); ok {
			keys = append(keys, tiles.KeyAt(e.Region, e.X, e.Z))
		}
	}
	return keys
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"storage": s.Store != nil,
			"clients": s.Stream.ClientCount(),
		})
	})

	s.App.Get("/metrics", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"tiles":    s.Tiles.Stats(),
			"stream":   s.Stream.Stats(),
			"sessions": len(s.Tracker.ActiveSummaries()),
		})
	})

	tokenMiddleware := auth.Middleware(s.Cfg.WSToken)

	tracking.RegisterRoutes(s.App.Group("/tracking"), s.Tracker, tokenMiddleware)
	if s.Store != nil {
		storage.RegisterRoutes(s.App.Group("/storage"), s.Store, tokenMiddleware)
	}
	tiles.RegisterRoutes(s.App.Group("/tiles"), s.Tiles, s.TilePaths, tokenMiddleware)
	world.RegisterRoutes(s.App.Group("/world"), s.World, tokenMiddleware)
	stream.RegisterRoutes(s.App, s.Stream)
}

// Start runs crash recovery and the startup tile scan, then starts the tick
// and render timers.
func (s *Server) Start(ctx context.Context) {
	if n, err := s.Tracker.Recover(ctx); err != nil {
		s.Log.Error("session recovery failed", zap.Error(err))
	} else if n > 0 {
		s.Log.Info("recovered stale sessions", zap.Int("count", n))
	}
	if _, err := s.Tiles.LoadExisting(s.TilePaths); err != nil {
		s.Log.Warn("tile scan failed", zap.Error(err))
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.timers.Add(2)
	go func() {
		defer s.timers.Done()
		s.Loop.Run(ctx)
	}()
	go func() {
		defer s.timers.Done()
		s.Tiles.Run(ctx)
	}()
}

// StopTimers stops the tick and render timers and waits for the current step.
func (s *Server) StopTimers() {
	if s.cancel != nil {
		s.cancel()
	}
	s.timers.Wait()
}

// Shutdown stops the timers, ends every session while the hub is still up,
// closes websocket clients, then the HTTP listener and the store.
func (s *Server) Shutdown(ctx context.Context) error {
	s.StopTimers()
	s.Tracker.Shutdown(ctx)
	s.Stream.Close()

	var errs []error
	if err := shutdownApp(s.App, ctx); err != nil {
		errs = append(errs, err)
	}
	if s.Store != nil {
		if err := s.Store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var shutdownApp = func(app *fiber.App, ctx context.Context) error {
	return app.ShutdownWithContext(ctx)
}
