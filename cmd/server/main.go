package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/quizroom/internal/config"
	"github.com/stemsi/quizroom/internal/database"
	"github.com/stemsi/quizroom/internal/game"
	"github.com/stemsi/quizroom/internal/handler"
	"github.com/stemsi/quizroom/internal/logger"
	"github.com/stemsi/quizroom/internal/metrics"
	"github.com/stemsi/quizroom/internal/middleware"
	"github.com/stemsi/quizroom/internal/model"
	"github.com/stemsi/quizroom/internal/repository"
	"github.com/stemsi/quizroom/internal/repository/memstore"
	"github.com/stemsi/quizroom/internal/router"
	"github.com/stemsi/quizroom/internal/service"
	"github.com/stemsi/quizroom/internal/validator"
	"github.com/stemsi/quizroom/internal/worker"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout = 5 * time.Second

	demoRoomCode  = "DEMO"
	demoQuestions = 5
)

// backend is the storage selected by STORE_DRIVER.
type backend struct {
	rooms     game.RoomStore
	sessions  game.SessionStore
	questions service.QuestionLister
	active    service.ActiveRoomLister
	pool      *pgxpool.Pool
	rdb       *redis.Client
}

func (b *backend) close() {
	if b.rdb != nil {
		_ = b.rdb.Close()
	}
	if b.pool != nil {
		b.pool.Close()
	}
}

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("store", cfg.StoreDriver).
		Str("log_level", cfg.LogLevel).
		Msg("Starting quizroom")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ─── Connect Storage ───────────────────────────────────────────────
	b, err := openBackend(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open storage")
	}
	defer b.close()

	// ─── Metrics ───────────────────────────────────────────────────────
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg)
	questionService := service.NewQuestionService(b.questions, b.rdb, cfg.QuestionCacheTTL, log)

	deps := game.Deps{
		Rooms:     b.rooms,
		Sessions:  b.sessions,
		Questions: questionService,
		Active:    b.active,
		Policy:    game.PolicyByName(cfg.Game.ScoringPolicy, cfg.Game.TimeBonusMax),
		Metrics:   m,
	}
	var lobbySub handler.LobbySubscriber
	if b.rdb != nil {
		lobbyService := service.NewLobbyService(b.rdb)
		deps.Lobby = lobbyService
		deps.Locker = service.NewSettlementLock(b.rdb, cfg.SettlementLockTTL, log)
		deps.Results = service.NewResultQueue(b.rdb)
		lobbySub = lobbyService
	}
	engine := game.NewEngine(deps, cfg.Game, log)

	// ─── Prewarm Redis Caches ─────────────────────────────────────────
	// Load the questions of every unfinished room before accepting traffic.
	if b.rdb != nil {
		if err := questionService.PrewarmActiveRooms(ctx, b.active); err != nil {
			log.Warn().Err(err).Msg("Cache prewarm failed")
		}
	}

	// ─── Initialize Handlers ──────────────────────────────────────────
	apiLimiter := middleware.NewRateLimiter(cfg.APIRateLimit, time.Minute)
	wsLimiter := middleware.NewRateLimiter(cfg.WSEventRate, time.Second)

	var dbPinger handler.Pinger
	if b.pool != nil {
		dbPinger = b.pool
	}
	handlers := &router.Handlers{
		WS:     handler.NewWSHandler(engine, wsLimiter, log, cfg.AllowedOrigins),
		Room:   handler.NewRoomHandler(engine, questionService, log),
		Lobby:  handler.NewLobbyHandler(lobbySub, log),
		System: handler.NewSystemHandler(dbPinger, b.rdb, engine.Conns(), log),
	}

	r := router.SetupRouter(authService, handlers, &router.Limiters{API: apiLimiter}, reg, cfg, log)
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Run ───────────────────────────────────────────────────────────
	// The engine and workers outlive the HTTP server so in-flight requests
	// can finish against them during shutdown.
	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		engine.Run(bgCtx)
		return nil
	})
	g.Go(func() error {
		apiLimiter.RunCleanup(bgCtx)
		return nil
	})
	g.Go(func() error {
		wsLimiter.RunCleanup(bgCtx)
		return nil
	})
	if b.pool != nil && b.rdb != nil {
		resultWorker := worker.NewResultWorker(b.pool, b.rdb, log)
		g.Go(func() error {
			resultWorker.Start(bgCtx)
			return nil
		})
	}

	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down gracefully...")

		// 1. Stop accepting new HTTP requests.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown error")
		}

		// 2. Stop the engine and let the workers drain.
		bgCancel()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server error")
		os.Exit(1)
	}
	log.Info().Msg("Shutdown complete")
}

func openBackend(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*backend, error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		log.Warn().Msg("Using in-memory store: state is lost on restart and Redis features are disabled")
		store := memstore.New()
		seedDemoRoom(store, log)
		return &backend{rooms: store, sessions: store, questions: store, active: store}, nil
	}

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		pool.Close()
		return nil, err
	}

	rooms := repository.NewRoomRepository(pool)
	return &backend{
		rooms:     rooms,
		sessions:  repository.NewSessionRepository(pool),
		questions: repository.NewQuestionRepository(pool),
		active:    rooms,
		pool:      pool,
		rdb:       rdb,
	}, nil
}

// seedDemoRoom gives a fresh in-memory store one playable room.
func seedDemoRoom(store *memstore.Store, log zerolog.Logger) {
	options, _ := json.Marshal([]string{"A", "B", "C", "D"})
	ids := make([]uuid.UUID, 0, demoQuestions)
	for i := range demoQuestions {
		q := model.Question{
			ID:            uuid.New(),
			QuestionText:  fmt.Sprintf("Demo question %d", i+1),
			Options:       options,
			CorrectOption: "A",
			ScoreValue:    10,
		}
		store.PutQuestion(q)
		ids = append(ids, q.ID)
	}
	store.CreateRoom(&model.Room{
		Code:            demoRoomCode,
		Title:           "Demo Quiz",
		Capacity:        4,
		QuestionIDs:     ids,
		TimePerQuestion: 20,
		TotalTime:       5,
	})
	log.Info().Str("room_code", demoRoomCode).Int("questions", demoQuestions).Msg("Demo room seeded")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
