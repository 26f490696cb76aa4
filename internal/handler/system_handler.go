package handler

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/quizroom/internal/config"
	"github.com/stemsi/quizroom/internal/response"
)

const healthTimeout = 2 * time.Second

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ConnCounter reports the number of live play connections.
type ConnCounter interface {
	Len() int
}

// SystemHandler reports process health and runtime figures.
type SystemHandler struct {
	db        Pinger
	rdb       *redis.Client
	conns     ConnCounter
	startTime time.Time
	log       zerolog.Logger
}

// NewSystemHandler creates a SystemHandler. db and rdb may be nil when the
// corresponding backend is not configured.
func NewSystemHandler(db Pinger, rdb *redis.Client, conns ConnCounter, log zerolog.Logger) *SystemHandler {
	return &SystemHandler{
		db:        db,
		rdb:       rdb,
		conns:     conns,
		startTime: time.Now(),
		log:       log.With().Str("component", "system_handler").Logger(),
	}
}

type healthReport struct {
	Status      string            `json:"status"`
	Uptime      string            `json:"uptime"`
	Checks      map[string]string `json:"checks"`
	Connections int               `json:"connections"`
	Goroutines  int               `json:"goroutines"`
	ResultQueue int64             `json:"result_queue"`
	GoVersion   string            `json:"go_version"`
}

// Health godoc
// GET /health
// 200 when every configured backend answers, 503 otherwise.
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	report := healthReport{
		Status:      "ok",
		Uptime:      formatDuration(time.Since(h.startTime)),
		Checks:      map[string]string{},
		Connections: h.conns.Len(),
		Goroutines:  runtime.NumGoroutine(),
		GoVersion:   runtime.Version(),
	}

	if h.db != nil {
		report.Checks["postgres"] = h.check(ctx, "postgres", h.db.Ping)
	}
	if h.rdb != nil {
		report.Checks["redis"] = h.check(ctx, "redis", func(ctx context.Context) error {
			return h.rdb.Ping(ctx).Err()
		})
		report.ResultQueue, _ = h.rdb.LLen(ctx, config.WorkerKey.PersistResultsQueue).Result()
	}

	status := http.StatusOK
	for _, v := range report.Checks {
		if v != "ok" {
			report.Status = "degraded"
			status = http.StatusServiceUnavailable
		}
	}
	response.Success(c, status, report)
}

func (h *SystemHandler) check(ctx context.Context, name string, ping func(context.Context) error) string {
	if err := ping(ctx); err != nil {
		h.log.Warn().Err(err).Str("backend", name).Msg("Health check failed")
		return "down"
	}
	return "ok"
}

func formatDuration(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	return fmt.Sprintf("%dm %ds", minutes, seconds)
}
