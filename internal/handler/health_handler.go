package handler

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-attempt/internal/config"
	"github.com/stemsi/exstem-attempt/internal/response"
)

const healthTimeout = 2 * time.Second

// Pinger is a dependency that can report whether it is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// LiveCounter reports the number of attempts running in this process.
type LiveCounter interface {
	Live() int
}

// HealthHandler serves liveness and runtime statistics.
type HealthHandler struct {
	rdb       *redis.Client
	pg        Pinger
	attempts  LiveCounter
	startTime time.Time
	log       zerolog.Logger
}

// NewHealthHandler creates a new HealthHandler. pg may be nil when no
// component uses Postgres.
func NewHealthHandler(rdb *redis.Client, pg Pinger, attempts LiveCounter, log zerolog.Logger) *HealthHandler {
	return &HealthHandler{
		rdb:       rdb,
		pg:        pg,
		attempts:  attempts,
		startTime: time.Now(),
		log:       log.With().Str("component", "health_handler").Logger(),
	}
}

type healthStatus struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

type runtimeStats struct {
	Uptime       string `json:"uptime"`
	LiveAttempts int    `json:"live_attempts"`
	QueueDepth   int64  `json:"queue_deliveries"`
	Goroutines   int    `json:"goroutines"`
	HeapAlloc    uint64 `json:"heap_alloc"`
	NumGC        uint32 `json:"num_gc"`
	AppRSSBytes  uint64 `json:"app_rss_bytes"`
	GoVersion    string `json:"go_version"`
}

// Health godoc
// GET /health
// Pings Redis and, when configured, Postgres. Responds 503 if either is down.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	st := healthStatus{Status: "ok", Checks: map[string]string{}}
	check := func(name string, err error) {
		if err != nil {
			h.log.Warn().Err(err).Str("dependency", name).Msg("Health check failed")
			st.Status = "degraded"
			st.Checks[name] = err.Error()
			return
		}
		st.Checks[name] = "ok"
	}

	check("redis", h.rdb.Ping(ctx).Err())
	if h.pg != nil {
		check("postgres", h.pg.Ping(ctx))
	}

	code := http.StatusOK
	if st.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	response.Success(c, code, st)
}

// Stats godoc
// GET /stats
// Returns a point-in-time view of the process: live attempts, pending
// delivery records and Go runtime figures.
func (h *HealthHandler) Stats(c *gin.Context) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	s := runtimeStats{
		Uptime:       formatDuration(time.Since(h.startTime)),
		LiveAttempts: h.attempts.Live(),
		Goroutines:   runtime.NumGoroutine(),
		HeapAlloc:    ms.HeapAlloc,
		NumGC:        ms.NumGC,
		GoVersion:    runtime.Version(),
	}
	s.AppRSSBytes, _ = readProcessRSS()

	depth, err := h.rdb.LLen(c.Request.Context(), config.WorkerKey.PersistDeliveriesQueue).Result()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to read delivery queue depth")
	} else {
		s.QueueDepth = depth
	}

	response.Success(c, http.StatusOK, s)
}

// ---------- /proc Readers ----------

// readProcessRSS reads VmRSS from /proc/self/status.
func readProcessRSS() (uint64, error) {
	f, err := os.Open("/proc/self/status")
	if err != nil {
		return 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "VmRSS:") {
			return parseKB(line), nil
		}
	}
	return 0, fmt.Errorf("VmRSS not found")
}

// parseKB reads lines like "VmRSS:    16384 kB" and returns bytes.
func parseKB(line string) uint64 {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return 0
	}
	val, _ := strconv.ParseUint(fields[1], 10, 64)
	return val * 1024
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
