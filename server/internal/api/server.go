package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"cron-counter/server/internal/counter"
	"cron-counter/server/internal/events"
	"cron-counter/server/internal/metrics"
	"cron-counter/server/internal/pinger"
	"cron-counter/server/internal/runs"
)

// CronPath 是调度器调用的入口。
const CronPath = "/api/cron"

// Incrementer 执行一次计数递增。
type Incrementer interface {
	Increment(ctx context.Context) (counter.Result, error)
}

type Deps struct {
	// Secret 是 Authorization 头里 "Bearer " 之后必须出现的值。
	Secret  string
	Counter Incrementer
	Pinger  *pinger.Pinger
	Runs    runs.Store
	Hub     *events.Hub
	Metrics *metrics.Metrics
	Logger  *zap.SugaredLogger
	Now     func() time.Time
}

type Server struct {
	authHeader string
	counter    Incrementer
	pinger     *pinger.Pinger
	runs       runs.Store
	hub        *events.Hub
	metrics    *metrics.Metrics
	logger     *zap.SugaredLogger
	now        func() time.Time
	newRunID   func() string

	upgrader websocket.Upgrader
}

func NewServer(d Deps) *Server {
	s := &Server{
		authHeader: "Bearer " + d.Secret,
		counter:    d.Counter,
		pinger:     d.Pinger,
		runs:       d.Runs,
		hub:        d.Hub,
		metrics:    d.Metrics,
		logger:     d.Logger,
		now:        d.Now,
		newRunID:   uuid.NewString,
	}
	if s.runs == nil {
		s.runs = runs.NewInMemoryStore()
	}
	if s.logger == nil {
		s.logger = zap.NewNop().Sugar()
	}
	if s.hub == nil {
		s.hub = events.NewHub(s.logger)
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (s *Server) Routes() http.Handler {
	engine := gin.New()
	engine.Use(gin.Recovery(), s.accessLog())
	engine.GET("/", s.handleIndex)
	engine.HEAD("/", s.handleIndex)
	engine.GET("/healthz", s.handleHealthz)
	engine.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	authed := engine.Group("/api", s.requireSecret())
	authed.GET("/cron", s.handleCron)
	authed.GET("/runs/last", s.handleLastRun)
	authed.GET("/counter/events", s.handleEvents)
	return engine
}

// handleIndex 是自 ping 的目标，只证明实例在线。
func (s *Server) handleIndex(c *gin.Context) {
	if c.Request.Method == http.MethodHead {
		c.Status(http.StatusOK)
		return
	}
	c.String(http.StatusOK, "cron-counter\n")
}

// handleHealthz 返回服务健康状态。
func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type cronResponse struct {
	Success       bool   `json:"success"`
	PreviousCount int64  `json:"previousCount"`
	NewCount      int64  `json:"newCount"`
	Timestamp     string `json:"timestamp"`
	Message       string `json:"message"`
}

type errorResponse struct {
	Error     string `json:"error"`
	Details   string `json:"details"`
	Timestamp string `json:"timestamp"`
}

// handleCron 处理 /api/cron：读取计数、加一、写回，再尝试自 ping。
// 任何读写失败都统一返回 500，调用方只知道失败，不知道远端当前值。
func (s *Server) handleCron(c *gin.Context) {
	ctx := c.Request.Context()
	started := s.now()
	rec := &runs.Record{RunID: s.newRunID(), StartedAt: started.UTC()}
	logger := s.logger.With("run_id", rec.RunID)
	c.Header("X-Run-Id", rec.RunID)

	res, err := s.counter.Increment(ctx)
	if err != nil {
		rec.Outcome = outcomeOf(err)
		rec.Error = err.Error()
		s.finish(ctx, rec, started)
		logger.Errorw("cron job failed", "outcome", rec.Outcome, "error", err)

		c.JSON(http.StatusInternalServerError, errorResponse{
			Error:     "Internal server error",
			Details:   err.Error(),
			Timestamp: isoTimestamp(s.now()),
		})
		return
	}

	if res.Recovered {
		s.metrics.ParseRecoveries.Inc()
	}
	s.metrics.Value.Set(float64(res.NewCount))

	// 自 ping 失败不影响本次结果。
	if s.pinger != nil {
		rec.Pinged = s.pinger.Ping(ctx)
		if !rec.Pinged {
			s.metrics.PingFailures.Inc()
		}
	}

	rec.Outcome = runs.OutcomeSuccess
	rec.PreviousCount = res.PreviousCount
	rec.NewCount = res.NewCount
	rec.Recovered = res.Recovered
	rec.BaseSHA = res.PreviousSHA
	rec.CommitSHA = res.CommitSHA
	s.finish(ctx, rec, started)
	logger.Infow("counter updated", "previous", res.PreviousCount, "new", res.NewCount,
		"recovered", res.Recovered, "base_sha", res.PreviousSHA, "commit", res.CommitSHA, "pinged", rec.Pinged)

	c.JSON(http.StatusOK, cronResponse{
		Success:       true,
		PreviousCount: res.PreviousCount,
		NewCount:      res.NewCount,
		Timestamp:     isoTimestamp(s.now()),
		Message:       fmt.Sprintf("Counter updated from %d to %d", res.PreviousCount, res.NewCount),
	})
}

// finish 记录运行结果：指标、最近一次记录、推送给观察者。
func (s *Server) finish(ctx context.Context, rec *runs.Record, started time.Time) {
	elapsed := s.now().Sub(started)
	rec.Duration = elapsed.String()
	s.metrics.Runs.WithLabelValues(string(rec.Outcome)).Inc()
	s.metrics.RunDuration.Observe(elapsed.Seconds())

	if err := s.runs.Save(ctx, rec); err != nil {
		s.logger.Warnw("save run record failed", "run_id", rec.RunID, "error", err)
	}
	s.hub.Publish(rec)
}

type lastRunResponse struct {
	Run *runs.Record `json:"run"`
	Ago string       `json:"ago"`
}

// handleLastRun 返回最近一次运行记录。
func (s *Server) handleLastRun(c *gin.Context) {
	rec, err := s.runs.Last(c.Request.Context())
	if err != nil {
		if errors.Is(err, runs.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no run recorded"})
			return
		}
		s.logger.Errorw("load last run failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load last run failed"})
		return
	}
	c.JSON(http.StatusOK, lastRunResponse{Run: rec, Ago: humanize.Time(rec.StartedAt)})
}

// handleEvents 升级为 WebSocket，之后每次运行结果都会推送过来。
func (s *Server) handleEvents(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warnw("upgrade websocket failed", "error", err)
		return
	}
	s.hub.Serve(conn)
}

// requireSecret 比对 Authorization 头，不匹配时直接返回 401，不触碰上游。
func (s *Server) requireSecret() gin.HandlerFunc {
	want := []byte(s.authHeader)
	return func(c *gin.Context) {
		got := []byte(c.GetHeader("Authorization"))
		if subtle.ConstantTimeCompare(got, want) != 1 {
			if c.FullPath() == CronPath {
				s.metrics.Runs.WithLabelValues("unauthorized").Inc()
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Next()
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Infow("http",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"client_ip", c.ClientIP(),
		)
	}
}

func outcomeOf(err error) runs.Outcome {
	var upErr *counter.UpstreamError
	switch {
	case errors.As(err, &upErr) && upErr.Conflict():
		return runs.OutcomeConflict
	case errors.Is(err, counter.ErrFetch):
		return runs.OutcomeFetchError
	case errors.Is(err, counter.ErrWrite):
		return runs.OutcomeWriteError
	default:
		return runs.OutcomeError
	}
}

// isoTimestamp 输出毫秒精度的 UTC ISO-8601 时间，例如 2024-01-01T00:00:00.000Z。
func isoTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}
