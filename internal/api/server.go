// Package api serves the pollerd control surface over HTTP
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ahmed-com/poller"
	"github.com/ahmed-com/poller/history"
	"github.com/ahmed-com/poller/manager"
	"github.com/ahmed-com/poller/metrics"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 1000
)

// Server exposes the manager's pollers and their history
type Server struct {
	mgr    *manager.Manager
	store  history.Store // nil when history is disabled
	stats  metrics.MetricsCollector
	log    *zap.Logger
	engine *gin.Engine
	srv    *http.Server
	now    func() time.Time
}

func New(mgr *manager.Manager, store history.Store, stats metrics.MetricsCollector, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if stats == nil {
		stats = metrics.NewNoOpMetrics()
	}
	s := &Server{
		mgr:   mgr,
		store: store,
		stats: stats,
		log:   log.Named("api"),
		now:   time.Now,
	}

	engine := gin.New()
	engine.Use(s.recovery(), s.logger())
	engine.GET("/api/hello", s.hello)
	engine.GET("/metrics", s.metrics)

	pollers := engine.Group("/pollers")
	pollers.GET("", s.list)
	pollers.GET("/:name", s.get)
	pollers.POST("/:name/pause", s.pause)
	pollers.POST("/:name/resume", s.resume)
	pollers.POST("/:name/stop", s.stop)
	pollers.GET("/:name/history", s.history)

	s.engine = engine
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start listens on addr in the background. Listen errors other than a clean
// shutdown are delivered on the returned channel.
func (s *Server) Start(addr string) <-chan error {
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Control API listening", zap.String("addr", addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, err any) {
		s.log.Error("Handler panicked", zap.Any("err", err), zap.String("uri", c.Request.RequestURI))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	})
}

func (s *Server) logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := s.now()
		c.Next()
		s.log.Debug("Request served",
			zap.String("method", c.Request.Method),
			zap.String("uri", c.Request.RequestURI),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", s.now().Sub(start)),
		)
	}
}

func (s *Server) hello(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"msg":  "Hello from pollerd",
		"time": s.now().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	})
}

var stopReasons = []poller.StopReason{
	poller.StopManual,
	poller.StopWindowElapsed,
	poller.StopForced,
	poller.StopRetriesExhausted,
}

type pollerStats struct {
	Success int64            `json:"success"`
	Failure int64            `json:"failure"`
	Stops   map[string]int64 `json:"stops"`
}

func (s *Server) metrics(c *gin.Context) {
	perPoller := make(map[string]pollerStats)
	for _, info := range s.mgr.Snapshot() {
		ps := pollerStats{
			Success: s.stats.GetTicks(info.Name, "success"),
			Failure: s.stats.GetTicks(info.Name, "failure"),
			Stops:   make(map[string]int64, len(stopReasons)),
		}
		for _, reason := range stopReasons {
			ps.Stops[string(reason)] = s.stats.GetStops(info.Name, string(reason))
		}
		perPoller[info.Name] = ps
	}
	c.JSON(http.StatusOK, gin.H{
		"pollers_running": s.stats.GetPollersRunning(),
		"pollers_paused":  s.stats.GetPollersPaused(),
		"pollers":         perPoller,
	})
}

func (s *Server) list(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"pollers": s.mgr.Snapshot()})
}

func (s *Server) get(c *gin.Context) {
	info, err := s.mgr.Get(c.Param("name"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) pause(c *gin.Context) {
	s.control(c, s.mgr.Pause)
}

func (s *Server) resume(c *gin.Context) {
	s.control(c, s.mgr.Resume)
}

func (s *Server) stop(c *gin.Context) {
	s.control(c, s.mgr.Stop)
}

// control applies op to the named poller and answers with its new state
func (s *Server) control(c *gin.Context, op func(string) error) {
	name := c.Param("name")
	if err := op(name); err != nil {
		s.fail(c, err)
		return
	}
	info, err := s.mgr.Get(name)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.log.Info("Poller control", zap.String("poller", name), zap.String("path", c.FullPath()), zap.String("status", string(info.Status)))
	c.JSON(http.StatusOK, info)
}

func (s *Server) history(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "history is disabled"})
		return
	}
	info, err := s.mgr.Get(c.Param("name"))
	if err != nil {
		s.fail(c, err)
		return
	}

	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	events, err := s.store.List(c.Request.Context(), info.ID, limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	if events == nil {
		events = []*history.Event{}
	}
	c.JSON(http.StatusOK, gin.H{"poller": info.Name, "events": events})
}

func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, manager.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, manager.ErrShutdown):
		status = http.StatusServiceUnavailable
	case errors.Is(err, poller.ErrInvalidTimeRange):
		status = http.StatusUnprocessableEntity
	}
	if status == http.StatusInternalServerError {
		s.log.Error("Request failed", zap.String("uri", c.Request.RequestURI), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
