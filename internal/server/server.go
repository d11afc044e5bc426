// Package server exposes the watch daemon's state over a small JSON API for
// dashboards and mosque displays.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/smokyabdulrahman/prayer-notifier/internal/countdown"
	"github.com/smokyabdulrahman/prayer-notifier/internal/notify"
	"github.com/smokyabdulrahman/prayer-notifier/internal/store"
)

const (
	defaultEventLimit = 20
	maxEventLimit     = 64
	maxOffsetDays     = 30
	shutdownTimeout   = 5 * time.Second
)

// Engine is the part of countdown.Engine the API reads.
type Engine interface {
	Snapshot() countdown.Display
	Recent(n int) []notify.Event
	AdvanceDate(offset int)
}

// Schedules reports the loaded schedules.
type Schedules interface {
	Snapshot() store.Snapshot
}

// Health reports whether the last notification succeeded.
type Health interface {
	Active() bool
}

// AudioStopper is implemented by a Health that can silence a playing Adhan.
type AudioStopper interface {
	StopAudio() error
}

// Config holds static values shown by /api/status.
type Config struct {
	Addr    string
	Version string
	Ledger  string
}

// Server serves the status API.
type Server struct {
	cfg     Config
	engine  Engine
	sched   Schedules
	health  Health
	log     logrus.FieldLogger
	started time.Time
	router  *gin.Engine
}

// New builds the router. health may be nil.
func New(cfg Config, e Engine, s Schedules, h Health, log logrus.FieldLogger) *Server {
	srv := &Server{
		cfg:     cfg,
		engine:  e,
		sched:   s,
		health:  h,
		log:     log,
		started: time.Now(),
	}

	r := gin.New()
	r.Use(gin.Recovery(), srv.requestLogger())
	r.Use(cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool { return true },
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:   []string{"Content-Length"},
	}))

	api := r.Group("/api")
	api.GET("/period", srv.getPeriod)
	api.GET("/events", srv.listEvents)
	api.GET("/status", srv.getStatus)
	api.POST("/schedule/advance", srv.advanceDate)
	api.POST("/audio/stop", srv.stopAudio)

	srv.router = r
	return srv
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	hs := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.WithField("addr", s.cfg.Addr).Info("Status API listening")
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return hs.Shutdown(shutdownCtx)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start),
		}).Debug("HTTP request")
	}
}

// GET /api/period
func (s *Server) getPeriod(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Snapshot())
}

// GET /api/events?limit=N
func (s *Server) listEvents(c *gin.Context) {
	limit := defaultEventLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxEventLimit {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 64"})
			return
		}
		limit = n
	}
	c.JSON(http.StatusOK, gin.H{"events": s.engine.Recent(limit)})
}

type scheduleStatus struct {
	Location string `json:"location,omitempty"`
	Today    string `json:"today,omitempty"`
	Tomorrow string `json:"tomorrow,omitempty"`
	Timezone string `json:"timezone,omitempty"`
	Version  uint64 `json:"version"`
	Error    string `json:"error,omitempty"`
}

type statusResponse struct {
	Version       string         `json:"version"`
	Uptime        string         `json:"uptime"`
	Notifications bool           `json:"notifications_active"`
	Ledger        string         `json:"ledger"`
	Schedule      scheduleStatus `json:"schedule"`
}

// GET /api/status
func (s *Server) getStatus(c *gin.Context) {
	snap := s.sched.Snapshot()
	st := scheduleStatus{Version: snap.Version}
	if snap.HasKey {
		st.Location = snap.Key.String()
	}
	if snap.Today != nil {
		st.Today = snap.Today.DateString()
		st.Timezone = snap.Today.Location().String()
	}
	if snap.Tomorrow != nil {
		st.Tomorrow = snap.Tomorrow.DateString()
	}
	if snap.Err != nil {
		st.Error = snap.Err.Error()
	}

	active := true
	if s.health != nil {
		active = s.health.Active()
	}

	c.JSON(http.StatusOK, statusResponse{
		Version:       s.cfg.Version,
		Uptime:        time.Since(s.started).Round(time.Second).String(),
		Notifications: active,
		Ledger:        s.cfg.Ledger,
		Schedule:      st,
	})
}

type advanceRequest struct {
	Offset *int `json:"offset" binding:"required"`
}

// POST /api/schedule/advance
func (s *Server) advanceDate(c *gin.Context) {
	var req advanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if *req.Offset < -maxOffsetDays || *req.Offset > maxOffsetDays {
		c.JSON(http.StatusBadRequest, gin.H{"error": "offset must be within 30 days"})
		return
	}

	s.engine.AdvanceDate(*req.Offset)
	c.JSON(http.StatusAccepted, gin.H{"offset": *req.Offset})
}

// POST /api/audio/stop
func (s *Server) stopAudio(c *gin.Context) {
	stopper, ok := s.health.(AudioStopper)
	if !ok {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "no audio player configured"})
		return
	}
	if err := stopper.StopAudio(); err != nil {
		s.log.WithError(err).Warn("Stopping audio failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}
