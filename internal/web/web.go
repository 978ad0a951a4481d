package web

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"universe/internal/config"
	"universe/internal/events"
	appLog "universe/internal/log"
)

// EventsService is what the HTTP layer needs from the events cache.
type EventsService interface {
	GetEvents(ctx context.Context) (events.Payload, error)
	FetchAndCache(ctx context.Context) (events.Payload, error)
	Status(ctx context.Context) events.Status
}

// Server exposes the events cache over HTTP.
type Server struct {
	cfg    *config.Config
	events EventsService
	engine *gin.Engine
	now    func() time.Time
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, svc EventsService) *Server {
	s := &Server{
		cfg:    cfg,
		events: svc,
		engine: gin.New(),
		now:    time.Now,
	}
	s.engine.Use(AccessLog(), Recovery())
	s.engine.NoRoute(notFound)
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) registerRoutes() {
	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/events", s.handleEvents)
	s.engine.GET("/events.ics", s.handleEventsICS)
	s.engine.GET("/events/status", s.handleStatus)

	admin := s.engine.Group("/admin")
	if s.basicAuthEnabled() {
		admin.Use(s.basicAuthMiddleware())
	}
	admin.POST("/refresh", s.handleRefresh)

	if s.cfg.Metrics.Enabled {
		s.engine.GET(s.cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

// handleEvents proxies today's upstream payload verbatim.
//
// GET /events
func (s *Server) handleEvents(c *gin.Context) {
	payload, err := s.events.GetEvents(c.Request.Context())
	if err != nil {
		appLog.Error("error in /events route", err)
		writeError(c, http.StatusInternalServerError, "Failed to retrieve events.", err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", payload)
}

// handleEventsICS renders the cached payload as an iCalendar feed.
//
// GET /events.ics?category=career&upcoming=1
//   - category: keep events whose category name contains this text
//   - upcoming: drop events that already started (default 0)
func (s *Server) handleEventsICS(c *gin.Context) {
	payload, err := s.events.GetEvents(c.Request.Context())
	if err != nil {
		appLog.Error("error in /events.ics route", err)
		writeError(c, http.StatusInternalServerError, "Failed to retrieve events.", err)
		return
	}

	doc, n, err := events.ICS(payload, events.ICSOptions{
		Name:         "UniVerse Campus Events",
		Category:     c.Query("category"),
		UpcomingOnly: parseBool(c.Query("upcoming")),
		Now:          s.now(),
	})
	if err != nil {
		writeError(c, http.StatusInternalServerError, "Failed to convert events.", err)
		return
	}

	c.Header("X-Event-Count", strconv.Itoa(n))
	c.Data(http.StatusOK, "text/calendar; charset=utf-8", []byte(doc))
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.events.Status(c.Request.Context()))
}

// handleRefresh forces an upstream fetch regardless of freshness.
//
// POST /admin/refresh
func (s *Server) handleRefresh(c *gin.Context) {
	if _, err := s.events.FetchAndCache(c.Request.Context()); err != nil {
		appLog.Error("forced refresh failed", err)
		writeError(c, http.StatusInternalServerError, "Failed to refresh events.", err)
		return
	}
	c.JSON(http.StatusOK, s.events.Status(c.Request.Context()))
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	return s.cfg != nil && s.cfg.BasicAuth != nil &&
		s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

func (s *Server) basicAuthMiddleware() gin.HandlerFunc {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return func(c *gin.Context) {
		u, p, ok := c.Request.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			c.Header("WWW-Authenticate", `Basic realm="UniVerse", charset="UTF-8"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{Message: "Unauthorized"})
			return
		}
		c.Next()
	}
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

func writeError(c *gin.Context, status int, msg string, err error) {
	body := errorBody{Message: msg}
	if err != nil {
		body.Error = err.Error()
	}
	c.JSON(status, body)
}

func notFound(c *gin.Context) {
	writeError(c, http.StatusNotFound, "route "+c.Request.URL.Path+" not found", nil)
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
