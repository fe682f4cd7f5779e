// Package web provides an HTTP status server for the fridge-monitor daemon.
package web

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/sweeney/fridge-monitor/internal/logger"
	"github.com/sweeney/fridge-monitor/internal/status"
	"github.com/sweeney/fridge-monitor/internal/store"
)

// EventLister returns stored alarm events, newest first.
type EventLister interface {
	Events(limit int) ([]store.AlarmEvent, error)
}

// Commander accepts alarm-disable commands.
type Commander interface {
	HandleCommand(payload string) bool
}

const defaultEventLimit = 50

// Server serves the status page over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	events     EventLister
	commands   Commander
	log        *logger.Logger
}

// Option configures optional endpoints.
type Option func(*Server)

// WithEvents serves /events.json from l.
func WithEvents(l EventLister) Option {
	return func(s *Server) { s.events = l }
}

// WithCommands accepts POST /alarm_disable and forwards the body to c.
func WithCommands(c Commander) Option {
	return func(s *Server) { s.commands = c }
}

// New creates a Server that reads state from the given tracker.
func New(addr string, tracker *status.Tracker, log *logger.Logger, opts ...Option) *Server {
	s := &Server{tracker: tracker, log: log}
	for _, o := range opts {
		o(s)
	}
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.routes(),
	}
	return s
}

func (s *Server) routes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/", s.handleIndex)
	router.GET("/index.html", s.handleIndex)
	router.GET("/index.json", s.handleJSON)
	router.GET("/health", s.handleHealth)
	if s.events != nil {
		router.GET("/events.json", s.handleEvents)
	}
	if s.commands != nil {
		router.POST("/alarm_disable", s.handleAlarmDisable)
	}
	return router
}

// Handler returns the HTTP handler. Useful for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(c *gin.Context) {
	var buf bytes.Buffer
	if err := renderHTML(&buf, s.tracker.Snapshot()); err != nil {
		s.log.Errorw("render status page", "err", err)
		c.String(http.StatusInternalServerError, "render failed")
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

func (s *Server) handleJSON(c *gin.Context) {
	c.Data(http.StatusOK, "application/json", status.FormatJSON(s.tracker.Snapshot()))
}

func (s *Server) handleHealth(c *gin.Context) {
	snap := s.tracker.Snapshot()
	c.JSON(http.StatusOK, gin.H{"ok": true, "mqtt_connected": snap.MQTTConnected})
}

func (s *Server) handleEvents(c *gin.Context) {
	limit := defaultEventLimit
	if q := c.Query("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	events, err := s.events.Events(limit)
	if err != nil {
		s.log.Errorw("list alarm events", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list events"})
		return
	}
	if events == nil {
		events = []store.AlarmEvent{}
	}
	c.JSON(http.StatusOK, gin.H{"count": len(events), "events": events})
}

func (s *Server) handleAlarmDisable(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}
	if !s.commands.HandleCommand(string(body)) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "payload must be ON or OFF"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"ok": true})
}
