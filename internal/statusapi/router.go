// Package statusapi implements the read-only Status API (spec §4.5): a
// tiny embeddable dashboard plus a JSON status feed. Grounded on the
// teacher's gin-based internal/server/router.go, pared down to exactly
// the two routes spec §4.5 names -- this surface intentionally does not
// grow the rest of the teacher's management API (start/stop/register),
// since the supervision core's only externally mutating surface is the
// Job Manager itself (via the interactive shell or an embedder), not HTTP.
package statusapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arcbound/taskmaster/internal/supervisor"
)

// StatusSource is the narrow view of *supervisor.Manager this package
// depends on.
type StatusSource interface {
	Status() []supervisor.StatusEntry
}

// Router serves the read-only status dashboard and JSON feed.
type Router struct {
	mgr StatusSource
}

// NewRouter builds a Router over mgr.
func NewRouter(mgr StatusSource) *Router {
	return &Router{mgr: mgr}
}

// Handler returns an http.Handler exposing exactly GET / and
// GET /api/status; every other path is a plain 404 (spec §4.5).
func (r *Router) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	g := gin.New()
	g.Use(gin.Recovery())
	g.GET("/", r.handleDashboard)
	g.GET("/api/status", r.handleStatus)
	g.NoRoute(func(c *gin.Context) { c.Status(http.StatusNotFound) })
	return g
}

// NewServer builds a standalone HTTP server for addr serving Handler(). It
// does not start listening; the caller runs ListenAndServe.
func NewServer(addr string, mgr StatusSource) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           NewRouter(mgr).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

func (r *Router) handleStatus(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.mgr.Status())
}

func (r *Router) handleDashboard(c *gin.Context) {
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(http.StatusOK)
	_, _ = c.Writer.Write([]byte(dashboardHTML))
}

func writeJSON(c *gin.Context, code int, v any) {
	c.Header("Content-Type", "application/json")
	c.Status(code)
	_ = json.NewEncoder(c.Writer).Encode(v)
}
