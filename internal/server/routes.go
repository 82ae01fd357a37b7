package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/nfrund/scriptdesk/internal/middleware"
)

// RegisterRoutes sets up all the application routes.
func (s *Server) RegisterRoutes() {
	h := s.scriptHandler
	rateLimiter := middleware.RateLimiter(s.Cfg.GetRunRateLimit())

	s.E.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	})

	g := s.E.Group("/spark", middleware.Identity(middleware.IdentityConfigFrom(s.Cfg)))

	g.GET("/scripts", h.Scripts)
	g.GET("/dashboard", h.Dashboard)
	g.GET("/watch/:job_id", h.Watch)
	g.GET("/watch/:job_id/stream", h.WatchStream)

	// Mutating endpoints answer every method so non-POST requests get a
	// domain error instead of a 405.
	g.Any("/save", h.Save, middleware.RequirePost)
	g.Any("/run", h.Run, middleware.RequirePost, rateLimiter)
	g.Any("/stop", h.Stop, middleware.RequirePost)
	g.Any("/copy", h.Copy, middleware.RequirePost)
	g.Any("/delete", h.Delete, middleware.RequirePost)
	g.Any("/install_examples", h.InstallExamples)
}

