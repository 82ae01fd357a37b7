package server

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/nfrund/scriptdesk/internal/config"
	"github.com/nfrund/scriptdesk/internal/domain"
	"github.com/nfrund/scriptdesk/internal/handlers"
	"github.com/nfrund/scriptdesk/internal/middleware"
)

// Server holds the dependencies for the HTTP server.
type Server struct {
	E             *echo.Echo
	Cfg           config.Provider
	scriptHandler *handlers.ScriptHandler
}

// New creates a new Server serving lc.
func New(cfg config.Provider, lc handlers.Lifecycle) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handlers.NewValidator()
	setupErrorHandling(e)

	e.Use(echomw.RequestID())
	e.Use(middleware.Logger)
	e.Use(echomw.Recover())

	// Configure and use session middleware
	store := sessions.NewCookieStore([]byte(cfg.GetSessionSecret()))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7, // 7 days
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	e.Use(session.Middleware(store))
	e.Use(middleware.Locale)

	s := &Server{
		E:             e,
		Cfg:           cfg,
		scriptHandler: handlers.NewScriptHandler(lc, cfg.GetWatchStreamInterval()),
	}
	s.RegisterRoutes()
	return s
}

// setupErrorHandling installs the JSON error handler. Errors that are neither
// domain nor HTTP errors are logged with a stack trace.
func setupErrorHandling(e *echo.Echo) {
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		var he *echo.HTTPError
		if domain.KindOf(err) == nil && !errors.As(err, &he) {
			slog.ErrorContext(c.Request().Context(), "Internal Server Error (Unhandled)",
				"error", err.Error(),
				"path", c.Request().URL.Path,
				"stack_trace", string(debug.Stack()),
			)
		}
		handlers.HTTPErrorHandler(err, c)
	}
}
