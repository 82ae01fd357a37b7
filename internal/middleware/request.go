package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/nfrund/scriptdesk/internal/domain"
	"github.com/nfrund/scriptdesk/internal/i18n"
)

// RequirePost rejects every method but POST with an invalid request error.
// Routes using it are registered for any method.
func RequirePost(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if c.Request().Method != http.MethodPost {
			return domain.Invalid("middleware.RequirePost", i18n.Sprintf(i18n.FromContext(c.Request().Context()), i18n.KeyPostRequired))
		}
		return next(c)
	}
}

// Locale negotiates the response language from Accept-Language and stores it
// in the request context.
func Locale(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		tag := i18n.Match(c.Request().Header.Get("Accept-Language"))
		c.SetRequest(c.Request().WithContext(i18n.WithLanguage(c.Request().Context(), tag)))
		c.Response().Header().Set("Content-Language", tag.String())
		return next(c)
	}
}
