package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

// RateLimiter creates a rate limiter middleware allowing limit requests per
// second per client, with bursts of up to limit requests.
func RateLimiter(limit int) echo.MiddlewareFunc {
	if limit <= 0 {
		limit = 10
	}
	config := middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStore(rate.Limit(limit)),

		// Signed-in callers are limited per user, everyone else per IP.
		IdentifierExtractor: func(c echo.Context) (string, error) {
			if u := UserFrom(c); u != nil {
				return "user:" + u.Username, nil
			}
			return c.RealIP(), nil
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return c.JSON(http.StatusTooManyRequests, map[string]string{
				"code":    "RATE_LIMITED",
				"message": "Too many requests. Please try again later.",
			})
		},
	}
	return middleware.RateLimiterWithConfig(config)
}
