package middleware

import (
	"net/http"
	"slices"
	"strings"

	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	"github.com/nfrund/scriptdesk/internal/config"
	"github.com/nfrund/scriptdesk/internal/domain"
	"github.com/nfrund/scriptdesk/internal/logging"
)

// UserContextKey is the echo context key holding the resolved *domain.User.
const UserContextKey = "user"

// SessionName is the name of the identity session cookie.
const SessionName = "scriptdesk_session"

const (
	sessionUsername = "username"
	sessionGroups   = "groups"
)

// IdentityConfig controls how callers are identified.
type IdentityConfig struct {
	// UserHeader is set by a trusted authenticating proxy.
	UserHeader string
	// GroupsHeader carries the comma separated groups of the user.
	GroupsHeader string
	Superusers   []string
}

// IdentityConfigFrom reads the identity settings from cfg.
func IdentityConfigFrom(cfg config.Provider) IdentityConfig {
	return IdentityConfig{
		UserHeader:   cfg.GetAuthUserHeader(),
		GroupsHeader: cfg.GetAuthGroupsHeader(),
		Superusers:   cfg.GetSuperusers(),
	}
}

// Identity resolves the caller from the proxy headers or, failing that, the
// session. Header identities are written to the session so later requests
// without the headers stay signed in. Anonymous requests get a 401.
//
// It must run after session.Middleware; without a session store only the
// headers are consulted.
func Identity(ic IdentityConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			log := logging.FromContext(c.Request().Context())
			sess, sessErr := session.Get(SessionName, c)

			var user *domain.User
			if name := strings.TrimSpace(c.Request().Header.Get(ic.UserHeader)); ic.UserHeader != "" && name != "" {
				user = &domain.User{Username: name, Groups: splitGroups(c.Request().Header.Get(ic.GroupsHeader))}
				if sessErr == nil {
					sess.Values[sessionUsername] = user.Username
					sess.Values[sessionGroups] = strings.Join(user.Groups, ",")
					if err := sess.Save(c.Request(), c.Response()); err != nil {
						log.WarnContext(c.Request().Context(), "Failed to save identity session", "event", "session_save_failed", "error", err)
					}
				}
			} else if sessErr == nil {
				if name, _ := sess.Values[sessionUsername].(string); name != "" {
					groups, _ := sess.Values[sessionGroups].(string)
					user = &domain.User{Username: name, Groups: splitGroups(groups)}
				}
			}

			if user == nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}
			user.Superuser = slices.Contains(ic.Superusers, user.Username)

			c.Set(UserContextKey, user)
			c.SetRequest(c.Request().WithContext(logging.WithLogger(c.Request().Context(), log.With("user", user.Username))))
			return next(c)
		}
	}
}

// UserFrom returns the user resolved by Identity, or nil.
func UserFrom(c echo.Context) *domain.User {
	u, _ := c.Get(UserContextKey).(*domain.User)
	return u
}

func splitGroups(s string) []string {
	var out []string
	for _, g := range strings.Split(s, ",") {
		if g = strings.TrimSpace(g); g != "" {
			out = append(out, g)
		}
	}
	return out
}
