package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/nfrund/scriptdesk/internal/config"
	"github.com/nfrund/scriptdesk/internal/retry"
	"github.com/surrealdb/surrealdb.go"
)

const (
	healthInterval = 30 * time.Second
	healthTimeout  = 5 * time.Second
)

// Connection owns the SurrealDB session used by the script and document
// stores. A failed query on a dropped link redials before it is retried.
type Connection struct {
	cfg     config.Provider
	retryer *retry.ExponentialBackoffRetryer

	mu      sync.RWMutex
	db      *surrealdb.DB
	healthy bool
	closed  bool
	done    chan struct{}
}

// NewConnection creates an unconnected session for cfg.
func NewConnection(cfg config.Provider) *Connection {
	return &Connection{
		cfg:     cfg,
		retryer: retry.NewExponentialBackoffRetryer(retry.WithMaxRetries(3), retry.WithDelays(200*time.Millisecond, 5*time.Second)),
		done:    make(chan struct{}),
	}
}

// Connect dials, signs in and selects the configured namespace and database.
func (c *Connection) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return NewDBError(ErrNotConnected, "connection closed")
	}
	if c.db != nil {
		return nil
	}
	return c.dialLocked(ctx)
}

// WithConnection runs fn on the current session. When fn fails because the
// link dropped, the session is redialed and fn retried with backoff.
func (c *Connection) WithConnection(ctx context.Context, fn func(*surrealdb.DB) error) error {
	db := c.current()
	if db == nil {
		return NewDBError(ErrNotConnected, "database not connected")
	}

	err := fn(db)
	if err == nil || ctx.Err() != nil || !isConnectionError(err) {
		return err
	}

	slog.WarnContext(ctx, "Database link lost, redialing", "event", "db_reconnect_triggered",
		"db_url", redactDBURL(c.cfg.GetDBURL()), "error", err)

	return c.retryer.Retry(ctx, func() error {
		if err := c.redial(ctx); err != nil {
			return err
		}
		return fn(c.current())
	})
}

// StartMonitoring pings the server periodically until Close, redialing when
// a ping fails.
func (c *Connection) StartMonitoring() {
	go func() {
		ticker := time.NewTicker(healthInterval)
		defer ticker.Stop()
		for {
			select {
			case <-c.done:
				return
			case <-ticker.C:
				c.probe()
			}
		}
	}()
}

func (c *Connection) probe() {
	ctx, cancel := context.WithTimeout(context.Background(), healthTimeout)
	defer cancel()

	err := c.Ping(ctx)
	if err == nil {
		return
	}
	slog.WarnContext(ctx, "Database ping failed", "event", "db_health_check_failure", "error", err)
	if err := c.retryer.Retry(ctx, func() error { return c.redial(ctx) }); err != nil {
		slog.ErrorContext(ctx, "Database still unreachable", "event", "db_reconnect_failure", "error", err)
	}
}

// Close stops monitoring and closes the session. Calling it again is a no-op.
func (c *Connection) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.healthy = false
	close(c.done)

	if c.db == nil {
		return nil
	}
	err := c.db.Close(ctx)
	c.db = nil
	return err
}

// IsHealthy reports the outcome of the last dial or ping.
func (c *Connection) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.healthy
}

// Ping asks the server for its version.
func (c *Connection) Ping(ctx context.Context) error {
	db := c.current()
	if db == nil {
		c.setHealthy(false)
		return NewDBError(ErrNotConnected, "database not connected")
	}
	if _, err := db.Version(ctx); err != nil {
		c.setHealthy(false)
		return fmt.Errorf("ping %s: %w", redactDBURL(c.cfg.GetDBURL()), err)
	}
	c.setHealthy(true)
	return nil
}

// GetDBQueryTimeout bounds read queries.
func (c *Connection) GetDBQueryTimeout() time.Duration {
	return c.cfg.GetDBQueryTimeout()
}

// GetDBExecuteTimeout bounds writes.
func (c *Connection) GetDBExecuteTimeout() time.Duration {
	return c.cfg.GetDBExecuteTimeout()
}

func (c *Connection) current() *surrealdb.DB {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.db
}

func (c *Connection) setHealthy(v bool) {
	c.mu.Lock()
	c.healthy = v
	c.mu.Unlock()
}

func (c *Connection) redial(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return retry.Permanent(NewDBError(ErrNotConnected, "connection closed"))
	}
	if c.db != nil {
		_ = c.db.Close(ctx)
		c.db = nil
	}
	return c.dialLocked(ctx)
}

// dialLocked opens a new session. c.mu must be held.
func (c *Connection) dialLocked(ctx context.Context) error {
	target := redactDBURL(c.cfg.GetDBURL())

	db, err := surrealdb.FromEndpointURLString(ctx, c.cfg.GetDBURL())
	if err != nil {
		c.healthy = false
		slog.ErrorContext(ctx, "Failed to dial database", "event", "db_connect_failure", "db_url", target, "error", err)
		return fmt.Errorf("dial %s: %w", target, err)
	}

	if _, err := db.SignIn(ctx, &surrealdb.Auth{Username: c.cfg.GetDBUser(), Password: c.cfg.GetDBPass()}); err != nil {
		_ = db.Close(ctx)
		c.healthy = false
		slog.ErrorContext(ctx, "Database sign-in rejected", "event", "db_auth_failure", "user", c.cfg.GetDBUser(), "error", err)
		return fmt.Errorf("sign in to %s: %w", target, err)
	}

	if err := db.Use(ctx, c.cfg.GetDBNs(), c.cfg.GetDBDb()); err != nil {
		_ = db.Close(ctx)
		c.healthy = false
		slog.ErrorContext(ctx, "Failed to select namespace", "event", "db_namespace_failure",
			"namespace", c.cfg.GetDBNs(), "database", c.cfg.GetDBDb(), "error", err)
		return fmt.Errorf("use %s/%s: %w", c.cfg.GetDBNs(), c.cfg.GetDBDb(), err)
	}

	c.db = db
	c.healthy = true
	slog.DebugContext(ctx, "Database connected", "event", "db_connect_success",
		"db_url", target, "namespace", c.cfg.GetDBNs(), "database", c.cfg.GetDBDb())
	return nil
}

var connectionFailures = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"unexpected eof",
	"use of closed network connection",
}

// isConnectionError reports whether err looks like a dropped link rather
// than a rejected query. Deadlines count; the caller's own cancellation
// is checked separately.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range connectionFailures {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// redactDBURL hides any password in dbURL.
func redactDBURL(dbURL string) string {
	u, err := url.Parse(dbURL)
	if err != nil {
		return "invalid-url"
	}
	return u.Redacted()
}
