package script

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// capture collects log lines and emitted files from a running script.
type capture struct {
	mu     sync.Mutex
	name   string
	logs   []string
	files  []File
	logger *slog.Logger
}

func newCapture(name string) *capture {
	return &capture{name: name, logger: slog.Default()}
}

func (c *capture) log(msg string) {
	c.mu.Lock()
	c.logs = append(c.logs, msg)
	c.mu.Unlock()
	c.logger.Debug("Script log", "event", "script_log", "script", c.name, "message", msg)
}

func (c *capture) emit(name, content string) {
	c.mu.Lock()
	c.files = append(c.files, File{Name: name, Content: content})
	c.mu.Unlock()
}

func (c *capture) snapshot() ([]string, []File) {
	c.mu.Lock()
	defer c.mu.Unlock()
	logs := append([]string{}, c.logs...)
	files := append([]File{}, c.files...)
	return logs, files
}

// failure builds the ScriptError for a run that ended with err.
func (c *capture) failure(ctx context.Context, err error) *ScriptError {
	var se *ScriptError
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		se = NewScriptError(ErrorTypeTimeout, c.name, "script execution timed out", ctx.Err())
	case errors.Is(ctx.Err(), context.Canceled):
		se = NewScriptError(ErrorTypeCanceled, c.name, "script execution canceled", ctx.Err())
	default:
		se = NewScriptError(ErrorTypeExecution, c.name, "script execution failed", err)
	}
	se.Logs, _ = c.snapshot()
	return se
}
