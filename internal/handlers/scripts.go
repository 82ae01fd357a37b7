package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/labstack/echo/v4"
	"github.com/nfrund/scriptdesk/internal/domain"
	"github.com/nfrund/scriptdesk/internal/i18n"
	"github.com/nfrund/scriptdesk/internal/lifecycle"
	"github.com/nfrund/scriptdesk/internal/middleware"
)

// Lifecycle is the set of script operations the HTTP surface exposes.
type Lifecycle interface {
	Save(ctx context.Context, user *domain.User, attrs domain.ScriptAttrs) (*domain.Script, error)
	Run(ctx context.Context, user *domain.User, attrs domain.ScriptAttrs, params map[string]string) (*lifecycle.RunResult, error)
	Stop(ctx context.Context, user *domain.User, scriptID string) (*lifecycle.Snapshot, error)
	Watch(ctx context.Context, user *domain.User, jobID string) (*lifecycle.Snapshot, error)
	Copy(ctx context.Context, user *domain.User, id string) (*domain.Script, error)
	Delete(ctx context.Context, user *domain.User, ids []string) *lifecycle.DeleteReport
	List(ctx context.Context, user *domain.User, designOnly bool) ([]*domain.Script, error)
	Dashboard(ctx context.Context, user *domain.User) ([]lifecycle.DashboardJob, error)
}

var _ Lifecycle = (*lifecycle.Coordinator)(nil)

// ScriptHandler handles the script and job endpoints.
type ScriptHandler struct {
	lc             Lifecycle
	streamInterval time.Duration
}

// NewScriptHandler creates a new ScriptHandler. streamInterval is the polling
// period of the watch stream.
func NewScriptHandler(lc Lifecycle, streamInterval time.Duration) *ScriptHandler {
	if streamInterval <= 0 {
		streamInterval = 2 * time.Second
	}
	return &ScriptHandler{lc: lc, streamInterval: streamInterval}
}

func currentUser(c echo.Context) (*domain.User, error) {
	user := middleware.UserFrom(c)
	if user == nil {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
	}
	return user, nil
}

func bindForm(c echo.Context, dst interface{}) error {
	if err := c.Bind(dst); err != nil {
		return domain.NewError(domain.ErrInvalidRequest, "handlers.bind", "invalid request format", err)
	}
	if err := c.Validate(dst); err != nil {
		return domain.NewError(domain.ErrInvalidRequest, "handlers.validate", err.Error(), err)
	}
	return nil
}

// scriptAttrs binds the save/run form into a partial update.
func scriptAttrs(c echo.Context) (*ScriptForm, domain.ScriptAttrs, error) {
	var form ScriptForm
	if err := bindForm(c, &form); err != nil {
		return nil, domain.ScriptAttrs{}, err
	}
	present, err := c.FormParams()
	if err != nil {
		return nil, domain.ScriptAttrs{}, domain.NewError(domain.ErrInvalidRequest, "handlers.scriptAttrs", "invalid request format", err)
	}
	attrs, err := form.Attrs(present)
	return &form, attrs, err
}

// Scripts lists the caller's scripts. design=false includes submitted ones.
func (h *ScriptHandler) Scripts(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}

	designOnly := true
	if v := c.QueryParam("design"); v != "" {
		if designOnly, err = strconv.ParseBool(v); err != nil {
			return domain.Invalid("handlers.Scripts", "design must be a boolean")
		}
	}

	scripts, err := h.lc.List(c.Request().Context(), user, designOnly)
	if err != nil {
		return err
	}
	out := make([]*ScriptResponse, 0, len(scripts))
	for _, s := range scripts {
		out = append(out, NewScriptResponse(s, true))
	}
	return c.JSON(http.StatusOK, out)
}

// Dashboard lists the caller's jobs.
func (h *ScriptHandler) Dashboard(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	jobs, err := h.lc.Dashboard(c.Request().Context(), user)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, jobs)
}

// Save stores a draft.
func (h *ScriptHandler) Save(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	_, attrs, err := scriptAttrs(c)
	if err != nil {
		return err
	}

	s, err := h.lc.Save(c.Request().Context(), user, attrs)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, IDResponse{ID: s.ID})
}

// Run stores the script and submits it.
func (h *ScriptHandler) Run(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	form, attrs, err := scriptAttrs(c)
	if err != nil {
		return err
	}
	vars, err := form.Variables()
	if err != nil {
		return err
	}

	res, err := h.lc.Run(c.Request().Context(), user, attrs, vars)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

// Stop kills the script's current job.
func (h *ScriptHandler) Stop(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	var form IDForm
	if err := bindForm(c, &form); err != nil {
		return err
	}

	snap, err := h.lc.Stop(c.Request().Context(), user, form.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, snap)
}

// Watch returns the current snapshot of a job.
func (h *ScriptHandler) Watch(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	snap, err := h.lc.Watch(c.Request().Context(), user, c.Param("job_id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, snap)
}

// WatchStream upgrades to a websocket and pushes a snapshot every
// streamInterval until the job reaches a terminal state.
func (h *ScriptHandler) WatchStream(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	logger := middleware.FromContext(ctx)
	jobID := c.Param("job_id")

	// The first read happens before the upgrade so failures get a normal response.
	snap, err := h.lc.Watch(ctx, user, jobID)
	if err != nil {
		return err
	}

	conn, err := websocket.Accept(c.Response(), c.Request(), nil)
	if err != nil {
		logger.WarnContext(ctx, "Failed to upgrade watch stream", "event", "watch_stream_upgrade_failed", "error", err)
		return nil
	}
	defer conn.CloseNow()
	ctx = conn.CloseRead(ctx)

	ticker := time.NewTicker(h.streamInterval)
	defer ticker.Stop()

	for {
		if err := wsjson.Write(ctx, conn, snap); err != nil {
			logger.DebugContext(ctx, "Watch stream closed", "event", "watch_stream_closed", "job_id", jobID, "error", err)
			return nil
		}
		if snap.Terminal() {
			return conn.Close(websocket.StatusNormalClosure, string(snap.Workflow.Status))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if snap, err = h.lc.Watch(ctx, user, jobID); err != nil {
			logger.WarnContext(ctx, "Watch stream refresh failed", "event", "watch_stream_failed", "job_id", jobID, "error", err)
			return conn.Close(websocket.StatusInternalError, domain.UserMessage(err))
		}
	}
}

// Copy duplicates a script.
func (h *ScriptHandler) Copy(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	var form IDForm
	if err := bindForm(c, &form); err != nil {
		return err
	}

	cp, err := h.lc.Copy(c.Request().Context(), user, form.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, NewScriptResponse(cp, false))
}

// Delete removes scripts. Per-id failures are only reported with detail=true.
func (h *ScriptHandler) Delete(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	var form DeleteForm
	if err := bindForm(c, &form); err != nil {
		return err
	}

	report := h.lc.Delete(c.Request().Context(), user, form.SplitIDs())
	if !form.WantDetail() {
		report.Results = nil
	}
	return c.JSON(http.StatusOK, report)
}

// InstallExamples reports success for POST requests. It answers every method
// with a status body rather than an error.
func (h *ScriptHandler) InstallExamples(c echo.Context) error {
	if c.Request().Method != http.MethodPost {
		return c.JSON(http.StatusOK, InstallResult{
			Status:  -1,
			Message: i18n.Sprintf(i18n.FromContext(c.Request().Context()), i18n.KeyPostRequired),
		})
	}
	return c.JSON(http.StatusOK, InstallResult{Status: 0, Message: ""})
}
