package syncstatus

import (
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/Ramsey-B/moss/internal/tracing"
	"github.com/Ramsey-B/moss/pkg/state"
	moss "github.com/Ramsey-B/moss/pkg/sync"
	"github.com/labstack/echo/v4"
)

// Register registers the sync status routes
func Register(g *echo.Group) {
	g.GET("/status", Status)
	g.POST("/trigger", Trigger)
}

// StatusResponse describes the current checkpoint and runner state
type StatusResponse struct {
	RunState      string     `json:"run_state"`
	RunNumber     int        `json:"run_number"`
	ModifiedAfter *time.Time `json:"modified_after,omitempty"`
	RunnerActive  bool       `json:"runner_active"`
}

// Status handles GET /sync/status
func Status(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "SyncHandler.Status")
	defer span.End()

	ctx, st, err := ectoinject.GetContext[*state.State](ctx)
	if err != nil {
		return err
	}
	ctx, runner, err := ectoinject.GetContext[*moss.Runner](ctx)
	if err != nil {
		return err
	}

	runState, err := st.GetRunState(ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to read checkpoint")
	}
	runNumber, err := st.GetRunNumber(ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to read checkpoint")
	}
	modifiedAfter, err := st.GetModifiedAfter(ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to read checkpoint")
	}

	resp := &StatusResponse{
		RunState:     string(runState),
		RunNumber:    runNumber,
		RunnerActive: runner.IsRunning(),
	}
	if !modifiedAfter.IsZero() {
		resp.ModifiedAfter = &modifiedAfter
	}

	return c.JSON(http.StatusOK, resp)
}

// Trigger handles POST /sync/trigger, requesting an immediate cycle
func Trigger(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "SyncHandler.Trigger")
	defer span.End()

	_, runner, err := ectoinject.GetContext[*moss.Runner](ctx)
	if err != nil {
		return err
	}

	if !runner.Trigger() {
		return httperror.NewHTTPError(http.StatusConflict, "runner is stopped or a trigger is already pending")
	}

	return c.JSON(http.StatusAccepted, map[string]string{"status": "triggered"})
}
