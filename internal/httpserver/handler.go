package httpserver

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/albapepper/matchpipe/internal/config"
	"github.com/albapepper/matchpipe/internal/diagnose"
	"github.com/albapepper/matchpipe/internal/httpserver/respond"
	"github.com/albapepper/matchpipe/internal/writeauth"
)

// handler holds shared dependencies for all diagnose-server endpoints.
// Grounded on internal/api/handler.Handler — no service layer, queries
// run directly against pgxpool.
type handler struct {
	pool *pgxpool.Pool
}

func newHandler(pool *pgxpool.Pool) *handler {
	return &handler{pool: pool}
}

// @Summary Diagnose-server root info
// @Description Returns server name, version, and status.
// @Tags meta
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router / [get]
func (h *handler) root(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, http.StatusOK, map[string]interface{}{
		"name":    "matchpipe diagnose-server",
		"version": "1.0.0",
		"status":  "running",
		"docs":    "/docs",
	})
}

// @Summary Process health check
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health [get]
func (h *handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// @Summary Database health check
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health/db [get]
func (h *handler) healthCheckDB(w http.ResponseWriter, r *http.Request) {
	var n int
	if err := h.pool.QueryRow(r.Context(), "health_check").Scan(&n); err != nil {
		respond.JSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":   "unhealthy",
			"database": "disconnected",
		})
		return
	}
	respond.JSON(w, http.StatusOK, map[string]interface{}{
		"status":   "healthy",
		"database": "connected",
	})
}

// @Summary Pipeline data quality health check
// @Description Runs the §4.I health check: registry coverage, duplicate groups, null metadata, stats mismatches, staging backlog, orphan rate, and write-protection status.
// @Tags diagnose
// @Produce json
// @Success 200 {object} diagnose.HealthReport
// @Router /api/v1/diagnose/health-check [get]
func (h *handler) pipelineHealthCheck(w http.ResponseWriter, r *http.Request) {
	report, err := diagnose.HealthCheck(r.Context(), h.pool, writeauth.IsProtectionEnabled)
	if err != nil {
		respond.Error(w, http.StatusInternalServerError, "HEALTH_CHECK_FAILED", err.Error())
		return
	}
	respond.JSON(w, http.StatusOK, report)
}

// @Summary Staging backlog status
// @Tags diagnose
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/diagnose/staging-status [get]
func (h *handler) stagingStatus(w http.ResponseWriter, r *http.Request) {
	var pending, rejected int
	if err := h.pool.QueryRow(r.Context(), `SELECT count(*) FROM `+config.StagingGamesTable+` WHERE processed_at IS NULL`).Scan(&pending); err != nil {
		respond.Error(w, http.StatusInternalServerError, "STAGING_STATUS_FAILED", err.Error())
		return
	}
	if err := h.pool.QueryRow(r.Context(), `SELECT count(*) FROM `+config.StagingRejectedTable).Scan(&rejected); err != nil {
		respond.Error(w, http.StatusInternalServerError, "STAGING_STATUS_FAILED", err.Error())
		return
	}
	respond.JSON(w, http.StatusOK, map[string]interface{}{
		"pending_count":       pending,
		"rejected_total":      rejected,
	})
}

// @Summary Team lineage lookup by ID
// @Tags diagnose
// @Produce json
// @Param teamID path int true "Production team ID"
// @Success 200 {object} diagnose.TeamReport
// @Failure 404 {object} respond.ErrorResponse
// @Router /api/v1/diagnose/team/{teamID} [get]
func (h *handler) teamByID(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "teamID"), 10, 64)
	if err != nil {
		respond.Error(w, http.StatusBadRequest, "INVALID_TEAM_ID", "teamID must be an integer")
		return
	}
	report, err := diagnose.LookupTeam(r.Context(), h.pool, id)
	if err != nil {
		respond.Error(w, http.StatusNotFound, "TEAM_NOT_FOUND", err.Error())
		return
	}
	respond.JSON(w, http.StatusOK, report)
}

// @Summary Team lineage lookup by name
// @Tags diagnose
// @Produce json
// @Param name query string true "Display or canonical team name"
// @Success 200 {object} diagnose.TeamReport
// @Failure 404 {object} respond.ErrorResponse
// @Router /api/v1/diagnose/team [get]
func (h *handler) teamByName(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		respond.Error(w, http.StatusBadRequest, "MISSING_NAME", "name query parameter is required")
		return
	}
	report, err := diagnose.LookupTeamByName(r.Context(), h.pool, name)
	if err != nil {
		respond.Error(w, http.StatusNotFound, "TEAM_NOT_FOUND", err.Error())
		return
	}
	respond.JSON(w, http.StatusOK, report)
}
