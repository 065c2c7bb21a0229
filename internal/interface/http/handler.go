package http

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yanqian/weather-insight/internal/domain/analysis"
	"github.com/yanqian/weather-insight/internal/domain/insight"
	"github.com/yanqian/weather-insight/internal/domain/journal"
)

// Handler wires the HTTP transport to domain services.
type Handler struct {
	journalSvc  journal.Service
	insightSvc  insight.Service
	analysisSvc analysis.Service
	logger      *slog.Logger
}

// NewHandler constructs the root HTTP handler. analysisSvc may be nil when no LLM is configured.
func NewHandler(journalSvc journal.Service, insightSvc insight.Service, analysisSvc analysis.Service, logger *slog.Logger) *Handler {
	return &Handler{
		journalSvc:  journalSvc,
		insightSvc:  insightSvc,
		analysisSvc: analysisSvc,
		logger:      logger.With("component", "http.handler"),
	}
}

// LogSymptom records a new observation.
func (h *Handler) LogSymptom(c *gin.Context) {
	var req journal.LogRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", err.Error(), err))
		return
	}

	obs, err := h.journalSvc.Log(c.Request.Context(), req)
	if err != nil {
		abortWithError(c, domainError(err))
		return
	}
	c.JSON(http.StatusCreated, obs)
}

// ListSymptoms returns a subject's observations, optionally since an RFC 3339 instant.
func (h *Handler) ListSymptoms(c *gin.Context) {
	var since time.Time
	if raw := strings.TrimSpace(c.Query("since")); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", "since must be an RFC 3339 timestamp", err))
			return
		}
		since = parsed.UTC()
	}

	items, err := h.journalSvc.List(c.Request.Context(), c.Param("subject"), since)
	if err != nil {
		abortWithError(c, domainError(err))
		return
	}
	if items == nil {
		items = []insight.SymptomObservation{}
	}
	c.JSON(http.StatusOK, gin.H{"symptoms": items})
}

// DeleteSymptom soft deletes one observation.
func (h *Handler) DeleteSymptom(c *gin.Context) {
	if err := h.journalSvc.Delete(c.Request.Context(), c.Param("subject"), c.Param("id")); err != nil {
		abortWithError(c, domainError(err))
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) GetProfile(c *gin.Context) {
	profile, err := h.journalSvc.Profile(c.Request.Context(), c.Param("subject"))
	if err != nil {
		abortWithError(c, domainError(err))
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (h *Handler) UpdateProfile(c *gin.Context) {
	var req journal.ProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", err.Error(), err))
		return
	}

	profile, err := h.journalSvc.UpdateProfile(c.Request.Context(), c.Param("subject"), req)
	if err != nil {
		abortWithError(c, domainError(err))
		return
	}
	c.JSON(http.StatusOK, profile)
}

// Analyze serves the analysis endpoint the insight client calls.
func (h *Handler) Analyze(c *gin.Context) {
	if h.analysisSvc == nil {
		abortWithError(c, NewHTTPError(http.StatusServiceUnavailable, "unavailable", "analysis is not configured", nil))
		return
	}
	var req insight.AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", err.Error(), err))
		return
	}

	resp, err := h.analysisSvc.Analyze(c.Request.Context(), req)
	if err != nil {
		abortWithError(c, domainError(err))
		return
	}
	if claims, ok := callerClaims(c); ok {
		h.logger.Debug("analysis served", "caller", claims.Subject, "citations", len(resp.Citations))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
