package apihandlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"tagforge/internal/models"
	"tagforge/internal/pipeline"
	"tagforge/internal/rules"
	"tagforge/internal/store"
)

// Analyzer runs the tag pipeline for one repository.
type Analyzer interface {
	Run(ctx context.Context, owner, repo string) pipeline.AnalysisReport
}

// Pinger reports backing store health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators behind the HTTP API. Jobs and JobClient are
// optional; without them asynchronous analyses are rejected.
type Deps struct {
	Analyzer  Analyzer
	Reports   store.ReportStore
	Jobs      store.JobStore
	JobClient store.JobClient
	Health    Pinger
	Rules     rules.Options
}

type APIHandler struct {
	deps Deps
}

func NewAPIHandler(deps Deps) *APIHandler {
	return &APIHandler{deps: deps}
}

// Register mounts every route on router.
func (h *APIHandler) Register(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	{
		analyses := v1.Group("/analyses")
		{
			analyses.POST("", h.CreateAnalysisHandler)
			analyses.GET("", h.ListAnalysesHandler)
			analyses.GET("/:id", h.GetAnalysisHandler)
		}
		v1.GET("/repos/:owner/:repo/tags", h.RepoTagsHandler)
		v1.GET("/jobs/:id", h.GetJobHandler)
		v1.POST("/rules", h.RulesHandler)
	}
	router.GET("/health", h.HealthHandler)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// AnalysisRequest is the body of POST /api/v1/analyses.
type AnalysisRequest struct {
	Owner string `json:"owner"`
	Repo  string `json:"repo"`
	Async bool   `json:"async"`
}

// CreateAnalysisHandler runs an analysis inline, or queues it when async is set.
func (h *APIHandler) CreateAnalysisHandler(c *gin.Context) {
	var req AnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	req.Owner, req.Repo = strings.TrimSpace(req.Owner), strings.TrimSpace(req.Repo)
	if req.Owner == "" || req.Repo == "" {
		BadRequest(c, "missing required fields: owner and repo")
		return
	}

	if req.Async {
		h.enqueueAnalysis(c, req)
		return
	}

	report, ok := h.runAndStore(c, req.Owner, req.Repo)
	if !ok {
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": report})
}

// RepoTagsHandler runs an analysis and answers with the final tags only.
func (h *APIHandler) RepoTagsHandler(c *gin.Context) {
	report, ok := h.runAndStore(c, c.Param("owner"), c.Param("repo"))
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": report.FinalTags, "id": report.ID})
}

// runAndStore runs the pipeline and persists the report. It writes the error
// response itself and reports whether the caller should continue.
func (h *APIHandler) runAndStore(c *gin.Context, owner, repo string) (pipeline.AnalysisReport, bool) {
	report := h.deps.Analyzer.Run(c.Request.Context(), owner, repo)

	if h.deps.Reports != nil {
		stored, err := report.Stored()
		if err == nil {
			err = h.deps.Reports.SaveReport(c.Request.Context(), &stored)
		}
		if err != nil {
			log.Errorf("Failed to store report %s for %s/%s: %v", report.ID, owner, repo, err)
		}
	}

	if !report.Success {
		if strings.Contains(strings.ToLower(report.Error), "not found") {
			NotFound(c, report.Error)
		} else {
			JSONError(c, http.StatusInternalServerError, "analysis_failed",
				fmt.Sprintf("analysis failed at %s: %s", report.FailedAtStep, report.Error))
		}
		return report, false
	}
	return report, true
}

func (h *APIHandler) enqueueAnalysis(c *gin.Context, req AnalysisRequest) {
	if h.deps.JobClient == nil {
		JSONError(c, http.StatusServiceUnavailable, "unavailable", "background jobs are not configured")
		return
	}
	info, err := h.deps.JobClient.EnqueueAnalysis(c.Request.Context(), req.Owner, req.Repo)
	if err != nil {
		if errors.Is(err, models.ErrInvalidArgument) {
			BadRequest(c, err.Error())
			return
		}
		Internal(c, fmt.Sprintf("failed to enqueue analysis: %v", err))
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"data": gin.H{
		"job_id": info.ID,
		"queue":  info.Queue,
		"status": models.JobStatusEnqueued,
	}})
}

// ListAnalysesHandler lists stored reports, newest first.
func (h *APIHandler) ListAnalysesHandler(c *gin.Context) {
	filter, err := parseReportFilter(c)
	if err != nil {
		BadRequest(c, "Invalid query parameters: "+err.Error())
		return
	}
	reports, err := h.deps.Reports.ListReports(c.Request.Context(), filter)
	if err != nil {
		Internal(c, fmt.Sprintf("failed to list analyses: %v", err))
		return
	}
	if reports == nil {
		reports = []*models.StoredReport{}
	}
	c.JSON(http.StatusOK, gin.H{"items": reports})
}

func parseReportFilter(c *gin.Context) (store.ReportFilter, error) {
	f := store.ReportFilter{
		Owner: c.Query("owner"),
		Repo:  c.Query("repo"),
		Limit: 20,
	}
	if l := c.Query("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed <= 0 {
			return f, fmt.Errorf("invalid limit: %s", l)
		}
		f.Limit = parsed
	}
	if o := c.Query("offset"); o != "" {
		parsed, err := strconv.Atoi(o)
		if err != nil || parsed < 0 {
			return f, fmt.Errorf("invalid offset: %s", o)
		}
		f.Offset = parsed
	}
	return f, nil
}

// GetAnalysisHandler returns the full stored report.
func (h *APIHandler) GetAnalysisHandler(c *gin.Context) {
	id, err := parseIDParam(c)
	if err != nil {
		BadRequest(c, err.Error())
		return
	}
	stored, err := h.deps.Reports.GetReport(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			NotFound(c, fmt.Sprintf("Analysis not found with ID: %s", id))
			return
		}
		Internal(c, fmt.Sprintf("failed to retrieve analysis: %v", err))
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", wrapData(stored.Report))
}

// wrapData puts an already encoded JSON document under "data".
func wrapData(body []byte) []byte {
	out := make([]byte, 0, len(body)+10)
	out = append(out, `{"data":`...)
	out = append(out, body...)
	return append(out, '}')
}

// GetJobHandler returns a background job record.
func (h *APIHandler) GetJobHandler(c *gin.Context) {
	if h.deps.Jobs == nil {
		JSONError(c, http.StatusServiceUnavailable, "unavailable", "background jobs are not configured")
		return
	}
	id, err := parseIDParam(c)
	if err != nil {
		BadRequest(c, err.Error())
		return
	}
	job, err := h.deps.Jobs.GetJob(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			NotFound(c, fmt.Sprintf("Job not found with ID: %s", id))
			return
		}
		Internal(c, fmt.Sprintf("failed to retrieve job: %v", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": job})
}

// RulesRequest is the body of POST /api/v1/rules. Tags may hold non-string
// values; those are dropped and counted.
type RulesRequest struct {
	Tags []any `json:"tags"`
}

// RulesHandler runs the rule filter on the given tags.
func (h *APIHandler) RulesHandler(c *gin.Context) {
	var req RulesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": h.deps.Rules.FilterValues(req.Tags)})
}

func (h *APIHandler) HealthHandler(c *gin.Context) {
	if h.deps.Health != nil {
		if err := h.deps.Health.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func parseIDParam(c *gin.Context) (uuid.UUID, error) {
	idStr := c.Param("id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		return uuid.Nil, fmt.Errorf("Invalid ID format: %s", idStr)
	}
	return id, nil
}
