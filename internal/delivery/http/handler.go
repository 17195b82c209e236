package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	"github.com/tirewatch/backend/internal/domain"
	"github.com/tirewatch/backend/internal/infrastructure/collector"
	"github.com/tirewatch/backend/internal/infrastructure/export"
)

const version = "1.0.0"

// ComparisonUsecase is what the handlers need from the comparison service
type ComparisonUsecase interface {
	Compare(ctx context.Context, request *domain.CompareRequest) (*domain.ComparisonResult, error)
	ListSnapshots(ctx context.Context, limit int) ([]domain.SnapshotInfo, error)
	GetSnapshot(ctx context.Context, id string) (*domain.Snapshot, error)
	LatestSnapshot(ctx context.Context) (*domain.Snapshot, error)
	RulesVersion() string
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	comparison ComparisonUsecase
}

// NewHandler creates a new HTTP handler
func NewHandler(comparison ComparisonUsecase) *Handler {
	return &Handler{comparison: comparison}
}

// ExtractRequest is the body of POST /fragments/extract
type ExtractRequest struct {
	Source    domain.Source            `json:"source" binding:"required"`
	HTML      string                   `json:"html" binding:"required"`
	Selectors *collector.SiteSelectors `json:"selectors,omitempty"`
}

// HealthCheck returns the health status of the API
func (h *Handler) HealthCheck(c *gin.Context) {
	resp := gin.H{
		"status":  "healthy",
		"service": "tirewatch-backend",
		"version": version,
	}
	if h.comparison != nil {
		resp["rulesVersion"] = h.comparison.RulesVersion()
	}
	c.JSON(http.StatusOK, resp)
}

// Compare runs one comparison
func (h *Handler) Compare(c *gin.Context) {
	if h.comparison == nil {
		notConfigured(c)
		return
	}

	var req domain.CompareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid request body: %v", err)})
		return
	}

	result, err := h.comparison.Compare(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	log.WithFields(log.Fields{
		"rows":     len(result.Rows),
		"sources":  len(result.Sources),
		"source":   result.Source,
		"snapshot": result.SnapshotID,
	}).Info("comparison served")

	c.JSON(http.StatusOK, result)
}

// ExtractFragments turns a posted result page into raw fragments
func (h *Handler) ExtractFragments(c *gin.Context) {
	var req ExtractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid request body: %v", err)})
		return
	}

	var sel collector.SiteSelectors
	if req.Selectors != nil {
		sel = *req.Selectors
	} else {
		var err error
		if sel, err = collector.SelectorsFor(req.Source); err != nil {
			respondError(c, err)
			return
		}
	}

	fragments, err := collector.Extract(strings.NewReader(req.HTML), req.Source, sel)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"source": req.Source, "fragments": fragments})
}

// ListSnapshots lists saved snapshots, newest first
func (h *Handler) ListSnapshots(c *gin.Context) {
	if h.comparison == nil {
		notConfigured(c)
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	infos, err := h.comparison.ListSnapshots(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"snapshots": infos})
}

// LatestSnapshot returns the newest snapshot
func (h *Handler) LatestSnapshot(c *gin.Context) {
	h.serveSnapshot(c, "latest")
}

// GetSnapshot returns one snapshot by id
func (h *Handler) GetSnapshot(c *gin.Context) {
	h.serveSnapshot(c, c.Param("id"))
}

// SnapshotCSV downloads a snapshot's rows as CSV
func (h *Handler) SnapshotCSV(c *gin.Context) {
	h.serveSnapshotCSV(c, c.Param("id"))
}

// LatestSnapshotCSV downloads the newest snapshot's rows as CSV
func (h *Handler) LatestSnapshotCSV(c *gin.Context) {
	h.serveSnapshotCSV(c, "latest")
}

func (h *Handler) serveSnapshotCSV(c *gin.Context, id string) {
	if h.comparison == nil {
		notConfigured(c)
		return
	}

	snap, err := h.loadSnapshot(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteCSV(&buf, snap.Rows, snap.Sources); err != nil {
		respondError(c, err)
		return
	}

	filename := fmt.Sprintf("tire_prices_%s.csv", snap.TakenOn)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

func (h *Handler) serveSnapshot(c *gin.Context, id string) {
	if h.comparison == nil {
		notConfigured(c)
		return
	}

	snap, err := h.loadSnapshot(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *Handler) loadSnapshot(ctx context.Context, id string) (*domain.Snapshot, error) {
	if id == "latest" {
		return h.comparison.LatestSnapshot(ctx)
	}
	return h.comparison.GetSnapshot(ctx, id)
}

func notConfigured(c *gin.Context) {
	c.JSON(http.StatusServiceUnavailable, gin.H{"error": "comparison service not configured"})
}

// respondError maps domain errors to status codes
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrSnapshotNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrCatalogFailure):
		status = http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}

	entry := log.WithError(err).WithField("path", c.FullPath())
	if status >= http.StatusInternalServerError {
		entry.Error("request failed")
	} else {
		entry.Warn("request rejected")
	}

	c.JSON(status, gin.H{"error": err.Error()})
}
