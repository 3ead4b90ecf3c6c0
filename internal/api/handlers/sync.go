package handlers

import (
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"

	"pricesync/internal/logger"
	"pricesync/internal/models"
	"pricesync/internal/runlog"
	"pricesync/internal/sync"
)

var dayPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

type SyncHandler struct {
	orchestrator *sync.Orchestrator
	runs         *runlog.Store
	logger       *logger.Logger
}

func NewSyncHandler(orchestrator *sync.Orchestrator, runs *runlog.Store, logger *logger.Logger) *SyncHandler {
	return &SyncHandler{
		orchestrator: orchestrator,
		runs:         runs,
		logger:       logger,
	}
}

type syncRequest struct {
	Policy     *models.PolicyOverrides `json:"policy"`
	ProductIDs []string                `json:"product_ids"`
}

// Preview returns projected price changes without touching the storefront.
func (h *SyncHandler) Preview(c *gin.Context) {
	var request syncRequest
	if err := bindOptionalJSON(c, &request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.orchestrator.Preview(c.Request.Context(), request.Policy)
	if err != nil {
		h.logger.Error("Preview failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to preview price sync"})
		return
	}

	c.JSON(http.StatusOK, result)
}

// Execute runs the full price sync. Partial failures still produce a 200
// with the structured result; only a total catalog failure is an error.
func (h *SyncHandler) Execute(c *gin.Context) {
	var request syncRequest
	if err := bindOptionalJSON(c, &request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.orchestrator.Execute(c.Request.Context(), request.Policy, request.ProductIDs)
	if err != nil {
		h.logger.Error("Execute failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to execute price sync"})
		return
	}

	c.JSON(http.StatusOK, result)
}

// SyncProduct reprices a single product.
func (h *SyncHandler) SyncProduct(c *gin.Context) {
	var request syncRequest
	if err := bindOptionalJSON(c, &request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.orchestrator.SyncOne(c.Request.Context(), c.Param("id"), request.Policy)
	if err != nil {
		h.logger.Error("Single product sync failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to sync product"})
		return
	}

	c.JSON(http.StatusOK, result)
}

// Runs returns the audit log for one calendar day.
func (h *SyncHandler) Runs(c *gin.Context) {
	day := c.Param("day")
	if !dayPattern.MatchString(day) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Day must be formatted YYYY-MM-DD"})
		return
	}

	runs, err := h.runs.Day(c.Request.Context(), day)
	if err != nil {
		h.logger.Error("Failed to read run log: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read run log"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"day": day, "runs": runs})
}

// bindOptionalJSON binds a JSON body when one is present. An empty body is
// fine: every field of these requests is optional.
func bindOptionalJSON(c *gin.Context, out interface{}) error {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return nil
	}
	return c.ShouldBindJSON(out)
}
