package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"pricesync/internal/logger"
	"pricesync/internal/models"
	"pricesync/internal/policy"
)

type PolicyHandler struct {
	store  *policy.Store
	logger *logger.Logger
}

func NewPolicyHandler(store *policy.Store, logger *logger.Logger) *PolicyHandler {
	return &PolicyHandler{store: store, logger: logger}
}

// Get returns the active pricing policy, creating defaults on first read.
func (h *PolicyHandler) Get(c *gin.Context) {
	p, err := h.store.Get(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to read pricing policy: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read pricing policy"})
		return
	}
	c.JSON(http.StatusOK, p)
}

// Put replaces the active pricing policy.
func (h *PolicyHandler) Put(c *gin.Context) {
	var p models.PricingPolicy
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := p.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.store.Put(c.Request.Context(), p); err != nil {
		h.logger.Error("Failed to write pricing policy: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to write pricing policy"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Pricing policy updated"})
}
