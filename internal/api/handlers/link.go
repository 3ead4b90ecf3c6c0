package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"pricesync/internal/linker"
	"pricesync/internal/logger"
)

type LinkHandler struct {
	linker *linker.Linker
	logger *logger.Logger
}

func NewLinkHandler(l *linker.Linker, logger *logger.Logger) *LinkHandler {
	return &LinkHandler{linker: l, logger: logger}
}

// Link attaches a confirmed supplier id to a storefront product.
func (h *LinkHandler) Link(c *gin.Context) {
	var request struct {
		SupplierID string `json:"supplier_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	productID := c.Param("id")
	if err := h.linker.Confirm(c.Request.Context(), productID, request.SupplierID); err != nil {
		h.logger.Error("Failed to link product %s: %v", productID, err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":     "Product linked",
		"product_id":  productID,
		"supplier_id": request.SupplierID,
	})
}

// ImportCSV takes a bulk product export and returns ranked supplier
// candidates per row for human confirmation. Nothing is linked here.
func (h *LinkHandler) ImportCSV(c *gin.Context) {
	file, _, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing CSV file upload"})
		return
	}
	defer file.Close()

	rows, err := linker.ParseCSV(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	candidates := h.linker.Candidates(c.Request.Context(), rows, 5)
	c.JSON(http.StatusOK, gin.H{
		"rows":       len(rows),
		"candidates": candidates,
	})
}
