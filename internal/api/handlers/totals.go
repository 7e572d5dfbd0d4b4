package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sam-warren/cedhtools/internal/models"
)

// TotalsProvider counts the records behind the statistics
type TotalsProvider interface {
	DatabaseStatistics(ctx context.Context) (*models.DatabaseStatistics, error)
}

type TotalsHandler struct {
	totals TotalsProvider
}

func NewTotalsHandler(totals TotalsProvider) *TotalsHandler {
	return &TotalsHandler{totals: totals}
}

// GetDatabaseStatistics returns the site-wide tournament, entry, card and
// deck counts
func (h *TotalsHandler) GetDatabaseStatistics(c *gin.Context) {
	result, err := h.totals.DatabaseStatistics(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
