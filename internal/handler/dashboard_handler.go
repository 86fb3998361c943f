package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-fee-ledger/internal/middleware"
	"github.com/noah-isme/sma-fee-ledger/internal/models"
	appErrors "github.com/noah-isme/sma-fee-ledger/pkg/errors"
	"github.com/noah-isme/sma-fee-ledger/pkg/response"
)

type feeDashboardService interface {
	Summary(ctx context.Context, branchID, academicYearID string) (*models.FeeDashboard, bool, error)
}

// DashboardHandler wires the fee dashboard to HTTP.
type DashboardHandler struct {
	service feeDashboardService
}

// NewDashboardHandler constructs the handler.
func NewDashboardHandler(service feeDashboardService) *DashboardHandler {
	return &DashboardHandler{service: service}
}

// Fees godoc
// @Summary Fee collection dashboard
// @Tags Dashboard
// @Produce json
// @Param academicYearId query string false "Academic year"
// @Success 200 {object} response.Envelope
// @Router /dashboard/fees [get]
func (h *DashboardHandler) Fees(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "dashboard disabled"))
		return
	}
	branchID, _, err := scope(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	summary, cacheHit, err := h.service.Summary(c.Request.Context(), branchID, strings.TrimSpace(c.Query("academicYearId")))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, summary, nil, middleware.ExtractMeta(c))
}
