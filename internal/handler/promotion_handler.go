package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-fee-ledger/internal/dto"
	"github.com/noah-isme/sma-fee-ledger/internal/models"
	"github.com/noah-isme/sma-fee-ledger/pkg/response"
)

type promotionEvaluator interface {
	Evaluate(ctx context.Context, branchID string, query dto.EligibilityQuery) ([]models.PromotionEligibility, error)
	Promote(ctx context.Context, branchID, actorID string, req dto.PromoteRequest) ([]models.PromotionOutcome, error)
	Dropout(ctx context.Context, branchID, actorID, enrollmentID string, req dto.DropoutRequest) (*models.Enrollment, error)
}

// PromotionHandler exposes year-end promotion and dropout.
type PromotionHandler struct {
	promotions promotionEvaluator
}

// NewPromotionHandler constructs PromotionHandler.
func NewPromotionHandler(promotions promotionEvaluator) *PromotionHandler {
	return &PromotionHandler{promotions: promotions}
}

// Eligibility godoc
// @Summary Evaluate promotion eligibility
// @Tags Promotions
// @Produce json
// @Param classId query string false "Filter by class"
// @Param academicYearId query string false "Filter by academic year"
// @Param search query string false "Admission number"
// @Param requireFeesPaid query bool false "Override the fees-paid policy"
// @Success 200 {object} response.Envelope
// @Router /promotions/eligibility [get]
func (h *PromotionHandler) Eligibility(c *gin.Context) {
	branchID, _, err := scope(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	requireFeesPaid, err := parseQueryBool(c, "requireFeesPaid")
	if err != nil {
		response.Error(c, err)
		return
	}
	query := dto.EligibilityQuery{
		ClassID:         strings.TrimSpace(c.Query("classId")),
		AcademicYearID:  strings.TrimSpace(c.Query("academicYearId")),
		Search:          c.Query("search"),
		RequireFeesPaid: requireFeesPaid,
	}
	eligibility, err := h.promotions.Evaluate(c.Request.Context(), branchID, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.List(c, eligibility, nil)
}

// Promote godoc
// @Summary Promote a batch of enrollments
// @Description The batch fails as a whole when any enrollment is blocked at execution time.
// @Tags Promotions
// @Accept json
// @Produce json
// @Param payload body dto.PromoteRequest true "Batch"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /promotions [post]
func (h *PromotionHandler) Promote(c *gin.Context) {
	branchID, actorID, err := scope(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.PromoteRequest
	if err := bindJSON(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	outcomes, err := h.promotions.Promote(c.Request.Context(), branchID, actorID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.List(c, outcomes, nil)
}

// Dropout godoc
// @Summary Record a dropout
// @Tags Promotions
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param payload body dto.DropoutRequest true "Reason and date"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /enrollments/{id}/dropout [post]
func (h *PromotionHandler) Dropout(c *gin.Context) {
	branchID, actorID, err := scope(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.DropoutRequest
	if err := bindJSON(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	enrollment, err := h.promotions.Dropout(c.Request.Context(), branchID, actorID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}
