package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-fee-ledger/internal/dto"
	"github.com/noah-isme/sma-fee-ledger/internal/models"
	"github.com/noah-isme/sma-fee-ledger/internal/service"
	"github.com/noah-isme/sma-fee-ledger/pkg/response"
)

type paymentPoster interface {
	PostPayment(ctx context.Context, branchID, actorID string, req dto.PostPaymentRequest) (*dto.PostPaymentResponse, error)
	ListIncome(ctx context.Context, branchID string, query dto.IncomeQuery) ([]models.IncomeRecord, *models.Pagination, error)
}

type incomeExporter interface {
	ExportIncome(ctx context.Context, branchID string, query dto.IncomeQuery) (*service.ExportResult, error)
}

// PaymentHandler exposes payment posting and the income ledger.
type PaymentHandler struct {
	payments paymentPoster
	exports  incomeExporter
}

// NewPaymentHandler constructs PaymentHandler.
func NewPaymentHandler(payments paymentPoster, exports incomeExporter) *PaymentHandler {
	return &PaymentHandler{payments: payments, exports: exports}
}

// Post godoc
// @Summary Post a payment
// @Description Applies every detail against one enrollment atomically and records one income entry per detail.
// @Tags Payments
// @Accept json
// @Produce json
// @Param payload body dto.PostPaymentRequest true "Payment"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /payments [post]
func (h *PaymentHandler) Post(c *gin.Context) {
	branchID, actorID, err := scope(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.PostPaymentRequest
	if err := bindJSON(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.payments.PostPayment(c.Request.Context(), branchID, actorID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	respondPosted(c, result)
}

// Income godoc
// @Summary List income records
// @Tags Payments
// @Produce json
// @Param enrollmentId query string false "Filter by enrollment"
// @Param purpose query string false "Filter by purpose"
// @Param from query string false "From date (YYYY-MM-DD)"
// @Param to query string false "To date, inclusive (YYYY-MM-DD)"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /income [get]
func (h *PaymentHandler) Income(c *gin.Context) {
	branchID, _, err := scope(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	query, err := incomeQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	records, pagination, err := h.payments.ListIncome(c.Request.Context(), branchID, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.List(c, records, pagination)
}

// Export godoc
// @Summary Export the income ledger
// @Tags Payments
// @Produce octet-stream
// @Param format query string false "csv or xlsx"
// @Param purpose query string false "Filter by purpose"
// @Param from query string false "From date (YYYY-MM-DD)"
// @Param to query string false "To date, inclusive (YYYY-MM-DD)"
// @Success 200 {file} binary
// @Router /income/export [get]
func (h *PaymentHandler) Export(c *gin.Context) {
	branchID, _, err := scope(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	query, err := incomeQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	query.Format = c.DefaultQuery("format", "csv")
	result, err := h.exports.ExportIncome(c.Request.Context(), branchID, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", result.Filename))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, result.ContentType, result.Data)
}

func incomeQuery(c *gin.Context) (dto.IncomeQuery, error) {
	query := dto.IncomeQuery{
		EnrollmentID: strings.TrimSpace(c.Query("enrollmentId")),
		Purpose:      models.PaymentPurpose(strings.ToUpper(strings.TrimSpace(c.Query("purpose")))),
		Page:         parseQueryInt(c, "page", 1),
		PageSize:     parseQueryInt(c, "limit", 20),
	}
	var err error
	if query.From, err = parseDateParam(c, "from", false); err != nil {
		return query, err
	}
	if query.To, err = parseDateParam(c, "to", true); err != nil {
		return query, err
	}
	return query, nil
}
