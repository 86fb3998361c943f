package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-fee-ledger/internal/dto"
	"github.com/noah-isme/sma-fee-ledger/internal/middleware"
	"github.com/noah-isme/sma-fee-ledger/internal/models"
	appErrors "github.com/noah-isme/sma-fee-ledger/pkg/errors"
	"github.com/noah-isme/sma-fee-ledger/pkg/response"
)

type balanceReader interface {
	GetBalance(ctx context.Context, branchID, enrollmentID string, kind models.BalanceKind) (*dto.BalanceResponse, error)
	Outstanding(ctx context.Context, branchID, enrollmentID string) (*dto.OutstandingResponse, error)
}

type slotPayer interface {
	ApplyPayment(ctx context.Context, branchID, actorID, enrollmentID string, kind models.BalanceKind, req dto.ApplyPaymentRequest) (*dto.PostPaymentResponse, error)
}

type concessionGranter interface {
	GrantConcession(ctx context.Context, branchID, actorID string, req dto.GrantConcessionRequest) error
}

// FeeHandler exposes the per-enrollment ledger endpoints.
type FeeHandler struct {
	balances    balanceReader
	payments    slotPayer
	concessions concessionGranter
}

// NewFeeHandler constructs FeeHandler.
func NewFeeHandler(balances balanceReader, payments slotPayer, concessions concessionGranter) *FeeHandler {
	return &FeeHandler{balances: balances, payments: payments, concessions: concessions}
}

// Balance godoc
// @Summary Get a fee balance
// @Tags Fees
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param kind path string true "tuition or transport"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /enrollments/{id}/balances/{kind} [get]
func (h *FeeHandler) Balance(c *gin.Context) {
	branchID, _, err := scope(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	kind, err := balanceKindParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	balance, err := h.balances.GetBalance(c.Request.Context(), branchID, c.Param("id"), kind)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, balance, nil)
}

// Outstanding godoc
// @Summary Total outstanding fees of an enrollment
// @Tags Fees
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/outstanding [get]
func (h *FeeHandler) Outstanding(c *gin.Context) {
	branchID, _, err := scope(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	outstanding, err := h.balances.Outstanding(c.Request.Context(), branchID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, outstanding, nil)
}

// ApplyPayment godoc
// @Summary Pay a single term or the book fee
// @Tags Fees
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param kind path string true "tuition or transport"
// @Param payload body dto.ApplyPaymentRequest true "Payment"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /enrollments/{id}/balances/{kind}/payments [post]
func (h *FeeHandler) ApplyPayment(c *gin.Context) {
	branchID, actorID, err := scope(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	kind, err := balanceKindParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.ApplyPaymentRequest
	if err := bindJSON(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.payments.ApplyPayment(c.Request.Context(), branchID, actorID, c.Param("id"), kind, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	respondPosted(c, result)
}

// GrantConcession godoc
// @Summary Grant a concession on an enrollment's ledgers
// @Tags Fees
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param payload body dto.GrantConcessionRequest true "Concession amounts"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /enrollments/{id}/concession [put]
func (h *FeeHandler) GrantConcession(c *gin.Context) {
	branchID, actorID, err := scope(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.GrantConcessionRequest
	if err := bindJSON(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	req.EnrollmentID = c.Param("id")
	req.ReservationID = ""
	ctx := c.Request.Context()
	if err := h.concessions.GrantConcession(ctx, branchID, actorID, req); err != nil {
		response.Error(c, err)
		return
	}

	updated := dto.BalanceResponse{EnrollmentID: req.EnrollmentID}
	tuition, err := h.balances.GetBalance(ctx, branchID, req.EnrollmentID, models.BalanceKindTuition)
	if err != nil {
		response.Error(c, err)
		return
	}
	updated.Tuition = tuition.Tuition
	transport, err := h.balances.GetBalance(ctx, branchID, req.EnrollmentID, models.BalanceKindTransport)
	switch {
	case err == nil:
		updated.Transport = transport.Transport
	case !errors.Is(err, appErrors.ErrBalanceNotFound):
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, updated, nil)
}

func respondPosted(c *gin.Context, result *dto.PostPaymentResponse) {
	if result.ReceiptPending {
		middleware.SetMeta(c, "receipt_pending", true)
	}
	response.Created(c, result, middleware.ExtractMeta(c))
}
