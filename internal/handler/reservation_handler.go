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

type reservationLifecycle interface {
	Create(ctx context.Context, branchID string, req dto.CreateReservationRequest) (*models.Reservation, error)
	Get(ctx context.Context, branchID, id string) (*models.Reservation, error)
	List(ctx context.Context, branchID string, query dto.ReservationQuery) ([]models.Reservation, *models.Pagination, error)
	PayApplicationFee(ctx context.Context, branchID, actorID, id string, req dto.ReservationPaymentRequest) (*models.Reservation, error)
	Confirm(ctx context.Context, branchID, actorID, id string, req dto.ConfirmReservationRequest) (*models.ConfirmResult, error)
	Cancel(ctx context.Context, branchID, id string, req dto.CancelReservationRequest) (*models.Reservation, error)
}

// ReservationHandler exposes the admission lifecycle.
type ReservationHandler struct {
	reservations reservationLifecycle
	concessions  concessionGranter
}

// NewReservationHandler constructs ReservationHandler.
func NewReservationHandler(reservations reservationLifecycle, concessions concessionGranter) *ReservationHandler {
	return &ReservationHandler{reservations: reservations, concessions: concessions}
}

// Create godoc
// @Summary Submit an application
// @Tags Reservations
// @Accept json
// @Produce json
// @Param payload body dto.CreateReservationRequest true "Reservation"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /reservations [post]
func (h *ReservationHandler) Create(c *gin.Context) {
	branchID, _, err := scope(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.CreateReservationRequest
	if err := bindJSON(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	reservation, err := h.reservations.Create(c.Request.Context(), branchID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, reservation)
}

// List godoc
// @Summary List reservations
// @Tags Reservations
// @Produce json
// @Param status query string false "PENDING, CONFIRMED or CANCELLED"
// @Param search query string false "Student name"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /reservations [get]
func (h *ReservationHandler) List(c *gin.Context) {
	branchID, _, err := scope(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	query := dto.ReservationQuery{
		Status:   models.ReservationStatus(strings.ToUpper(strings.TrimSpace(c.Query("status")))),
		Search:   c.Query("search"),
		Page:     parseQueryInt(c, "page", 1),
		PageSize: parseQueryInt(c, "limit", 20),
	}
	reservations, pagination, err := h.reservations.List(c.Request.Context(), branchID, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.List(c, reservations, pagination)
}

// Get godoc
// @Summary Get a reservation
// @Tags Reservations
// @Produce json
// @Param id path string true "Reservation ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /reservations/{id} [get]
func (h *ReservationHandler) Get(c *gin.Context) {
	branchID, _, err := scope(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	reservation, err := h.reservations.Get(c.Request.Context(), branchID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reservation, nil)
}

// PayApplicationFee godoc
// @Summary Record the application fee
// @Tags Reservations
// @Accept json
// @Produce json
// @Param id path string true "Reservation ID"
// @Param payload body dto.ReservationPaymentRequest true "Payment"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /reservations/{id}/application-fee [post]
func (h *ReservationHandler) PayApplicationFee(c *gin.Context) {
	branchID, actorID, err := scope(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.ReservationPaymentRequest
	if err := bindJSON(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	reservation, err := h.reservations.PayApplicationFee(c.Request.Context(), branchID, actorID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reservation, nil)
}

// GrantConcession godoc
// @Summary Grant a concession before confirmation
// @Tags Reservations
// @Accept json
// @Produce json
// @Param id path string true "Reservation ID"
// @Param payload body dto.GrantConcessionRequest true "Concession amounts"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /reservations/{id}/concession [put]
func (h *ReservationHandler) GrantConcession(c *gin.Context) {
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
	req.ReservationID = c.Param("id")
	req.EnrollmentID = ""
	ctx := c.Request.Context()
	if err := h.concessions.GrantConcession(ctx, branchID, actorID, req); err != nil {
		response.Error(c, err)
		return
	}
	reservation, err := h.reservations.Get(ctx, branchID, req.ReservationID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reservation, nil)
}

// Confirm godoc
// @Summary Confirm a reservation and enroll the student
// @Description Repeating the call after a successful confirmation returns the existing enrollment.
// @Tags Reservations
// @Accept json
// @Produce json
// @Param id path string true "Reservation ID"
// @Param payload body dto.ConfirmReservationRequest false "Placement"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /reservations/{id}/confirm [post]
func (h *ReservationHandler) Confirm(c *gin.Context) {
	branchID, actorID, err := scope(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.ConfirmReservationRequest
	if c.Request.ContentLength > 0 {
		if err := bindJSON(c, &req); err != nil {
			response.Error(c, err)
			return
		}
	}
	result, err := h.reservations.Confirm(c.Request.Context(), branchID, actorID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Cancel godoc
// @Summary Cancel a pending reservation
// @Tags Reservations
// @Accept json
// @Produce json
// @Param id path string true "Reservation ID"
// @Param payload body dto.CancelReservationRequest false "Remarks"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /reservations/{id}/cancel [post]
func (h *ReservationHandler) Cancel(c *gin.Context) {
	branchID, _, err := scope(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.CancelReservationRequest
	if c.Request.ContentLength > 0 {
		if err := bindJSON(c, &req); err != nil {
			response.Error(c, err)
			return
		}
	}
	reservation, err := h.reservations.Cancel(c.Request.Context(), branchID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reservation, nil)
}
