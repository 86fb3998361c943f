package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-fee-ledger/internal/middleware"
	"github.com/noah-isme/sma-fee-ledger/internal/models"
)

type tokenValidator interface {
	ValidateToken(token string) (*models.JWTClaims, error)
}

type auditWriter interface {
	Create(ctx context.Context, log *models.AuditLog) error
}

// Routes bundles the handlers mounted under the API prefix. Dashboard and Receipts are optional.
type Routes struct {
	Tokens       tokenValidator
	Audit        auditWriter
	Logger       *zap.Logger
	Fees         *FeeHandler
	Payments     *PaymentHandler
	Reservations *ReservationHandler
	Promotions   *PromotionHandler
	Dashboard    *DashboardHandler
	Receipts     *ReceiptHandler
}

// Register mounts every authenticated route on group.
func (r Routes) Register(group *gin.RouterGroup) {
	api := group.Group("")
	api.Use(middleware.JWT(r.Tokens), middleware.BranchScope())

	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleAccountant)
	admin := middleware.RequireRoles(models.RoleAdmin)
	audit := func(action, resource string) gin.HandlerFunc {
		return middleware.Audit(r.Audit, r.Logger, action, resource)
	}

	enrollments := api.Group("/enrollments/:id")
	enrollments.GET("/balances/:kind", staff, r.Fees.Balance)
	enrollments.GET("/outstanding", staff, r.Fees.Outstanding)
	enrollments.POST("/balances/:kind/payments", staff, audit(models.AuditActionPaymentPosted, "enrollment"), r.Fees.ApplyPayment)
	enrollments.PUT("/concession", admin, audit(models.AuditActionConcessionGranted, "enrollment"), r.Fees.GrantConcession)
	enrollments.POST("/dropout", admin, audit(models.AuditActionEnrollmentDropout, "enrollment"), r.Promotions.Dropout)

	api.POST("/payments", staff, audit(models.AuditActionPaymentPosted, "payment"), r.Payments.Post)
	api.GET("/income", staff, r.Payments.Income)
	api.GET("/income/export", staff, r.Payments.Export)

	reservations := api.Group("/reservations")
	reservations.POST("", staff, audit(models.AuditActionReservationCreated, "reservation"), r.Reservations.Create)
	reservations.GET("", staff, r.Reservations.List)
	reservations.GET("/:id", staff, r.Reservations.Get)
	reservations.POST("/:id/application-fee", staff, audit(models.AuditActionPaymentPosted, "reservation"), r.Reservations.PayApplicationFee)
	reservations.PUT("/:id/concession", admin, audit(models.AuditActionConcessionGranted, "reservation"), r.Reservations.GrantConcession)
	reservations.POST("/:id/confirm", admin, audit(models.AuditActionReservationConfirmed, "reservation"), r.Reservations.Confirm)
	reservations.POST("/:id/cancel", admin, audit(models.AuditActionReservationCancelled, "reservation"), r.Reservations.Cancel)

	api.GET("/promotions/eligibility", staff, r.Promotions.Eligibility)
	api.POST("/promotions", admin, audit(models.AuditActionEnrollmentPromoted, "enrollment"), r.Promotions.Promote)

	if r.Dashboard != nil {
		api.GET("/dashboard/fees", staff, r.Dashboard.Fees)
	}
	if r.Receipts != nil {
		api.GET("/receipts/:token", staff, r.Receipts.Download)
	}
}
