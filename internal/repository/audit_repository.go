package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-fee-ledger/internal/models"
)

// AuditRepository appends audit trail entries for ledger mutations.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository constructs the repository.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create inserts an audit log row.
func (r *AuditRepository) Create(ctx context.Context, log *models.AuditLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO audit_logs (id, branch_id, user_id, action, resource, resource_id, new_values, ip_address, user_agent, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	if _, err := r.db.ExecContext(ctx, query,
		log.ID, log.BranchID, log.UserID, log.Action, log.Resource, log.ResourceID, log.NewValues, log.IPAddress, log.UserAgent, log.CreatedAt,
	); err != nil {
		return fmt.Errorf("create audit log: %w", err)
	}
	return nil
}
