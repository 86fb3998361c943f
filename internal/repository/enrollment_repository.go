package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/sma-fee-ledger/internal/models"
)

const enrollmentColumns = `id, branch_id, student_id, admission_no, class_id, section_id, academic_year_id, roll_number,
       is_active, student_status, reservation_id, promoted_at, dropout_reason, dropout_date, created_at, updated_at`

// EnrollmentRepository handles persistence of enrollments and their year-end transitions.
type EnrollmentRepository struct {
	db        *sqlx.DB
	balances  *FeeBalanceRepository
	txTimeout time.Duration
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB, balances *FeeBalanceRepository, txTimeout time.Duration) *EnrollmentRepository {
	return &EnrollmentRepository{db: db, balances: balances, txTimeout: txTimeout}
}

// FindByID fetches an enrollment in the branch or returns sql.ErrNoRows.
func (r *EnrollmentRepository) FindByID(ctx context.Context, branchID, id string) (*models.Enrollment, error) {
	return getEnrollment(ctx, r.db, branchID, id, false)
}

// FindActiveByAdmissionNo resolves an admission number to its single active enrollment.
func (r *EnrollmentRepository) FindActiveByAdmissionNo(ctx context.Context, branchID, admissionNo string) (*models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments
	WHERE branch_id = $1 AND admission_no = $2 AND is_active = TRUE
	ORDER BY created_at DESC LIMIT 2`
	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, branchID, admissionNo); err != nil {
		return nil, fmt.Errorf("find enrollment by admission no: %w", err)
	}
	switch len(enrollments) {
	case 0:
		return nil, sql.ErrNoRows
	case 1:
		return &enrollments[0], nil
	}
	return nil, &ResourceError{ID: admissionNo, Err: ErrAmbiguousAdmissionNo}
}

// ListActive returns active enrollments of the branch matching the filter.
func (r *EnrollmentRepository) ListActive(ctx context.Context, branchID string, filter models.EnrollmentFilter) ([]models.Enrollment, error) {
	conditions := []string{"branch_id = $1", "is_active = TRUE"}
	args := []interface{}{branchID}
	if filter.ClassID != "" {
		args = append(args, filter.ClassID)
		conditions = append(conditions, fmt.Sprintf("class_id = $%d", len(args)))
	}
	if filter.AcademicYearID != "" {
		args = append(args, filter.AcademicYearID)
		conditions = append(conditions, fmt.Sprintf("academic_year_id = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		conditions = append(conditions, fmt.Sprintf("(LOWER(admission_no) LIKE $%d OR LOWER(student_id) LIKE $%d)", len(args), len(args)))
	}
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE ` + strings.Join(conditions, " AND ") + ` ORDER BY admission_no`

	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, fmt.Errorf("list active enrollments: %w", err)
	}
	return enrollments, nil
}

// ActiveBranches lists branches that currently have active enrollments.
func (r *EnrollmentRepository) ActiveBranches(ctx context.Context) ([]string, error) {
	var branches []string
	if err := r.db.SelectContext(ctx, &branches, `SELECT DISTINCT branch_id FROM enrollments WHERE is_active = TRUE ORDER BY branch_id`); err != nil {
		return nil, fmt.Errorf("list active branches: %w", err)
	}
	return branches, nil
}

// Dropout terminates an active enrollment. Fee balances are left as a historical record.
func (r *EnrollmentRepository) Dropout(ctx context.Context, branchID, id, reason string, date time.Time) (*models.Enrollment, error) {
	const query = `UPDATE enrollments SET is_active = FALSE, student_status = 'DROPPED_OUT', dropout_reason = $1,
       dropout_date = $2, updated_at = $3
	WHERE id = $4 AND branch_id = $5 AND is_active = TRUE`
	res, err := r.db.ExecContext(ctx, query, reason, date, time.Now().UTC(), id, branchID)
	if err != nil {
		return nil, mapDBError(fmt.Errorf("dropout enrollment: %w", err))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("dropout enrollment rows affected: %w", err)
	}

	enrollment, err := getEnrollment(ctx, r.db, branchID, id, false)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, &ResourceError{ID: id, Err: ErrInvalidState}
	}
	return enrollment, nil
}

// Promote re-checks eligibility of every enrollment under a row lock and promotes the batch in one
// transaction. The first blocked or invalid enrollment aborts the whole batch.
func (r *EnrollmentRepository) Promote(ctx context.Context, batch models.PromotionBatch) ([]models.PromotionOutcome, error) {
	var outcomes []models.PromotionOutcome
	err := withTx(ctx, r.db, r.txTimeout, func(tx *sqlx.Tx) error {
		outcomes = make([]models.PromotionOutcome, 0, len(batch.EnrollmentIDs))
		for _, id := range batch.EnrollmentIDs {
			current, err := getEnrollment(ctx, tx, batch.BranchID, id, true)
			if err != nil {
				return &ResourceError{ID: id, Err: err}
			}
			if !current.IsActive {
				return &ResourceError{ID: id, Err: ErrInvalidState}
			}

			ledger, err := r.balances.load(ctx, tx, batch.BranchID, id, true)
			if err != nil && !errors.Is(err, sql.ErrNoRows) {
				return err
			}
			pending := ledger.Outstanding()
			if !models.Promotable(pending, batch.RequireFeesPaid) {
				return &PromotionBlockedError{EnrollmentID: id, Pending: pending}
			}

			next, err := r.promoteOne(ctx, tx, current, batch)
			if err != nil {
				return err
			}
			outcomes = append(outcomes, models.PromotionOutcome{Previous: current, Next: next})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return outcomes, nil
}

func (r *EnrollmentRepository) promoteOne(ctx context.Context, tx *sqlx.Tx, current *models.Enrollment, batch models.PromotionBatch) (*models.Enrollment, error) {
	promotedAt := batch.PromotedAt
	const retire = `UPDATE enrollments SET is_active = FALSE, student_status = 'PROMOTED', promoted_at = $1, updated_at = $1
	WHERE id = $2 AND is_active = TRUE`
	res, err := tx.ExecContext(ctx, retire, promotedAt, current.ID)
	if err != nil {
		return nil, fmt.Errorf("retire enrollment: %w", err)
	}
	if err := expectOneRow(res, "retire enrollment"); err != nil {
		return nil, &ResourceError{ID: current.ID, Err: err}
	}
	current.IsActive = false
	current.StudentStatus = models.StudentStatusPromoted
	current.PromotedAt = &promotedAt

	classID := current.ClassID
	nextClassID, err := nextClass(ctx, tx, batch.BranchID, current.ClassID)
	if err != nil {
		return nil, err
	}
	if nextClassID != nil {
		classID = *nextClassID
	}

	next := &models.Enrollment{
		ID:             uuid.NewString(),
		BranchID:       current.BranchID,
		StudentID:      current.StudentID,
		AdmissionNo:    current.AdmissionNo,
		ClassID:        classID,
		AcademicYearID: batch.NextAcademicYearID,
		IsActive:       true,
		StudentStatus:  models.StudentStatusActive,
		CreatedAt:      promotedAt,
		UpdatedAt:      promotedAt,
	}
	if err := insertEnrollment(ctx, tx, next); err != nil {
		return nil, err
	}

	fee, err := classFee(ctx, tx, batch.BranchID, classID, batch.NextAcademicYearID)
	switch {
	case err == nil:
		tuition, err := models.NewTuitionFeeBalance(batch.BranchID, next.ID, fee.TuitionFee, decimal.Zero, fee.BookFee, fee.TermWeights())
		if err != nil {
			return nil, err
		}
		if err := r.balances.insertTuition(ctx, tx, tuition); err != nil {
			return nil, err
		}
	case !errors.Is(err, sql.ErrNoRows):
		return nil, err
	}
	return next, nil
}

func getEnrollment(ctx context.Context, q sqlx.QueryerContext, branchID, id string, forUpdate bool) (*models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE id = $1 AND branch_id = $2`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var enrollment models.Enrollment
	if err := sqlx.GetContext(ctx, q, &enrollment, query, id, branchID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get enrollment: %w", err)
	}
	return &enrollment, nil
}

func insertEnrollment(ctx context.Context, ext sqlx.ExecerContext, e *models.Enrollment) error {
	const query = `INSERT INTO enrollments (id, branch_id, student_id, admission_no, class_id, section_id, academic_year_id,
       roll_number, is_active, student_status, reservation_id, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	if _, err := ext.ExecContext(ctx, query,
		e.ID, e.BranchID, e.StudentID, e.AdmissionNo, e.ClassID, e.SectionID, e.AcademicYearID,
		e.RollNumber, e.IsActive, e.StudentStatus, e.ReservationID, e.CreatedAt, e.UpdatedAt,
	); err != nil {
		return fmt.Errorf("insert enrollment: %w", err)
	}
	return nil
}
