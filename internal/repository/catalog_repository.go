package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-fee-ledger/internal/models"
)

// CatalogRepository reads the class fee structure maintained by the catalog service.
type CatalogRepository struct {
	db *sqlx.DB
}

// NewCatalogRepository constructs the repository.
func NewCatalogRepository(db *sqlx.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// ClassFee returns the fee snapshot for a class in a year, or sql.ErrNoRows.
func (r *CatalogRepository) ClassFee(ctx context.Context, branchID, classID, academicYearID string) (*models.ClassFee, error) {
	return classFee(ctx, r.db, branchID, classID, academicYearID)
}

// NextClass returns the class students move into after classID, or nil when the catalog has none.
func (r *CatalogRepository) NextClass(ctx context.Context, branchID, classID string) (*string, error) {
	return nextClass(ctx, r.db, branchID, classID)
}

func classFee(ctx context.Context, q sqlx.QueryerContext, branchID, classID, academicYearID string) (*models.ClassFee, error) {
	const query = `SELECT cf.class_id, cf.branch_id, cf.academic_year_id, c.next_class_id, cf.tuition_fee, cf.book_fee,
       cf.term1_weight, cf.term2_weight, cf.term3_weight
	FROM class_fees cf
	JOIN classes c ON c.id = cf.class_id
	WHERE cf.branch_id = $1 AND cf.class_id = $2 AND cf.academic_year_id = $3`
	var fee models.ClassFee
	if err := sqlx.GetContext(ctx, q, &fee, query, branchID, classID, academicYearID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get class fee: %w", err)
	}
	return &fee, nil
}

func nextClass(ctx context.Context, q sqlx.QueryerContext, branchID, classID string) (*string, error) {
	const query = `SELECT next_class_id FROM classes WHERE id = $1 AND branch_id = $2`
	var next *string
	if err := sqlx.GetContext(ctx, q, &next, query, classID, branchID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get next class: %w", err)
	}
	return next, nil
}
