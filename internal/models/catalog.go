package models

import "github.com/shopspring/decimal"

// ClassFee is the read-only fee structure snapshot for a class in a year.
type ClassFee struct {
	ClassID        string          `db:"class_id" json:"class_id"`
	BranchID       string          `db:"branch_id" json:"branch_id"`
	AcademicYearID string          `db:"academic_year_id" json:"academic_year_id"`
	NextClassID    *string         `db:"next_class_id" json:"next_class_id,omitempty"`
	TuitionFee     decimal.Decimal `db:"tuition_fee" json:"tuition_fee"`
	BookFee        decimal.Decimal `db:"book_fee" json:"book_fee"`
	Term1Weight    decimal.Decimal `db:"term1_weight" json:"term1_weight"`
	Term2Weight    decimal.Decimal `db:"term2_weight" json:"term2_weight"`
	Term3Weight    decimal.Decimal `db:"term3_weight" json:"term3_weight"`
}

// TermWeights returns the tuition split weights in term order.
func (f ClassFee) TermWeights() []decimal.Decimal {
	return []decimal.Decimal{f.Term1Weight, f.Term2Weight, f.Term3Weight}
}
