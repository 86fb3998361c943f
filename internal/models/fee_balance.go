package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// BalanceKind selects which per-enrollment ledger an operation targets.
type BalanceKind string

const (
	BalanceKindTuition   BalanceKind = "TUITION"
	BalanceKindTransport BalanceKind = "TRANSPORT"
)

// Valid reports whether k names a known ledger.
func (k BalanceKind) Valid() bool {
	return k == BalanceKindTuition || k == BalanceKindTransport
}

// FeeStatus is derived from amount and paid, never stored.
type FeeStatus string

const (
	FeeStatusPaid    FeeStatus = "PAID"
	FeeStatusPartial FeeStatus = "PARTIAL"
	FeeStatusPending FeeStatus = "PENDING"
)

const (
	TuitionTermCount   = 3
	TransportTermCount = 2
)

var (
	ErrInvalidSlot          = errors.New("slot does not exist on this balance")
	ErrNonPositiveAmount    = errors.New("amount must be greater than zero")
	ErrOverpayment          = errors.New("payment exceeds slot balance")
	ErrConcessionOutOfRange = errors.New("concession must be between zero and the actual fee")
)

// FeeSlot is one payable obligation: a term or the book fee.
type FeeSlot struct {
	Term    int             `json:"term,omitempty"`
	Amount  decimal.Decimal `json:"amount"`
	Paid    decimal.Decimal `json:"paid"`
	Balance decimal.Decimal `json:"balance"`
	Status  FeeStatus       `json:"status"`
}

// DeriveSlot computes balance = max(0, amount-paid) and the matching status.
func DeriveSlot(term int, amount, paid decimal.Decimal) FeeSlot {
	balance := amount.Sub(paid)
	if balance.IsNegative() {
		balance = decimal.Zero
	}
	status := FeeStatusPending
	switch {
	case balance.IsZero():
		status = FeeStatusPaid
	case paid.IsPositive():
		status = FeeStatusPartial
	}
	return FeeSlot{Term: term, Amount: amount, Paid: paid, Balance: balance, Status: status}
}

// PaymentSlot addresses a term (1-based) or the book fee of a balance.
type PaymentSlot struct {
	Term int
	Book bool
}

// TermSlot addresses term n.
func TermSlot(n int) PaymentSlot { return PaymentSlot{Term: n} }

// BookSlot addresses the tuition book fee.
func BookSlot() PaymentSlot { return PaymentSlot{Book: true} }

// TuitionFeeBalance is the per-enrollment tuition ledger row. Derived fields are refreshed by Recompute.
type TuitionFeeBalance struct {
	ID               string          `db:"id" json:"id"`
	BranchID         string          `db:"branch_id" json:"branch_id"`
	EnrollmentID     string          `db:"enrollment_id" json:"enrollment_id"`
	ActualFee        decimal.Decimal `db:"actual_fee" json:"actual_fee"`
	ConcessionAmount decimal.Decimal `db:"concession_amount" json:"concession_amount"`
	NetFee           decimal.Decimal `db:"net_fee" json:"net_fee"`
	BookFee          decimal.Decimal `db:"book_fee" json:"book_fee"`
	BookPaid         decimal.Decimal `db:"book_paid" json:"book_paid"`
	Term1Amount      decimal.Decimal `db:"term1_amount" json:"-"`
	Term1Paid        decimal.Decimal `db:"term1_paid" json:"-"`
	Term2Amount      decimal.Decimal `db:"term2_amount" json:"-"`
	Term2Paid        decimal.Decimal `db:"term2_paid" json:"-"`
	Term3Amount      decimal.Decimal `db:"term3_amount" json:"-"`
	Term3Paid        decimal.Decimal `db:"term3_paid" json:"-"`
	Version          int64           `db:"version" json:"version"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`

	Terms        []FeeSlot       `db:"-" json:"terms"`
	Book         FeeSlot         `db:"-" json:"book"`
	TotalBalance decimal.Decimal `db:"-" json:"total_balance"`
	Status       FeeStatus       `db:"-" json:"status"`
}

// NewTuitionFeeBalance splits actual-concession across three terms by weights.
func NewTuitionFeeBalance(branchID, enrollmentID string, actual, concession, book decimal.Decimal, weights []decimal.Decimal) (*TuitionFeeBalance, error) {
	if concession.IsNegative() || concession.GreaterThan(actual) {
		return nil, ErrConcessionOutOfRange
	}
	b := &TuitionFeeBalance{
		BranchID:         branchID,
		EnrollmentID:     enrollmentID,
		ActualFee:        actual,
		ConcessionAmount: concession,
		NetFee:           actual.Sub(concession),
		BookFee:          book,
	}
	b.setTermAmounts(SplitProportional(b.NetFee, weights, TuitionTermCount))
	b.Recompute()
	return b, nil
}

func (b *TuitionFeeBalance) termFields(n int) (amount, paid *decimal.Decimal, err error) {
	switch n {
	case 1:
		return &b.Term1Amount, &b.Term1Paid, nil
	case 2:
		return &b.Term2Amount, &b.Term2Paid, nil
	case 3:
		return &b.Term3Amount, &b.Term3Paid, nil
	}
	return nil, nil, ErrInvalidSlot
}

func (b *TuitionFeeBalance) termAmounts() []decimal.Decimal {
	return []decimal.Decimal{b.Term1Amount, b.Term2Amount, b.Term3Amount}
}

func (b *TuitionFeeBalance) setTermAmounts(amounts []decimal.Decimal) {
	b.Term1Amount, b.Term2Amount, b.Term3Amount = amounts[0], amounts[1], amounts[2]
}

// Recompute refreshes per-slot balances, the total and the overall status.
func (b *TuitionFeeBalance) Recompute() {
	b.Terms = []FeeSlot{
		DeriveSlot(1, b.Term1Amount, b.Term1Paid),
		DeriveSlot(2, b.Term2Amount, b.Term2Paid),
		DeriveSlot(3, b.Term3Amount, b.Term3Paid),
	}
	b.Book = DeriveSlot(0, b.BookFee, b.BookPaid)
	slots := append(append([]FeeSlot{}, b.Terms...), b.Book)
	b.TotalBalance, b.Status = summarize(slots)
}

// Slot returns the derived view of slot.
func (b *TuitionFeeBalance) Slot(slot PaymentSlot) (FeeSlot, error) {
	if slot.Book {
		return DeriveSlot(0, b.BookFee, b.BookPaid), nil
	}
	amount, paid, err := b.termFields(slot.Term)
	if err != nil {
		return FeeSlot{}, err
	}
	return DeriveSlot(slot.Term, *amount, *paid), nil
}

// ApplyPayment increases paid on slot. overpaid is true when accepted beyond the outstanding balance.
func (b *TuitionFeeBalance) ApplyPayment(slot PaymentSlot, amount decimal.Decimal, allowOverpay bool) (overpaid bool, err error) {
	var target, paid *decimal.Decimal
	if slot.Book {
		target, paid = &b.BookFee, &b.BookPaid
	} else if target, paid, err = b.termFields(slot.Term); err != nil {
		return false, err
	}
	overpaid, err = applyToSlot(*target, paid, amount, allowOverpay)
	if err != nil {
		return false, err
	}
	b.Recompute()
	return overpaid, nil
}

// SetConcession overwrites the concession. When rederive is set the term amounts are re-split
// proportionally so that net_fee equals their sum; paid amounts are never touched.
func (b *TuitionFeeBalance) SetConcession(amount decimal.Decimal, rederive bool) error {
	if amount.IsNegative() || amount.GreaterThan(b.ActualFee) {
		return ErrConcessionOutOfRange
	}
	b.ConcessionAmount = amount
	b.NetFee = b.ActualFee.Sub(amount)
	if rederive {
		b.setTermAmounts(SplitProportional(b.NetFee, b.termAmounts(), TuitionTermCount))
	}
	b.Recompute()
	return nil
}

// TransportFeeBalance is the optional per-enrollment transport ledger row.
type TransportFeeBalance struct {
	ID               string          `db:"id" json:"id"`
	BranchID         string          `db:"branch_id" json:"branch_id"`
	EnrollmentID     string          `db:"enrollment_id" json:"enrollment_id"`
	ActualFee        decimal.Decimal `db:"actual_fee" json:"actual_fee"`
	ConcessionAmount decimal.Decimal `db:"concession_amount" json:"concession_amount"`
	TotalFee         decimal.Decimal `db:"total_fee" json:"total_fee"`
	Term1Amount      decimal.Decimal `db:"term1_amount" json:"-"`
	Term1Paid        decimal.Decimal `db:"term1_paid" json:"-"`
	Term2Amount      decimal.Decimal `db:"term2_amount" json:"-"`
	Term2Paid        decimal.Decimal `db:"term2_paid" json:"-"`
	Version          int64           `db:"version" json:"version"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`

	Terms             []FeeSlot       `db:"-" json:"terms"`
	OverallBalanceFee decimal.Decimal `db:"-" json:"overall_balance_fee"`
	Status            FeeStatus       `db:"-" json:"status"`
}

// NewTransportFeeBalance splits actual-concession evenly across two terms.
func NewTransportFeeBalance(branchID, enrollmentID string, actual, concession decimal.Decimal) (*TransportFeeBalance, error) {
	if concession.IsNegative() || concession.GreaterThan(actual) {
		return nil, ErrConcessionOutOfRange
	}
	b := &TransportFeeBalance{
		BranchID:         branchID,
		EnrollmentID:     enrollmentID,
		ActualFee:        actual,
		ConcessionAmount: concession,
		TotalFee:         actual.Sub(concession),
	}
	b.setTermAmounts(SplitProportional(b.TotalFee, nil, TransportTermCount))
	b.Recompute()
	return b, nil
}

func (b *TransportFeeBalance) termFields(n int) (amount, paid *decimal.Decimal, err error) {
	switch n {
	case 1:
		return &b.Term1Amount, &b.Term1Paid, nil
	case 2:
		return &b.Term2Amount, &b.Term2Paid, nil
	}
	return nil, nil, ErrInvalidSlot
}

func (b *TransportFeeBalance) setTermAmounts(amounts []decimal.Decimal) {
	b.Term1Amount, b.Term2Amount = amounts[0], amounts[1]
}

// Recompute refreshes per-term balances, the overall balance and status.
func (b *TransportFeeBalance) Recompute() {
	b.Terms = []FeeSlot{
		DeriveSlot(1, b.Term1Amount, b.Term1Paid),
		DeriveSlot(2, b.Term2Amount, b.Term2Paid),
	}
	b.OverallBalanceFee, b.Status = summarize(b.Terms)
}

// Slot returns the derived view of a transport term. The book slot does not exist here.
func (b *TransportFeeBalance) Slot(slot PaymentSlot) (FeeSlot, error) {
	if slot.Book {
		return FeeSlot{}, ErrInvalidSlot
	}
	amount, paid, err := b.termFields(slot.Term)
	if err != nil {
		return FeeSlot{}, err
	}
	return DeriveSlot(slot.Term, *amount, *paid), nil
}

// ApplyPayment increases paid on a transport term.
func (b *TransportFeeBalance) ApplyPayment(slot PaymentSlot, amount decimal.Decimal, allowOverpay bool) (bool, error) {
	if slot.Book {
		return false, ErrInvalidSlot
	}
	target, paid, err := b.termFields(slot.Term)
	if err != nil {
		return false, err
	}
	overpaid, err := applyToSlot(*target, paid, amount, allowOverpay)
	if err != nil {
		return false, err
	}
	b.Recompute()
	return overpaid, nil
}

// SetConcession overwrites the transport concession, re-splitting terms when rederive is set.
func (b *TransportFeeBalance) SetConcession(amount decimal.Decimal, rederive bool) error {
	if amount.IsNegative() || amount.GreaterThan(b.ActualFee) {
		return ErrConcessionOutOfRange
	}
	b.ConcessionAmount = amount
	b.TotalFee = b.ActualFee.Sub(amount)
	if rederive {
		b.setTermAmounts(SplitProportional(b.TotalFee, []decimal.Decimal{b.Term1Amount, b.Term2Amount}, TransportTermCount))
	}
	b.Recompute()
	return nil
}

// TotalOutstanding is the single outstanding formula: tuition term balances, the book balance
// and transport term balances. Either argument may be nil.
func TotalOutstanding(tuition *TuitionFeeBalance, transport *TransportFeeBalance) decimal.Decimal {
	total := decimal.Zero
	if tuition != nil {
		tuition.Recompute()
		total = total.Add(tuition.TotalBalance)
	}
	if transport != nil {
		transport.Recompute()
		total = total.Add(transport.OverallBalanceFee)
	}
	return total
}

// SplitProportional divides total into n parts weighted by weights. Parts are floored to cents
// and the remainder lands on the last positively weighted part, so no part is negative and
// zero-weight parts stay zero. Missing or all-zero weights give an even split.
func SplitProportional(total decimal.Decimal, weights []decimal.Decimal, n int) []decimal.Decimal {
	parts := make([]decimal.Decimal, n)
	sum := decimal.Zero
	last := n - 1
	if len(weights) == n {
		for i, w := range weights {
			if w.IsPositive() {
				sum = sum.Add(w)
				last = i
			}
		}
	}

	allocated := decimal.Zero
	for i := 0; i < n; i++ {
		if i == last {
			continue
		}
		var part decimal.Decimal
		switch {
		case sum.IsPositive() && !weights[i].IsPositive():
			part = decimal.Zero
		case sum.IsPositive():
			part = total.Mul(weights[i]).Div(sum).RoundFloor(2)
		default:
			part = total.Div(decimal.NewFromInt(int64(n))).RoundFloor(2)
		}
		parts[i] = part
		allocated = allocated.Add(part)
	}
	parts[last] = total.Sub(allocated)
	return parts
}

func applyToSlot(amount decimal.Decimal, paid *decimal.Decimal, payment decimal.Decimal, allowOverpay bool) (bool, error) {
	if !payment.IsPositive() {
		return false, ErrNonPositiveAmount
	}
	next := paid.Add(payment)
	overpaid := next.GreaterThan(amount)
	if overpaid && !allowOverpay {
		return false, ErrOverpayment
	}
	*paid = next
	return overpaid, nil
}

func summarize(slots []FeeSlot) (decimal.Decimal, FeeStatus) {
	total, paid := decimal.Zero, decimal.Zero
	for _, s := range slots {
		total = total.Add(s.Balance)
		paid = paid.Add(s.Paid)
	}
	switch {
	case total.IsZero():
		return total, FeeStatusPaid
	case paid.IsPositive():
		return total, FeeStatusPartial
	}
	return total, FeeStatusPending
}
