package service

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/sma-fee-ledger/internal/models"
	"github.com/noah-isme/sma-fee-ledger/internal/repository"
	"github.com/noah-isme/sma-fee-ledger/pkg/jobs"
	"github.com/noah-isme/sma-fee-ledger/pkg/storage"
)

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func decPtr(v string) *decimal.Decimal {
	d := dec(v)
	return &d
}

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }

type mockEnrollmentStore struct {
	enrollments map[string]models.Enrollment
	ambiguous   map[string]bool
	promoteErr  error
	dropoutErr  error
	promoted    *models.PromotionBatch
}

func (m *mockEnrollmentStore) FindByID(ctx context.Context, branchID, id string) (*models.Enrollment, error) {
	e, ok := m.enrollments[id]
	if !ok || e.BranchID != branchID {
		return nil, sql.ErrNoRows
	}
	return &e, nil
}

func (m *mockEnrollmentStore) FindActiveByAdmissionNo(ctx context.Context, branchID, admissionNo string) (*models.Enrollment, error) {
	if m.ambiguous[admissionNo] {
		return nil, repository.ErrAmbiguousAdmissionNo
	}
	for _, e := range m.enrollments {
		if e.BranchID == branchID && e.AdmissionNo == admissionNo && e.IsActive {
			found := e
			return &found, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentStore) ListActive(ctx context.Context, branchID string, filter models.EnrollmentFilter) ([]models.Enrollment, error) {
	var list []models.Enrollment
	for _, e := range m.enrollments {
		if e.BranchID != branchID || !e.IsActive {
			continue
		}
		if filter.ClassID != "" && e.ClassID != filter.ClassID {
			continue
		}
		list = append(list, e)
	}
	return list, nil
}

func (m *mockEnrollmentStore) Promote(ctx context.Context, batch models.PromotionBatch) ([]models.PromotionOutcome, error) {
	m.promoted = &batch
	if m.promoteErr != nil {
		return nil, m.promoteErr
	}
	outcomes := make([]models.PromotionOutcome, 0, len(batch.EnrollmentIDs))
	for _, id := range batch.EnrollmentIDs {
		prev := m.enrollments[id]
		prev.IsActive = false
		next := prev
		next.ID = id + "-next"
		next.AcademicYearID = batch.NextAcademicYearID
		next.IsActive = true
		outcomes = append(outcomes, models.PromotionOutcome{Previous: &prev, Next: &next})
	}
	return outcomes, nil
}

func (m *mockEnrollmentStore) Dropout(ctx context.Context, branchID, id, reason string, date time.Time) (*models.Enrollment, error) {
	if m.dropoutErr != nil {
		return nil, m.dropoutErr
	}
	e, ok := m.enrollments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	e.IsActive = false
	e.StudentStatus = models.StudentStatusDroppedOut
	e.DropoutReason = &reason
	e.DropoutDate = &date
	m.enrollments[id] = e
	return &e, nil
}

type mockLedgerStore struct {
	ledgers map[string]repository.LedgerBalances
	changes []repository.ConcessionChange
	setErr  error
}

func (m *mockLedgerStore) GetLedger(ctx context.Context, branchID, enrollmentID string) (repository.LedgerBalances, error) {
	l, ok := m.ledgers[enrollmentID]
	if !ok {
		return repository.LedgerBalances{}, sql.ErrNoRows
	}
	return l, nil
}

func (m *mockLedgerStore) SetConcession(ctx context.Context, change repository.ConcessionChange) (repository.LedgerBalances, error) {
	m.changes = append(m.changes, change)
	if m.setErr != nil {
		return repository.LedgerBalances{}, m.setErr
	}
	l, ok := m.ledgers[change.EnrollmentID]
	if !ok {
		return repository.LedgerBalances{}, sql.ErrNoRows
	}
	if change.Tuition != nil {
		if err := l.Tuition.SetConcession(*change.Tuition, change.Rederive); err != nil {
			return repository.LedgerBalances{}, err
		}
	}
	if change.Transport != nil {
		if l.Transport == nil {
			return repository.LedgerBalances{}, repository.ErrTransportBalanceMissing
		}
		if err := l.Transport.SetConcession(*change.Transport, change.Rederive); err != nil {
			return repository.LedgerBalances{}, err
		}
	}
	return l, nil
}

func (m *mockLedgerStore) LedgersFor(ctx context.Context, branchID string, ids []string) (map[string]repository.LedgerBalances, error) {
	out := make(map[string]repository.LedgerBalances, len(ids))
	for _, id := range ids {
		if l, ok := m.ledgers[id]; ok {
			out[id] = l
		}
	}
	return out, nil
}

type mockPaymentStore struct {
	postings    []models.PaymentPosting
	postErr     error
	reservation *models.Reservation
	resRecords  []models.IncomeRecord
	income      []models.IncomeRecord
	incomeCalls []models.IncomeFilter
}

func (m *mockPaymentStore) Post(ctx context.Context, posting models.PaymentPosting) (*models.PostingResult, error) {
	m.postings = append(m.postings, posting)
	if m.postErr != nil {
		return nil, m.postErr
	}
	result := &models.PostingResult{}
	for i, d := range posting.Details {
		enrollmentID := posting.EnrollmentID
		result.Records = append(result.Records, models.IncomeRecord{
			ID:            "inc-" + string(rune('a'+i)),
			BranchID:      posting.BranchID,
			EnrollmentID:  &enrollmentID,
			Purpose:       d.Purpose,
			TermNumber:    d.TermNumber,
			PaidAmount:    d.Amount,
			PaymentMethod: d.Method,
			CreatedBy:     posting.CreatedBy,
		})
	}
	return result, nil
}

func (m *mockPaymentStore) PostReservationPayment(ctx context.Context, record models.IncomeRecord) (*models.Reservation, error) {
	m.resRecords = append(m.resRecords, record)
	if m.reservation == nil {
		return nil, sql.ErrNoRows
	}
	return m.reservation, nil
}

func (m *mockPaymentStore) ListIncome(ctx context.Context, branchID string, filter models.IncomeFilter) ([]models.IncomeRecord, int, error) {
	m.incomeCalls = append(m.incomeCalls, filter)
	start := (filter.Page - 1) * filter.PageSize
	if start >= len(m.income) {
		return nil, len(m.income), nil
	}
	end := start + filter.PageSize
	if end > len(m.income) {
		end = len(m.income)
	}
	return m.income[start:end], len(m.income), nil
}

type mockReceiptDispatcher struct {
	err   error
	calls int
}

func (m *mockReceiptDispatcher) Dispatch(ctx context.Context, branchID, admissionNo string, records []models.IncomeRecord) (*models.ReceiptTicket, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return &models.ReceiptTicket{ReceiptID: "rcpt-1", Token: "tok"}, nil
}

type mockCache struct {
	mu          sync.Mutex
	entries     map[string][]byte
	invalidated []string
	sets        int
}

func (m *mockCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.entries[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (m *mockCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if m.entries == nil {
		m.entries = make(map[string][]byte)
	}
	m.entries[key] = raw
	m.sets++
	return nil
}

func (m *mockCache) Invalidate(ctx context.Context, pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalidated = append(m.invalidated, pattern)
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range m.entries {
		if strings.HasPrefix(key, prefix) {
			delete(m.entries, key)
		}
	}
	return nil
}

type mockReservationStore struct {
	reservations map[string]*models.Reservation
	confirmErr   error
	confirms     []repository.ConfirmParams
	granted      []decimal.Decimal
	grantErr     error
}

func (m *mockReservationStore) Create(ctx context.Context, reservation *models.Reservation) error {
	if m.reservations == nil {
		m.reservations = make(map[string]*models.Reservation)
	}
	reservation.ID = "res-new"
	reservation.Status = models.ReservationStatusPending
	m.reservations[reservation.ID] = reservation
	return nil
}

func (m *mockReservationStore) FindByID(ctx context.Context, branchID, id string) (*models.Reservation, error) {
	r, ok := m.reservations[id]
	if !ok || r.BranchID != branchID {
		return nil, sql.ErrNoRows
	}
	copied := *r
	return &copied, nil
}

func (m *mockReservationStore) List(ctx context.Context, branchID string, filter models.ReservationFilter) ([]models.Reservation, int, error) {
	var list []models.Reservation
	for _, r := range m.reservations {
		if r.BranchID == branchID && (filter.Status == "" || r.Status == filter.Status) {
			list = append(list, *r)
		}
	}
	return list, len(list), nil
}

func (m *mockReservationStore) Confirm(ctx context.Context, params repository.ConfirmParams) (*models.Reservation, error) {
	m.confirms = append(m.confirms, params)
	if m.confirmErr != nil {
		return nil, m.confirmErr
	}
	r, ok := m.reservations[params.ReservationID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	if r.Status == models.ReservationStatusPending {
		r.Status = models.ReservationStatusConfirmed
		r.ConcessionLock = true
		r.ConfirmedAt = &params.ConfirmedAt
	}
	copied := *r
	return &copied, nil
}

func (m *mockReservationStore) Cancel(ctx context.Context, branchID, id string, remarks *string) (*models.Reservation, error) {
	r, ok := m.reservations[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	if r.Status != models.ReservationStatusPending {
		return nil, repository.ErrInvalidState
	}
	r.Status = models.ReservationStatusCancelled
	copied := *r
	return &copied, nil
}

func (m *mockReservationStore) GrantConcession(ctx context.Context, branchID, id string, tuition, transport decimal.Decimal, remarks *string) error {
	if m.grantErr != nil {
		return m.grantErr
	}
	m.granted = []decimal.Decimal{tuition, transport}
	r := m.reservations[id]
	r.TuitionConcession = tuition
	r.TransportConcession = transport
	return nil
}

type mockProvisioner struct {
	err      error
	existing *models.Enrollment
	calls    []repository.ProvisionParams
}

func (m *mockProvisioner) Provision(ctx context.Context, params repository.ProvisionParams) (*models.Enrollment, bool, error) {
	m.calls = append(m.calls, params)
	if m.err != nil {
		return nil, false, m.err
	}
	if m.existing != nil {
		return m.existing, true, nil
	}
	m.existing = &models.Enrollment{
		ID:            "enr-" + params.ReservationID,
		BranchID:      params.BranchID,
		StudentID:     params.StudentID,
		AdmissionNo:   params.AdmissionNo,
		ReservationID: &params.ReservationID,
		IsActive:      true,
	}
	return m.existing, false, nil
}

type memoryObjectStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemoryObjectStore() *memoryObjectStore {
	return &memoryObjectStore{objects: make(map[string][]byte)}
}

func (m *memoryObjectStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

func (m *memoryObjectStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memoryObjectStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

type recordingQueue struct {
	jobs []jobs.Job
}

func (q *recordingQueue) Enqueue(job jobs.Job) error {
	q.jobs = append(q.jobs, job)
	return nil
}

func newTuitionLedger(enrollmentID, actual, concession string) *models.TuitionFeeBalance {
	b, err := models.NewTuitionFeeBalance("br-1", enrollmentID, dec(actual), dec(concession), dec("0"), nil)
	if err != nil {
		panic(err)
	}
	return b
}
