package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-fee-ledger/internal/dto"
	"github.com/noah-isme/sma-fee-ledger/internal/models"
	appErrors "github.com/noah-isme/sma-fee-ledger/pkg/errors"
	"github.com/noah-isme/sma-fee-ledger/pkg/export"
)

type incomeLister interface {
	ListIncome(ctx context.Context, branchID string, filter models.IncomeFilter) ([]models.IncomeRecord, int, error)
}

// ExportResult is a rendered income ledger ready to be streamed.
type ExportResult struct {
	Data        []byte
	ContentType string
	Filename    string
}

var incomeHeaders = []string{"Date", "Receipt Ref", "Admission No", "Enrollment", "Reservation", "Purpose", "Term", "Method", "Amount", "Recorded By", "Remarks"}

// ExportService renders the income ledger into spreadsheets.
type ExportService struct {
	income    incomeLister
	exporters map[string]export.Exporter
	logger    *zap.Logger
	now       func() time.Time
}

// NewExportService constructs an ExportService with CSV and XLSX renderers.
func NewExportService(income incomeLister, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		income: income,
		exporters: map[string]export.Exporter{
			"csv":  export.NewCSVExporter(),
			"xlsx": export.NewXLSXExporter("Income"),
		},
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// ExportIncome renders every income record matching the query in the requested format.
func (s *ExportService) ExportIncome(ctx context.Context, branchID string, query dto.IncomeQuery) (*ExportResult, error) {
	format := strings.ToLower(strings.TrimSpace(query.Format))
	if format == "" {
		format = "csv"
	}
	exporter, ok := s.exporters[format]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", query.Format))
	}
	if query.Purpose != "" && !query.Purpose.Valid() {
		return nil, appErrors.Clone(appErrors.ErrInvalidPurpose, fmt.Sprintf("unknown purpose %q", query.Purpose))
	}

	records, err := s.collect(ctx, branchID, query)
	if err != nil {
		return nil, err
	}
	data, err := exporter.Render(incomeDataset(records))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	s.logger.Info("income exported", zap.String("branch_id", branchID), zap.String("format", format), zap.Int("rows", len(records)))
	return &ExportResult{
		Data:        data,
		ContentType: exporter.ContentType(),
		Filename:    fmt.Sprintf("income-%s-%s.%s", branchID, s.now().Format("20060102"), exporter.Extension()),
	}, nil
}

func (s *ExportService) collect(ctx context.Context, branchID string, query dto.IncomeQuery) ([]models.IncomeRecord, error) {
	const pageSize = 200
	filter := models.IncomeFilter{
		EnrollmentID: query.EnrollmentID,
		Purpose:      query.Purpose,
		From:         query.From,
		To:           query.To,
		PageSize:     pageSize,
	}
	var all []models.IncomeRecord
	for page := 1; ; page++ {
		filter.Page = page
		records, total, err := s.income.ListIncome(ctx, branchID, filter)
		if err != nil {
			return nil, translateError(err, "list income", "", nil)
		}
		all = append(all, records...)
		if len(records) < pageSize || len(all) >= total {
			return all, nil
		}
	}
}

func incomeDataset(records []models.IncomeRecord) export.Dataset {
	data := export.Dataset{Headers: incomeHeaders, Rows: make([]map[string]string, 0, len(records))}
	for _, r := range records {
		term := ""
		if r.TermNumber != nil {
			term = strconv.Itoa(*r.TermNumber)
		}
		data.Rows = append(data.Rows, map[string]string{
			"Date":         r.CreatedAt.Format(time.RFC3339),
			"Receipt Ref":  r.ID,
			"Admission No": deref(r.AdmissionNo),
			"Enrollment":   deref(r.EnrollmentID),
			"Reservation":  deref(r.ReservationID),
			"Purpose":      string(r.Purpose),
			"Term":         term,
			"Method":       r.PaymentMethod,
			"Amount":       r.PaidAmount.StringFixed(2),
			"Recorded By":  r.CreatedBy,
			"Remarks":      deref(r.Remarks),
		})
	}
	return data
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
