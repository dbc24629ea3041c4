package report

import (
	"context"
	"time"

	"logbook/internal/ledger"
)

// Placeholders rendered in place of a missing departure/duration. List
// views and exports use PlaceholderPending; single-record detail views use
// PlaceholderDetail. The substitution lives here, never in the ledger.
const (
	PlaceholderPending = "---"
	PlaceholderDetail  = "Not yet"
	PlaceholderNA      = "N/A"
)

// Row is one visit prepared for display or export: every field is already
// a string with placeholders applied.
type Row struct {
	VisitID     int64  `json:"log_id"`
	Name        string `json:"name"`
	Affiliation string `json:"affiliation"`
	TimeIn      string `json:"time_in"`
	TimeOut     string `json:"time_out"`
	Duration    string `json:"duration"`
	Date        string `json:"date"`
	Category    string `json:"category"`
	ExternalID  string `json:"external_id"`
}

// visitSource is the slice of the ledger the reporting service reads.
type visitSource interface {
	ListForDate(ctx context.Context, date string) ([]ledger.Record, error)
	Search(ctx context.Context, f ledger.Filter) ([]ledger.Record, error)
	Detail(ctx context.Context, visitID int64) (*ledger.Record, error)
}

// Service composes read-only admin views over the ledger and registry.
type Service struct {
	visits visitSource
	now    func() time.Time
}

// NewService creates the reporting service.
func NewService(visits visitSource) *Service {
	return &Service{visits: visits, now: time.Now}
}

// Today lists the current calendar date's visits, most recent first.
func (s *Service) Today(ctx context.Context) ([]Row, error) {
	recs, err := s.visits.ListForDate(ctx, s.now().Format("2006-01-02"))
	if err != nil {
		return nil, err
	}
	return renderRows(recs, PlaceholderPending), nil
}

// Search runs the admin filter and renders the matches.
func (s *Service) Search(ctx context.Context, f ledger.Filter) ([]Row, error) {
	recs, err := s.visits.Search(ctx, f)
	if err != nil {
		return nil, err
	}
	return renderRows(recs, PlaceholderPending), nil
}

// Detail renders one visit for the detail view, nil when absent.
func (s *Service) Detail(ctx context.Context, visitID int64) (*Row, error) {
	rec, err := s.visits.Detail(ctx, visitID)
	if err != nil || rec == nil {
		return nil, err
	}
	row := renderRow(*rec, PlaceholderDetail)
	return &row, nil
}

func renderRows(recs []ledger.Record, placeholder string) []Row {
	rows := make([]Row, 0, len(recs))
	for _, rec := range recs {
		rows = append(rows, renderRow(rec, placeholder))
	}
	return rows
}

func renderRow(rec ledger.Record, placeholder string) Row {
	row := Row{
		VisitID:     rec.ID,
		Name:        rec.NameSnapshot,
		Affiliation: rec.AffiliationSnapshot,
		TimeIn:      rec.ArrivedAt.Format("15:04:05"),
		TimeOut:     placeholder,
		Duration:    placeholder,
		Date:        rec.VisitDate.Format("2006-01-02"),
		Category:    rec.Category,
		ExternalID:  rec.ExternalID,
	}
	if rec.DepartedAt != nil {
		row.TimeOut = rec.DepartedAt.Format("15:04:05")
	}
	if rec.Duration != nil {
		row.Duration = *rec.Duration
	}
	if row.Category == "" {
		row.Category = PlaceholderNA
	}
	if row.ExternalID == "" {
		row.ExternalID = PlaceholderNA
	}
	return row
}
