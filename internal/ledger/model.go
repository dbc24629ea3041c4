package ledger

import (
	"fmt"
	"time"
)

// Visit is one arrival/departure pair. DepartedAt nil means the visit is
// still open; Duration is set exactly once, when the visit closes.
type Visit struct {
	ID                  int64      `json:"id"`
	IdentityID          *int64     `json:"identity_id,omitempty"`
	NameSnapshot        string     `json:"name"`
	AffiliationSnapshot string     `json:"affiliation"`
	ArrivedAt           time.Time  `json:"arrived_at"`
	DepartedAt          *time.Time `json:"departed_at,omitempty"`
	Duration            *string    `json:"duration,omitempty"`
	VisitDate           time.Time  `json:"visit_date"`
}

// Open reports whether no departure has been recorded yet.
func (v Visit) Open() bool { return v.DepartedAt == nil }

// Record is a visit joined with its identity's category and external id for
// the admin views. Category and ExternalID are empty when the identity row
// is gone.
type Record struct {
	Visit
	Category   string `json:"category,omitempty"`
	ExternalID string `json:"external_id,omitempty"`
}

// Searchable fields for the admin filter.
const (
	FieldName        = "name"
	FieldExternalID  = "external_id"
	FieldAffiliation = "affiliation"
)

// CategoryAll disables the category filter.
const CategoryAll = "All"

// Filter is the conjunction of optional admin search criteria. Zero values
// switch each criterion off. Dates are inclusive YYYY-MM-DD strings.
type Filter struct {
	Term     string
	Field    string
	DateFrom string
	DateTo   string
	Category string
}

// FormatDuration renders a wall-clock difference as zero-padded HH:MM:SS,
// truncated to whole seconds.
func FormatDuration(d time.Duration) string {
	total := int(d.Truncate(time.Second).Seconds())
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}
