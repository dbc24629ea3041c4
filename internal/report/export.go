package report

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ExportFilename builds a unique name for a generated export artifact.
func ExportFilename(ext string) string {
	return fmt.Sprintf("logbook_export_%s_%s.%s",
		time.Now().Format("20060102_150405"), uuid.NewString()[:8], ext)
}

// ExportText renders rows as the flat fixed-width report: framed header,
// record count, column header, data rows, footer. Open visits carry the
// same "---" placeholders the list views show.
func ExportText(rows []Row, exportedAt time.Time) []byte {
	var b bytes.Buffer
	rule := strings.Repeat("=", 80)

	fmt.Fprintln(&b, rule)
	fmt.Fprintln(&b, "LOGBOOK - Visit Records")
	fmt.Fprintf(&b, "Exported on: %s\n", exportedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintln(&b, rule)
	fmt.Fprintln(&b)

	fmt.Fprintf(&b, "Total Records: %d\n\n", len(rows))

	fmt.Fprintf(&b, "%-10s %-25s %-20s %-12s %-12s %-12s %-15s\n",
		"Log ID", "Name", "Affiliation", "Time In", "Time Out", "Duration", "Date")
	fmt.Fprintln(&b, strings.Repeat("-", 120))

	for _, row := range rows {
		fmt.Fprintf(&b, "%-10d %-25s %-20s %-12s %-12s %-12s %-15s\n",
			row.VisitID, row.Name, row.Affiliation,
			row.TimeIn, row.TimeOut, row.Duration, row.Date)
	}

	fmt.Fprintln(&b)
	fmt.Fprintln(&b, rule)
	fmt.Fprintln(&b, "End of Report")
	return b.Bytes()
}
