package report

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

// exportHeader is the XLSX column set; the same fields the text export
// carries plus the joined category/external id.
var exportHeader = []string{
	"Log ID",
	"Name",
	"Affiliation",
	"Time In",
	"Time Out",
	"Duration",
	"Date",
	"Category",
	"External ID",
}

// ExportXLSX renders rows as a spreadsheet with a bold header row.
func ExportXLSX(rows []Row) ([]byte, error) {
	f := excelize.NewFile()
	// WriteToBuffer needs the file open; close only on the error paths.

	sheetName := "Visit Logs"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("header style: %w", err)
	}

	header := make([]any, len(exportHeader))
	for i, h := range exportHeader {
		header[i] = h
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		f.Close()
		return nil, fmt.Errorf("write header: %w", err)
	}
	lastCol, _ := excelize.ColumnNumberToName(len(exportHeader))
	if err := f.SetCellStyle(sheetName, "A1", lastCol+"1", headerStyle); err != nil {
		f.Close()
		return nil, fmt.Errorf("style header: %w", err)
	}

	for i, row := range rows {
		cell := fmt.Sprintf("A%d", i+2)
		values := []any{
			row.VisitID, row.Name, row.Affiliation,
			row.TimeIn, row.TimeOut, row.Duration,
			row.Date, row.Category, row.ExternalID,
		}
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			f.Close()
			return nil, fmt.Errorf("write row %d: %w", i, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("serialize workbook: %w", err)
	}
	f.Close()
	return buf.Bytes(), nil
}
