package report

import (
	"bytes"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"maihome-survey-service/internal/domain"
)

const sheetName = "Responses"

var fixedHeaders = []string{"House", "Name", "Status", "Completed At"}

// AnswerSheetsXLSX renders one row per assignment and one column per
// answerable question, in question order.
func AnswerSheetsXLSX(questions []domain.Question, sheets []domain.AnswerSheet) ([]byte, error) {
	var columns []domain.Question
	for _, q := range questions {
		if q.Type != domain.QuestionDisplay {
			columns = append(columns, q)
		}
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to drop default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	headers := append([]string{}, fixedHeaders...)
	for _, q := range columns {
		headers = append(headers, q.Text)
	}
	for col, h := range headers {
		if err := setCell(f, col+1, 1, h); err != nil {
			return nil, err
		}
	}
	last, err := excelize.CoordinatesToCellName(len(headers), 1)
	if err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(sheetName, "A1", last, headerStyle); err != nil {
		return nil, fmt.Errorf("failed to set header style: %w", err)
	}

	for i, sheet := range sheets {
		row := i + 2
		values := []any{sheet.HouseID, deref(sheet.HouseName), string(sheet.Status), ""}
		if sheet.CompletedAt != nil {
			values[3] = sheet.CompletedAt.UTC().Format(time.RFC3339)
		}
		for _, q := range columns {
			values = append(values, sheet.Answers[q.Identifier].Value)
		}
		for col, v := range values {
			if v == "" {
				continue
			}
			if err := setCell(f, col+1, row, v); err != nil {
				return nil, err
			}
		}
	}

	if err := f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, fmt.Errorf("failed to freeze panes: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func setCell(f *excelize.File, col, row int, value any) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	if err := f.SetCellValue(sheetName, cell, value); err != nil {
		return fmt.Errorf("failed to set cell %s: %w", cell, err)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
