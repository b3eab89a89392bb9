package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"maihome-survey-service/internal/domain"
)

func TestAnswerSheetsXLSX(t *testing.T) {
	name := "Casa Azul"
	done := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	questions := []domain.Question{
		{Identifier: "intro", Type: domain.QuestionDisplay, Text: "Welcome"},
		{Identifier: "warm", Type: domain.QuestionRadio, Text: "Is it warm?"},
		{Identifier: "notes", Type: domain.QuestionOpenText, Text: "Anything else?"},
	}
	sheets := []domain.AnswerSheet{
		{
			AssignmentID: "a1", HouseID: "H-1", HouseName: &name,
			Status: domain.StatusCompleted, CompletedAt: &done,
			Answers: map[string]domain.SheetAnswer{"warm": {Value: "yes"}, "notes": {Value: "all good"}},
		},
		{AssignmentID: "a2", HouseID: "H-2", Status: domain.StatusPending, Answers: map[string]domain.SheetAnswer{}},
	}

	data, err := AnswerSheetsXLSX(questions, sheets)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, []string{"House", "Name", "Status", "Completed At", "Is it warm?", "Anything else?"}, rows[0])
	require.Equal(t, []string{"H-1", "Casa Azul", "completed", "2026-10-01T12:00:00Z", "yes", "all good"}, rows[1])
	require.Equal(t, []string{"H-2", "", "pending"}, rows[2])
}
