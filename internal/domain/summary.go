package domain

import "time"

// StatusCounts tallies the assignments of one question set by status.
type StatusCounts struct {
	Pending   int `json:"pending_count"`
	Completed int `json:"completed_count"`
	Dismissed int `json:"dismissed_count"`
	Total     int `json:"total_count"`
}

// Add counts one assignment with status s.
func (c *StatusCounts) Add(s AssignmentStatus) {
	switch s {
	case StatusPending:
		c.Pending++
	case StatusCompleted:
		c.Completed++
	case StatusDismissed:
		c.Dismissed++
	}
	c.Total++
}

// ResponseRow is one (assignment × answered question) row. Assignments without
// responses yield a single row with nil question columns.
type ResponseRow struct {
	AssignmentID       string           `json:"assignment_id"`
	HouseID            string           `json:"house_id"`
	HouseIdentifier    string           `json:"house_identifier"`
	HouseName          *string          `json:"house_name"`
	Status             AssignmentStatus `json:"status"`
	CompletedAt        *time.Time       `json:"completed_at"`
	QuestionID         *string          `json:"question_id"`
	QuestionIdentifier *string          `json:"question_identifier"`
	QuestionText       *string          `json:"question_text"`
	QuestionType       *QuestionType    `json:"question_type"`
	OrderIndex         *int             `json:"-"`
	ResponseValue      *string          `json:"response_value"`
}

// ResponseSummary is the admin report for one question set.
type ResponseSummary struct {
	Summary   StatusCounts  `json:"summary"`
	Responses []ResponseRow `json:"responses"`
}

// SheetAnswer is one answer inside an answer sheet.
type SheetAnswer struct {
	QuestionText string       `json:"questionText"`
	QuestionType QuestionType `json:"questionType"`
	Value        string       `json:"value"`
}

// AnswerSheet is the per-house view of one assignment.
type AnswerSheet struct {
	AssignmentID string                 `json:"assignmentId"`
	HouseID      string                 `json:"houseId"`
	HouseName    *string                `json:"houseName"`
	Status       AssignmentStatus       `json:"status"`
	CompletedAt  *time.Time             `json:"completedAt"`
	Answers      map[string]SheetAnswer `json:"answers"`
}

// AnswerSheets groups rows by assignment, keyed by question identifier,
// keeping the order in which assignments first appear.
func (s ResponseSummary) AnswerSheets() []AnswerSheet {
	index := make(map[string]int)
	var sheets []AnswerSheet
	for _, row := range s.Responses {
		i, ok := index[row.AssignmentID]
		if !ok {
			i = len(sheets)
			index[row.AssignmentID] = i
			sheets = append(sheets, AnswerSheet{
				AssignmentID: row.AssignmentID,
				HouseID:      row.HouseIdentifier,
				HouseName:    row.HouseName,
				Status:       row.Status,
				CompletedAt:  row.CompletedAt,
				Answers:      make(map[string]SheetAnswer),
			})
		}
		if row.QuestionID == nil || row.QuestionIdentifier == nil {
			continue
		}
		a := SheetAnswer{}
		if row.QuestionText != nil {
			a.QuestionText = *row.QuestionText
		}
		if row.QuestionType != nil {
			a.QuestionType = *row.QuestionType
		}
		if row.ResponseValue != nil {
			a.Value = *row.ResponseValue
		}
		sheets[i].Answers[*row.QuestionIdentifier] = a
	}
	return sheets
}
