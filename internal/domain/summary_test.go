package domain

import (
	"testing"
	"time"
)

func TestAnswerSheetsGroupByAssignment(t *testing.T) {
	str := func(s string) *string { return &s }
	radio := QuestionRadio
	done := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	summary := ResponseSummary{Responses: []ResponseRow{
		{AssignmentID: "as-1", HouseIdentifier: "H-1", Status: StatusCompleted, CompletedAt: &done,
			QuestionID: str("q-1"), QuestionIdentifier: str("q1"), QuestionText: str("Pick"), QuestionType: &radio, ResponseValue: str("A")},
		{AssignmentID: "as-1", HouseIdentifier: "H-1", Status: StatusCompleted, CompletedAt: &done,
			QuestionID: str("q-2"), QuestionIdentifier: str("q2"), QuestionText: str("Why"), ResponseValue: str("because")},
		{AssignmentID: "as-2", HouseIdentifier: "H-2", Status: StatusPending},
	}}

	sheets := summary.AnswerSheets()
	if len(sheets) != 2 {
		t.Fatalf("expected 2 sheets, got %d", len(sheets))
	}
	if sheets[0].AssignmentID != "as-1" || len(sheets[0].Answers) != 2 {
		t.Fatalf("unexpected first sheet %+v", sheets[0])
	}
	if got := sheets[0].Answers["q1"]; got.Value != "A" || got.QuestionType != QuestionRadio {
		t.Fatalf("unexpected q1 answer %+v", got)
	}
	if sheets[1].HouseID != "H-2" || len(sheets[1].Answers) != 0 {
		t.Fatalf("pending assignment should have an empty sheet, got %+v", sheets[1])
	}
}

func TestStatusCountsAndTransitions(t *testing.T) {
	var c StatusCounts
	for _, s := range []AssignmentStatus{StatusPending, StatusCompleted, StatusCompleted, StatusDismissed} {
		c.Add(s)
	}
	if c.Pending != 1 || c.Completed != 2 || c.Dismissed != 1 || c.Total != 4 {
		t.Fatalf("unexpected counts %+v", c)
	}

	if !StatusPending.CanTransition(StatusCompleted) || !StatusPending.CanTransition(StatusDismissed) {
		t.Fatalf("pending must move to terminal states")
	}
	if StatusCompleted.CanTransition(StatusDismissed) || StatusDismissed.CanTransition(StatusPending) {
		t.Fatalf("terminal states never move")
	}
}

func TestPatchAlwaysWritesExpiry(t *testing.T) {
	exp := time.Now().Add(time.Hour)
	qs := QuestionSet{Title: "Old", ExpiresAt: &exp, IsActive: true}

	title := "New"
	got := QuestionSetPatch{Title: &title}.Apply(qs)
	if got.Title != "New" || got.ExpiresAt != nil || !got.IsActive {
		t.Fatalf("unexpected patch result %+v", got)
	}
}
