package app

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"maihome-survey-service/internal/domain"
)

// SurveyEngine owns the assignment lifecycle and response collection.
type SurveyEngine struct {
	assignments AssignmentRepository
	questions   QuestionCache
	now         func() time.Time
	log         *zap.Logger
}

func NewSurveyEngine(assignments AssignmentRepository, questions QuestionCache, log *zap.Logger) *SurveyEngine {
	return NewSurveyEngineWithClock(assignments, questions, log, time.Now)
}

// NewSurveyEngineWithClock is used by tests that need deterministic timestamps.
func NewSurveyEngineWithClock(assignments AssignmentRepository, questions QuestionCache, log *zap.Logger, now func() time.Time) *SurveyEngine {
	if log == nil {
		log = zap.NewNop()
	}
	return &SurveyEngine{assignments: assignments, questions: questions, now: now, log: log.Named("surveys")}
}

// Assign creates a single assignment. It returns nil when the house already
// has this set.
func (e *SurveyEngine) Assign(ctx context.Context, setID, houseID string) (*domain.Assignment, error) {
	return e.assignments.Create(ctx, setID, houseID)
}

// AssignBulk assigns setID to every house atomically. Houses that already have
// the set are skipped; only newly created assignments are returned.
func (e *SurveyEngine) AssignBulk(ctx context.Context, setID string, houseIDs []string) ([]domain.Assignment, error) {
	ids := dedupe(houseIDs)
	if len(ids) == 0 {
		return nil, nil
	}
	created, err := e.assignments.CreateBulk(ctx, setID, ids)
	if err != nil {
		return nil, err
	}
	e.log.Info("survey assigned",
		zap.String("question_set_id", setID),
		zap.Int("requested", len(ids)),
		zap.Int("created", len(created)))
	return created, nil
}

// ListPending returns the open surveys of a house, newest assignment first.
// Inactive and expired sets are left out.
func (e *SurveyEngine) ListPending(ctx context.Context, houseID string) ([]domain.PendingSurvey, error) {
	return e.assignments.ListPending(ctx, houseID, e.now())
}

// GetForResponse returns an assignment of houseID with the questions to answer.
func (e *SurveyEngine) GetForResponse(ctx context.Context, assignmentID, houseID string) (domain.AssignmentDetail, error) {
	detail, err := e.assignments.GetForHouse(ctx, assignmentID, houseID)
	if err != nil {
		return domain.AssignmentDetail{}, err
	}
	qs, err := e.questions.Questions(ctx, detail.QuestionSetID)
	if err != nil {
		return domain.AssignmentDetail{}, err
	}
	detail.Questions = qs
	return detail, nil
}

// Submit validates answers against the question set and completes the assignment.
func (e *SurveyEngine) Submit(ctx context.Context, assignmentID, houseID string, answers []domain.Answer) error {
	detail, err := e.assignments.GetForHouse(ctx, assignmentID, houseID)
	if err != nil {
		return err
	}
	if detail.Status != domain.StatusPending {
		return domain.ErrAssignmentNotPending
	}
	qs, err := e.questions.Questions(ctx, detail.QuestionSetID)
	if err != nil {
		return err
	}
	accepted, err := checkAnswers(qs, answers)
	if err != nil {
		return err
	}
	if err := e.assignments.Complete(ctx, assignmentID, accepted, e.now()); err != nil {
		return err
	}
	e.log.Info("survey completed",
		zap.String("assignment_id", assignmentID),
		zap.String("house", houseID),
		zap.Int("answers", len(accepted)))
	return nil
}

// RecordResponse stores or overwrites a single answer.
func (e *SurveyEngine) RecordResponse(ctx context.Context, assignmentID, questionID, value string) (domain.Response, error) {
	return e.assignments.UpsertResponse(ctx, assignmentID, questionID, value)
}

// Dismiss closes a pending assignment without answers when its set allows it.
func (e *SurveyEngine) Dismiss(ctx context.Context, assignmentID, houseID string) error {
	detail, err := e.assignments.GetForHouse(ctx, assignmentID, houseID)
	if err != nil {
		return err
	}
	if !detail.IsDismissable {
		return domain.ErrNotDismissable
	}
	if detail.Status != domain.StatusPending {
		return domain.ErrAssignmentNotPending
	}
	if err := e.assignments.Dismiss(ctx, assignmentID, e.now()); err != nil {
		return err
	}
	e.log.Info("survey dismissed", zap.String("assignment_id", assignmentID), zap.String("house", houseID))
	return nil
}

// Summary reports status counts and every answer given for setID.
func (e *SurveyEngine) Summary(ctx context.Context, setID string) (domain.ResponseSummary, error) {
	return e.assignments.Summary(ctx, setID)
}

// MarkNotified stamps notification_sent_at on the given assignments.
func (e *SurveyEngine) MarkNotified(ctx context.Context, assignmentIDs []string) error {
	if len(assignmentIDs) == 0 {
		return nil
	}
	return e.assignments.MarkNotified(ctx, assignmentIDs, e.now())
}

// checkAnswers returns the answers worth storing in question order. Blank
// answers are dropped whatever the question type; a later answer for the
// same question replaces an earlier one.
func checkAnswers(questions []domain.Question, answers []domain.Answer) ([]domain.Answer, error) {
	byID := make(map[string]domain.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}

	given := make(map[string]string, len(answers))
	for _, a := range answers {
		q, ok := byID[a.QuestionID]
		if !ok {
			return nil, domain.Invalidf("Unknown question %s", a.QuestionID)
		}
		v := a.Value
		if strings.TrimSpace(v) == "" {
			delete(given, q.ID)
			continue
		}
		if q.Type == domain.QuestionDisplay {
			return nil, domain.Invalidf("Question %q does not take an answer", q.Identifier)
		}
		if !q.Accepts(v) {
			return nil, domain.Invalidf("%q is not an option of question %q", v, q.Identifier)
		}
		given[q.ID] = v
	}

	out := make([]domain.Answer, 0, len(given))
	for _, q := range questions {
		v, ok := given[q.ID]
		if !ok {
			if q.NeedsAnswer() {
				return nil, domain.Invalidf("Question %q is required", q.Text)
			}
			continue
		}
		out = append(out, domain.Answer{QuestionID: q.ID, Value: v})
	}
	return out, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
