package memory

import (
	"context"
	"sort"
	"time"

	"maihome-survey-service/internal/domain"
)

// AssignmentRepository implements app.AssignmentRepository.
type AssignmentRepository struct {
	s *Store
}

func (r *AssignmentRepository) Create(_ context.Context, setID, houseID string) (*domain.Assignment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	created, err := r.createLocked(setID, []string{houseID})
	if err != nil || len(created) == 0 {
		return nil, err
	}
	return &created[0], nil
}

func (r *AssignmentRepository) CreateBulk(_ context.Context, setID string, houseIDs []string) ([]domain.Assignment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.createLocked(setID, houseIDs)
}

// createLocked checks every reference before inserting anything.
func (r *AssignmentRepository) createLocked(setID string, houseIDs []string) ([]domain.Assignment, error) {
	if _, ok := r.s.sets[setID]; !ok {
		return nil, domain.ErrQuestionSetNotFound
	}
	for _, hid := range houseIDs {
		if _, ok := r.s.houses[hid]; !ok {
			return nil, domain.ErrUnknownHouse
		}
	}

	existing := make(map[string]struct{})
	for _, a := range r.s.assignments {
		if a.QuestionSetID == setID {
			existing[a.HouseID] = struct{}{}
		}
	}

	now := r.s.now()
	var created []domain.Assignment
	for _, hid := range houseIDs {
		if _, dup := existing[hid]; dup {
			continue
		}
		existing[hid] = struct{}{}
		a := domain.Assignment{
			ID:            r.s.newIDLocked(),
			QuestionSetID: setID,
			HouseID:       hid,
			Status:        domain.StatusPending,
			CreatedAt:     now,
		}
		r.s.assignments[a.ID] = a
		created = append(created, a)
	}
	return created, nil
}

func (r *AssignmentRepository) MarkNotified(_ context.Context, ids []string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, id := range ids {
		a, ok := r.s.assignments[id]
		if !ok {
			continue
		}
		t := at
		a.NotificationSentAt = &t
		r.s.assignments[id] = a
	}
	return nil
}

func (r *AssignmentRepository) ListPending(_ context.Context, houseID string, now time.Time) ([]domain.PendingSurvey, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []domain.PendingSurvey
	for _, a := range r.s.assignments {
		if a.HouseID != houseID || a.Status != domain.StatusPending {
			continue
		}
		qs := r.s.sets[a.QuestionSetID]
		if !qs.IsActive || qs.Expired(now) {
			continue
		}
		out = append(out, domain.PendingSurvey{
			AssignmentID:       a.ID,
			Status:             a.Status,
			NotificationSentAt: a.NotificationSentAt,
			AssignedAt:         a.CreatedAt,
			QuestionSetID:      qs.ID,
			Title:              qs.Title,
			Description:        qs.Description,
			IsDismissable:      qs.IsDismissable,
			ExpiresAt:          qs.ExpiresAt,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return r.s.newerFirst(out[i].AssignmentID, out[j].AssignmentID, out[i].AssignedAt, out[j].AssignedAt)
	})
	return out, nil
}

func (r *AssignmentRepository) GetForHouse(_ context.Context, id, houseID string) (domain.AssignmentDetail, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	a, ok := r.s.assignments[id]
	if !ok || a.HouseID != houseID {
		return domain.AssignmentDetail{}, domain.ErrAssignmentNotFound
	}
	qs := r.s.sets[a.QuestionSetID]
	return domain.AssignmentDetail{
		Assignment:    a,
		Title:         qs.Title,
		Description:   qs.Description,
		IsDismissable: qs.IsDismissable,
	}, nil
}

func (r *AssignmentRepository) Complete(_ context.Context, id string, answers []domain.Answer, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.assignments[id]
	if !ok {
		return domain.ErrAssignmentNotFound
	}
	if !a.Status.CanTransition(domain.StatusCompleted) {
		return domain.ErrAssignmentNotPending
	}
	// The caller validated against a possibly cached question list.
	if err := domain.CheckRequired(r.s.questions[a.QuestionSetID], answers); err != nil {
		return err
	}
	for _, ans := range answers {
		if _, err := r.upsertLocked(a, ans.QuestionID, ans.Value); err != nil {
			return err
		}
	}
	t := at
	a.Status = domain.StatusCompleted
	a.CompletedAt = &t
	r.s.assignments[id] = a
	return nil
}

func (r *AssignmentRepository) Dismiss(_ context.Context, id string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.assignments[id]
	if !ok {
		return domain.ErrAssignmentNotFound
	}
	if !a.Status.CanTransition(domain.StatusDismissed) {
		return domain.ErrAssignmentNotPending
	}
	t := at
	a.Status = domain.StatusDismissed
	a.CompletedAt = &t
	r.s.assignments[id] = a
	return nil
}

func (r *AssignmentRepository) UpsertResponse(_ context.Context, assignmentID, questionID, value string) (domain.Response, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.assignments[assignmentID]
	if !ok {
		return domain.Response{}, domain.ErrAssignmentNotFound
	}
	return r.upsertLocked(a, questionID, value)
}

func (r *AssignmentRepository) upsertLocked(a domain.Assignment, questionID, value string) (domain.Response, error) {
	known := false
	for _, q := range r.s.questions[a.QuestionSetID] {
		if q.ID == questionID {
			known = true
			break
		}
	}
	if !known {
		return domain.Response{}, domain.Invalidf("Unknown question %s", questionID)
	}

	byQuestion := r.s.responses[a.ID]
	if byQuestion == nil {
		byQuestion = make(map[string]domain.Response)
		r.s.responses[a.ID] = byQuestion
	}
	resp, ok := byQuestion[questionID]
	if !ok {
		resp = domain.Response{
			ID:           r.s.newIDLocked(),
			AssignmentID: a.ID,
			QuestionID:   questionID,
			CreatedAt:    r.s.now(),
		}
	}
	resp.Value = value
	byQuestion[questionID] = resp
	return resp, nil
}

func (r *AssignmentRepository) Summary(_ context.Context, setID string) (domain.ResponseSummary, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if _, ok := r.s.sets[setID]; !ok {
		return domain.ResponseSummary{}, domain.ErrQuestionSetNotFound
	}

	questions := make(map[string]domain.Question)
	for _, q := range r.s.questions[setID] {
		questions[q.ID] = q
	}

	var assigned []domain.Assignment
	for _, a := range r.s.assignments {
		if a.QuestionSetID == setID {
			assigned = append(assigned, a)
		}
	}
	sort.Slice(assigned, func(i, j int) bool {
		ci, cj := assigned[i].CompletedAt, assigned[j].CompletedAt
		switch {
		case ci != nil && cj != nil && !ci.Equal(*cj):
			return ci.After(*cj)
		case ci == nil && cj != nil:
			return true
		case ci != nil && cj == nil:
			return false
		}
		return r.s.order[assigned[i].ID] < r.s.order[assigned[j].ID]
	})

	summary := domain.ResponseSummary{Responses: []domain.ResponseRow{}}
	for _, a := range assigned {
		summary.Summary.Add(a.Status)
		h := r.s.houses[a.HouseID]
		base := domain.ResponseRow{
			AssignmentID:    a.ID,
			HouseID:         h.ID,
			HouseIdentifier: h.HouseID,
			HouseName:       h.Name,
			Status:          a.Status,
			CompletedAt:     a.CompletedAt,
		}

		var rows []domain.ResponseRow
		for qid, resp := range r.s.responses[a.ID] {
			q, ok := questions[qid]
			if !ok {
				continue
			}
			row := base
			id, ident, text, typ, idx, val := q.ID, q.Identifier, q.Text, q.Type, q.OrderIndex, resp.Value
			row.QuestionID, row.QuestionIdentifier, row.QuestionText = &id, &ident, &text
			row.QuestionType, row.OrderIndex, row.ResponseValue = &typ, &idx, &val
			rows = append(rows, row)
		}
		if len(rows) == 0 {
			summary.Responses = append(summary.Responses, base)
			continue
		}
		sort.Slice(rows, func(i, j int) bool { return *rows[i].OrderIndex < *rows[j].OrderIndex })
		summary.Responses = append(summary.Responses, rows...)
	}
	return summary, nil
}
