package memory

import (
	"context"
	"sort"
	"time"

	"maihome-survey-service/internal/domain"
)

// QuestionSetRepository implements app.QuestionSetRepository.
type QuestionSetRepository struct {
	s *Store
}

func (r *QuestionSetRepository) Create(_ context.Context, qs domain.QuestionSet, questions []domain.Question) (domain.QuestionSet, error) {
	if err := domain.ValidateQuestions(questions); err != nil {
		return domain.QuestionSet{}, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := r.s.now()
	qs.ID = r.s.newIDLocked()
	qs.CreatedAt, qs.UpdatedAt = now, now
	qs.Questions = nil
	r.s.sets[qs.ID] = qs

	stored := make([]domain.Question, 0, len(questions))
	for _, q := range questions {
		q.ID = r.s.newIDLocked()
		q.QuestionSetID = qs.ID
		q.CreatedAt = now
		stored = append(stored, q)
	}
	r.s.questions[qs.ID] = stored

	qs.Questions = r.s.sortedQuestionsLocked(qs.ID)
	return qs, nil
}

func (r *QuestionSetRepository) List(_ context.Context) ([]domain.QuestionSetSummary, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	assigned := make(map[string]int)
	for _, a := range r.s.assignments {
		assigned[a.QuestionSetID]++
	}
	out := make([]domain.QuestionSetSummary, 0, len(r.s.sets))
	for id, qs := range r.s.sets {
		out = append(out, domain.QuestionSetSummary{
			QuestionSet:     qs,
			QuestionCount:   len(r.s.questions[id]),
			AssignmentCount: assigned[id],
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return r.s.newerFirst(out[i].ID, out[j].ID, out[i].CreatedAt, out[j].CreatedAt)
	})
	return out, nil
}

func (r *QuestionSetRepository) Get(_ context.Context, id string) (domain.QuestionSet, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	qs, ok := r.s.sets[id]
	if !ok {
		return domain.QuestionSet{}, domain.ErrQuestionSetNotFound
	}
	qs.Questions = r.s.sortedQuestionsLocked(id)
	return qs, nil
}

func (r *QuestionSetRepository) LoadQuestions(_ context.Context, setID string) ([]domain.Question, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if _, ok := r.s.sets[setID]; !ok {
		return nil, domain.ErrQuestionSetNotFound
	}
	return r.s.sortedQuestionsLocked(setID), nil
}

// Update validates the whole change before touching anything, so a rejected
// question list leaves the set untouched.
func (r *QuestionSetRepository) Update(_ context.Context, id string, patch domain.QuestionSetPatch, incoming []domain.QuestionInput, at time.Time) (domain.QuestionSet, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	qs, ok := r.s.sets[id]
	if !ok {
		return domain.QuestionSet{}, domain.ErrQuestionSetNotFound
	}

	var plan *domain.QuestionPlan
	if incoming != nil {
		p, err := domain.PlanQuestions(r.s.sortedQuestionsLocked(id), incoming)
		if err != nil {
			return domain.QuestionSet{}, err
		}
		plan = &p
	}

	qs = patch.Apply(qs)
	qs.UpdatedAt = at
	r.s.sets[id] = qs

	if plan != nil {
		r.applyPlanLocked(id, *plan, at)
	}

	qs.Questions = r.s.sortedQuestionsLocked(id)
	return qs, nil
}

func (r *QuestionSetRepository) applyPlanLocked(setID string, plan domain.QuestionPlan, at time.Time) {
	gone := make(map[string]struct{}, len(plan.Delete))
	for _, qid := range plan.Delete {
		gone[qid] = struct{}{}
		delete(r.s.order, qid)
	}
	updates := make(map[string]domain.Question, len(plan.Update))
	for _, q := range plan.Update {
		updates[q.ID] = q
	}

	kept := make([]domain.Question, 0, len(plan.Update)+len(plan.Insert))
	for _, q := range r.s.questions[setID] {
		if _, drop := gone[q.ID]; drop {
			continue
		}
		if u, ok := updates[q.ID]; ok {
			q = u
		}
		kept = append(kept, q)
	}
	for _, q := range plan.Insert {
		q.ID = r.s.newIDLocked()
		q.QuestionSetID = setID
		q.CreatedAt = at
		kept = append(kept, q)
	}
	r.s.questions[setID] = kept

	if len(gone) == 0 {
		return
	}
	for aid, a := range r.s.assignments {
		if a.QuestionSetID != setID {
			continue
		}
		for qid := range gone {
			delete(r.s.responses[aid], qid)
		}
	}
}

// Delete removes the set and cascades to questions, assignments and responses.
func (r *QuestionSetRepository) Delete(_ context.Context, id string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.sets[id]; !ok {
		return false, nil
	}
	for _, q := range r.s.questions[id] {
		delete(r.s.order, q.ID)
	}
	delete(r.s.sets, id)
	delete(r.s.questions, id)
	delete(r.s.order, id)
	for aid, a := range r.s.assignments {
		if a.QuestionSetID == id {
			r.s.deleteAssignmentLocked(aid)
		}
	}
	return true, nil
}
