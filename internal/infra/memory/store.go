package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"maihome-survey-service/internal/domain"
)

// Store is an in-process implementation of the house, question set and
// assignment repositories. All three share one lock so cascades and
// multi-row writes are atomic.
type Store struct {
	mu    sync.RWMutex
	now   func() time.Time
	seq   int64
	order map[string]int64

	houses      map[string]domain.House
	sets        map[string]domain.QuestionSet
	questions   map[string][]domain.Question
	assignments map[string]domain.Assignment
	responses   map[string]map[string]domain.Response
}

func NewStore() *Store {
	return NewStoreWithClock(time.Now)
}

// NewStoreWithClock is test-only for deterministic timestamps.
func NewStoreWithClock(now func() time.Time) *Store {
	return &Store{
		now:         now,
		order:       make(map[string]int64),
		houses:      make(map[string]domain.House),
		sets:        make(map[string]domain.QuestionSet),
		questions:   make(map[string][]domain.Question),
		assignments: make(map[string]domain.Assignment),
		responses:   make(map[string]map[string]domain.Response),
	}
}

// Houses returns the app.HouseRepository view of the store.
func (s *Store) Houses() *HouseRepository { return &HouseRepository{s} }

// QuestionSets returns the app.QuestionSetRepository view of the store.
func (s *Store) QuestionSets() *QuestionSetRepository { return &QuestionSetRepository{s} }

// Assignments returns the app.AssignmentRepository view of the store.
func (s *Store) Assignments() *AssignmentRepository { return &AssignmentRepository{s} }

// newIDLocked returns a fresh id and remembers its insertion rank.
func (s *Store) newIDLocked() string {
	id := uuid.NewString()
	s.seq++
	s.order[id] = s.seq
	return id
}

// newerFirst orders by timestamp descending, then by insertion rank descending.
func (s *Store) newerFirst(ai, bi string, at, bt time.Time) bool {
	if !at.Equal(bt) {
		return at.After(bt)
	}
	return s.order[ai] > s.order[bi]
}

func (s *Store) sortedQuestionsLocked(setID string) []domain.Question {
	qs := append([]domain.Question(nil), s.questions[setID]...)
	sort.SliceStable(qs, func(i, j int) bool { return qs[i].OrderIndex < qs[j].OrderIndex })
	return qs
}

func (s *Store) deleteAssignmentLocked(id string) {
	delete(s.assignments, id)
	delete(s.responses, id)
	delete(s.order, id)
}
