package app

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"maihome-survey-service/internal/domain"
)

// QuestionSetInput is a new question set with its nested questions.
type QuestionSetInput struct {
	Title             string
	Description       *string
	NotificationTitle string
	NotificationBody  string
	NotificationURL   *string
	ExpiresAt         *time.Time
	IsDismissable     *bool
	IsActive          *bool
	Questions         []domain.QuestionInput
}

// QuestionSetService authors survey templates.
type QuestionSetService struct {
	sets  QuestionSetRepository
	cache QuestionCache
	now   func() time.Time
	log   *zap.Logger
}

func NewQuestionSetService(sets QuestionSetRepository, cache QuestionCache, log *zap.Logger) *QuestionSetService {
	if log == nil {
		log = zap.NewNop()
	}
	return &QuestionSetService{sets: sets, cache: cache, now: time.Now, log: log.Named("question_sets")}
}

// Create validates and stores a set and its questions in one step.
func (s *QuestionSetService) Create(ctx context.Context, in QuestionSetInput) (domain.QuestionSet, error) {
	qs := domain.QuestionSet{
		Title:             strings.TrimSpace(in.Title),
		Description:       in.Description,
		NotificationTitle: strings.TrimSpace(in.NotificationTitle),
		NotificationBody:  strings.TrimSpace(in.NotificationBody),
		NotificationURL:   in.NotificationURL,
		ExpiresAt:         in.ExpiresAt,
		IsDismissable:     true,
		IsActive:          true,
	}
	if in.IsDismissable != nil {
		qs.IsDismissable = *in.IsDismissable
	}
	if in.IsActive != nil {
		qs.IsActive = *in.IsActive
	}
	if err := checkHeader(qs); err != nil {
		return domain.QuestionSet{}, err
	}

	questions := make([]domain.Question, 0, len(in.Questions))
	for i, q := range in.Questions {
		questions = append(questions, q.Build(i, nil))
	}
	if err := domain.ValidateQuestions(questions); err != nil {
		return domain.QuestionSet{}, err
	}

	now := s.now()
	qs.CreatedAt, qs.UpdatedAt = now, now
	created, err := s.sets.Create(ctx, qs, questions)
	if err != nil {
		return domain.QuestionSet{}, err
	}
	s.log.Info("question set created", zap.String("id", created.ID), zap.Int("questions", len(created.Questions)))
	return created, nil
}

// List returns every set with question and assignment counts, newest first.
func (s *QuestionSetService) List(ctx context.Context) ([]domain.QuestionSetSummary, error) {
	return s.sets.List(ctx)
}

// Get returns a set with its questions ordered by order_index.
func (s *QuestionSetService) Get(ctx context.Context, id string) (domain.QuestionSet, error) {
	return s.sets.Get(ctx, id)
}

// Update applies patch and, when questions is non-nil, reconciles the question
// list. Both happen atomically.
func (s *QuestionSetService) Update(ctx context.Context, id string, patch domain.QuestionSetPatch, questions []domain.QuestionInput) (domain.QuestionSet, error) {
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return domain.QuestionSet{}, domain.Invalidf("Title cannot be empty")
	}
	if patch.NotificationTitle != nil && strings.TrimSpace(*patch.NotificationTitle) == "" {
		return domain.QuestionSet{}, domain.Invalidf("Notification title cannot be empty")
	}
	if patch.NotificationBody != nil && strings.TrimSpace(*patch.NotificationBody) == "" {
		return domain.QuestionSet{}, domain.Invalidf("Notification body cannot be empty")
	}

	updated, err := s.sets.Update(ctx, id, patch, questions, s.now())
	if err != nil {
		return domain.QuestionSet{}, err
	}
	s.invalidate(ctx, id)
	return updated, nil
}

// Delete removes a set with its questions and assignments.
func (s *QuestionSetService) Delete(ctx context.Context, id string) (bool, error) {
	ok, err := s.sets.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	if ok {
		s.invalidate(ctx, id)
		s.log.Info("question set deleted", zap.String("id", id))
	}
	return ok, nil
}

func (s *QuestionSetService) invalidate(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, id); err != nil {
		s.log.Warn("question cache invalidation failed", zap.String("id", id), zap.Error(err))
	}
}

func checkHeader(qs domain.QuestionSet) error {
	switch {
	case qs.Title == "":
		return domain.Invalidf("Title is required")
	case qs.NotificationTitle == "":
		return domain.Invalidf("Notification title is required")
	case qs.NotificationBody == "":
		return domain.Invalidf("Notification body is required")
	}
	return nil
}
