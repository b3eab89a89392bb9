package app

import (
	"context"
	"time"

	"maihome-survey-service/internal/domain"
)

// HouseRepository stores house accounts.
type HouseRepository interface {
	Create(ctx context.Context, h domain.House) (domain.House, error)
	List(ctx context.Context) ([]domain.House, error)
	Get(ctx context.Context, id string) (domain.House, error)
	GetByHouseID(ctx context.Context, houseID string) (domain.House, error)
	UpdatePassword(ctx context.Context, id, hash string) error
	Delete(ctx context.Context, id string) (bool, error)
}

// QuestionSetRepository stores question sets together with their questions.
// Create and Update are atomic: either the set and every question change land,
// or nothing does.
type QuestionSetRepository interface {
	Create(ctx context.Context, qs domain.QuestionSet, questions []domain.Question) (domain.QuestionSet, error)
	List(ctx context.Context) ([]domain.QuestionSetSummary, error)
	Get(ctx context.Context, id string) (domain.QuestionSet, error)
	// Update applies patch and, when questions is non-nil, reconciles the
	// stored question list against it with domain.PlanQuestions.
	Update(ctx context.Context, id string, patch domain.QuestionSetPatch, questions []domain.QuestionInput, at time.Time) (domain.QuestionSet, error)
	Delete(ctx context.Context, id string) (bool, error)
	QuestionLoader
}

// QuestionLoader fetches the ordered questions of a set from the backing store.
type QuestionLoader interface {
	LoadQuestions(ctx context.Context, setID string) ([]domain.Question, error)
}

// QuestionCache serves question lists from a cache with TTL, falling back to a loader.
type QuestionCache interface {
	Questions(ctx context.Context, setID string) ([]domain.Question, error)
	Invalidate(ctx context.Context, setID string) error
}

// AssignmentRepository stores assignments and their responses.
type AssignmentRepository interface {
	// Create returns nil when the pair is already assigned.
	Create(ctx context.Context, setID, houseID string) (*domain.Assignment, error)
	// CreateBulk runs in one transaction and returns only the newly created rows.
	CreateBulk(ctx context.Context, setID string, houseIDs []string) ([]domain.Assignment, error)
	MarkNotified(ctx context.Context, ids []string, at time.Time) error
	ListPending(ctx context.Context, houseID string, now time.Time) ([]domain.PendingSurvey, error)
	// GetForHouse returns the assignment without questions.
	GetForHouse(ctx context.Context, id, houseID string) (domain.AssignmentDetail, error)
	// Complete upserts answers and flips the status only while it is still pending.
	Complete(ctx context.Context, id string, answers []domain.Answer, at time.Time) error
	Dismiss(ctx context.Context, id string, at time.Time) error
	UpsertResponse(ctx context.Context, assignmentID, questionID, value string) (domain.Response, error)
	Summary(ctx context.Context, setID string) (domain.ResponseSummary, error)
}

// SubscriptionRepository is the push subscription registry.
type SubscriptionRepository interface {
	// Upsert stores sub by endpoint. An empty HouseID keeps an existing link.
	Upsert(ctx context.Context, sub domain.PushSubscription) error
	Link(ctx context.Context, endpoint, houseID string) (bool, error)
	Delete(ctx context.Context, endpoint string) (bool, error)
	ListByHouses(ctx context.Context, houseIDs []string) ([]domain.PushSubscription, error)
	ListAll(ctx context.Context) ([]domain.PushSubscription, error)
	Count(ctx context.Context) (int64, error)
	HouseUnlinker
}

// HouseUnlinker clears subscription links to a deleted house.
type HouseUnlinker interface {
	UnlinkHouse(ctx context.Context, houseID string) error
}

// PushDeliverer sends one payload to one subscription. An error wrapping
// domain.ErrSubscriptionGone means the endpoint will never accept again.
type PushDeliverer interface {
	Deliver(ctx context.Context, sub domain.PushSubscription, payload domain.NotificationPayload) error
}

// PasswordHasher hashes and checks passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

// TokenIssuer signs session tokens.
type TokenIssuer interface {
	IssueHouse(h domain.House) (string, error)
	IssueAdmin(username string) (string, error)
}
