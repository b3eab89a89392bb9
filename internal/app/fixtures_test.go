package app_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"maihome-survey-service/internal/app"
	"maihome-survey-service/internal/domain"
	"maihome-survey-service/internal/infra/memory"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// plainHasher keeps tests fast; bcrypt is covered in internal/auth.
type plainHasher struct{}

func (plainHasher) Hash(p string) (string, error) { return "hashed:" + p, nil }

func (plainHasher) Compare(hash, p string) error {
	if hash != "hashed:"+p {
		return errors.New("mismatch")
	}
	return nil
}

type stubTokens struct{}

func (stubTokens) IssueHouse(h domain.House) (string, error) { return "house:" + h.ID, nil }
func (stubTokens) IssueAdmin(u string) (string, error)       { return "admin:" + u, nil }

// fakePush records deliveries. Endpoints listed in gone report
// ErrSubscriptionGone; endpoints in broken fail transiently.
type fakePush struct {
	mu        sync.Mutex
	delivered []string
	payloads  []domain.NotificationPayload
	gone      map[string]bool
	broken    map[string]bool
}

func (p *fakePush) Deliver(_ context.Context, sub domain.PushSubscription, payload domain.NotificationPayload) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gone[sub.Endpoint] {
		return domain.ErrSubscriptionGone
	}
	if p.broken[sub.Endpoint] {
		return errors.New("push service unavailable")
	}
	p.delivered = append(p.delivered, sub.Endpoint)
	p.payloads = append(p.payloads, payload)
	return nil
}

type fixture struct {
	store      *memory.Store
	subs       *memory.SubscriptionStore
	push       *fakePush
	houses     *app.HouseService
	sets       *app.QuestionSetService
	engine     *app.SurveyEngine
	dispatcher *app.Dispatcher
	sender     *app.SurveySender
	auth       *app.AuthService
	now        time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		subs: memory.NewSubscriptionStore(),
		push: &fakePush{gone: map[string]bool{}, broken: map[string]bool{}},
		now:  time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }
	f.store = memory.NewStoreWithClock(clock)
	cache := memory.NewQuestionCache(f.store.QuestionSets(), time.Minute)

	f.dispatcher = app.NewDispatcher(f.subs, f.push, "public-key", 4, nil)
	f.houses = app.NewHouseService(f.store.Houses(), plainHasher{}, f.dispatcher, nil)
	f.sets = app.NewQuestionSetService(f.store.QuestionSets(), cache, nil)
	f.engine = app.NewSurveyEngineWithClock(f.store.Assignments(), cache, nil, clock)
	f.sender = app.NewSurveySender(f.store.QuestionSets(), f.engine, f.dispatcher, nil)
	f.auth = app.NewAuthService(f.store.Houses(), plainHasher{}, stubTokens{},
		app.AdminCredentials{Username: "admin", PasswordHash: "hashed:s3cret"}, nil)
	return f
}

// tick advances the fixture clock so rows get distinct timestamps.
func (f *fixture) tick() {
	f.now = f.now.Add(time.Second)
}

func (f *fixture) house(t *testing.T, id string) domain.House {
	t.Helper()
	h, err := f.houses.Create(context.Background(), id, "pw-"+id, "House "+id)
	if err != nil {
		t.Fatalf("create house %s: %v", id, err)
	}
	f.tick()
	return h
}

func (f *fixture) questionSet(t *testing.T, dismissable bool) domain.QuestionSet {
	t.Helper()
	optional := false
	qs, err := f.sets.Create(context.Background(), app.QuestionSetInput{
		Title:             "Heating survey",
		NotificationTitle: "New survey",
		NotificationBody:  "Tell us about your heating",
		IsDismissable:     &dismissable,
		Questions: []domain.QuestionInput{
			{Identifier: "intro", Type: domain.QuestionDisplay, Text: "Thanks for helping"},
			{Identifier: "warm", Type: domain.QuestionRadio, Text: "Is it warm?", Options: []domain.Option{{Value: "yes", Label: "Yes"}, {Value: "no", Label: "No"}}},
			{Identifier: "notes", Type: domain.QuestionOpenText, Text: "Anything else?", IsRequired: &optional},
		},
	})
	if err != nil {
		t.Fatalf("create question set: %v", err)
	}
	f.tick()
	return qs
}

func questionID(t *testing.T, qs domain.QuestionSet, identifier string) string {
	t.Helper()
	for _, q := range qs.Questions {
		if q.Identifier == identifier {
			return q.ID
		}
	}
	t.Fatalf("question %s not in set", identifier)
	return ""
}

func subscription(endpoint string) domain.PushSubscription {
	return domain.PushSubscription{
		Endpoint: endpoint,
		Keys:     domain.SubscriptionKeys{P256dh: "p256-" + strings.TrimPrefix(endpoint, "https://"), Auth: "auth"},
	}
}
