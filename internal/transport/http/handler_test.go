package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"golang.org/x/crypto/bcrypt"

	"maihome-survey-service/internal/app"
	"maihome-survey-service/internal/auth"
	"maihome-survey-service/internal/domain"
	"maihome-survey-service/internal/infra/memory"
)

type recordingPush struct {
	mu        sync.Mutex
	delivered []domain.NotificationPayload
	endpoints []string
	gone      map[string]bool
}

func (p *recordingPush) Deliver(_ context.Context, sub domain.PushSubscription, payload domain.NotificationPayload) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gone[sub.Endpoint] {
		return domain.ErrSubscriptionGone
	}
	p.delivered = append(p.delivered, payload)
	p.endpoints = append(p.endpoints, sub.Endpoint)
	return nil
}

func (p *recordingPush) sent() []domain.NotificationPayload {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.NotificationPayload(nil), p.delivered...)
}

func (p *recordingPush) sentTo() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.endpoints...)
}

func (p *recordingPush) expire(endpoint string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gone[endpoint] = true
}

type testAPI struct {
	t      *testing.T
	srv    *httptest.Server
	push   *recordingPush
	tokens *auth.Tokens
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	store := memory.NewStore()
	subs := memory.NewSubscriptionStore()
	push := &recordingPush{gone: map[string]bool{}}
	hasher := auth.NewHasher(bcrypt.MinCost)
	tokens, err := auth.NewTokens("test-secret", time.Hour)
	require.NoError(t, err)
	adminHash, err := hasher.Hash("admin-pw")
	require.NoError(t, err)

	cache := memory.NewQuestionCache(store.QuestionSets(), time.Minute)
	dispatcher := app.NewDispatcher(subs, push, "BPublicKey", 2, nil)
	engine := app.NewSurveyEngine(store.Assignments(), cache, nil)
	h := NewHandler(Deps{
		Auth:         app.NewAuthService(store.Houses(), hasher, tokens, app.AdminCredentials{Username: "admin", PasswordHash: adminHash}, nil),
		Houses:       app.NewHouseService(store.Houses(), hasher, dispatcher, nil),
		QuestionSets: app.NewQuestionSetService(store.QuestionSets(), cache, nil),
		Surveys:      engine,
		Sender:       app.NewSurveySender(store.QuestionSets(), engine, dispatcher, nil),
		Dispatcher:   dispatcher,
		Tokens:       tokens,
		CORSOrigins:  []string{"https://admin.maihome.test"},
	})
	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)
	return &testAPI{t: t, srv: srv, push: push, tokens: tokens}
}

func (a *testAPI) do(method, path, token string, body any) (*http.Response, []byte) {
	a.t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(a.t, err)
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, a.srv.URL+path, rd)
	require.NoError(a.t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if rd != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(a.t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(a.t, err)
	return resp, out
}

// expect performs a request, checks the status and decodes the body into v.
func (a *testAPI) expect(status int, method, path, token string, body, v any) {
	a.t.Helper()
	resp, raw := a.do(method, path, token, body)
	if resp.StatusCode != status {
		a.t.Fatalf("%s %s: status %d, want %d (body %s)", method, path, resp.StatusCode, status, raw)
	}
	if v != nil {
		require.NoError(a.t, json.Unmarshal(raw, v))
	}
}

func (a *testAPI) errorOf(status int, method, path, token string, body any) string {
	a.t.Helper()
	var e errorBody
	a.expect(status, method, path, token, body, &e)
	return e.Error
}

func (a *testAPI) adminToken() string {
	a.t.Helper()
	var out loginResponse
	a.expect(http.StatusOK, http.MethodPost, "/api/auth/admin/login", "",
		map[string]string{"username": "admin", "password": "admin-pw"}, &out)
	return out.Token
}

func (a *testAPI) createHouse(admin, houseID string) domain.House {
	a.t.Helper()
	var h domain.House
	a.expect(http.StatusCreated, http.MethodPost, "/api/surveys/houses", admin,
		map[string]string{"houseId": houseID, "password": "pw-" + houseID, "name": "House " + houseID}, &h)
	return h
}

func (a *testAPI) houseToken(houseID string) string {
	a.t.Helper()
	var out loginResponse
	a.expect(http.StatusOK, http.MethodPost, "/api/auth/login", "",
		map[string]string{"houseId": houseID, "password": "pw-" + houseID}, &out)
	require.NotNil(a.t, out.House)
	require.Equal(a.t, houseID, out.House.HouseID)
	return out.Token
}

func (a *testAPI) createQuestionSet(admin string, dismissable bool) domain.QuestionSet {
	a.t.Helper()
	var qs domain.QuestionSet
	a.expect(http.StatusCreated, http.MethodPost, "/api/surveys/question-sets", admin, map[string]any{
		"title":             "Heating survey",
		"notificationTitle": "New survey",
		"notificationBody":  "Tell us about your heating",
		"isDismissable":     dismissable,
		"questions": []map[string]any{
			{"identifier": "intro", "type": "display", "questionText": "Thanks for helping"},
			{"identifier": "warm", "type": "radio", "questionText": "Is it warm?",
				"options": []map[string]string{{"value": "yes", "label": "Yes"}, {"value": "no", "label": "No"}}},
			{"identifier": "notes", "type": "open_text", "questionText": "Anything else?", "isRequired": false},
		},
	}, &qs)
	require.Len(a.t, qs.Questions, 3)
	return qs
}

func questionID(t *testing.T, qs domain.QuestionSet, identifier string) string {
	t.Helper()
	for _, q := range qs.Questions {
		if q.Identifier == identifier {
			return q.ID
		}
	}
	t.Fatalf("question %s not found", identifier)
	return ""
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t)
	var out map[string]string
	api.expect(http.StatusOK, http.MethodGet, "/api/health", "", nil, &out)
	if out["status"] != "ok" || out["timestamp"] == "" {
		t.Fatalf("unexpected health body: %v", out)
	}
}

func TestAuthGuards(t *testing.T) {
	api := newTestAPI(t)
	admin := api.adminToken()
	api.createHouse(admin, "H-1")
	house := api.houseToken("H-1")

	if msg := api.errorOf(http.StatusUnauthorized, http.MethodGet, "/api/surveys/houses", "", nil); msg != "Access token required" {
		t.Fatalf("missing token: %q", msg)
	}
	api.errorOf(http.StatusForbidden, http.MethodGet, "/api/surveys/houses", "not-a-token", nil)
	api.errorOf(http.StatusForbidden, http.MethodGet, "/api/surveys/houses", house, nil)
	api.errorOf(http.StatusForbidden, http.MethodGet, "/api/my-surveys/pending", admin, nil)

	api.errorOf(http.StatusUnauthorized, http.MethodPost, "/api/auth/login", "",
		map[string]string{"houseId": "H-1", "password": "wrong"})
	api.errorOf(http.StatusUnauthorized, http.MethodPost, "/api/auth/admin/login", "",
		map[string]string{"username": "admin", "password": "wrong"})
	api.errorOf(http.StatusBadRequest, http.MethodPost, "/api/auth/login", "", "not json")

	var me domain.House
	api.expect(http.StatusOK, http.MethodGet, "/api/auth/me", house, nil, &me)
	require.Equal(t, "H-1", me.HouseID)
}

func TestCORSPreflight(t *testing.T) {
	api := newTestAPI(t)
	req, err := http.NewRequest(http.MethodOptions, api.srv.URL+"/api/surveys/houses", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://admin.maihome.test")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, "https://admin.maihome.test", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestHouseManagement(t *testing.T) {
	api := newTestAPI(t)
	admin := api.adminToken()
	h := api.createHouse(admin, "H-1")

	if msg := api.errorOf(http.StatusConflict, http.MethodPost, "/api/surveys/houses", admin,
		map[string]string{"houseId": "H-1", "password": "x"}); msg != "House ID already exists" {
		t.Fatalf("duplicate house: %q", msg)
	}
	api.errorOf(http.StatusBadRequest, http.MethodPost, "/api/surveys/houses", admin, map[string]string{"houseId": "H-2"})

	var list []domain.House
	api.expect(http.StatusOK, http.MethodGet, "/api/surveys/houses", admin, nil, &list)
	require.Len(t, list, 1)
	require.NotContains(t, mustJSON(t, list), "password")

	api.expect(http.StatusOK, http.MethodPut, "/api/surveys/houses/"+h.ID+"/password", admin,
		map[string]string{"password": "changed"}, nil)
	api.errorOf(http.StatusUnauthorized, http.MethodPost, "/api/auth/login", "",
		map[string]string{"houseId": "H-1", "password": "pw-H-1"})
	api.expect(http.StatusOK, http.MethodPost, "/api/auth/login", "",
		map[string]string{"houseId": "H-1", "password": "changed"}, nil)

	api.errorOf(http.StatusNotFound, http.MethodGet, "/api/surveys/houses/not-a-uuid", admin, nil)
	api.expect(http.StatusOK, http.MethodDelete, "/api/surveys/houses/"+h.ID, admin, nil, nil)
	api.errorOf(http.StatusNotFound, http.MethodDelete, "/api/surveys/houses/"+h.ID, admin, nil)
}

func TestQuestionSetBodiesAreSchemaChecked(t *testing.T) {
	api := newTestAPI(t)
	admin := api.adminToken()

	msg := api.errorOf(http.StatusBadRequest, http.MethodPost, "/api/surveys/question-sets", admin,
		map[string]any{"notificationTitle": "n", "notificationBody": "b"})
	require.Contains(t, msg, "Invalid request body")

	api.errorOf(http.StatusBadRequest, http.MethodPost, "/api/surveys/question-sets", admin, map[string]any{
		"title": "t", "notificationTitle": "n", "notificationBody": "b",
		"questions": []map[string]any{{"identifier": "q", "type": "slider", "questionText": "?"}},
	})

	// Radio without options passes the schema but not question validation.
	api.errorOf(http.StatusBadRequest, http.MethodPost, "/api/surveys/question-sets", admin, map[string]any{
		"title": "t", "notificationTitle": "n", "notificationBody": "b",
		"questions": []map[string]any{{"identifier": "q", "type": "radio", "questionText": "?"}},
	})

	api.errorOf(http.StatusBadRequest, http.MethodPost, "/api/surveys/question-sets", admin, map[string]any{
		"title": "t", "notificationTitle": "n", "notificationBody": "b", "expiresAt": "next tuesday",
	})
}

func TestQuestionSetUpdateReconcilesQuestions(t *testing.T) {
	api := newTestAPI(t)
	admin := api.adminToken()
	qs := api.createQuestionSet(admin, true)

	var updated domain.QuestionSet
	api.expect(http.StatusOK, http.MethodPut, "/api/surveys/question-sets/"+qs.ID, admin, map[string]any{
		"title":     "Heating survey v2",
		"expiresAt": "2030-01-02T15:04",
		"questions": []map[string]any{
			{"id": questionID(t, qs, "warm"), "questionText": "Is your home warm?"},
			{"identifier": "floor", "type": "open_text", "questionText": "Which floor?"},
		},
	}, &updated)
	require.Equal(t, "Heating survey v2", updated.Title)
	require.Equal(t, "New survey", updated.NotificationTitle)
	require.NotNil(t, updated.ExpiresAt)
	require.Len(t, updated.Questions, 2)
	require.Equal(t, "warm", updated.Questions[0].Identifier)
	require.Equal(t, "Is your home warm?", updated.Questions[0].Text)
	require.Equal(t, 0, updated.Questions[0].OrderIndex)
	require.Equal(t, "floor", updated.Questions[1].Identifier)

	var list []domain.QuestionSetSummary
	api.expect(http.StatusOK, http.MethodGet, "/api/surveys/question-sets", admin, nil, &list)
	require.Len(t, list, 1)
	require.Equal(t, 2, list[0].QuestionCount)

	api.errorOf(http.StatusNotFound, http.MethodPut, "/api/surveys/question-sets/nope", admin, map[string]any{"title": "x"})
	api.expect(http.StatusOK, http.MethodDelete, "/api/surveys/question-sets/"+qs.ID, admin, nil, nil)
	api.errorOf(http.StatusNotFound, http.MethodGet, "/api/surveys/question-sets/"+qs.ID, admin, nil)
}

func TestSurveyLifecycleOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	admin := api.adminToken()
	api.createHouse(admin, "H-1")
	api.createHouse(admin, "H-2")
	h1 := api.houseToken("H-1")
	qs := api.createQuestionSet(admin, false)

	api.expect(http.StatusCreated, http.MethodPost, "/api/subscribe", h1, map[string]any{
		"endpoint": "https://push.test/h1",
		"keys":     map[string]string{"p256dh": "p", "auth": "a"},
	}, nil)

	houses := []domain.House{}
	api.expect(http.StatusOK, http.MethodGet, "/api/surveys/houses", admin, nil, &houses)
	var ids []string
	for _, h := range houses {
		ids = append(ids, h.ID)
	}

	var sent domain.SendResult
	api.expect(http.StatusOK, http.MethodPost, "/api/surveys/send-survey", admin,
		map[string]any{"questionSetId": qs.ID, "houseIds": ids}, &sent)
	require.Equal(t, domain.SendResult{AssignmentsCreated: 2, NotificationsSent: 1}, sent)
	delivered := api.push.sent()
	require.Len(t, delivered, 1)
	require.Equal(t, "/surveys", delivered[0].URL)

	api.errorOf(http.StatusBadRequest, http.MethodPost, "/api/surveys/send-survey", admin,
		map[string]any{"questionSetId": qs.ID, "houseIds": []string{}})

	var pending []domain.PendingSurvey
	api.expect(http.StatusOK, http.MethodGet, "/api/my-surveys/pending", h1, nil, &pending)
	require.Len(t, pending, 1)
	require.NotNil(t, pending[0].NotificationSentAt)
	assignment := pending[0].AssignmentID

	var detail domain.AssignmentDetail
	api.expect(http.StatusOK, http.MethodGet, "/api/my-surveys/"+assignment, h1, nil, &detail)
	require.Len(t, detail.Questions, 3)
	api.errorOf(http.StatusNotFound, http.MethodGet, "/api/my-surveys/not-a-uuid", h1, nil)

	h2 := api.houseToken("H-2")
	api.errorOf(http.StatusNotFound, http.MethodGet, "/api/my-surveys/"+assignment, h2, nil)

	if msg := api.errorOf(http.StatusConflict, http.MethodPost, "/api/my-surveys/"+assignment+"/dismiss", h1, nil); msg != "This survey cannot be dismissed" {
		t.Fatalf("dismiss: %q", msg)
	}
	api.errorOf(http.StatusBadRequest, http.MethodPost, "/api/my-surveys/"+assignment+"/respond", h1, map[string]any{})
	msg := api.errorOf(http.StatusBadRequest, http.MethodPost, "/api/my-surveys/"+assignment+"/respond", h1,
		map[string]any{"responses": []map[string]string{}})
	require.Contains(t, msg, "Is it warm?")

	answers := map[string]any{"responses": []map[string]string{
		{"questionId": questionID(t, qs, "warm"), "value": "yes"},
		{"questionId": questionID(t, qs, "notes"), "value": "cosy"},
	}}
	api.expect(http.StatusOK, http.MethodPost, "/api/my-surveys/"+assignment+"/respond", h1, answers, nil)
	api.errorOf(http.StatusConflict, http.MethodPost, "/api/my-surveys/"+assignment+"/respond", h1, answers)

	api.expect(http.StatusOK, http.MethodGet, "/api/my-surveys/pending", h1, nil, &pending)
	require.Empty(t, pending)

	var summary domain.ResponseSummary
	api.expect(http.StatusOK, http.MethodGet, "/api/surveys/question-sets/"+qs.ID+"/responses", admin, nil, &summary)
	require.Equal(t, domain.StatusCounts{Pending: 1, Completed: 1, Total: 2}, summary.Summary)
	require.Len(t, summary.Responses, 3)
	require.Equal(t, "H-2", summary.Responses[0].HouseIdentifier, "pending rows first")
	require.Equal(t, "H-1", summary.Responses[1].HouseIdentifier)

	resp, raw := api.do(http.MethodGet, "/api/surveys/question-sets/"+qs.ID+"/responses/export", admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, xlsxContentType, resp.Header.Get("Content-Type"))
	f, err := excelize.OpenReader(bytes.NewReader(raw))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Responses")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, []string{"H-2", "House H-2", "pending"}, rows[1][:3])
	require.Equal(t, []string{"H-1", "House H-1", "completed"}, rows[2][:3])
}

func TestNotificationPlumbing(t *testing.T) {
	api := newTestAPI(t)
	admin := api.adminToken()
	h := api.createHouse(admin, "H-1")
	house := api.houseToken("H-1")

	var key map[string]string
	api.expect(http.StatusOK, http.MethodGet, "/api/vapid-public-key", "", nil, &key)
	require.Equal(t, "BPublicKey", key["publicKey"])

	sub := map[string]any{"endpoint": "https://push.test/1", "keys": map[string]string{"p256dh": "p", "auth": "a"}}
	api.expect(http.StatusCreated, http.MethodPost, "/api/subscribe", "", sub, nil)
	api.errorOf(http.StatusBadRequest, http.MethodPost, "/api/subscribe", "", map[string]any{"endpoint": "x"})
	api.expect(http.StatusOK, http.MethodPost, "/api/link-subscription", house,
		map[string]string{"endpoint": "https://push.test/1"}, nil)
	api.errorOf(http.StatusNotFound, http.MethodPost, "/api/link-subscription", house,
		map[string]string{"endpoint": "https://push.test/unknown"})

	var stats map[string]int64
	api.expect(http.StatusOK, http.MethodGet, "/api/stats", admin, nil, &stats)
	require.EqualValues(t, 1, stats["subscriptions"])

	var bc map[string]any
	api.expect(http.StatusOK, http.MethodPost, "/api/broadcast", admin, map[string]string{"body": "Water off at noon"}, &bc)
	require.EqualValues(t, 1, bc["sent"])
	delivered := api.push.sent()
	last := delivered[len(delivered)-1]
	require.Equal(t, domain.NotificationPayload{
		Title: "MAIHomeCenter", Body: "Water off at noon", Icon: "/icons/icon-192x192.png", URL: "/",
		Actions: []domain.NotificationAction{},
	}, last)

	api.expect(http.StatusOK, http.MethodPost, "/api/test-notification", "", map[string]any{"subscription": sub}, nil)
	delivered = api.push.sent()
	require.Equal(t, "Test Notification", delivered[len(delivered)-1].Title)
	api.errorOf(http.StatusBadRequest, http.MethodPost, "/api/test-notification", "", map[string]any{})

	api.push.expire("https://push.test/1")
	if msg := api.errorOf(http.StatusInternalServerError, http.MethodPost, "/api/notify", admin,
		map[string]any{"subscription": sub}); msg != "Subscription expired" {
		t.Fatalf("notify gone: %q", msg)
	}
	api.expect(http.StatusOK, http.MethodGet, "/api/stats", admin, nil, &stats)
	require.EqualValues(t, 0, stats["subscriptions"])

	var unsub deliveryResponse
	api.expect(http.StatusOK, http.MethodPost, "/api/unsubscribe", "", map[string]string{"endpoint": "https://push.test/1"}, &unsub)
	require.False(t, unsub.Success)

	api.expect(http.StatusOK, http.MethodDelete, "/api/surveys/houses/"+h.ID, admin, nil, nil)
}

func TestSubscribeTakesHouseFromTokenOnly(t *testing.T) {
	api := newTestAPI(t)
	admin := api.adminToken()
	victim := api.createHouse(admin, "H-1")
	other := api.createHouse(admin, "H-2")
	tenant := api.houseToken("H-2")
	qs := api.createQuestionSet(admin, false)

	keys := map[string]string{"p256dh": "p", "auth": "a"}
	api.expect(http.StatusCreated, http.MethodPost, "/api/subscribe", "", map[string]any{
		"endpoint": "https://push.test/anonymous", "keys": keys, "houseId": victim.ID,
	}, nil)
	api.expect(http.StatusCreated, http.MethodPost, "/api/subscribe", tenant, map[string]any{
		"endpoint": "https://push.test/tenant", "keys": keys, "houseId": victim.ID,
	}, nil)

	var sent domain.SendResult
	api.expect(http.StatusOK, http.MethodPost, "/api/surveys/send-survey", admin,
		map[string]any{"questionSetId": qs.ID, "houseIds": []string{victim.ID}}, &sent)
	require.Equal(t, domain.SendResult{AssignmentsCreated: 1}, sent)
	require.Empty(t, api.push.sent(), "no endpoint may be linked to a house it does not belong to")

	api.expect(http.StatusOK, http.MethodPost, "/api/surveys/send-survey", admin,
		map[string]any{"questionSetId": qs.ID, "houseIds": []string{other.ID}}, &sent)
	require.Equal(t, 1, sent.NotificationsSent)
	delivered := api.push.sentTo()
	require.Equal(t, []string{"https://push.test/tenant"}, delivered)

	api.expect(http.StatusCreated, http.MethodPost, "/api/subscribe", admin, map[string]any{
		"endpoint": "https://push.test/kiosk", "keys": keys, "houseId": victim.ID,
	}, nil)
	var bc map[string]any
	api.expect(http.StatusOK, http.MethodPost, "/api/broadcast", admin, map[string]string{"body": "hi"}, &bc)
	require.EqualValues(t, 3, bc["sent"])
}

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.Invalidf("bad"), http.StatusBadRequest},
		{domain.ErrInvalidCredentials, http.StatusUnauthorized},
		{domain.ErrAssignmentNotFound, http.StatusNotFound},
		{domain.ErrAssignmentNotPending, http.StatusConflict},
		{fmt.Errorf("load: %w", domain.ErrHouseExists), http.StatusConflict},
		{errors.New("connection refused"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := statusFor(tc.err); got != tc.want {
			t.Fatalf("%v: got %d, want %d", tc.err, got, tc.want)
		}
	}
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return string(raw)
}
