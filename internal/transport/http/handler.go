package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"maihome-survey-service/internal/app"
	"maihome-survey-service/internal/auth"
)

// TokenVerifier checks bearer tokens.
type TokenVerifier interface {
	Parse(raw string) (*auth.Claims, error)
}

// Deps are the services behind the REST surface.
type Deps struct {
	Auth         *app.AuthService
	Houses       *app.HouseService
	QuestionSets *app.QuestionSetService
	Surveys      *app.SurveyEngine
	Sender       *app.SurveySender
	Dispatcher   *app.Dispatcher
	Tokens       TokenVerifier
	CORSOrigins  []string
	Log          *zap.Logger
}

// Handler serves the /api REST surface.
type Handler struct {
	auth       *app.AuthService
	houses     *app.HouseService
	sets       *app.QuestionSetService
	surveys    *app.SurveyEngine
	sender     *app.SurveySender
	dispatcher *app.Dispatcher
	tokens     TokenVerifier
	origins    []string
	now        func() time.Time
	log        *zap.Logger
}

func NewHandler(d Deps) *Handler {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		auth:       d.Auth,
		houses:     d.Houses,
		sets:       d.QuestionSets,
		surveys:    d.Surveys,
		sender:     d.Sender,
		dispatcher: d.Dispatcher,
		tokens:     d.Tokens,
		origins:    d.CORSOrigins,
		now:        time.Now,
		log:        log.Named("http"),
	}
}

// Routes builds the router wrapped in recovery, access logging and CORS.
func (h *Handler) Routes() http.Handler {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", h.health).Methods(http.MethodGet)

	api.HandleFunc("/auth/login", h.login).Methods(http.MethodPost)
	api.HandleFunc("/auth/admin/login", h.adminLogin).Methods(http.MethodPost)
	api.Handle("/auth/me", h.require(auth.CapHouse, h.me)).Methods(http.MethodGet)

	admin := func(path string, fn http.HandlerFunc, method string) {
		api.Handle(path, h.require(auth.CapAdmin, fn)).Methods(method)
	}
	admin("/surveys/question-sets", h.listQuestionSets, http.MethodGet)
	admin("/surveys/question-sets", h.createQuestionSet, http.MethodPost)
	admin("/surveys/question-sets/{id}", h.getQuestionSet, http.MethodGet)
	admin("/surveys/question-sets/{id}", h.updateQuestionSet, http.MethodPut)
	admin("/surveys/question-sets/{id}", h.deleteQuestionSet, http.MethodDelete)
	admin("/surveys/question-sets/{id}/responses", h.responseSummary, http.MethodGet)
	admin("/surveys/question-sets/{id}/responses/export", h.exportResponses, http.MethodGet)
	admin("/surveys/houses", h.listHouses, http.MethodGet)
	admin("/surveys/houses", h.createHouse, http.MethodPost)
	admin("/surveys/houses/{id}", h.getHouse, http.MethodGet)
	admin("/surveys/houses/{id}/password", h.changeHousePassword, http.MethodPut)
	admin("/surveys/houses/{id}", h.deleteHouse, http.MethodDelete)
	admin("/surveys/send-survey", h.sendSurvey, http.MethodPost)

	tenant := func(path string, fn http.HandlerFunc, method string) {
		api.Handle(path, h.require(auth.CapHouse, fn)).Methods(method)
	}
	tenant("/my-surveys/pending", h.pendingSurveys, http.MethodGet)
	tenant("/my-surveys/{assignmentId}", h.getSurvey, http.MethodGet)
	tenant("/my-surveys/{assignmentId}/respond", h.respond, http.MethodPost)
	tenant("/my-surveys/{assignmentId}/dismiss", h.dismiss, http.MethodPost)

	api.HandleFunc("/vapid-public-key", h.vapidPublicKey).Methods(http.MethodGet)
	api.Handle("/subscribe", h.optional(h.subscribe)).Methods(http.MethodPost)
	api.HandleFunc("/unsubscribe", h.unsubscribe).Methods(http.MethodPost)
	tenant("/link-subscription", h.linkSubscription, http.MethodPost)
	admin("/notify", h.notify, http.MethodPost)
	admin("/broadcast", h.broadcast, http.MethodPost)
	api.HandleFunc("/test-notification", h.testNotification).Methods(http.MethodPost)
	admin("/stats", h.stats, http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	return recovery(h.log, accessLog(h.log, cors(h.origins, r)))
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}
