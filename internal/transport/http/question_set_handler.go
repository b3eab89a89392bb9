package http

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/qri-io/jsonschema"

	"maihome-survey-service/internal/app"
	"maihome-survey-service/internal/domain"
	"maihome-survey-service/internal/report"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type questionRequest struct {
	ID           string          `json:"id"`
	Identifier   string          `json:"identifier"`
	Type         string          `json:"type"`
	QuestionText string          `json:"questionText"`
	Options      []domain.Option `json:"options"`
	IsRequired   *bool           `json:"isRequired"`
	OrderIndex   *int            `json:"orderIndex"`
}

// questionSetRequest is shared by create and update; the schemas decide which
// fields are mandatory.
type questionSetRequest struct {
	Title             *string           `json:"title"`
	Description       *string           `json:"description"`
	NotificationTitle *string           `json:"notificationTitle"`
	NotificationBody  *string           `json:"notificationBody"`
	NotificationURL   *string           `json:"notificationUrl"`
	ExpiresAt         *string           `json:"expiresAt"`
	IsDismissable     *bool             `json:"isDismissable"`
	IsActive          *bool             `json:"isActive"`
	Questions         []questionRequest `json:"questions"`
}

// expiryLayouts are accepted for expiresAt; the admin form sends datetime-local values.
var expiryLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02"}

func parseExpiry(raw *string) (*time.Time, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	for _, layout := range expiryLayouts {
		if t, err := time.Parse(layout, strings.TrimSpace(*raw)); err == nil {
			return &t, nil
		}
	}
	return nil, domain.Invalidf("Invalid expiresAt %q", *raw)
}

func (req questionSetRequest) questionInputs() []domain.QuestionInput {
	if req.Questions == nil {
		return nil
	}
	out := make([]domain.QuestionInput, 0, len(req.Questions))
	for _, q := range req.Questions {
		out = append(out, domain.QuestionInput{
			ID:         q.ID,
			Identifier: q.Identifier,
			Type:       domain.QuestionType(q.Type),
			Text:       q.QuestionText,
			Options:    q.Options,
			IsRequired: q.IsRequired,
			OrderIndex: q.OrderIndex,
		})
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func emptyToNil(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}

// readQuestionSet validates the body against rs before decoding it.
func readQuestionSet(w http.ResponseWriter, r *http.Request, rs *jsonschema.Schema) (questionSetRequest, error) {
	var req questionSetRequest
	body, err := readBody(w, r)
	if err != nil {
		return req, err
	}
	if err := checkSchema(r.Context(), rs, body); err != nil {
		return req, err
	}
	return req, decodeBytes(body, &req)
}

func (h *Handler) listQuestionSets(w http.ResponseWriter, r *http.Request) {
	sets, err := h.sets.List(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if sets == nil {
		sets = []domain.QuestionSetSummary{}
	}
	writeJSON(w, http.StatusOK, sets)
}

func (h *Handler) createQuestionSet(w http.ResponseWriter, r *http.Request) {
	req, err := readQuestionSet(w, r, createQuestionSetSchema)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	expires, err := parseExpiry(req.ExpiresAt)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	qs, err := h.sets.Create(r.Context(), app.QuestionSetInput{
		Title:             deref(req.Title),
		Description:       emptyToNil(req.Description),
		NotificationTitle: deref(req.NotificationTitle),
		NotificationBody:  deref(req.NotificationBody),
		NotificationURL:   emptyToNil(req.NotificationURL),
		ExpiresAt:         expires,
		IsDismissable:     req.IsDismissable,
		IsActive:          req.IsActive,
		Questions:         req.questionInputs(),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, qs)
}

func (h *Handler) getQuestionSet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id", domain.ErrQuestionSetNotFound)
	if !ok {
		return
	}
	qs, err := h.sets.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, qs)
}

func (h *Handler) updateQuestionSet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id", domain.ErrQuestionSetNotFound)
	if !ok {
		return
	}
	req, err := readQuestionSet(w, r, updateQuestionSetSchema)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	expires, err := parseExpiry(req.ExpiresAt)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	qs, err := h.sets.Update(r.Context(), id, domain.QuestionSetPatch{
		Title:             req.Title,
		Description:       req.Description,
		NotificationTitle: req.NotificationTitle,
		NotificationBody:  req.NotificationBody,
		NotificationURL:   req.NotificationURL,
		ExpiresAt:         expires,
		IsDismissable:     req.IsDismissable,
		IsActive:          req.IsActive,
	}, req.questionInputs())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, qs)
}

func (h *Handler) deleteQuestionSet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id", domain.ErrQuestionSetNotFound)
	if !ok {
		return
	}
	deleted, err := h.sets.Delete(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !deleted {
		h.fail(w, r, domain.ErrQuestionSetNotFound)
		return
	}
	writeJSON(w, http.StatusOK, successBody{Success: true})
}

func (h *Handler) responseSummary(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id", domain.ErrQuestionSetNotFound)
	if !ok {
		return
	}
	summary, err := h.surveys.Summary(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if summary.Responses == nil {
		summary.Responses = []domain.ResponseRow{}
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) exportResponses(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id", domain.ErrQuestionSetNotFound)
	if !ok {
		return
	}
	qs, err := h.sets.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	summary, err := h.surveys.Summary(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	data, err := report.AnswerSheetsXLSX(qs.Questions, summary.AnswerSheets())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="responses-%s.xlsx"`, id))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

type sendSurveyRequest struct {
	QuestionSetID string   `json:"questionSetId"`
	HouseIDs      []string `json:"houseIds"`
}

func (h *Handler) sendSurvey(w http.ResponseWriter, r *http.Request) {
	var req sendSurveyRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.QuestionSetID == "" || len(req.HouseIDs) == 0 {
		h.fail(w, r, domain.Invalidf("Question set ID and at least one house ID are required"))
		return
	}
	res, err := h.sender.Send(r.Context(), req.QuestionSetID, req.HouseIDs)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
