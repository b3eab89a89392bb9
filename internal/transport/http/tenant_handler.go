package http

import (
	"net/http"

	"maihome-survey-service/internal/domain"
)

type respondRequest struct {
	Responses []domain.Answer `json:"responses"`
}

func (h *Handler) pendingSurveys(w http.ResponseWriter, r *http.Request) {
	pending, err := h.surveys.ListPending(r.Context(), houseFrom(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if pending == nil {
		pending = []domain.PendingSurvey{}
	}
	writeJSON(w, http.StatusOK, pending)
}

func (h *Handler) getSurvey(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "assignmentId", domain.ErrAssignmentNotFound)
	if !ok {
		return
	}
	detail, err := h.surveys.GetForResponse(r.Context(), id, houseFrom(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "assignmentId", domain.ErrAssignmentNotFound)
	if !ok {
		return
	}
	var req respondRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.Responses == nil {
		h.fail(w, r, domain.Invalidf("Responses array is required"))
		return
	}
	if err := h.surveys.Submit(r.Context(), id, houseFrom(r), req.Responses); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, successBody{Success: true, Message: "Survey responses submitted successfully"})
}

func (h *Handler) dismiss(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "assignmentId", domain.ErrAssignmentNotFound)
	if !ok {
		return
	}
	if err := h.surveys.Dismiss(r.Context(), id, houseFrom(r)); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, successBody{Success: true, Message: "Survey dismissed"})
}
