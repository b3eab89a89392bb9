package http

import (
	"net/http"

	"maihome-survey-service/internal/domain"
)

type createHouseRequest struct {
	HouseID  string  `json:"houseId"`
	Password string  `json:"password"`
	Name     *string `json:"name"`
}

type passwordRequest struct {
	Password string `json:"password"`
}

func (h *Handler) listHouses(w http.ResponseWriter, r *http.Request) {
	houses, err := h.houses.List(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if houses == nil {
		houses = []domain.House{}
	}
	writeJSON(w, http.StatusOK, houses)
}

func (h *Handler) createHouse(w http.ResponseWriter, r *http.Request) {
	var req createHouseRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	name := ""
	if req.Name != nil {
		name = *req.Name
	}
	house, err := h.houses.Create(r.Context(), req.HouseID, req.Password, name)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, house)
}

func (h *Handler) getHouse(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id", domain.ErrHouseNotFound)
	if !ok {
		return
	}
	house, err := h.houses.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, house)
}

func (h *Handler) changeHousePassword(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id", domain.ErrHouseNotFound)
	if !ok {
		return
	}
	var req passwordRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.houses.ChangePassword(r.Context(), id, req.Password); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, successBody{Success: true, Message: "Password updated"})
}

func (h *Handler) deleteHouse(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id", domain.ErrHouseNotFound)
	if !ok {
		return
	}
	deleted, err := h.houses.Delete(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !deleted {
		h.fail(w, r, domain.ErrHouseNotFound)
		return
	}
	writeJSON(w, http.StatusOK, successBody{Success: true})
}
