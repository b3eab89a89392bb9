package http

import (
	"net/http"

	"maihome-survey-service/internal/auth"
)

type loginRequest struct {
	HouseID  string `json:"houseId"`
	Password string `json:"password"`
}

type adminLoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// sessionHouse is the house as the tenant client stores it after login.
type sessionHouse struct {
	ID      string  `json:"id"`
	HouseID string  `json:"houseId"`
	Name    *string `json:"name"`
}

type loginResponse struct {
	Token string        `json:"token"`
	House *sessionHouse `json:"house,omitempty"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	token, house, err := h.auth.Login(r.Context(), req.HouseID, req.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		Token: token,
		House: &sessionHouse{ID: house.ID, HouseID: house.HouseID, Name: house.Name},
	})
}

func (h *Handler) adminLogin(w http.ResponseWriter, r *http.Request) {
	var req adminLoginRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	token, err := h.auth.AdminLogin(r.Context(), req.Username, req.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Token: token})
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.ClaimsFrom(r.Context())
	house, err := h.auth.Me(r.Context(), claims.HouseID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, house)
}

// houseFrom returns the house row id of the authenticated tenant.
func houseFrom(r *http.Request) string {
	claims, ok := auth.ClaimsFrom(r.Context())
	if !ok || !claims.Allows(auth.CapHouse) {
		return ""
	}
	return claims.HouseID
}
