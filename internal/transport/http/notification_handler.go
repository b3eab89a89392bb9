package http

import (
	"fmt"
	"net/http"

	"maihome-survey-service/internal/auth"
	"maihome-survey-service/internal/domain"
)

const (
	defaultTitle = "MAIHomeCenter"
	defaultIcon  = "/icons/icon-192x192.png"
	defaultURL   = "/"
)

type subscribeRequest struct {
	Endpoint string                  `json:"endpoint"`
	Keys     domain.SubscriptionKeys `json:"keys"`
	HouseID  string                  `json:"houseId"`
}

type endpointRequest struct {
	Endpoint string `json:"endpoint"`
}

type notifyRequest struct {
	Subscription *subscribeRequest           `json:"subscription"`
	Title        string                      `json:"title"`
	Body         string                      `json:"body"`
	Icon         string                      `json:"icon"`
	URL          string                      `json:"url"`
	Actions      []domain.NotificationAction `json:"actions"`
}

// payload fills the notification defaults used by manual sends.
func (req notifyRequest) payload(defaultBody string) domain.NotificationPayload {
	p := domain.NotificationPayload{
		Title:   req.Title,
		Body:    req.Body,
		Icon:    req.Icon,
		URL:     req.URL,
		Actions: req.Actions,
	}
	if p.Title == "" {
		p.Title = defaultTitle
	}
	if p.Body == "" {
		p.Body = defaultBody
	}
	if p.Icon == "" {
		p.Icon = defaultIcon
	}
	if p.URL == "" {
		p.URL = defaultURL
	}
	if p.Actions == nil {
		p.Actions = []domain.NotificationAction{}
	}
	return p
}

func (s subscribeRequest) subscription() domain.PushSubscription {
	return domain.PushSubscription{Endpoint: s.Endpoint, Keys: s.Keys}
}

type deliveryResponse struct {
	Message string `json:"message"`
	Success bool   `json:"success"`
}

func (h *Handler) vapidPublicKey(w http.ResponseWriter, r *http.Request) {
	key := h.dispatcher.PublicKey()
	if key == "" {
		h.fail(w, r, fmt.Errorf("vapid public key not configured"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"publicKey": key})
}

// subscribe links the subscription to the caller's house when a tenant token
// is present. The body houseId is only honoured for admin callers; anonymous
// subscriptions stay unlinked until /link-subscription.
func (h *Handler) subscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	houseID := houseFrom(r)
	if claims, ok := auth.ClaimsFrom(r.Context()); ok && claims.Allows(auth.CapAdmin) {
		houseID = req.HouseID
	}
	if err := h.dispatcher.Register(r.Context(), req.subscription(), houseID); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Subscription saved successfully",
		"success": true,
		"id":      req.Endpoint,
	})
}

func (h *Handler) unsubscribe(w http.ResponseWriter, r *http.Request) {
	var req endpointRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	deleted, err := h.dispatcher.Unregister(r.Context(), req.Endpoint)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	msg := "Subscription not found"
	if deleted {
		msg = "Subscription removed"
	}
	writeJSON(w, http.StatusOK, deliveryResponse{Message: msg, Success: deleted})
}

func (h *Handler) linkSubscription(w http.ResponseWriter, r *http.Request) {
	var req endpointRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	claims, _ := auth.ClaimsFrom(r.Context())
	linked, err := h.dispatcher.LinkToHouse(r.Context(), req.Endpoint, claims.HouseID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !linked {
		writeError(w, http.StatusNotFound, "Subscription not found")
		return
	}
	writeJSON(w, http.StatusOK, deliveryResponse{Message: "Subscription linked", Success: true})
}

func (h *Handler) notify(w http.ResponseWriter, r *http.Request) {
	var req notifyRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.Subscription == nil {
		h.fail(w, r, domain.Invalidf("Subscription required"))
		return
	}
	res := h.dispatcher.DeliverOne(r.Context(), req.Subscription.subscription(), req.payload("You have a new notification"))
	if !res.Delivered {
		writeError(w, http.StatusInternalServerError, res.Reason)
		return
	}
	writeJSON(w, http.StatusOK, deliveryResponse{Message: "Notification sent", Success: true})
}

func (h *Handler) broadcast(w http.ResponseWriter, r *http.Request) {
	var req notifyRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.dispatcher.Broadcast(r.Context(), req.payload("Broadcast notification"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": fmt.Sprintf("Broadcast complete: %d sent, %d failed", res.Sent, res.Failed),
		"sent":    res.Sent,
		"failed":  res.Failed,
	})
}

func (h *Handler) testNotification(w http.ResponseWriter, r *http.Request) {
	var req notifyRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.Subscription == nil {
		h.fail(w, r, domain.Invalidf("Subscription required"))
		return
	}
	res := h.dispatcher.DeliverOne(r.Context(), req.Subscription.subscription(), domain.NotificationPayload{
		Title: "Test Notification",
		Body:  "This is a test notification from MAIHomeCenter!",
		Icon:  defaultIcon,
		URL:   defaultURL,
	})
	if !res.Delivered {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": res.Reason, "success": false})
		return
	}
	writeJSON(w, http.StatusOK, deliveryResponse{Message: "Test notification sent", Success: true})
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	n, err := h.dispatcher.Count(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"subscriptions": n})
}
