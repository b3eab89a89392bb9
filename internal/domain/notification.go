package domain

import "time"

// SubscriptionKeys are the client keys of a web-push subscription.
type SubscriptionKeys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// PushSubscription is a registered push endpoint, optionally linked to a house.
type PushSubscription struct {
	Endpoint  string           `json:"endpoint"`
	Keys      SubscriptionKeys `json:"keys"`
	HouseID   string           `json:"houseId,omitempty"`
	CreatedAt time.Time        `json:"createdAt"`
}

// NotificationAction is a button shown with a notification.
type NotificationAction struct {
	Action string `json:"action"`
	Title  string `json:"title"`
}

// NotificationPayload is the JSON body delivered to the service worker.
type NotificationPayload struct {
	Title   string               `json:"title"`
	Body    string               `json:"body"`
	Icon    string               `json:"icon,omitempty"`
	URL     string               `json:"url,omitempty"`
	Actions []NotificationAction `json:"actions,omitempty"`
	Data    map[string]any       `json:"data,omitempty"`
}

// DeliveryResult is the outcome of one delivery attempt.
type DeliveryResult struct {
	Delivered bool   `json:"success"`
	Reason    string `json:"error,omitempty"`
}

// DispatchResult aggregates a fan-out. HousesReached holds every house with at
// least one successful delivery.
type DispatchResult struct {
	Sent          int                 `json:"sent"`
	Failed        int                 `json:"failed"`
	HousesReached map[string]struct{} `json:"-"`
}

// Reached reports whether houseID received at least one notification.
func (r DispatchResult) Reached(houseID string) bool {
	_, ok := r.HousesReached[houseID]
	return ok
}
