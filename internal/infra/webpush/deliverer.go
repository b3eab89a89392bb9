package webpush

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"

	"maihome-survey-service/internal/domain"
)

// DefaultTTL is how long the push service keeps an undelivered message.
const DefaultTTL = 24 * time.Hour

// VAPID identifies this server to push services.
type VAPID struct {
	PublicKey  string
	PrivateKey string
	Subject    string
}

// Deliverer implements app.PushDeliverer with encrypted Web Push messages.
type Deliverer struct {
	keys   VAPID
	ttl    time.Duration
	client webpush.HTTPClient
}

// NewDeliverer returns a Deliverer. A zero ttl means DefaultTTL; a nil client
// means http.DefaultClient.
func NewDeliverer(keys VAPID, ttl time.Duration, client webpush.HTTPClient) *Deliverer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Deliverer{keys: keys, ttl: ttl, client: client}
}

// Deliver encrypts payload for sub and posts it to the push service.
// Endpoints answering 404 or 410 yield domain.ErrSubscriptionGone.
func (d *Deliverer) Deliver(ctx context.Context, sub domain.PushSubscription, payload domain.NotificationPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	resp, err := webpush.SendNotificationWithContext(ctx, body,
		&webpush.Subscription{
			Endpoint: sub.Endpoint,
			Keys:     webpush.Keys{Auth: sub.Keys.Auth, P256dh: sub.Keys.P256dh},
		},
		&webpush.Options{
			HTTPClient:      d.client,
			Subscriber:      strings.TrimPrefix(d.keys.Subject, "mailto:"),
			VAPIDPublicKey:  d.keys.PublicKey,
			VAPIDPrivateKey: d.keys.PrivateKey,
			TTL:             int(d.ttl.Seconds()),
		})
	if err != nil {
		return fmt.Errorf("send push: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return fmt.Errorf("push service answered %d: %w", resp.StatusCode, domain.ErrSubscriptionGone)
	case resp.StatusCode >= 400:
		return fmt.Errorf("push service answered %d", resp.StatusCode)
	}
	return nil
}

// GenerateKeys creates a fresh VAPID key pair, base64url encoded.
func GenerateKeys() (publicKey, privateKey string, err error) {
	privateKey, publicKey, err = webpush.GenerateVAPIDKeys()
	if err != nil {
		return "", "", fmt.Errorf("generate vapid keys: %w", err)
	}
	return publicKey, privateKey, nil
}
