package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"maihome-survey-service/internal/domain"
)

const defaultDeliveryConcurrency = 8

// Dispatcher keeps the subscription registry and fans notifications out to it.
type Dispatcher struct {
	subs      SubscriptionRepository
	push      PushDeliverer
	publicKey string
	limit     int
	now       func() time.Time
	log       *zap.Logger
}

// NewDispatcher builds a dispatcher. concurrency bounds in-flight deliveries;
// zero or less falls back to a small default.
func NewDispatcher(subs SubscriptionRepository, push PushDeliverer, publicKey string, concurrency int, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	if concurrency <= 0 {
		concurrency = defaultDeliveryConcurrency
	}
	return &Dispatcher{
		subs:      subs,
		push:      push,
		publicKey: publicKey,
		limit:     concurrency,
		now:       time.Now,
		log:       log.Named("push"),
	}
}

// PublicKey is the VAPID application server key handed to clients.
func (d *Dispatcher) PublicKey() string {
	return d.publicKey
}

// Register stores sub, linking it to houseID when one is given. Registering
// the same endpoint again replaces its keys and keeps an existing link unless
// a new house is named.
func (d *Dispatcher) Register(ctx context.Context, sub domain.PushSubscription, houseID string) error {
	sub.Endpoint = strings.TrimSpace(sub.Endpoint)
	if sub.Endpoint == "" || sub.Keys.P256dh == "" || sub.Keys.Auth == "" {
		return domain.Invalidf("Invalid subscription object")
	}
	sub.HouseID = houseID
	sub.CreatedAt = d.now()
	if err := d.subs.Upsert(ctx, sub); err != nil {
		return err
	}
	d.log.Debug("subscription registered", zap.Bool("linked", houseID != ""))
	return nil
}

// LinkToHouse attaches a known endpoint to houseID.
func (d *Dispatcher) LinkToHouse(ctx context.Context, endpoint, houseID string) (bool, error) {
	if endpoint == "" {
		return false, domain.Invalidf("Endpoint required")
	}
	return d.subs.Link(ctx, endpoint, houseID)
}

// Unregister drops endpoint from the registry.
func (d *Dispatcher) Unregister(ctx context.Context, endpoint string) (bool, error) {
	if endpoint == "" {
		return false, domain.Invalidf("Endpoint required")
	}
	return d.subs.Delete(ctx, endpoint)
}

// UnlinkHouse detaches every subscription linked to houseID.
func (d *Dispatcher) UnlinkHouse(ctx context.Context, houseID string) error {
	return d.subs.UnlinkHouse(ctx, houseID)
}

func (d *Dispatcher) Count(ctx context.Context) (int64, error) {
	return d.subs.Count(ctx)
}

// DeliverOne sends payload to sub. Endpoints reported gone are removed from
// the registry. Delivery errors never escape; they are reported in the result.
func (d *Dispatcher) DeliverOne(ctx context.Context, sub domain.PushSubscription, payload domain.NotificationPayload) domain.DeliveryResult {
	err := d.push.Deliver(ctx, sub, payload)
	if err == nil {
		return domain.DeliveryResult{Delivered: true}
	}
	if errors.Is(err, domain.ErrSubscriptionGone) {
		if _, derr := d.subs.Delete(ctx, sub.Endpoint); derr != nil {
			d.log.Warn("failed to prune gone subscription", zap.Error(derr))
		}
		return domain.DeliveryResult{Reason: "Subscription expired"}
	}
	d.log.Warn("push delivery failed", zap.String("house", sub.HouseID), zap.Error(err))
	return domain.DeliveryResult{Reason: err.Error()}
}

// DeliverToHouses sends payload to every subscription linked to one of
// houseIDs. Houses without subscriptions are simply not reached.
func (d *Dispatcher) DeliverToHouses(ctx context.Context, houseIDs []string, payload domain.NotificationPayload) (domain.DispatchResult, error) {
	subs, err := d.subs.ListByHouses(ctx, dedupe(houseIDs))
	if err != nil {
		return domain.DispatchResult{}, err
	}
	return d.fanOut(ctx, subs, payload), nil
}

// Broadcast sends payload to every registered subscription.
func (d *Dispatcher) Broadcast(ctx context.Context, payload domain.NotificationPayload) (domain.DispatchResult, error) {
	subs, err := d.subs.ListAll(ctx)
	if err != nil {
		return domain.DispatchResult{}, err
	}
	return d.fanOut(ctx, subs, payload), nil
}

func (d *Dispatcher) fanOut(ctx context.Context, subs []domain.PushSubscription, payload domain.NotificationPayload) domain.DispatchResult {
	res := domain.DispatchResult{HousesReached: make(map[string]struct{})}
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(d.limit)
	for _, sub := range subs {
		g.Go(func() error {
			r := d.DeliverOne(ctx, sub, payload)
			mu.Lock()
			defer mu.Unlock()
			if !r.Delivered {
				res.Failed++
				return nil
			}
			res.Sent++
			if sub.HouseID != "" {
				res.HousesReached[sub.HouseID] = struct{}{}
			}
			return nil
		})
	}
	_ = g.Wait()

	d.log.Info("notifications dispatched",
		zap.Int("targets", len(subs)),
		zap.Int("sent", res.Sent),
		zap.Int("failed", res.Failed))
	return res
}
