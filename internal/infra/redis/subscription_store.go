package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"maihome-survey-service/internal/domain"
)

const (
	subscriptionsKey = "push:subs"
	maxTxRetries     = 5
)

// SubscriptionStore is a Redis implementation of app.SubscriptionRepository.
// Subscriptions live as JSON in the push:subs hash keyed by endpoint; every
// linked house has a set push:house:{houseID} of its endpoints.
type SubscriptionStore struct {
	client *redis.Client
}

func NewSubscriptionStore(client *redis.Client) *SubscriptionStore {
	return &SubscriptionStore{client: client}
}

func (s *SubscriptionStore) Upsert(ctx context.Context, sub domain.PushSubscription) error {
	return s.update(ctx, sub.Endpoint, func(prev *domain.PushSubscription) (*domain.PushSubscription, error) {
		if prev != nil {
			if sub.HouseID == "" {
				sub.HouseID = prev.HouseID
			}
			sub.CreatedAt = prev.CreatedAt
		}
		return &sub, nil
	})
}

func (s *SubscriptionStore) Link(ctx context.Context, endpoint, houseID string) (bool, error) {
	found := false
	err := s.update(ctx, endpoint, func(prev *domain.PushSubscription) (*domain.PushSubscription, error) {
		if prev == nil {
			return nil, errSkip
		}
		found = true
		next := *prev
		next.HouseID = houseID
		return &next, nil
	})
	return found, err
}

func (s *SubscriptionStore) Delete(ctx context.Context, endpoint string) (bool, error) {
	found := false
	err := s.update(ctx, endpoint, func(prev *domain.PushSubscription) (*domain.PushSubscription, error) {
		found = prev != nil
		if !found {
			return nil, errSkip
		}
		return nil, nil
	})
	return found, err
}

func (s *SubscriptionStore) ListByHouses(ctx context.Context, houseIDs []string) ([]domain.PushSubscription, error) {
	if len(houseIDs) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(houseIDs))
	for _, id := range houseIDs {
		keys = append(keys, houseKey(id))
	}
	endpoints, err := s.client.SUnion(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("read house subscriptions: %w", err)
	}
	if len(endpoints) == 0 {
		return nil, nil
	}
	vals, err := s.client.HMGet(ctx, subscriptionsKey, endpoints...).Result()
	if err != nil {
		return nil, fmt.Errorf("read subscriptions: %w", err)
	}
	raws := make([]string, 0, len(vals))
	for _, v := range vals {
		if str, ok := v.(string); ok {
			raws = append(raws, str)
		}
	}
	return decodeAll(raws)
}

func (s *SubscriptionStore) ListAll(ctx context.Context) ([]domain.PushSubscription, error) {
	raws, err := s.client.HVals(ctx, subscriptionsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("read subscriptions: %w", err)
	}
	return decodeAll(raws)
}

func (s *SubscriptionStore) Count(ctx context.Context) (int64, error) {
	return s.client.HLen(ctx, subscriptionsKey).Result()
}

func (s *SubscriptionStore) UnlinkHouse(ctx context.Context, houseID string) error {
	endpoints, err := s.client.SMembers(ctx, houseKey(houseID)).Result()
	if err != nil {
		return fmt.Errorf("read house subscriptions: %w", err)
	}
	for _, ep := range endpoints {
		err := s.update(ctx, ep, func(prev *domain.PushSubscription) (*domain.PushSubscription, error) {
			if prev == nil || prev.HouseID != houseID {
				return nil, errSkip
			}
			next := *prev
			next.HouseID = ""
			return &next, nil
		})
		if err != nil {
			return err
		}
	}
	return s.client.Del(ctx, houseKey(houseID)).Err()
}

var errSkip = errors.New("skip write")

// update runs an optimistic read-modify-write of one subscription. fn gets the
// stored value (nil when absent) and returns the value to store, nil to delete,
// or errSkip to leave everything as is.
func (s *SubscriptionStore) update(ctx context.Context, endpoint string, fn func(prev *domain.PushSubscription) (*domain.PushSubscription, error)) error {
	txf := func(tx *redis.Tx) error {
		prev, err := s.get(ctx, tx, endpoint)
		if err != nil {
			return err
		}
		next, err := fn(prev)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if prev != nil && prev.HouseID != "" && (next == nil || next.HouseID != prev.HouseID) {
				pipe.SRem(ctx, houseKey(prev.HouseID), endpoint)
			}
			if next == nil {
				pipe.HDel(ctx, subscriptionsKey, endpoint)
				return nil
			}
			raw, err := json.Marshal(next)
			if err != nil {
				return err
			}
			pipe.HSet(ctx, subscriptionsKey, endpoint, raw)
			if next.HouseID != "" {
				pipe.SAdd(ctx, houseKey(next.HouseID), endpoint)
			}
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txf, subscriptionsKey)
		switch {
		case err == nil, errors.Is(err, errSkip):
			return nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		default:
			return fmt.Errorf("write subscription: %w", err)
		}
	}
	return fmt.Errorf("write subscription: %w", redis.TxFailedErr)
}

func (s *SubscriptionStore) get(ctx context.Context, c redis.Cmdable, endpoint string) (*domain.PushSubscription, error) {
	raw, err := c.HGet(ctx, subscriptionsKey, endpoint).Bytes()
	if isNil(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var sub domain.PushSubscription
	if err := json.Unmarshal(raw, &sub); err != nil {
		return nil, fmt.Errorf("decode subscription: %w", err)
	}
	return &sub, nil
}

func decodeAll(raws []string) ([]domain.PushSubscription, error) {
	out := make([]domain.PushSubscription, 0, len(raws))
	for _, raw := range raws {
		var sub domain.PushSubscription
		if err := json.Unmarshal([]byte(raw), &sub); err != nil {
			return nil, fmt.Errorf("decode subscription: %w", err)
		}
		out = append(out, sub)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Endpoint < out[j].Endpoint })
	return out, nil
}

func houseKey(houseID string) string {
	return "push:house:" + houseID
}
