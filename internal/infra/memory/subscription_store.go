package memory

import (
	"context"
	"sort"
	"sync"

	"maihome-survey-service/internal/domain"
)

// SubscriptionStore is an in-memory implementation of app.SubscriptionRepository.
// Contents are lost on restart.
type SubscriptionStore struct {
	mu   sync.RWMutex
	subs map[string]domain.PushSubscription
}

func NewSubscriptionStore() *SubscriptionStore {
	return &SubscriptionStore{subs: make(map[string]domain.PushSubscription)}
}

func (s *SubscriptionStore) Upsert(_ context.Context, sub domain.PushSubscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.subs[sub.Endpoint]; ok {
		if sub.HouseID == "" {
			sub.HouseID = prev.HouseID
		}
		sub.CreatedAt = prev.CreatedAt
	}
	s.subs[sub.Endpoint] = sub
	return nil
}

func (s *SubscriptionStore) Link(_ context.Context, endpoint, houseID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[endpoint]
	if !ok {
		return false, nil
	}
	sub.HouseID = houseID
	s.subs[endpoint] = sub
	return true, nil
}

func (s *SubscriptionStore) Delete(_ context.Context, endpoint string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[endpoint]; !ok {
		return false, nil
	}
	delete(s.subs, endpoint)
	return true, nil
}

func (s *SubscriptionStore) ListByHouses(_ context.Context, houseIDs []string) ([]domain.PushSubscription, error) {
	want := make(map[string]struct{}, len(houseIDs))
	for _, id := range houseIDs {
		want[id] = struct{}{}
	}
	return s.filter(func(sub domain.PushSubscription) bool {
		_, ok := want[sub.HouseID]
		return ok && sub.HouseID != ""
	}), nil
}

func (s *SubscriptionStore) ListAll(_ context.Context) ([]domain.PushSubscription, error) {
	return s.filter(func(domain.PushSubscription) bool { return true }), nil
}

func (s *SubscriptionStore) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.subs)), nil
}

// UnlinkHouse clears the link of every subscription pointing at houseID.
func (s *SubscriptionStore) UnlinkHouse(_ context.Context, houseID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ep, sub := range s.subs {
		if sub.HouseID == houseID {
			sub.HouseID = ""
			s.subs[ep] = sub
		}
	}
	return nil
}

func (s *SubscriptionStore) filter(keep func(domain.PushSubscription) bool) []domain.PushSubscription {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.PushSubscription, 0, len(s.subs))
	for _, sub := range s.subs {
		if keep(sub) {
			out = append(out, sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Endpoint < out[j].Endpoint })
	return out
}
