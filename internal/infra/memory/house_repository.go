package memory

import (
	"context"
	"sort"

	"maihome-survey-service/internal/domain"
)

// HouseRepository implements app.HouseRepository.
type HouseRepository struct {
	s *Store
}

func (r *HouseRepository) Create(_ context.Context, h domain.House) (domain.House, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.houses {
		if existing.HouseID == h.HouseID {
			return domain.House{}, domain.ErrHouseExists
		}
	}
	h.ID = r.s.newIDLocked()
	h.CreatedAt = r.s.now()
	r.s.houses[h.ID] = h
	return h, nil
}

func (r *HouseRepository) List(_ context.Context) ([]domain.House, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]domain.House, 0, len(r.s.houses))
	for _, h := range r.s.houses {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool {
		return r.s.newerFirst(out[i].ID, out[j].ID, out[i].CreatedAt, out[j].CreatedAt)
	})
	return out, nil
}

func (r *HouseRepository) Get(_ context.Context, id string) (domain.House, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	h, ok := r.s.houses[id]
	if !ok {
		return domain.House{}, domain.ErrHouseNotFound
	}
	return h, nil
}

func (r *HouseRepository) GetByHouseID(_ context.Context, houseID string) (domain.House, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, h := range r.s.houses {
		if h.HouseID == houseID {
			return h, nil
		}
	}
	return domain.House{}, domain.ErrHouseNotFound
}

func (r *HouseRepository) UpdatePassword(_ context.Context, id, hash string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	h, ok := r.s.houses[id]
	if !ok {
		return domain.ErrHouseNotFound
	}
	h.PasswordHash = hash
	r.s.houses[id] = h
	return nil
}

// Delete removes the house and cascades to its assignments and responses.
func (r *HouseRepository) Delete(_ context.Context, id string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.houses[id]; !ok {
		return false, nil
	}
	delete(r.s.houses, id)
	delete(r.s.order, id)
	for aid, a := range r.s.assignments {
		if a.HouseID == id {
			r.s.deleteAssignmentLocked(aid)
		}
	}
	return true, nil
}
