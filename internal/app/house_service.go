package app

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"maihome-survey-service/internal/domain"
)

// HouseService manages tenant accounts.
type HouseService struct {
	houses HouseRepository
	hasher PasswordHasher
	links  HouseUnlinker
	log    *zap.Logger
}

// NewHouseService builds the service. links may be nil when the subscription
// registry clears links on its own.
func NewHouseService(houses HouseRepository, hasher PasswordHasher, links HouseUnlinker, log *zap.Logger) *HouseService {
	if log == nil {
		log = zap.NewNop()
	}
	return &HouseService{houses: houses, hasher: hasher, links: links, log: log.Named("houses")}
}

// Create registers a house. The external id must be unused.
func (s *HouseService) Create(ctx context.Context, houseID, password, name string) (domain.House, error) {
	houseID = strings.TrimSpace(houseID)
	if houseID == "" || password == "" {
		return domain.House{}, domain.Invalidf("House ID and password are required")
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return domain.House{}, err
	}
	h := domain.House{HouseID: houseID, PasswordHash: hash}
	if n := strings.TrimSpace(name); n != "" {
		h.Name = &n
	}
	created, err := s.houses.Create(ctx, h)
	if err != nil {
		return domain.House{}, err
	}
	s.log.Info("house created", zap.String("id", created.ID), zap.String("house_id", created.HouseID))
	return created, nil
}

// List returns every house, newest first.
func (s *HouseService) List(ctx context.Context) ([]domain.House, error) {
	return s.houses.List(ctx)
}

func (s *HouseService) Get(ctx context.Context, id string) (domain.House, error) {
	return s.houses.Get(ctx, id)
}

// Delete removes a house with its assignments and responses and unlinks its
// push subscriptions.
func (s *HouseService) Delete(ctx context.Context, id string) (bool, error) {
	ok, err := s.houses.Delete(ctx, id)
	if err != nil || !ok {
		return ok, err
	}
	if s.links != nil {
		if err := s.links.UnlinkHouse(ctx, id); err != nil {
			s.log.Warn("failed to unlink subscriptions", zap.String("id", id), zap.Error(err))
		}
	}
	s.log.Info("house deleted", zap.String("id", id))
	return true, nil
}

// ChangePassword replaces the password of an existing house.
func (s *HouseService) ChangePassword(ctx context.Context, id, password string) error {
	if password == "" {
		return domain.Invalidf("Password is required")
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return err
	}
	return s.houses.UpdatePassword(ctx, id, hash)
}
