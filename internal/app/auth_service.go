package app

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"maihome-survey-service/internal/domain"
)

// AdminCredentials is the single operator account configured at startup.
type AdminCredentials struct {
	Username     string
	PasswordHash string
}

// AuthService exchanges credentials for signed tokens.
type AuthService struct {
	houses HouseRepository
	hasher PasswordHasher
	tokens TokenIssuer
	admin  AdminCredentials
	log    *zap.Logger
}

func NewAuthService(houses HouseRepository, hasher PasswordHasher, tokens TokenIssuer, admin AdminCredentials, log *zap.Logger) *AuthService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthService{houses: houses, hasher: hasher, tokens: tokens, admin: admin, log: log.Named("auth")}
}

// Login authenticates a house. Unknown ids and wrong passwords fail the same way.
func (s *AuthService) Login(ctx context.Context, houseID, password string) (string, domain.House, error) {
	houseID = strings.TrimSpace(houseID)
	if houseID == "" || password == "" {
		return "", domain.House{}, domain.Invalidf("House ID and password are required")
	}
	h, err := s.houses.GetByHouseID(ctx, houseID)
	if errors.Is(err, domain.ErrNotFound) {
		return "", domain.House{}, domain.ErrInvalidCredentials
	}
	if err != nil {
		return "", domain.House{}, err
	}
	if err := s.hasher.Compare(h.PasswordHash, password); err != nil {
		s.log.Info("house login rejected", zap.String("house_id", houseID))
		return "", domain.House{}, domain.ErrInvalidCredentials
	}
	token, err := s.tokens.IssueHouse(h)
	if err != nil {
		return "", domain.House{}, err
	}
	return token, h, nil
}

// AdminLogin authenticates the operator account.
func (s *AuthService) AdminLogin(_ context.Context, username, password string) (string, error) {
	if username == "" || password == "" {
		return "", domain.Invalidf("Username and password are required")
	}
	if s.admin.Username == "" || s.admin.PasswordHash == "" {
		return "", &domain.Error{Kind: domain.ErrUnauthorized, Msg: "Admin login is not configured"}
	}
	if username != s.admin.Username || s.hasher.Compare(s.admin.PasswordHash, password) != nil {
		s.log.Info("admin login rejected")
		return "", &domain.Error{Kind: domain.ErrUnauthorized, Msg: "Invalid username or password"}
	}
	return s.tokens.IssueAdmin(username)
}

// Me returns the house behind a verified token.
func (s *AuthService) Me(ctx context.Context, id string) (domain.House, error) {
	return s.houses.Get(ctx, id)
}
