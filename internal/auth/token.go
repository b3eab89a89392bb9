package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"maihome-survey-service/internal/domain"
)

// Capability is what a verified token allows its bearer to do.
type Capability string

const (
	CapAdmin Capability = "admin"
	CapHouse Capability = "house"
)

// DefaultTTL is how long issued tokens stay valid.
const DefaultTTL = 7 * 24 * time.Hour

// Claims is the token payload. House tokens carry the house row id and its
// external id; admin tokens carry only the subject.
type Claims struct {
	Role       Capability `json:"role"`
	HouseID    string     `json:"id,omitempty"`
	ExternalID string     `json:"houseId,omitempty"`
	Name       string     `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Allows reports whether c grants capability.
func (c *Claims) Allows(capability Capability) bool {
	return c != nil && c.Role == capability
}

// Tokens signs and verifies HS256 tokens.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokens(secret string, ttl time.Duration) (*Tokens, error) {
	if secret == "" {
		return nil, errors.New("auth: token secret is empty")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Tokens{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// IssueHouse signs a token for h.
func (t *Tokens) IssueHouse(h domain.House) (string, error) {
	c := Claims{Role: CapHouse, HouseID: h.ID, ExternalID: h.HouseID}
	if h.Name != nil {
		c.Name = *h.Name
	}
	return t.sign(h.ID, c)
}

// IssueAdmin signs an operator token.
func (t *Tokens) IssueAdmin(username string) (string, error) {
	return t.sign(username, Claims{Role: CapAdmin})
}

func (t *Tokens) sign(subject string, c Claims) (string, error) {
	now := t.now()
	c.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(t.secret)
}

// Parse verifies raw and returns its claims.
func (t *Tokens) Parse(raw string) (*Claims, error) {
	tok, err := jwt.ParseWithClaims(raw, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(t.now))
	if err != nil {
		return nil, err
	}
	c, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return nil, errors.New("invalid token")
	}
	if c.Role != CapAdmin && c.Role != CapHouse {
		return nil, errors.New("token carries no known role")
	}
	return c, nil
}

type claimsKey struct{}

// WithClaims attaches verified claims to ctx.
func WithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, c)
}

// ClaimsFrom returns the claims attached by WithClaims.
func ClaimsFrom(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*Claims)
	return c, ok && c != nil
}
