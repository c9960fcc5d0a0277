package jwtauth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"petsched/internal/domain/users"
)

const refreshMarker = "refresh"

var (
	ErrNotConfigured = errors.New("jwt secret not configured")
	ErrTokenEmpty    = errors.New("token is empty")
	ErrWrongKind     = errors.New("token kind mismatch")
)

// Config del manager. Secret firma access y refresh (HS256).
type Config struct {
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Manager emite y valida tokens. Implementa users.TokenIssuer y auth.AuthVerifier.
type Manager struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewManager(cfg Config) *Manager {
	access := cfg.AccessTTL
	if access <= 0 {
		access = 7 * 24 * time.Hour
	}
	refresh := cfg.RefreshTTL
	if refresh <= 0 {
		refresh = 30 * 24 * time.Hour
	}
	return &Manager{
		secret:     []byte(strings.TrimSpace(cfg.Secret)),
		accessTTL:  access,
		refreshTTL: refresh,
		now:        time.Now,
	}
}

// accessClaims: id, email, role, clinic_id.
type accessClaims struct {
	ID       string  `json:"id"`
	Email    string  `json:"email"`
	Role     string  `json:"role"`
	ClinicID *string `json:"clinic_id"`
	Type     string  `json:"type,omitempty"`
	jwt.RegisteredClaims
}

// refreshClaims: id + marca "refresh".
type refreshClaims struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	jwt.RegisteredClaims
}

func (m *Manager) IssueAccess(u users.User) (string, error) {
	c := accessClaims{
		ID:               u.ID,
		Email:            u.Email,
		Role:             u.Role,
		RegisteredClaims: m.registered(u.ID, m.accessTTL),
	}
	if u.ClinicID != "" {
		clinic := u.ClinicID
		c.ClinicID = &clinic
	}
	return m.sign(c)
}

func (m *Manager) IssueRefresh(userID string) (string, error) {
	return m.sign(refreshClaims{
		ID:               userID,
		Type:             refreshMarker,
		RegisteredClaims: m.registered(userID, m.refreshTTL),
	})
}

func (m *Manager) ParseRefresh(token string) (string, error) {
	var c refreshClaims
	if err := m.parse(token, &c); err != nil {
		return "", err
	}
	if c.Type != refreshMarker {
		return "", ErrWrongKind
	}
	if strings.TrimSpace(c.ID) == "" {
		return "", errors.New("refresh token missing user id")
	}
	return c.ID, nil
}

// registered arma exp/iat + jti único: dos tokens emitidos en el mismo segundo no son iguales.
func (m *Manager) registered(subject string, ttl time.Duration) jwt.RegisteredClaims {
	now := m.now()
	return jwt.RegisteredClaims{
		Subject:   subject,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}

func (m *Manager) sign(c jwt.Claims) (string, error) {
	if len(m.secret) == 0 {
		return "", ErrNotConfigured
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return s, nil
}

func (m *Manager) parse(token string, c jwt.Claims) error {
	if len(m.secret) == 0 {
		return ErrNotConfigured
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrTokenEmpty
	}

	_, err := jwt.ParseWithClaims(token, c, func(*jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	)
	return err
}
