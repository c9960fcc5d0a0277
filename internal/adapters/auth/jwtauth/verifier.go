package jwtauth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"petsched/internal/ports/auth"
)

// Verify implementa auth.AuthVerifier sobre access tokens.
// Un refresh token no sirve como access token.
func (m *Manager) Verify(_ context.Context, token string) (auth.Claims, error) {
	var c accessClaims
	if err := m.parse(token, &c); err != nil {
		return auth.Claims{}, fmt.Errorf("verify access token: %w", err)
	}
	if c.Type == refreshMarker {
		return auth.Claims{}, ErrWrongKind
	}

	claims := auth.Claims{
		UserID: strings.TrimSpace(c.ID),
		Email:  c.Email,
		Role:   c.Role,
	}
	if c.ClinicID != nil {
		claims.ClinicID = *c.ClinicID
	}
	if claims.UserID == "" {
		return auth.Claims{}, errors.New("access token missing user id")
	}
	return claims, nil
}
