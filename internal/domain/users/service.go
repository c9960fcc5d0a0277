package users

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"petsched/internal/ports/auth"
	"petsched/internal/ports/capabilities"
)

const (
	// BcryptCost fijo en 12.
	BcryptCost = 12

	MinPasswordLength = 6
	// MaxPasswordBytes es el tope de bcrypt; más largo es ErrInvalidInput.
	MaxPasswordBytes = 72
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrNotFound           = errors.New("user not found")
	ErrEmailTaken         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid refresh token")
	ErrWrongPassword      = errors.New("current password is incorrect")
	ErrLimitReached       = errors.New("tier user limit reached")
)

// TokenIssuer firma y parsea tokens; lo implementa adapters/auth/jwtauth.
type TokenIssuer interface {
	IssueAccess(u User) (string, error)
	IssueRefresh(userID string) (string, error)
	// ParseRefresh valida firma, expiración y marca "refresh"; devuelve el user id.
	ParseRefresh(token string) (string, error)
}

// WelcomeNotifier manda el email de bienvenida. Best-effort.
type WelcomeNotifier interface {
	Welcome(ctx context.Context, u User) error
}

type Service struct {
	repo     Repository
	tokens   TokenIssuer
	notifier WelcomeNotifier
	caps     capabilities.CapabilitiesResolver
	hashCost int
	now      func() time.Time
}

// NewService: notifier y caps pueden ser nil.
func NewService(repo Repository, tokens TokenIssuer, notifier WelcomeNotifier, caps capabilities.CapabilitiesResolver) *Service {
	return &Service{
		repo:     repo,
		tokens:   tokens,
		notifier: notifier,
		caps:     caps,
		hashCost: BcryptCost,
		now:      time.Now,
	}
}

type RegisterInput struct {
	Email    string
	Password string
	Name     string
	Role     string
	ClinicID string
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (User, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return User{}, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return User{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if err := checkPassword("password", in.Password); err != nil {
		return User{}, err
	}

	role := strings.TrimSpace(in.Role)
	if role == "" {
		role = auth.RoleClient
	}
	if role != auth.RoleAdmin && role != auth.RoleVet && role != auth.RoleClient {
		return User{}, fmt.Errorf("%w: role must be admin, vet or client", ErrInvalidInput)
	}

	// Chequeo previo para el mensaje; la carrera la cubre el índice único en Create.
	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		return User{}, ErrEmailTaken
	} else if !errors.Is(err, ErrNotFound) {
		return User{}, err
	}

	clinicID := strings.TrimSpace(in.ClinicID)
	if s.caps != nil && clinicID != "" {
		ok, err := s.caps.HasCapacity(ctx, capabilities.CapacityCheck{
			ClinicID: clinicID,
			Resource: capabilities.ResourceUsers,
		})
		if err != nil {
			return User{}, err
		}
		if !ok {
			return User{}, ErrLimitReached
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.hashCost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	u := User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		Name:         name,
		Role:         role,
		ClinicID:     clinicID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return User{}, err
	}

	if s.notifier != nil {
		if err := s.notifier.Welcome(ctx, u); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("user_id", u.ID).Msg("welcome email failed")
		}
	}
	return u, nil
}

func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	u, err := s.repo.GetByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return Session{}, ErrInvalidCredentials
	}

	tokens, err := s.issue(ctx, u)
	if err != nil {
		return Session{}, err
	}
	u.RefreshToken = tokens.RefreshToken

	return Session{User: u, Token: tokens.Token, RefreshToken: tokens.RefreshToken}, nil
}

// Refresh rota ambos tokens. Un refresh token viejo (superado por otro login) falla
// aunque su firma sea válida.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return Tokens{}, ErrInvalidToken
	}

	userID, err := s.tokens.ParseRefresh(refreshToken)
	if err != nil {
		return Tokens{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	u, err := s.repo.GetByRefreshToken(ctx, userID, refreshToken)
	if errors.Is(err, ErrNotFound) {
		return Tokens{}, ErrInvalidToken
	}
	if err != nil {
		return Tokens{}, err
	}

	return s.issue(ctx, u)
}

// issue firma un par nuevo y persiste el refresh (invalida el anterior).
func (s *Service) issue(ctx context.Context, u User) (Tokens, error) {
	access, err := s.tokens.IssueAccess(u)
	if err != nil {
		return Tokens{}, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := s.tokens.IssueRefresh(u.ID)
	if err != nil {
		return Tokens{}, fmt.Errorf("issue refresh token: %w", err)
	}
	if err := s.repo.SetRefreshToken(ctx, u.ID, refresh); err != nil {
		return Tokens{}, err
	}
	return Tokens{Token: access, RefreshToken: refresh}, nil
}

func (s *Service) Logout(ctx context.Context, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return ErrNotFound
	}
	return s.repo.SetRefreshToken(ctx, userID, "")
}

func (s *Service) Profile(ctx context.Context, userID string) (User, error) {
	if strings.TrimSpace(userID) == "" {
		return User{}, ErrNotFound
	}
	return s.repo.GetByID(ctx, userID)
}

type ProfileInput struct {
	Name  string
	Email string // vacío = no cambia
}

func (s *Service) UpdateProfile(ctx context.Context, userID string, in ProfileInput) (User, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return User{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}

	u, err := s.Profile(ctx, userID)
	if err != nil {
		return User{}, err
	}

	if strings.TrimSpace(in.Email) != "" {
		email, err := normalizeEmail(in.Email)
		if err != nil {
			return User{}, err
		}
		if email != u.Email {
			other, err := s.repo.GetByEmail(ctx, email)
			if err == nil && other.ID != u.ID {
				return User{}, ErrEmailTaken
			}
			if err != nil && !errors.Is(err, ErrNotFound) {
				return User{}, err
			}
			u.Email = email
		}
	}

	u.Name = name
	u.UpdatedAt = s.now()
	if err := s.repo.UpdateProfile(ctx, u); err != nil {
		return User{}, err
	}
	return u, nil
}

func (s *Service) ChangePassword(ctx context.Context, userID, current, next string) error {
	if current == "" || next == "" {
		return fmt.Errorf("%w: current and new password are required", ErrInvalidInput)
	}
	if err := checkPassword("new password", next); err != nil {
		return err
	}

	u, err := s.Profile(ctx, userID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(current)); err != nil {
		return ErrWrongPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(next), s.hashCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	u.PasswordHash = string(hash)
	u.UpdatedAt = s.now()
	return s.repo.UpdatePassword(ctx, u)
}

// checkPassword cuenta bytes, no runas: es lo que mira bcrypt.
func checkPassword(field, pw string) error {
	if len(pw) < MinPasswordLength {
		return fmt.Errorf("%w: %s must be at least %d characters", ErrInvalidInput, field, MinPasswordLength)
	}
	if len(pw) > MaxPasswordBytes {
		return fmt.Errorf("%w: %s must be at most %d bytes", ErrInvalidInput, field, MaxPasswordBytes)
	}
	return nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: email is not valid", ErrInvalidInput)
	}
	return email, nil
}
