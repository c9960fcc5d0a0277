package users

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"petsched/internal/middleware"
	"petsched/internal/platform/httpjson"
)

func RegisterRoutes(r chi.Router, svc *Service) {
	r.Route("/api/auth", func(ar chi.Router) {
		ar.Post("/register", registerHandler(svc))
		ar.Post("/login", loginHandler(svc))
		ar.Post("/refresh", refreshHandler(svc))

		ar.Group(func(pr chi.Router) {
			pr.Use(middleware.RequireAuth)
			pr.Post("/logout", logoutHandler(svc))
			pr.Get("/profile", getProfileHandler(svc))
			pr.Put("/profile", updateProfileHandler(svc))
			pr.Put("/change-password", changePasswordHandler(svc))
		})
	})
}

type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=72"`
	Name     string `json:"name" validate:"required"`
	Role     string `json:"role" validate:"omitempty,oneof=admin vet client"`
	ClinicID string `json:"clinic_id"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type updateProfileRequest struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"omitempty,email"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=6,max=72"`
}

// UserResponse es el usuario sin password ni refresh token.
type UserResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	ClinicID  *string   `json:"clinic_id"`
	CreatedAt time.Time `json:"created_at"`
}

type sessionResponse struct {
	User         UserResponse `json:"user"`
	Token        string       `json:"token"`
	RefreshToken string       `json:"refreshToken"`
}

type tokensResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

// registerHandler godoc
// @Summary Registrar usuario
// @Tags auth
// @Accept json
// @Produce json
// @Param body body registerRequest true "Datos de registro"
// @Success 201 {object} httpjson.Envelope
// @Failure 400 {object} httpjson.ErrorBody
// @Router /auth/register [post]
func registerHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req registerRequest
		if !decode(w, r, &req, "Email, password, and name are required") {
			return
		}

		u, err := svc.Register(r.Context(), RegisterInput{
			Email:    req.Email,
			Password: req.Password,
			Name:     req.Name,
			Role:     req.Role,
			ClinicID: req.ClinicID,
		})
		if err != nil {
			writeUserError(w, r, err, "Registration failed")
			return
		}

		httpjson.OKMessage(w, http.StatusCreated, ToUserResponse(u), "User registered successfully")
	}
}

// loginHandler godoc
// @Summary Login
// @Tags auth
// @Accept json
// @Produce json
// @Param body body loginRequest true "Credenciales"
// @Success 200 {object} httpjson.Envelope
// @Failure 401 {object} httpjson.ErrorBody
// @Router /auth/login [post]
func loginHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if !decode(w, r, &req, "Email and password are required") {
			return
		}

		sess, err := svc.Login(r.Context(), req.Email, req.Password)
		if err != nil {
			writeUserError(w, r, err, "Login failed")
			return
		}

		httpjson.OKMessage(w, http.StatusOK, sessionResponse{
			User:         ToUserResponse(sess.User),
			Token:        sess.Token,
			RefreshToken: sess.RefreshToken,
		}, "Login successful")
	}
}

func refreshHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req refreshRequest
		if !decode(w, r, &req, "Refresh token is required") {
			return
		}

		tokens, err := svc.Refresh(r.Context(), req.RefreshToken)
		if err != nil {
			writeUserError(w, r, err, "Token refresh failed")
			return
		}

		httpjson.OK(w, http.StatusOK, tokensResponse{Token: tokens.Token, RefreshToken: tokens.RefreshToken})
	}
}

func logoutHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, _ := middleware.GetClaims(r.Context())
		if err := svc.Logout(r.Context(), claims.UserID); err != nil {
			writeUserError(w, r, err, "Logout failed")
			return
		}
		httpjson.OKMessage(w, http.StatusOK, nil, "Logout successful")
	}
}

func getProfileHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, _ := middleware.GetClaims(r.Context())
		u, err := svc.Profile(r.Context(), claims.UserID)
		if err != nil {
			writeUserError(w, r, err, "Failed to fetch profile")
			return
		}
		httpjson.OK(w, http.StatusOK, ToUserResponse(u))
	}
}

func updateProfileHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req updateProfileRequest
		if !decode(w, r, &req, "Name is required") {
			return
		}

		claims, _ := middleware.GetClaims(r.Context())
		u, err := svc.UpdateProfile(r.Context(), claims.UserID, ProfileInput{Name: req.Name, Email: req.Email})
		if errors.Is(err, ErrEmailTaken) {
			httpjson.Error(w, http.StatusBadRequest, httpjson.CategoryConflict,
				"Email already taken", "Another account already uses this email")
			return
		}
		if err != nil {
			writeUserError(w, r, err, "Profile update failed")
			return
		}
		httpjson.OKMessage(w, http.StatusOK, ToUserResponse(u), "Profile updated successfully")
	}
}

func changePasswordHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req changePasswordRequest
		if !decode(w, r, &req, "Current password and new password are required") {
			return
		}

		claims, _ := middleware.GetClaims(r.Context())
		if err := svc.ChangePassword(r.Context(), claims.UserID, req.CurrentPassword, req.NewPassword); err != nil {
			writeUserError(w, r, err, "Password change failed")
			return
		}
		httpjson.OKMessage(w, http.StatusOK, nil, "Password changed successfully")
	}
}

// decode responde 400 y devuelve false si el body no es válido.
func decode(w http.ResponseWriter, r *http.Request, dst any, missingMsg string) bool {
	err := httpjson.DecodeAndValidate(r, dst)
	if err == nil {
		return true
	}
	switch {
	case errors.Is(err, httpjson.ErrMalformed):
		httpjson.BadRequest(w, "Invalid JSON", err.Error())
	case httpjson.HasRequiredFailure(err):
		httpjson.BadRequest(w, "Missing required fields", missingMsg)
	default:
		httpjson.BadRequest(w, "Validation failed", httpjson.ValidationMessage(err))
	}
	return false
}

func writeUserError(w http.ResponseWriter, r *http.Request, err error, title string) {
	switch {
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrWrongPassword):
		httpjson.BadRequest(w, title, err.Error())
	case errors.Is(err, ErrEmailTaken):
		httpjson.Error(w, http.StatusBadRequest, httpjson.CategoryConflict, title, "User already exists")
	case errors.Is(err, ErrInvalidCredentials):
		httpjson.Error(w, http.StatusUnauthorized, httpjson.CategoryUnauthenticated, title, "Invalid credentials")
	case errors.Is(err, ErrInvalidToken):
		httpjson.Error(w, http.StatusUnauthorized, httpjson.CategoryUnauthenticated, title, "Invalid refresh token")
	case errors.Is(err, ErrNotFound):
		httpjson.NotFound(w, "User not found", err.Error())
	case errors.Is(err, ErrLimitReached):
		httpjson.Error(w, http.StatusForbidden, httpjson.CategoryForbidden,
			"Tier limit reached", "Your subscription tier does not allow more users")
	default:
		httpjson.Internal(w, r, title, err)
	}
}

func ToUserResponse(u User) UserResponse {
	out := UserResponse{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
	}
	if u.ClinicID != "" {
		c := u.ClinicID
		out.ClinicID = &c
	}
	return out
}
