package pets

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"petsched/internal/domain/uploads"
	"petsched/internal/middleware"
	"petsched/internal/platform/httpjson"
)

type PhotoOptions struct {
	MaxBytes int64
}

func RegisterRoutes(r chi.Router, svc *Service, photo PhotoOptions) {
	r.Route("/api/pets", func(pr chi.Router) {
		pr.Get("/", listPetsHandler(svc))
		pr.Post("/", createPetHandler(svc))
		pr.Get("/{petID}", getPetHandler(svc))
		pr.Put("/{petID}", updatePetHandler(svc))
		pr.Delete("/{petID}", deletePetHandler(svc))
		pr.Post("/{petID}/photo", uploadPhotoHandler(svc, photo))
	})
}

type createPetRequest struct {
	Name       string `json:"name" validate:"required"`
	Species    string `json:"species" validate:"required"`
	Breed      string `json:"breed"`
	Age        *int   `json:"age" validate:"omitempty,gte=0"`
	OwnerName  string `json:"owner_name" validate:"required"`
	OwnerPhone string `json:"owner_phone"`
}

// Punteros: nil = no enviado => se conserva el valor actual.
type updatePetRequest struct {
	Name       *string `json:"name"`
	Species    *string `json:"species"`
	Breed      *string `json:"breed"`
	Age        *int    `json:"age"`
	OwnerName  *string `json:"owner_name"`
	OwnerPhone *string `json:"owner_phone"`
}

type Response struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Species    string    `json:"species"`
	Breed      *string   `json:"breed"`
	Age        *int      `json:"age"`
	OwnerName  string    `json:"owner_name"`
	OwnerPhone *string   `json:"owner_phone"`
	PhotoURL   *string   `json:"photo_url"`
	ClinicID   *string   `json:"clinic_id"`
	UserID     *string   `json:"user_id"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// listPetsHandler godoc
// @Summary Listar mascotas
// @Description Todas las mascotas, más nuevas primero.
// @Tags pets
// @Produce json
// @Success 200 {object} httpjson.Envelope
// @Router /pets [get]
func listPetsHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := svc.List(r.Context())
		if err != nil {
			httpjson.Internal(w, r, "Failed to fetch pets", err)
			return
		}

		httpjson.List(w, ToResponses(items))
	}
}

// createPetHandler godoc
// @Summary Crear mascota
// @Tags pets
// @Accept json
// @Produce json
// @Param body body createPetRequest true "Mascota"
// @Success 201 {object} httpjson.Envelope
// @Failure 400 {object} httpjson.ErrorBody
// @Router /pets [post]
func createPetHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createPetRequest
		if err := httpjson.DecodeAndValidate(r, &req); err != nil {
			if errors.Is(err, httpjson.ErrMalformed) {
				httpjson.BadRequest(w, "Invalid JSON", err.Error())
				return
			}
			httpjson.BadRequest(w, "Missing required fields", httpjson.ValidationMessage(err))
			return
		}

		// Sin token la mascota queda sin clínica ni usuario.
		claims, _ := middleware.GetClaims(r.Context())

		p, err := svc.Create(r.Context(), CreateInput{
			Name:       req.Name,
			Species:    req.Species,
			Breed:      req.Breed,
			Age:        req.Age,
			OwnerName:  req.OwnerName,
			OwnerPhone: req.OwnerPhone,
			ClinicID:   claims.ClinicID,
			UserID:     claims.UserID,
		})
		if err != nil {
			writePetError(w, r, err, "")
			return
		}

		httpjson.OKMessage(w, http.StatusCreated, ToResponse(p), "Pet created successfully")
	}
}

func getPetHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		petID := chi.URLParam(r, "petID")
		p, err := svc.GetByID(r.Context(), petID)
		if err != nil {
			writePetError(w, r, err, petID)
			return
		}

		httpjson.OK(w, http.StatusOK, ToResponse(p))
	}
}

func updatePetHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		petID := chi.URLParam(r, "petID")

		var req updatePetRequest
		if err := httpjson.Decode(r, &req); err != nil {
			httpjson.BadRequest(w, "Invalid JSON", err.Error())
			return
		}

		updated, err := svc.Update(r.Context(), petID, UpdateInput{
			Name:       req.Name,
			Species:    req.Species,
			Breed:      req.Breed,
			Age:        req.Age,
			OwnerName:  req.OwnerName,
			OwnerPhone: req.OwnerPhone,
		})
		if err != nil {
			writePetError(w, r, err, petID)
			return
		}

		httpjson.OKMessage(w, http.StatusOK, ToResponse(updated), "Pet updated successfully")
	}
}

func deletePetHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		petID := chi.URLParam(r, "petID")
		if err := svc.Delete(r.Context(), petID); err != nil {
			writePetError(w, r, err, petID)
			return
		}

		httpjson.OKMessage(w, http.StatusOK, map[string]string{"id": petID}, "Pet deleted successfully")
	}
}

// uploadPhotoHandler godoc
// @Summary Adjuntar foto a una mascota
// @Tags pets
// @Accept multipart/form-data
// @Produce json
// @Param petID path string true "Pet ID"
// @Param photo formData file true "Imagen (max 5MB)"
// @Success 200 {object} httpjson.Envelope
// @Failure 400 {object} httpjson.ErrorBody
// @Failure 404 {object} httpjson.ErrorBody
// @Router /pets/{petID}/photo [post]
func uploadPhotoHandler(svc *Service, opts PhotoOptions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		petID := chi.URLParam(r, "petID")

		// 404 antes de tocar el disco.
		if _, err := svc.GetByID(r.Context(), petID); err != nil {
			writePetError(w, r, err, petID)
			return
		}

		files, err := uploads.FormFiles(w, r, "photo", 1, opts.MaxBytes)
		if err != nil {
			uploads.WriteError(w, r, err)
			return
		}

		p, err := svc.AttachPhoto(r.Context(), petID, files[0])
		if err != nil {
			writePetError(w, r, err, petID)
			return
		}

		httpjson.OKMessage(w, http.StatusOK, ToResponse(p), "Photo uploaded successfully")
	}
}

func writePetError(w http.ResponseWriter, r *http.Request, err error, petID string) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		httpjson.BadRequest(w, "Missing required fields", err.Error())
	case errors.Is(err, ErrNotFound):
		httpjson.NotFound(w, "Pet not found", "No pet found with id: "+petID)
	case errors.Is(err, ErrHasAppointments):
		httpjson.Error(w, http.StatusBadRequest, httpjson.CategoryConflict,
			"Cannot delete pet", "Pet has existing appointments. Please delete appointments first.")
	case errors.Is(err, ErrLimitReached):
		httpjson.Error(w, http.StatusForbidden, httpjson.CategoryForbidden,
			"Tier limit reached", "Your subscription tier does not allow more pets")
	case errors.Is(err, uploads.ErrNoFile), errors.Is(err, uploads.ErrNotImage),
		errors.Is(err, uploads.ErrTooLarge), errors.Is(err, uploads.ErrInvalidName):
		uploads.WriteError(w, r, err)
	default:
		httpjson.Internal(w, r, "Pet operation failed", err)
	}
}

func ToResponse(p Pet) Response {
	return Response{
		ID:         p.ID,
		Name:       p.Name,
		Species:    p.Species,
		Breed:      nullable(p.Breed),
		Age:        p.Age,
		OwnerName:  p.OwnerName,
		OwnerPhone: nullable(p.OwnerPhone),
		PhotoURL:   nullable(p.PhotoURL),
		ClinicID:   nullable(p.ClinicID),
		UserID:     nullable(p.UserID),
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
	}
}

func ToResponses(items []Pet) []Response {
	out := make([]Response, 0, len(items))
	for _, p := range items {
		out = append(out, ToResponse(p))
	}
	return out
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
