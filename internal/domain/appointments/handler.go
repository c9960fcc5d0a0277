package appointments

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"petsched/internal/middleware"
	"petsched/internal/platform/httpjson"
)

func RegisterRoutes(r chi.Router, svc *Service) {
	r.Route("/api/appointments", func(ar chi.Router) {
		ar.Get("/", listAppointmentsHandler(svc))
		ar.Post("/", createAppointmentHandler(svc))
		ar.Get("/upcoming", upcomingAppointmentsHandler(svc))
		ar.Get("/pet/{petID}", listPetAppointmentsHandler(svc))
		ar.Get("/{appointmentID}", getAppointmentHandler(svc))
		ar.Put("/{appointmentID}", updateAppointmentHandler(svc))
		ar.Delete("/{appointmentID}", deleteAppointmentHandler(svc))
	})
}

type createAppointmentRequest struct {
	PetID           string  `json:"pet_id" validate:"required"`
	ServiceType     string  `json:"service_type" validate:"required"`
	AppointmentDate string  `json:"appointment_date" validate:"required"`
	AppointmentTime string  `json:"appointment_time" validate:"required"`
	DurationMinutes *int    `json:"duration_minutes"`
	Notes           *string `json:"notes"`
	Status          *string `json:"status"`
}

type updateAppointmentRequest struct {
	PetID           *string `json:"pet_id"`
	ServiceType     *string `json:"service_type"`
	AppointmentDate *string `json:"appointment_date"`
	AppointmentTime *string `json:"appointment_time"`
	DurationMinutes *int    `json:"duration_minutes"`
	Status          *string `json:"status"`
	// notes se resuelve aparte para distinguir ausente / null / "".
}

func (req *updateAppointmentRequest) decode(raw map[string]json.RawMessage) error {
	fields := map[string]any{
		"pet_id":           &req.PetID,
		"service_type":     &req.ServiceType,
		"appointment_date": &req.AppointmentDate,
		"appointment_time": &req.AppointmentTime,
		"duration_minutes": &req.DurationMinutes,
		"status":           &req.Status,
	}
	for name, dst := range fields {
		v, ok := raw[name]
		if !ok {
			continue
		}
		if err := json.Unmarshal(v, dst); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

type Response struct {
	ID              string    `json:"id"`
	PetID           string    `json:"pet_id"`
	ServiceType     string    `json:"service_type"`
	AppointmentDate string    `json:"appointment_date"`
	AppointmentTime string    `json:"appointment_time"`
	DurationMinutes int       `json:"duration_minutes"`
	Notes           *string   `json:"notes"`
	Status          Status    `json:"status"`
	ClinicID        *string   `json:"clinic_id"`
	UserID          *string   `json:"user_id"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`

	PetName    *string `json:"pet_name"`
	PetSpecies *string `json:"pet_species"`
	PetBreed   *string `json:"pet_breed"`
	OwnerName  *string `json:"owner_name"`
}

// listAppointmentsHandler godoc
// @Summary Listar citas
// @Description Todas las citas con datos de la mascota, por fecha y hora descendente.
// @Tags appointments
// @Produce json
// @Success 200 {object} httpjson.Envelope
// @Router /appointments [get]
func listAppointmentsHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := svc.List(r.Context())
		if err != nil {
			httpjson.Internal(w, r, "Failed to fetch appointments", err)
			return
		}
		httpjson.List(w, ToResponses(items))
	}
}

func listPetAppointmentsHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := svc.ListByPet(r.Context(), chi.URLParam(r, "petID"))
		if err != nil {
			httpjson.Internal(w, r, "Failed to fetch pet appointments", err)
			return
		}
		httpjson.List(w, ToResponses(items))
	}
}

func upcomingAppointmentsHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		days := 7
		if v := r.URL.Query().Get("days"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 || n > 366 {
				httpjson.BadRequest(w, "Invalid days", "days must be an integer between 1 and 366")
				return
			}
			days = n
		}

		items, err := svc.Upcoming(r.Context(), days)
		if err != nil {
			httpjson.Internal(w, r, "Failed to fetch upcoming appointments", err)
			return
		}
		httpjson.List(w, ToResponses(items))
	}
}

func getAppointmentHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "appointmentID")
		a, err := svc.GetByID(r.Context(), id)
		if err != nil {
			writeAppointmentError(w, r, err, id)
			return
		}
		httpjson.OK(w, http.StatusOK, ToResponse(a))
	}
}

// createAppointmentHandler godoc
// @Summary Crear cita
// @Description Falla con 409 si la mascota ya tiene una cita no cancelada en la misma fecha y hora.
// @Tags appointments
// @Accept json
// @Produce json
// @Param body body createAppointmentRequest true "Cita"
// @Success 201 {object} httpjson.Envelope
// @Failure 400 {object} httpjson.ErrorBody
// @Failure 404 {object} httpjson.ErrorBody
// @Failure 409 {object} httpjson.ErrorBody
// @Router /appointments [post]
func createAppointmentHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createAppointmentRequest
		if err := httpjson.DecodeAndValidate(r, &req); err != nil {
			if errors.Is(err, httpjson.ErrMalformed) {
				httpjson.BadRequest(w, "Invalid JSON", err.Error())
				return
			}
			httpjson.BadRequest(w, "Missing required fields", httpjson.ValidationMessage(err))
			return
		}

		claims, _ := middleware.GetClaims(r.Context())

		a, err := svc.Create(r.Context(), CreateInput{
			PetID:           req.PetID,
			ServiceType:     req.ServiceType,
			Date:            req.AppointmentDate,
			Time:            req.AppointmentTime,
			DurationMinutes: req.DurationMinutes,
			Notes:           req.Notes,
			Status:          toStatus(req.Status),
			ClinicID:        claims.ClinicID,
			UserID:          claims.UserID,
			NotifyTo:        Recipient{Email: claims.Email},
		})
		if err != nil {
			writeAppointmentError(w, r, err, "")
			return
		}

		httpjson.OKMessage(w, http.StatusCreated, ToResponse(a), "Appointment created successfully")
	}
}

func updateAppointmentHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "appointmentID")

		// Decodificamos a map primero para detectar si "notes" vino en el body.
		var raw map[string]json.RawMessage
		if err := httpjson.Decode(r, &raw); err != nil {
			httpjson.BadRequest(w, "Invalid JSON", err.Error())
			return
		}

		var req updateAppointmentRequest
		if err := req.decode(raw); err != nil {
			httpjson.BadRequest(w, "Invalid JSON", err.Error())
			return
		}

		notes := NotesPatch{}
		if v, ok := raw["notes"]; ok {
			notes.Present = true
			if string(v) != "null" {
				var s string
				if err := json.Unmarshal(v, &s); err != nil {
					httpjson.BadRequest(w, "Invalid notes", "notes must be a string or null")
					return
				}
				notes.Value = &s
			}
		}

		updated, err := svc.Update(r.Context(), id, UpdateInput{
			PetID:           req.PetID,
			ServiceType:     req.ServiceType,
			Date:            req.AppointmentDate,
			Time:            req.AppointmentTime,
			DurationMinutes: req.DurationMinutes,
			Notes:           notes,
			Status:          toStatus(req.Status),
		})
		if err != nil {
			writeAppointmentError(w, r, err, id)
			return
		}

		httpjson.OKMessage(w, http.StatusOK, ToResponse(updated), "Appointment updated successfully")
	}
}

func deleteAppointmentHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "appointmentID")
		if err := svc.Delete(r.Context(), id); err != nil {
			writeAppointmentError(w, r, err, id)
			return
		}
		httpjson.OKMessage(w, http.StatusOK, map[string]string{"id": id}, "Appointment deleted successfully")
	}
}

func writeAppointmentError(w http.ResponseWriter, r *http.Request, err error, id string) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		httpjson.BadRequest(w, "Invalid appointment", err.Error())
	case errors.Is(err, ErrPetNotFound):
		httpjson.NotFound(w, "Pet not found", "The specified pet does not exist")
	case errors.Is(err, ErrNotFound):
		httpjson.NotFound(w, "Appointment not found", "No appointment found with id: "+id)
	case errors.Is(err, ErrConflict):
		httpjson.Error(w, http.StatusConflict, httpjson.CategoryConflict,
			"Scheduling conflict", "An appointment already exists for this pet at the specified date and time")
	case errors.Is(err, ErrLimitReached):
		httpjson.Error(w, http.StatusForbidden, httpjson.CategoryForbidden,
			"Tier limit reached", "Your subscription tier does not allow more appointments")
	default:
		httpjson.Internal(w, r, "Appointment operation failed", err)
	}
}

func toStatus(s *string) *Status {
	if s == nil {
		return nil
	}
	st := Status(*s)
	return &st
}

func ToResponse(a Appointment) Response {
	out := Response{
		ID:              a.ID,
		PetID:           a.PetID,
		ServiceType:     a.ServiceType,
		AppointmentDate: a.Date,
		AppointmentTime: a.Time,
		DurationMinutes: a.DurationMinutes,
		Notes:           a.Notes,
		Status:          a.Status,
		ClinicID:        nullable(a.ClinicID),
		UserID:          nullable(a.UserID),
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
	if a.Pet != nil {
		out.PetName = &a.Pet.Name
		out.PetSpecies = &a.Pet.Species
		out.PetBreed = nullable(a.Pet.Breed)
		out.OwnerName = &a.Pet.OwnerName
	}
	return out
}

func ToResponses(items []Appointment) []Response {
	out := make([]Response, 0, len(items))
	for _, a := range items {
		out = append(out, ToResponse(a))
	}
	return out
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
