package payments

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"petsched/internal/platform/httpjson"
)

func RegisterRoutes(r chi.Router, svc *Service) {
	r.Route("/api/payments", func(pr chi.Router) {
		pr.Get("/pricing", pricingHandler(svc))
		pr.Post("/create-intent", createIntentHandler(svc))
		pr.Post("/confirm", confirmHandler(svc))
		pr.Post("/create-customer", createCustomerHandler(svc))
		pr.Get("/payment-methods/{customerID}", paymentMethodsHandler(svc))
		pr.Post("/refund", refundHandler(svc))
		pr.Post("/calculate-cost", calculateCostHandler(svc))
	})
}

type createIntentRequest struct {
	Appointment *AppointmentRef `json:"appointment"`
	Amount      float64         `json:"amount"`
}

type confirmRequest struct {
	PaymentIntentID string `json:"paymentIntentId"`
}

type createCustomerRequest struct {
	UserData *CustomerInput `json:"userData"`
}

type refundRequest struct {
	PaymentIntentID string  `json:"paymentIntentId"`
	Amount          float64 `json:"amount"`
}

type calculateCostRequest struct {
	ServiceType string `json:"serviceType"`
	Duration    int    `json:"duration"`
}

func pricingHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		httpjson.OK(w, http.StatusOK, svc.Pricing())
	}
}

// createIntentHandler godoc
// @Summary Crear payment intent para una cita
// @Tags payments
// @Accept json
// @Produce json
// @Success 200 {object} httpjson.Envelope
// @Failure 400 {object} httpjson.ErrorBody
// @Router /payments/create-intent [post]
func createIntentHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createIntentRequest
		if err := httpjson.Decode(r, &req); err != nil {
			httpjson.BadRequest(w, "Invalid JSON", "Request body must be valid JSON")
			return
		}
		if req.Appointment == nil || req.Amount <= 0 {
			httpjson.BadRequest(w, "Missing required fields", "Appointment and amount are required")
			return
		}

		res, err := svc.CreateIntent(r.Context(), *req.Appointment, req.Amount)
		if err != nil {
			writePaymentError(w, r, err, "Payment intent creation failed")
			return
		}
		httpjson.OK(w, http.StatusOK, res)
	}
}

func confirmHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req confirmRequest
		if err := httpjson.Decode(r, &req); err != nil {
			httpjson.BadRequest(w, "Invalid JSON", "Request body must be valid JSON")
			return
		}
		if strings.TrimSpace(req.PaymentIntentID) == "" {
			httpjson.BadRequest(w, "Missing payment intent ID", "Payment intent ID is required")
			return
		}

		in, err := svc.Confirm(r.Context(), req.PaymentIntentID)
		if err != nil {
			writePaymentError(w, r, err, "Payment confirmation failed")
			return
		}
		httpjson.OKMessage(w, http.StatusOK, in, "Payment confirmed successfully")
	}
}

func createCustomerHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createCustomerRequest
		if err := httpjson.Decode(r, &req); err != nil {
			httpjson.BadRequest(w, "Invalid JSON", "Request body must be valid JSON")
			return
		}
		if req.UserData == nil || strings.TrimSpace(req.UserData.Email) == "" || strings.TrimSpace(req.UserData.Name) == "" {
			httpjson.BadRequest(w, "Missing user data", "User email and name are required")
			return
		}

		c, err := svc.CreateCustomer(r.Context(), *req.UserData)
		if err != nil {
			writePaymentError(w, r, err, "Customer creation failed")
			return
		}
		httpjson.OKMessage(w, http.StatusOK, c, "Customer created successfully")
	}
}

func paymentMethodsHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pms, err := svc.PaymentMethods(r.Context(), chi.URLParam(r, "customerID"))
		if err != nil {
			writePaymentError(w, r, err, "Failed to get payment methods")
			return
		}
		httpjson.OK(w, http.StatusOK, pms)
	}
}

func refundHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req refundRequest
		if err := httpjson.Decode(r, &req); err != nil {
			httpjson.BadRequest(w, "Invalid JSON", "Request body must be valid JSON")
			return
		}
		if strings.TrimSpace(req.PaymentIntentID) == "" || req.Amount <= 0 {
			httpjson.BadRequest(w, "Missing required fields", "Payment intent ID and amount are required")
			return
		}

		ref, err := svc.Refund(r.Context(), req.PaymentIntentID, req.Amount)
		if err != nil {
			writePaymentError(w, r, err, "Refund creation failed")
			return
		}
		httpjson.OKMessage(w, http.StatusOK, ref, "Refund created successfully")
	}
}

func calculateCostHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req calculateCostRequest
		if err := httpjson.Decode(r, &req); err != nil {
			httpjson.BadRequest(w, "Invalid JSON", "Request body must be valid JSON")
			return
		}

		q, err := svc.Quote(req.ServiceType, req.Duration)
		if err != nil {
			httpjson.BadRequest(w, "Missing service type", "Service type is required")
			return
		}
		httpjson.OK(w, http.StatusOK, q)
	}
}

// El procesador rechaza con 400 y su propio mensaje; el resto es 500.
func writePaymentError(w http.ResponseWriter, r *http.Request, err error, title string) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		httpjson.BadRequest(w, title, strings.TrimPrefix(err.Error(), ErrInvalidInput.Error()+": "))
	case errors.Is(err, ErrNotCompleted):
		httpjson.BadRequest(w, title, "Payment not completed")
	case errors.Is(err, ErrUpstream):
		httpjson.Error(w, http.StatusBadRequest, httpjson.CategoryUpstream, title,
			strings.TrimPrefix(err.Error(), ErrUpstream.Error()+": "))
	default:
		httpjson.Internal(w, r, title, err)
	}
}
