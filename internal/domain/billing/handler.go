package billing

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"petsched/internal/middleware"
	"petsched/internal/platform/httpjson"
	"petsched/internal/ports/auth"
)

// maxWebhookBytes acota el payload del webhook (el procesador manda eventos chicos).
const maxWebhookBytes = 1 << 20

func RegisterRoutes(r chi.Router, svc *Service) {
	r.Route("/api/billing", func(br chi.Router) {
		br.Get("/pricing", pricingHandler(svc))
		br.Post("/webhook", webhookHandler(svc))

		br.Group(func(ar chi.Router) {
			ar.Use(middleware.RequireAuth)
			ar.Get("/subscription", subscriptionHandler(svc))

			ar.With(middleware.RequireRole(auth.RoleAdmin)).Post("/create-subscription", createSubscriptionHandler(svc))
			ar.With(middleware.RequireRole(auth.RoleAdmin)).Post("/cancel-subscription", cancelSubscriptionHandler(svc))
		})
	})
}

type createSubscriptionRequest struct {
	Tier            string `json:"tier" validate:"required"`
	PaymentMethodID string `json:"paymentMethodId" validate:"required"`
}

func pricingHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		httpjson.OK(w, http.StatusOK, svc.Pricing())
	}
}

// subscriptionHandler godoc
// @Summary Estado de la suscripción de la clínica
// @Description Tier, estado, límites y uso actual (mascotas, citas, usuarios).
// @Tags billing
// @Produce json
// @Security BearerAuth
// @Success 200 {object} httpjson.Envelope
// @Failure 404 {object} httpjson.ErrorBody
// @Router /billing/subscription [get]
func subscriptionHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, _ := middleware.GetClaims(r.Context())
		view, err := svc.Subscription(r.Context(), claims.ClinicID)
		if err != nil {
			writeBillingError(w, r, err, "Failed to get subscription status")
			return
		}
		httpjson.OK(w, http.StatusOK, view)
	}
}

func createSubscriptionHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createSubscriptionRequest
		if err := httpjson.DecodeAndValidate(r, &req); err != nil {
			httpjson.BadRequest(w, "Invalid request", httpjson.ValidationMessage(err))
			return
		}

		claims, _ := middleware.GetClaims(r.Context())
		res, err := svc.CreateSubscription(r.Context(), claims.ClinicID, Tier(req.Tier), req.PaymentMethodID)
		if err != nil {
			writeBillingError(w, r, err, "Subscription creation failed")
			return
		}
		httpjson.OKMessage(w, http.StatusOK, res, "Subscription created successfully")
	}
}

func cancelSubscriptionHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, _ := middleware.GetClaims(r.Context())
		if err := svc.CancelSubscription(r.Context(), claims.ClinicID); err != nil {
			writeBillingError(w, r, err, "Failed to cancel subscription")
			return
		}
		httpjson.OKMessage(w, http.StatusOK, nil, "Subscription cancelled successfully")
	}
}

type webhookResponse struct {
	Received  bool `json:"received"`
	Duplicate bool `json:"duplicate,omitempty"`
}

// webhookHandler godoc
// @Summary Webhook del procesador de pagos
// @Description Verifica Stripe-Signature; eventos repetidos (mismo id) no se reprocesan.
// @Tags billing
// @Accept json
// @Produce json
// @Success 200 {object} webhookResponse
// @Failure 400 {object} httpjson.ErrorBody
// @Router /billing/webhook [post]
func webhookHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
		if err != nil {
			httpjson.BadRequest(w, "Webhook Error", "could not read body")
			return
		}

		res, err := svc.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature"))
		if err != nil {
			writeBillingError(w, r, err, "Webhook Error")
			return
		}

		httpjson.Write(w, http.StatusOK, webhookResponse{Received: true, Duplicate: res.Duplicate})
	}
}

func writeBillingError(w http.ResponseWriter, r *http.Request, err error, title string) {
	switch {
	case errors.Is(err, ErrInvalidTier):
		httpjson.BadRequest(w, "Invalid tier", "Please select a valid subscription tier")
	case errors.Is(err, ErrInvalidInput):
		httpjson.BadRequest(w, title, err.Error())
	case errors.Is(err, ErrClinicNotFound):
		httpjson.NotFound(w, "Clinic not found", "Clinic not found")
	case errors.Is(err, ErrNoSubscription):
		httpjson.BadRequest(w, "No active subscription", "No active subscription found")
	case errors.Is(err, ErrInvalidSignature):
		httpjson.BadRequest(w, "Webhook Error", err.Error())
	case errors.Is(err, ErrUpstream):
		httpjson.Error(w, http.StatusInternalServerError, httpjson.CategoryUpstream, title,
			strings.TrimPrefix(err.Error(), ErrUpstream.Error()+": "))
	default:
		httpjson.Internal(w, r, title, err)
	}
}
