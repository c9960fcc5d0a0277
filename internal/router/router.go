package router

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	httpSwagger "github.com/swaggo/http-swagger"

	"petsched/internal/adapters/auth/jwtauth"
	"petsched/internal/adapters/capabilities/tierlimits"
	"petsched/internal/adapters/files/disk"
	"petsched/internal/adapters/notify/smtpmail"
	"petsched/internal/adapters/payments/stripeproc"
	"petsched/internal/adapters/storage/sqlstore"
	"petsched/internal/config"
	"petsched/internal/domain/appointments"
	"petsched/internal/domain/billing"
	"petsched/internal/domain/dashboard"
	"petsched/internal/domain/payments"
	"petsched/internal/domain/pets"
	"petsched/internal/domain/uploads"
	"petsched/internal/domain/users"
	"petsched/internal/middleware"
	"petsched/internal/platform/httpjson"
	"petsched/internal/ports/auth"

	_ "petsched/docs"
)

const Version = "1.0.0"

// Deps son los adaptadores que arma main. DB, Tokens y Processor son obligatorios.
type Deps struct {
	DB        *sqlstore.DB
	Tokens    *jwtauth.Manager
	Processor *stripeproc.Client
	Mailer    *smtpmail.Mailer
	Files     *disk.Store

	// Dedup opcional (Redis). Si es nil se usa la tabla processed_webhook_events.
	Dedup    billing.EventDeduper
	PriceIDs map[billing.Tier]string

	AllowAllCapabilities bool
}

type Services struct {
	Users        *users.Service
	Pets         *pets.Service
	Appointments *appointments.Service
	Billing      *billing.Service
	Payments     *payments.Service
	Dashboard    *dashboard.Service
}

// NewServices arma repos y servicios sobre la misma DB.
func NewServices(d Deps) Services {
	petRepo := sqlstore.NewPetsRepo(d.DB)
	apptRepo := sqlstore.NewAppointmentsRepo(d.DB)
	userRepo := sqlstore.NewUsersRepo(d.DB)
	clinicRepo := sqlstore.NewClinicsRepo(d.DB)

	dedup := d.Dedup
	if dedup == nil {
		dedup = sqlstore.NewWebhookEventsRepo(d.DB)
	}

	caps := tierlimits.NewResolver(clinicRepo, d.AllowAllCapabilities)

	var (
		welcome users.WelcomeNotifier
		booked  appointments.Notifier
	)
	if d.Mailer != nil {
		welcome = d.Mailer
		booked = d.Mailer
	}

	var photos uploads.Store
	if d.Files != nil {
		photos = d.Files
	}

	petsSvc := pets.NewService(petRepo, photos, caps)
	apptSvc := appointments.NewService(apptRepo, petsSvc, caps, booked)

	return Services{
		Users:        users.NewService(userRepo, d.Tokens, welcome, caps),
		Pets:         petsSvc,
		Appointments: apptSvc,
		Billing:      billing.NewService(clinicRepo, d.Processor, dedup, d.PriceIDs),
		Payments:     payments.NewService(d.Processor),
		Dashboard:    dashboard.NewService(petsSvc, apptSvc),
	}
}

// Check es una dependencia que /api/health/ready tiene que poder pingear.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

type Options struct {
	Logger      zerolog.Logger
	Env         string
	CORSOrigins []string
	BodyLimit   int64

	// RateLimiter puede ser nil (tests).
	RateLimiter  *middleware.RateLimiter
	AuthVerifier auth.AuthVerifier

	Services Services
	Files    uploads.Store
	Uploads  uploads.Options

	Checks []Check
}

func NewRouter(opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogging(opts.Logger))
	r.Use(middleware.Recover)
	r.Use(middleware.Metrics)
	r.Use(middleware.SecurityHeaders(opts.Env != config.EnvProduction))
	r.Use(middleware.CORS(opts.CORSOrigins))
	if opts.RateLimiter != nil {
		r.Use(opts.RateLimiter.Handler)
	}
	r.Use(middleware.AuthContext(opts.AuthVerifier))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httpjson.Write(w, http.StatusNotFound, httpjson.ErrorBody{Error: "Route not found", Code: httpjson.CategoryNotFound})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httpjson.Write(w, http.StatusMethodNotAllowed, httpjson.ErrorBody{Error: "Method not allowed", Code: httpjson.CategoryValidation})
	})

	r.Get("/api/health", healthHandler(opts.Env))
	r.Get("/api/health/ready", readyHandler(opts.Checks))
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))

	// Uploads múltiples pueden superar BodyLimit; FormFiles aplica su propio tope.
	if opts.Files != nil {
		uploads.RegisterRoutes(r, opts.Files, opts.Uploads)
	}

	svcs := opts.Services
	r.Group(func(api chi.Router) {
		if opts.BodyLimit > 0 {
			api.Use(chimw.RequestSize(opts.BodyLimit))
		}
		users.RegisterRoutes(api, svcs.Users)
		pets.RegisterRoutes(api, svcs.Pets, pets.PhotoOptions{MaxBytes: opts.Uploads.MaxBytes})
		appointments.RegisterRoutes(api, svcs.Appointments)
		billing.RegisterRoutes(api, svcs.Billing)
		payments.RegisterRoutes(api, svcs.Payments)
		dashboard.RegisterRoutes(api, svcs.Dashboard)
	})

	return r
}

type healthResponse struct {
	Status      string    `json:"status"`
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	Environment string    `json:"environment"`
	Version     string    `json:"version"`
}

// healthHandler godoc
// @Summary Liveness
// @Tags health
// @Produce json
// @Success 200 {object} healthResponse
// @Router /health [get]
func healthHandler(env string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		httpjson.Write(w, http.StatusOK, healthResponse{
			Status:      "OK",
			Message:     "PetSched API is running",
			Timestamp:   time.Now().UTC(),
			Environment: env,
			Version:     Version,
		})
	}
}

func readyHandler(checks []Check) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for _, c := range checks {
			if err := c.Ping(ctx); err != nil {
				status = http.StatusServiceUnavailable
				results[c.Name] = err.Error()
				continue
			}
			results[c.Name] = "ok"
		}

		ready := "ready"
		if status != http.StatusOK {
			ready = "not ready"
		}
		httpjson.Write(w, status, map[string]any{"status": ready, "checks": results})
	}
}
