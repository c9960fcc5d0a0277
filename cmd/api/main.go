package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"petsched/internal/adapters/auth/jwtauth"
	"petsched/internal/adapters/files/disk"
	"petsched/internal/adapters/notify/smtpmail"
	"petsched/internal/adapters/payments/stripeproc"
	"petsched/internal/adapters/storage/redisstore"
	"petsched/internal/adapters/storage/sqlstore"
	"petsched/internal/config"
	"petsched/internal/domain/billing"
	"petsched/internal/domain/uploads"
	"petsched/internal/jobs/reminders"
	"petsched/internal/middleware"
	"petsched/internal/platform/httpjson"
	"petsched/internal/platform/logger"
	"petsched/internal/router"
)

// @title PetSched API
// @version 1.0.0
// @description Agenda multi-clínica para veterinarias: mascotas, citas, usuarios, billing y pagos.
// @BasePath /api
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		bootLog := logger.New(logger.Options{})
		bootLog.Fatal().Err(err).Msg("config")
	}

	log := logger.New(logger.Options{Level: cfg.LogLevel, Pretty: cfg.LogPretty, App: "petsched"})
	httpjson.ExposeInternalErrors(cfg.IsDevelopment())

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	dbOpts := sqlstore.Options{
		Backend:        sqlstore.BackendSQLite,
		DSN:            cfg.Database.SQLitePath,
		MaxOpenConns:   cfg.Database.MaxOpenConns,
		ConnectTimeout: cfg.Database.ConnectTimeout,
	}
	if !cfg.Database.UseSQLite {
		dbOpts.Backend = sqlstore.BackendPostgres
		dbOpts.DSN = cfg.Database.URL
	}

	db, err := sqlstore.Open(ctx, dbOpts)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := sqlstore.Migrate(dbOpts, log); err != nil {
		return err
	}
	log.Info().Str("backend", string(db.Backend())).Msg("database ready")

	checks := []router.Check{{Name: "database", Ping: db.Ping}}

	// Redis es opcional: sin REDIS_ADDR la deduplicación de webhooks usa la tabla SQL.
	var dedup billing.EventDeduper
	if cfg.Redis.Addr != "" {
		rdb, err := redisstore.Connect(ctx, redisstore.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return err
		}
		defer rdb.Close()
		dedup = redisstore.NewWebhookDedup(rdb, cfg.Redis.DedupTTL)
		checks = append(checks, router.Check{Name: "redis", Ping: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
		log.Info().Str("addr", cfg.Redis.Addr).Msg("redis webhook dedup enabled")
	}

	files, err := disk.New(cfg.Upload.Path, cfg.Upload.URLPrefix, cfg.Upload.MaxBytes)
	if err != nil {
		return err
	}

	mailer, err := smtpmail.New(smtpmail.Config{
		Host:        cfg.SMTP.Host,
		Port:        cfg.SMTP.Port,
		User:        cfg.SMTP.User,
		Pass:        cfg.SMTP.Pass,
		From:        cfg.SMTP.From,
		FrontendURL: cfg.FrontendURL,
	}, log.With().Str("component", "smtp").Logger())
	if err != nil {
		return err
	}
	if !mailer.Enabled() {
		log.Warn().Msg("SMTP_USER not set, emails disabled")
	}

	processor := stripeproc.New(stripeproc.Config{
		SecretKey:     cfg.Stripe.SecretKey,
		WebhookSecret: cfg.Stripe.WebhookSecret,
	}, log.With().Str("component", "stripe").Logger())
	if !processor.Configured() {
		log.Warn().Msg("STRIPE_SECRET_KEY not set, payment endpoints will fail")
	}

	tokens := jwtauth.NewManager(jwtauth.Config{
		Secret:     cfg.JWT.Secret,
		AccessTTL:  cfg.JWT.ExpiresIn,
		RefreshTTL: cfg.JWT.RefreshExpiresIn,
	})

	svcs := router.NewServices(router.Deps{
		DB:        db,
		Tokens:    tokens,
		Processor: processor,
		Mailer:    mailer,
		Files:     files,
		Dedup:     dedup,
		PriceIDs: map[billing.Tier]string{
			billing.TierBasic:        cfg.Stripe.PriceBasic,
			billing.TierProfessional: cfg.Stripe.PriceProfessional,
			billing.TierEnterprise:   cfg.Stripe.PriceEnterprise,
		},
		AllowAllCapabilities: cfg.AllowAllCapabilities,
	})

	limiter := middleware.NewRateLimiter(cfg.RateLimit.MaxRequests, cfg.RateLimit.Window)
	stopCleanup := make(chan struct{})
	defer close(stopCleanup)
	limiter.StartCleanup(cfg.RateLimit.Window, stopCleanup)

	var job *reminders.Job
	if cfg.Reminders.Enabled {
		job = reminders.New(cfg.Reminders.Cron, svcs.Appointments, svcs.Users, mailer,
			log.With().Str("component", "reminders").Logger())
		if err := job.Start(); err != nil {
			return err
		}
	}

	srv := &http.Server{
		Addr: cfg.Addr(),
		Handler: router.NewRouter(router.Options{
			Logger:       log,
			Env:          cfg.Env,
			CORSOrigins:  cfg.CORSOrigins,
			BodyLimit:    cfg.BodyLimit,
			RateLimiter:  limiter,
			AuthVerifier: tokens,
			Services:     svcs,
			Files:        files,
			Uploads: uploads.Options{
				URLPrefix: cfg.Upload.URLPrefix,
				MaxFiles:  cfg.Upload.MaxFiles,
				MaxBytes:  cfg.Upload.MaxBytes,
			},
			Checks: checks,
		}),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("env", cfg.Env).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if job != nil {
		job.Stop(shutdownCtx)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info().Msg("server stopped")
	return nil
}
