// Package reminders manda cada día el recordatorio de las citas de mañana.
package reminders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"petsched/internal/domain/appointments"
	"petsched/internal/domain/users"
)

const DefaultSchedule = "0 8 * * *"

type AppointmentSource interface {
	OnDate(ctx context.Context, day time.Time) ([]appointments.Appointment, error)
}

// UserLookup resuelve el email de quien creó la cita.
type UserLookup interface {
	Profile(ctx context.Context, userID string) (users.User, error)
}

type Sender interface {
	AppointmentReminder(ctx context.Context, a appointments.Appointment, to appointments.Recipient) error
}

// Result resume una corrida.
type Result struct {
	Day     string
	Found   int
	Sent    int
	Skipped int
	Failed  int
}

type Job struct {
	appts  AppointmentSource
	users  UserLookup
	sender Sender
	log    zerolog.Logger
	now    func() time.Time

	schedule string
	cron     *cron.Cron
}

func New(schedule string, appts AppointmentSource, users UserLookup, sender Sender, log zerolog.Logger) *Job {
	if strings.TrimSpace(schedule) == "" {
		schedule = DefaultSchedule
	}
	cl := cronLogger{log: log}
	return &Job{
		appts:    appts,
		users:    users,
		sender:   sender,
		log:      log,
		now:      time.Now,
		schedule: schedule,
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
	}
}

// Start registra la corrida diaria y arranca el scheduler en su propia goroutine.
func (j *Job) Start() error {
	if _, err := j.cron.AddFunc(j.schedule, func() {
		if _, err := j.Run(context.Background()); err != nil {
			j.log.Error().Err(err).Msg("appointment reminders run failed")
		}
	}); err != nil {
		return fmt.Errorf("schedule reminders %q: %w", j.schedule, err)
	}
	j.cron.Start()
	j.log.Info().Str("schedule", j.schedule).Msg("appointment reminders scheduled")
	return nil
}

// Stop frena el scheduler y espera a que termine la corrida en curso (o a ctx).
func (j *Job) Stop(ctx context.Context) {
	done := j.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// Run manda los recordatorios de las citas no canceladas de mañana. Las citas sin
// usuario o cuyo usuario no tiene email se saltean; un envío fallido no corta la corrida.
func (j *Job) Run(ctx context.Context) (Result, error) {
	tomorrow := j.now().AddDate(0, 0, 1)
	res := Result{Day: tomorrow.Format(appointments.DateLayout)}

	list, err := j.appts.OnDate(ctx, tomorrow)
	if err != nil {
		return res, fmt.Errorf("list appointments for %s: %w", res.Day, err)
	}
	res.Found = len(list)

	for _, a := range list {
		to, ok, err := j.recipient(ctx, a)
		if err != nil {
			res.Failed++
			j.log.Warn().Err(err).Str("appointment_id", a.ID).Msg("reminder recipient lookup failed")
			continue
		}
		if !ok {
			res.Skipped++
			continue
		}
		if err := j.sender.AppointmentReminder(ctx, a, to); err != nil {
			res.Failed++
			j.log.Warn().Err(err).Str("appointment_id", a.ID).Msg("reminder email failed")
			continue
		}
		res.Sent++
	}

	j.log.Info().
		Str("day", res.Day).
		Int("found", res.Found).
		Int("sent", res.Sent).
		Int("skipped", res.Skipped).
		Int("failed", res.Failed).
		Msg("appointment reminders done")
	return res, nil
}

func (j *Job) recipient(ctx context.Context, a appointments.Appointment) (appointments.Recipient, bool, error) {
	if strings.TrimSpace(a.UserID) == "" {
		return appointments.Recipient{}, false, nil
	}
	u, err := j.users.Profile(ctx, a.UserID)
	if errors.Is(err, users.ErrNotFound) {
		return appointments.Recipient{}, false, nil
	}
	if err != nil {
		return appointments.Recipient{}, false, err
	}
	if strings.TrimSpace(u.Email) == "" {
		return appointments.Recipient{}, false, nil
	}
	return appointments.Recipient{Name: u.Name, Email: u.Email}, true, nil
}

// cronLogger adapta zerolog a cron.Logger.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
