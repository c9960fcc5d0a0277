// Package smtpmail manda los emails transaccionales (bienvenida, confirmación y
// recordatorio de cita) por SMTP.
package smtpmail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"github.com/wneessen/go-mail"

	"petsched/internal/domain/appointments"
	"petsched/internal/domain/users"
	"petsched/internal/platform/breaker"
	"petsched/internal/platform/metrics"
)

const (
	templateWelcome      = "welcome"
	templateConfirmation = "appointment_confirmation"
	templateReminder     = "appointment_reminder"
)

var ErrNoRecipient = errors.New("email recipient is required")

type Config struct {
	Host        string
	Port        int
	User        string
	Pass        string
	From        string
	FrontendURL string
}

// sender es la parte de *mail.Client que usamos; los tests la reemplazan.
type sender interface {
	DialAndSendWithContext(ctx context.Context, msgs ...*mail.Msg) error
}

type Mailer struct {
	cfg    Config
	sender sender
	cb     *gobreaker.CircuitBreaker
	log    zerolog.Logger
}

var (
	_ users.WelcomeNotifier  = (*Mailer)(nil)
	_ appointments.Notifier = (*Mailer)(nil)
)

// New arma el mailer. Sin usuario SMTP queda deshabilitado: los envíos se loguean
// y devuelven nil.
func New(cfg Config, log zerolog.Logger) (*Mailer, error) {
	m := &Mailer{
		cfg: cfg,
		log: log,
		cb: breaker.New(breaker.Settings{
			Name:    "smtp",
			Timeout: time.Minute,
		}, log),
	}
	if strings.TrimSpace(cfg.User) == "" {
		return m, nil
	}

	c, err := mail.NewClient(cfg.Host,
		mail.WithPort(cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(cfg.User),
		mail.WithPassword(cfg.Pass),
		mail.WithTLSPortPolicy(mail.TLSOpportunistic),
		mail.WithTimeout(15*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	m.sender = c
	return m, nil
}

func (m *Mailer) Enabled() bool {
	return m != nil && m.sender != nil
}

func (m *Mailer) Welcome(ctx context.Context, u users.User) error {
	return m.send(ctx, templateWelcome, u.Email, "🐾 Welcome to PetSched!", emailData{
		Banner: "Welcome to the Family!",
		Name:   u.Name,
		CTA:    "Get Started",
	})
}

func (m *Mailer) AppointmentBooked(ctx context.Context, a appointments.Appointment, to appointments.Recipient) error {
	data := appointmentData(a, to)
	data.Banner = "Appointment Confirmation"
	data.ShowNotes = true
	return m.send(ctx, templateConfirmation, to.Email, "🐾 Appointment Confirmed - "+data.PetName, data)
}

func (m *Mailer) AppointmentReminder(ctx context.Context, a appointments.Appointment, to appointments.Recipient) error {
	data := appointmentData(a, to)
	data.Banner = "Appointment Reminder"
	return m.send(ctx, templateReminder, to.Email, "🐾 Appointment Reminder - "+data.PetName, data)
}

func appointmentData(a appointments.Appointment, to appointments.Recipient) emailData {
	d := emailData{
		Name:        to.Name,
		CTA:         "View Appointment",
		Date:        a.Date,
		Time:        a.Time,
		ServiceType: a.ServiceType,
	}
	if a.Pet != nil {
		d.PetName = a.Pet.Name
		d.PetSpecies = a.Pet.Species
	}
	if a.Notes != nil {
		d.Notes = *a.Notes
	}
	return d
}

func (m *Mailer) send(ctx context.Context, tmpl, to, subject string, data emailData) error {
	to = strings.TrimSpace(to)
	if to == "" {
		return ErrNoRecipient
	}
	if !m.Enabled() {
		m.log.Debug().Str("template", tmpl).Str("to", to).Msg("smtp disabled, email skipped")
		return nil
	}

	msg, err := m.build(tmpl, to, subject, data)
	if err != nil {
		metrics.EmailsSentTotal.WithLabelValues(tmpl, "error").Inc()
		return err
	}

	_, err = m.cb.Execute(func() (interface{}, error) {
		return nil, m.sender.DialAndSendWithContext(ctx, msg)
	})
	metrics.EmailsSentTotal.WithLabelValues(tmpl, metrics.Result(err)).Inc()
	if err != nil {
		return fmt.Errorf("send %s email: %w", tmpl, err)
	}

	m.log.Info().Str("template", tmpl).Str("to", to).Msg("email sent")
	return nil
}

func (m *Mailer) build(tmpl, to, subject string, data emailData) (*mail.Msg, error) {
	t, ok := templates[tmpl]
	if !ok {
		return nil, fmt.Errorf("unknown email template %q", tmpl)
	}
	data.FrontendURL = m.cfg.FrontendURL
	if data.FrontendURL == "" {
		data.FrontendURL = "http://localhost:3000"
	}

	var body bytes.Buffer
	if err := t.ExecuteTemplate(&body, "layout", data); err != nil {
		return nil, fmt.Errorf("render %s: %w", tmpl, err)
	}

	from := m.cfg.From
	if from == "" {
		from = m.cfg.User
	}

	msg := mail.NewMsg()
	if err := msg.From(from); err != nil {
		return nil, fmt.Errorf("from %q: %w", from, err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("to %q: %w", to, err)
	}
	msg.Subject(subject)
	msg.SetMessageIDWithValue(uuid.NewString() + "@petsched")
	msg.SetDate()
	msg.SetBodyString(mail.TypeTextHTML, body.String())
	return msg, nil
}
