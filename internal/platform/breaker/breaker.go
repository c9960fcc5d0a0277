package breaker

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"petsched/internal/platform/metrics"
)

// Settings para un upstream. IsSuccessful permite no contar errores de negocio
// (tarjeta rechazada, destinatario inválido) como fallas del upstream.
type Settings struct {
	Name         string
	Timeout      time.Duration
	IsSuccessful func(err error) bool
}

// New arma un circuit breaker que abre tras 3 fallas consecutivas.
func New(s Settings, log zerolog.Logger) *gobreaker.CircuitBreaker {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	metrics.UpstreamBreakerState.WithLabelValues(s.Name).Set(float64(gobreaker.StateClosed))

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		IsSuccessful: s.IsSuccessful,
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.UpstreamBreakerState.WithLabelValues(name).Set(float64(to))
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
		},
	})
}
