// Package httpclient arma los *http.Client que usan los adapters contra APIs externas.
package httpclient

import (
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"petsched/internal/platform/metrics"
)

const DefaultTimeout = 10 * time.Second

type Options struct {
	// Name etiqueta métricas y logs (p.ej. "stripe").
	Name    string
	Timeout time.Duration
	// Transport permite inyectar un RoundTripper (tests). nil => http.DefaultTransport.
	Transport http.RoundTripper
}

// New crea un client con timeout que registra latencia y status de cada request saliente.
func New(opts Options, log zerolog.Logger) *http.Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	next := opts.Transport
	if next == nil {
		next = http.DefaultTransport
	}
	return &http.Client{
		Timeout: opts.Timeout,
		Transport: &instrumented{
			name: opts.Name,
			next: next,
			log:  log,
		},
	}
}

type instrumented struct {
	name string
	next http.RoundTripper
	log  zerolog.Logger
}

func (t *instrumented) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.next.RoundTrip(req)
	elapsed := time.Since(start)

	status := "error"
	if resp != nil {
		status = strconv.Itoa(resp.StatusCode)
	}
	metrics.UpstreamRequestDuration.WithLabelValues(t.name, status).Observe(elapsed.Seconds())

	ev := t.log.Debug()
	if err != nil || (resp != nil && resp.StatusCode >= http.StatusInternalServerError) {
		ev = t.log.Warn().Err(err)
	}
	ev.Str("upstream", t.name).
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Str("status", status).
		Dur("duration", elapsed).
		Msg("upstream request")

	return resp, err
}
