package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Options controla cómo se construye el logger en el arranque.
type Options struct {
	// Level: trace, debug, info, warn, error. Vacío o desconocido => info.
	Level string
	// Pretty usa ConsoleWriter (dev). En producción dejarlo en false para JSON puro.
	Pretty bool
	// Output por defecto os.Stdout.
	Output io.Writer
	// App se agrega como campo fijo "app" si viene.
	App string
}

// New construye un zerolog.Logger. No hay singleton: main lo crea y lo inyecta.
func New(opts Options) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	if opts.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	ctx := zerolog.New(out).
		Level(ParseLevel(opts.Level)).
		With().
		Timestamp()

	if app := strings.TrimSpace(opts.App); app != "" {
		ctx = ctx.Str("app", app)
	}

	return ctx.Logger()
}

// Nop devuelve un logger que descarta todo (tests).
func Nop() zerolog.Logger {
	return zerolog.Nop()
}

func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
