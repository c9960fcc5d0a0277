// Package httpjson concentra el sobre JSON de respuestas y el decode + validación de requests.
// Antes cada módulo tenía su writeJSON; con siete módulos ya convenía extraerlo.
package httpjson

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"sync/atomic"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// Category es la taxonomía de errores que viaja en el campo "code".
type Category string

const (
	CategoryValidation      Category = "Validation"
	CategoryUnauthenticated Category = "Unauthenticated"
	CategoryForbidden       Category = "Forbidden"
	CategoryNotFound        Category = "NotFound"
	CategoryConflict        Category = "Conflict"
	CategoryUpstream        Category = "Upstream"
	CategoryInternal        Category = "Internal"
)

var ErrMalformed = errors.New("malformed json body")

// Envelope de éxito: {success, data?, message?, count?}.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Count   *int   `json:"count,omitempty"`
}

// ErrorBody de error: {error, message, code}.
type ErrorBody struct {
	Error   string   `json:"error"`
	Message string   `json:"message,omitempty"`
	Code    Category `json:"code,omitempty"`
}

var exposeInternal atomic.Bool

// ExposeInternalErrors decide si los 500 muestran el detalle real (solo development).
func ExposeInternalErrors(v bool) {
	exposeInternal.Store(v)
}

func Write(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func OK(w http.ResponseWriter, status int, data any) {
	Write(w, status, Envelope{Success: true, Data: data})
}

func OKMessage(w http.ResponseWriter, status int, data any, message string) {
	Write(w, status, Envelope{Success: true, Data: data, Message: message})
}

// List agrega count al sobre, igual que los listados de pets/appointments.
func List[T any](w http.ResponseWriter, items []T) {
	if items == nil {
		items = []T{}
	}
	n := len(items)
	Write(w, http.StatusOK, Envelope{Success: true, Data: items, Count: &n})
}

func Error(w http.ResponseWriter, status int, code Category, title, message string) {
	Write(w, status, ErrorBody{Error: title, Message: message, Code: code})
}

func BadRequest(w http.ResponseWriter, title, message string) {
	Error(w, http.StatusBadRequest, CategoryValidation, title, message)
}

func NotFound(w http.ResponseWriter, title, message string) {
	Error(w, http.StatusNotFound, CategoryNotFound, title, message)
}

// Internal loguea el error con el logger del request y responde 500.
// Fuera de development el mensaje se reemplaza por uno genérico.
func Internal(w http.ResponseWriter, r *http.Request, title string, err error) {
	zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg(title)

	msg := "Internal server error"
	if exposeInternal.Load() && err != nil {
		msg = err.Error()
	}
	Error(w, http.StatusInternalServerError, CategoryInternal, title, msg)
}

// Decode lee el body JSON en dst. Body vacío se trata como objeto vacío.
func Decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Los mensajes usan el nombre JSON del campo, no el de Go.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate corre las reglas `validate:"..."` del struct.
func Validate(v any) error {
	return validate.Struct(v)
}

// DecodeAndValidate = Decode + Validate.
func DecodeAndValidate(r *http.Request, dst any) error {
	if err := Decode(r, dst); err != nil {
		return err
	}
	return Validate(dst)
}

// ValidationMessage aplana errores del validator a "campo: motivo; ...".
func ValidationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fe.Field()+": "+fieldError(fe))
	}
	return strings.Join(parts, "; ")
}

func fieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "max":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	case "gt", "gte":
		return "must be greater than " + fe.Param()
	case "datetime":
		return "must match format " + fe.Param()
	default:
		return "is invalid (" + fe.Tag() + ")"
	}
}

// HasRequiredFailure indica si alguno de los errores es por campo faltante.
func HasRequiredFailure(err error) bool {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return false
	}
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			return true
		}
	}
	return false
}
