package router_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"petsched/internal/adapters/auth/jwtauth"
	"petsched/internal/adapters/files/disk"
	"petsched/internal/adapters/notify/smtpmail"
	"petsched/internal/adapters/payments/stripeproc"
	"petsched/internal/adapters/storage/sqlstore"
	"petsched/internal/domain/uploads"
	"petsched/internal/domain/users"
	"petsched/internal/router"
)

type testServer struct {
	url    string
	tokens *jwtauth.Manager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dbOpts := sqlstore.Options{Backend: sqlstore.BackendSQLite, DSN: "file:router_" + name + "?mode=memory&cache=shared"}
	db, err := sqlstore.Open(ctx, dbOpts)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := sqlstore.Migrate(dbOpts, zerolog.Nop()); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	files, err := disk.New(t.TempDir(), "/api/uploads", 5<<20)
	if err != nil {
		t.Fatalf("disk store: %v", err)
	}
	mailer, err := smtpmail.New(smtpmail.Config{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("mailer: %v", err)
	}
	tokens := jwtauth.NewManager(jwtauth.Config{Secret: "test-secret", AccessTTL: time.Hour, RefreshTTL: 24 * time.Hour})

	svcs := router.NewServices(router.Deps{
		DB:        db,
		Tokens:    tokens,
		Processor: stripeproc.New(stripeproc.Config{}, zerolog.Nop()),
		Mailer:    mailer,
		Files:     files,
	})

	ts := httptest.NewServer(router.NewRouter(router.Options{
		Logger:       zerolog.Nop(),
		Env:          "test",
		CORSOrigins:  []string{"http://localhost:3000"},
		BodyLimit:    1 << 20,
		AuthVerifier: tokens,
		Services:     svcs,
		Files:        files,
		Uploads:      uploads.Options{URLPrefix: "/api/uploads", MaxFiles: 5, MaxBytes: 5 << 20},
		Checks:       []router.Check{{Name: "database", Ping: db.Ping}},
	}))
	t.Cleanup(ts.Close)

	return &testServer{url: ts.URL, tokens: tokens}
}

func (s *testServer) token(t *testing.T, u users.User) string {
	t.Helper()
	tok, err := s.tokens.IssueAccess(u)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return tok
}

func doReq(t *testing.T, baseURL, method, path, token string, body any) (int, []byte) {
	t.Helper()

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, baseURL+path, rdr)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()

	b, _ := io.ReadAll(res.Body)
	return res.StatusCode, b
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Count   *int            `json:"count"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
}

func decodeEnvelope(t *testing.T, b []byte) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		t.Fatalf("decode envelope: %v body=%s", err, string(b))
	}
	return env
}

func createdID(t *testing.T, b []byte) string {
	t.Helper()
	var data struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(decodeEnvelope(t, b).Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data.ID == "" {
		t.Fatalf("missing id in body=%s", string(b))
	}
	return data.ID
}

func TestHTTP_Health(t *testing.T) {
	s := newTestServer(t)

	st, body := doReq(t, s.url, http.MethodGet, "/api/health", "", nil)
	if st != http.StatusOK {
		t.Fatalf("expected 200, got %d", st)
	}
	var h struct {
		Status  string `json:"status"`
		Version string `json:"version"`
	}
	_ = json.Unmarshal(body, &h)
	if h.Status != "OK" || h.Version != router.Version {
		t.Fatalf("unexpected health body=%s", string(body))
	}

	st, body = doReq(t, s.url, http.MethodGet, "/api/health/ready", "", nil)
	if st != http.StatusOK {
		t.Fatalf("expected ready 200, got %d body=%s", st, string(body))
	}
}

func TestHTTP_NotFoundRoute(t *testing.T) {
	s := newTestServer(t)

	st, body := doReq(t, s.url, http.MethodGet, "/api/nope", "", nil)
	if st != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", st)
	}
	if env := decodeEnvelope(t, body); env.Error != "Route not found" {
		t.Fatalf("unexpected body=%s", string(body))
	}
}

func TestHTTP_EndToEnd_SchedulingConflicts(t *testing.T) {
	s := newTestServer(t)
	tok := s.token(t, users.User{ID: "user-1", Email: "vet@example.com", Role: "vet"})
	day := time.Now().AddDate(0, 0, 2).Format("2006-01-02")

	// 1) Crear mascota
	st, body := doReq(t, s.url, http.MethodPost, "/api/pets", tok, map[string]any{
		"name":       "Rex",
		"species":    "Dog",
		"owner_name": "Ann",
	})
	if st != http.StatusCreated {
		t.Fatalf("expected 201 create pet, got %d body=%s", st, string(body))
	}
	petID := createdID(t, body)

	// 2) Faltan campos requeridos
	{
		st, body := doReq(t, s.url, http.MethodPost, "/api/pets", tok, map[string]any{"name": "Solo"})
		if st != http.StatusBadRequest {
			t.Fatalf("expected 400 missing fields, got %d body=%s", st, string(body))
		}
	}

	appt := map[string]any{
		"pet_id":           petID,
		"service_type":     "Checkup",
		"appointment_date": day,
		"appointment_time": "10:00",
	}

	// 3) Primera cita
	st, body = doReq(t, s.url, http.MethodPost, "/api/appointments", tok, appt)
	if st != http.StatusCreated {
		t.Fatalf("expected 201 create appointment, got %d body=%s", st, string(body))
	}
	apptID := createdID(t, body)

	// 4) Mismo slot => 409
	{
		st, body := doReq(t, s.url, http.MethodPost, "/api/appointments", tok, appt)
		if st != http.StatusConflict {
			t.Fatalf("expected 409 same slot, got %d body=%s", st, string(body))
		}
		if env := decodeEnvelope(t, body); env.Code != "Conflict" {
			t.Fatalf("expected Conflict code, body=%s", string(body))
		}
	}

	// 5) Mascota inexistente => 404
	{
		other := map[string]any{"pet_id": "missing", "service_type": "Checkup", "appointment_date": day, "appointment_time": "11:00"}
		st, _ := doReq(t, s.url, http.MethodPost, "/api/appointments", tok, other)
		if st != http.StatusNotFound {
			t.Fatalf("expected 404 unknown pet, got %d", st)
		}
	}

	// 6) Con citas, la mascota no se puede borrar
	{
		st, body := doReq(t, s.url, http.MethodDelete, "/api/pets/"+petID, tok, nil)
		if st != http.StatusBadRequest {
			t.Fatalf("expected 400 delete referenced pet, got %d body=%s", st, string(body))
		}
	}

	// 7) Cancelar libera el slot
	st, body = doReq(t, s.url, http.MethodPut, "/api/appointments/"+apptID, tok, map[string]any{"status": "cancelled"})
	if st != http.StatusOK {
		t.Fatalf("expected 200 cancel, got %d body=%s", st, string(body))
	}
	st, body = doReq(t, s.url, http.MethodPost, "/api/appointments", tok, appt)
	if st != http.StatusCreated {
		t.Fatalf("expected 201 after cancel, got %d body=%s", st, string(body))
	}
	secondID := createdID(t, body)

	// 8) Reactivar la cancelada choca con la nueva
	{
		st, body := doReq(t, s.url, http.MethodPut, "/api/appointments/"+apptID, tok, map[string]any{"status": "scheduled"})
		if st != http.StatusConflict {
			t.Fatalf("expected 409 reactivating, got %d body=%s", st, string(body))
		}
	}

	// 9) Listado por mascota y dashboard
	{
		st, body := doReq(t, s.url, http.MethodGet, "/api/appointments/pet/"+petID, "", nil)
		if st != http.StatusOK {
			t.Fatalf("expected 200 list by pet, got %d", st)
		}
		if env := decodeEnvelope(t, body); env.Count == nil || *env.Count != 2 {
			t.Fatalf("expected 2 appointments, body=%s", string(body))
		}

		st, body = doReq(t, s.url, http.MethodGet, "/api/dashboard/stats", "", nil)
		if st != http.StatusOK {
			t.Fatalf("expected 200 stats, got %d", st)
		}
		var stats struct {
			TotalPets            int `json:"total_pets"`
			TotalAppointments    int `json:"total_appointments"`
			UpcomingAppointments int `json:"upcoming_appointments"`
		}
		_ = json.Unmarshal(decodeEnvelope(t, body).Data, &stats)
		if stats.TotalPets != 1 || stats.TotalAppointments != 2 || stats.UpcomingAppointments != 1 {
			t.Fatalf("unexpected stats %+v", stats)
		}
	}

	// 10) Sin citas, la mascota se borra y deja de existir
	{
		for _, id := range []string{apptID, secondID} {
			st, body := doReq(t, s.url, http.MethodDelete, "/api/appointments/"+id, tok, nil)
			if st != http.StatusOK {
				t.Fatalf("expected 200 delete appointment %s, got %d body=%s", id, st, string(body))
			}
		}

		st, body := doReq(t, s.url, http.MethodDelete, "/api/pets/"+petID, tok, nil)
		if st != http.StatusOK {
			t.Fatalf("expected 200 delete pet, got %d body=%s", st, string(body))
		}

		st, body = doReq(t, s.url, http.MethodGet, "/api/pets/"+petID, "", nil)
		if st != http.StatusNotFound {
			t.Fatalf("expected 404 after delete, got %d body=%s", st, string(body))
		}
		if env := decodeEnvelope(t, body); env.Code != "NotFound" {
			t.Fatalf("expected NotFound code, body=%s", string(body))
		}
	}
}

func TestHTTP_AuthFlow(t *testing.T) {
	s := newTestServer(t)

	reg := map[string]any{"email": "Ann@Example.com", "password": "secret1", "name": "Ann"}
	st, body := doReq(t, s.url, http.MethodPost, "/api/auth/register", "", reg)
	if st != http.StatusCreated {
		t.Fatalf("expected 201 register, got %d body=%s", st, string(body))
	}

	// Email duplicado
	{
		st, _ := doReq(t, s.url, http.MethodPost, "/api/auth/register", "", reg)
		if st != http.StatusBadRequest {
			t.Fatalf("expected 400 duplicate email, got %d", st)
		}
	}

	// Password por encima del límite de bcrypt
	{
		long := map[string]any{"email": "long@example.com", "password": strings.Repeat("p", 80), "name": "Long"}
		st, body := doReq(t, s.url, http.MethodPost, "/api/auth/register", "", long)
		if st != http.StatusBadRequest {
			t.Fatalf("expected 400 long password, got %d body=%s", st, string(body))
		}
	}

	// Password incorrecto
	{
		st, _ := doReq(t, s.url, http.MethodPost, "/api/auth/login", "", map[string]any{"email": "ann@example.com", "password": "wrong1"})
		if st != http.StatusUnauthorized {
			t.Fatalf("expected 401 bad password, got %d", st)
		}
	}

	st, body = doReq(t, s.url, http.MethodPost, "/api/auth/login", "", map[string]any{"email": "ann@example.com", "password": "secret1"})
	if st != http.StatusOK {
		t.Fatalf("expected 200 login, got %d body=%s", st, string(body))
	}
	var sess struct {
		Token        string `json:"token"`
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.Unmarshal(decodeEnvelope(t, body).Data, &sess); err != nil || sess.Token == "" || sess.RefreshToken == "" {
		t.Fatalf("missing tokens body=%s", string(body))
	}

	if st, body := doReq(t, s.url, http.MethodGet, "/api/auth/profile", sess.Token, nil); st != http.StatusOK {
		t.Fatalf("expected 200 profile, got %d body=%s", st, string(body))
	}
	if st, _ := doReq(t, s.url, http.MethodGet, "/api/auth/profile", "", nil); st != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", st)
	}
	if st, _ := doReq(t, s.url, http.MethodGet, "/api/auth/profile", "not-a-jwt", nil); st != http.StatusForbidden {
		t.Fatalf("expected 403 invalid token, got %d", st)
	}

	// Refresh rota; el refresh viejo deja de servir.
	st, body = doReq(t, s.url, http.MethodPost, "/api/auth/refresh", "", map[string]any{"refreshToken": sess.RefreshToken})
	if st != http.StatusOK {
		t.Fatalf("expected 200 refresh, got %d body=%s", st, string(body))
	}

	if st, _ := doReq(t, s.url, http.MethodPost, "/api/auth/logout", sess.Token, nil); st != http.StatusOK {
		t.Fatalf("expected 200 logout, got %d", st)
	}
	if st, _ := doReq(t, s.url, http.MethodPost, "/api/auth/refresh", "", map[string]any{"refreshToken": sess.RefreshToken}); st != http.StatusUnauthorized {
		t.Fatalf("expected 401 refresh after logout, got %d", st)
	}
}

func TestHTTP_BillingGuards(t *testing.T) {
	s := newTestServer(t)

	if st, _ := doReq(t, s.url, http.MethodGet, "/api/billing/pricing", "", nil); st != http.StatusOK {
		t.Fatalf("expected 200 pricing, got %d", st)
	}
	if st, _ := doReq(t, s.url, http.MethodGet, "/api/billing/subscription", "", nil); st != http.StatusUnauthorized {
		t.Fatalf("expected 401 subscription without token, got %d", st)
	}

	vet := s.token(t, users.User{ID: "u-vet", Email: "vet@example.com", Role: "vet", ClinicID: "c-1"})
	st, _ := doReq(t, s.url, http.MethodPost, "/api/billing/create-subscription", vet, map[string]any{"tier": "basic", "paymentMethodId": "pm_1"})
	if st != http.StatusForbidden {
		t.Fatalf("expected 403 non-admin, got %d", st)
	}

	// Firma inválida corta antes de tocar la base.
	if st, _ := doReq(t, s.url, http.MethodPost, "/api/billing/webhook", "", map[string]any{"id": "evt_1"}); st != http.StatusBadRequest {
		t.Fatalf("expected 400 webhook without signature, got %d", st)
	}
}

func TestHTTP_PaymentsCalculateCost(t *testing.T) {
	s := newTestServer(t)

	st, body := doReq(t, s.url, http.MethodPost, "/api/payments/calculate-cost", "", map[string]any{"serviceType": "surgery", "duration": 30})
	if st != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", st, string(body))
	}
	var q struct {
		Cost int `json:"cost"`
	}
	_ = json.Unmarshal(decodeEnvelope(t, body).Data, &q)
	if q.Cost != 150 {
		t.Fatalf("expected cost 150, got %d body=%s", q.Cost, string(body))
	}
}
