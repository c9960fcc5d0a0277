package appointments

import (
	"context"
	"errors"
	"testing"
	"time"

	"petsched/internal/ports/capabilities"
)

// -------------------------
// Test repo (in-memory)
// -------------------------

type testRepo struct {
	byID       map[string]Appointment
	checkSlots []bool
}

func newTestRepo() *testRepo {
	return &testRepo{byID: map[string]Appointment{}}
}

func (r *testRepo) taken(s Slot, excludeID string) bool {
	for _, a := range r.byID {
		if a.ID != excludeID && a.Status != StatusCancelled && a.Slot() == s {
			return true
		}
	}
	return false
}

func (r *testRepo) CreateIfFree(_ context.Context, a Appointment) error {
	if r.taken(a.Slot(), "") {
		return ErrConflict
	}
	r.byID[a.ID] = a
	return nil
}

func (r *testRepo) Update(_ context.Context, a Appointment, checkSlot bool) error {
	r.checkSlots = append(r.checkSlots, checkSlot)
	if _, ok := r.byID[a.ID]; !ok {
		return ErrNotFound
	}
	if checkSlot && a.Status != StatusCancelled && r.taken(a.Slot(), a.ID) {
		return ErrConflict
	}
	r.byID[a.ID] = a
	return nil
}

func (r *testRepo) Delete(_ context.Context, id string) error {
	if _, ok := r.byID[id]; !ok {
		return ErrNotFound
	}
	delete(r.byID, id)
	return nil
}

func (r *testRepo) GetByID(_ context.Context, id string) (Appointment, error) {
	a, ok := r.byID[id]
	if !ok {
		return Appointment{}, ErrNotFound
	}
	return a, nil
}

func (r *testRepo) List(context.Context) ([]Appointment, error) {
	out := make([]Appointment, 0, len(r.byID))
	for _, a := range r.byID {
		out = append(out, a)
	}
	return out, nil
}

func (r *testRepo) ListByPet(_ context.Context, petID string) ([]Appointment, error) {
	out := make([]Appointment, 0)
	for _, a := range r.byID {
		if a.PetID == petID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *testRepo) ListActiveBetween(_ context.Context, from, to string) ([]Appointment, error) {
	out := make([]Appointment, 0)
	for _, a := range r.byID {
		if a.Status != StatusCancelled && a.Date >= from && a.Date <= to {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *testRepo) Count(context.Context) (int, error) { return len(r.byID), nil }

type testPets map[string]bool

func (p testPets) Exists(_ context.Context, id string) (bool, error) { return p[id], nil }

type testCaps struct{ allow bool }

func (c testCaps) HasCapacity(context.Context, capabilities.CapacityCheck) (bool, error) {
	return c.allow, nil
}

type testNotifier struct {
	sent []Recipient
	err  error
}

func (n *testNotifier) AppointmentBooked(_ context.Context, _ Appointment, to Recipient) error {
	n.sent = append(n.sent, to)
	return n.err
}

func newTestService(repo *testRepo, n Notifier) *Service {
	svc := NewService(repo, testPets{"pet-1": true, "pet-2": true}, nil, n)
	svc.now = func() time.Time { return time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC) }
	return svc
}

func checkup(petID, date, hhmm string) CreateInput {
	return CreateInput{PetID: petID, ServiceType: "Checkup", Date: date, Time: hhmm}
}

// -------------------------
// Tests
// -------------------------

func TestCreate_DefaultsAndConflict(t *testing.T) {
	svc := newTestService(newTestRepo(), nil)
	ctx := context.Background()

	a, err := svc.Create(ctx, checkup("pet-1", "2025-03-10", "10:00"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if a.ID == "" || a.DurationMinutes != DefaultDurationMinutes || a.Status != StatusScheduled {
		t.Fatalf("unexpected defaults: %+v", a)
	}

	if _, err := svc.Create(ctx, checkup("pet-1", "2025-03-10", "10:00")); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	// Otra mascota u otro horario no chocan.
	if _, err := svc.Create(ctx, checkup("pet-2", "2025-03-10", "10:00")); err != nil {
		t.Fatalf("other pet: %v", err)
	}
	if _, err := svc.Create(ctx, checkup("pet-1", "2025-03-10", "10:30")); err != nil {
		t.Fatalf("other time: %v", err)
	}
}

func TestCreate_Validation(t *testing.T) {
	svc := newTestService(newTestRepo(), nil)
	ctx := context.Background()
	zero := 0
	bogus := Status("pending")

	cases := []struct {
		name string
		in   CreateInput
		want error
	}{
		{"missing fields", CreateInput{PetID: "pet-1"}, ErrInvalidInput},
		{"bad date", checkup("pet-1", "10/03/2025", "10:00"), ErrInvalidInput},
		{"bad time", checkup("pet-1", "2025-03-10", "10am"), ErrInvalidInput},
		{"zero duration", CreateInput{PetID: "pet-1", ServiceType: "x", Date: "2025-03-10", Time: "10:00", DurationMinutes: &zero}, ErrInvalidInput},
		{"bad status", CreateInput{PetID: "pet-1", ServiceType: "x", Date: "2025-03-10", Time: "10:00", Status: &bogus}, ErrInvalidInput},
		{"unknown pet", checkup("pet-9", "2025-03-10", "10:00"), ErrPetNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Create(ctx, tc.in); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestCreate_TierLimit(t *testing.T) {
	svc := NewService(newTestRepo(), testPets{"pet-1": true}, testCaps{allow: false}, nil)

	in := checkup("pet-1", "2025-03-10", "10:00")
	in.ClinicID = "clinic-1"
	if _, err := svc.Create(context.Background(), in); !errors.Is(err, ErrLimitReached) {
		t.Fatalf("expected ErrLimitReached, got %v", err)
	}

	// Sin clínica no hay chequeo de tier.
	in.ClinicID = ""
	if _, err := svc.Create(context.Background(), in); err != nil {
		t.Fatalf("anonymous create: %v", err)
	}
}

func TestCreate_NotifyIsBestEffort(t *testing.T) {
	n := &testNotifier{err: errors.New("smtp down")}
	svc := newTestService(newTestRepo(), n)

	in := checkup("pet-1", "2025-03-10", "10:00")
	if _, err := svc.Create(context.Background(), in); err != nil {
		t.Fatalf("create without recipient: %v", err)
	}
	if len(n.sent) != 0 {
		t.Fatalf("no email expected without recipient")
	}

	in.Time = "11:00"
	in.NotifyTo = Recipient{Email: "ann@example.com"}
	if _, err := svc.Create(context.Background(), in); err != nil {
		t.Fatalf("notifier error must not fail create: %v", err)
	}
	if len(n.sent) != 1 {
		t.Fatalf("expected one confirmation, got %d", len(n.sent))
	}
}

func TestUpdate_SlotRecheck(t *testing.T) {
	repo := newTestRepo()
	svc := newTestService(repo, nil)
	ctx := context.Background()

	a, _ := svc.Create(ctx, checkup("pet-1", "2025-03-10", "10:00"))
	b, _ := svc.Create(ctx, checkup("pet-1", "2025-03-10", "11:00"))

	// Cambiar solo notas no re-chequea.
	notes := "bring records"
	if _, err := svc.Update(ctx, a.ID, UpdateInput{Notes: NotesPatch{Present: true, Value: &notes}}); err != nil {
		t.Fatalf("update notes: %v", err)
	}
	if repo.checkSlots[len(repo.checkSlots)-1] {
		t.Fatalf("notes-only update should not re-check the slot")
	}

	// Mover b al horario de a => conflicto.
	ten := "10:00"
	if _, err := svc.Update(ctx, b.ID, UpdateInput{Time: &ten}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict moving onto a taken slot, got %v", err)
	}

	// Cancelar a y después mover b sí funciona.
	cancelled := StatusCancelled
	if _, err := svc.Update(ctx, a.ID, UpdateInput{Status: &cancelled}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := svc.Update(ctx, b.ID, UpdateInput{Time: &ten}); err != nil {
		t.Fatalf("move after cancel: %v", err)
	}

	// Reactivar a choca con b.
	scheduled := StatusScheduled
	if _, err := svc.Update(ctx, a.ID, UpdateInput{Status: &scheduled}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict on reactivation, got %v", err)
	}
}

func TestUpdate_NotesPatch(t *testing.T) {
	svc := newTestService(newTestRepo(), nil)
	ctx := context.Background()

	orig := "first"
	in := checkup("pet-1", "2025-03-10", "10:00")
	in.Notes = &orig
	a, _ := svc.Create(ctx, in)

	// Notes no enviado => se conserva.
	completed := StatusCompleted
	got, err := svc.Update(ctx, a.ID, UpdateInput{Status: &completed})
	if err != nil || got.Notes == nil || *got.Notes != "first" {
		t.Fatalf("notes should be kept, got %+v err=%v", got.Notes, err)
	}

	// "" => queda vacía, no se conserva el valor anterior.
	blank := ""
	got, err = svc.Update(ctx, a.ID, UpdateInput{Notes: NotesPatch{Present: true, Value: &blank}})
	if err != nil || got.Notes == nil || *got.Notes != "" {
		t.Fatalf("notes should be emptied, got %+v err=%v", got.Notes, err)
	}

	// null => se borra.
	got, err = svc.Update(ctx, a.ID, UpdateInput{Notes: NotesPatch{Present: true}})
	if err != nil || got.Notes != nil {
		t.Fatalf("notes should be cleared, got %+v err=%v", got.Notes, err)
	}
}

func TestUpdate_EmptyFieldsKeepCurrent(t *testing.T) {
	repo := newTestRepo()
	svc := newTestService(repo, nil)
	ctx := context.Background()

	a, _ := svc.Create(ctx, checkup("pet-1", "2025-03-10", "10:00"))

	blank, spaces, zero, noStatus := "", "  ", 0, Status("")
	got, err := svc.Update(ctx, a.ID, UpdateInput{
		PetID:           &blank,
		ServiceType:     &spaces,
		Date:            &blank,
		Time:            &blank,
		DurationMinutes: &zero,
		Status:          &noStatus,
	})
	if err != nil {
		t.Fatalf("update with empty fields: %v", err)
	}
	if got.PetID != a.PetID || got.ServiceType != a.ServiceType || got.Date != a.Date ||
		got.Time != a.Time || got.DurationMinutes != a.DurationMinutes || got.Status != a.Status {
		t.Fatalf("empty fields should keep current values, before=%+v after=%+v", a, got)
	}
	if repo.checkSlots[len(repo.checkSlots)-1] {
		t.Fatalf("unchanged slot should not be re-checked")
	}

	// Negativo no es "vacío": se valida.
	neg := -15
	if _, err := svc.Update(ctx, a.ID, UpdateInput{DurationMinutes: &neg}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for negative duration, got %v", err)
	}
}

func TestUpdate_Errors(t *testing.T) {
	svc := newTestService(newTestRepo(), nil)
	ctx := context.Background()

	if _, err := svc.Update(ctx, "missing", UpdateInput{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	a, _ := svc.Create(ctx, checkup("pet-1", "2025-03-10", "10:00"))
	badDate := "10/03/2025"
	if _, err := svc.Update(ctx, a.ID, UpdateInput{Date: &badDate}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	ghost := "pet-9"
	if _, err := svc.Update(ctx, a.ID, UpdateInput{PetID: &ghost}); !errors.Is(err, ErrPetNotFound) {
		t.Fatalf("expected ErrPetNotFound, got %v", err)
	}
}

func TestUpcomingAndOnDate(t *testing.T) {
	svc := newTestService(newTestRepo(), nil)
	ctx := context.Background()

	_, _ = svc.Create(ctx, checkup("pet-1", "2025-03-01", "10:00"))
	_, _ = svc.Create(ctx, checkup("pet-1", "2025-03-08", "10:00"))
	_, _ = svc.Create(ctx, checkup("pet-1", "2025-03-09", "10:00"))
	c, _ := svc.Create(ctx, checkup("pet-2", "2025-03-02", "10:00"))
	cancelled := StatusCancelled
	_, _ = svc.Update(ctx, c.ID, UpdateInput{Status: &cancelled})

	up, err := svc.Upcoming(ctx, 0)
	if err != nil {
		t.Fatalf("upcoming: %v", err)
	}
	if len(up) != 2 {
		t.Fatalf("expected 2 upcoming (today..+7, not cancelled), got %d", len(up))
	}

	day, _ := svc.OnDate(ctx, time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC))
	if len(day) != 1 {
		t.Fatalf("expected 1 on 2025-03-09, got %d", len(day))
	}
}
