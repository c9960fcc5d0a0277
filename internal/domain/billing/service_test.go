package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	clinics   map[string]Clinic
	usage     Usage
	statusErr error
}

func (r *fakeRepo) CreateClinic(_ context.Context, c Clinic) error {
	r.clinics[c.ID] = c
	return nil
}

func (r *fakeRepo) GetClinic(_ context.Context, id string) (Clinic, error) {
	c, ok := r.clinics[id]
	if !ok {
		return Clinic{}, ErrClinicNotFound
	}
	return c, nil
}

func (r *fakeRepo) SetCustomerID(_ context.Context, id, customerID string, _ time.Time) error {
	c := r.clinics[id]
	c.CustomerID = customerID
	r.clinics[id] = c
	return nil
}

func (r *fakeRepo) ActivateSubscription(_ context.Context, id string, tier Tier, subID string, _ time.Time) error {
	c := r.clinics[id]
	c.Tier, c.SubscriptionID, c.Status = tier, subID, StatusActive
	r.clinics[id] = c
	return nil
}

func (r *fakeRepo) SetStatus(_ context.Context, id string, st SubscriptionStatus, _ time.Time) error {
	c := r.clinics[id]
	c.Status = st
	r.clinics[id] = c
	return nil
}

func (r *fakeRepo) SetStatusBySubscription(_ context.Context, subID string, st SubscriptionStatus, _ time.Time) (int64, error) {
	if r.statusErr != nil {
		return 0, r.statusErr
	}
	var n int64
	for id, c := range r.clinics {
		if c.SubscriptionID == subID {
			c.Status = st
			r.clinics[id] = c
			n++
		}
	}
	return n, nil
}

func (r *fakeRepo) Usage(context.Context, string) (Usage, error) { return r.usage, nil }

type fakeGateway struct {
	customers int
	attached  []string
	priceID   string
	cancelled []string
	event     WebhookEvent
	parseErr  error
	err       error
}

func (g *fakeGateway) CreateCustomer(context.Context, Clinic) (string, error) {
	g.customers++
	return "cus_1", g.err
}

func (g *fakeGateway) AttachDefaultPaymentMethod(_ context.Context, _, pm string) error {
	g.attached = append(g.attached, pm)
	return g.err
}

func (g *fakeGateway) CreateSubscription(_ context.Context, _, priceID string) (string, error) {
	g.priceID = priceID
	return "sub_1", g.err
}

func (g *fakeGateway) CancelSubscriptionAtPeriodEnd(_ context.Context, subID string) error {
	g.cancelled = append(g.cancelled, subID)
	return g.err
}

func (g *fakeGateway) ParseWebhook([]byte, string) (WebhookEvent, error) {
	return g.event, g.parseErr
}

type memDedup struct {
	seen     map[string]bool
	released []string
}

func (d *memDedup) Claim(_ context.Context, id, _ string) (bool, error) {
	if d.seen[id] {
		return false, nil
	}
	d.seen[id] = true
	return true, nil
}

func (d *memDedup) Release(_ context.Context, id string) error {
	delete(d.seen, id)
	d.released = append(d.released, id)
	return nil
}

func newTestService() (*Service, *fakeRepo, *fakeGateway, *memDedup) {
	repo := &fakeRepo{clinics: map[string]Clinic{
		"c1": {ID: "c1", Name: "Happy Paws", Tier: TierBasic, Status: StatusActive},
	}}
	gw := &fakeGateway{}
	dd := &memDedup{seen: map[string]bool{}}
	svc := NewService(repo, gw, dd, map[Tier]string{TierProfessional: "price_pro_live"})
	return svc, repo, gw, dd
}

func TestPricing(t *testing.T) {
	svc, _, _, _ := newTestService()
	plans := svc.Pricing()
	require.Len(t, plans, 3)
	assert.Equal(t, TierBasic, plans[0].Tier)
	assert.Equal(t, 29.0, plans[0].Price)
	assert.Equal(t, 199.0, plans[2].Price)
}

func TestCreateSubscription(t *testing.T) {
	svc, repo, gw, _ := newTestService()
	ctx := context.Background()

	res, err := svc.CreateSubscription(ctx, "c1", TierProfessional, "pm_1")
	require.NoError(t, err)
	assert.Equal(t, "sub_1", res.SubscriptionID)
	assert.Equal(t, "price_pro_live", gw.priceID)
	assert.Equal(t, "cus_1", repo.clinics["c1"].CustomerID)
	assert.Equal(t, TierProfessional, repo.clinics["c1"].Tier)

	// El customer se reutiliza.
	_, err = svc.CreateSubscription(ctx, "c1", TierBasic, "pm_2")
	require.NoError(t, err)
	assert.Equal(t, 1, gw.customers)
	assert.Equal(t, "price_basic", gw.priceID)
}

func TestCreateSubscription_Errors(t *testing.T) {
	svc, _, gw, _ := newTestService()
	ctx := context.Background()

	_, err := svc.CreateSubscription(ctx, "c1", Tier("gold"), "pm_1")
	assert.ErrorIs(t, err, ErrInvalidTier)

	_, err = svc.CreateSubscription(ctx, "c1", TierBasic, " ")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.CreateSubscription(ctx, "nope", TierBasic, "pm_1")
	assert.ErrorIs(t, err, ErrClinicNotFound)

	gw.err = errors.New("Your card was declined.")
	_, err = svc.CreateSubscription(ctx, "c1", TierBasic, "pm_1")
	assert.ErrorIs(t, err, ErrUpstream)
	assert.Contains(t, err.Error(), "Your card was declined.")
}

func TestCancelSubscription(t *testing.T) {
	svc, repo, gw, _ := newTestService()
	ctx := context.Background()

	assert.ErrorIs(t, svc.CancelSubscription(ctx, "c1"), ErrNoSubscription)

	_, err := svc.CreateSubscription(ctx, "c1", TierBasic, "pm_1")
	require.NoError(t, err)
	require.NoError(t, svc.CancelSubscription(ctx, "c1"))
	assert.Equal(t, []string{"sub_1"}, gw.cancelled)
	assert.Equal(t, StatusCancelled, repo.clinics["c1"].Status)
}

func TestHandleWebhook_Idempotent(t *testing.T) {
	svc, repo, gw, _ := newTestService()
	ctx := context.Background()
	_, err := svc.CreateSubscription(ctx, "c1", TierBasic, "pm_1")
	require.NoError(t, err)

	gw.event = WebhookEvent{ID: "evt_1", Type: EventPaymentFailed, SubscriptionID: "sub_1"}
	res, err := svc.HandleWebhook(ctx, []byte(`{}`), "sig")
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, StatusSuspended, repo.clinics["c1"].Status)

	// El mismo evento no vuelve a mutar aunque el estado haya cambiado por otro camino.
	repo.clinics["c1"] = Clinic{ID: "c1", SubscriptionID: "sub_1", Status: StatusActive}
	res, err = svc.HandleWebhook(ctx, []byte(`{}`), "sig")
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Equal(t, StatusActive, repo.clinics["c1"].Status)
}

func TestHandleWebhook_ReleasesClaimOnFailure(t *testing.T) {
	svc, repo, gw, dd := newTestService()
	gw.event = WebhookEvent{ID: "evt_3", Type: EventSubscriptionDeleted, SubscriptionID: "sub_9"}
	repo.statusErr = errors.New("db down")

	_, err := svc.HandleWebhook(context.Background(), []byte(`{}`), "sig")
	require.Error(t, err)
	assert.Equal(t, []string{"evt_3"}, dd.released)

	// El reintento entra porque el claim se liberó.
	repo.statusErr = nil
	res, err := svc.HandleWebhook(context.Background(), []byte(`{}`), "sig")
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
}

func TestHandleWebhook_InvalidSignature(t *testing.T) {
	svc, _, gw, dd := newTestService()
	gw.parseErr = errors.New("bad signature")

	_, err := svc.HandleWebhook(context.Background(), []byte(`{}`), "sig")
	assert.ErrorIs(t, err, ErrInvalidSignature)
	assert.Empty(t, dd.seen)
}

func TestHandleWebhook_UnknownTypeIgnored(t *testing.T) {
	svc, _, gw, _ := newTestService()
	gw.event = WebhookEvent{ID: "evt_2", Type: "charge.refunded"}

	res, err := svc.HandleWebhook(context.Background(), []byte(`{}`), "sig")
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.False(t, res.Duplicate)
}

func TestSubscription(t *testing.T) {
	svc, repo, _, _ := newTestService()
	repo.usage = Usage{Pets: 3, Appointments: 10, Users: 1}

	v, err := svc.Subscription(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, TierBasic, v.Tier)
	assert.Equal(t, 3, v.Usage.Pets)
	assert.Equal(t, 100, v.Limits.MaxPets)

	_, err = svc.Subscription(context.Background(), "")
	assert.ErrorIs(t, err, ErrClinicNotFound)
}
