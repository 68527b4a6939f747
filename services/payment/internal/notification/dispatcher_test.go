package notification

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/JRebertt/shortcart-v3/pkg/httpclient"
	"github.com/JRebertt/shortcart-v3/services/payment/internal/domain"
	"github.com/JRebertt/shortcart-v3/services/payment/internal/webhook"
)

type mockEndpointRepo struct {
	mock.Mock
}

func (m *mockEndpointRepo) ListActiveByOrganization(ctx context.Context, orgID string) ([]domain.WebhookEndpoint, error) {
	args := m.Called(ctx, orgID)
	if v := args.Get(0); v != nil {
		return v.([]domain.WebhookEndpoint), args.Error(1)
	}
	return nil, args.Error(1)
}

type recordingSender struct {
	got []webhook.Delivery
}

func (r *recordingSender) SendBatch(_ context.Context, ds []webhook.Delivery) []webhook.Result {
	r.got = append(r.got, ds...)
	out := make([]webhook.Result, len(ds))
	for i := range ds {
		out[i] = webhook.Result{Success: true, StatusCode: http.StatusOK}
	}
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func approved() domain.PaymentNotification {
	amount := int64(5990)
	return domain.PaymentNotification{
		Event:          domain.EventPaymentApproved,
		OrganizationID: "org-1",
		Provider:       domain.ProviderMangofy,
		PaymentID:      "pay_1",
		Status:         domain.StatusApproved,
		Amount:         &amount,
		OccurredAt:     time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestDispatcher_FiltersBySubscription(t *testing.T) {
	repo := &mockEndpointRepo{}
	repo.On("ListActiveByOrganization", mock.Anything, "org-1").Return([]domain.WebhookEndpoint{
		{ID: "ep-all", URL: "https://a.example.com", Secret: "s1", IsActive: true},
		{ID: "ep-approved", URL: "https://b.example.com", Events: []domain.WebhookEvent{domain.EventPaymentApproved}, IsActive: true},
		{ID: "ep-refunds", URL: "https://c.example.com", Events: []domain.WebhookEvent{domain.EventPaymentRefunded}, IsActive: true},
		{ID: "ep-off", URL: "https://d.example.com", IsActive: false},
	}, nil)
	sender := &recordingSender{}

	results, err := NewDispatcher(repo, sender, testLogger()).Dispatch(context.Background(), approved())
	require.NoError(t, err)

	require.Len(t, results, 2)
	require.Len(t, sender.got, 2)
	assert.Equal(t, "https://a.example.com", sender.got[0].URL)
	assert.Equal(t, "s1", sender.got[0].Secret)
	assert.Equal(t, domain.EventPaymentApproved, sender.got[0].Event)
	assert.Equal(t, "org-1", sender.got[0].Headers["X-Organization-ID"])
	assert.Equal(t, "https://b.example.com", sender.got[1].URL)
	repo.AssertExpectations(t)
}

func TestDispatcher_NoEndpoints(t *testing.T) {
	repo := &mockEndpointRepo{}
	repo.On("ListActiveByOrganization", mock.Anything, "org-1").Return([]domain.WebhookEndpoint{}, nil)
	sender := &recordingSender{}

	err := NewDispatcher(repo, sender, testLogger()).Notify(context.Background(), approved())
	require.NoError(t, err)
	assert.Empty(t, sender.got)
}

func TestDispatcher_RepositoryError(t *testing.T) {
	repo := &mockEndpointRepo{}
	repo.On("ListActiveByOrganization", mock.Anything, "org-1").Return(nil, errors.New("db down"))

	err := NewDispatcher(repo, &recordingSender{}, testLogger()).Notify(context.Background(), approved())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load webhook endpoints")
}

func TestDispatcher_DeliversSignedPayloadEndToEnd(t *testing.T) {
	var (
		calls   atomic.Int32
		gotSig  atomic.Value
		gotBody atomic.Value
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody.Store(b)
		gotSig.Store(r.Header.Get(webhook.HeaderSignature))
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	repo := &mockEndpointRepo{}
	repo.On("ListActiveByOrganization", mock.Anything, "org-1").Return([]domain.WebhookEndpoint{
		{ID: "ep-1", URL: srv.URL, Secret: "merchant-secret", IsActive: true},
	}, nil)

	cfg := httpclient.DefaultConfig()
	cfg.MaxRetries = 0
	retry := webhook.NewRetrySender(webhook.NewSender(httpclient.New(cfg)), webhook.DefaultRetryPolicy(),
		webhook.WithWait(func(context.Context, time.Duration) error { return nil }))

	results, err := NewDispatcher(repo, retry, testLogger()).Dispatch(context.Background(), approved())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
	assert.Equal(t, 1, results[0].RetryCount)
	assert.EqualValues(t, 2, calls.Load())

	body := gotBody.Load().([]byte)
	assert.Contains(t, string(body), `"event":"payment.approved"`)
	assert.True(t, webhook.ValidateSignature(body, gotSig.Load().(string), "merchant-secret"))
}
