package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafflio/platform/internal/domain"
)

func noopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestMP(t *testing.T, h http.HandlerFunc) *MercadoPago {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewMercadoPago("TEST-token", "whsec", srv.URL, time.Second, noopLogger())
}

// --- MercadoPago Lookup Tests ---

func TestMercadoPago_GetPayment(t *testing.T) {
	mp := newTestMP(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer TEST-token", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/v1/payments/123":
			fmt.Fprint(w, `{"id":123,"status":"approved","status_detail":"accredited","external_reference":"p-1","transaction_amount":1500}`)
		default:
			http.NotFound(w, r)
		}
	})

	t.Run("found", func(t *testing.T) {
		info, err := mp.GetPayment(context.Background(), "123")
		require.NoError(t, err)
		require.NotNil(t, info)
		assert.Equal(t, "123", info.ID)
		assert.True(t, info.Approved())
		assert.Equal(t, "p-1", info.ExternalReference)
		assert.Equal(t, 1500.0, info.TransactionAmount)
	})

	t.Run("unknown id is nil", func(t *testing.T) {
		info, err := mp.GetPayment(context.Background(), "999")
		require.NoError(t, err)
		assert.Nil(t, info)
	})
}

func TestMercadoPago_ServerError(t *testing.T) {
	mp := newTestMP(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"message":"boom"}`)
	})

	_, err := mp.GetPreference(context.Background(), "pref-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestMercadoPago_NotConfigured(t *testing.T) {
	mp := NewMercadoPago("", "", "http://127.0.0.1:1", time.Second, noopLogger())
	assert.False(t, mp.Enabled())
	_, err := mp.GetPayment(context.Background(), "1")
	assert.Error(t, err)
}

func TestMercadoPago_GetMerchantOrder(t *testing.T) {
	mp := newTestMP(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/merchant_orders/77", r.URL.Path)
		fmt.Fprint(w, `{"id":77,"preference_id":"pref-1","external_reference":"p-1","order_status":"paid",
			"payments":[{"id":5,"status":"approved"},{"id":6,"status":"rejected"}]}`)
	})

	order, err := mp.GetMerchantOrder(context.Background(), "77")
	require.NoError(t, err)
	assert.Equal(t, int64(77), order.ID)
	require.Len(t, order.Payments, 2)
	assert.Equal(t, "5", order.Payments[0].ID)
	assert.Equal(t, domain.GatewayRejected, order.Payments[1].Status)
}

func TestMercadoPago_CreatePreference(t *testing.T) {
	var got map[string]interface{}
	mp := newTestMP(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/checkout/preferences", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id":"pref-9","init_point":"https://mp.test/init","external_reference":"p-1"}`)
	})

	pref, err := mp.CreatePreference(context.Background(), domain.PreferenceRequest{
		Items:             []domain.PreferenceItem{{Title: "Raffle", Quantity: 1, UnitPrice: 1500, CurrencyID: "ARS"}},
		PayerEmail:        "buyer@example.com",
		ExternalReference: "p-1",
		NotificationURL:   "https://rafflio.test/api/payment/webhook",
	})
	require.NoError(t, err)
	assert.Equal(t, "pref-9", pref.ID)
	assert.Equal(t, "https://mp.test/init", pref.InitPoint)
	assert.Equal(t, "p-1", got["external_reference"])
	assert.Equal(t, "https://rafflio.test/api/payment/webhook", got["notification_url"])
	assert.Equal(t, map[string]interface{}{"email": "buyer@example.com"}, got["payer"])
}

// --- Webhook Signature Tests ---

func TestVerifyWebhookSignature(t *testing.T) {
	mp := NewMercadoPago("tok", "whsec", "", time.Second, noopLogger())
	now := time.Unix(1_700_000_000, 0)
	mp.now = func() time.Time { return now }
	ts := fmt.Sprintf("%d", now.Unix())

	t.Run("valid", func(t *testing.T) {
		sig := SignWebhookManifest("whsec", ts, "req-1", "123")
		err := mp.VerifyWebhookSignature("ts="+ts+",v1="+sig, "req-1", "123")
		assert.NoError(t, err)
	})

	t.Run("valid without request id", func(t *testing.T) {
		sig := SignWebhookManifest("whsec", ts, "", "123")
		assert.NoError(t, mp.VerifyWebhookSignature("ts="+ts+",v1="+sig, "", "123"))
	})

	t.Run("millisecond timestamp", func(t *testing.T) {
		ms := fmt.Sprintf("%d", now.UnixMilli())
		sig := SignWebhookManifest("whsec", ms, "req-1", "123")
		assert.NoError(t, mp.VerifyWebhookSignature("ts="+ms+",v1="+sig, "req-1", "123"))
	})

	t.Run("tampered data id", func(t *testing.T) {
		sig := SignWebhookManifest("whsec", ts, "req-1", "123")
		err := mp.VerifyWebhookSignature("ts="+ts+",v1="+sig, "req-1", "124")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid webhook signature")
	})

	t.Run("expired", func(t *testing.T) {
		old := fmt.Sprintf("%d", now.Add(-10*time.Minute).Unix())
		sig := SignWebhookManifest("whsec", old, "req-1", "123")
		err := mp.VerifyWebhookSignature("ts="+old+",v1="+sig, "req-1", "123")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "tolerance")
	})

	t.Run("malformed header", func(t *testing.T) {
		err := mp.VerifyWebhookSignature("garbage", "req-1", "123")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid signature header format")
	})
}

// --- Brevo Tests ---

func TestBrevo_Send(t *testing.T) {
	var body map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/smtp/email", r.URL.Path)
		assert.Equal(t, "key-1", r.Header.Get("api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	b := NewBrevo("key-1", srv.URL, "no-reply@rafflio.test", "Rafflio")
	require.NoError(t, b.Send(context.Background(), "buyer@example.com", "Hi", "<p>hi</p>"))
	assert.Equal(t, "Hi", body["subject"])
	assert.Equal(t, "<p>hi</p>", body["htmlContent"])
}

func TestBrevo_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"code":"invalid_parameter"}`)
	}))
	defer srv.Close()

	err := NewBrevo("key-1", srv.URL, "a@b.co", "").Send(context.Background(), "x@y.co", "s", "h")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid_parameter")

	assert.Error(t, NewBrevo("", srv.URL, "a@b.co", "").Send(context.Background(), "x@y.co", "s", "h"))
}
