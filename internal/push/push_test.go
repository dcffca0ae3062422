package push

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redismock/v9"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafflio/platform/internal/auth"
	"github.com/rafflio/platform/internal/domain"
	"github.com/rafflio/platform/internal/infra"
)

func noopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recorder struct {
	mu     sync.Mutex
	events []domain.PushEvent
}

func (r *recorder) handle(evt domain.PushEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recorder) snapshot() []domain.PushEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.PushEvent(nil), r.events...)
}

// --- Hub Tests ---

func TestHub_DeliversOnlyToMatchingPurchase(t *testing.T) {
	hub := NewHub(noopLogger(), nil)
	var a, b recorder

	unsubA, err := hub.Subscribe("p-1", a.handle)
	require.NoError(t, err)
	defer unsubA()
	unsubB, err := hub.Subscribe("p-2", b.handle)
	require.NoError(t, err)
	defer unsubB()

	require.NoError(t, hub.Publish(context.Background(), domain.PushEvent{PurchaseID: "p-1", Status: "approved"}))

	assert.Equal(t, []domain.PushEvent{{PurchaseID: "p-1", Status: "approved"}}, a.snapshot())
	assert.Empty(t, b.snapshot())
	assert.Equal(t, 2, hub.SubscriberCount())
	assert.Equal(t, 2, hub.RoomCount())
}

func TestHub_UnsubscribeIsIdempotent(t *testing.T) {
	metrics := infra.NewMetrics()
	hub := NewHub(noopLogger(), metrics)
	var r recorder

	unsub, err := hub.Subscribe("p-1", r.handle)
	require.NoError(t, err)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.PushSubscribers))

	unsub()
	unsub()

	hub.Deliver(domain.PushEvent{PurchaseID: "p-1", Status: "approved"}, SourceLocal)
	assert.Empty(t, r.snapshot())
	assert.Equal(t, 0, hub.SubscriberCount())
	assert.Equal(t, 0, hub.RoomCount())
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.PushSubscribers))
}

func TestHub_HandlerMayUnsubscribeItself(t *testing.T) {
	hub := NewHub(noopLogger(), nil)
	var unsub func()
	calls := 0
	unsub, err := hub.Subscribe("p-1", func(domain.PushEvent) {
		calls++
		unsub()
	})
	require.NoError(t, err)

	hub.Deliver(domain.PushEvent{PurchaseID: "p-1", Status: "approved"}, SourceLocal)
	hub.Deliver(domain.PushEvent{PurchaseID: "p-1", Status: "approved"}, SourceLocal)
	assert.Equal(t, 1, calls)
}

func TestHub_RejectsEmptyPurchaseAndClosedHub(t *testing.T) {
	hub := NewHub(noopLogger(), nil)
	_, err := hub.Subscribe("", func(domain.PushEvent) {})
	assert.ErrorIs(t, err, ErrEmptyPurchase)

	_, err = hub.Subscribe("p-1", func(domain.PushEvent) {})
	require.NoError(t, err)

	hub.Shutdown(context.Background())
	assert.Equal(t, 0, hub.SubscriberCount())

	_, err = hub.Subscribe("p-1", func(domain.PushEvent) {})
	assert.ErrorIs(t, err, ErrHubClosed)
}

func TestHub_CountsDeliveriesBySource(t *testing.T) {
	metrics := infra.NewMetrics()
	hub := NewHub(noopLogger(), metrics)
	var r recorder
	_, err := hub.Subscribe("p-1", r.handle)
	require.NoError(t, err)

	hub.Deliver(domain.PushEvent{PurchaseID: "p-1", Status: "approved"}, SourceRedis)
	hub.Deliver(domain.PushEvent{PurchaseID: "nobody", Status: "approved"}, SourceRedis)

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.PushEvents.WithLabelValues(SourceRedis)))
}

// --- Redis Relay Tests ---

func TestRedisRelay_PublishSendsJSON(t *testing.T) {
	db, mock := redismock.NewClientMock()
	relay := NewRedisRelay(db, NewHub(noopLogger(), nil), noopLogger())

	evt := domain.PushEvent{PurchaseID: "p-1", Status: "rejected"}
	payload, err := json.Marshal(evt)
	require.NoError(t, err)
	mock.ExpectPublish(DefaultChannel, string(payload)).SetVal(1)

	require.NoError(t, relay.Publish(context.Background(), evt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisRelay_PublishError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	relay := NewRedisRelay(db, NewHub(noopLogger(), nil), noopLogger())

	evt := domain.PushEvent{PurchaseID: "p-1", Status: "approved"}
	payload, _ := json.Marshal(evt)
	mock.ExpectPublish(DefaultChannel, string(payload)).SetErr(assert.AnError)

	err := relay.Publish(context.Background(), evt)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis publish")
}

func TestRedisRelay_HandleDeliversToHub(t *testing.T) {
	hub := NewHub(noopLogger(), nil)
	relay := NewRedisRelay(nil, hub, noopLogger())
	var r recorder
	_, err := hub.Subscribe("p-9", r.handle)
	require.NoError(t, err)

	relay.handle(`{"purchaseId":"p-9","status":"approved"}`)
	relay.handle(`not json`)
	relay.handle(`{"status":"approved"}`)

	assert.Equal(t, []domain.PushEvent{{PurchaseID: "p-9", Status: "approved"}}, r.snapshot())
}

// --- WebSocket Tests ---

func newWSServer(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	r.Get("/ws/purchases/{id}", ServeWS(hub, noopLogger()))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestWSChannel_ReceivesHubEvents(t *testing.T) {
	hub := NewHub(noopLogger(), nil)
	srv := newWSServer(t, hub)

	ch := NewWSChannel(srv.URL, "", noopLogger())
	received := make(chan domain.PushEvent, 1)
	unsub, err := ch.Subscribe("p-1", func(evt domain.PushEvent) { received <- evt })
	require.NoError(t, err)
	defer unsub()

	require.Eventually(t, func() bool { return hub.SubscriberCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Deliver(domain.PushEvent{PurchaseID: "p-2", Status: "approved"}, SourceLocal)
	hub.Deliver(domain.PushEvent{PurchaseID: "p-1", Status: "cancelled"}, SourceLocal)

	select {
	case evt := <-received:
		assert.Equal(t, domain.PushEvent{PurchaseID: "p-1", Status: "cancelled"}, evt)
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}
}

func TestWSChannel_UnsubscribeReleasesServerSubscription(t *testing.T) {
	hub := NewHub(noopLogger(), nil)
	srv := newWSServer(t, hub)

	ch := NewWSChannel(srv.URL, "", noopLogger())
	unsub, err := ch.Subscribe("p-1", func(domain.PushEvent) {})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.SubscriberCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	unsub()
	assert.Eventually(t, func() bool { return hub.SubscriberCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestWSChannel_SendsPurchaseToken(t *testing.T) {
	hub := NewHub(noopLogger(), nil)
	tokens := auth.NewPurchaseTokenManager("purchase-secret", time.Hour)
	r := chi.NewRouter()
	byPurchase := func(r *http.Request) string { return chi.URLParam(r, "id") }
	r.With(auth.RequireStreamToken(tokens, nil, byPurchase)).Get("/ws/purchases/{id}", ServeWS(hub, noopLogger()))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	_, err := NewWSChannel(srv.URL, "", noopLogger()).Subscribe("p-1", func(domain.PushEvent) {})
	assert.Error(t, err)

	other, _ := tokens.Issue("p-2")
	_, err = NewWSChannel(srv.URL, other, noopLogger()).Subscribe("p-1", func(domain.PushEvent) {})
	assert.Error(t, err)
	assert.Equal(t, 0, hub.SubscriberCount())

	good, _ := tokens.Issue("p-1")
	unsub, err := NewWSChannel(srv.URL, good, noopLogger()).Subscribe("p-1", func(domain.PushEvent) {})
	require.NoError(t, err)
	defer unsub()
	assert.Eventually(t, func() bool { return hub.SubscriberCount() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestWSChannel_Endpoint(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"http://localhost:3100", "ws://localhost:3100/ws/purchases/abc"},
		{"https://rafflio.example/", "wss://rafflio.example/ws/purchases/abc"},
		{"https://rafflio.example/api-root", "wss://rafflio.example/api-root/ws/purchases/abc"},
	}
	for _, tt := range tests {
		t.Run(tt.base, func(t *testing.T) {
			got, err := NewWSChannel(tt.base, "", noopLogger()).endpoint("abc")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWSChannel_DialFailure(t *testing.T) {
	ch := NewWSChannel("http://127.0.0.1:1", "", noopLogger())
	_, err := ch.Subscribe("p-1", func(domain.PushEvent) {})
	assert.Error(t, err)

	_, err = ch.Subscribe("", func(domain.PushEvent) {})
	assert.ErrorIs(t, err, ErrEmptyPurchase)
}
