package infra

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- Config Tests ---

func TestLoadConfig_DotenvDoesNotOverrideEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte("API_PORT=4200\nMP_BASE_URL=http://from-dotenv\n"), 0o600))

	t.Setenv("MP_BASE_URL", "http://from-env")
	t.Cleanup(func() { os.Unsetenv("API_PORT") })

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 4200, cfg.APIPort)
	assert.Equal(t, "http://from-env", cfg.MPBaseURL)
	assert.Equal(t, 10*time.Second, cfg.MPTimeout)
}

func TestLoadConfig_MissingDotenvIsIgnored(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
}

func TestConfig_Validate(t *testing.T) {
	strong := "0123456789abcdef0123456789abcdef"

	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"insecure allowed", Config{AllowInsecureDefaults: true, JWTSecret: insecureSecret, OutboxBatchSize: 1}, ""},
		{"default jwt secret", Config{JWTSecret: insecureSecret, OutboxBatchSize: 1}, "JWT_SECRET is set"},
		{"short jwt secret", Config{JWTSecret: "short", OutboxBatchSize: 1}, "too short"},
		{"weak purchase token secret", Config{JWTSecret: strong, PurchaseTokenSecret: "x", OutboxBatchSize: 1}, "PURCHASE_TOKEN_SECRET"},
		{"gateway without webhook secret", Config{JWTSecret: strong, PurchaseTokenSecret: strong, MPAccessToken: "tok", OutboxBatchSize: 1}, "MP_WEBHOOK_SECRET"},
		{"bad batch size", Config{AllowInsecureDefaults: true}, "OUTBOX_BATCH_SIZE"},
		{"valid", Config{JWTSecret: strong, PurchaseTokenSecret: strong, OutboxBatchSize: 10}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_DSN(t *testing.T) {
	cfg := Config{PGUser: "u", PGPassword: "p", PGHost: "db", PGPort: 5432, PGDatabase: "rafflio"}
	assert.Equal(t, "postgres://u:p@db:5432/rafflio?sslmode=disable", cfg.DSN())

	cfg.DatabaseURL = "postgres://override"
	assert.Equal(t, "postgres://override", cfg.DSN())
}

func TestConfig_Helpers(t *testing.T) {
	cfg := Config{CORSAllowedOrigins: "https://a.test, https://b.test,,", JWTAdminExpiry: "bogus"}
	assert.Equal(t, []string{"https://a.test", "https://b.test"}, cfg.AllowedOrigins())
	assert.Equal(t, 8*time.Hour, cfg.AdminTokenExpiry())
	assert.False(t, cfg.GatewayEnabled())

	cfg.JWTAdminExpiry = "2h"
	cfg.MPAccessToken = "tok"
	assert.Equal(t, 2*time.Hour, cfg.AdminTokenExpiry())
	assert.True(t, cfg.GatewayEnabled())
}

// --- Kafka Tests ---

func TestTopicFor(t *testing.T) {
	assert.Equal(t, "rafflio.purchase.status_changed", TopicFor("rafflio.purchase.status_changed"))
	assert.Equal(t, "rafflio.custom.event", TopicFor("custom.event"))
}

func TestKafkaProducer_DisabledIsNoop(t *testing.T) {
	p := NewKafkaProducer("", true, noopLogger())
	assert.False(t, p.Enabled())
	assert.NoError(t, p.Publish(context.Background(), "topic", nil, []byte("x")))
	assert.NoError(t, p.Close())
}

func TestKafkaConsumer_Disabled(t *testing.T) {
	c := NewKafkaConsumer("localhost:9092", "topic", "group", false, noopLogger())
	_, err := c.ReadMessage(context.Background())
	assert.ErrorIs(t, err, ErrKafkaDisabled)
	assert.NoError(t, c.Close())
}

// --- Outbox Poller Tests ---

type fakeProcessor struct {
	mu      sync.Mutex
	results []int
	calls   int
	err     error
}

func (f *fakeProcessor) ProcessBatch(_ context.Context, _ int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	if len(f.results) == 0 {
		return 0, nil
	}
	n := f.results[0]
	f.results = f.results[1:]
	return n, nil
}

func TestOutboxPoller_DrainsFullBatches(t *testing.T) {
	proc := &fakeProcessor{results: []int{10, 10, 3}}
	p := NewOutboxPoller(proc, time.Hour, 10, noopLogger())

	p.drain(context.Background())
	assert.Equal(t, 3, proc.calls)
}

func TestOutboxPoller_StopsOnError(t *testing.T) {
	proc := &fakeProcessor{err: errors.New("db down")}
	p := NewOutboxPoller(proc, time.Hour, 10, noopLogger())

	p.drain(context.Background())
	assert.Equal(t, 1, proc.calls)
}

func TestOutboxPoller_RunStopsOnCancel(t *testing.T) {
	proc := &fakeProcessor{}
	p := NewOutboxPoller(proc, time.Millisecond, 0, noopLogger())
	assert.Equal(t, 100, p.batchSize)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, p.Run(ctx))
}

// --- Metrics Tests ---

func TestMetrics_CountersAndHandler(t *testing.T) {
	m := NewMetrics()
	m.IncWebhook("processed")
	m.IncWebhook("processed")
	m.IncClaim("conflict")
	m.AddSubscribers(2)
	m.AddSubscribers(-1)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.Webhooks.WithLabelValues("processed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.TicketClaims.WithLabelValues("conflict")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.PushSubscribers))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "rafflio_webhooks_total")
}

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncWebhook("x")
		m.IncClaim("x")
		m.IncTransition("paid")
		m.IncOutbox("ok")
		m.IncPush("local")
		m.AddSubscribers(1)
	})
	assert.Nil(t, m.Registry())
}

// --- Migration Dir Tests ---

func TestFindMigrationDir(t *testing.T) {
	dir := FindMigrationDir()
	assert.Contains(t, dir, filepath.Join("db", "migrations"))
}
