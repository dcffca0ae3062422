//go:build integration

package testutil

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rafflio/platform/internal/domain"
)

// FakeGateway is an in-memory MercadoPago stand-in. Payments are set by the
// test; preferences are minted on demand.
type FakeGateway struct {
	mu       sync.Mutex
	payments map[string]domain.PaymentInfo
	prefs    map[string]domain.Preference
	seq      atomic.Int64
}

// NewFakeGateway creates an empty gateway.
func NewFakeGateway() *FakeGateway {
	return &FakeGateway{
		payments: make(map[string]domain.PaymentInfo),
		prefs:    make(map[string]domain.Preference),
	}
}

func (g *FakeGateway) Enabled() bool { return true }

// SetPayment registers a payment the gateway will report.
func (g *FakeGateway) SetPayment(id, status, externalReference string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.payments[id] = domain.PaymentInfo{ID: id, Status: status, ExternalReference: externalReference}
}

func (g *FakeGateway) GetPayment(_ context.Context, id string) (*domain.PaymentInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.payments[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (g *FakeGateway) GetPreference(_ context.Context, id string) (*domain.Preference, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.prefs[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (g *FakeGateway) GetMerchantOrder(_ context.Context, _ string) (*domain.MerchantOrder, error) {
	return nil, nil
}

func (g *FakeGateway) CreatePreference(_ context.Context, req domain.PreferenceRequest) (*domain.Preference, error) {
	id := fmt.Sprintf("pref-%d", g.seq.Add(1))
	pref := domain.Preference{
		ID:                id,
		InitPoint:         "https://mp.test/checkout/" + id,
		ExternalReference: req.ExternalReference,
	}
	g.mu.Lock()
	g.prefs[id] = pref
	g.mu.Unlock()
	return &pref, nil
}

// SentMail is one message captured by FakeMailer.
type SentMail struct {
	To, Subject, HTML string
}

// FakeMailer records outgoing mail.
type FakeMailer struct {
	mu   sync.Mutex
	sent []SentMail
}

func (m *FakeMailer) Send(_ context.Context, to, subject, html string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, SentMail{To: to, Subject: subject, HTML: html})
	return nil
}

// Sent returns a copy of the captured mail.
func (m *FakeMailer) Sent() []SentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMail(nil), m.sent...)
}
