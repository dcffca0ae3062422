// Package reconcile decides whether a purchase's payment went through by
// cross-checking the purchase record, the payment gateway and push events,
// with a bounded number of polling attempts.
package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/rafflio/platform/internal/domain"
)

// ErrEmptyPurchaseID is returned by Run when no purchase ID is given.
var ErrEmptyPurchaseID = errors.New("purchase id is required")

const (
	DefaultMaxAttempts = 3
	DefaultCountdown   = 10
	DefaultTick        = time.Second
	pushBuffer         = 8
)

// Engine runs the verification protocol. One Engine may serve many
// concurrent Runs; each Run owns its own state.
type Engine struct {
	store       PurchaseStore
	gateway     Gateway
	push        PushChannel
	clock       Clock
	logger      *slog.Logger
	maxAttempts int
	countdown   int
	tick        time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

func WithClock(c Clock) Option { return func(e *Engine) { e.clock = c } }

func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.logger = l } }

// WithMaxAttempts sets how many verification attempts precede manual recovery.
func WithMaxAttempts(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxAttempts = n
		}
	}
}

// WithCountdown sets the retry countdown: ticks steps of every.
func WithCountdown(ticks int, every time.Duration) Option {
	return func(e *Engine) {
		if ticks > 0 {
			e.countdown = ticks
		}
		if every > 0 {
			e.tick = every
		}
	}
}

// New creates an engine. push may be nil, in which case only polling is used.
func New(store PurchaseStore, gateway Gateway, push PushChannel, opts ...Option) *Engine {
	e := &Engine{
		store:       store,
		gateway:     gateway,
		push:        push,
		clock:       realClock{},
		logger:      slog.Default(),
		maxAttempts: DefaultMaxAttempts,
		countdown:   DefaultCountdown,
		tick:        DefaultTick,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run drives the protocol for purchaseID until a terminal state is reached
// or ctx is cancelled. observe is called synchronously for every snapshot;
// once ctx is cancelled it is never called again. On cancellation Run returns
// the last observed snapshot and ctx.Err().
func (e *Engine) Run(ctx context.Context, purchaseID string, info PaymentInfo, observe Observer) (Snapshot, error) {
	if purchaseID == "" {
		return Snapshot{}, ErrEmptyPurchaseID
	}
	if observe == nil {
		observe = func(Snapshot) {}
	}

	r := &run{
		e:          e,
		ctx:        ctx,
		purchaseID: purchaseID,
		info:       info,
		observe:    observe,
		events:     make(chan domain.PushEvent, pushBuffer),
		logger:     e.logger.With("purchase_id", purchaseID),
	}

	if e.push != nil {
		unsubscribe, err := e.push.Subscribe(purchaseID, r.enqueue)
		if err != nil {
			r.logger.Warn("push subscribe failed, polling only", "error", err)
		} else {
			defer unsubscribe()
		}
	}

	return r.loop()
}

type run struct {
	e          *Engine
	ctx        context.Context
	purchaseID string
	info       PaymentInfo
	observe    Observer
	events     chan domain.PushEvent
	logger     *slog.Logger

	purchase *domain.Purchase
	attempt  int
	last     Snapshot
}

// enqueue is the push callback. It never blocks the channel's goroutine.
func (r *run) enqueue(evt domain.PushEvent) {
	select {
	case r.events <- evt:
	default:
		r.logger.Warn("push event dropped, buffer full", "status", evt.Status)
	}
}

func (r *run) loop() (Snapshot, error) {
	for {
		if s, done := r.verify(); done {
			return r.finish(s)
		}
		if err := r.ctx.Err(); err != nil {
			return r.last, err
		}

		r.attempt++
		if r.attempt >= r.e.maxAttempts {
			return r.finish(r.manualRecovery())
		}

		if s, done := r.wait(); done {
			return r.finish(s)
		}
	}
}

func (r *run) finish(s Snapshot) (Snapshot, error) {
	if err := r.ctx.Err(); err != nil {
		return r.last, err
	}
	r.emit(s)
	r.logger.Info("payment reconciliation finished", "state", s.State, "attempt", r.attempt)
	return r.last, nil
}

func (r *run) emit(s Snapshot) {
	if r.ctx.Err() != nil {
		return
	}
	s.Attempt = r.attempt
	if s.Purchase == nil {
		s.Purchase = r.purchase
	}
	r.last = s
	r.logger.Debug("reconcile snapshot", "state", s.State, "attempt", s.Attempt, "countdown", s.Countdown)
	r.observe(s)
}

// pushed drains queued push events and reports the first terminal one.
// It is checked before every continuation so a push always beats a poll
// that has not started yet.
func (r *run) pushed() (Snapshot, bool) {
	for {
		select {
		case evt := <-r.events:
			if s, ok := r.fromPush(evt); ok {
				return s, true
			}
		default:
			return Snapshot{}, false
		}
	}
}

func (r *run) fromPush(evt domain.PushEvent) (Snapshot, bool) {
	if evt.PurchaseID != "" && evt.PurchaseID != r.purchaseID {
		return Snapshot{}, false
	}
	switch {
	case evt.Status == domain.GatewayApproved:
		return Snapshot{State: StateApproved}, true
	case domain.IsRejection(evt.Status):
		return Snapshot{State: StateRejected, Message: MsgRejected}, true
	}
	return Snapshot{}, false
}

// interrupted reports whether the run must stop after an external call,
// either because it was cancelled or because a push event decided it.
func (r *run) interrupted() (Snapshot, bool) {
	if r.ctx.Err() != nil {
		return Snapshot{}, true
	}
	return r.pushed()
}

func (r *run) failure(op string, err error) Snapshot {
	r.logger.Error("payment verification failed", "op", op, "attempt", r.attempt, "error", err)
	return Snapshot{State: StateError, Message: MsgVerifyError}
}

// verify runs one attempt. It returns done=false when no approval was found
// and another attempt may follow.
func (r *run) verify() (Snapshot, bool) {
	if s, ok := r.pushed(); ok {
		return s, true
	}

	r.emit(Snapshot{State: StateVerifyingPurchase})
	p, err := r.e.store.GetPurchase(r.ctx, r.purchaseID)
	if s, stop := r.interrupted(); stop {
		return s, true
	}
	if err != nil {
		return r.failure("get purchase", err), true
	}
	if p == nil {
		return Snapshot{State: StateNotFound, Message: MsgNotFound}, true
	}
	r.purchase = p

	switch p.Status {
	case domain.PurchaseConfirmed:
		return r.alreadyConfirmed(), true
	case domain.PurchaseFailed:
		return Snapshot{State: StateRejected, Message: MsgRejected}, true
	case domain.PurchasePaid:
		if !p.FullyAssigned() {
			return Snapshot{State: StateApproved}, true
		}
		err := r.e.store.UpdateStatus(r.ctx, r.purchaseID, domain.PurchaseConfirmed, "")
		if r.ctx.Err() != nil {
			return Snapshot{}, true
		}
		if err != nil {
			return r.failure("promote to confirmed", err), true
		}
		p.Status = domain.PurchaseConfirmed
		return r.alreadyConfirmed(), true
	}

	r.emit(Snapshot{State: StateVerifyingPayment})
	paymentID := r.paymentID()
	if paymentID == "" {
		return Snapshot{}, false
	}

	pay, err := r.e.gateway.GetPayment(r.ctx, paymentID)
	if s, stop := r.interrupted(); stop {
		return s, true
	}
	if err != nil {
		return r.failure("get payment", err), true
	}
	if pay == nil {
		return Snapshot{}, false
	}
	if pay.ExternalReference != "" && pay.ExternalReference != r.purchaseID {
		r.logger.Warn("payment belongs to another purchase", "payment_id", paymentID,
			"external_reference", pay.ExternalReference)
		return Snapshot{}, false
	}

	switch pay.Status {
	case domain.GatewayApproved:
		if err := r.e.store.UpdateStatus(r.ctx, r.purchaseID, domain.PurchasePaid, pay.ID); err != nil {
			if r.ctx.Err() != nil {
				return Snapshot{}, true
			}
			return r.failure("mark paid", err), true
		}
		p.Status = domain.PurchasePaid
		return Snapshot{State: StateApproved}, true
	case domain.GatewayRejected, domain.GatewayCancelled:
		if err := r.e.store.UpdateStatus(r.ctx, r.purchaseID, domain.PurchaseFailed, pay.ID); err != nil {
			if r.ctx.Err() != nil {
				return Snapshot{}, true
			}
			return r.failure("mark failed", err), true
		}
		p.Status = domain.PurchaseFailed
		return Snapshot{State: StateRejected, Message: MsgRejected}, true
	}
	return Snapshot{}, false
}

func (r *run) alreadyConfirmed() Snapshot {
	numbers := append([]int(nil), r.purchase.TicketNumbers...)
	return Snapshot{State: StateAlreadyConfirmed, Numbers: numbers}
}

func (r *run) paymentID() string {
	if r.info.PaymentID != "" {
		return r.info.PaymentID
	}
	if r.purchase != nil && r.purchase.PaymentID != nil {
		return *r.purchase.PaymentID
	}
	return ""
}

func (r *run) preferenceID() string {
	if r.info.PreferenceID != "" {
		return r.info.PreferenceID
	}
	if r.purchase != nil && r.purchase.PreferenceID != nil {
		return *r.purchase.PreferenceID
	}
	return ""
}

// wait counts down between attempts, emitting a retrying snapshot per tick.
// Push events end the wait early.
func (r *run) wait() (Snapshot, bool) {
	if s, ok := r.pushed(); ok {
		return s, true
	}

	ticker := r.e.clock.NewTicker(r.e.tick)
	defer ticker.Stop()

	remaining := r.e.countdown
	r.emit(Snapshot{State: StateRetrying, Countdown: remaining})

	for remaining > 0 {
		select {
		case <-r.ctx.Done():
			return Snapshot{}, true
		case evt := <-r.events:
			if s, ok := r.fromPush(evt); ok {
				return s, true
			}
		case <-ticker.C():
			remaining--
			if s, stop := r.interrupted(); stop {
				return s, true
			}
			if remaining > 0 {
				r.emit(Snapshot{State: StateRetrying, Countdown: remaining})
			}
		}
	}
	return Snapshot{}, false
}

// manualRecovery looks up the checkout preference so the buyer can pay again.
func (r *run) manualRecovery() Snapshot {
	if s, ok := r.pushed(); ok {
		return s
	}

	fallback := Snapshot{State: StateManualRecovery, Message: MsgPaymentNotFound}
	prefID := r.preferenceID()
	if prefID == "" {
		return fallback
	}

	pref, err := r.e.gateway.GetPreference(r.ctx, prefID)
	if s, stop := r.interrupted(); stop {
		return s
	}
	if err != nil {
		r.logger.Warn("preference lookup failed", "preference_id", prefID, "error", err)
		return fallback
	}
	if pref == nil {
		return fallback
	}

	initPoint := pref.InitPoint
	if initPoint == "" {
		initPoint = pref.SandboxInitPoint
	}
	if initPoint == "" {
		return fallback
	}
	return Snapshot{State: StateManualRecovery, Message: MsgValidationFailed, InitPoint: initPoint}
}
