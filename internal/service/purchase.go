package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rafflio/platform/internal/auth"
	"github.com/rafflio/platform/internal/domain"
	"github.com/rafflio/platform/internal/infra"
	"github.com/rafflio/platform/internal/policy"
	"github.com/rafflio/platform/internal/repository"
)

// PurchaseOptions configures purchase creation.
type PurchaseOptions struct {
	PublicBaseURL  string
	Currency       string
	Limits         policy.PurchaseLimitPolicy
	BlockedMethods []string
}

// PurchaseService creates purchases and owns every purchase status write.
type PurchaseService struct {
	db        DB
	purchases repository.PurchaseRepository
	raffles   repository.RaffleRepository
	prizes    repository.PrizeRepository
	tiers     repository.PriceTierRepository
	tickets   repository.TicketRepository
	accounts  repository.AccountRepository
	outbox    repository.OutboxRepository
	gateway   Gateway
	push      PushPublisher
	tokens    *auth.PurchaseTokenManager
	metrics   *infra.Metrics
	opts      PurchaseOptions
	logger    *slog.Logger
}

// NewPurchaseService creates a PurchaseService.
func NewPurchaseService(
	db DB,
	purchases repository.PurchaseRepository,
	raffles repository.RaffleRepository,
	prizes repository.PrizeRepository,
	tiers repository.PriceTierRepository,
	tickets repository.TicketRepository,
	accounts repository.AccountRepository,
	outbox repository.OutboxRepository,
	gateway Gateway,
	push PushPublisher,
	tokens *auth.PurchaseTokenManager,
	metrics *infra.Metrics,
	opts PurchaseOptions,
	logger *slog.Logger,
) *PurchaseService {
	if opts.Currency == "" {
		opts.Currency = "ARS"
	}
	opts.PublicBaseURL = strings.TrimRight(opts.PublicBaseURL, "/")
	return &PurchaseService{
		db:        db,
		purchases: purchases,
		raffles:   raffles,
		prizes:    prizes,
		tiers:     tiers,
		tickets:   tickets,
		accounts:  accounts,
		outbox:    outbox,
		gateway:   gateway,
		push:      push,
		tokens:    tokens,
		metrics:   metrics,
		opts:      opts,
		logger:    logger,
	}
}

// CreatePurchaseInput holds the buyer's order. PriceTierID is a tier UUID or
// "custom", in which case Quantity is priced from the tiers.
type CreatePurchaseInput struct {
	RaffleID      uuid.UUID            `json:"raffle_id"`
	PriceTierID   string               `json:"price_tier_id"`
	Quantity      int                  `json:"quantity"`
	FullName      string               `json:"full_name"`
	Email         string               `json:"email"`
	Phone         string               `json:"phone"`
	PaymentMethod domain.PaymentMethod `json:"payment_method"`
}

// PurchaseResult is returned to the buyer after checkout starts.
type PurchaseResult struct {
	Purchase  *domain.Purchase `json:"purchase"`
	InitPoint string           `json:"init_point,omitempty"`
	Token     string           `json:"token"`
	Accounts  []domain.Account `json:"accounts,omitempty"`
}

// Create validates the order, prices it, opens a MercadoPago preference when
// needed, and stores the purchase with its outbox events.
func (s *PurchaseService) Create(ctx context.Context, in CreatePurchaseInput, adminOrigin bool) (*PurchaseResult, error) {
	if err := domain.ValidateEmail(in.Email); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}
	if err := domain.ValidatePhone(in.Phone); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}
	if strings.TrimSpace(in.FullName) == "" {
		return nil, domain.ErrValidation("full_name is required")
	}

	raffle, err := s.raffles.FindByID(ctx, s.db, in.RaffleID)
	if err != nil {
		return nil, domain.ErrInternal("find raffle", err)
	}
	if raffle == nil || (!raffle.IsActive && !adminOrigin) {
		return nil, domain.ErrNotFound("raffle", in.RaffleID.String())
	}

	p := &domain.Purchase{
		ID:            uuid.New(),
		RaffleID:      raffle.ID,
		FullName:      strings.TrimSpace(in.FullName),
		Email:         strings.TrimSpace(in.Email),
		Phone:         strings.TrimSpace(in.Phone),
		PaymentMethod: in.PaymentMethod,
		Status:        domain.PurchasePending,
	}
	if err := s.price(ctx, p, in); err != nil {
		return nil, err
	}

	accounts, err := s.accounts.List(ctx, s.db)
	if err != nil {
		return nil, domain.ErrInternal("list accounts", err)
	}
	route := policy.EvaluatePaymentRoute(policy.PaymentRoutingPolicy{
		GatewayEnabled: s.gateway != nil && s.gateway.Enabled(),
		BankAccounts:   len(accounts),
		BlockedMethods: s.opts.BlockedMethods,
	}, p.PaymentMethod, adminOrigin)
	if !route.Allowed {
		return nil, domain.ErrValidation(route.Reason)
	}

	if err := s.checkLimits(ctx, raffle, p); err != nil {
		return nil, err
	}

	token, err := s.tokens.Issue(p.ID.String())
	if err != nil {
		return nil, domain.ErrInternal("issue purchase token", err)
	}

	result := &PurchaseResult{Purchase: p, Token: token}
	if p.PaymentMethod == domain.MethodMercadoPago {
		pref, err := s.gateway.CreatePreference(ctx, s.preferenceRequest(p, raffle.Title))
		if err != nil {
			return nil, domain.ErrGateway("create payment preference", err)
		}
		p.PreferenceID = &pref.ID
		result.InitPoint = pref.InitPoint
	}
	if p.PaymentMethod == domain.MethodBankTransfer {
		result.Accounts = accounts
	}

	err = inTx(ctx, s.db, func(tx pgx.Tx) error {
		if err := s.purchases.Create(ctx, tx, p); err != nil {
			return internal("create purchase", err)
		}
		if err := s.outbox.Insert(ctx, tx, domain.NewPurchaseCreatedEvent(p)); err != nil {
			return domain.ErrInternal("write outbox", err)
		}
		if err := s.outbox.Insert(ctx, tx, domain.NewPurchaseLinkEmailEvent(p, s.purchaseLink(p.ID, token))); err != nil {
			return domain.ErrInternal("write outbox", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("purchase created",
		"purchase_id", p.ID, "raffle_id", p.RaffleID, "tickets", p.TicketCount,
		"amount", p.Amount, "method", p.PaymentMethod)
	return result, nil
}

func (s *PurchaseService) price(ctx context.Context, p *domain.Purchase, in CreatePurchaseInput) error {
	if in.PriceTierID == "" || in.PriceTierID == domain.CustomTier {
		tiers, err := s.tiers.ListByRaffle(ctx, s.db, p.RaffleID)
		if err != nil {
			return domain.ErrInternal("list price tiers", err)
		}
		q, err := policy.QuoteQuantity(tiers, in.Quantity)
		if err != nil {
			return domain.ErrValidation(err.Error())
		}
		p.TicketCount = q.Quantity
		p.Amount = q.Amount
		return nil
	}

	tierID, err := uuid.Parse(in.PriceTierID)
	if err != nil {
		return domain.ErrValidation("price_tier_id must be a UUID or \"custom\"")
	}
	tier, err := s.tiers.FindByID(ctx, s.db, tierID)
	if err != nil {
		return domain.ErrInternal("find price tier", err)
	}
	if tier == nil || tier.RaffleID != p.RaffleID {
		return domain.ErrNotFound("price tier", in.PriceTierID)
	}
	p.PriceTierID = &tier.ID
	p.TicketCount = tier.TicketCount
	p.Amount = tier.Amount
	return nil
}

// checkLimits counts capacity as the raffle size minus tickets committed to
// open purchases, capped by what is still unclaimed in the pool.
func (s *PurchaseService) checkLimits(ctx context.Context, raffle *domain.Raffle, p *domain.Purchase) error {
	committed, err := s.purchases.TicketsCommitted(ctx, s.db, raffle.ID)
	if err != nil {
		return domain.ErrInternal("count committed tickets", err)
	}
	unclaimed, err := s.tickets.CountAvailable(ctx, s.db, raffle.ID)
	if err != nil {
		return domain.ErrInternal("count available tickets", err)
	}
	available := raffle.MaxTickets - committed
	if unclaimed < available {
		available = unclaimed
	}
	if available < 0 {
		available = 0
	}

	held := 0
	if s.opts.Limits.MaxPerBuyer > 0 {
		if held, err = s.purchases.TicketsHeldByEmail(ctx, s.db, raffle.ID, p.Email); err != nil {
			return domain.ErrInternal("count buyer tickets", err)
		}
	}

	eval := policy.EvaluatePurchaseLimits(s.opts.Limits, p.TicketCount, available, held)
	if !eval.Allowed {
		return domain.ErrValidation(fmt.Sprintf("purchase exceeds %s limit (limit %d, requested %d)",
			eval.BreachedLimit, eval.LimitValue, eval.Requested))
	}
	return nil
}

func (s *PurchaseService) preferenceRequest(p *domain.Purchase, raffleTitle string) domain.PreferenceRequest {
	result := fmt.Sprintf("%s/purchases/%s/result", s.opts.PublicBaseURL, p.ID)
	return domain.PreferenceRequest{
		Items: []domain.PreferenceItem{{
			Title:      fmt.Sprintf("%s (%d tickets)", raffleTitle, p.TicketCount),
			Quantity:   1,
			UnitPrice:  infra.MinorToMajor(p.Amount),
			CurrencyID: s.opts.Currency,
		}},
		PayerEmail:        p.Email,
		ExternalReference: p.ID.String(),
		BackURLs:          map[string]string{"success": result, "failure": result, "pending": result},
		NotificationURL:   s.opts.PublicBaseURL + "/api/payment/webhook",
	}
}

func (s *PurchaseService) purchaseLink(id uuid.UUID, token string) string {
	return fmt.Sprintf("%s/purchases/%s?token=%s", s.opts.PublicBaseURL, id, token)
}

// Get returns a purchase with its ticket numbers.
func (s *PurchaseService) Get(ctx context.Context, id uuid.UUID) (*domain.Purchase, error) {
	p, err := s.purchases.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, domain.ErrInternal("find purchase", err)
	}
	if p == nil {
		return nil, domain.ErrNotFound("purchase", id.String())
	}
	return p, nil
}

// List returns purchases for the admin console.
func (s *PurchaseService) List(ctx context.Context, f repository.PurchaseFilter) ([]domain.Purchase, error) {
	list, err := s.purchases.List(ctx, s.db, f)
	if err != nil {
		return nil, domain.ErrInternal("list purchases", err)
	}
	return list, nil
}

// GetPurchase returns nil, nil for unknown or malformed IDs.
func (s *PurchaseService) GetPurchase(ctx context.Context, id string) (*domain.Purchase, error) {
	pid, err := uuid.Parse(id)
	if err != nil {
		return nil, nil
	}
	p, err := s.purchases.FindByID(ctx, s.db, pid)
	if err != nil {
		return nil, fmt.Errorf("find purchase: %w", err)
	}
	return p, nil
}

// UpdateStatus writes status idempotently: repeating a write that already
// happened succeeds without side effects.
func (s *PurchaseService) UpdateStatus(ctx context.Context, id string, status domain.PurchaseStatus, paymentID string) error {
	pid, err := uuid.Parse(id)
	if err != nil {
		return domain.ErrNotFound("purchase", id)
	}
	var pay *string
	if paymentID != "" {
		pay = &paymentID
	}
	_, err = s.Transition(ctx, pid, status, pay, true)
	return err
}

// RequestStatus is the buyer-facing status write. paid and failed are only
// accepted when the gateway reports an approved or rejected payment for this
// purchase; confirmed only when the purchase owns all its tickets.
func (s *PurchaseService) RequestStatus(ctx context.Context, id uuid.UUID, status domain.PurchaseStatus, paymentID string) (*domain.Purchase, error) {
	switch status {
	case domain.PurchasePaid, domain.PurchaseFailed:
		pay, err := s.verifiedPayment(ctx, id, paymentID)
		if err != nil {
			return nil, err
		}
		if status == domain.PurchasePaid && !pay.Approved() {
			return nil, domain.ErrConflict("payment is " + pay.Status)
		}
		if status == domain.PurchaseFailed && !domain.IsRejection(pay.Status) {
			return nil, domain.ErrConflict("payment is " + pay.Status)
		}
		if _, err := s.Transition(ctx, id, status, &pay.ID, true); err != nil {
			return nil, err
		}
	case domain.PurchaseConfirmed:
		if _, err := s.Transition(ctx, id, domain.PurchaseConfirmed, nil, true); err != nil {
			return nil, err
		}
	default:
		return nil, domain.ErrForbidden("status " + string(status) + " cannot be requested")
	}
	return s.Get(ctx, id)
}

// verifiedPayment reads a payment from the gateway and checks that it was
// made for purchase id.
func (s *PurchaseService) verifiedPayment(ctx context.Context, id uuid.UUID, paymentID string) (*domain.PaymentInfo, error) {
	if paymentID == "" {
		return nil, domain.ErrValidation("payment_id is required")
	}
	if s.gateway == nil || !s.gateway.Enabled() {
		return nil, domain.ErrValidation("payment gateway not configured")
	}
	pay, err := s.gateway.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, domain.ErrGateway("verify payment", err)
	}
	if pay == nil {
		return nil, domain.ErrNotFound("payment", paymentID)
	}
	if pay.ExternalReference != id.String() {
		return nil, domain.ErrForbidden("payment does not belong to this purchase")
	}
	return pay, nil
}

// SetStatus is the admin status write used to reconcile bank transfers and
// cash.
func (s *PurchaseService) SetStatus(ctx context.Context, id uuid.UUID, status domain.PurchaseStatus, paymentRef string) (*domain.Purchase, error) {
	if !status.Valid() || status == domain.PurchasePending {
		return nil, domain.ErrValidation("status must be paid, failed or confirmed")
	}
	var ref *string
	if paymentRef != "" {
		ref = &paymentRef
	}
	if _, err := s.Transition(ctx, id, status, ref, true); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// Transition moves a purchase to status with a conditional write. It reports
// whether the row changed. A purchase already in status (or confirmed when
// paid is requested) is a no-op. Every change writes a status event, and
// reaching confirmed also queues the confirmation email. publish forwards
// the change to push subscribers.
func (s *PurchaseService) Transition(ctx context.Context, id uuid.UUID, to domain.PurchaseStatus, paymentID *string, publish bool) (bool, error) {
	prior := domain.PriorStatuses(to)
	if len(prior) == 0 {
		return false, domain.ErrValidation("purchases cannot move to " + string(to))
	}

	var changed bool
	var from domain.PurchaseStatus
	err := inTx(ctx, s.db, func(tx pgx.Tx) error {
		ok, err := s.purchases.TransitionStatus(ctx, tx, id, prior, to, paymentID)
		if err != nil {
			return domain.ErrInternal("transition purchase", err)
		}

		current, err := s.purchases.FindByID(ctx, tx, id)
		if err != nil {
			return domain.ErrInternal("find purchase", err)
		}
		if current == nil {
			return domain.ErrNotFound("purchase", id.String())
		}

		if !ok {
			switch {
			case current.Status == to:
				return nil
			case to == domain.PurchasePaid && current.Status == domain.PurchaseConfirmed:
				return nil
			case to == domain.PurchaseConfirmed && current.Status == domain.PurchasePaid:
				return domain.ErrValidation(fmt.Sprintf("purchase owns %d of %d tickets",
					len(current.TicketNumbers), current.TicketCount))
			}
			return domain.ErrInvalidTransition(current.Status, to)
		}

		changed = true
		from = prior[0]
		if err := s.outbox.Insert(ctx, tx, domain.NewStatusChangedEvent(id, from, to)); err != nil {
			return domain.ErrInternal("write outbox", err)
		}
		if to == domain.PurchaseConfirmed {
			if err := writeConfirmation(ctx, tx, s.raffles, s.prizes, s.outbox, current); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil || !changed {
		return false, err
	}

	s.metrics.IncTransition(string(to))
	s.logger.Info("purchase status changed", "purchase_id", id, "from", from, "to", to)
	if publish {
		s.publish(ctx, id, to)
	}
	return true, nil
}

func (s *PurchaseService) publish(ctx context.Context, id uuid.UUID, status domain.PurchaseStatus) {
	if s.push == nil {
		return
	}
	if err := s.push.Publish(ctx, domain.PushEvent{PurchaseID: id.String(), Status: PushStatus(status)}); err != nil {
		s.logger.Warn("push publish failed", "error", err, "purchase_id", id)
	}
}

// PushStatus maps a purchase status to the status pushed to subscribers.
func PushStatus(status domain.PurchaseStatus) string {
	switch status {
	case domain.PurchasePaid:
		return domain.GatewayApproved
	case domain.PurchaseFailed:
		return domain.GatewayFailed
	default:
		return string(status)
	}
}

// RetryPreference issues a fresh checkout preference for a pending
// MercadoPago purchase.
func (s *PurchaseService) RetryPreference(ctx context.Context, id uuid.UUID) (*domain.Preference, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.PaymentMethod != domain.MethodMercadoPago {
		return nil, domain.ErrValidation("purchase is not paid through mercadopago")
	}
	if p.Status != domain.PurchasePending {
		return nil, domain.ErrConflict("purchase is " + string(p.Status))
	}
	if s.gateway == nil || !s.gateway.Enabled() {
		return nil, domain.ErrValidation("payment gateway not configured")
	}

	raffle, err := s.raffles.FindByID(ctx, s.db, p.RaffleID)
	if err != nil || raffle == nil {
		return nil, domain.ErrInternal("find raffle", err)
	}
	pref, err := s.gateway.CreatePreference(ctx, s.preferenceRequest(p, raffle.Title))
	if err != nil {
		return nil, domain.ErrGateway("create payment preference", err)
	}
	if err := s.purchases.SetPreference(ctx, s.db, id, pref.ID); err != nil {
		return nil, internal("store preference", err)
	}
	return pref, nil
}

// writeConfirmation queues the confirmation email for a purchase that just
// became confirmed. p must carry its ticket numbers.
func writeConfirmation(
	ctx context.Context,
	tx pgx.Tx,
	raffles repository.RaffleRepository,
	prizes repository.PrizeRepository,
	outbox repository.OutboxRepository,
	p *domain.Purchase,
) error {
	raffle, err := raffles.FindByID(ctx, tx, p.RaffleID)
	if err != nil {
		return domain.ErrInternal("find raffle", err)
	}
	title := ""
	if raffle != nil {
		title = raffle.Title
	}
	list, err := prizes.ListByRaffle(ctx, tx, p.RaffleID)
	if err != nil {
		return domain.ErrInternal("list prizes", err)
	}
	if err := outbox.Insert(ctx, tx, domain.NewConfirmationEmailEvent(p, title, p.TicketNumbers, list)); err != nil {
		return domain.ErrInternal("write outbox", err)
	}
	return nil
}
