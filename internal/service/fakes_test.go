package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rafflio/platform/internal/auth"
	"github.com/rafflio/platform/internal/domain"
	"github.com/rafflio/platform/internal/guard"
	"github.com/rafflio/platform/internal/repository"
)

func noopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- Fake DB ---

// fakeTx only implements what inTx calls. Repositories are fakes and never
// touch the handle they are given.
type fakeTx struct {
	pgx.Tx
	db *fakeDB
}

func (t *fakeTx) Commit(context.Context) error {
	t.db.mu.Lock()
	t.db.commits++
	t.db.mu.Unlock()
	return nil
}

func (t *fakeTx) Rollback(context.Context) error { return nil }

type fakeDB struct {
	mu             sync.Mutex
	commits        int
	failedAttempts int
	attempts       []bool
}

func (d *fakeDB) Begin(context.Context) (pgx.Tx, error) { return &fakeTx{db: d}, nil }

func (d *fakeDB) Exec(_ context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	if strings.Contains(sql, "login_attempts") && len(args) == 3 {
		d.mu.Lock()
		ok, _ := args[2].(bool)
		d.attempts = append(d.attempts, ok)
		if !ok {
			d.failedAttempts++
		}
		d.mu.Unlock()
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (d *fakeDB) Query(context.Context, string, ...interface{}) (pgx.Rows, error) {
	return nil, errors.New("fakeDB: Query not supported")
}

func (d *fakeDB) QueryRow(context.Context, string, ...interface{}) pgx.Row {
	d.mu.Lock()
	defer d.mu.Unlock()
	return countRow(d.failedAttempts)
}

type countRow int

func (r countRow) Scan(dest ...interface{}) error {
	if p, ok := dest[0].(*int); ok {
		*p = int(r)
	}
	return nil
}

// --- In-memory store ---

type memStore struct {
	mu        sync.Mutex
	raffles   map[uuid.UUID]domain.Raffle
	prizes    map[uuid.UUID]domain.Prize
	tiers     map[uuid.UUID]domain.PriceTier
	tickets   []domain.Ticket
	purchases map[uuid.UUID]domain.Purchase
	accounts  map[uuid.UUID]domain.Account
	admins    map[string]domain.AdminUser
	outbox    []domain.OutboxDraft
	published int
}

func newMemStore() *memStore {
	return &memStore{
		raffles:   map[uuid.UUID]domain.Raffle{},
		prizes:    map[uuid.UUID]domain.Prize{},
		tiers:     map[uuid.UUID]domain.PriceTier{},
		purchases: map[uuid.UUID]domain.Purchase{},
		accounts:  map[uuid.UUID]domain.Account{},
		admins:    map[string]domain.AdminUser{},
	}
}

func (m *memStore) ownedNumbers(purchaseID uuid.UUID) []int {
	out := []int{}
	for _, t := range m.tickets {
		if t.PurchaseID != nil && *t.PurchaseID == purchaseID {
			out = append(out, t.Number)
		}
	}
	sort.Ints(out)
	return out
}

func (m *memStore) events(eventType domain.EventType) []domain.OutboxDraft {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.OutboxDraft
	for _, e := range m.outbox {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

func (m *memStore) ticketIDs(raffleID uuid.UUID, numbers ...int) []uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := map[int]bool{}
	for _, n := range numbers {
		want[n] = true
	}
	var out []uuid.UUID
	for _, t := range m.tickets {
		if t.RaffleID == raffleID && want[t.Number] {
			out = append(out, t.ID)
		}
	}
	return out
}

type fakeRaffles struct{ *memStore }

func (r fakeRaffles) Create(_ context.Context, _ repository.DBTX, raffle *domain.Raffle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *raffle
	cp.Prizes, cp.PriceTiers = nil, nil
	r.raffles[raffle.ID] = cp
	return nil
}

func (r fakeRaffles) FindByID(_ context.Context, _ repository.DBTX, id uuid.UUID) (*domain.Raffle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	raffle, ok := r.raffles[id]
	if !ok {
		return nil, nil
	}
	raffle.SoldTickets = 0
	for _, t := range r.tickets {
		if t.RaffleID == id && t.Status == domain.TicketSold {
			raffle.SoldTickets++
		}
	}
	return &raffle, nil
}

func (r fakeRaffles) Update(_ context.Context, _ repository.DBTX, raffle *domain.Raffle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.raffles[raffle.ID] = *raffle
	return nil
}

func (r fakeRaffles) SetActive(_ context.Context, _ repository.DBTX, id uuid.UUID, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	raffle, ok := r.raffles[id]
	if !ok {
		return domain.ErrNotFound("raffle", id.String())
	}
	raffle.IsActive = active
	r.raffles[id] = raffle
	return nil
}

func (r fakeRaffles) List(_ context.Context, _ repository.DBTX, activeOnly bool) ([]domain.Raffle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Raffle
	for _, raffle := range r.raffles {
		if activeOnly && !raffle.IsActive {
			continue
		}
		out = append(out, raffle)
	}
	return out, nil
}

type fakePrizes struct{ *memStore }

func (r fakePrizes) ListByRaffle(_ context.Context, _ repository.DBTX, raffleID uuid.UUID) ([]domain.Prize, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []domain.Prize{}
	for _, p := range r.prizes {
		if p.RaffleID == raffleID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (r fakePrizes) Create(_ context.Context, _ repository.DBTX, p *domain.Prize) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prizes[p.ID] = *p
	return nil
}

func (r fakePrizes) Update(ctx context.Context, db repository.DBTX, p *domain.Prize) error {
	return r.Create(ctx, db, p)
}

func (r fakePrizes) Delete(_ context.Context, _ repository.DBTX, _, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.prizes, id)
	return nil
}

type fakeTiers struct {
	*memStore
	used map[uuid.UUID]bool
}

func (r fakeTiers) ListByRaffle(_ context.Context, _ repository.DBTX, raffleID uuid.UUID) ([]domain.PriceTier, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []domain.PriceTier{}
	for _, t := range r.tiers {
		if t.RaffleID == raffleID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TicketCount < out[j].TicketCount })
	return out, nil
}

func (r fakeTiers) FindByID(_ context.Context, _ repository.DBTX, id uuid.UUID) (*domain.PriceTier, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tiers[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (r fakeTiers) Create(_ context.Context, _ repository.DBTX, t *domain.PriceTier) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tiers[t.ID] = *t
	return nil
}

func (r fakeTiers) Update(ctx context.Context, db repository.DBTX, t *domain.PriceTier) error {
	return r.Create(ctx, db, t)
}

func (r fakeTiers) Delete(_ context.Context, _ repository.DBTX, _, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tiers, id)
	return nil
}

func (r fakeTiers) UsedInPurchases(_ context.Context, _ repository.DBTX, id uuid.UUID) (bool, error) {
	return r.used[id], nil
}

type fakeTickets struct{ *memStore }

func (r fakeTickets) CreatePool(ctx context.Context, db repository.DBTX, raffleID uuid.UUID, maxTickets int) error {
	return r.ExtendPool(ctx, db, raffleID, maxTickets)
}

func (r fakeTickets) ExtendPool(_ context.Context, _ repository.DBTX, raffleID uuid.UUID, maxTickets int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	have := 0
	for _, t := range r.tickets {
		if t.RaffleID == raffleID {
			have++
		}
	}
	for n := have + 1; n <= maxTickets; n++ {
		r.tickets = append(r.tickets, domain.Ticket{ID: uuid.New(), RaffleID: raffleID, Number: n, Status: domain.TicketAvailable})
	}
	return nil
}

func (r fakeTickets) ListByRaffle(_ context.Context, _ repository.DBTX, raffleID uuid.UUID) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Ticket
	for _, t := range r.tickets {
		if t.RaffleID == raffleID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r fakeTickets) CountAvailable(_ context.Context, _ repository.DBTX, raffleID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, t := range r.tickets {
		if t.RaffleID == raffleID && t.Status == domain.TicketAvailable {
			n++
		}
	}
	return n, nil
}

func (r fakeTickets) NumbersByPurchase(_ context.Context, _ repository.DBTX, purchaseID uuid.UUID) ([]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ownedNumbers(purchaseID), nil
}

func (r fakeTickets) Claim(_ context.Context, _ repository.DBTX, raffleID, purchaseID uuid.UUID, ticketIDs []uuid.UUID) ([]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := make([]int, 0, len(ticketIDs))
	for _, id := range ticketIDs {
		found := -1
		for i, t := range r.tickets {
			if t.ID == id && t.RaffleID == raffleID && t.Status == domain.TicketAvailable {
				found = i
			}
		}
		if found < 0 {
			return nil, domain.ErrTicketsUnavailable()
		}
		idx = append(idx, found)
	}
	numbers := make([]int, 0, len(idx))
	for _, i := range idx {
		owner := purchaseID
		r.tickets[i].Status = domain.TicketSold
		r.tickets[i].PurchaseID = &owner
		numbers = append(numbers, r.tickets[i].Number)
	}
	sort.Ints(numbers)
	return numbers, nil
}

func (r fakeTickets) Release(_ context.Context, _ repository.DBTX, purchaseID uuid.UUID, ticketIDs []uuid.UUID) ([]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	only := map[uuid.UUID]bool{}
	for _, id := range ticketIDs {
		only[id] = true
	}
	var idx []int
	for i, t := range r.tickets {
		if t.PurchaseID == nil || *t.PurchaseID != purchaseID {
			continue
		}
		if len(only) > 0 && !only[t.ID] {
			continue
		}
		idx = append(idx, i)
	}
	if len(only) > 0 && len(idx) != len(only) {
		return nil, domain.ErrConflict("tickets are not all held by this purchase")
	}
	var out []int
	for _, i := range idx {
		r.tickets[i].Status = domain.TicketAvailable
		r.tickets[i].PurchaseID = nil
		out = append(out, r.tickets[i].Number)
	}
	sort.Ints(out)
	return out, nil
}

type fakePurchases struct{ *memStore }

func (r fakePurchases) Create(_ context.Context, _ repository.DBTX, p *domain.Purchase) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.purchases[p.ID] = *p
	return nil
}

func (r fakePurchases) FindByID(_ context.Context, _ repository.DBTX, id uuid.UUID) (*domain.Purchase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.purchases[id]
	if !ok {
		return nil, nil
	}
	p.TicketNumbers = r.ownedNumbers(id)
	return &p, nil
}

func (r fakePurchases) LockForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Purchase, error) {
	return r.FindByID(ctx, tx, id)
}

func (r fakePurchases) TransitionStatus(_ context.Context, _ repository.DBTX, id uuid.UUID, from []domain.PurchaseStatus, to domain.PurchaseStatus, paymentID *string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.purchases[id]
	if !ok {
		return false, nil
	}
	match := false
	for _, s := range from {
		if p.Status == s {
			match = true
		}
	}
	if !match {
		return false, nil
	}
	if to == domain.PurchaseConfirmed && len(r.ownedNumbers(id)) != p.TicketCount {
		return false, nil
	}
	p.Status = to
	if paymentID != nil {
		p.PaymentID = paymentID
	}
	r.purchases[id] = p
	return true, nil
}

func (r fakePurchases) SetPreference(_ context.Context, _ repository.DBTX, id uuid.UUID, preferenceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.purchases[id]
	p.PreferenceID = &preferenceID
	r.purchases[id] = p
	return nil
}

func (r fakePurchases) List(_ context.Context, _ repository.DBTX, _ repository.PurchaseFilter) ([]domain.Purchase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Purchase
	for _, p := range r.purchases {
		out = append(out, p)
	}
	return out, nil
}

func (r fakePurchases) TicketsHeldByEmail(_ context.Context, _ repository.DBTX, raffleID uuid.UUID, email string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, p := range r.purchases {
		if p.RaffleID == raffleID && strings.EqualFold(p.Email, email) && p.Status != domain.PurchaseFailed {
			n += p.TicketCount
		}
	}
	return n, nil
}

func (r fakePurchases) TicketsCommitted(_ context.Context, _ repository.DBTX, raffleID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, p := range r.purchases {
		if p.RaffleID == raffleID && p.Status != domain.PurchaseFailed {
			n += p.TicketCount
		}
	}
	return n, nil
}

type fakeAccounts struct{ *memStore }

func (r fakeAccounts) List(_ context.Context, _ repository.DBTX) ([]domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []domain.Account{}
	for _, a := range r.accounts {
		out = append(out, a)
	}
	return out, nil
}

func (r fakeAccounts) FindByID(_ context.Context, _ repository.DBTX, id uuid.UUID) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (r fakeAccounts) Create(_ context.Context, _ repository.DBTX, a *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts[a.ID] = *a
	return nil
}

func (r fakeAccounts) Update(_ context.Context, _ repository.DBTX, a *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.accounts[a.ID]; !ok {
		return domain.ErrNotFound("account", a.ID.String())
	}
	r.accounts[a.ID] = *a
	return nil
}

func (r fakeAccounts) Delete(_ context.Context, _ repository.DBTX, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.accounts, id)
	return nil
}

func (r fakeAccounts) Count(_ context.Context, _ repository.DBTX) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.accounts), nil
}

type fakeAdmins struct{ *memStore }

func (r fakeAdmins) FindByEmail(_ context.Context, _ repository.DBTX, email string) (*domain.AdminUser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.admins[strings.ToLower(email)]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (r fakeAdmins) Create(_ context.Context, _ repository.DBTX, u *domain.AdminUser) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := strings.ToLower(u.Email)
	if _, ok := r.admins[key]; ok {
		return domain.ErrConflict("admin user already exists")
	}
	r.admins[key] = *u
	return nil
}

type fakeOutbox struct{ *memStore }

func (r fakeOutbox) Insert(_ context.Context, _ repository.DBTX, draft domain.OutboxDraft) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	draft.SeqID = int64(len(r.outbox) + 1)
	r.outbox = append(r.outbox, draft)
	return nil
}

func (r fakeOutbox) ClaimBatch(_ context.Context, _ repository.DBTX, limit int) ([]domain.OutboxDraft, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	end := r.published + limit
	if end > len(r.outbox) {
		end = len(r.outbox)
	}
	batch := append([]domain.OutboxDraft(nil), r.outbox[r.published:end]...)
	r.published = end
	return batch, nil
}

func (r fakeOutbox) CountUnpublished(_ context.Context, _ repository.DBTX) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.outbox) - r.published, nil
}

// --- Fake collaborators ---

type fakeGateway struct {
	mu       sync.Mutex
	enabled  bool
	payments map[string]*domain.PaymentInfo
	err      error
	prefs    []domain.PreferenceRequest
	calls    int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{enabled: true, payments: map[string]*domain.PaymentInfo{}}
}

func (g *fakeGateway) Enabled() bool { return g.enabled }

func (g *fakeGateway) GetPayment(_ context.Context, id string) (*domain.PaymentInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	return g.payments[id], nil
}

func (g *fakeGateway) GetPreference(_ context.Context, id string) (*domain.Preference, error) {
	return &domain.Preference{ID: id}, g.err
}

func (g *fakeGateway) GetMerchantOrder(_ context.Context, id string) (*domain.MerchantOrder, error) {
	return nil, g.err
}

func (g *fakeGateway) CreatePreference(_ context.Context, req domain.PreferenceRequest) (*domain.Preference, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	g.prefs = append(g.prefs, req)
	return &domain.Preference{
		ID:                "pref-" + req.ExternalReference,
		InitPoint:         "https://mp.test/checkout/" + req.ExternalReference,
		ExternalReference: req.ExternalReference,
	}, nil
}

func (g *fakeGateway) setPayment(id, status, ref string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.payments[id] = &domain.PaymentInfo{ID: id, Status: status, ExternalReference: ref}
}

type fakePush struct {
	mu     sync.Mutex
	events []domain.PushEvent
}

func (p *fakePush) Publish(_ context.Context, evt domain.PushEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func (p *fakePush) statuses() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		out = append(out, e.Status)
	}
	return out
}

type fakeVerifier struct{ err error }

func (v fakeVerifier) SignatureRequired() bool { return true }

func (v fakeVerifier) VerifyWebhookSignature(string, string, string) error { return v.err }

type countingCache struct{ n int }

func (c *countingCache) Invalidate(context.Context) { c.n++ }

// --- Fixture ---

type fixture struct {
	db        *fakeDB
	store     *memStore
	gateway   *fakeGateway
	push      *fakePush
	cache     *countingCache
	tokens    *auth.PurchaseTokenManager
	raffles   *RaffleService
	purchases *PurchaseService
	tickets   *TicketService
	payments  *PaymentService
}

func newFixture() *fixture {
	f := &fixture{
		db:      &fakeDB{},
		store:   newMemStore(),
		gateway: newFakeGateway(),
		push:    &fakePush{},
		cache:   &countingCache{},
		tokens:  auth.NewPurchaseTokenManager("purchase-token-secret-for-tests-0123456789", time.Hour),
	}
	s := f.store
	f.raffles = NewRaffleService(f.db, fakeRaffles{s}, fakePrizes{s}, fakeTiers{memStore: s}, fakeTickets{s}, nil, noopLogger())
	f.purchases = NewPurchaseService(
		f.db, fakePurchases{s}, fakeRaffles{s}, fakePrizes{s}, fakeTiers{memStore: s}, fakeTickets{s},
		fakeAccounts{s}, fakeOutbox{s}, f.gateway, f.push, f.tokens, nil,
		PurchaseOptions{PublicBaseURL: "https://rafflio.test/"}, noopLogger(),
	)
	f.tickets = NewTicketService(
		f.db, fakePurchases{s}, fakeTickets{s}, fakeRaffles{s}, fakePrizes{s}, fakeOutbox{s},
		f.push, f.cache, nil, noopLogger(),
	)
	f.payments = NewPaymentService(
		f.gateway, nil, f.purchases, f.push,
		guard.NewCircuitBreaker(3, 0), guard.NewIdempotencyGuard(0), nil, noopLogger(),
	)
	return f
}

func (f *fixture) raffle(maxTickets int) *domain.Raffle {
	r, err := f.raffles.Create(context.Background(), CreateRaffleInput{
		Title:      "Spring raffle",
		MaxTickets: maxTickets,
		Prizes:     []PrizeInput{{Name: "Car"}, {Name: "TV"}},
		Tiers:      []TierInput{{Amount: 1000, TicketCount: 1}, {Amount: 4500, TicketCount: 5}},
	})
	if err != nil {
		panic(err)
	}
	return r
}

// purchase stores a purchase directly in the given status.
func (f *fixture) purchase(raffleID uuid.UUID, count int, status domain.PurchaseStatus) *domain.Purchase {
	p := &domain.Purchase{
		ID:            uuid.New(),
		RaffleID:      raffleID,
		FullName:      "Ana Buyer",
		Email:         "ana@example.com",
		Phone:         "1155551234",
		Amount:        int64(count) * 1000,
		TicketCount:   count,
		PaymentMethod: domain.MethodMercadoPago,
		Status:        status,
	}
	_ = fakePurchases{f.store}.Create(context.Background(), nil, p)
	return p
}
