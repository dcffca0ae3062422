package app

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/rafflio/platform/internal/auth"
	"github.com/rafflio/platform/internal/guard"
	"github.com/rafflio/platform/internal/handler"
	adminhandler "github.com/rafflio/platform/internal/handler/admin"
	"github.com/rafflio/platform/internal/infra"
	"github.com/rafflio/platform/internal/notify"
	"github.com/rafflio/platform/internal/policy"
	"github.com/rafflio/platform/internal/projection"
	"github.com/rafflio/platform/internal/provider"
	"github.com/rafflio/platform/internal/push"
	"github.com/rafflio/platform/internal/repository"
	"github.com/rafflio/platform/internal/service"
)

// RouterDeps holds all dependencies needed by NewServices and NewRouter.
// Gateway, Mailer and Events are built from Config when nil.
type RouterDeps struct {
	Config  *infra.Config
	Pool    *pgxpool.Pool
	Redis   redis.UniversalClient
	Gateway service.Gateway
	Mailer  notify.Mailer
	Events  service.EventPublisher
	Metrics *infra.Metrics
	Logger  *slog.Logger
}

// Services is the wired service graph shared by the router and the
// background workers.
type Services struct {
	JWT       *auth.JWTManager
	Tokens    *auth.PurchaseTokenManager
	Hub       *push.Hub
	Relay     *push.RedisRelay
	Raffles   *service.RaffleService
	Purchases *service.PurchaseService
	Tickets   *service.TicketService
	Payments  *service.PaymentService
	Accounts  *service.AccountService
	Auth      *service.AuthService
	Outbox    *service.OutboxDispatcher

	events service.EventPublisher
}

// Close flushes the event producer.
func (s *Services) Close() error {
	if c, ok := s.events.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// NewServices builds repositories, providers and services.
func NewServices(deps RouterDeps) *Services {
	cfg := deps.Config
	pool := deps.Pool
	logger := deps.Logger
	metrics := deps.Metrics

	// Repositories
	raffleRepo := repository.NewRaffleRepository()
	prizeRepo := repository.NewPrizeRepository()
	tierRepo := repository.NewPriceTierRepository()
	ticketRepo := repository.NewTicketRepository()
	purchaseRepo := repository.NewPurchaseRepository()
	accountRepo := repository.NewAccountRepository()
	adminRepo := repository.NewPgAdminUserRepository()
	outboxRepo := repository.NewOutboxRepository()

	// External providers
	gateway := deps.Gateway
	if gateway == nil {
		gateway = provider.NewMercadoPago(cfg.MPAccessToken, cfg.MPWebhookSecret, cfg.MPBaseURL, cfg.MPTimeout, logger)
	}
	verifier, _ := gateway.(service.WebhookVerifier)

	mailer := deps.Mailer
	if mailer == nil {
		if brevo := provider.NewBrevo(cfg.BrevoAPIKey, cfg.BrevoBaseURL, cfg.MailFromAddress, cfg.MailFromName); brevo.Enabled() {
			mailer = brevo
		} else {
			mailer = notify.LogMailer{Logger: logger}
		}
	}
	events := deps.Events
	if events == nil {
		events = infra.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaEnabled, logger)
	}

	// Push: with Redis every instance delivers through the relay.
	hub := push.NewHub(logger, metrics)
	var publisher service.PushPublisher = hub
	var relay *push.RedisRelay
	var cache projection.Store = projection.NewInMemoryStore()
	if deps.Redis != nil {
		relay = push.NewRedisRelay(deps.Redis, hub, logger)
		publisher = relay
		cache = projection.NewRedisStore(deps.Redis)
	}

	jwtMgr := auth.NewJWTManager(cfg.JWTSecret, cfg.AdminTokenExpiry())
	tokens := auth.NewPurchaseTokenManager(cfg.PurchaseTokenSecret, cfg.PurchaseTokenTTL)

	// Services
	raffleSvc := service.NewRaffleService(pool, raffleRepo, prizeRepo, tierRepo, ticketRepo, cache, logger)
	purchaseSvc := service.NewPurchaseService(
		pool, purchaseRepo, raffleRepo, prizeRepo, tierRepo, ticketRepo, accountRepo, outboxRepo,
		gateway, publisher, tokens, metrics,
		service.PurchaseOptions{
			PublicBaseURL: cfg.PublicBaseURL,
			Limits: policy.PurchaseLimitPolicy{
				MaxPerPurchase: cfg.MaxTicketsPerPurchase,
				MaxPerBuyer:    cfg.MaxTicketsPerBuyer,
			},
		},
		logger,
	)
	ticketSvc := service.NewTicketService(pool, purchaseRepo, ticketRepo, raffleRepo, prizeRepo, outboxRepo, publisher, raffleSvc, metrics, logger)
	paymentSvc := service.NewPaymentService(
		gateway, verifier, purchaseSvc, publisher,
		guard.NewCircuitBreaker(5, 30*time.Second), guard.NewIdempotencyGuard(24*time.Hour),
		metrics, logger,
	)

	return &Services{
		JWT:       jwtMgr,
		Tokens:    tokens,
		Hub:       hub,
		Relay:     relay,
		Raffles:   raffleSvc,
		Purchases: purchaseSvc,
		Tickets:   ticketSvc,
		Payments:  paymentSvc,
		Accounts:  service.NewAccountService(pool, accountRepo),
		Auth:      service.NewAuthService(pool, adminRepo, jwtMgr),
		Outbox:    service.NewOutboxDispatcher(pool, outboxRepo, events, notify.NewEmailNotifier(mailer, logger), metrics, logger),
		events:    events,
	}
}

// NewRouter assembles the chi.Router with all routes and middleware.
func NewRouter(deps RouterDeps, svc *Services) chi.Router {
	cfg := deps.Config
	logger := deps.Logger
	jwtMgr := svc.JWT

	// Handlers
	raffleHandler := handler.NewRaffleHandler(svc.Raffles)
	purchaseHandler := handler.NewPurchaseHandler(svc.Purchases, svc.Tickets)
	paymentHandler := handler.NewPaymentHandler(svc.Payments, svc.Purchases, svc.Tokens)
	webhookHandler := handler.NewWebhookHandler(svc.Payments, logger)
	accountHandler := handler.NewAccountHandler(svc.Accounts)
	authHandler := handler.NewAuthHandler(svc.Auth)

	// Admin handlers
	raffleAdmin := adminhandler.NewRaffleAdminHandler(svc.Raffles)
	purchaseAdmin := adminhandler.NewPurchaseAdminHandler(svc.Purchases, svc.Tickets)
	accountAdmin := adminhandler.NewAccountAdminHandler(svc.Accounts)
	userAdmin := adminhandler.NewUserAdminHandler(svc.Auth)
	reportsAdmin := adminhandler.NewReportsHandler(deps.Pool)

	// Rate limits
	claimLimiter := guard.NewRateLimiter(cfg.ClaimRateLimit, cfg.ClaimRateWindow)
	ipLimiter := guard.NewRateLimiter(cfg.ClaimRateLimit*6, cfg.ClaimRateWindow)
	byPurchase := func(r *http.Request) string { return chi.URLParam(r, "id") }
	purchaseOnly := auth.RequirePurchaseToken(svc.Tokens, jwtMgr, byPurchase)

	healthDeps := map[string]infra.Pinger{"postgres": deps.Pool}
	if deps.Redis != nil {
		healthDeps["redis"] = infra.RedisPinger{Client: deps.Redis}
	}

	// Router
	r := chi.NewRouter()

	// Global middleware (order matters)
	r.Use(handler.Recovery(logger))
	r.Use(handler.RequestID)
	r.Use(handler.RequestLogger(logger))
	r.Use(handler.CORSWithOrigins(cfg.AllowedOrigins()...))

	r.Get("/health", handler.HealthHandler(healthDeps))
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics.Handler())
	}
	r.With(auth.RequireStreamToken(svc.Tokens, jwtMgr, byPurchase)).Get("/ws/purchases/{id}", push.ServeWS(svc.Hub, logger))

	r.Route("/api", func(r chi.Router) {
		r.Use(handler.JSONContentType)

		// MercadoPago retries until it gets a 2xx, so no rate limit here.
		r.Post("/payment/webhook", webhookHandler.HandleMercadoPago)

		r.Route("/raffles", func(r chi.Router) {
			r.Get("/", raffleHandler.List)
			r.Get("/{id}", raffleHandler.Get)
			r.Get("/{id}/tickets", raffleHandler.Tickets)
			r.Get("/{id}/quote", raffleHandler.Quote)
		})

		r.Route("/purchases", func(r chi.Router) {
			r.With(handler.RateLimit(ipLimiter, handler.ClientIP), auth.OptionalAdmin(jwtMgr)).Post("/", purchaseHandler.Create)

			r.Group(func(r chi.Router) {
				r.Use(purchaseOnly)
				r.Get("/{id}", purchaseHandler.Get)
				r.Post("/{id}/status", purchaseHandler.UpdateStatus)
				r.With(handler.RateLimit(claimLimiter, byPurchase)).Post("/{id}/tickets", purchaseHandler.ClaimTickets)
			})
		})

		r.Route("/payment", func(r chi.Router) {
			r.Use(handler.RateLimit(ipLimiter, handler.ClientIP))
			r.Get("/payments/{id}", paymentHandler.GetPayment)
			r.Get("/preferences/{id}", paymentHandler.GetPreference)
			r.Get("/merchant-orders/{id}", paymentHandler.GetMerchantOrder)
			r.Post("/create-preference", paymentHandler.CreatePreference)
		})

		r.Get("/accounts", accountHandler.List)

		r.With(handler.RateLimit(ipLimiter, handler.ClientIP)).Post("/auth/login", authHandler.Login)

		// Admin-authenticated routes
		r.Route("/admin", func(r chi.Router) {
			r.Use(auth.AuthenticateAdmin(jwtMgr))
			r.Use(auth.RequireRole(auth.AllAdminRoles()...))
			writers := auth.RequireRole(auth.WriteRoles()...)

			r.Route("/raffles", func(r chi.Router) {
				r.Get("/", raffleAdmin.List)
				r.Group(func(r chi.Router) {
					r.Use(writers)
					r.Post("/", raffleAdmin.Create)
					r.Patch("/{id}", raffleAdmin.Update)
					r.Post("/{id}/activate", raffleAdmin.Activate)
					r.Post("/{id}/deactivate", raffleAdmin.Deactivate)
					r.Post("/{id}/prizes", raffleAdmin.AddPrize)
					r.Put("/{id}/prizes/{prizeID}", raffleAdmin.UpdatePrize)
					r.Delete("/{id}/prizes/{prizeID}", raffleAdmin.DeletePrize)
					r.Post("/{id}/tiers", raffleAdmin.AddTier)
					r.Put("/{id}/tiers/{tierID}", raffleAdmin.UpdateTier)
					r.Delete("/{id}/tiers/{tierID}", raffleAdmin.DeleteTier)
				})
			})

			r.Route("/purchases", func(r chi.Router) {
				r.Get("/", purchaseAdmin.List)
				r.Get("/{id}", purchaseAdmin.Get)
				r.Group(func(r chi.Router) {
					r.Use(writers)
					r.Post("/", purchaseAdmin.Create)
					r.Post("/{id}/status", purchaseAdmin.SetStatus)
					r.Post("/{id}/release", purchaseAdmin.Release)
				})
			})

			r.Route("/accounts", func(r chi.Router) {
				r.Use(writers)
				r.Post("/", accountAdmin.Create)
				r.Put("/{id}", accountAdmin.Update)
				r.Delete("/{id}", accountAdmin.Delete)
			})

			r.With(auth.RequireRole(auth.RoleSuperAdmin)).Post("/users", userAdmin.Create)

			r.Route("/reports", func(r chi.Router) {
				r.Get("/dashboard", reportsAdmin.GetDashboardStats)
				r.Get("/sales", reportsAdmin.GetSalesReport)
			})
		})
	})

	return r
}
