package di

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/go-chi/chi/v5"
	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/scentora/storefront/internal/handlers"
	"github.com/scentora/storefront/internal/payments"
	"github.com/scentora/storefront/internal/platform/auth"
	"github.com/scentora/storefront/internal/platform/config"
	pfirestore "github.com/scentora/storefront/internal/platform/firestore"
	"github.com/scentora/storefront/internal/platform/idempotency"
	"github.com/scentora/storefront/internal/platform/jobs"
	"github.com/scentora/storefront/internal/platform/observability"
	"github.com/scentora/storefront/internal/platform/requestctx"
	"github.com/scentora/storefront/internal/repositories"
	firestoreRepo "github.com/scentora/storefront/internal/repositories/firestore"
	"github.com/scentora/storefront/internal/services"
)

// Services bundles the service contracts handlers depend on.
type Services struct {
	Checkout services.CheckoutService
	Orders   services.OrderService
	Wallets  services.WalletService
	System   services.SystemService
}

// Container owns every long-lived client the API needs.
type Container struct {
	Config      config.Config
	Services    Services
	Idempotency idempotency.Store
	Router      http.Handler

	logger    *zap.Logger
	firestore *pfirestore.Provider
	pubsub    *pubsub.Client
	topic     *pubsub.Topic
	redis     *redis.Client
}

// Options carries values decided by the binary rather than configuration.
type Options struct {
	Logger   *zap.Logger
	Build    services.BuildInfo
	Verifier interface {
		auth.TokenVerifier
		auth.UserGetter
	}
	Clock func() time.Time
}

// NewContainer wires repositories, services and HTTP handlers. On error every client opened
// so far is closed.
func NewContainer(ctx context.Context, cfg config.Config, opts Options) (c *Container, err error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	c = &Container{Config: cfg, logger: opts.Logger}
	opened := c
	defer func() {
		if err != nil {
			_ = opened.Close(context.Background())
		}
	}()

	c.firestore = pfirestore.NewProvider(cfg.Firestore)
	if _, err := c.firestore.Client(ctx); err != nil {
		return nil, fmt.Errorf("firestore: %w", err)
	}

	if err := c.openPubSub(ctx); err != nil {
		return nil, err
	}
	if err := c.openIdempotency(); err != nil {
		return nil, err
	}

	repos, err := newFirestoreRepositories(c.firestore)
	if err != nil {
		return nil, err
	}
	gateway, err := newPaymentManager(cfg.Payments, opts.Logger)
	if err != nil {
		return nil, err
	}
	if err := c.buildServices(repos, gateway, opts); err != nil {
		return nil, err
	}

	var authn *auth.Authenticator
	if opts.Verifier != nil {
		authn = auth.NewAuthenticator(opts.Verifier,
			auth.WithUserGetter(opts.Verifier),
			auth.WithAdminRoles(cfg.Security.AdminRoles...),
		)
	}
	c.Router = c.buildRouter(authn, opts)
	return c, nil
}

type firestoreRepositories struct {
	orders     *firestoreRepo.OrderRepository
	wallets    *firestoreRepo.WalletRepository
	coupons    *firestoreRepo.CouponRepository
	products   *firestoreRepo.ProductRepository
	carts      *firestoreRepo.CartRepository
	addresses  *firestoreRepo.AddressRepository
	placements *firestoreRepo.PlacementRepository
	sequences  *firestoreRepo.OrderSequenceRepository
	sessions   *firestoreRepo.PaymentSessionRepository
}

func newFirestoreRepositories(provider *pfirestore.Provider) (firestoreRepositories, error) {
	var (
		r   firestoreRepositories
		err error
	)
	if r.orders, err = firestoreRepo.NewOrderRepository(provider); err != nil {
		return r, fmt.Errorf("order repository: %w", err)
	}
	if r.wallets, err = firestoreRepo.NewWalletRepository(provider); err != nil {
		return r, fmt.Errorf("wallet repository: %w", err)
	}
	if r.coupons, err = firestoreRepo.NewCouponRepository(provider); err != nil {
		return r, fmt.Errorf("coupon repository: %w", err)
	}
	if r.products, err = firestoreRepo.NewProductRepository(provider); err != nil {
		return r, fmt.Errorf("product repository: %w", err)
	}
	if r.carts, err = firestoreRepo.NewCartRepository(provider); err != nil {
		return r, fmt.Errorf("cart repository: %w", err)
	}
	if r.addresses, err = firestoreRepo.NewAddressRepository(provider); err != nil {
		return r, fmt.Errorf("address repository: %w", err)
	}
	if r.placements, err = firestoreRepo.NewPlacementRepository(provider); err != nil {
		return r, fmt.Errorf("placement repository: %w", err)
	}
	if r.sequences, err = firestoreRepo.NewOrderSequenceRepository(provider); err != nil {
		return r, fmt.Errorf("order sequence repository: %w", err)
	}
	if r.sessions, err = firestoreRepo.NewPaymentSessionRepository(provider); err != nil {
		return r, fmt.Errorf("payment session repository: %w", err)
	}
	return r, nil
}

func newPaymentManager(cfg config.PaymentsConfig, logger *zap.Logger) (*payments.Manager, error) {
	providers := make(map[string]payments.Provider, 2)
	if cfg.RazorpayKeyID != "" && cfg.RazorpaySecret != "" {
		rzp, err := payments.NewRazorpayProvider(payments.RazorpayProviderConfig{
			KeyID:     cfg.RazorpayKeyID,
			KeySecret: cfg.RazorpaySecret,
			BaseURL:   cfg.RazorpayBaseURL,
			Logger:    payments.RazorpayLogger(eventLogger(logger, "razorpay")),
		})
		if err != nil {
			return nil, fmt.Errorf("razorpay provider: %w", err)
		}
		providers["razorpay"] = rzp
	}
	if cfg.StripeAPIKey != "" {
		stripeProvider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
			APIKey: cfg.StripeAPIKey,
			Logger: payments.StripeLogger(eventLogger(logger, "stripe")),
		})
		if err != nil {
			return nil, fmt.Errorf("stripe provider: %w", err)
		}
		providers["stripe"] = stripeProvider
	}
	return payments.NewManager(providers, payments.WithDefaultProvider(cfg.DefaultProvider))
}

func (c *Container) openPubSub(ctx context.Context) error {
	cfg := c.Config.PubSub
	if cfg.OrderEventsTopic == "" || cfg.ProjectID == "" {
		return nil
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}
	c.pubsub = client
	c.topic = client.Topic(cfg.OrderEventsTopic)
	c.topic.EnableMessageOrdering = true
	return nil
}

func (c *Container) openIdempotency() error {
	switch c.Config.Idempotency.Store {
	case "memory":
		c.Idempotency = idempotency.NewMemoryStore()
	case "redis":
		c.redis = redis.NewClient(&redis.Options{
			Addr:     c.Config.Redis.Addr,
			Password: c.Config.Redis.Password,
			DB:       c.Config.Redis.DB,
		})
		c.Idempotency = idempotency.NewRedisStore(c.redis, "")
	default:
		c.Idempotency = idempotency.NewFirestoreStore(c.firestore, "")
	}
	return nil
}

func (c *Container) buildServices(repos firestoreRepositories, gateway *payments.Manager, opts Options) error {
	logger := opts.Logger
	cfg := c.Config

	var events services.OrderEventPublisher
	if c.topic != nil {
		publisher, err := jobs.NewPubSubOrderEventPublisher(c.topic)
		if err != nil {
			return err
		}
		events = publisher
	}

	inventory, err := services.NewInventoryLedger(services.InventoryLedgerDeps{
		Products: repos.products,
		Logger:   eventLogger(logger, "inventory"),
	})
	if err != nil {
		return fmt.Errorf("inventory ledger: %w", err)
	}
	coupons, err := services.NewCouponEvaluator(services.CouponEvaluatorDeps{
		Coupons: repos.coupons,
		Clock:   opts.Clock,
	})
	if err != nil {
		return fmt.Errorf("coupon evaluator: %w", err)
	}
	tracking := services.TrackingPolicy{
		DeliveryEstimate: cfg.Orders.DeliveryEstimate,
		TransitLocation:  cfg.Orders.TransitLocation,
	}

	c.Services.Checkout, err = services.NewCheckoutService(services.CheckoutServiceDeps{
		Carts:       repos.carts,
		Addresses:   repos.addresses,
		Products:    repos.products,
		Placements:  repos.placements,
		Sequences:   repos.sequences,
		Inventory:   inventory,
		Coupons:     coupons,
		Payments:    gateway,
		Sessions:    repos.sessions,
		Events:      events,
		Currency:    cfg.Payments.Currency,
		Tracking:    tracking,
		Clock:       opts.Clock,
		IDGenerator: func() string { return ulid.Make().String() },
		Logger:      eventLogger(logger, "checkout"),
	})
	if err != nil {
		return fmt.Errorf("checkout service: %w", err)
	}

	revocation := services.DefaultCouponRevocationPolicy()
	revocation.OrderCancel = cfg.Orders.RevokeCouponOnFullCancel
	c.Services.Orders, err = services.NewOrderService(services.OrderServiceDeps{
		Orders:       repos.orders,
		Coupons:      repos.coupons,
		Inventory:    inventory,
		Events:       events,
		Clock:        opts.Clock,
		Logger:       eventLogger(logger, "orders"),
		Revocation:   &revocation,
		Tracking:     tracking,
		ReturnWindow: cfg.Orders.ReturnWindow,
		Sanitizer:    bluemonday.StrictPolicy(),
	})
	if err != nil {
		return fmt.Errorf("order service: %w", err)
	}

	c.Services.Wallets, err = services.NewWalletService(services.WalletServiceDeps{
		Wallets: repos.wallets,
		Logger:  eventLogger(logger, "wallet"),
	})
	if err != nil {
		return fmt.Errorf("wallet service: %w", err)
	}

	health, err := repositories.NewDependencyHealthRepository(c.dependencyChecks(), opts.Clock)
	if err != nil {
		return fmt.Errorf("health repository: %w", err)
	}
	c.Services.System, err = services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: health,
		Critical:         []string{"firestore"},
		Clock:            opts.Clock,
		Build:            opts.Build,
	})
	if err != nil {
		return fmt.Errorf("system service: %w", err)
	}
	return nil
}

func (c *Container) dependencyChecks() []repositories.DependencyCheck {
	checks := []repositories.DependencyCheck{{
		Name:    "firestore",
		Timeout: 1500 * time.Millisecond,
		Check: func(ctx context.Context) error {
			coll, err := c.firestore.Collection(ctx, "orders")
			if err != nil {
				return err
			}
			_, err = coll.Limit(1).Documents(ctx).GetAll()
			return err
		},
	}}
	if c.redis != nil {
		checks = append(checks, repositories.DependencyCheck{
			Name:    "redis",
			Timeout: 500 * time.Millisecond,
			Check: func(ctx context.Context) error {
				return c.redis.Ping(ctx).Err()
			},
		})
	}
	if c.topic != nil {
		checks = append(checks, repositories.DependencyCheck{
			Name:    "pubsub",
			Timeout: time.Second,
			Check: func(ctx context.Context) error {
				ok, err := c.topic.Exists(ctx)
				if err != nil {
					return err
				}
				if !ok {
					return errors.New("order events topic does not exist")
				}
				return nil
			},
		})
	}
	return checks
}

func (c *Container) buildRouter(authn *auth.Authenticator, opts Options) http.Handler {
	projectID := c.Config.Firestore.ProjectID
	replaySafe := idempotency.Middleware(c.Idempotency,
		idempotency.WithTTL(c.Config.Idempotency.TTL),
		idempotency.WithClock(opts.Clock),
	)
	checkoutReplaySafe := idempotency.Middleware(c.Idempotency,
		idempotency.WithTTL(c.Config.Idempotency.TTL),
		idempotency.WithClock(opts.Clock),
		idempotency.WithRequiredKey(c.Config.Security.Environment != "local"),
	)

	// Authentication runs at the group level so idempotency keys are scoped to the verified caller.
	var customer, admin func(http.Handler) http.Handler
	if authn != nil {
		customer = authn.RequireFirebaseAuth()
		admin = authn.RequireFirebaseAuth(auth.RoleAdmin)
	}

	adminOrders := handlers.NewAdminOrderHandlers(nil, c.Services.Orders)
	adminWallets := handlers.NewAdminWalletHandlers(nil, c.Services.Wallets)

	return handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.Trace(projectID),
			observability.AccessLog(c.logger.Named("http")),
			observability.Recover,
		),
		handlers.WithHealthHandlers(handlers.NewHealthHandlers(
			handlers.WithHealthBuildInfo(opts.Build),
			handlers.WithHealthSystemService(c.Services.System),
			handlers.WithHealthClock(opts.Clock),
		)),
		handlers.WithCheckoutRoutes(handlers.NewCheckoutHandlers(nil, c.Services.Checkout).Routes, customer, checkoutReplaySafe),
		handlers.WithOrderRoutes(handlers.NewOrderHandlers(nil, c.Services.Orders).Routes, customer, replaySafe),
		handlers.WithWalletRoutes(handlers.NewWalletHandlers(nil, c.Services.Wallets).Routes, customer),
		handlers.WithAdminRoutes(func(r chi.Router) {
			adminOrders.Routes(r)
			adminWallets.Routes(r)
		}, admin, replaySafe),
	)
}

// SweepIdempotency removes expired keys when the store needs it. Redis expires keys itself.
func (c *Container) SweepIdempotency(ctx context.Context, now time.Time) (int, error) {
	sweeper, ok := c.Idempotency.(idempotency.Sweeper)
	if !ok {
		return 0, nil
	}
	return sweeper.Sweep(ctx, now, c.Config.Idempotency.CleanupBatchSize)
}

// Close stops publishers and closes clients in reverse order of creation.
func (c *Container) Close(ctx context.Context) error {
	var errs []error
	if c.redis != nil {
		errs = append(errs, c.redis.Close())
	}
	if c.topic != nil {
		c.topic.Stop()
	}
	if c.pubsub != nil {
		errs = append(errs, c.pubsub.Close())
	}
	if c.firestore != nil {
		errs = append(errs, c.firestore.Close(ctx))
	}
	return errors.Join(errs...)
}

// eventLogger adapts zap to the event-style logger used by services and payment providers.
// The request logger is preferred when one is on the context.
func eventLogger(base *zap.Logger, component string) func(ctx context.Context, event string, fields map[string]any) {
	return func(ctx context.Context, event string, fields map[string]any) {
		logger := base
		if reqLogger := requestctx.Logger(ctx); reqLogger.Core().Enabled(zap.InfoLevel) {
			logger = reqLogger
		}
		zf := make([]zap.Field, 0, len(fields)+1)
		zf = append(zf, zap.String("component", component))
		for k, v := range fields {
			zf = append(zf, zap.Any(k, v))
		}
		logger.Info(event, zf...)
	}
}
