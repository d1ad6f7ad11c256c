package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultEnvFile             = ".env"
	defaultPort                = "8080"
	defaultReadTimeout         = 15 * time.Second
	defaultWriteTimeout        = 30 * time.Second
	defaultIdleTimeout         = 120 * time.Second
	defaultEnvironment         = "local"
	defaultLogLevel            = "info"
	defaultCurrency            = "INR"
	defaultPaymentProvider     = "razorpay"
	defaultRazorpayBaseURL     = "https://api.razorpay.com/v1"
	defaultOrderEventsTopic    = "order-events"
	defaultIdempotencyStore    = "firestore"
	defaultIdempotencyTTL      = 24 * time.Hour
	defaultIdempotencyInterval = time.Hour
	defaultIdempotencyBatch    = 200
	defaultReturnWindow        = 7 * 24 * time.Hour
	defaultDeliveryEstimate    = 7 * 24 * time.Hour
	defaultTransitLocation     = "In transit"
	defaultTxAttempts          = 5
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server      ServerConfig
	Firebase    FirebaseConfig
	Firestore   FirestoreConfig
	Payments    PaymentsConfig
	PubSub      PubSubConfig
	Idempotency IdempotencyConfig
	Redis       RedisConfig
	Orders      OrdersConfig
	Security    SecurityConfig
	Logging     LoggingConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// FirebaseConfig stores Firebase project settings.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
	TxAttempts   int
}

// PaymentsConfig holds gateway credentials. Secret values may be secret:// references.
type PaymentsConfig struct {
	DefaultProvider string
	Currency        string
	RazorpayKeyID   string
	RazorpaySecret  string
	RazorpayBaseURL string
	StripeAPIKey    string
}

// PubSubConfig configures order event publishing. An empty topic disables publishing.
type PubSubConfig struct {
	ProjectID        string
	OrderEventsTopic string
}

// IdempotencyConfig controls idempotency middleware behaviour.
type IdempotencyConfig struct {
	Store            string
	TTL              time.Duration
	CleanupInterval  time.Duration
	CleanupBatchSize int
}

// RedisConfig is only consulted when Idempotency.Store is "redis".
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// OrdersConfig tunes order lifecycle rules.
type OrdersConfig struct {
	ReturnWindow             time.Duration
	DeliveryEstimate         time.Duration
	TransitLocation          string
	RevokeCouponOnFullCancel bool
}

// SecurityConfig groups environment level settings.
type SecurityConfig struct {
	Environment string
	AdminRoles  []string
}

// LoggingConfig selects the minimum log level.
type LoggingConfig struct {
	Level string
}

// SecretResolver resolves secret:// references (for example through Secret Manager).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	return append([]string(nil), e.fields...)
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

func (e *SecretError) Unwrap() error { return e.Err }

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
	secret       SecretResolver
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects explicit values that take precedence over the process environment.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets the resolver used for secret:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// EnvironmentValues returns the merged environment (.env < process env < explicit map) so that
// bootstrap code can build dependencies, such as the secret fetcher, before calling Load.
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	options := newLoaderOptions(opts)
	dotEnv, err := readDotEnv(options.envFile)
	if err != nil {
		return nil, err
	}
	values := make(map[string]string, len(dotEnv))
	for k, v := range dotEnv {
		values[k] = v
	}
	if options.useSystemEnv {
		for _, entry := range os.Environ() {
			key, value, ok := strings.Cut(entry, "=")
			if ok && strings.TrimSpace(key) != "" {
				values[key] = value
			}
		}
	}
	for k, v := range options.envMap {
		values[k] = v
	}
	return values, nil
}

func newLoaderOptions(opts []Option) loaderOptions {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	return options
}

// Load assembles configuration from defaults, the .env file, the environment and secret references.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := newLoaderOptions(opts)

	dotEnv, err := readDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	env := envLookup(func(key string) (string, bool) {
		if value, ok := options.envMap[key]; ok {
			return value, true
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		value, ok := dotEnv[key]
		return value, ok
	})

	cfg := Config{
		Server: ServerConfig{
			Port:         env.str("STORE_SERVER_PORT", defaultPort),
			ReadTimeout:  env.duration("STORE_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: env.duration("STORE_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  env.duration("STORE_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Firebase: FirebaseConfig{
			ProjectID:       env.str("STORE_FIREBASE_PROJECT_ID", ""),
			CredentialsFile: env.str("STORE_FIREBASE_CREDENTIALS_FILE", ""),
		},
		Firestore: FirestoreConfig{
			ProjectID:    env.str("STORE_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: env.str("STORE_FIRESTORE_EMULATOR_HOST", ""),
			TxAttempts:   env.integer("STORE_FIRESTORE_TX_ATTEMPTS", defaultTxAttempts),
		},
		Payments: PaymentsConfig{
			DefaultProvider: strings.ToLower(env.str("STORE_PAYMENTS_DEFAULT_PROVIDER", defaultPaymentProvider)),
			Currency:        strings.ToUpper(env.str("STORE_PAYMENTS_CURRENCY", defaultCurrency)),
			RazorpayKeyID:   env.str("STORE_PAYMENTS_RAZORPAY_KEY_ID", ""),
			RazorpaySecret:  env.str("STORE_PAYMENTS_RAZORPAY_SECRET", ""),
			RazorpayBaseURL: env.str("STORE_PAYMENTS_RAZORPAY_BASE_URL", defaultRazorpayBaseURL),
			StripeAPIKey:    env.str("STORE_PAYMENTS_STRIPE_API_KEY", ""),
		},
		PubSub: PubSubConfig{
			ProjectID:        env.str("STORE_PUBSUB_PROJECT_ID", ""),
			OrderEventsTopic: env.str("STORE_PUBSUB_ORDER_EVENTS_TOPIC", defaultOrderEventsTopic),
		},
		Idempotency: IdempotencyConfig{
			Store:            strings.ToLower(env.str("STORE_IDEMPOTENCY_STORE", defaultIdempotencyStore)),
			TTL:              env.duration("STORE_IDEMPOTENCY_TTL", defaultIdempotencyTTL),
			CleanupInterval:  env.duration("STORE_IDEMPOTENCY_CLEANUP_INTERVAL", defaultIdempotencyInterval),
			CleanupBatchSize: env.integer("STORE_IDEMPOTENCY_CLEANUP_BATCH", defaultIdempotencyBatch),
		},
		Redis: RedisConfig{
			Addr:     env.str("STORE_REDIS_ADDR", ""),
			Password: env.str("STORE_REDIS_PASSWORD", ""),
			DB:       env.integer("STORE_REDIS_DB", 0),
		},
		Orders: OrdersConfig{
			ReturnWindow:             env.duration("STORE_ORDERS_RETURN_WINDOW", defaultReturnWindow),
			DeliveryEstimate:         env.duration("STORE_ORDERS_DELIVERY_ESTIMATE", defaultDeliveryEstimate),
			TransitLocation:          env.str("STORE_ORDERS_TRANSIT_LOCATION", defaultTransitLocation),
			RevokeCouponOnFullCancel: env.boolean("STORE_ORDERS_REVOKE_COUPON_ON_FULL_CANCEL", false),
		},
		Security: SecurityConfig{
			Environment: strings.ToLower(env.str("STORE_ENVIRONMENT", defaultEnvironment)),
			AdminRoles:  env.csv("STORE_SECURITY_ADMIN_ROLES"),
		},
		Logging: LoggingConfig{
			Level: strings.ToLower(env.str("STORE_LOG_LEVEL", defaultLogLevel)),
		},
	}

	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.Firebase.ProjectID
	}
	if cfg.PubSub.ProjectID == "" {
		cfg.PubSub.ProjectID = cfg.Firestore.ProjectID
	}

	for _, field := range []*string{
		&cfg.Payments.RazorpaySecret,
		&cfg.Payments.StripeAPIKey,
		&cfg.Redis.Password,
	} {
		resolved, err := resolveSecret(ctx, *field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*field = resolved
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	var missing []string
	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	if cfg.Firebase.ProjectID == "" {
		missing = append(missing, "Firebase.ProjectID")
	}
	if cfg.Firestore.ProjectID == "" {
		missing = append(missing, "Firestore.ProjectID")
	}
	switch cfg.Payments.DefaultProvider {
	case "razorpay":
		if cfg.Payments.RazorpayKeyID == "" || cfg.Payments.RazorpaySecret == "" {
			missing = append(missing, "Payments.Razorpay")
		}
	case "stripe":
		if cfg.Payments.StripeAPIKey == "" {
			missing = append(missing, "Payments.StripeAPIKey")
		}
	default:
		missing = append(missing, "Payments.DefaultProvider")
	}
	switch cfg.Idempotency.Store {
	case "memory", "firestore":
	case "redis":
		if cfg.Redis.Addr == "" {
			missing = append(missing, "Redis.Addr")
		}
	default:
		missing = append(missing, "Idempotency.Store")
	}
	if cfg.Idempotency.TTL <= 0 {
		missing = append(missing, "Idempotency.TTL")
	}
	if cfg.Orders.ReturnWindow <= 0 {
		missing = append(missing, "Orders.ReturnWindow")
	}
	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	trimmed := strings.TrimSpace(value)
	if !strings.HasPrefix(trimmed, "secret://") && !strings.HasPrefix(trimmed, "sm://") {
		return value, nil
	}
	ref := "secret://" + strings.TrimPrefix(strings.TrimPrefix(trimmed, "secret://"), "sm://")
	if resolver == nil {
		return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, ref)
	if err != nil {
		return "", &SecretError{Ref: ref, Err: err}
	}
	return secret, nil
}

func readDotEnv(path string) (map[string]string, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	values, err := godotenv.Read(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return values, nil
}

type envLookup func(key string) (string, bool)

func (l envLookup) str(key, fallback string) string {
	if value, ok := l(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func (l envLookup) duration(key string, fallback time.Duration) time.Duration {
	if value, ok := l(key); ok && value != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return d
		}
	}
	return fallback
}

func (l envLookup) integer(key string, fallback int) int {
	if value, ok := l(key); ok && value != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return fallback
}

func (l envLookup) boolean(key string, fallback bool) bool {
	if value, ok := l(key); ok {
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return fallback
}

func (l envLookup) csv(key string) []string {
	raw, ok := l(key)
	if !ok {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
