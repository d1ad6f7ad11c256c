// Package secrets resolves secret:// configuration references against Google Secret Manager.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const defaultCacheTTL = 10 * time.Minute

// ErrNotFound is returned when neither Secret Manager nor the local file knows the secret.
var ErrNotFound = errors.New("secrets: secret not found")

type accessor interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// Resolver fetches and caches secret values. References look like
// secret://razorpay-key-secret or secret://razorpay-key-secret?version=3&project=other.
type Resolver struct {
	client    accessor
	ownClient bool
	projectID string
	ttl       time.Duration
	local     map[string]string
	logger    *zap.Logger
	now       func() time.Time
	lookups   metric.Int64Counter

	mu    sync.Mutex
	cache map[string]cached
}

type cached struct {
	value   string
	expires time.Time
}

type options struct {
	client     accessor
	clientOpts []option.ClientOption
	localFile  string
	ttl        time.Duration
	logger     *zap.Logger
	meter      metric.Meter
	now        func() time.Time
}

// Option customises a Resolver.
type Option func(*options)

// WithClientOptions are passed to the Secret Manager client.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(o *options) { o.clientOpts = append(o.clientOpts, opts...) }
}

// WithLocalFile reads NAME=value pairs used when Secret Manager is unreachable or not configured.
// Only intended for local development.
func WithLocalFile(path string) Option {
	return func(o *options) { o.localFile = path }
}

func WithCacheTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func WithMeter(meter metric.Meter) Option {
	return func(o *options) { o.meter = meter }
}

func withAccessor(client accessor) Option {
	return func(o *options) { o.client = client }
}

func withClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// NewResolver builds a resolver for projectID. When the Secret Manager client cannot be
// created the resolver still works from the local file.
func NewResolver(ctx context.Context, projectID string, opts ...Option) (*Resolver, error) {
	o := options{ttl: defaultCacheTTL, logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.meter == nil {
		o.meter = otel.GetMeterProvider().Meter("github.com/scentora/storefront/internal/platform/secrets")
	}

	r := &Resolver{
		client:    o.client,
		projectID: strings.TrimSpace(projectID),
		ttl:       o.ttl,
		logger:    o.logger,
		now:       o.now,
		cache:     make(map[string]cached),
	}

	lookups, err := o.meter.Int64Counter("secrets.lookups", metric.WithDescription("Secret resolutions by source"))
	if err != nil {
		r.logger.Warn("secrets: lookup counter unavailable", zap.Error(err))
	}
	r.lookups = lookups

	if path := strings.TrimSpace(o.localFile); path != "" {
		values, err := godotenv.Read(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("secrets: read %s: %w", path, err)
		default:
			r.local = values
		}
	}

	if r.client == nil && r.projectID != "" {
		client, err := secretmanager.NewClient(ctx, o.clientOpts...)
		if err != nil {
			r.logger.Warn("secrets: secret manager unavailable, using local values only", zap.Error(err))
		} else {
			r.client = client
			r.ownClient = true
		}
	}
	return r, nil
}

// Close releases the Secret Manager client if the resolver created it.
func (r *Resolver) Close() error {
	if r.ownClient && r.client != nil {
		return r.client.Close()
	}
	return nil
}

// ResolveSecret returns the value for ref, serving from cache while fresh.
func (r *Resolver) ResolveSecret(ctx context.Context, ref string) (string, error) {
	name, version, project, err := parseRef(ref)
	if err != nil {
		return "", err
	}
	if project == "" {
		project = r.projectID
	}
	resource := fmt.Sprintf("projects/%s/secrets/%s/versions/%s", project, name, version)

	r.mu.Lock()
	if entry, ok := r.cache[resource]; ok && r.now().Before(entry.expires) {
		r.mu.Unlock()
		r.count(ctx, "cache")
		return entry.value, nil
	}
	r.mu.Unlock()

	if r.client != nil && project != "" {
		resp, err := r.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: resource})
		switch {
		case err == nil:
			value := string(resp.GetPayload().GetData())
			r.store(resource, value)
			r.count(ctx, "remote")
			return value, nil
		case !recoverable(err):
			return "", fmt.Errorf("secrets: access %s: %w", resource, err)
		default:
			r.logger.Warn("secrets: secret manager failed, trying local value", zap.String("secret", name), zap.Error(err))
		}
	}

	if value, ok := r.local[name]; ok {
		r.store(resource, value)
		r.count(ctx, "local")
		return value, nil
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, name)
}

// Invalidate forgets every cached version of the named secret.
func (r *Resolver) Invalidate(ref string) {
	name, _, _, err := parseRef(ref)
	if err != nil {
		return
	}
	marker := "/secrets/" + name + "/versions/"
	r.mu.Lock()
	defer r.mu.Unlock()
	for key := range r.cache {
		if strings.Contains(key, marker) {
			delete(r.cache, key)
		}
	}
}

func (r *Resolver) store(resource, value string) {
	r.mu.Lock()
	r.cache[resource] = cached{value: value, expires: r.now().Add(r.ttl)}
	r.mu.Unlock()
}

func (r *Resolver) count(ctx context.Context, source string) {
	if r.lookups != nil {
		r.lookups.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
	}
}

func parseRef(ref string) (name, version, project string, err error) {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", "", "", fmt.Errorf("secrets: invalid reference %q: %w", ref, err)
	}
	if u.Scheme != "secret" {
		return "", "", "", fmt.Errorf("secrets: unsupported scheme %q", u.Scheme)
	}
	name = strings.Trim(u.Host+u.Path, "/")
	if name == "" || strings.Contains(name, "/") {
		return "", "", "", fmt.Errorf("secrets: invalid secret name in %q", ref)
	}
	q := u.Query()
	version = strings.TrimSpace(q.Get("version"))
	if version == "" {
		version = "latest"
	}
	return name, version, strings.TrimSpace(q.Get("project")), nil
}

// recoverable reports errors where a local value is an acceptable substitute.
func recoverable(err error) bool {
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated, codes.Unavailable, codes.DeadlineExceeded, codes.NotFound:
		return true
	}
	return false
}
