// Package jwks resolves issuer signing keys by key id.
package jwks

import (
	"context"

	"github.com/pkg/errors"
	"github.com/zkjwt/go-zkjwt-auth/cache"
	"github.com/zkjwt/go-zkjwt-auth/constants"
	"github.com/zkjwt/go-zkjwt-auth/loaders"
	"github.com/zkjwt/go-zkjwt-auth/metrics"
	"github.com/zkjwt/go-zkjwt-auth/types"
	"go.uber.org/zap"
)

var (
	// ErrKeyNotFound is returned when the issuer key set has no key with the requested id.
	ErrKeyNotFound = errors.New("key not found")
	// ErrNetwork is returned when the issuer key set could not be fetched.
	ErrNetwork = errors.New("failed to fetch issuer key set")
	// ErrMalformedKey is returned when a key cannot be turned into an RSA modulus.
	ErrMalformedKey = errors.New("malformed issuer key")
)

const opResolve = "resolve issuer key"

// Resolver resolves issuer signing keys and caches them per key id.
// Cached keys never expire; an unknown key id triggers a refresh of the
// issuer key set.
type Resolver struct {
	loader  loaders.KeySetLoader
	cache   cache.ICache[SigningKey]
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// Option configures Resolver.
type Option func(*Resolver)

// WithCache replaces the default key cache.
func WithCache(c cache.ICache[SigningKey]) Option {
	return func(r *Resolver) {
		r.cache = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Resolver) {
		r.logger = l
	}
}

// WithMetrics records lookups.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Resolver) {
		r.metrics = m
	}
}

// NewResolver creates a resolver over loader.
func NewResolver(loader loaders.KeySetLoader, opts ...Option) *Resolver {
	r := &Resolver{
		loader: loader,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.cache == nil {
		r.cache = cache.NewInMemoryCache[SigningKey](constants.DefaultCacheMaxSize, cache.NoExpiration)
	}
	return r
}

// Resolve returns the signing key kid of issuer.
func (r *Resolver) Resolve(ctx context.Context, issuer, kid string) (*SigningKey, error) {
	host, err := loaders.IssuerHost(issuer)
	if err != nil {
		return nil, types.NewError(types.KindKeyResolution, opResolve, errors.Wrap(ErrKeyNotFound, err.Error()))
	}
	if k, ok := r.cache.Get(cacheKey(host, kid)); ok {
		r.metrics.KeyResolution("hit")
		return &k, nil
	}

	raw, err := r.loader.Load(ctx, issuer)
	if err != nil {
		r.metrics.KeyResolution("error")
		if errors.Is(err, loaders.ErrKeySetNotFound) {
			return nil, types.NewError(types.KindKeyResolution, opResolve,
				errors.Wrapf(ErrKeyNotFound, "no key set for issuer %s", issuer))
		}
		r.logger.Warn("issuer key set fetch failed", zap.String("issuer", issuer), zap.Error(err))
		return nil, types.NewRetryableError(types.KindKeyResolution, opResolve, &fetchError{err: err})
	}

	keys, bad, err := ParseKeySet(raw)
	if err != nil {
		r.metrics.KeyResolution("malformed")
		return nil, types.NewError(types.KindKeyResolution, opResolve, err)
	}
	for id, kerr := range bad {
		r.logger.Warn("skipping malformed issuer key", zap.String("issuer", issuer), zap.String("kid", id), zap.Error(kerr))
	}

	var found *SigningKey
	for i := range keys {
		r.cache.Set(cacheKey(host, keys[i].KeyID), keys[i])
		if keys[i].KeyID == kid {
			found = &keys[i]
		}
	}
	r.logger.Debug("issuer key set refreshed", zap.String("issuer", issuer), zap.Int("keys", len(keys)))

	if found != nil {
		r.metrics.KeyResolution("miss")
		return found, nil
	}
	if kerr, ok := bad[kid]; ok {
		r.metrics.KeyResolution("malformed")
		return nil, types.NewError(types.KindKeyResolution, opResolve, kerr)
	}
	r.metrics.KeyResolution("not_found")
	return nil, types.NewError(types.KindKeyResolution, opResolve,
		errors.Wrapf(ErrKeyNotFound, "kid %s of issuer %s", kid, issuer))
}

func cacheKey(host, kid string) string {
	return host + "#" + kid
}

// fetchError keeps the loader failure while matching ErrNetwork.
type fetchError struct {
	err error
}

func (e *fetchError) Error() string {
	return ErrNetwork.Error() + ": " + e.err.Error()
}

func (e *fetchError) Unwrap() error {
	return e.err
}

func (e *fetchError) Is(target error) bool {
	return target == ErrNetwork
}
