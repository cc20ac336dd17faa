package loaders

import (
	"context"
	"embed"
	"sync"

	"github.com/pkg/errors"
)

//go:embed keysets/*.json
var defaultKeySets embed.FS

// EmbeddedKeySetLoader loads key sets from a primary loader and falls back to
// the key sets shipped with the module.
type EmbeddedKeySetLoader struct {
	keySetLoader KeySetLoader
	cache        map[string][]byte
	cacheMu      *sync.RWMutex
	useCache     bool
}

// NewEmbeddedKeySetLoader creates a new loader with embedded key sets.
// By default, it uses embedded key sets with caching enabled.
//
// Example:
//
//	httpLoader := NewHTTPKeySetLoader()
//	loader := NewEmbeddedKeySetLoader(WithKeySetLoader(httpLoader))
func NewEmbeddedKeySetLoader(opts ...Option) *EmbeddedKeySetLoader {
	loader := &EmbeddedKeySetLoader{
		useCache: true,
		cache:    make(map[string][]byte),
		cacheMu:  &sync.RWMutex{},
	}
	for _, opt := range opts {
		opt(loader)
	}
	return loader
}

// Option defines functional option for configuring EmbeddedKeySetLoader
type Option func(*EmbeddedKeySetLoader)

// WithKeySetLoader sets a primary loader that is tried before the embedded key sets.
func WithKeySetLoader(loader KeySetLoader) Option {
	return func(e *EmbeddedKeySetLoader) {
		e.keySetLoader = loader
	}
}

// WithoutCache disables caching of loaded key sets. Required when the primary
// loader must be consulted on every refresh.
func WithoutCache() Option {
	return func(e *EmbeddedKeySetLoader) {
		e.useCache = false
		e.cache = nil
	}
}

// Load attempts to load key sets in the following order:
// 1. From cache if enabled and available
// 2. From the primary loader if provided
// 3. From embedded key sets
// Embedded key sets are used only when the primary loader returns ErrKeySetNotFound.
func (e *EmbeddedKeySetLoader) Load(ctx context.Context, issuer string) ([]byte, error) {
	host, err := IssuerHost(issuer)
	if err != nil {
		return nil, err
	}

	if e.useCache {
		if raw := e.getFromCache(host); raw != nil {
			return raw, nil
		}
	}

	if e.keySetLoader != nil {
		raw, err := e.keySetLoader.Load(ctx, issuer)
		if err == nil {
			e.storeInCache(host, raw)
			return raw, nil
		}
		if !errors.Is(err, ErrKeySetNotFound) {
			return nil, err
		}
	}

	raw, err := defaultKeySets.ReadFile("keysets/" + host + ".json")
	if err != nil {
		return nil, errors.Wrapf(ErrKeySetNotFound, "no embedded key set for %s", host)
	}
	e.storeInCache(host, raw)
	return raw, nil
}

func (e *EmbeddedKeySetLoader) getFromCache(host string) []byte {
	e.cacheMu.RLock()
	defer e.cacheMu.RUnlock()
	return e.cache[host]
}

func (e *EmbeddedKeySetLoader) storeInCache(host string, raw []byte) {
	if !e.useCache {
		return
	}
	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()
	e.cache[host] = raw
}
