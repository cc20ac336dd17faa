package loaders

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/pkg/errors"
	"github.com/zkjwt/go-zkjwt-auth/constants"
)

const maxKeySetSize = 1 << 20

// HTTPKeySetLoader fetches key sets over HTTP. Issuers listed in WellKnown
// skip OIDC discovery.
type HTTPKeySetLoader struct {
	client    *http.Client
	wellKnown map[string]string
}

// HTTPOption configures HTTPKeySetLoader.
type HTTPOption func(*HTTPKeySetLoader)

// WithHTTPClient sets the client used for discovery and key set requests.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(l *HTTPKeySetLoader) {
		l.client = c
	}
}

// WithJWKSURL pins the key set URL of an issuer.
func WithJWKSURL(issuer, jwksURL string) HTTPOption {
	return func(l *HTTPKeySetLoader) {
		l.wellKnown[normalizeIssuer(issuer)] = jwksURL
	}
}

// NewHTTPKeySetLoader creates a loader that knows the Google key set URL.
func NewHTTPKeySetLoader(opts ...HTTPOption) *HTTPKeySetLoader {
	l := &HTTPKeySetLoader{
		client:    &http.Client{Timeout: constants.DefaultKeySetFetchTimeout},
		wellKnown: make(map[string]string, len(constants.WellKnownJWKS)),
	}
	for issuer, u := range constants.WellKnownJWKS {
		l.wellKnown[normalizeIssuer(issuer)] = u
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load fetches the key set of issuer.
func (l *HTTPKeySetLoader) Load(ctx context.Context, issuer string) ([]byte, error) {
	jwksURL, err := l.jwksURL(ctx, issuer)
	if err != nil {
		return nil, err
	}
	return l.get(ctx, jwksURL)
}

func (l *HTTPKeySetLoader) jwksURL(ctx context.Context, issuer string) (string, error) {
	issuer = normalizeIssuer(issuer)
	if u, ok := l.wellKnown[issuer]; ok {
		return u, nil
	}
	raw, err := l.get(ctx, issuer+constants.OpenIDConfigurationPath)
	if err != nil {
		return "", errors.WithMessage(err, "openid discovery")
	}
	var doc struct {
		JWKSURI string `json:"jwks_uri"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return "", errors.Wrap(err, "invalid openid configuration")
	}
	if doc.JWKSURI == "" {
		return "", errors.Errorf("openid configuration of %s has no jwks_uri", issuer)
	}
	return doc.JWKSURI, nil
}

func (l *HTTPKeySetLoader) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "GET %s", u)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, errors.Wrapf(ErrKeySetNotFound, "GET %s", u)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, errors.Errorf("GET %s: unexpected status %d", u, resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxKeySetSize))
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", u)
	}
	return raw, nil
}
