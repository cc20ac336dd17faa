package loaders

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// ErrKeySetNotFound is returned when a loader has no key set for the issuer.
var ErrKeySetNotFound = errors.New("key set not found")

// KeySetLoader loads the raw JWKS document published by an issuer.
type KeySetLoader interface {
	Load(ctx context.Context, issuer string) ([]byte, error)
}

// FSKeySetLoader reads key sets from <Dir>/<issuer host>.json.
type FSKeySetLoader struct {
	Dir string
}

// Load reads the key set of issuer from the filesystem.
func (m FSKeySetLoader) Load(_ context.Context, issuer string) ([]byte, error) {
	host, err := IssuerHost(issuer)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(filepath.Join(m.Dir, host+".json"))
	if errors.Is(err, os.ErrNotExist) {
		return nil, errors.Wrapf(ErrKeySetNotFound, "issuer %s", issuer)
	}
	return raw, errors.WithStack(err)
}

// IssuerHost returns the host of an issuer given with or without scheme,
// e.g. "accounts.google.com" for "https://accounts.google.com".
func IssuerHost(issuer string) (string, error) {
	u, err := url.Parse(normalizeIssuer(issuer))
	if err != nil {
		return "", errors.Wrapf(err, "invalid issuer %q", issuer)
	}
	if u.Host == "" || strings.ContainsAny(u.Host, `/\`) {
		return "", errors.Errorf("invalid issuer %q", issuer)
	}
	return u.Host, nil
}

func normalizeIssuer(issuer string) string {
	issuer = strings.TrimRight(strings.TrimSpace(issuer), "/")
	if !strings.Contains(issuer, "://") {
		issuer = "https://" + issuer
	}
	return issuer
}
