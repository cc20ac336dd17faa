package constants

import "time"

const (
	DefaultCacheMaxSize        int64 = 10_000
	DefaultMaxSignedDataLength       = 1024
	DefaultOnChainTimeout            = 30 * time.Second
	DefaultKeySetFetchTimeout        = 10 * time.Second
	DefaultProvingTimeout            = 5 * time.Minute

	// SupportedAlgorithm is the only JWS algorithm the circuit verifies.
	SupportedAlgorithm = "RS256"

	// RSA modulus layout expected by the circuit.
	ModulusBits  = 2048
	LimbBits     = 120
	ModulusLimbs = 18

	MaxDomainLength = 50

	// ShaBlockSize is the alignment of the SHA-256 precompute cutoff.
	ShaBlockSize = 64
)

const (
	GoogleIssuer  = "https://accounts.google.com"
	GoogleJWKSURL = "https://www.googleapis.com/oauth2/v3/certs"

	OpenIDConfigurationPath = "/.well-known/openid-configuration"
)

// WellKnownJWKS maps issuers to key set URLs that skip OIDC discovery.
var WellKnownJWKS = map[string]string{
	GoogleIssuer:          GoogleJWKSURL,
	"accounts.google.com": GoogleJWKSURL,
}
