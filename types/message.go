package types

// Provider names the OAuth issuer a member authenticated with.
type Provider string

const (
	ProviderGoogle Provider = "google-oauth"
)

// Member is a verified ephemeral key registered for a group (domain).
type Member struct {
	PubKey       string            `json:"pubkey"`
	PubKeyExpiry string            `json:"pubkey_expiry"`
	Provider     Provider          `json:"provider"`
	Proof        []byte            `json:"proof"`
	ProofArgs    map[string]string `json:"proof_args"`
	GroupID      string            `json:"group_id"`
}

// SignedMessage is a message posted by a member's ephemeral key.
type SignedMessage struct {
	ID                    string `json:"id"`
	AnonGroupID           string `json:"anonGroupId"`
	AnonGroupProvider     string `json:"anonGroupProvider"`
	Text                  string `json:"text"`
	Timestamp             string `json:"timestamp"`
	Internal              bool   `json:"internal"`
	Signature             string `json:"signature"`
	EphemeralPubkey       string `json:"ephemeralPubkey"`
	EphemeralPubkeyExpiry string `json:"ephemeralPubkeyExpiry"`
	Likes                 uint32 `json:"likes"`
}
