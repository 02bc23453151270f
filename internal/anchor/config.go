package anchor

import "strings"

// EnvironmentMock is the development back-end; it needs no signing
// credential.
const EnvironmentMock = "mock"

// Config is the anchoring capability as reported by the anchoring
// service, fetched once at startup.
type Config struct {
	Enabled       bool   `json:"enabled"`
	Environment   string `json:"environment"`
	ChainID       int64  `json:"chain_id"`
	ChainName     string `json:"chain_name"`
	AutoAnchor    bool   `json:"auto_anchor"`
	HasWallet     bool   `json:"has_wallet"`
	WalletAddress string `json:"wallet_address,omitempty"`
}

// Readiness is the non-anchored portion of the status ladder. The three
// disabled states are distinct so the caller never renders two
// contradictory indicators at once.
type Readiness string

const (
	ReadinessDisabled          Readiness = "disabled"
	ReadinessCredentialMissing Readiness = "credential_missing"
	ReadinessReady             Readiness = "ready"
)

// Readiness evaluates the ordered predicate list: first true wins.
func (c Config) Readiness() Readiness {
	if !c.Enabled {
		return ReadinessDisabled
	}
	if !strings.EqualFold(strings.TrimSpace(c.Environment), EnvironmentMock) && !c.HasWallet {
		return ReadinessCredentialMissing
	}
	return ReadinessReady
}
