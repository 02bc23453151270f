package anchor

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const chainRegistrySchemaV1 = "notari.chains.v1"

// ChainSpec describes one known anchoring destination.
type ChainSpec struct {
	ID            int64  `json:"id" yaml:"id"`
	Name          string `json:"name" yaml:"name"`
	Environment   string `json:"environment" yaml:"environment"`
	ExplorerTxURL string `json:"explorer_tx_url,omitempty" yaml:"explorer_tx_url,omitempty"`
}

type chainRegistryDoc struct {
	Schema string      `yaml:"schema"`
	Chains []ChainSpec `yaml:"chains"`
}

// ChainRegistry resolves chain ids to display names and explorer URL
// templates for ledger proofs that omit them.
type ChainRegistry struct {
	byID map[int64]ChainSpec
}

// ParseChainRegistry decodes and validates a yaml chain registry.
func ParseChainRegistry(input []byte) (ChainRegistry, error) {
	var doc chainRegistryDoc
	if err := yaml.Unmarshal(input, &doc); err != nil {
		return ChainRegistry{}, fmt.Errorf("decode chain registry: %w", err)
	}
	if strings.TrimSpace(doc.Schema) != chainRegistrySchemaV1 {
		return ChainRegistry{}, fmt.Errorf("unsupported chain registry schema %q", doc.Schema)
	}
	if len(doc.Chains) == 0 {
		return ChainRegistry{}, errors.New("chain registry has no chains")
	}

	byID := make(map[int64]ChainSpec, len(doc.Chains))
	for i, chain := range doc.Chains {
		if chain.ID <= 0 {
			return ChainRegistry{}, fmt.Errorf("chains[%d]: id must be positive", i)
		}
		if strings.TrimSpace(chain.Name) == "" {
			return ChainRegistry{}, fmt.Errorf("chains[%d]: name is required", i)
		}
		if _, ok := byID[chain.ID]; ok {
			return ChainRegistry{}, fmt.Errorf("chains[%d]: duplicate id %d", i, chain.ID)
		}
		chain.Name = strings.TrimSpace(chain.Name)
		chain.Environment = strings.TrimSpace(chain.Environment)
		chain.ExplorerTxURL = strings.TrimSpace(chain.ExplorerTxURL)
		byID[chain.ID] = chain
	}
	return ChainRegistry{byID: byID}, nil
}

// LoadChainRegistry reads a registry from disk. An empty path yields an
// empty registry, which resolves nothing.
func LoadChainRegistry(path string) (ChainRegistry, error) {
	if strings.TrimSpace(path) == "" {
		return ChainRegistry{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return ChainRegistry{}, fmt.Errorf("read chain registry: %w", err)
	}
	return ParseChainRegistry(raw)
}

// Lookup returns the spec for a chain id.
func (r ChainRegistry) Lookup(chainID int64) (ChainSpec, bool) {
	spec, ok := r.byID[chainID]
	return spec, ok
}

// ExplorerTxURL renders the explorer link for a transaction, or empty
// when the chain is unknown or exposes no explorer.
func (r ChainRegistry) ExplorerTxURL(chainID int64, txHash string) string {
	spec, ok := r.byID[chainID]
	if !ok || spec.ExplorerTxURL == "" {
		return ""
	}
	txHash = strings.TrimSpace(txHash)
	if txHash == "" {
		return ""
	}
	if strings.Contains(spec.ExplorerTxURL, "%s") {
		return fmt.Sprintf(spec.ExplorerTxURL, txHash)
	}
	return strings.TrimRight(spec.ExplorerTxURL, "/") + "/" + txHash
}
