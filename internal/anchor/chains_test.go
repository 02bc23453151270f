package anchor

import (
	"strings"
	"testing"
)

const validChainRegistry = `
schema: notari.chains.v1
chains:
  - id: 84532
    name: Base Sepolia
    environment: testnet
    explorer_tx_url: https://sepolia.basescan.org/tx/%s
  - id: 8453
    name: Base
    environment: mainnet
    explorer_tx_url: https://basescan.org/tx
`

func TestParseChainRegistry(t *testing.T) {
	registry, err := ParseChainRegistry([]byte(validChainRegistry))
	if err != nil {
		t.Fatalf("ParseChainRegistry() err=%v", err)
	}

	spec, ok := registry.Lookup(84532)
	if !ok || spec.Name != "Base Sepolia" || spec.Environment != "testnet" {
		t.Fatalf("Lookup(84532)=%+v ok=%v", spec, ok)
	}
	if _, ok := registry.Lookup(1); ok {
		t.Fatalf("unknown chain resolved")
	}
}

func TestParseChainRegistryRejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"wrong schema", "schema: notari.chains.v2\nchains:\n  - id: 1\n    name: x\n"},
		{"no chains", "schema: notari.chains.v1\nchains: []\n"},
		{"missing name", "schema: notari.chains.v1\nchains:\n  - id: 1\n"},
		{"non-positive id", "schema: notari.chains.v1\nchains:\n  - id: 0\n    name: x\n"},
		{"duplicate id", "schema: notari.chains.v1\nchains:\n  - id: 1\n    name: x\n  - id: 1\n    name: y\n"},
		{"not yaml", "{{"},
	}

	for _, tc := range tests {
		if _, err := ParseChainRegistry([]byte(tc.doc)); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}

func TestExplorerTxURL(t *testing.T) {
	registry, err := ParseChainRegistry([]byte(validChainRegistry))
	if err != nil {
		t.Fatalf("ParseChainRegistry() err=%v", err)
	}

	tests := []struct {
		name    string
		chainID int64
		txHash  string
		want    string
	}{
		{"template chain", 84532, "0xabc", "https://sepolia.basescan.org/tx/0xabc"},
		{"path-join chain", 8453, "0xabc", "https://basescan.org/tx/0xabc"},
		{"unknown chain", 1, "0xabc", ""},
		{"empty tx hash", 84532, " ", ""},
	}

	for _, tc := range tests {
		if got := registry.ExplorerTxURL(tc.chainID, tc.txHash); got != tc.want {
			t.Fatalf("%s: ExplorerTxURL()=%q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestLoadChainRegistryEmptyPath(t *testing.T) {
	registry, err := LoadChainRegistry("  ")
	if err != nil {
		t.Fatalf("LoadChainRegistry() err=%v", err)
	}
	if got := registry.ExplorerTxURL(84532, "0xabc"); !strings.EqualFold(got, "") {
		t.Fatalf("empty registry resolved %q", got)
	}
}
