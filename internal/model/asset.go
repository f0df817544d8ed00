package model

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gagliardetto/solana-go"
)

// Asset describes one SPL token the service will move: its mint address and
// fixed decimal precision.
type Asset struct {
	Symbol   string
	Mint     string
	Decimals int
}

// AssetRegistry maps asset ids (symbols) to their on-chain identity.
type AssetRegistry map[string]Asset

// ParseAssetRegistry parses the configured asset list. Format is a comma
// separated list of SYMBOL:MINT:DECIMALS entries, e.g.
// "USDC:EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v:6".
func ParseAssetRegistry(spec string) (AssetRegistry, error) {
	registry := make(AssetRegistry)
	for _, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid asset entry %q: want SYMBOL:MINT:DECIMALS", entry)
		}
		decimals, err := strconv.Atoi(parts[2])
		if err != nil || decimals < 0 || decimals > 18 {
			return nil, fmt.Errorf("invalid decimals in asset entry %q", entry)
		}
		// A bad mint must fail here, at startup, not on the first prepare.
		if _, err := solana.PublicKeyFromBase58(parts[1]); err != nil {
			return nil, fmt.Errorf("invalid mint in asset entry %q: %w", entry, err)
		}
		symbol := strings.ToUpper(parts[0])
		registry[symbol] = Asset{Symbol: symbol, Mint: parts[1], Decimals: decimals}
	}
	if len(registry) == 0 {
		return nil, fmt.Errorf("asset registry is empty")
	}
	return registry, nil
}

// Lookup resolves an asset id, case-insensitively.
func (r AssetRegistry) Lookup(assetID string) (Asset, bool) {
	asset, ok := r[strings.ToUpper(assetID)]
	return asset, ok
}
