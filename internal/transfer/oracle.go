package transfer

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/custopay/transfer-relay/internal/common"
	"github.com/custopay/transfer-relay/internal/model"
)

// BalanceOracle reads fee-payer and sender balances from the remote ledger.
// Snapshots are fetched fresh per operation and never cached: on-chain state
// moves continuously underneath us.
type BalanceOracle struct {
	chain           ChainClient
	feePayer        solana.PublicKey
	reserveLamports uint64
}

// NewBalanceOracle creates an oracle bound to one fee payer and reserve.
func NewBalanceOracle(chain ChainClient, feePayer solana.PublicKey, reserveLamports uint64) *BalanceOracle {
	return &BalanceOracle{
		chain:           chain,
		feePayer:        feePayer,
		reserveLamports: reserveLamports,
	}
}

// FeePayerBalance reports the fee payer's native balance against the
// configured minimum reserve. Sufficiency is a threshold check, not "> 0":
// the reserve guarantees the next few operations can still be paid for.
func (o *BalanceOracle) FeePayerBalance(ctx context.Context) (model.FeePayerStatus, error) {
	lamports, err := o.chain.NativeBalance(ctx, o.feePayer)
	if err != nil {
		return model.FeePayerStatus{}, model.NewFlowError(model.KindNetworkUnavailable, "could not reach the ledger network for the fee payer balance", err)
	}
	return model.FeePayerStatus{
		Address:           o.feePayer.String(),
		Lamports:          lamports,
		ReserveLamports:   o.reserveLamports,
		SufficientForFees: lamports >= o.reserveLamports,
	}, nil
}

// NeedsCreation reports whether owner still lacks an associated account for
// asset. Existence is all the recipient-side check needs; no balance read.
func (o *BalanceOracle) NeedsCreation(ctx context.Context, owner solana.PublicKey, asset model.Asset) (bool, error) {
	mint, err := solana.PublicKeyFromBase58(asset.Mint)
	if err != nil {
		return false, fmt.Errorf("invalid mint for asset %s: %w", asset.Symbol, err)
	}
	exists, err := o.chain.AccountExists(ctx, owner, mint)
	if err != nil {
		return false, model.NewFlowError(model.KindNetworkUnavailable, "could not reach the ledger network for account existence", err)
	}
	return !exists, nil
}

// AssetBalance fetches the owner's balance for asset. needsCreation=true
// means the address has no token account for the asset yet - expected, not
// exceptional: the caller adds a create-account instruction instead of
// aborting.
func (o *BalanceOracle) AssetBalance(ctx context.Context, owner solana.PublicKey, asset model.Asset) (snapshot *model.BalanceSnapshot, needsCreation bool, err error) {
	mint, err := solana.PublicKeyFromBase58(asset.Mint)
	if err != nil {
		return nil, false, fmt.Errorf("invalid mint for asset %s: %w", asset.Symbol, err)
	}

	result, err := o.chain.TokenBalance(ctx, owner, mint)
	if err != nil {
		return nil, false, model.NewFlowError(model.KindNetworkUnavailable, "could not reach the ledger network for a token balance", err)
	}
	if !result.Exists {
		return nil, true, nil
	}

	decimals := result.Decimals
	if decimals == 0 {
		decimals = asset.Decimals
	}
	return &model.BalanceSnapshot{
		Address:   owner.String(),
		AssetID:   asset.Symbol,
		Available: common.FormatAmount(result.Raw, decimals),
		Raw:       result.Raw,
		Decimals:  decimals,
	}, false, nil
}
