package transfer

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/custopay/transfer-relay/internal/common"
	"github.com/custopay/transfer-relay/internal/ledger"
	"github.com/custopay/transfer-relay/internal/model"
)

// BuilderConfig bounds what a single prepared transfer may look like.
type BuilderConfig struct {
	MaxAmount   string
	EnvelopeTTL time.Duration
}

// Builder assembles fee-delegated transfer transactions: validation, balance
// checks, optional account provisioning, partial signing by the fee payer,
// and the pending ledger record.
type Builder struct {
	chain     ChainClient
	oracle    *BalanceOracle
	feePayer  *FeePayerAccount
	ledger    *ledger.Service
	envelopes *EnvelopeRegistry
	assets    model.AssetRegistry
	cfg       BuilderConfig
	logger    *zap.Logger
}

// NewBuilder creates a transaction builder.
func NewBuilder(chain ChainClient, oracle *BalanceOracle, feePayer *FeePayerAccount, ledgerSvc *ledger.Service, envelopes *EnvelopeRegistry, assets model.AssetRegistry, cfg BuilderConfig, logger *zap.Logger) *Builder {
	return &Builder{
		chain:     chain,
		oracle:    oracle,
		feePayer:  feePayer,
		ledger:    ledgerSvc,
		envelopes: envelopes,
		assets:    assets,
		cfg:       cfg,
		logger:    logger.Named("builder"),
	}
}

// Prepare validates the intent, checks balances, assembles the instruction
// sequence, partially signs with the fee payer, and creates the pending
// ledger record. Validation and balance failures never create a ledger
// record - nothing was promised yet. The sender's signature is intentionally
// absent from the returned envelope; it arrives out of band.
func (b *Builder) Prepare(ctx context.Context, intent model.TransferIntent) (*model.TransactionEnvelope, *model.LedgerTransaction, error) {
	asset, ok := b.assets.Lookup(intent.AssetID)
	if !ok {
		return nil, nil, model.NewFlowError(model.KindValidation, fmt.Sprintf("unknown asset %q", intent.AssetID), nil)
	}

	if err := ValidateTransfer(intent.SenderAddress, intent.RecipientAddress, intent.Amount, b.cfg.MaxAmount, asset.Decimals); err != nil {
		return nil, nil, err
	}

	senderPubkey := solana.MustPublicKeyFromBase58(intent.SenderAddress)
	recipientPubkey := solana.MustPublicKeyFromBase58(intent.RecipientAddress)
	mint := solana.MustPublicKeyFromBase58(asset.Mint)
	amountBase, err := common.ParseAmount(intent.Amount, asset.Decimals)
	if err != nil {
		return nil, nil, model.NewFlowError(model.KindValidation, "amount is not a valid decimal for this asset", err)
	}

	// Fee payer reserve is an early-reject heuristic only: concurrent
	// prepares may all pass it, and the network stays the final arbiter at
	// broadcast time. No lock across the fee payer account.
	feeStatus, err := b.oracle.FeePayerBalance(ctx)
	if err != nil {
		return nil, nil, err
	}
	if !feeStatus.SufficientForFees {
		return nil, nil, model.NewFlowError(model.KindInsufficientBalance, "fee payer balance is below the minimum reserve", nil)
	}

	senderBalance, senderMissing, err := b.oracle.AssetBalance(ctx, senderPubkey, asset)
	if err != nil {
		return nil, nil, err
	}
	if senderMissing || senderBalance.Raw < amountBase {
		return nil, nil, model.NewFlowError(model.KindInsufficientBalance, "sender balance is insufficient for this transfer", nil)
	}

	recipientMissing, err := b.oracle.NeedsCreation(ctx, recipientPubkey, asset)
	if err != nil {
		return nil, nil, err
	}

	sourceATA, _, err := solana.FindAssociatedTokenAddress(senderPubkey, mint)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find source token account address: %w", err)
	}
	destATA, _, err := solana.FindAssociatedTokenAddress(recipientPubkey, mint)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find destination token account address: %w", err)
	}

	instructions := make([]solana.Instruction, 0, 2)
	if recipientMissing {
		// The oracle's needs-creation verdict is the single source of
		// truth; the create instruction is never added speculatively.
		instructions = append(instructions, associatedtokenaccount.NewCreateInstruction(
			b.feePayer.PublicKey(), // funder
			recipientPubkey,        // wallet owner
			mint,
		).Build())
	}
	instructions = append(instructions, token.NewTransferCheckedInstruction(
		amountBase,
		uint8(asset.Decimals),
		sourceATA,
		mint,
		destATA,
		senderPubkey,
		[]solana.PublicKey{},
	).Build())

	// Replay-window reference comes last among the remote reads so the
	// envelope's expiry clock starts as late as possible. A failure here is
	// a pure network error: no ledger record exists yet, the caller retries.
	blockhash, lastValidHeight, err := b.chain.LatestBlockhash(ctx)
	if err != nil {
		return nil, nil, model.NewFlowError(model.KindNetworkUnavailable, "could not fetch a replay-window reference from the network", err)
	}
	expiresAt := time.Now().UTC().Add(b.cfg.EnvelopeTTL)

	tx, err := solana.NewTransaction(
		instructions,
		blockhash,
		solana.TransactionPayer(b.feePayer.PublicKey()),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create transaction: %w", err)
	}

	// Partial signature: fee payer only. The sender signs on their own
	// device; this service never holds their key.
	if _, err := tx.PartialSign(b.feePayer.Signer()); err != nil {
		return nil, nil, fmt.Errorf("failed to partially sign transaction: %w", err)
	}

	payload, err := tx.MarshalBinary()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to serialize transaction: %w", err)
	}

	transactionID := uuid.New()
	record, err := b.ledger.Create(ctx, ledger.CreateParams{
		TransactionID: transactionID,
		SenderID:      intent.RequestedBy,
		RecipientID:   intent.RecipientAddress,
		Amount:        intent.Amount,
		AssetSymbol:   asset.Symbol,
	})
	if err != nil {
		return nil, nil, model.NewFlowError(model.KindInternal, "could not record the transfer", err)
	}

	envelope := &model.TransactionEnvelope{
		TransactionID:         transactionID,
		SerializedPayload:     base64.StdEncoding.EncodeToString(payload),
		ReplayWindowReference: blockhash.String(),
		LastValidBlockHeight:  lastValidHeight,
		ExpiresAt:             expiresAt,
		RequiredSignerAddresses: []string{
			b.feePayer.PublicKey().String(),
			senderPubkey.String(),
		},
		FeePayerSignaturePresent: true,
	}
	b.envelopes.Put(envelope, intent.RequestedBy, senderPubkey)

	b.logger.Info("transfer prepared",
		zap.String("transaction_id", transactionID.String()),
		zap.String("asset", asset.Symbol),
		zap.Bool("creates_recipient_account", recipientMissing),
		zap.Time("expires_at", expiresAt),
	)
	return envelope, record, nil
}
