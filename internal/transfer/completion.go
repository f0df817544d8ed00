package transfer

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/custopay/transfer-relay/internal/client"
	"github.com/custopay/transfer-relay/internal/ledger"
	"github.com/custopay/transfer-relay/internal/model"
)

// Completion merges the end-user's signature into a previously issued
// envelope, verifies full signature coverage, and broadcasts.
type Completion struct {
	chain     ChainClient
	ledger    *ledger.Service
	envelopes *EnvelopeRegistry
	tracker   *Tracker
	logger    *zap.Logger
}

// NewCompletion creates a completion service. tracker may be nil in tests;
// confirmation tracking is then the caller's problem.
func NewCompletion(chain ChainClient, ledgerSvc *ledger.Service, envelopes *EnvelopeRegistry, tracker *Tracker, logger *zap.Logger) *Completion {
	return &Completion{
		chain:     chain,
		ledger:    ledgerSvc,
		envelopes: envelopes,
		tracker:   tracker,
		logger:    logger.Named("completion"),
	}
}

// Complete consumes the envelope, attaches the sender's signature, checks
// coverage, and submits. The envelope is consumed before broadcast, so a
// second call with the same id can never double-broadcast. Every failure
// after consumption resolves the ledger record to a terminal status.
func (c *Completion) Complete(ctx context.Context, envelopeID uuid.UUID, senderSignature string) (*model.SubmitResult, error) {
	entry, expired, ok := c.envelopes.Consume(envelopeID, time.Now().UTC())
	if !ok {
		return nil, model.NewFlowError(model.KindEnvelopeExpired, "envelope is unknown, expired, or already completed", nil)
	}
	if expired {
		c.failLedger(ctx, entry.envelope.TransactionID, entry.ownerID, "expired")
		return nil, model.NewFlowError(model.KindEnvelopeExpired, "envelope expired; prepare the transfer again", nil)
	}

	tx, err := c.attachSignature(entry, senderSignature)
	if err != nil {
		// The envelope is already consumed; the client cannot fix the
		// signature and retry against it, so the record resolves terminal.
		c.failLedger(ctx, entry.envelope.TransactionID, entry.ownerID, model.ReasonOf(err))
		return nil, err
	}

	sig, err := c.chain.Submit(ctx, tx)
	if err != nil {
		// Rejections are terminal: resubmitting a rejected envelope cannot
		// succeed, and blind retries risk double-spend semantics. Transport
		// failures also resolve terminal here because the envelope is
		// consumed; the reconciliation sweep catches the rare case where
		// the submission actually landed.
		reason := "broadcast rejected by the network"
		kind := model.KindBroadcastRejected
		if !client.IsRejection(err) {
			reason = "network failure during broadcast"
			kind = model.KindNetworkUnavailable
		}
		c.failLedgerWithEvidence(ctx, entry.envelope.TransactionID, entry.ownerID, model.StatusEvidence{
			Reason: fmt.Sprintf("%s: %v", reason, err),
		})
		return nil, model.NewFlowError(kind, reason, err)
	}

	_, err = c.ledger.Transition(ctx, entry.envelope.TransactionID, entry.ownerID, model.StatusProcessing, model.StatusEvidence{
		NetworkSignature:     sig.String(),
		LastValidBlockHeight: entry.envelope.LastValidBlockHeight,
	})
	if err != nil && !errors.Is(err, model.ErrAlreadyInState) {
		// The broadcast went out; the ledger record is the one lagging.
		// Log loudly; the reconciler's pending sweep resolves it terminal.
		c.logger.Error("broadcast succeeded but ledger transition failed",
			zap.String("transaction_id", entry.envelope.TransactionID.String()),
			zap.String("signature", sig.String()),
			zap.Error(err),
		)
	}

	if c.tracker != nil {
		go c.tracker.Track(context.WithoutCancel(ctx), entry.envelope.TransactionID, entry.ownerID, sig)
	}

	c.logger.Info("transfer submitted",
		zap.String("transaction_id", entry.envelope.TransactionID.String()),
		zap.String("signature", sig.String()),
	)
	return &model.SubmitResult{NetworkSignature: sig.String(), Status: "submitted"}, nil
}

// attachSignature deserializes the payload, slots the sender's signature in
// at the sender's signer position, and verifies that every required signer
// now has a signature present.
func (c *Completion) attachSignature(entry *envelopeEntry, senderSignature string) (*solana.Transaction, error) {
	raw, err := base64.StdEncoding.DecodeString(entry.envelope.SerializedPayload)
	if err != nil {
		return nil, model.NewFlowError(model.KindInternal, "envelope payload is corrupt", err)
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, model.NewFlowError(model.KindInternal, "envelope payload is corrupt", err)
	}

	sig, err := solana.SignatureFromBase58(senderSignature)
	if err != nil {
		return nil, model.NewFlowError(model.KindIncompleteSignatures, "sender signature is not valid base58", err)
	}

	numRequired := int(tx.Message.Header.NumRequiredSignatures)
	for len(tx.Signatures) < numRequired {
		tx.Signatures = append(tx.Signatures, solana.Signature{})
	}

	senderIndex := -1
	for i := 0; i < numRequired && i < len(tx.Message.AccountKeys); i++ {
		if tx.Message.AccountKeys[i].Equals(entry.senderPubkey) {
			senderIndex = i
			break
		}
	}
	if senderIndex < 0 {
		return nil, model.NewFlowError(model.KindIncompleteSignatures, "sender is not a required signer of this envelope", nil)
	}
	tx.Signatures[senderIndex] = sig

	for i := 0; i < numRequired; i++ {
		if tx.Signatures[i].IsZero() {
			return nil, model.NewFlowError(model.KindIncompleteSignatures,
				fmt.Sprintf("missing signature for %s", tx.Message.AccountKeys[i]), nil)
		}
	}
	return tx, nil
}

func (c *Completion) failLedger(ctx context.Context, txID uuid.UUID, ownerID, reason string) {
	c.failLedgerWithEvidence(ctx, txID, ownerID, model.StatusEvidence{Reason: reason})
}

func (c *Completion) failLedgerWithEvidence(ctx context.Context, txID uuid.UUID, ownerID string, evidence model.StatusEvidence) {
	if _, err := c.ledger.Transition(ctx, txID, ownerID, model.StatusFailed, evidence); err != nil && !errors.Is(err, model.ErrAlreadyInState) {
		c.logger.Warn("could not fail ledger record",
			zap.String("transaction_id", txID.String()),
			zap.Error(err),
		)
	}
}
