package transfer

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"testing"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/custopay/transfer-relay/internal/client"
	"github.com/custopay/transfer-relay/internal/model"
)

func decodeEnvelope(t *testing.T, envelope *model.TransactionEnvelope) *solana.Transaction {
	t.Helper()
	raw, err := base64.StdEncoding.DecodeString(envelope.SerializedPayload)
	if err != nil {
		t.Fatalf("payload is not valid base64: %v", err)
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		t.Fatalf("payload does not deserialize: %v", err)
	}
	return tx
}

func TestPrepareHappyPath(t *testing.T) {
	r := newRig(t)

	envelope, record, err := r.builder.Prepare(context.Background(), r.intent("12.5"))
	if err != nil {
		t.Fatalf("prepare failed: %v", err)
	}

	if record.Status != model.StatusPending {
		t.Fatalf("expected pending record, got %s", record.Status)
	}
	if envelope.TransactionID != record.ID {
		t.Fatal("envelope and ledger record ids diverge")
	}
	if !envelope.FeePayerSignaturePresent {
		t.Fatal("expected fee payer signature to be marked present")
	}
	if envelope.LastValidBlockHeight != 100 {
		t.Fatalf("expected the replay-window height bound on the envelope, got %d", envelope.LastValidBlockHeight)
	}
	if r.chain.callCount("AccountExists") != 1 {
		t.Fatalf("expected one recipient existence check, got %d", r.chain.callCount("AccountExists"))
	}
	if r.envelopes.Len() != 1 {
		t.Fatalf("expected one registered envelope, got %d", r.envelopes.Len())
	}

	tx := decodeEnvelope(t, envelope)
	if len(tx.Signatures) == 0 || tx.Signatures[0].IsZero() {
		t.Fatal("expected fee payer signature at position 0")
	}
	// Recipient has no token account in the default rig, so account creation
	// precedes the transfer instruction.
	if len(tx.Message.Instructions) != 2 {
		t.Fatalf("expected create+transfer instructions, got %d", len(tx.Message.Instructions))
	}

	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		t.Fatalf("failed to marshal message: %v", err)
	}
	if !ed25519.Verify(ed25519.PublicKey(r.feePayer.PublicKey().Bytes()), msg, tx.Signatures[0][:]) {
		t.Fatal("fee payer signature does not verify against the payload")
	}
}

func TestPrepareSkipsCreationWhenRecipientExists(t *testing.T) {
	r := newRig(t)
	r.chain.tokenBalances[r.recipient.PublicKey().String()] = client.TokenBalanceResult{Exists: true, Raw: 0, Decimals: 6}

	envelope, _, err := r.builder.Prepare(context.Background(), r.intent("1"))
	if err != nil {
		t.Fatalf("prepare failed: %v", err)
	}

	tx := decodeEnvelope(t, envelope)
	if len(tx.Message.Instructions) != 1 {
		t.Fatalf("expected transfer instruction only, got %d", len(tx.Message.Instructions))
	}
}

func TestPrepareValidationFailsBeforeNetwork(t *testing.T) {
	r := newRig(t)

	cases := []struct {
		name   string
		intent model.TransferIntent
	}{
		{"bad sender", model.TransferIntent{SenderAddress: "not-an-address", RecipientAddress: r.recipient.PublicKey().String(), Amount: "1", AssetID: "USDC", RequestedBy: "user-1"}},
		{"same address", model.TransferIntent{SenderAddress: r.sender.PublicKey().String(), RecipientAddress: r.sender.PublicKey().String(), Amount: "1", AssetID: "USDC", RequestedBy: "user-1"}},
		{"zero amount", r.intent("0")},
		{"negative amount", r.intent("-5")},
		{"over limit", r.intent("1000.000001")},
		{"unknown asset", model.TransferIntent{SenderAddress: r.sender.PublicKey().String(), RecipientAddress: r.recipient.PublicKey().String(), Amount: "1", AssetID: "DOGE", RequestedBy: "user-1"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := r.builder.Prepare(context.Background(), tc.intent)
			if model.KindOf(err) != model.KindValidation {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}

	if n := r.chain.totalCalls(); n != 0 {
		t.Fatalf("validation failures must not touch the network, saw %d calls", n)
	}
	if r.repo.created != 0 {
		t.Fatalf("validation failures must not create ledger records, saw %d", r.repo.created)
	}
}

func TestPrepareInsufficientSenderBalance(t *testing.T) {
	r := newRig(t)

	// Rig seeds the sender with 50 USDC.
	_, _, err := r.builder.Prepare(context.Background(), r.intent("50.000001"))
	if model.KindOf(err) != model.KindInsufficientBalance {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if r.repo.created != 0 {
		t.Fatal("a rejected prepare must not leave a ledger record")
	}
	if r.envelopes.Len() != 0 {
		t.Fatal("a rejected prepare must not register an envelope")
	}
}

func TestPrepareMissingSenderAccount(t *testing.T) {
	r := newRig(t)
	delete(r.chain.tokenBalances, r.sender.PublicKey().String())

	_, _, err := r.builder.Prepare(context.Background(), r.intent("1"))
	if model.KindOf(err) != model.KindInsufficientBalance {
		t.Fatalf("expected insufficient balance for missing sender account, got %v", err)
	}
}

func TestPrepareFeePayerBelowReserve(t *testing.T) {
	r := newRig(t)
	r.chain.nativeBalances[r.feePayer.PublicKey()] = 99_999 // reserve is 100_000

	_, _, err := r.builder.Prepare(context.Background(), r.intent("1"))
	if model.KindOf(err) != model.KindInsufficientBalance {
		t.Fatalf("expected insufficient balance for fee payer, got %v", err)
	}
	if r.chain.callCount("TokenBalance") != 0 {
		t.Fatal("fee payer reserve check must reject before token balance reads")
	}
}

func TestPrepareBlockhashFailure(t *testing.T) {
	r := newRig(t)
	r.chain.blockhashErr = errors.New("rpc: connection refused")

	_, _, err := r.builder.Prepare(context.Background(), r.intent("1"))
	if model.KindOf(err) != model.KindNetworkUnavailable {
		t.Fatalf("expected network unavailable, got %v", err)
	}
	if r.repo.created != 0 {
		t.Fatal("a failed blockhash fetch must not leave a ledger record")
	}
}
