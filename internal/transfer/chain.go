package transfer

import (
	"context"

	"github.com/gagliardetto/solana-go"

	"github.com/custopay/transfer-relay/internal/client"
)

// ChainClient is the remote ledger surface the transfer flow consumes.
// *client.SolanaClient satisfies it; tests substitute stubs.
type ChainClient interface {
	NativeBalance(ctx context.Context, address solana.PublicKey) (uint64, error)
	TokenBalance(ctx context.Context, owner, mint solana.PublicKey) (client.TokenBalanceResult, error)
	AccountExists(ctx context.Context, owner, mint solana.PublicKey) (bool, error)
	LatestBlockhash(ctx context.Context) (solana.Hash, uint64, error)
	CurrentBlockHeight(ctx context.Context) (uint64, error)
	Submit(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
	Status(ctx context.Context, sig solana.Signature) (client.SignatureStatus, error)
	TransactionFee(ctx context.Context, sig solana.Signature) (uint64, error)
}
