package client

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"go.uber.org/zap"
)

// TokenBalanceResult is the outcome of a token balance query. Exists=false
// means the owner has no associated token account for the mint yet - an
// expected state, not an error: the caller must provision the account.
type TokenBalanceResult struct {
	Exists   bool
	Raw      uint64
	Decimals int
}

// SignatureStatus is the confirmation state of one broadcast transaction.
type SignatureStatus struct {
	Found     bool
	Finalized bool
	Slot      uint64
	Err       interface{} // non-nil when the transaction failed on chain
}

// SolanaClient is a thin wrapper over the Solana JSON-RPC client exposing
// exactly the remote operations the transfer flow consumes.
type SolanaClient struct {
	rpcClient *rpc.Client
	logger    *zap.Logger
}

// New creates a Solana client for the given RPC endpoint.
func New(rpcURL string, logger *zap.Logger) *SolanaClient {
	return &SolanaClient{
		rpcClient: rpc.New(rpcURL),
		logger:    logger.Named("solana-client"),
	}
}

// NativeBalance returns the SOL balance of address in lamports.
func (c *SolanaClient) NativeBalance(ctx context.Context, address solana.PublicKey) (uint64, error) {
	balance, err := c.rpcClient.GetBalance(ctx, address, rpc.CommitmentConfirmed)
	if err != nil {
		return 0, fmt.Errorf("failed to get SOL balance: %w", err)
	}
	return balance.Value, nil
}

// TokenBalance returns the owner's balance for mint, resolved through the
// associated token account. A missing account is reported as Exists=false.
func (c *SolanaClient) TokenBalance(ctx context.Context, owner, mint solana.PublicKey) (TokenBalanceResult, error) {
	ataAddress, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return TokenBalanceResult{}, fmt.Errorf("failed to find associated token account address: %w", err)
	}

	balance, err := c.rpcClient.GetTokenAccountBalance(ctx, ataAddress, rpc.CommitmentConfirmed)
	if err != nil {
		if isAccountNotFoundError(err) {
			return TokenBalanceResult{Exists: false}, nil
		}
		return TokenBalanceResult{}, fmt.Errorf("failed to get token account balance: %w", err)
	}

	if balance.Value == nil {
		return TokenBalanceResult{Exists: true}, nil
	}

	raw, err := strconv.ParseUint(balance.Value.Amount, 10, 64)
	if err != nil {
		return TokenBalanceResult{}, fmt.Errorf("failed to parse token balance amount: %w", err)
	}

	return TokenBalanceResult{
		Exists:   true,
		Raw:      raw,
		Decimals: int(balance.Value.Decimals),
	}, nil
}

// AccountExists reports whether the associated token account for (owner, mint)
// is already provisioned on chain.
func (c *SolanaClient) AccountExists(ctx context.Context, owner, mint solana.PublicKey) (bool, error) {
	ataAddress, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return false, fmt.Errorf("failed to find associated token account address: %w", err)
	}

	info, err := c.rpcClient.GetAccountInfo(ctx, ataAddress)
	if err != nil {
		if isAccountNotFoundError(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get account info: %w", err)
	}
	return info.Value != nil, nil
}

// CurrentBlockHeight returns the network's current finalized block height,
// comparable against a transaction's last valid block height.
func (c *SolanaClient) CurrentBlockHeight(ctx context.Context) (uint64, error) {
	height, err := c.rpcClient.GetBlockHeight(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return 0, fmt.Errorf("failed to get block height: %w", err)
	}
	return height, nil
}

// LatestBlockhash fetches a fresh replay-window reference. The returned
// blockhash stays valid for roughly 60-120 seconds of network time.
func (c *SolanaClient) LatestBlockhash(ctx context.Context) (solana.Hash, uint64, error) {
	recent, err := c.rpcClient.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return solana.Hash{}, 0, fmt.Errorf("failed to get latest blockhash: %w", err)
	}
	return recent.Value.Blockhash, recent.Value.LastValidBlockHeight, nil
}

// Submit broadcasts a fully signed transaction. Preflight runs on the node
// so unaffordable or malformed transactions are rejected before consensus.
func (c *SolanaClient) Submit(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	sig, err := c.rpcClient.SendTransactionWithOpts(
		ctx,
		tx,
		rpc.TransactionOpts{
			SkipPreflight:       false,
			PreflightCommitment: rpc.CommitmentFinalized,
		},
	)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to send transaction: %w", err)
	}
	return sig, nil
}

// Status queries the confirmation state of one signature.
func (c *SolanaClient) Status(ctx context.Context, sig solana.Signature) (SignatureStatus, error) {
	out, err := c.rpcClient.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		return SignatureStatus{}, fmt.Errorf("failed to get signature status: %w", err)
	}
	if len(out.Value) == 0 || out.Value[0] == nil {
		return SignatureStatus{Found: false}, nil
	}
	st := out.Value[0]
	return SignatureStatus{
		Found:     true,
		Finalized: st.ConfirmationStatus == rpc.ConfirmationStatusFinalized,
		Slot:      st.Slot,
		Err:       st.Err,
	}, nil
}

// TransactionFee returns the fee (lamports) charged for a landed transaction.
func (c *SolanaClient) TransactionFee(ctx context.Context, sig solana.Signature) (uint64, error) {
	maxVersion := uint64(0)
	tx, err := c.rpcClient.GetTransaction(
		ctx,
		sig,
		&rpc.GetTransactionOpts{
			Encoding:                       solana.EncodingBase64,
			MaxSupportedTransactionVersion: &maxVersion,
		},
	)
	if err != nil {
		return 0, fmt.Errorf("failed to get transaction: %w", err)
	}
	if tx.Meta == nil {
		return 0, nil
	}
	return tx.Meta.Fee, nil
}

// IsRejection reports whether err is an RPC-level rejection from the node
// (duplicate, insufficient funds at preflight, expired blockhash) rather
// than a transport failure. Rejections are terminal; transport failures are
// retryable.
func IsRejection(err error) bool {
	var rpcErr *jsonrpc.RPCError
	return errors.As(err, &rpcErr)
}

// isAccountNotFoundError checks if the error indicates the account doesn't exist
func isAccountNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "could not find account") ||
		strings.Contains(errStr, "not found")
}
