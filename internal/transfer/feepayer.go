package transfer

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// FeePayerAccount is the capability that signs for and funds network fees.
// It is injected into the builder rather than held as package state, so test
// doubles and multiple fee-payer pools need no globals.
type FeePayerAccount struct {
	key solana.PrivateKey
}

// NewFeePayerAccount parses a base58-encoded private key.
func NewFeePayerAccount(base58Key string) (*FeePayerAccount, error) {
	key, err := solana.PrivateKeyFromBase58(base58Key)
	if err != nil {
		return nil, fmt.Errorf("invalid fee payer private key: %w", err)
	}
	return &FeePayerAccount{key: key}, nil
}

// NewFeePayerAccountFromKey wraps an existing keypair. Used by tests.
func NewFeePayerAccountFromKey(key solana.PrivateKey) *FeePayerAccount {
	return &FeePayerAccount{key: key}
}

// PublicKey returns the fee payer's address.
func (a *FeePayerAccount) PublicKey() solana.PublicKey {
	return a.key.PublicKey()
}

// Signer returns a key getter usable with PartialSign: it yields the private
// key for the fee payer's address only, leaving every other required
// signature absent.
func (a *FeePayerAccount) Signer() func(key solana.PublicKey) *solana.PrivateKey {
	return func(key solana.PublicKey) *solana.PrivateKey {
		if a.key.PublicKey().Equals(key) {
			return &a.key
		}
		return nil
	}
}
