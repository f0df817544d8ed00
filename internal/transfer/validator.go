package transfer

import (
	"github.com/gagliardetto/solana-go"

	"github.com/custopay/transfer-relay/internal/common"
	"github.com/custopay/transfer-relay/internal/model"
)

// ValidateTransfer runs the structural checks on a transfer intent, in
// order: both addresses parse, addresses are distinct, amount is positive,
// amount is within the configured cap. Fails fast on the first violation
// with the specific validation variant. No side effects, no network calls.
func ValidateTransfer(senderAddress, recipientAddress, amount, maxAmount string, decimals int) error {
	if !isValidSolanaAddress(senderAddress) {
		return model.NewFlowError(model.KindValidation, "sender address is not a valid network address", model.ErrInvalidAddress)
	}
	if !isValidSolanaAddress(recipientAddress) {
		return model.NewFlowError(model.KindValidation, "recipient address is not a valid network address", model.ErrInvalidAddress)
	}
	if senderAddress == recipientAddress {
		return model.NewFlowError(model.KindValidation, "sender and recipient must differ", model.ErrSameAddress)
	}

	amountBase, err := common.ParseAmount(amount, decimals)
	if err != nil {
		return model.NewFlowError(model.KindValidation, "amount is not a valid decimal for this asset", model.ErrNonPositiveAmount)
	}
	if amountBase == 0 {
		return model.NewFlowError(model.KindValidation, "amount must be greater than zero", model.ErrNonPositiveAmount)
	}

	maxBase, err := common.ParseAmount(maxAmount, decimals)
	if err != nil {
		return model.NewFlowError(model.KindInternal, "configured maximum amount is invalid", err)
	}
	if amountBase > maxBase {
		return model.NewFlowError(model.KindValidation, "amount exceeds the per-transaction limit", model.ErrAmountExceedsLimit)
	}
	return nil
}

// isValidSolanaAddress validates a Solana address
func isValidSolanaAddress(address string) bool {
	_, err := solana.PublicKeyFromBase58(address)
	return err == nil
}
