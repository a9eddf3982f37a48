package aa

import "math/big"

const (
	MethodExecute       = "execute"
	MethodGetNonce      = "getNonce"
	MethodGetUserOpHash = "getUserOpHash"
	MethodHandleOps     = "handleOps"
	MethodDepositTo     = "depositTo"
	MethodBalanceOf     = "balanceOf"

	EventUserOperation       = "UserOperationEvent"
	EventUserOperationRevert = "UserOperationRevertReason"
)

// DefaultNonceKey is the 192 bit nonce key used for every operation sent by
// the console. EntryPoint keeps an independent sequence per key.
func DefaultNonceKey() *big.Int {
	return big.NewInt(0)
}
