package chainio

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
)

const (
	ErrNodeUnreachable = "cannot connect to node"
)

// ErrTransactionFailed marks a mined transaction whose receipt status is 0.
var ErrTransactionFailed = errors.New("transaction failed")

// TransactionFailedError carries the failed receipt so callers can decode
// logs or replay the transaction for a revert reason.
type TransactionFailedError struct {
	Action  string
	Receipt *types.Receipt
}

func (e *TransactionFailedError) Error() string {
	return fmt.Sprintf("%s: %s (tx %s, block %s)", e.Action, ErrTransactionFailed, e.Receipt.TxHash.Hex(), e.Receipt.BlockNumber)
}

func (e *TransactionFailedError) Unwrap() error {
	return ErrTransactionFailed
}

// RevertData extracts the revert payload from an eth_call or
// eth_estimateGas error. The second result is false when err does not carry
// revert data, which indicates a transport level failure.
func RevertData(err error) ([]byte, bool) {
	var dataErr rpc.DataError
	if !errors.As(err, &dataErr) {
		return nil, false
	}

	switch data := dataErr.ErrorData().(type) {
	case string:
		decoded, decodeErr := hexutil.Decode(data)
		if decodeErr != nil {
			return nil, true
		}
		return decoded, true
	case []byte:
		return data, true
	}
	return nil, true
}

// IsRevert reports whether err is an execution revert rather than a
// connectivity problem.
func IsRevert(err error) bool {
	_, ok := RevertData(err)
	return ok
}
