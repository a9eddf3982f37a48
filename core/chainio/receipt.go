package chainio

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/AvaProtocol/eip4337-console/pkg/logger"
)

// WaitForReceipt waits for a transaction known only by hash, such as one the
// node signed for eth_sendTransaction. There is no overall deadline: a stuck
// node blocks until ctx is cancelled.
func WaitForReceipt(ctx context.Context, backend Backend, txHash common.Hash, lgr logger.Logger) (*types.Receipt, error) {
	tx, _, err := backend.TransactionByHash(ctx, txHash)
	if err != nil {
		return nil, fmt.Errorf("get transaction %s: %w", txHash.Hex(), err)
	}

	logger.EnsureLogger(lgr).Debug("waiting for receipt", "tx", txHash.Hex())
	receipt, err := bind.WaitMined(ctx, backend, tx)
	if err != nil {
		return nil, fmt.Errorf("wait for %s: %w", txHash.Hex(), err)
	}
	return receipt, nil
}
