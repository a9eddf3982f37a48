package contracts

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/AvaProtocol/eip4337-console/core/chainio"
	"github.com/AvaProtocol/eip4337-console/core/chainio/aa"
)

var ErrNoRevert = errors.New("transaction replay did not revert")

// RevertReason replays a mined transaction as eth_call at blockNumber and
// decodes the revert payload. A nil blockNumber uses the receipt's block.
func (r *Registry) RevertReason(ctx context.Context, hash common.Hash, blockNumber *big.Int) (string, error) {
	tx, _, err := r.backend.TransactionByHash(ctx, hash)
	if err != nil {
		return "", fmt.Errorf("get transaction %s: %w", hash.Hex(), err)
	}

	from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
	if err != nil {
		return "", fmt.Errorf("recover sender of %s: %w", hash.Hex(), err)
	}

	if blockNumber == nil {
		receipt, err := r.receipt(ctx, hash)
		if err != nil {
			return "", err
		}
		blockNumber = receipt.BlockNumber
	}

	_, err = r.backend.CallContract(ctx, ethereum.CallMsg{
		From:  from,
		To:    tx.To(),
		Gas:   tx.Gas(),
		Value: tx.Value(),
		Data:  tx.Data(),
	}, blockNumber)
	if err == nil {
		return "", ErrNoRevert
	}

	data, ok := chainio.RevertData(err)
	if !ok {
		return "", fmt.Errorf("replay %s: %w", hash.Hex(), err)
	}
	if len(data) == 0 {
		return err.Error(), nil
	}

	reason, decodeErr := aa.DecodeRevert(data, r.abis()...)
	if decodeErr != nil {
		return "", decodeErr
	}
	return reason, nil
}
