package chainio

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AvaProtocol/eip4337-console/core/testutil"
)

func TestSenderSendAndWait(t *testing.T) {
	chain := testutil.NewFakeChain()
	key := testutil.MustKey()
	from := testutil.KeyAddress(key)
	chain.Balances[from] = big.NewInt(1e18)

	sender := NewSender(chain, testutil.GetLogger())
	to := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")

	receipt, err := sender.SendAndWait(context.Background(), key, "transfer", TxRequest{
		To:    &to,
		Value: big.NewInt(1000),
		Gas:   100_000,
	})
	require.NoError(t, err)
	assert.Equal(t, types.ReceiptStatusSuccessful, receipt.Status)

	require.Len(t, chain.Sent, 1)
	tx := chain.Sent[0]
	assert.Equal(t, uint64(0), tx.Nonce())
	assert.Equal(t, uint64(100_000), tx.Gas())
	assert.Equal(t, chain.GasPrice, tx.GasFeeCap())
	assert.Equal(t, chain.GasPrice, tx.GasTipCap())
	assert.Equal(t, chain.ChainIDValue, tx.ChainId())
	assert.Equal(t, big.NewInt(1000), chain.Balances[to])

	signedBy, err := types.Sender(types.LatestSignerForChainID(chain.ChainIDValue), tx)
	require.NoError(t, err)
	assert.Equal(t, from, signedBy)

	// the next transaction picks up the pending nonce
	_, err = sender.Send(context.Background(), key, TxRequest{To: &to, Gas: 21_000})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), chain.Sent[1].Nonce())
}

func TestSenderExplicitFees(t *testing.T) {
	chain := testutil.NewFakeChain()
	key := testutil.MustKey()
	to := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")

	tx, err := NewSender(chain, nil).Send(context.Background(), key, TxRequest{
		To:        &to,
		Gas:       21_000,
		GasFeeCap: big.NewInt(7),
		GasTipCap: big.NewInt(3),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), tx.GasFeeCap().Int64())
	assert.Equal(t, int64(3), tx.GasTipCap().Int64())
}

func TestSenderReportsFailedReceipt(t *testing.T) {
	chain := testutil.NewFakeChain()
	chain.RevertDeploys = true
	key := testutil.MustKey()

	receipt, err := NewSender(chain, nil).SendAndWait(context.Background(), key, "deploy", TxRequest{
		Data: []byte{0x60, 0x80},
		Gas:  1_000_000,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransactionFailed)

	var failed *TransactionFailedError
	require.True(t, errors.As(err, &failed))
	assert.Equal(t, receipt, failed.Receipt)
	assert.Equal(t, types.ReceiptStatusFailed, receipt.Status)
	assert.Contains(t, err.Error(), "deploy")
}

func TestSenderPropagatesSendError(t *testing.T) {
	chain := testutil.NewFakeChain()
	chain.FailSend = errors.New("connection refused")
	to := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")

	_, err := NewSender(chain, nil).SendAndWait(context.Background(), testutil.MustKey(), "transfer", TxRequest{To: &to, Gas: 21_000})
	assert.ErrorContains(t, err, "connection refused")
	assert.NotErrorIs(t, err, ErrTransactionFailed)
}
