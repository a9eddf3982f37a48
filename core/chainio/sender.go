package chainio

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/AvaProtocol/eip4337-console/core/chainio/signer"
	"github.com/AvaProtocol/eip4337-console/pkg/logger"
)

// TxRequest describes a transaction to be signed locally. A nil To deploys
// Data as contract creation code. Nil fee caps default to the node gas price.
type TxRequest struct {
	To        *common.Address
	Value     *big.Int
	Data      []byte
	Gas       uint64
	GasFeeCap *big.Int
	GasTipCap *big.Int
}

// Sender signs transactions with a local key and submits them.
type Sender struct {
	backend Backend
	logger  logger.Logger
}

func NewSender(backend Backend, lgr logger.Logger) *Sender {
	return &Sender{
		backend: backend,
		logger:  logger.EnsureLogger(lgr),
	}
}

// Send fills in chain id, pending nonce and fees, signs req with key and
// broadcasts it.
func (s *Sender) Send(ctx context.Context, key *ecdsa.PrivateKey, req TxRequest) (*types.Transaction, error) {
	if key == nil {
		return nil, fmt.Errorf("send transaction: nil private key")
	}
	from := crypto.PubkeyToAddress(key.PublicKey)

	chainID, err := s.backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("get chain id: %w", err)
	}

	nonce, err := s.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("get nonce for %s: %w", from.Hex(), err)
	}

	feeCap, tipCap := req.GasFeeCap, req.GasTipCap
	if feeCap == nil || tipCap == nil {
		gasPrice, err := s.backend.SuggestGasPrice(ctx)
		if err != nil {
			return nil, fmt.Errorf("get gas price: %w", err)
		}
		if feeCap == nil {
			feeCap = gasPrice
		}
		if tipCap == nil {
			tipCap = gasPrice
		}
	}

	value := req.Value
	if value == nil {
		value = big.NewInt(0)
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       req.Gas,
		To:        req.To,
		Value:     value,
		Data:      req.Data,
	})

	signerFn, _, err := signer.NewTxSigner(key, chainID)
	if err != nil {
		return nil, err
	}
	txSigner, err := signerFn(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	signed, err := txSigner(from, tx)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}

	if err := s.backend.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("send transaction: %w", err)
	}

	s.logger.Debug("transaction sent", "from", from.Hex(), "nonce", nonce, "gas", req.Gas, "tx", signed.Hash().Hex())
	return signed, nil
}

// Wait blocks until tx is mined and returns its receipt.
func (s *Sender) Wait(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	receipt, err := bind.WaitMined(ctx, s.backend, tx)
	if err != nil {
		return nil, fmt.Errorf("wait for %s: %w", tx.Hash().Hex(), err)
	}
	return receipt, nil
}

// SendAndWait sends req and waits for it. A mined but failed transaction is
// reported as a *TransactionFailedError carrying the receipt.
func (s *Sender) SendAndWait(ctx context.Context, key *ecdsa.PrivateKey, action string, req TxRequest) (*types.Receipt, error) {
	tx, err := s.Send(ctx, key, req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", action, err)
	}

	receipt, err := s.Wait(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", action, err)
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, &TransactionFailedError{Action: action, Receipt: receipt}
	}
	return receipt, nil
}
