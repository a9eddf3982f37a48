// Package bundler is a minimal in-process bundler: it wraps signed
// UserOperations in an EntryPoint.handleOps transaction sent from the
// bundler account.
package bundler

import (
	"context"
	"crypto/ecdsa"
	"fmt"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/AvaProtocol/eip4337-console/core/chainio"
	"github.com/AvaProtocol/eip4337-console/core/chainio/aa"
	"github.com/AvaProtocol/eip4337-console/pkg/eip1559"
	"github.com/AvaProtocol/eip4337-console/pkg/erc4337/userop"
	"github.com/AvaProtocol/eip4337-console/pkg/logger"
)

const DefaultHandleOpsGasLimit uint64 = 2_000_000

// SimulationError is a handleOps eth_call that reverted with a decodable
// reason.
type SimulationError struct {
	Reason string
}

func (e *SimulationError) Error() string {
	return "simulate handleOps: " + e.Reason
}

type Config struct {
	// GasLimit of the handleOps transaction. Zero uses DefaultHandleOpsGasLimit.
	GasLimit  uint64
	FeePolicy eip1559.Policy
}

type Bundler struct {
	backend     chainio.Backend
	sender      *chainio.Sender
	key         *ecdsa.PrivateKey
	beneficiary common.Address
	config      Config
	logger      logger.Logger
}

// New creates a bundler that signs with key and pays fees to beneficiary.
func New(backend chainio.Backend, key *ecdsa.PrivateKey, beneficiary common.Address, cfg Config, lgr logger.Logger) *Bundler {
	if cfg.GasLimit == 0 {
		cfg.GasLimit = DefaultHandleOpsGasLimit
	}
	lgr = logger.EnsureLogger(lgr)
	return &Bundler{
		backend:     backend,
		sender:      chainio.NewSender(backend, lgr),
		key:         key,
		beneficiary: beneficiary,
		config:      cfg,
		logger:      lgr,
	}
}

func (b *Bundler) Address() common.Address {
	return crypto.PubkeyToAddress(b.key.PublicKey)
}

func (b *Bundler) Beneficiary() common.Address {
	return b.beneficiary
}

// HandleOps signs and broadcasts handleOps(ops, beneficiary). It does not
// wait for the transaction to be mined.
func (b *Bundler) HandleOps(ctx context.Context, ep *aa.EntryPoint, ops []userop.PackedUserOperation) (*types.Transaction, error) {
	data, err := ep.PackHandleOps(ops, b.beneficiary)
	if err != nil {
		return nil, err
	}

	feeCap, tipCap, err := eip1559.Caps(ctx, b.backend, b.config.FeePolicy)
	if err != nil {
		return nil, fmt.Errorf("get fee caps: %w", err)
	}

	tx, err := b.sender.Send(ctx, b.key, chainio.TxRequest{
		To:        &ep.Address,
		Data:      data,
		Gas:       b.config.GasLimit,
		GasFeeCap: feeCap,
		GasTipCap: tipCap,
	})
	if err != nil {
		return nil, err
	}

	b.logger.Info("handleOps sent",
		"entryPoint", ep.Address.Hex(),
		"ops", len(ops),
		"bundler", b.Address().Hex(),
		"beneficiary", b.beneficiary.Hex(),
		"tx", tx.Hash().Hex(),
	)
	return tx, nil
}

// WaitForReceipt blocks until tx is mined.
func (b *Bundler) WaitForReceipt(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	return b.sender.Wait(ctx, tx)
}

// Submit sends handleOps and waits for it. A mined transaction with status 0
// returns the receipt together with a *chainio.TransactionFailedError.
func (b *Bundler) Submit(ctx context.Context, ep *aa.EntryPoint, ops []userop.PackedUserOperation) (*types.Receipt, error) {
	tx, err := b.HandleOps(ctx, ep, ops)
	if err != nil {
		return nil, err
	}

	receipt, err := b.WaitForReceipt(ctx, tx)
	if err != nil {
		return nil, err
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		b.logger.Warn("handleOps reverted", "tx", tx.Hash().Hex(), "block", receipt.BlockNumber)
		return receipt, &chainio.TransactionFailedError{Action: aa.MethodHandleOps, Receipt: receipt}
	}

	b.logger.Info("handleOps mined", "tx", tx.Hash().Hex(), "block", receipt.BlockNumber, "gasUsed", receipt.GasUsed)
	return receipt, nil
}

// Simulate runs handleOps as eth_call from the bundler. A validation failure
// is returned as a *SimulationError holding the decoded EntryPoint error, for
// example "FailedOp(opIndex=0, reason=AA25 invalid account nonce)".
func (b *Bundler) Simulate(ctx context.Context, ep *aa.EntryPoint, ops []userop.PackedUserOperation) error {
	data, err := ep.PackHandleOps(ops, b.beneficiary)
	if err != nil {
		return err
	}

	_, err = b.backend.CallContract(ctx, ethereum.CallMsg{
		From: b.Address(),
		To:   &ep.Address,
		Gas:  b.config.GasLimit,
		Data: data,
	}, nil)
	if err == nil {
		return nil
	}

	revert, ok := chainio.RevertData(err)
	if !ok || len(revert) == 0 {
		return fmt.Errorf("simulate handleOps: %w", err)
	}
	reason, decodeErr := aa.DecodeRevert(revert, ep.ABI())
	if decodeErr != nil {
		return fmt.Errorf("simulate handleOps: %w", err)
	}
	return &SimulationError{Reason: reason}
}
