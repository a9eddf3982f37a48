// Package preset assembles, hashes, signs and submits UserOperations for the
// console's SimpleAccount.
package preset

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/oklog/ulid/v2"

	"github.com/AvaProtocol/eip4337-console/core/chainio"
	"github.com/AvaProtocol/eip4337-console/core/chainio/aa"
	"github.com/AvaProtocol/eip4337-console/core/chainio/signer"
	"github.com/AvaProtocol/eip4337-console/core/config"
	"github.com/AvaProtocol/eip4337-console/pkg/erc4337/bundler"
	"github.com/AvaProtocol/eip4337-console/pkg/erc4337/userop"
	"github.com/AvaProtocol/eip4337-console/pkg/logger"
)

var (
	DEFAULT_CALL_GAS_LIMIT         = big.NewInt(1_000_000)
	DEFAULT_VERIFICATION_GAS_LIMIT = big.NewInt(1_000_000)
	DEFAULT_PREVERIFICATION_GAS    = big.NewInt(1_000_000)
	DEFAULT_MAX_FEE_PER_GAS        = big.NewInt(2_000_000_000)
	DEFAULT_MAX_PRIORITY_FEE       = big.NewInt(1_000_000_000)
)

// GasSettings are the per operation gas values. Nil fields use the package
// defaults.
type GasSettings struct {
	CallGasLimit         *big.Int
	VerificationGasLimit *big.Int
	PreVerificationGas   *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

// GasSettingsFromConfig copies the operation gas values out of the console
// config.
func GasSettingsFromConfig(gas config.GasConfig) GasSettings {
	return GasSettings{
		CallGasLimit:         gas.CallGasLimit,
		VerificationGasLimit: gas.VerificationGasLimit,
		PreVerificationGas:   gas.PreVerificationGas,
		MaxFeePerGas:         gas.MaxFeePerGas,
		MaxPriorityFeePerGas: gas.MaxPriorityFeePerGas,
	}
}

func orDefault(v, def *big.Int) *big.Int {
	if v == nil {
		return new(big.Int).Set(def)
	}
	return new(big.Int).Set(v)
}

// Operation is an assembled, not yet signed, UserOperation along with its
// packed gas words.
type Operation struct {
	ID               string
	UserOp           *userop.UserOperation
	AccountGasLimits [32]byte
	GasFees          [32]byte
}

// Result collects everything produced while executing an operation. Fields
// are filled as far as the pipeline got, so a failed Execute still returns
// the receipt of a reverted handleOps.
type Result struct {
	Operation  *Operation
	UserOpHash common.Hash
	Signature  []byte
	TxHash     common.Hash
	Receipt    *types.Receipt
}

type Builder struct {
	entryPoint *aa.EntryPoint
	walletABI  *abi.ABI
	wallet     common.Address
	owner      *ecdsa.PrivateKey
	bundler    *bundler.Bundler
	gas        GasSettings
	scheme     signer.Scheme
	logger     logger.Logger
}

type BuilderConfig struct {
	EntryPoint *aa.EntryPoint
	Wallet     common.Address
	// WalletABI defaults to the embedded SimpleAccount interface.
	WalletABI       *abi.ABI
	Owner           *ecdsa.PrivateKey
	Bundler         *bundler.Bundler
	Gas             GasSettings
	SignatureScheme signer.Scheme
}

func NewBuilder(cfg BuilderConfig, lgr logger.Logger) (*Builder, error) {
	switch {
	case cfg.EntryPoint == nil:
		return nil, newError(StagePacking, KindPrecondition, fmt.Errorf("%w: EntryPoint not deployed", ErrPrecondition))
	case cfg.Wallet == (common.Address{}):
		return nil, newError(StagePacking, KindPrecondition, fmt.Errorf("%w: SimpleAccount not deployed", ErrPrecondition))
	case cfg.Owner == nil:
		return nil, newError(StageSigning, KindPrecondition, fmt.Errorf("%w: owner account missing", ErrPrecondition))
	}

	walletABI := cfg.WalletABI
	if walletABI == nil {
		walletABI = &aa.SimpleAccountABI
	}

	return &Builder{
		entryPoint: cfg.EntryPoint,
		walletABI:  walletABI,
		wallet:     cfg.Wallet,
		owner:      cfg.Owner,
		bundler:    cfg.Bundler,
		gas:        cfg.Gas,
		scheme:     cfg.SignatureScheme,
		logger:     logger.EnsureLogger(lgr),
	}, nil
}

func (b *Builder) Wallet() common.Address {
	return b.wallet
}

// chainErrorKind separates contract reverts from connectivity failures.
func chainErrorKind(err error) Kind {
	if chainio.IsRevert(err) {
		return KindReverted
	}
	return KindTransport
}

// BuildUserOp assembles execute(target, value, data) for the wallet. The
// nonce is read from the EntryPoint on every call.
func (b *Builder) BuildUserOp(ctx context.Context, target common.Address, value *big.Int, data []byte) (*Operation, error) {
	if value == nil {
		value = big.NewInt(0)
	}
	if value.Sign() < 0 {
		return nil, newError(StagePacking, KindValidation, fmt.Errorf("%w: negative value %s", ErrInvalidInput, value))
	}

	callData, err := aa.PackExecute(b.walletABI, target, value, data)
	if err != nil {
		return nil, newError(StagePacking, KindValidation, err)
	}

	nonce, err := b.entryPoint.GetNonce(ctx, b.wallet, aa.DefaultNonceKey())
	if err != nil {
		return nil, newError(StageNonce, chainErrorKind(err), err)
	}

	op := &userop.UserOperation{
		Sender:               b.wallet,
		Nonce:                nonce,
		InitCode:             []byte{},
		CallData:             callData,
		CallGasLimit:         orDefault(b.gas.CallGasLimit, DEFAULT_CALL_GAS_LIMIT),
		VerificationGasLimit: orDefault(b.gas.VerificationGasLimit, DEFAULT_VERIFICATION_GAS_LIMIT),
		PreVerificationGas:   orDefault(b.gas.PreVerificationGas, DEFAULT_PREVERIFICATION_GAS),
		MaxFeePerGas:         orDefault(b.gas.MaxFeePerGas, DEFAULT_MAX_FEE_PER_GAS),
		MaxPriorityFeePerGas: orDefault(b.gas.MaxPriorityFeePerGas, DEFAULT_MAX_PRIORITY_FEE),
		PaymasterAndData:     []byte{},
		Signature:            []byte{},
	}

	accountGasLimits, err := op.AccountGasLimits()
	if err != nil {
		return nil, newError(StagePacking, KindValidation, err)
	}
	gasFees, err := op.GasFees()
	if err != nil {
		return nil, newError(StagePacking, KindValidation, err)
	}

	operation := &Operation{
		ID:               ulid.Make().String(),
		UserOp:           op,
		AccountGasLimits: accountGasLimits,
		GasFees:          gasFees,
	}

	b.logger.Debug("user operation built",
		"id", operation.ID,
		"sender", op.Sender.Hex(),
		"nonce", op.Nonce,
		"target", target.Hex(),
		"value", value,
	)
	return operation, nil
}

// UserOpHash asks the EntryPoint for the hash of the unsigned operation.
func (b *Builder) UserOpHash(ctx context.Context, op *userop.UserOperation) (common.Hash, error) {
	packed, err := op.PackUnsigned()
	if err != nil {
		return common.Hash{}, newError(StagePacking, KindValidation, err)
	}

	hash, err := b.entryPoint.GetUserOpHash(ctx, packed)
	if err != nil {
		return common.Hash{}, newError(StageHash, chainErrorKind(err), fmt.Errorf("%w: %v", ErrHashComputation, err))
	}
	return hash, nil
}

// SignUserOp hashes op through the EntryPoint, signs the hash with the owner
// key and stores the signature on op.
func (b *Builder) SignUserOp(ctx context.Context, op *userop.UserOperation) (common.Hash, []byte, error) {
	hash, err := b.UserOpHash(ctx, op)
	if err != nil {
		return common.Hash{}, nil, err
	}

	sig, err := signer.SignHash(b.owner, hash, b.scheme)
	if err != nil {
		return hash, nil, newError(StageSigning, KindValidation, err)
	}

	recovered, err := signer.RecoverHashSigner(hash, sig, b.scheme)
	if err != nil {
		return hash, nil, newError(StageSigning, KindValidation, err)
	}
	if owner := crypto.PubkeyToAddress(b.owner.PublicKey); recovered != owner {
		return hash, nil, newError(StageSigning, KindValidation, fmt.Errorf("signature recovers to %s, want %s", recovered.Hex(), owner.Hex()))
	}

	op.Signature = sig
	b.logger.Debug("user operation signed", "sender", op.Sender.Hex(), "nonce", op.Nonce, "userOpHash", hash.Hex(), "scheme", b.scheme)
	return hash, sig, nil
}

// SendUserOp submits a signed operation through the bundler and waits for
// the handleOps receipt.
func (b *Builder) SendUserOp(ctx context.Context, op *userop.UserOperation) (*types.Receipt, error) {
	if b.bundler == nil {
		return nil, newError(StageSubmission, KindPrecondition, fmt.Errorf("%w: bundler account missing", ErrPrecondition))
	}
	if len(op.Signature) == 0 {
		return nil, newError(StageSubmission, KindValidation, fmt.Errorf("%w: operation is not signed", ErrInvalidInput))
	}

	packed, err := op.Pack()
	if err != nil {
		return nil, newError(StagePacking, KindValidation, err)
	}

	receipt, err := b.bundler.Submit(ctx, b.entryPoint, []userop.PackedUserOperation{packed})
	if err != nil {
		var failed *chainio.TransactionFailedError
		if errors.As(err, &failed) {
			return failed.Receipt, &Error{
				Stage:   StageSubmission,
				Kind:    KindReverted,
				Err:     fmt.Errorf("%w: %v", ErrOperationReverted, err),
				Receipt: failed.Receipt,
			}
		}
		return nil, newError(StageSubmission, KindTransport, err)
	}
	return receipt, nil
}

// Execute runs the whole pipeline for one call: build, sign, submit.
func (b *Builder) Execute(ctx context.Context, target common.Address, value *big.Int, data []byte) (*Result, error) {
	result := &Result{}

	operation, err := b.BuildUserOp(ctx, target, value, data)
	if err != nil {
		return result, err
	}
	result.Operation = operation

	hash, sig, err := b.SignUserOp(ctx, operation.UserOp)
	result.UserOpHash = hash
	if err != nil {
		return result, err
	}
	result.Signature = sig

	receipt, err := b.SendUserOp(ctx, operation.UserOp)
	if receipt != nil {
		result.Receipt = receipt
		result.TxHash = receipt.TxHash
	}
	if err != nil {
		b.logger.Warn("user operation failed", "id", operation.ID, "userOpHash", hash.Hex(), "error", err)
		return result, err
	}

	b.logger.Info("user operation executed",
		"id", operation.ID,
		"sender", operation.UserOp.Sender.Hex(),
		"nonce", operation.UserOp.Nonce,
		"userOpHash", hash.Hex(),
		"tx", receipt.TxHash.Hex(),
	)
	return result, nil
}
