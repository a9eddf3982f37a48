// Package userop models an EntryPoint v0.7 UserOperation and its packed
// on-chain form.
package userop

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ErrGasValueOutOfRange is returned when a value handed to the gas packer
// does not fit in 128 bits.
var ErrGasValueOutOfRange = errors.New("gas value out of uint128 range")

var maxUint128 = new(big.Int).Lsh(big.NewInt(1), 128)

// UserOperation is the unpacked operation as assembled by the builder.
type UserOperation struct {
	Sender               common.Address
	Nonce                *big.Int
	InitCode             []byte
	CallData             []byte
	CallGasLimit         *big.Int
	VerificationGasLimit *big.Int
	PreVerificationGas   *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
	PaymasterAndData     []byte
	Signature            []byte
}

// PackedUserOperation mirrors the EntryPoint v0.7 PackedUserOperation tuple.
// Field names map onto the ABI component names so the struct can be handed
// to the go-ethereum ABI encoder directly.
type PackedUserOperation struct {
	Sender             common.Address
	Nonce              *big.Int
	InitCode           []byte
	CallData           []byte
	AccountGasLimits   [32]byte
	PreVerificationGas *big.Int
	GasFees            [32]byte
	PaymasterAndData   []byte
	Signature          []byte
}

// PackUint128Pair returns the 32 byte big-endian word (high << 128) | low.
func PackUint128Pair(high, low *big.Int) ([32]byte, error) {
	var word [32]byte
	if err := checkUint128("high", high); err != nil {
		return word, err
	}
	if err := checkUint128("low", low); err != nil {
		return word, err
	}
	high.FillBytes(word[:16])
	low.FillBytes(word[16:])
	return word, nil
}

// UnpackUint128Pair splits a packed word back into its high and low halves.
func UnpackUint128Pair(word [32]byte) (high, low *big.Int) {
	return new(big.Int).SetBytes(word[:16]), new(big.Int).SetBytes(word[16:])
}

func checkUint128(name string, v *big.Int) error {
	if v == nil {
		return fmt.Errorf("%w: %s is nil", ErrGasValueOutOfRange, name)
	}
	if v.Sign() < 0 || v.Cmp(maxUint128) >= 0 {
		return fmt.Errorf("%w: %s=%s", ErrGasValueOutOfRange, name, v.String())
	}
	return nil
}

// AccountGasLimits packs verificationGasLimit (high) and callGasLimit (low).
func (op *UserOperation) AccountGasLimits() ([32]byte, error) {
	word, err := PackUint128Pair(op.VerificationGasLimit, op.CallGasLimit)
	if err != nil {
		return word, fmt.Errorf("accountGasLimits: %w", err)
	}
	return word, nil
}

// GasFees packs maxPriorityFeePerGas (high) and maxFeePerGas (low).
func (op *UserOperation) GasFees() ([32]byte, error) {
	word, err := PackUint128Pair(op.MaxPriorityFeePerGas, op.MaxFeePerGas)
	if err != nil {
		return word, fmt.Errorf("gasFees: %w", err)
	}
	return word, nil
}

// Pack produces the packed tuple, including whatever signature the operation
// currently carries.
func (op *UserOperation) Pack() (PackedUserOperation, error) {
	accountGasLimits, err := op.AccountGasLimits()
	if err != nil {
		return PackedUserOperation{}, err
	}
	gasFees, err := op.GasFees()
	if err != nil {
		return PackedUserOperation{}, err
	}
	if op.PreVerificationGas == nil || op.PreVerificationGas.Sign() < 0 {
		return PackedUserOperation{}, fmt.Errorf("preVerificationGas must be a non-negative integer")
	}
	if op.Nonce == nil || op.Nonce.Sign() < 0 {
		return PackedUserOperation{}, fmt.Errorf("nonce must be a non-negative integer")
	}

	return PackedUserOperation{
		Sender:             op.Sender,
		Nonce:              new(big.Int).Set(op.Nonce),
		InitCode:           cloneBytes(op.InitCode),
		CallData:           cloneBytes(op.CallData),
		AccountGasLimits:   accountGasLimits,
		PreVerificationGas: new(big.Int).Set(op.PreVerificationGas),
		GasFees:            gasFees,
		PaymasterAndData:   cloneBytes(op.PaymasterAndData),
		Signature:          cloneBytes(op.Signature),
	}, nil
}

// PackUnsigned packs the operation with the signature forced empty. This is
// the form the EntryPoint hashes.
func (op *UserOperation) PackUnsigned() (PackedUserOperation, error) {
	packed, err := op.Pack()
	if err != nil {
		return packed, err
	}
	packed.Signature = []byte{}
	return packed, nil
}

// WithSignature returns a copy of the packed operation carrying sig. The
// receiver is left untouched.
func (p PackedUserOperation) WithSignature(sig []byte) PackedUserOperation {
	signed := p
	signed.Nonce = new(big.Int).Set(p.Nonce)
	signed.InitCode = cloneBytes(p.InitCode)
	signed.CallData = cloneBytes(p.CallData)
	signed.PreVerificationGas = new(big.Int).Set(p.PreVerificationGas)
	signed.PaymasterAndData = cloneBytes(p.PaymasterAndData)
	signed.Signature = cloneBytes(sig)
	return signed
}

// Unpack expands a packed tuple back into a UserOperation.
func (p PackedUserOperation) Unpack() *UserOperation {
	verificationGasLimit, callGasLimit := UnpackUint128Pair(p.AccountGasLimits)
	maxPriorityFeePerGas, maxFeePerGas := UnpackUint128Pair(p.GasFees)
	return &UserOperation{
		Sender:               p.Sender,
		Nonce:                new(big.Int).Set(p.Nonce),
		InitCode:             cloneBytes(p.InitCode),
		CallData:             cloneBytes(p.CallData),
		CallGasLimit:         callGasLimit,
		VerificationGasLimit: verificationGasLimit,
		PreVerificationGas:   new(big.Int).Set(p.PreVerificationGas),
		MaxFeePerGas:         maxFeePerGas,
		MaxPriorityFeePerGas: maxPriorityFeePerGas,
		PaymasterAndData:     cloneBytes(p.PaymasterAndData),
		Signature:            cloneBytes(p.Signature),
	}
}

// Fields returns the operation as display friendly name/value pairs in ABI
// order.
func (op *UserOperation) Fields() [][2]string {
	return [][2]string{
		{"sender", op.Sender.Hex()},
		{"nonce", bigString(op.Nonce)},
		{"initCode", hexutil.Encode(op.InitCode)},
		{"callData", hexutil.Encode(op.CallData)},
		{"callGasLimit", bigString(op.CallGasLimit)},
		{"verificationGasLimit", bigString(op.VerificationGasLimit)},
		{"preVerificationGas", bigString(op.PreVerificationGas)},
		{"maxFeePerGas", bigString(op.MaxFeePerGas)},
		{"maxPriorityFeePerGas", bigString(op.MaxPriorityFeePerGas)},
		{"paymasterAndData", hexutil.Encode(op.PaymasterAndData)},
		{"signature", hexutil.Encode(op.Signature)},
	}
}

func bigString(v *big.Int) string {
	if v == nil {
		return "<nil>"
	}
	return v.String()
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
