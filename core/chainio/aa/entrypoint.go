package aa

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"github.com/AvaProtocol/eip4337-console/pkg/erc4337/userop"
)

// EntryPoint wraps the read-only surface of a deployed v0.7 EntryPoint plus
// the calldata packers the bundler needs for writes.
type EntryPoint struct {
	Address common.Address

	abi      abi.ABI
	contract *bind.BoundContract
}

// NewEntryPoint binds to the EntryPoint at address. A nil parsed ABI falls
// back to the embedded v0.7 interface.
func NewEntryPoint(address common.Address, parsed *abi.ABI, caller bind.ContractCaller) *EntryPoint {
	contractABI := EntryPointABI
	if parsed != nil {
		contractABI = *parsed
	}

	return &EntryPoint{
		Address:  address,
		abi:      contractABI,
		contract: bind.NewBoundContract(address, contractABI, caller, nil, nil),
	}
}

func (e *EntryPoint) ABI() *abi.ABI {
	return &e.abi
}

// GetNonce returns the next nonce EntryPoint expects for sender under key.
func (e *EntryPoint) GetNonce(ctx context.Context, sender common.Address, key *big.Int) (*big.Int, error) {
	if key == nil {
		key = DefaultNonceKey()
	}

	var out []interface{}
	if err := e.contract.Call(&bind.CallOpts{Context: ctx}, &out, MethodGetNonce, sender, key); err != nil {
		return nil, err
	}

	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

// GetUserOpHash asks the EntryPoint for the canonical hash of op. The hash
// also commits to the EntryPoint address and chain id, so it is never
// computed locally.
func (e *EntryPoint) GetUserOpHash(ctx context.Context, op userop.PackedUserOperation) (common.Hash, error) {
	var out []interface{}
	if err := e.contract.Call(&bind.CallOpts{Context: ctx}, &out, MethodGetUserOpHash, op); err != nil {
		return common.Hash{}, err
	}

	hash := *abi.ConvertType(out[0], new([32]byte)).(*[32]byte)
	return common.Hash(hash), nil
}

// BalanceOf returns the deposit account holds in the EntryPoint.
func (e *EntryPoint) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	var out []interface{}
	if err := e.contract.Call(&bind.CallOpts{Context: ctx}, &out, MethodBalanceOf, account); err != nil {
		return nil, err
	}

	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

func (e *EntryPoint) PackHandleOps(ops []userop.PackedUserOperation, beneficiary common.Address) ([]byte, error) {
	if len(ops) == 0 {
		return nil, fmt.Errorf("handleOps needs at least one operation")
	}
	return e.abi.Pack(MethodHandleOps, ops, beneficiary)
}

func (e *EntryPoint) PackDepositTo(account common.Address) ([]byte, error) {
	return e.abi.Pack(MethodDepositTo, account)
}

// UnpackHandleOps decodes handleOps calldata back into its operations and
// beneficiary. It is used when inspecting a submitted bundle.
func (e *EntryPoint) UnpackHandleOps(calldata []byte) ([]userop.PackedUserOperation, common.Address, error) {
	method, ok := e.abi.Methods[MethodHandleOps]
	if !ok {
		return nil, common.Address{}, fmt.Errorf("abi has no %s method", MethodHandleOps)
	}
	if len(calldata) < 4 || string(calldata[:4]) != string(method.ID) {
		return nil, common.Address{}, fmt.Errorf("calldata is not a %s call", MethodHandleOps)
	}

	args, err := method.Inputs.Unpack(calldata[4:])
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("unpack %s: %w", MethodHandleOps, err)
	}

	ops := *abi.ConvertType(args[0], new([]userop.PackedUserOperation)).(*[]userop.PackedUserOperation)
	beneficiary := *abi.ConvertType(args[1], new(common.Address)).(*common.Address)
	return ops, beneficiary, nil
}
