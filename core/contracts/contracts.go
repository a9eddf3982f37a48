// Package contracts deploys and tracks the EntryPoint and SimpleAccount
// contracts used by the console.
package contracts

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/AvaProtocol/eip4337-console/core/accounts"
	"github.com/AvaProtocol/eip4337-console/core/chainio"
	"github.com/AvaProtocol/eip4337-console/core/chainio/aa"
	"github.com/AvaProtocol/eip4337-console/core/compiler"
	"github.com/AvaProtocol/eip4337-console/core/config"
	"github.com/AvaProtocol/eip4337-console/pkg/logger"
	"github.com/AvaProtocol/eip4337-console/pkg/units"
)

type ContractRole string

const (
	EntryPoint    ContractRole = "EntryPoint"
	SimpleAccount ContractRole = "SimpleAccount"
)

// ContractRoles lists the contracts in deployment order.
var ContractRoles = []ContractRole{EntryPoint, SimpleAccount}

// Label is the name shown to users.
func (r ContractRole) Label() string {
	if r == SimpleAccount {
		return "Wallet (SimpleAccount)"
	}
	return string(r)
}

var (
	ErrNotDeployed       = errors.New("contract not deployed")
	ErrAlreadyDeployed   = errors.New("contract already deployed")
	ErrNoContractAddress = errors.New("deployment receipt has no contract address")
)

// EventSignature describes one event of a deployed contract.
type EventSignature struct {
	Name   string
	Topic  common.Hash
	Inputs abi.Arguments
}

// Contract is a deployed contract. Address does not change once set.
type Contract struct {
	Role    ContractRole
	Address common.Address
	ABI     *abi.ABI
	Events  []EventSignature
	TxHash  common.Hash
}

func newContract(role ContractRole, address common.Address, parsed *abi.ABI, txHash common.Hash) *Contract {
	events := lo.MapToSlice(parsed.Events, func(_ string, ev abi.Event) EventSignature {
		return EventSignature{Name: ev.Name, Topic: ev.ID, Inputs: ev.Inputs}
	})
	sort.Slice(events, func(i, j int) bool { return events[i].Name < events[j].Name })

	return &Contract{
		Role:    role,
		Address: address,
		ABI:     parsed,
		Events:  events,
		TxHash:  txHash,
	}
}

// ArtifactSource yields the compiled contracts. *compiler.Toolchain
// implements it.
type ArtifactSource interface {
	EntryPoint(ctx context.Context) (*compiler.Artifact, error)
	SimpleAccount(ctx context.Context) (*compiler.Artifact, error)
}

// ContractAddress pairs a role with its address; Address is nil until
// deployed.
type ContractAddress struct {
	Role    ContractRole
	Address *common.Address
}

type Registry struct {
	backend   chainio.Backend
	sender    *chainio.Sender
	artifacts ArtifactSource
	gas       config.GasConfig

	contracts map[ContractRole]*Contract
	logger    logger.Logger
}

func NewRegistry(backend chainio.Backend, artifacts ArtifactSource, gas config.GasConfig, lgr logger.Logger) *Registry {
	lgr = logger.EnsureLogger(lgr)
	return &Registry{
		backend:   backend,
		sender:    chainio.NewSender(backend, lgr),
		artifacts: artifacts,
		gas:       gas,
		contracts: make(map[ContractRole]*Contract),
		logger:    lgr,
	}
}

func (r *Registry) deploy(ctx context.Context, role ContractRole, owner *accounts.Keypair, code []byte, gas uint64) (common.Address, common.Hash, error) {
	if owner == nil {
		return common.Address{}, common.Hash{}, fmt.Errorf("deploy %s: %w: owner", role, accounts.ErrNotInitialized)
	}

	receipt, err := r.sender.SendAndWait(ctx, owner.PrivateKey, "deploy "+string(role), chainio.TxRequest{
		Data: code,
		Gas:  gas,
	})
	if err != nil {
		return common.Address{}, common.Hash{}, err
	}
	if receipt.ContractAddress == (common.Address{}) {
		return common.Address{}, receipt.TxHash, fmt.Errorf("deploy %s: %w", role, ErrNoContractAddress)
	}

	r.logger.Info("contract deployed",
		"contract", role,
		"address", receipt.ContractAddress.Hex(),
		"tx", receipt.TxHash.Hex(),
		"gasUsed", receipt.GasUsed,
	)
	return receipt.ContractAddress, receipt.TxHash, nil
}

// DeployEntryPoint compiles or loads the EntryPoint and deploys it from the
// owner account.
func (r *Registry) DeployEntryPoint(ctx context.Context, owner *accounts.Keypair) (*Contract, error) {
	if c, ok := r.contracts[EntryPoint]; ok {
		return c, fmt.Errorf("%w: %s at %s", ErrAlreadyDeployed, EntryPoint, c.Address.Hex())
	}

	artifact, err := r.artifacts.EntryPoint(ctx)
	if err != nil {
		return nil, err
	}

	address, txHash, err := r.deploy(ctx, EntryPoint, owner, artifact.Bytecode, r.gas.EntryPointDeployGas)
	if err != nil {
		return nil, err
	}

	c := newContract(EntryPoint, address, artifact.ABI, txHash)
	r.contracts[EntryPoint] = c
	return c, nil
}

// DeploySimpleAccount deploys a wallet owned by owner that trusts the
// deployed EntryPoint.
func (r *Registry) DeploySimpleAccount(ctx context.Context, owner *accounts.Keypair) (*Contract, error) {
	if c, ok := r.contracts[SimpleAccount]; ok {
		return c, fmt.Errorf("%w: %s at %s", ErrAlreadyDeployed, SimpleAccount, c.Address.Hex())
	}
	ep, err := r.Require(EntryPoint)
	if err != nil {
		return nil, err
	}
	if owner == nil {
		return nil, fmt.Errorf("deploy %s: %w: owner", SimpleAccount, accounts.ErrNotInitialized)
	}

	artifact, err := r.artifacts.SimpleAccount(ctx)
	if err != nil {
		return nil, err
	}

	args, err := aa.PackSimpleAccountConstructor(artifact.ABI, owner.Address, ep.Address)
	if err != nil {
		return nil, fmt.Errorf("pack %s constructor: %w", SimpleAccount, err)
	}
	code := append(append([]byte{}, artifact.Bytecode...), args...)

	address, txHash, err := r.deploy(ctx, SimpleAccount, owner, code, r.gas.SimpleAccountDeployGas)
	if err != nil {
		return nil, err
	}

	c := newContract(SimpleAccount, address, artifact.ABI, txHash)
	r.contracts[SimpleAccount] = c
	return c, nil
}

// FundSimpleAccount sends eth to the wallet so operations can carry value,
// then deposits the same amount in the EntryPoint to pay for gas.
func (r *Registry) FundSimpleAccount(ctx context.Context, eth decimal.Decimal, owner *accounts.Keypair) error {
	wallet, err := r.Require(SimpleAccount)
	if err != nil {
		return err
	}
	ep, err := r.Require(EntryPoint)
	if err != nil {
		return err
	}
	if owner == nil {
		return fmt.Errorf("fund %s: %w: owner", SimpleAccount, accounts.ErrNotInitialized)
	}

	value := units.EtherToWei(eth)
	if _, err := r.sender.SendAndWait(ctx, owner.PrivateKey, "fund SimpleAccount", chainio.TxRequest{
		To:    &wallet.Address,
		Value: value,
		Gas:   r.gas.FundGas,
	}); err != nil {
		return err
	}

	data, err := r.EntryPoint().PackDepositTo(wallet.Address)
	if err != nil {
		return err
	}
	if _, err := r.sender.SendAndWait(ctx, owner.PrivateKey, "deposit for SimpleAccount", chainio.TxRequest{
		To:    &ep.Address,
		Value: value,
		Data:  data,
		Gas:   r.gas.FundGas,
	}); err != nil {
		return err
	}

	r.logger.Info("SimpleAccount funded", "wallet", wallet.Address.Hex(), "eth", eth.String())
	return nil
}

// WalletDeposit is the wallet's EntryPoint deposit in wei.
func (r *Registry) WalletDeposit(ctx context.Context) (*big.Int, error) {
	wallet, err := r.Require(SimpleAccount)
	if err != nil {
		return nil, err
	}
	if _, err := r.Require(EntryPoint); err != nil {
		return nil, err
	}
	return r.EntryPoint().BalanceOf(ctx, wallet.Address)
}

// Balance returns the ether balance of a deployed contract in wei.
func (r *Registry) Balance(ctx context.Context, role ContractRole) (*big.Int, error) {
	c, err := r.Require(role)
	if err != nil {
		return nil, err
	}
	return r.backend.BalanceAt(ctx, c.Address, nil)
}

// EntryPoint binds the deployed EntryPoint, or nil if it is not deployed.
func (r *Registry) EntryPoint() *aa.EntryPoint {
	c, ok := r.contracts[EntryPoint]
	if !ok {
		return nil
	}
	return aa.NewEntryPoint(c.Address, c.ABI, r.backend)
}

func (r *Registry) Get(role ContractRole) (*Contract, bool) {
	c, ok := r.contracts[role]
	return c, ok
}

func (r *Registry) Require(role ContractRole) (*Contract, error) {
	c, ok := r.contracts[role]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotDeployed, role)
	}
	return c, nil
}

func (r *Registry) Addresses() []ContractAddress {
	return lo.Map(ContractRoles, func(role ContractRole, _ int) ContractAddress {
		c, ok := r.contracts[role]
		if !ok {
			return ContractAddress{Role: role}
		}
		addr := c.Address
		return ContractAddress{Role: role, Address: &addr}
	})
}

// Initialized reports whether both contracts are deployed.
func (r *Registry) Initialized() bool {
	return lo.EveryBy(ContractRoles, func(role ContractRole) bool {
		_, ok := r.contracts[role]
		return ok
	})
}

// abis returns the parsed ABIs of the deployed contracts, falling back to the
// embedded interfaces for contracts that are not deployed yet.
func (r *Registry) abis() []*abi.ABI {
	fallback := map[ContractRole]*abi.ABI{
		EntryPoint:    &aa.EntryPointABI,
		SimpleAccount: &aa.SimpleAccountABI,
	}
	return lo.Map(ContractRoles, func(role ContractRole, _ int) *abi.ABI {
		if c, ok := r.contracts[role]; ok && c.ABI != nil {
			return c.ABI
		}
		return fallback[role]
	})
}

func (r *Registry) receipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	receipt, err := r.backend.TransactionReceipt(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("get receipt %s: %w", hash.Hex(), err)
	}
	return receipt, nil
}
