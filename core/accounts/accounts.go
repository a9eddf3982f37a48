// Package accounts tracks the three test keypairs the console creates and
// funds: owner, bundler and beneficiary.
package accounts

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	sdkutils "github.com/Layr-Labs/eigensdk-go/utils"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/AvaProtocol/eip4337-console/core/chainio"
	"github.com/AvaProtocol/eip4337-console/pkg/logger"
	"github.com/AvaProtocol/eip4337-console/pkg/units"
)

type Role string

const (
	Owner       Role = "owner"
	Bundler     Role = "bundler"
	Beneficiary Role = "beneficiary"
)

// Roles lists every role in creation order.
var Roles = []Role{Owner, Bundler, Beneficiary}

var (
	ErrUnknownRole      = errors.New("unknown account role")
	ErrNotInitialized   = errors.New("account not initialized")
	ErrNoDefaultAccount = errors.New("node has no default account")
	ErrUnknownAddress   = errors.New("no account with that address")
)

func ParseRole(s string) (Role, error) {
	role := Role(s)
	if !lo.Contains(Roles, role) {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
	return role, nil
}

// Keypair is an in-memory secp256k1 account. It is never persisted.
type Keypair struct {
	Role       Role
	Address    common.Address
	PrivateKey *ecdsa.PrivateKey
}

// Amounts maps each role to an ether amount.
type Amounts map[Role]decimal.Decimal

// Total sums every amount.
func (a Amounts) Total() decimal.Decimal {
	return lo.Reduce(lo.Values(a), func(sum decimal.Decimal, v decimal.Decimal, _ int) decimal.Decimal {
		return sum.Add(v)
	}, decimal.Zero)
}

// RoleAddress pairs a role with its address; Address is nil until the role
// is initialized.
type RoleAddress struct {
	Role    Role
	Address *common.Address
}

// Registry owns the role keypairs and the node default account used to fund
// them.
type Registry struct {
	node           chainio.Node
	keypairs       map[Role]*Keypair
	defaultAccount *common.Address
	logger         logger.Logger
}

func NewRegistry(node chainio.Node, lgr logger.Logger) *Registry {
	return &Registry{
		node:     node,
		keypairs: make(map[Role]*Keypair),
		logger:   logger.EnsureLogger(lgr),
	}
}

// InitializeDefaultAccount adopts the node's first managed account.
func (r *Registry) InitializeDefaultAccount(ctx context.Context) (common.Address, error) {
	accounts, err := r.node.Accounts(ctx)
	if err != nil {
		return common.Address{}, fmt.Errorf("eth_accounts: %w", err)
	}
	if len(accounts) == 0 {
		return common.Address{}, ErrNoDefaultAccount
	}

	r.defaultAccount = &accounts[0]
	r.logger.Info("default account selected", "address", accounts[0].Hex())
	return accounts[0], nil
}

func (r *Registry) DefaultAccount() (common.Address, bool) {
	if r.defaultAccount == nil {
		return common.Address{}, false
	}
	return *r.defaultAccount, true
}

// SufficientBalance reports whether addr holds at least minEth.
func (r *Registry) SufficientBalance(ctx context.Context, addr common.Address, minEth decimal.Decimal) (bool, error) {
	balance, err := r.node.BalanceAt(ctx, addr, nil)
	if err != nil {
		return false, err
	}
	return balance.Cmp(units.EtherToWei(minEth)) >= 0, nil
}

// SetBalance overrides addr's balance on a dev node.
func (r *Registry) SetBalance(ctx context.Context, addr common.Address, eth decimal.Decimal) error {
	if err := r.node.SetBalance(ctx, addr, units.EtherToWei(eth)); err != nil {
		return err
	}
	r.logger.Info("balance set", "address", addr.Hex(), "eth", eth.String())
	return nil
}

// Initialize creates and funds every role that does not exist yet. A role
// is stored only after its funding transaction succeeded, so a failed run
// can be retried.
func (r *Registry) Initialize(ctx context.Context, amounts Amounts) error {
	if _, ok := r.DefaultAccount(); !ok {
		if _, err := r.InitializeDefaultAccount(ctx); err != nil {
			return err
		}
	}

	for _, role := range Roles {
		if _, ok := r.keypairs[role]; ok {
			continue
		}

		key, err := crypto.GenerateKey()
		if err != nil {
			return fmt.Errorf("generate %s key: %w", role, err)
		}
		address, err := sdkutils.EcdsaPrivateKeyToAddress(key)
		if err != nil {
			return fmt.Errorf("derive %s address: %w", role, err)
		}

		if err := r.FundAccount(ctx, address, amounts[role]); err != nil {
			return fmt.Errorf("fund %s: %w", role, err)
		}

		r.keypairs[role] = &Keypair{Role: role, Address: address, PrivateKey: key}
		r.logger.Info("account created", "role", role, "address", address.Hex(), "eth", amounts[role].String())
	}
	return nil
}

// Fund tops up existing accounts. Roles without a keypair are skipped.
func (r *Registry) Fund(ctx context.Context, amounts Amounts) error {
	for _, role := range Roles {
		amount, ok := amounts[role]
		if !ok {
			continue
		}
		kp, ok := r.keypairs[role]
		if !ok {
			r.logger.Warn("skipping funding of missing account", "role", role)
			continue
		}
		if err := r.FundAccount(ctx, kp.Address, amount); err != nil {
			return fmt.Errorf("fund %s: %w", role, err)
		}
	}
	return nil
}

// FundAccount transfers eth from the default account with
// eth_sendTransaction and waits for the receipt. A zero amount is a no-op.
func (r *Registry) FundAccount(ctx context.Context, to common.Address, eth decimal.Decimal) error {
	if eth.IsZero() {
		return nil
	}
	from, ok := r.DefaultAccount()
	if !ok {
		return ErrNoDefaultAccount
	}

	value := units.EtherToWei(eth)
	hash, err := r.node.SendNodeTransaction(ctx, from, to, value)
	if err != nil {
		return err
	}

	receipt, err := chainio.WaitForReceipt(ctx, r.node, hash, r.logger)
	if err != nil {
		return err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return &chainio.TransactionFailedError{Action: "fund " + to.Hex(), Receipt: receipt}
	}

	r.logger.Debug("account funded", "to", to.Hex(), "wei", value.String(), "tx", hash.Hex())
	return nil
}

// Get returns the keypair for role, or false when it is not initialized.
func (r *Registry) Get(role Role) (*Keypair, bool) {
	kp, ok := r.keypairs[role]
	return kp, ok
}

// Require is Get with a typed error for missing roles.
func (r *Registry) Require(role Role) (*Keypair, error) {
	if !lo.Contains(Roles, role) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
	kp, ok := r.keypairs[role]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotInitialized, role)
	}
	return kp, nil
}

func (r *Registry) ByAddress(addr common.Address) (*Keypair, error) {
	kp, ok := lo.Find(lo.Values(r.keypairs), func(kp *Keypair) bool {
		return kp.Address == addr
	})
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAddress, addr.Hex())
	}
	return kp, nil
}

// Addresses lists every role in creation order.
func (r *Registry) Addresses() []RoleAddress {
	return lo.Map(Roles, func(role Role, _ int) RoleAddress {
		kp, ok := r.keypairs[role]
		if !ok {
			return RoleAddress{Role: role}
		}
		addr := kp.Address
		return RoleAddress{Role: role, Address: &addr}
	})
}

// Initialized reports whether every role has a keypair.
func (r *Registry) Initialized() bool {
	return lo.EveryBy(Roles, func(role Role) bool {
		_, ok := r.keypairs[role]
		return ok
	})
}

// Balance returns the current balance of addr in wei.
func (r *Registry) Balance(ctx context.Context, addr common.Address) (*big.Int, error) {
	return r.node.BalanceAt(ctx, addr, nil)
}
