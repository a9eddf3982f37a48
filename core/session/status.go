package session

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/samber/lo"
)

type ChainStatus struct {
	BlockNumber    uint64
	ChainID        *big.Int
	GasPrice       *big.Int
	MaxPriorityFee *big.Int
	DefaultAccount *common.Address
	Syncing        bool
}

// Balance is a labelled address and its balance in wei. Address is nil when
// the account or contract does not exist yet.
type Balance struct {
	Label   string
	Address *common.Address
	Wei     *big.Int
}

type ContractsStatus struct {
	Contracts     []Balance
	WalletDeposit *big.Int
}

// Ready reports whether every contract is deployed.
func (c *ContractsStatus) Ready() bool {
	return lo.EveryBy(c.Contracts, func(b Balance) bool { return b.Address != nil })
}

type AccountsStatus struct {
	Default *Balance
	Roles   []Balance
}

func (a *AccountsStatus) Ready() bool {
	return lo.EveryBy(a.Roles, func(b Balance) bool { return b.Address != nil })
}

func (s *Session) ChainStatus(ctx context.Context) (*ChainStatus, error) {
	status := &ChainStatus{}
	var err error

	if status.BlockNumber, err = s.node.BlockNumber(ctx); err != nil {
		return nil, fmt.Errorf("block number: %w", err)
	}
	if status.ChainID, err = s.node.ChainID(ctx); err != nil {
		return nil, fmt.Errorf("chain id: %w", err)
	}
	if status.GasPrice, err = s.node.SuggestGasPrice(ctx); err != nil {
		return nil, fmt.Errorf("gas price: %w", err)
	}
	if status.MaxPriorityFee, err = s.node.SuggestGasTipCap(ctx); err != nil {
		return nil, fmt.Errorf("max priority fee: %w", err)
	}
	if status.Syncing, err = s.node.Syncing(ctx); err != nil {
		return nil, fmt.Errorf("syncing: %w", err)
	}
	if addr, ok := s.accounts.DefaultAccount(); ok {
		status.DefaultAccount = &addr
	}
	return status, nil
}

func (s *Session) balanceOf(ctx context.Context, label string, addr *common.Address) (Balance, error) {
	b := Balance{Label: label, Address: addr}
	if addr == nil {
		return b, nil
	}
	wei, err := s.node.BalanceAt(ctx, *addr, nil)
	if err != nil {
		return b, fmt.Errorf("balance of %s: %w", label, err)
	}
	b.Wei = wei
	return b, nil
}

func (s *Session) ContractsStatus(ctx context.Context) (*ContractsStatus, error) {
	status := &ContractsStatus{}
	for _, c := range s.contracts.Addresses() {
		b, err := s.balanceOf(ctx, c.Role.Label(), c.Address)
		if err != nil {
			return nil, err
		}
		status.Contracts = append(status.Contracts, b)
	}

	if s.contracts.Initialized() {
		deposit, err := s.contracts.WalletDeposit(ctx)
		if err != nil {
			return nil, fmt.Errorf("wallet deposit: %w", err)
		}
		status.WalletDeposit = deposit
	}
	return status, nil
}

func (s *Session) AccountsStatus(ctx context.Context) (*AccountsStatus, error) {
	status := &AccountsStatus{}

	if addr, ok := s.accounts.DefaultAccount(); ok {
		b, err := s.balanceOf(ctx, "default", &addr)
		if err != nil {
			return nil, err
		}
		status.Default = &b
	}

	for _, r := range s.accounts.Addresses() {
		b, err := s.balanceOf(ctx, string(r.Role), r.Address)
		if err != nil {
			return nil, err
		}
		status.Roles = append(status.Roles, b)
	}
	return status, nil
}

// NodeAccounts lists the accounts managed by the node with their balances.
func (s *Session) NodeAccounts(ctx context.Context) ([]Balance, error) {
	addrs, err := s.node.Accounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("eth_accounts: %w", err)
	}

	out := make([]Balance, 0, len(addrs))
	for i := range addrs {
		b, err := s.balanceOf(ctx, fmt.Sprintf("#%d", i), &addrs[i])
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}
