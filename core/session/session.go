// Package session holds the console's in-memory setup: the chain client, the
// account and contract registries and the operation pipeline built on them.
package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"

	"github.com/AvaProtocol/eip4337-console/core/accounts"
	"github.com/AvaProtocol/eip4337-console/core/chainio"
	"github.com/AvaProtocol/eip4337-console/core/compiler"
	"github.com/AvaProtocol/eip4337-console/core/config"
	"github.com/AvaProtocol/eip4337-console/core/contracts"
	"github.com/AvaProtocol/eip4337-console/pkg/erc4337/bundler"
	"github.com/AvaProtocol/eip4337-console/pkg/erc4337/preset"
	"github.com/AvaProtocol/eip4337-console/pkg/erc4337/userop"
	"github.com/AvaProtocol/eip4337-console/pkg/logger"
)

type State int

const (
	Uninitialized State = iota
	AccountsReady
	ContractsReady
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case AccountsReady:
		return "accounts ready"
	case ContractsReady:
		return "contracts ready"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ErrPrecondition is shared with the operation pipeline so callers test a
// single sentinel.
var ErrPrecondition = preset.ErrPrecondition

type Session struct {
	config    *config.Config
	node      chainio.Node
	accounts  *accounts.Registry
	contracts *contracts.Registry
	logger    logger.Logger
}

// New dials the configured node and resolves contract artifacts through the
// compiler toolchain.
func New(ctx context.Context, cfg *config.Config) (*Session, error) {
	client, err := chainio.NewClient(ctx, cfg.EthRpcUrl, cfg.Logger)
	if err != nil {
		return nil, err
	}
	toolchain := compiler.NewToolchain(cfg.Compiler, cfg.Artifacts, cfg.Logger)
	return NewWithNode(cfg, client, toolchain, cfg.Logger), nil
}

func NewWithNode(cfg *config.Config, node chainio.Node, artifacts contracts.ArtifactSource, lgr logger.Logger) *Session {
	lgr = logger.EnsureLogger(lgr)
	return &Session{
		config:    cfg,
		node:      node,
		accounts:  accounts.NewRegistry(node, lgr),
		contracts: contracts.NewRegistry(node, artifacts, cfg.Gas, lgr),
		logger:    lgr,
	}
}

func (s *Session) Config() *config.Config {
	return s.config
}

func (s *Session) Node() chainio.Node {
	return s.node
}

func (s *Session) Accounts() *accounts.Registry {
	return s.accounts
}

func (s *Session) Contracts() *contracts.Registry {
	return s.contracts
}

// Close releases the node connection when the node holds one.
func (s *Session) Close() {
	if closer, ok := s.node.(interface{ Close() }); ok {
		closer.Close()
	}
}

// State derives the setup stage from the registries.
func (s *Session) State() State {
	switch {
	case !s.accounts.Initialized():
		return Uninitialized
	case !s.contracts.Initialized():
		return AccountsReady
	}
	return ContractsReady
}

func (s *Session) require(want State) error {
	if state := s.State(); state < want {
		return fmt.Errorf("%w: %s required, session is %s", ErrPrecondition, want, state)
	}
	return nil
}

// DefaultAmounts are the configured funding amounts per role.
func (s *Session) DefaultAmounts() accounts.Amounts {
	return accounts.Amounts{
		accounts.Owner:       s.config.Funding.Owner,
		accounts.Bundler:     s.config.Funding.Bundler,
		accounts.Beneficiary: s.config.Funding.Beneficiary,
	}
}

// CheckDefaultAccount selects the node default account and reports whether
// it holds at least the configured minimum.
func (s *Session) CheckDefaultAccount(ctx context.Context) (common.Address, bool, error) {
	addr, ok := s.accounts.DefaultAccount()
	if !ok {
		var err error
		if addr, err = s.accounts.InitializeDefaultAccount(ctx); err != nil {
			return common.Address{}, false, err
		}
	}

	sufficient, err := s.accounts.SufficientBalance(ctx, addr, s.config.Funding.DefaultMinimum)
	if err != nil {
		return addr, false, err
	}
	return addr, sufficient, nil
}

// TopUpDefaultAccount sets the default account balance to the configured
// minimum. It only works on dev nodes that implement anvil_setBalance.
func (s *Session) TopUpDefaultAccount(ctx context.Context) error {
	addr, ok := s.accounts.DefaultAccount()
	if !ok {
		return accounts.ErrNoDefaultAccount
	}
	if err := s.accounts.SetBalance(ctx, addr, s.config.Funding.DefaultMinimum); err != nil {
		return fmt.Errorf("set balance of default account %s: %w", addr.Hex(), err)
	}
	return nil
}

// SetupAccounts creates and funds the role accounts.
func (s *Session) SetupAccounts(ctx context.Context, amounts accounts.Amounts) error {
	if s.accounts.Initialized() {
		return fmt.Errorf("%w: accounts already initialized", ErrPrecondition)
	}
	if _, _, err := s.CheckDefaultAccount(ctx); err != nil {
		return err
	}
	return s.accounts.Initialize(ctx, amounts)
}

func (s *Session) FundAccounts(ctx context.Context, amounts accounts.Amounts) error {
	if err := s.require(AccountsReady); err != nil {
		return err
	}
	return s.accounts.Fund(ctx, amounts)
}

// ContractsSetup reports what SetupContracts deployed.
type ContractsSetup struct {
	EntryPoint    *contracts.Contract
	SimpleAccount *contracts.Contract
	WalletFunding decimal.Decimal
}

// SetupContracts deploys the EntryPoint and the wallet and funds the wallet.
// Contracts deployed by an earlier partial run are reused.
func (s *Session) SetupContracts(ctx context.Context) (*ContractsSetup, error) {
	if err := s.require(AccountsReady); err != nil {
		return nil, err
	}
	owner, err := s.accounts.Require(accounts.Owner)
	if err != nil {
		return nil, err
	}

	setup := &ContractsSetup{WalletFunding: s.config.Funding.Wallet}

	ep, ok := s.contracts.Get(contracts.EntryPoint)
	if !ok {
		if ep, err = s.contracts.DeployEntryPoint(ctx, owner); err != nil {
			return setup, err
		}
	}
	setup.EntryPoint = ep

	wallet, ok := s.contracts.Get(contracts.SimpleAccount)
	if ok {
		setup.SimpleAccount = wallet
		return setup, nil
	}
	if wallet, err = s.contracts.DeploySimpleAccount(ctx, owner); err != nil {
		return setup, err
	}
	setup.SimpleAccount = wallet

	if err := s.contracts.FundSimpleAccount(ctx, s.config.Funding.Wallet, owner); err != nil {
		return setup, err
	}
	return setup, nil
}

// Bundler binds the bundler account and the beneficiary.
func (s *Session) Bundler() (*bundler.Bundler, error) {
	if err := s.require(AccountsReady); err != nil {
		return nil, err
	}
	bundlerKey, err := s.accounts.Require(accounts.Bundler)
	if err != nil {
		return nil, err
	}
	beneficiary, err := s.accounts.Require(accounts.Beneficiary)
	if err != nil {
		return nil, err
	}
	return bundler.New(s.node, bundlerKey.PrivateKey, beneficiary.Address, bundler.Config{
		GasLimit:  s.config.Gas.HandleOpsGasLimit,
		FeePolicy: s.config.FeePolicy,
	}, s.logger), nil
}

// Builder returns an operation builder for the deployed wallet.
func (s *Session) Builder() (*preset.Builder, error) {
	if err := s.require(ContractsReady); err != nil {
		return nil, err
	}
	owner, err := s.accounts.Require(accounts.Owner)
	if err != nil {
		return nil, err
	}
	b, err := s.Bundler()
	if err != nil {
		return nil, err
	}
	wallet, err := s.contracts.Require(contracts.SimpleAccount)
	if err != nil {
		return nil, err
	}

	return preset.NewBuilder(preset.BuilderConfig{
		EntryPoint:      s.contracts.EntryPoint(),
		Wallet:          wallet.Address,
		WalletABI:       wallet.ABI,
		Owner:           owner.PrivateKey,
		Bundler:         b,
		Gas:             preset.GasSettingsFromConfig(s.config.Gas),
		SignatureScheme: s.config.SignatureScheme,
	}, s.logger)
}

// OperationOutcome is the result of ExecuteOperation. Logs are decoded from
// the handleOps receipt whether or not the transaction succeeded.
type OperationOutcome struct {
	Result    *preset.Result
	Logs      []contracts.TransactionLog
	Diagnosis *Diagnosis
}

// ExecuteOperation builds, signs and submits one operation from the wallet.
func (s *Session) ExecuteOperation(ctx context.Context, call preset.Call) (*OperationOutcome, error) {
	builder, err := s.Builder()
	if err != nil {
		return nil, err
	}

	result, execErr := builder.Execute(ctx, call.Target, call.Value, call.Data)
	outcome := &OperationOutcome{Result: result}

	if result != nil && result.Receipt != nil {
		logs, err := s.contracts.DecodeReceiptLogs(result.Receipt)
		if err != nil {
			s.logger.Warn("could not decode operation logs", "tx", result.Receipt.TxHash.Hex(), "error", err)
		}
		outcome.Logs = logs
	}

	if errors.Is(execErr, preset.ErrOperationReverted) && result.Receipt != nil {
		outcome.Diagnosis = s.Diagnose(ctx, result.Receipt)
		if outcome.Diagnosis.ReasonErr != nil && result.Operation != nil {
			s.simulateOperation(ctx, result.Operation.UserOp, outcome.Diagnosis)
		}
	}
	return outcome, execErr
}

// simulateOperation runs op through handleOps as eth_call at the latest block
// when replaying the mined transaction gave no reason.
func (s *Session) simulateOperation(ctx context.Context, op *userop.UserOperation, d *Diagnosis) {
	packed, err := op.Pack()
	if err != nil {
		return
	}
	b, err := s.Bundler()
	if err != nil {
		return
	}

	err = b.Simulate(ctx, s.contracts.EntryPoint(), []userop.PackedUserOperation{packed})
	var simErr *bundler.SimulationError
	if errors.As(err, &simErr) {
		d.Reason, d.ReasonErr = simErr.Reason, nil
		return
	}
	s.logger.Debug("simulation gave no revert reason", "sender", op.Sender.Hex(), "error", err)
}

// Diagnosis explains a failed transaction: decoded logs when there are any,
// otherwise the revert reason recovered by replaying it.
type Diagnosis struct {
	Receipt   *types.Receipt
	Logs      []contracts.TransactionLog
	Reason    string
	ReasonErr error
}

func (s *Session) Diagnose(ctx context.Context, receipt *types.Receipt) *Diagnosis {
	d := &Diagnosis{Receipt: receipt}
	if receipt == nil {
		d.ReasonErr = errors.New("no receipt")
		return d
	}

	logs, err := s.contracts.DecodeReceiptLogs(receipt)
	if err == nil && len(logs) > 0 {
		d.Logs = logs
		return d
	}

	d.Reason, d.ReasonErr = s.contracts.RevertReason(ctx, receipt.TxHash, receipt.BlockNumber)
	return d
}

// DiagnoseError runs Diagnose when err carries a failed receipt.
func (s *Session) DiagnoseError(ctx context.Context, err error) (*Diagnosis, bool) {
	var failed *chainio.TransactionFailedError
	if errors.As(err, &failed) {
		return s.Diagnose(ctx, failed.Receipt), true
	}
	var perr *preset.Error
	if errors.As(err, &perr) && perr.Receipt != nil {
		return s.Diagnose(ctx, perr.Receipt), true
	}
	return nil, false
}
