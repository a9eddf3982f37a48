package console

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"testing"

	"github.com/fatih/color"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AvaProtocol/eip4337-console/core/accounts"
	"github.com/AvaProtocol/eip4337-console/core/chainio"
	"github.com/AvaProtocol/eip4337-console/core/chainio/aa"
	"github.com/AvaProtocol/eip4337-console/core/compiler"
	"github.com/AvaProtocol/eip4337-console/core/config"
	"github.com/AvaProtocol/eip4337-console/core/contracts"
	"github.com/AvaProtocol/eip4337-console/core/display"
	"github.com/AvaProtocol/eip4337-console/core/session"
	"github.com/AvaProtocol/eip4337-console/core/testutil"
	"github.com/AvaProtocol/eip4337-console/pkg/erc4337/preset"
	"github.com/AvaProtocol/eip4337-console/pkg/units"
)

func init() {
	color.NoColor = true
}

type stubArtifacts struct{}

func (stubArtifacts) EntryPoint(ctx context.Context) (*compiler.Artifact, error) {
	return &compiler.Artifact{Name: "EntryPoint", ABI: &aa.EntryPointABI, Bytecode: testutil.EntryPointCode}, nil
}

func (stubArtifacts) SimpleAccount(ctx context.Context) (*compiler.Artifact, error) {
	return &compiler.Artifact{Name: "SimpleAccount", ABI: &aa.SimpleAccountABI, Bytecode: testutil.WalletCode}, nil
}

// scriptedPrompter answers prompts from a fixed script. Select and Input
// take strings, Confirm takes bools; an empty Input answer takes the
// default. When the script runs out every prompt aborts.
type scriptedPrompter struct {
	t       *testing.T
	answers []interface{}
	menus   [][]Choice
}

func (p *scriptedPrompter) next() (interface{}, bool) {
	if len(p.answers) == 0 {
		return nil, false
	}
	a := p.answers[0]
	p.answers = p.answers[1:]
	return a, true
}

func (p *scriptedPrompter) Select(message string, choices []Choice) (string, error) {
	p.menus = append(p.menus, choices)
	a, ok := p.next()
	if !ok {
		return "", ErrAborted
	}
	label, isString := a.(string)
	require.True(p.t, isString, "prompt %q expects a selection, script has %v", message, a)

	for _, c := range choices {
		if c.Label == label {
			require.False(p.t, c.Disabled, "choice %q is disabled", label)
			return label, nil
		}
	}
	p.t.Fatalf("prompt %q has no choice %q", message, label)
	return "", nil
}

func (p *scriptedPrompter) Input(message, defaultValue string) (string, error) {
	a, ok := p.next()
	if !ok {
		return "", ErrAborted
	}
	value, isString := a.(string)
	require.True(p.t, isString, "prompt %q expects text, script has %v", message, a)
	if value == "" {
		return defaultValue, nil
	}
	return value, nil
}

func (p *scriptedPrompter) Confirm(message string, defaultValue bool) (bool, error) {
	a, ok := p.next()
	if !ok {
		return false, ErrAborted
	}
	value, isBool := a.(bool)
	require.True(p.t, isBool, "prompt %q expects a confirmation, script has %v", message, a)
	return value, nil
}

type fixture struct {
	session  *session.Session
	chain    *testutil.FakeChain
	prompter *scriptedPrompter
	out      *bytes.Buffer
	console  *Console
}

func newFixture(t *testing.T, answers ...interface{}) *fixture {
	t.Helper()
	cfg, err := config.FromRaw(config.DefaultConfigRaw())
	require.NoError(t, err)

	chain := testutil.NewFakeChain()
	s := session.NewWithNode(cfg, chain, stubArtifacts{}, testutil.GetLogger())

	var out bytes.Buffer
	prompter := &scriptedPrompter{t: t, answers: answers}
	return &fixture{
		session:  s,
		chain:    chain,
		prompter: prompter,
		out:      &out,
		console:  New(s, prompter, display.New(&out, false), testutil.GetLogger()),
	}
}

func disabledLabels(choices []Choice) []string {
	var out []string
	for _, c := range choices {
		if c.Disabled {
			out = append(out, c.Label)
		}
	}
	return out
}

func TestMainMenuFollowsSetupState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.Equal(t, []string{ActionSetupContracts, ActionUserOperation, ActionFundAccounts}, disabledLabels(f.console.MainMenu()))

	require.NoError(t, f.session.SetupAccounts(ctx, f.session.DefaultAmounts()))
	assert.Equal(t, []string{ActionSetupAccounts, ActionUserOperation}, disabledLabels(f.console.MainMenu()))

	_, err := f.session.SetupContracts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{ActionSetupAccounts, ActionSetupContracts}, disabledLabels(f.console.MainMenu()))

	keys := make([]string, 0)
	for _, c := range f.console.MainMenu() {
		keys = append(keys, c.Key)
	}
	assert.Equal(t, []string{"a", "c", "u", "f", "v", "h", "q"}, keys)
}

func TestRunFullFlow(t *testing.T) {
	f := newFixture(t,
		ActionSetupAccounts, false,
		ActionSetupContracts, true,
		ActionUserOperation, "", "0.5", "",
		ActionExit,
	)

	require.NoError(t, f.console.Run(context.Background()))
	assert.Empty(t, f.prompter.answers)
	assert.Equal(t, session.ContractsReady, f.session.State())

	out := f.out.String()
	assert.Contains(t, out, "=== 🧰 Welcome to the EIP-4337 Tool ===")
	assert.Contains(t, out, "To initialize contracts, you must first initialize accounts.")
	assert.Contains(t, out, "Accounts created successfully.")
	assert.Contains(t, out, "EntryPoint deployed at")
	assert.Contains(t, out, "Gas balance (via EntryPoint)")
	assert.Contains(t, out, "Wallet (SimpleAccount) emitted log: Executed")
	assert.Contains(t, out, "User operation executed successfully.")
	assert.Contains(t, out, "Goodbye!")
	assert.NotContains(t, out, "❌")

	beneficiary, err := f.session.Accounts().Require(accounts.Beneficiary)
	require.NoError(t, err)
	half := units.EtherToWei(decimal.RequireFromString("0.5"))
	assert.True(t, f.chain.Balances[beneficiary.Address].Cmp(half) > 0)
}

func TestRunAbortExits(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.console.Run(context.Background()))
	assert.Contains(t, f.out.String(), "Goodbye!")
}

func TestRunReportsActionErrors(t *testing.T) {
	f := newFixture(t, ActionSetupAccounts, true, "abc", ActionExit)
	require.NoError(t, f.console.Run(context.Background()))

	assert.Contains(t, f.out.String(), "❌ amount for owner")
	assert.Equal(t, session.Uninitialized, f.session.State())
}

func TestSetupAccountsCustomAmounts(t *testing.T) {
	f := newFixture(t, true, "5", "2", "1")
	ctx := context.Background()
	require.NoError(t, f.console.SetupAccounts(ctx))

	owner, err := f.session.Accounts().Require(accounts.Owner)
	require.NoError(t, err)
	assert.Equal(t, units.EtherToWei(decimal.NewFromInt(5)), f.chain.Balances[owner.Address])
	assert.Contains(t, f.out.String(), "Owner account: "+owner.Address.Hex()+" with balance 5 ETH")
}

func TestSetupAccountsTopsUpDefaultAccount(t *testing.T) {
	f := newFixture(t, true, false)
	f.chain.Balances[f.chain.NodeAccounts[0]] = units.EtherToWei(decimal.NewFromInt(1))

	require.NoError(t, f.console.SetupAccounts(context.Background()))
	assert.Contains(t, f.out.String(), "Default account balance updated to 10000 ETH")
	assert.Equal(t, session.AccountsReady, f.session.State())
}

func TestSetupAccountsDeclinedTopUp(t *testing.T) {
	f := newFixture(t, false, false)
	f.chain.Balances[f.chain.NodeAccounts[0]] = units.EtherToWei(decimal.NewFromInt(1))

	err := f.console.SetupAccounts(context.Background())
	require.ErrorIs(t, err, chainio.ErrTransactionFailed)
}

func TestFundAccounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.session.SetupAccounts(ctx, f.session.DefaultAmounts()))

	// the default account dropped below the minimum during setup
	f.prompter.answers = []interface{}{true, false}
	require.NoError(t, f.console.FundAccounts(ctx))
	assert.Contains(t, f.out.String(), "Accounts funded successfully.")
}

func TestSetupContractsDeclined(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	require.NoError(t, f.session.SetupAccounts(ctx, f.session.DefaultAmounts()))

	require.NoError(t, f.console.SetupContracts(ctx))
	assert.Equal(t, session.AccountsReady, f.session.State())
}

func TestSetupContractsFailure(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	require.NoError(t, f.session.SetupAccounts(ctx, f.session.DefaultAmounts()))
	f.chain.RevertDeploys = true

	err := f.console.SetupContracts(ctx)
	require.ErrorIs(t, err, chainio.ErrTransactionFailed)
	assert.Equal(t, session.AccountsReady, f.session.State())
}

func TestUserOperationInvalidInput(t *testing.T) {
	tests := []struct {
		name    string
		answers []interface{}
	}{
		{"target", []interface{}{"not-an-address", "", ""}},
		{"value", []interface{}{"", "lots", ""}},
		{"data", []interface{}{"", "", "0xzz"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			require.NoError(t, f.session.SetupAccounts(ctx, f.session.DefaultAmounts()))
			_, err := f.session.SetupContracts(ctx)
			require.NoError(t, err)

			f.prompter.answers = tt.answers
			err = f.console.UserOperation(ctx)
			assert.ErrorIs(t, err, preset.ErrInvalidInput)
		})
	}
}

func TestUserOperationRevert(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.session.SetupAccounts(ctx, f.session.DefaultAmounts()))
	_, err := f.session.SetupContracts(ctx)
	require.NoError(t, err)

	ep := f.chain.EntryPoints[f.session.Contracts().EntryPoint().Address]
	wallet, err := f.session.Contracts().Require(contracts.SimpleAccount)
	require.NoError(t, err)
	ep.Deposits[wallet.Address] = big.NewInt(0)

	f.prompter.answers = []interface{}{"", "", ""}
	err = f.console.UserOperation(ctx)
	require.ErrorIs(t, err, preset.ErrOperationReverted)
	assert.Contains(t, f.out.String(), "AA21 didn't pay prefund")
}

func TestShowStatusWarnsWhenUninitialized(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.console.ShowStatus(context.Background(), StatusAll))

	out := f.out.String()
	assert.Contains(t, out, "Chain state")
	assert.Contains(t, out, "No contracts are available!")
	assert.Contains(t, out, "Default account not initialized!")
	assert.Contains(t, out, "account[0]")
	assert.Contains(t, out, display.InitWarning)
}

func TestStatusMenu(t *testing.T) {
	f := newFixture(t, StatusNodeAccounts, StatusChain, ReturnToMain)
	require.NoError(t, f.console.Status(context.Background()))

	out := f.out.String()
	assert.Contains(t, out, "account[0]")
	assert.Contains(t, out, "31337")
	assert.NotContains(t, out, display.InitWarning)
}

func TestHelpMenu(t *testing.T) {
	f := newFixture(t, "What is a bundler?", "What is a miner?", ReturnToMain)
	require.NoError(t, f.console.Help())

	out := f.out.String()
	assert.Contains(t, out, "=== What is a bundler? ===")
	assert.Contains(t, out, "=== What is a miner? ===")

	menu := f.prompter.menus[0]
	assert.Len(t, menu, len(display.HelpTopics)+1)
	assert.Equal(t, ReturnToMain, menu[len(menu)-1].Label)
}

func TestDispatchUnknownAction(t *testing.T) {
	f := newFixture(t)
	err := f.console.Dispatch(context.Background(), "Dance")
	assert.EqualError(t, err, fmt.Sprintf("unknown action %q", "Dance"))
}

func TestRunFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	outcome, err := RunFlow(ctx, f.session, display.New(f.out, false), preset.OperationInput{Value: "1"})
	require.NoError(t, err)
	require.NotNil(t, outcome.Result.Receipt)
	assert.Len(t, outcome.Logs, 3)
	assert.Equal(t, session.ContractsReady, f.session.State())

	// a second run reuses the setup and only sends an operation
	sent := len(f.chain.Sent)
	_, err = RunFlow(ctx, f.session, display.New(f.out, false), preset.OperationInput{})
	require.NoError(t, err)
	assert.Len(t, f.chain.Sent, sent+1)
}
