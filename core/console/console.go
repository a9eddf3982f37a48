// Package console is the interactive menu driving a session through account
// setup, contract setup and user operations.
package console

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/AvaProtocol/eip4337-console/core/accounts"
	"github.com/AvaProtocol/eip4337-console/core/display"
	"github.com/AvaProtocol/eip4337-console/core/session"
	"github.com/AvaProtocol/eip4337-console/pkg/erc4337/preset"
	"github.com/AvaProtocol/eip4337-console/pkg/logger"
	"github.com/AvaProtocol/eip4337-console/pkg/units"
)

const (
	ActionSetupAccounts  = "Initialize accounts"
	ActionSetupContracts = "Initialize contracts"
	ActionUserOperation  = "User operation"
	ActionFundAccounts   = "Fund accounts"
	ActionStatus         = "View status"
	ActionHelp           = "Help"
	ActionExit           = "Exit"

	StatusAll          = "Show all"
	StatusChain        = "Chain state"
	StatusContracts    = "Contracts"
	StatusAccounts     = "Accounts"
	StatusNodeAccounts = "Node accounts"

	ReturnToMain = "Return to main menu"
)

type Console struct {
	session  *session.Session
	prompter Prompter
	printer  *display.Printer
	logger   logger.Logger
}

func New(s *session.Session, prompter Prompter, printer *display.Printer, lgr logger.Logger) *Console {
	return &Console{
		session:  s,
		prompter: prompter,
		printer:  printer,
		logger:   logger.EnsureLogger(lgr),
	}
}

// MainMenu lists the top level actions, disabling those whose setup
// precondition is not met yet.
func (c *Console) MainMenu() []Choice {
	state := c.session.State()
	return []Choice{
		{Label: ActionSetupAccounts, Key: "a", Disabled: state >= session.AccountsReady},
		{Label: ActionSetupContracts, Key: "c", Disabled: state != session.AccountsReady},
		{Label: ActionUserOperation, Key: "u", Disabled: state != session.ContractsReady},
		{Label: ActionFundAccounts, Key: "f", Disabled: state < session.AccountsReady},
		{Label: ActionStatus, Key: "v"},
		{Label: ActionHelp, Key: "h"},
		{Label: ActionExit, Key: "q"},
	}
}

// Run loops over the main menu until the user exits. Failed actions are
// reported and the menu is shown again.
func (c *Console) Run(ctx context.Context) error {
	c.printer.Welcome()
	if c.session.State() == session.Uninitialized {
		c.printer.Println("To initialize contracts, you must first initialize accounts.")
	}
	c.printer.Println()
	c.printer.Println("What would you like to do?")

	for {
		action, err := c.prompter.Select("Choose an action:", c.MainMenu())
		if errors.Is(err, ErrAborted) {
			c.printer.Println("Goodbye!")
			return nil
		}
		if err != nil {
			return err
		}

		if action == ActionExit {
			c.printer.Println("Goodbye!")
			return nil
		}

		if err := c.Dispatch(ctx, action); err != nil {
			if errors.Is(err, ErrAborted) {
				continue
			}
			c.logger.Debug("action failed", "action", action, "error", err)
			c.printer.Error("%v", err)
		}
	}
}

// Dispatch runs one main menu action.
func (c *Console) Dispatch(ctx context.Context, action string) error {
	switch action {
	case ActionSetupAccounts:
		return c.SetupAccounts(ctx)
	case ActionSetupContracts:
		return c.SetupContracts(ctx)
	case ActionUserOperation:
		return c.UserOperation(ctx)
	case ActionFundAccounts:
		return c.FundAccounts(ctx)
	case ActionStatus:
		return c.Status(ctx)
	case ActionHelp:
		return c.Help()
	}
	return fmt.Errorf("unknown action %q", action)
}

func (c *Console) SetupAccounts(ctx context.Context) error {
	c.printer.Heading("Account Setup")
	c.printer.Println("Creating new accounts required for the EIP-4337 flow.")

	if err := c.ensureDefaultBalance(ctx); err != nil {
		return err
	}
	amounts, err := c.promptAmounts()
	if err != nil {
		return err
	}
	if err := c.session.SetupAccounts(ctx, amounts); err != nil {
		return err
	}

	c.printer.Success("Accounts created successfully.")
	return c.showAccounts(ctx)
}

func (c *Console) FundAccounts(ctx context.Context) error {
	c.printer.Heading("Fund Accounts")
	c.printer.Println("Top up accounts to the amounts specified.")

	if err := c.ensureDefaultBalance(ctx); err != nil {
		return err
	}
	amounts, err := c.promptAmounts()
	if err != nil {
		return err
	}
	if err := c.session.FundAccounts(ctx, amounts); err != nil {
		return err
	}

	c.printer.Success("Accounts funded successfully.")
	return c.showAccounts(ctx)
}

// ensureDefaultBalance offers to top up the node default account when it
// holds less than the configured minimum.
func (c *Console) ensureDefaultBalance(ctx context.Context) error {
	addr, sufficient, err := c.session.CheckDefaultAccount(ctx)
	if err != nil {
		return err
	}
	if sufficient {
		return nil
	}

	minimum := c.session.Config().Funding.DefaultMinimum
	ok, err := c.prompter.Confirm(fmt.Sprintf(
		"Default account has insufficient balance. Would you like to fund it with %s ETH?", minimum), true)
	if err != nil || !ok {
		return err
	}

	if err := c.session.TopUpDefaultAccount(ctx); err != nil {
		return fmt.Errorf("failed to set balance for default account %s: %w", addr.Hex(), err)
	}
	balance, err := c.session.Node().BalanceAt(ctx, addr, nil)
	if err != nil {
		return err
	}
	c.printer.Success("Default account balance updated to %s ETH", units.FormatEther(balance))
	return nil
}

func (c *Console) promptAmounts() (accounts.Amounts, error) {
	amounts := c.session.DefaultAmounts()

	names := make([]string, len(accounts.Roles))
	for i, role := range accounts.Roles {
		names[i] = string(role)
	}
	c.printer.Println()
	c.printer.Println(fmt.Sprintf("Creating accounts for %s.", strings.Join(names, ", ")))
	c.printer.Println("Accounts will be pre-funded with default amounts.")
	c.printer.Amounts(amounts)

	change, err := c.prompter.Confirm("Would you like to change the default amounts?", false)
	if err != nil || !change {
		return amounts, err
	}

	for _, role := range accounts.Roles {
		raw, err := c.prompter.Input(fmt.Sprintf("Amount of ETH to fund %s with:", role), amounts[role].String())
		if err != nil {
			return nil, err
		}
		amount, err := parseAmount(raw)
		if err != nil {
			return nil, fmt.Errorf("amount for %s: %w", role, err)
		}
		amounts[role] = amount
	}
	return amounts, nil
}

func parseAmount(raw string) (decimal.Decimal, error) {
	amount, err := units.ParseEther(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, err
	}
	if amount.IsNegative() {
		return decimal.Zero, fmt.Errorf("amount must not be negative: %s", raw)
	}
	return amount, nil
}

func (c *Console) SetupContracts(ctx context.Context) error {
	c.printer.Heading("Contract Setup")
	c.printer.Println("This will deploy the EntryPoint and SimpleAccount contracts.")

	ok, err := c.prompter.Confirm("Are you sure you want to deploy the contracts?", true)
	if err != nil || !ok {
		return err
	}

	setup, err := c.session.SetupContracts(ctx)
	c.printer.ContractsSetup(setup)
	if err != nil {
		if diagnosis, ok := c.session.DiagnoseError(ctx, err); ok {
			c.printer.Diagnosis(diagnosis)
		}
		return err
	}
	c.printer.Success("SimpleAccount funded with %s ETH", setup.WalletFunding)

	status, err := c.session.ContractsStatus(ctx)
	if err != nil {
		return err
	}
	c.printer.ContractState(status)
	return nil
}

func (c *Console) UserOperation(ctx context.Context) error {
	c.printer.Heading("User Operation")
	c.printer.Println("Execute a user operation on the EntryPoint.")

	beneficiary, err := c.session.Accounts().Require(accounts.Beneficiary)
	if err != nil {
		return err
	}

	var in preset.OperationInput
	if in.Target, err = c.prompter.Input("Target address:", beneficiary.Address.Hex()); err != nil {
		return err
	}
	if in.Value, err = c.prompter.Input("Value (ETH):", "0"); err != nil {
		return err
	}
	if in.Data, err = c.prompter.Input("Data (hex, 0x...):", "0x"); err != nil {
		return err
	}

	call, err := preset.ParseOperationInput(in)
	if err != nil {
		return err
	}

	outcome, err := c.session.ExecuteOperation(ctx, *call)
	c.printer.Outcome(outcome)
	if err != nil {
		return fmt.Errorf("execute operation failed: %w", err)
	}

	c.printer.Success("User operation executed successfully.")
	return nil
}

func (c *Console) Status(ctx context.Context) error {
	c.printer.Heading("View Status")
	c.printer.Println("View the status of the node, accounts and contracts.")

	choices := []Choice{
		{Label: StatusAll},
		{Label: StatusChain},
		{Label: StatusContracts},
		{Label: StatusAccounts},
		{Label: StatusNodeAccounts},
		{Label: ReturnToMain},
	}
	for {
		item, err := c.prompter.Select("Select an item to view the status:", choices)
		if err != nil {
			return err
		}
		if item == ReturnToMain {
			return nil
		}
		if err := c.ShowStatus(ctx, item); err != nil {
			c.printer.Error("%v", err)
		}
	}
}

// ShowStatus prints one status view and warns when setup is incomplete.
func (c *Console) ShowStatus(ctx context.Context, item string) error {
	hasErrors := false

	if item == StatusAll || item == StatusChain {
		status, err := c.session.ChainStatus(ctx)
		if err != nil {
			return err
		}
		c.printer.ChainState(status)
	}
	if item == StatusAll || item == StatusContracts {
		status, err := c.session.ContractsStatus(ctx)
		if err != nil {
			return err
		}
		hasErrors = c.printer.ContractState(status) || hasErrors
	}
	if item == StatusAll || item == StatusAccounts {
		status, err := c.session.AccountsStatus(ctx)
		if err != nil {
			return err
		}
		hasErrors = c.printer.AccountsState(status) || hasErrors
	}
	if item == StatusAll || item == StatusNodeAccounts {
		list, err := c.session.NodeAccounts(ctx)
		if err != nil {
			return err
		}
		c.printer.NodeAccounts(list)
	}

	if hasErrors {
		c.printer.Println()
		c.printer.InitWarning()
	}
	return nil
}

func (c *Console) showAccounts(ctx context.Context) error {
	status, err := c.session.AccountsStatus(ctx)
	if err != nil {
		return err
	}
	c.printer.AccountsState(status)
	return nil
}

func (c *Console) Help() error {
	c.printer.Heading("Help")
	c.printer.Println("Find out more about this tool and the EIP-4337 flow.")

	choices := make([]Choice, 0, len(display.HelpTopics)+1)
	for _, t := range display.HelpTopics {
		choices = append(choices, Choice{Label: t.Title})
	}
	choices = append(choices, Choice{Label: ReturnToMain})

	for {
		item, err := c.prompter.Select("What would you like to learn?", choices)
		if err != nil {
			return err
		}
		if item == ReturnToMain {
			return nil
		}
		for _, t := range display.HelpTopics {
			if t.Title == item {
				c.printer.Help(t)
			}
		}
	}
}
