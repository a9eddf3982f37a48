package console

import (
	"context"
	"fmt"

	"github.com/AvaProtocol/eip4337-console/core/accounts"
	"github.com/AvaProtocol/eip4337-console/core/display"
	"github.com/AvaProtocol/eip4337-console/core/session"
	"github.com/AvaProtocol/eip4337-console/pkg/erc4337/preset"
)

// RunFlow performs every setup step that is still missing and then sends one
// operation, without prompting. An empty in.Target sends to the beneficiary.
func RunFlow(ctx context.Context, s *session.Session, printer *display.Printer, in preset.OperationInput) (*session.OperationOutcome, error) {
	if s.State() == session.Uninitialized {
		addr, sufficient, err := s.CheckDefaultAccount(ctx)
		if err != nil {
			return nil, err
		}
		if !sufficient {
			printer.Warning("Default account %s is below %s ETH, topping it up", addr.Hex(), s.Config().Funding.DefaultMinimum)
			if err := s.TopUpDefaultAccount(ctx); err != nil {
				return nil, err
			}
		}

		if err := s.SetupAccounts(ctx, s.DefaultAmounts()); err != nil {
			return nil, fmt.Errorf("account setup: %w", err)
		}
		printer.Success("Accounts created successfully.")
	}

	if s.State() == session.AccountsReady {
		setup, err := s.SetupContracts(ctx)
		printer.ContractsSetup(setup)
		if err != nil {
			if diagnosis, ok := s.DiagnoseError(ctx, err); ok {
				printer.Diagnosis(diagnosis)
			}
			return nil, fmt.Errorf("contract setup: %w", err)
		}
	}

	if in.Target == "" {
		beneficiary, err := s.Accounts().Require(accounts.Beneficiary)
		if err != nil {
			return nil, err
		}
		in.Target = beneficiary.Address.Hex()
	}
	call, err := preset.ParseOperationInput(in)
	if err != nil {
		return nil, err
	}

	outcome, err := s.ExecuteOperation(ctx, *call)
	printer.Outcome(outcome)
	if err != nil {
		return outcome, fmt.Errorf("execute operation failed: %w", err)
	}
	printer.Success("User operation executed successfully.")
	return outcome, nil
}
