package cmd

import (
	"github.com/spf13/cobra"

	"github.com/AvaProtocol/eip4337-console/core/console"
	"github.com/AvaProtocol/eip4337-console/pkg/erc4337/preset"
)

var (
	runInput preset.OperationInput

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "run the whole flow without prompts",
		Long: `Create and fund the accounts, deploy the EntryPoint and the SimpleAccount,
then send one UserOperation. Without --target the operation pays the
beneficiary account.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			ctx, cancel := withTimeout(cmd.Context(), s)
			defer cancel()

			printer := newPrinter(cmd)
			printer.Welcome()
			_, err = console.RunFlow(ctx, s, printer, runInput)
			return err
		},
	}
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runInput.Target, "target", "", "Call target address, defaults to the beneficiary")
	runCmd.Flags().StringVar(&runInput.Value, "value", "0", "Value in ETH")
	runCmd.Flags().StringVar(&runInput.Data, "data", "0x", "Call data, hex encoded")
}
