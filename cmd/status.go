package cmd

import (
	"github.com/spf13/cobra"

	"github.com/AvaProtocol/eip4337-console/core/console"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Display node status",
	Long: `Display the chain state and the node managed accounts. A fresh process has no
accounts or contracts, so those sections only report what is missing.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		ctx, cancel := withTimeout(cmd.Context(), s)
		defer cancel()

		c := console.New(s, nil, newPrinter(cmd), s.Config().Logger)
		return c.ShowStatus(ctx, console.StatusAll)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
