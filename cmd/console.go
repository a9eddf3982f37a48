package cmd

import (
	"github.com/spf13/cobra"

	"github.com/AvaProtocol/eip4337-console/core/console"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "start the interactive console",
	Long: `Start the interactive menu. Accounts and contracts only live for the
duration of the session; nothing is persisted.`,
	RunE: runConsole,
}

func runConsole(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	prompter := console.NewTeaPrompter(cmd.InOrStdin(), cmd.OutOrStdout())
	return console.New(s, prompter, newPrinter(cmd), s.Config().Logger).Run(ctx)
}

func init() {
	rootCmd.AddCommand(consoleCmd)
}
