package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/AvaProtocol/eip4337-console/core/config"
	"github.com/AvaProtocol/eip4337-console/core/display"
	"github.com/AvaProtocol/eip4337-console/core/session"
	"github.com/AvaProtocol/eip4337-console/pkg/logger"
)

// rootCmd represents the base command when called without any subcommands
var (
	configPath = config.DefaultConfigPath
	rpcURL     string
	verbose    bool

	rootCmd = &cobra.Command{
		Use:   "eip4337-console",
		Short: "EIP-4337 teaching console",
		Long: `Interactive console to walk through the EIP-4337 Account Abstraction flow
against a local development node such as anvil.

Running without a sub command starts the interactive console, same as
"eip4337-console console".`,
		SilenceUsage: true,
		RunE:         runConsole,
	}
)

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultConfigPath, "Path to config file")
	rootCmd.PersistentFlags().StringVar(&rpcURL, "rpc-url", "", "Node JSON-RPC url, overrides eth_rpc_url")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Dump receipts and debug output")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.NewConfig(configPath)
	if err != nil {
		return nil, err
	}
	if rpcURL != "" {
		cfg.EthRpcUrl = rpcURL
	}
	if !verbose {
		cfg.Logger = logger.Quiet(cfg.Logger)
	}
	return cfg, nil
}

// openSession loads the config and dials the node. The dial honours
// rpc_timeout.
func openSession(ctx context.Context) (*session.Session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	dialCtx := ctx
	if cfg.RpcTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, cfg.RpcTimeout)
		defer cancel()
	}
	return session.New(dialCtx, cfg)
}

// withTimeout bounds a whole non-interactive command by rpc_timeout.
func withTimeout(ctx context.Context, s *session.Session) (context.Context, context.CancelFunc) {
	if timeout := s.Config().RpcTimeout; timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return context.WithCancel(ctx)
}

func newPrinter(cmd *cobra.Command) *display.Printer {
	return display.New(cmd.OutOrStdout(), verbose)
}
