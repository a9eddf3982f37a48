package config

import (
	"os"
	"path/filepath"
)

const (
	// RpcUrlEnv overrides eth_rpc_url from the config file.
	RpcUrlEnv = "EIP4337_RPC_URL"

	DefaultConfigPath = "config/console.yaml"
)

func defaultInstallDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "eip4337-console", "solc")
	}
	return filepath.Join(home, ".eip4337-console", "solc")
}
