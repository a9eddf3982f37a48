package config

import (
	"fmt"
	"math/big"
	"os"
	"time"

	sdklogging "github.com/Layr-Labs/eigensdk-go/logging"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"

	"github.com/AvaProtocol/eip4337-console/core/chainio/signer"
	"github.com/AvaProtocol/eip4337-console/pkg/eip1559"
	"github.com/AvaProtocol/eip4337-console/pkg/units"
)

// Config is the resolved runtime configuration of the console.
type Config struct {
	Logger sdklogging.Logger

	EthRpcUrl   string
	Environment sdklogging.LogLevel
	RpcTimeout  time.Duration

	Artifacts ArtifactsConfig
	Compiler  CompilerConfig
	Funding   FundingConfig
	Gas       GasConfig

	SignatureScheme signer.Scheme
	FeePolicy       eip1559.Policy
}

// ArtifactsConfig points at precompiled {"abi", "bytecode"} JSON files. When
// a path is empty the contract is compiled from source instead.
type ArtifactsConfig struct {
	EntryPoint    string
	SimpleAccount string
}

type CompilerConfig struct {
	SolcPath            string
	SolcVersion         string
	VyperPath           string
	AutoInstall         bool
	InstallDir          string
	EntryPointSource    string
	SimpleAccountSource string
	BasePath            string
	ImportRemappings    []string
}

// FundingConfig amounts are in ether.
type FundingConfig struct {
	Owner          decimal.Decimal
	Bundler        decimal.Decimal
	Beneficiary    decimal.Decimal
	DefaultMinimum decimal.Decimal
	Wallet         decimal.Decimal
}

type GasConfig struct {
	CallGasLimit           *big.Int
	VerificationGasLimit   *big.Int
	PreVerificationGas     *big.Int
	MaxFeePerGas           *big.Int
	MaxPriorityFeePerGas   *big.Int
	HandleOpsGasLimit      uint64
	EntryPointDeployGas    uint64
	SimpleAccountDeployGas uint64
	FundGas                uint64
}

// These are read from configPath
type ConfigRaw struct {
	EthRpcUrl       string              `yaml:"eth_rpc_url" validate:"required,url"`
	Environment     sdklogging.LogLevel `yaml:"environment" validate:"oneof=development production"`
	RpcTimeout      string              `yaml:"rpc_timeout"`
	Artifacts       ArtifactsRaw        `yaml:"artifacts"`
	Compiler        CompilerRaw         `yaml:"compiler"`
	Funding         FundingRaw          `yaml:"funding"`
	Gas             GasRaw              `yaml:"gas"`
	SignatureScheme string              `yaml:"signature_scheme" validate:"omitempty,oneof=raw eip191"`
	FeePolicy       string              `yaml:"fee_policy" validate:"omitempty,oneof=gas_price eip1559"`
}

type ArtifactsRaw struct {
	EntryPoint    string `yaml:"entry_point"`
	SimpleAccount string `yaml:"simple_account"`
}

type CompilerRaw struct {
	SolcPath            string   `yaml:"solc_path"`
	SolcVersion         string   `yaml:"solc_version" validate:"omitempty,semver"`
	VyperPath           string   `yaml:"vyper_path"`
	AutoInstall         bool     `yaml:"auto_install"`
	InstallDir          string   `yaml:"install_dir"`
	EntryPointSource    string   `yaml:"entry_point_source"`
	SimpleAccountSource string   `yaml:"simple_account_source"`
	BasePath            string   `yaml:"base_path"`
	ImportRemappings    []string `yaml:"import_remappings"`
}

type FundingRaw struct {
	Owner          string `yaml:"owner" validate:"omitempty,numeric"`
	Bundler        string `yaml:"bundler" validate:"omitempty,numeric"`
	Beneficiary    string `yaml:"beneficiary" validate:"omitempty,numeric"`
	DefaultMinimum string `yaml:"default_minimum" validate:"omitempty,numeric"`
	Wallet         string `yaml:"wallet" validate:"omitempty,numeric"`
}

type GasRaw struct {
	CallGasLimit             uint64 `yaml:"call_gas_limit"`
	VerificationGasLimit     uint64 `yaml:"verification_gas_limit"`
	PreVerificationGas       uint64 `yaml:"pre_verification_gas"`
	MaxFeePerGasGwei         string `yaml:"max_fee_per_gas_gwei" validate:"omitempty,numeric"`
	MaxPriorityFeePerGasGwei string `yaml:"max_priority_fee_per_gas_gwei" validate:"omitempty,numeric"`
	HandleOpsGasLimit        uint64 `yaml:"handle_ops_gas_limit"`
	EntryPointDeployGas      uint64 `yaml:"entry_point_deploy_gas"`
	SimpleAccountDeployGas   uint64 `yaml:"simple_account_deploy_gas"`
	FundGas                  uint64 `yaml:"fund_gas"`
}

// DefaultConfigRaw mirrors a fresh anvil node and the upstream contract
// layout (contracts/core/EntryPoint.sol, contracts/SimpleAccount.vy).
func DefaultConfigRaw() ConfigRaw {
	return ConfigRaw{
		EthRpcUrl:   "http://127.0.0.1:8545",
		Environment: sdklogging.Development,
		Compiler: CompilerRaw{
			SolcPath:            "solc",
			SolcVersion:         "0.8.20",
			VyperPath:           "vyper",
			InstallDir:          defaultInstallDir(),
			EntryPointSource:    "contracts/core/EntryPoint.sol",
			SimpleAccountSource: "contracts/SimpleAccount.vy",
			BasePath:            ".",
			ImportRemappings:    []string{"@openzeppelin/contracts=node_modules/@openzeppelin/contracts/"},
		},
		Funding: FundingRaw{
			Owner:          "1000",
			Bundler:        "100",
			Beneficiary:    "0",
			DefaultMinimum: "10000",
			Wallet:         "100",
		},
		Gas: GasRaw{
			CallGasLimit:             1_000_000,
			VerificationGasLimit:     1_000_000,
			PreVerificationGas:       1_000_000,
			MaxFeePerGasGwei:         "2",
			MaxPriorityFeePerGasGwei: "1",
			HandleOpsGasLimit:        2_000_000,
			EntryPointDeployGas:      10_000_000,
			SimpleAccountDeployGas:   5_000_000,
			FundGas:                  100_000,
		},
		SignatureScheme: string(signer.SchemeRaw),
		FeePolicy:       string(eip1559.PolicyGasPrice),
	}
}

// NewConfig reads configFilePath on top of the defaults. A missing file at
// the default location is not an error; the defaults target a local anvil.
func NewConfig(configFilePath string) (*Config, error) {
	configRaw := DefaultConfigRaw()

	if configFilePath != "" {
		raw, err := os.ReadFile(configFilePath)
		switch {
		case err == nil:
			if err := yaml.UnmarshalStrict(raw, &configRaw); err != nil {
				return nil, fmt.Errorf("%s %s: %w", ErrInvalidConfigFile, configFilePath, err)
			}
		case os.IsNotExist(err) && configFilePath == DefaultConfigPath:
		default:
			return nil, fmt.Errorf("%s %s: %w", ErrReadConfigFile, configFilePath, err)
		}
	}

	if url := os.Getenv(RpcUrlEnv); url != "" {
		configRaw.EthRpcUrl = url
	}

	return FromRaw(configRaw)
}

// FromRaw validates a raw config and resolves it into a Config.
func FromRaw(configRaw ConfigRaw) (*Config, error) {
	if err := validator.New().Struct(configRaw); err != nil {
		return nil, fmt.Errorf("%s: %w", ErrInvalidConfig, err)
	}

	logger, err := sdklogging.NewZapLogger(configRaw.Environment)
	if err != nil {
		return nil, err
	}

	var timeout time.Duration
	if configRaw.RpcTimeout != "" {
		timeout, err = time.ParseDuration(configRaw.RpcTimeout)
		if err != nil {
			return nil, fmt.Errorf("%s: rpc_timeout: %w", ErrInvalidConfig, err)
		}
	}

	scheme, err := signer.ParseScheme(configRaw.SignatureScheme)
	if err != nil {
		return nil, err
	}
	policy, err := eip1559.ParsePolicy(configRaw.FeePolicy)
	if err != nil {
		return nil, err
	}

	funding, err := configRaw.Funding.resolve()
	if err != nil {
		return nil, err
	}
	gas, err := configRaw.Gas.resolve()
	if err != nil {
		return nil, err
	}

	return &Config{
		Logger:      logger,
		EthRpcUrl:   configRaw.EthRpcUrl,
		Environment: configRaw.Environment,
		RpcTimeout:  timeout,
		Artifacts: ArtifactsConfig{
			EntryPoint:    configRaw.Artifacts.EntryPoint,
			SimpleAccount: configRaw.Artifacts.SimpleAccount,
		},
		Compiler: CompilerConfig{
			SolcPath:            configRaw.Compiler.SolcPath,
			SolcVersion:         configRaw.Compiler.SolcVersion,
			VyperPath:           configRaw.Compiler.VyperPath,
			AutoInstall:         configRaw.Compiler.AutoInstall,
			InstallDir:          configRaw.Compiler.InstallDir,
			EntryPointSource:    configRaw.Compiler.EntryPointSource,
			SimpleAccountSource: configRaw.Compiler.SimpleAccountSource,
			BasePath:            configRaw.Compiler.BasePath,
			ImportRemappings:    configRaw.Compiler.ImportRemappings,
		},
		Funding:         funding,
		Gas:             gas,
		SignatureScheme: scheme,
		FeePolicy:       policy,
	}, nil
}

func (f FundingRaw) resolve() (FundingConfig, error) {
	var out FundingConfig
	fields := []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"funding.owner", f.Owner, &out.Owner},
		{"funding.bundler", f.Bundler, &out.Bundler},
		{"funding.beneficiary", f.Beneficiary, &out.Beneficiary},
		{"funding.default_minimum", f.DefaultMinimum, &out.DefaultMinimum},
		{"funding.wallet", f.Wallet, &out.Wallet},
	}
	for _, field := range fields {
		amount, err := parseAmount(field.name, field.raw, units.EtherDecimals)
		if err != nil {
			return out, err
		}
		*field.dst = amount
	}
	return out, nil
}

func (g GasRaw) resolve() (GasConfig, error) {
	maxFee, err := parseAmount("gas.max_fee_per_gas_gwei", g.MaxFeePerGasGwei, units.GweiDecimals)
	if err != nil {
		return GasConfig{}, err
	}
	maxPriorityFee, err := parseAmount("gas.max_priority_fee_per_gas_gwei", g.MaxPriorityFeePerGasGwei, units.GweiDecimals)
	if err != nil {
		return GasConfig{}, err
	}

	return GasConfig{
		CallGasLimit:           new(big.Int).SetUint64(g.CallGasLimit),
		VerificationGasLimit:   new(big.Int).SetUint64(g.VerificationGasLimit),
		PreVerificationGas:     new(big.Int).SetUint64(g.PreVerificationGas),
		MaxFeePerGas:           units.GweiToWei(maxFee),
		MaxPriorityFeePerGas:   units.GweiToWei(maxPriorityFee),
		HandleOpsGasLimit:      g.HandleOpsGasLimit,
		EntryPointDeployGas:    g.EntryPointDeployGas,
		SimpleAccountDeployGas: g.SimpleAccountDeployGas,
		FundGas:                g.FundGas,
	}, nil
}
