package config

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/AvaProtocol/eip4337-console/pkg/units"
)

const (
	ErrInvalidConfig     = "invalid config"
	ErrInvalidConfigFile = "cannot parse config file"
	ErrReadConfigFile    = "cannot read config file"
)

func parseAmount(name, raw string, decimals int32) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	amount, err := units.ParseAmount(raw, decimals)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %s: %w", ErrInvalidConfig, name, err)
	}
	return amount, nil
}
