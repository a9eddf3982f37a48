package aa

import (
	_ "embed"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

var (
	//go:embed abi/EntryPoint.json
	entryPointABIJSON string

	//go:embed abi/SimpleAccount.json
	simpleAccountABIJSON string

	// EntryPointABI is the v0.7 EntryPoint interface (PackedUserOperation).
	EntryPointABI = mustParseABI("EntryPoint", entryPointABIJSON)

	// SimpleAccountABI is the interface of the minimal wallet. A compiled
	// artifact's ABI takes precedence when one is available.
	SimpleAccountABI = mustParseABI("SimpleAccount", simpleAccountABIJSON)
)

func mustParseABI(name, raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Errorf("invalid %s ABI: %w", name, err))
	}
	return parsed
}

// ParseABI parses a JSON ABI, typically taken from a compiler artifact.
func ParseABI(raw []byte) (*abi.ABI, error) {
	parsed, err := abi.JSON(strings.NewReader(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("parse abi: %w", err)
	}
	return &parsed, nil
}

// PackExecute generates the wallet calldata for execute(target, value, data).
func PackExecute(walletABI *abi.ABI, target common.Address, value *big.Int, data []byte) ([]byte, error) {
	if walletABI == nil {
		walletABI = &SimpleAccountABI
	}
	if value == nil {
		value = big.NewInt(0)
	}
	if data == nil {
		data = []byte{}
	}
	return walletABI.Pack(MethodExecute, target, value, data)
}

// PackSimpleAccountConstructor encodes the (owner, entryPoint) constructor
// arguments appended to the wallet bytecode on deployment.
func PackSimpleAccountConstructor(walletABI *abi.ABI, owner, entryPoint common.Address) ([]byte, error) {
	if walletABI == nil {
		walletABI = &SimpleAccountABI
	}
	return walletABI.Pack("", owner, entryPoint)
}

// EventsByTopic indexes every event of the given ABIs by its topic hash.
func EventsByTopic(abis ...*abi.ABI) map[common.Hash]abi.Event {
	events := make(map[common.Hash]abi.Event)
	for _, parsed := range abis {
		if parsed == nil {
			continue
		}
		for _, event := range parsed.Events {
			events[event.ID] = event
		}
	}
	return events
}
