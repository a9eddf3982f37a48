package contracts

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/AvaProtocol/eip4337-console/core/chainio/aa"
)

const SourceUnknown = "Unknown"

// TransactionLog is a decoded receipt log. Args holds every event argument;
// ArgNames keeps the ABI order for display.
type TransactionLog struct {
	Source   string
	Event    string
	Args     map[string]interface{}
	ArgNames []string
	Address  common.Address
	Index    uint
}

// DecodeReceiptLogs decodes every log emitted by a known event. Logs with no
// topics or an unknown topic are skipped.
func (r *Registry) DecodeReceiptLogs(receipt *types.Receipt) ([]TransactionLog, error) {
	if receipt == nil {
		return nil, nil
	}

	events := aa.EventsByTopic(r.abis()...)
	decoded := make([]TransactionLog, 0, len(receipt.Logs))

	for _, l := range receipt.Logs {
		if len(l.Topics) == 0 {
			continue
		}
		event, ok := events[l.Topics[0]]
		if !ok {
			continue
		}

		args, err := decodeLog(event, l)
		if err != nil {
			return decoded, fmt.Errorf("decode %s log %d: %w", event.Name, l.Index, err)
		}

		decoded = append(decoded, TransactionLog{
			Source:   r.sourceOf(l.Address),
			Event:    event.Name,
			Args:     args,
			ArgNames: argNames(event.Inputs),
			Address:  l.Address,
			Index:    l.Index,
		})
	}
	return decoded, nil
}

func (r *Registry) sourceOf(address common.Address) string {
	for _, role := range ContractRoles {
		if c, ok := r.contracts[role]; ok && c.Address == address {
			return string(role)
		}
	}
	return SourceUnknown
}

// ErrEmptyLogData is returned for a log whose event has data arguments but
// which carries no data.
var ErrEmptyLogData = errors.New("log data is empty")

func decodeLog(event abi.Event, l *types.Log) (map[string]interface{}, error) {
	args := make(map[string]interface{}, len(event.Inputs))

	if len(event.Inputs.NonIndexed()) > 0 {
		if len(l.Data) == 0 {
			return nil, ErrEmptyLogData
		}
		if err := event.Inputs.UnpackIntoMap(args, l.Data); err != nil {
			return nil, err
		}
	}

	var indexed abi.Arguments
	for _, arg := range event.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	if len(indexed) > 0 {
		if err := abi.ParseTopicsIntoMap(args, indexed, l.Topics[1:]); err != nil {
			return nil, err
		}
	}
	return args, nil
}

func argNames(inputs abi.Arguments) []string {
	names := make([]string, len(inputs))
	for i, arg := range inputs {
		names[i] = arg.Name
	}
	return names
}
