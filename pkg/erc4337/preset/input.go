package preset

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-playground/validator/v10"

	"github.com/AvaProtocol/eip4337-console/pkg/units"
)

// OperationInput is the raw text a user enters for an operation.
type OperationInput struct {
	Target string `validate:"required,eth_addr"`
	Value  string `validate:"omitempty,numeric"`
	Data   string `validate:"omitempty,hexadecimal"`
}

// Call is a validated operation request. Value is in wei.
type Call struct {
	Target common.Address
	Value  *big.Int
	Data   []byte
}

var validate = validator.New()

// ParseOperationInput validates and converts user input. Value is in ether;
// empty means zero. Data must be 0x prefixed hex; empty or "0x" means no
// payload.
func ParseOperationInput(in OperationInput) (*Call, error) {
	in.Target = strings.TrimSpace(in.Target)
	in.Value = strings.TrimSpace(in.Value)
	in.Data = strings.TrimSpace(in.Data)
	if in.Data == "0x" || in.Data == "0X" {
		in.Data = ""
	}

	if err := validate.Struct(in); err != nil {
		return nil, newError(StagePacking, KindValidation, fmt.Errorf("%w: %v", ErrInvalidInput, err))
	}

	call := &Call{
		Target: common.HexToAddress(in.Target),
		Value:  big.NewInt(0),
		Data:   []byte{},
	}

	if in.Value != "" {
		eth, err := units.ParseEther(in.Value)
		if err != nil {
			return nil, newError(StagePacking, KindValidation, fmt.Errorf("%w: value: %v", ErrInvalidInput, err))
		}
		call.Value = units.EtherToWei(eth)
	}

	if in.Data != "" {
		data, err := hexutil.Decode(in.Data)
		if err != nil {
			return nil, newError(StagePacking, KindValidation, fmt.Errorf("%w: data: %v", ErrInvalidInput, err))
		}
		call.Data = data
	}

	return call, nil
}
