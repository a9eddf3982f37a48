package aa

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/AvaProtocol/eip4337-console/pkg/byte4"
)

var (
	errorStringSelector = []byte{0x08, 0xc3, 0x79, 0xa0}
	panicSelector       = []byte{0x4e, 0x48, 0x7b, 0x71}
)

// DecodeRevert turns raw revert data into a readable reason. It understands
// Error(string), Panic(uint256) and any custom error declared in abis. The
// embedded EntryPoint ABI is always consulted, so FailedOp is recognised
// without being passed in.
func DecodeRevert(data []byte, abis ...*abi.ABI) (string, error) {
	if len(data) == 0 {
		return "", errors.New("empty revert data")
	}
	if len(data) < 4 {
		return "", fmt.Errorf("revert data too short: %s", hexutil.Encode(data))
	}

	if bytes.Equal(data[:4], errorStringSelector) || bytes.Equal(data[:4], panicSelector) {
		return abi.UnpackRevert(data)
	}

	candidates := append([]*abi.ABI{&EntryPointABI}, abis...)
	for _, parsed := range candidates {
		if parsed == nil {
			continue
		}
		customErr, err := byte4.ErrorBySelector(*parsed, data)
		if err != nil {
			continue
		}
		return formatCustomError(customErr, data[4:])
	}

	return "", fmt.Errorf("unknown revert selector %s", hexutil.Encode(data[:4]))
}

func formatCustomError(customErr *abi.Error, payload []byte) (string, error) {
	values, err := customErr.Inputs.Unpack(payload)
	if err != nil {
		return "", fmt.Errorf("unpack %s: %w", customErr.Name, err)
	}

	parts := make([]string, 0, len(values))
	for i, v := range values {
		name := customErr.Inputs[i].Name
		if b, ok := v.([]byte); ok {
			v = describeInner(b)
		}
		if name == "" {
			parts = append(parts, fmt.Sprintf("%v", v))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%v", name, v))
	}

	return fmt.Sprintf("%s(%s)", customErr.Name, strings.Join(parts, ", ")), nil
}

// describeInner renders nested revert data, such as the inner bytes of
// FailedOpWithRevert, decoding it when possible.
func describeInner(b []byte) string {
	if reason, err := abi.UnpackRevert(b); err == nil {
		return reason
	}
	return hexutil.Encode(b)
}
