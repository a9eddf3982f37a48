// Package byte4 resolves 4-byte selectors against an ABI.
package byte4

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

var ErrShortSelector = errors.New("invalid selector length")

func selector(data []byte) ([]byte, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("%w: %d", ErrShortSelector, len(data))
	}
	return data[:4], nil
}

// MethodBySelector finds the method called by calldata. A bare 4-byte
// selector works as well.
func MethodBySelector(parsedABI abi.ABI, calldata []byte) (*abi.Method, error) {
	id, err := selector(calldata)
	if err != nil {
		return nil, err
	}
	method, err := parsedABI.MethodById(id)
	if err != nil {
		return nil, fmt.Errorf("no matching method found for selector %s", hexutil.Encode(id))
	}
	return method, nil
}

// ErrorBySelector finds the custom error whose selector prefixes revert
// data.
func ErrorBySelector(parsedABI abi.ABI, data []byte) (*abi.Error, error) {
	id, err := selector(data)
	if err != nil {
		return nil, err
	}
	for _, customErr := range parsedABI.Errors {
		if bytes.Equal(customErr.ID[:4], id) {
			found := customErr
			return &found, nil
		}
	}
	return nil, fmt.Errorf("no matching error found for selector %s", hexutil.Encode(id))
}

// DescribeCall renders calldata as name(arg=value, ...). Byte arguments are
// hex encoded.
func DescribeCall(parsedABI abi.ABI, calldata []byte) (string, error) {
	method, err := MethodBySelector(parsedABI, calldata)
	if err != nil {
		return "", err
	}
	values, err := method.Inputs.Unpack(calldata[4:])
	if err != nil {
		return "", fmt.Errorf("unpack %s arguments: %w", method.Name, err)
	}

	args := make([]string, len(values))
	for i, v := range values {
		args[i] = fmt.Sprintf("%s=%s", method.Inputs[i].Name, formatArg(v))
	}
	return fmt.Sprintf("%s(%s)", method.Name, strings.Join(args, ", ")), nil
}

func formatArg(v interface{}) string {
	switch val := v.(type) {
	case []byte:
		return hexutil.Encode(val)
	case common.Address:
		return val.Hex()
	case [32]byte:
		return hexutil.Encode(val[:])
	}
	return fmt.Sprint(v)
}
