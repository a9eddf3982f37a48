package byte4

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const walletABIJSON = `[
	{
		"inputs": [
			{"name": "target", "type": "address"},
			{"name": "value", "type": "uint256"},
			{"name": "data", "type": "bytes"}
		],
		"name": "execute",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [{"name": "account", "type": "address"}],
		"name": "balanceOf",
		"outputs": [{"name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [
			{"name": "opIndex", "type": "uint256"},
			{"name": "reason", "type": "string"}
		],
		"name": "FailedOp",
		"type": "error"
	},
	{
		"inputs": [{"name": "aggregator", "type": "address"}],
		"name": "SignatureValidationFailed",
		"type": "error"
	}
]`

func parseWalletABI(t *testing.T) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(walletABIJSON))
	require.NoError(t, err)
	return parsed
}

func TestMethodBySelector(t *testing.T) {
	parsedABI := parseWalletABI(t)

	executeCall, err := parsedABI.Pack("execute", common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8"), common.Big0, []byte{})
	require.NoError(t, err)

	tests := []struct {
		name        string
		selector    []byte
		wantMethod  string
		errContains string
	}{
		{
			name:       "execute calldata",
			selector:   executeCall,
			wantMethod: "execute",
		},
		{
			name:       "balanceOf selector only",
			selector:   common.FromHex("0x70a08231"),
			wantMethod: "balanceOf",
		},
		{
			name:        "invalid selector length",
			selector:    []byte{0x70, 0xa0},
			errContains: "invalid selector length",
		},
		{
			name:        "unknown selector",
			selector:    common.FromHex("0x12345678"),
			errContains: "no matching method found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method, err := MethodBySelector(parsedABI, tt.selector)
			if tt.errContains != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
				assert.Nil(t, method)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantMethod, method.Name)
		})
	}
}

func TestErrorBySelector(t *testing.T) {
	parsedABI := parseWalletABI(t)

	failedOp := crypto.Keccak256([]byte("FailedOp(uint256,string)"))[:4]
	data := append(append([]byte{}, failedOp...), make([]byte, 64)...)

	customErr, err := ErrorBySelector(parsedABI, data)
	require.NoError(t, err)
	assert.Equal(t, "FailedOp", customErr.Name)
	assert.Len(t, customErr.Inputs, 2)

	_, err = ErrorBySelector(parsedABI, common.FromHex("0x08c379a0"))
	assert.ErrorContains(t, err, "no matching error found")

	_, err = ErrorBySelector(parsedABI, []byte{0x01})
	assert.ErrorIs(t, err, ErrShortSelector)
}

func TestDescribeCall(t *testing.T) {
	parsedABI := parseWalletABI(t)
	target := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")

	calldata, err := parsedABI.Pack("execute", target, big.NewInt(7), []byte{0xca, 0xfe})
	require.NoError(t, err)

	described, err := DescribeCall(parsedABI, calldata)
	require.NoError(t, err)
	assert.Equal(t, "execute(target="+target.Hex()+", value=7, data=0xcafe)", described)

	_, err = DescribeCall(parsedABI, common.FromHex("0x12345678"))
	assert.ErrorContains(t, err, "no matching method found")
}
