package aa

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AvaProtocol/eip4337-console/pkg/erc4337/userop"
)

func TestEmbeddedABIs(t *testing.T) {
	for _, method := range []string{MethodGetNonce, MethodGetUserOpHash, MethodHandleOps, MethodDepositTo, MethodBalanceOf} {
		_, ok := EntryPointABI.Methods[method]
		assert.True(t, ok, "EntryPoint ABI is missing %s", method)
	}
	_, ok := SimpleAccountABI.Methods[MethodExecute]
	assert.True(t, ok)

	// The v0.7 UserOperationEvent topic is fixed by its signature.
	assert.Equal(t,
		common.HexToHash("0x49628fd1471006c1482da88028e9ce4dbb080b815c9b0344d39e5a8e6ec1419f"),
		EntryPointABI.Events[EventUserOperation].ID,
	)
}

func TestPackExecute(t *testing.T) {
	target := common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")

	calldata, err := PackExecute(nil, target, big.NewInt(5), common.FromHex("0xdeadbeef"))
	require.NoError(t, err)
	assert.Equal(t, SimpleAccountABI.Methods[MethodExecute].ID, calldata[:4])

	args, err := SimpleAccountABI.Methods[MethodExecute].Inputs.Unpack(calldata[4:])
	require.NoError(t, err)
	assert.Equal(t, target, args[0].(common.Address))
	assert.Equal(t, int64(5), args[1].(*big.Int).Int64())
	assert.Equal(t, common.FromHex("0xdeadbeef"), args[2].([]byte))

	// nil value and data encode as zero and empty bytes
	calldata, err = PackExecute(nil, target, nil, nil)
	require.NoError(t, err)
	args, err = SimpleAccountABI.Methods[MethodExecute].Inputs.Unpack(calldata[4:])
	require.NoError(t, err)
	assert.Equal(t, int64(0), args[1].(*big.Int).Int64())
	assert.Empty(t, args[2].([]byte))
}

func TestPackSimpleAccountConstructor(t *testing.T) {
	owner := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	entryPoint := common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")

	args, err := PackSimpleAccountConstructor(nil, owner, entryPoint)
	require.NoError(t, err)
	require.Len(t, args, 64)
	assert.Equal(t, owner, common.BytesToAddress(args[:32]))
	assert.Equal(t, entryPoint, common.BytesToAddress(args[32:]))
}

func TestHandleOpsRoundTrip(t *testing.T) {
	ep := NewEntryPoint(common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"), nil, nil)

	op := userop.PackedUserOperation{
		Sender:             common.HexToAddress("0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512"),
		Nonce:              big.NewInt(3),
		InitCode:           []byte{},
		CallData:           common.FromHex("0xb61d27f6"),
		PreVerificationGas: big.NewInt(1_000_000),
		PaymasterAndData:   []byte{},
		Signature:          common.FromHex("0x0102"),
	}
	op.AccountGasLimits[31] = 1
	op.GasFees[15] = 2
	beneficiary := common.HexToAddress("0x90F79bf6EB2c4f870365E785982E1f101E93b906")

	calldata, err := ep.PackHandleOps([]userop.PackedUserOperation{op}, beneficiary)
	require.NoError(t, err)

	ops, gotBeneficiary, err := ep.UnpackHandleOps(calldata)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, beneficiary, gotBeneficiary)
	assert.Equal(t, op.Sender, ops[0].Sender)
	assert.Equal(t, op.AccountGasLimits, ops[0].AccountGasLimits)
	assert.Equal(t, op.GasFees, ops[0].GasFees)
	assert.Equal(t, op.Signature, ops[0].Signature)
	assert.Equal(t, 0, op.Nonce.Cmp(ops[0].Nonce))

	_, err = ep.PackHandleOps(nil, beneficiary)
	assert.Error(t, err)

	_, _, err = ep.UnpackHandleOps(common.FromHex("0xdeadbeef"))
	assert.Error(t, err)
}

func TestEventsByTopic(t *testing.T) {
	events := EventsByTopic(&EntryPointABI, &SimpleAccountABI, nil)
	assert.Len(t, events, len(EntryPointABI.Events)+len(SimpleAccountABI.Events))

	deposited := EntryPointABI.Events["Deposited"]
	assert.Equal(t, "Deposited", events[deposited.ID].Name)
}

func TestDecodeRevert(t *testing.T) {
	failedOp := EntryPointABI.Errors["FailedOp"]
	payload, err := failedOp.Inputs.Pack(big.NewInt(0), "AA23 reverted")
	require.NoError(t, err)
	failedOpData := append(append([]byte{}, failedOp.ID[:4]...), payload...)

	errorString, err := abi.NewType("string", "", nil)
	require.NoError(t, err)
	reasonPayload, err := abi.Arguments{{Type: errorString}}.Pack("insufficient funds")
	require.NoError(t, err)
	errorStringData := append(common.FromHex("0x08c379a0"), reasonPayload...)

	tests := []struct {
		name    string
		data    []byte
		want    string
		wantErr bool
	}{
		{name: "Error(string)", data: errorStringData, want: "insufficient funds"},
		{name: "FailedOp", data: failedOpData, want: "FailedOp(opIndex=0, reason=AA23 reverted)"},
		{name: "empty", data: nil, wantErr: true},
		{name: "unknown selector", data: common.FromHex("0xdeadbeef"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeRevert(tt.data)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
