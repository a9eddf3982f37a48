package preset

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AvaProtocol/eip4337-console/core/chainio/aa"
	"github.com/AvaProtocol/eip4337-console/core/chainio/signer"
	"github.com/AvaProtocol/eip4337-console/core/testutil"
	"github.com/AvaProtocol/eip4337-console/pkg/erc4337/bundler"
	"github.com/AvaProtocol/eip4337-console/pkg/erc4337/userop"
)

var (
	entryPointAddress = common.HexToAddress("0x0000000071727De22E5E9d8BAf0edAc6f37da032")
	walletAddress     = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	beneficiary       = common.HexToAddress("0x00000000000000000000000000000000000000be")
	recipient         = common.HexToAddress("0x00000000000000000000000000000000000000c0")
)

type fixture struct {
	chain   *testutil.FakeChain
	fakeEP  *testutil.FakeEntryPoint
	owner   *ecdsa.PrivateKey
	builder *Builder
}

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	chain := testutil.NewFakeChain()
	fakeEP := chain.DeployEntryPoint(entryPointAddress)

	owner := testutil.MustKey()
	chain.RegisterWallet(fakeEP, walletAddress, testutil.KeyAddress(owner), ether(10))
	chain.Balances[walletAddress] = ether(10)

	bundlerKey := testutil.MustKey()
	chain.Balances[testutil.KeyAddress(bundlerKey)] = ether(100)

	b, err := NewBuilder(BuilderConfig{
		EntryPoint:      aa.NewEntryPoint(entryPointAddress, nil, chain),
		Wallet:          walletAddress,
		Owner:           owner,
		Bundler:         bundler.New(chain, bundlerKey, beneficiary, bundler.Config{}, nil),
		SignatureScheme: signer.SchemeRaw,
	}, testutil.GetLogger())
	require.NoError(t, err)

	return &fixture{chain: chain, fakeEP: fakeEP, owner: owner, builder: b}
}

func TestErrorIs(t *testing.T) {
	reverted := &Error{Stage: StageSubmission, Kind: KindReverted, Err: errors.New("status 0")}
	assert.ErrorIs(t, reverted, ErrOperationReverted)
	assert.NotErrorIs(t, reverted, ErrHashComputation)

	hash := newError(StageHash, KindTransport, errors.New("dial tcp"))
	assert.ErrorIs(t, hash, ErrHashComputation)
	assert.NotErrorIs(t, hash, ErrOperationReverted)

	assert.ErrorIs(t, newError(StageSubmission, KindPrecondition, errors.New("x")), ErrPrecondition)
	assert.ErrorIs(t, newError(StagePacking, KindValidation, errors.New("x")), ErrInvalidInput)

	var perr *Error
	require.True(t, errors.As(hash, &perr))
	assert.Equal(t, "hash computation failed (transport): dial tcp", perr.Error())
}

func TestNewBuilderPreconditions(t *testing.T) {
	chain := testutil.NewFakeChain()
	ep := aa.NewEntryPoint(entryPointAddress, nil, chain)

	_, err := NewBuilder(BuilderConfig{Wallet: walletAddress, Owner: testutil.MustKey()}, nil)
	assert.ErrorIs(t, err, ErrPrecondition)

	_, err = NewBuilder(BuilderConfig{EntryPoint: ep, Owner: testutil.MustKey()}, nil)
	assert.ErrorIs(t, err, ErrPrecondition)

	_, err = NewBuilder(BuilderConfig{EntryPoint: ep, Wallet: walletAddress}, nil)
	assert.ErrorIs(t, err, ErrPrecondition)
}

func TestBuildUserOpDefaults(t *testing.T) {
	f := newFixture(t)

	operation, err := f.builder.BuildUserOp(context.Background(), recipient, big.NewInt(1000), []byte{0x01})
	require.NoError(t, err)
	op := operation.UserOp

	assert.NotEmpty(t, operation.ID)
	assert.Equal(t, walletAddress, op.Sender)
	assert.Equal(t, int64(0), op.Nonce.Int64())
	assert.Empty(t, op.InitCode)
	assert.Empty(t, op.PaymasterAndData)
	assert.Empty(t, op.Signature)
	assert.Equal(t, DEFAULT_CALL_GAS_LIMIT, op.CallGasLimit)
	assert.Equal(t, DEFAULT_MAX_FEE_PER_GAS, op.MaxFeePerGas)

	expectedCallData, err := aa.PackExecute(&aa.SimpleAccountABI, recipient, big.NewInt(1000), []byte{0x01})
	require.NoError(t, err)
	assert.Equal(t, expectedCallData, op.CallData)

	verification, call := userop.UnpackUint128Pair(operation.AccountGasLimits)
	assert.Equal(t, int64(1_000_000), verification.Int64())
	assert.Equal(t, int64(1_000_000), call.Int64())
	priority, maxFee := userop.UnpackUint128Pair(operation.GasFees)
	assert.Equal(t, int64(1_000_000_000), priority.Int64())
	assert.Equal(t, int64(2_000_000_000), maxFee.Int64())
}

func TestBuildUserOpReadsNonceEveryTime(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.builder.BuildUserOp(ctx, recipient, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), first.UserOp.Nonce.Int64())

	f.fakeEP.Nonces[walletAddress] = big.NewInt(7)
	second, err := f.builder.BuildUserOp(ctx, recipient, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(7), second.UserOp.Nonce.Int64())
	assert.NotEqual(t, first.ID, second.ID)
}

func TestBuildUserOpGasOutOfRange(t *testing.T) {
	f := newFixture(t)
	f.builder.gas.MaxFeePerGas = new(big.Int).Lsh(big.NewInt(1), 128)

	_, err := f.builder.BuildUserOp(context.Background(), recipient, nil, nil)
	assert.ErrorIs(t, err, userop.ErrGasValueOutOfRange)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestBuildUserOpNegativeValue(t *testing.T) {
	f := newFixture(t)
	_, err := f.builder.BuildUserOp(context.Background(), recipient, big.NewInt(-1), nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestBuildUserOpNonceFailure(t *testing.T) {
	tests := []struct {
		name     string
		failure  error
		wantKind Kind
	}{
		{name: "transport", failure: errors.New("connection refused"), wantKind: KindTransport},
		{name: "revert", failure: &testutil.RevertError{}, wantKind: KindReverted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.chain.FailCalls[aa.MethodGetNonce] = tt.failure

			_, err := f.builder.BuildUserOp(context.Background(), recipient, nil, nil)
			var perr *Error
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, StageNonce, perr.Stage)
			assert.Equal(t, tt.wantKind, perr.Kind)
		})
	}
}

func TestUserOpHashComesFromEntryPoint(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	operation, err := f.builder.BuildUserOp(ctx, recipient, big.NewInt(1), nil)
	require.NoError(t, err)

	hash, err := f.builder.UserOpHash(ctx, operation.UserOp)
	require.NoError(t, err)

	unsigned, err := operation.UserOp.PackUnsigned()
	require.NoError(t, err)
	assert.Equal(t, f.chain.UserOpHash(entryPointAddress, unsigned), hash)

	again, err := f.builder.UserOpHash(ctx, operation.UserOp)
	require.NoError(t, err)
	assert.Equal(t, hash, again)

	// The hash ignores any signature already on the operation.
	operation.UserOp.Signature = []byte{0xde, 0xad}
	withSig, err := f.builder.UserOpHash(ctx, operation.UserOp)
	require.NoError(t, err)
	assert.Equal(t, hash, withSig)
}

func TestUserOpHashFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	operation, err := f.builder.BuildUserOp(ctx, recipient, nil, nil)
	require.NoError(t, err)

	f.chain.FailCalls[aa.MethodGetUserOpHash] = errors.New("connection reset")
	_, err = f.builder.UserOpHash(ctx, operation.UserOp)
	assert.ErrorIs(t, err, ErrHashComputation)

	_, _, err = f.builder.SignUserOp(ctx, operation.UserOp)
	assert.ErrorIs(t, err, ErrHashComputation)
	assert.Empty(t, operation.UserOp.Signature)
}

func TestSignUserOp(t *testing.T) {
	for _, scheme := range []signer.Scheme{signer.SchemeRaw, signer.SchemeEIP191} {
		t.Run(string(scheme), func(t *testing.T) {
			f := newFixture(t)
			f.builder.scheme = scheme
			ctx := context.Background()

			operation, err := f.builder.BuildUserOp(ctx, recipient, nil, nil)
			require.NoError(t, err)

			hash, sig, err := f.builder.SignUserOp(ctx, operation.UserOp)
			require.NoError(t, err)
			assert.Len(t, sig, 65)
			assert.Contains(t, []byte{27, 28}, sig[64])
			assert.Equal(t, sig, operation.UserOp.Signature)

			recovered, err := signer.RecoverHashSigner(hash, sig, scheme)
			require.NoError(t, err)
			assert.Equal(t, testutil.KeyAddress(f.owner), recovered)

			signed, err := operation.UserOp.Pack()
			require.NoError(t, err)
			unsigned, err := operation.UserOp.PackUnsigned()
			require.NoError(t, err)
			assert.Equal(t, unsigned.WithSignature(sig), signed)
		})
	}
}

func TestExecute(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.builder.Execute(ctx, recipient, big.NewInt(1234), nil)
	require.NoError(t, err)
	require.NotNil(t, result.Receipt)
	assert.Equal(t, types.ReceiptStatusSuccessful, result.Receipt.Status)
	assert.Equal(t, result.Receipt.TxHash, result.TxHash)
	assert.NotEqual(t, common.Hash{}, result.UserOpHash)
	assert.Equal(t, big.NewInt(1234), f.chain.Balances[recipient])

	userOpEvent := aa.EntryPointABI.Events[aa.EventUserOperation]
	var hashes []common.Hash
	for _, l := range result.Receipt.Logs {
		if l.Topics[0] == userOpEvent.ID {
			hashes = append(hashes, l.Topics[1])
		}
	}
	assert.Equal(t, []common.Hash{result.UserOpHash}, hashes)

	next, err := f.builder.Execute(ctx, recipient, big.NewInt(1), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), next.Operation.UserOp.Nonce.Int64())
}

func TestSendStaleNonceReverts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stale, err := f.builder.BuildUserOp(ctx, recipient, nil, nil)
	require.NoError(t, err)
	_, _, err = f.builder.SignUserOp(ctx, stale.UserOp)
	require.NoError(t, err)

	_, err = f.builder.Execute(ctx, recipient, nil, nil)
	require.NoError(t, err)

	receipt, err := f.builder.SendUserOp(ctx, stale.UserOp)
	require.ErrorIs(t, err, ErrOperationReverted)
	require.NotNil(t, receipt)
	assert.Equal(t, types.ReceiptStatusFailed, receipt.Status)

	var perr *Error
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, StageSubmission, perr.Stage)
	assert.Same(t, receipt, perr.Receipt)
}

func TestSendUnsigned(t *testing.T) {
	f := newFixture(t)
	operation, err := f.builder.BuildUserOp(context.Background(), recipient, nil, nil)
	require.NoError(t, err)

	_, err = f.builder.SendUserOp(context.Background(), operation.UserOp)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Empty(t, f.chain.Sent)
}

func TestExecuteTransportFailure(t *testing.T) {
	f := newFixture(t)
	f.chain.FailSend = errors.New("connection refused")

	result, err := f.builder.Execute(context.Background(), recipient, nil, nil)
	var perr *Error
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, KindTransport, perr.Kind)
	assert.NotErrorIs(t, err, ErrOperationReverted)
	assert.NotNil(t, result.Operation)
	assert.Nil(t, result.Receipt)
}
