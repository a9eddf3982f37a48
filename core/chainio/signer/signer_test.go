package signer

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// anvil's first development key
const testKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func testKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := crypto.HexToECDSA(testKeyHex)
	require.NoError(t, err)
	return key
}

func TestSignHashRecovers(t *testing.T) {
	key := testKey(t)
	owner := crypto.PubkeyToAddress(key.PublicKey)
	hash := crypto.Keccak256Hash([]byte("user operation"))

	for _, scheme := range []Scheme{SchemeRaw, SchemeEIP191} {
		t.Run(string(scheme), func(t *testing.T) {
			sig, err := SignHash(key, hash, scheme)
			require.NoError(t, err)
			require.Len(t, sig, 65)
			assert.Contains(t, []byte{27, 28}, sig[64])

			again, err := SignHash(key, hash, scheme)
			require.NoError(t, err)
			assert.Equal(t, sig, again, "RFC6979 signatures are deterministic")

			recovered, err := RecoverHashSigner(hash, sig, scheme)
			require.NoError(t, err)
			assert.Equal(t, owner, recovered)
		})
	}
}

func TestSchemesDiffer(t *testing.T) {
	key := testKey(t)
	hash := crypto.Keccak256Hash([]byte("user operation"))

	raw, err := SignHash(key, hash, SchemeRaw)
	require.NoError(t, err)
	prefixed, err := SignHash(key, hash, SchemeEIP191)
	require.NoError(t, err)
	assert.NotEqual(t, raw, prefixed)

	// A raw signature checked as EIP-191 recovers some other address.
	recovered, err := RecoverHashSigner(hash, raw, SchemeEIP191)
	require.NoError(t, err)
	assert.NotEqual(t, crypto.PubkeyToAddress(key.PublicKey), recovered)
}

func TestParseScheme(t *testing.T) {
	tests := []struct {
		in      string
		want    Scheme
		wantErr bool
	}{
		{in: "", want: SchemeRaw},
		{in: "raw", want: SchemeRaw},
		{in: "EIP191", want: SchemeEIP191},
		{in: "eip712", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseScheme(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrUnknownScheme)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestNewTxSigner(t *testing.T) {
	key := testKey(t)
	chainID := big.NewInt(31337)

	signFn, address, err := NewTxSigner(key, chainID)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), address)

	to := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     0,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(1),
		Gas:       21000,
		To:        &to,
		Value:     big.NewInt(1),
	})
	txSigner, err := signFn(context.Background(), address)
	require.NoError(t, err)
	signed, err := txSigner(address, tx)
	require.NoError(t, err)

	sender, err := types.Sender(types.LatestSignerForChainID(chainID), signed)
	require.NoError(t, err)
	assert.Equal(t, address, sender)

	_, _, err = NewTxSigner(nil, chainID)
	assert.Error(t, err)
}
