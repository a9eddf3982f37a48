package signer

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/Layr-Labs/eigensdk-go/signerv2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	eip191Prefix = "\x19Ethereum Signed Message:\n"
)

// Scheme selects how an operation hash is turned into a signature.
type Scheme string

const (
	// SchemeRaw signs the 32 byte hash directly.
	SchemeRaw Scheme = "raw"
	// SchemeEIP191 signs the personal_sign digest of the hash.
	SchemeEIP191 Scheme = "eip191"
)

var ErrUnknownScheme = errors.New("unknown signature scheme")

func ParseScheme(s string) (Scheme, error) {
	switch Scheme(strings.ToLower(s)) {
	case "", SchemeRaw:
		return SchemeRaw, nil
	case SchemeEIP191:
		return SchemeEIP191, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownScheme, s)
}

// NewTxSigner returns an eigensdk signer function that signs transactions
// for chainID with key, along with the key's address.
func NewTxSigner(key *ecdsa.PrivateKey, chainID *big.Int) (signerv2.SignerFn, common.Address, error) {
	if key == nil {
		return nil, common.Address{}, errors.New("nil private key")
	}
	return signerv2.SignerFromConfig(signerv2.Config{PrivateKey: key}, chainID)
}

// SignHash signs a 32 byte digest with the given scheme. The recovery id is
// shifted to 27/28 as wallets using ecrecover expect.
func SignHash(key *ecdsa.PrivateKey, hash common.Hash, scheme Scheme) ([]byte, error) {
	switch scheme {
	case SchemeRaw, "":
		return signDigest(key, hash.Bytes())
	case SchemeEIP191:
		return SignMessage(key, hash.Bytes())
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownScheme, scheme)
}

// Generate EIP191 signature
func SignMessage(key *ecdsa.PrivateKey, data []byte) ([]byte, error) {
	return signDigest(key, EIP191Digest(data).Bytes())
}

// EIP191Digest is keccak256("\x19Ethereum Signed Message:\n" + len(data) + data).
func EIP191Digest(data []byte) common.Hash {
	prefix := []byte(eip191Prefix + fmt.Sprint(len(data)))
	return crypto.Keccak256Hash(append(prefix, data...))
}

func signDigest(key *ecdsa.PrivateKey, digest []byte) ([]byte, error) {
	if key == nil {
		return nil, errors.New("nil private key")
	}
	sig, err := crypto.Sign(digest, key)
	if err != nil {
		return nil, err
	}
	// https://stackoverflow.com/questions/69762108/implementing-ethereum-personal-sign-eip-191-from-go-ethereum-gives-different-s
	sig[64] += 27

	return sig, nil
}

// RecoverHashSigner returns the address that produced sig over hash under
// scheme. It accepts recovery ids in either 0/1 or 27/28 form.
func RecoverHashSigner(hash common.Hash, sig []byte, scheme Scheme) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("invalid signature length: %d", len(sig))
	}

	digest := hash
	switch scheme {
	case SchemeRaw, "":
	case SchemeEIP191:
		digest = EIP191Digest(hash.Bytes())
	default:
		return common.Address{}, fmt.Errorf("%w: %q", ErrUnknownScheme, scheme)
	}

	normalized := make([]byte, len(sig))
	copy(normalized, sig)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}

	pub, err := crypto.SigToPub(digest.Bytes(), normalized)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}
