package testutil

import (
	"crypto/ecdsa"
	"os"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/AvaProtocol/eip4337-console/pkg/logger"
)

// E2ERPCURLEnv names the variable holding a live dev node URL. Tests that
// need a real node are skipped when it is unset.
const E2ERPCURLEnv = "EIP4337_E2E_RPC_URL"

// GetE2ERPCURL returns the dev node url or skips the test.
func GetE2ERPCURL(t *testing.T) string {
	t.Helper()
	v := os.Getenv(E2ERPCURLEnv)
	if v == "" {
		t.Skipf("%s not set; skipping end-to-end test", E2ERPCURLEnv)
	}
	return v
}

// GetLogger returns a logger that discards everything.
func GetLogger() logger.Logger {
	return logger.NewNoOpLogger()
}

// MustKey generates a fresh secp256k1 key or panics.
func MustKey() *ecdsa.PrivateKey {
	key, err := crypto.GenerateKey()
	if err != nil {
		panic(err)
	}
	return key
}

func KeyAddress(key *ecdsa.PrivateKey) common.Address {
	return crypto.PubkeyToAddress(key.PublicKey)
}
