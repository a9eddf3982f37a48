// Package compiler produces contract artifacts, either by loading
// precompiled JSON or by driving the solc and vyper binaries.
package compiler

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/AvaProtocol/eip4337-console/core/chainio/aa"
)

var ErrEmptyBytecode = errors.New("artifact has no bytecode")

// Artifact is a compiled contract: its interface and creation code.
type Artifact struct {
	Name     string
	ABI      *abi.ABI
	RawABI   json.RawMessage
	Bytecode []byte
}

type artifactJSON struct {
	ABI      json.RawMessage `json:"abi"`
	Bytecode json.RawMessage `json:"bytecode"`
}

// LoadArtifact reads a {"abi": [...], "bytecode": "0x..."} file. Foundry and
// hardhat style {"bytecode": {"object": "0x..."}} is accepted as well.
func LoadArtifact(name, path string) (*Artifact, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s artifact: %w", name, err)
	}
	return ParseArtifact(name, raw)
}

func ParseArtifact(name string, raw []byte) (*Artifact, error) {
	var parsed artifactJSON
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse %s artifact: %w", name, err)
	}

	bytecode, err := decodeBytecode(parsed.Bytecode)
	if err != nil {
		return nil, fmt.Errorf("%s artifact: %w", name, err)
	}

	return NewArtifact(name, parsed.ABI, bytecode)
}

// NewArtifact validates the ABI JSON and creation code of a contract.
func NewArtifact(name string, rawABI []byte, bytecode []byte) (*Artifact, error) {
	// Some solc versions emit the ABI as a JSON encoded string.
	var nested string
	if err := json.Unmarshal(rawABI, &nested); err == nil {
		rawABI = []byte(nested)
	}

	contractABI, err := aa.ParseABI(rawABI)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if len(bytecode) == 0 {
		return nil, fmt.Errorf("%s: %w", name, ErrEmptyBytecode)
	}

	return &Artifact{
		Name:     name,
		ABI:      contractABI,
		RawABI:   json.RawMessage(rawABI),
		Bytecode: bytecode,
	}, nil
}

func decodeBytecode(raw json.RawMessage) ([]byte, error) {
	if len(raw) == 0 {
		return nil, ErrEmptyBytecode
	}

	var hex string
	if err := json.Unmarshal(raw, &hex); err != nil {
		var object struct {
			Object string `json:"object"`
		}
		if err := json.Unmarshal(raw, &object); err != nil {
			return nil, fmt.Errorf("unsupported bytecode format: %w", err)
		}
		hex = object.Object
	}

	return decodeHex(hex)
}

func decodeHex(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "0x" {
		return nil, ErrEmptyBytecode
	}
	if !strings.HasPrefix(s, "0x") {
		s = "0x" + s
	}
	b, err := hexutil.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("invalid bytecode: %w", err)
	}
	return b, nil
}
