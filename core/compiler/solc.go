package compiler

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/AvaProtocol/eip4337-console/pkg/logger"
)

// Solc compiles Solidity sources with the solc binary.
type Solc struct {
	Path       string
	BasePath   string
	Remappings []string

	run    Runner
	logger logger.Logger
}

func NewSolc(path, basePath string, remappings []string, lgr logger.Logger) *Solc {
	return &Solc{
		Path:       path,
		BasePath:   basePath,
		Remappings: remappings,
		run:        execRunner,
		logger:     logger.EnsureLogger(lgr),
	}
}

type combinedOutput struct {
	Contracts map[string]struct {
		ABI json.RawMessage `json:"abi"`
		Bin string          `json:"bin"`
	} `json:"contracts"`
}

// Compile builds source and returns the artifact of the named contract.
func (s *Solc) Compile(ctx context.Context, source, contract string) (*Artifact, error) {
	args := append([]string{}, s.Remappings...)
	args = append(args, "--combined-json", "abi,bin")
	if s.BasePath != "" {
		args = append(args, "--base-path", s.BasePath, "--allow-paths", s.BasePath)
	}
	args = append(args, source)

	s.logger.Info("compiling solidity", "solc", s.Path, "source", source, "contract", contract)
	out, err := s.run(ctx, s.Path, args...)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", source, err)
	}

	return parseCombinedJSON(out, contract)
}

func parseCombinedJSON(out []byte, contract string) (*Artifact, error) {
	var combined combinedOutput
	if err := json.Unmarshal(out, &combined); err != nil {
		return nil, fmt.Errorf("parse solc output: %w", err)
	}

	for key, compiled := range combined.Contracts {
		if key != contract && !strings.HasSuffix(key, ":"+contract) {
			continue
		}
		bytecode, err := decodeHex(compiled.Bin)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		return NewArtifact(contract, compiled.ABI, bytecode)
	}

	return nil, fmt.Errorf("contract %s not found in solc output", contract)
}
