package compiler

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/AvaProtocol/eip4337-console/pkg/logger"
)

// Vyper compiles Vyper sources with the vyper binary.
type Vyper struct {
	Path string

	run    Runner
	logger logger.Logger
}

func NewVyper(path string, lgr logger.Logger) *Vyper {
	return &Vyper{
		Path:   path,
		run:    execRunner,
		logger: logger.EnsureLogger(lgr),
	}
}

// Compile runs `vyper -f abi,bytecode source`, which prints the ABI and the
// creation code on separate lines.
func (v *Vyper) Compile(ctx context.Context, source string) (*Artifact, error) {
	v.logger.Info("compiling vyper", "vyper", v.Path, "source", source)
	out, err := v.run(ctx, v.Path, "-f", "abi,bytecode", source)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", source, err)
	}

	lines := bytes.Split(bytes.TrimSpace(out), []byte("\n"))
	if len(lines) < 2 {
		return nil, fmt.Errorf("unexpected vyper output for %s: %d lines", source, len(lines))
	}

	bytecode, err := decodeHex(string(lines[len(lines)-1]))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}

	name := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	return NewArtifact(name, bytes.TrimSpace(lines[0]), bytecode)
}
