package compiler

import (
	"context"

	"github.com/AvaProtocol/eip4337-console/core/config"
	"github.com/AvaProtocol/eip4337-console/pkg/logger"
)

// Toolchain resolves the EntryPoint and SimpleAccount artifacts from the
// configured sources.
type Toolchain struct {
	compiler  config.CompilerConfig
	artifacts config.ArtifactsConfig

	solc      *Solc
	vyper     *Vyper
	installer *SolcInstaller
	logger    logger.Logger
}

func NewToolchain(compilerCfg config.CompilerConfig, artifactsCfg config.ArtifactsConfig, lgr logger.Logger) *Toolchain {
	lgr = logger.EnsureLogger(lgr)
	return &Toolchain{
		compiler:  compilerCfg,
		artifacts: artifactsCfg,
		solc:      NewSolc(compilerCfg.SolcPath, compilerCfg.BasePath, compilerCfg.ImportRemappings, lgr),
		vyper:     NewVyper(compilerCfg.VyperPath, lgr),
		installer: NewSolcInstaller(compilerCfg.InstallDir, lgr),
		logger:    lgr,
	}
}

func (t *Toolchain) EntryPoint(ctx context.Context) (*Artifact, error) {
	if t.artifacts.EntryPoint != "" {
		return LoadArtifact("EntryPoint", t.artifacts.EntryPoint)
	}

	if t.compiler.AutoInstall {
		path, err := t.installer.Install(ctx, t.compiler.SolcVersion)
		if err != nil {
			return nil, err
		}
		t.solc.Path = path
	}

	return t.solc.Compile(ctx, t.compiler.EntryPointSource, "EntryPoint")
}

func (t *Toolchain) SimpleAccount(ctx context.Context) (*Artifact, error) {
	if t.artifacts.SimpleAccount != "" {
		return LoadArtifact("SimpleAccount", t.artifacts.SimpleAccount)
	}
	return t.vyper.Compile(ctx, t.compiler.SimpleAccountSource)
}
