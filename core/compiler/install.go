package compiler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/AvaProtocol/eip4337-console/pkg/logger"
)

const DefaultSolcBinariesURL = "https://binaries.soliditylang.org"

// SolcInstaller downloads pinned solc releases from the official binaries
// mirror into a local directory.
type SolcInstaller struct {
	BaseURL  string
	Dir      string
	Platform string

	httpClient *resty.Client
	logger     logger.Logger
}

type solcReleaseList struct {
	Releases map[string]string `json:"releases"`
}

func NewSolcInstaller(dir string, lgr logger.Logger) *SolcInstaller {
	return &SolcInstaller{
		BaseURL:    DefaultSolcBinariesURL,
		Dir:        dir,
		Platform:   solcPlatform(),
		httpClient: resty.New().SetTimeout(2 * time.Minute),
		logger:     logger.EnsureLogger(lgr),
	}
}

func solcPlatform() string {
	switch runtime.GOOS {
	case "darwin":
		return "macosx-amd64"
	case "windows":
		return "windows-amd64"
	}
	return "linux-amd64"
}

// BinaryPath is where version is installed, whether or not it exists yet.
func (i *SolcInstaller) BinaryPath(version string) string {
	name := "solc-" + version
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	return filepath.Join(i.Dir, name)
}

// Install makes sure version is present locally and returns its path. An
// existing binary is reused.
func (i *SolcInstaller) Install(ctx context.Context, version string) (string, error) {
	target := i.BinaryPath(version)
	if _, err := os.Stat(target); err == nil {
		return target, nil
	}

	var list solcReleaseList
	resp, err := i.httpClient.R().
		SetContext(ctx).
		SetResult(&list).
		Get(fmt.Sprintf("%s/%s/list.json", i.BaseURL, i.Platform))
	if err != nil {
		return "", fmt.Errorf("fetch solc release list: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("fetch solc release list: %s", resp.Status())
	}

	file, ok := list.Releases[version]
	if !ok {
		return "", fmt.Errorf("solc %s is not available for %s", version, i.Platform)
	}

	if err := os.MkdirAll(i.Dir, 0o755); err != nil {
		return "", err
	}

	i.logger.Info("downloading solc", "version", version, "file", file, "dir", i.Dir)
	resp, err = i.httpClient.R().
		SetContext(ctx).
		SetOutput(target).
		Get(fmt.Sprintf("%s/%s/%s", i.BaseURL, i.Platform, file))
	if err != nil {
		os.Remove(target)
		return "", fmt.Errorf("download solc %s: %w", version, err)
	}
	if resp.IsError() {
		os.Remove(target)
		return "", fmt.Errorf("download solc %s: %s", version, resp.Status())
	}

	if err := os.Chmod(target, 0o755); err != nil {
		return "", err
	}
	return target, nil
}
