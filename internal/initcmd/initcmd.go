// Package initcmd implements the `init` subcommand: write a starter
// configuration file, optionally probing the configured provider's
// credentials first.
package initcmd

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/cenkalti/backoff/v4"

	"github.com/strainer/strainer/internal/config"
	"github.com/strainer/strainer/pkg/provider"
)

const probeTimeout = 10 * time.Second

// AlreadyExists reports that the target config file exists and --force
// was not given.
type AlreadyExists struct {
	Path string
}

func (e *AlreadyExists) Error() string {
	return "init: config file already exists at " + e.Path + "; use --force to overwrite"
}

// Options configures one run of the init wizard. Every field mirrors a
// CLI flag or a value the wizard would otherwise have prompted for.
type Options struct {
	ConfigPath string
	NoPrompt   bool
	Force      bool

	APIType   string
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens uint32

	RequestsPerMinute    *uint32
	TokensPerMinute      *uint32
	InputTokensPerMinute *uint32
}

// defaultConfigPath mirrors the original wizard's behavior of writing
// under the user's config directory when no explicit path is given.
func defaultConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "strainer", "config.toml")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "strainer", "config.toml")
	}
	return filepath.Join(".", "strainer.toml")
}

// Run resolves the target path, refuses to overwrite an existing file
// unless Force is set, builds a configuration layer from defaults plus
// opts, best-effort probes the provider's credentials (skipped for
// Mock and when NoPrompt is set), and writes the layer as TOML.
func Run(opts Options) error {
	path := opts.ConfigPath
	if path == "" {
		path = defaultConfigPath()
	}

	if _, err := os.Stat(path); err == nil && !opts.Force {
		return &AlreadyExists{Path: path}
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	layer := config.Defaults()
	applyOptions(&layer, opts)

	cfg, err := config.Resolve(layer)
	if err != nil {
		return err
	}

	if !opts.NoPrompt && provider.Type(cfg.API.Type) != provider.TypeMock && cfg.API.APIKey != "" {
		if err := probeCredentials(cfg); err != nil {
			slog.Warn("credential probe failed, writing config anyway", "provider", cfg.API.Type, "err", err)
		} else {
			slog.Info("credential probe succeeded", "provider", cfg.API.Type)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(layer); err != nil {
		return err
	}

	slog.Info("wrote configuration", "path", path)
	return nil
}

func applyOptions(layer *config.Layer, opts Options) {
	if opts.APIType != "" {
		layer.API.Type = &opts.APIType
	}
	if opts.APIKey != "" {
		layer.API.APIKey = &opts.APIKey
	}
	if opts.BaseURL != "" {
		layer.API.BaseURL = &opts.BaseURL
	}
	if opts.Model != "" {
		layer.API.Model = &opts.Model
	}
	if opts.MaxTokens != 0 {
		layer.API.MaxTokens = &opts.MaxTokens
	}
	if opts.RequestsPerMinute != nil {
		layer.Limits.RequestsPerMinute = opts.RequestsPerMinute
	}
	if opts.TokensPerMinute != nil {
		layer.Limits.TokensPerMinute = opts.TokensPerMinute
	}
	if opts.InputTokensPerMinute != nil {
		layer.Limits.InputTokensPerMinute = opts.InputTokensPerMinute
	}
}

// probeCredentials makes a best-effort attempt to confirm the configured
// base URL is reachable, tried up to three times (two retries) with a
// constant backoff. It never blocks config writing; callers log and continue on
// failure.
func probeCredentials(cfg config.Config) error {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	client := &http.Client{Timeout: probeTimeout}

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.API.BaseURL, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+cfg.API.APIKey)

		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		// Any response at all, even 401/404, proves the endpoint is
		// reachable; only transport-level failures are retried.
		return nil
	}

	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(500*time.Millisecond), 2)
	return backoff.Retry(op, b)
}
