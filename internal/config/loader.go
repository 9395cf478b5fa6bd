package config

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
)

// ConfigLoadError reports that a config file could not be parsed, or
// that an explicitly named config file could not be found. Per the CLI's recovery rule, a caller that already has an API
// key from flags may downgrade this to a warning and proceed with
// defaults instead of failing the run.
type ConfigLoadError struct {
	Path string
	Err  error
}

func (e *ConfigLoadError) Error() string {
	return "config: failed to load " + e.Path + ": " + e.Err.Error()
}

func (e *ConfigLoadError) Unwrap() error { return e.Err }

// candidatePaths returns the ordered list of config file locations to
// try when explicitPath is empty; they are tried in this order and the
// first one found is used: ./strainer.toml, $XDG_CONFIG_HOME/strainer/config.toml
// (or ~/.config/strainer/config.toml), ~/.strainer.toml,
// /etc/strainer/config.toml.
func candidatePaths() []string {
	var paths []string

	paths = append(paths, "strainer.toml")

	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		paths = append(paths, filepath.Join(xdg, "strainer", "config.toml"))
	} else if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "strainer", "config.toml"))
	}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".strainer.toml"))
	}

	paths = append(paths, filepath.Join("/etc", "strainer", "config.toml"))

	return paths
}

// LoadFile loads the file layer. If explicitPath is non-empty it is the
// only candidate and a missing file is an error; otherwise the first
// existing candidatePaths entry is used and an absent file is not an
// error (the file layer is optional). The returned path is empty when no
// file was loaded.
func LoadFile(explicitPath string) (Layer, string, error) {
	candidates := candidatePaths()
	if explicitPath != "" {
		candidates = []string{explicitPath}
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err != nil {
			if explicitPath != "" {
				return Layer{}, "", &ConfigLoadError{Path: path, Err: err}
			}
			continue
		}

		var l Layer
		if _, err := toml.DecodeFile(path, &l); err != nil {
			return Layer{}, "", &ConfigLoadError{Path: path, Err: err}
		}
		return l, path, nil
	}

	return Layer{}, "", nil
}

// LoadEnv reads the STRAINER_* environment variables into a Layer.
// STRAINER_PROVIDER is accepted as a legacy alias for
// STRAINER_PROVIDER_TYPE; the latter wins if both are set.
func LoadEnv() Layer {
	var l Layer

	if v, ok := os.LookupEnv("STRAINER_API_KEY"); ok {
		l.API.APIKey = &v
	}
	if v, ok := os.LookupEnv("STRAINER_PROVIDER"); ok {
		l.API.Type = &v
	}
	if v, ok := os.LookupEnv("STRAINER_PROVIDER_TYPE"); ok {
		l.API.Type = &v
	}
	if v, ok := os.LookupEnv("STRAINER_BASE_URL"); ok {
		l.API.BaseURL = &v
	}
	if v, ok := os.LookupEnv("STRAINER_MODEL"); ok {
		l.API.Model = &v
	}
	if v, ok := lookupU32("STRAINER_MAX_TOKENS"); ok {
		l.API.MaxTokens = &v
	}

	if v, ok := lookupU32("STRAINER_REQUESTS_PER_MINUTE"); ok {
		l.Limits.RequestsPerMinute = &v
	}
	if v, ok := lookupU32("STRAINER_TOKENS_PER_MINUTE"); ok {
		l.Limits.TokensPerMinute = &v
	}
	if v, ok := lookupU32("STRAINER_INPUT_TOKENS_PER_MINUTE"); ok {
		l.Limits.InputTokensPerMinute = &v
	}

	if v, ok := lookupU8("STRAINER_WARNING_THRESHOLD"); ok {
		l.Thresholds.Warning = &v
	}
	if v, ok := lookupU8("STRAINER_CRITICAL_THRESHOLD"); ok {
		l.Thresholds.Critical = &v
	}
	if v, ok := lookupU8("STRAINER_RESUME_THRESHOLD"); ok {
		l.Thresholds.Resume = &v
	}

	if v, ok := lookupU32("STRAINER_MIN_BACKOFF"); ok {
		l.Backoff.MinSeconds = &v
	}
	if v, ok := lookupU32("STRAINER_MAX_BACKOFF"); ok {
		l.Backoff.MaxSeconds = &v
	}

	if v, ok := lookupBool("STRAINER_PAUSE_ON_WARNING"); ok {
		l.Process.PauseOnWarning = &v
	}
	if v, ok := lookupBool("STRAINER_PAUSE_ON_CRITICAL"); ok {
		l.Process.PauseOnCritical = &v
	}

	if v, ok := os.LookupEnv("STRAINER_LOG_LEVEL"); ok {
		l.Logging.Level = &v
	}
	if v, ok := os.LookupEnv("STRAINER_LOG_FORMAT"); ok {
		l.Logging.Format = &v
	}

	return l
}

func lookupU32(name string) (uint32, bool) {
	s, ok := os.LookupEnv(name)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(v), true
}

func lookupU8(name string) (uint8, bool) {
	s, ok := os.LookupEnv(name)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, false
	}
	return uint8(v), true
}

func lookupBool(name string) (bool, bool) {
	s, ok := os.LookupEnv(name)
	if !ok {
		return false, false
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, false
	}
	return v, true
}
