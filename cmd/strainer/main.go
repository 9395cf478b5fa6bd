// Command strainer supervises a rate-limited child process, pausing it
// at the OS level when a configured upstream provider reports usage at
// or above a critical threshold, and resuming it once usage decays.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/strainer/strainer/internal/config"
	"github.com/strainer/strainer/internal/initcmd"
	"github.com/strainer/strainer/pkg/control"
	"github.com/strainer/strainer/pkg/provider"
	"github.com/strainer/strainer/pkg/ratelimit"
	"github.com/strainer/strainer/pkg/supervisor"
)

// commonFlags are bound by run, watch, and init alike.
type commonFlags struct {
	configPath string
	logLevel   string
	logFormat  string
	verbose    bool
}

// runFlags are run's and watch's rate-limit and provider options.
type runFlags struct {
	requestsPerMinute    uint32
	tokensPerMinute      uint32
	inputTokensPerMinute uint32
	warningThreshold     uint8
	criticalThreshold    uint8
	resumeThreshold      uint8
	minBackoff           uint32
	maxBackoff           uint32
	apiType              string
	apiKey               string
	apiBaseURL           string
	pauseOnWarning       bool
	pauseOnCritical      bool
	pid                  int
}

func main() {
	var common commonFlags
	var rf runFlags

	root := &cobra.Command{
		Use:   "strainer",
		Short: "Supervise a rate-limited child process",
		Long: `strainer interposes between a child process and a rate-limited
upstream API, pausing and resuming the child at the OS level as usage
approaches configured thresholds.`,
	}
	root.PersistentFlags().StringVar(&common.configPath, "config", "", "path to config file")
	root.PersistentFlags().StringVar(&common.logLevel, "log-level", "", "log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&common.logFormat, "log-format", "", "log format: text or json")
	root.PersistentFlags().BoolVarP(&common.verbose, "verbose", "v", false, "shorthand for --log-level debug")

	runCmd := &cobra.Command{
		Use:   "run -- <argv...>",
		Short: "Spawn and supervise a command",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, common, rf, args)
		},
	}
	bindRunFlags(runCmd, &rf)

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Attach to an existing PID and check liveness",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, common, rf)
		},
	}
	bindRunFlags(watchCmd, &rf)
	watchCmd.Flags().IntVar(&rf.pid, "pid", 0, "PID to attach to")

	var initOpts initcmd.Options
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			initOpts.ConfigPath = common.configPath
			return initcmd.Run(initOpts)
		},
	}
	initCmd.Flags().BoolVar(&initOpts.NoPrompt, "no-prompt", false, "skip the credential probe")
	initCmd.Flags().BoolVar(&initOpts.Force, "force", false, "overwrite an existing config file")
	initCmd.Flags().StringVar(&initOpts.APIType, "api", "anthropic", "provider: anthropic, openai, mock")
	initCmd.Flags().StringVar(&initOpts.APIKey, "api-key", "", "API key")
	initCmd.Flags().StringVar(&initOpts.Model, "model", "", "model name")

	root.AddCommand(runCmd, watchCmd, initCmd)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	root.SetContext(ctx)

	if err := root.Execute(); err != nil {
		slog.Error(err.Error())
		os.Exit(exitCodeFor(err))
	}
}

func bindRunFlags(cmd *cobra.Command, rf *runFlags) {
	cmd.Flags().Uint32Var(&rf.requestsPerMinute, "requests-per-minute", 0, "requests/minute limit (0 = unconstrained)")
	cmd.Flags().Uint32Var(&rf.tokensPerMinute, "tokens-per-minute", 0, "tokens/minute limit (0 = unconstrained)")
	cmd.Flags().Uint32Var(&rf.inputTokensPerMinute, "input-tokens-per-minute", 0, "input tokens/minute limit (0 = unconstrained)")
	cmd.Flags().Uint8Var(&rf.warningThreshold, "warning-threshold", 30, "warning threshold percentage")
	cmd.Flags().Uint8Var(&rf.criticalThreshold, "critical-threshold", 50, "critical threshold percentage")
	cmd.Flags().Uint8Var(&rf.resumeThreshold, "resume-threshold", 25, "resume threshold percentage")
	cmd.Flags().Uint32Var(&rf.minBackoff, "min-backoff", 5, "minimum backoff, seconds")
	cmd.Flags().Uint32Var(&rf.maxBackoff, "max-backoff", 60, "maximum backoff, seconds")
	cmd.Flags().StringVar(&rf.apiType, "api", "anthropic", "provider: anthropic, openai, mock")
	cmd.Flags().StringVar(&rf.apiKey, "api-key", "", "API key")
	cmd.Flags().StringVar(&rf.apiBaseURL, "api-base-url", "", "override the provider's default base URL")
	cmd.Flags().BoolVar(&rf.pauseOnWarning, "pause-on-warning", false, "pause the child at warning level too")
	cmd.Flags().BoolVar(&rf.pauseOnCritical, "pause-on-critical", true, "pause the child at critical level")
}

// resolve merges defaults, file, environment, and flags (flags expressed
// as a Layer built from rf) into a validated config.Config.
func resolve(cmd *cobra.Command, common commonFlags, rf runFlags) (config.Config, error) {
	fileLayer, path, err := config.LoadFile(common.configPath)
	if err != nil {
		var loadErr *config.ConfigLoadError
		if errors.As(err, &loadErr) && rf.apiKey != "" {
			slog.Warn("config file failed to load, proceeding with flags and defaults", "err", err)
			fileLayer = config.Layer{}
		} else {
			return config.Config{}, err
		}
	}
	if path != "" {
		slog.Debug("loaded config file", "path", path)
	}

	envLayer := config.LoadEnv()
	flagLayer := flagsToLayer(cmd, common, rf)

	merged := config.Merge(config.Defaults(), fileLayer, envLayer, flagLayer)
	return config.Resolve(merged)
}

// flagsToLayer builds the flag layer from rf. A flag only contributes to
// the layer when cmd.Flags().Changed reports the caller actually set it,
// distinguishing "the user passed --warning-threshold 30" from "cobra's
// compiled-in default of 30 never got a Changed flip". Without this guard
// every threshold/backoff/pause-on field would be non-nil on every
// invocation (cobra pre-populates rf with its flag defaults), and since
// the flag layer merges last in resolve, it would always beat whatever a
// config file or STRAINER_* environment variable set for those fields,
// defeating config.Merge's explicit-optionality contract.
func flagsToLayer(cmd *cobra.Command, common commonFlags, rf runFlags) config.Layer {
	var l config.Layer
	flags := cmd.Flags()

	if flags.Changed("api") {
		l.API.Type = &rf.apiType
	}
	if rf.apiKey != "" {
		l.API.APIKey = &rf.apiKey
	}
	if rf.apiBaseURL != "" {
		l.API.BaseURL = &rf.apiBaseURL
	}
	if rf.requestsPerMinute != 0 {
		l.Limits.RequestsPerMinute = &rf.requestsPerMinute
	}
	if rf.tokensPerMinute != 0 {
		l.Limits.TokensPerMinute = &rf.tokensPerMinute
	}
	if rf.inputTokensPerMinute != 0 {
		l.Limits.InputTokensPerMinute = &rf.inputTokensPerMinute
	}
	if flags.Changed("warning-threshold") {
		l.Thresholds.Warning = &rf.warningThreshold
	}
	if flags.Changed("critical-threshold") {
		l.Thresholds.Critical = &rf.criticalThreshold
	}
	if flags.Changed("resume-threshold") {
		l.Thresholds.Resume = &rf.resumeThreshold
	}
	if flags.Changed("min-backoff") {
		l.Backoff.MinSeconds = &rf.minBackoff
	}
	if flags.Changed("max-backoff") {
		l.Backoff.MaxSeconds = &rf.maxBackoff
	}
	if flags.Changed("pause-on-warning") {
		l.Process.PauseOnWarning = &rf.pauseOnWarning
	}
	if flags.Changed("pause-on-critical") {
		l.Process.PauseOnCritical = &rf.pauseOnCritical
	}

	if common.logLevel != "" {
		l.Logging.Level = &common.logLevel
	}
	if common.logFormat != "" {
		l.Logging.Format = &common.logFormat
	}
	if common.verbose {
		debug := "debug"
		l.Logging.Level = &debug
	}

	return l
}

func setupLogging(cfg config.ResolvedLogging) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func buildProvider(cfg config.Config) (provider.Provider, error) {
	return provider.New(provider.Config{
		Type:                 provider.Type(cfg.API.Type),
		APIKey:               cfg.API.APIKey,
		BaseURL:              cfg.API.BaseURL,
		Model:                cfg.API.Model,
		MaxTokens:            int(cfg.API.MaxTokens),
		Parameters:           cfg.API.Parameters,
		RequestsPerMinute:    cfg.Limits.RequestsPerMinute,
		TokensPerMinute:      cfg.Limits.TokensPerMinute,
		InputTokensPerMinute: cfg.Limits.InputTokensPerMinute,
	})
}

// controllerAdapter boxes pkg/control's concrete *control.ChildProbe return
// value as supervisor.ChildProbe, the narrower interface pkg/supervisor
// depends on so its tests can substitute a scripted probe without spawning
// a real process.
type controllerAdapter struct {
	*control.Controller
}

func (a controllerAdapter) Spawn(argv []string) (control.ProcessHandle, supervisor.ChildProbe, error) {
	return a.Controller.Spawn(argv)
}

func runRun(cmd *cobra.Command, common commonFlags, rf runFlags, argv []string) error {
	cfg, err := resolve(cmd, common, rf)
	if err != nil {
		return err
	}
	setupLogging(cfg.Logging)

	p, err := buildProvider(cfg)
	if err != nil {
		return err
	}

	engine, err := ratelimit.NewEngine(cfg.Thresholds, cfg.Backoff, p)
	if err != nil {
		return err
	}

	slog.Info("starting supervisor",
		"mode", "run",
		"provider", cfg.API.Type,
		"warning_threshold", cfg.Thresholds.Warning,
		"critical_threshold", cfg.Thresholds.Critical,
		"resume_threshold", cfg.Thresholds.Resume,
		"pause_on_warning", cfg.Process.PauseOnWarning,
		"pause_on_critical", cfg.Process.PauseOnCritical,
	)

	ctrl := controllerAdapter{control.New()}
	return supervisor.RunUntilExit(cmd.Context(), ctrl, engine, argv, supervisor.Config{
		PauseOnWarning:  cfg.Process.PauseOnWarning,
		PauseOnCritical: cfg.Process.PauseOnCritical,
	})
}

func runWatch(cmd *cobra.Command, common commonFlags, rf runFlags) error {
	cfg, err := resolve(cmd, common, rf)
	if err != nil {
		return err
	}
	setupLogging(cfg.Logging)

	if rf.pid <= 0 {
		return fmt.Errorf("watch: --pid is required")
	}

	slog.Info("starting supervisor", "mode", "watch", "pid", rf.pid)

	ctrl := controllerAdapter{control.New()}
	return supervisor.Watch(ctrl, rf.pid)
}

// Exit codes, per the CLI's contract: 0 on success, otherwise a small
// fixed set of non-zero codes, except a non-zero child exit which
// surfaces the child's own status code where feasible.
const (
	exitGeneric       = 1
	exitInvalidConfig = 2
	exitInvalidInvoc  = 3
	exitSpawnFailed   = 4
	exitProviderInit  = 5
	exitWatchNotAlive = 6
)

func exitCodeFor(err error) int {
	var childExit *supervisor.ChildNonZeroExit
	if errors.As(err, &childExit) {
		if childExit.Status != 0 {
			return childExit.Status
		}
		return exitGeneric
	}

	var notRunning *supervisor.NotRunning
	if errors.As(err, &notRunning) {
		return exitWatchNotAlive
	}

	if errors.Is(err, control.ErrInvalidInvocation) {
		return exitInvalidInvoc
	}

	var spawnFailed *control.SpawnFailed
	if errors.As(err, &spawnFailed) {
		return exitSpawnFailed
	}

	var configLoadErr *config.ConfigLoadError
	if errors.As(err, &configLoadErr) {
		return exitInvalidConfig
	}
	var configValidationErr *config.ConfigValidationError
	if errors.As(err, &configValidationErr) {
		return exitInvalidConfig
	}

	var providerErr *provider.InvalidProviderConfig
	if errors.As(err, &providerErr) {
		return exitProviderInit
	}

	return exitGeneric
}
