package cmd

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/telekom/dlctl/pkg/dlctl/auth"
	"github.com/telekom/dlctl/pkg/dlctl/config"
	"github.com/telekom/dlctl/pkg/dlctl/output"
	"github.com/telekom/dlctl/pkg/system"
)

type Config struct {
	ConfigPath   string
	OutputWriter io.Writer
	// ErrorWriter receives status messages and logs. Defaults to stderr.
	ErrorWriter io.Writer
	// TokenPath overrides the file token store location.
	TokenPath string
	// Browser overrides the system browser, mainly for tests.
	Browser auth.BrowserOpener
}

type runtimeState struct {
	configPath           string
	tokenPath            string
	cfg                  *config.Config
	profileOverride      string
	outputFormat         string
	tokenStorageOverride string
	logLevel             string
	flowOverride         string
	noBrowser            bool
	verbose              bool
	writer               io.Writer
	errWriter            io.Writer
	browser              auth.BrowserOpener
	log                  *zap.SugaredLogger
}

type runtimeKey struct{}

func DefaultConfig() Config {
	return Config{
		ConfigPath:   config.DefaultConfigPath(),
		OutputWriter: os.Stdout,
		ErrorWriter:  os.Stderr,
	}
}

func NewRootCommand(cfg Config) *cobra.Command {
	rt := &runtimeState{
		configPath: cfg.ConfigPath,
		tokenPath:  cfg.TokenPath,
		writer:     cfg.OutputWriter,
		errWriter:  cfg.ErrorWriter,
		browser:    cfg.Browser,
	}

	root := &cobra.Command{
		Use:           "dlctl",
		Short:         "Data loader login CLI",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if rt.writer == nil {
				rt.writer = os.Stdout
			}
			if rt.errWriter == nil {
				rt.errWriter = os.Stderr
			}
			if rt.configPath == "" {
				rt.configPath = config.DefaultConfigPath()
			}
			if rt.tokenPath == "" {
				rt.tokenPath = config.DefaultTokenPath()
			}
			env, err := config.LoadEnv()
			if err != nil {
				return err
			}
			if rt.profileOverride == "" {
				rt.profileOverride = env.Profile
			}
			if rt.outputFormat == "" {
				rt.outputFormat = env.Output
			}
			if rt.tokenStorageOverride == "" {
				rt.tokenStorageOverride = env.TokenStorage
			}
			if rt.logLevel == "" {
				rt.logLevel = env.LogLevel
			}
			rt.flowOverride = env.Flow
			if !rt.noBrowser {
				rt.noBrowser = env.NoBrowser
			}
			if !rt.verbose {
				rt.verbose = env.Verbose
			}

			// Skip config loading for commands that don't need it
			needsConfig := true
			if cmd.Name() == "init" && cmd.Parent() != nil && cmd.Parent().Name() == "config" {
				needsConfig = false
			}
			if cmd.Name() == "version" || cmd.Name() == "completion" {
				needsConfig = false
			}
			if needsConfig {
				loaded, err := config.Load(rt.configPath)
				if err != nil {
					return err
				}
				rt.cfg = loaded
			}
			return rt.initLogger()
		},
	}

	root.PersistentFlags().StringVar(&rt.configPath, "config", rt.configPath, "Path to config file")
	root.PersistentFlags().StringVarP(&rt.profileOverride, "profile", "p", "", "Profile name override")
	root.PersistentFlags().StringVarP(&rt.outputFormat, "output", "o", "", "Output format: table, json, yaml")
	root.PersistentFlags().StringVar(&rt.tokenStorageOverride, "token-storage", "", "Token storage backend: keychain or file")
	root.PersistentFlags().StringVar(&rt.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	root.PersistentFlags().BoolVar(&rt.noBrowser, "no-browser", false, "Print login URLs instead of opening a browser")
	root.PersistentFlags().BoolVarP(&rt.verbose, "verbose", "v", false, "Enable verbose logging with attempt IDs")

	root.SetContext(context.WithValue(context.Background(), runtimeKey{}, rt))

	root.AddCommand(
		NewConfigCommand(),
		NewAuthCommand(),
		NewCompletionCommand(),
		NewVersionCommand(),
	)

	return root
}

func getRuntime(cmd *cobra.Command) (*runtimeState, error) {
	rt, ok := cmd.Context().Value(runtimeKey{}).(*runtimeState)
	if !ok || rt == nil {
		return nil, errors.New("runtime not initialized")
	}
	return rt, nil
}

func (rt *runtimeState) ResolveProfileName() string {
	if rt.profileOverride != "" {
		return rt.profileOverride
	}
	if rt.cfg != nil {
		return rt.cfg.CurrentProfileOrDefault()
	}
	return ""
}

func (rt *runtimeState) OutputFormat() (output.Format, error) {
	if rt.outputFormat != "" {
		return output.ParseFormat(rt.outputFormat)
	}
	if rt.cfg != nil && rt.cfg.Settings.OutputFormat != "" {
		return output.ParseFormat(rt.cfg.Settings.OutputFormat)
	}
	return output.FormatTable, nil
}

func (rt *runtimeState) TokenStorage() string {
	if rt.tokenStorageOverride != "" {
		return rt.tokenStorageOverride
	}
	if rt.cfg != nil && rt.cfg.Settings.TokenStorage != "" {
		return rt.cfg.Settings.TokenStorage
	}
	return auth.StorageFile
}

func (rt *runtimeState) TokenStore() (auth.TokenStore, error) {
	return auth.NewTokenStore(rt.TokenStorage(), rt.tokenPath)
}

func (rt *runtimeState) Browser() auth.BrowserOpener {
	if rt.noBrowser {
		return auth.NoBrowser
	}
	if rt.browser != nil {
		return rt.browser
	}
	return auth.SystemBrowser()
}

func (rt *runtimeState) initLogger() error {
	if rt.log != nil {
		return nil
	}
	level := rt.logLevel
	if level == "" && rt.cfg != nil {
		level = rt.cfg.Settings.LogLevel
	}
	logger, err := system.NewLogger(rt.verbose, level)
	if err != nil {
		return err
	}
	rt.log = logger
	return nil
}

func (rt *runtimeState) Logger() *zap.SugaredLogger {
	if rt.log != nil {
		return rt.log
	}
	return zap.NewNop().Sugar()
}

func (rt *runtimeState) Writer() io.Writer {
	if rt.writer != nil {
		return rt.writer
	}
	return os.Stdout
}

func (rt *runtimeState) ErrWriter() io.Writer {
	if rt.errWriter != nil {
		return rt.errWriter
	}
	return os.Stderr
}

func (rt *runtimeState) EnsureConfigLoaded() error {
	if rt.cfg != nil {
		return nil
	}
	cfg, err := config.Load(rt.configPath)
	if err != nil {
		return err
	}
	rt.cfg = cfg
	return nil
}

func (rt *runtimeState) ResolveProfile() (*config.Profile, error) {
	if rt.cfg == nil {
		return nil, errors.New("config not loaded")
	}
	name := rt.ResolveProfileName()
	if name == "" {
		return nil, errors.New("no profile configured")
	}
	return rt.cfg.FindProfile(name)
}

func (rt *runtimeState) configPathValue() string {
	if rt.configPath == "" {
		return config.DefaultConfigPath()
	}
	return rt.configPath
}
