// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/telekom/github-dev-app/pkg/devapp/config"
	"github.com/telekom/github-dev-app/pkg/devapp/register"
	"github.com/telekom/github-dev-app/pkg/system"
)

const (
	envNonInteractive = "GITHUB_DEV_APP_NON_INTERACTIVE"
	envVerbose        = "GITHUB_DEV_APP_VERBOSE"
	envCI             = "CI"
)

type Config struct {
	ConfigPath   string
	OutputWriter io.Writer
	// Context is the base context for every command, e.g. one cancelled on
	// SIGINT. Defaults to context.Background().
	Context context.Context
	// Logger replaces the logger built from --verbose.
	Logger *zap.Logger
	// OpenBrowser replaces the platform browser launcher.
	OpenBrowser func(url string) error
}

type runtimeState struct {
	configPath     string
	cfg            *config.Config
	nonInteractive bool
	verbose        bool
	writer         io.Writer
	logger         *zap.Logger
	openBrowser    func(url string) error
}

type runtimeKey struct{}

func DefaultConfig() Config {
	return Config{
		ConfigPath:   config.DefaultConfigPath(),
		OutputWriter: os.Stdout,
	}
}

func NewRootCommand(cfg Config) *cobra.Command {
	rt := &runtimeState{
		configPath:  cfg.ConfigPath,
		writer:      cfg.OutputWriter,
		logger:      cfg.Logger,
		openBrowser: cfg.OpenBrowser,
	}

	root := &cobra.Command{
		Use:   "github-dev-app",
		Short: "Register GitHub Apps for local development",
		Long: `Register a GitHub App from a manifest file and store its credentials
in a local .env file. The app is created through GitHub's manifest flow: a
browser form posts the manifest to GitHub, which redirects back to a
short-lived local server with a one-time code.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if rt.writer == nil {
				rt.writer = os.Stdout
			}
			if rt.configPath == "" {
				rt.configPath = config.DefaultConfigPath()
			}
			if rt.openBrowser == nil {
				rt.openBrowser = register.OpenBrowser
			}
			if !rt.nonInteractive {
				rt.nonInteractive = envTrue(envNonInteractive) || envTrue(envCI)
			}
			if !rt.verbose {
				rt.verbose = envTrue(envVerbose)
			}
			ginMode(rt.verbose)
			if rt.logger == nil {
				logger, err := system.NewLogger(rt.verbose)
				if err != nil {
					return err
				}
				rt.logger = logger
			}

			// Skip config loading for commands that don't need it
			if cmd.Name() == "init" && cmd.Parent() != nil && cmd.Parent().Name() == "config" {
				return nil
			}
			if cmd.Name() == "version" || cmd.Name() == "completion" {
				return nil
			}
			return rt.EnsureConfigLoaded()
		},
	}

	root.PersistentFlags().StringVar(&rt.configPath, "config", rt.configPath, "Path to config file")
	root.PersistentFlags().BoolVar(&rt.nonInteractive, "non-interactive", false, "Never open a browser; only print URLs")
	root.PersistentFlags().BoolVarP(&rt.verbose, "verbose", "v", false, "Enable debug logging on stderr")

	base := cfg.Context
	if base == nil {
		base = context.Background()
	}
	root.SetContext(context.WithValue(base, runtimeKey{}, rt))

	root.AddCommand(
		NewRegisterCommand(),
		NewManifestCommand(),
		NewConfigCommand(),
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

// ginMode sets the process-wide gin mode once per invocation. Debug mode
// prints route tables to stderr, so it follows --verbose.
func ginMode(verbose bool) {
	if verbose {
		gin.SetMode(gin.DebugMode)
		return
	}
	gin.SetMode(gin.ReleaseMode)
}

func envTrue(name string) bool {
	return strings.EqualFold(os.Getenv(name), "true") || os.Getenv(name) == "1"
}

func (rt *runtimeState) Writer() io.Writer {
	if rt.writer != nil {
		return rt.writer
	}
	return os.Stdout
}

func (rt *runtimeState) Logger() *zap.Logger {
	if rt.logger != nil {
		return rt.logger
	}
	return zap.NewNop()
}

// Interactive reports whether commands may open a browser.
func (rt *runtimeState) Interactive() bool {
	if rt.nonInteractive {
		return false
	}
	return rt.cfg == nil || rt.cfg.Settings.BrowserEnabled()
}

func (rt *runtimeState) EnsureConfigLoaded() error {
	if rt.cfg != nil {
		return nil
	}
	cfg, err := config.LoadOrDefault(rt.configPathValue())
	if err != nil {
		return err
	}
	rt.cfg = cfg
	return nil
}

func (rt *runtimeState) configPathValue() string {
	if rt.configPath == "" {
		return config.DefaultConfigPath()
	}
	return rt.configPath
}
