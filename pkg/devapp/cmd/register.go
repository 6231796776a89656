// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/telekom/github-dev-app/pkg/devapp/client"
	"github.com/telekom/github-dev-app/pkg/devapp/config"
	"github.com/telekom/github-dev-app/pkg/devapp/register"
	"github.com/telekom/github-dev-app/pkg/version"
)

type registerOptions struct {
	port         int
	apiURL       string
	webURL       string
	bindAddress  string
	envFile      string
	caFile       string
	organization string
	name         string
	description  string
	headless     bool
	timeout      time.Duration
	reqTimeout   time.Duration
	accessLog    bool
}

func NewRegisterCommand() *cobra.Command {
	return newRegisterCommand(&registerOptions{})
}

func newRegisterCommand(opts *registerOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register MANIFEST",
		Short: "Register a GitHub App from a manifest and save its credentials",
		Long: `Register a GitHub App from a JSON manifest.

A local callback server is started and a registration page is opened in the
browser (or printed with --non-interactive). After the app is created on
GitHub, the one-time code is exchanged for the app's credentials, which are
merged into the env file. Unrelated lines in the env file are kept.

With --headless the command only waits for GitHub's callback and exits
without exchanging the code.

The callback only accepts the redirect that carries the random state from the
registration page. A hand-made request such as POST /?code=... without that
state is rejected with 400. In --headless mode no registration page is
served, so the state check is off and any request with a code is accepted.`,
		Example: `  github-dev-app register app-manifest.json
  github-dev-app register app-manifest.json --org my-org --env-file .env.local
  github-dev-app register app-manifest.json --api-url https://ghe.example.com/api/v3 --web-url https://ghe.example.com`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if err := rt.EnsureConfigLoaded(); err != nil {
				return err
			}
			req, err := opts.request(cmd, rt.cfg.Settings, args[0])
			if err != nil {
				return err
			}
			req.Interactive = rt.Interactive()

			clientOpts, err := opts.clientOptions(cmd, rt.cfg.Settings)
			if err != nil {
				return err
			}

			registrar := &register.Registrar{
				Out:           rt.Writer(),
				Log:           rt.Logger(),
				OpenBrowser:   rt.openBrowser,
				ClientOptions: clientOpts,
				UserAgent:     version.UserAgent(),
			}
			_, err = registrar.Register(cmd.Context(), req)
			return err
		},
	}

	cmd.Flags().IntVar(&opts.port, "port", 0, "Callback server port (0 picks a free port)")
	cmd.Flags().StringVar(&opts.apiURL, "api-url", config.DefaultAPIURL, "GitHub REST API URL")
	cmd.Flags().StringVar(&opts.webURL, "web-url", config.DefaultWebURL, "GitHub web URL")
	cmd.Flags().StringVar(&opts.bindAddress, "bind-address", config.DefaultBindAddress, "Address the callback server binds to")
	cmd.Flags().StringVar(&opts.envFile, "env-file", config.DefaultEnvFile, "Env file to write credentials to")
	cmd.Flags().StringVar(&opts.caFile, "ca-file", "", "Additional CA bundle for the GitHub API")
	cmd.Flags().StringVar(&opts.organization, "org", "", "Register the app under this organization")
	cmd.Flags().StringVar(&opts.name, "name", "", "Override the manifest's app name")
	cmd.Flags().StringVar(&opts.description, "description", "", "Override the manifest's description")
	cmd.Flags().BoolVar(&opts.headless, "headless", false, "Only wait for the callback; do not exchange the code")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", register.DefaultHeadlessTimeout, "How long --headless waits for a callback")
	cmd.Flags().DurationVar(&opts.reqTimeout, "request-timeout", 0, "Timeout for GitHub API requests (0 keeps the client default)")
	cmd.Flags().BoolVar(&opts.accessLog, "access-log", false, "Log callback requests (includes the one-time code)")
	_ = cmd.Flags().MarkHidden("access-log")

	return cmd
}

// request resolves every setting as flag, then config file, then default.
func (o *registerOptions) request(cmd *cobra.Command, settings config.Settings, manifestPath string) (register.Request, error) {
	req := register.Request{
		ManifestPath: manifestPath,
		Name:         o.name,
		Description:  o.description,
		Organization: o.organization,
		APIURL:       stringSetting(cmd, "api-url", o.apiURL, settings.APIURL),
		WebURL:       stringSetting(cmd, "web-url", o.webURL, settings.WebURL),
		BindAddress:  stringSetting(cmd, "bind-address", o.bindAddress, settings.BindAddress),
		EnvFile:      stringSetting(cmd, "env-file", o.envFile, settings.EnvFile),
		Port:         o.port,
		Mode:         register.ModeExchange,
		AccessLog:    o.accessLog,
	}
	if !cmd.Flags().Changed("port") && settings.Port != 0 {
		req.Port = settings.Port
	}
	if o.headless {
		req.Mode = register.ModeHeadless
	}

	req.HeadlessTimeout = o.timeout
	if !cmd.Flags().Changed("timeout") {
		configured, err := settings.HeadlessTimeoutDuration()
		if err != nil {
			return register.Request{}, err
		}
		if configured > 0 {
			req.HeadlessTimeout = configured
		}
	}
	return req, nil
}

// clientOptions resolves the API client's CA bundle and request timeout
// with the same precedence as request.
func (o *registerOptions) clientOptions(cmd *cobra.Command, settings config.Settings) ([]client.Option, error) {
	var clientOpts []client.Option
	if caFile := stringSetting(cmd, "ca-file", o.caFile, settings.CAFile); caFile != "" {
		clientOpts = append(clientOpts, client.WithTLSConfig(caFile, false))
	}

	timeout := o.reqTimeout
	if !cmd.Flags().Changed("request-timeout") {
		configured, err := settings.RequestTimeoutDuration()
		if err != nil {
			return nil, err
		}
		timeout = configured
	}
	if timeout < 0 {
		return nil, fmt.Errorf("invalid --request-timeout: %s", timeout)
	}
	if timeout > 0 {
		clientOpts = append(clientOpts, client.WithTimeout(timeout))
	}
	return clientOpts, nil
}

func stringSetting(cmd *cobra.Command, flag, flagValue, configValue string) string {
	if cmd.Flags().Changed(flag) || configValue == "" {
		return flagValue
	}
	return configValue
}
