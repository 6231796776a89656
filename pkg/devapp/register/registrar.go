// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package register

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/telekom/github-dev-app/pkg/devapp/app"
	"github.com/telekom/github-dev-app/pkg/devapp/callback"
	"github.com/telekom/github-dev-app/pkg/devapp/client"
	"github.com/telekom/github-dev-app/pkg/devapp/envfile"
	"github.com/telekom/github-dev-app/pkg/devapp/manifest"
)

// Mode selects what a run does once the callback server is up.
type Mode string

const (
	// ModeExchange waits for the redirect without a deadline, exchanges the
	// code and persists the credentials.
	ModeExchange Mode = "exchange"
	// ModeHeadless only waits for a callback or the idle window and never
	// exchanges.
	ModeHeadless Mode = "headless"
)

const (
	DefaultWebURL          = "https://github.com"
	DefaultEnvFile         = ".env"
	DefaultHeadlessTimeout = 5 * time.Minute
)

type Request struct {
	ManifestPath string
	// Name and Description override the manifest when set.
	Name        string
	Description string
	// Organization registers the app under an organization instead of the
	// signed-in user.
	Organization string

	APIURL      string
	WebURL      string
	BindAddress string
	Port        int
	EnvFile     string

	Mode Mode
	// Interactive allows opening a browser. Without it, URLs are only printed.
	Interactive     bool
	HeadlessTimeout time.Duration
	AccessLog       bool
}

type Result struct {
	CallbackURL string
	// Received reports whether a callback arrived; always true for a
	// successful exchange run.
	Received    bool
	Credentials *app.Credentials
	EnvFile     string
}

type Registrar struct {
	Out         io.Writer
	Log         *zap.Logger
	OpenBrowser func(url string) error
	// ClientOptions are applied after the API URL and user agent.
	ClientOptions []client.Option
	UserAgent     string
}

func (r *Registrar) logger() *zap.Logger {
	if r.Log == nil {
		return zap.NewNop()
	}
	return r.Log
}

func (r *Registrar) printf(format string, args ...any) {
	if r.Out == nil {
		return
	}
	_, _ = fmt.Fprintf(r.Out, format, args...)
}

func (r *Registrar) open(target string, interactive bool) {
	if !interactive || r.OpenBrowser == nil {
		return
	}
	if err := r.OpenBrowser(target); err != nil {
		r.logger().Sugar().Warnw("Failed to open browser", "url", target, "error", err)
	}
}

func (req Request) withDefaults() Request {
	if req.Mode == "" {
		req.Mode = ModeExchange
	}
	if req.APIURL == "" {
		req.APIURL = client.DefaultAPIURL
	}
	if req.WebURL == "" {
		req.WebURL = DefaultWebURL
	}
	if req.EnvFile == "" {
		req.EnvFile = DefaultEnvFile
	}
	if req.HeadlessTimeout <= 0 {
		req.HeadlessTimeout = DefaultHeadlessTimeout
	}
	return req
}

// Register runs one registration. Every failure is a *StageError; a failed
// exchange never touches the env file.
func (r *Registrar) Register(ctx context.Context, req Request) (*Result, error) {
	req = req.withDefaults()
	log := r.logger().Sugar().With("mode", req.Mode)

	m, err := manifest.Load(req.ManifestPath)
	if err != nil {
		return nil, stageError(StageManifest, err)
	}
	if req.Name != "" {
		*m = m.WithName(req.Name)
	}
	if req.Description != "" {
		*m = m.WithDescription(req.Description)
	}

	switch req.Mode {
	case ModeHeadless:
		return r.waitHeadless(ctx, req)
	case ModeExchange:
	default:
		return nil, stageError(StageManifest, fmt.Errorf("unsupported mode: %s", req.Mode))
	}

	opts := append([]client.Option{client.WithServer(req.APIURL)}, r.ClientOptions...)
	if r.UserAgent != "" {
		opts = append(opts, client.WithUserAgent(r.UserAgent))
	}
	exchanger, err := client.New(opts...)
	if err != nil {
		return nil, stageError(StageExchange, err)
	}

	state := uuid.NewString()
	action, err := registrationURL(req.WebURL, req.Organization, state)
	if err != nil {
		return nil, stageError(StageManifest, err)
	}

	srv, err := callback.Start(ctx, callback.Options{
		BindAddress: req.BindAddress,
		Port:        req.Port,
		State:       state,
		AccessLog:   req.AccessLog,
		Logger:      r.logger(),
	})
	if err != nil {
		return nil, stageError(StageBind, err)
	}
	defer func() {
		_ = srv.Close()
	}()

	if m.RedirectURL != nil && *m.RedirectURL != srv.URL() {
		log.Infow("Overriding manifest redirect_url with the local callback", "manifestRedirectURL", *m.RedirectURL)
	}
	withRedirect := m.WithRedirectURL(srv.URL())
	serialized, err := withRedirect.Serialize()
	if err != nil {
		return nil, stageError(StageManifest, err)
	}
	page, err := renderForm(formData{
		Name:     withRedirect.DisplayName(),
		Action:   action,
		Host:     hostOf(req.WebURL),
		Manifest: serialized,
	})
	if err != nil {
		return nil, stageError(StageManifest, err)
	}
	srv.ServeEntryPage(page)

	log.Debugw("Waiting for GitHub redirect", "callbackURL", srv.URL(), "apiURL", exchanger.BaseURL())
	r.printf("Open the following URL in your browser to register the GitHub App:\n%s\n", srv.EntryURL())
	r.open(srv.EntryURL(), req.Interactive)

	var code string
	select {
	case <-ctx.Done():
		return nil, stageError(StageCallback, ctx.Err())
	case code = <-srv.Codes():
	}

	creds, err := exchanger.Exchange(ctx, code)
	if err != nil {
		return nil, stageError(StageExchange, err)
	}
	log.Infow("Exchanged code for app credentials", "app", creds.String())

	if err := envfile.Persist(req.EnvFile, *creds); err != nil {
		return nil, stageError(StagePersist, err)
	}
	if err := envfile.Verify(req.EnvFile, *creds); err != nil {
		log.Warnw("Env file may not be readable by dotenv loaders", "path", req.EnvFile, "error", err)
	}

	r.printf("Saved credentials for GitHub App %q (id %d) to %s\n", creds.Name, creds.ID, req.EnvFile)
	if install := creds.InstallURL(); install != "" {
		r.printf("Install the app on your account or repositories:\n%s\n", install)
		r.open(install, req.Interactive)
	}

	return &Result{
		CallbackURL: srv.URL(),
		Received:    true,
		Credentials: creds,
		EnvFile:     req.EnvFile,
	}, nil
}

func (r *Registrar) waitHeadless(ctx context.Context, req Request) (*Result, error) {
	srv, err := callback.Start(ctx, callback.Options{
		BindAddress: req.BindAddress,
		Port:        req.Port,
		AccessLog:   req.AccessLog,
		Logger:      r.logger(),
	})
	if err != nil {
		return nil, stageError(StageBind, err)
	}
	defer func() {
		_ = srv.Close()
	}()

	r.printf("Listening for the GitHub callback on %s\n", srv.URL())

	timer := time.NewTimer(req.HeadlessTimeout)
	defer timer.Stop()

	result := &Result{CallbackURL: srv.URL()}
	select {
	case <-ctx.Done():
		return nil, stageError(StageCallback, ctx.Err())
	case <-srv.Codes():
		result.Received = true
		r.printf("Received callback; not exchanging the code in headless mode\n")
	case <-timer.C:
		r.printf("No callback received within %s\n", req.HeadlessTimeout)
	}
	return result, nil
}

func hostOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return rawURL
	}
	return parsed.Host
}

// IsStage reports whether err is a StageError for stage.
func IsStage(err error, stage Stage) bool {
	var stageErr *StageError
	return errors.As(err, &stageErr) && stageErr.Stage == stage
}
