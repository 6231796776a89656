// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/go-github/v61/github"

	"github.com/telekom/github-dev-app/pkg/devapp/app"
)

// DefaultAPIURL is the public GitHub REST API.
const DefaultAPIURL = "https://api.github.com/"

type Client struct {
	baseURL   *url.URL
	http      *http.Client
	userAgent string
}

type Option func(*Client) error

func New(opts ...Option) (*Client, error) {
	c := &Client{
		http:      &http.Client{Timeout: 30 * time.Second},
		userAgent: "github-dev-app",
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if c.baseURL == nil {
		if err := WithServer(DefaultAPIURL)(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// WithServer points the client at a GitHub API root, e.g. a GitHub Enterprise
// Server's https://ghe.example.com/api/v3.
func WithServer(server string) Option {
	return func(c *Client) error {
		if server == "" {
			return errors.New("server is required")
		}
		parsed, err := url.Parse(server)
		if err != nil {
			return fmt.Errorf("invalid server: %w", err)
		}
		if parsed.Scheme != "http" && parsed.Scheme != "https" {
			return fmt.Errorf("invalid server: unsupported scheme %q", parsed.Scheme)
		}
		if !strings.HasSuffix(parsed.Path, "/") {
			parsed.Path += "/"
		}
		c.baseURL = parsed
		return nil
	}
}

func WithUserAgent(userAgent string) Option {
	return func(c *Client) error {
		c.userAgent = userAgent
		return nil
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) error {
		if timeout <= 0 {
			return fmt.Errorf("invalid timeout: %s", timeout)
		}
		c.http.Timeout = timeout
		return nil
	}
}

func WithTLSConfig(caFile string, insecureSkipTLSVerify bool) Option {
	return func(c *Client) error {
		tlsConfig, err := loadTLSConfig(caFile, insecureSkipTLSVerify)
		if err != nil {
			return err
		}
		c.http.Transport = &http.Transport{TLSClientConfig: tlsConfig}
		return nil
	}
}

func loadTLSConfig(caFile string, insecure bool) (*tls.Config, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12, InsecureSkipVerify: insecure}
	if caFile == "" {
		return tlsConfig, nil
	}
	data, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA file: %w", err)
	}
	pool := x509.NewCertPool()
	if ok := pool.AppendCertsFromPEM(data); !ok {
		return nil, errors.New("failed to parse CA file")
	}
	tlsConfig.RootCAs = pool
	return tlsConfig, nil
}

// BaseURL returns the API root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Exchange converts a one-time manifest code into the app's credentials with
// a single POST to app-manifests/{code}/conversions. The code cannot be used
// twice, so failures are never retried.
func (c *Client) Exchange(ctx context.Context, code string) (*app.Credentials, error) {
	if code == "" {
		return nil, errors.New("code is required")
	}
	gh := github.NewClient(c.http)
	base := *c.baseURL
	gh.BaseURL = &base
	gh.UserAgent = c.userAgent

	cfg, _, err := gh.Apps.CompleteAppManifest(ctx, url.PathEscape(code))
	if err != nil {
		return nil, decodeError(err)
	}
	return &app.Credentials{
		ID:            cfg.GetID(),
		Name:          cfg.GetName(),
		ClientID:      cfg.GetClientID(),
		ClientSecret:  cfg.GetClientSecret(),
		WebhookSecret: cfg.WebhookSecret,
		PrivateKey:    cfg.GetPEM(),
		HTMLURL:       cfg.GetHTMLURL(),
	}, nil
}

func decodeError(err error) error {
	var errResp *github.ErrorResponse
	if errors.As(err, &errResp) && errResp.Response != nil {
		return newHTTPError(errResp.Response, errResp.Message)
	}
	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) && rateErr.Response != nil {
		return newHTTPError(rateErr.Response, rateErr.Message)
	}
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) && abuseErr.Response != nil {
		return newHTTPError(abuseErr.Response, abuseErr.Message)
	}
	var acceptedErr *github.AcceptedError
	if errors.As(err, &acceptedErr) {
		return &HTTPError{StatusCode: http.StatusAccepted, Message: messageOr(string(acceptedErr.Raw), http.StatusText(http.StatusAccepted))}
	}
	return fmt.Errorf("manifest conversion request failed: %w", err)
}

// newHTTPError prefers the raw response body, which go-github keeps readable
// after decoding the error.
func newHTTPError(resp *http.Response, apiMessage string) error {
	var body []byte
	if resp.Body != nil {
		body, _ = io.ReadAll(resp.Body)
	}
	msg := messageOr(string(body), messageOr(apiMessage, resp.Status))
	return &HTTPError{StatusCode: resp.StatusCode, Message: msg}
}

func messageOr(msg, fallback string) string {
	if trimmed := strings.TrimSpace(msg); trimmed != "" {
		return trimmed
	}
	return fallback
}

type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("request failed (%d): %s", e.StatusCode, e.Message)
}
