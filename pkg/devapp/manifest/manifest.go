// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrMissingURL is returned when a manifest has no homepage url.
var ErrMissingURL = errors.New("missing required field `url`")

// Manifest is the configuration GitHub uses to create an app. Field order
// follows GitHub's documentation and is preserved on serialization.
type Manifest struct {
	Name                  *string           `json:"name,omitempty" yaml:"name,omitempty"`
	URL                   string            `json:"url" yaml:"url"`
	HookAttributes        *HookAttributes   `json:"hook_attributes,omitempty" yaml:"hook_attributes,omitempty"`
	RedirectURL           *string           `json:"redirect_url,omitempty" yaml:"redirect_url,omitempty"`
	CallbackURLs          []string          `json:"callback_urls,omitempty" yaml:"callback_urls,omitempty"`
	SetupURL              *string           `json:"setup_url,omitempty" yaml:"setup_url,omitempty"`
	Description           *string           `json:"description,omitempty" yaml:"description,omitempty"`
	Public                *bool             `json:"public,omitempty" yaml:"public,omitempty"`
	DefaultEvents         []string          `json:"default_events,omitempty" yaml:"default_events,omitempty"`
	DefaultPermissions    map[string]string `json:"default_permissions,omitempty" yaml:"default_permissions,omitempty"`
	RequestOAuthOnInstall *bool             `json:"request_oauth_on_install,omitempty" yaml:"request_oauth_on_install,omitempty"`
	SetupOnUpdate         *bool             `json:"setup_on_update,omitempty" yaml:"setup_on_update,omitempty"`
}

// HookAttributes configures the app's webhook.
type HookAttributes struct {
	URL    string `json:"url" yaml:"url"`
	Active *bool  `json:"active,omitempty" yaml:"active,omitempty"`
}

// Load reads and parses the manifest at path.
func Load(path string) (*Manifest, error) {
	if path == "" {
		return nil, errors.New("manifest path is required")
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest file: %w", err)
	}
	return Parse(content)
}

// Parse decodes a JSON manifest. Unknown fields are ignored.
func Parse(content []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(content, &m); err != nil {
		return nil, fmt.Errorf("failed to deserialize manifest: %w", err)
	}
	if strings.TrimSpace(m.URL) == "" {
		return nil, fmt.Errorf("failed to deserialize manifest: %w", ErrMissingURL)
	}
	return &m, nil
}

// Serialize renders the manifest as compact JSON. HTML characters are not
// escaped so URLs with query strings survive unchanged.
func (m Manifest) Serialize() (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(m); err != nil {
		return "", fmt.Errorf("failed to serialize manifest: %w", err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// DisplayName is the app name, or "" when the manifest leaves naming to the
// user on GitHub's form.
func (m Manifest) DisplayName() string {
	if m.Name == nil {
		return ""
	}
	return *m.Name
}

// WithName returns a copy with the name replaced.
func (m Manifest) WithName(name string) Manifest {
	m.Name = &name
	return m
}

// WithDescription returns a copy with the description replaced.
func (m Manifest) WithDescription(description string) Manifest {
	m.Description = &description
	return m
}

// WithRedirectURL returns a copy that redirects to redirectURL once the app
// has been created.
func (m Manifest) WithRedirectURL(redirectURL string) Manifest {
	m.RedirectURL = &redirectURL
	return m
}
