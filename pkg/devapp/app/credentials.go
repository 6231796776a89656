// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"fmt"
	"strings"
)

// Credentials are the durable identity and secrets of a GitHub App, returned
// once by the manifest conversion. They are never modified after creation.
type Credentials struct {
	ID            int64
	Name          string
	ClientID      string
	ClientSecret  string
	WebhookSecret *string
	PrivateKey    string

	// HTMLURL is the app's page on GitHub. It is not persisted.
	HTMLURL string
}

// InstallURL returns the page where the app can be installed on accounts and
// repositories, or "" when GitHub did not report the app's page.
func (c Credentials) InstallURL() string {
	if c.HTMLURL == "" {
		return ""
	}
	return strings.TrimSuffix(c.HTMLURL, "/") + "/installations/new"
}

// String keeps secrets out of logs and error messages.
func (c Credentials) String() string {
	return fmt.Sprintf("GitHub App %q (id %d, client id %s)", c.Name, c.ID, c.ClientID)
}
