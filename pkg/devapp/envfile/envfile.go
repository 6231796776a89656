// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package envfile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/telekom/github-dev-app/pkg/devapp/app"
)

const (
	KeyAppID         = "GITHUB_APP_ID"
	KeyAppName       = "GITHUB_APP_NAME"
	KeyClientID      = "GITHUB_CLIENT_ID"
	KeyClientSecret  = "GITHUB_CLIENT_SECRET"
	KeyWebhookSecret = "GITHUB_WEBHOOK_SECRET"
	KeyPrivateKey    = "GITHUB_PRIVATE_KEY"
)

// ManagedKeys lists the keys owned by this package, in the order they are
// written.
var ManagedKeys = []string{
	KeyAppID,
	KeyAppName,
	KeyClientID,
	KeyClientSecret,
	KeyWebhookSecret,
	KeyPrivateKey,
}

// assignmentPattern matches lines that start a new conventional (upper-case)
// variable. Base64 lines of a PEM body practically never do.
var assignmentPattern = regexp.MustCompile(`^\s*(export\s+)?[A-Z_][A-Z0-9_]*\s*=`)

type entry struct {
	key    string
	value  string
	quoted bool
}

func entries(creds app.Credentials) []entry {
	out := []entry{
		{key: KeyAppID, value: strconv.FormatInt(creds.ID, 10)},
		{key: KeyAppName, value: creds.Name},
		{key: KeyClientID, value: creds.ClientID, quoted: true},
		{key: KeyClientSecret, value: creds.ClientSecret},
	}
	if creds.WebhookSecret != nil {
		out = append(out, entry{key: KeyWebhookSecret, value: *creds.WebhookSecret})
	}
	return append(out, entry{key: KeyPrivateKey, value: creds.PrivateKey, quoted: true})
}

// Merge returns existing with all managed lines removed and one line per
// managed key appended. Unmanaged lines keep their bytes, including a CRLF
// terminator. Merging the same credentials twice yields the same text.
func Merge(existing string, creds app.Credentials) string {
	var b strings.Builder
	lines := splitLines(existing)
	for i := 0; i < len(lines); i++ {
		key, value, ok := parseAssignment(lines[i])
		if !ok || !isManagedKey(key) {
			b.WriteString(lines[i])
			b.WriteByte('\n')
			continue
		}
		i += continuationLines(value, lines[i+1:])
	}
	for _, e := range entries(creds) {
		b.WriteString(e.key)
		b.WriteByte('=')
		if e.quoted {
			b.WriteString(quote(e.value))
		} else {
			b.WriteString(e.value)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// continuationLines counts the lines in rest that belong to a quoted value
// opened on the previous line. A value whose quote is never closed, or that
// runs into another assignment first, is treated as a single line.
func continuationLines(value string, rest []string) int {
	if value == "" || (value[0] != '"' && value[0] != '\'') {
		return 0
	}
	q := value[0]
	if closesQuote(value[1:], q) {
		return 0
	}
	for n, line := range rest {
		if assignmentPattern.MatchString(line) {
			return 0
		}
		if closesQuote(line, q) {
			return n + 1
		}
	}
	return 0
}

// Persist merges creds into the file at path. A missing file is treated as
// empty. The file is rewritten in place, so a crash mid-write can leave it
// truncated.
func Persist(path string, creds app.Credentials) error {
	if path == "" {
		return errors.New("env file path is required")
	}
	existing, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to read env file %s: %w", path, err)
	}
	if err := os.WriteFile(path, []byte(Merge(string(existing), creds)), 0o600); err != nil {
		return fmt.Errorf("failed to write env file %s: %w", path, err)
	}
	return nil
}

// Verify parses the file at path as a dotenv file and checks that every
// managed key holds the value from creds. Values are never included in the
// returned error.
func Verify(path string, creds app.Credentials) error {
	values, err := godotenv.Read(path)
	if err != nil {
		return fmt.Errorf("failed to parse env file %s: %w", path, err)
	}
	var mismatched []string
	for _, e := range entries(creds) {
		if got, ok := values[e.key]; !ok || got != e.value {
			mismatched = append(mismatched, e.key)
		}
	}
	if len(mismatched) > 0 {
		return fmt.Errorf("env file %s does not round-trip keys: %s", path, strings.Join(mismatched, ", "))
	}
	return nil
}

func isManagedKey(key string) bool {
	for _, managed := range ManagedKeys {
		if key == managed {
			return true
		}
	}
	return false
}

func parseAssignment(line string) (string, string, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return "", "", false
	}
	trimmed = strings.TrimPrefix(trimmed, "export ")
	key, value, found := strings.Cut(trimmed, "=")
	if !found {
		return "", "", false
	}
	return strings.TrimSpace(key), strings.TrimSpace(value), true
}

// splitLines splits text on LF. A CR before the LF stays part of the line.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(text, "\n"), "\n")
}

// closesQuote reports whether s contains the closing quote q. Double-quoted
// values may escape quotes with a backslash; single-quoted values may not.
func closesQuote(s string, q byte) bool {
	if q == '\'' {
		return strings.IndexByte(s, q) >= 0
	}
	escaped := false
	for i := 0; i < len(s); i++ {
		switch {
		case escaped:
			escaped = false
		case s[i] == '\\':
			escaped = true
		case s[i] == q:
			return true
		}
	}
	return false
}

func quote(value string) string {
	var b strings.Builder
	b.Grow(len(value) + 2)
	b.WriteByte('"')
	for _, r := range value {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}
