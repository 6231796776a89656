// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package register

import (
	"bytes"
	"fmt"
	"html/template"
	"net/url"
	"strings"

	"github.com/Masterminds/sprig/v3"
)

// GitHub only accepts manifests through a form POST from the user's browser,
// so the local server hands out a page that submits itself.
const formTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Register {{ .Name | default "GitHub App" }}</title>
</head>
<body onload="document.forms[0].submit()">
<form action="{{ .Action }}" method="post">
<input type="hidden" name="manifest" value="{{ .Manifest }}">
<p>Redirecting to {{ .Host | trimPrefix "www." }} to register {{ .Name | default "your GitHub App" }}&hellip;</p>
<noscript><button type="submit">Continue</button></noscript>
</form>
</body>
</html>
`

var form = template.Must(template.New("form").Funcs(sprig.HtmlFuncMap()).Parse(formTemplate))

type formData struct {
	Name     string
	Action   string
	Host     string
	Manifest string
}

// registrationURL is GitHub's "new app from manifest" endpoint for a user
// account, or for organization when set.
func registrationURL(webURL, organization, state string) (string, error) {
	base, err := url.Parse(strings.TrimSuffix(webURL, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid web url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return "", fmt.Errorf("invalid web url: unsupported scheme %q", base.Scheme)
	}
	if organization != "" {
		base.Path += "/organizations/" + url.PathEscape(organization) + "/settings/apps/new"
	} else {
		base.Path += "/settings/apps/new"
	}
	if state != "" {
		base.RawQuery = url.Values{"state": []string{state}}.Encode()
	}
	return base.String(), nil
}

func renderForm(data formData) ([]byte, error) {
	var buf bytes.Buffer
	if err := form.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to render registration form: %w", err)
	}
	return buf.Bytes(), nil
}
