// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package main

import "testing"

func TestRunVersionCommand(t *testing.T) {
	if code := run([]string{"version"}); code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}
}

func TestRunUnknownCommand(t *testing.T) {
	if code := run([]string{"unknown-command"}); code == 0 {
		t.Fatalf("expected non-zero exit code for unknown command")
	}
}

func TestRunMissingManifest(t *testing.T) {
	t.Setenv("GITHUB_DEV_APP_CONFIG", t.TempDir()+"/config.yaml")
	if code := run([]string{"register", t.TempDir() + "/missing.json", "--non-interactive"}); code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
}
