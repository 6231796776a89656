// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gopkg.in/yaml.v3"

	"github.com/telekom/github-dev-app/pkg/devapp/config"
	"github.com/telekom/github-dev-app/pkg/version"
)

func configPathForTest(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "config.yaml")
}

// clearEnv keeps the developer's or CI's environment out of the tests.
func clearEnv(t *testing.T) {
	t.Helper()
	t.Setenv(envNonInteractive, "")
	t.Setenv(envVerbose, "")
	t.Setenv(envCI, "")
}

// executeRoot runs args against a fresh command tree and returns the runtime
// state the commands saw.
func executeRoot(t *testing.T, path string, buf *bytes.Buffer, args ...string) (*runtimeState, error) {
	t.Helper()
	root := NewRootCommand(Config{ConfigPath: path, OutputWriter: buf, Logger: zaptest.NewLogger(t)})
	root.SetArgs(args)
	root.SetErr(&bytes.Buffer{})
	err := root.Execute()
	rt, _ := root.Context().Value(runtimeKey{}).(*runtimeState)
	return rt, err
}

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "manifest.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestRootEnvFallbacks(t *testing.T) {
	clearEnv(t)
	t.Setenv(envNonInteractive, "true")
	t.Setenv(envVerbose, "TRUE")

	rt, err := executeRoot(t, configPathForTest(t), &bytes.Buffer{}, "config", "path")
	require.NoError(t, err)
	require.NotNil(t, rt)
	assert.True(t, rt.nonInteractive)
	assert.True(t, rt.verbose)
	assert.False(t, rt.Interactive())
}

func TestRootSetsGinModeFromVerbose(t *testing.T) {
	clearEnv(t)
	t.Cleanup(func() { gin.SetMode(gin.TestMode) })

	_, err := executeRoot(t, configPathForTest(t), &bytes.Buffer{}, "config", "path")
	require.NoError(t, err)
	assert.Equal(t, gin.ReleaseMode, gin.Mode())

	_, err = executeRoot(t, configPathForTest(t), &bytes.Buffer{}, "--verbose", "config", "path")
	require.NoError(t, err)
	assert.Equal(t, gin.DebugMode, gin.Mode())
}

func TestRootCIDisablesBrowser(t *testing.T) {
	clearEnv(t)
	t.Setenv(envCI, "true")

	rt, err := executeRoot(t, configPathForTest(t), &bytes.Buffer{}, "config", "path")
	require.NoError(t, err)
	assert.False(t, rt.Interactive())
}

func TestRootLoadsDefaultsWithoutConfigFile(t *testing.T) {
	clearEnv(t)
	rt, err := executeRoot(t, configPathForTest(t), &bytes.Buffer{}, "config", "view")
	require.NoError(t, err)
	require.NotNil(t, rt.cfg)
	assert.Equal(t, config.DefaultConfig(), *rt.cfg)
	assert.True(t, rt.Interactive())
}

func TestRootRejectsInvalidConfig(t *testing.T) {
	clearEnv(t)
	path := configPathForTest(t)
	require.NoError(t, os.WriteFile(path, []byte("version: v1\nsettings:\n  api-url: ftp://example.com\n"), 0o600))

	_, err := executeRoot(t, path, &bytes.Buffer{}, "config", "view")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "settings.api-url")
}

func TestRuntimeStateInteractive(t *testing.T) {
	off := false
	assert.True(t, (&runtimeState{}).Interactive())
	assert.False(t, (&runtimeState{nonInteractive: true}).Interactive())
	assert.False(t, (&runtimeState{cfg: &config.Config{Settings: config.Settings{OpenBrowser: &off}}}).Interactive())
}

func TestGetRuntimeMissing(t *testing.T) {
	root := NewRootCommand(Config{})
	root.SetContext(context.Background())
	_, err := getRuntime(root)
	require.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	clearEnv(t)
	origVersion, origCommit, origDate := version.Version, version.GitCommit, version.BuildDate
	defer func() {
		version.Version, version.GitCommit, version.BuildDate = origVersion, origCommit, origDate
	}()
	version.Version = "v1.2.3"
	version.GitCommit = "abc123"
	version.BuildDate = "2026-01-17T15:00:00Z"

	t.Run("text", func(t *testing.T) {
		buf := &bytes.Buffer{}
		_, err := executeRoot(t, configPathForTest(t), buf, "version")
		require.NoError(t, err)
		assert.Equal(t, "github-dev-app v1.2.3 (commit: abc123, built: 2026-01-17T15:00:00Z)\n", buf.String())
	})

	t.Run("json", func(t *testing.T) {
		buf := &bytes.Buffer{}
		_, err := executeRoot(t, configPathForTest(t), buf, "version", "-o", "json")
		require.NoError(t, err)
		var info version.BuildInfo
		require.NoError(t, json.Unmarshal(buf.Bytes(), &info))
		assert.Equal(t, "v1.2.3", info.Version)
	})

	t.Run("yaml", func(t *testing.T) {
		buf := &bytes.Buffer{}
		_, err := executeRoot(t, configPathForTest(t), buf, "version", "-o", "yaml")
		require.NoError(t, err)
		var info version.BuildInfo
		require.NoError(t, yaml.Unmarshal(buf.Bytes(), &info))
		assert.Equal(t, "abc123", info.GitCommit)
	})

	t.Run("unknown format", func(t *testing.T) {
		_, err := executeRoot(t, configPathForTest(t), &bytes.Buffer{}, "version", "-o", "table")
		require.Error(t, err)
	})
}

func TestCompletionCommand(t *testing.T) {
	clearEnv(t)
	for _, shell := range []string{"bash", "zsh", "fish", "powershell"} {
		t.Run(shell, func(t *testing.T) {
			buf := &bytes.Buffer{}
			_, err := executeRoot(t, configPathForTest(t), buf, "completion", shell)
			require.NoError(t, err)
			assert.Contains(t, buf.String(), "github-dev-app")
		})
	}

	_, err := executeRoot(t, configPathForTest(t), &bytes.Buffer{}, "completion", "tcsh")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported shell")
}
