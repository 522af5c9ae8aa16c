package commands

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type (
	AppConfig = appConfig
)

// Config returns the configuration of the app.
func (a *App) Config() AppConfig {
	return a.config
}

// NewForTests creates a new App instance for testing purposes, printing to out.
// The env file is pointed to a missing file so that the working directory does not leak into tests.
func NewForTests(t *testing.T, out io.Writer, args ...string) *App {
	t.Helper()

	a, err := New()
	require.NoError(t, err, "Setup: failed to create app")

	a.cmd.SetOut(out)
	a.cmd.SetErr(io.Discard)
	a.cmd.SetArgs(append([]string{"--env-file="}, args...))
	return a
}

// GenerateTestConfig generates a temporary config file for testing, from the given keys.
func GenerateTestConfig(t *testing.T, conf map[string]any) string {
	t.Helper()

	d, err := yaml.Marshal(conf)
	require.NoError(t, err, "Setup: failed to marshal config for tests")

	confPath := filepath.Join(t.TempDir(), "testconfig.yaml")
	require.NoError(t, os.WriteFile(confPath, d, 0600), "Setup: failed to write config for tests")

	return confPath
}

// SetArgs set some arguments on root command for tests.
func (a *App) SetArgs(args ...string) {
	a.cmd.SetArgs(args)
}

// SetSilenceUsage set the SilenceUsage flag on root command for tests.
func (a *App) SetSilenceUsage(silence bool) {
	a.cmd.SilenceUsage = silence
}
