// Package testutils provides helper functions for testing
package testutils

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// FlagTestCase describes the expected shape of a cobra flag.
type FlagTestCase struct {
	Name       string
	Short      string
	Default    string
	Type       string
	Persistent bool
	Dirname    bool
	Filename   bool
}

// FlagTestHelper checks that cmd carries the flag described by tc.
func FlagTestHelper(t *testing.T, cmd *cobra.Command, tc FlagTestCase) {
	t.Helper()

	var flag *pflag.Flag
	if tc.Persistent {
		flag = cmd.PersistentFlags().Lookup(tc.Name)
	} else {
		flag = cmd.LocalNonPersistentFlags().Lookup(tc.Name)
	}
	require.NotNil(t, flag, "Flag %q should be installed", tc.Name)

	assert.Equal(t, tc.Short, flag.Shorthand, "Shorthand of %q should match", tc.Name)
	assert.Equal(t, tc.Default, flag.DefValue, "Default of %q should match", tc.Name)
	if tc.Type != "" {
		assert.Equal(t, tc.Type, flag.Value.Type(), "Type of %q should match", tc.Name)
	}

	if tc.Dirname {
		assert.Equal(t, []string{}, flag.Annotations[cobra.BashCompSubdirsInDir], "%q should complete directories", tc.Name)
	} else {
		assert.Nil(t, flag.Annotations[cobra.BashCompSubdirsInDir], "%q should not complete directories", tc.Name)
	}
	if tc.Filename {
		assert.Contains(t, flag.Annotations, cobra.BashCompFilenameExt, "%q should complete file names", tc.Name)
	} else {
		assert.NotContains(t, flag.Annotations, cobra.BashCompFilenameExt, "%q should not complete file names", tc.Name)
	}
}
