package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandRegistersRunOnceFlag(t *testing.T) {
	t.Parallel()
	c := RootCommand()

	flag := c.Flags().Lookup("run-once")
	require.NotNil(t, flag)
	assert.Equal(t, "false", flag.DefValue)

	assert.NotNil(t, c.PersistentFlags().Lookup("config"))
	assert.NotNil(t, c.PersistentFlags().Lookup("dynamic-config"))
}
