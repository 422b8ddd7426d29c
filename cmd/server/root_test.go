package main

import (
	"bytes"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandTree(t *testing.T) {
	root := NewRootCmd()

	serve, _, err := root.Find([]string{"serve"})
	require.NoError(t, err)
	assert.Equal(t, "serve", serve.Name())
	assert.NotNil(t, serve.Flags().Lookup("http-port"))
	assert.NotNil(t, serve.Flags().Lookup("migrate"))

	for _, sub := range []string{"up", "down", "version"} {
		cmd, _, err := root.Find([]string{"migrate", sub})
		require.NoError(t, err)
		assert.Equal(t, sub, cmd.Name())
	}

	for _, name := range []string{"config", "store", "app-env", "database-url", "log-level", "log-format"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(name), name)
	}
}

func TestMigrateRequiresDatabaseURL(t *testing.T) {
	for _, key := range []string{
		"DATABASE_URL", "DATABASE_PUBLIC_URL", "POSTGRES_URL", "PGURL",
		"PGHOST", "POSTGRES_HOST", "PGUSER", "POSTGRES_USER", "APP_ENV", "STORE",
	} {
		t.Setenv(key, "")
	}
	configFile = ""

	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"migrate", "version", "--store", "memory", "--log-level", "error"})

	err := root.Execute()
	require.Error(t, err)
	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok)
	assert.Equal(t, "CONFIG_INVALID", oopsErr.Code())
}
