package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/research-brief/internal/config"
)

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "brief", "briefs", "migrate"} {
		assert.True(t, names[want], "missing command %s", want)
	}
}

func TestInitStore_SQLite(t *testing.T) {
	orig := cfg
	defer func() { cfg = orig }()
	cfg = &config.Config{Store: config.StoreConfig{
		Driver:      "sqlite",
		DatabaseURL: filepath.Join(t.TempDir(), "test.db"),
	}}

	st, err := initStore(context.Background())
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	assert.NoError(t, st.Close())
}

func TestInitStore_UnknownDriver(t *testing.T) {
	orig := cfg
	defer func() { cfg = orig }()
	cfg = &config.Config{Store: config.StoreConfig{Driver: "oracle"}}

	_, err := initStore(context.Background())
	assert.Error(t, err)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "exactly-10", truncate("exactly-10", 10))
	assert.Equal(t, "a long ...", truncate("a long topic string", 10))
}
