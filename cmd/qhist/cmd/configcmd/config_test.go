package configcmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"qhist/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlattenMasksDSN(t *testing.T) {
	c := config.DefaultConfig()
	c.Database.Postgres.DSN = "postgres://app:secret@db/qhist"

	s := flatten(c)
	assert.Equal(t, redacted, s["database.postgres.dsn"])
	assert.Equal(t, "sqlite", s["database.backend"])
	assert.Contains(t, s.keys(), "query_history.retention_time_in_days")
}

func TestFlattenLeavesEmptyDSN(t *testing.T) {
	s := flatten(config.DefaultConfig())
	assert.Equal(t, "", s["database.postgres.dsn"])
}

func TestShowCommand(t *testing.T) {
	c := config.DefaultConfig()
	c.Output.Format = "json"
	cmd := NewCommand(func() *config.Config { return c }, func() string { return "" })

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"show"})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, out.String(), `"query_history.result_max_rows"`)
}

func TestGenerateCommand(t *testing.T) {
	dir := t.TempDir()
	cmd := NewCommand(config.DefaultConfig, func() string { return "" })

	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs([]string{"generate", "--dir", dir, "--format", "toml"})
	require.NoError(t, cmd.Execute())

	path := filepath.Join(dir, "config.toml")
	assert.Equal(t, path+"\n", out.String())
	_, err := os.Stat(path)
	require.NoError(t, err)

	out.Reset()
	cmd.SetArgs([]string{"generate", "--dir", dir, "--format", "toml"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, errOut.String(), "already exists")
}

func TestPathCommand(t *testing.T) {
	file := filepath.Join(t.TempDir(), "qhist.yaml")
	require.NoError(t, os.WriteFile(file, []byte("data_dir: /tmp/qhist\n"), 0o600))

	cmd := NewCommand(func() *config.Config { return nil }, func() string { return file })

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"path"})
	require.NoError(t, cmd.Execute())

	assert.Equal(t, file+"\n", out.String())
}
