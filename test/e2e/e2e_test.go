//go:build e2e

// Package e2e contains end-to-end tests for qhist and qhistd.
package e2e

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"qhist/test/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	qhistBinary  string
	qhistdBinary string
)

// TestMain builds the binaries before running tests.
func TestMain(m *testing.M) {
	tmpDir, err := os.MkdirTemp("", "qhist-e2e-*")
	if err != nil {
		panic(err)
	}

	projectRoot := findProjectRoot()
	if projectRoot == "" {
		panic("could not find project root")
	}

	qhistBinary = filepath.Join(tmpDir, "qhist")
	qhistdBinary = filepath.Join(tmpDir, "qhistd")
	for bin, pkg := range map[string]string{qhistBinary: "./cmd/qhist", qhistdBinary: "./cmd/qhistd"} {
		cmd := exec.Command("go", "build", "-o", bin, pkg)
		cmd.Dir = projectRoot
		if output, err := cmd.CombinedOutput(); err != nil {
			panic("failed to build " + pkg + ": " + string(output))
		}
	}

	code := m.Run()
	_ = os.RemoveAll(tmpDir)
	os.Exit(code)
}

func findProjectRoot() string {
	dir, _ := os.Getwd()
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func TestVersion(t *testing.T) {
	ctx := testutil.TestContext(t)

	out, err := testutil.NewRunner(t, qhistdBinary, "").Run(ctx, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, "qhistd")

	cfg := testutil.WriteConfig(t, t.TempDir(), nil)
	out, err = testutil.NewRunner(t, qhistBinary, cfg).Run(ctx, "version")
	require.NoError(t, err)
	assert.Contains(t, out, `"version"`)
}

func TestSaveFindPurge(t *testing.T) {
	ctx := testutil.TestContext(t)
	dir := t.TempDir()
	run := testutil.NewRunner(t, qhistBinary, testutil.WriteConfig(t, dir, nil))

	old := time.Now().Add(-40 * 24 * time.Hour).UTC().Format(time.RFC3339)
	docs := []string{
		`{"userId":"u1","userEmail":"u1@example.com","connectionId":"c1","connectionName":"prod","queryText":"SELECT 1","startTime":"2024-06-01T10:00:00Z","rowCount":"3"}`,
		`{"userId":"u2","userEmail":"u2@example.com","connectionId":"c1","connectionName":"prod","queryText":"SELECT 2","startTime":"2024-06-02T10:00:00Z"}`,
		`{"userId":"u1","userEmail":"u1@example.com","connectionId":"c2","connectionName":"dev","queryText":"SELECT 3","createdDate":"` + old + `"}`,
	}
	var ids []string
	for _, doc := range docs {
		out, err := run.RunWithInput(ctx, strings.NewReader(doc), "save", "-o", "quiet")
		require.NoError(t, err)
		ids = append(ids, strings.TrimSpace(out))
	}

	out, err := run.Run(ctx, "get", ids[0])
	require.NoError(t, err)
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	assert.Equal(t, float64(3), rec["rowCount"])

	out, err = run.Run(ctx, "list", "-o", "quiet")
	require.NoError(t, err)
	assert.Equal(t, []string{ids[1], ids[0], ids[2]}, strings.Fields(out))

	out, err = run.Run(ctx, "list", "-o", "quiet", "--where", "userId=u1")
	require.NoError(t, err)
	assert.Equal(t, []string{ids[0], ids[2]}, strings.Fields(out))

	out, err = run.Run(ctx, "purge", "--dry-run", "-o", "quiet")
	require.NoError(t, err)
	assert.Equal(t, "1", strings.TrimSpace(out))

	out, err = run.Run(ctx, "purge", "-o", "quiet")
	require.NoError(t, err)
	assert.Equal(t, "1", strings.TrimSpace(out))

	out, err = run.Run(ctx, "count", "-o", "quiet")
	require.NoError(t, err)
	assert.Equal(t, "2", strings.TrimSpace(out))

	_, err = run.RunWithInput(ctx, strings.NewReader(`{"userId":"u1"}`), "save")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "VALIDATION")

	_, err = run.Run(ctx, "get", "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NOT_FOUND")
}

func TestMigrateStatus(t *testing.T) {
	ctx := testutil.TestContext(t)
	run := testutil.NewRunner(t, qhistBinary, testutil.WriteConfig(t, t.TempDir(), nil))

	_, err := run.Run(ctx, "migrate", "up")
	require.NoError(t, err)

	out, err := run.Run(ctx, "migrate", "status", "-o", "quiet")
	require.NoError(t, err)
	assert.Equal(t, "2", strings.TrimSpace(out))
}

func TestDaemonLifecycle(t *testing.T) {
	testutil.SkipIfShort(t)
	ctx := testutil.TestContext(t)

	dir := t.TempDir()
	addr := testutil.FreeAddr(t)
	cfg := testutil.WriteConfig(t, dir, map[string]map[string]any{
		"metrics":       {"enabled": true, "listen": addr, "path": "/metrics"},
		"query_history": {"sweep_schedule": "@every 1s"},
	})

	var logs bytes.Buffer
	cmd := exec.CommandContext(ctx, qhistdBinary, "--config", cfg)
	cmd.Stdout = &logs
	cmd.Stderr = &logs
	require.NoError(t, cmd.Start())
	t.Cleanup(func() { _ = cmd.Process.Kill() })

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 30*time.Second, 100*time.Millisecond, "daemon logs:\n%s", &logs)

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return strings.Contains(string(body), `qhist_sweeps_total{result="ok"}`)
	}, 10*time.Second, 200*time.Millisecond)

	require.NoError(t, cmd.Process.Signal(syscall.SIGTERM))
	require.NoError(t, cmd.Wait())
	assert.Contains(t, logs.String(), "qhistd stopped")
}
