// Package testutil provides shared utilities for e2e tests.
package testutil

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultTimeout is the default timeout for test operations.
var DefaultTimeout = 2 * time.Minute

func init() {
	if t := os.Getenv("TEST_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			DefaultTimeout = d
		}
	}
}

// TestContext returns a context with the default test timeout.
// The context is cancelled when the test completes.
func TestContext(t testing.TB) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
	t.Cleanup(cancel)
	return ctx
}

// SkipIfShort skips the test if running with -short flag.
func SkipIfShort(t testing.TB) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping in short mode")
	}
}

// FreeAddr returns a loopback address with a port that was free when checked.
func FreeAddr(t testing.TB) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to find free port: %v", err)
	}
	addr := l.Addr().String()
	_ = l.Close()
	return addr
}

// WriteConfig writes a config file for a SQLite database under dir. Values
// in overrides are merged over the base settings by section.
func WriteConfig(t testing.TB, dir string, overrides map[string]map[string]any) string {
	t.Helper()

	doc := map[string]map[string]any{
		"log":      {"level": "debug", "format": "text", "output": "stderr"},
		"output":   {"format": "json"},
		"database": {"backend": "sqlite", "sqlite": map[string]any{"path": filepath.Join(dir, "qhist.db")}},
		"query_history": {
			"result_max_rows":        100,
			"retention_time_in_days": 30,
		},
	}
	for section, values := range overrides {
		if doc[section] == nil {
			doc[section] = map[string]any{}
		}
		for k, v := range values {
			doc[section][k] = v
		}
	}
	root := map[string]any{"data_dir": dir}
	for k, v := range doc {
		root[k] = v
	}

	data, err := yaml.Marshal(root)
	if err != nil {
		t.Fatalf("failed to marshal config: %v", err)
	}
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

// Runner runs a built binary with a fixed config file.
type Runner struct {
	t      testing.TB
	binary string
	config string
}

// NewRunner returns a Runner for binary. An empty config omits --config.
func NewRunner(t testing.TB, binary, config string) *Runner {
	return &Runner{t: t, binary: binary, config: config}
}

// Run executes the binary with args and returns stdout. stderr is included
// in the error when the process fails.
func (r *Runner) Run(ctx context.Context, args ...string) (string, error) {
	return r.RunWithInput(ctx, nil, args...)
}

// RunWithInput is Run with stdin attached.
func (r *Runner) RunWithInput(ctx context.Context, stdin io.Reader, args ...string) (string, error) {
	r.t.Helper()
	if r.config != "" {
		args = append([]string{"--config", r.config}, args...)
	}

	cmd := exec.CommandContext(ctx, r.binary, args...)
	cmd.Stdin = stdin
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return stdout.String(), fmt.Errorf("%s %s: %w\n%s", filepath.Base(r.binary), strings.Join(args, " "), err, stderr.String())
	}
	return stdout.String(), nil
}
