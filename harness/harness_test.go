package harness

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestParseResult(t *testing.T) {
	input := `{
		"run_id": "7f9c",
		"backend": "leveldb",
		"workload": "workloada.spec",
		"load": {"backend": "leveldb", "phase": "load", "elapsed_ns": 1234, "operations": 100, "syncs": 1},
		"run": {"backend": "leveldb", "phase": "run", "elapsed_ns": 5678, "operations": 500, "syncs": 3},
		"db_size_bytes": 104857600
	}`

	result, err := parseResult("leveldb", bytes.NewReader([]byte(input)))
	if err != nil {
		t.Fatalf("parseResult failed: %v", err)
	}

	if result.Backend != "leveldb" {
		t.Errorf("backend = %q, want leveldb", result.Backend)
	}
	if result.RunID != "7f9c" {
		t.Errorf("run_id = %q, want 7f9c", result.RunID)
	}
	if result.Load.Operations != 100 {
		t.Errorf("load operations = %d, want 100", result.Load.Operations)
	}
	if result.Load.ElapsedNs != 1234 {
		t.Errorf("load elapsed_ns = %d, want 1234", result.Load.ElapsedNs)
	}
	if result.Run.Operations != 500 {
		t.Errorf("run operations = %d, want 500", result.Run.Operations)
	}
	if result.Run.Syncs != 3 {
		t.Errorf("run syncs = %d, want 3", result.Run.Syncs)
	}
	if result.DBSizeBytes != 104857600 {
		t.Errorf("db_size_bytes = %d, want 104857600", result.DBSizeBytes)
	}
}

func TestParseResultFillsBackend(t *testing.T) {
	input := `{"load": {"operations": 3}}`

	result, err := parseResult("logkv", bytes.NewReader([]byte(input)))
	if err != nil {
		t.Fatalf("parseResult failed: %v", err)
	}

	if result.Backend != "logkv" {
		t.Errorf("backend = %q, want logkv", result.Backend)
	}
}

func TestParseResultInvalidJSON(t *testing.T) {
	input := `not json at all`
	_, err := parseResult("test", strings.NewReader(input))
	if err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestArgs(t *testing.T) {
	r := NewRunner("pebble", "/usr/bin/ycsbkv", []string{"--fsync"}, nil, discardLogger())

	got := strings.Join(r.Args("/data/pebble", "w.spec"), " ")
	want := "exec --backend pebble --db /data/pebble --workload w.spec --fsync"
	if got != want {
		t.Errorf("Args = %q, want %q", got, want)
	}
}

func TestDirSize(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a"), make([]byte, 100), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "sub", "b"), make([]byte, 28), 0o644); err != nil {
		t.Fatal(err)
	}

	size, err := DirSize(dir)
	if err != nil {
		t.Fatalf("DirSize failed: %v", err)
	}
	if size != 128 {
		t.Errorf("size = %d, want 128", size)
	}
}

func TestRunChild(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script child")
	}

	dir := t.TempDir()
	bin := filepath.Join(dir, "fake-ycsbkv")
	script := "#!/bin/sh\n" +
		"echo leftover > \"$5/data\"\n" +
		"echo '{\"load\": {\"operations\": 7}, \"run\": {\"operations\": 9}}'\n"
	if err := os.WriteFile(bin, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}

	dbRoot := filepath.Join(dir, "db")
	stale := filepath.Join(dbRoot, "logkv", "stale")
	if err := os.MkdirAll(filepath.Dir(stale), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(stale, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := NewRunner("logkv", bin, nil, nil, discardLogger())
	result, err := r.Run(context.Background(), RunConfig{
		WorkloadPath: "unused.spec",
		DBDir:        dbRoot,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.Backend != "logkv" {
		t.Errorf("backend = %q, want logkv", result.Backend)
	}
	if result.Load.Operations != 7 || result.Run.Operations != 9 {
		t.Errorf("operations = %d/%d, want 7/9", result.Load.Operations, result.Run.Operations)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Errorf("stale file survived: %v", err)
	}
	// "leftover\n"
	if result.DBSizeBytes != 9 {
		t.Errorf("db size = %d, want 9", result.DBSizeBytes)
	}
}

func TestRunChildFailure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script child")
	}

	dir := t.TempDir()
	bin := filepath.Join(dir, "fake-ycsbkv")
	if err := os.WriteFile(bin, []byte("#!/bin/sh\nexit 1\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	r := NewRunner("logkv", bin, nil, nil, discardLogger())
	_, err := r.Run(context.Background(), RunConfig{DBDir: filepath.Join(dir, "db")})
	if err == nil {
		t.Fatal("expected error from failing child")
	}
	if !strings.Contains(err.Error(), "harness logkv failed") {
		t.Errorf("unexpected error: %v", err)
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
