package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiihann/ycsbkv/report"
)

const testWorkload = `recordcount=50
operationcount=120
syncintervalms=1
fieldcount=1
fieldlength=16
readallfields=true
writeallfields=true
readproportion=0.5
updateproportion=0.4
insertproportion=0.1
requestdistribution=zipfian
`

func writeWorkload(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.spec")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	return path
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPrepareDataDir(t *testing.T) {
	root := t.TempDir()

	missing := filepath.Join(root, "missing")
	require.NoError(t, prepareDataDir(missing))
	assert.DirExists(t, missing)

	require.NoError(t, prepareDataDir(missing), "empty dir is accepted")

	require.NoError(t, os.WriteFile(filepath.Join(missing, "x"), nil, 0o644))
	err := prepareDataDir(missing)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "appears to be non-empty")
}

func TestCheckBackends(t *testing.T) {
	assert.NoError(t, checkBackends([]string{"logkv", "leveldb"}))
	assert.Error(t, checkBackends(nil))
	assert.ErrorContains(t, checkBackends([]string{"nope"}), "unknown backend")
	assert.ErrorContains(t, checkBackends([]string{"logkv", "logkv"}), "listed twice")
}

func TestCheckFormat(t *testing.T) {
	for _, f := range []string{"tsv", "markdown", "json"} {
		assert.NoError(t, checkFormat(f))
	}
	assert.Error(t, checkFormat("csv"))
}

func TestEngineFlagsArgs(t *testing.T) {
	f := engineFlags{fsync: true, compression: "zstd", latency: true}
	assert.Equal(t,
		[]string{"--fsync", "--compression", "zstd", "--latency", "--verbose"},
		f.args(true))
	assert.Empty(t, engineFlags{}.args(false))
}

func TestRunBenchmarkTSV(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), "data")

	var out bytes.Buffer
	err := runBenchmark(context.Background(), discardLogger(), &out, runConfig{
		workloadPath: writeWorkload(t, testWorkload),
		dataDir:      dataDir,
		backends:     []string{"logkv", "leveldb"},
		format:       "tsv",
	})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	require.Len(t, lines, 8)

	for i, want := range []struct{ header, backend, ops string }{
		{"db(load)", "logkv", "50"},
		{"db", "logkv", "120"},
		{"db(load)", "leveldb", "50"},
		{"db", "leveldb", "120"},
	} {
		assert.Equal(t, want.header+"\tduration(ns)\toperations\tops/s", lines[2*i])

		cols := strings.Split(lines[2*i+1], "\t")
		require.Len(t, cols, 4)
		assert.Equal(t, want.backend, cols[0])
		assert.Equal(t, want.ops, cols[2])
	}

	assert.DirExists(t, filepath.Join(dataDir, "logkv"))
	assert.DirExists(t, filepath.Join(dataDir, "leveldb"))
}

func TestRunBenchmarkJSON(t *testing.T) {
	var out bytes.Buffer
	err := runBenchmark(context.Background(), discardLogger(), &out, runConfig{
		workloadPath: writeWorkload(t, testWorkload),
		dataDir:      t.TempDir(),
		backends:     []string{"logkv"},
		format:       "json",
		engine:       engineFlags{compression: "snappy", latency: true},
	})
	require.NoError(t, err)

	var results []report.Result
	require.NoError(t, json.Unmarshal(out.Bytes(), &results))
	require.Len(t, results, 1)

	r := results[0]
	assert.Equal(t, "logkv", r.Backend)
	assert.Equal(t, "test.spec", r.Workload)
	assert.NotEmpty(t, r.RunID)
	assert.Equal(t, 50, r.Load.Operations)
	assert.Equal(t, 1, r.Load.Syncs)
	assert.Equal(t, 120, r.Run.Operations)
	assert.NotEmpty(t, r.Run.Latency)
	assert.Positive(t, r.DBSizeBytes)
}

func TestRunBenchmarkRejectsNonEmptyDir(t *testing.T) {
	dataDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "junk"), nil, 0o644))

	var out bytes.Buffer
	err := runBenchmark(context.Background(), discardLogger(), &out, runConfig{
		workloadPath: writeWorkload(t, testWorkload),
		dataDir:      dataDir,
		backends:     []string{"logkv"},
		format:       "tsv",
	})
	require.Error(t, err)
	assert.Empty(t, out.String())
}

func TestRunBenchmarkMissingSyncInterval(t *testing.T) {
	body := strings.Replace(testWorkload, "syncintervalms=1\n", "", 1)

	var out bytes.Buffer
	err := runBenchmark(context.Background(), discardLogger(), &out, runConfig{
		workloadPath: writeWorkload(t, body),
		dataDir:      t.TempDir(),
		backends:     []string{"logkv"},
		format:       "tsv",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "syncintervalms")
	assert.Empty(t, out.String())
}

func TestRunBenchmarkScanIsFatal(t *testing.T) {
	body := strings.Replace(testWorkload, "insertproportion=0.1\n", "scanproportion=0.1\n", 1)

	var out bytes.Buffer
	err := runBenchmark(context.Background(), discardLogger(), &out, runConfig{
		workloadPath: writeWorkload(t, body),
		dataDir:      t.TempDir(),
		backends:     []string{"logkv"},
		format:       "tsv",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "operation unimplemented")

	// The load table is out; the run table never is.
	assert.Contains(t, out.String(), "db(load)\t")
	assert.NotContains(t, out.String(), "\ndb\t")
}

func TestBackendsCmd(t *testing.T) {
	root := newRootCmd(discardLogger(), new(slog.LevelVar))

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"backends"})
	require.NoError(t, root.Execute())

	names := strings.Fields(out.String())
	assert.Contains(t, names, "logkv")
	assert.Contains(t, names, "leveldb")
}

func TestTraceCmd(t *testing.T) {
	root := newRootCmd(discardLogger(), new(slog.LevelVar))

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"trace", writeWorkload(t, testWorkload)})
	require.NoError(t, root.Execute())

	lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	assert.Len(t, lines, 170)
}

func TestWriteTraceToFile(t *testing.T) {
	wl := writeWorkload(t, testWorkload)
	root := newRootCmd(discardLogger(), new(slog.LevelVar))

	path := filepath.Join(t.TempDir(), "trace.jsonl")

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"trace", "-o", path, wl})
	require.NoError(t, root.Execute())
	assert.Empty(t, out.String())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSuffix(string(data), "\n"), "\n"), 170)
}

func TestWriteTraceCreateFailure(t *testing.T) {
	root := newRootCmd(discardLogger(), new(slog.LevelVar))

	root.SetOut(io.Discard)
	root.SetArgs([]string{"trace", "-o", filepath.Join(t.TempDir(), "missing", "trace.jsonl"),
		writeWorkload(t, testWorkload)})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create trace file")
}
