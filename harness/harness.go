// Package harness runs one backend benchmark in a child process so each
// engine starts with a fresh heap and no state left by the previous one.
package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"github.com/weiihann/ycsbkv/report"
)

// RunConfig holds parameters for a single harness execution.
type RunConfig struct {
	WorkloadPath string
	DBDir        string
	Timeout      time.Duration
}

// Runner launches the benchmark binary in exec mode for one backend.
type Runner struct {
	Name       string
	BinaryPath string
	ExtraArgs  []string
	Env        []string
	Logger     *slog.Logger
}

// NewRunner creates a Runner for the named backend. binaryPath is the
// ycsbkv executable (usually os.Executable); extraArgs are appended after
// the exec flags. Env is appended to the inherited environment.
func NewRunner(
	name, binaryPath string,
	extraArgs, env []string,
	logger *slog.Logger,
) *Runner {
	return &Runner{
		Name:       name,
		BinaryPath: binaryPath,
		ExtraArgs:  extraArgs,
		Env:        env,
		Logger:     logger.With(slog.String("backend", name)),
	}
}

// Args returns the command line passed to the child.
func (r *Runner) Args(dbDir, workloadPath string) []string {
	args := make([]string, 0, len(r.ExtraArgs)+7)
	args = append(args,
		"exec",
		"--backend", r.Name,
		"--db", dbDir,
		"--workload", workloadPath,
	)
	args = append(args, r.ExtraArgs...)

	return args
}

// Run executes one backend in a child process and returns its parsed
// result. The child's stderr is streamed through so phase tables and
// progress appear as they happen.
func (r *Runner) Run(ctx context.Context, cfg RunConfig) (*report.Result, error) {
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	dbDir := filepath.Join(cfg.DBDir, r.Name)

	if err := os.RemoveAll(dbDir); err != nil {
		return nil, errors.Wrapf(err, "clean db dir %s", dbDir)
	}

	if err := os.MkdirAll(dbDir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create db dir %s", dbDir)
	}

	cmd := exec.CommandContext(ctx, r.BinaryPath, r.Args(dbDir, cfg.WorkloadPath)...)

	if len(r.Env) > 0 {
		cmd.Env = append(os.Environ(), r.Env...)
	}

	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = os.Stderr

	r.Logger.Info("starting harness",
		slog.String("binary", r.BinaryPath),
		slog.String("db_dir", dbDir),
	)

	wallStart := time.Now()

	if err := cmd.Run(); err != nil {
		return nil, errors.Wrapf(err, "harness %s failed", r.Name)
	}

	r.Logger.Info("harness finished",
		slog.Duration("wall_time", time.Since(wallStart)),
	)

	result, err := parseResult(r.Name, &stdout)
	if err != nil {
		return nil, errors.Wrapf(err, "parse %s output: %s", r.Name, stdout.String())
	}

	if result.DBSizeBytes == 0 {
		size, err := DirSize(dbDir)
		if err != nil {
			r.Logger.Warn("failed to measure db size",
				slog.String("error", err.Error()),
			)
		}
		result.DBSizeBytes = size
	}

	return result, nil
}

func parseResult(name string, r io.Reader) (*report.Result, error) {
	var result report.Result
	if err := json.NewDecoder(r).Decode(&result); err != nil {
		return nil, errors.Wrap(err, "decode JSON")
	}

	if result.Backend == "" {
		result.Backend = name
	}

	return &result, nil
}

// DirSize returns the total size of the regular files under path.
func DirSize(path string) (uint64, error) {
	var size uint64

	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += uint64(info.Size())
		}

		return nil
	})

	return size, err
}
