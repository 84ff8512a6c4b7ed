// Package report formats benchmark summaries: the per-phase TSV tables
// written as each phase finishes, and the cross-backend comparison.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/pkg/errors"
)

// PhaseHeader returns the first column heading of a phase table.
func PhaseHeader(phase string) string {
	if phase == PhaseLoad {
		return "db(load)"
	}
	return "db"
}

// WritePhase writes the two-line tab-separated table for one phase:
// a header row and a data row of backend, duration(ns), operations and
// ops/s.
func WritePhase(w io.Writer, s Summary) error {
	_, err := fmt.Fprintf(w, "%s\tduration(ns)\toperations\tops/s\n%s\t%d\t%d\t%.6g\n",
		PhaseHeader(s.Phase),
		s.Backend, s.ElapsedNs, s.Operations, s.Throughput(),
	)
	return errors.Wrap(err, "write phase table")
}

// WriteLatency writes a tab-separated latency table for s. It writes
// nothing when no latencies were recorded.
func WriteLatency(w io.Writer, s Summary) error {
	if len(s.Latency) == 0 {
		return nil
	}

	var b strings.Builder

	fmt.Fprintf(&b, "%s\top\tcount\tmean(ns)\tp50(ns)\tp95(ns)\tp99(ns)\tmax(ns)\n",
		PhaseHeader(s.Phase))

	for _, l := range s.Latency {
		fmt.Fprintf(&b, "%s\t%s\t%d\t%.0f\t%d\t%d\t%d\t%d\n",
			s.Backend, l.Op, l.Count, l.MeanNs, l.P50Ns, l.P95Ns, l.P99Ns, l.MaxNs)
	}

	_, err := io.WriteString(w, b.String())
	return errors.Wrap(err, "write latency table")
}

// Generate writes a markdown comparison table for the given results.
func Generate(w io.Writer, results []Result) error {
	if len(results) == 0 {
		return errors.New("no results to report")
	}

	fastest := findFastest(results)

	// Header.
	fmt.Fprintln(w, "## Benchmark Results")
	fmt.Fprintln(w)

	if id := results[0].RunID; id != "" {
		fmt.Fprintf(w, "Run `%s`", id)
		if wl := results[0].Workload; wl != "" {
			fmt.Fprintf(w, ", workload `%s`", wl)
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w)
	}

	// Table header.
	fmt.Fprintln(w, "| Backend | Load | Load ops/s | Run | Run ops/s "+
		"| Syncs | DB Size | Slowdown |")
	fmt.Fprintln(w, "|---------|------|------------|-----|-----------"+
		"|-------|---------|----------|")

	for _, r := range results {
		slowdown := 1.0
		if tp := r.Run.Throughput(); fastest > 0 && tp > 0 {
			slowdown = fastest / tp
		}

		fmt.Fprintf(w, "| %s | %s | %s | %s | %s | %d | %s | %.2fx |\n",
			r.Backend,
			formatNs(r.Load.ElapsedNs),
			formatRate(r.Load.Throughput()),
			formatNs(r.Run.ElapsedNs),
			formatRate(r.Run.Throughput()),
			r.Run.Syncs,
			formatBytes(r.DBSizeBytes),
			slowdown,
		)
	}

	fmt.Fprintln(w)

	// Operation counts.
	fmt.Fprintln(w, "| Backend | Records | Operations |")
	fmt.Fprintln(w, "|---------|---------|------------|")

	for _, r := range results {
		fmt.Fprintf(w, "| %s | %d | %d |\n",
			r.Backend,
			r.Load.Operations,
			r.Run.Operations,
		)
	}

	return nil
}

// GenerateJSON writes results as JSON to w.
func GenerateJSON(w io.Writer, results []Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(results)
}

// findFastest returns the best finite run-phase throughput, or 0.
func findFastest(results []Result) float64 {
	var fastest float64
	for _, r := range results {
		tp := r.Run.Throughput()
		if r.Run.ElapsedNs > 0 && tp > fastest {
			fastest = tp
		}
	}

	return fastest
}

func formatNs(ns int64) string {
	ms := ns / 1e6
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}

	return fmt.Sprintf("%.2fs", float64(ms)/1000)
}

func formatRate(opsPerSec float64) string {
	switch {
	case math.IsNaN(opsPerSec) || math.IsInf(opsPerSec, 0):
		return "-"
	case opsPerSec >= 1e6:
		return fmt.Sprintf("%.2fM", opsPerSec/1e6)
	case opsPerSec >= 1e3:
		return fmt.Sprintf("%.1fK", opsPerSec/1e3)
	default:
		return fmt.Sprintf("%.0f", opsPerSec)
	}
}

func formatBytes(b uint64) string {
	if b == 0 {
		return "-"
	}

	units := []string{"B", "KB", "MB", "GB", "TB"}
	size := float64(b)
	unit := 0

	for size >= 1024 && unit < len(units)-1 {
		size /= 1024
		unit++
	}

	formatted := fmt.Sprintf("%.1f", size)
	formatted = strings.TrimRight(formatted, "0")
	formatted = strings.TrimRight(formatted, ".")

	return formatted + " " + units[unit]
}
