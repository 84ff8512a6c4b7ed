package bench

import (
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/weiihann/ycsbkv/report"
)

const (
	minLatencyNs = 1
	maxLatencyNs = int64(time.Hour)
	sigFigs      = 3
)

// latencyRecorder keeps one HDR histogram per call type, in first-seen
// order so reports are stable.
type latencyRecorder struct {
	hists map[string]*hdrhistogram.Histogram
	order []string
}

func newLatencyRecorder() *latencyRecorder {
	return &latencyRecorder{hists: make(map[string]*hdrhistogram.Histogram)}
}

func (r *latencyRecorder) record(op string, d time.Duration) {
	h, ok := r.hists[op]
	if !ok {
		h = hdrhistogram.New(minLatencyNs, maxLatencyNs, sigFigs)
		r.hists[op] = h
		r.order = append(r.order, op)
	}

	v := d.Nanoseconds()
	switch {
	case v < minLatencyNs:
		v = minLatencyNs
	case v > maxLatencyNs:
		v = maxLatencyNs
	}

	// In range by construction.
	_ = h.RecordValue(v)
}

func (r *latencyRecorder) stats() []report.LatencyStats {
	if r == nil || len(r.order) == 0 {
		return nil
	}

	out := make([]report.LatencyStats, 0, len(r.order))
	for _, op := range r.order {
		h := r.hists[op]
		out = append(out, report.LatencyStats{
			Op:     op,
			Count:  h.TotalCount(),
			MeanNs: h.Mean(),
			P50Ns:  h.ValueAtQuantile(50),
			P95Ns:  h.ValueAtQuantile(95),
			P99Ns:  h.ValueAtQuantile(99),
			MaxNs:  h.Max(),
		})
	}

	return out
}
