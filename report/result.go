package report

// Phase names as they appear in summaries.
const (
	PhaseLoad = "load"
	PhaseRun  = "run"
)

// LatencyStats summarises the per-call latency of one operation kind.
type LatencyStats struct {
	Op     string  `json:"op"`
	Count  int64   `json:"count"`
	MeanNs float64 `json:"mean_ns"`
	P50Ns  int64   `json:"p50_ns"`
	P95Ns  int64   `json:"p95_ns"`
	P99Ns  int64   `json:"p99_ns"`
	MaxNs  int64   `json:"max_ns"`
}

// Summary is the measurement of one phase against one backend. It is
// produced once and never modified.
type Summary struct {
	Backend    string         `json:"backend"`
	Phase      string         `json:"phase"`
	ElapsedNs  int64          `json:"elapsed_ns"`
	Operations int            `json:"operations"`
	Syncs      int            `json:"syncs"`
	Latency    []LatencyStats `json:"latency,omitempty"`
}

// Throughput returns operations per second over the measured interval.
func (s Summary) Throughput() float64 {
	return float64(s.Operations) / (float64(s.ElapsedNs) / 1e9)
}

// Result holds both phase summaries for one backend, plus the on-disk
// footprint measured after the engine was closed.
type Result struct {
	RunID       string  `json:"run_id,omitempty"`
	Backend     string  `json:"backend"`
	Workload    string  `json:"workload,omitempty"`
	Load        Summary `json:"load"`
	Run         Summary `json:"run"`
	DBSizeBytes uint64  `json:"db_size_bytes"`
}
