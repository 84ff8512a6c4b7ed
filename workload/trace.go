package workload

import (
	"encoding/json"
	"io"

	"github.com/pkg/errors"
)

// Phase names used in traces and reports.
const (
	PhaseLoad = "load"
	PhaseRun  = "run"
)

// TraceRecord is one JSONL line written by Trace.
type TraceRecord struct {
	Phase      string            `json:"phase"`
	Op         Kind              `json:"op"`
	Table      string            `json:"table"`
	Key        string            `json:"key"`
	Fields     map[string]string `json:"fields,omitempty"`
	Read       []string          `json:"read,omitempty"`
	ScanLength int               `json:"scan_length,omitempty"`
}

// Summary contains statistics about a traced workload.
type Summary struct {
	TotalOperations  int
	Loaded           int
	Reads            int
	Updates          int
	Inserts          int
	Scans            int
	ReadModifyWrites int
}

func (s *Summary) count(k Kind) {
	switch k {
	case KindRead:
		s.Reads++
	case KindUpdate:
		s.Updates++
	case KindInsert:
		s.Inserts++
	case KindScan:
		s.Scans++
	case KindReadModifyWrite:
		s.ReadModifyWrites++
	}
}

func newTraceRecord(phase string, op Operation) TraceRecord {
	rec := TraceRecord{
		Phase:      phase,
		Op:         op.Kind,
		Table:      op.Table,
		Key:        op.Key,
		ScanLength: op.ScanLength,
	}

	for _, f := range op.Fields {
		if f.Value == nil {
			rec.Read = append(rec.Read, f.Name)
			continue
		}
		if rec.Fields == nil {
			rec.Fields = make(map[string]string, len(op.Fields))
		}
		rec.Fields[f.Name] = string(f.Value)
	}

	return rec
}

// Trace writes the full load and run sequences of g to w as JSONL and
// returns a Summary. It consumes the generator.
func Trace(w io.Writer, g *Generator) (Summary, error) {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	var summary Summary

	for i := 0; i < g.RecordCount(); i++ {
		if err := enc.Encode(newTraceRecord(PhaseLoad, g.NextInsert())); err != nil {
			return summary, errors.Wrap(err, "encode load insert")
		}

		summary.Loaded++
		summary.TotalOperations++
	}

	for i := 0; i < g.OperationCount(); i++ {
		op := g.NextOperation()
		if err := enc.Encode(newTraceRecord(PhaseRun, op)); err != nil {
			return summary, errors.Wrapf(err, "encode %s", op.Kind)
		}

		summary.count(op.Kind)
		summary.TotalOperations++
	}

	return summary, nil
}
