// Package workload generates deterministic YCSB-style operation streams
// for key-value benchmarking. A Generator yields the bulk-load insert
// sequence followed by a mixed read/update/insert/scan/read-modify-write
// sequence, with keys drawn from a configurable request distribution.
package workload

import (
	"fmt"
	mrand "math/rand"
	"strconv"

	"github.com/pkg/errors"
)

// Kind tags a logical operation.
type Kind int

const (
	KindRead Kind = iota
	KindUpdate
	KindInsert
	KindScan
	KindReadModifyWrite
)

var kindNames = [...]string{
	KindRead:            "read",
	KindUpdate:          "update",
	KindInsert:          "insert",
	KindScan:            "scan",
	KindReadModifyWrite: "readmodifywrite",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	if k < 0 || int(k) >= len(kindNames) {
		return nil, errors.Errorf("invalid operation kind %d", int(k))
	}
	return []byte(kindNames[k]), nil
}

// UnmarshalText decodes a kind name.
func (k *Kind) UnmarshalText(b []byte) error {
	for i, name := range kindNames {
		if name == string(b) {
			*k = Kind(i)
			return nil
		}
	}
	return errors.Errorf("unknown operation kind %q", b)
}

// Field is one named column of a record. Value is nil for reads of a
// field subset, which only name the fields they want.
type Field struct {
	Name  string `json:"name"`
	Value []byte `json:"value,omitempty"`
}

// Operation is a single logical operation drawn from the workload.
type Operation struct {
	Kind       Kind    `json:"op"`
	Table      string  `json:"table"`
	Key        string  `json:"key"`
	Fields     []Field `json:"fields,omitempty"`
	ScanLength int     `json:"scan_length,omitempty"`
}

// Generator produces deterministic workloads from a Config. Two
// generators built from the same Config yield identical sequences.
type Generator struct {
	cfg Config
	rng *mrand.Rand

	ops  *discrete
	keys keyChooser

	fieldNames []string

	// loadSeq numbers keys for the load phase; runSeq continues after
	// the loaded range for run-phase inserts and bounds key choice.
	loadSeq int64
	runSeq  int64
}

// NewGenerator creates a Generator from the given Config.
func NewGenerator(cfg Config) *Generator {
	rng := mrand.New(mrand.NewSource(cfg.Seed))

	g := &Generator{
		cfg:     cfg,
		rng:     rng,
		ops:     newDiscrete(rng),
		loadSeq: int64(cfg.InsertStart),
		runSeq:  int64(cfg.InsertStart + cfg.RecordCount),
	}

	g.ops.add(KindRead, cfg.ReadProportion)
	g.ops.add(KindUpdate, cfg.UpdateProportion)
	g.ops.add(KindInsert, cfg.InsertProportion)
	g.ops.add(KindScan, cfg.ScanProportion)
	g.ops.add(KindReadModifyWrite, cfg.ReadModifyWriteProportion)

	start := int64(cfg.InsertStart)
	records := max(int64(cfg.RecordCount), 1)

	switch cfg.RequestDistribution {
	case "zipfian":
		expectedNew := int64(float64(cfg.OperationCount) * cfg.InsertProportion * 2)
		g.keys = newScrambledZipfianChooser(rng, start, records+expectedNew)
	case "latest":
		g.keys = &latestChooser{
			z:     newZipfian(rng, records, zipfianConstant),
			start: start,
		}
	default:
		g.keys = &uniformChooser{rng: rng, start: start}
	}

	g.fieldNames = make([]string, cfg.FieldCount)
	for i := range g.fieldNames {
		g.fieldNames[i] = "field" + strconv.Itoa(i)
	}

	return g
}

// Config returns the configuration the generator was built from.
func (g *Generator) Config() Config { return g.cfg }

// RecordCount is the number of records the load phase inserts.
func (g *Generator) RecordCount() int { return g.cfg.RecordCount }

// OperationCount is the number of operations the run phase issues.
func (g *Generator) OperationCount() int { return g.cfg.OperationCount }

// ReadAllFields reports whether reads request every field.
func (g *Generator) ReadAllFields() bool { return g.cfg.ReadAllFields }

// WriteAllFields reports whether updates write every field.
func (g *Generator) WriteAllFields() bool { return g.cfg.WriteAllFields }

// NextInsert draws the next load-phase insert.
func (g *Generator) NextInsert() Operation {
	keynum := g.loadSeq
	g.loadSeq++

	return Operation{
		Kind:   KindInsert,
		Table:  g.cfg.Table,
		Key:    g.keyName(keynum),
		Fields: g.allValues(),
	}
}

// NextOperation draws the next run-phase operation.
func (g *Generator) NextOperation() Operation {
	switch kind := g.ops.next(); kind {
	case KindInsert:
		keynum := g.runSeq
		g.runSeq++

		return Operation{
			Kind:   KindInsert,
			Table:  g.cfg.Table,
			Key:    g.keyName(keynum),
			Fields: g.allValues(),
		}

	case KindRead:
		return Operation{
			Kind:   KindRead,
			Table:  g.cfg.Table,
			Key:    g.chooseKey(),
			Fields: g.readFields(),
		}

	case KindScan:
		return Operation{
			Kind:       KindScan,
			Table:      g.cfg.Table,
			Key:        g.chooseKey(),
			Fields:     g.readFields(),
			ScanLength: 1 + g.rng.Intn(g.cfg.MaxScanLength),
		}

	default:
		return Operation{
			Kind:   kind,
			Table:  g.cfg.Table,
			Key:    g.chooseKey(),
			Fields: g.writeValues(),
		}
	}
}

func (g *Generator) chooseKey() string {
	return g.keyName(g.keys.next(g.runSeq))
}

func (g *Generator) keyName(keynum int64) string {
	n := uint64(keynum)
	if g.cfg.InsertOrder == "hashed" {
		n = hash64(keynum)
	}

	return fmt.Sprintf("%s%0*d", g.cfg.KeyPrefix, g.cfg.ZeroPadding, n)
}

func (g *Generator) readFields() []Field {
	if g.cfg.ReadAllFields {
		return nil
	}
	return []Field{{Name: g.randomFieldName()}}
}

func (g *Generator) writeValues() []Field {
	if g.cfg.WriteAllFields {
		return g.allValues()
	}
	return []Field{{Name: g.randomFieldName(), Value: g.randomValue()}}
}

func (g *Generator) allValues() []Field {
	fields := make([]Field, len(g.fieldNames))
	for i, name := range g.fieldNames {
		fields[i] = Field{Name: name, Value: g.randomValue()}
	}
	return fields
}

func (g *Generator) randomFieldName() string {
	return g.fieldNames[g.rng.Intn(len(g.fieldNames))]
}

func (g *Generator) fieldLength() int {
	if g.cfg.FieldLengthDistribution == "uniform" {
		return 1 + g.rng.Intn(g.cfg.FieldLength)
	}
	return g.cfg.FieldLength
}

// randomValue returns printable ASCII so traces stay readable.
func (g *Generator) randomValue() []byte {
	buf := make([]byte, g.fieldLength())
	for i := range buf {
		buf[i] = ' ' + byte(g.rng.Intn(95))
	}
	return buf
}
