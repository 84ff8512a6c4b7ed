package workload

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/magiconair/properties"
	"github.com/pkg/errors"
)

var (
	ErrMissingProperty = errors.New("missing required property")
	ErrInvalidProperty = errors.New("invalid property")
)

// Property names understood in workload spec files. They follow the YCSB
// core workload; syncintervalms and seed are specific to this driver.
const (
	PropTable                   = "table"
	PropRecordCount             = "recordcount"
	PropOperationCount          = "operationcount"
	PropSyncIntervalMs          = "syncintervalms"
	PropFieldCount              = "fieldcount"
	PropFieldLength             = "fieldlength"
	PropFieldLengthDistribution = "fieldlengthdistribution"
	PropReadAllFields           = "readallfields"
	PropWriteAllFields          = "writeallfields"
	PropReadProportion          = "readproportion"
	PropUpdateProportion        = "updateproportion"
	PropInsertProportion        = "insertproportion"
	PropScanProportion          = "scanproportion"
	PropReadModifyWriteProp     = "readmodifywriteproportion"
	PropRequestDistribution     = "requestdistribution"
	PropInsertOrder             = "insertorder"
	PropZeroPadding             = "zeropadding"
	PropInsertStart             = "insertstart"
	PropKeyPrefix               = "keyprefix"
	PropMaxScanLength           = "maxscanlength"
	PropSeed                    = "seed"
)

// Config controls workload generation parameters.
type Config struct {
	Table          string
	RecordCount    int
	OperationCount int
	SyncIntervalMs int

	FieldCount              int
	FieldLength             int
	FieldLengthDistribution string
	ReadAllFields           bool
	WriteAllFields          bool

	ReadProportion            float64
	UpdateProportion          float64
	InsertProportion          float64
	ScanProportion            float64
	ReadModifyWriteProportion float64

	RequestDistribution string
	InsertOrder         string
	ZeroPadding         int
	InsertStart         int
	KeyPrefix           string
	MaxScanLength       int
	Seed                int64
}

// DefaultConfig returns the YCSB core workload defaults. The three
// required counts are left at zero.
func DefaultConfig() Config {
	return Config{
		Table:                   "usertable",
		FieldCount:              10,
		FieldLength:             100,
		FieldLengthDistribution: "constant",
		ReadAllFields:           true,
		WriteAllFields:          false,
		ReadProportion:          0.95,
		UpdateProportion:        0.05,
		RequestDistribution:     "uniform",
		InsertOrder:             "hashed",
		ZeroPadding:             1,
		KeyPrefix:               "user",
		MaxScanLength:           1000,
		Seed:                    1,
	}
}

// LoadConfig reads a workload spec file. Files ending in .toml are
// decoded as TOML; anything else is read as Java-style properties, the
// format YCSB workload files use.
func LoadConfig(path string) (Config, error) {
	props, err := loadProps(path)
	if err != nil {
		return Config{}, err
	}

	cfg, err := ParseConfig(props)
	if err != nil {
		return Config{}, errors.Wrapf(err, "workload %s", path)
	}

	return cfg, nil
}

func loadProps(path string) (map[string]string, error) {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		raw := make(map[string]any)
		if _, err := toml.DecodeFile(path, &raw); err != nil {
			return nil, errors.Wrapf(err, "decode %s", path)
		}

		props := make(map[string]string, len(raw))
		for k, v := range raw {
			props[strings.ToLower(k)] = fmt.Sprint(v)
		}

		return props, nil
	}

	p, err := properties.LoadFile(path, properties.UTF8)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}

	return p.Map(), nil
}

// ParseConfig builds a Config from raw property values, applying
// defaults for anything not set. recordcount, operationcount and
// syncintervalms are required.
func ParseConfig(props map[string]string) (Config, error) {
	cfg := DefaultConfig()
	p := parser{props: props}

	p.requiredInt(PropRecordCount, &cfg.RecordCount)
	p.requiredInt(PropOperationCount, &cfg.OperationCount)
	p.requiredInt(PropSyncIntervalMs, &cfg.SyncIntervalMs)

	p.str(PropTable, &cfg.Table)
	p.integer(PropFieldCount, &cfg.FieldCount)
	p.integer(PropFieldLength, &cfg.FieldLength)
	p.str(PropFieldLengthDistribution, &cfg.FieldLengthDistribution)
	p.boolean(PropReadAllFields, &cfg.ReadAllFields)
	p.boolean(PropWriteAllFields, &cfg.WriteAllFields)
	p.float(PropReadProportion, &cfg.ReadProportion)
	p.float(PropUpdateProportion, &cfg.UpdateProportion)
	p.float(PropInsertProportion, &cfg.InsertProportion)
	p.float(PropScanProportion, &cfg.ScanProportion)
	p.float(PropReadModifyWriteProp, &cfg.ReadModifyWriteProportion)
	p.str(PropRequestDistribution, &cfg.RequestDistribution)
	p.str(PropInsertOrder, &cfg.InsertOrder)
	p.integer(PropZeroPadding, &cfg.ZeroPadding)
	p.integer(PropInsertStart, &cfg.InsertStart)
	p.str(PropKeyPrefix, &cfg.KeyPrefix)
	p.integer(PropMaxScanLength, &cfg.MaxScanLength)
	p.int64(PropSeed, &cfg.Seed)

	if p.err != nil {
		return Config{}, p.err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks value ranges and enumerations.
func (c Config) Validate() error {
	switch {
	case c.RecordCount < 0:
		return invalid(PropRecordCount, "must not be negative")
	case c.OperationCount < 0:
		return invalid(PropOperationCount, "must not be negative")
	case c.SyncIntervalMs < 0:
		return invalid(PropSyncIntervalMs, "must not be negative")
	case c.FieldCount < 1:
		return invalid(PropFieldCount, "must be at least 1")
	case c.FieldLength < 1:
		return invalid(PropFieldLength, "must be at least 1")
	case c.ZeroPadding < 1:
		return invalid(PropZeroPadding, "must be at least 1")
	case c.InsertStart < 0:
		return invalid(PropInsertStart, "must not be negative")
	case c.MaxScanLength < 1:
		return invalid(PropMaxScanLength, "must be at least 1")
	}

	switch c.FieldLengthDistribution {
	case "constant", "uniform":
	default:
		return invalid(PropFieldLengthDistribution,
			fmt.Sprintf("unknown distribution %q", c.FieldLengthDistribution))
	}

	switch c.RequestDistribution {
	case "uniform", "zipfian", "latest":
	default:
		return invalid(PropRequestDistribution,
			fmt.Sprintf("unknown distribution %q", c.RequestDistribution))
	}

	switch c.InsertOrder {
	case "hashed", "ordered":
	default:
		return invalid(PropInsertOrder,
			fmt.Sprintf("unknown order %q", c.InsertOrder))
	}

	proportions := []struct {
		name string
		v    float64
	}{
		{PropReadProportion, c.ReadProportion},
		{PropUpdateProportion, c.UpdateProportion},
		{PropInsertProportion, c.InsertProportion},
		{PropScanProportion, c.ScanProportion},
		{PropReadModifyWriteProp, c.ReadModifyWriteProportion},
	}

	var total float64
	for _, p := range proportions {
		if p.v < 0 {
			return invalid(p.name, "must not be negative")
		}
		total += p.v
	}

	if c.OperationCount > 0 && total <= 0 {
		return errors.Wrap(ErrInvalidProperty,
			"operation proportions sum to zero")
	}

	return nil
}

func invalid(name, reason string) error {
	return errors.Wrapf(ErrInvalidProperty, "%s: %s", name, reason)
}

// parser accumulates the first conversion error so ParseConfig reads as
// a flat list of assignments.
type parser struct {
	props map[string]string
	err   error
}

func (p *parser) lookup(name string) (string, bool) {
	v, ok := p.props[name]
	return strings.TrimSpace(v), ok
}

func (p *parser) fail(name, value string, err error) {
	if p.err == nil {
		p.err = errors.Wrapf(ErrInvalidProperty, "%s=%q: %v", name, value, err)
	}
}

func (p *parser) requiredInt(name string, dst *int) {
	if _, ok := p.lookup(name); !ok {
		if p.err == nil {
			p.err = errors.Wrapf(ErrMissingProperty, "spec must provide %s", name)
		}
		return
	}
	p.integer(name, dst)
}

func (p *parser) str(name string, dst *string) {
	if v, ok := p.lookup(name); ok {
		*dst = v
	}
}

func (p *parser) integer(name string, dst *int) {
	v, ok := p.lookup(name)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(name, v, err)
		return
	}
	*dst = n
}

func (p *parser) int64(name string, dst *int64) {
	v, ok := p.lookup(name)
	if !ok {
		return
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		p.fail(name, v, err)
		return
	}
	*dst = n
}

func (p *parser) float(name string, dst *float64) {
	v, ok := p.lookup(name)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.fail(name, v, err)
		return
	}
	*dst = f
}

func (p *parser) boolean(name string, dst *bool) {
	v, ok := p.lookup(name)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(name, v, err)
		return
	}
	*dst = b
}
