package backend

import (
	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"
)

func init() {
	Register("pebble", NewPebble)
}

type pebbledb struct {
	db *pebble.DB
	wo *pebble.WriteOptions
}

// NewPebble opens pebble with a 64 MiB memtable.
func NewPebble(dir string, opts Options) (Engine, error) {
	db, err := pebble.Open(dir, &pebble.Options{
		ErrorIfExists: true,
		MemTableSize:  64 << 20,
	})
	if err != nil {
		return nil, errors.Wrap(err, "pebble open")
	}

	wo := pebble.NoSync
	if opts.Fsync {
		wo = pebble.Sync
	}

	return &pebbledb{db: db, wo: wo}, nil
}

func (d *pebbledb) Name() string { return "pebble" }

func (d *pebbledb) Query(key []byte) error {
	_, closer, err := d.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return closer.Close()
}

func (d *pebbledb) Insert(key, value []byte) error {
	return d.db.Set(key, value, d.wo)
}

func (d *pebbledb) Update(key, value []byte) error {
	return d.db.Set(key, value, d.wo)
}

// Sync flushes the memtable to an sstable, the same durability point a
// RocksDB Flush gives.
func (d *pebbledb) Sync() error {
	return d.db.Flush()
}

func (d *pebbledb) Close() error {
	return d.db.Close()
}
