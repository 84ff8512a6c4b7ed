//go:build rocksdb

package backend

import (
	"github.com/linxGnu/grocksdb"
	"github.com/pkg/errors"
)

func init() {
	Register("rocksdb", NewRocksDB)
}

type rocksdb struct {
	db *grocksdb.DB
	o  *grocksdb.Options
	wo *grocksdb.WriteOptions
	ro *grocksdb.ReadOptions
	fo *grocksdb.FlushOptions
}

// NewRocksDB opens RocksDB with the WAL disabled unless fsync is
// requested; Sync flushes the memtable, so durability is reached at each
// sync point either way.
func NewRocksDB(dir string, opts Options) (Engine, error) {
	o := grocksdb.NewDefaultOptions()
	o.SetCreateIfMissing(true)
	o.SetErrorIfExists(true)
	o.SetDbWriteBufferSize(256 << 20)
	if opts.Compression == "none" {
		o.SetCompression(grocksdb.NoCompression)
	}

	db, err := grocksdb.OpenDb(o, dir)
	if err != nil {
		o.Destroy()
		return nil, errors.Wrap(err, "rocksdb open")
	}

	wo := grocksdb.NewDefaultWriteOptions()
	if opts.Fsync {
		wo.SetSync(true)
	} else {
		wo.DisableWAL(true)
	}

	fo := grocksdb.NewDefaultFlushOptions()
	fo.SetWait(true)

	return &rocksdb{
		db: db,
		o:  o,
		wo: wo,
		ro: grocksdb.NewDefaultReadOptions(),
		fo: fo,
	}, nil
}

func (d *rocksdb) Name() string { return "rocksdb" }

func (d *rocksdb) Query(key []byte) error {
	slice, err := d.db.Get(d.ro, key)
	if err != nil {
		return err
	}
	slice.Free()
	return nil
}

func (d *rocksdb) Insert(key, value []byte) error {
	return d.db.Put(d.wo, key, value)
}

func (d *rocksdb) Update(key, value []byte) error {
	return d.db.Put(d.wo, key, value)
}

func (d *rocksdb) Sync() error {
	return d.db.Flush(d.fo)
}

func (d *rocksdb) Close() error {
	d.db.Close()
	d.fo.Destroy()
	d.ro.Destroy()
	d.wo.Destroy()
	d.o.Destroy()
	return nil
}
