package backend

import (
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

func init() {
	Register("leveldb", NewGoLevelDB)
}

// syncKey is put and deleted in one synchronous batch to force the journal
// and everything queued before it to disk. goleveldb has no manual flush.
var syncKey = []byte("\x00ycsbkv-sync")

type goleveldb struct {
	db   *leveldb.DB
	wo   *opt.WriteOptions
	swo  *opt.WriteOptions
	sync *leveldb.Batch
}

// NewGoLevelDB opens goleveldb with snappy unless compression is "none".
func NewGoLevelDB(dir string, opts Options) (Engine, error) {
	o := &opt.Options{
		BlockCacheCapacity:     64 * opt.MiB,
		CompactionL0Trigger:    4,
		WriteL0SlowdownTrigger: 16,
		WriteL0PauseTrigger:    24,
		CompactionTableSize:    64 * opt.MiB,
		CompactionTotalSize:    320 * opt.MiB,
		WriteBuffer:            128 * opt.MiB,
		ErrorIfExist:           true,
	}
	if opts.Compression == "none" {
		o.Compression = opt.NoCompression
	}

	db, err := leveldb.OpenFile(dir, o)
	if err != nil {
		return nil, errors.Wrap(err, "leveldb open")
	}

	sync := new(leveldb.Batch)
	sync.Put(syncKey, nil)
	sync.Delete(syncKey)

	return &goleveldb{
		db:   db,
		wo:   &opt.WriteOptions{Sync: opts.Fsync},
		swo:  &opt.WriteOptions{Sync: true},
		sync: sync,
	}, nil
}

func (d *goleveldb) Name() string { return "leveldb" }

func (d *goleveldb) Query(key []byte) error {
	_, err := d.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil
	}
	return err
}

func (d *goleveldb) Insert(key, value []byte) error {
	return d.db.Put(key, value, d.wo)
}

func (d *goleveldb) Update(key, value []byte) error {
	return d.db.Put(key, value, d.wo)
}

// Sync writes a put and delete of syncKey as one fsynced batch. The pair
// cancels out, so no key is added to the record space.
func (d *goleveldb) Sync() error {
	return d.db.Write(d.sync, d.swo)
}

func (d *goleveldb) Close() error {
	return d.db.Close()
}
