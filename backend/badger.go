package backend

import (
	"github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"
)

func init() {
	Register("badger", NewBadgerDB)
}

type badgerdb struct {
	db *badger.DB
}

// NewBadgerDB opens badger with extra memtables and its logger silenced.
func NewBadgerDB(dir string, opts Options) (Engine, error) {
	o := badger.DefaultOptions(dir).
		WithNumMemtables(8).
		WithNumLevelZeroTables(8).
		WithNumLevelZeroTablesStall(16).
		WithSyncWrites(opts.Fsync).
		WithLogger(nil)

	db, err := badger.Open(o)
	if err != nil {
		return nil, errors.Wrap(err, "badger open")
	}

	return &badgerdb{db: db}, nil
}

func (d *badgerdb) Name() string { return "badger" }

func (d *badgerdb) Query(key []byte) error {
	err := d.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func([]byte) error { return nil })
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	return err
}

func (d *badgerdb) set(key, value []byte) error {
	return d.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

func (d *badgerdb) Insert(key, value []byte) error {
	return d.set(key, value)
}

func (d *badgerdb) Update(key, value []byte) error {
	return d.set(key, value)
}

func (d *badgerdb) Sync() error {
	return d.db.Sync()
}

func (d *badgerdb) Close() error {
	return d.db.Close()
}
