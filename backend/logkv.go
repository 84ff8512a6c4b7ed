package backend

import (
	"github.com/pkg/errors"

	"github.com/weiihann/ycsbkv/logkv"
)

func init() {
	Register("logkv", NewLogKV)
}

type logkvdb struct {
	db *logkv.DB
}

// NewLogKV opens the in-repo log-structured engine.
func NewLogKV(dir string, opts Options) (Engine, error) {
	codec, err := logkv.ParseCodec(opts.Compression)
	if err != nil {
		return nil, err
	}

	db, err := logkv.Open(dir, logkv.Options{
		Compression: codec,
		SyncWrites:  opts.Fsync,
	})
	if err != nil {
		return nil, err
	}

	return &logkvdb{db: db}, nil
}

func (d *logkvdb) Name() string { return "logkv" }

func (d *logkvdb) Query(key []byte) error {
	_, err := d.db.Get(key)
	if errors.Is(err, logkv.ErrNotFound) {
		return nil
	}
	return err
}

func (d *logkvdb) Insert(key, value []byte) error {
	return d.db.Put(key, value)
}

func (d *logkvdb) Update(key, value []byte) error {
	return d.db.Put(key, value)
}

func (d *logkvdb) Sync() error {
	return d.db.Sync()
}

func (d *logkvdb) Close() error {
	return d.db.Close()
}
