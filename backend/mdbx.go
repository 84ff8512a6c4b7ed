//go:build mdbx

package backend

import (
	"os"

	"github.com/erigontech/mdbx-go/mdbx"
	"github.com/pkg/errors"
)

func init() {
	Register("mdbx", NewMDBX)
}

const (
	mdbxGB = 1 << 30
	mdbxTB = 1 << 40
)

type mdbxdb struct {
	env *mdbx.Env
	dbi mdbx.DBI
}

// NewMDBX opens an MDBX environment in SafeNoSync mode so commits are
// not flushed until Sync, unless fsync is requested.
func NewMDBX(dir string, opts Options) (Engine, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create dir %s", dir)
	}

	env, err := mdbx.NewEnv()
	if err != nil {
		return nil, errors.Wrap(err, "create mdbx environment")
	}

	err = env.SetGeometry(-1, -1, 1*mdbxTB, 1*mdbxGB, -1, 4096)
	if err != nil {
		env.Close()
		return nil, errors.Wrap(err, "set geometry")
	}

	if err := env.SetOption(mdbx.OptMaxDB, uint64(1)); err != nil {
		env.Close()
		return nil, errors.Wrap(err, "set max dbs")
	}

	flags := uint(mdbx.Coalesce | mdbx.LifoReclaim)
	if !opts.Fsync {
		flags |= uint(mdbx.SafeNoSync)
	}

	if err := env.Open(dir, flags, 0o644); err != nil {
		env.Close()
		return nil, errors.Wrap(err, "mdbx open")
	}

	var dbi mdbx.DBI
	err = env.Update(func(txn *mdbx.Txn) error {
		var err error
		dbi, err = txn.OpenDBI("usertable", mdbx.Create, nil, nil)
		return err
	})
	if err != nil {
		env.Close()
		return nil, errors.Wrap(err, "open dbi")
	}

	return &mdbxdb{env: env, dbi: dbi}, nil
}

func (d *mdbxdb) Name() string { return "mdbx" }

func (d *mdbxdb) Query(key []byte) error {
	return d.env.View(func(txn *mdbx.Txn) error {
		_, err := txn.Get(d.dbi, key)
		if mdbx.IsNotFound(err) {
			return nil
		}
		return err
	})
}

func (d *mdbxdb) put(key, value []byte) error {
	return d.env.Update(func(txn *mdbx.Txn) error {
		return txn.Put(d.dbi, key, value, mdbx.Upsert)
	})
}

func (d *mdbxdb) Insert(key, value []byte) error {
	return d.put(key, value)
}

func (d *mdbxdb) Update(key, value []byte) error {
	return d.put(key, value)
}

func (d *mdbxdb) Sync() error {
	return d.env.Sync(true, false)
}

func (d *mdbxdb) Close() error {
	d.env.Close()
	return nil
}
