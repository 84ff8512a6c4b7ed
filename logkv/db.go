// Package logkv is a small file-backed key-value engine. Every write is
// appended to a single checksummed log and an in-memory btree maps each
// key to the location of its latest value. The log is replayed on open.
package logkv

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/btree"
	"github.com/pkg/errors"
	"github.com/spaolacci/murmur3"
)

var (
	// ErrNotFound is returned by Get for a key that was never written.
	ErrNotFound = errors.New("logkv: key not found")
	// ErrCorrupt reports a damaged record before the end of the log.
	ErrCorrupt = errors.New("logkv: corrupt log")
	// ErrClosed is returned by every call after Close.
	ErrClosed = errors.New("logkv: database closed")
	// ErrTooLarge rejects a record that replay could not read back.
	ErrTooLarge = errors.New("logkv: record too large")
)

// LogFile is the name of the log inside the database directory.
const LogFile = "data.log"

const writeBufferSize = 1 << 20

// Options configures a DB.
type Options struct {
	// Compression selects the codec for newly written values. Existing
	// records keep the codec they were written with.
	Compression Codec

	// SyncWrites fsyncs the log after every Put.
	SyncWrites bool
}

type entry struct {
	key   string
	off   int64
	size  uint32
	codec Codec
}

func entryLess(a, b entry) bool {
	return a.key < b.key
}

// DB is a log-structured key-value store. It is safe for concurrent use.
type DB struct {
	mu sync.Mutex

	dir  string
	f    *os.File
	w    *bufio.Writer
	opts Options

	// end is the logical end of the log including buffered bytes;
	// written is the prefix that has reached the file.
	end     int64
	written int64

	index  *btree.BTreeG[entry]
	codecs *codecs
	buf    []byte
	closed bool
}

// Open opens or creates the database in dir, replaying any existing log.
// A torn record at the end of the log is truncated away.
func Open(dir string, opts Options) (*DB, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create dir %s", dir)
	}

	path := filepath.Join(dir, LogFile)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}

	cs, err := newCodecs()
	if err != nil {
		f.Close()
		return nil, err
	}

	db := &DB{
		dir:    dir,
		f:      f,
		opts:   opts,
		index:  btree.NewG(32, entryLess),
		codecs: cs,
	}

	if err := db.replay(); err != nil {
		cs.close()
		f.Close()
		return nil, errors.Wrapf(err, "replay %s", path)
	}

	db.w = bufio.NewWriterSize(f, writeBufferSize)

	return db, nil
}

func (db *DB) replay() error {
	info, err := db.f.Stat()
	if err != nil {
		return errors.Wrap(err, "stat log")
	}

	size := info.Size()
	r := bufio.NewReaderSize(io.NewSectionReader(db.f, 0, size), writeBufferSize)

	var (
		off    int64
		lenBuf [lenSize]byte
		sumBuf [sumSize]byte
	)

	for off < size {
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			return db.truncate(off)
		}

		n := int64(binary.BigEndian.Uint32(lenBuf[:]))
		recEnd := off + lenSize + n + sumSize

		if n > maxPayload || recEnd > size {
			return db.truncate(off)
		}

		payload := make([]byte, n)
		if _, err := io.ReadFull(r, payload); err != nil {
			return db.truncate(off)
		}
		if _, err := io.ReadFull(r, sumBuf[:]); err != nil {
			return db.truncate(off)
		}

		if murmur3.Sum32(payload) != binary.BigEndian.Uint32(sumBuf[:]) {
			if recEnd == size {
				return db.truncate(off)
			}
			return errors.Wrapf(ErrCorrupt, "checksum mismatch at offset %d", off)
		}

		codec, key, valueOff, err := parsePayload(payload)
		if err != nil {
			return errors.Wrapf(err, "record at offset %d", off)
		}

		db.index.ReplaceOrInsert(entry{
			key:   string(key),
			off:   off + lenSize + int64(valueOff),
			size:  uint32(len(payload) - valueOff),
			codec: codec,
		})

		off = recEnd
	}

	return db.seek(off)
}

func (db *DB) truncate(off int64) error {
	if err := db.f.Truncate(off); err != nil {
		return errors.Wrapf(err, "truncate torn tail at %d", off)
	}
	return db.seek(off)
}

func (db *DB) seek(off int64) error {
	if _, err := db.f.Seek(off, io.SeekStart); err != nil {
		return errors.Wrap(err, "seek log end")
	}
	db.end = off
	db.written = off
	return nil
}

// Put sets key to value, replacing any previous value.
func (db *DB) Put(key, value []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return ErrClosed
	}

	encoded, err := db.codecs.encode(db.opts.Compression, value)
	if err != nil {
		return err
	}

	if n := payloadSize(key, encoded); n > maxPayload {
		return errors.Wrapf(ErrTooLarge, "%d byte payload exceeds %d", n, maxPayload)
	}

	var valueOff int
	db.buf, valueOff = appendRecord(db.buf[:0], db.opts.Compression, key, encoded)

	if _, err := db.w.Write(db.buf); err != nil {
		return errors.Wrap(err, "append record")
	}

	db.index.ReplaceOrInsert(entry{
		key:   string(key),
		off:   db.end + int64(valueOff),
		size:  uint32(len(encoded)),
		codec: db.opts.Compression,
	})
	db.end += int64(len(db.buf))

	if db.opts.SyncWrites {
		return db.syncLocked()
	}

	return nil
}

// Get returns a copy of the latest value for key, or ErrNotFound.
func (db *DB) Get(key []byte) ([]byte, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return nil, ErrClosed
	}

	e, ok := db.index.Get(entry{key: string(key)})
	if !ok {
		return nil, ErrNotFound
	}

	if e.off+int64(e.size) > db.written {
		if err := db.flushLocked(); err != nil {
			return nil, err
		}
	}

	data := make([]byte, e.size)
	if _, err := db.f.ReadAt(data, e.off); err != nil {
		return nil, errors.Wrapf(err, "read value at %d", e.off)
	}

	return db.codecs.decode(e.codec, data)
}

// Has reports whether key is present.
func (db *DB) Has(key []byte) bool {
	db.mu.Lock()
	defer db.mu.Unlock()

	return db.index.Has(entry{key: string(key)})
}

// Len returns the number of live keys.
func (db *DB) Len() int {
	db.mu.Lock()
	defer db.mu.Unlock()

	return db.index.Len()
}

// Ascend calls fn for every key in order until fn returns false.
func (db *DB) Ascend(fn func(key []byte) bool) {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.index.Ascend(func(e entry) bool {
		return fn([]byte(e.key))
	})
}

// Size returns the logical size of the log in bytes.
func (db *DB) Size() int64 {
	db.mu.Lock()
	defer db.mu.Unlock()

	return db.end
}

// Sync writes buffered records to the log and fsyncs it.
func (db *DB) Sync() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return ErrClosed
	}

	return db.syncLocked()
}

func (db *DB) flushLocked() error {
	if err := db.w.Flush(); err != nil {
		return errors.Wrap(err, "flush log")
	}
	db.written = db.end
	return nil
}

func (db *DB) syncLocked() error {
	if err := db.flushLocked(); err != nil {
		return err
	}
	return errors.Wrap(db.f.Sync(), "fsync log")
}

// Close syncs and closes the log. Further calls return ErrClosed.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return ErrClosed
	}
	db.closed = true

	syncErr := db.syncLocked()
	db.codecs.close()
	closeErr := db.f.Close()

	if syncErr != nil {
		return syncErr
	}
	return errors.Wrap(closeErr, "close log")
}

// Dir returns the directory the database lives in.
func (db *DB) Dir() string {
	return db.dir
}
