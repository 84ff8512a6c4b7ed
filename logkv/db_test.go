package logkv

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTest(t *testing.T, dir string, opts Options) *DB {
	t.Helper()

	db, err := Open(dir, opts)
	require.NoError(t, err)

	return db
}

func TestPutGet(t *testing.T) {
	for _, codec := range []Codec{CodecNone, CodecSnappy, CodecZstd} {
		t.Run(codec.String(), func(t *testing.T) {
			db := openTest(t, t.TempDir(), Options{Compression: codec})
			defer db.Close()

			require.NoError(t, db.Put([]byte("user1"), []byte("alpha")))
			require.NoError(t, db.Put([]byte("user2"), bytes.Repeat([]byte("b"), 4096)))

			v, err := db.Get([]byte("user1"))
			require.NoError(t, err)
			assert.Equal(t, []byte("alpha"), v)

			v, err = db.Get([]byte("user2"))
			require.NoError(t, err)
			assert.Len(t, v, 4096)

			assert.Equal(t, 2, db.Len())
		})
	}
}

func TestGetMissing(t *testing.T) {
	db := openTest(t, t.TempDir(), Options{})
	defer db.Close()

	_, err := db.Get([]byte("nope"))
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, db.Has([]byte("nope")))
}

func TestOverwriteKeepsLatest(t *testing.T) {
	db := openTest(t, t.TempDir(), Options{})
	defer db.Close()

	require.NoError(t, db.Put([]byte("k"), []byte("v1")))
	require.NoError(t, db.Put([]byte("k"), []byte("v2")))

	v, err := db.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), v)
	assert.Equal(t, 1, db.Len())
}

func TestReopenReplaysLog(t *testing.T) {
	dir := t.TempDir()

	db := openTest(t, dir, Options{Compression: CodecSnappy})
	for i := 0; i < 100; i++ {
		key := []byte(fmt.Sprintf("user%03d", i))
		require.NoError(t, db.Put(key, []byte(fmt.Sprintf("value-%d", i))))
	}
	require.NoError(t, db.Put([]byte("user007"), []byte("rewritten")))
	require.NoError(t, db.Close())

	db = openTest(t, dir, Options{})
	defer db.Close()

	assert.Equal(t, 100, db.Len())

	v, err := db.Get([]byte("user007"))
	require.NoError(t, err)
	assert.Equal(t, []byte("rewritten"), v)

	v, err = db.Get([]byte("user099"))
	require.NoError(t, err)
	assert.Equal(t, []byte("value-99"), v)

	// Writes after reopen use the new codec and land after the old tail.
	require.NoError(t, db.Put([]byte("user100"), []byte("late")))
	v, err = db.Get([]byte("user100"))
	require.NoError(t, err)
	assert.Equal(t, []byte("late"), v)
}

func TestReopenTruncatesTornTail(t *testing.T) {
	dir := t.TempDir()

	db := openTest(t, dir, Options{})
	require.NoError(t, db.Put([]byte("a"), []byte("1")))
	require.NoError(t, db.Put([]byte("b"), []byte("2")))
	require.NoError(t, db.Close())

	path := filepath.Join(dir, LogFile)
	info, err := os.Stat(path)
	require.NoError(t, err)

	// Chop the checksum off the last record.
	require.NoError(t, os.Truncate(path, info.Size()-2))

	db = openTest(t, dir, Options{})
	defer db.Close()

	assert.Equal(t, 1, db.Len())
	_, err = db.Get([]byte("b"))
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, db.Put([]byte("c"), []byte("3")))
	require.NoError(t, db.Sync())

	v, err := db.Get([]byte("c"))
	require.NoError(t, err)
	assert.Equal(t, []byte("3"), v)
}

func TestPutRejectsOversizedRecord(t *testing.T) {
	dir := t.TempDir()

	db := openTest(t, dir, Options{})
	require.NoError(t, db.Put([]byte("a"), []byte("1")))

	// codec byte + 1-byte key length + "big" + value
	limit := make([]byte, maxPayload-1-1-3)
	err := db.Put([]byte("big"), append(limit, 'x'))
	require.ErrorIs(t, err, ErrTooLarge)

	require.NoError(t, db.Put([]byte("max"), limit))
	require.NoError(t, db.Put([]byte("z"), []byte("26")))
	require.NoError(t, db.Close())

	db = openTest(t, dir, Options{})
	defer db.Close()

	assert.Equal(t, 3, db.Len())
	assert.True(t, db.Has([]byte("a")))
	assert.False(t, db.Has([]byte("big")))
	assert.True(t, db.Has([]byte("max")))

	v, err := db.Get([]byte("z"))
	require.NoError(t, err)
	assert.Equal(t, []byte("26"), v)
}

func TestReopenDetectsInteriorCorruption(t *testing.T) {
	dir := t.TempDir()

	db := openTest(t, dir, Options{})
	require.NoError(t, db.Put([]byte("first"), []byte("value-one")))
	require.NoError(t, db.Put([]byte("second"), []byte("value-two")))
	require.NoError(t, db.Close())

	path := filepath.Join(dir, LogFile)
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	// Flip a byte inside the first record's value.
	data[lenSize+1+1+len("first")] ^= 0xff
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err = Open(dir, Options{})
	assert.True(t, errors.Is(err, ErrCorrupt))
}

func TestSyncWritesPersistWithoutClose(t *testing.T) {
	dir := t.TempDir()

	db := openTest(t, dir, Options{SyncWrites: true})
	require.NoError(t, db.Put([]byte("k"), []byte("v")))

	info, err := os.Stat(filepath.Join(dir, LogFile))
	require.NoError(t, err)
	assert.Equal(t, db.Size(), info.Size())

	require.NoError(t, db.Close())
}

func TestClosed(t *testing.T) {
	db := openTest(t, t.TempDir(), Options{})
	require.NoError(t, db.Close())

	assert.True(t, errors.Is(db.Put([]byte("k"), nil), ErrClosed))
	assert.True(t, errors.Is(db.Sync(), ErrClosed))
	assert.True(t, errors.Is(db.Close(), ErrClosed))

	_, err := db.Get([]byte("k"))
	assert.True(t, errors.Is(err, ErrClosed))
}

func TestAscendOrdered(t *testing.T) {
	db := openTest(t, t.TempDir(), Options{})
	defer db.Close()

	for _, k := range []string{"c", "a", "b"} {
		require.NoError(t, db.Put([]byte(k), []byte(k)))
	}

	var keys []string
	db.Ascend(func(key []byte) bool {
		keys = append(keys, string(key))
		return true
	})

	assert.Equal(t, []string{"a", "b", "c"}, keys)
}

func TestParseCodec(t *testing.T) {
	tests := []struct {
		input   string
		want    Codec
		wantErr bool
	}{
		{"", CodecNone, false},
		{"none", CodecNone, false},
		{"snappy", CodecSnappy, false},
		{"zstd", CodecZstd, false},
		{"lz4", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseCodec(tt.input)
		if tt.wantErr {
			assert.Error(t, err, tt.input)
			continue
		}
		require.NoError(t, err, tt.input)
		assert.Equal(t, tt.want, got, tt.input)
	}
}
