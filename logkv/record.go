package logkv

import (
	"encoding/binary"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"github.com/spaolacci/murmur3"
)

// Codec identifies how a record's value bytes are encoded on disk.
type Codec byte

const (
	// CodecNone stores values as is.
	CodecNone Codec = iota
	// CodecSnappy stores values snappy-compressed.
	CodecSnappy
	// CodecZstd stores values zstd-compressed.
	CodecZstd
)

func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecSnappy:
		return "snappy"
	case CodecZstd:
		return "zstd"
	default:
		return "unknown"
	}
}

// ParseCodec maps a compression name to a Codec. The empty string
// selects CodecNone.
func ParseCodec(name string) (Codec, error) {
	switch name {
	case "", "none":
		return CodecNone, nil
	case "snappy":
		return CodecSnappy, nil
	case "zstd":
		return CodecZstd, nil
	default:
		return 0, errors.Errorf("unknown compression %q", name)
	}
}

const (
	lenSize = 4
	sumSize = 4

	// maxPayload bounds a single record so a corrupt length prefix
	// cannot trigger a huge allocation during replay.
	maxPayload = 64 << 20
)

// codecs holds the stateful zstd encoder/decoder pair. Snappy and the
// identity codec need no state.
type codecs struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func newCodecs() (*codecs, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, errors.Wrap(err, "create zstd encoder")
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, errors.Wrap(err, "create zstd decoder")
	}

	return &codecs{enc: enc, dec: dec}, nil
}

func (c *codecs) close() {
	c.enc.Close()
	c.dec.Close()
}

func (c *codecs) encode(codec Codec, value []byte) ([]byte, error) {
	switch codec {
	case CodecNone:
		return value, nil
	case CodecSnappy:
		return snappy.Encode(nil, value), nil
	case CodecZstd:
		return c.enc.EncodeAll(value, nil), nil
	default:
		return nil, errors.Errorf("encode: unknown codec %d", codec)
	}
}

func (c *codecs) decode(codec Codec, data []byte) ([]byte, error) {
	switch codec {
	case CodecNone:
		return data, nil
	case CodecSnappy:
		v, err := snappy.Decode(nil, data)
		return v, errors.Wrap(err, "snappy decode")
	case CodecZstd:
		v, err := c.dec.DecodeAll(data, nil)
		return v, errors.Wrap(err, "zstd decode")
	default:
		return nil, errors.Wrapf(ErrCorrupt, "unknown codec %d", codec)
	}
}

// payloadSize is the framed payload length of a key/value pair.
func payloadSize(key, value []byte) int {
	var klen [binary.MaxVarintLen64]byte
	return 1 + binary.PutUvarint(klen[:], uint64(len(key))) + len(key) + len(value)
}

// appendRecord frames one key/value pair.
// Format: Len(4) | Codec(1) | KeyLen(uvarint) | Key | Value | Sum(4)
// Len covers the payload between the two fixed-size fields and Sum is
// murmur3-32 of that payload. It returns the framed record and the
// offset of the value bytes relative to the record start.
func appendRecord(dst []byte, codec Codec, key, value []byte) ([]byte, int) {
	var klen [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(klen[:], uint64(len(key)))

	payloadLen := payloadSize(key, value)

	start := len(dst)
	dst = binary.BigEndian.AppendUint32(dst, uint32(payloadLen))
	dst = append(dst, byte(codec))
	dst = append(dst, klen[:n]...)
	dst = append(dst, key...)
	valueOff := len(dst) - start
	dst = append(dst, value...)

	sum := murmur3.Sum32(dst[start+lenSize:])
	dst = binary.BigEndian.AppendUint32(dst, sum)

	return dst, valueOff
}

// parsePayload splits a verified payload into codec, key and the offset
// of the value within the payload.
func parsePayload(payload []byte) (Codec, []byte, int, error) {
	if len(payload) < 2 {
		return 0, nil, 0, errors.Wrap(ErrCorrupt, "short payload")
	}

	codec := Codec(payload[0])

	klen, n := binary.Uvarint(payload[1:])
	if n <= 0 {
		return 0, nil, 0, errors.Wrap(ErrCorrupt, "bad key length")
	}

	keyStart := 1 + n
	keyEnd := keyStart + int(klen)
	if klen > uint64(len(payload)) || keyEnd > len(payload) {
		return 0, nil, 0, errors.Wrap(ErrCorrupt, "key overruns payload")
	}

	return codec, payload[keyStart:keyEnd], keyEnd, nil
}
