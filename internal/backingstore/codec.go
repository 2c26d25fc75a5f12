package backingstore

import (
	"github.com/klauspost/compress/zstd"
)

// codec zstd-compresses CLV, scaler, and tip-character slot payloads before
// they reach blobstore.BlobStore, and decompresses them on fault-in. The
// binformat/LZ4 framing used for the topology blob trades compression ratio
// for fast startup decode of a single small blob; slot payloads are read
// far more often and in isolation, so they get zstd's better ratio instead.
type codec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func newCodec() *codec {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic(err) // zstd.NewWriter(nil, ...) only fails on invalid static options
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		panic(err)
	}
	return &codec{enc: enc, dec: dec}
}

// compress returns a standalone zstd frame for raw. The encoder is safe for
// concurrent EncodeAll calls per the zstd package docs.
func (c *codec) compress(raw []byte) []byte {
	return c.enc.EncodeAll(raw, make([]byte, 0, len(raw)))
}

// decompress reverses compress. The decoder is likewise safe for concurrent
// DecodeAll calls.
func (c *codec) decompress(data []byte) ([]byte, error) {
	return c.dec.DecodeAll(data, nil)
}
