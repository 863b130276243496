// Package gzipframe implements a second, independently-stateful
// Discriminator: each frame is a 4-byte big-endian length prefix followed by
// that many bytes of gzip-compressed payload. It demonstrates that the pool
// can run multiple discriminator implementations side by side (one per
// AddStream, selected by whichever factory the supervisor names first — see
// spec §9's note that only factories[0] is ever instantiated), and it is the
// concrete exerciser of github.com/klauspost/compress from this module's
// dependency stack: the teacher (n-backup) declares klauspost/pgzip for
// parallel backup compression; here the same family of codecs frames
// pool-level traffic instead.
package gzipframe

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/klauspost/compress/gzip"

	"github.com/nishisan-dev/streampool/internal/discriminator"
)

// headerSize is the length of the frame's length prefix, mirroring the
// teacher's protocol.ChunkHeaderSize convention (a fixed-size binary.BigEndian
// length ahead of the payload).
const headerSize = 4

// Factory builds fresh Discriminators.
type Factory struct{}

func (Factory) Make() discriminator.Discriminator {
	return &Discriminator{}
}

// Discriminator buffers bytes until one full length-prefixed gzip frame is
// available, then gunzips it and emits the decompressed payload as a chunk
// tagged ComponentDispatcher (gzip-framed traffic in this revision always
// targets the dispatcher directly, bypassing proxy-server routing).
type Discriminator struct {
	buf []byte
}

func (d *Discriminator) AddData(b []byte) {
	d.buf = append(d.buf, b...)
}

func (d *Discriminator) TakeChunk() (discriminator.Chunk, bool) {
	if len(d.buf) < headerSize {
		return discriminator.Chunk{}, false
	}
	length := binary.BigEndian.Uint32(d.buf[:headerSize])
	total := headerSize + int(length)
	if len(d.buf) < total {
		return discriminator.Chunk{}, false
	}

	payload := d.buf[headerSize:total]
	d.buf = append([]byte(nil), d.buf[total:]...)

	decompressed, err := inflate(payload)
	if err != nil {
		// A malformed frame is dropped rather than propagated: the
		// Discriminator contract (spec §4.2) has no error return, so the
		// only options are to panic the reader or silently skip the frame.
		// Skipping keeps one corrupt frame from killing the connection.
		return d.TakeChunk()
	}

	return discriminator.Chunk{Component: discriminator.ComponentDispatcher, Data: decompressed}, true
}

func inflate(payload []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

// EncodeFrame gzips payload and prefixes it with its length, producing
// exactly the wire shape Discriminator consumes. Used by tests and by
// anything writing to a gzip-framed stream.
func EncodeFrame(payload []byte) ([]byte, error) {
	var body bytes.Buffer
	zw := gzip.NewWriter(&body)
	if _, err := zw.Write(payload); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}

	frame := make([]byte, headerSize+body.Len())
	binary.BigEndian.PutUint32(frame[:headerSize], uint32(body.Len()))
	copy(frame[headerSize:], body.Bytes())
	return frame, nil
}
