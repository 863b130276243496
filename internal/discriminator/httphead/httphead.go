// Package httphead implements a Discriminator/Factory pair that frames an
// HTTP/1.x request head (terminated by CRLFCRLF) out of a raw byte stream,
// tagging every complete head ComponentProxyServer. It is the discriminator
// the end-to-end scenarios in spec §8 exercise.
package httphead

import (
	"bytes"

	"github.com/nishisan-dev/streampool/internal/discriminator"
)

var terminator = []byte("\r\n\r\n")

// requestLineStarts are the tokens this discriminator resynchronizes on.
// Only the request-line-head framing contract is in scope here (spec §1
// explicitly leaves HTTP parsing itself to the discriminator ecosystem);
// this list covers the standard HTTP/1.1 methods so the discriminator can
// skip interleaved noise between two back-to-back requests in one read.
var requestLineStarts = [][]byte{
	[]byte("GET "), []byte("POST "), []byte("PUT "), []byte("DELETE "),
	[]byte("HEAD "), []byte("OPTIONS "), []byte("CONNECT "), []byte("TRACE "),
	[]byte("PATCH "),
}

// Factory builds fresh Discriminators with an empty internal buffer.
type Factory struct{}

func (Factory) Make() discriminator.Discriminator {
	return &Discriminator{}
}

// Discriminator accumulates bytes until it has a complete CRLFCRLF-
// terminated request head, then emits it as one chunk and keeps any
// trailing bytes buffered for the next head. It has no notion of
// Content-Length — bodies are not framed by this discriminator.
type Discriminator struct {
	buf []byte
}

func (d *Discriminator) AddData(b []byte) {
	d.buf = append(d.buf, b...)
}

// TakeChunk returns the next complete request head, if any, draining it from
// the internal buffer. Repeated calls return false once no full head
// remains buffered, leaving the discriminator ready for more AddData, per
// the Discriminator contract.
func (d *Discriminator) TakeChunk() (discriminator.Chunk, bool) {
	d.resync()

	idx := bytes.Index(d.buf, terminator)
	if idx < 0 {
		return discriminator.Chunk{}, false
	}
	end := idx + len(terminator)
	head := append([]byte(nil), d.buf[:end]...)
	d.buf = append([]byte(nil), d.buf[end:]...)
	return discriminator.Chunk{Component: discriminator.ComponentProxyServer, Data: head}, true
}

// resync drops any bytes preceding the earliest recognized request-line
// start, discarding interleaved noise left over between two requests that
// arrived in the same read.
func (d *Discriminator) resync() {
	if len(d.buf) == 0 {
		return
	}
	best := -1
	for _, start := range requestLineStarts {
		if i := bytes.Index(d.buf, start); i >= 0 && (best == -1 || i < best) {
			best = i
		}
	}
	if best > 0 {
		d.buf = d.buf[best:]
	}
}
