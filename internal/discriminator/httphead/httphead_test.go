package httphead

import (
	"bytes"
	"testing"

	"github.com/nishisan-dev/streampool/internal/discriminator"
)

func drain(t *testing.T, d discriminator.Discriminator) [][]byte {
	t.Helper()
	var chunks [][]byte
	for {
		c, ok := d.TakeChunk()
		if !ok {
			return chunks
		}
		chunks = append(chunks, c.Data)
	}
}

func TestHappyPathThreeRequests(t *testing.T) {
	d := Factory{}.Make()

	d.AddData([]byte("GET http://here.com HTTP/1.1\r\n\r\n"))
	chunks := drain(t, d)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk after first read, got %d", len(chunks))
	}
	if !bytes.Equal(chunks[0], []byte("GET http://here.com HTTP/1.1\r\n\r\n")) {
		t.Fatalf("unexpected chunk 0: %q", chunks[0])
	}

	d.AddData([]byte("DELETE http://there.com HTTP/1.1\r\n\r\nglorp" +
		"HEAD http://everywhere.com HTTP/1.1\r\n\r\n"))
	chunks = drain(t, d)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks after second read, got %d: %q", len(chunks), chunks)
	}
	if !bytes.Equal(chunks[0], []byte("DELETE http://there.com HTTP/1.1\r\n\r\n")) {
		t.Fatalf("unexpected chunk for DELETE: %q", chunks[0])
	}
	if !bytes.Equal(chunks[1], []byte("HEAD http://everywhere.com HTTP/1.1\r\n\r\n")) {
		t.Fatalf("unexpected chunk for HEAD: %q", chunks[1])
	}
}

func TestPartialHeadAcrossMultipleAddData(t *testing.T) {
	d := Factory{}.Make()

	d.AddData([]byte("GET /a HTTP/1.1\r\n"))
	if _, ok := d.TakeChunk(); ok {
		t.Fatalf("expected no chunk before terminator arrives")
	}
	d.AddData([]byte("\r\n"))
	c, ok := d.TakeChunk()
	if !ok {
		t.Fatalf("expected a chunk once the terminator arrives")
	}
	if !bytes.Equal(c.Data, []byte("GET /a HTTP/1.1\r\n\r\n")) {
		t.Fatalf("unexpected chunk: %q", c.Data)
	}
	if _, ok := d.TakeChunk(); ok {
		t.Fatalf("expected drained discriminator to report no further chunk")
	}
}

func TestComponentTagIsAlwaysProxyServer(t *testing.T) {
	d := Factory{}.Make()
	d.AddData([]byte("GET / HTTP/1.1\r\n\r\n"))
	c, ok := d.TakeChunk()
	if !ok {
		t.Fatalf("expected a chunk")
	}
	if c.Component != discriminator.ComponentProxyServer {
		t.Fatalf("expected ComponentProxyServer, got %v", c.Component)
	}
}
