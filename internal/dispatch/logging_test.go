package dispatch

import (
	"bytes"
	"log/slog"
	"net/netip"
	"strings"
	"testing"

	"github.com/nishisan-dev/streampool/internal/wire"
)

func TestLoggingDispatcherLogsChunksAndClosure(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	d := NewLoggingDispatcher(logger)

	addr := netip.MustParseAddrPort("127.0.0.1:1234")
	d.Send(wire.InboundClientData{SocketAddr: addr, Data: []byte("hello")})
	d.Send(wire.InboundClientData{SocketAddr: addr, LastData: true})

	out := buf.String()
	if !strings.Contains(out, "inbound chunk") {
		t.Fatalf("expected a chunk log line, got: %s", out)
	}
	if !strings.Contains(out, "stream closed") {
		t.Fatalf("expected a closure log line, got: %s", out)
	}
}
