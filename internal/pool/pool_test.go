package pool

import (
	"bytes"
	"log/slog"
	"net/netip"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nishisan-dev/streampool/internal/discriminator"
	"github.com/nishisan-dev/streampool/internal/discriminator/httphead"
	"github.com/nishisan-dev/streampool/internal/observability"
	"github.com/nishisan-dev/streampool/internal/streamwrapper"
	"github.com/nishisan-dev/streampool/internal/wire"
)

func newTestLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, nil)), &buf
}

type recordingDispatcher struct {
	mu   sync.Mutex
	data []wire.InboundClientData
}

func (d *recordingDispatcher) Send(r wire.InboundClientData) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.data = append(d.data, r)
}

// keepAlive returns scripted reads that never signal exhaustion within this
// test's window: the reader just sleeps its fixed empty-read backoff between
// each one, leaving the writer side free to Transmit without racing the
// reader's own dead-stream teardown.
func keepAlive() []streamwrapper.ReadResult {
	reads := make([]streamwrapper.ReadResult, 40)
	return reads
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within timeout")
}

func TestAddTransmitRemoveEndToEnd(t *testing.T) {
	logger, _ := newTestLogger()
	counters := &observability.Counters{}
	p := New(logger, observability.NewEventRing(50), counters)
	p.Bind(&recordingDispatcher{}, 16)
	go p.Run()
	defer p.Close()

	peer := netip.MustParseAddrPort("172.16.0.1:9000")
	mock := streamwrapper.NewMock(peer, peer, keepAlive())
	p.Add(mock, nil, []discriminator.Factory{httphead.Factory{}})
	waitFor(t, func() bool { return counters.Snapshot().ActiveStreams == 1 })

	p.Transmit(wire.SocketEndpoint(peer), false, []byte("hello"))
	waitFor(t, func() bool { return len(mock.Writes) == 1 })
	if string(mock.Writes[0]) != "hello" {
		t.Fatalf("expected write %q, got %q", "hello", mock.Writes[0])
	}

	p.Remove(peer)
	waitFor(t, func() bool { return counters.Snapshot().ActiveStreams == 0 })
}

func TestTransmitToNonexistentStreamLogsError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	p := New(logger, observability.NewEventRing(50), &observability.Counters{})
	p.Bind(&recordingDispatcher{}, 16)
	go p.Run()
	defer p.Close()

	addr := netip.MustParseAddrPort("172.16.0.2:9001")
	p.Transmit(wire.SocketEndpoint(addr), false, []byte("xyz"))

	waitFor(t, func() bool {
		return strings.Contains(buf.String(), "nonexistent stream")
	})
	if !strings.Contains(buf.String(), "Cannot transmit 3 bytes to") {
		t.Fatalf("expected the exact nonexistent-stream message shape, got: %s", buf.String())
	}
}

func TestRemoveUnknownAddressIsNoOp(t *testing.T) {
	logger, _ := newTestLogger()
	p := New(logger, observability.NewEventRing(50), &observability.Counters{})
	p.Bind(&recordingDispatcher{}, 16)
	go p.Run()
	defer p.Close()

	p.Remove(netip.MustParseAddrPort("172.16.0.3:9002"))
	// No panic, no error: just drain the mailbox to confirm the event was
	// processed without incident.
	waitFor(t, func() bool { return len(p.events) == 0 })
}

func TestTransmitWithNonSocketEndpointPanics(t *testing.T) {
	logger, _ := newTestLogger()
	p := New(logger, observability.NewEventRing(50), &observability.Counters{})
	p.Bind(&recordingDispatcher{}, 16)

	defer func() {
		if recover() == nil {
			t.Fatalf("expected handleTransmit to panic for a non-socket endpoint")
		}
	}()
	p.handleTransmit(wire.Endpoint{Kind: wire.EndpointKey, Key: "x"}, false, []byte("a"))
}

func TestAddReplacesStaleEntryOnReconnect(t *testing.T) {
	logger, _ := newTestLogger()
	counters := &observability.Counters{}
	p := New(logger, observability.NewEventRing(50), counters)
	p.Bind(&recordingDispatcher{}, 16)
	go p.Run()
	defer p.Close()

	peer := netip.MustParseAddrPort("172.16.0.4:9003")
	first := streamwrapper.NewMock(peer, peer, keepAlive())
	p.Add(first, nil, []discriminator.Factory{httphead.Factory{}})
	waitFor(t, func() bool { return counters.Snapshot().ActiveStreams == 1 })

	second := streamwrapper.NewMock(peer, peer, keepAlive())
	p.Add(second, nil, []discriminator.Factory{httphead.Factory{}})
	waitFor(t, func() bool { return counters.Snapshot().ActiveStreams == 1 })

	p.Transmit(wire.SocketEndpoint(peer), false, []byte("to-second"))
	waitFor(t, func() bool { return len(second.Writes) == 1 })
	if len(first.Writes) != 0 {
		t.Fatalf("expected the stale writer to receive no writes after reconnect")
	}
}
