// Package pool implements the Stream Handler Pool (spec §4.5): the central,
// single-consumer registry that spawns reader workers, owns the writer map,
// and routes outbound Transmit events to the right writer.
package pool

import (
	"fmt"
	"log/slog"

	"github.com/nishisan-dev/streampool/internal/discriminator"
	"github.com/nishisan-dev/streampool/internal/observability"
	"github.com/nishisan-dev/streampool/internal/reader"
	"github.com/nishisan-dev/streampool/internal/streamwrapper"
	"github.com/nishisan-dev/streampool/internal/wire"
	"github.com/nishisan-dev/streampool/internal/writer"
)

// defaultMailboxCapacity is used when Bind is called with capacity <= 0.
const defaultMailboxCapacity = 256

// Pool is the single-consumer event handler described in spec §4.5 and §5.
// Its writer map and cached sinks are mutated only from the goroutine
// running Run; every other interaction happens by posting an Event.
type Pool struct {
	logger *slog.Logger
	events chan wire.Event

	// set by Bind; zero value means "unbound" and every other operation is
	// a programmer error, matching spec §3.
	dispatcher wire.InboundClientDataSink
	bound      bool

	writers  map[wire.StreamKey]*writer.Writer
	ring     *observability.EventRing
	counters *observability.Counters
}

// New constructs an unbound pool. Call Bind before posting any other event.
func New(logger *slog.Logger, events *observability.EventRing, counters *observability.Counters) *Pool {
	if events == nil {
		events = observability.NewEventRing(0)
	}
	if counters == nil {
		counters = &observability.Counters{}
	}
	return &Pool{
		logger:   logger,
		writers:  make(map[wire.StreamKey]*writer.Writer),
		ring:     events,
		counters: counters,
	}
}

// Bind wires the pool to its dispatcher sink and sets the mailbox capacity,
// implementing spec §4.5's PoolBind(dispatcher_sinks, self_sinks). It must
// be the first event processed; every other operation before Bind is a
// programmer error. The returned RemoveSink is the pool's "self sink" —
// readers and writers post RemoveStream through it and never see the
// pool's writer map directly, satisfying the "shared mutable map is not
// shared" design note (spec §9).
func (p *Pool) Bind(dispatcher wire.InboundClientDataSink, mailboxCapacity int) wire.RemoveSink {
	if mailboxCapacity <= 0 {
		mailboxCapacity = defaultMailboxCapacity
	}
	p.dispatcher = dispatcher
	p.events = make(chan wire.Event, mailboxCapacity)
	p.bound = true
	return selfRemoveSink{p}
}

// selfRemoveSink lets readers/writers post RemoveStream events without
// holding a reference to the pool's internal map.
type selfRemoveSink struct{ p *Pool }

func (s selfRemoveSink) Remove(addr wire.StreamKey) {
	s.p.post(wire.Event{Kind: wire.EventRemoveStream, SocketAddr: addr})
}

// post enqueues ev on the pool's mailbox. A full mailbox is a fatal
// programmer error for this subsystem (spec §5: "senders that exceed this
// bound observe a send failure, which for internal actors is treated as
// fatal"), so post panics rather than blocking or silently dropping.
func (p *Pool) post(ev wire.Event) {
	if !p.bound {
		panic("pool: event posted before Bind")
	}
	select {
	case p.events <- ev:
	default:
		panic("pool: mailbox full, cannot post event")
	}
}

// Add is the supervisor-facing entry point for AddStream (spec §4.5 step 1).
func (p *Pool) Add(stream streamwrapper.Wrapper, originPort *uint16, factories []discriminator.Factory) {
	p.post(wire.Event{Kind: wire.EventAddStream, Stream: stream, OriginPort: originPort, Factories: factories})
}

// Remove is the supervisor-facing entry point for RemoveStream.
func (p *Pool) Remove(addr wire.StreamKey) {
	p.post(wire.Event{Kind: wire.EventRemoveStream, SocketAddr: addr})
}

// Transmit is the supervisor-facing entry point for TransmitData.
func (p *Pool) Transmit(endpoint wire.Endpoint, lastData bool, data []byte) {
	p.post(wire.Event{Kind: wire.EventTransmitData, Endpoint: endpoint, LastData: lastData, Data: data})
}

// Run drives the single-consumer event loop until events is closed. It must
// run on its own goroutine; it never blocks on I/O beyond the synchronous
// write a Transmit performs (spec §5).
func (p *Pool) Run() {
	for ev := range p.events {
		switch ev.Kind {
		case wire.EventAddStream:
			p.handleAdd(ev.Stream, ev.OriginPort, ev.Factories)
		case wire.EventRemoveStream:
			p.handleRemove(ev.SocketAddr)
		case wire.EventTransmitData:
			p.handleTransmit(ev.Endpoint, ev.LastData, ev.Data)
		default:
			p.logger.Warn("pool: ignoring unknown event kind", "kind", ev.Kind)
		}
	}
}

// Close stops Run by closing the mailbox. Only safe to call once, after no
// further Add/Remove/Transmit will be posted.
func (p *Pool) Close() {
	close(p.events)
}

func (p *Pool) handleAdd(stream streamwrapper.Wrapper, originPort *uint16, factories []discriminator.Factory) {
	readSide, err := stream.TryClone()
	if err != nil {
		p.logger.Error("add stream: cloning read side failed", "error", err)
		return
	}
	writeSide, err := stream.TryClone()
	if err != nil {
		p.logger.Error("add stream: cloning write side failed", "error", err)
		return
	}

	w, err := writer.New(writeSide, selfRemoveSink{p}, p.logger)
	if err != nil {
		p.logger.Error("add stream: writer construction failed", "error", err)
		return
	}
	// Overwrites silently if a prior entry existed: this is how
	// reconnection replaces a stale entry (spec §4.5 step 2).
	p.writers[w.Key()] = w
	p.counters.SetActiveStreams(len(p.writers))
	p.ring.PushEvent("info", "add", w.Key().String(), "stream added")

	rw := reader.New(readSide, originPort, p.dispatcherOrPanic(), selfRemoveSink{p}, factories, p.counters, p.logger)
	go rw.Run()
}

func (p *Pool) dispatcherOrPanic() wire.InboundClientDataSink {
	if p.dispatcher == nil {
		panic("pool: dispatcher used before bind")
	}
	return p.dispatcher
}

func (p *Pool) handleRemove(addr wire.StreamKey) {
	if _, ok := p.writers[addr]; !ok {
		return // unknown addresses are a no-op, spec §3
	}
	delete(p.writers, addr)
	p.counters.SetActiveStreams(len(p.writers))
	p.ring.PushEvent("info", "remove", addr.String(), "stream removed")
}

func (p *Pool) handleTransmit(endpoint wire.Endpoint, lastData bool, data []byte) {
	if endpoint.Kind != wire.EndpointSocket {
		// Only Socket is honored by the core; Key/Ip are reserved for a
		// future version and a contract violation here (spec §3, §4.5).
		panic(fmt.Sprintf("pool: unsupported endpoint kind %v in Transmit", endpoint.Kind))
	}

	w, ok := p.writers[endpoint.Socket]
	if !ok {
		msg := fmt.Sprintf("Cannot transmit %d bytes to %s: nonexistent stream", len(data), endpoint.Socket)
		p.logger.Error(msg)
		p.ring.PushEvent("error", "nonexistent_stream", endpoint.Socket.String(), msg)
		return
	}

	n, err := w.Transmit(data)
	if err != nil {
		msg := fmt.Sprintf("Cannot transmit %d bytes: %v", len(data), err)
		p.logger.Error(msg)
		p.ring.PushEvent("error", "transmit", endpoint.Socket.String(), msg)
		// A dead-stream Transmit failure removes the writer via the
		// writer's own RemoveSink call, which queues a RemoveStream event
		// on this mailbox; the map entry is deleted when the loop processes
		// that event, after any events already queued ahead of it.
	} else {
		p.counters.AddBytesOut(n)
	}

	if lastData {
		if err := w.Shutdown(streamwrapper.ShutdownBoth); err != nil {
			p.logger.Debug("shutdown after last_data transmit", "error", err)
		}
	}
}
