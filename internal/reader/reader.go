// Package reader implements the long-lived per-connection reader worker
// (spec §4.3): it feeds inbound bytes into a discriminator, forwards framed
// chunks to the dispatcher, and detects stream death so it can hand the
// connection back to the pool for cleanup.
package reader

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/nishisan-dev/streampool/internal/discriminator"
	"github.com/nishisan-dev/streampool/internal/observability"
	"github.com/nishisan-dev/streampool/internal/streamwrapper"
	"github.com/nishisan-dev/streampool/internal/wire"
)

// readBufferSize is the fixed per-iteration read buffer (spec §4.3: 64 KiB).
const readBufferSize = 64 * 1024

// emptyReadSleep is the fixed delay after a zero-byte, no-error read or a
// timeout-like error. There is no adaptive backoff (spec §9).
const emptyReadSleep = 100 * time.Millisecond

// Worker owns one accepted stream exclusively and runs its read loop on its
// own goroutine, in parallel with the pool and every other worker.
type Worker struct {
	stream     streamwrapper.Wrapper
	peer       wire.StreamKey
	originPort *uint16
	dispatcher wire.InboundClientDataSink
	removeSink wire.RemoveSink
	disc       discriminator.Discriminator
	counters   *observability.Counters
	logger     *slog.Logger
}

// New constructs a Worker. factories must be nonempty; an empty sequence is
// a programmer error and New panics rather than returning an error, matching
// spec §4.3's "construction fails fatally". Only factories[0] is
// instantiated — the pool accepts multiple discriminator factories per Add
// but this revision uses only the first, and does not fail loudly when more
// are supplied (spec §9, acknowledged source quirk preserved for parity).
// counters may be nil, in which case byte-in accounting is skipped (tests
// that don't care about observability pass nil).
func New(stream streamwrapper.Wrapper, originPort *uint16, dispatcher wire.InboundClientDataSink, removeSink wire.RemoveSink, factories []discriminator.Factory, counters *observability.Counters, logger *slog.Logger) *Worker {
	if len(factories) == 0 {
		panic("reader: factories must be nonempty")
	}
	peer, err := stream.PeerAddr()
	if err != nil {
		panic(fmt.Sprintf("reader: cannot capture peer address: %v", err))
	}
	return &Worker{
		stream:     stream,
		peer:       peer,
		originPort: originPort,
		dispatcher: dispatcher,
		removeSink: removeSink,
		disc:       factories[0].Make(),
		counters:   counters,
		logger:     logger.With("component", "reader", "peer", peer.String()),
	}
}

// Run blocks in the read loop until the stream dies. It is meant to be
// invoked as `go worker.Run()` by the pool immediately after construction.
func (w *Worker) Run() {
	if local, err := w.stream.LocalAddr(); err == nil {
		w.logger.Info("reader started", "local_port", local.Port())
	} else {
		w.logger.Info("reader started")
	}

	// Timeouts are handled by classification (spec §4.1), not by the
	// kernel, so the worker never wants a blocking read deadline.
	if err := w.stream.SetReadTimeout(0); err != nil {
		w.logger.Warn("clearing read timeout", "error", err)
	}

	buf := make([]byte, readBufferSize)
	for {
		n, err := w.stream.Read(buf)
		switch {
		case err != nil:
			if w.handleReadError(err) {
				return
			}
			continue
		case n == 0:
			time.Sleep(emptyReadSleep)
			continue
		default:
			w.forward(buf[:n])
		}
	}
}

// handleReadError classifies a read error and acts on it. It returns true
// when the worker must exit its loop.
func (w *Worker) handleReadError(err error) bool {
	switch streamwrapper.Classify(err) {
	case streamwrapper.TimeoutLike:
		time.Sleep(emptyReadSleep)
		return false
	case streamwrapper.DeadStream:
		w.teardown()
		return true
	default:
		w.logger.Warn(fmt.Sprintf("Continuing after read error on port %s: %s", originPortString(w.originPort), err))
		return false
	}
}

// forward feeds bytes into the discriminator and sends every framed chunk
// it yields to the dispatcher, in arrival order.
func (w *Worker) forward(data []byte) {
	if w.counters != nil {
		w.counters.AddBytesIn(len(data))
	}
	w.disc.AddData(data)
	for {
		chunk, ok := w.disc.TakeChunk()
		if !ok {
			return
		}
		w.dispatcher.Send(wire.InboundClientData{
			SocketAddr: w.peer,
			OriginPort: w.originPort,
			Component:  chunk.Component,
			LastData:   false,
			Data:       chunk.Data,
		})
	}
}

// teardown implements the terminal sequence required on a dead-stream read
// error (spec §4.3 step 3.ii–iv): remove from the pool, best-effort shutdown,
// then one terminal InboundClientData.
func (w *Worker) teardown() {
	w.removeSink.Remove(w.peer)
	if err := w.stream.Shutdown(streamwrapper.ShutdownBoth); err != nil {
		w.logger.Debug("shutdown after dead stream", "error", err)
	}
	w.dispatcher.Send(wire.InboundClientData{
		SocketAddr: w.peer,
		OriginPort: w.originPort,
		Component:  wire.ComponentProxyServer,
		LastData:   true,
		Data:       nil,
	})
	w.logger.Info("reader exiting: stream is dead")
}

func originPortString(p *uint16) string {
	if p == nil {
		return "none"
	}
	return fmt.Sprintf("%d", *p)
}
