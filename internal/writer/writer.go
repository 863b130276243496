// Package writer implements the per-connection outbound handle the pool owns
// (spec §4.4): a single-shot Transmit plus an optional Shutdown, with
// dead-stream failures self-removing from the pool.
package writer

import (
	"log/slog"

	"github.com/nishisan-dev/streampool/internal/streamwrapper"
	"github.com/nishisan-dev/streampool/internal/wire"
)

// Writer is not re-entrant: the pool guarantees single-threaded access to
// any one Writer by serializing pool events through its own event loop.
type Writer struct {
	stream     streamwrapper.Wrapper
	peer       wire.StreamKey
	removeSink wire.RemoveSink
	logger     *slog.Logger
}

// New constructs a Writer over stream, capturing its peer address as the
// StreamKey used to address RemoveStream on dead-stream failures.
func New(stream streamwrapper.Wrapper, removeSink wire.RemoveSink, logger *slog.Logger) (*Writer, error) {
	peer, err := stream.PeerAddr()
	if err != nil {
		return nil, err
	}
	return &Writer{
		stream:     stream,
		peer:       peer,
		removeSink: removeSink,
		logger:     logger.With("component", "writer", "peer", peer.String()),
	}, nil
}

// Key returns the StreamKey this writer is registered under.
func (w *Writer) Key() wire.StreamKey { return w.peer }

// Transmit writes data in a single call. On a dead-stream error it
// best-effort shuts the stream down and removes itself from the pool before
// returning the error; on any other error it logs and returns the error
// without removing anything.
func (w *Writer) Transmit(data []byte) (int, error) {
	n, err := w.stream.Write(data)
	if err == nil {
		return n, nil
	}

	switch streamwrapper.Classify(err) {
	case streamwrapper.DeadStream:
		if shutErr := w.stream.Shutdown(streamwrapper.ShutdownBoth); shutErr != nil {
			w.logger.Debug("shutdown after failed write", "error", shutErr)
		}
		w.removeSink.Remove(w.peer)
		return n, err
	default:
		w.logger.Error("write failed", "error", err, "bytes", len(data))
		return n, err
	}
}

// Shutdown is a direct passthrough to the underlying stream.
func (w *Writer) Shutdown(dir streamwrapper.ShutdownDirection) error {
	return w.stream.Shutdown(dir)
}
