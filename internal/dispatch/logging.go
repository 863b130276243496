// Package dispatch provides the default application-facing
// wire.InboundClientDataSink used by cmd/streamnode when no richer
// supervisor is wired in. The pool itself is deliberately agnostic about
// what happens to framed data (spec §3); this is just enough of a consumer
// to make the binary runnable and observable out of the box.
package dispatch

import (
	"log/slog"

	"github.com/nishisan-dev/streampool/internal/wire"
)

// LoggingDispatcher logs every InboundClientData it receives at debug level.
type LoggingDispatcher struct {
	logger *slog.Logger
}

// NewLoggingDispatcher builds a LoggingDispatcher.
func NewLoggingDispatcher(logger *slog.Logger) *LoggingDispatcher {
	return &LoggingDispatcher{logger: logger.With("component", "dispatcher")}
}

func (d *LoggingDispatcher) Send(data wire.InboundClientData) {
	if data.LastData {
		d.logger.Debug("stream closed", "socket", data.SocketAddr.String())
		return
	}
	d.logger.Debug("inbound chunk",
		"socket", data.SocketAddr.String(),
		"component", data.Component,
		"bytes", len(data.Data),
	)
}
