// Package wire defines the typed events and messages that cross the boundary
// between the stream handler pool and its collaborators: the supervisor that
// delivers connections, the dispatcher that consumes framed inbound data, and
// the discriminator plugins that frame raw bytes.
package wire

import (
	"net/netip"

	"github.com/nishisan-dev/streampool/internal/discriminator"
	"github.com/nishisan-dev/streampool/internal/streamwrapper"
)

// StreamKey identifies a connection within the pool by its peer socket
// address. It is the map key of the pool's writer registry.
type StreamKey = netip.AddrPort

// ComponentTag re-exports discriminator.ComponentTag so callers of this
// package never need to import internal/discriminator just to read a field.
type ComponentTag = discriminator.ComponentTag

const (
	ComponentProxyServer = discriminator.ComponentProxyServer
	ComponentDispatcher  = discriminator.ComponentDispatcher
)

// InboundClientData is emitted by a reader worker for every framed chunk it
// receives, and once more, with LastData set and Data empty, when the
// connection dies.
type InboundClientData struct {
	SocketAddr StreamKey
	OriginPort *uint16
	Component  ComponentTag
	LastData   bool
	Data       []byte
}

// EndpointKind selects which field of Endpoint is populated.
type EndpointKind int

const (
	EndpointKey EndpointKind = iota
	EndpointIP
	EndpointSocket
)

// Endpoint names the destination of a TransmitData event. Only
// EndpointSocket is honored by the pool core; the others are reserved for a
// future version and are a contract violation if they reach Transmit.
type Endpoint struct {
	Kind   EndpointKind
	Key    string
	IP     netip.Addr
	Socket StreamKey
}

// SocketEndpoint builds an Endpoint addressing a connection by socket
// address, the only variant the pool core accepts today.
func SocketEndpoint(addr StreamKey) Endpoint {
	return Endpoint{Kind: EndpointSocket, Socket: addr}
}

// EventKind tags the payload carried by an Event.
type EventKind int

const (
	EventBind EventKind = iota
	EventAddStream
	EventRemoveStream
	EventTransmitData
)

// Event is the single tagged-union message type the pool's event loop
// consumes. It replaces the four distinct actor message types of the
// original design (spec's Bind/AddStream/RemoveStream/TransmitData) with one
// Go struct carrying only the fields relevant to its Kind, per the
// single-owner event loop redesign.
type Event struct {
	Kind EventKind

	// EventBind
	Dispatcher InboundClientDataSink
	SelfRemove RemoveSink

	// EventAddStream
	Stream     streamwrapper.Wrapper
	OriginPort *uint16
	Factories  []discriminator.Factory

	// EventRemoveStream
	SocketAddr StreamKey

	// EventTransmitData
	Endpoint Endpoint
	LastData bool
	Data     []byte
}

// InboundClientDataSink receives framed inbound data. Implementations must
// never block the sender; a saturated sink is a programmer error and the
// sender is expected to panic rather than silently drop data.
type InboundClientDataSink interface {
	Send(InboundClientData)
}

// RemoveSink accepts RemoveStream requests raised by readers and writers.
// It must be safe to call concurrently from many reader goroutines.
type RemoveSink interface {
	Remove(StreamKey)
}

// FanoutSink sends every InboundClientData to each of its sinks in order, so
// the pool can hand the same stream of data to both its application
// dispatcher and a secondary observer (e.g. the audit sink) without either
// one knowing about the other.
type FanoutSink []InboundClientDataSink

func (f FanoutSink) Send(d InboundClientData) {
	for _, sink := range f {
		sink.Send(d)
	}
}
