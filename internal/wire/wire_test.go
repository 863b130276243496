package wire

import "testing"

type recordingSink struct {
	got []InboundClientData
}

func (r *recordingSink) Send(d InboundClientData) {
	r.got = append(r.got, d)
}

func TestFanoutSinkSendsToEveryMember(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	fanout := FanoutSink{a, b}

	d := InboundClientData{Data: []byte("x")}
	fanout.Send(d)

	if len(a.got) != 1 || len(b.got) != 1 {
		t.Fatalf("expected both sinks to receive the record, got a=%d b=%d", len(a.got), len(b.got))
	}
}

func TestSocketEndpointBuildsSocketKind(t *testing.T) {
	addr := StreamKey{}
	ep := SocketEndpoint(addr)
	if ep.Kind != EndpointSocket {
		t.Fatalf("expected EndpointSocket, got %v", ep.Kind)
	}
}
