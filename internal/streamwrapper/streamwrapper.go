// Package streamwrapper abstracts the duplex byte stream capability the
// stream handler pool and its readers/writers depend on, and the TCP
// implementation backing it in production. Tests substitute a scripted mock
// (see mock.go) that never touches the network.
package streamwrapper

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"time"
)

// ShutdownDirection selects which half of a duplex connection to close.
type ShutdownDirection int

const (
	ShutdownRead ShutdownDirection = iota
	ShutdownWrite
	ShutdownBoth
)

// Wrapper is the capability required of a stream by the reader worker, the
// writer, and the pool. TryClone must produce an independent handle over the
// same underlying connection — the pool uses it to split one accepted
// connection into a read-side owned by a reader worker and a write-side
// owned by a Writer.
type Wrapper interface {
	PeerAddr() (netip.AddrPort, error)
	LocalAddr() (netip.AddrPort, error)
	TryClone() (Wrapper, error)
	SetReadTimeout(d time.Duration) error // d == 0 clears any existing deadline
	Read(buf []byte) (int, error)
	Write(b []byte) (int, error)
	Shutdown(dir ShutdownDirection) error
}

// Classification is the outcome of classifying an I/O error for the purposes
// of reader/writer teardown decisions.
type Classification int

const (
	Benign Classification = iota
	TimeoutLike
	DeadStream
)

// Classify implements the error taxonomy required of stream implementations:
// dead-stream kinds (BrokenPipe, ConnectionRefused, ConnectionReset,
// ConnectionAborted, TimedOut) terminate the stream; timeout-like kinds seen
// by a reader (WouldBlock only) make it retry; everything else is benign and
// logged without teardown.
//
// TimedOut is deliberately classified as DeadStream rather than TimeoutLike:
// this wrapper never sets a blocking read deadline that is expected to fire
// under normal operation (SetReadTimeout is cleared at reader start, per
// spec), so an observed deadline exceeded means the peer is unresponsive, not
// that the caller is polling.
//
// io.EOF — the error net.Conn.Read returns once the peer has gracefully
// closed its write side — is classified as DeadStream rather than Benign.
// A graceful close makes every subsequent Read return (0, io.EOF)
// indefinitely, so treating it as Benign (continue, no sleep) would busy-loop
// the reader at 100% CPU forever, flood the log, and never emit the
// terminal InboundClientData or RemoveStream the §4 invariant requires.
func Classify(err error) Classification {
	if err == nil {
		return Benign
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return DeadStream
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return DeadStream
	}

	// Mocks and non-standard net.Conn implementations in this codebase (see
	// streamwrapper_test.go) signal the dead-stream kinds from spec.md §4.1
	// by wrapping errors whose message carries the kind's standard text, the
	// same way the kernel-backed errors net.OpError wraps do. Matching on
	// that text keeps Classify independent of GOOS-specific syscall.Errno
	// values.
	switch {
	case containsFold(err.Error(), "broken pipe"),
		containsFold(err.Error(), "connection refused"),
		containsFold(err.Error(), "connection reset"),
		containsFold(err.Error(), "connection aborted"),
		containsFold(err.Error(), "use of closed network connection"):
		return DeadStream
	case containsFold(err.Error(), "resource temporarily unavailable"),
		containsFold(err.Error(), "would block"):
		return TimeoutLike
	default:
		return Benign
	}
}

func containsFold(s, substr string) bool {
	n, m := len(s), len(substr)
	if m == 0 {
		return true
	}
	for i := 0; i+m <= n; i++ {
		if equalFold(s[i:i+m], substr) {
			return true
		}
	}
	return false
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// TCP wraps a net.Conn to satisfy Wrapper for real TCP connections.
type TCP struct {
	conn net.Conn
}

// NewTCP adapts an already-connected net.Conn (streams arrive already
// connected; this package does not dial or accept).
func NewTCP(conn net.Conn) *TCP {
	return &TCP{conn: conn}
}

func (t *TCP) PeerAddr() (netip.AddrPort, error) {
	addr, ok := t.conn.RemoteAddr().(*net.TCPAddr)
	if !ok {
		return netip.AddrPort{}, fmt.Errorf("streamwrapper: remote addr %v is not TCP", t.conn.RemoteAddr())
	}
	return addr.AddrPort(), nil
}

func (t *TCP) LocalAddr() (netip.AddrPort, error) {
	addr, ok := t.conn.LocalAddr().(*net.TCPAddr)
	if !ok {
		return netip.AddrPort{}, fmt.Errorf("streamwrapper: local addr %v is not TCP", t.conn.LocalAddr())
	}
	return addr.AddrPort(), nil
}

func (t *TCP) TryClone() (Wrapper, error) {
	// net.Conn has no portable dup(); the pool needs two independent
	// handles purely to let a reader and a writer each own a reference,
	// so both handles share the underlying net.Conn and a Shutdown through
	// either handle acts on that one shared socket.
	return &TCP{conn: t.conn}, nil
}

func (t *TCP) SetReadTimeout(d time.Duration) error {
	if d == 0 {
		return t.conn.SetReadDeadline(time.Time{})
	}
	return t.conn.SetReadDeadline(time.Now().Add(d))
}

func (t *TCP) Read(buf []byte) (int, error) { return t.conn.Read(buf) }
func (t *TCP) Write(b []byte) (int, error)  { return t.conn.Write(b) }

func (t *TCP) Shutdown(dir ShutdownDirection) error {
	tc, ok := t.conn.(interface {
		CloseRead() error
		CloseWrite() error
	})
	if !ok {
		return t.conn.Close()
	}
	switch dir {
	case ShutdownRead:
		return tc.CloseRead()
	case ShutdownWrite:
		return tc.CloseWrite()
	default:
		if err := tc.CloseRead(); err != nil {
			return err
		}
		return tc.CloseWrite()
	}
}
