package streamwrapper

import (
	"errors"
	"net/netip"
	"sync"
	"time"
)

// ReadResult scripts one outcome of a Mock's Read call: either n bytes of
// Data, or Err (never both meaningfully — Data is ignored when Err is set).
type ReadResult struct {
	Data []byte
	Err  error
}

// Mock is a recording, scriptable Wrapper used by reader/writer/pool tests.
// It never touches the network: reads are served from a scripted queue, and
// writes/shutdowns are recorded for assertions.
type Mock struct {
	mu sync.Mutex

	peer  netip.AddrPort
	local netip.AddrPort

	reads   []ReadResult
	readPos int

	Writes     [][]byte
	ShutdownCalls []ShutdownDirection

	writeErr error // if set, every Write fails with this error

	cloned int
}

// NewMock builds a Mock addressed as peer/local, with the given scripted
// sequence of Read outcomes consumed in order. Once the scripted reads are
// exhausted, further Read calls return io.EOF-shaped behavior via a
// dead-stream "use of closed network connection" error, so an unscripted
// test naturally terminates the reader loop instead of spinning forever.
func NewMock(peer, local netip.AddrPort, reads []ReadResult) *Mock {
	return &Mock{peer: peer, local: local, reads: reads}
}

func (m *Mock) PeerAddr() (netip.AddrPort, error)  { return m.peer, nil }
func (m *Mock) LocalAddr() (netip.AddrPort, error) { return m.local, nil }

func (m *Mock) TryClone() (Wrapper, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cloned++
	return m, nil
}

func (m *Mock) SetReadTimeout(time.Duration) error { return nil }

func (m *Mock) Read(buf []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readPos >= len(m.reads) {
		return 0, errors.New("use of closed network connection")
	}
	r := m.reads[m.readPos]
	m.readPos++
	if r.Err != nil {
		return 0, r.Err
	}
	n := copy(buf, r.Data)
	return n, nil
}

// SetWriteError makes every subsequent Write fail with err.
func (m *Mock) SetWriteError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErr = err
}

func (m *Mock) Write(b []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := append([]byte(nil), b...)
	m.Writes = append(m.Writes, cp)
	if m.writeErr != nil {
		return 0, m.writeErr
	}
	return len(b), nil
}

func (m *Mock) Shutdown(dir ShutdownDirection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ShutdownCalls = append(m.ShutdownCalls, dir)
	return nil
}

// ClonedTimes reports how many times TryClone was invoked.
func (m *Mock) ClonedTimes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cloned
}
