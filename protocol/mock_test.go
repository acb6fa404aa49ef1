package protocol

import (
	"io"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

// MockPort is a scripted bootloader for testing. Every Write is handed to the
// responder and its reply is queued for reading.
type MockPort struct {
	in      []byte
	writes  []string
	respond func(p []byte) string
	timeout time.Duration
	readErr error
}

func NewMockPort(respond func(p []byte) string) *MockPort {
	return &MockPort{respond: respond}
}

func (m *MockPort) Read(p []byte) (int, error) {
	if m.readErr != nil {
		return 0, m.readErr
	}
	n := copy(p, m.in)
	m.in = m.in[n:]
	return n, nil
}

func (m *MockPort) Write(p []byte) (int, error) {
	m.writes = append(m.writes, string(p))
	if m.respond != nil {
		m.in = append(m.in, m.respond(p)...)
	}
	return len(p), nil
}

func (m *MockPort) SetReadTimeout(timeout time.Duration) error {
	m.timeout = timeout
	return nil
}

// Queue appends raw bytes to the receive side.
func (m *MockPort) Queue(s string) {
	m.in = append(m.in, s...)
}

// lineDevice answers the synchronization query and echoes each written line when
// echo is set, followed by the lines returned by handle.
func lineDevice(echo bool, handle func(line string) []string) func([]byte) string {
	return func(p []byte) string {
		s := string(p)
		if s == SyncQuery {
			return SyncToken + "\r\n"
		}

		line := strings.TrimSuffix(s, "\r\n")
		var out strings.Builder
		if echo {
			out.WriteString(line + "\r\n")
		}
		if line == SyncToken {
			out.WriteString(OKToken + "\r\n")
			return out.String()
		}
		if handle != nil {
			for _, r := range handle(line) {
				out.WriteString(r + "\r\n")
			}
		}
		return out.String()
	}
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func testOptions(extra ...Option) []Option {
	opts := []Option{
		WithTimeout(50 * time.Millisecond),
		WithSyncTimeout(50 * time.Millisecond),
		WithPollInterval(time.Millisecond),
		WithLogger(quietLogger()),
	}
	return append(opts, extra...)
}

// newSyncedSession returns a synchronized session over a line device.
func newSyncedSession(t testing.TB, handle func(line string) []string, opts ...Option) (*Session, *MockPort) {
	t.Helper()

	port := NewMockPort(lineDevice(true, handle))
	s, err := NewSession(port, testOptions(opts...)...)
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	if err := s.Synchronize(0); err != nil {
		t.Fatalf("Synchronize() error = %v", err)
	}
	return s, port
}
