package protocol

import (
	"errors"
	"testing"
	"time"
)

func TestNewSessionSetsPollInterval(t *testing.T) {
	port := NewMockPort(nil)
	s, err := NewSession(port, WithPollInterval(7*time.Millisecond))
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	if port.timeout != 7*time.Millisecond {
		t.Errorf("read timeout = %v, want 7ms", port.timeout)
	}
	if s.State() != StateIdle {
		t.Errorf("State() = %v, want idle", s.State())
	}
	if !s.Echo() {
		t.Error("Echo() = false, want true by default")
	}
	if s.Encoding() != EncodingText {
		t.Errorf("Encoding() = %v, want text", s.Encoding())
	}
}

func TestNewSessionNilPort(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("NewSession(nil) did not panic")
		}
	}()
	NewSession(nil)
}

func TestSynchronize(t *testing.T) {
	tests := []struct {
		name      string
		crystal   int
		handle    func(string) []string
		wantErr   bool
		wantState State
		wantLast  string
	}{
		{
			name:      "without crystal",
			crystal:   0,
			wantState: StateReady,
			wantLast:  "Synchronized\r\n",
		},
		{
			name:    "with crystal",
			crystal: 12000,
			handle: func(line string) []string {
				if line == "12000" {
					return []string{OKToken}
				}
				return nil
			},
			wantState: StateReady,
			wantLast:  "12000\r\n",
		},
		{
			name:    "crystal not acknowledged",
			crystal: 14748,
			handle: func(line string) []string {
				return []string{"NAK"}
			},
			wantErr:   true,
			wantState: StateError,
			wantLast:  "14748\r\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			port := NewMockPort(lineDevice(true, tt.handle))
			s, _ := NewSession(port, testOptions()...)

			err := s.Synchronize(tt.crystal)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Synchronize() error = %v, wantErr %v", err, tt.wantErr)
			}
			if s.State() != tt.wantState {
				t.Errorf("State() = %v, want %v", s.State(), tt.wantState)
			}
			if got := port.writes[len(port.writes)-1]; got != tt.wantLast {
				t.Errorf("last write = %q, want %q", got, tt.wantLast)
			}
			if port.writes[0] != SyncQuery {
				t.Errorf("first write = %q, want %q", port.writes[0], SyncQuery)
			}
		})
	}
}

func TestSynchronizeWrongReply(t *testing.T) {
	port := NewMockPort(func(p []byte) string { return "Hello\r\n" })
	s, _ := NewSession(port, testOptions()...)

	err := s.Synchronize(0)
	if !IsMismatch(err) {
		t.Fatalf("Synchronize() error = %v, want MismatchError", err)
	}
	if s.State() != StateError {
		t.Errorf("State() = %v, want error", s.State())
	}

	// error is terminal
	if err := s.Synchronize(0); !errors.Is(err, ErrSessionFailed) {
		t.Errorf("second Synchronize() error = %v, want ErrSessionFailed", err)
	}
	if _, err := s.Command(CmdReadPartID, 1); !errors.Is(err, ErrSessionFailed) {
		t.Errorf("Command() error = %v, want ErrSessionFailed", err)
	}
}

func TestSynchronizeSkipsBlankLines(t *testing.T) {
	port := NewMockPort(func(p []byte) string {
		switch string(p) {
		case SyncQuery:
			return "\r\n\r\nSynchronized\r\n"
		default:
			return "Synchronized\r\nOK\r\n"
		}
	})
	s, _ := NewSession(port, testOptions()...)
	if err := s.Synchronize(0); err != nil {
		t.Fatalf("Synchronize() error = %v", err)
	}
}

func TestSynchronizeTimeout(t *testing.T) {
	port := NewMockPort(nil)
	s, _ := NewSession(port, testOptions()...)

	err := s.Synchronize(0)
	if !IsTimeout(err) {
		t.Fatalf("Synchronize() error = %v, want TimeoutError", err)
	}
	if s.State() != StateError {
		t.Errorf("State() = %v, want error", s.State())
	}
}

func TestCommandBeforeSynchronize(t *testing.T) {
	s, _ := NewSession(NewMockPort(nil), testOptions()...)
	if _, err := s.Command(CmdReadPartID, 1); !errors.Is(err, ErrNotSynchronized) {
		t.Errorf("Command() error = %v, want ErrNotSynchronized", err)
	}
}

func TestCommand(t *testing.T) {
	tests := []struct {
		name       string
		code       byte
		params     []interface{}
		nValues    int
		reply      []string
		wantLine   string
		wantValues []uint32
		wantStatus int
	}{
		{
			name:       "part id",
			code:       CmdReadPartID,
			nValues:    1,
			reply:      []string{"0", "638664503"},
			wantLine:   "J\r\n",
			wantValues: []uint32{638664503},
		},
		{
			name:     "unlock",
			code:     CmdUnlock,
			params:   []interface{}{UnlockCode},
			reply:    []string{"0"},
			wantLine: "U 23130\r\n",
		},
		{
			name:       "rejected copy",
			code:       CmdCopyRAMToFlash,
			params:     []interface{}{uint32(0), uint32(0x10000200), 256},
			nValues:    0,
			reply:      []string{"9"},
			wantLine:   "C 0 268435968 256\r\n",
			wantStatus: ErrSectorNotPrepared,
		},
		{
			name:       "rejected values are not read",
			code:       CmdReadBootCode,
			nValues:    2,
			reply:      []string{"19"},
			wantLine:   "K\r\n",
			wantStatus: ErrCodeReadProtection,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, port := newSyncedSession(t, func(string) []string { return tt.reply })

			values, err := s.Command(tt.code, tt.nValues, tt.params...)
			if got := port.writes[len(port.writes)-1]; got != tt.wantLine {
				t.Errorf("command line = %q, want %q", got, tt.wantLine)
			}

			if tt.wantStatus != StatusSuccess {
				code, ok := StatusCode(err)
				if !ok || code != tt.wantStatus {
					t.Fatalf("Command() error = %v, want status %d", err, tt.wantStatus)
				}
				if s.State() != StateIdle {
					t.Errorf("State() = %v, want idle after result code", s.State())
				}
				if s.LastCode() != tt.wantStatus {
					t.Errorf("LastCode() = %d, want %d", s.LastCode(), tt.wantStatus)
				}
				return
			}

			if err != nil {
				t.Fatalf("Command() error = %v", err)
			}
			if len(values) != len(tt.wantValues) {
				t.Fatalf("values = %v, want %v", values, tt.wantValues)
			}
			for i := range values {
				if values[i] != tt.wantValues[i] {
					t.Errorf("values[%d] = %d, want %d", i, values[i], tt.wantValues[i])
				}
			}
		})
	}
}

func TestCommandUsableAfterRejection(t *testing.T) {
	calls := 0
	s, _ := newSyncedSession(t, func(line string) []string {
		calls++
		if calls == 1 {
			return []string{"15"}
		}
		return []string{"0"}
	})

	if err := s.Prepare(sectorRange(0, 3)); !IsProtocolError(err) {
		t.Fatalf("first Prepare() error = %v, want ProtocolError", err)
	}
	if err := s.Prepare(sectorRange(0, 3)); err != nil {
		t.Fatalf("second Prepare() error = %v", err)
	}
}

func TestCommandMalformedResult(t *testing.T) {
	s, _ := newSyncedSession(t, func(string) []string { return []string{"garbage"} })

	_, err := s.Command(CmdReadPartID, 1)
	if !IsMismatch(err) {
		t.Fatalf("Command() error = %v, want MismatchError", err)
	}
	if s.State() != StateError {
		t.Errorf("State() = %v, want error", s.State())
	}
}

func TestCommandWithoutEcho(t *testing.T) {
	port := NewMockPort(func(p []byte) string {
		switch string(p) {
		case SyncQuery:
			return "Synchronized\r\n"
		case "Synchronized\r\n":
			return "OK\r\n"
		default:
			return "0\r\n42\r\n"
		}
	})
	s, _ := NewSession(port, testOptions(WithEcho(false))...)
	if err := s.Synchronize(0); err != nil {
		t.Fatalf("Synchronize() error = %v", err)
	}

	values, err := s.ReadPartID(1)
	if err != nil {
		t.Fatalf("ReadPartID() error = %v", err)
	}
	if len(values) != 1 || values[0] != 42 {
		t.Errorf("ReadPartID() = %v, want [42]", values)
	}
}

func TestSetEcho(t *testing.T) {
	s, port := newSyncedSession(t, func(line string) []string { return []string{"0"} })

	if err := s.SetEcho(false); err != nil {
		t.Fatalf("SetEcho() error = %v", err)
	}
	if s.Echo() {
		t.Error("Echo() = true after SetEcho(false)")
	}
	if got := port.writes[len(port.writes)-1]; got != "A 0\r\n" {
		t.Errorf("command line = %q, want %q", got, "A 0\r\n")
	}
}

type baudPort struct {
	*MockPort
	baud, stop int
}

func (p *baudPort) SetBaudRate(baud, stopBits int) error {
	p.baud, p.stop = baud, stopBits
	return nil
}

func TestSetBaudRate(t *testing.T) {
	mp := NewMockPort(lineDevice(true, func(line string) []string { return []string{"0"} }))
	port := &baudPort{MockPort: mp}
	s, _ := NewSession(port, testOptions()...)
	if err := s.Synchronize(0); err != nil {
		t.Fatalf("Synchronize() error = %v", err)
	}

	if err := s.SetBaudRate(115200, 1); err != nil {
		t.Fatalf("SetBaudRate() error = %v", err)
	}
	if port.baud != 115200 || port.stop != 1 {
		t.Errorf("port baud = %d/%d, want 115200/1", port.baud, port.stop)
	}
	if s.BaudRate() != 115200 {
		t.Errorf("BaudRate() = %d, want 115200", s.BaudRate())
	}
}

func TestReadLineFraming(t *testing.T) {
	port := NewMockPort(nil)
	s, _ := NewSession(port, testOptions()...)
	port.Queue("a\r\nb\n\rc\r\rd\ne")

	want := []string{"a", "b", "c", "", "d"}
	for i, w := range want {
		got, err := s.readLine("test", "line", 20*time.Millisecond)
		if err != nil {
			t.Fatalf("line %d: readLine() error = %v", i, err)
		}
		if got != w {
			t.Errorf("line %d = %q, want %q", i, got, w)
		}
	}

	// unterminated tail never completes
	if _, err := s.readLine("test", "line", 10*time.Millisecond); !IsTimeout(err) {
		t.Errorf("readLine() error = %v, want TimeoutError", err)
	}
}

func TestReadLineLazyCollapse(t *testing.T) {
	port := NewMockPort(nil)
	s, _ := NewSession(port, testOptions()...)

	// a bare CR completes the line without waiting for LF
	port.Queue("0\r")
	got, err := s.readLine("test", "line", 10*time.Millisecond)
	if err != nil || got != "0" {
		t.Fatalf("readLine() = %q, %v, want \"0\"", got, err)
	}

	port.Queue("\n5\r\n")
	got, err = s.readLine("test", "line", 10*time.Millisecond)
	if err != nil || got != "5" {
		t.Fatalf("readLine() = %q, %v, want \"5\"", got, err)
	}
}

func TestReadError(t *testing.T) {
	port := NewMockPort(nil)
	s, _ := NewSession(port, testOptions()...)
	port.readErr = errors.New("device gone")

	_, err := s.readLine("test", "line", 10*time.Millisecond)
	if err == nil || IsTimeout(err) {
		t.Fatalf("readLine() error = %v, want read error", err)
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateIdle, "idle"},
		{StateSyncing, "syncing"},
		{StateReady, "ready"},
		{StateSending, "sending"},
		{StateAwaitingResult, "awaiting result"},
		{StateReadingValues, "reading values"},
		{StateError, "error"},
		{State(42), "state(42)"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", int(tt.state), got, tt.want)
		}
	}
}
