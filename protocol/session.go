package protocol

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Port is the byte channel a Session talks over. Read must return (0, nil) or a timeout
// error when no data arrives within the read timeout.
type Port interface {
	io.ReadWriter
	SetReadTimeout(timeout time.Duration) error
}

// baudRateSetter is implemented by ports that can follow a baud rate change.
type baudRateSetter interface {
	SetBaudRate(baud, stopBits int) error
}

// State is the request/response state of a Session.
type State int

const (
	StateIdle State = iota
	StateSyncing
	StateReady
	StateSending
	StateAwaitingResult
	StateReadingValues
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSyncing:
		return "syncing"
	case StateReady:
		return "ready"
	case StateSending:
		return "sending"
	case StateAwaitingResult:
		return "awaiting result"
	case StateReadingValues:
		return "reading values"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Session drives the command/response protocol over one connection.
// A Session is not safe for concurrent use.
type Session struct {
	port   Port
	config Config
	log    logrus.FieldLogger

	state    State
	synced   bool
	echo     bool
	encoding Encoding
	baud     int
	lastCode int

	// received but not yet consumed bytes
	rx  []byte
	buf [256]byte

	// terminator that ended the previous line; its CR/LF partner is skipped if it comes next
	pendingTerm byte
}

// NewSession creates a Session over port with the given options.
func NewSession(port Port, opts ...Option) (*Session, error) {
	if port == nil {
		panic("port cannot be nil")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if err := port.SetReadTimeout(cfg.PollInterval); err != nil {
		return nil, fmt.Errorf("set read timeout: %w", err)
	}

	return &Session{
		port:     port,
		config:   cfg,
		log:      cfg.Logger,
		state:    StateIdle,
		echo:     cfg.Echo,
		encoding: cfg.Encoding,
	}, nil
}

// State returns the current protocol state.
func (s *Session) State() State { return s.state }

// Echo reports whether the bootloader currently echoes input.
func (s *Session) Echo() bool { return s.echo }

// Encoding returns the payload encoding in use.
func (s *Session) Encoding() Encoding { return s.encoding }

// SetEncoding switches the payload encoding used by WriteToRAM and ReadMemory.
func (s *Session) SetEncoding(enc Encoding) { s.encoding = enc }

// BaudRate returns the last baud rate set with SetBaudRate, 0 if never changed.
func (s *Session) BaudRate() int { return s.baud }

// LastCode returns the result code of the last completed command.
func (s *Session) LastCode() int { return s.lastCode }

// fail moves the session to the terminal error state.
func (s *Session) fail(err error) error {
	s.state = StateError
	s.log.WithError(err).Debug("protocol session failed")
	return err
}

func (s *Session) ready() error {
	if s.state == StateError {
		return ErrSessionFailed
	}
	if !s.synced {
		return ErrNotSynchronized
	}
	return nil
}

// Synchronize runs the baud rate handshake. A positive crystalKHz is sent as the
// crystal frequency. The handshake is attempted once; retrying is up to the caller.
func (s *Session) Synchronize(crystalKHz int) error {
	if s.state == StateError {
		return ErrSessionFailed
	}
	s.state = StateSyncing
	op := "synchronize"
	timeout := s.config.SyncTimeout

	if err := s.writeRaw([]byte(SyncQuery)); err != nil {
		return s.fail(err)
	}

	reply, err := s.readNonEmptyLine(op, SyncToken, timeout)
	if err != nil {
		return s.fail(err)
	}
	if reply != SyncToken {
		return s.fail(&MismatchError{Operation: op, Expected: SyncToken, Got: reply})
	}

	if err := s.writeLine(SyncToken); err != nil {
		return s.fail(err)
	}
	if err := s.expectEchoed(op, SyncToken, timeout); err != nil {
		return s.fail(err)
	}
	if err := s.expectLine(op, OKToken, timeout); err != nil {
		return s.fail(err)
	}

	if crystalKHz > 0 {
		text := strconv.Itoa(crystalKHz)
		if err := s.writeLine(text); err != nil {
			return s.fail(err)
		}
		if err := s.expectEchoed(op, text, timeout); err != nil {
			return s.fail(err)
		}
		if err := s.expectLine(op, OKToken, timeout); err != nil {
			return s.fail(err)
		}
	}

	s.synced = true
	s.state = StateReady
	s.log.WithField("crystal_khz", crystalKHz).Debug("synchronized")
	return nil
}

// expectEchoed reads the echo of text when echo is on.
func (s *Session) expectEchoed(op, text string, timeout time.Duration) error {
	if !s.echo {
		return nil
	}
	return s.expectLine(op, text, timeout)
}

func (s *Session) expectLine(op, want string, timeout time.Duration) error {
	got, err := s.readLine(op, want, timeout)
	if err != nil {
		return err
	}
	if got != want {
		return &MismatchError{Operation: op, Expected: want, Got: got}
	}
	return nil
}

// formatCommand renders a command line without its terminator.
func formatCommand(code byte, params []interface{}) string {
	var b strings.Builder
	b.WriteByte(code)
	for _, p := range params {
		b.WriteByte(' ')
		fmt.Fprint(&b, p)
	}
	return b.String()
}

// Command sends one command line and reads its result code. On success it reads
// nValues numeric value lines. A non-zero result code is returned as *ProtocolError
// without reading further lines.
func (s *Session) Command(code byte, nValues int, params ...interface{}) ([]uint32, error) {
	return s.command(commandName(code), code, nValues, params...)
}

func (s *Session) command(op string, code byte, nValues int, params ...interface{}) ([]uint32, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	line := formatCommand(code, params)
	s.state = StateSending
	if err := s.writeLine(line); err != nil {
		return nil, s.fail(fmt.Errorf("%s: write command: %w", op, err))
	}

	if s.echo {
		echo, err := s.readLine(op, "command echo", s.config.Timeout)
		if err != nil {
			return nil, s.fail(err)
		}
		if echo != line {
			s.log.WithFields(logrus.Fields{"sent": line, "echo": echo}).Debug("echo differs from command")
		}
	}

	s.state = StateAwaitingResult
	result, err := s.readNumber(op, "result code")
	if err != nil {
		return nil, s.fail(err)
	}
	s.lastCode = int(result)

	s.log.WithFields(logrus.Fields{"command": line, "result": result}).Debug(op)

	if result != StatusSuccess {
		s.state = StateIdle
		return nil, &ProtocolError{Operation: op, StatusCode: int(result)}
	}

	values, err := s.readValues(op, nValues)
	if err != nil {
		return nil, err
	}

	s.state = StateIdle
	return values, nil
}

// readValues reads n numeric value lines.
func (s *Session) readValues(op string, n int) ([]uint32, error) {
	if n == 0 {
		return nil, nil
	}

	s.state = StateReadingValues
	values := make([]uint32, 0, n)
	for i := 0; i < n; i++ {
		v, err := s.readNumber(op, fmt.Sprintf("value %d", i+1))
		if err != nil {
			return nil, s.fail(err)
		}
		values = append(values, v)
	}
	s.state = StateIdle
	return values, nil
}

// readNumber reads one line and parses it as a decimal number.
func (s *Session) readNumber(op, what string) (uint32, error) {
	line, err := s.readLine(op, what, s.config.Timeout)
	if err != nil {
		return 0, err
	}

	v, err := strconv.ParseUint(strings.TrimSpace(line), 10, 32)
	if err != nil {
		return 0, &MismatchError{Operation: op, Expected: what, Got: line}
	}
	return uint32(v), nil
}

// readNonEmptyLine reads lines until a non-empty one arrives.
func (s *Session) readNonEmptyLine(op, what string, timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	for {
		line, err := s.readLineUntil(op, what, timeout, deadline)
		if err != nil {
			return "", err
		}
		if line != "" {
			return line, nil
		}
	}
}

// SetEcho switches command echo on or off.
func (s *Session) SetEcho(on bool) error {
	arg := 0
	if on {
		arg = 1
	}
	if _, err := s.command("set echo", CmdEcho, 0, arg); err != nil {
		return err
	}
	s.echo = on
	return nil
}

// SetBaudRate changes the bootloader baud rate and, when the port supports it, the
// local port's as well.
func (s *Session) SetBaudRate(baud, stopBits int) error {
	if _, err := s.command("set baud rate", CmdSetBaudRate, 0, baud, stopBits); err != nil {
		return err
	}

	if p, ok := s.port.(baudRateSetter); ok {
		if err := p.SetBaudRate(baud, stopBits); err != nil {
			return s.fail(fmt.Errorf("set port baud rate: %w", err))
		}
	}

	s.baud = baud
	s.rx = s.rx[:0]
	s.pendingTerm = 0
	return nil
}

func commandName(code byte) string {
	switch code {
	case CmdUnlock:
		return "unlock"
	case CmdSetBaudRate:
		return "set baud rate"
	case CmdEcho:
		return "set echo"
	case CmdWriteToRAM:
		return "write to RAM"
	case CmdReadMemory:
		return "read memory"
	case CmdPrepare:
		return "prepare sectors"
	case CmdCopyRAMToFlash:
		return "copy RAM to flash"
	case CmdGo:
		return "go"
	case CmdErase:
		return "erase sectors"
	case CmdBlankCheck:
		return "blank check"
	case CmdReadPartID:
		return "read part ID"
	case CmdReadBootCode:
		return "read boot code version"
	case CmdCompare:
		return "compare"
	case CmdReadSerial:
		return "read serial number"
	case CmdSetActiveBank:
		return "set active bank"
	default:
		return fmt.Sprintf("command %q", code)
	}
}

var errNoProgress = errors.New("port returned no data")
