package protocol

import (
	"errors"
	"fmt"
	"os"
	"time"
)

// fill reads more bytes from the port into the receive buffer.
func (s *Session) fill(op, what string, timeout time.Duration, deadline time.Time) error {
	for {
		if !time.Now().Before(deadline) {
			return &TimeoutError{Operation: op, Expected: what, Timeout: timeout}
		}

		n, err := s.port.Read(s.buf[:])
		if n > 0 {
			s.rx = append(s.rx, s.buf[:n]...)
			return nil
		}
		if err != nil && !errors.Is(err, os.ErrDeadlineExceeded) {
			return fmt.Errorf("%s: read: %w", op, err)
		}
		time.Sleep(time.Millisecond)
	}
}

func (s *Session) readByte(op, what string, timeout time.Duration, deadline time.Time) (byte, error) {
	if len(s.rx) == 0 {
		if err := s.fill(op, what, timeout, deadline); err != nil {
			return 0, err
		}
	}
	b := s.rx[0]
	s.rx = s.rx[1:]
	return b, nil
}

func isTerminator(b byte) bool {
	return b == '\r' || b == '\n'
}

// readLine returns the next line without its terminator. A CR directly followed by LF,
// or LF by CR, ends a single line; the second character is consumed lazily at the start
// of the next read so a bare CR never blocks. Two equal terminators in a row yield an
// empty line.
func (s *Session) readLine(op, what string, timeout time.Duration) (string, error) {
	return s.readLineUntil(op, what, timeout, time.Now().Add(timeout))
}

func (s *Session) readLineUntil(op, what string, timeout time.Duration, deadline time.Time) (string, error) {
	var line []byte
	for {
		b, err := s.readByte(op, what, timeout, deadline)
		if err != nil {
			return "", err
		}

		if prev := s.pendingTerm; prev != 0 {
			s.pendingTerm = 0
			if isTerminator(b) && b != prev {
				continue
			}
		}

		if isTerminator(b) {
			s.pendingTerm = b
			return string(line), nil
		}
		line = append(line, b)
	}
}

// readRaw reads exactly n payload bytes. The pending partner of the last line
// terminator is discarded first when SkipLeadingByte is set.
func (s *Session) readRaw(op string, n int) ([]byte, error) {
	timeout := s.config.Timeout
	deadline := time.Now().Add(timeout)

	if s.pendingTerm != 0 {
		s.pendingTerm = 0
		if s.config.SkipLeadingByte {
			if _, err := s.readByte(op, "leading terminator", timeout, deadline); err != nil {
				return nil, err
			}
		}
	}

	out := make([]byte, 0, n)
	for len(out) < n {
		if len(s.rx) == 0 {
			if err := s.fill(op, fmt.Sprintf("%d payload bytes", n), timeout, deadline); err != nil {
				return nil, err
			}
		}
		take := n - len(out)
		if take > len(s.rx) {
			take = len(s.rx)
		}
		out = append(out, s.rx[:take]...)
		s.rx = s.rx[take:]
	}
	return out, nil
}

func (s *Session) writeRaw(p []byte) error {
	for len(p) > 0 {
		n, err := s.port.Write(p)
		if err != nil {
			return err
		}
		if n == 0 {
			return errNoProgress
		}
		p = p[n:]
	}
	return nil
}

func (s *Session) writeLine(line string) error {
	return s.writeRaw([]byte(line + "\r\n"))
}
