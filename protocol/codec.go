package protocol

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// Encoding selects how payload bytes are moved.
type Encoding int

const (
	// EncodingText moves payloads as uuencoded lines with block checksums
	EncodingText Encoding = iota

	// EncodingBinary moves payloads as raw bytes
	EncodingBinary
)

func (e Encoding) String() string {
	switch e {
	case EncodingText:
		return "text"
	case EncodingBinary:
		return "binary"
	default:
		return fmt.Sprintf("encoding(%d)", int(e))
	}
}

// Codec moves the body of a W or R command. The two implementations are
// TextCodec and BinaryCodec.
type Codec interface {
	writeBody(s *Session, op string, data []byte) error
	readBody(s *Session, op string, dst []byte) error
}

// Codec returns the codec for the encoding.
func (e Encoding) Codec() Codec {
	if e == EncodingBinary {
		return BinaryCodec{}
	}
	return TextCodec{}
}

// TextCodec transfers uuencoded lines and exchanges an additive checksum every
// LinesPerBlock lines and at the end of the payload.
type TextCodec struct{}

func (TextCodec) writeBody(s *Session, op string, data []byte) error {
	var sum uint32
	lines := 0

	for off := 0; off < len(data); {
		n := len(data) - off
		if n > BytesPerLine {
			n = BytesPerLine
		}
		chunk := data[off : off+n]
		line := EncodeLine(chunk)

		if err := s.writeLine(line); err != nil {
			return err
		}
		if err := s.expectEchoed(op, line, s.config.Timeout); err != nil {
			return err
		}

		sum += Checksum(chunk)
		lines++
		off += n

		if lines == LinesPerBlock || off == len(data) {
			if err := s.sendChecksum(op, sum); err != nil {
				return err
			}
			sum, lines = 0, 0
		}
	}

	return nil
}

// sendChecksum sends a block checksum and waits for its echo and the OK.
func (s *Session) sendChecksum(op string, sum uint32) error {
	text := strconv.FormatUint(uint64(sum), 10)
	if err := s.writeLine(text); err != nil {
		return err
	}
	if err := s.expectEchoed(op, text, s.config.Timeout); err != nil {
		return err
	}

	reply, err := s.readLine(op, OKToken, s.config.Timeout)
	if err != nil {
		return err
	}
	if reply != OKToken {
		return &MismatchError{Operation: op + " checksum", Expected: OKToken, Got: reply}
	}
	return nil
}

func (TextCodec) readBody(s *Session, op string, dst []byte) error {
	var sum uint32
	lines := 0
	received := 0

	for received < len(dst) {
		line, err := s.readLine(op, "data line", s.config.Timeout)
		if err != nil {
			return err
		}

		decoded, err := DecodeLine(line)
		if err != nil {
			return &MismatchError{Operation: op, Expected: "uuencoded line", Got: line}
		}
		if received+len(decoded) > len(dst) {
			return &MismatchError{Operation: op, Expected: fmt.Sprintf("%d bytes", len(dst)-received), Got: line}
		}

		copy(dst[received:], decoded)
		received += len(decoded)
		sum += Checksum(decoded)
		lines++

		if lines == LinesPerBlock || received == len(dst) {
			if err := s.confirmChecksum(op, sum); err != nil {
				return err
			}
			sum, lines = 0, 0
		}
	}

	return nil
}

// confirmChecksum reads the block checksum sent by the bootloader and answers OK
// when it matches. A mismatch fails the transfer.
func (s *Session) confirmChecksum(op string, sum uint32) error {
	line, err := s.readLine(op, "block checksum", s.config.Timeout)
	if err != nil {
		return err
	}

	want := strconv.FormatUint(uint64(sum), 10)
	if strings.TrimSpace(line) != want {
		return &MismatchError{Operation: op + " checksum", Expected: want, Got: line}
	}

	if err := s.writeLine(OKToken); err != nil {
		return err
	}
	return s.expectEchoed(op, OKToken, s.config.Timeout)
}

// BinaryCodec writes payloads verbatim and compares the echoed copy when echo is on.
type BinaryCodec struct{}

func (BinaryCodec) writeBody(s *Session, op string, data []byte) error {
	if err := s.writeRaw(data); err != nil {
		return err
	}
	if !s.echo {
		return nil
	}

	echo, err := s.readRaw(op, len(data))
	if err != nil {
		return err
	}
	if !bytes.Equal(echo, data) {
		i := 0
		for i < len(data) && echo[i] == data[i] {
			i++
		}
		return &MismatchError{
			Operation: op + " echo",
			Expected:  fmt.Sprintf("0x%02X at offset %d", data[i], i),
			Got:       fmt.Sprintf("0x%02X", echo[i]),
		}
	}
	return nil
}

func (BinaryCodec) readBody(s *Session, op string, dst []byte) error {
	data, err := s.readRaw(op, len(dst))
	if err != nil {
		return err
	}
	copy(dst, data)
	return nil
}

// WriteToRAM announces a payload with the W command and transfers it with the
// session's codec.
func (s *Session) WriteToRAM(addr uint32, data []byte) error {
	op := commandName(CmdWriteToRAM)
	if _, err := s.command(op, CmdWriteToRAM, 0, addr, len(data)); err != nil {
		return err
	}

	s.state = StateSending
	if err := s.encoding.Codec().writeBody(s, op, data); err != nil {
		return s.fail(err)
	}
	s.state = StateIdle
	return nil
}

// ReadMemory reads n bytes starting at addr with the R command.
func (s *Session) ReadMemory(addr uint32, n int) ([]byte, error) {
	op := commandName(CmdReadMemory)
	if _, err := s.command(op, CmdReadMemory, 0, addr, n); err != nil {
		return nil, err
	}

	s.state = StateReadingValues
	dst := make([]byte, n)
	if err := s.encoding.Codec().readBody(s, op, dst); err != nil {
		return nil, s.fail(err)
	}
	s.state = StateIdle
	return dst, nil
}
