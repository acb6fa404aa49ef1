package transport

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Line names a modem control output.
type Line int

const (
	// LineNone leaves the signal unconnected
	LineNone Line = iota
	LineDTR
	LineRTS
)

func (l Line) String() string {
	switch l {
	case LineDTR:
		return "dtr"
	case LineRTS:
		return "rts"
	default:
		return "none"
	}
}

// ParseLine parses "dtr", "rts" or "none".
func ParseLine(s string) (Line, error) {
	switch strings.ToLower(s) {
	case "dtr":
		return LineDTR, nil
	case "rts":
		return LineRTS, nil
	case "none", "":
		return LineNone, nil
	}
	return LineNone, fmt.Errorf("unknown control line %q", s)
}

// Config describes how to open and wire a serial port.
type Config struct {
	// BaudRate is the initial line speed
	BaudRate int

	// StopBits is 1 or 2
	StopBits int

	// ReadTimeout bounds a single Read. Reads that time out return (0, nil).
	ReadTimeout time.Duration

	// ResetLine drives the target's reset input
	ResetLine Line

	// BootLine drives the target's boot-select input
	BootLine Line

	// InvertReset and InvertBoot flip the level written for an asserted signal
	InvertReset bool
	InvertBoot  bool
}

// DefaultConfig returns 115200 baud, one stop bit, reset on DTR and boot-select on RTS.
func DefaultConfig() Config {
	return Config{
		BaudRate:    115200,
		StopBits:    1,
		ReadTimeout: 10 * time.Millisecond,
		ResetLine:   LineDTR,
		BootLine:    LineRTS,
	}
}

// ErrStopBits is returned for stop bit counts other than 1 and 2.
var ErrStopBits = errors.New("stop bits must be 1 or 2")

func (c Config) validate() error {
	if c.BaudRate <= 0 {
		return fmt.Errorf("invalid baud rate %d", c.BaudRate)
	}
	if c.StopBits != 1 && c.StopBits != 2 {
		return ErrStopBits
	}
	if c.ReadTimeout <= 0 {
		return fmt.Errorf("invalid read timeout %v", c.ReadTimeout)
	}
	if c.ResetLine != LineNone && c.ResetLine == c.BootLine {
		return fmt.Errorf("reset and boot-select both on %v", c.ResetLine)
	}
	return nil
}

var errTermStopBits = errors.New("only one stop bit is supported")
