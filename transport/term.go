//go:build !windows

package transport

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/pkg/term"
)

// TermPort is a port opened with github.com/pkg/term.
type TermPort struct {
	signals
	t    *term.Term
	name string
}

// OpenTerm opens name in raw mode with cfg. Only one stop bit is supported.
func OpenTerm(name string, cfg Config) (*TermPort, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.StopBits != 1 {
		return nil, fmt.Errorf("term backend: %w", errTermStopBits)
	}

	t, err := term.Open(name, term.Speed(cfg.BaudRate), term.RawMode, term.ReadTimeout(cfg.ReadTimeout))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}

	p := &TermPort{signals: signals{lines: t, cfg: cfg}, t: t, name: name}
	if err := p.SetReset(false); err != nil {
		t.Close()
		return nil, err
	}
	if err := p.SetBootSelect(false); err != nil {
		t.Close()
		return nil, err
	}
	if err := t.Flush(); err != nil {
		t.Close()
		return nil, fmt.Errorf("flush %s: %w", name, err)
	}

	return p, nil
}

// Read returns (0, nil) when nothing arrives within the read timeout.
func (p *TermPort) Read(b []byte) (int, error) {
	n, err := p.t.Read(b)
	if n == 0 && errors.Is(err, io.EOF) {
		return 0, nil
	}
	return n, err
}

func (p *TermPort) Write(b []byte) (int, error) {
	return p.t.Write(b)
}

// SetReadTimeout changes the per-read timeout.
func (p *TermPort) SetReadTimeout(timeout time.Duration) error {
	return p.t.SetReadTimeout(timeout)
}

// SetBaudRate changes line speed. stopBits must be 1.
func (p *TermPort) SetBaudRate(baud, stopBits int) error {
	if stopBits != 1 {
		return errTermStopBits
	}
	if err := p.t.SetSpeed(baud); err != nil {
		return fmt.Errorf("set speed on %s: %w", p.name, err)
	}
	return nil
}

func (p *TermPort) Close() error {
	p.t.Restore()
	return p.t.Close()
}

// Name returns the device name the port was opened with.
func (p *TermPort) Name() string {
	return p.name
}
