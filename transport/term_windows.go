package transport

import (
	"errors"
	"time"
)

// TermPort is not available on Windows; use OpenSerial.
type TermPort struct {
	signals
}

// OpenTerm always fails on Windows.
func OpenTerm(name string, cfg Config) (*TermPort, error) {
	return nil, errors.New("term backend is not supported on windows")
}

func (p *TermPort) Read([]byte) (int, error)           { return 0, errors.ErrUnsupported }
func (p *TermPort) Write([]byte) (int, error)          { return 0, errors.ErrUnsupported }
func (p *TermPort) SetReadTimeout(time.Duration) error { return errors.ErrUnsupported }
func (p *TermPort) SetBaudRate(int, int) error         { return errors.ErrUnsupported }
func (p *TermPort) Close() error                       { return nil }
func (p *TermPort) Name() string                       { return "" }
