package transport

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

// SerialPort is a port opened with go.bug.st/serial.
type SerialPort struct {
	signals
	port serial.Port
	name string
}

func serialMode(baud, stopBits int) (*serial.Mode, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	switch stopBits {
	case 1:
	case 2:
		mode.StopBits = serial.TwoStopBits
	default:
		return nil, ErrStopBits
	}
	return mode, nil
}

// OpenSerial opens name with cfg and releases both control signals.
func OpenSerial(name string, cfg Config) (*SerialPort, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	mode, err := serialMode(cfg.BaudRate, cfg.StopBits)
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	if err := port.SetReadTimeout(cfg.ReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", name, err)
	}

	p := &SerialPort{signals: signals{lines: port, cfg: cfg}, port: port, name: name}
	if err := p.SetReset(false); err != nil {
		port.Close()
		return nil, err
	}
	if err := p.SetBootSelect(false); err != nil {
		port.Close()
		return nil, err
	}
	if err := port.ResetInputBuffer(); err != nil {
		port.Close()
		return nil, fmt.Errorf("flush %s: %w", name, err)
	}

	return p, nil
}

// Read returns (0, nil) when nothing arrives within the read timeout.
func (p *SerialPort) Read(b []byte) (int, error) {
	return p.port.Read(b)
}

func (p *SerialPort) Write(b []byte) (int, error) {
	return p.port.Write(b)
}

// SetReadTimeout changes the per-read timeout.
func (p *SerialPort) SetReadTimeout(timeout time.Duration) error {
	return p.port.SetReadTimeout(timeout)
}

// SetBaudRate changes line speed and stop bits.
func (p *SerialPort) SetBaudRate(baud, stopBits int) error {
	mode, err := serialMode(baud, stopBits)
	if err != nil {
		return err
	}
	if err := p.port.SetMode(mode); err != nil {
		return fmt.Errorf("set mode on %s: %w", p.name, err)
	}
	return nil
}

func (p *SerialPort) Close() error {
	return p.port.Close()
}

// Name returns the device name the port was opened with.
func (p *SerialPort) Name() string {
	return p.name
}

// ListPorts returns the serial ports present on the system.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	return ports, nil
}
