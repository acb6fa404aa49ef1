package transport

import "fmt"

// modemLines is implemented by both backends.
type modemLines interface {
	SetDTR(bool) error
	SetRTS(bool) error
}

// signals maps reset and boot-select onto modem control lines.
type signals struct {
	lines modemLines
	cfg   Config
}

func (s signals) set(line Line, invert, asserted bool) error {
	level := asserted != invert
	switch line {
	case LineDTR:
		return s.lines.SetDTR(level)
	case LineRTS:
		return s.lines.SetRTS(level)
	case LineNone:
		return nil
	}
	return fmt.Errorf("unknown control line %d", line)
}

// SetReset asserts or releases the target reset.
func (s signals) SetReset(asserted bool) error {
	if err := s.set(s.cfg.ResetLine, s.cfg.InvertReset, asserted); err != nil {
		return fmt.Errorf("set reset: %w", err)
	}
	return nil
}

// SetBootSelect asserts or releases the boot-select input.
func (s signals) SetBootSelect(asserted bool) error {
	if err := s.set(s.cfg.BootLine, s.cfg.InvertBoot, asserted); err != nil {
		return fmt.Errorf("set boot select: %w", err)
	}
	return nil
}
