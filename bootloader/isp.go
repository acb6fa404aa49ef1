package bootloader

import "time"

// Signals drives the reset and boot-select lines of the target.
// true means asserted.
type Signals interface {
	SetReset(asserted bool) error
	SetBootSelect(asserted bool) error
}

// Reset timing.
const (
	// ResetPulse is how long reset is held asserted
	ResetPulse = 50 * time.Millisecond

	// BootSettle is how long the boot ROM needs after reset before it samples
	// the boot-select pin and starts the bootloader
	BootSettle = 100 * time.Millisecond
)

// EnterISP resets the target with boot-select asserted so that it starts the
// ISP bootloader. Boot-select is released after the bootloader has started.
// sleep is called for every wait; pass time.Sleep outside tests.
func EnterISP(s Signals, sleep func(time.Duration)) error {
	steps := []func() error{
		func() error { return s.SetBootSelect(true) },
		func() error { return s.SetReset(true) },
		func() error { sleep(ResetPulse); return nil },
		func() error { return s.SetReset(false) },
		func() error { sleep(BootSettle); return nil },
		func() error { return s.SetBootSelect(false) },
	}
	return run(steps)
}

// ResetToRun resets the target with boot-select released so that it starts the
// user application.
func ResetToRun(s Signals, sleep func(time.Duration)) error {
	steps := []func() error{
		func() error { return s.SetBootSelect(false) },
		func() error { return s.SetReset(true) },
		func() error { sleep(ResetPulse); return nil },
		func() error { return s.SetReset(false) },
	}
	return run(steps)
}

func run(steps []func() error) error {
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}
