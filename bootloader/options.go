package bootloader

import (
	"github.com/moffa90/go-lpcisp/geometry"
	"github.com/sirupsen/logrus"
)

// EraseMode selects how covered sectors are erased before programming.
type EraseMode int

const (
	// EraseEager prepares and erases every covered sector without checking it
	EraseEager EraseMode = iota

	// EraseOnDemand blank checks each covered sector and erases only dirty ones
	EraseOnDemand
)

func (m EraseMode) String() string {
	if m == EraseOnDemand {
		return "on-demand"
	}
	return "eager"
}

// Config is the programmer configuration assembled from Options.
type Config struct {
	ProgressCallback ProgressCallback
	Logger           logrus.FieldLogger

	// EraseMode selects eager or on-demand erasing
	EraseMode EraseMode

	// VerifyAfterProgram compares every committed chunk with its RAM copy
	VerifyAfterProgram bool

	// CRP is the code read protection policy applied while staging
	CRP CRPPolicy

	// ChunkSize overrides the automatically selected copy block size when non-zero
	ChunkSize int

	// RAMUsage overrides the member's bootloader RAM reservations when non-nil
	RAMUsage geometry.RAMUsage
}

func defaultConfig() Config {
	return Config{
		Logger:             logrus.StandardLogger(),
		EraseMode:          EraseEager,
		VerifyAfterProgram: true,
		CRP:                CRPPolicy{Level: CRPNone, MaxLevel: CRPNone},
	}
}

// Option configures a Programmer.
type Option func(*Config)

// WithProgressCallback installs a ProgressCallback.
func WithProgressCallback(callback ProgressCallback) Option {
	return func(c *Config) {
		c.ProgressCallback = callback
	}
}

// WithLogger routes programmer logs to logger. A nil logger is ignored.
//
//	prog := bootloader.New(session, member, bootloader.WithLogger(logrus.WithField("port", name)))
func WithLogger(logger logrus.FieldLogger) Option {
	return func(c *Config) {
		if logger != nil {
			c.Logger = logger
		}
	}
}

// WithEraseMode selects the erase strategy. Default is EraseEager.
func WithEraseMode(mode EraseMode) Option {
	return func(c *Config) {
		c.EraseMode = mode
	}
}

// WithVerifyAfterProgram toggles the compare after each copy (on by default).
func WithVerifyAfterProgram(verify bool) Option {
	return func(c *Config) {
		c.VerifyAfterProgram = verify
	}
}

// WithCRP sets the code read protection policy. The default writes the
// unprotected pattern and allows nothing else.
//
// Example:
//
//	prog := bootloader.New(session, member,
//	    bootloader.WithCRP(bootloader.CRPPolicy{Level: bootloader.CRP1, MaxLevel: bootloader.CRP2}),
//	)
func WithCRP(policy CRPPolicy) Option {
	return func(c *Config) {
		c.CRP = policy
	}
}

// WithChunkSize forces the copy block size. It must be one of the family's block sizes.
func WithChunkSize(size int) Option {
	return func(c *Config) {
		if size > 0 {
			c.ChunkSize = size
		}
	}
}

// WithRAMUsage replaces the bootloader RAM reservations used to find transfer RAM.
func WithRAMUsage(usage geometry.RAMUsage) Option {
	return func(c *Config) {
		c.RAMUsage = usage
	}
}
