package protocol

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Config holds the session configuration.
type Config struct {
	// Timeout bounds every line or payload read after a command
	Timeout time.Duration

	// SyncTimeout bounds each step of the synchronization handshake
	SyncTimeout time.Duration

	// PollInterval is the port read timeout used between deadline checks
	PollInterval time.Duration

	// Logger receives command traces at debug level
	Logger logrus.FieldLogger

	// Echo is the echo state of the bootloader when the session starts
	Echo bool

	// Encoding selects the payload codec
	Encoding Encoding

	// SkipLeadingByte consumes one line terminator before binary read-back data
	SkipLeadingByte bool
}

// defaultConfig returns the default configuration.
func defaultConfig() Config {
	return Config{
		Timeout:         DefaultTimeout,
		SyncTimeout:     DefaultSyncTimeout,
		PollInterval:    DefaultPollInterval,
		Logger:          logrus.StandardLogger(),
		Echo:            true,
		Encoding:        EncodingText,
		SkipLeadingByte: true,
	}
}

// Option is a functional option for configuring a Session.
type Option func(*Config)

// WithTimeout sets the per-reply timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		if timeout > 0 {
			c.Timeout = timeout
		}
	}
}

// WithSyncTimeout sets the timeout of each handshake step.
func WithSyncTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		if timeout > 0 {
			c.SyncTimeout = timeout
		}
	}
}

// WithPollInterval sets the port read timeout.
func WithPollInterval(interval time.Duration) Option {
	return func(c *Config) {
		if interval > 0 {
			c.PollInterval = interval
		}
	}
}

// WithLogger sets the logger for command traces.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(c *Config) {
		if logger != nil {
			c.Logger = logger
		}
	}
}

// WithEcho sets the initial echo state. Bootloaders start with echo enabled.
func WithEcho(echo bool) Option {
	return func(c *Config) {
		c.Echo = echo
	}
}

// WithEncoding selects the payload encoding.
//
// Example:
//
//	s, err := protocol.NewSession(port, protocol.WithEncoding(protocol.EncodingBinary))
func WithEncoding(enc Encoding) Option {
	return func(c *Config) {
		c.Encoding = enc
	}
}

// WithLeadingByteSkip controls whether binary read-back discards one leading line
// terminator. Some bootloader revisions do not send it.
func WithLeadingByteSkip(skip bool) Option {
	return func(c *Config) {
		c.SkipLeadingByte = skip
	}
}
