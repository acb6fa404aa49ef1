package main

import (
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

var (
	flagPort        string
	flagBackend     string
	flagBaud        int
	flagCrystal     int
	flagDevice      string
	flagEcho        bool
	flagTimeout     time.Duration
	flagNoReset     bool
	flagResetLine   string
	flagBootLine    string
	flagInvertReset bool
	flagInvertBoot  bool
	flagVerbose     int

	logger = logrus.New()
)

var rootCmd = &cobra.Command{
	Use:   "lpcisp",
	Short: "Program NXP LPC microcontrollers over the serial ISP bootloader",
	Long: `lpcisp talks to the ROM bootloader of NXP LPC parts over a UART.

The target is put into ISP mode by pulsing reset with boot-select asserted
(DTR and RTS by default) unless --no-reset is given.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initLogger()
	},
}

func initLogger() {
	logger.SetFormatter(&prefixed.TextFormatter{
		TimestampFormat: "15:04:05",
		FullTimestamp:   true,
		ForceFormatting: true,
	})
	logger.SetOutput(os.Stderr)

	switch {
	case flagVerbose >= 2:
		logger.SetLevel(logrus.TraceLevel)
	case flagVerbose == 1:
		logger.SetLevel(logrus.DebugLevel)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flagPort, "port", "p", "", "serial port, e.g. /dev/ttyUSB0 or COM3")
	pf.StringVar(&flagBackend, "backend", "serial", "serial backend: serial or term")
	pf.IntVarP(&flagBaud, "baud", "b", 115200, "baud rate")
	pf.IntVarP(&flagCrystal, "crystal", "x", 12000, "target crystal frequency in kHz")
	pf.StringVarP(&flagDevice, "device", "d", "", "device name; detected from the part ID when empty")
	pf.BoolVar(&flagEcho, "echo", true, "leave bootloader echo enabled")
	pf.DurationVar(&flagTimeout, "timeout", 2*time.Second, "reply timeout")
	pf.BoolVar(&flagNoReset, "no-reset", false, "do not drive reset and boot-select")
	pf.StringVar(&flagResetLine, "reset-line", "dtr", "control line wired to reset: dtr, rts or none")
	pf.StringVar(&flagBootLine, "boot-line", "rts", "control line wired to boot-select: dtr, rts or none")
	pf.BoolVar(&flagInvertReset, "invert-reset", false, "invert the reset line level")
	pf.BoolVar(&flagInvertBoot, "invert-boot", false, "invert the boot-select line level")
	pf.CountVarP(&flagVerbose, "verbose", "v", "increase log verbosity (-v debug, -vv trace)")
}
