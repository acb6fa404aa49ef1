// Package transport opens the serial link to an LPC target and drives its reset
// and boot-select lines through the modem control signals.
//
// Two backends are provided. OpenSerial uses go.bug.st/serial and works on every
// platform that library supports. OpenTerm uses github.com/pkg/term and is
// available on POSIX systems only.
//
// Both return ports that satisfy protocol.Port and bootloader.Signals:
//
//	port, err := transport.OpenSerial("/dev/ttyUSB0", transport.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer port.Close()
//
//	if err := bootloader.EnterISP(port, time.Sleep); err != nil {
//	    log.Fatal(err)
//	}
//	session, err := protocol.NewSession(port)
package transport
