// Package protocol implements the line oriented ISP command protocol spoken by the
// serial bootloader of NXP LPC microcontrollers.
//
// # Protocol Overview
//
// After reset into ISP mode the bootloader auto-detects the baud rate from a "?" byte and
// answers with a synchronization handshake:
//
//	host:   ?
//	device: Synchronized\r\n
//	host:   Synchronized\r\n
//	device: Synchronized\r\n OK\r\n          (echo, then confirmation)
//	host:   12000\r\n                         (crystal frequency in kHz)
//	device: 12000\r\n OK\r\n
//
// Every further command is a single ASCII line answered by a numeric result code and,
// on success only, by zero or more numeric values, one per line:
//
//	host:   J\r\n
//	device: 0\r\n 637615927\r\n
//
// # Sessions
//
// A Session owns one connection and runs the request/response state machine:
//
//	s, err := protocol.NewSession(port, protocol.WithTimeout(time.Second))
//	if err := s.Synchronize(12000); err != nil {
//	    log.Fatal(err)
//	}
//	ids, err := s.ReadPartID(1)
//
// A well-formed non-zero result code is returned as a *ProtocolError and leaves the
// session usable. A timeout or an unexpected token moves the session to StateError;
// all later calls fail with ErrSessionFailed.
//
// # Payload Encodings
//
// The body of the W (write to RAM) and R (read memory) commands is moved either as
// uuencoded text lines with a running checksum every 20 lines (TextCodec), or as raw
// bytes (BinaryCodec) on parts whose bootloader has no text mode.
package protocol
