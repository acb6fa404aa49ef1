// Package ispsim simulates an LPC ISP bootloader behind a byte stream.
//
// A Device models one geometry.Member: flash banks that can only clear bits
// until erased, RAM regions, the prepare/unlock rules of the command set and
// both payload encodings. It implements the port interfaces of the protocol
// and transport packages, so a Session can talk to it exactly as it would to
// a serial port:
//
//	member, _ := geometry.FindByName("LPC1768")
//	dev := ispsim.New(member)
//	session, _ := protocol.NewSession(dev)
//	_ = session.Synchronize(12000)
//
// Fail makes a command return a chosen result code, for exercising error paths.
package ispsim
