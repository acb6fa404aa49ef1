// Package bootloader provides a high-level API for flashing NXP LPC microcontrollers
// through their ISP bootloader.
//
// # Overview
//
// A Programmer turns a firmware image into ISP commands:
//   - Planning which sectors the image covers
//   - Unlocking and erasing those sectors, eagerly or after a blank check
//   - Staging the image in chunk sized windows padded with 0xFF
//   - Patching the reset vector checksum and enforcing the CRP policy
//   - Transferring each chunk to free RAM and copying it to flash
//   - Optionally comparing flash with the RAM copy
//
// # Basic Usage
//
//	port, err := transport.OpenSerial("/dev/ttyUSB0", transport.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer port.Close()
//
//	session, err := protocol.NewSession(port)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := session.Synchronize(12000); err != nil {
//	    log.Fatal(err)
//	}
//
//	member, _, err := bootloader.Identify(ctx, session)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	img, err := firmware.ParseHexFile("blinky.hex")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	prog := bootloader.New(session, member)
//	if err := prog.Write(ctx, img); err != nil {
//	    log.Fatal(err)
//	}
//
// # Configuration Options
//
//	prog := bootloader.New(session, member,
//	    bootloader.WithProgressCallback(progressFunc),
//	    bootloader.WithLogger(logrus.WithField("port", "ttyUSB0")),
//	    bootloader.WithEraseMode(bootloader.EraseOnDemand),
//	    bootloader.WithVerifyAfterProgram(true),
//	    bootloader.WithCRP(bootloader.CRPPolicy{Level: bootloader.CRP1, MaxLevel: bootloader.CRP1}),
//	)
//
// # Code Read Protection
//
// The CRP word is rewritten while staging the chunk that holds it. The desired
// level may not exceed the allowed maximum, and levels 3 and NO_ISP are only
// written when the image already carries the same level and both policy levels
// agree. An unrecognized word in the image is never overwritten.
//
// # Context Support
//
// The context is checked between protocol exchanges. A single exchange is never
// interrupted; it completes or times out.
//
// # Error Handling
//
// Every failure is returned as *OperationError naming the step, chunk, address
// and sector. The wrapped error is one of:
//   - protocol.ProtocolError: Bootloader returned a non-zero result code
//   - protocol.TimeoutError, protocol.MismatchError: Wire level failures
//   - geometry.RangeError, geometry.ErrNoTransferRAM: Image does not fit the device
//   - PolicyError: CRP policy refused the image
//   - ChecksumError: Chunk too small for the vector table
//   - VerificationError: Flash differs from the staged chunk
package bootloader
