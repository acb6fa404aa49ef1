// Package firmware provides the sparse executable image written to flash.
//
// # Image Model
//
// An Image is a set of non-overlapping segments, each a start address and the
// bytes stored from there. Gaps between segments are not part of the image;
// the programmer pads them with the erased value 0xFF when a transfer chunk
// straddles one.
//
// # Loading
//
// Intel HEX files are parsed with gohex and keep their addresses and start
// address record:
//
//	img, err := firmware.ParseHexFile("blinky.hex")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("%d bytes in %d segments\n", img.Size(), len(img.Segments))
//
// Raw binaries carry no addresses and are placed at a base address:
//
//	img, err := firmware.LoadBinary(f, 0x00000000)
//
// Load picks the format from the file extension.
//
// # Fingerprint
//
// Fingerprint returns a CRC-32 over the segment addresses and contents. Two
// images with the same fingerprint write the same bytes to the same places.
package firmware
