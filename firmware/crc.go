package firmware

import (
	"encoding/binary"

	"github.com/snksoft/crc"
)

var crcTable = crc.NewTable(crc.CRC32)

// Fingerprint returns a CRC-32 over every segment's address and data.
func (img *Image) Fingerprint() uint32 {
	h := crc.NewHashWithTable(crcTable)

	var addr [4]byte
	for _, s := range img.Segments {
		binary.LittleEndian.PutUint32(addr[:], s.Address)
		h.Update(addr[:])
		h.Update(s.Data)
	}

	return h.CRC32()
}
