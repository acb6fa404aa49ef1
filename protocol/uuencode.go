package protocol

import "fmt"

// uuChar maps a 6-bit value to its printable character. Zero is sent as '`' rather
// than space so lines never carry trailing blanks.
func uuChar(v byte) byte {
	v &= 0x3F
	if v == 0 {
		return '`'
	}
	return v + ' '
}

func uuValue(c byte) (byte, error) {
	if c < ' ' || c > '`' {
		return 0, fmt.Errorf("invalid uuencode character 0x%02X", c)
	}
	return (c - ' ') & 0x3F, nil
}

// EncodeLine encodes up to BytesPerLine bytes as one uuencoded line: a length
// character followed by four characters per three bytes.
func EncodeLine(data []byte) string {
	if len(data) > BytesPerLine {
		panic(fmt.Sprintf("uuencode line of %d bytes exceeds %d", len(data), BytesPerLine))
	}

	out := make([]byte, 0, 1+(len(data)+2)/3*4)
	out = append(out, uuChar(byte(len(data))))

	for i := 0; i < len(data); i += 3 {
		var g [3]byte
		copy(g[:], data[i:])
		out = append(out,
			uuChar(g[0]>>2),
			uuChar(g[0]<<4|g[1]>>4),
			uuChar(g[1]<<2|g[2]>>6),
			uuChar(g[2]),
		)
	}

	return string(out)
}

// DecodeLine decodes one uuencoded line.
func DecodeLine(line string) ([]byte, error) {
	if len(line) == 0 {
		return nil, fmt.Errorf("empty uuencode line")
	}

	n, err := uuValue(line[0])
	if err != nil {
		return nil, err
	}
	if int(n) > BytesPerLine {
		return nil, fmt.Errorf("uuencode line length %d exceeds %d", n, BytesPerLine)
	}

	groups := (int(n) + 2) / 3
	if len(line) < 1+groups*4 {
		return nil, fmt.Errorf("uuencode line too short: %d characters for %d bytes", len(line), n)
	}

	out := make([]byte, 0, groups*3)
	for g := 0; g < groups; g++ {
		var c [4]byte
		for k := range c {
			if c[k], err = uuValue(line[1+g*4+k]); err != nil {
				return nil, err
			}
		}
		out = append(out, c[0]<<2|c[1]>>4, c[1]<<4|c[2]>>2, c[2]<<6|c[3])
	}

	return out[:n], nil
}

// Checksum returns the additive checksum of the decoded bytes of a block.
func Checksum(data []byte) uint32 {
	var sum uint32
	for _, b := range data {
		sum += uint32(b)
	}
	return sum
}
