package firmware

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/marcinbor85/gohex"
)

// ParseHexFile parses an Intel HEX file from the given path.
func ParseHexFile(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return ParseHex(f)
}

// ParseHex parses Intel HEX records from any io.Reader.
func ParseHex(r io.Reader) (*Image, error) {
	mem := gohex.NewMemory()
	if err := mem.ParseIntelHex(r); err != nil {
		return nil, fmt.Errorf("failed to parse Intel HEX: %w", err)
	}

	var segments []Segment
	for _, seg := range mem.GetDataSegments() {
		segments = append(segments, Segment{Address: seg.Address, Data: seg.Data})
	}

	img, err := NewImage(segments...)
	if err != nil {
		return nil, err
	}
	if img.Empty() {
		return nil, fmt.Errorf("Intel HEX file contains no data")
	}

	if entry, ok := mem.GetStartAddress(); ok {
		img.Entry, img.HasEntry = entry, true
	}

	return img, nil
}

// LoadBinary reads a raw binary image and places it at base.
func LoadBinary(r io.Reader, base uint32) (*Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read binary: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("binary image is empty")
	}

	return NewImage(Segment{Address: base, Data: data})
}

// Load reads an image file, choosing the format from its extension: .hex and
// .ihex are Intel HEX, anything else is a raw binary placed at base.
func Load(path string, base uint32) (*Image, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".hex", ".ihex", ".ihx":
		return ParseHexFile(path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return LoadBinary(f, base)
}
