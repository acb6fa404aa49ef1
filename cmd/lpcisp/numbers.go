package main

import (
	"fmt"
	"strconv"
)

// parseAddress accepts decimal, 0x hex and 0 octal numbers up to 32 bits.
func parseAddress(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q", s)
	}
	return uint32(v), nil
}
