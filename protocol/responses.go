package protocol

import "fmt"

// Value line counts of the commands that return data.
const (
	bootCodeVersionValues = 2
	serialNumberValues    = 4
	blankCheckValues      = 2
	compareValues         = 1
)

// ParseBootCodeVersion parses the value lines of a K response.
//
// Data format:
//
//	<major>
//	<minor>
func ParseBootCodeVersion(values []uint32) (BootCodeVersion, error) {
	if len(values) != bootCodeVersionValues {
		return BootCodeVersion{}, fmt.Errorf("invalid boot code version response: got %d values, expected %d", len(values), bootCodeVersionValues)
	}
	return BootCodeVersion{Major: values[0], Minor: values[1]}, nil
}

// ParseSerialNumber parses the four value lines of an N response.
func ParseSerialNumber(values []uint32) (SerialNumber, error) {
	var sn SerialNumber
	if len(values) != serialNumberValues {
		return sn, fmt.Errorf("invalid serial number response: got %d values, expected %d", len(values), serialNumberValues)
	}
	copy(sn[:], values)
	return sn, nil
}

// ParseBlankCheck parses the value lines that follow a sector-not-blank result.
//
// Data format:
//
//	<offset of first non-blank word>
//	<content of that word>
func ParseBlankCheck(values []uint32) (BlankCheckResult, error) {
	if len(values) != blankCheckValues {
		return BlankCheckResult{}, fmt.Errorf("invalid blank check response: got %d values, expected %d", len(values), blankCheckValues)
	}
	return BlankCheckResult{Offset: values[0], Content: values[1]}, nil
}

// ParseCompare parses the value line that follows a compare-error result.
func ParseCompare(values []uint32) (CompareResult, error) {
	if len(values) != compareValues {
		return CompareResult{}, fmt.Errorf("invalid compare response: got %d values, expected %d", len(values), compareValues)
	}
	return CompareResult{Offset: values[0]}, nil
}
