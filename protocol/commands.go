package protocol

import (
	"errors"
	"fmt"

	"github.com/moffa90/go-lpcisp/geometry"
)

// Unlock enables the flash write, erase and go commands.
func (s *Session) Unlock() error {
	_, err := s.command(commandName(CmdUnlock), CmdUnlock, 0, UnlockCode)
	return err
}

// ReadPartID reads n part identification words. The first word is the
// command result value; further words follow on their own lines.
func (s *Session) ReadPartID(n int) ([]uint32, error) {
	if n < 1 {
		n = 1
	}
	return s.command(commandName(CmdReadPartID), CmdReadPartID, n)
}

// ReadExtraValues reads n more value lines after a command that already completed,
// as needed by parts that return a variable number of ID words.
func (s *Session) ReadExtraValues(op string, n int) ([]uint32, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.readValues(op, n)
}

// ReadBootCodeVersion reads the bootloader version.
func (s *Session) ReadBootCodeVersion() (BootCodeVersion, error) {
	values, err := s.command(commandName(CmdReadBootCode), CmdReadBootCode, bootCodeVersionValues)
	if err != nil {
		return BootCodeVersion{}, err
	}
	return ParseBootCodeVersion(values)
}

// ReadSerialNumber reads the device serial number.
func (s *Session) ReadSerialNumber() (SerialNumber, error) {
	values, err := s.command(commandName(CmdReadSerial), CmdReadSerial, serialNumberValues)
	if err != nil {
		return SerialNumber{}, err
	}
	return ParseSerialNumber(values)
}

// sectorParams renders the sector arguments of P, E and I. Banked sectors carry
// the bank number as a trailing argument.
func sectorParams(r geometry.SectorRange) []interface{} {
	params := []interface{}{r.First.Index(), r.Last.Index()}
	if r.First.Banked() {
		params = append(params, r.Bank())
	}
	return params
}

// Prepare makes the sectors in r writable for the next erase or copy.
func (s *Session) Prepare(r geometry.SectorRange) error {
	_, err := s.command(commandName(CmdPrepare), CmdPrepare, 0, sectorParams(r)...)
	return err
}

// Erase erases the sectors in r. They must have been prepared.
func (s *Session) Erase(r geometry.SectorRange) error {
	_, err := s.command(commandName(CmdErase), CmdErase, 0, sectorParams(r)...)
	return err
}

// BlankCheck checks whether the sectors in r are erased. A non-blank range is
// reported in the result, not as an error.
func (s *Session) BlankCheck(r geometry.SectorRange) (BlankCheckResult, error) {
	op := commandName(CmdBlankCheck)
	_, err := s.command(op, CmdBlankCheck, 0, sectorParams(r)...)
	if err == nil {
		return BlankCheckResult{Blank: true}, nil
	}

	var pe *ProtocolError
	if !errors.As(err, &pe) || pe.StatusCode != ErrSectorNotBlank {
		return BlankCheckResult{}, err
	}

	values, err := s.readValues(op, blankCheckValues)
	if err != nil {
		return BlankCheckResult{}, err
	}
	return ParseBlankCheck(values)
}

// CopyRAMToFlash programs n bytes from RAM at src to flash at dst. The target
// sectors must have been prepared.
func (s *Session) CopyRAMToFlash(dst, src uint32, n int) error {
	_, err := s.command(commandName(CmdCopyRAMToFlash), CmdCopyRAMToFlash, 0, dst, src, n)
	return err
}

// Compare compares n bytes at a and b. A difference is reported in the result.
func (s *Session) Compare(a, b uint32, n int) (CompareResult, error) {
	op := commandName(CmdCompare)
	_, err := s.command(op, CmdCompare, 0, a, b, n)
	if err == nil {
		return CompareResult{Equal: true}, nil
	}

	var pe *ProtocolError
	if !errors.As(err, &pe) || pe.StatusCode != ErrCompare {
		return CompareResult{}, err
	}

	values, err := s.readValues(op, compareValues)
	if err != nil {
		return CompareResult{}, err
	}
	return ParseCompare(values)
}

// Go starts execution at addr in Thumb or ARM mode. On success the bootloader
// stops answering, so the session is left idle but should not be reused.
func (s *Session) Go(addr uint32, thumb bool) error {
	mode := "A"
	if thumb {
		mode = "T"
	}
	_, err := s.command(commandName(CmdGo), CmdGo, 0, addr, mode)
	return err
}

// SetActiveBank selects the flash bank the device boots from.
func (s *Session) SetActiveBank(bank int) error {
	if bank < 0 {
		return fmt.Errorf("invalid bank %d", bank)
	}
	_, err := s.command(commandName(CmdSetActiveBank), CmdSetActiveBank, 0, bank)
	return err
}
