// Package geometry describes the memory layout of ISP-programmable microcontroller families.
//
// # Overview
//
// A Family declares the flash sector layout, flash bank bases, on-chip RAM regions,
// the copy-RAM-to-flash block sizes and the reset vector checksum slot. A Member is one
// concrete part of a family: its flash and RAM sizes, its part identification words and
// the RAM its ISP bootloader reserves for itself.
//
// The package provides three groups of pure functions over that model:
//   - identification: IDsMatch, NameMatches, FindByID, FindByName
//   - sector mapping: AddressToSector, SectorToAddress, AddressRangeToSectorRange, BankLastSector
//   - transfer RAM: FreeWindows, Partition, ChunkCount, SelectChunkSize
//
// # Sector numbering
//
// Sectors are numbered per bank, walking the sector groups in declaration order:
//
//	bank 0: group 0 sectors, group 1 sectors, ...
//	bank 1: group 0 sectors, group 1 sectors, ...
//
// A Sector value carries the bank in its upper half. Families with a single bank use a
// bank field of zero, so their sector values are plain sector numbers.
//
// # Transfer RAM
//
// The bootloader keeps its stack and working buffers in on-chip RAM. FreeWindows subtracts
// those reservations from a RAM region, and Partition slices the remaining windows into
// equally sized, word aligned chunks that can be used as staging buffers:
//
//	m, _ := geometry.FindByName("LPC1768")
//	windows := m.TransferWindows()
//	size, err := m.SelectChunkSize(windows)
//	chunks := geometry.Partition(windows, size)
package geometry
