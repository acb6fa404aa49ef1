package protocol

import "time"

// Handshake tokens.
const (
	// SyncQuery starts baud rate detection
	SyncQuery = "?"

	// SyncToken is the synchronization reply and confirmation
	SyncToken = "Synchronized"

	// OKToken confirms a handshake step or a checksum block
	OKToken = "OK"

	// ResendToken is sent by the bootloader when a block checksum does not match
	ResendToken = "RESEND"
)

// Command codes of the ISP command set.
const (
	// CmdUnlock unlocks flash write, erase and go commands
	CmdUnlock = 'U'

	// CmdSetBaudRate changes the UART baud rate and stop bits
	CmdSetBaudRate = 'B'

	// CmdEcho switches command echo on or off
	CmdEcho = 'A'

	// CmdWriteToRAM announces a payload written to RAM
	CmdWriteToRAM = 'W'

	// CmdReadMemory requests a payload read from memory
	CmdReadMemory = 'R'

	// CmdPrepare prepares sectors for a write or erase operation
	CmdPrepare = 'P'

	// CmdCopyRAMToFlash programs flash from RAM
	CmdCopyRAMToFlash = 'C'

	// CmdGo starts executing at an address
	CmdGo = 'G'

	// CmdErase erases sectors
	CmdErase = 'E'

	// CmdBlankCheck checks sectors for the erased state
	CmdBlankCheck = 'I'

	// CmdReadPartID reads the part identification words
	CmdReadPartID = 'J'

	// CmdReadBootCode reads the boot code version
	CmdReadBootCode = 'K'

	// CmdCompare compares two memory ranges
	CmdCompare = 'M'

	// CmdReadSerial reads the device serial number
	CmdReadSerial = 'N'

	// CmdSetActiveBank selects the boot flash bank on banked parts
	CmdSetActiveBank = 'S'
)

// Result codes returned by the bootloader.
const (
	StatusSuccess         = 0
	ErrInvalidCommand     = 1
	ErrSrcAddr            = 2
	ErrDstAddr            = 3
	ErrSrcAddrNotMapped   = 4
	ErrDstAddrNotMapped   = 5
	ErrCount              = 6
	ErrInvalidSector      = 7
	ErrSectorNotBlank     = 8
	ErrSectorNotPrepared  = 9
	ErrCompare            = 10
	ErrBusy               = 11
	ErrParam              = 12
	ErrAddr               = 13
	ErrAddrNotMapped      = 14
	ErrCmdLocked          = 15
	ErrInvalidCode        = 16
	ErrInvalidBaudRate    = 17
	ErrInvalidStopBit     = 18
	ErrCodeReadProtection = 19
	ErrInvalidFlashUnit   = 20
	ErrUserCodeChecksum   = 21
	ErrSettingActiveBank  = 22
)

// UnlockCode is the magic number accepted by CmdUnlock.
const UnlockCode = 23130

// Text payload framing.
const (
	// BytesPerLine is the number of raw bytes carried by one uuencoded line
	BytesPerLine = 45

	// LinesPerBlock is the number of lines between two checksum exchanges
	LinesPerBlock = 20
)

// Default timing.
const (
	DefaultTimeout      = time.Second
	DefaultSyncTimeout  = 500 * time.Millisecond
	DefaultPollInterval = 20 * time.Millisecond
)
