package ispsim

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/moffa90/go-lpcisp/geometry"
	"github.com/moffa90/go-lpcisp/protocol"
)

type state int

const (
	stateHalted state = iota
	stateAutobaud
	stateSyncConfirm
	stateCrystal
	stateCommand
	stateWriteText
	stateWriteBinary
	stateReadText
	stateRunning
)

// Device is a simulated ISP bootloader. It is safe for concurrent use.
type Device struct {
	mu sync.Mutex

	member   *geometry.Member
	flash    [][]byte
	regions  []geometry.Region
	ram      [][]byte
	binary   bool
	noLeadLF bool
	bootCode [2]uint32
	serial   [4]uint32

	state    state
	echo     bool
	unlocked bool
	prepared map[geometry.Sector]bool
	baud     int
	crystal  int

	in  []byte
	out []byte

	// payload transfer in progress
	xferAddr  uint32
	xferData  []byte
	xferPos   int
	xferLines int
	xferSum   uint32

	activeBank int

	failures map[byte]int
	counts   map[byte]int

	reset, bootSelect bool
	started           bool
	startAddr         uint32
	startThumb        bool
}

// Option configures a Device.
type Option func(*Device)

// WithBootCodeVersion sets the version reported by the K command.
func WithBootCodeVersion(major, minor uint32) Option {
	return func(d *Device) { d.bootCode = [2]uint32{major, minor} }
}

// WithSerialNumber sets the words reported by the N command.
func WithSerialNumber(words [4]uint32) Option {
	return func(d *Device) { d.serial = words }
}

// WithoutLeadingLF ends the result line of binary transfers with a bare CR, as
// some bootloader revisions do.
func WithoutLeadingLF() Option {
	return func(d *Device) { d.noLeadLF = true }
}

// New returns a device in ISP mode waiting for the synchronization query.
func New(m *geometry.Member, opts ...Option) *Device {
	d := &Device{
		member:   m,
		binary:   m.Family.Binary,
		bootCode: [2]uint32{4, 13},
		serial:   [4]uint32{0x0A0B0C0D, 0x01020304, 0xDEADBEEF, 0x00C0FFEE},
		failures: make(map[byte]int),
		counts:   make(map[byte]int),
	}

	for b := 0; b < m.BankCount(); b++ {
		d.flash = append(d.flash, bytes.Repeat([]byte{0xFF}, int(m.BankSize())))
	}
	for _, r := range m.Regions() {
		d.regions = append(d.regions, r)
		d.ram = append(d.ram, make([]byte, r.Size))
	}

	for _, opt := range opts {
		opt(d)
	}

	d.enterISP()
	return d
}

func (d *Device) enterISP() {
	d.state = stateAutobaud
	d.echo = true
	d.unlocked = false
	d.prepared = make(map[geometry.Sector]bool)
	d.in, d.out = nil, nil
	d.started = false
}

// Read returns pending output. It never blocks; no data is (0, nil).
func (d *Device) Read(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := copy(p, d.out)
	d.out = d.out[n:]
	return n, nil
}

// Write feeds bytes to the bootloader.
func (d *Device) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.in = append(d.in, p...)
	d.process()
	return len(p), nil
}

// SetReadTimeout is a no-op; Read never blocks.
func (d *Device) SetReadTimeout(time.Duration) error { return nil }

// SetBaudRate is accepted for any rate.
func (d *Device) SetBaudRate(baud, stopBits int) error { return nil }

// Close is a no-op.
func (d *Device) Close() error { return nil }

// SetReset drives the reset line. Releasing it restarts the device in ISP mode
// when boot-select is asserted and in the user application otherwise.
func (d *Device) SetReset(asserted bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if asserted {
		d.reset = true
		d.state = stateHalted
		return nil
	}
	if d.reset {
		d.reset = false
		if d.bootSelect {
			d.enterISP()
		} else {
			d.state = stateRunning
			d.started = true
			d.startAddr = 0
		}
	}
	return nil
}

// SetBootSelect drives the boot-select line.
func (d *Device) SetBootSelect(asserted bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.bootSelect = asserted
	return nil
}

// Fail makes every following command with code return status until cleared with
// status 0.
func (d *Device) Fail(code byte, status int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if status == 0 {
		delete(d.failures, code)
		return
	}
	d.failures[code] = status
}

// Count returns how often a command was received.
func (d *Device) Count(code byte) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.counts[code]
}

// Started reports whether the device left the bootloader and where it started.
func (d *Device) Started() (addr uint32, thumb bool, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.startAddr, d.startThumb, d.started
}

// ActiveBank returns the boot bank last selected with the S command.
func (d *Device) ActiveBank() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.activeBank
}

// InISP reports whether the bootloader is running.
func (d *Device) InISP() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state != stateHalted && d.state != stateRunning
}

// Echo reports the device's echo setting.
func (d *Device) Echo() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.echo
}

// BaudRate returns the last baud rate set with the B command.
func (d *Device) BaudRate() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.baud
}

// Memory returns a copy of n bytes of flash or RAM at addr, or nil when the range
// is not mapped.
func (d *Device) Memory(addr uint32, n int) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()

	if m := d.span(addr, n); m != nil {
		return append([]byte(nil), m...)
	}
	return nil
}

// LoadFlash stores data in flash without the erase rules, for preparing tests.
func (d *Device) LoadFlash(addr uint32, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	m := d.flashSpan(addr, len(data))
	if m == nil {
		return fmt.Errorf("0x%08X+%d is not flash", addr, len(data))
	}
	copy(m, data)
	return nil
}

func (d *Device) flashSpan(addr uint32, n int) []byte {
	bank, offset, ok := d.member.BankOf(addr)
	if !ok || uint64(offset)+uint64(n) > uint64(len(d.flash[bank])) {
		return nil
	}
	return d.flash[bank][offset : offset+uint32(n)]
}

func (d *Device) ramSpan(addr uint32, n int) []byte {
	for i, r := range d.regions {
		if r.Contains(addr) && uint64(addr)+uint64(n) <= r.Top() {
			off := addr - r.Base
			return d.ram[i][off : off+uint32(n)]
		}
	}
	return nil
}

func (d *Device) span(addr uint32, n int) []byte {
	if m := d.flashSpan(addr, n); m != nil {
		return m
	}
	return d.ramSpan(addr, n)
}

func (d *Device) send(lines ...string) {
	for _, l := range lines {
		d.out = append(d.out, l...)
		d.out = append(d.out, '\r', '\n')
	}
}

func (d *Device) sendValues(code int, values ...uint32) {
	d.send(strconv.Itoa(code))
	for _, v := range values {
		d.send(strconv.FormatUint(uint64(v), 10))
	}
}

// nextLine removes one LF terminated line from the input, without CR or LF.
func (d *Device) nextLine() (string, bool) {
	i := bytes.IndexByte(d.in, '\n')
	if i < 0 {
		return "", false
	}
	line := strings.TrimRight(string(d.in[:i]), "\r")
	d.in = d.in[i+1:]
	return line, true
}

func (d *Device) process() {
	for {
		switch d.state {
		case stateHalted, stateRunning:
			d.in = nil
			return

		case stateAutobaud:
			i := bytes.IndexByte(d.in, '?')
			if i < 0 {
				d.in = nil
				return
			}
			d.in = d.in[i+1:]
			d.send(protocol.SyncToken)
			d.state = stateSyncConfirm

		case stateWriteBinary:
			if len(d.in) == 0 {
				return
			}
			n := len(d.xferData) - d.xferPos
			if n > len(d.in) {
				n = len(d.in)
			}
			chunk := d.in[:n]
			copy(d.xferData[d.xferPos:], chunk)
			if d.echo {
				d.out = append(d.out, chunk...)
			}
			d.in = d.in[n:]
			d.xferPos += n
			if d.xferPos == len(d.xferData) {
				copy(d.ramSpan(d.xferAddr, len(d.xferData)), d.xferData)
				d.state = stateCommand
			}

		default:
			line, ok := d.nextLine()
			if !ok {
				return
			}
			if d.echo {
				d.send(line)
			}
			d.handleLine(line)
		}
	}
}

func (d *Device) handleLine(line string) {
	switch d.state {
	case stateSyncConfirm:
		if line == protocol.SyncToken {
			d.send(protocol.OKToken)
			d.state = stateCrystal
		} else {
			d.state = stateAutobaud
		}

	case stateCrystal:
		if khz, err := strconv.Atoi(line); err == nil {
			d.crystal = khz
			d.send(protocol.OKToken)
			d.state = stateCommand
			return
		}
		d.state = stateCommand
		d.command(line)

	case stateCommand:
		d.command(line)

	case stateWriteText:
		d.writeTextLine(line)

	case stateReadText:
		if line == protocol.OKToken {
			if d.xferPos >= len(d.xferData) {
				d.state = stateCommand
				return
			}
			d.sendBlock()
		} else if line == protocol.ResendToken {
			d.xferPos -= d.xferLines * protocol.BytesPerLine
			if d.xferPos < 0 {
				d.xferPos = 0
			}
			d.sendBlock()
		}
	}
}

func (d *Device) writeTextLine(line string) {
	if d.xferLines == protocol.LinesPerBlock || d.xferPos == len(d.xferData) {
		sum, err := strconv.ParseUint(line, 10, 32)
		if err != nil || uint32(sum) != d.xferSum {
			d.xferPos -= d.xferLines * protocol.BytesPerLine
			if d.xferPos < 0 {
				d.xferPos = 0
			}
			d.xferLines, d.xferSum = 0, 0
			d.send(protocol.ResendToken)
			return
		}

		d.send(protocol.OKToken)
		d.xferLines, d.xferSum = 0, 0
		if d.xferPos == len(d.xferData) {
			copy(d.ramSpan(d.xferAddr, len(d.xferData)), d.xferData)
			d.state = stateCommand
		}
		return
	}

	data, err := protocol.DecodeLine(line)
	if err != nil || d.xferPos+len(data) > len(d.xferData) {
		d.state = stateCommand
		return
	}
	copy(d.xferData[d.xferPos:], data)
	d.xferPos += len(data)
	d.xferLines++
	d.xferSum += protocol.Checksum(data)
}

// sendBlock sends the next text block of a read and its checksum.
func (d *Device) sendBlock() {
	var sum uint32
	lines := 0
	for lines < protocol.LinesPerBlock && d.xferPos < len(d.xferData) {
		end := d.xferPos + protocol.BytesPerLine
		if end > len(d.xferData) {
			end = len(d.xferData)
		}
		chunk := d.xferData[d.xferPos:end]
		d.send(protocol.EncodeLine(chunk))
		sum += protocol.Checksum(chunk)
		d.xferPos = end
		lines++
	}
	d.xferLines = lines
	d.send(strconv.FormatUint(uint64(sum), 10))
}

func (d *Device) resultTerminator() {
	if d.noLeadLF {
		d.out = append(d.out, '\r')
	} else {
		d.out = append(d.out, '\r', '\n')
	}
}

func parseArgs(fields []string) ([]uint32, bool) {
	out := make([]uint32, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseUint(f, 10, 32)
		if err != nil {
			return nil, false
		}
		out = append(out, uint32(v))
	}
	return out, true
}

func (d *Device) command(line string) {
	fields := strings.Fields(line)
	if len(fields) == 0 || len(fields[0]) != 1 {
		d.sendValues(protocol.ErrInvalidCommand)
		return
	}

	code := fields[0][0]
	d.counts[code]++
	if status, ok := d.failures[code]; ok {
		d.sendValues(status)
		return
	}

	// G takes a mode letter as its last argument
	if code == protocol.CmdGo {
		d.cmdGo(fields[1:])
		return
	}

	args, ok := parseArgs(fields[1:])
	if !ok {
		d.sendValues(protocol.ErrParam)
		return
	}

	switch code {
	case protocol.CmdUnlock:
		if len(args) != 1 || args[0] != protocol.UnlockCode {
			d.sendValues(protocol.ErrInvalidCode)
			return
		}
		d.unlocked = true
		d.sendValues(protocol.StatusSuccess)

	case protocol.CmdEcho:
		if len(args) != 1 || args[0] > 1 {
			d.sendValues(protocol.ErrParam)
			return
		}
		d.sendValues(protocol.StatusSuccess)
		d.echo = args[0] == 1

	case protocol.CmdSetBaudRate:
		if len(args) != 2 || args[0] == 0 {
			d.sendValues(protocol.ErrInvalidBaudRate)
			return
		}
		if args[1] != 1 && args[1] != 2 {
			d.sendValues(protocol.ErrInvalidStopBit)
			return
		}
		d.baud = int(args[0])
		d.sendValues(protocol.StatusSuccess)

	case protocol.CmdReadPartID:
		d.sendValues(protocol.StatusSuccess, d.member.IDs...)

	case protocol.CmdReadBootCode:
		d.sendValues(protocol.StatusSuccess, d.bootCode[:]...)

	case protocol.CmdReadSerial:
		d.sendValues(protocol.StatusSuccess, d.serial[:]...)

	case protocol.CmdPrepare, protocol.CmdErase, protocol.CmdBlankCheck:
		d.sectorCommand(code, args)

	case protocol.CmdWriteToRAM:
		d.cmdWrite(args)

	case protocol.CmdReadMemory:
		d.cmdRead(args)

	case protocol.CmdCopyRAMToFlash:
		d.cmdCopy(args)

	case protocol.CmdCompare:
		d.cmdCompare(args)

	case protocol.CmdSetActiveBank:
		if d.member.BankCount() == 1 {
			d.sendValues(protocol.ErrInvalidCommand)
			return
		}
		if len(args) != 1 || int(args[0]) >= d.member.BankCount() {
			d.sendValues(protocol.ErrSettingActiveBank)
			return
		}
		d.activeBank = int(args[0])
		d.sendValues(protocol.StatusSuccess)

	default:
		d.sendValues(protocol.ErrInvalidCommand)
	}
}

// sectors resolves the sector arguments of P, E and I.
func (d *Device) sectors(args []uint32) ([]geometry.Sector, int) {
	banked := d.member.BankCount() > 1
	if (banked && len(args) != 3) || (!banked && len(args) != 2) {
		return nil, protocol.ErrParam
	}

	bank := 0
	if banked {
		bank = int(args[2])
		if bank >= d.member.BankCount() {
			return nil, protocol.ErrInvalidFlashUnit
		}
	}

	first, last := int(args[0]), int(args[1])
	if first > last || last >= d.member.SectorCount() {
		return nil, protocol.ErrInvalidSector
	}

	out := make([]geometry.Sector, 0, last-first+1)
	for i := first; i <= last; i++ {
		out = append(out, d.member.MakeSector(bank, i))
	}
	return out, protocol.StatusSuccess
}

func (d *Device) sectorMemory(s geometry.Sector) []byte {
	addr, size, _ := d.member.SectorToAddress(s)
	return d.flashSpan(addr, int(size))
}

func (d *Device) sectorCommand(code byte, args []uint32) {
	sectors, status := d.sectors(args)
	if status != protocol.StatusSuccess {
		d.sendValues(status)
		return
	}

	switch code {
	case protocol.CmdPrepare:
		for _, s := range sectors {
			d.prepared[s] = true
		}
		d.sendValues(protocol.StatusSuccess)

	case protocol.CmdErase:
		if !d.unlocked {
			d.sendValues(protocol.ErrCmdLocked)
			return
		}
		for _, s := range sectors {
			if !d.prepared[s] {
				d.sendValues(protocol.ErrSectorNotPrepared)
				return
			}
		}
		for _, s := range sectors {
			mem := d.sectorMemory(s)
			for i := range mem {
				mem[i] = 0xFF
			}
		}
		d.prepared = make(map[geometry.Sector]bool)
		d.sendValues(protocol.StatusSuccess)

	case protocol.CmdBlankCheck:
		var offset uint32
		for _, s := range sectors {
			mem := d.sectorMemory(s)
			for i := 0; i+4 <= len(mem); i += 4 {
				if w := binary.LittleEndian.Uint32(mem[i:]); w != 0xFFFFFFFF {
					d.sendValues(protocol.ErrSectorNotBlank, offset+uint32(i), w)
					return
				}
			}
			offset += uint32(len(mem))
		}
		d.sendValues(protocol.StatusSuccess)
	}
}

func (d *Device) cmdWrite(args []uint32) {
	if len(args) != 2 {
		d.sendValues(protocol.ErrParam)
		return
	}
	addr, n := args[0], int(args[1])
	if addr%4 != 0 {
		d.sendValues(protocol.ErrAddr)
		return
	}
	if n%4 != 0 {
		d.sendValues(protocol.ErrCount)
		return
	}
	if d.ramSpan(addr, n) == nil {
		d.sendValues(protocol.ErrAddrNotMapped)
		return
	}

	if n == 0 {
		d.sendValues(protocol.StatusSuccess)
		return
	}

	d.xferAddr, d.xferData, d.xferPos = addr, make([]byte, n), 0
	d.xferLines, d.xferSum = 0, 0

	if d.binary {
		d.out = append(d.out, '0')
		d.resultTerminator()
		d.state = stateWriteBinary
		return
	}
	d.sendValues(protocol.StatusSuccess)
	d.state = stateWriteText
}

func (d *Device) crpLevel() int {
	off := d.member.Family.CRPOffset
	if off == 0 {
		return 0
	}
	switch binary.LittleEndian.Uint32(d.flash[0][off:]) {
	case 0x12345678:
		return 1
	case 0x87654321:
		return 2
	case 0x43218765:
		return 3
	}
	return 0
}

func (d *Device) cmdRead(args []uint32) {
	if len(args) != 2 {
		d.sendValues(protocol.ErrParam)
		return
	}
	addr, n := args[0], int(args[1])
	if addr%4 != 0 {
		d.sendValues(protocol.ErrAddr)
		return
	}
	if n%4 != 0 {
		d.sendValues(protocol.ErrCount)
		return
	}
	if d.crpLevel() > 0 {
		d.sendValues(protocol.ErrCodeReadProtection)
		return
	}
	mem := d.span(addr, n)
	if mem == nil {
		d.sendValues(protocol.ErrAddrNotMapped)
		return
	}

	d.xferData = append([]byte(nil), mem...)
	d.xferPos, d.xferLines = 0, 0

	if d.binary {
		d.out = append(d.out, '0')
		d.resultTerminator()
		d.out = append(d.out, d.xferData...)
		return
	}
	d.sendValues(protocol.StatusSuccess)
	d.state = stateReadText
	d.sendBlock()
}

func (d *Device) blockSizeValid(n int) bool {
	for _, bs := range d.member.Family.BlockSizes {
		if bs == n {
			return true
		}
	}
	return false
}

func (d *Device) cmdCopy(args []uint32) {
	if len(args) != 3 {
		d.sendValues(protocol.ErrParam)
		return
	}
	dst, src, n := args[0], args[1], int(args[2])

	if !d.unlocked {
		d.sendValues(protocol.ErrCmdLocked)
		return
	}
	if !d.blockSizeValid(n) {
		d.sendValues(protocol.ErrCount)
		return
	}
	if dst%uint32(d.member.Family.BlockSizes[0]) != 0 {
		d.sendValues(protocol.ErrDstAddr)
		return
	}
	if src%4 != 0 {
		d.sendValues(protocol.ErrSrcAddr)
		return
	}
	from := d.ramSpan(src, n)
	if from == nil {
		d.sendValues(protocol.ErrSrcAddrNotMapped)
		return
	}
	to := d.flashSpan(dst, n)
	if to == nil {
		d.sendValues(protocol.ErrDstAddrNotMapped)
		return
	}

	r, err := d.member.AddressRangeToSectorRange(dst, dst+uint32(n)-1)
	if err != nil {
		d.sendValues(protocol.ErrDstAddr)
		return
	}
	for i := r.First.Index(); i <= r.Last.Index(); i++ {
		if !d.prepared[d.member.MakeSector(r.Bank(), i)] {
			d.sendValues(protocol.ErrSectorNotPrepared)
			return
		}
	}

	// flash cells can only be cleared by programming
	for i := range to {
		to[i] &= from[i]
	}
	d.prepared = make(map[geometry.Sector]bool)
	d.sendValues(protocol.StatusSuccess)
}

func (d *Device) cmdCompare(args []uint32) {
	if len(args) != 3 {
		d.sendValues(protocol.ErrParam)
		return
	}
	a, b, n := args[0], args[1], int(args[2])
	if a%4 != 0 || b%4 != 0 {
		d.sendValues(protocol.ErrAddr)
		return
	}
	if n%4 != 0 {
		d.sendValues(protocol.ErrCount)
		return
	}
	x, y := d.span(a, n), d.span(b, n)
	if x == nil || y == nil {
		d.sendValues(protocol.ErrAddrNotMapped)
		return
	}

	for i := 0; i < n; i += 4 {
		if !bytes.Equal(x[i:i+4], y[i:i+4]) {
			d.sendValues(protocol.ErrCompare, uint32(i))
			return
		}
	}
	d.sendValues(protocol.StatusSuccess)
}

func (d *Device) cmdGo(fields []string) {
	if !d.unlocked {
		d.sendValues(protocol.ErrCmdLocked)
		return
	}
	if len(fields) != 2 || (fields[1] != "T" && fields[1] != "A") {
		d.sendValues(protocol.ErrParam)
		return
	}
	addr, err := strconv.ParseUint(fields[0], 10, 32)
	if err != nil {
		d.sendValues(protocol.ErrParam)
		return
	}

	d.sendValues(protocol.StatusSuccess)
	d.state = stateRunning
	d.started = true
	d.startAddr = uint32(addr)
	d.startThumb = fields[1] == "T"
}
