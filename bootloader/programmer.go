package bootloader

import (
	"context"
	"fmt"
	"time"

	"github.com/boljen/go-bitmap"
	"github.com/moffa90/go-lpcisp/firmware"
	"github.com/moffa90/go-lpcisp/geometry"
	"github.com/moffa90/go-lpcisp/protocol"
	"github.com/sirupsen/logrus"
)

// Session is the subset of *protocol.Session the programmer drives.
type Session interface {
	Unlock() error
	ReadPartID(n int) ([]uint32, error)
	ReadExtraValues(op string, n int) ([]uint32, error)
	Prepare(r geometry.SectorRange) error
	Erase(r geometry.SectorRange) error
	BlankCheck(r geometry.SectorRange) (protocol.BlankCheckResult, error)
	WriteToRAM(addr uint32, data []byte) error
	ReadMemory(addr uint32, n int) ([]byte, error)
	CopyRAMToFlash(dst, src uint32, n int) error
	Compare(a, b uint32, n int) (protocol.CompareResult, error)
	Go(addr uint32, thumb bool) error
	SetActiveBank(bank int) error
}

type encodingSetter interface {
	SetEncoding(protocol.Encoding)
}

// vectorTableSize is the part of flash the boot ROM maps over itself while the
// bootloader runs, so it never compares equal.
const vectorTableSize = 64

// readBlockSize bounds a single R command.
const readBlockSize = 1024

// Programmer orchestrates flash operations on one identified device.
//
// Programmer is not safe for concurrent use: it owns the session for the
// duration of every call.
type Programmer struct {
	session Session
	member  *geometry.Member
	config  Config
	log     logrus.FieldLogger

	// erased tracks sectors erased during the current run, by ordinal
	erased bitmap.Bitmap
}

// New creates a Programmer for member over session. Families whose bootloader
// moves payloads in binary switch the session to binary encoding.
//
// Example:
//
//	member, _, err := bootloader.Identify(ctx, session)
//	prog := bootloader.New(session, member,
//	    bootloader.WithProgressCallback(progressFunc),
//	    bootloader.WithEraseMode(bootloader.EraseOnDemand),
//	)
func New(session Session, member *geometry.Member, opts ...Option) *Programmer {
	if session == nil {
		panic("session cannot be nil")
	}
	if member == nil {
		panic("member cannot be nil")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if member.Family.Binary {
		if s, ok := session.(encodingSetter); ok {
			s.SetEncoding(protocol.EncodingBinary)
		}
	}

	return &Programmer{
		session: session,
		member:  member,
		config:  cfg,
		log:     cfg.Logger.WithField("device", member.Name),
	}
}

// Member returns the device the programmer was created for.
func (p *Programmer) Member() *geometry.Member {
	return p.member
}

// Identify reads the part ID words and looks the device up in the device table.
// A second ID word is read only when a candidate family needs one.
func Identify(ctx context.Context, session Session) (*geometry.Member, []uint32, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, fmt.Errorf("cancelled: %w", err)
	}

	ids, err := session.ReadPartID(1)
	if err != nil {
		return nil, nil, fmt.Errorf("read part ID: %w", err)
	}

	if m, err := geometry.FindByID(ids); err == nil {
		return m, ids, nil
	}

	if needsMoreIDWords(ids) {
		more, err := session.ReadExtraValues("read part ID", geometry.MaxIDWords()-len(ids))
		if err != nil {
			return nil, ids, fmt.Errorf("read part ID: %w", err)
		}
		ids = append(ids, more...)
	}

	m, err := geometry.FindByID(ids)
	if err != nil {
		return nil, ids, fmt.Errorf("part ID 0x%08X: %w", ids[0], err)
	}
	return m, ids, nil
}

// needsMoreIDWords reports whether a device with more ID words matches the first ones.
func needsMoreIDWords(ids []uint32) bool {
	for _, m := range geometry.Devices {
		if m.Family.IDWords() <= len(ids) {
			continue
		}
		ok := true
		for i, id := range ids {
			mask := m.Family.IDMasks[i]
			if i >= len(m.IDs) || id&mask != m.IDs[i]&mask {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}

// transferChunks returns the RAM chunks used to stage data and their size.
func (p *Programmer) transferChunks() ([]geometry.Chunk, int, error) {
	usage := p.member.Usage
	if p.config.RAMUsage != nil {
		usage = p.config.RAMUsage
	}

	var windows []geometry.Window
	for _, r := range p.member.Regions() {
		windows = append(windows, geometry.FreeWindows(r, usage)...)
	}

	size := p.config.ChunkSize
	if size == 0 {
		var err error
		if size, err = p.member.SelectChunkSize(windows); err != nil {
			return nil, 0, err
		}
	} else if !p.blockSizeAllowed(size) {
		return nil, 0, fmt.Errorf("chunk size %d is not a %s block size %v",
			size, p.member.Family.Name, p.member.Family.BlockSizes)
	}

	chunks := geometry.Partition(windows, size)
	if len(chunks) == 0 {
		return nil, 0, geometry.ErrNoTransferRAM
	}
	return chunks, size, nil
}

func (p *Programmer) blockSizeAllowed(size int) bool {
	for _, bs := range p.member.Family.BlockSizes {
		if bs == size {
			return true
		}
	}
	return false
}

// Write programs img: it plans the covered sectors, unlocks, erases, then stages,
// patches, transfers and commits the image chunk by chunk. The first failure stops
// the run; chunks already committed stay in flash.
func (p *Programmer) Write(ctx context.Context, img *firmware.Image) error {
	if img == nil || img.Empty() {
		return fmt.Errorf("image cannot be empty")
	}

	start := time.Now()
	p.reportProgress(Progress{Phase: PhasePlanning})

	plan, err := PlanSectors(p.member, img)
	if err != nil {
		return &OperationError{Op: "plan", Chunk: -1, Address: img.Low(), Err: err}
	}

	chunks, size, err := p.transferChunks()
	if err != nil {
		return &OperationError{Op: "allocate", Chunk: -1, Err: err}
	}

	p.log.WithFields(logrus.Fields{
		"ranges":      len(plan),
		"chunk_size":  size,
		"ram_chunks":  len(chunks),
		"image_bytes": img.Size(),
		"fingerprint": fmt.Sprintf("0x%08X", img.Fingerprint()),
	}).Debug("write plan")

	if err := p.unlock(ctx); err != nil {
		return err
	}

	// chunks are padded out to whole windows, so erase what the windows touch
	windows := img.Windows(uint32(size))
	for _, w := range windows {
		r, err := p.member.AddressRangeToSectorRange(w.Address, w.Address+w.Size-1)
		if err != nil {
			return &OperationError{Op: "plan", Chunk: -1, Address: w.Address, Err: err}
		}
		plan = append(plan, r)
	}
	plan = mergeRanges(plan)

	p.erased = bitmap.New(p.member.SectorCount() * p.member.BankCount())
	if err := p.eraseRanges(ctx, plan, start); err != nil {
		return err
	}

	stage := make([]byte, size)
	written := 0

	for i, w := range windows {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("cancelled: %w", err)
		}

		n, err := p.writeChunk(img, i, w, stage, chunks[i%len(chunks)])
		if err != nil {
			return err
		}
		written += n

		p.reportProgress(Progress{
			Phase:        PhaseProgramming,
			Current:      i + 1,
			Total:        len(windows),
			Percentage:   float64(i+1) / float64(len(windows)) * 100,
			BytesWritten: written,
			ElapsedTime:  time.Since(start),
		})
	}

	p.reportProgress(Progress{
		Phase:        PhaseComplete,
		Current:      len(windows),
		Total:        len(windows),
		Percentage:   100,
		BytesWritten: written,
		ElapsedTime:  time.Since(start),
	})

	p.log.WithFields(logrus.Fields{
		"chunks":  len(windows),
		"bytes":   written,
		"elapsed": time.Since(start).String(),
	}).Info("programming complete")

	return nil
}

// writeChunk stages one image window and commits it through ram. It returns the
// number of bytes committed, zero for a skipped chunk.
func (p *Programmer) writeChunk(img *firmware.Image, index int, w firmware.Window, stage []byte, ram geometry.Chunk) (int, error) {
	opErr := func(op string, err error) error {
		e := &OperationError{Op: op, Chunk: index, Address: w.Address, Err: err}
		if s, ok := p.member.AddressToSector(w.Address); ok {
			e.Sector, e.HasSector = s, true
		}
		return e
	}

	last := w.Address + w.Size - 1
	sectors, err := p.member.AddressRangeToSectorRange(w.Address, last)
	if err != nil {
		return 0, opErr("stage", err)
	}
	_, offset, _ := p.member.BankOf(w.Address)

	img.Fill(stage, w.Address)

	patched := false
	if offset == 0 {
		changed, err := PatchChecksum(stage, p.member.Family)
		if err != nil {
			return 0, opErr("checksum", err)
		}
		patched = changed
	}

	if crp := p.member.Family.CRPOffset; crp != 0 && crp >= offset && crp+4 <= offset+w.Size {
		changed, err := ApplyCRP(stage, int(crp-offset), p.config.CRP)
		if err != nil {
			return 0, opErr("crp", err)
		}
		patched = patched || changed
	}

	if !patched && erased(stage) {
		p.log.WithField("address", fmt.Sprintf("0x%08X", w.Address)).Debug("skipping blank chunk")
		return 0, nil
	}

	for _, s := range expand(p.member, sectors) {
		if !p.erased.Get(p.member.Ordinal(s)) {
			return 0, opErr("copy", fmt.Errorf("sector %v was not erased", s))
		}
	}

	if err := p.session.WriteToRAM(ram.Address, stage); err != nil {
		return 0, opErr("transfer", err)
	}
	if err := p.session.Prepare(sectors); err != nil {
		return 0, opErr("prepare", err)
	}
	if err := p.session.CopyRAMToFlash(w.Address, ram.Address, len(stage)); err != nil {
		return 0, opErr("copy", err)
	}

	if p.config.VerifyAfterProgram {
		p.reportProgress(Progress{Phase: PhaseVerifying, Current: index})

		skip := uint32(0)
		if offset == 0 && w.Size > vectorTableSize {
			skip = vectorTableSize
		}
		res, err := p.session.Compare(w.Address+skip, ram.Address+skip, int(w.Size-skip))
		if err != nil {
			return 0, opErr("verify", err)
		}
		if !res.Equal {
			return 0, opErr("verify", &VerificationError{Address: w.Address, Offset: res.Offset})
		}
	}

	p.log.WithFields(logrus.Fields{
		"address": fmt.Sprintf("0x%08X", w.Address),
		"ram":     fmt.Sprintf("0x%08X", ram.Address),
		"sectors": sectors.String(),
	}).Debug("chunk committed")

	return len(stage), nil
}
