package bootloader

import (
	"context"
	"fmt"
	"time"

	"github.com/boljen/go-bitmap"
	"github.com/moffa90/go-lpcisp/geometry"
	"github.com/sirupsen/logrus"
)

func (p *Programmer) unlock(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("cancelled: %w", err)
	}
	if err := p.session.Unlock(); err != nil {
		return &OperationError{Op: "unlock", Chunk: -1, Err: err}
	}
	return nil
}

// eraseRanges erases the planned ranges one sector at a time according to the
// erase mode and records every erased sector.
func (p *Programmer) eraseRanges(ctx context.Context, ranges []geometry.SectorRange, start time.Time) error {
	var sectors []geometry.Sector
	for _, r := range ranges {
		sectors = append(sectors, expand(p.member, r)...)
	}

	skipped := 0
	for i, s := range sectors {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("cancelled: %w", err)
		}

		addr, _, _ := p.member.SectorToAddress(s)
		opErr := func(op string, err error) error {
			return &OperationError{Op: op, Chunk: -1, Address: addr, Sector: s, HasSector: true, Err: err}
		}

		dirty := true
		if p.config.EraseMode == EraseOnDemand {
			res, err := p.session.BlankCheck(single(s))
			if err != nil {
				return opErr("blank check", err)
			}
			dirty = !res.Blank
		}

		if dirty {
			if err := p.session.Prepare(single(s)); err != nil {
				return opErr("prepare", err)
			}
			if err := p.session.Erase(single(s)); err != nil {
				return opErr("erase", err)
			}
		} else {
			skipped++
		}
		p.erased.Set(p.member.Ordinal(s), true)

		p.reportProgress(Progress{
			Phase:       PhaseErasing,
			Current:     i + 1,
			Total:       len(sectors),
			Percentage:  float64(i+1) / float64(len(sectors)) * 100,
			ElapsedTime: time.Since(start),
		})
	}

	p.log.WithFields(logrus.Fields{
		"sectors": len(sectors),
		"blank":   skipped,
		"mode":    p.config.EraseMode.String(),
	}).Debug("erase done")

	return nil
}

// Erase erases the sectors covering the inclusive address range lo..hi with one
// prepare and one erase command.
func (p *Programmer) Erase(ctx context.Context, lo, hi uint32) error {
	r, err := p.member.AddressRangeToSectorRange(lo, hi)
	if err != nil {
		return &OperationError{Op: "erase", Chunk: -1, Address: lo, Err: err}
	}

	if err := p.unlock(ctx); err != nil {
		return err
	}
	return p.eraseRange(r)
}

// EraseAll erases every sector of every bank.
func (p *Programmer) EraseAll(ctx context.Context) error {
	if err := p.unlock(ctx); err != nil {
		return err
	}

	for bank := 0; bank < p.member.BankCount(); bank++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("cancelled: %w", err)
		}

		last, ok := p.member.BankLastSector(bank)
		if !ok {
			continue
		}
		r := geometry.SectorRange{First: p.member.MakeSector(bank, 0), Last: last}
		if err := p.eraseRange(r); err != nil {
			return err
		}
	}

	return nil
}

func (p *Programmer) eraseRange(r geometry.SectorRange) error {
	addr, _, _ := p.member.SectorToAddress(r.First)
	opErr := func(op string, err error) error {
		return &OperationError{Op: op, Chunk: -1, Address: addr, Sector: r.First, HasSector: true, Err: err}
	}

	if err := p.session.Prepare(r); err != nil {
		return opErr("prepare", err)
	}
	if err := p.session.Erase(r); err != nil {
		return opErr("erase", err)
	}

	if p.erased == nil {
		p.erased = bitmap.New(p.member.SectorCount() * p.member.BankCount())
	}
	for _, s := range expand(p.member, r) {
		p.erased.Set(p.member.Ordinal(s), true)
	}

	p.log.WithField("sectors", r.String()).Info("erased")
	p.reportProgress(Progress{Phase: PhaseErasing, Current: r.Len(), Total: r.Len(), Percentage: 100})
	return nil
}

// Read reads n bytes starting at addr. Both must be multiples of four.
func (p *Programmer) Read(ctx context.Context, addr uint32, n int) ([]byte, error) {
	if addr%4 != 0 || n%4 != 0 || n <= 0 {
		return nil, fmt.Errorf("read of %d bytes at 0x%08X must be word aligned", n, addr)
	}

	start := time.Now()
	out := make([]byte, 0, n)
	for len(out) < n {
		if err := ctx.Err(); err != nil {
			return out, fmt.Errorf("cancelled: %w", err)
		}

		size := n - len(out)
		if size > readBlockSize {
			size = readBlockSize
		}
		at := addr + uint32(len(out))

		data, err := p.session.ReadMemory(at, size)
		if err != nil {
			return out, &OperationError{Op: "read", Chunk: -1, Address: at, Err: err}
		}
		out = append(out, data...)

		p.reportProgress(Progress{
			Phase:       PhaseReading,
			Current:     len(out),
			Total:       n,
			Percentage:  float64(len(out)) / float64(n) * 100,
			ElapsedTime: time.Since(start),
		})
	}

	return out, nil
}

// Launch unlocks the bootloader and starts execution at addr.
func (p *Programmer) Launch(ctx context.Context, addr uint32, thumb bool) error {
	if err := p.unlock(ctx); err != nil {
		return err
	}
	if err := p.session.Go(addr, thumb); err != nil {
		return &OperationError{Op: "go", Chunk: -1, Address: addr, Err: err}
	}
	p.log.WithField("address", fmt.Sprintf("0x%08X", addr)).Info("started")
	return nil
}

// SetBootBank makes the device boot from bank after the next reset. Only
// parts with more than one flash bank accept it.
func (p *Programmer) SetBootBank(ctx context.Context, bank int) error {
	if n := p.member.BankCount(); n < 2 || bank < 0 || bank >= n {
		return &OperationError{Op: "bank", Chunk: -1,
			Err: fmt.Errorf("%s has no boot bank %d", p.member.Name, bank)}
	}
	if err := p.unlock(ctx); err != nil {
		return err
	}
	addr := p.member.BankBase(bank)
	if err := p.session.SetActiveBank(bank); err != nil {
		return &OperationError{Op: "bank", Chunk: -1, Address: addr, Err: err}
	}
	p.log.WithField("bank", bank).Info("boot bank selected")
	return nil
}

func (p *Programmer) reportProgress(progress Progress) {
	if p.config.ProgressCallback != nil {
		p.config.ProgressCallback(progress)
	}
}
