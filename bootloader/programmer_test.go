package bootloader

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/moffa90/go-lpcisp/firmware"
	"github.com/moffa90/go-lpcisp/geometry"
	"github.com/moffa90/go-lpcisp/ispsim"
	"github.com/moffa90/go-lpcisp/protocol"
	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// newTarget returns a simulated device and a synchronized session talking to it.
func newTarget(t *testing.T, m *geometry.Member, opts ...ispsim.Option) (*ispsim.Device, *protocol.Session) {
	t.Helper()

	dev := ispsim.New(m, opts...)
	return dev, connect(t, dev)
}

func connect(t *testing.T, dev *ispsim.Device) *protocol.Session {
	t.Helper()

	s, err := protocol.NewSession(dev,
		protocol.WithTimeout(100*time.Millisecond),
		protocol.WithPollInterval(time.Millisecond),
		protocol.WithLogger(quietLogger()),
	)
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	if err := s.Synchronize(12000); err != nil {
		t.Fatalf("Synchronize() error = %v", err)
	}
	return s
}

func newProgrammer(t *testing.T, name string, opts ...Option) (*ispsim.Device, *Programmer) {
	t.Helper()

	m := mustMember(t, name)
	dev, s := newTarget(t, m)
	return dev, New(s, m, append([]Option{WithLogger(quietLogger())}, opts...)...)
}

func pattern(n int, seed byte) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i)*3 + seed
	}
	// keep the CRP word blank so the default policy accepts the image
	if len(data) >= 0x300 {
		copy(data[0x2FC:], []byte{0xFF, 0xFF, 0xFF, 0xFF})
	}
	return data
}

func vectorSum(b []byte) uint32 {
	var sum uint32
	for i := 0; i < 8; i++ {
		sum += binary.LittleEndian.Uint32(b[i*4:])
	}
	return sum
}

func TestNewPanics(t *testing.T) {
	m := mustMember(t, "LPC1768")
	_, s := newTarget(t, m)

	tests := []struct {
		name    string
		session Session
		member  *geometry.Member
	}{
		{name: "nil session", member: m},
		{name: "nil member", session: s},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Error("New() did not panic")
				}
			}()
			New(tt.session, tt.member)
		})
	}
}

func TestNewSelectsBinaryEncoding(t *testing.T) {
	m := mustMember(t, "LPC804")
	_, s := newTarget(t, m)

	p := New(s, m, WithLogger(quietLogger()))
	if s.Encoding() != protocol.EncodingBinary {
		t.Errorf("session encoding = %v, want binary", s.Encoding())
	}
	if p.Member() != m {
		t.Error("Member() returned a different device")
	}
}

func TestIdentify(t *testing.T) {
	unknown := &geometry.Member{
		Name:      "unlisted",
		FlashSize: 32 << 10,
		RAMSizes:  []uint32{8 << 10},
		IDs:       []uint32{0x11223344},
		Family:    geometry.FamilyLPC1100,
	}

	tests := []struct {
		name    string
		member  *geometry.Member
		want    string
		wantIDs int
		wantErr error
	}{
		{name: "single word", member: mustMember(t, "LPC1768"), want: "LPC1768", wantIDs: 1},
		{name: "second word read on demand", member: mustMember(t, "LPC4357"), want: "LPC4357", wantIDs: 2},
		{name: "unknown part", member: unknown, wantIDs: 1, wantErr: geometry.ErrUnknownDevice},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, s := newTarget(t, tt.member)

			m, ids, err := Identify(context.Background(), s)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Identify() error = %v, want %v", err, tt.wantErr)
				}
			} else {
				if err != nil {
					t.Fatalf("Identify() error = %v", err)
				}
				if m.Name != tt.want {
					t.Errorf("Identify() = %s, want %s", m.Name, tt.want)
				}
			}
			if len(ids) != tt.wantIDs {
				t.Errorf("Identify() ids = %v, want %d words", ids, tt.wantIDs)
			}

			// the session stays usable
			if _, err := s.ReadBootCodeVersion(); err != nil {
				t.Errorf("ReadBootCodeVersion() after Identify error = %v", err)
			}
		})
	}
}

func TestIdentifyCancelled(t *testing.T) {
	_, s := newTarget(t, mustMember(t, "LPC1768"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, _, err := Identify(ctx, s); !errors.Is(err, context.Canceled) {
		t.Errorf("Identify() error = %v, want context.Canceled", err)
	}
}

func TestWrite(t *testing.T) {
	data := pattern(0x200, 1)
	dev, p := newProgrammer(t, "LPC1768")

	var phases []string
	p.config.ProgressCallback = func(pr Progress) { phases = append(phases, pr.Phase) }

	if err := p.Write(context.Background(), mustImage(t, firmware.Segment{Address: 0, Data: data})); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	flash := dev.Memory(0, 0x1000)
	if vectorSum(flash) != 0 {
		t.Errorf("vector sum = 0x%08X, want 0", vectorSum(flash))
	}
	if !bytes.Equal(flash[:28], data[:28]) || !bytes.Equal(flash[32:0x200], data[32:]) {
		t.Error("flash differs from image outside the checksum slot")
	}
	if !erased(flash[0x200:]) {
		t.Error("padding was not left erased")
	}

	if dev.Count(protocol.CmdUnlock) != 1 || dev.Count(protocol.CmdErase) != 1 ||
		dev.Count(protocol.CmdCopyRAMToFlash) != 1 || dev.Count(protocol.CmdCompare) != 1 {
		t.Errorf("command counts U=%d E=%d C=%d M=%d, want 1 each",
			dev.Count(protocol.CmdUnlock), dev.Count(protocol.CmdErase),
			dev.Count(protocol.CmdCopyRAMToFlash), dev.Count(protocol.CmdCompare))
	}

	if len(phases) == 0 || phases[0] != PhasePlanning || phases[len(phases)-1] != PhaseComplete {
		t.Errorf("phases = %v, want planning first and complete last", phases)
	}
	for _, want := range []string{PhaseErasing, PhaseProgramming, PhaseVerifying} {
		found := false
		for _, ph := range phases {
			found = found || ph == want
		}
		if !found {
			t.Errorf("phase %q never reported", want)
		}
	}
}

func TestWriteSparseImage(t *testing.T) {
	low := pattern(0x100, 7)
	high := pattern(0x2000, 9)
	img := mustImage(t,
		firmware.Segment{Address: 0x00000, Data: low},
		firmware.Segment{Address: 0x10000, Data: high},
	)

	tests := []struct {
		name      string
		mode      EraseMode
		dirty     bool
		wantErase int
		wantBlank int
	}{
		{name: "eager", mode: EraseEager, wantErase: 2},
		{name: "on demand with blank flash", mode: EraseOnDemand, wantErase: 0, wantBlank: 2},
		{name: "on demand with dirty sector", mode: EraseOnDemand, dirty: true, wantErase: 1, wantBlank: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev, p := newProgrammer(t, "LPC1768", WithEraseMode(tt.mode))
			if tt.dirty {
				if err := dev.LoadFlash(0x17000, []byte{0, 1, 2, 3}); err != nil {
					t.Fatal(err)
				}
			}

			if err := p.Write(context.Background(), img); err != nil {
				t.Fatalf("Write() error = %v", err)
			}

			if got := dev.Count(protocol.CmdErase); got != tt.wantErase {
				t.Errorf("erase commands = %d, want %d", got, tt.wantErase)
			}
			if got := dev.Count(protocol.CmdBlankCheck); got != tt.wantBlank {
				t.Errorf("blank checks = %d, want %d", got, tt.wantBlank)
			}
			if got := dev.Count(protocol.CmdCopyRAMToFlash); got != 3 {
				t.Errorf("copy commands = %d, want 3", got)
			}
			if got := dev.Memory(0x10000, len(high)); !bytes.Equal(got, high) {
				t.Error("high segment not programmed")
			}
			if got := dev.Memory(0x17000, 4); !erased(got) {
				t.Error("dirty sector not erased")
			}
		})
	}
}

func TestWriteSkipsBlankChunks(t *testing.T) {
	blank := bytes.Repeat([]byte{0xFF}, 0x1000)
	img := mustImage(t,
		firmware.Segment{Address: 0x0000, Data: pattern(0x1000, 3)},
		firmware.Segment{Address: 0x1000, Data: blank},
	)

	dev, p := newProgrammer(t, "LPC1768", WithChunkSize(4096))
	if err := p.Write(context.Background(), img); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	if got := dev.Count(protocol.CmdCopyRAMToFlash); got != 1 {
		t.Errorf("copy commands = %d, want 1", got)
	}
	if got := dev.Count(protocol.CmdWriteToRAM); got != 1 {
		t.Errorf("RAM writes = %d, want 1", got)
	}
}

func TestWriteWithoutVerify(t *testing.T) {
	dev, p := newProgrammer(t, "LPC1768", WithVerifyAfterProgram(false))
	if err := p.Write(context.Background(), mustImage(t, firmware.Segment{Address: 0, Data: pattern(64, 0)})); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if dev.Count(protocol.CmdCompare) != 0 {
		t.Errorf("compare commands = %d, want 0", dev.Count(protocol.CmdCompare))
	}
}

func TestWriteBinaryFamily(t *testing.T) {
	data := pattern(0x180, 5)
	data[0x40], data[0x41] = '\r', '\n'

	dev, p := newProgrammer(t, "LPC804")
	if err := p.Write(context.Background(), mustImage(t, firmware.Segment{Address: 0, Data: data})); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	flash := dev.Memory(0, len(data))
	if vectorSum(flash) != 0 || !bytes.Equal(flash[32:], data[32:]) {
		t.Error("binary transfer did not program the image")
	}
}

func TestWriteBankedFamily(t *testing.T) {
	m := mustMember(t, "LPC4357")
	dev, s := newTarget(t, m)
	p := New(s, m, WithLogger(quietLogger()))

	data := pattern(0x400, 11)
	if err := p.Write(context.Background(), mustImage(t, firmware.Segment{Address: 0x1B000000, Data: data})); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	flash := dev.Memory(0x1B000000, len(data))
	if vectorSum(flash) != 0 {
		t.Error("bank 1 vector table not checksummed")
	}
	if !bytes.Equal(flash[32:], data[32:]) {
		t.Error("bank 1 not programmed")
	}
	if !erased(dev.Memory(0x1A000000, 0x400)) {
		t.Error("bank 0 modified")
	}
}

func TestWriteCRP(t *testing.T) {
	tests := []struct {
		name     string
		policy   CRPPolicy
		wantWord uint32
		wantErr  bool
	}{
		{name: "default unprotected", wantWord: 0xFFFFFFFF},
		{name: "level 1", policy: CRPPolicy{Level: CRP1, MaxLevel: CRP2}, wantWord: 0x12345678},
		{name: "level 3 refused", policy: CRPPolicy{Level: CRP3, MaxLevel: CRP2}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var opts []Option
			if tt.policy != (CRPPolicy{}) {
				opts = append(opts, WithCRP(tt.policy))
			}
			dev, p := newProgrammer(t, "LPC1768", opts...)

			err := p.Write(context.Background(), mustImage(t, firmware.Segment{Address: 0, Data: pattern(0x100, 2)}))
			if tt.wantErr {
				var oe *OperationError
				if !errors.As(err, &oe) || oe.Op != "crp" || !IsPolicyError(err) {
					t.Fatalf("Write() error = %v, want crp policy error", err)
				}
				if dev.Count(protocol.CmdCopyRAMToFlash) != 0 {
					t.Error("chunk committed despite policy violation")
				}
				return
			}
			if err != nil {
				t.Fatalf("Write() error = %v", err)
			}

			if got := binary.LittleEndian.Uint32(dev.Memory(0x2FC, 4)); got != tt.wantWord {
				t.Errorf("CRP word = 0x%08X, want 0x%08X", got, tt.wantWord)
			}
		})
	}
}

func TestWriteDeviceFailure(t *testing.T) {
	tests := []struct {
		name   string
		code   byte
		status int
		op     string
	}{
		{name: "unlock", code: protocol.CmdUnlock, status: protocol.ErrInvalidCode, op: "unlock"},
		{name: "erase", code: protocol.CmdErase, status: protocol.ErrBusy, op: "erase"},
		{name: "transfer", code: protocol.CmdWriteToRAM, status: protocol.ErrAddrNotMapped, op: "transfer"},
		{name: "copy", code: protocol.CmdCopyRAMToFlash, status: protocol.ErrBusy, op: "copy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev, p := newProgrammer(t, "LPC1768")
			dev.Fail(tt.code, tt.status)

			err := p.Write(context.Background(), mustImage(t, firmware.Segment{Address: 0, Data: pattern(0x100, 4)}))

			var oe *OperationError
			if !errors.As(err, &oe) {
				t.Fatalf("Write() error = %v, want *OperationError", err)
			}
			if oe.Op != tt.op {
				t.Errorf("Op = %q, want %q", oe.Op, tt.op)
			}
			if code, ok := protocol.StatusCode(err); !ok || code != tt.status {
				t.Errorf("StatusCode() = %d, %v, want %d", code, ok, tt.status)
			}
		})
	}
}

// mismatchSession reports every compare as failing at offset 8.
type mismatchSession struct {
	*protocol.Session
}

func (mismatchSession) Compare(a, b uint32, n int) (protocol.CompareResult, error) {
	return protocol.CompareResult{Offset: 8}, nil
}

func TestWriteVerificationFailure(t *testing.T) {
	m := mustMember(t, "LPC1768")
	_, s := newTarget(t, m)
	p := New(mismatchSession{s}, m, WithLogger(quietLogger()))

	err := p.Write(context.Background(), mustImage(t, firmware.Segment{Address: 0x1000, Data: pattern(0x100, 0)}))

	var ve *VerificationError
	if !errors.As(err, &ve) {
		t.Fatalf("Write() error = %v, want *VerificationError", err)
	}
	if ve.Address != 0x1000 || ve.Offset != 8 {
		t.Errorf("VerificationError = %+v", ve)
	}
}

func TestWriteConfigErrors(t *testing.T) {
	img := func(t *testing.T) *firmware.Image {
		return mustImage(t, firmware.Segment{Address: 0, Data: pattern(0x100, 0)})
	}

	t.Run("empty image", func(t *testing.T) {
		_, p := newProgrammer(t, "LPC1768")
		if err := p.Write(context.Background(), mustImage(t)); err == nil {
			t.Error("Write() of empty image error = nil")
		}
	})

	t.Run("chunk size not a block size", func(t *testing.T) {
		_, p := newProgrammer(t, "LPC1768", WithChunkSize(300))
		var oe *OperationError
		if err := p.Write(context.Background(), img(t)); !errors.As(err, &oe) || oe.Op != "allocate" {
			t.Errorf("Write() error = %v, want allocate failure", err)
		}
	})

	t.Run("no transfer RAM", func(t *testing.T) {
		_, p := newProgrammer(t, "LPC1768", WithRAMUsage(geometry.RAMUsage{
			{Address: 0x10000000, Size: -(32 << 10)},
			{Address: 0x2007C000, Size: -(32 << 10)},
		}))
		if err := p.Write(context.Background(), img(t)); !errors.Is(err, geometry.ErrNoTransferRAM) {
			t.Errorf("Write() error = %v, want ErrNoTransferRAM", err)
		}
	})

	t.Run("outside flash", func(t *testing.T) {
		_, p := newProgrammer(t, "LPC1768")
		err := p.Write(context.Background(), mustImage(t, firmware.Segment{Address: 0x90000, Data: []byte{1}}))
		if !geometry.IsRangeError(err) {
			t.Errorf("Write() error = %v, want RangeError", err)
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		dev, p := newProgrammer(t, "LPC1768")
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := p.Write(ctx, img(t)); !errors.Is(err, context.Canceled) {
			t.Errorf("Write() error = %v, want context.Canceled", err)
		}
		if dev.Count(protocol.CmdUnlock) != 0 {
			t.Error("device was unlocked after cancellation")
		}
	})
}

func TestErase(t *testing.T) {
	dev, p := newProgrammer(t, "LPC1768")
	for _, addr := range []uint32{0x0000, 0x4000, 0x5000} {
		if err := dev.LoadFlash(addr, []byte{0, 0, 0, 0}); err != nil {
			t.Fatal(err)
		}
	}

	if err := p.Erase(context.Background(), 0, 0x4100); err != nil {
		t.Fatalf("Erase() error = %v", err)
	}

	if !erased(dev.Memory(0, 4)) || !erased(dev.Memory(0x4000, 4)) {
		t.Error("sectors 0..4 not erased")
	}
	if erased(dev.Memory(0x5000, 4)) {
		t.Error("sector 5 erased")
	}
	if dev.Count(protocol.CmdErase) != 1 {
		t.Errorf("erase commands = %d, want 1", dev.Count(protocol.CmdErase))
	}
}

func TestEraseCrossBank(t *testing.T) {
	_, p := newProgrammer(t, "LPC4357")
	err := p.Erase(context.Background(), 0x1A070000, 0x1B000000)
	if !geometry.IsRangeError(err) {
		t.Errorf("Erase() error = %v, want RangeError", err)
	}
}

func TestEraseAll(t *testing.T) {
	tests := []struct {
		name      string
		member    string
		dirty     []uint32
		wantErase int
	}{
		{name: "single bank", member: "LPC1768", dirty: []uint32{0x0, 0x7F000}, wantErase: 1},
		{name: "two banks", member: "LPC4357", dirty: []uint32{0x1A000000, 0x1B07FFF0}, wantErase: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev, p := newProgrammer(t, tt.member)
			for _, addr := range tt.dirty {
				if err := dev.LoadFlash(addr, []byte{1, 2, 3, 4}); err != nil {
					t.Fatal(err)
				}
			}

			if err := p.EraseAll(context.Background()); err != nil {
				t.Fatalf("EraseAll() error = %v", err)
			}
			for _, addr := range tt.dirty {
				if !erased(dev.Memory(addr, 4)) {
					t.Errorf("0x%08X not erased", addr)
				}
			}
			if got := dev.Count(protocol.CmdErase); got != tt.wantErase {
				t.Errorf("erase commands = %d, want %d", got, tt.wantErase)
			}
		})
	}
}

func TestRead(t *testing.T) {
	dev, p := newProgrammer(t, "LPC1768")
	data := pattern(0x900, 6)
	if err := dev.LoadFlash(0x1000, data); err != nil {
		t.Fatal(err)
	}

	var last Progress
	p.config.ProgressCallback = func(pr Progress) { last = pr }

	got, err := p.Read(context.Background(), 0x1000, len(data))
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Error("Read() returned different data")
	}
	if dev.Count(protocol.CmdReadMemory) != 3 {
		t.Errorf("read commands = %d, want 3", dev.Count(protocol.CmdReadMemory))
	}
	if last.Phase != PhaseReading || last.Percentage != 100 {
		t.Errorf("last progress = %+v", last)
	}
}

func TestReadErrors(t *testing.T) {
	t.Run("unaligned", func(t *testing.T) {
		_, p := newProgrammer(t, "LPC1768")
		if _, err := p.Read(context.Background(), 2, 16); err == nil {
			t.Error("Read() unaligned error = nil")
		}
		if _, err := p.Read(context.Background(), 0, 6); err == nil {
			t.Error("Read() odd length error = nil")
		}
	})

	t.Run("read protected", func(t *testing.T) {
		dev, p := newProgrammer(t, "LPC1768")
		crp := make([]byte, 4)
		binary.LittleEndian.PutUint32(crp, CRP2.Word())
		if err := dev.LoadFlash(0x2FC, crp); err != nil {
			t.Fatal(err)
		}

		_, err := p.Read(context.Background(), 0, 64)
		if code, ok := protocol.StatusCode(err); !ok || code != protocol.ErrCodeReadProtection {
			t.Errorf("Read() error = %v, want code read protection", err)
		}
	})
}

func TestLaunch(t *testing.T) {
	dev, p := newProgrammer(t, "LPC1768")
	if err := p.Launch(context.Background(), 0, true); err != nil {
		t.Fatalf("Launch() error = %v", err)
	}

	addr, thumb, ok := dev.Started()
	if !ok || addr != 0 || !thumb {
		t.Errorf("Started() = 0x%X, %v, %v", addr, thumb, ok)
	}
	if dev.InISP() {
		t.Error("device still in ISP after Launch")
	}
}

func TestSetBootBank(t *testing.T) {
	dev, p := newProgrammer(t, "LPC4357")
	if err := p.SetBootBank(context.Background(), 1); err != nil {
		t.Fatalf("SetBootBank() error = %v", err)
	}
	if got := dev.ActiveBank(); got != 1 {
		t.Errorf("ActiveBank() = %d, want 1", got)
	}
	if dev.Count(protocol.CmdUnlock) != 1 {
		t.Errorf("unlock count = %d, want 1", dev.Count(protocol.CmdUnlock))
	}

	dev.Fail(protocol.CmdSetActiveBank, protocol.ErrSettingActiveBank)
	err := p.SetBootBank(context.Background(), 0)
	var opErr *OperationError
	if !errors.As(err, &opErr) || opErr.Op != "bank" || opErr.Address != 0x1A000000 {
		t.Fatalf("SetBootBank() error = %v, want bank OperationError at 0x1A000000", err)
	}
	if code, ok := protocol.StatusCode(err); !ok || code != protocol.ErrSettingActiveBank {
		t.Errorf("StatusCode() = %d, %v", code, ok)
	}
}

func TestSetBootBankRejected(t *testing.T) {
	tests := []struct {
		name   string
		member string
		bank   int
	}{
		{"single bank part", "LPC1768", 0},
		{"bank out of range", "LPC4357", 2},
		{"negative bank", "LPC4357", -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev, p := newProgrammer(t, tt.member)
			err := p.SetBootBank(context.Background(), tt.bank)
			var opErr *OperationError
			if !errors.As(err, &opErr) || opErr.Op != "bank" {
				t.Fatalf("SetBootBank(%d) error = %v, want bank OperationError", tt.bank, err)
			}
			if n := dev.Count(protocol.CmdSetActiveBank); n != 0 {
				t.Errorf("S sent %d times", n)
			}
		})
	}
}
