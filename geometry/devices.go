package geometry

// Families known to the device table.
var (
	FamilyLPC2000 = &Family{
		Name:            "LPC2000",
		Sectors:         []SectorGroup{{Size: 4096, Count: 8}, {Size: 32768, Count: 14}, {Size: 4096, Count: 5}},
		RAMs:            []uint32{0x40000000, 0x7FD00000},
		BlockSizes:      []int{256, 512, 1024, 4096, 8192},
		ChecksumVectors: 8,
		ChecksumVector:  5,
		IDMasks:         []uint32{0xFFFFFFFF},
		CRPOffset:       0x1FC,
	}

	FamilyLPC1100 = &Family{
		Name:            "LPC1100",
		Sectors:         []SectorGroup{{Size: 4096, Count: 32}},
		RAMs:            []uint32{0x10000000},
		BlockSizes:      []int{256, 512, 1024, 4096},
		ChecksumVectors: 8,
		ChecksumVector:  7,
		IDMasks:         []uint32{0xFFFFFFFF},
		CRPOffset:       0x2FC,
	}

	FamilyLPC1700 = &Family{
		Name:            "LPC1700",
		Sectors:         []SectorGroup{{Size: 4096, Count: 16}, {Size: 32768, Count: 14}},
		RAMs:            []uint32{0x10000000, 0x2007C000},
		BlockSizes:      []int{256, 512, 1024, 4096},
		ChecksumVectors: 8,
		ChecksumVector:  7,
		IDMasks:         []uint32{0xFFFFFFFF},
		CRPOffset:       0x2FC,
	}

	FamilyLPC4300 = &Family{
		Name:            "LPC4300",
		Sectors:         []SectorGroup{{Size: 8192, Count: 8}, {Size: 65536, Count: 7}},
		Banks:           []uint32{0x1A000000, 0x1B000000},
		RAMs:            []uint32{0x10000000, 0x10080000},
		BlockSizes:      []int{512, 1024, 4096},
		ChecksumVectors: 8,
		ChecksumVector:  7,
		IDMasks:         []uint32{0xFFFFFFFF, 0xFFFFFFFF},
		CRPOffset:       0x2FC,
	}

	FamilyLPC800 = &Family{
		Name:            "LPC800",
		Sectors:         []SectorGroup{{Size: 1024, Count: 64}},
		RAMs:            []uint32{0x10000000},
		BlockSizes:      []int{64, 128, 256, 512, 1024},
		ChecksumVectors: 8,
		ChecksumVector:  7,
		IDMasks:         []uint32{0xFFFFFFFF},
		CRPOffset:       0x2FC,
	}

	FamilyLPC804 = &Family{
		Name:            "LPC804",
		Sectors:         []SectorGroup{{Size: 1024, Count: 32}},
		RAMs:            []uint32{0x10000000},
		BlockSizes:      []int{64, 128, 256, 512, 1024},
		ChecksumVectors: 8,
		ChecksumVector:  7,
		IDMasks:         []uint32{0xFFFFFFFF},
		CRPOffset:       0x2FC,
		Binary:          true,
	}
)

// Bootloader RAM reservations shared by several families.
var (
	usageLPC2000 = RAMUsage{{Address: 0x40000120, Size: 224}, {Address: 0x40000000, Size: -288}}
	usageLPC1100 = RAMUsage{{Address: 0x1000017C, Size: 224}, {Address: 0x10000000, Size: -288}}
	usageLPC1700 = RAMUsage{{Address: 0x10000118, Size: 232}, {Address: 0x10000000, Size: -288}}
	usageLPC4300 = RAMUsage{{Address: 0x10000000, Size: 0x200}, {Address: 0x10080000, Size: -288}}
)

// Devices is the device table searched by FindByID and FindByName, in match priority order.
var Devices = []*Member{
	{Name: "LPC2148", FlashSize: 500 << 10, RAMSizes: []uint32{32 << 10, 8 << 10}, IDs: []uint32{0x0402FF25}, Family: FamilyLPC2000, Usage: usageLPC2000},
	{Name: "LPC1114/302", FlashSize: 32 << 10, RAMSizes: []uint32{8 << 10}, IDs: []uint32{0x1A40902B}, Family: FamilyLPC1100, Usage: usageLPC1100},
	{Name: "LPC1343", FlashSize: 32 << 10, RAMSizes: []uint32{8 << 10}, IDs: []uint32{0x3D00002B}, Family: FamilyLPC1100, Usage: usageLPC1100},
	{Name: "LPC1764", FlashSize: 128 << 10, RAMSizes: []uint32{16 << 10, 16 << 10}, IDs: []uint32{0x26011922}, Family: FamilyLPC1700, Usage: usageLPC1700},
	{Name: "LPC1768", FlashSize: 512 << 10, RAMSizes: []uint32{32 << 10, 32 << 10}, IDs: []uint32{0x26013F37}, Family: FamilyLPC1700, Usage: usageLPC1700},
	{Name: "LPC1769", FlashSize: 512 << 10, RAMSizes: []uint32{32 << 10, 32 << 10}, IDs: []uint32{0x26113F37}, Family: FamilyLPC1700, Usage: usageLPC1700},
	{Name: "LPC4357", FlashSize: 1024 << 10, RAMSizes: []uint32{32 << 10, 40 << 10}, IDs: []uint32{0xA001C830, 0x00000000}, Family: FamilyLPC4300, Usage: usageLPC4300},
	{Name: "LPC812", FlashSize: 16 << 10, RAMSizes: []uint32{4 << 10}, IDs: []uint32{0x00008122}, Family: FamilyLPC800, Usage: usageLPC1100},
	{Name: "LPC804", FlashSize: 32 << 10, RAMSizes: []uint32{4 << 10}, IDs: []uint32{0x00008040}, Family: FamilyLPC804, Usage: usageLPC1100},
}

// FindByID returns the first device whose ID words match the observed ones.
func FindByID(observed []uint32) (*Member, error) {
	for _, m := range Devices {
		if m.IDsMatch(observed) {
			return m, nil
		}
	}
	return nil, ErrUnknownDevice
}

// FindByName returns the first device whose name starts with name, ignoring case.
func FindByName(name string) (*Member, error) {
	if name == "" {
		return nil, ErrUnknownDevice
	}
	for _, m := range Devices {
		if m.NameMatches(name) {
			return m, nil
		}
	}
	return nil, ErrUnknownDevice
}

// MaxIDWords returns the largest number of ID words any table entry needs.
func MaxIDWords() int {
	n := 0
	for _, m := range Devices {
		if w := m.Family.IDWords(); w > n {
			n = w
		}
	}
	return n
}
