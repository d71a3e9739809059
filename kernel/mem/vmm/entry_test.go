package vmm

import "testing"

func TestEntryRoundTrip(t *testing.T) {
	specs := []struct {
		name  string
		phys  PAddr
		flags Flags
	}{
		{"kernel-rw", 0x1000, FlagPresent | FlagWrite},
		{"user-ro", 0x2000, FlagPresent | FlagUser},
		{"user-rw-exec", 0x3000, FlagPresent | FlagUser | FlagWrite | FlagExec},
		{"cow", 0x4000, FlagPresent | FlagUser | FlagCOW},
	}

	for _, spec := range specs {
		t.Run(spec.name, func(t *testing.T) {
			e, err := makeEntry(spec.phys, spec.flags)
			if err != nil {
				t.Fatalf("makeEntry: %v", err)
			}

			if !e.present() {
				t.Fatal("expected entry to report present")
			}

			gotPhys, gotFlags := decodeEntry(e)
			if gotPhys != spec.phys {
				t.Errorf("expected phys %#x; got %#x", spec.phys, gotPhys)
			}
			if gotFlags&FlagPresent == 0 {
				t.Error("expected FlagPresent to survive decode")
			}
			if spec.flags.Has(FlagWrite) != gotFlags.Has(FlagWrite) {
				t.Errorf("expected write bit %v; got %v", spec.flags.Has(FlagWrite), gotFlags.Has(FlagWrite))
			}
			if spec.flags.Has(FlagUser) != gotFlags.Has(FlagUser) {
				t.Errorf("expected user bit %v; got %v", spec.flags.Has(FlagUser), gotFlags.Has(FlagUser))
			}
		})
	}
}

func TestModifyFlagsPreservesFrame(t *testing.T) {
	e, err := makeEntry(0x5000, FlagPresent|FlagWrite|FlagUser)
	if err != nil {
		t.Fatalf("makeEntry: %v", err)
	}

	e = modifyFlags(e, FlagCOW, FlagWrite)
	phys, flags := decodeEntry(e)

	if phys != 0x5000 {
		t.Errorf("expected frame to survive flag modification; got %#x", phys)
	}
	if flags.Has(FlagWrite) {
		t.Error("expected write flag to be cleared")
	}
	if !flags.Has(FlagCOW) {
		t.Error("expected COW flag to be set")
	}

	e = modifyFlags(e, FlagWrite, FlagCOW)
	_, flags = decodeEntry(e)
	if !flags.Has(FlagWrite) || flags.Has(FlagCOW) {
		t.Error("expected write restored and COW cleared on the return trip")
	}
}

func TestTableDescriptor(t *testing.T) {
	var e tableEntry
	e.setTableDescriptor(0x6000)

	if !e.present() || !e.isTable() || e.isBlock() {
		t.Fatal("expected a present, non-block table descriptor")
	}
	if got := e.tableFrame(); got != 0x6000 {
		t.Errorf("expected table frame %#x; got %#x", 0x6000, got)
	}

	e.clear()
	if e.present() {
		t.Fatal("expected clear() to remove the present bit")
	}
}

func TestMakeLeafEntryHuge(t *testing.T) {
	e, err := makeLeafEntry(0x20_0000, FlagPresent|FlagWrite, true)
	if err != nil {
		t.Fatalf("makeLeafEntry: %v", err)
	}
	if !e.isBlock() {
		t.Fatal("expected huge leaf entry to report as a block mapping")
	}

	e, err = makeLeafEntry(0x1000, FlagPresent|FlagWrite, false)
	if err != nil {
		t.Fatalf("makeLeafEntry: %v", err)
	}
	if e.isBlock() {
		t.Fatal("expected non-huge leaf entry to not report as a block mapping")
	}
}
