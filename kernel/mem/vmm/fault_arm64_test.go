// +build arm64

package vmm

import "testing"

// cowFaultRaw builds an ESR_EL1 value describing a same-EL data abort
// caused by a write that tripped a level-3 permission fault.
func cowFaultRaw() uint64 {
	return (ecDataAbortSameEL << 26) | issWnR | 0x0f
}

func TestParseFaultDecodesESR(t *testing.T) {
	f := ParseFault(cowFaultRaw())
	if !f.Present || !f.Write || f.Exec {
		t.Fatalf("unexpected decode: %+v", f)
	}
	if !IsCowFault(f) {
		t.Fatal("expected cowFaultRaw to classify as a COW candidate")
	}

	translationFault := ParseFault(ecDataAbortSameEL<<26 | 0x07)
	if translationFault.Present {
		t.Fatal("expected a level-3 translation fault (dfsc 0x07) to decode as not-present")
	}

	instrAbort := ParseFault(ecInstrAbortSameEL<<26 | 0x0f)
	if !instrAbort.Exec {
		t.Fatal("expected an instruction-abort EC to decode as Exec")
	}
}
