package vmm

import "testing"

func TestIndexWithinRange(t *testing.T) {
	virt := VAddr(0x0000_1234_5678_9000)
	for level := uint8(0); level < pageLevels; level++ {
		idx := index(virt, level)
		if idx >= entriesPerLevel {
			t.Errorf("level %d: index %d out of range [0, %d)", level, idx, entriesPerLevel)
		}
	}
}

func TestTopIndexMatchesTopLevel(t *testing.T) {
	virt := VAddr(0x0000_abcd_0000_1000)
	if got, exp := topIndex(virt), index(virt, pageLevels-1); got != exp {
		t.Errorf("expected topIndex to match index(virt, %d); got %d want %d", pageLevels-1, got, exp)
	}
}

func TestIsCanonical(t *testing.T) {
	specs := []struct {
		name string
		addr VAddr
		want bool
	}{
		{"low-half-zero", 0x0, true},
		{"low-half-user", 0x0000_7fff_ffff_f000, true},
		{"kernel-half-base", VAddr(0xffff_8000_0000_0000), true},
		{"kernel-half-top", VAddr(0xffff_ffff_ffff_f000), true},
		{"non-canonical-hole", VAddr(0x0001_0000_0000_0000), false},
	}

	for _, spec := range specs {
		t.Run(spec.name, func(t *testing.T) {
			if got := isCanonical(spec.addr); got != spec.want {
				t.Errorf("isCanonical(%#x) = %v; want %v", uintptr(spec.addr), got, spec.want)
			}
		})
	}
}
