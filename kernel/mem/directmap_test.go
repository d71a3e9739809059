package mem

import "testing"

func TestPhysToKVirtRoundTrip(t *testing.T) {
	specs := []uintptr{0, uintptr(PageSize), uintptr(4 * Mb), uintptr(1 * Gb)}

	for _, phys := range specs {
		kvirt := PhysToKVirt(phys)
		if kvirt < DirectMapBase {
			t.Fatalf("expected PhysToKVirt(%#x) to land at or above DirectMapBase; got %#x", phys, kvirt)
		}

		if got := KVirtToPhys(kvirt); got != phys {
			t.Fatalf("expected KVirtToPhys(PhysToKVirt(%#x)) to round-trip; got %#x", phys, got)
		}
	}
}
