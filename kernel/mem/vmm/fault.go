package vmm

// Fault is the architecture-neutral decoding of a page-fault syndrome.
type Fault struct {
	Addr     VAddr
	Present  bool
	Write    bool
	User     bool
	Exec     bool
	Reserved bool
	Raw      uint64
}

// ParseFault decodes a raw architecture fault syndrome — the x86_64
// page-fault error code, or the ARM64 ESR_EL1 value — into a neutral
// record. The faulting address itself is read from the architecture's
// fault-address register (CR2 / FAR_EL1), not passed in.
func ParseFault(raw uint64) Fault {
	return parseFaultSyndrome(raw)
}

// IsCowFault reports whether f is the fast-path COW case: a write to a
// page that is present but permission-denied, and not an instruction
// fetch. The caller still must check that the located PTE has FlagCOW set
// before materializing a private copy.
func IsCowFault(f Fault) bool {
	return f.Present && f.Write && !f.Exec
}
