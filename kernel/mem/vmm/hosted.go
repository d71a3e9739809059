package vmm

// HardwareHooks collects the privileged-instruction stand-ins a hosted
// process must supply in place of cpu.ActivePDT/cpu.SwitchPDT/
// cpu.FlushTLBEntry/cpu.FlushTLBAll, none of which can execute outside ring
// 0. SetHardwareHooks lets host-side tooling (benchmarks, fuzzers) drive
// CreateSpace/Map/CloneSpace/SwitchSpace without trapping.
type HardwareHooks struct {
	CurrentSpace func() uintptr
	SwitchSpace  func(uintptr)
	FlushEntry   func(uintptr)
	FlushAll     func()
}

// SetHardwareHooks overrides the package's privileged-instruction stand-ins.
// Production boot code never calls this; the default wiring talks to the
// real CPU (see tlb_amd64.go / tlb_arm64.go).
func SetHardwareHooks(h HardwareHooks) {
	currentSpaceHWFn = h.CurrentSpace
	switchSpaceHWFn = h.SwitchSpace
	flushTLBEntryFn = h.FlushEntry
	flushTLBAllFn = h.FlushAll
}
