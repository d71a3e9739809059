// +build arm64

package vmm

import "nyxos/kernel/cpu"

// The following vars are mocked by tests, which cannot execute privileged
// instructions, and are automatically inlined by the compiler otherwise.
var (
	flushTLBEntryFn  = cpu.FlushTLBEntry
	flushTLBAllFn    = cpu.FlushTLBAll
	switchSpaceHWFn  = cpu.SwitchPDT
	currentSpaceHWFn = cpu.ActivePDT
)
