// +build amd64

package vmm

import (
	"unsafe"

	"nyxos/kernel/kfmt/early"

	"golang.org/x/arch/x86/x86asm"
)

// DiagnoseFault prints a best-effort disassembly of the instruction at
// instrPhys to aid debugging an unrecoverable page fault. The bytes are
// read through the direct physical map, so the disassembly is available
// even when the faulting address space is not the active one.
func DiagnoseFault(instrPhys PAddr) {
	var buf [16]byte
	src := (*[16]byte)(unsafe.Pointer(physToKVirtFn(uintptr(instrPhys))))
	copy(buf[:], src[:])

	inst, err := x86asm.Decode(buf[:], 64)
	if err != nil {
		early.Printf("\tinstruction: <decode failed: %s>\n", err.Error())
		return
	}
	early.Printf("\tinstruction: %s\n", inst.String())
}
