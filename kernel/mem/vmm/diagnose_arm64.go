// +build arm64

package vmm

import (
	"unsafe"

	"nyxos/kernel/kfmt/early"

	"golang.org/x/arch/arm64/arm64asm"
)

// DiagnoseFault prints a best-effort disassembly of the instruction at
// instrPhys to aid debugging an unrecoverable instruction abort. The bytes
// are read through the direct physical map, so the disassembly is available
// even when the faulting address space is not the active one.
func DiagnoseFault(instrPhys PAddr) {
	var buf [4]byte
	src := (*[4]byte)(unsafe.Pointer(physToKVirtFn(uintptr(instrPhys))))
	copy(buf[:], src[:])

	inst, err := arm64asm.Decode(buf[:])
	if err != nil {
		early.Printf("\tinstruction: <decode failed: %s>\n", err.Error())
		return
	}
	early.Printf("\tinstruction: %s\n", inst.String())
}
