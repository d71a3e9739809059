// +build amd64

package vmm

import "nyxos/kernel/cpu"

// readFaultAddrFn is mocked by tests, which cannot read CR2.
var readFaultAddrFn = cpu.ReadFaultAddr

// parseFaultSyndrome decodes the x86_64 page-fault error code pushed by the
// CPU: bit0=present, bit1=write, bit2=user, bit3=reserved-bit-set,
// bit4=instruction-fetch.
func parseFaultSyndrome(errorCode uint64) Fault {
	return Fault{
		Addr:     VAddr(readFaultAddrFn()),
		Present:  errorCode&0x1 != 0,
		Write:    errorCode&0x2 != 0,
		User:     errorCode&0x4 != 0,
		Reserved: errorCode&0x8 != 0,
		Exec:     errorCode&0x10 != 0,
		Raw:      errorCode,
	}
}
