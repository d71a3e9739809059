// +build arm64

package vmm

import "nyxos/kernel/cpu"

// readFaultAddrFn is mocked by tests, which cannot read FAR_EL1.
var readFaultAddrFn = cpu.ReadFaultAddr

const (
	ecInstrAbortLowerEL = 0x20
	ecInstrAbortSameEL  = 0x21
	ecDataAbortLowerEL  = 0x24
	ecDataAbortSameEL   = 0x25

	issWnR = 1 << 6
)

// parseFaultSyndrome decodes ESR_EL1: bits [31:26] are the exception class
// (EC); for data/instruction aborts, ISS bits [5:0] are the DFSC/IFSC
// sub-field (0b0001xx = translation fault levels 0-3, i.e. absent;
// 0b0010xx = access-flag fault; 0b0011xx = permission fault levels 0-3) and
// ISS bit 6 is WnR (write-not-read) for data aborts. Only a permission fault
// decodes as Present.
func parseFaultSyndrome(esr uint64) Fault {
	ec := (esr >> 26) & 0x3f
	iss := esr & 0x01ffffff
	dfsc := iss & 0x3f

	instrAbort := ec == ecInstrAbortLowerEL || ec == ecInstrAbortSameEL
	dataAbort := ec == ecDataAbortLowerEL || ec == ecDataAbortSameEL
	user := ec == ecDataAbortLowerEL || ec == ecInstrAbortLowerEL
	permissionFault := dfsc&0x3c == 0x0c

	return Fault{
		Addr:     VAddr(readFaultAddrFn()),
		Present:  permissionFault,
		Write:    dataAbort && iss&issWnR != 0,
		User:     user,
		Reserved: false,
		Exec:     instrAbort,
		Raw:      esr,
	}
}
