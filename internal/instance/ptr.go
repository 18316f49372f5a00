package instance

import (
	"encoding/binary"
	"unsafe"
)

func putLE64(b []byte, v uint64) { binary.LittleEndian.PutUint64(b, v) }
func putLE32(b []byte, v uint32) { binary.LittleEndian.PutUint32(b, v) }

// codeBaseAddr returns the address of code's first byte. Empty code never
// has its address taken: no function is ever compiled to zero
// instructions.
func codeBaseAddr(code []byte) uintptr {
	return uintptr(unsafe.Pointer(&code[0]))
}

// dataPtr returns the address of data's first element.
func dataPtr(data []uint64) uintptr {
	return uintptr(unsafe.Pointer(&data[0]))
}

// readU64 dereferences ptr as a little-endian uint64, used to read an
// imported global's remote cell across an instance boundary.
func readU64(ptr uintptr) uint64 {
	return *(*uint64)(unsafe.Pointer(ptr))
}
