package runtime

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/charlycst/coral/api"
	"github.com/charlycst/coral/internal/wasmir"
)

// MmapRuntime is the concrete Runtime backing this repository's tests and
// examples: every area is an anonymous mmap mapping, and permission
// transitions are plain mprotect calls. It plays the role the teacher's
// own (pack-stripped) internal/platform package plays for its compiler
// engine, built on the same golang.org/x/sys/unix primitives.
type MmapRuntime struct{}

// NewMmapRuntime returns a Runtime backed by mmap/mprotect.
func NewMmapRuntime() *MmapRuntime { return &MmapRuntime{} }

func (r *MmapRuntime) AllocCode(size int, fill func(area MemoryArea) error) (MemoryArea, error) {
	if size == 0 {
		panic("BUG: AllocCode with zero length")
	}
	area, err := newMmapArea(size)
	if err != nil {
		return nil, err
	}
	invoked := false
	wrapped := func(a MemoryArea) error {
		invoked = true
		return fill(a)
	}
	if err := wrapped(area); err != nil {
		area.unmap()
		return nil, err
	}
	if !invoked {
		area.unmap()
		return nil, &AllocError{Kind: CallbackNotInvoked, Detail: "AllocCode fill"}
	}
	if err := area.SetExecutable(); err != nil {
		area.unmap()
		return nil, err
	}
	return area, nil
}

func (r *MmapRuntime) AllocHeap(sizeBytes int, kind wasmir.HeapKind, initialize func(area MemoryArea) error) (MemoryArea, error) {
	if sizeBytes == 0 {
		sizeBytes = wasmir.HeapPageSize
	}
	area, err := newMmapArea(sizeBytes)
	if err != nil {
		return nil, err
	}
	invoked := false
	wrapped := func(a MemoryArea) error {
		invoked = true
		return initialize(a)
	}
	if err := wrapped(area); err != nil {
		area.unmap()
		return nil, err
	}
	if !invoked {
		area.unmap()
		return nil, &AllocError{Kind: CallbackNotInvoked, Detail: "AllocHeap initialize"}
	}
	return area, nil
}

func (r *MmapRuntime) AllocTable(min, max uint32, elementType api.ValueType) ([]uint64, error) {
	size := max
	if size == 0 {
		size = min
	}
	if size == 0 {
		return nil, nil
	}
	return make([]uint64, size), nil
}

// mmapArea is a single anonymous mmap mapping with explicit permission
// tracking.
type mmapArea struct {
	buf []byte
}

func newMmapArea(size int) (*mmapArea, error) {
	buf, err := unix.Mmap(-1, 0, pageAlign(size),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, &AllocError{Kind: OutOfMemory, Detail: err.Error()}
	}
	return &mmapArea{buf: buf}, nil
}

func pageAlign(size int) int {
	const pageSize = 4096
	if size%pageSize == 0 {
		return size
	}
	return (size/pageSize + 1) * pageSize
}

func (a *mmapArea) unmap() {
	_ = unix.Munmap(a.buf)
}

func (a *mmapArea) AsPtr() uintptr     { return uintptr(unsafe.Pointer(&a.buf[0])) }
func (a *mmapArea) AsBytes() []byte    { return a.buf }
func (a *mmapArea) AsBytesMut() []byte { return a.buf }
func (a *mmapArea) Size() int          { return len(a.buf) }

func (a *mmapArea) SetExecutable() error {
	if err := unix.Mprotect(a.buf, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		return &AllocError{Kind: PermissionDenied, Detail: fmt.Sprintf("set_executable: %v", err)}
	}
	return nil
}

func (a *mmapArea) SetWrite() error {
	if err := unix.Mprotect(a.buf, unix.PROT_READ|unix.PROT_WRITE); err != nil {
		return &AllocError{Kind: PermissionDenied, Detail: fmt.Sprintf("set_write: %v", err)}
	}
	return nil
}

func (a *mmapArea) SetReadOnly() error {
	if err := unix.Mprotect(a.buf, unix.PROT_READ); err != nil {
		return &AllocError{Kind: PermissionDenied, Detail: fmt.Sprintf("set_read_only: %v", err)}
	}
	return nil
}

func (a *mmapArea) ExtendBy(n int) error {
	return &AllocError{Kind: OutOfMemory, Detail: "mmapArea does not support growth"}
}
