package runtime

import "sync"

// ConcurrentTableArena is a realloc-free, mutex-guarded backing array for
// native-provided tables, mirroring the original's kernel/src/memory.rs
// Vma used for table storage: fixed capacity, no growth (Non-goals
// exclude table growth), safe for a native function on one instance to
// mutate while another instance reads via an imported table.
type ConcurrentTableArena struct {
	mu   sync.Mutex
	data []uint64
}

// NewConcurrentTableArena returns an arena of the given fixed size, with
// every slot initialized to the invalid-handle value (zero).
func NewConcurrentTableArena(size uint32) *ConcurrentTableArena {
	return &ConcurrentTableArena{data: make([]uint64, size)}
}

// Get returns the value at idx, or (0, false) if idx is out of bounds.
func (t *ConcurrentTableArena) Get(idx uint32) (uint64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if int(idx) >= len(t.data) {
		return 0, false
	}
	return t.data[idx], true
}

// Set writes value at idx, returning false if idx is out of bounds.
func (t *ConcurrentTableArena) Set(idx uint32, value uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if int(idx) >= len(t.data) {
		return false
	}
	t.data[idx] = value
	return true
}

// Len returns the fixed element count of the arena.
func (t *ConcurrentTableArena) Len() uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return uint32(len(t.data))
}

// Snapshot returns a copy of the current contents.
func (t *ConcurrentTableArena) Snapshot() []uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]uint64, len(t.data))
	copy(out, t.data)
	return out
}
