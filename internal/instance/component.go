package instance

import (
	"sync/atomic"

	"github.com/charlycst/coral/internal/invoke"
	"github.com/charlycst/coral/internal/wasmir"
)

// Component wraps a materialized Instance with the single-flight
// scheduling discipline of §5: at most one call runs against an instance
// at a time, enforced by a busy flag rather than a lock, so a caller
// finding the instance busy can report that back instead of blocking.
// Grounded on kernel/src/wasm.rs's Component/RunStatus, with Go's
// sync/atomic.Bool standing in for the original's AtomicBool — matching
// how the teacher itself reaches for sync/atomic for its own lock-free
// bookkeeping.
type Component struct {
	instance *Instance
	busy     atomic.Bool
}

// RunStatus reports whether a Run call actually executed the function or
// found the component already busy.
type RunStatus int

const (
	// RunOK means the call executed.
	RunOK RunStatus = iota
	// RunBusy means another call was already in flight; this call did not
	// run.
	RunBusy
)

// NewComponent wraps instance in a Component and, if a start function was
// declared, invokes it immediately (§8 "Start function" scenario). The
// component is guaranteed not busy yet, so the start invocation always
// runs.
func NewComponent(inst *Instance) *Component {
	c := &Component{instance: inst}
	if idx, ok := inst.StartFunc(); ok {
		c.tryRun(idx, nil)
	}
	return c
}

// Run invokes the exported function name with args, or reports RunBusy
// without running it if another call is already in flight.
func (c *Component) Run(name string, args ...uint64) ([]uint64, RunStatus, error) {
	fn, sig, ok := c.instance.FuncAddr(name)
	if !ok {
		return nil, RunOK, &notFoundError{name: name}
	}
	if !c.busy.CompareAndSwap(false, true) {
		return nil, RunBusy, nil
	}
	defer c.busy.Store(false)

	results, err := invoke.Call(fn, c.instance.VMContextPtr(), sig, args...)
	return results, RunOK, err
}

// tryRun is Run's internals applied to an already-resolved FuncIndex,
// used for the start-function invocation where no export name exists.
func (c *Component) tryRun(idx wasmir.FuncIndex, args []uint64) {
	if !c.busy.CompareAndSwap(false, true) {
		return
	}
	defer c.busy.Store(false)

	fn, sig := c.instance.FuncAddrByIndex(idx)
	_, _ = invoke.Call(fn, c.instance.VMContextPtr(), sig, args...)
}

// Instance returns the wrapped instance, for callers that need direct
// access (e.g. to resolve it as another component's import dependency).
func (c *Component) Instance() *Instance {
	return c.instance
}

type notFoundError struct{ name string }

func (e *notFoundError) Error() string {
	return "no export named " + e.name
}
