// Package vmem holds the instrumentation hooks that the header-flavor and
// block operations call around persistent-memory reads and writes: marking
// ranges defined, undefined, or inaccessible, and bracketing writes that
// should look like a single transactional update to an external analyzer.
//
// None of this does anything unless a Hook is installed with Use. The
// default no-op Hook keeps every call here free, matching the original
// instrumentation's behavior when no analyzer is attached.
package vmem

// Hook receives instrumentation events. All methods must be safe to call
// concurrently; the memblock package calls them from whatever goroutine the
// caller is operating on, with no additional synchronization.
type Hook interface {
	MakeDefined(addr uintptr, size uintptr)
	MakeUndefined(addr uintptr, size uintptr)
	MakeNoAccess(addr uintptr, size uintptr)
	SetClean(addr uintptr, size uintptr)
	AddToTx(addr uintptr, size uintptr)
	RemoveFromTx(addr uintptr, size uintptr)
}

type noopHook struct{}

func (noopHook) MakeDefined(uintptr, uintptr)   {}
func (noopHook) MakeUndefined(uintptr, uintptr) {}
func (noopHook) MakeNoAccess(uintptr, uintptr)  {}
func (noopHook) SetClean(uintptr, uintptr)      {}
func (noopHook) AddToTx(uintptr, uintptr)       {}
func (noopHook) RemoveFromTx(uintptr, uintptr)  {}

var active Hook = noopHook{}

// Use installs h as the active hook. Passing nil restores the no-op hook.
// Intended for tests; not safe to call concurrently with instrumented
// operations.
func Use(h Hook) {
	if h == nil {
		h = noopHook{}
	}
	active = h
}

func MakeDefined(addr uintptr, size uintptr)   { active.MakeDefined(addr, size) }
func MakeUndefined(addr uintptr, size uintptr) { active.MakeUndefined(addr, size) }
func MakeNoAccess(addr uintptr, size uintptr)  { active.MakeNoAccess(addr, size) }
func SetClean(addr uintptr, size uintptr)      { active.SetClean(addr, size) }
func AddToTx(addr uintptr, size uintptr)       { active.AddToTx(addr, size) }
func RemoveFromTx(addr uintptr, size uintptr)  { active.RemoveFromTx(addr, size) }
