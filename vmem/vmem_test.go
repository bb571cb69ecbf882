package vmem

import "testing"

type countingHook struct {
	calls map[string]int
}

func (h *countingHook) MakeDefined(uintptr, uintptr)   { h.calls["defined"]++ }
func (h *countingHook) MakeUndefined(uintptr, uintptr) { h.calls["undefined"]++ }
func (h *countingHook) MakeNoAccess(uintptr, uintptr)  { h.calls["noaccess"]++ }
func (h *countingHook) SetClean(uintptr, uintptr)      { h.calls["clean"]++ }
func (h *countingHook) AddToTx(uintptr, uintptr)       { h.calls["addtx"]++ }
func (h *countingHook) RemoveFromTx(uintptr, uintptr)  { h.calls["removetx"]++ }

func TestUseInstallsHook(t *testing.T) {
	h := &countingHook{calls: map[string]int{}}
	Use(h)
	defer Use(nil)

	MakeDefined(0, 8)
	MakeUndefined(0, 8)
	MakeNoAccess(0, 8)
	SetClean(0, 8)
	AddToTx(0, 8)
	RemoveFromTx(0, 8)

	for _, k := range []string{"defined", "undefined", "noaccess", "clean", "addtx", "removetx"} {
		if h.calls[k] != 1 {
			t.Errorf("hook method for %q called %d times, want 1", k, h.calls[k])
		}
	}
}

func TestUseNilRestoresNoop(t *testing.T) {
	Use(nil)
	// Must not panic.
	MakeDefined(0, 8)
}
