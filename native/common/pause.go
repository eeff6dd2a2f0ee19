package common

import "errors"

var ErrModulePaused = errors.New("module paused")

// PauseView reports whether a named module is currently suspended by the
// embedding system.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects mutating operations while the module is suspended. A nil view
// means no pause wiring was supplied and the operation proceeds.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}
