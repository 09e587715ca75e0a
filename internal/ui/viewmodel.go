package ui

import "sync"

// ViewModel is the per-session page state handed to every fragment handler.
type ViewModel struct {
	SessionID string
	Results   *Results

	mu     sync.Mutex
	toggle Toggle
}

// NewViewModel builds a view model showing initial.
func NewViewModel(sessionID string, initial View) *ViewModel {
	return &ViewModel{
		SessionID: sessionID,
		Results:   &Results{},
		toggle:    NewToggle(initial),
	}
}

// Select switches the visible form.
func (vm *ViewModel) Select(v View) error {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.toggle.Select(v)
}

// Toggle returns a snapshot of the toggle state.
func (vm *ViewModel) Toggle() Toggle {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.toggle
}
