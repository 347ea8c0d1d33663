package order

import (
	"strings"
	"sync"
)

// Form holds the free-text checkout inputs that live next to the cart.
type Form struct {
	mu      sync.Mutex
	address string
	notes   string
}

func (f *Form) SetAddress(s string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.address = s
}

func (f *Form) SetNotes(s string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notes = s
}

func (f *Form) Address() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.address
}

func (f *Form) Notes() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.notes
}

func (f *Form) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.address = ""
	f.notes = ""
}

// optional trims s and maps empty to nil so it is sent as JSON null.
func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
