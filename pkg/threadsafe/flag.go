package threadsafe

import "sync/atomic"

// Flag is an advisory boolean signal shared between goroutines.
// Setting it does not interrupt anything by itself; readers are
// expected to poll it at their own suspension points.
type Flag struct {
	v atomic.Bool
}

// NewFlag creates a new unset flag.
func NewFlag() *Flag {
	return &Flag{}
}

// Set raises the flag.
func (f *Flag) Set() {
	f.v.Store(true)
}

// Clear lowers the flag.
func (f *Flag) Clear() {
	f.v.Store(false)
}

// IsSet reports whether the flag is raised.
func (f *Flag) IsSet() bool {
	return f.v.Load()
}
