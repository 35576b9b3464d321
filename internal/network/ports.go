package network

import "sync"

// portSpan bounds how far the allocator advances past its base
// before wrapping. Sequential bench runs within one harness
// invocation keep allocating fresh ports without ever exhausting the
// range.
const portSpan = 10000

// PortAllocator hands out ports deterministically: monotonically
// increasing from the base, wrapping at base+portSpan. One allocator
// is shared across every network a sweep brings up.
type PortAllocator struct {
	mu   sync.Mutex
	base int
	next int
}

// NewPortAllocator creates an allocator starting at base.
func NewPortAllocator(base int) *PortAllocator {
	return &PortAllocator{base: base, next: base}
}

// Next returns the next port in the range.
func (a *PortAllocator) Next() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.next >= a.base+portSpan {
		a.next = a.base
	}
	port := a.next
	a.next++
	return port
}
