package threadsafe_test

import (
	"testing"

	"github.com/ledgerbench/ledgerbench/pkg/threadsafe"
)

func TestMapSetGet(t *testing.T) {
	m := threadsafe.NewMap[int, string]()

	if _, ok := m.Get(0); ok {
		t.Error("Get on an empty map reported a hit")
	}

	m.Set(0, "a")
	m.Set(1, "b")
	m.Set(0, "c")

	if v, ok := m.Get(0); !ok || v != "c" {
		t.Errorf("Get(0) = (%q, %v), want overwritten value", v, ok)
	}
	if m.Len() != 2 {
		t.Errorf("Len() = %d, want 2", m.Len())
	}
}

func TestMapRange(t *testing.T) {
	m := threadsafe.NewMap[int, int]()
	for i := 0; i < 5; i++ {
		m.Set(i, i * i)
	}

	seen := make(map[int]int)
	m.Range(func(k, v int) bool {
		seen[k] = v
		return true
	})
	if len(seen) != 5 || seen[3] != 9 {
		t.Errorf("Range visited %v", seen)
	}

	visits := 0
	m.Range(func(k, v int) bool {
		visits++
		return false
	})
	if visits != 1 {
		t.Errorf("Range made %d visits after the callback declined, want 1", visits)
	}
}
