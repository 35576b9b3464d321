package history_test

import (
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/ledgerbench/ledgerbench/internal/history"
	"github.com/ledgerbench/ledgerbench/internal/report"
)

func openStore(t *testing.T) *history.Store {
	t.Helper()
	store, err := history.Open(filepath.Join(t.TempDir(), "state", "history.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestInsertAndList(t *testing.T) {
	store := openStore(t)

	first := report.BenchRun{TxCount: 2000, PackageSize: 100, TimeoutMS: 100, Unfound: []int{0, 1, 0, 2}}
	second := report.BenchRun{TxCount: 4000, PackageSize: 200, TimeoutMS: 100, Unfound: []int{0, 0, 0, 0}}

	t0 := time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)
	if err := store.Insert(first, []bool{false, true, false, false}, t0); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := store.Insert(second, []bool{false, false, false, false}, t0.Add(time.Minute)); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	entries, err := store.List(10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}

	// Newest first.
	if entries[0].TxCount != 4000 || entries[1].TxCount != 2000 {
		t.Errorf("order = [%d, %d], want newest first", entries[0].TxCount, entries[1].TxCount)
	}

	got := entries[1]
	if got.PackageSize != 100 || got.TimeoutMS != 100 || got.ExpectedTxs != 20 {
		t.Errorf("entry = %+v", got)
	}
	if !reflect.DeepEqual(got.Unfound, []int{0, 1, 0, 2}) {
		t.Errorf("Unfound = %v, want [0 1 0 2]", got.Unfound)
	}
	if !reflect.DeepEqual(got.Killed, []bool{false, true, false, false}) {
		t.Errorf("Killed = %v", got.Killed)
	}
}

func TestListRespectsLimit(t *testing.T) {
	store := openStore(t)

	run := report.BenchRun{TxCount: 100, PackageSize: 100, TimeoutMS: 100, Unfound: []int{0}}
	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		if err := store.Insert(run, []bool{false}, base.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := store.List(3)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Errorf("got %d entries, want 3", len(entries))
	}
}

func TestListEmptyStore(t *testing.T) {
	store := openStore(t)
	entries, err := store.List(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("got %d entries from a fresh store", len(entries))
	}
}
