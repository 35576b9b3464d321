package consistency_test

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/ledgerbench/ledgerbench/internal/consistency"
)

// writeInspector drops a fake storage-inspection binary. Hashes
// prefixed "found" exist everywhere; hashes prefixed "only0" exist
// only in the database directory ending in db0; everything else is
// absent.
func writeInspector(t *testing.T) string {
	t.Helper()
	script := `#!/bin/sh
# args: find_tx <hash> -d <db-path>
case "$2" in
found*) exit 0 ;;
only0*)
	case "$4" in
	*db0) exit 0 ;;
	esac
	;;
esac
exit 1
`
	path := filepath.Join(t.TempDir(), "inspector.sh")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake inspector: %v", err)
	}
	return path
}

func newChecker(t *testing.T) *consistency.Checker {
	return &consistency.Checker{
		Inspector: writeInspector(t),
		DBPaths:   []string{"/tmp/db0", "/tmp/db1", "/tmp/db2"},
	}
}

func TestIsTxFound(t *testing.T) {
	c := newChecker(t)

	tests := []struct {
		hash string
		node int
		want bool
	}{
		{"found-aaaa", 0, true},
		{"found-aaaa", 2, true},
		{"only0-bbbb", 0, true},
		{"only0-bbbb", 1, false},
		{"missing-cc", 0, false},
		{"missing-cc", 2, false},
	}
	for _, tt := range tests {
		if got := c.IsTxFound(tt.hash, tt.node); got != tt.want {
			t.Errorf("IsTxFound(%q, %d) = %v, want %v", tt.hash, tt.node, got, tt.want)
		}
	}
}

// Repeated lookups with no intervening commits return the same
// answer.
func TestIsTxFoundIsIdempotent(t *testing.T) {
	c := newChecker(t)
	for i := 0; i < 3; i++ {
		if !c.IsTxFound("found-aaaa", 1) {
			t.Fatal("lookup flipped between calls")
		}
		if c.IsTxFound("missing-cc", 1) {
			t.Fatal("lookup flipped between calls")
		}
	}
}

func TestVerifyBatch(t *testing.T) {
	c := newChecker(t)
	hashes := []string{"found-1", "only0-2", "missing-3", "found-4"}

	unfound := c.VerifyBatch(hashes)
	// node 0 misses only missing-3; nodes 1 and 2 also miss only0-2.
	if want := []int{1, 2, 2}; !reflect.DeepEqual(unfound, want) {
		t.Errorf("unfound = %v, want %v", unfound, want)
	}
}

// Every (hash, node) pair is classified found or unfound, exactly
// one of the two: per node, found + unfound == total.
func TestVerifyBatchPartitionsHashes(t *testing.T) {
	c := newChecker(t)
	hashes := []string{"found-1", "only0-2", "missing-3", "missing-4", "found-5"}

	unfound := c.VerifyBatch(hashes)
	for node := range c.DBPaths {
		found := 0
		for _, hash := range hashes {
			if c.IsTxFound(hash, node) {
				found++
			}
		}
		if found+unfound[node] != len(hashes) {
			t.Errorf("node %d: found %d + unfound %d != %d hashes",
				node, found, unfound[node], len(hashes))
		}
	}
}

func TestVerifyBatchEmpty(t *testing.T) {
	c := newChecker(t)
	if unfound := c.VerifyBatch(nil); !reflect.DeepEqual(unfound, []int{0, 0, 0}) {
		t.Errorf("unfound = %v, want all zeros", unfound)
	}
}

func TestVerifyBatchUnspawnableInspector(t *testing.T) {
	c := &consistency.Checker{
		Inspector: "/nonexistent/inspector",
		DBPaths:   []string{"/tmp/db0"},
	}
	// A broken inspector is indistinguishable from absent keys;
	// everything counts as unfound.
	if unfound := c.VerifyBatch([]string{"a", "b"}); unfound[0] != 2 {
		t.Errorf("unfound = %v, want [2]", unfound)
	}
}
