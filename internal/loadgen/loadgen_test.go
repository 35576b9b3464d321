package loadgen_test

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/ledgerbench/ledgerbench/internal/loadgen"
)

// writeGenerator drops a fake generator binary that logs two bursts
// to stderr, in the structured shape the real generator uses.
func writeGenerator(t *testing.T, dir string) string {
	t.Helper()
	script := `#!/bin/sh
echo "TRACE tx_generator: connecting" >&2
echo "TRACE tx_generator: 1580301601300 sent package, count=100 last_tx_hash=a1b2c3" >&2
echo "TRACE tx_generator: 1580301601450 sent package, count=200 last_tx_hash=d4e5f6" >&2
exit 0
`
	path := filepath.Join(dir, "generator.sh")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake generator: %v", err)
	}
	return path
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "logs", "tx_generator.log")
	gen := &loadgen.Generator{
		Binary:      writeGenerator(t, dir),
		ServiceName: "timestamping",
		NodeConfig:  "/tmp/work/3/node.toml",
		DBPath:      "/tmp/work/3/db",
		LogPath:     logPath,
	}

	result, err := gen.Run(400, 100, 50)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if want := []string{"a1b2c3", "d4e5f6"}; !reflect.DeepEqual(result.Hashes, want) {
		t.Errorf("Hashes = %v, want %v", result.Hashes, want)
	}
	if result.LastHash() != "d4e5f6" {
		t.Errorf("LastHash = %q", result.LastHash())
	}
	if len(result.Events) != 2 {
		t.Errorf("got %d events, want 2", len(result.Events))
	}

	// The raw log survives both in memory and on disk.
	if !strings.Contains(result.Raw, "connecting") {
		t.Errorf("Raw = %q, unstructured lines dropped", result.Raw)
	}
	persisted, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read persisted log: %v", err)
	}
	if string(persisted) != result.Raw {
		t.Error("persisted log differs from captured output")
	}
}

func TestRunFailingGenerator(t *testing.T) {
	dir := t.TempDir()
	script := "#!/bin/sh\necho 'panic: keypair mismatch' >&2\nexit 3\n"
	path := filepath.Join(dir, "generator.sh")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}

	gen := &loadgen.Generator{Binary: path, ServiceName: "timestamping"}
	_, err := gen.Run(100, 100, 50)
	if err == nil {
		t.Fatal("expected an error for a failing generator")
	}
	if !strings.Contains(err.Error(), "code 3") || !strings.Contains(err.Error(), "keypair mismatch") {
		t.Errorf("error %q does not carry the exit code and output", err)
	}
}

func TestRunWithNoTransactions(t *testing.T) {
	dir := t.TempDir()
	script := "#!/bin/sh\necho 'TRACE tx_generator: nothing sent' >&2\nexit 0\n"
	path := filepath.Join(dir, "generator.sh")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}

	gen := &loadgen.Generator{Binary: path, ServiceName: "timestamping"}
	if _, err := gen.Run(100, 100, 50); !errors.Is(err, loadgen.ErrNoTransactions) {
		t.Fatalf("got %v, want ErrNoTransactions", err)
	}
}

func TestRunUnspawnableBinary(t *testing.T) {
	gen := &loadgen.Generator{Binary: "/nonexistent/generator", ServiceName: "timestamping"}
	if _, err := gen.Run(100, 100, 50); err == nil {
		t.Fatal("expected a spawn error")
	}
}
