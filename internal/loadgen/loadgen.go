// Package loadgen drives the external transaction-generator binary.
//
// The generator is itself a full node: it runs with the last
// validator's finalized config and database, bursts transactions
// into the network and emits one structured log line per burst. That
// log is the single source of truth for which transactions were
// sent; node logs are never consulted for it.
package loadgen

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/ledgerbench/ledgerbench/internal/benchlog"
	"github.com/ledgerbench/ledgerbench/internal/proc"
)

// ErrNoTransactions is returned when the generator's log yields no
// transaction hashes; verification must not run without a trusted
// transaction list.
var ErrNoTransactions = errors.New("loadgen: generator log contains no transactions")

// Generator describes one transaction-generator invocation target.
type Generator struct {
	// Binary is the generator executable.
	Binary string
	// ServiceName selects which service's transactions to generate.
	ServiceName string
	// NodeConfig and DBPath identify the validator the generator
	// acts as.
	NodeConfig string
	DBPath     string
	// LogPath is where the raw generator output is persisted.
	LogPath string
	// Env entries are appended to the generator's environment.
	Env []string
}

// Result captures one finished generator run.
type Result struct {
	// Events are the parsed burst events.
	Events []benchlog.Event
	// Hashes is the ordered list of last-of-burst transaction
	// hashes, the ground truth for verification.
	Hashes []string
	// Raw is the full diagnostic output.
	Raw string
	// Output is the process-level outcome.
	Output proc.Output
}

// LastHash returns the final transaction hash the generator
// reported.
func (r *Result) LastHash() string {
	if len(r.Hashes) == 0 {
		return ""
	}
	return r.Hashes[len(r.Hashes)-1]
}

// Run launches the generator synchronously and blocks until it
// exits. txCount is the total number of transactions; packageSize
// and timeoutMS shape the bursts.
func (g *Generator) Run(txCount, packageSize, timeoutMS int) (*Result, error) {
	cmd := proc.Command{
		Path: g.Binary,
		Args: []string{
			"run",
			g.ServiceName,
			"--node-config", g.NodeConfig,
			"--leveldb-path", g.DBPath,
			"--tx-package-size", strconv.Itoa(packageSize),
			"--tx-timeout", strconv.Itoa(timeoutMS),
			strconv.Itoa(txCount),
		},
		Env: g.Env,
	}

	slog.Info("running transaction generator",
		"txCount", txCount, "packageSize", packageSize, "timeoutMS", timeoutMS)

	out, err := proc.RunSync(cmd)
	if err != nil {
		return nil, err
	}

	if g.LogPath != "" {
		if err := os.MkdirAll(filepath.Dir(g.LogPath), 0o755); err == nil {
			if err := os.WriteFile(g.LogPath, []byte(out.Stderr), 0o644); err != nil {
				slog.Warn("failed to persist generator log", "path", g.LogPath, "error", err)
			}
		}
	}

	if out.ExitCode != 0 {
		return nil, fmt.Errorf("generator %q exited with code %d\nstdout: %s\nstderr: %s",
			cmd, out.ExitCode, out.Stdout, out.Stderr)
	}

	events, hashes := benchlog.ParseGeneratorLog(out.Stderr)
	if len(hashes) == 0 {
		return nil, ErrNoTransactions
	}

	slog.Info("generator finished", "bursts", len(events), "lastHash", hashes[len(hashes)-1])
	return &Result{
		Events: events,
		Hashes: hashes,
		Raw:    out.Stderr,
		Output: out,
	}, nil
}
