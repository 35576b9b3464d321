// Package consistency determines, by direct storage inspection,
// which submitted transactions failed to replicate to which nodes.
package consistency

import (
	"log/slog"

	"github.com/ledgerbench/ledgerbench/internal/proc"
)

// Checker looks transactions up in each node's local database via an
// external inspection binary.
type Checker struct {
	// Inspector is the storage-inspection executable.
	Inspector string
	// DBPaths holds one database directory per validator, indexed
	// by validator id.
	DBPaths []string
}

// IsTxFound reports whether the node's local storage contains the
// transaction. Zero exit from the inspector means found.
//
// A nonzero exit conflates "transaction absent" with "lookup itself
// failed" (bad path, corrupted database); the contract has no way to
// tell them apart, so both count as unfound. The inspector's stderr
// is logged to keep tool failures diagnosable.
func (c *Checker) IsTxFound(hash string, nodeID int) bool {
	out, err := proc.RunSync(proc.Command{
		Path: c.Inspector,
		Args: []string{"find_tx", hash, "-d", c.DBPaths[nodeID]},
	})
	if err != nil {
		slog.Error("inspector could not be spawned", "error", err)
		return false
	}
	if out.ExitCode != 0 {
		slog.Debug("transaction not found",
			"hash", hash, "node", nodeID, "exitCode", out.ExitCode, "stderr", out.Stderr)
		return false
	}
	return true
}

// VerifyBatch checks every hash against every node and returns the
// per-node unfound counts, indexed by validator id. Every (hash,
// node) pair is classified found or unfound, exactly one of the two.
//
// This is one external process per (hash, node) pair, strictly
// sequential. Known bottleneck; batching would change performance
// only, not the found/unfound contract.
func (c *Checker) VerifyBatch(hashes []string) []int {
	unfound := make([]int, len(c.DBPaths))
	for _, hash := range hashes {
		for node := range c.DBPaths {
			if !c.IsTxFound(hash, node) {
				unfound[node]++
			}
		}
	}
	return unfound
}
