// Package report writes the per-run detail tables and the aggregate
// sweep report.
package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/ledgerbench/ledgerbench/internal/benchlog"
)

var detailHeader = []string{
	"timestamp (ms)", "sended", "commited", "current_block_size", "tx_hash", "is_tx_hash_found_in_node",
}

// BenchRun is one row of the aggregate report, immutable once
// written.
type BenchRun struct {
	TxCount     int
	PackageSize int
	TimeoutMS   int
	// Unfound holds per-node unfound transaction counts, indexed
	// by validator id.
	Unfound []int
}

// ExpectedTxs is the number of burst events the generator should
// have emitted for this run.
func (r BenchRun) ExpectedTxs() int {
	if r.PackageSize == 0 {
		return 0
	}
	return r.TxCount / r.PackageSize
}

// WriteDetail writes one (run, node) detail table: the reduced
// merged event rows, each annotated with whether its transaction
// hash (if any) was found in this node, followed by a summary with
// the total hash count and the full unfound vector.
func WriteDetail(path string, rows []benchlog.Row, found func(hash string) bool, hashCount int, unfound []int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(detailHeader); err != nil {
		return err
	}
	for _, row := range rows {
		record := []string{
			strconv.FormatInt(row.TS, 10),
			strconv.Itoa(row.Sent),
			strconv.Itoa(row.Committed),
			strconv.Itoa(row.BlockSize),
			"", "",
		}
		if row.TxHash != "" {
			record[4] = row.TxHash
			record[5] = strconv.FormatBool(found(row.TxHash))
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}

	_, err = fmt.Fprintf(f, "total_txs: %d\nunfound_txs_per_node: %v\n", hashCount, unfound)
	return err
}

// AppendAggregate appends exactly one row for the run to the
// aggregate sweep report, creating the file with its header on first
// use. The unfound column count equals the validator count.
func AppendAggregate(path string, run BenchRun) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	writeHeader := false
	if info, err := os.Stat(path); err != nil || info.Size() == 0 {
		writeHeader = true
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if writeHeader {
		header := []string{"tx_count", "tx_package_size", "tx_timeout", "number_of_expected_txs"}
		for i := range run.Unfound {
			header = append(header, fmt.Sprintf("number_of_unfound_txs_in_node_%d", i))
		}
		if err := w.Write(header); err != nil {
			return err
		}
	}

	record := []string{
		strconv.Itoa(run.TxCount),
		strconv.Itoa(run.PackageSize),
		strconv.Itoa(run.TimeoutMS),
		strconv.Itoa(run.ExpectedTxs()),
	}
	for _, count := range run.Unfound {
		record = append(record, strconv.Itoa(count))
	}
	if err := w.Write(record); err != nil {
		return err
	}

	w.Flush()
	return w.Error()
}
