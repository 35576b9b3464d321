package report_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ledgerbench/ledgerbench/internal/benchlog"
	"github.com/ledgerbench/ledgerbench/internal/report"
)

func TestWriteDetail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "bench0.csv")
	rows := []benchlog.Row{
		{TS: 1000, Sent: 100, Committed: 0, BlockSize: 0, TxHash: "aaaa"},
		{TS: 2000, Sent: 100, Committed: 30, BlockSize: 30},
		{TS: 3000, Sent: 200, Committed: 70, BlockSize: 40, TxHash: "bbbb"},
	}
	found := func(hash string) bool { return hash == "aaaa" }

	if err := report.WriteDetail(path, rows, found, 2, []int{0, 1, 0, 2}); err != nil {
		t.Fatalf("WriteDetail: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")

	if lines[0] != "timestamp (ms),sended,commited,current_block_size,tx_hash,is_tx_hash_found_in_node" {
		t.Errorf("header = %q", lines[0])
	}
	if lines[1] != "1000,100,0,0,aaaa,true" {
		t.Errorf("row 1 = %q", lines[1])
	}
	if lines[2] != "2000,100,30,30,," {
		t.Errorf("row 2 = %q, hash columns must be empty", lines[2])
	}
	if lines[3] != "3000,200,70,40,bbbb,false" {
		t.Errorf("row 3 = %q", lines[3])
	}
	if lines[4] != "total_txs: 2" {
		t.Errorf("summary = %q", lines[4])
	}
	if lines[5] != "unfound_txs_per_node: [0 1 0 2]" {
		t.Errorf("unfound vector = %q", lines[5])
	}
}

func TestAppendAggregate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bench.csv")

	// Three sweep points append exactly three data rows under one
	// header.
	for _, size := range []int{100, 200, 300} {
		run := report.BenchRun{
			TxCount:     size * 20,
			PackageSize: size,
			TimeoutMS:   100,
			Unfound:     []int{0, 0, 0, 0},
		}
		if err := report.AppendAggregate(path, run); err != nil {
			t.Fatalf("AppendAggregate(%d): %v", size, err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want header + 3 rows", len(lines))
	}

	wantHeader := "tx_count,tx_package_size,tx_timeout,number_of_expected_txs," +
		"number_of_unfound_txs_in_node_0,number_of_unfound_txs_in_node_1," +
		"number_of_unfound_txs_in_node_2,number_of_unfound_txs_in_node_3"
	if lines[0] != wantHeader {
		t.Errorf("header = %q", lines[0])
	}
	if lines[1] != "2000,100,100,20,0,0,0,0" {
		t.Errorf("row 1 = %q", lines[1])
	}
	if lines[3] != "6000,300,100,20,0,0,0,0" {
		t.Errorf("row 3 = %q", lines[3])
	}
}

func TestAppendAggregateColumnCountTracksValidators(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bench.csv")
	run := report.BenchRun{TxCount: 200, PackageSize: 100, TimeoutMS: 50, Unfound: []int{1, 2}}

	if err := report.AppendAggregate(path, run); err != nil {
		t.Fatal(err)
	}

	data, _ := os.ReadFile(path)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if !strings.HasSuffix(lines[0], "number_of_unfound_txs_in_node_1") {
		t.Errorf("header = %q, want two unfound columns", lines[0])
	}
	if strings.Contains(lines[0], "node_2") {
		t.Errorf("header = %q has more columns than validators", lines[0])
	}
	if lines[1] != "200,100,50,2,1,2" {
		t.Errorf("row = %q", lines[1])
	}
}

func TestExpectedTxs(t *testing.T) {
	tests := []struct {
		txCount, packageSize, want int
	}{
		{2000, 100, 20},
		{100, 100, 1},
		{0, 100, 0},
		{100, 0, 0},
	}
	for _, tt := range tests {
		run := report.BenchRun{TxCount: tt.txCount, PackageSize: tt.packageSize}
		if got := run.ExpectedTxs(); got != tt.want {
			t.Errorf("ExpectedTxs(%d/%d) = %d, want %d", tt.txCount, tt.packageSize, got, tt.want)
		}
	}
}
