// Package benchlog turns raw node and generator log text into
// structured events.
//
// The rest of the harness depends on Event values, never on raw log
// lines. The line grammar is fixed:
//
//	node line:      ^<timestamp ms> ... committed=<total> ...
//	generator line: ^... <timestamp ms> ... count=<total> ... last_tx_hash=<hex> ...
//
// Anything not matching is ignored. Timestamps are embedded by the
// processes themselves; there is no shared clock, so cross-process
// ordering reconstructed from them is approximate.
package benchlog

import (
	"regexp"
	"sort"
	"strconv"
)

// Event is one parsed log line. Committed and Sent are nil when the
// source line did not carry them.
type Event struct {
	TS        int64
	Committed *int
	Sent      *int
	TxHash    string
}

var (
	nodeLine      = regexp.MustCompile(`^(\d+).*committed=(\d+)`)
	generatorLine = regexp.MustCompile(`^.*?(\d+).*count=(\d+).*last_tx_hash=(\w+)`)
)

// ParseNodeLog extracts commit events from one node's log.
func ParseNodeLog(log string) []Event {
	var events []Event
	forEachLine(log, func(line string) {
		m := nodeLine.FindStringSubmatch(line)
		if m == nil {
			return
		}
		ts, err1 := strconv.ParseInt(m[1], 10, 64)
		committed, err2 := strconv.Atoi(m[2])
		if err1 != nil || err2 != nil {
			return
		}
		events = append(events, Event{TS: ts, Committed: &committed})
	})
	return events
}

// ParseGeneratorLog extracts burst events from the generator's log.
// The returned hash list, in emission order, is the single source of
// truth for which transactions were sent.
func ParseGeneratorLog(log string) ([]Event, []string) {
	var events []Event
	var hashes []string
	forEachLine(log, func(line string) {
		m := generatorLine.FindStringSubmatch(line)
		if m == nil {
			return
		}
		ts, err1 := strconv.ParseInt(m[1], 10, 64)
		sent, err2 := strconv.Atoi(m[2])
		if err1 != nil || err2 != nil {
			return
		}
		events = append(events, Event{TS: ts, Sent: &sent, TxHash: m[3]})
		hashes = append(hashes, m[3])
	})
	return events, hashes
}

func forEachLine(log string, fn func(string)) {
	start := 0
	for i := 0; i <= len(log); i++ {
		if i == len(log) || log[i] == '\n' {
			if i > start {
				fn(log[start:i])
			}
			start = i + 1
		}
	}
}

// Merge combines event sequences into one, stably sorted by
// timestamp: ties keep their original relative order.
func Merge(sequences ...[]Event) []Event {
	var merged []Event
	for _, seq := range sequences {
		merged = append(merged, seq...)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].TS < merged[j].TS
	})
	return merged
}

// Row is one reduced entry of a merged sequence, with the sticky
// sent/committed totals carried forward.
type Row struct {
	TS        int64
	Sent      int
	Committed int
	// BlockSize is the commit delta this event contributed; zero
	// for events that did not update the committed total.
	BlockSize int
	TxHash    string
}

// Reduce walks a merged sequence carrying the last known sent and
// committed totals across events that do not update them.
func Reduce(events []Event) []Row {
	rows := make([]Row, 0, len(events))
	sent, committed := 0, 0
	for _, ev := range events {
		if ev.Sent != nil {
			sent = *ev.Sent
		}
		blockSize := 0
		if ev.Committed != nil {
			blockSize = *ev.Committed - committed
			committed = *ev.Committed
		}
		rows = append(rows, Row{
			TS:        ev.TS,
			Sent:      sent,
			Committed: committed,
			BlockSize: blockSize,
			TxHash:    ev.TxHash,
		})
	}
	return rows
}
