package proc

import (
	"bufio"
	"io"
	"strings"
	"time"

	"github.com/ledgerbench/ledgerbench/pkg/threadsafe"
)

// Collector continuously drains one process's diagnostic stream into
// an owned buffer, one line at a time, while the process runs.
//
// The stop flag is advisory: raising it does not interrupt an
// in-flight blocking read, so at most one more line lands in the
// buffer after the flip. Shutdown latency is therefore bounded by one
// line-read period, not by forced cancellation. The buffer has
// exactly one writer (the collector goroutine); callers must read it
// only after Wait has returned.
type Collector struct {
	stop *threadsafe.Flag
	buf  strings.Builder
	done chan struct{}
}

func newCollector(stop *threadsafe.Flag) *Collector {
	return &Collector{
		stop: stop,
		done: make(chan struct{}),
	}
}

// NewCollector creates a collector for an arbitrary stream and starts
// draining it. Node processes get theirs wired up by StartCollected.
func NewCollector(r io.Reader, stop *threadsafe.Flag) *Collector {
	c := newCollector(stop)
	go c.run(r)
	return c
}

func (c *Collector) run(r io.Reader) {
	defer close(c.done)

	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			c.buf.WriteString(line)
		}
		if err != nil {
			// EOF: the writer side exited or was killed.
			return
		}
		if c.stop.IsSet() {
			return
		}
	}
}

// Wait blocks until the collector goroutine has finished or the grace
// period elapses. It reports whether the buffer is settled; on false
// the collector may still be blocked in a read and the buffer must
// not be touched yet.
func (c *Collector) Wait(grace time.Duration) bool {
	select {
	case <-c.done:
		return true
	case <-time.After(grace):
		return false
	}
}

// Log returns everything collected so far. Only valid after Wait has
// reported a settled buffer.
func (c *Collector) Log() string {
	return c.buf.String()
}
