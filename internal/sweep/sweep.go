// Package sweep drives bench runs across a package-size parameter
// sweep, folding each run into the aggregate report.
package sweep

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"

	"github.com/ledgerbench/ledgerbench/internal/benchlog"
	"github.com/ledgerbench/ledgerbench/internal/config"
	"github.com/ledgerbench/ledgerbench/internal/consistency"
	"github.com/ledgerbench/ledgerbench/internal/history"
	"github.com/ledgerbench/ledgerbench/internal/loadgen"
	"github.com/ledgerbench/ledgerbench/internal/network"
	"github.com/ledgerbench/ledgerbench/internal/nodeapi"
	"github.com/ledgerbench/ledgerbench/internal/proc"
	"github.com/ledgerbench/ledgerbench/internal/report"
)

var (
	green     = color.New(color.FgGreen).SprintFunc()
	red       = color.New(color.FgRed).SprintFunc()
	bold      = color.New(color.Bold).SprintFunc()
	checkMark = green("✓")
	crossMark = red("✗")
)

// settleDelay gives log buffers time to drain the last in-flight
// line after the stop flag flips.
const settleDelay = time.Second

var nodeEnv = []string{"RUST_BACKTRACE=1", "RUST_LOG=exonum=trace"}
var generatorEnv = []string{"RUST_BACKTRACE=1", "RUST_LOG=tx_generator=trace,exonum=trace"}

// Point is one bench run's parameter triple.
type Point struct {
	TxCount     int
	PackageSize int
	TimeoutMS   int
}

// Points enumerates the sweep: package sizes from min to max
// inclusive, advancing by step; min == max yields exactly one point.
func Points(s config.Sweep) []Point {
	var points []Point
	for size := s.PackageSizeMin; size <= s.PackageSizeMax; size += s.PackageSizeStep {
		points = append(points, Point{
			TxCount:     size * s.TxMultiplier,
			PackageSize: size,
			TimeoutMS:   s.TxTimeoutMS,
		})
	}
	return points
}

// Runner executes bench runs.
type Runner struct {
	cfg   *config.Config
	ports *network.PortAllocator
	api   *nodeapi.Client
	store *history.Store
	out   io.Writer
}

// New creates a runner. The history store may be nil.
func New(cfg *config.Config, store *history.Store) *Runner {
	return &Runner{
		cfg:   cfg,
		ports: network.NewPortAllocator(cfg.StartPort),
		api:   nodeapi.New(),
		store: store,
		out:   os.Stdout,
	}
}

// Run executes the full sweep. A failing bench point aborts the
// remaining points; partial aggregate rows written so far stay on
// disk.
func (r *Runner) Run(ctx context.Context) error {
	points := Points(r.cfg.Sweep)
	fmt.Fprintf(r.out, "%s %d bench runs, package sizes %d..%d step %d\n",
		bold("Sweep:"), len(points),
		r.cfg.Sweep.PackageSizeMin, r.cfg.Sweep.PackageSizeMax, r.cfg.Sweep.PackageSizeStep)

	for i, pt := range points {
		fmt.Fprintf(r.out, "%s tx_count=%d package_size=%d timeout=%dms\n",
			bold(fmt.Sprintf("[%d/%d]", i+1, len(points))), pt.TxCount, pt.PackageSize, pt.TimeoutMS)

		run, err := r.RunPoint(ctx, pt)
		if err != nil {
			fmt.Fprintf(r.out, " %s bench run failed: %v\n", crossMark, err)
			return err
		}
		fmt.Fprintf(r.out, " %s unfound per node: %v\n", checkMark, run.Unfound)

		if i < len(points)-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(r.cfg.Sweep.CooldownSeconds) * time.Second):
			}
		}
	}
	return nil
}

// RunPoint executes one bench run and appends its aggregate row.
func (r *Runner) RunPoint(ctx context.Context, pt Point) (*report.BenchRun, error) {
	startedAt := time.Now()
	runDir := filepath.Join(r.cfg.WorkDir, fmt.Sprintf("run-p%d", pt.PackageSize))
	logsDir := filepath.Join(runDir, "logs")

	// Every run starts from clean databases and logs.
	if err := os.RemoveAll(runDir); err != nil {
		return nil, fmt.Errorf("clean run directory: %w", err)
	}
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return nil, fmt.Errorf("prepare run directory: %w", err)
	}

	net := network.New(network.Options{
		AppBinary:      r.cfg.Binary(r.cfg.NodeBinary),
		WorkDir:        runDir,
		SupervisorMode: r.cfg.SupervisorMode,
		ProposeTimeout: r.cfg.ProposeTimeoutMS,
		NodeEnv:        nodeEnv,
		SettleDelay:    settleDelay,
	}, r.ports)

	validators := r.cfg.Validators
	// The generator acts as the last validator; the rest run as
	// regular node processes.
	runNodes := validators - 1

	if err := net.Launch(validators, runNodes); err != nil {
		net.Stop(ctx)
		return nil, err
	}
	if err := net.WaitForStart(ctx); err != nil {
		net.Stop(ctx)
		return nil, err
	}

	gen := &loadgen.Generator{
		Binary:      r.cfg.Binary(r.cfg.GeneratorBinary),
		ServiceName: r.cfg.ServiceName,
		NodeConfig:  net.NodeConfig(validators - 1),
		DBPath:      net.DBPath(validators - 1),
		LogPath:     filepath.Join(logsDir, "tx_generator.log"),
		Env:         generatorEnv,
	}

	result, err := gen.Run(pt.TxCount, pt.PackageSize, pt.TimeoutMS)
	if err != nil {
		net.Stop(ctx)
		return nil, err
	}

	// Without the final transaction committed there is no trusted
	// transaction list and verification must not run.
	addr, err := net.PublicAddr(0)
	if err != nil {
		net.Stop(ctx)
		return nil, err
	}
	if err := r.api.WaitForTx(ctx, addr, result.LastHash()); err != nil {
		net.Stop(ctx)
		return nil, err
	}

	net.SignalStop()
	time.Sleep(settleDelay)
	outputs := net.Stop(ctx)
	for id, out := range outputs {
		if out.Result == proc.Killed {
			slog.Warn("validator was force-killed at teardown", "validator", id)
		}
	}

	checker := &consistency.Checker{
		Inspector: r.cfg.Binary(r.cfg.InspectorBinary),
		DBPaths:   dbPaths(net, validators),
	}
	unfound := checker.VerifyBatch(result.Hashes)

	run := &report.BenchRun{
		TxCount:     pt.TxCount,
		PackageSize: pt.PackageSize,
		TimeoutMS:   pt.TimeoutMS,
		Unfound:     unfound,
	}

	if err := r.writeDetails(net, runNodes, validators, logsDir, result, checker, unfound); err != nil {
		return nil, err
	}
	if err := report.AppendAggregate(r.cfg.AggregatePath(), *run); err != nil {
		return nil, fmt.Errorf("append aggregate row: %w", err)
	}
	if r.store != nil {
		killed := make([]bool, validators)
		for id, out := range outputs {
			killed[id] = out.Result == proc.Killed
		}
		if err := r.store.Insert(*run, killed, startedAt); err != nil {
			slog.Warn("failed to record bench run in history", "error", err)
		}
	}

	slog.Info("bench run complete",
		"txCount", pt.TxCount, "packageSize", pt.PackageSize,
		"unfound", unfound, "elapsed", time.Since(startedAt))
	return run, nil
}

// writeDetails writes the raw per-node logs and one detail table per
// (run, node). The generator's own log doubles as the last
// validator's node log: the generator is that node.
func (r *Runner) writeDetails(net *network.Network, runNodes, validators int, logsDir string,
	result *loadgen.Result, checker *consistency.Checker, unfound []int) error {

	for id := 0; id < validators; id++ {
		var nodeLog string
		if id < runNodes {
			log, err := net.NodeLog(id)
			if err != nil {
				return err
			}
			nodeLog = log
		} else {
			nodeLog = result.Raw
		}

		rawPath := filepath.Join(logsDir, fmt.Sprintf("node_%d.log", id))
		if err := os.WriteFile(rawPath, []byte(nodeLog), 0o644); err != nil {
			return fmt.Errorf("write node log: %w", err)
		}

		merged := benchlog.Merge(benchlog.ParseNodeLog(nodeLog), result.Events)
		rows := benchlog.Reduce(merged)

		nodeID := id
		detailPath := filepath.Join(logsDir, fmt.Sprintf("bench%d.csv", id))
		err := report.WriteDetail(detailPath, rows, func(hash string) bool {
			return checker.IsTxFound(hash, nodeID)
		}, len(result.Hashes), unfound)
		if err != nil {
			return fmt.Errorf("write detail table: %w", err)
		}
	}
	return nil
}

func dbPaths(net *network.Network, validators int) []string {
	paths := make([]string, validators)
	for id := range paths {
		paths[id] = net.DBPath(id)
	}
	return paths
}
