// Package cli implements the ledgerbench command actions.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/fatih/color"
	commands "github.com/urfave/cli/v3"

	"github.com/ledgerbench/ledgerbench/internal/config"
	"github.com/ledgerbench/ledgerbench/internal/consistency"
	"github.com/ledgerbench/ledgerbench/internal/history"
	"github.com/ledgerbench/ledgerbench/internal/sweep"
)

var (
	green = color.New(color.FgGreen).SprintFunc()
	bold  = color.New(color.Bold).SprintFunc()
)

// Init writes a default configuration file for editing.
func Init(ctx context.Context, cmd *commands.Command) error {
	path := cmd.String("config")
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}

	if err := config.SaveTo(config.Default(), path); err != nil {
		return err
	}

	fmt.Printf("Created %s\n", path)
	fmt.Println("  binaries_dir  - where the node, generator and inspector binaries live")
	fmt.Println("  work_dir      - scratch space for configs, databases and reports")
	fmt.Println("  sweep         - package-size range and per-burst timeout")
	return nil
}

// Sweep runs the full parameter sweep.
func Sweep(ctx context.Context, cmd *commands.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	var store *history.Store
	if cfg.HistoryDB != "" {
		store, err = history.Open(cfg.HistoryDB)
		if err != nil {
			return err
		}
		defer store.Close()
	}

	runner := sweep.New(cfg, store)
	if err := runner.Run(ctx); err != nil {
		return err
	}

	fmt.Printf("\n%s aggregate report: %s\n", green("Done."), cfg.AggregatePath())
	return nil
}

// Bench runs a single bench point.
func Bench(ctx context.Context, cmd *commands.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	size := int(cmd.Int("package-size"))
	if size <= 0 {
		size = cfg.Sweep.PackageSizeMin
	}
	txCount := int(cmd.Int("tx-count"))
	if txCount <= 0 {
		txCount = size * cfg.Sweep.TxMultiplier
	}

	point := sweep.Point{
		TxCount:     txCount,
		PackageSize: size,
		TimeoutMS:   cfg.Sweep.TxTimeoutMS,
	}

	runner := sweep.New(cfg, nil)
	run, err := runner.RunPoint(ctx, point)
	if err != nil {
		return err
	}

	fmt.Printf("%s unfound per node: %v\n", green("Done."), run.Unfound)
	return nil
}

// Check verifies a file of transaction hashes (one per line) against
// node databases named by repeated --db flags.
func Check(ctx context.Context, cmd *commands.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	args := cmd.Args().Slice()
	if len(args) == 0 {
		return fmt.Errorf("hash file is required\nUsage: ledgerbench check <hashes-file> --db <path> [--db <path> ...]")
	}
	dbs := cmd.StringSlice("db")
	if len(dbs) == 0 {
		return fmt.Errorf("at least one --db path is required")
	}

	hashes, err := readHashes(args[0])
	if err != nil {
		return err
	}

	checker := &consistency.Checker{
		Inspector: cfg.Binary(cfg.InspectorBinary),
		DBPaths:   dbs,
	}
	unfound := checker.VerifyBatch(hashes)

	fmt.Printf("%s %d hashes against %d databases\n", bold("Checked:"), len(hashes), len(dbs))
	for node, count := range unfound {
		fmt.Printf("  node %d: %d unfound\n", node, count)
	}
	return nil
}

// History lists recent bench runs from the history database.
func History(ctx context.Context, cmd *commands.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.HistoryDB == "" {
		return fmt.Errorf("history_db is not configured")
	}

	store, err := history.Open(cfg.HistoryDB)
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.List(int(cmd.Int("limit")))
	if err != nil {
		return err
	}

	for _, e := range entries {
		fmt.Printf("%s  tx_count=%d package_size=%d timeout=%dms unfound=%v\n",
			e.StartedAt.Format("2006-01-02 15:04:05"),
			e.TxCount, e.PackageSize, e.TimeoutMS, e.Unfound)
	}
	return nil
}

// SetupLogging configures slog before any command runs.
func SetupLogging(verbose bool) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func loadConfig(cmd *commands.Command) (*config.Config, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, err
	}

	// Flag values override the file.
	if v := cmd.String("binaries-dir"); v != "" {
		cfg.BinariesDir = v
	}
	if v := cmd.String("work-dir"); v != "" {
		cfg.WorkDir = v
	}
	if v := int(cmd.Int("validators")); v > 0 {
		cfg.Validators = v
	}
	if v := int(cmd.Int("start-port")); v > 0 {
		cfg.StartPort = v
	}
	if v := int(cmd.Int("propose-timeout")); v > 0 {
		cfg.ProposeTimeoutMS = v
	}
	if v := int(cmd.Int("tx-multiplier")); v > 0 {
		cfg.Sweep.TxMultiplier = v
	}
	if v := int(cmd.Int("package-size-min")); v > 0 {
		cfg.Sweep.PackageSizeMin = v
	}
	if v := int(cmd.Int("package-size-max")); v > 0 {
		cfg.Sweep.PackageSizeMax = v
	}
	if v := int(cmd.Int("package-size-step")); v > 0 {
		cfg.Sweep.PackageSizeStep = v
	}
	if v := int(cmd.Int("tx-timeout")); v > 0 {
		cfg.Sweep.TxTimeoutMS = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readHashes(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var hashes []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line != "" {
			hashes = append(hashes, line)
		}
	}
	return hashes, scanner.Err()
}
