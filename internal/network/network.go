// Package network brings a fleet of validator nodes up and down.
//
// The regular path walks each validator through the required
// configuration sequence (template, per-validator config, finalize)
// before launching its long-running process; a single-node dev path
// skips straight to running. Node processes live in their own
// process groups and their logs are drained continuously while they
// run, so teardown never truncates captured output.
package network

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ledgerbench/ledgerbench/internal/nodeapi"
	"github.com/ledgerbench/ledgerbench/internal/proc"
	"github.com/ledgerbench/ledgerbench/pkg/threadsafe"
)

// State tracks a validator through its lifecycle. The regular path
// requires the states in order; RunDev jumps straight to Running.
type State int

const (
	Unconfigured State = iota
	TemplateGenerated
	ConfigGenerated
	Finalized
	Running
	Stopped
)

// Options configures a Network.
type Options struct {
	// AppBinary is the node binary implementing the
	// generate-template / generate-config / finalize / run /
	// run-dev subcommands.
	AppBinary string
	// WorkDir holds the generated configs and databases.
	WorkDir string
	// SupervisorMode is passed through to generate-template.
	SupervisorMode string
	// ProposeTimeout, when positive, overrides the consensus
	// propose timeout in the generated template (milliseconds).
	ProposeTimeout int
	// NodeEnv entries are appended to every node process
	// environment.
	NodeEnv []string
	// ShutdownTimeout bounds how long Stop waits per node before
	// forcing a kill.
	ShutdownTimeout time.Duration
	// SettleDelay is how long log buffers are given to settle
	// after the stop flag flips.
	SettleDelay time.Duration
}

type nodeEntry struct {
	id          int
	state       State
	handle      *proc.Process
	collector   *proc.Collector
	peerAddr    string
	publicAddr  string
	privateAddr string
}

// Network orchestrates one fleet of validators. The validator count
// is fixed once the template is generated.
type Network struct {
	opts  Options
	ports *PortAllocator
	api   *nodeapi.Client
	stop  *threadsafe.Flag

	validators int
	templated  bool
	nodes      *threadsafe.Map[int, *nodeEntry]
}

// New creates a network rooted at opts.WorkDir. The allocator is
// shared by the caller across sequential networks so port allocation
// stays deterministic for the whole harness invocation.
func New(opts Options, ports *PortAllocator) *Network {
	if opts.SupervisorMode == "" {
		opts.SupervisorMode = "simple"
	}
	if opts.ShutdownTimeout == 0 {
		// Nodes can be slow joining their API threads.
		opts.ShutdownTimeout = 100 * time.Second
	}
	if opts.SettleDelay == 0 {
		opts.SettleDelay = time.Second
	}
	return &Network{
		opts:  opts,
		ports: ports,
		api:   nodeapi.New(),
		stop:  threadsafe.NewFlag(),
		nodes: threadsafe.NewMap[int, *nodeEntry](),
	}
}

// GenerateTemplate produces the shared genesis/consensus template for
// the whole fleet and fixes the validator count.
func (n *Network) GenerateTemplate(validatorsCount int, supervisorMode string) error {
	if err := os.MkdirAll(n.opts.WorkDir, 0o755); err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}

	err := n.runCommand("generate-template",
		n.commonConfig(),
		"--validators-count", strconv.Itoa(validatorsCount),
		"--supervisor-mode", supervisorMode,
	)
	if err != nil {
		return err
	}

	if n.opts.ProposeTimeout > 0 {
		if err := patchProposeTimeout(n.commonConfig(), n.opts.ProposeTimeout); err != nil {
			return fmt.Errorf("override propose timeout: %w", err)
		}
	}

	n.validators = validatorsCount
	n.templated = true
	for id := 0; id < validatorsCount; id++ {
		n.nodes.Set(id, &nodeEntry{id: id, state: TemplateGenerated})
	}
	return nil
}

// GenerateConfig produces one validator's key material and partial
// config. Template generation must have completed first.
func (n *Network) GenerateConfig(id int, peerAddress string) error {
	if !n.templated {
		return fmt.Errorf("generate-config for validator %d: template not generated", id)
	}
	entry, err := n.entry(id)
	if err != nil {
		return err
	}

	err = n.runCommand("generate-config",
		n.commonConfig(),
		n.validatorDir(id),
		"--peer-address", peerAddress,
		"-n",
	)
	if err != nil {
		return err
	}

	entry.peerAddr = peerAddress
	entry.state = ConfigGenerated
	return nil
}

// Finalize merges the validator's private config with the public
// configs of the entire fleet into one runnable node config. It
// requires every validator's GenerateConfig to have completed: the
// full, fixed-size list of public configs is read, never a subset.
func (n *Network) Finalize(id int, publicAPIAddress, privateAPIAddress string) error {
	entry, err := n.entry(id)
	if err != nil {
		return err
	}

	publicConfigs := make([]string, 0, n.validators)
	for i := 0; i < n.validators; i++ {
		pub := n.validatorConfig(i, "pub")
		if _, err := os.Stat(pub); err != nil {
			return &ConfigError{
				Command:  fmt.Sprintf("%s finalize", n.opts.AppBinary),
				ExitCode: -1,
				Stderr:   fmt.Sprintf("missing public config %s: generate-config has not run for validator %d", pub, i),
			}
		}
		publicConfigs = append(publicConfigs, pub)
	}

	args := []string{
		n.validatorConfig(id, "sec"),
		n.validatorConfig(id, "node"),
		"--public-api-address", publicAPIAddress,
		"--private-api-address", privateAPIAddress,
		"--public-configs",
	}
	args = append(args, publicConfigs...)

	if err := n.runCommand("finalize", args...); err != nil {
		return err
	}

	entry.publicAddr = publicAPIAddress
	entry.privateAddr = privateAPIAddress
	entry.state = Finalized
	return nil
}

// RunNode launches the validator's node process asynchronously and
// attaches a log collector to its diagnostic stream.
func (n *Network) RunNode(id int) error {
	entry, err := n.entry(id)
	if err != nil {
		return err
	}
	if entry.state != Finalized {
		return fmt.Errorf("run validator %d: not finalized", id)
	}

	cmd := proc.Command{
		Path: n.opts.AppBinary,
		Args: []string{
			"run",
			"--node-config", n.validatorConfig(id, "node"),
			"--db-path", n.DBPath(id),
			"--public-api-address", entry.publicAddr,
			"--master-key-pass", "pass",
		},
		Env: n.opts.NodeEnv,
	}

	handle, collector, err := proc.StartCollected(cmd, n.stop)
	if err != nil {
		return fmt.Errorf("run validator %d: %w", id, err)
	}
	slog.Info("node started", "validator", id, "public", entry.publicAddr, "private", entry.privateAddr)

	entry.handle = handle
	entry.collector = collector
	entry.state = Running
	return nil
}

// RunDev launches a single node in dev mode, skipping the
// configuration sequence, and seeds the topology bookkeeping for one
// validator.
func (n *Network) RunDev() error {
	if err := os.MkdirAll(n.opts.WorkDir, 0o755); err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}

	cmd := proc.Command{
		Path: n.opts.AppBinary,
		Args: []string{"run-dev", "-p", n.opts.WorkDir, "--clean"},
		Env:  n.opts.NodeEnv,
	}
	handle, collector, err := proc.StartCollected(cmd, n.stop)
	if err != nil {
		return fmt.Errorf("run-dev: %w", err)
	}

	n.validators = 1
	n.templated = true
	n.nodes.Set(0, &nodeEntry{
		id:          0,
		state:       Running,
		handle:      handle,
		collector:   collector,
		publicAddr:  fmt.Sprintf("127.0.0.1:%d", n.ports.Next()),
		privateAddr: fmt.Sprintf("127.0.0.1:%d", n.ports.Next()),
	})
	return nil
}

// Launch walks the full configuration sequence for validatorsCount
// validators and starts the first runNodes of them. A bench run
// passes runNodes = validatorsCount-1 and hands the last validator's
// config to the transaction generator, which acts as that node.
func (n *Network) Launch(validatorsCount, runNodes int) error {
	if runNodes > validatorsCount {
		return fmt.Errorf("cannot run %d nodes with %d validators", runNodes, validatorsCount)
	}

	if err := n.GenerateTemplate(validatorsCount, n.opts.SupervisorMode); err != nil {
		return err
	}
	for id := 0; id < validatorsCount; id++ {
		peer := fmt.Sprintf("127.0.0.1:%d", n.ports.Next())
		if err := n.GenerateConfig(id, peer); err != nil {
			return err
		}
	}
	for id := 0; id < validatorsCount; id++ {
		public := fmt.Sprintf("127.0.0.1:%d", n.ports.Next())
		private := fmt.Sprintf("127.0.0.1:%d", n.ports.Next())
		if err := n.Finalize(id, public, private); err != nil {
			return err
		}
	}
	for id := 0; id < runNodes; id++ {
		if err := n.RunNode(id); err != nil {
			return err
		}
	}
	return nil
}

// WaitForStart blocks until every running node has committed its
// first block, i.e. consensus is live.
func (n *Network) WaitForStart(ctx context.Context) error {
	for id := 0; id < n.validators; id++ {
		entry, _ := n.nodes.Get(id)
		if entry == nil || entry.handle == nil {
			continue
		}
		host := entry.publicAddr
		if err := n.api.WaitForHeight(ctx, host, 1); err != nil {
			return fmt.Errorf("validator %d never started: %w", id, err)
		}
	}
	return nil
}

// SignalStop raises the advisory stop flag read by every log
// collector. It does not touch the node processes.
func (n *Network) SignalStop() {
	n.stop.Set()
}

// Stop tears the fleet down: for each launched validator in id
// order, a best-effort shutdown request is fired at its private API,
// then its process is joined with a bounded timeout and killed past
// it. One Output per launched validator is always returned,
// regardless of node responsiveness.
func (n *Network) Stop(ctx context.Context) []proc.Output {
	n.stop.Set()

	outputs := make([]proc.Output, 0, n.validators)
	for id := 0; id < n.validators; id++ {
		entry, _ := n.nodes.Get(id)
		if entry == nil || entry.handle == nil {
			continue
		}

		if err := n.api.Shutdown(ctx, entry.privateAddr); err != nil {
			slog.Warn("shutdown request failed", "validator", id, "error", err)
		}

		out := entry.handle.Join(n.opts.ShutdownTimeout, true)
		if out.Result == proc.Killed {
			slog.Warn("validator did not stop in time, killed", "validator", id)
		}
		entry.state = Stopped
		outputs = append(outputs, out)
	}
	return outputs
}

// NodeLog returns everything the validator's collector drained. Only
// meaningful once the node is stopped; the buffer is given the
// configured settle delay. An unsettled buffer still has the
// collector writing into it, so it is never read through.
func (n *Network) NodeLog(id int) (string, error) {
	entry, err := n.entry(id)
	if err != nil {
		return "", err
	}
	if entry.collector == nil {
		return "", fmt.Errorf("validator %d has no collector", id)
	}
	if !entry.collector.Wait(n.opts.SettleDelay) {
		return "", fmt.Errorf("validator %d log buffer did not settle within %v", id, n.opts.SettleDelay)
	}
	return entry.collector.Log(), nil
}

// APIAddress returns (host, public port, private port) for a
// validator.
func (n *Network) APIAddress(id int) (string, int, int, error) {
	entry, err := n.entry(id)
	if err != nil {
		return "", 0, 0, err
	}

	host, publicPort, err := splitHostPort(entry.publicAddr)
	if err != nil {
		return "", 0, 0, fmt.Errorf("validator %d public address: %w", id, err)
	}
	_, privatePort, err := splitHostPort(entry.privateAddr)
	if err != nil {
		return "", 0, 0, fmt.Errorf("validator %d private address: %w", id, err)
	}
	return host, publicPort, privatePort, nil
}

// Validators returns the fixed validator count.
func (n *Network) Validators() int {
	return n.validators
}

// NodeConfig returns the path of a validator's finalized node config.
func (n *Network) NodeConfig(id int) string {
	return n.validatorConfig(id, "node")
}

// DBPath returns the path of a validator's database directory.
func (n *Network) DBPath(id int) string {
	return filepath.Join(n.validatorDir(id), "db")
}

// PublicAddr returns a validator's public API address.
func (n *Network) PublicAddr(id int) (string, error) {
	entry, err := n.entry(id)
	if err != nil {
		return "", err
	}
	return entry.publicAddr, nil
}

func (n *Network) entry(id int) (*nodeEntry, error) {
	if id < 0 || id >= n.validators {
		return nil, fmt.Errorf("expected id >= 0 and < %d, got %d: %w",
			n.validators, id, ErrNodeOutOfRange)
	}
	entry, ok := n.nodes.Get(id)
	if !ok {
		return nil, fmt.Errorf("expected id >= 0 and < %d, got %d: %w",
			n.validators, id, ErrNodeOutOfRange)
	}
	return entry, nil
}

func (n *Network) runCommand(subcommand string, args ...string) error {
	cmd := proc.Command{
		Path: n.opts.AppBinary,
		Args: append([]string{subcommand}, args...),
	}

	out, err := proc.RunSync(cmd)
	if err != nil {
		return err
	}
	if out.ExitCode != 0 {
		return &ConfigError{
			Command:  cmd.String(),
			ExitCode: out.ExitCode,
			Stdout:   out.Stdout,
			Stderr:   out.Stderr,
		}
	}
	return nil
}

func (n *Network) commonConfig() string {
	return filepath.Join(n.opts.WorkDir, "common.toml")
}

func (n *Network) validatorDir(id int) string {
	return filepath.Join(n.opts.WorkDir, strconv.Itoa(id))
}

func (n *Network) validatorConfig(id int, kind string) string {
	return filepath.Join(n.validatorDir(id), kind+".toml")
}

var proposeTimeoutLine = regexp.MustCompile(`(?m)^(propose_timeout\s*=\s*)\d+`)

// patchProposeTimeout rewrites the propose_timeout entry of a
// generated template in place, appending one if the template carries
// none.
func patchProposeTimeout(path string, timeoutMS int) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	patched := proposeTimeoutLine.ReplaceAllString(string(data),
		fmt.Sprintf("${1}%d", timeoutMS))
	if patched == string(data) && !proposeTimeoutLine.MatchString(string(data)) {
		patched = patched + fmt.Sprintf("\npropose_timeout = %d\n", timeoutMS)
	}
	return os.WriteFile(path, []byte(patched), 0o644)
}

func splitHostPort(addr string) (string, int, error) {
	i := strings.LastIndex(addr, ":")
	if i < 0 {
		return "", 0, fmt.Errorf("address %q has no port", addr)
	}
	port, err := strconv.Atoi(addr[i+1:])
	if err != nil {
		return "", 0, fmt.Errorf("address %q has a bad port: %w", addr, err)
	}
	return addr[:i], port, nil
}
