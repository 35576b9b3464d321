// Package config loads the harness configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-yaml"
)

// DefaultPath is where the harness looks for its configuration when
// no --config flag is given.
const DefaultPath = "ledgerbench.yaml"

// Sweep shapes the outer loop over package sizes. Each sweep point
// is one full bench run with tx_count = package_size * tx_multiplier.
type Sweep struct {
	TxMultiplier    int `yaml:"tx_multiplier"`
	PackageSizeMin  int `yaml:"package_size_min"`
	PackageSizeMax  int `yaml:"package_size_max"`
	PackageSizeStep int `yaml:"package_size_step"`
	TxTimeoutMS     int `yaml:"tx_timeout_ms"`
	// CooldownSeconds separates consecutive bench runs so node
	// state settles.
	CooldownSeconds int `yaml:"cooldown_seconds"`
}

type Config struct {
	// BinariesDir is prepended to the three binary names below.
	// Empty means they resolve through PATH.
	BinariesDir string `yaml:"binaries_dir"`
	// WorkDir holds generated configs, databases, logs and reports.
	WorkDir string `yaml:"work_dir"`

	NodeBinary      string `yaml:"node_binary"`
	GeneratorBinary string `yaml:"generator_binary"`
	InspectorBinary string `yaml:"inspector_binary"`
	// ServiceName selects which service's transactions the
	// generator produces.
	ServiceName string `yaml:"service_name"`

	Validators     int    `yaml:"validators"`
	StartPort      int    `yaml:"start_port,omitempty"`
	SupervisorMode string `yaml:"supervisor_mode"`
	// ProposeTimeoutMS, when positive, overrides the consensus
	// propose timeout in the generated template.
	ProposeTimeoutMS int `yaml:"propose_timeout_ms,omitempty"`

	// AggregateCSV is the sweep-level report. Empty defaults to
	// <work_dir>/bench.csv.
	AggregateCSV string `yaml:"aggregate_csv,omitempty"`
	// HistoryDB, when set, mirrors aggregate rows into SQLite.
	HistoryDB string `yaml:"history_db,omitempty"`

	Sweep Sweep `yaml:"sweep"`
}

// Default returns a configuration mirroring the stock 4-validator
// bench setup.
func Default() *Config {
	return &Config{
		WorkDir:         "/tmp/ledgerbench",
		NodeBinary:      "timestamping",
		GeneratorBinary: "tx_generator",
		InspectorBinary: "exonumctl",
		ServiceName:     "timestamping",
		Validators:      4,
		StartPort:       6330,
		SupervisorMode:  "simple",
		Sweep: Sweep{
			TxMultiplier:    20,
			PackageSizeMin:  100,
			PackageSizeMax:  100,
			PackageSizeStep: 100,
			TxTimeoutMS:     100,
			CooldownSeconds: 5,
		},
	}
}

// Load reads and validates the configuration at path, filling
// defaults for omitted values.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file %s not found\nRun 'ledgerbench init' to create one", path)
	}

	bytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(bytes, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the harness cannot
// work with.
func (c *Config) Validate() error {
	if c.Validators < 2 {
		return fmt.Errorf("validators must be at least 2, got %d", c.Validators)
	}
	if c.WorkDir == "" {
		return fmt.Errorf("work_dir cannot be empty")
	}
	s := c.Sweep
	if s.PackageSizeMin <= 0 || s.PackageSizeMax <= 0 {
		return fmt.Errorf("package size bounds must be positive")
	}
	if s.PackageSizeMin > s.PackageSizeMax {
		return fmt.Errorf("package_size_min %d exceeds package_size_max %d", s.PackageSizeMin, s.PackageSizeMax)
	}
	if s.PackageSizeStep <= 0 {
		return fmt.Errorf("package_size_step must be positive, got %d", s.PackageSizeStep)
	}
	if s.TxMultiplier <= 0 {
		return fmt.Errorf("tx_multiplier must be positive, got %d", s.TxMultiplier)
	}
	if s.TxTimeoutMS <= 0 {
		return fmt.Errorf("tx_timeout_ms must be positive, got %d", s.TxTimeoutMS)
	}
	return nil
}

// Save writes the configuration to the default path.
func Save(cfg *Config) error {
	return SaveTo(cfg, DefaultPath)
}

// SaveTo writes the configuration to path.
func SaveTo(cfg *Config, path string) error {
	bytes, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}

	if err := os.WriteFile(path, bytes, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Binary resolves a binary name against BinariesDir.
func (c *Config) Binary(name string) string {
	if c.BinariesDir == "" {
		return name
	}
	return filepath.Join(c.BinariesDir, name)
}

// AggregatePath returns the aggregate report path, defaulted into
// the work directory.
func (c *Config) AggregatePath() string {
	if c.AggregateCSV != "" {
		return c.AggregateCSV
	}
	return filepath.Join(c.WorkDir, "bench.csv")
}
