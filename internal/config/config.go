// Package config resolves the process configuration surface (spec section
// 6.3): mode, sample interval, transport binds, the remote host list, and
// the environment variables that adjust SSRF/auth/concurrency behavior.
// Precedence, highest first: CLI flags > environment variables > external
// YAML file > embedded defaults.
package config

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Mode selects what the process does: local mode reads this host's own
// devices, api mode additionally serves /metrics, view mode scrapes other
// all-smi instances and aggregates them.
type Mode string

const (
	ModeLocal Mode = "local"
	ModeAPI   Mode = "api"
	ModeView  Mode = "view"
)

// Exit codes (spec section 6.3).
const (
	ExitOK                 = 0
	ExitConfigError        = 1
	ExitBindFailure        = 2
	ExitNoReadersAvailable = 3
)

const (
	// MinInterval/MaxInterval bound interval_seconds (spec 6.3: "clamped
	// to [1, 60]").
	MinInterval = 1 * time.Second
	MaxInterval = 60 * time.Second

	// MaxHostfileBytes is the hostfile size ceiling (spec 6.3: "≤ 10 MiB").
	MaxHostfileBytes = 10 << 20

	// MaxHostfileEntries is the hostfile line-count ceiling (spec 6.3:
	// "≤ 1000 entries"; spec 8: "1001 entries: engine rejects at
	// configuration").
	MaxHostfileEntries = 1000
)

// Duration wraps time.Duration for human-readable YAML ("15s", "1m").
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("unsupported duration format: %v", value.Kind)
	}
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// Config holds the full resolved process configuration.
type Config struct {
	Mode      Mode          `yaml:"mode"`
	Interval  Duration      `yaml:"interval_seconds"`
	Port      int           `yaml:"port"`
	Socket    string        `yaml:"socket"`
	Hosts     []string      `yaml:"hosts"`
	Hostfile  string        `yaml:"hostfile"`
	Processes bool          `yaml:"processes"`
	Logging   LoggingConfig `yaml:"logging"`
	Remote    RemoteConfig  `yaml:"-"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// RemoteConfig holds view/api-mode remote-scrape settings populated
// exclusively from environment variables (spec 6.3); there is no YAML
// equivalent because these are operational knobs, not deployment config.
type RemoteConfig struct {
	AuthToken             string
	SuppressLocalhostWarn bool
	MaxConnections        int
	BackendAIClusterHosts []string
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Mode:   ModeLocal,
		Interval: Duration{2 * time.Second},
		Port:   9090,
		Socket: "",
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
		Remote: RemoteConfig{
			MaxConnections: 64,
		},
	}
}

// LoadFromBytes parses YAML configuration from a byte slice, merges with
// defaults, then applies environment-variable overrides and clamp/limit
// normalization.
func LoadFromBytes(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config data: %w", err)
		}
	}
	applyEnvOverrides(cfg)
	cfg.normalize()
	return cfg, nil
}

// Load reads configuration from a YAML file and merges with defaults. If
// path is empty or the file does not exist, only defaults and environment
// variables are used.
func Load(path string) (*Config, error) {
	if path == "" {
		return LoadFromBytes(nil)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		return LoadFromBytes(nil)
	}
	return LoadFromBytes(data)
}

// CLIOverrides holds values from command-line flags. Zero values are
// treated as "not set" and skipped, except the fields with an explicit
// *Set companion, where the zero value is itself a legitimate override.
type CLIOverrides struct {
	Mode         string
	Interval     time.Duration
	IntervalSet  bool
	Port         int
	PortSet      bool
	Socket       string
	Hosts        []string
	Hostfile     string
	Processes    bool
	ProcessesSet bool
}

// Locate searches standard config file paths and returns the first one
// found, or "" if none exist.
func Locate() string {
	for _, p := range configSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// LoadLayered loads configuration with the full precedence chain: CLI
// flags > env vars > external YAML file > embedded bytes > defaults.
//
// An optional configPath argument controls external-file discovery:
//   - omitted        → auto-discover via Locate()
//   - explicit value → use that path ("" means no external file)
func LoadLayered(cli CLIOverrides, embedded []byte, configPath ...string) (*Config, error) {
	cfg := DefaultConfig()

	if len(embedded) > 0 {
		if err := yaml.Unmarshal(embedded, cfg); err != nil {
			return nil, fmt.Errorf("parsing embedded config: %w", err)
		}
	}

	var filePath string
	if len(configPath) > 0 {
		filePath = configPath[0]
	} else {
		filePath = Locate()
	}
	if filePath != "" {
		data, err := os.ReadFile(filePath)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config file %s: %w", filePath, err)
			}
		}
	}

	applyEnvOverrides(cfg)

	if cli.Mode != "" {
		cfg.Mode = Mode(cli.Mode)
	}
	if cli.IntervalSet {
		cfg.Interval = Duration{cli.Interval}
	}
	if cli.PortSet {
		cfg.Port = cli.Port
	}
	if cli.Socket != "" {
		cfg.Socket = cli.Socket
	}
	if len(cli.Hosts) > 0 {
		cfg.Hosts = cli.Hosts
	}
	if cli.Hostfile != "" {
		cfg.Hostfile = cli.Hostfile
	}
	if cli.ProcessesSet {
		cfg.Processes = cli.Processes
	}

	cfg.normalize()

	if cfg.Hostfile != "" {
		hosts, err := loadHostfile(cfg.Hostfile)
		if err != nil {
			return nil, err
		}
		cfg.Hosts = append(cfg.Hosts, hosts...)
	}
	if len(cfg.Hosts) == 0 && len(cfg.Remote.BackendAIClusterHosts) > 0 {
		cfg.Hosts = cfg.Remote.BackendAIClusterHosts
	}

	return cfg, nil
}

// normalize clamps interval_seconds into [MinInterval, MaxInterval] (spec
// 6.3) and defaults Mode when unset.
func (c *Config) normalize() {
	if c.Mode == "" {
		c.Mode = ModeLocal
	}
	if c.Interval.Duration < MinInterval {
		c.Interval.Duration = MinInterval
	}
	if c.Interval.Duration > MaxInterval {
		c.Interval.Duration = MaxInterval
	}
}

// WriteConfig serializes the config to a YAML file at the given path,
// creating parent directories as needed.
func WriteConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(path, data, 0640)
}

// applyEnvOverrides applies the environment variables enumerated in spec
// section 6.3. Environment variables take precedence over the config file
// but yield to CLI flags.
func applyEnvOverrides(cfg *Config) {
	if level := os.Getenv("ALL_SMI_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if token := os.Getenv("ALL_SMI_AUTH_TOKEN"); token != "" {
		cfg.Remote.AuthToken = token
	}
	if v := os.Getenv("SUPPRESS_LOCALHOST_WARNING"); v != "" {
		cfg.Remote.SuppressLocalhostWarn = parseBool(v)
	}
	if v := os.Getenv("ALL_SMI_MAX_CONNECTIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Remote.MaxConnections = n
		}
	}
	if v := os.Getenv("BACKENDAI_CLUSTER_HOSTS"); v != "" {
		cfg.Remote.BackendAIClusterHosts = splitHostList(v)
	}
}

func parseBool(s string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	return err == nil && b
}

func splitHostList(s string) []string {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\n' || r == '\t'
	})
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// loadHostfile reads a newline-delimited URL list, enforcing spec 6.3's
// limits: file size <= 10 MiB, <= 1000 entries, ASCII only, and no path
// traversal in the hostfile path itself. Lines that fail URL parsing are
// skipped rather than rejecting the whole file — the SSRF guard in the
// remote collection strategy is the authority on whether a parsed URL is
// actually safe to scrape.
func loadHostfile(path string) ([]string, error) {
	clean := filepath.Clean(path)
	if strings.Contains(clean, "..") {
		return nil, fmt.Errorf("hostfile path must not contain traversal segments: %s", path)
	}

	info, err := os.Stat(clean)
	if err != nil {
		return nil, fmt.Errorf("hostfile: %w", err)
	}
	if info.Size() > MaxHostfileBytes {
		return nil, fmt.Errorf("hostfile exceeds %d byte limit", MaxHostfileBytes)
	}

	f, err := os.Open(clean)
	if err != nil {
		return nil, fmt.Errorf("hostfile: %w", err)
	}
	defer f.Close()

	var hosts []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if lineNo > MaxHostfileEntries {
			return nil, fmt.Errorf("hostfile has more than %d entries", MaxHostfileEntries)
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !isASCII(line) {
			return nil, fmt.Errorf("hostfile line %d is not ASCII", lineNo)
		}
		if _, err := url.Parse(line); err != nil {
			continue
		}
		hosts = append(hosts, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading hostfile: %w", err)
	}
	return hosts, nil
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > 127 {
			return false
		}
	}
	return true
}

// Validate checks cross-field invariants that normalize() cannot enforce
// alone: view mode needs at least one host source, local/api mode needs a
// live transport, and the host list holds at most MaxHostfileEntries.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeLocal, ModeAPI, ModeView:
	default:
		return fmt.Errorf("invalid mode %q: must be local, api, or view", c.Mode)
	}
	if len(c.Hosts) > MaxHostfileEntries {
		return fmt.Errorf("host list has %d entries, more than the %d limit", len(c.Hosts), MaxHostfileEntries)
	}
	if c.Mode == ModeView && len(c.Hosts) == 0 {
		return fmt.Errorf("view mode requires at least one host (via hosts, hostfile, or BACKENDAI_CLUSTER_HOSTS)")
	}
	if c.Mode != ModeView && c.Port == 0 && c.Socket == "" {
		return fmt.Errorf("local/api mode requires a TCP port or a socket path")
	}
	return nil
}
