package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadLayered_CLIOverridesEverything(t *testing.T) {
	embedded := []byte("mode: view\nport: 9191\n")
	t.Setenv("ALL_SMI_LOG_LEVEL", "debug")
	cli := CLIOverrides{Mode: "local", Port: 9090, PortSet: true}

	cfg, err := LoadLayered(cli, embedded, "")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Mode != ModeLocal {
		t.Errorf("Mode = %q, want CLI override", cfg.Mode)
	}
	if cfg.Port != 9090 {
		t.Errorf("Port = %d, want CLI override 9090", cfg.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want env override", cfg.Logging.Level)
	}
}

func TestLoadLayered_EnvOverridesEmbed(t *testing.T) {
	embedded := []byte("mode: local\n")
	t.Setenv("ALL_SMI_AUTH_TOKEN", "secret-token")

	cfg, err := LoadLayered(CLIOverrides{}, embedded, "")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Remote.AuthToken != "secret-token" {
		t.Errorf("Remote.AuthToken = %q, want env override", cfg.Remote.AuthToken)
	}
}

func TestLoadLayered_DefaultsWhenEmpty(t *testing.T) {
	cfg, err := LoadLayered(CLIOverrides{}, nil, "")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Interval.Duration != 2*time.Second {
		t.Errorf("Interval = %v, want 2s default", cfg.Interval.Duration)
	}
	if cfg.Mode != ModeLocal {
		t.Errorf("Mode = %q, want local default", cfg.Mode)
	}
}

func TestNormalize_ClampsInterval(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Interval = Duration{500 * time.Millisecond}
	cfg.normalize()
	if cfg.Interval.Duration != MinInterval {
		t.Errorf("Interval = %v, want clamped to %v", cfg.Interval.Duration, MinInterval)
	}

	cfg.Interval = Duration{5 * time.Minute}
	cfg.normalize()
	if cfg.Interval.Duration != MaxInterval {
		t.Errorf("Interval = %v, want clamped to %v", cfg.Interval.Duration, MaxInterval)
	}
}

func TestLoadLayered_HostfileEntryLimit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hosts.txt")

	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < MaxHostfileEntries+1; i++ {
		f.WriteString("http://127.0.0.1:10000\n")
	}
	f.Close()

	cli := CLIOverrides{Hostfile: path}
	if _, err := LoadLayered(cli, nil, ""); err == nil {
		t.Error("expected error for hostfile exceeding entry limit, got nil")
	}
}

func TestLoadLayered_HostfileTraversalRejected(t *testing.T) {
	cli := CLIOverrides{Hostfile: "../../etc/passwd"}
	if _, err := LoadLayered(cli, nil, ""); err == nil {
		t.Error("expected error for hostfile path with traversal, got nil")
	}
}

func TestValidate_ViewModeRequiresHosts(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mode = ModeView
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for view mode with no hosts, got nil")
	}
}

func TestWriteConfig_CreatesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "config.yaml")

	cfg := DefaultConfig()
	cfg.Port = 9999

	if err := WriteConfig(cfg, path); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) == 0 {
		t.Error("config file is empty")
	}
}
