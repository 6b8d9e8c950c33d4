package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/tis24dev/drivesave/internal/types"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "drivesave.env")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	configPath := writeConfig(t, `# Test configuration
STATE_DIR=/test/state
LOG_DIR="/test/logs"
DEBUG_LEVEL=debug
USE_COLOR=false
VOLUME_MOUNT_PATH=/media/backup
VOLUME_COMMAND=/usr/local/bin/volctl
VOLUME_COMMAND_ARGS=--script {script} --quiet
VOLUME_DISK=2
VOLUME_SETTLE_DELAY=1500ms
VOLUME_VERIFY_DELAY=3
SCHEDULER_INTERVAL=10s
NTP_SERVERS=ntp1.example.com, ntp2.example.com
MAX_BACKUP_COUNT=7
MIN_FREE_SPACE_GB=2.5
METRICS_ENABLED=yes
EMAIL_ENABLED=true # inline comment
`)

	cfg, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.StateDir != "/test/state" || cfg.LogDir != "/test/logs" {
		t.Errorf("dirs = %q, %q", cfg.StateDir, cfg.LogDir)
	}
	if cfg.DebugLevel != types.LogLevelDebug {
		t.Errorf("DebugLevel = %v; want %v", cfg.DebugLevel, types.LogLevelDebug)
	}
	if cfg.UseColor {
		t.Error("Expected UseColor to be false")
	}
	if cfg.Volume.MountPath != "/media/backup" {
		t.Errorf("MountPath = %q", cfg.Volume.MountPath)
	}
	if got := strings.Join(cfg.Volume.CommandArgs, "|"); got != "--script|{script}|--quiet" {
		t.Errorf("CommandArgs = %q", got)
	}
	if cfg.Volume.Disk != 2 || cfg.Volume.Partition != 1 {
		t.Errorf("disk/partition = %d/%d", cfg.Volume.Disk, cfg.Volume.Partition)
	}
	if cfg.Volume.SettleDelay != 1500*time.Millisecond {
		t.Errorf("SettleDelay = %v", cfg.Volume.SettleDelay)
	}
	if cfg.Volume.VerifyDelay != 3*time.Second {
		t.Errorf("VerifyDelay = %v; bare integers are seconds", cfg.Volume.VerifyDelay)
	}
	if cfg.Scheduler.Interval != 10*time.Second {
		t.Errorf("Interval = %v", cfg.Scheduler.Interval)
	}
	if len(cfg.Scheduler.NTPServers) != 2 || cfg.Scheduler.NTPServers[1] != "ntp2.example.com" {
		t.Errorf("NTPServers = %v", cfg.Scheduler.NTPServers)
	}
	if cfg.Retention.MaxBackupCount != 7 || cfg.Retention.MaxBackupAgeDays != 30 {
		t.Errorf("retention = %+v", cfg.Retention)
	}
	if cfg.MinFreeSpaceGB != 2.5 {
		t.Errorf("MinFreeSpaceGB = %v", cfg.MinFreeSpaceGB)
	}
	if !cfg.Metrics.Enabled || !cfg.Email.Enabled {
		t.Errorf("metrics=%v email=%v", cfg.Metrics.Enabled, cfg.Email.Enabled)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig(\"\") error = %v", err)
	}

	if cfg.Volume.Command != "diskpart" {
		t.Errorf("Command = %q; want diskpart", cfg.Volume.Command)
	}
	if got := strings.Join(cfg.Volume.CommandArgs, " "); got != "/s {script}" {
		t.Errorf("CommandArgs = %q", got)
	}
	if cfg.Volume.SettleDelay != time.Second || cfg.Volume.VerifyDelay != 2*time.Second {
		t.Errorf("delays = %v/%v", cfg.Volume.SettleDelay, cfg.Volume.VerifyDelay)
	}
	if cfg.Scheduler.Interval != 30*time.Second || cfg.Scheduler.NTPTimeout != 3*time.Second {
		t.Errorf("scheduler = %+v", cfg.Scheduler)
	}
	if len(cfg.Scheduler.NTPServers) != 3 || cfg.Scheduler.NTPServers[0] != "time.windows.com" {
		t.Errorf("NTPServers = %v", cfg.Scheduler.NTPServers)
	}
	if cfg.Retention.MaxBackupCount != 5 {
		t.Errorf("MaxBackupCount = %d", cfg.Retention.MaxBackupCount)
	}
	if cfg.DebugLevel != types.LogLevelInfo {
		t.Errorf("DebugLevel = %v", cfg.DebugLevel)
	}
	if cfg.Email.SMTPPassword != "" {
		t.Error("SMTP password must have no default")
	}
	want := "/mnt/drivesave"
	if runtime.GOOS == "windows" {
		want = `D:\`
	}
	if cfg.Volume.MountPath != want {
		t.Errorf("MountPath = %q; want %q", cfg.Volume.MountPath, want)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	configPath := writeConfig(t, "MAX_BACKUP_COUNT=3\nSTATE_DIR=/from/file\n")
	t.Setenv("MAX_BACKUP_COUNT", "9")

	cfg, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Retention.MaxBackupCount != 9 {
		t.Errorf("MaxBackupCount = %d; want env value 9", cfg.Retention.MaxBackupCount)
	}
	if cfg.StateDir != "/from/file" {
		t.Errorf("StateDir = %q", cfg.StateDir)
	}
	if v, ok := cfg.Get("MAX_BACKUP_COUNT"); !ok || v != "3" {
		t.Errorf("Get() = %q, %v", v, ok)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env")); err == nil {
		t.Error("expected error for missing file")
	}

	tests := map[string]string{
		"bad int":      "MAX_BACKUP_COUNT=many\n",
		"bad duration": "VOLUME_SETTLE_DELAY=soon\n",
		"bad level":    "DEBUG_LEVEL=loud\n",
		"no equals":    "JUSTAWORD\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadConfig(writeConfig(t, content)); err == nil {
				t.Errorf("expected error for %q", content)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"missing placeholder", func(c *Config) { c.Volume.CommandArgs = []string{"/s", "x.txt"} }, "{script}"},
		{"zero count", func(c *Config) { c.Retention.MaxBackupCount = 0 }, "MAX_BACKUP_COUNT"},
		{"zero interval", func(c *Config) { c.Scheduler.Interval = 0 }, "SCHEDULER_INTERVAL"},
		{"bad delivery", func(c *Config) { c.Email.DeliveryMethod = "pigeon" }, "EMAIL_DELIVERY_METHOD"},
		{"empty state dir", func(c *Config) { c.StateDir = " " }, "STATE_DIR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadConfig("")
			if err != nil {
				t.Fatalf("LoadConfig() error = %v", err)
			}
			tt.mutate(cfg)
			err = cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() = %v; want error containing %q", err, tt.wantErr)
			}
		})
	}
}
