package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadExampleFile(t *testing.T) {
	cfgPath := filepath.Join("..", "..", "configs", "streamnode.example.yaml")
	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("failed to load example config: %v", err)
	}

	if cfg.Listen != "0.0.0.0:7878" {
		t.Errorf("expected listen '0.0.0.0:7878', got %q", cfg.Listen)
	}
	if cfg.Pool.MailboxCapacity != 256 {
		t.Errorf("expected mailbox_capacity 256, got %d", cfg.Pool.MailboxCapacity)
	}
	if cfg.Pool.EmptyReadSleep != 100*time.Millisecond {
		t.Errorf("expected empty_read_sleep 100ms, got %s", cfg.Pool.EmptyReadSleep)
	}
	if cfg.Pool.ReadBufferBytesRaw != 64*1024 {
		t.Errorf("expected read_buffer_bytes_raw 65536, got %d", cfg.Pool.ReadBufferBytesRaw)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected logging level 'info', got %q", cfg.Logging.Level)
	}
	if cfg.Audit.Enabled {
		t.Errorf("expected audit disabled in example config")
	}
	if cfg.Maintenance.StatsIntervalCron != "@every 1m" {
		t.Errorf("expected stats_interval_cron '@every 1m', got %q", cfg.Maintenance.StatsIntervalCron)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "minimal.yaml")
	if err := os.WriteFile(path, []byte("listen: \"127.0.0.1:9000\"\n"), 0o644); err != nil {
		t.Fatalf("writing minimal config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load minimal config: %v", err)
	}

	if cfg.Pool.MailboxCapacity != 256 {
		t.Errorf("expected default mailbox_capacity 256, got %d", cfg.Pool.MailboxCapacity)
	}
	if cfg.Pool.EmptyReadSleep != 100*time.Millisecond {
		t.Errorf("expected default empty_read_sleep 100ms, got %s", cfg.Pool.EmptyReadSleep)
	}
	if cfg.Pool.ReadBufferBytesRaw != 64*1024 {
		t.Errorf("expected default read_buffer_bytes_raw 65536, got %d", cfg.Pool.ReadBufferBytesRaw)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("expected default logging format 'json', got %q", cfg.Logging.Format)
	}
}

func TestLoadMissingListenFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("pool:\n  mailbox_capacity: 10\n"), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for missing listen field")
	}
}

func TestLoadAuditRequiresBucket(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.yaml")
	content := "listen: \"127.0.0.1:9000\"\naudit:\n  enabled: true\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for enabled audit without a bucket")
	}
}

func TestParseByteSize(t *testing.T) {
	cases := map[string]int64{
		"64kb": 64 * 1024,
		"1mb":  1024 * 1024,
		"2gb":  2 * 1024 * 1024 * 1024,
		"10b":  10,
	}
	for in, want := range cases {
		got, err := ParseByteSize(in)
		if err != nil {
			t.Fatalf("ParseByteSize(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("ParseByteSize(%q) = %d, want %d", in, got, want)
		}
	}

	if _, err := ParseByteSize("not-a-size"); err == nil {
		t.Fatalf("expected error for unrecognized size string")
	}
}
