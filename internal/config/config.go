// Package config loads and validates the YAML configuration for the
// stream pool node, following the same read-unmarshal-validate shape and
// gopkg.in/yaml.v3 dependency the teacher's internal/config package uses for
// its server and agent configs.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full configuration for cmd/streamnode.
type Config struct {
	Listen      string            `yaml:"listen"`
	Pool        PoolConfig        `yaml:"pool"`
	Logging     LoggingConfig     `yaml:"logging"`
	Audit       AuditConfig       `yaml:"audit"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
}

// PoolConfig tunes the Stream Handler Pool itself (spec §4.5, §9). Only
// MailboxCapacity reaches the pool (cmd/streamnode passes it to Bind); the
// other fields are parsed and defaulted but not applied: reader workers
// always clear their read deadline at start, sleep a fixed 100ms on
// empty/timeout-like reads, and read into a fixed 64 KiB buffer.
type PoolConfig struct {
	MailboxCapacity  int           `yaml:"mailbox_capacity"`   // default: 256
	ReadTimeoutClear bool          `yaml:"read_timeout_clear"` // no default applied; false when omitted
	EmptyReadSleep   time.Duration `yaml:"empty_read_sleep"`   // default: 100ms
	ReadBufferBytes  string        `yaml:"read_buffer_bytes"`  // ex: "64kb" (default)

	// ReadBufferBytesRaw is populated by validate(); not read from YAML.
	ReadBufferBytesRaw int64 `yaml:"-"`
}

// LoggingConfig mirrors the teacher's LoggingInfo (level/format), the
// ambient logging concern every node carries regardless of domain.
type LoggingConfig struct {
	Level    string `yaml:"level"`     // default: "info"
	Format   string `yaml:"format"`    // "json" | "text", default: "json"
	FilePath string `yaml:"file_path"` // optional, empty means stdout only
}

// AuditConfig configures the optional S3 audit sink (SPEC_FULL §4.11). When
// Enabled is false the sink is never constructed.
type AuditConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Bucket          string        `yaml:"bucket"`
	Prefix          string        `yaml:"prefix"`            // default: "streampool/"
	Region          string        `yaml:"region"`
	FlushInterval   time.Duration `yaml:"flush_interval"`    // default: 30s
	MaxBatchRecords int           `yaml:"max_batch_records"` // default: 500

	// AccessKeyID/SecretAccessKey are optional static credentials. When both
	// are empty the sink falls back to the SDK's default credential chain
	// (environment, shared config, instance role).
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// MaintenanceConfig configures the scheduled stats reporter (SPEC_FULL §4.12).
type MaintenanceConfig struct {
	Enabled          bool   `yaml:"enabled"`
	StatsIntervalCron string `yaml:"stats_interval_cron"` // default: "@every 1m"
}

// Load reads, parses, and validates the YAML config at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen is required")
	}

	if c.Pool.MailboxCapacity <= 0 {
		c.Pool.MailboxCapacity = 256
	}
	if c.Pool.EmptyReadSleep <= 0 {
		c.Pool.EmptyReadSleep = 100 * time.Millisecond
	}
	if c.Pool.ReadBufferBytes == "" {
		c.Pool.ReadBufferBytes = "64kb"
	}
	parsed, err := ParseByteSize(c.Pool.ReadBufferBytes)
	if err != nil {
		return fmt.Errorf("pool.read_buffer_bytes: %w", err)
	}
	if parsed <= 0 {
		return fmt.Errorf("pool.read_buffer_bytes must be > 0, got %s", c.Pool.ReadBufferBytes)
	}
	c.Pool.ReadBufferBytesRaw = parsed

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	if c.Audit.Enabled {
		if c.Audit.Bucket == "" {
			return fmt.Errorf("audit.bucket is required when audit is enabled")
		}
		if c.Audit.Prefix == "" {
			c.Audit.Prefix = "streampool/"
		}
		if c.Audit.FlushInterval <= 0 {
			c.Audit.FlushInterval = 30 * time.Second
		}
		if c.Audit.MaxBatchRecords <= 0 {
			c.Audit.MaxBatchRecords = 500
		}
	}

	if c.Maintenance.Enabled && c.Maintenance.StatsIntervalCron == "" {
		c.Maintenance.StatsIntervalCron = "@every 1m"
	}

	return nil
}

// ParseByteSize converts human-readable sizes like "64kb", "1mb" into bytes,
// the same suffix table the teacher's config package uses for its own
// buffer-size fields.
func ParseByteSize(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, fmt.Errorf("empty size string")
	}

	type suffix struct {
		s string
		m int64
	}
	suffixes := []suffix{
		{"gb", 1024 * 1024 * 1024},
		{"mb", 1024 * 1024},
		{"kb", 1024},
		{"b", 1},
	}

	for _, sfx := range suffixes {
		if strings.HasSuffix(s, sfx.s) {
			numPart := strings.TrimSuffix(s, sfx.s)
			numPart = strings.TrimSpace(numPart)
			var n float64
			if _, err := fmt.Sscanf(numPart, "%f", &n); err != nil {
				return 0, fmt.Errorf("invalid size %q", s)
			}
			return int64(n * float64(sfx.m)), nil
		}
	}

	return 0, fmt.Errorf("size %q has no recognized unit suffix (b, kb, mb, gb)", s)
}
