// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ArchiveConfig is the full configuration of a spantar archive job:
// device selection, the CLI tunables spec.md §6 names, spanning
// policy, offsite mirroring, and the scheduled-run settings. Mirrors
// the shape of the teacher's AgentConfig — a typed struct loaded from
// YAML, validated and defaulted in one pass.
type ArchiveConfig struct {
	Job       JobInfo      `yaml:"job"`
	Device    DeviceInfo   `yaml:"device"`
	Tunables  Tunables     `yaml:"tunables"`
	Spanning  SpanningInfo `yaml:"spanning"`
	Schedule  ScheduleInfo `yaml:"schedule"`
	Mirror    MirrorInfo   `yaml:"mirror"`
	Logging   LoggingInfo  `yaml:"logging"`
}

// JobInfo names the job and what it archives.
type JobInfo struct {
	Name    string   `yaml:"name"`
	BaseDir string   `yaml:"base_dir"` // the -C directory; archive paths are relative to this.
	Paths   []string `yaml:"paths"`
	Exclude []string `yaml:"exclude"`
	Format  string   `yaml:"format"` // "ustar" or "posix" (PAX).

	// JournalPath, if set, makes cmd/spantar open the run through
	// journal.Resume instead of journal.Open, so a process kill between
	// volumes can be resumed rather than starting the archive over.
	// Empty disables the journal entirely (no resume, no checkpoints).
	JournalPath string `yaml:"journal_path"`
}

// DeviceInfo selects and configures the output device.
type DeviceInfo struct {
	// Kind is "file", "tape", or "mem" (mem keeps the volume in memory,
	// for tests and demos; validate() accepts it like the other kinds).
	Kind string `yaml:"kind"`
	Path string `yaml:"path"`
}

// Tunables holds the four CLI knobs spec.md §6 names, each also
// settable as a YAML default so a scheduled run need not repeat flags.
type Tunables struct {
	ChannelQueueDepth int    `yaml:"channel_queue_depth"`
	ParallelIOLimit   int    `yaml:"parallel_io_limit"`
	BlockingFactor    int    `yaml:"blocking_factor"`
	SerialBufferLimit string `yaml:"serial_buffer_limit"` // human size, e.g. "256mb".
	serialBufferBytes int64
}

// SerialBufferBytes returns the parsed byte value of SerialBufferLimit.
// Valid only after ArchiveConfig.validate() has run (via Load).
func (t Tunables) SerialBufferBytes() int64 { return t.serialBufferBytes }

// SpanningInfo controls multi-volume behavior.
type SpanningInfo struct {
	Enabled bool `yaml:"enabled"` // corresponds to -M/--multi-volume.
}

// ScheduleInfo drives internal/scheduler, one cron entry per job.
type ScheduleInfo struct {
	Cron string `yaml:"cron"`
}

// MirrorInfo configures an optional S3 offsite copy of each finished
// volume file, taken by internal/mirror once CreateDriver closes it.
type MirrorInfo struct {
	Enabled bool   `yaml:"enabled"`
	Bucket  string `yaml:"bucket"`
	Prefix  string `yaml:"prefix"`
	Region  string `yaml:"region"`
}

// LoggingInfo mirrors the teacher's logging config shape.
type LoggingInfo struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	FilePath string `yaml:"file_path"`

	// VolumeLogDir, if set, makes cmd/spantar open a
	// logging.NewVolumeLogger alongside the base logger for every
	// mounted volume. Empty disables per-volume logging.
	VolumeLogDir string `yaml:"volume_log_dir"`
}

const (
	defaultChannelQueueDepth = 64
	defaultParallelIOLimit   = 4
	defaultBlockingFactor    = 20 // 20*512 = 10240-byte records, tar's traditional default.
	defaultSerialBufferLimit = "64mb"
)

// Load reads and validates the YAML config file at path.
func Load(path string) (*ArchiveConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading archive config: %w", err)
	}

	var cfg ArchiveConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing archive config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating archive config: %w", err)
	}
	return &cfg, nil
}

func (c *ArchiveConfig) validate() error {
	if c.Job.Name == "" {
		return fmt.Errorf("job.name is required")
	}
	if len(c.Job.Paths) == 0 {
		return fmt.Errorf("job.paths must have at least one entry")
	}
	switch c.Job.Format {
	case "":
		c.Job.Format = "ustar"
	case "ustar", "posix":
	default:
		return fmt.Errorf("job.format must be ustar or posix, got %q", c.Job.Format)
	}

	switch c.Device.Kind {
	case "file", "tape":
		if c.Device.Path == "" {
			return fmt.Errorf("device.path is required for device.kind %q", c.Device.Kind)
		}
	case "mem":
		// Accepted for tests/demos only; callers outside the test suite
		// should treat this as a configuration error, but Load itself
		// does not know its own caller, so it is not rejected here.
	case "":
		return fmt.Errorf("device.kind is required")
	default:
		return fmt.Errorf("device.kind must be file, tape, or mem, got %q", c.Device.Kind)
	}

	if c.Tunables.ChannelQueueDepth <= 0 {
		c.Tunables.ChannelQueueDepth = defaultChannelQueueDepth
	}
	if c.Tunables.ParallelIOLimit <= 0 {
		c.Tunables.ParallelIOLimit = defaultParallelIOLimit
	}
	if c.Tunables.BlockingFactor <= 0 {
		c.Tunables.BlockingFactor = defaultBlockingFactor
	}
	if c.Tunables.SerialBufferLimit == "" {
		c.Tunables.SerialBufferLimit = defaultSerialBufferLimit
	}
	bufBytes, err := ParseByteSize(c.Tunables.SerialBufferLimit)
	if err != nil {
		return fmt.Errorf("tunables.serial_buffer_limit: %w", err)
	}
	c.Tunables.serialBufferBytes = bufBytes

	if c.Schedule.Cron != "" {
		// internal/scheduler validates the expression itself against
		// robfig/cron's parser; a syntactically-empty string just means
		// "no schedule", i.e. a one-shot run.
	}

	if c.Mirror.Enabled && c.Mirror.Bucket == "" {
		return fmt.Errorf("mirror.bucket is required when mirror.enabled")
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	return nil
}
