// Package config loads the study description from YAML and store
// credentials from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lucasjlepore/empatica-analyzer/activity"
	"github.com/lucasjlepore/empatica-analyzer/segment"
	"github.com/lucasjlepore/empatica-analyzer/timeline"
)

type ActivityConfig struct {
	Name        string `yaml:"name"`
	StartColumn string `yaml:"start_column"`
	EndColumn   string `yaml:"end_column"`
}

type SubjectConfig struct {
	ID    string   `yaml:"id"`
	Dates []string `yaml:"dates"`
}

type StudyConfig struct {
	DataDir     string `yaml:"data_dir"`
	TimingTable string `yaml:"timing_table"`
	// Timezone of the timing table clock times, e.g. "Europe/Paris".
	Timezone string           `yaml:"timezone"`
	Schedule []ActivityConfig `yaml:"schedule"`
	// BaselineColumns appends a baseline activity read from these two columns.
	BaselineColumns []string        `yaml:"baseline_columns"`
	Subjects        []SubjectConfig `yaml:"subjects"`
}

type SensorConfig struct {
	Format string `yaml:"format"`
	// Channel selects the value column; Magnitude overrides it with the
	// vector norm of all channels.
	Channel   int  `yaml:"channel"`
	Magnitude bool `yaml:"magnitude"`
}

type SegmentConfig struct {
	WidthSeconds  float64 `yaml:"width_seconds"`
	ApplyBaseline bool    `yaml:"apply_baseline"`
	MinAmplitude  float64 `yaml:"min_amplitude"`
	RefractoryMS  int     `yaml:"refractory_ms"`
}

type CacheConfig struct {
	// Backend is one of file, memory, redis or s3.
	Backend string `yaml:"backend"`
	Dir     string `yaml:"dir"`
	Prefix  string `yaml:"prefix"`
	// Reprocess ignores and overwrites cached entries.
	Reprocess bool `yaml:"reprocess"`
}

type ResultsConfig struct {
	// Driver is sqlite or postgres; an empty driver disables the store.
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type OutputConfig struct {
	Dir string `yaml:"dir"`
	// WindowedFormat is csv or parquet; empty skips the per-activity export.
	WindowedFormat string `yaml:"windowed_format"`
	Overwrite      bool   `yaml:"overwrite"`
}

// Config is the top-level structure of a study file.
type Config struct {
	Study   StudyConfig   `yaml:"study"`
	Sensor  SensorConfig  `yaml:"sensor"`
	Segment SegmentConfig `yaml:"segment"`
	Cache   CacheConfig   `yaml:"cache"`
	Results ResultsConfig `yaml:"results"`
	Output  OutputConfig  `yaml:"output"`
}

// Load reads and validates a study file. Relative paths are resolved against
// the file's directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read study config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	base := filepath.Dir(path)
	cfg.Study.DataDir = resolve(base, cfg.Study.DataDir)
	cfg.Study.TimingTable = resolve(base, cfg.Study.TimingTable)
	cfg.Output.Dir = resolve(base, cfg.Output.Dir)
	if cfg.Cache.Backend == "file" {
		cfg.Cache.Dir = resolve(base, cfg.Cache.Dir)
	}
	return cfg, nil
}

// Parse decodes a study file and applies defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Config{
		Sensor:  SensorConfig{Format: "EDA"},
		Segment: SegmentConfig{MinAmplitude: 0.01, RefractoryMS: 1000},
		Cache:   CacheConfig{Backend: "file", Dir: "cache"},
		Output:  OutputConfig{Dir: "out"},
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse study config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Study.DataDir) == "" {
		return fmt.Errorf("study.data_dir is required")
	}
	if strings.TrimSpace(c.Study.TimingTable) == "" {
		return fmt.Errorf("study.timing_table is required")
	}
	if len(c.Study.Subjects) == 0 {
		return fmt.Errorf("study.subjects is empty")
	}
	for _, s := range c.Study.Subjects {
		if s.ID == "" || len(s.Dates) == 0 {
			return fmt.Errorf("study subject %q needs an id and at least one date", s.ID)
		}
	}
	if n := len(c.Study.BaselineColumns); n != 0 && n != 2 {
		return fmt.Errorf("study.baseline_columns needs a start and an end column, got %d", n)
	}
	if c.Segment.ApplyBaseline && len(c.Study.BaselineColumns) == 0 {
		if _, err := c.Schedule().Index(activity.Baseline); err != nil {
			return fmt.Errorf("segment.apply_baseline needs a baseline activity in the schedule")
		}
	}
	if _, err := timeline.FormatByName(c.Sensor.Format); err != nil {
		return err
	}
	switch c.Cache.Backend {
	case "file", "memory", "redis", "s3":
	default:
		return fmt.Errorf("unsupported cache backend %q (expected file|memory|redis|s3)", c.Cache.Backend)
	}
	switch strings.ToLower(c.Output.WindowedFormat) {
	case "", "csv", "parquet":
	default:
		return fmt.Errorf("unsupported windowed format %q (expected csv|parquet)", c.Output.WindowedFormat)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Schedule returns the configured activities, the default session when none
// are listed, with the baseline appended when configured.
func (c *Config) Schedule() activity.Schedule {
	s := activity.DefaultSchedule
	if len(c.Study.Schedule) > 0 {
		s = make(activity.Schedule, len(c.Study.Schedule))
		for i, a := range c.Study.Schedule {
			s[i] = activity.Activity{Name: strings.ToLower(a.Name), StartColumn: a.StartColumn, EndColumn: a.EndColumn}
		}
	}
	if len(c.Study.BaselineColumns) == 2 {
		s = s.WithBaseline(c.Study.BaselineColumns[0], c.Study.BaselineColumns[1])
	}
	return s
}

// Location returns the study timezone, local time when unset.
func (c *Config) Location() (*time.Location, error) {
	if c.Study.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Study.Timezone)
	if err != nil {
		return nil, fmt.Errorf("study.timezone: %w", err)
	}
	return loc, nil
}

// Format returns the sensor format.
func (c *Config) Format() timeline.Format {
	f, _ := timeline.FormatByName(c.Sensor.Format)
	return f
}

// ChannelIndex returns the channel for segment.Processor.
func (c *Config) ChannelIndex() int {
	if c.Sensor.Magnitude {
		return -1
	}
	return c.Sensor.Channel
}

// PeakFinder builds the threshold detector from the segment section.
func (c *Config) PeakFinder() *segment.ThresholdFinder {
	return &segment.ThresholdFinder{
		MinAmplitude: c.Segment.MinAmplitude,
		Refractory:   time.Duration(c.Segment.RefractoryMS) * time.Millisecond,
	}
}

// BaselineActivity returns the activity to correct against, empty when off.
func (c *Config) BaselineActivity() string {
	if c.Segment.ApplyBaseline {
		return activity.Baseline
	}
	return ""
}

func resolve(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}
