package pipeline

import (
	"log/slog"

	"github.com/lucasjlepore/empatica-analyzer/activity"
	"github.com/lucasjlepore/empatica-analyzer/aggregate"
	"github.com/lucasjlepore/empatica-analyzer/config"
	"github.com/lucasjlepore/empatica-analyzer/peakcache"
	"github.com/lucasjlepore/empatica-analyzer/results"
)

// Options configures the empatica_analyze pipeline.
type Options struct {
	Config *config.Config
	Env    *config.Env
	Logger *slog.Logger

	// Store overrides the cache backend named in Config.
	Store peakcache.Store
	// Results receives the aggregate rows when set; otherwise Config.Results
	// decides whether a store is opened.
	Results *results.Store
}

// Result returns generated output paths.
type Result struct {
	RunID         string   `json:"run_id"`
	OutputDir     string   `json:"output_dir"`
	SummaryPath   string   `json:"summary_path"`
	TablesPath    string   `json:"tables_path"`
	WindowedPaths []string `json:"windowed_paths,omitempty"`
	Recordings    int      `json:"recordings"`
	Warnings      []string `json:"warnings,omitempty"`
}

// SummaryFile is written to summary.json.
type SummaryFile struct {
	RunID               string                     `json:"run_id"`
	Sensor              string                     `json:"sensor"`
	SegmentWidthSeconds float64                    `json:"segment_width_seconds"`
	Baseline            string                     `json:"baseline,omitempty"`
	Recordings          []RecordingSummary         `json:"recordings"`
	Subjects            map[string][]aggregate.Row `json:"subjects"`
	All                 []aggregate.Row            `json:"all"`
}

// RecordingSummary describes one processed recording.
type RecordingSummary struct {
	ID           string            `json:"id"`
	Subject      string            `json:"subject"`
	Date         string            `json:"date"`
	Rate         float64           `json:"rate"`
	SegmentWidth int               `json:"segment_width"`
	Windows      []activity.Window `json:"windows"`
	Rows         []aggregate.Row   `json:"rows"`
}

// WindowedSample is one sample of the per-activity export.
type WindowedSample struct {
	Recording string
	Activity  string
	TSUTCISO  string
	ElapsedS  float64
	Values    []float64
}
