package pipeline

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	empatica "github.com/lucasjlepore/empatica-analyzer"
	"github.com/lucasjlepore/empatica-analyzer/activity"
	"github.com/lucasjlepore/empatica-analyzer/aggregate"
	"github.com/lucasjlepore/empatica-analyzer/config"
	"github.com/lucasjlepore/empatica-analyzer/peakcache"
	"github.com/lucasjlepore/empatica-analyzer/results"
	"github.com/lucasjlepore/empatica-analyzer/segment"
	"github.com/lucasjlepore/empatica-analyzer/timeline"
)

// RecordingFileName is the export name of one sensor file of a session.
func RecordingFileName(subject, date string, f timeline.Format) string {
	return fmt.Sprintf("%s_%s_Empatica_%s.csv", subject, date, f.Name)
}

// Run executes the full empatica_analyze pipeline and writes all artifacts.
func Run(ctx context.Context, opts Options) (*Result, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, fmt.Errorf("study config is required")
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	format := cfg.Format()
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	windowedFormat := strings.ToLower(strings.TrimSpace(cfg.Output.WindowedFormat))
	if err := ensureOutputDir(cfg.Output.Dir, cfg.Output.Overwrite); err != nil {
		return nil, err
	}

	schedule := cfg.Schedule()
	table, err := activity.LoadTimingTable(cfg.Study.TimingTable, schedule)
	if err != nil {
		return nil, err
	}

	store := opts.Store
	if store == nil {
		var closeStore func() error
		store, closeStore, err = OpenStore(ctx, cfg.Cache, opts.Env)
		if err != nil {
			return nil, fmt.Errorf("open peak cache: %w", err)
		}
		defer closeStore()
	}

	runID := uuid.New().String()
	log = log.With("run_id", runID)
	cache := &peakcache.Cache{
		Store:     store,
		Processor: &segment.Processor{Finder: cfg.PeakFinder(), Channel: cfg.ChannelIndex()},
		Logger:    log,
	}

	res := &Result{RunID: runID, OutputDir: cfg.Output.Dir}
	summary := SummaryFile{
		RunID:               runID,
		Sensor:              format.Name,
		SegmentWidthSeconds: cfg.Segment.WidthSeconds,
		Baseline:            cfg.BaselineActivity(),
		Subjects:            make(map[string][]aggregate.Row),
	}
	names := schedule.Names()
	// activity -> subject -> per-recording rows
	collected := make(map[string]map[string][]aggregate.Row, len(names))
	for _, name := range names {
		collected[name] = make(map[string][]aggregate.Row)
	}

	for _, subj := range cfg.Study.Subjects {
		for _, date := range subj.Dates {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			path := filepath.Join(cfg.Study.DataDir, RecordingFileName(subj.ID, date, format))
			rec, err := empatica.Open(path, format, table, loc)
			if err != nil {
				return nil, fmt.Errorf("open recording %s: %w", filepath.Base(path), err)
			}
			rate := segment.EffectiveRate(rec.Stream)
			width, err := segment.WidthFromSeconds(cfg.Segment.WidthSeconds, rate)
			if err != nil {
				return nil, fmt.Errorf("recording %s: %w", rec.ID, err)
			}
			entry, err := cache.LoadOrCompute(ctx, rec, segment.Config{Width: width, Baseline: cfg.BaselineActivity()}, cfg.Cache.Reprocess)
			if err != nil {
				return nil, err
			}

			rs := RecordingSummary{
				ID:           rec.ID,
				Subject:      subj.ID,
				Date:         date,
				Rate:         rate,
				SegmentWidth: int(width),
				Windows:      rec.Windows,
			}
			for _, name := range names {
				row, err := aggregate.FromEntry(entry, name)
				if err != nil {
					res.Warnings = append(res.Warnings, fmt.Sprintf("%s/%s: %v", rec.ID, name, err))
					log.Warn("activity skipped", "recording", rec.ID, "activity", name, "err", err)
					continue
				}
				rs.Rows = append(rs.Rows, row)
				collected[name][subj.ID] = append(collected[name][subj.ID], row)
			}
			summary.Recordings = append(summary.Recordings, rs)
			log.Info("recording processed", "recording", rec.ID, "samples", rec.Stream.Len(), "rate", rate, "width", width.String())

			if windowedFormat != "" {
				p, err := writeWindowed(cfg.Output.Dir, windowedFormat, rec)
				if err != nil {
					return nil, fmt.Errorf("write windowed samples of %s: %w", rec.ID, err)
				}
				res.WindowedPaths = append(res.WindowedPaths, p)
			}
		}
	}
	res.Recordings = len(summary.Recordings)

	for _, subj := range cfg.Study.Subjects {
		for _, name := range names {
			rows := collected[name][subj.ID]
			if len(rows) == 0 {
				continue
			}
			m, err := aggregate.MeanOfMeans(rows)
			if err != nil {
				return nil, fmt.Errorf("subject %s: %w", subj.ID, err)
			}
			summary.Subjects[subj.ID] = append(summary.Subjects[subj.ID], m)
		}
	}
	for _, name := range names {
		if len(collected[name]) == 0 {
			continue
		}
		m, err := aggregate.AcrossSubjects(collected[name])
		if err != nil {
			return nil, fmt.Errorf("activity %s: %w", name, err)
		}
		summary.All = append(summary.All, m)
	}

	res.SummaryPath = filepath.Join(cfg.Output.Dir, "summary.json")
	if err := writeJSON(res.SummaryPath, summary); err != nil {
		return nil, fmt.Errorf("write summary.json: %w", err)
	}
	res.TablesPath = filepath.Join(cfg.Output.Dir, "tables.tex")
	if err := writeTables(res.TablesPath, cfg.Study.Subjects, summary); err != nil {
		return nil, fmt.Errorf("write tables.tex: %w", err)
	}

	rstore := opts.Results
	if rstore == nil {
		rstore, err = OpenResults(cfg.Results, opts.Env)
		if err != nil {
			return nil, err
		}
		if rstore != nil {
			defer rstore.Close()
		}
	}
	if rstore != nil {
		scoped := make(map[string][]aggregate.Row, len(summary.Subjects)+1)
		for id, rows := range summary.Subjects {
			scoped[id] = rows
		}
		scoped[results.ScopeAll] = summary.All
		if _, err := rstore.SaveRun(ctx, results.Run{
			RunID:         runID,
			Sensor:        format.Name,
			SegmentWidthS: cfg.Segment.WidthSeconds,
			Baseline:      cfg.BaselineActivity(),
		}, scoped); err != nil {
			return nil, err
		}
		log.Info("results stored", "scopes", len(scoped))
	}
	return res, nil
}

func ensureOutputDir(dir string, overwrite bool) error {
	if strings.TrimSpace(dir) == "" {
		return fmt.Errorf("output directory is required")
	}
	entries, err := os.ReadDir(dir)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return os.MkdirAll(dir, 0o755)
	case err != nil:
		return err
	case len(entries) > 0 && !overwrite:
		return fmt.Errorf("output directory %s is not empty (set output.overwrite)", dir)
	}
	return nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeTables(path string, subjects []config.SubjectConfig, summary SummaryFile) error {
	var b strings.Builder
	b.WriteString("\\documentclass{article}\n\\begin{document}\n\n")
	for _, s := range subjects {
		rows := summary.Subjects[s.ID]
		if len(rows) == 0 {
			continue
		}
		b.WriteString(aggregate.LatexTable(fmt.Sprintf("Mean table for subject %s", s.ID), nil, rows))
		b.WriteString("\n")
	}
	if len(summary.All) > 0 {
		b.WriteString(aggregate.LatexTable("Mean table for all the subjects", nil, summary.All))
		b.WriteString("\n")
	}
	b.WriteString("\\end{document}\n")
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

func windowedSamples(rec *empatica.Recording) ([]WindowedSample, error) {
	var out []WindowedSample
	for _, w := range rec.Windows {
		t, values, err := rec.Windowed(w.Name)
		if err != nil {
			return nil, err
		}
		day, err := rec.Daytime(w.Name)
		if err != nil {
			return nil, err
		}
		for i := range t {
			out = append(out, WindowedSample{
				Recording: rec.ID,
				Activity:  w.Name,
				TSUTCISO:  day[i].UTC().Format(time.RFC3339Nano),
				ElapsedS:  t[i],
				Values:    values[i],
			})
		}
	}
	return out, nil
}

func writeWindowed(dir, format string, rec *empatica.Recording) (string, error) {
	samples, err := windowedSamples(rec)
	if err != nil {
		return "", err
	}
	base := strings.TrimSuffix(rec.ID, filepath.Ext(rec.ID))
	path := filepath.Join(dir, base+"_windowed."+format)
	switch format {
	case "csv":
		err = writeWindowedCSV(path, samples, rec.Stream.Channels())
	case "parquet":
		err = writeWindowedParquet(path, samples)
	default:
		err = fmt.Errorf("unsupported format %q (expected parquet|csv)", format)
	}
	return path, err
}

func writeWindowedCSV(path string, samples []WindowedSample, channels int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{"recording", "activity", "ts_utc_iso", "elapsed_s"}
	for c := 0; c < channels; c++ {
		header = append(header, "value_"+strconv.Itoa(c))
	}
	if err := w.Write(header); err != nil {
		return err
	}
	for _, s := range samples {
		row := []string{s.Recording, s.Activity, s.TSUTCISO, formatFloat(s.ElapsedS)}
		for _, v := range s.Values {
			row = append(row, formatFloat(v))
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
