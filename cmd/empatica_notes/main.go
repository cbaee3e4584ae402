package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	empatica "github.com/lucasjlepore/empatica-analyzer"
	"github.com/lucasjlepore/empatica-analyzer/activity"
	"github.com/lucasjlepore/empatica-analyzer/aggregate"
	"github.com/lucasjlepore/empatica-analyzer/segment"
	"github.com/lucasjlepore/empatica-analyzer/timeline"
)

func main() {
	var (
		tablePath    = flag.String("table", "", "Timing table (.xlsx) holding the session clock times")
		formatName   = flag.String("format", "EDA", "Sensor format: EDA|TEMP|HR|BVP|ACC|IBI")
		tz           = flag.String("tz", "", "Timezone of the timing table (default local)")
		width        = flag.Float64("width", 0, "Segment width in seconds (0 keeps each activity whole)")
		baseline     = flag.String("baseline", "", "Start,end columns of a baseline activity to subtract")
		minAmplitude = flag.Float64("min-amplitude", 0.01, "Minimum peak rise above the preceding trough")
		fitChannel   = flag.String("fit-channel", "heart_rate", "Record field read from .fit inputs: heart_rate|power|cadence")
		jsonOut      = flag.Bool("json", false, "Emit windows and activity rows as JSON")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s --table timings.xlsx [flags] <subject_date_Empatica_SENSOR.csv|subject_date_*.fit>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() < 1 || *tablePath == "" {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(flag.Arg(0), *tablePath, *formatName, *fitChannel, *tz, *baseline, *width, *minAmplitude, *jsonOut); err != nil {
		fmt.Fprintf(os.Stderr, "empatica_notes failed: %v\n", err)
		os.Exit(1)
	}
}

func run(path, tablePath, formatName, fitChannel, tz, baselineCols string, widthS, minAmplitude float64, jsonOut bool) error {
	format, err := timeline.FormatByName(formatName)
	if err != nil {
		return err
	}
	loc := time.Local
	if tz != "" {
		if loc, err = time.LoadLocation(tz); err != nil {
			return err
		}
	}
	schedule := activity.DefaultSchedule
	cfg := segment.Config{}
	if baselineCols != "" {
		start, end, ok := strings.Cut(baselineCols, ",")
		if !ok || start == "" || end == "" {
			return fmt.Errorf("--baseline expects \"start column,end column\"")
		}
		schedule = schedule.WithBaseline(start, end)
		cfg.Baseline = activity.Baseline
	}

	table, err := activity.LoadTimingTable(tablePath, schedule)
	if err != nil {
		return err
	}
	var rec *empatica.Recording
	if strings.EqualFold(filepath.Ext(path), ".fit") {
		rec, err = empatica.OpenFIT(path, fitChannel, table, loc)
	} else {
		rec, err = empatica.Open(path, format, table, loc)
	}
	if err != nil {
		return err
	}
	rate := segment.EffectiveRate(rec.Stream)
	if cfg.Width, err = segment.WidthFromSeconds(widthS, rate); err != nil {
		return err
	}

	finder := segment.NewThresholdFinder()
	finder.MinAmplitude = minAmplitude
	entry, err := (&segment.Processor{Finder: finder}).Process(rec, cfg)
	if err != nil {
		return err
	}
	var rows []aggregate.Row
	for _, name := range schedule.Names() {
		row, err := aggregate.FromEntry(entry, name)
		if err != nil {
			continue
		}
		rows = append(rows, row)
	}

	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Recording string            `json:"recording"`
			Rate      float64           `json:"rate"`
			Windows   []activity.Window `json:"windows"`
			Rows      []aggregate.Row   `json:"rows"`
		}{rec.ID, rate, rec.Windows, rows})
	}

	fmt.Print(empatica.BuildNotes(rec))
	fmt.Println()
	fmt.Printf("Peaks (segment width %s)\n", cfg.Width)
	for _, r := range rows {
		fmt.Printf(
			"- %-10s | %6.2f peaks | %7.1fs segments | %6.2f /min | max %6.3f\n",
			r.Activity,
			r.MeanPeakCount,
			r.MeanSegmentDurationS,
			r.PeaksPerMinute,
			r.MeanMaxPeakValue,
		)
	}
	return nil
}
