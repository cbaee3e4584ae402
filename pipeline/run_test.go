package pipeline

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/xuri/excelize/v2"

	"github.com/lucasjlepore/empatica-analyzer/activity"
	"github.com/lucasjlepore/empatica-analyzer/config"
	"github.com/lucasjlepore/empatica-analyzer/peakcache"
	"github.com/lucasjlepore/empatica-analyzer/results"
	"github.com/lucasjlepore/empatica-analyzer/timeline"
)

// writeEDA writes a 4 Hz, ten minute export starting 2022-06-28 13:00:00 UTC
// with a spike every `every` samples.
func writeEDA(t *testing.T, path string, every int) {
	t.Helper()
	var b strings.Builder
	b.WriteString("1656421200.000000\n4.000000\n")
	for i := 0; i < 2400; i++ {
		v := 0.1
		if i%every == every/2 {
			v = 0.9
		}
		fmt.Fprintf(&b, "%.6f\n", v)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatal(err)
	}
}

func writeTimings(t *testing.T, path string) {
	t.Helper()
	rows := [][]any{
		{"ID", "Date", "Time start VR", "Time end VR", "Time start camp", "Time end camp", "Time start meditation", "Time end meditation"},
		{"01", "2022-06-28", "13:01:00", "13:03:00", "13:04:00", "13:06:00", "13:07:00", "13:09:00"},
		{"01", "2022-06-30", "13:01:00", "13:03:00", "13:04:00", "13:06:00", "13:07:00", "13:09:00"},
		{"02", "2022-06-28", "13:00:30", "13:02:30", "13:03:00", "13:05:00", "13:06:00", "13:08:00"},
	}
	f := excelize.NewFile()
	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	for r, row := range rows {
		for c, v := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+1)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				t.Fatal(err)
			}
		}
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}
}

func studyFixture(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	data := filepath.Join(root, "data")
	if err := os.MkdirAll(data, 0o755); err != nil {
		t.Fatal(err)
	}
	writeEDA(t, filepath.Join(data, RecordingFileName("01", "2022-06-28", timeline.EDA)), 40)
	writeEDA(t, filepath.Join(data, RecordingFileName("01", "2022-06-30", timeline.EDA)), 80)
	writeEDA(t, filepath.Join(data, RecordingFileName("02", "2022-06-28", timeline.EDA)), 40)
	writeTimings(t, filepath.Join(root, "timings.xlsx"))

	cfg, err := config.Parse([]byte(`
study:
  data_dir: data
  timing_table: timings.xlsx
  timezone: UTC
  subjects:
    - {id: "01", dates: ["2022-06-28", "2022-06-30"]}
    - {id: "02", dates: ["2022-06-28"]}
segment:
  width_seconds: 30
  min_amplitude: 0.5
  refractory_ms: 0
cache:
  backend: memory
output:
  windowed_format: csv
`))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	cfg.Study.DataDir = data
	cfg.Study.TimingTable = filepath.Join(root, "timings.xlsx")
	cfg.Output.Dir = filepath.Join(root, "out")
	return cfg
}

func TestRunWritesArtifacts(t *testing.T) {
	ctx := context.Background()
	cfg := studyFixture(t)
	rstore, err := results.Open("sqlite", filepath.Join(t.TempDir(), "results.db"))
	if err != nil {
		t.Fatalf("results.Open error: %v", err)
	}
	defer rstore.Close()

	res, err := Run(ctx, Options{Config: cfg, Store: peakcache.NewMemoryStore(), Results: rstore})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if res.Recordings != 3 || len(res.WindowedPaths) != 3 {
		t.Fatalf("unexpected result %+v", res)
	}

	var summary SummaryFile
	data, err := os.ReadFile(res.SummaryPath)
	if err != nil {
		t.Fatalf("read summary: %v", err)
	}
	if err := json.Unmarshal(data, &summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if len(summary.All) != 3 || len(summary.Subjects) != 2 {
		t.Fatalf("unexpected summary shape: all=%d subjects=%d", len(summary.All), len(summary.Subjects))
	}
	// VR spans 120 s = 480 samples, four 120-sample segments of 30 s.
	rec := summary.Recordings[0]
	if rec.SegmentWidth != 120 || rec.Rate != 4 {
		t.Fatalf("unexpected recording summary %+v", rec)
	}
	vr := rec.Rows[0]
	if vr.Activity != activity.VR || vr.MeanSegmentDurationS != 30 || vr.MeanPeakCount != 3 {
		t.Fatalf("unexpected VR row %+v", vr)
	}

	// Subject 01 averages 3 and 1.5 peaks per segment; subject 02 has 3. On
	// 2022-06-30 the spikes at samples 360 and 600 sit on the last sample of a
	// segment and still count.
	subj01 := summary.Subjects["01"][0]
	if subj01.MeanPeakCount != 2.25 || subj01.N != 2 {
		t.Fatalf("subject 01 VR = %+v", subj01)
	}
	all := summary.All[0]
	if all.MeanPeakCount != 2.625 || all.N != 2 {
		t.Fatalf("all subjects VR = %+v", all)
	}

	tex, err := os.ReadFile(res.TablesPath)
	if err != nil {
		t.Fatalf("read tables: %v", err)
	}
	if !strings.Contains(string(tex), "Mean table for all the subjects") || !strings.Contains(string(tex), "vr & 2.6") {
		t.Fatalf("unexpected tables.tex:\n%s", tex)
	}

	f, err := os.Open(res.WindowedPaths[0])
	if err != nil {
		t.Fatalf("open windowed csv: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read windowed csv: %v", err)
	}
	if got := strings.Join(rows[0], ","); got != "recording,activity,ts_utc_iso,elapsed_s,value_0" {
		t.Fatalf("unexpected header %q", got)
	}
	if len(rows)-1 != 3*480 {
		t.Fatalf("expected %d windowed samples, got %d", 3*480, len(rows)-1)
	}

	stored, err := rstore.Rows(ctx, res.RunID, results.ScopeAll)
	if err != nil || len(stored) != 3 {
		t.Fatalf("stored rows = %v, %v", stored, err)
	}
	run, err := rstore.GetRun(ctx, res.RunID)
	if err != nil || run.SegmentWidthS != 30 {
		t.Fatalf("stored run = %+v, %v", run, err)
	}
}

func TestRunRejectsStaleCache(t *testing.T) {
	ctx := context.Background()
	cfg := studyFixture(t)
	cfg.Output.WindowedFormat = ""
	store := peakcache.NewMemoryStore()
	if _, err := Run(ctx, Options{Config: cfg, Store: store}); err != nil {
		t.Fatalf("first Run() error: %v", err)
	}

	cfg.Segment.WidthSeconds = 60
	cfg.Output.Overwrite = true
	_, err := Run(ctx, Options{Config: cfg, Store: store})
	var mismatch *peakcache.SegmentationMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected SegmentationMismatchError, got %v", err)
	}

	cfg.Cache.Reprocess = true
	if _, err := Run(ctx, Options{Config: cfg, Store: store}); err != nil {
		t.Fatalf("reprocess Run() error: %v", err)
	}
}

func TestRunRefusesNonEmptyOutput(t *testing.T) {
	cfg := studyFixture(t)
	if err := os.MkdirAll(cfg.Output.Dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(cfg.Output.Dir, "keep.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Run(context.Background(), Options{Config: cfg, Store: peakcache.NewMemoryStore()}); err == nil {
		t.Fatal("expected error for non-empty output directory")
	}
}

func TestOpenStoreBackends(t *testing.T) {
	ctx := context.Background()
	s, closeFn, err := OpenStore(ctx, config.CacheConfig{Backend: "file", Dir: t.TempDir()}, nil)
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	defer closeFn()
	if _, ok := s.(*peakcache.FileStore); !ok {
		t.Fatalf("expected FileStore, got %T", s)
	}
	if _, _, err := OpenStore(ctx, config.CacheConfig{Backend: "s3"}, &config.Env{}); err == nil {
		t.Fatal("expected missing S3 settings to fail")
	}
	if _, _, err := OpenStore(ctx, config.CacheConfig{Backend: "redis"}, nil); err == nil {
		t.Fatal("expected redis without env to fail")
	}
}

func TestOpenStoreRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()
	s, closeFn, err := OpenStore(ctx, config.CacheConfig{Backend: "redis", Prefix: "peaks:"}, &config.Env{RedisAddr: mr.Addr()})
	if err != nil {
		t.Fatalf("redis store: %v", err)
	}
	defer closeFn()
	if err := s.Put(ctx, "a.peaks.parquet", []byte("x")); err != nil {
		t.Fatalf("Put error: %v", err)
	}
	if !mr.Exists("peaks:a.peaks.parquet") {
		t.Fatal("expected prefixed key in redis")
	}
}
