package peakcache

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	empatica "github.com/lucasjlepore/empatica-analyzer"
	"github.com/lucasjlepore/empatica-analyzer/activity"
	"github.com/lucasjlepore/empatica-analyzer/segment"
	"github.com/lucasjlepore/empatica-analyzer/timeline"
)

func fixtureEntry() *segment.Entry {
	return &segment.Entry{
		Recording: "04_2022-06-28_EDA.csv",
		Rate:      1,
		Config:    segment.Config{Width: 300},
		Activities: []segment.ActivityPeaks{
			{
				Activity: activity.VR,
				Segments: []segment.Segment{
					{Start: 0, End: 300, PeakCount: 2, MaxValue: 0.8},
					{Start: 300, End: 600, PeakCount: 0, MaxValue: math.NaN()},
					{Start: 600, End: 650, PeakCount: 1, MaxValue: 0.4},
				},
				PeakIndices: []int{12, 140, 610},
				PeakValues:  []float64{0.8, 0.3, 0.4},
			},
			{
				Activity:    activity.Camp,
				Segments:    []segment.Segment{{Start: 0, End: 120, PeakCount: 0, MaxValue: math.NaN()}},
				PeakIndices: []int{},
				PeakValues:  []float64{},
			},
		},
	}
}

func TestCodecRoundTrip(t *testing.T) {
	want := fixtureEntry()
	data, err := Encode(want)
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}
	got, err := Decode("k", data)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty(), cmpopts.EquateNaNs()); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestEncodeRejectsEmptyEntry(t *testing.T) {
	if _, err := Encode(&segment.Entry{Recording: "01_2022-06-28_EDA.csv", Rate: 4}); err == nil {
		t.Fatal("expected error for entry without activities")
	}
}

func TestDecodeGarbage(t *testing.T) {
	_, err := Decode("k", []byte("not a parquet object"))
	var corrupt *CorruptError
	if !errors.As(err, &corrupt) {
		t.Fatalf("expected CorruptError, got %v", err)
	}
}

func TestCheckImpliedWidth(t *testing.T) {
	e := fixtureEntry()
	if err := Check("k", e, segment.Config{Width: 300}); err != nil {
		t.Fatalf("width 300 should match: %v", err)
	}

	err := Check("k", e, segment.Config{Width: 600})
	var mismatch *SegmentationMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected SegmentationMismatchError, got %v", err)
	}
	if mismatch.Requested.Width != 600 || mismatch.Cached.Width != 300 {
		t.Fatalf("mismatch reports %+v", mismatch)
	}
	if msg := err.Error(); !strings.Contains(msg, "300 samples") || !strings.Contains(msg, "600 samples") {
		t.Fatalf("message should name both widths: %q", msg)
	}
}

func TestCheckSingleSegmentRelaxation(t *testing.T) {
	e := &segment.Entry{
		Config: segment.Config{Width: segment.Unbounded},
		Activities: []segment.ActivityPeaks{{
			Activity: activity.VR,
			Segments: []segment.Segment{{Start: 0, End: 200}},
		}},
	}
	for _, w := range []segment.Width{segment.Unbounded, 200, 900} {
		if err := Check("k", e, segment.Config{Width: w}); err != nil {
			t.Fatalf("width %v should accept a single 200-sample segment: %v", w, err)
		}
	}
	var mismatch *SegmentationMismatchError
	if err := Check("k", e, segment.Config{Width: 100}); !errors.As(err, &mismatch) {
		t.Fatalf("width 100 should be rejected, got %v", err)
	}
}

func TestCheckCorruptSegments(t *testing.T) {
	e := fixtureEntry()
	e.Activities[0].Segments[1].End = 500
	e.Activities[0].Segments[2].Start = 500
	err := Check("k", e, segment.Config{Width: 300})
	var corrupt *CorruptError
	if !errors.As(err, &corrupt) {
		t.Fatalf("expected CorruptError, got %v", err)
	}
}

func TestCheckBaselineMismatch(t *testing.T) {
	e := fixtureEntry()
	err := Check("k", e, segment.Config{Width: 300, Baseline: activity.Baseline})
	var mismatch *SegmentationMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected SegmentationMismatchError, got %v", err)
	}
	if !strings.Contains(err.Error(), "baseline") {
		t.Fatalf("message should mention baseline: %q", err)
	}
}

func testRecording(t *testing.T) *empatica.Recording {
	t.Helper()
	start := time.Date(2022, 6, 28, 13, 0, 0, 0, time.UTC)
	s := &timeline.Stream{Format: "EDA", Rate: 1, Start: start}
	for i := 0; i < 700; i++ {
		v := 0.0
		if i%50 == 25 {
			v = 1
		}
		s.T = append(s.T, float64(i))
		s.Daytime = append(s.Daytime, start.Add(time.Duration(i)*time.Second))
		s.Values = append(s.Values, []float64{v})
	}
	return empatica.NewRecording("04_2022-06-28_EDA.csv", s, []activity.Window{
		{Name: activity.VR, Start: 0, End: 650},
		{Name: activity.Camp, Start: 650, End: 700},
	})
}

func TestLoadOrCompute(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	c := &Cache{
		Store:     store,
		Processor: &segment.Processor{Finder: &segment.ThresholdFinder{MinAmplitude: 0.5}},
	}
	rec := testRecording(t)

	first, err := c.LoadOrCompute(ctx, rec, segment.Config{Width: 300}, false)
	if err != nil {
		t.Fatalf("first LoadOrCompute error: %v", err)
	}
	if _, err := store.Get(ctx, Key(rec)); err != nil {
		t.Fatalf("entry was not stored: %v", err)
	}

	again, err := c.LoadOrCompute(ctx, rec, segment.Config{Width: 300}, false)
	if err != nil {
		t.Fatalf("cached LoadOrCompute error: %v", err)
	}
	if diff := cmp.Diff(first, again, cmpopts.EquateEmpty(), cmpopts.EquateNaNs()); diff != "" {
		t.Fatalf("cached entry differs (-computed +cached):\n%s", diff)
	}

	_, err = c.LoadOrCompute(ctx, rec, segment.Config{Width: 600}, false)
	var mismatch *SegmentationMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected SegmentationMismatchError, got %v", err)
	}

	redone, err := c.LoadOrCompute(ctx, rec, segment.Config{Width: 600}, true)
	if err != nil {
		t.Fatalf("reprocess error: %v", err)
	}
	vr, _ := redone.Activity(activity.VR)
	if len(vr.Segments) != 2 || vr.Segments[0].Len() != 600 {
		t.Fatalf("reprocessed segments = %+v", vr.Segments)
	}
	if _, err := c.LoadOrCompute(ctx, rec, segment.Config{Width: 600}, false); err != nil {
		t.Fatalf("reprocessed entry should now match: %v", err)
	}
}

func TestKey(t *testing.T) {
	rec := testRecording(t)
	rec.ID = "data/04_2022-06-28_EDA.csv"
	if got := Key(rec); got != "04_2022-06-28_EDA.csv.peaks.parquet" {
		t.Fatalf("Key = %q", got)
	}
}

func TestFileStore(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "cache")
	s := &FileStore{Dir: dir}
	if _, err := s.Get(ctx, "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.Put(ctx, "x", []byte("one")); err != nil {
		t.Fatalf("Put error: %v", err)
	}
	if err := s.Put(ctx, "x", []byte("two")); err != nil {
		t.Fatalf("overwrite error: %v", err)
	}
	got, err := s.Get(ctx, "x")
	if err != nil || string(got) != "two" {
		t.Fatalf("Get = %q, %v", got, err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("temporary files left behind: %v", entries)
	}
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client, err := NewRedisClient(ctx, RedisOptions{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("NewRedisClient error: %v", err)
	}
	defer client.Close()

	s := NewRedisStore(client, "peaks:")
	if _, err := s.Get(ctx, "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	data, err := Encode(fixtureEntry())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Put(ctx, "x", data); err != nil {
		t.Fatalf("Put error: %v", err)
	}
	if !mr.Exists("peaks:x") {
		t.Fatal("expected prefixed key in redis")
	}
	got, err := s.Get(ctx, "x")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	entry, err := Decode("x", got)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if entry.Recording != "04_2022-06-28_EDA.csv" {
		t.Fatalf("unexpected entry %+v", entry)
	}
}

func TestS3Store(t *testing.T) {
	endpoint := os.Getenv("EMPATICA_S3_TEST_ENDPOINT")
	if endpoint == "" {
		t.Skip("EMPATICA_S3_TEST_ENDPOINT not set")
	}
	s, err := NewS3Store(S3Options{
		Endpoint:  endpoint,
		AccessKey: os.Getenv("EMPATICA_S3_ACCESS_KEY"),
		SecretKey: os.Getenv("EMPATICA_S3_SECRET_KEY"),
		Bucket:    os.Getenv("EMPATICA_S3_BUCKET"),
		Prefix:    "test/",
	})
	if err != nil {
		t.Fatalf("NewS3Store error: %v", err)
	}
	ctx := context.Background()
	if err := s.Put(ctx, "roundtrip", []byte("peaks")); err != nil {
		t.Fatalf("Put error: %v", err)
	}
	got, err := s.Get(ctx, "roundtrip")
	if err != nil || string(got) != "peaks" {
		t.Fatalf("Get = %q, %v", got, err)
	}
	if _, err := s.Get(ctx, "missing-object"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
