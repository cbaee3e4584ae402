package aggregate

import (
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/lucasjlepore/empatica-analyzer/activity"
	"github.com/lucasjlepore/empatica-analyzer/segment"
)

func entry(id string, rate float64, width int, counts []int, maxima []float64, lastLen int) *segment.Entry {
	ap := segment.ActivityPeaks{Activity: activity.VR}
	start := 0
	for i, c := range counts {
		n := width
		if i == len(counts)-1 && lastLen > 0 {
			n = lastLen
		}
		ap.Segments = append(ap.Segments, segment.Segment{Start: start, End: start + n, PeakCount: c, MaxValue: maxima[i]})
		start += n
	}
	return &segment.Entry{Recording: id, Rate: rate, Config: segment.Config{Width: segment.Width(width)}, Activities: []segment.ActivityPeaks{ap}}
}

func TestMeanOfMeansIsNotPooled(t *testing.T) {
	a := entry("a", 1, 60, []int{2, 3, 5}, []float64{1, 1, 1}, 20)
	b := entry("b", 1, 60, []int{4, 4}, []float64{1, 1}, 0)

	ra, err := FromEntry(a, activity.VR)
	if err != nil {
		t.Fatalf("FromEntry(a) error: %v", err)
	}
	rb, err := FromEntry(b, activity.VR)
	if err != nil {
		t.Fatalf("FromEntry(b) error: %v", err)
	}
	got, err := MeanOfMeans([]Row{ra, rb})
	if err != nil {
		t.Fatalf("MeanOfMeans error: %v", err)
	}
	want := (10.0/3 + 4) / 2
	if math.Abs(got.MeanPeakCount-want) > 1e-12 {
		t.Fatalf("mean peak count = %v, want %v (pooled would be 3.6)", got.MeanPeakCount, want)
	}
	if got.N != 2 {
		t.Fatalf("N = %d, want 2", got.N)
	}
}

func TestFromEntryExcludesLastSegmentDuration(t *testing.T) {
	e := entry("a", 4, 1200, []int{3, 6, 1}, []float64{0.5, 1.5, math.NaN()}, 40)
	row, err := FromEntry(e, activity.VR)
	if err != nil {
		t.Fatalf("FromEntry error: %v", err)
	}
	want := Row{
		Activity:             activity.VR,
		MeanPeakCount:        10.0 / 3,
		MeanSegmentDurationS: 300,
		PeaksPerMinute:       10.0 / 3 / 300 * 60,
		MeanMaxPeakValue:     1.0,
		N:                    1,
	}
	if diff := cmp.Diff(want, row, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Fatalf("row mismatch (-want +got):\n%s", diff)
	}
}

func TestFromEntrySingleSegment(t *testing.T) {
	e := entry("a", 2, 0, []int{6}, []float64{math.NaN()}, 240)
	row, err := FromEntry(e, activity.VR)
	if err != nil {
		t.Fatalf("FromEntry error: %v", err)
	}
	if row.MeanSegmentDurationS != 120 || row.PeaksPerMinute != 3 {
		t.Fatalf("unexpected single-segment row %+v", row)
	}
	if !math.IsNaN(row.MeanMaxPeakValue) {
		t.Fatalf("max without peaks should be NaN, got %v", row.MeanMaxPeakValue)
	}
}

func TestFromEntryUnknownActivity(t *testing.T) {
	e := entry("a", 1, 10, []int{1}, []float64{1}, 0)
	if _, err := FromEntry(e, activity.Camp); err == nil {
		t.Fatal("expected error for missing activity")
	}
}

func TestAcrossSubjects(t *testing.T) {
	rows := map[string][]Row{
		// Subject 01 has three sessions; it must count once.
		"01": {{Activity: "vr", MeanPeakCount: 1}, {Activity: "vr", MeanPeakCount: 1}, {Activity: "vr", MeanPeakCount: 1}},
		"02": {{Activity: "vr", MeanPeakCount: 5}},
	}
	got, err := AcrossSubjects(rows)
	if err != nil {
		t.Fatalf("AcrossSubjects error: %v", err)
	}
	if got.MeanPeakCount != 3 || got.N != 2 {
		t.Fatalf("AcrossSubjects = %+v, want mean 3 over 2 subjects", got)
	}
}

func TestMeanOfMeansRejectsMixedActivities(t *testing.T) {
	if _, err := MeanOfMeans([]Row{{Activity: "vr"}, {Activity: "camp"}}); err == nil {
		t.Fatal("expected error for mixed activities")
	}
	if _, err := MeanOfMeans(nil); err == nil {
		t.Fatal("expected error for no rows")
	}
}

func TestActivities(t *testing.T) {
	a := entry("a", 1, 60, []int{2, 3}, []float64{1, 2}, 0)
	b := entry("b", 1, 60, []int{4}, []float64{1}, 0)
	got, err := Activities([]*segment.Entry{a, b}, []string{activity.VR, activity.Camp})
	if err != nil {
		t.Fatalf("Activities error: %v", err)
	}
	if len(got[activity.VR]) != 2 || len(got[activity.Camp]) != 0 {
		t.Fatalf("unexpected rows %+v", got)
	}
}

func TestLatexRow(t *testing.T) {
	r := Row{MeanPeakCount: 3.16666, MeanSegmentDurationS: 300, PeaksPerMinute: 0.6333, MeanMaxPeakValue: math.NaN()}
	if got, want := r.LatexRow("VR_1"), `VR\_1 & 3.17 & 300.00 & 0.63 & -- \\`; got != want {
		t.Fatalf("LatexRow = %q, want %q", got, want)
	}
	table := LatexTable("Mean for subject 01", []string{"VR"}, []Row{r})
	if !strings.Contains(table, `\begin{tabular}`) || !strings.Contains(table, `VR & 3.17`) {
		t.Fatalf("unexpected table:\n%s", table)
	}
}

func TestRowJSONNonFinite(t *testing.T) {
	in := Row{Activity: "vr", MeanPeakCount: 2, MeanMaxPeakValue: math.NaN(), PeaksPerMinute: math.Inf(1), N: 1}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	if !strings.Contains(string(data), `"mean_max_peak_value":null`) {
		t.Fatalf("expected null for NaN: %s", data)
	}
	var out Row
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if out.MeanPeakCount != 2 || !math.IsNaN(out.MeanMaxPeakValue) || !math.IsNaN(out.PeaksPerMinute) {
		t.Fatalf("unexpected row %+v", out)
	}
}
