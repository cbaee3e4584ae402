// Package peakcache persists peak detection results per recording and checks
// on reload that they were computed under the requested segmentation.
package peakcache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	empatica "github.com/lucasjlepore/empatica-analyzer"
	"github.com/lucasjlepore/empatica-analyzer/segment"
)

// Key returns the cache key of a recording, derived from its source file name
// only. The segmentation is checked against the stored entry, not encoded in
// the key, so a stale entry is detected instead of silently bypassed.
func Key(rec *empatica.Recording) string {
	return filepath.Base(rec.ID) + ".peaks.parquet"
}

// Cache loads peak entries from Store or computes and stores them.
type Cache struct {
	Store     Store
	Processor *segment.Processor
	Logger    *slog.Logger
}

func (c *Cache) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c.Logger
}

// LoadOrCompute returns the entry for rec under cfg. A cached entry is used
// only when Check accepts it; otherwise the mismatch is returned. With
// reprocess set the cache is ignored and overwritten.
func (c *Cache) LoadOrCompute(ctx context.Context, rec *empatica.Recording, cfg segment.Config, reprocess bool) (*segment.Entry, error) {
	if c.Store == nil || c.Processor == nil {
		return nil, fmt.Errorf("peak cache needs a store and a processor")
	}
	key := Key(rec)
	log := c.logger().With("recording", rec.ID, "key", key)

	if !reprocess {
		data, err := c.Store.Get(ctx, key)
		switch {
		case err == nil:
			entry, err := Decode(key, data)
			if err != nil {
				return nil, err
			}
			if err := Check(key, entry, cfg); err != nil {
				return nil, err
			}
			log.Debug("peak cache hit", "width", cfg.Width.String())
			return entry, nil
		case errors.Is(err, ErrNotFound):
			log.Debug("peak cache miss")
		default:
			return nil, fmt.Errorf("load peak cache %s: %w", key, err)
		}
	}

	entry, err := c.Processor.Process(rec, cfg)
	if err != nil {
		return nil, err
	}
	data, err := Encode(entry)
	if err != nil {
		return nil, fmt.Errorf("encode peak cache %s: %w", key, err)
	}
	if err := c.Store.Put(ctx, key, data); err != nil {
		return nil, fmt.Errorf("store peak cache %s: %w", key, err)
	}
	log.Info("peak cache written", "activities", len(entry.Activities), "width", cfg.Width.String(), "bytes", len(data))
	return entry, nil
}

// Check verifies that entry was computed under cfg.
//
// For each activity the implied width is the common length of every segment
// but the last. A single-segment activity only says the width was at least its
// length, so it agrees with Unbounded or any width not below that length.
func Check(key string, entry *segment.Entry, cfg segment.Config) error {
	if entry.Config.Baseline != cfg.Baseline {
		return &SegmentationMismatchError{Key: key, Requested: cfg, Cached: entry.Config}
	}
	for _, ap := range entry.Activities {
		segs := ap.Segments
		if len(segs) == 0 {
			continue
		}
		if len(segs) == 1 {
			if cfg.Width == segment.Unbounded || int(cfg.Width) >= segs[0].Len() {
				continue
			}
			return &SegmentationMismatchError{
				Key:       key,
				Activity:  ap.Activity,
				Requested: cfg,
				Cached:    segment.Config{Width: segment.Unbounded, Baseline: entry.Config.Baseline},
			}
		}
		implied := segs[0].Len()
		for _, s := range segs[1 : len(segs)-1] {
			if s.Len() != implied {
				return &CorruptError{Key: key, Reason: fmt.Sprintf("activity %s has segments of %d and %d samples", ap.Activity, implied, s.Len())}
			}
		}
		if last := segs[len(segs)-1].Len(); last > implied {
			return &CorruptError{Key: key, Reason: fmt.Sprintf("activity %s ends with a segment of %d samples, longer than %d", ap.Activity, last, implied)}
		}
		if segment.Width(implied) != cfg.Width {
			return &SegmentationMismatchError{
				Key:       key,
				Activity:  ap.Activity,
				Requested: cfg,
				Cached:    segment.Config{Width: segment.Width(implied), Baseline: entry.Config.Baseline},
			}
		}
	}
	return nil
}
