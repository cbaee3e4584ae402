package peakcache

import (
	"fmt"

	"github.com/lucasjlepore/empatica-analyzer/segment"
)

// SegmentationMismatchError reports a cached entry computed under a different
// segmentation than the one requested.
type SegmentationMismatchError struct {
	Key       string
	Activity  string
	Requested segment.Config
	Cached    segment.Config
}

func (e *SegmentationMismatchError) Error() string {
	if e.Requested.Baseline != e.Cached.Baseline {
		return fmt.Sprintf("peak cache %s: baseline %q requested, cache holds %q; reprocess to replace it",
			e.Key, e.Requested.Baseline, e.Cached.Baseline)
	}
	return fmt.Sprintf("peak cache %s: activity %s cached with segment width %s, requested %s; reprocess to replace it",
		e.Key, e.Activity, e.Cached.Width, e.Requested.Width)
}

// CorruptError reports a cache object that cannot describe a valid entry.
type CorruptError struct {
	Key    string
	Reason string
	Err    error
}

func (e *CorruptError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("peak cache %s is corrupt: %s: %v", e.Key, e.Reason, e.Err)
	}
	return fmt.Sprintf("peak cache %s is corrupt: %s", e.Key, e.Reason)
}

func (e *CorruptError) Unwrap() error { return e.Err }
