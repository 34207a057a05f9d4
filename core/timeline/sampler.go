// Package timeline resamples extractor frames to one point per second and
// assembles the per-slot timeline record.
package timeline

import (
	"math"
	"sort"
	"time"

	"smileslot/core/extractor"
	"smileslot/model"
)

const (
	// DefaultTolerance is how far a frame may sit from k.0 and still represent second k.
	DefaultTolerance = 500 * time.Millisecond
	// MaxSeconds caps a timeline at one slot.
	MaxSeconds = int(30 * time.Minute / time.Second)
)

// Sample is the frame chosen to represent one whole second.
type Sample struct {
	Second   int
	Offset   float64
	Features model.FeatureVector
}

// SampleFrames picks, for each second k in [0, floor(duration)), the frame whose
// offset is closest to k. Ties go to the earlier frame. Seconds without a frame
// inside tolerance are omitted. Feature values are copied unchanged.
func SampleFrames(frames []extractor.Frame, duration, tolerance time.Duration) []Sample {
	seconds := int(duration / time.Second)
	if seconds > MaxSeconds {
		seconds = MaxSeconds
	}
	if seconds <= 0 || len(frames) == 0 {
		return nil
	}
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	tol := tolerance.Seconds()

	sorted := frames
	if !sort.SliceIsSorted(frames, func(i, j int) bool { return frames[i].Offset < frames[j].Offset }) {
		sorted = make([]extractor.Frame, len(frames))
		copy(sorted, frames)
		sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Offset < sorted[j].Offset })
	}

	out := make([]Sample, 0, seconds)
	for k := 0; k < seconds; k++ {
		target := float64(k)
		// first frame at or after k
		next := sort.Search(len(sorted), func(i int) bool { return sorted[i].Offset >= target })

		best, dist := -1, math.Inf(1)
		if next > 0 {
			prev := next - 1
			for prev > 0 && sorted[prev-1].Offset == sorted[prev].Offset {
				prev--
			}
			best, dist = prev, target-sorted[prev].Offset
		}
		if next < len(sorted) {
			if d := sorted[next].Offset - target; d < dist {
				best, dist = next, d
			}
		}
		if best < 0 || dist > tol {
			continue
		}
		out = append(out, Sample{Second: k, Offset: sorted[best].Offset, Features: sorted[best].Features})
	}
	return out
}
