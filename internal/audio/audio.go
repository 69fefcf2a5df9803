// Package audio extracts speech audio from media files and locates pauses in it.
package audio

import "context"

// SilenceOpts configures pause detection.
type SilenceOpts struct {
	// MinSilenceMs is the minimum silence duration in milliseconds.
	// Default: 400 milliseconds.
	MinSilenceMs int

	// ThreshDB is the volume threshold in dBFS below which audio is
	// considered silence.
	// Default: -35 dBFS.
	ThreshDB float64
}

// DefaultSilenceOpts returns the default pause detection options.
func DefaultSilenceOpts() SilenceOpts {
	return SilenceOpts{
		MinSilenceMs: 400,
		ThreshDB:     -35,
	}
}

// Silence is a detected pause, in seconds from the start of the file.
type Silence struct {
	Start float64
	End   float64
}

// Mid returns the middle of the pause.
func (s Silence) Mid() float64 {
	return (s.Start + s.End) / 2
}

// Extractor converts media into the mono 16 kHz WAV expected by speech recognition.
type Extractor interface {
	ExtractWav(ctx context.Context, src, dst string) error
}

// SilenceDetector finds pauses in an audio or video file.
type SilenceDetector interface {
	// DetectSilences returns pauses sorted by start time.
	DetectSilences(ctx context.Context, path string, opts SilenceOpts) ([]Silence, error)
}

// NearestSilence returns the pause whose middle is closest to t within
// tolerance seconds, and false when there is none.
func NearestSilence(silences []Silence, t, tolerance float64) (Silence, bool) {
	var (
		best  Silence
		found bool
	)
	bestDistance := tolerance

	for _, s := range silences {
		mid := s.Mid()
		if mid < t-tolerance {
			continue
		}
		if mid > t+tolerance {
			break
		}
		d := mid - t
		if d < 0 {
			d = -d
		}
		if d <= bestDistance {
			bestDistance = d
			best = s
			found = true
		}
	}
	return best, found
}
