// Package audiosim scores how alike two recordings sound by comparing their
// MFCC frames.
package audiosim

import (
	"errors"
	"fmt"
	"math"

	"github.com/MrWong99/speechscore/internal/apperr"
	"github.com/MrWong99/speechscore/pkg/audio"
)

var (
	// ErrEmptySignal is returned when either asset has no samples.
	ErrEmptySignal = errors.New("audiosim: empty signal")

	// ErrWidthMismatch is returned when two feature matrices have rows of
	// different lengths.
	ErrWidthMismatch = errors.New("audiosim: feature width mismatch")
)

// Score returns the mean cosine similarity between every MFCC frame of a and
// every MFCC frame of b. b is resampled to a's rate when they differ and both
// signals are truncated to the shorter one. Failures are audio-processing
// errors.
func Score(a, b *audio.Asset) (float64, error) {
	if a == nil || b == nil {
		return 0, apperr.AudioProcessing("audio_similarity", errors.New("audiosim: nil asset"))
	}
	x := a.Mono()
	y := b.Mono()
	if b.SampleRate != a.SampleRate {
		y = audio.Resample(y, b.SampleRate, a.SampleRate)
	}
	n := min(len(x), len(y))
	if n == 0 {
		return 0, apperr.AudioProcessing("audio_similarity", ErrEmptySignal)
	}

	fa := MFCC(x[:n], a.SampleRate)
	fb := MFCC(y[:n], a.SampleRate)
	s, err := CrossCosineMean(fa, fb)
	if err != nil {
		return 0, apperr.AudioProcessing("audio_similarity", err)
	}
	return s, nil
}

// ScoreFiles loads both WAV files and calls [Score].
func ScoreFiles(pathA, pathB string) (float64, error) {
	a, err := audio.Load(pathA)
	if err != nil {
		return 0, apperr.AudioProcessing("audio_similarity", err)
	}
	b, err := audio.Load(pathB)
	if err != nil {
		return 0, apperr.AudioProcessing("audio_similarity", err)
	}
	return Score(a, b)
}

// CrossCosineMean is the mean of the full len(a)×len(b) cosine similarity
// matrix. Zero-norm rows contribute 0. Empty inputs yield 0. Rows of a and b
// must share one width, otherwise the error wraps [ErrWidthMismatch].
//
// The mean of all pairwise dot products of unit vectors equals the dot
// product of their sums divided by the pair count, which keeps this linear
// in the number of frames.
func CrossCosineMean(a, b [][]float64) (float64, error) {
	if len(a) == 0 || len(b) == 0 {
		return 0, nil
	}
	sa, err := sumUnit(a, len(a[0]))
	if err != nil {
		return 0, err
	}
	sb, err := sumUnit(b, len(a[0]))
	if err != nil {
		return 0, err
	}
	var dot float64
	for i := range sa {
		dot += sa[i] * sb[i]
	}
	return dot / float64(len(a)*len(b)), nil
}

// sumUnit adds up the unit vectors of rows, each of which must have width
// entries.
func sumUnit(rows [][]float64, width int) ([]float64, error) {
	sum := make([]float64, width)
	for i, r := range rows {
		if len(r) != width {
			return nil, fmt.Errorf("%w: row %d has %d values, want %d", ErrWidthMismatch, i, len(r), width)
		}
		var norm float64
		for _, v := range r {
			norm += v * v
		}
		if norm == 0 {
			continue
		}
		norm = math.Sqrt(norm)
		for j, v := range r {
			sum[j] += v / norm
		}
	}
	return sum, nil
}
