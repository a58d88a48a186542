package audio

import (
	"fmt"
	"math"
)

// SyncLength resizes the WAV file at path so that it lasts targetSeconds.
// A shorter asset is padded with exactly the missing frames of silence, a
// longer one is truncated. The file is rewritten in place and the resized
// asset is returned.
func SyncLength(path string, targetSeconds float64) (*Asset, error) {
	if targetSeconds < 0 || math.IsNaN(targetSeconds) || math.IsInf(targetSeconds, 0) {
		return nil, fmt.Errorf("audio: sync %q: invalid target duration %v", path, targetSeconds)
	}
	a, err := Load(path)
	if err != nil {
		return nil, err
	}

	a.Resize(int(math.Round(targetSeconds * float64(a.SampleRate))))
	if err := a.Save(path); err != nil {
		return nil, err
	}
	return a, nil
}

// Resize pads with silence or truncates so the asset holds exactly frames
// frames.
func (a *Asset) Resize(frames int) {
	frames = max(frames, 0)
	want := frames * a.Channels
	switch cur := len(a.Data); {
	case cur < want:
		a.Data = append(a.Data, make([]int, want-cur)...)
	case cur > want:
		a.Data = a.Data[:want:want]
	}
}
