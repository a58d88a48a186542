package audiosim

import "math"

// Slaney mel scale: linear below 1 kHz, logarithmic above.
const (
	melFSP       = 200.0 / 3
	melMinLogHz  = 1000.0
	melMinLogMel = melMinLogHz / melFSP
)

var melLogStep = math.Log(6.4) / 27

func hzToMel(hz float64) float64 {
	if hz < melMinLogHz {
		return hz / melFSP
	}
	return melMinLogMel + math.Log(hz/melMinLogHz)/melLogStep
}

func melToHz(mel float64) float64 {
	if mel < melMinLogMel {
		return mel * melFSP
	}
	return melMinLogHz * math.Exp(melLogStep*(mel-melMinLogMel))
}

// melFilterbank holds NMels triangular, area-normalized filters over the
// nBins power-spectrum bins. Each filter stores only its non-zero span.
type melFilterbank struct {
	start   []int
	weights [][]float64
}

func newMelFilterbank(sampleRate int) *melFilterbank {
	nyquist := float64(sampleRate) / 2
	lo, hi := hzToMel(0), hzToMel(nyquist)

	edges := make([]float64, NMels+2)
	for i := range edges {
		edges[i] = melToHz(lo + (hi-lo)*float64(i)/float64(NMels+1))
	}

	freqs := make([]float64, nBins)
	for k := range freqs {
		freqs[k] = nyquist * float64(k) / float64(nBins-1)
	}

	fb := &melFilterbank{start: make([]int, NMels), weights: make([][]float64, NMels)}
	for m := range NMels {
		left, centre, right := edges[m], edges[m+1], edges[m+2]
		norm := 2 / (right - left)

		first, last := -1, -1
		row := make([]float64, nBins)
		for k, f := range freqs {
			lower := (f - left) / (centre - left)
			upper := (right - f) / (right - centre)
			w := max(0, min(lower, upper))
			if w > 0 {
				if first < 0 {
					first = k
				}
				last = k
				row[k] = w * norm
			}
		}
		if first < 0 {
			fb.start[m] = 0
			continue
		}
		fb.start[m] = first
		fb.weights[m] = row[first : last+1]
	}
	return fb
}

// apply projects a power spectrum onto the mel bands.
func (fb *melFilterbank) apply(power []float64) []float64 {
	out := make([]float64, NMels)
	for m, w := range fb.weights {
		var s float64
		off := fb.start[m]
		for i, v := range w {
			s += v * power[off+i]
		}
		out[m] = s
	}
	return out
}
