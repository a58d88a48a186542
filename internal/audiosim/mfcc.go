package audiosim

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// MFCC analysis parameters.
const (
	NFFT    = 2048
	Hop     = 512
	NMels   = 128
	NMFCC   = 20
	TopDB   = 80.0
	minPow  = 1e-10
	nBins   = NFFT/2 + 1
	halfFFT = NFFT / 2
)

// MFCC returns the frames×NMFCC cepstral matrix of a mono signal sampled at
// sampleRate. Frames are centred: the signal is reflect-padded by NFFT/2 on
// both sides, giving 1 + len(signal)/Hop frames.
func MFCC(signal []float64, sampleRate int) [][]float64 {
	if len(signal) == 0 || sampleRate <= 0 {
		return nil
	}

	padded := reflectPad(signal, halfFFT)
	nFrames := 1 + len(signal)/Hop
	window := hann(NFFT)
	mel := newMelFilterbank(sampleRate)
	fft := fourier.NewFFT(NFFT)

	frame := make([]float64, NFFT)
	buf := make([]complex128, nBins)
	power := make([]float64, nBins)

	melDB := make([][]float64, nFrames)
	peak := math.Inf(-1)
	for t := range nFrames {
		off := t * Hop
		for i := range frame {
			frame[i] = padded[off+i] * window[i]
		}
		buf = powerSpectrum(fft, frame, buf, power)

		row := mel.apply(power)
		for m, v := range row {
			row[m] = 10 * math.Log10(max(v, minPow))
			peak = max(peak, row[m])
		}
		melDB[t] = row
	}

	floor := peak - TopDB
	dct := dctMatrix(NMFCC, NMels)
	out := make([][]float64, nFrames)
	for t, row := range melDB {
		for m, v := range row {
			row[m] = max(v, floor)
		}
		coeffs := make([]float64, NMFCC)
		for k := range coeffs {
			var s float64
			for m, v := range row {
				s += dct[k][m] * v
			}
			coeffs[k] = s
		}
		out[t] = coeffs
	}
	return out
}

// powerSpectrum writes |X[k]|² for the nBins non-negative frequencies of
// frame into out and returns the coefficient buffer for reuse.
func powerSpectrum(fft *fourier.FFT, frame []float64, buf []complex128, out []float64) []complex128 {
	buf = fft.Coefficients(buf, frame)
	for k, c := range buf {
		out[k] = real(c)*real(c) + imag(c)*imag(c)
	}
	return buf
}

// reflectPad mirrors pad samples on each side without repeating the edge
// sample. Signals shorter than pad reflect repeatedly.
func reflectPad(x []float64, pad int) []float64 {
	n := len(x)
	out := make([]float64, n+2*pad)
	for i := range out {
		out[i] = x[reflectIndex(i-pad, n)]
	}
	return out
}

func reflectIndex(i, n int) int {
	if n == 1 {
		return 0
	}
	period := 2 * (n - 1)
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - i
	}
	return i
}

// hann returns a periodic Hann window of length n.
func hann(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n))
	}
	return w
}

// dctMatrix returns the first k rows of the orthonormal DCT-II basis of
// size n.
func dctMatrix(k, n int) [][]float64 {
	m := make([][]float64, k)
	for i := range m {
		scale := math.Sqrt(2 / float64(n))
		if i == 0 {
			scale = math.Sqrt(1 / float64(n))
		}
		m[i] = make([]float64, n)
		for j := range m[i] {
			m[i][j] = scale * math.Cos(math.Pi*float64(i)*float64(2*j+1)/float64(2*n))
		}
	}
	return m
}
