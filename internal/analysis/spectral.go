package analysis

import "math"

// Spectral geometry. A 2048-point FFT over the tail of each frame yields
// 1024 magnitude bins; consumers display the first 128 bins of the
// session-averaged vector on a logarithmic 100 Hz–10 kHz axis. The true
// Nyquist bound at 16 kHz is 8 kHz, so the top of the declared display range
// reads residual energy — that extrapolation is part of the existing export
// contract and is reproduced deliberately.
const (
	// fftSize is the number of samples fed to the FFT.
	fftSize = 2048

	// SnapshotBins is the length of one SpectrumSnapshot (fftSize / 2).
	SnapshotBins = fftSize / 2

	// SpectrumBins is the number of bins retained in the finalized,
	// session-averaged spectrum.
	SpectrumBins = 128
)

// BinFrequency returns the centre frequency in Hz of snapshot bin i.
func BinFrequency(i int) float64 {
	return float64(i) / float64(SnapshotBins) * (SampleRate / 2)
}

// SpectralAnalyzer computes magnitude-spectrum snapshots from analysis
// frames. The twiddle factors and window are precomputed once; Snapshot
// reuses internal scratch buffers, so the analyzer is not safe for
// concurrent use.
type SpectralAnalyzer struct {
	window []float64    // Hann window coefficients
	re, im []float64    // FFT scratch
	rev    []int        // bit-reversal permutation
	cos    []float64    // twiddle cosines per butterfly span
	sin    []float64    // twiddle sines per butterfly span
}

// NewSpectralAnalyzer precomputes the window, permutation, and twiddle
// tables for the fixed FFT size.
func NewSpectralAnalyzer() *SpectralAnalyzer {
	a := &SpectralAnalyzer{
		window: make([]float64, fftSize),
		re:     make([]float64, fftSize),
		im:     make([]float64, fftSize),
		rev:    make([]int, fftSize),
		cos:    make([]float64, fftSize/2),
		sin:    make([]float64, fftSize/2),
	}
	for i := range a.window {
		a.window[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(fftSize-1)))
	}
	bits := 0
	for 1<<bits < fftSize {
		bits++
	}
	for i := range a.rev {
		r := 0
		for b := 0; b < bits; b++ {
			r |= ((i >> b) & 1) << (bits - 1 - b)
		}
		a.rev[i] = r
	}
	for i := 0; i < fftSize/2; i++ {
		angle := -2 * math.Pi * float64(i) / float64(fftSize)
		a.cos[i] = math.Cos(angle)
		a.sin[i] = math.Sin(angle)
	}
	return a
}

// Snapshot computes a SnapshotBins-length magnitude spectrum from the most
// recent fftSize samples of frame. Frames shorter than fftSize are
// implicitly zero-padded at the front. The returned slice is owned by the
// caller.
func (a *SpectralAnalyzer) Snapshot(frame []float32) []float64 {
	// Windowed copy of the frame tail, bit-reversal ordered.
	start := len(frame) - fftSize
	for i := 0; i < fftSize; i++ {
		var s float64
		if idx := start + i; idx >= 0 && idx < len(frame) {
			s = float64(frame[idx])
		}
		j := a.rev[i]
		a.re[j] = s * a.window[i]
		a.im[j] = 0
	}

	// Iterative radix-2 Cooley–Tukey.
	for size := 2; size <= fftSize; size <<= 1 {
		half := size / 2
		step := fftSize / size
		for base := 0; base < fftSize; base += size {
			for k := 0; k < half; k++ {
				wRe := a.cos[k*step]
				wIm := a.sin[k*step]
				i0 := base + k
				i1 := base + k + half
				tRe := a.re[i1]*wRe - a.im[i1]*wIm
				tIm := a.re[i1]*wIm + a.im[i1]*wRe
				a.re[i1] = a.re[i0] - tRe
				a.im[i1] = a.im[i0] - tIm
				a.re[i0] += tRe
				a.im[i0] += tIm
			}
		}
	}

	out := make([]float64, SnapshotBins)
	for i := 0; i < SnapshotBins; i++ {
		out[i] = math.Hypot(a.re[i], a.im[i]) / float64(fftSize)
	}
	return out
}
