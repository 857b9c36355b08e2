package audio

import (
	"math"
	"sort"

	"github.com/modallabs/modal-core/internal/config"
)

// Metrics summarizes signal fitness of a decoded sample buffer. Values are
// derived from the buffer alone and are never persisted without it.
type Metrics struct {
	SignalToNoise   float64
	AverageLevel    float64
	PeakLevel       float64
	HasClipping     bool
	TooQuiet        bool
	TooLoud         bool
	QualityScore    float64
	DurationSeconds float64
}

// Analyzer computes quality metrics from normalized mono samples in [-1,1].
// Analyze is pure: same buffer, same metrics.
type Analyzer struct {
	cfg config.AudioConfig
}

func NewAnalyzer(cfg config.AudioConfig) *Analyzer {
	return &Analyzer{cfg: cfg}
}

// frameDuration is the analysis window for the noise-floor estimate.
const frameDuration = 0.02 // 20 ms

// Analyze computes level, clipping and a signal-to-noise proxy for a mono
// buffer. The SNR is not a spectral measure: it compares the energy of the
// loudest half of 20 ms frames against the quietest decile, which tracks
// speech-over-noise well enough for gating decisions.
func (a *Analyzer) Analyze(samples []float64, sampleRate int) Metrics {
	m := Metrics{}
	if sampleRate > 0 {
		m.DurationSeconds = float64(len(samples)) / float64(sampleRate)
	}
	if len(samples) == 0 {
		m.TooQuiet = true
		return m
	}

	var sumSquares float64
	for _, s := range samples {
		abs := math.Abs(s)
		if abs > m.PeakLevel {
			m.PeakLevel = abs
		}
		if abs >= a.cfg.ClipPeak {
			m.HasClipping = true
		}
		sumSquares += s * s
	}
	m.AverageLevel = math.Sqrt(sumSquares / float64(len(samples)))
	m.TooQuiet = m.AverageLevel < a.cfg.QuietRMS
	m.TooLoud = m.PeakLevel > a.cfg.LoudPeak

	if m.AverageLevel == 0 {
		// All-silent buffer: nothing to score, and no noise floor to divide by.
		m.TooQuiet = true
		return m
	}

	m.SignalToNoise = a.estimateSNR(samples, sampleRate)
	m.QualityScore = a.score(m)
	return m
}

// estimateSNR returns the frame-energy SNR proxy in dB, clamped to [0,60].
func (a *Analyzer) estimateSNR(samples []float64, sampleRate int) float64 {
	frameLen := int(float64(sampleRate) * frameDuration)
	if frameLen <= 0 || frameLen > len(samples) {
		frameLen = len(samples)
	}

	var energies []float64
	for start := 0; start < len(samples); start += frameLen {
		end := start + frameLen
		if end > len(samples) {
			end = len(samples)
		}
		var sum float64
		for _, s := range samples[start:end] {
			sum += s * s
		}
		energies = append(energies, math.Sqrt(sum/float64(end-start)))
	}
	sort.Float64s(energies)

	noiseCount := len(energies) / 10
	if noiseCount == 0 {
		noiseCount = 1
	}
	noise := mean(energies[:noiseCount])
	signal := mean(energies[len(energies)/2:])

	if noise == 0 {
		if signal == 0 {
			return 0
		}
		// No measurable noise floor in any frame.
		return 60
	}
	snr := 20 * math.Log10(signal/noise)
	return clamp(snr, 0, 60)
}

// score folds the sub-metrics into a single [0,1] figure. Clipping and extreme
// loudness carry the heaviest penalties, quietness a moderate one, and the SNR
// proxy contributes linearly.
func (a *Analyzer) score(m Metrics) float64 {
	base := 0.6 + 0.4*clamp(m.SignalToNoise/30, 0, 1)
	if m.HasClipping {
		base -= 0.4
	}
	if m.TooLoud {
		base -= 0.2
	}
	if m.TooQuiet {
		base -= 0.25
	}
	return clamp(base, 0, 1)
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
