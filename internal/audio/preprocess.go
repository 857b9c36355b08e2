package audio

// Operation names reported by the preprocessor.
const (
	OpDownmixMono   = "downmix_mono"
	OpResample      = "resample"
	OpNormalizeGain = "normalize_gain"
)

// Prepared is the outcome of a preprocessing pass: the analysis-ready clip,
// the operations that were actually needed, and quality metrics taken before
// and after the transformation. OperationsApplied is empty when the input
// already met every target.
type Prepared struct {
	Clip              Clip
	OperationsApplied []string
	QualityBefore     Metrics
	QualityAfter      Metrics
}

// Preprocessor turns a decoded clip into a mono, fixed-rate, level-normalized
// buffer. Every transformation allocates a fresh buffer; the input clip is a
// read-only view shared with the caller.
type Preprocessor struct {
	targetRate float64
	targetRMS  float64
	loudPeak   float64
	analyzer   *Analyzer
}

func NewPreprocessor(targetSampleRate int, targetRMS, loudPeak float64, analyzer *Analyzer) *Preprocessor {
	return &Preprocessor{
		targetRate: float64(targetSampleRate),
		targetRMS:  targetRMS,
		loudPeak:   loudPeak,
		analyzer:   analyzer,
	}
}

func (p *Preprocessor) Prepare(clip Clip) Prepared {
	var ops []string

	mono := clip.Mono()
	if clip.Channels > 1 {
		ops = append(ops, OpDownmixMono)
	}
	rate := clip.SampleRate

	before := p.analyzer.Analyze(mono, rate)

	if float64(rate) != p.targetRate && rate > 0 {
		mono = resampleLinear(mono, rate, int(p.targetRate))
		rate = int(p.targetRate)
		ops = append(ops, OpResample)
	}

	if before.TooQuiet || before.TooLoud {
		if scaled, ok := p.normalizeGain(mono, before); ok {
			mono = scaled
			ops = append(ops, OpNormalizeGain)
		}
	}

	after := p.analyzer.Analyze(mono, rate)

	return Prepared{
		Clip:              Clip{Samples: mono, SampleRate: rate, Channels: 1},
		OperationsApplied: ops,
		QualityBefore:     before,
		QualityAfter:      after,
	}
}

// normalizeGain scales the buffer toward the target RMS. The scale is capped
// so the resulting peak stays under the loudness threshold, which means a
// pathologically peaky quiet signal may stay quiet rather than clip.
func (p *Preprocessor) normalizeGain(samples []float64, m Metrics) ([]float64, bool) {
	if m.AverageLevel == 0 {
		return nil, false
	}
	scale := p.targetRMS / m.AverageLevel
	if m.PeakLevel > 0 {
		if maxScale := (p.loudPeak * 0.98) / m.PeakLevel; scale > maxScale {
			scale = maxScale
		}
	}
	if scale == 1 {
		return nil, false
	}
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = s * scale
	}
	return out, true
}

// resampleLinear converts a mono buffer between sample rates with linear
// interpolation. Good enough for speech-band content headed to a recognizer.
func resampleLinear(samples []float64, fromRate, toRate int) []float64 {
	if fromRate == toRate || len(samples) == 0 {
		out := make([]float64, len(samples))
		copy(out, samples)
		return out
	}
	ratio := float64(fromRate) / float64(toRate)
	outLen := int(float64(len(samples)) / ratio)
	if outLen == 0 {
		outLen = 1
	}
	out := make([]float64, outLen)
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := pos - float64(idx)
		out[i] = samples[idx]*(1-frac) + samples[idx+1]*frac
	}
	return out
}
