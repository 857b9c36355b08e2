package imaging

import (
	"math"

	"github.com/modallabs/modal-core/internal/config"
)

// Metrics summarizes how usable a captured frame is for text extraction.
type Metrics struct {
	Brightness   float64
	Contrast     float64
	Sharpness    float64
	IsBlurry     bool
	IsTooDark    bool
	IsTooBright  bool
	QualityScore float64
}

// Analyzer computes frame quality from luminance pixels in [0,1].
type Analyzer struct {
	cfg config.ImageConfig
}

func NewAnalyzer(cfg config.ImageConfig) *Analyzer {
	return &Analyzer{cfg: cfg}
}

// Analyze computes brightness (mean luminance), contrast (normalized standard
// deviation) and sharpness (mean absolute neighbor difference, an edge-energy
// proxy rather than a real frequency-domain measure).
func (a *Analyzer) Analyze(pixels []float64, width, height int) Metrics {
	m := Metrics{}
	if width <= 0 || height <= 0 || len(pixels) < width*height {
		m.IsTooDark = true
		return m
	}
	n := width * height

	var sum float64
	for _, p := range pixels[:n] {
		sum += p
	}
	m.Brightness = sum / float64(n)

	var variance float64
	for _, p := range pixels[:n] {
		d := p - m.Brightness
		variance += d * d
	}
	// A stddev of 0.5 (half the pixels black, half white) is maximal spread.
	m.Contrast = clamp(math.Sqrt(variance/float64(n))*2, 0, 1)

	m.Sharpness = clamp(edgeEnergy(pixels, width, height)*8, 0, 1)

	m.IsTooDark = m.Brightness < a.cfg.DarkBrightness
	m.IsTooBright = m.Brightness > a.cfg.BrightBrightness
	m.IsBlurry = m.Sharpness < a.cfg.BlurSharpness

	m.QualityScore = a.score(m)
	return m
}

// edgeEnergy is the mean absolute difference between horizontally and
// vertically adjacent pixels.
func edgeEnergy(pixels []float64, width, height int) float64 {
	var sum float64
	var count int
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			idx := y*width + x
			if x+1 < width {
				sum += math.Abs(pixels[idx] - pixels[idx+1])
				count++
			}
			if y+1 < height {
				sum += math.Abs(pixels[idx] - pixels[idx+width])
				count++
			}
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

// score weights brightness heaviest: a frame blown out in either direction is
// unrecoverable for extraction in a way a soft frame is not.
func (a *Analyzer) score(m Metrics) float64 {
	brightScore := 1 - math.Abs(m.Brightness-0.5)*2
	return clamp(0.45*brightScore+0.3*m.Contrast+0.25*m.Sharpness, 0, 1)
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
