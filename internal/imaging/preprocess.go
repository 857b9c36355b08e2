package imaging

// Operation names reported by the preprocessor.
const (
	OpBrighten = "brighten"
	OpDarken   = "darken"
	OpSharpen  = "sharpen"
)

// Prepared is the outcome of a frame preprocessing pass.
type Prepared struct {
	Frame             Frame
	OperationsApplied []string
	QualityBefore     Metrics
	QualityAfter      Metrics
}

// Preprocessor conditionally corrects brightness and sharpens a luminance
// frame. Brightness runs before sharpening so the sharpen kernel does not
// amplify noise introduced by the brightness scaling.
type Preprocessor struct {
	targetBrightness float64
	analyzer         *Analyzer
}

func NewPreprocessor(analyzer *Analyzer) *Preprocessor {
	return &Preprocessor{targetBrightness: 0.5, analyzer: analyzer}
}

func (p *Preprocessor) Prepare(frame Frame) Prepared {
	var ops []string

	before := p.analyzer.Analyze(frame.Pixels, frame.Width, frame.Height)
	current := frame

	switch {
	case before.IsTooDark:
		current = scaleBrightness(current, p.targetBrightness/nonZero(before.Brightness))
		ops = append(ops, OpBrighten)
	case before.IsTooBright:
		current = scaleBrightness(current, p.targetBrightness/nonZero(before.Brightness))
		ops = append(ops, OpDarken)
	}

	if before.IsBlurry {
		current = sharpen(current)
		ops = append(ops, OpSharpen)
	}

	after := p.analyzer.Analyze(current.Pixels, current.Width, current.Height)

	return Prepared{
		Frame:             current,
		OperationsApplied: ops,
		QualityBefore:     before,
		QualityAfter:      after,
	}
}

func nonZero(v float64) float64 {
	if v <= 0 {
		return 0.01
	}
	return v
}

func scaleBrightness(frame Frame, factor float64) Frame {
	out := make([]float64, len(frame.Pixels))
	for i, p := range frame.Pixels {
		out[i] = clamp(p*factor, 0, 1)
	}
	return Frame{Pixels: out, Width: frame.Width, Height: frame.Height}
}

// sharpen applies a 3x3 unsharp kernel (center 5, cross -1).
func sharpen(frame Frame) Frame {
	out := make([]float64, len(frame.Pixels))
	w, h := frame.Width, frame.Height
	at := func(x, y int) float64 {
		if x < 0 {
			x = 0
		}
		if x >= w {
			x = w - 1
		}
		if y < 0 {
			y = 0
		}
		if y >= h {
			y = h - 1
		}
		return frame.Pixels[y*w+x]
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := 5*at(x, y) - at(x-1, y) - at(x+1, y) - at(x, y-1) - at(x, y+1)
			out[y*w+x] = clamp(v, 0, 1)
		}
	}
	return Frame{Pixels: out, Width: w, Height: h}
}
