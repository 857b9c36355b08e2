package imaging

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
)

// Frame is a single-channel luminance raster in [0,1], row-major.
type Frame struct {
	Pixels []float64
	Width  int
	Height int
}

// Decode converts an encoded image payload (PNG, JPEG, GIF) into a luminance
// frame using Rec. 601 weights.
func Decode(data []byte) (Frame, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Frame{}, fmt.Errorf("decode image: %w", err)
	}
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	pixels := make([]float64, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			lum := 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)
			pixels[y*width+x] = lum / 65535
		}
	}
	return Frame{Pixels: pixels, Width: width, Height: height}, nil
}

// EncodePNG renders a luminance frame back to an 8-bit grayscale PNG, for
// handing frames to external extraction commands.
func EncodePNG(frame Frame) ([]byte, error) {
	img := image.NewGray(image.Rect(0, 0, frame.Width, frame.Height))
	for i, p := range frame.Pixels {
		img.Pix[i] = uint8(clamp(p, 0, 1) * 255)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
