package scanning

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif" // Register GIF decoder
	"image/jpeg"
	_ "image/png" // Register PNG decoder
	"log/slog"
	"math"
	"net/http"
	"strings"

	"github.com/gen2brain/heic"
	_ "golang.org/x/image/bmp"  // Register BMP decoder
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff" // Register TIFF decoder
	_ "golang.org/x/image/webp" // Register WebP decoder
)

// Preprocessing constants tuned for handwriting OCR
const (
	contrastFactor  = 1.5
	sharpnessFactor = 1.3
	minLongestSide  = 512
	jpegQuality     = 95
)

// lanczos3 is a Lanczos resampling kernel with a support of 3 lobes
var lanczos3 = &draw.Kernel{
	Support: 3,
	At: func(t float64) float64 {
		t = math.Abs(t)
		if t < 1e-9 {
			return 1
		}
		if t >= 3 {
			return 0
		}
		return sinc(t) * sinc(t/3)
	},
}

func sinc(x float64) float64 {
	x *= math.Pi
	return math.Sin(x) / x
}

// Encoder turns raw upload bytes into the image sent to a provider
type Encoder struct {
	enabled    bool
	preprocess func(data []byte) ([]byte, error)
}

// NewEncoder creates an Encoder; when preprocessing is disabled the original bytes are always used
func NewEncoder(preprocessing bool) *Encoder {
	return &Encoder{
		enabled:    preprocessing,
		preprocess: PreprocessBytes,
	}
}

// Enabled reports whether preprocessing is applied
func (e *Encoder) Enabled() bool {
	return e.enabled
}

// Encode preprocesses the image when enabled. Any failure falls back to the original bytes.
func (e *Encoder) Encode(data []byte) Image {
	if e.enabled {
		processed, err := e.safePreprocess(data)
		if err == nil {
			return Image{Data: processed, MIMEType: "image/jpeg"}
		}
		slog.Warn("Image preprocessing failed, using original", "error", err)
	}

	return Image{Data: data, MIMEType: detectMIMEType(data)}
}

// EncodeImage returns the base64 payload for the image
func (e *Encoder) EncodeImage(data []byte) string {
	return e.Encode(data).Base64()
}

func (e *Encoder) safePreprocess(data []byte) (out []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("preprocessing panicked: %v", r)
		}
	}()
	return e.preprocess(data)
}

// PreprocessBytes decodes an image, enhances it for OCR and re-encodes it as JPEG
func PreprocessBytes(data []byte) ([]byte, error) {
	img, err := decodeImage(data)
	if err != nil {
		return nil, err
	}

	out := Preprocess(img)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encoding JPEG: %w", err)
	}
	return buf.Bytes(), nil
}

// Preprocess converts to RGB, boosts contrast and sharpness, removes speckle
// noise and upscales small images so the longest side is at least 512px
func Preprocess(img image.Image) *image.RGBA {
	rgb := toRGB(img)
	rgb = enhanceContrast(rgb, contrastFactor)
	rgb = enhanceSharpness(rgb, sharpnessFactor)
	rgb = medianFilter(rgb)
	return upscale(rgb, minLongestSide)
}

// decodeImage decodes HEIC/HEIF as well as any registered standard format
func decodeImage(data []byte) (image.Image, error) {
	if isHEICFormat(data) {
		img, err := heic.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
		return img, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		if strings.Contains(err.Error(), "unknown format") {
			return nil, fmt.Errorf("unsupported image format. Supported formats: JPEG, PNG, GIF, WebP, BMP, TIFF, HEIC. Error: %w", err)
		}
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return img, nil
}

// isHEICFormat checks for an ftyp box with a HEIC-related brand
func isHEICFormat(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heix", "heif", "mif1", "msf1":
		return true
	}
	return false
}

func detectMIMEType(data []byte) string {
	if isHEICFormat(data) {
		return "image/heic"
	}
	mimeType := http.DetectContentType(data)
	if strings.HasPrefix(mimeType, "image/") {
		return mimeType
	}
	return "image/jpeg"
}

// toRGB draws the image onto an opaque white canvas, so transparent areas
// read as paper rather than their stored color
func toRGB(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)
	return dst
}

// enhanceContrast blends every pixel away from the mean luminance
func enhanceContrast(img *image.RGBA, factor float64) *image.RGBA {
	var sum float64
	n := 0
	for i := 0; i+3 < len(img.Pix); i += 4 {
		r, g, b := float64(img.Pix[i]), float64(img.Pix[i+1]), float64(img.Pix[i+2])
		sum += (299*r + 587*g + 114*b) / 1000
		n++
	}
	if n == 0 {
		return img
	}
	mean := math.Floor(sum/float64(n) + 0.5)

	out := image.NewRGBA(img.Rect)
	for i := 0; i+3 < len(img.Pix); i += 4 {
		for c := 0; c < 3; c++ {
			out.Pix[i+c] = blend(mean, float64(img.Pix[i+c]), factor)
		}
		out.Pix[i+3] = 0xff
	}
	return out
}

// enhanceSharpness blends the image away from a smoothed copy of itself.
// Border pixels are left untouched.
func enhanceSharpness(img *image.RGBA, factor float64) *image.RGBA {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	out := image.NewRGBA(img.Rect)
	copy(out.Pix, img.Pix)
	if w < 3 || h < 3 {
		return out
	}

	// 3x3 smoothing kernel, center weight 5, normalized by 13
	pix, stride := img.Pix, img.Stride
	for y := 1; y < h-1; y++ {
		up, row, down := (y-1)*stride, y*stride, (y+1)*stride
		for x := 1; x < w-1; x++ {
			l, m, r := (x-1)*4, x*4, (x+1)*4
			for c := 0; c < 3; c++ {
				center := int(pix[row+m+c])
				sum := int(pix[up+l+c]) + int(pix[up+m+c]) + int(pix[up+r+c]) +
					int(pix[row+l+c]) + 5*center + int(pix[row+r+c]) +
					int(pix[down+l+c]) + int(pix[down+m+c]) + int(pix[down+r+c])
				smooth := float64((sum + 6) / 13)
				out.Pix[row+m+c] = blend(smooth, float64(center), factor)
			}
		}
	}
	return out
}

// medianFilter replaces every channel value with the median of its 3x3
// neighborhood. Edges are extended by repeating the border pixels.
func medianFilter(img *image.RGBA) *image.RGBA {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	out := image.NewRGBA(img.Rect)
	pix, stride := img.Pix, img.Stride

	var window [9]uint8
	for y := 0; y < h; y++ {
		up, row, down := clamp(y-1, h)*stride, y*stride, clamp(y+1, h)*stride
		for x := 0; x < w; x++ {
			l, m, r := clamp(x-1, w)*4, x*4, clamp(x+1, w)*4
			for c := 0; c < 3; c++ {
				window = [9]uint8{
					pix[up+l+c], pix[up+m+c], pix[up+r+c],
					pix[row+l+c], pix[row+m+c], pix[row+r+c],
					pix[down+l+c], pix[down+m+c], pix[down+r+c],
				}
				out.Pix[row+m+c] = median9(&window)
			}
			out.Pix[row+m+3] = 0xff
		}
	}
	return out
}

// median9 returns the median of p using a 19 comparison sorting network.
// p is reordered.
func median9(p *[9]uint8) uint8 {
	sort2(&p[1], &p[2])
	sort2(&p[4], &p[5])
	sort2(&p[7], &p[8])
	sort2(&p[0], &p[1])
	sort2(&p[3], &p[4])
	sort2(&p[6], &p[7])
	sort2(&p[1], &p[2])
	sort2(&p[4], &p[5])
	sort2(&p[7], &p[8])
	sort2(&p[0], &p[3])
	sort2(&p[5], &p[8])
	sort2(&p[4], &p[7])
	sort2(&p[3], &p[6])
	sort2(&p[1], &p[4])
	sort2(&p[2], &p[5])
	sort2(&p[4], &p[7])
	sort2(&p[4], &p[2])
	sort2(&p[6], &p[4])
	sort2(&p[4], &p[2])
	return p[4]
}

func sort2(a, b *uint8) {
	if *a > *b {
		*a, *b = *b, *a
	}
}

// upscale enlarges the image isotropically when its longest side is below minSide
func upscale(img *image.RGBA, minSide int) *image.RGBA {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	longest := max(w, h)
	if longest == 0 || longest >= minSide {
		return img
	}

	nw, nh := max(w*minSide/longest, 1), max(h*minSide/longest, 1)

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	lanczos3.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

func blend(base, value, factor float64) uint8 {
	v := base + factor*(value-base)
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v + 0.5)
}

func clamp(v, n int) int {
	if v < 0 {
		return 0
	}
	if v >= n {
		return n - 1
	}
	return v
}
