// Package similarity compares two signature or document images with three
// independent metrics and combines them into a single confidence.
package similarity

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"

	"github.com/corona10/goimagehash"
	_ "golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"certverify/internal/matching"
	dErrors "certverify/pkg/domain-errors"
)

const (
	// Side is the edge length both images are resampled to.
	Side       = 128
	ssimWindow = 8
	histBins   = 64
	hashBits   = 64

	// MaxPixels bounds the decoded size of any image the engine accepts.
	MaxPixels = 40_000_000
)

// ErrImageTooLarge is returned for images whose declared dimensions exceed
// MaxPixels.
var ErrImageTooLarge = errors.New("image dimensions exceed the pixel limit")

// SSIM stabilisers for 8-bit dynamic range.
var (
	ssimC1 = math.Pow(0.01*255, 2)
	ssimC2 = math.Pow(0.03*255, 2)
)

type Metrics struct {
	PerceptualHash float64 `json:"perceptualHash"`
	Structural     float64 `json:"structural"`
	Histogram      float64 `json:"histogram"`
}

type SignatureMatchResult struct {
	Metrics         Metrics         `json:"metrics"`
	MatchStatus     matching.Status `json:"matchStatus"`
	MatchConfidence float64         `json:"matchConfidence"`
}

// Engine is stateless apart from its status bands and safe for concurrent use.
type Engine struct {
	policy matching.Policy
}

func New(policy matching.Policy) *Engine {
	return &Engine{policy: policy}
}

// Compare decodes both images and scores them. The confidence is the
// unweighted mean of the three metrics.
func (e *Engine) Compare(img1, img2 []byte) (*SignatureMatchResult, error) {
	a, err := prepare(img1)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeExternalService, "failed to decode first image")
	}
	b, err := prepare(img2)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeExternalService, "failed to decode second image")
	}

	phash, err := perceptualHashSimilarity(a, b)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeExternalService, "failed to hash images")
	}
	m := Metrics{
		PerceptualHash: phash,
		Structural:     structuralSimilarity(a, b),
		Histogram:      histogramIntersection(a, b),
	}
	confidence := (m.PerceptualHash + m.Structural + m.Histogram) / 3
	return &SignatureMatchResult{
		Metrics:         m,
		MatchStatus:     e.policy.Classify(confidence),
		MatchConfidence: confidence,
	}, nil
}

// CheckDimensions reads only the image header and rejects images larger
// than MaxPixels before anything is decoded.
func CheckDimensions(data []byte) error {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return err
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return fmt.Errorf("image has invalid dimensions %dx%d", cfg.Width, cfg.Height)
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return fmt.Errorf("%w: %dx%d", ErrImageTooLarge, cfg.Width, cfg.Height)
	}
	return nil
}

// prepare decodes, converts to grayscale and resamples to Side x Side.
func prepare(data []byte) (*image.Gray, error) {
	if err := CheckDimensions(data); err != nil {
		return nil, err
	}
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	bounds := src.Bounds()
	gray := image.NewGray(bounds)
	draw.Draw(gray, bounds, src, bounds.Min, draw.Src)

	out := image.NewGray(image.Rect(0, 0, Side, Side))
	xdraw.CatmullRom.Scale(out, out.Bounds(), gray, bounds, xdraw.Src, nil)
	return out, nil
}

func perceptualHashSimilarity(a, b *image.Gray) (float64, error) {
	ha, err := goimagehash.PerceptionHash(a)
	if err != nil {
		return 0, err
	}
	hb, err := goimagehash.PerceptionHash(b)
	if err != nil {
		return 0, err
	}
	dist, err := ha.Distance(hb)
	if err != nil {
		return 0, err
	}
	return 1 - float64(dist)/hashBits, nil
}

// structuralSimilarity averages SSIM over non-overlapping windows and clamps
// the mean to [0,1].
func structuralSimilarity(a, b *image.Gray) float64 {
	var total float64
	windows := 0
	for y := 0; y+ssimWindow <= Side; y += ssimWindow {
		for x := 0; x+ssimWindow <= Side; x += ssimWindow {
			total += windowSSIM(a, b, x, y)
			windows++
		}
	}
	if windows == 0 {
		return 0
	}
	return clamp01(total / float64(windows))
}

func windowSSIM(a, b *image.Gray, x0, y0 int) float64 {
	const n = ssimWindow * ssimWindow
	var sumA, sumB float64
	for y := y0; y < y0+ssimWindow; y++ {
		for x := x0; x < x0+ssimWindow; x++ {
			sumA += float64(a.GrayAt(x, y).Y)
			sumB += float64(b.GrayAt(x, y).Y)
		}
	}
	meanA, meanB := sumA/n, sumB/n

	var varA, varB, cov float64
	for y := y0; y < y0+ssimWindow; y++ {
		for x := x0; x < x0+ssimWindow; x++ {
			da := float64(a.GrayAt(x, y).Y) - meanA
			db := float64(b.GrayAt(x, y).Y) - meanB
			varA += da * da
			varB += db * db
			cov += da * db
		}
	}
	varA /= n - 1
	varB /= n - 1
	cov /= n - 1

	num := (2*meanA*meanB + ssimC1) * (2*cov + ssimC2)
	den := (meanA*meanA + meanB*meanB + ssimC1) * (varA + varB + ssimC2)
	return num / den
}

func histogramIntersection(a, b *image.Gray) float64 {
	ha, hb := histogram(a), histogram(b)
	var inter float64
	for i := range ha {
		inter += math.Min(ha[i], hb[i])
	}
	return clamp01(inter)
}

func histogram(img *image.Gray) [histBins]float64 {
	var h [histBins]float64
	for _, p := range img.Pix {
		h[int(p)*histBins/256]++
	}
	total := float64(len(img.Pix))
	for i := range h {
		h[i] /= total
	}
	return h
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
