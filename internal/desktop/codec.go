package desktop

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"time"

	"golang.org/x/image/draw"
)

// Codec defaults.
const (
	DefaultScreenshotDelay = 1500 * time.Millisecond
	DefaultMaxImageBytes   = 5 * 1024 * 1024
)

// Cascade candidates, in the order they are tried.
const (
	CandidateFull     = "full"
	CandidateHalf     = "half"
	CandidateGray     = "gray"
	CandidateHalfGray = "half_gray"
)

// Frame captures the current screen at physical resolution.
type Frame interface {
	Capture(ctx context.Context) (image.Image, error)
}

// Screenshot is an encoded capture ready for transport.
type Screenshot struct {
	Data      []byte
	Width     int
	Height    int
	Candidate string
	// OverBudget is set when no candidate fit MaxBytes and the most
	// aggressive one was returned anyway.
	OverBudget bool
}

// CodecConfig configures capture timing and the size budget.
type CodecConfig struct {
	Delay    time.Duration
	MaxBytes int
}

// Codec captures frames, downsamples them to the logical resolution and
// picks the first encoding that fits the byte budget.
type Codec struct {
	source   Frame
	geometry Geometry
	config   CodecConfig
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewCodec creates a codec for frames from source.
func NewCodec(source Frame, geometry Geometry, cfg CodecConfig) *Codec {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxImageBytes
	}
	if cfg.Delay < 0 {
		cfg.Delay = 0
	}
	return &Codec{
		source:   source,
		geometry: geometry,
		config:   cfg,
		sleep:    sleepContext,
	}
}

// Capture waits for the settle delay, grabs a frame and encodes it.
func (c *Codec) Capture(ctx context.Context) (*Screenshot, error) {
	if err := c.sleep(ctx, c.config.Delay); err != nil {
		return nil, err
	}
	frame, err := c.source.Capture(ctx)
	if err != nil {
		return nil, fmt.Errorf("capture screen: %w", err)
	}
	return c.Encode(frame)
}

// Encode resizes frame to the logical resolution and runs the cascade.
func (c *Codec) Encode(frame image.Image) (*Screenshot, error) {
	resized := Resize(frame, c.geometry.LogicalWidth, c.geometry.LogicalHeight)
	return EncodeCascade(resized, c.config.MaxBytes)
}

// Resize scales img to width x height. It returns img unchanged when the
// size already matches or the target is not positive.
func Resize(img image.Image, width, height int) image.Image {
	b := img.Bounds()
	if width <= 0 || height <= 0 || (b.Dx() == width && b.Dy() == height) {
		return img
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}

type candidate struct {
	name   string
	render func(image.Image) image.Image
}

var cascade = []candidate{
	{name: CandidateFull, render: func(img image.Image) image.Image { return img }},
	{name: CandidateHalf, render: halve},
	{name: CandidateGray, render: grayscale},
	{name: CandidateHalfGray, render: func(img image.Image) image.Image { return grayscale(halve(img)) }},
}

// EncodeCascade encodes img as PNG with each cascade candidate in turn and
// returns the first whose size is within maxBytes. When none fits, the last
// candidate is returned with OverBudget set.
func EncodeCascade(img image.Image, maxBytes int) (*Screenshot, error) {
	var last *Screenshot
	for _, cand := range cascade {
		shot, err := encodeCandidate(img, cand)
		if err != nil {
			return nil, err
		}
		if len(shot.Data) <= maxBytes {
			return shot, nil
		}
		last = shot
	}
	last.OverBudget = true
	return last, nil
}

// CandidateSizes reports the encoded size of every cascade candidate for img.
func CandidateSizes(img image.Image) (map[string]int, []string, error) {
	sizes := make(map[string]int, len(cascade))
	order := make([]string, 0, len(cascade))
	for _, cand := range cascade {
		shot, err := encodeCandidate(img, cand)
		if err != nil {
			return nil, nil, err
		}
		sizes[cand.name] = len(shot.Data)
		order = append(order, cand.name)
	}
	return sizes, order, nil
}

var pngEncoder = png.Encoder{CompressionLevel: png.BestCompression}

func encodeCandidate(img image.Image, cand candidate) (*Screenshot, error) {
	rendered := cand.render(img)
	var buf bytes.Buffer
	if err := pngEncoder.Encode(&buf, rendered); err != nil {
		return nil, fmt.Errorf("encode %s screenshot: %w", cand.name, err)
	}
	b := rendered.Bounds()
	return &Screenshot{
		Data:      buf.Bytes(),
		Width:     b.Dx(),
		Height:    b.Dy(),
		Candidate: cand.name,
	}, nil
}

func halve(img image.Image) image.Image {
	b := img.Bounds()
	return Resize(img, max(1, b.Dx()/2), max(1, b.Dy()/2))
}

func grayscale(img image.Image) image.Image {
	b := img.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
