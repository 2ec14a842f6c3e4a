package desktop

import (
	"image"
	"math"

	"gonum.org/v1/gonum/stat"
)

// Snapper defaults.
const (
	DefaultIconMinSize   = 16
	DefaultIconMaxSize   = 64
	DefaultSnapTolerance = 5.0
)

// Snapper looks for a small bounded shape (an icon or button) near an
// approximate click point and returns its center.
type Snapper struct {
	MinSize   int
	MaxSize   int
	Tolerance float64
	// EdgeSigma is how many standard deviations above the mean gradient a
	// pixel must be to count as an edge.
	EdgeSigma float64
	// MinEdge is an absolute floor on the edge threshold so flat noise is
	// never treated as structure.
	MinEdge float64
}

// NewSnapper returns a Snapper for icons between minSize and maxSize pixels.
// Non-positive sizes fall back to the defaults.
func NewSnapper(minSize, maxSize int) *Snapper {
	if minSize <= 0 {
		minSize = DefaultIconMinSize
	}
	if maxSize <= 0 {
		maxSize = DefaultIconMaxSize
	}
	if maxSize < minSize {
		maxSize = minSize
	}
	return &Snapper{
		MinSize:   minSize,
		MaxSize:   maxSize,
		Tolerance: DefaultSnapTolerance,
		EdgeSigma: 1.0,
		MinEdge:   32,
	}
}

type box struct {
	minX, minY, maxX, maxY int
}

func (b box) width() int  { return b.maxX - b.minX + 1 }
func (b box) height() int { return b.maxY - b.minY + 1 }

// FindCenter searches a square region of side 2*MaxSize around target in
// frame. It returns the center of the qualifying shape closest to target,
// or false when nothing lies within Tolerance. It never fails: absence of a
// match is a normal outcome and callers should click the raw target.
func (s *Snapper) FindCenter(frame image.Image, target image.Point) (image.Point, bool) {
	if s == nil || frame == nil {
		return image.Point{}, false
	}
	half := s.MaxSize
	roi := image.Rect(target.X-half, target.Y-half, target.X+half, target.Y+half).Intersect(frame.Bounds())
	if roi.Dx() < 3 || roi.Dy() < 3 {
		return image.Point{}, false
	}

	gray := luminance(frame, roi)
	w, h := roi.Dx(), roi.Dy()
	mags := sobel(gray, w, h)

	mean, std := stat.MeanStdDev(mags, nil)
	if std == 0 || math.IsNaN(std) {
		return image.Point{}, false
	}
	threshold := math.Max(mean+s.EdgeSigma*std, s.MinEdge)

	edges := make([]bool, len(mags))
	for i, m := range mags {
		edges[i] = m >= threshold
	}

	best := image.Point{}
	bestDist := math.Inf(1)
	for _, b := range components(edges, w, h) {
		bw, bh := b.width(), b.height()
		if bw < s.MinSize || bw > s.MaxSize || bh < s.MinSize || bh > s.MaxSize {
			continue
		}
		cx := float64(roi.Min.X+b.minX) + float64(bw)/2
		cy := float64(roi.Min.Y+b.minY) + float64(bh)/2
		dist := math.Hypot(cx-float64(target.X), cy-float64(target.Y))
		if dist < s.Tolerance && dist < bestDist {
			bestDist = dist
			best = image.Pt(int(cx), int(cy))
		}
	}
	if math.IsInf(bestDist, 1) {
		return image.Point{}, false
	}
	return best, true
}

// luminance converts the roi of img to a row-major grayscale buffer.
func luminance(img image.Image, roi image.Rectangle) []float64 {
	w, h := roi.Dx(), roi.Dy()
	out := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, _ := img.At(roi.Min.X+x, roi.Min.Y+y).RGBA()
			out[y*w+x] = (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)) / 257
		}
	}
	return out
}

// sobel returns the gradient magnitude for each pixel. Border pixels are 0.
func sobel(gray []float64, w, h int) []float64 {
	mags := make([]float64, w*h)
	at := func(x, y int) float64 { return gray[y*w+x] }
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			gx := at(x+1, y-1) + 2*at(x+1, y) + at(x+1, y+1) -
				at(x-1, y-1) - 2*at(x-1, y) - at(x-1, y+1)
			gy := at(x-1, y+1) + 2*at(x, y+1) + at(x+1, y+1) -
				at(x-1, y-1) - 2*at(x, y-1) - at(x+1, y-1)
			mags[y*w+x] = math.Hypot(gx, gy)
		}
	}
	return mags
}

// components labels 8-connected edge pixels and returns their bounding boxes.
func components(edges []bool, w, h int) []box {
	seen := make([]bool, len(edges))
	var boxes []box
	stack := make([]int, 0, 64)
	for start, on := range edges {
		if !on || seen[start] {
			continue
		}
		b := box{minX: w, minY: h, maxX: -1, maxY: -1}
		seen[start] = true
		stack = append(stack[:0], start)
		for len(stack) > 0 {
			idx := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			x, y := idx%w, idx/w
			b.minX = min(b.minX, x)
			b.minY = min(b.minY, y)
			b.maxX = max(b.maxX, x)
			b.maxY = max(b.maxY, y)
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := x+dx, y+dy
					if nx < 0 || ny < 0 || nx >= w || ny >= h {
						continue
					}
					n := ny*w + nx
					if edges[n] && !seen[n] {
						seen[n] = true
						stack = append(stack, n)
					}
				}
			}
		}
		boxes = append(boxes, b)
	}
	return boxes
}
