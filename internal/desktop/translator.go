package desktop

// Translator maps between the model's logical coordinates and physical
// screen coordinates. Results are truncated toward zero, so a round trip
// may be off by one unit per axis.
type Translator struct {
	geometry Geometry
	scaleX   float64
	scaleY   float64
}

// NewTranslator returns a Translator for g.
func NewTranslator(g Geometry) Translator {
	return Translator{
		geometry: g,
		scaleX:   g.ScaleX(),
		scaleY:   g.ScaleY(),
	}
}

// Geometry returns the geometry the translator was built from.
func (t Translator) Geometry() Geometry {
	return t.geometry
}

// LogicalToScreen converts a logical point to physical screen pixels.
func (t Translator) LogicalToScreen(x, y float64) (int, int) {
	dpi := t.geometry.DPIScale
	sx := int(x * t.scaleX / dpi)
	sy := int(y*t.scaleY/dpi) + t.geometry.TaskbarOffsetY
	return sx, sy
}

// ScreenToLogical converts physical screen pixels to a logical point.
func (t Translator) ScreenToLogical(x, y int) (int, int) {
	dpi := t.geometry.DPIScale
	lx := int(float64(x) * dpi / t.scaleX)
	ly := int(float64(y-t.geometry.TaskbarOffsetY) * dpi / t.scaleY)
	return lx, ly
}
