package utils

import (
	"image"
	"image/color"
	"math"

	"github.com/deegree/ows/geometry"
	"golang.org/x/image/vector"
)

// FeatureStyle is how GetMap draws the features of a layer. Colours
// are alpha premultiplied like palette colours. A nil colour skips
// that part of the drawing.
type FeatureStyle struct {
	Fill        *color.RGBA `json:"fill"`
	Stroke      *color.RGBA `json:"stroke"`
	StrokeWidth float64     `json:"stroke_width"`
	PointSize   float64     `json:"point_size"`
}

func DefaultFeatureStyle() *FeatureStyle {
	return &FeatureStyle{
		Fill:        &color.RGBA{R: 16, G: 48, B: 96, A: 96},
		Stroke:      &color.RGBA{R: 0, G: 51, B: 153, A: 255},
		StrokeWidth: 1,
		PointSize:   5,
	}
}

type pathPoint struct{ x, y float64 }

// featurePainter collects the paths of a set of geometries in pixel
// space. Fills and strokes are accumulated separately so that strokes
// always cover fills. Every outer path is wound the same way: holes
// are wound the other way and cancel their shell.
type featurePainter struct {
	env           geometry.Envelope
	width, height int
	sx, sy        float64
	project       func([][2]float64) [][2]float64
	fill, stroke  *vector.Rasterizer
	halfWidth     float64
	halfPoint     float64
}

// RenderFeatures draws geoms on a transparent width x height image
// covering env. project maps the coordinates of geoms to the CRS of
// env; nil means they already are.
func RenderFeatures(geoms []geometry.Geometry, env geometry.Envelope, width, height int, style *FeatureStyle, project func([][2]float64) [][2]float64) *image.RGBA {
	if style == nil {
		style = DefaultFeatureStyle()
	}
	p := &featurePainter{
		env:       env,
		width:     width,
		height:    height,
		project:   project,
		sx:        float64(width) / env.Width(),
		sy:        float64(height) / env.Height(),
		fill:      vector.NewRasterizer(width, height),
		stroke:    vector.NewRasterizer(width, height),
		halfWidth: math.Max(style.StrokeWidth, 1) / 2,
		halfPoint: math.Max(style.PointSize, 1) / 2,
	}
	for _, g := range geoms {
		p.add(g, style.Fill != nil)
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	if style.Fill != nil {
		p.fill.Draw(img, img.Bounds(), image.NewUniform(*style.Fill), image.Point{})
	}
	if style.Stroke != nil {
		p.stroke.Draw(img, img.Bounds(), image.NewUniform(*style.Stroke), image.Point{})
	}
	return img
}

func (p *featurePainter) add(g geometry.Geometry, filled bool) {
	switch g := g.(type) {
	case *geometry.Point:
		p.point(g.X(), g.Y())
	case *geometry.MultiPoint:
		for i := 0; i < g.Len(); i++ {
			p.point(g.Point(i).X(), g.Point(i).Y())
		}
	case *geometry.Curve:
		p.line(g.Coords())
	case *geometry.MultiCurve:
		for i := 0; i < g.Len(); i++ {
			p.line(g.Curve(i).Coords())
		}
	case *geometry.Surface:
		p.surface(g, filled)
	case *geometry.MultiSurface:
		for i := 0; i < g.Len(); i++ {
			p.surface(g.Surface(i), filled)
		}
	}
}

func (p *featurePainter) toPixel(c [2]float64) pathPoint {
	return pathPoint{(c[0] - p.env.MinX) * p.sx, (p.env.MaxY - c[1]) * p.sy}
}

func (p *featurePainter) pixels(coords [][2]float64) []pathPoint {
	if p.project != nil {
		coords = p.project(coords)
	}
	pts := make([]pathPoint, 0, len(coords))
	for _, c := range coords {
		pts = append(pts, p.toPixel(c))
	}
	return pts
}

func (p *featurePainter) surface(s *geometry.Surface, filled bool) {
	shell := p.pixels(s.Exterior())
	if filled {
		p.path(p.fill, wound(shell, -1))
		for _, hole := range s.Interiors() {
			p.path(p.fill, wound(p.pixels(hole), 1))
		}
	}
	p.line(s.Exterior())
	for _, hole := range s.Interiors() {
		p.line(hole)
	}
}

// line strokes each segment of coords as a quad of the stroke width,
// with a square on every vertex to close the joins.
func (p *featurePainter) line(coords [][2]float64) {
	pts := p.pixels(coords)
	hw := p.halfWidth
	for i, a := range pts {
		p.square(a, hw)
		if i == len(pts)-1 {
			break
		}
		b := pts[i+1]
		dx, dy := b.x-a.x, b.y-a.y
		l := math.Hypot(dx, dy)
		if l == 0 {
			continue
		}
		nx, ny := -dy/l*hw, dx/l*hw
		p.path(p.stroke, []pathPoint{
			{a.x + nx, a.y + ny}, {b.x + nx, b.y + ny},
			{b.x - nx, b.y - ny}, {a.x - nx, a.y - ny},
		})
	}
}

func (p *featurePainter) point(x, y float64) {
	for _, c := range p.pixels([][2]float64{{x, y}}) {
		p.square(c, p.halfPoint)
	}
}

func (p *featurePainter) square(c pathPoint, h float64) {
	p.path(p.stroke, []pathPoint{
		{c.x - h, c.y + h}, {c.x + h, c.y + h},
		{c.x + h, c.y - h}, {c.x - h, c.y - h},
	})
}

// path adds the closed path pts to z after clipping it to a pixel
// margin around the image.
func (p *featurePainter) path(z *vector.Rasterizer, pts []pathPoint) {
	pts = clipPath(pts, -1, -1, float64(p.width+1), float64(p.height+1))
	if len(pts) < 3 {
		return
	}
	z.MoveTo(float32(pts[0].x), float32(pts[0].y))
	for _, pt := range pts[1:] {
		z.LineTo(float32(pt.x), float32(pt.y))
	}
	z.ClosePath()
}

func signedArea(pts []pathPoint) float64 {
	a := 0.0
	for i, cur := range pts {
		next := pts[(i+1)%len(pts)]
		a += cur.x*next.y - next.x*cur.y
	}
	return a / 2
}

// wound returns pts ordered so that its signed area has the sign of
// dir.
func wound(pts []pathPoint, dir float64) []pathPoint {
	if n := len(pts); n > 1 && pts[0] == pts[n-1] {
		pts = pts[:n-1]
	}
	if signedArea(pts)*dir >= 0 {
		return pts
	}
	rev := make([]pathPoint, len(pts))
	for i, pt := range pts {
		rev[len(pts)-1-i] = pt
	}
	return rev
}

// clipPath clips a closed path to a rectangle, one edge at a time
// (Sutherland-Hodgman).
func clipPath(pts []pathPoint, minX, minY, maxX, maxY float64) []pathPoint {
	atX := func(x float64) func(a, b pathPoint) pathPoint {
		return func(a, b pathPoint) pathPoint {
			t := (x - a.x) / (b.x - a.x)
			return pathPoint{x, a.y + t*(b.y-a.y)}
		}
	}
	atY := func(y float64) func(a, b pathPoint) pathPoint {
		return func(a, b pathPoint) pathPoint {
			t := (y - a.y) / (b.y - a.y)
			return pathPoint{a.x + t*(b.x-a.x), y}
		}
	}
	pts = clipEdge(pts, func(q pathPoint) bool { return q.x >= minX }, atX(minX))
	pts = clipEdge(pts, func(q pathPoint) bool { return q.x <= maxX }, atX(maxX))
	pts = clipEdge(pts, func(q pathPoint) bool { return q.y >= minY }, atY(minY))
	return clipEdge(pts, func(q pathPoint) bool { return q.y <= maxY }, atY(maxY))
}

func clipEdge(pts []pathPoint, keep func(pathPoint) bool, cut func(a, b pathPoint) pathPoint) []pathPoint {
	var out []pathPoint
	for i, cur := range pts {
		prev := pts[(i+len(pts)-1)%len(pts)]
		switch {
		case keep(cur):
			if !keep(prev) {
				out = append(out, cut(prev, cur))
			}
			out = append(out, cur)
		case keep(prev):
			out = append(out, cut(prev, cur))
		}
	}
	return out
}
