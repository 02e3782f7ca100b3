package geometry

/* geometry wraps the go-geom model behind the small set of
   types the OWS services and the data store exchange: points,
   curves, surfaces and their multi variants. Topological
   operations are delegated to GEOS (see ops.go). */

import (
	"fmt"

	"github.com/twpayne/go-geom"
)

type Type int

const (
	PointType Type = iota + 1
	CurveType
	SurfaceType
	MultiPointType
	MultiCurveType
	MultiSurfaceType
)

var typeNames = map[Type]string{
	PointType:        "Point",
	CurveType:        "Curve",
	SurfaceType:      "Surface",
	MultiPointType:   "MultiPoint",
	MultiCurveType:   "MultiCurve",
	MultiSurfaceType: "MultiSurface",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// Geometry is implemented by every wrapped geometry.
// Geom exposes the underlying go-geom value for encoders.
type Geometry interface {
	Type() Type
	SRID() int
	Bounds() Envelope
	Geom() geom.T
}

type Point struct {
	g *geom.Point
}

func (p *Point) Type() Type       { return PointType }
func (p *Point) SRID() int        { return p.g.SRID() }
func (p *Point) Bounds() Envelope { return envelopeOf(p.g) }
func (p *Point) Geom() geom.T     { return p.g }
func (p *Point) X() float64       { return p.g.X() }
func (p *Point) Y() float64       { return p.g.Y() }

// Curve is a linear curve (line string).
type Curve struct {
	g *geom.LineString
}

func (c *Curve) Type() Type       { return CurveType }
func (c *Curve) SRID() int        { return c.g.SRID() }
func (c *Curve) Bounds() Envelope { return envelopeOf(c.g) }
func (c *Curve) Geom() geom.T     { return c.g }
func (c *Curve) NumPoints() int   { return c.g.NumCoords() }

func (c *Curve) Coords() [][2]float64 {
	return toPairs(c.g.Coords())
}

func (c *Curve) IsClosed() bool {
	n := c.g.NumCoords()
	if n < 2 {
		return false
	}
	first, last := c.g.Coord(0), c.g.Coord(n-1)
	return first.X() == last.X() && first.Y() == last.Y()
}

// Surface is a polygon with one exterior ring and
// any number of interior rings.
type Surface struct {
	g *geom.Polygon
}

func (s *Surface) Type() Type       { return SurfaceType }
func (s *Surface) SRID() int        { return s.g.SRID() }
func (s *Surface) Bounds() Envelope { return envelopeOf(s.g) }
func (s *Surface) Geom() geom.T     { return s.g }

func (s *Surface) Exterior() [][2]float64 {
	if s.g.NumLinearRings() == 0 {
		return nil
	}
	return toPairs(s.g.LinearRing(0).Coords())
}

func (s *Surface) Interiors() [][][2]float64 {
	var holes [][][2]float64
	for i := 1; i < s.g.NumLinearRings(); i++ {
		holes = append(holes, toPairs(s.g.LinearRing(i).Coords()))
	}
	return holes
}

type MultiPoint struct {
	g *geom.MultiPoint
}

func (m *MultiPoint) Type() Type       { return MultiPointType }
func (m *MultiPoint) SRID() int        { return m.g.SRID() }
func (m *MultiPoint) Bounds() Envelope { return envelopeOf(m.g) }
func (m *MultiPoint) Geom() geom.T     { return m.g }
func (m *MultiPoint) Len() int         { return m.g.NumPoints() }

func (m *MultiPoint) Point(i int) *Point {
	return &Point{g: m.g.Point(i).SetSRID(m.g.SRID())}
}

type MultiCurve struct {
	g *geom.MultiLineString
}

func (m *MultiCurve) Type() Type       { return MultiCurveType }
func (m *MultiCurve) SRID() int        { return m.g.SRID() }
func (m *MultiCurve) Bounds() Envelope { return envelopeOf(m.g) }
func (m *MultiCurve) Geom() geom.T     { return m.g }
func (m *MultiCurve) Len() int         { return m.g.NumLineStrings() }

func (m *MultiCurve) Curve(i int) *Curve {
	return &Curve{g: m.g.LineString(i).SetSRID(m.g.SRID())}
}

type MultiSurface struct {
	g *geom.MultiPolygon
}

func (m *MultiSurface) Type() Type       { return MultiSurfaceType }
func (m *MultiSurface) SRID() int        { return m.g.SRID() }
func (m *MultiSurface) Bounds() Envelope { return envelopeOf(m.g) }
func (m *MultiSurface) Geom() geom.T     { return m.g }
func (m *MultiSurface) Len() int         { return m.g.NumPolygons() }

func (m *MultiSurface) Surface(i int) *Surface {
	return &Surface{g: m.g.Polygon(i).SetSRID(m.g.SRID())}
}

// Wrap converts a go-geom value into the matching Geometry.
func Wrap(g geom.T) (Geometry, error) {
	switch g := g.(type) {
	case *geom.Point:
		return &Point{g: g}, nil
	case *geom.LineString:
		return &Curve{g: g}, nil
	case *geom.LinearRing:
		ls, err := geom.NewLineString(g.Layout()).SetCoords(g.Coords())
		if err != nil {
			return nil, err
		}
		return &Curve{g: ls.SetSRID(g.SRID())}, nil
	case *geom.Polygon:
		return &Surface{g: g}, nil
	case *geom.MultiPoint:
		return &MultiPoint{g: g}, nil
	case *geom.MultiLineString:
		return &MultiCurve{g: g}, nil
	case *geom.MultiPolygon:
		return &MultiSurface{g: g}, nil
	default:
		return nil, fmt.Errorf("unsupported geometry type %T", g)
	}
}

func toPairs(coords []geom.Coord) [][2]float64 {
	pairs := make([][2]float64, len(coords))
	for i, c := range coords {
		pairs[i] = [2]float64{c.X(), c.Y()}
	}
	return pairs
}

func envelopeOf(g geom.T) Envelope {
	b := g.Bounds()
	if b.IsEmpty() {
		return EmptyEnvelope()
	}
	return Envelope{MinX: b.Min(0), MinY: b.Min(1), MaxX: b.Max(0), MaxY: b.Max(1)}
}
