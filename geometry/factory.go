package geometry

import (
	"fmt"

	"github.com/twpayne/go-geom"
)

// Factory creates geometries tagged with a fixed SRID.
type Factory struct {
	SRID int
}

func NewFactory(srid int) *Factory {
	return &Factory{SRID: srid}
}

func (f *Factory) NewPoint(x, y float64) *Point {
	return &Point{g: geom.NewPointFlat(geom.XY, []float64{x, y}).SetSRID(f.SRID)}
}

func (f *Factory) NewCurve(coords [][2]float64) (*Curve, error) {
	if len(coords) < 2 {
		return nil, fmt.Errorf("a curve needs at least 2 points, got %d", len(coords))
	}
	ls, err := geom.NewLineString(geom.XY).SetCoords(toCoords(coords))
	if err != nil {
		return nil, err
	}
	return &Curve{g: ls.SetSRID(f.SRID)}, nil
}

func (f *Factory) NewSurface(shell [][2]float64, holes ...[][2]float64) (*Surface, error) {
	rings := make([][]geom.Coord, 0, 1+len(holes))
	for i, ring := range append([][][2]float64{shell}, holes...) {
		if err := checkRing(ring); err != nil {
			return nil, fmt.Errorf("ring %d: %v", i, err)
		}
		rings = append(rings, toCoords(ring))
	}
	p, err := geom.NewPolygon(geom.XY).SetCoords(rings)
	if err != nil {
		return nil, err
	}
	return &Surface{g: p.SetSRID(f.SRID)}, nil
}

func (f *Factory) NewMultiPoint(points []*Point) (*MultiPoint, error) {
	coords := make([]geom.Coord, len(points))
	for i, p := range points {
		coords[i] = geom.Coord{p.X(), p.Y()}
	}
	mp, err := geom.NewMultiPoint(geom.XY).SetCoords(coords)
	if err != nil {
		return nil, err
	}
	return &MultiPoint{g: mp.SetSRID(f.SRID)}, nil
}

func (f *Factory) NewMultiCurve(curves []*Curve) (*MultiCurve, error) {
	coords := make([][]geom.Coord, len(curves))
	for i, c := range curves {
		coords[i] = c.g.Coords()
	}
	mls, err := geom.NewMultiLineString(geom.XY).SetCoords(coords)
	if err != nil {
		return nil, err
	}
	return &MultiCurve{g: mls.SetSRID(f.SRID)}, nil
}

func (f *Factory) NewMultiSurface(surfaces []*Surface) (*MultiSurface, error) {
	coords := make([][][]geom.Coord, len(surfaces))
	for i, s := range surfaces {
		coords[i] = s.g.Coords()
	}
	mp, err := geom.NewMultiPolygon(geom.XY).SetCoords(coords)
	if err != nil {
		return nil, err
	}
	return &MultiSurface{g: mp.SetSRID(f.SRID)}, nil
}

// EnvelopeSurface returns the rectangle covering env.
func (f *Factory) EnvelopeSurface(env Envelope) (*Surface, error) {
	if env.IsEmpty() {
		return nil, fmt.Errorf("cannot create a surface from an empty envelope")
	}
	return f.NewSurface([][2]float64{
		{env.MinX, env.MinY},
		{env.MaxX, env.MinY},
		{env.MaxX, env.MaxY},
		{env.MinX, env.MaxY},
		{env.MinX, env.MinY},
	})
}

func checkRing(ring [][2]float64) error {
	if len(ring) < 4 {
		return fmt.Errorf("a linear ring needs at least 4 points, got %d", len(ring))
	}
	if ring[0] != ring[len(ring)-1] {
		return fmt.Errorf("linear ring is not closed")
	}
	return nil
}

func toCoords(pairs [][2]float64) []geom.Coord {
	coords := make([]geom.Coord, len(pairs))
	for i, p := range pairs {
		coords[i] = geom.Coord{p[0], p[1]}
	}
	return coords
}
