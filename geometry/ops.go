package geometry

import (
	"fmt"

	"github.com/paulsmith/gogeos/geos"
	"github.com/twpayne/go-geom/encoding/wkb"
)

// Topological operations. Every function converts its operands
// to GEOS through WKB, runs the GEOS operation and wraps the
// result again with the SRID of the first operand. Operations
// producing an empty geometry return nil.

func toGEOS(g Geometry) (*geos.Geometry, error) {
	b, err := ToWKB(g)
	if err != nil {
		return nil, err
	}
	return geos.FromWKB(b)
}

func fromGEOS(gg *geos.Geometry, srid int) (Geometry, error) {
	empty, err := gg.IsEmpty()
	if err != nil {
		return nil, err
	}
	if empty {
		return nil, nil
	}
	b, err := gg.WKB()
	if err != nil {
		return nil, err
	}
	g, err := wkb.Unmarshal(b)
	if err != nil {
		return nil, err
	}
	return Wrap(setSRID(g, srid))
}

func binaryOp(a, b Geometry, name string, op func(x, y *geos.Geometry) (*geos.Geometry, error)) (Geometry, error) {
	ga, err := toGEOS(a)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", name, err)
	}
	gb, err := toGEOS(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", name, err)
	}
	res, err := op(ga, gb)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", name, err)
	}
	return fromGEOS(res, a.SRID())
}

func predicate(a, b Geometry, op func(x, y *geos.Geometry) (bool, error)) (bool, error) {
	ga, err := toGEOS(a)
	if err != nil {
		return false, err
	}
	gb, err := toGEOS(b)
	if err != nil {
		return false, err
	}
	return op(ga, gb)
}

func Buffer(g Geometry, distance float64) (Geometry, error) {
	gg, err := toGEOS(g)
	if err != nil {
		return nil, err
	}
	res, err := gg.Buffer(distance)
	if err != nil {
		return nil, fmt.Errorf("buffer: %v", err)
	}
	return fromGEOS(res, g.SRID())
}

func Intersection(a, b Geometry) (Geometry, error) {
	return binaryOp(a, b, "intersection", (*geos.Geometry).Intersection)
}

func Union(a, b Geometry) (Geometry, error) {
	return binaryOp(a, b, "union", (*geos.Geometry).Union)
}

func Difference(a, b Geometry) (Geometry, error) {
	return binaryOp(a, b, "difference", (*geos.Geometry).Difference)
}

func Distance(a, b Geometry) (float64, error) {
	ga, err := toGEOS(a)
	if err != nil {
		return 0, err
	}
	gb, err := toGEOS(b)
	if err != nil {
		return 0, err
	}
	return ga.Distance(gb)
}

func Intersects(a, b Geometry) (bool, error) {
	return predicate(a, b, (*geos.Geometry).Intersects)
}

func Contains(a, b Geometry) (bool, error) {
	return predicate(a, b, (*geos.Geometry).Contains)
}

func Within(a, b Geometry) (bool, error) {
	return predicate(a, b, (*geos.Geometry).Within)
}

func ConvexHull(g Geometry) (Geometry, error) {
	gg, err := toGEOS(g)
	if err != nil {
		return nil, err
	}
	res, err := gg.ConvexHull()
	if err != nil {
		return nil, fmt.Errorf("convex hull: %v", err)
	}
	return fromGEOS(res, g.SRID())
}

func Centroid(g Geometry) (*Point, error) {
	gg, err := toGEOS(g)
	if err != nil {
		return nil, err
	}
	res, err := gg.Centroid()
	if err != nil {
		return nil, fmt.Errorf("centroid: %v", err)
	}
	c, err := fromGEOS(res, g.SRID())
	if err != nil || c == nil {
		return nil, err
	}
	p, ok := c.(*Point)
	if !ok {
		return nil, fmt.Errorf("centroid: unexpected result %v", c.Type())
	}
	return p, nil
}

func Area(g Geometry) (float64, error) {
	gg, err := toGEOS(g)
	if err != nil {
		return 0, err
	}
	return gg.Area()
}

func Length(g Geometry) (float64, error) {
	gg, err := toGEOS(g)
	if err != nil {
		return 0, err
	}
	return gg.Length()
}

func IsValid(g Geometry) (bool, error) {
	gg, err := toGEOS(g)
	if err != nil {
		return false, err
	}
	return gg.IsValid()
}
