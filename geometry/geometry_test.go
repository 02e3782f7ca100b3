package geometry

import (
	"math"
	"testing"
)

func square(f *Factory, x, y, size float64) *Surface {
	s, err := f.NewSurface([][2]float64{{x, y}, {x + size, y}, {x + size, y + size}, {x, y + size}, {x, y}})
	if err != nil {
		panic(err)
	}
	return s
}

func TestFactoryValidation(t *testing.T) {
	f := NewFactory(4326)

	if _, err := f.NewCurve([][2]float64{{0, 0}}); err == nil {
		t.Errorf("expected error for single point curve")
	}
	if _, err := f.NewSurface([][2]float64{{0, 0}, {1, 0}, {0, 0}}); err == nil {
		t.Errorf("expected error for short ring")
	}
	if _, err := f.NewSurface([][2]float64{{0, 0}, {1, 0}, {1, 1}, {0, 1}}); err == nil {
		t.Errorf("expected error for open ring")
	}

	c, err := f.NewCurve([][2]float64{{0, 0}, {3, 4}})
	if err != nil {
		t.Fatalf("failed to create curve: %v", err)
	}
	if c.SRID() != 4326 || c.NumPoints() != 2 || c.IsClosed() {
		t.Errorf("unexpected curve: srid=%d points=%d", c.SRID(), c.NumPoints())
	}

	s, err := f.NewSurface(
		[][2]float64{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}},
		[][2]float64{{2, 2}, {4, 2}, {4, 4}, {2, 4}, {2, 2}},
	)
	if err != nil {
		t.Fatalf("failed to create surface: %v", err)
	}
	if len(s.Interiors()) != 1 || len(s.Exterior()) != 5 {
		t.Errorf("unexpected rings: exterior=%d interiors=%d", len(s.Exterior()), len(s.Interiors()))
	}
	if s.Bounds() != (Envelope{0, 0, 10, 10}) {
		t.Errorf("unexpected bounds %v", s.Bounds())
	}
}

func TestMultiGeometries(t *testing.T) {
	f := NewFactory(3857)
	ms, err := f.NewMultiSurface([]*Surface{square(f, 0, 0, 1), square(f, 5, 5, 2)})
	if err != nil {
		t.Fatalf("failed to create multi surface: %v", err)
	}
	if ms.Len() != 2 || ms.Surface(1).SRID() != 3857 {
		t.Errorf("unexpected multi surface: len=%d", ms.Len())
	}
	if ms.Bounds() != (Envelope{0, 0, 7, 7}) {
		t.Errorf("unexpected bounds %v", ms.Bounds())
	}

	mp, err := f.NewMultiPoint([]*Point{f.NewPoint(1, 2), f.NewPoint(3, 4)})
	if err != nil {
		t.Fatalf("failed to create multi point: %v", err)
	}
	if mp.Point(1).X() != 3 || mp.Point(1).Y() != 4 {
		t.Errorf("unexpected point %v,%v", mp.Point(1).X(), mp.Point(1).Y())
	}
}

func TestWKTAndWKB(t *testing.T) {
	g, err := FromWKT("POLYGON((0 0, 4 0, 4 4, 0 4, 0 0))", 4326)
	if err != nil {
		t.Fatalf("failed to parse WKT: %v", err)
	}
	if g.Type() != SurfaceType || g.SRID() != 4326 {
		t.Errorf("unexpected geometry: type=%v srid=%d", g.Type(), g.SRID())
	}

	b, err := ToWKB(g)
	if err != nil {
		t.Fatalf("failed to encode WKB: %v", err)
	}
	// NDR byte order marker followed by type 3 (polygon)
	if b[0] != 1 || b[1] != 3 {
		t.Errorf("unexpected WKB header: %v", b[:5])
	}

	if _, err := FromWKT("POLYGON((0 0, 1 1", 0); err == nil {
		t.Errorf("expected error for truncated WKT")
	}
}

func TestOperations(t *testing.T) {
	f := NewFactory(0)
	a := square(f, 0, 0, 2)
	b := square(f, 1, 1, 2)
	far := square(f, 10, 10, 1)

	inter, err := Intersection(a, b)
	if err != nil {
		t.Fatalf("intersection failed: %v", err)
	}
	area, err := Area(inter)
	if err != nil || math.Abs(area-1) > 1e-9 {
		t.Errorf("expected intersection area 1, got %v (%v)", area, err)
	}

	none, err := Intersection(a, far)
	if err != nil {
		t.Fatalf("intersection failed: %v", err)
	}
	if none != nil {
		t.Errorf("expected nil for disjoint intersection, got %v", none.Type())
	}

	union, err := Union(a, b)
	if err != nil {
		t.Fatalf("union failed: %v", err)
	}
	if area, _ := Area(union); math.Abs(area-7) > 1e-9 {
		t.Errorf("expected union area 7, got %v", area)
	}

	d, err := Distance(f.NewPoint(0, 0), f.NewPoint(3, 4))
	if err != nil || math.Abs(d-5) > 1e-9 {
		t.Errorf("expected distance 5, got %v (%v)", d, err)
	}

	ok, err := Contains(a, f.NewPoint(1, 1))
	if err != nil || !ok {
		t.Errorf("square should contain its centre")
	}
	ok, _ = Intersects(a, far)
	if ok {
		t.Errorf("disjoint squares should not intersect")
	}

	buf, err := Buffer(f.NewPoint(0, 0), 1)
	if err != nil {
		t.Fatalf("buffer failed: %v", err)
	}
	if area, _ := Area(buf); area < 3.0 || area > math.Pi {
		t.Errorf("unexpected buffer area %v", area)
	}

	c, err := Centroid(a)
	if err != nil {
		t.Fatalf("centroid failed: %v", err)
	}
	if math.Abs(c.X()-1) > 1e-9 || math.Abs(c.Y()-1) > 1e-9 {
		t.Errorf("unexpected centroid %v,%v", c.X(), c.Y())
	}

	ok, err = Within(f.NewPoint(1, 1), a)
	if err != nil || !ok {
		t.Errorf("centre should be within the square")
	}
	ok, err = IsValid(a)
	if err != nil || !ok {
		t.Errorf("square should be valid")
	}

	hull, err := ConvexHull(union)
	if err != nil {
		t.Fatalf("convex hull failed: %v", err)
	}
	if area, _ := Area(hull); math.Abs(area-8) > 1e-9 {
		t.Errorf("expected hull area 8, got %v", area)
	}

	diff, err := Difference(a, b)
	if err != nil {
		t.Fatalf("difference failed: %v", err)
	}
	if area, _ := Area(diff); math.Abs(area-3) > 1e-9 {
		t.Errorf("expected difference area 3, got %v", area)
	}
}

func TestIndex(t *testing.T) {
	idx := NewIndex()
	idx.Insert("a", Envelope{0, 0, 10, 10})
	idx.Insert("b", Envelope{20, 20, 30, 30})
	idx.Insert("p", Envelope{5, 5, 5, 5})

	ids := idx.Search(Envelope{4, 4, 6, 6})
	if len(ids) != 2 {
		t.Errorf("expected 2 hits, got %v", ids)
	}

	ids = idx.Search(Envelope{25, 25, 26, 26})
	if len(ids) != 1 || ids[0] != "b" {
		t.Errorf("expected [b], got %v", ids)
	}

	idx.Insert("b", Envelope{100, 100, 110, 110})
	if ids := idx.Search(Envelope{25, 25, 26, 26}); len(ids) != 0 {
		t.Errorf("replaced entry still found: %v", ids)
	}

	if !idx.Delete("a") || idx.Delete("a") {
		t.Errorf("unexpected delete results")
	}
	if idx.Len() != 2 {
		t.Errorf("expected 2 entries, got %d", idx.Len())
	}
}

func TestDecodeFeatureCollection(t *testing.T) {
	doc := `{"type":"FeatureCollection","features":[
		{"type":"Feature","id":7,"properties":{"name":"a"},"geometry":{"type":"Point","coordinates":[1,2]}},
		{"type":"Feature","properties":{"name":"b"},"geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,1],[0,0]]]}}
	]}`
	feats, err := DecodeFeatureCollection([]byte(doc), 4326)
	if err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if len(feats) != 2 {
		t.Fatalf("expected 2 features, got %d", len(feats))
	}
	if feats[0].ID != "7" || feats[0].Properties["name"] != "a" {
		t.Errorf("unexpected first feature: %+v", feats[0])
	}
	if feats[0].Geometry.Type() != PointType || feats[1].Geometry.Type() != SurfaceType {
		t.Errorf("unexpected geometry types")
	}

	if _, err := DecodeFeatureCollection([]byte(`{"type":"Feature"}`), 0); err == nil {
		t.Errorf("expected error for non collection input")
	}
}
