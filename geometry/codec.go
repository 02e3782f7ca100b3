package geometry

import (
	"fmt"

	"github.com/paulsmith/gogeos/geos"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"github.com/twpayne/go-geom/encoding/wkb"
	"github.com/twpayne/go-geom/encoding/wkt"
)

func ToWKT(g Geometry) (string, error) {
	return wkt.Marshal(g.Geom())
}

// FromWKT parses WKT through GEOS and assigns srid to the result.
func FromWKT(s string, srid int) (Geometry, error) {
	gg, err := geos.FromWKT(s)
	if err != nil {
		return nil, fmt.Errorf("invalid WKT: %v", err)
	}
	return fromGEOS(gg, srid)
}

// ToWKB encodes g as little endian (NDR) WKB, the encoding
// PostGIS returns from ST_AsBinary.
func ToWKB(g Geometry) ([]byte, error) {
	return wkb.Marshal(g.Geom(), wkb.NDR)
}

func FromWKB(b []byte, srid int) (Geometry, error) {
	g, err := wkb.Unmarshal(b)
	if err != nil {
		return nil, fmt.Errorf("invalid WKB: %v", err)
	}
	return Wrap(setSRID(g, srid))
}

func ToGeoJSON(g Geometry) ([]byte, error) {
	return geojson.Marshal(g.Geom())
}

func FromGeoJSON(data []byte, srid int) (Geometry, error) {
	var g geom.T
	if err := geojson.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("invalid GeoJSON geometry: %v", err)
	}
	return Wrap(setSRID(g, srid))
}

func setSRID(g geom.T, srid int) geom.T {
	switch g := g.(type) {
	case *geom.Point:
		return g.SetSRID(srid)
	case *geom.LineString:
		return g.SetSRID(srid)
	case *geom.Polygon:
		return g.SetSRID(srid)
	case *geom.MultiPoint:
		return g.SetSRID(srid)
	case *geom.MultiLineString:
		return g.SetSRID(srid)
	case *geom.MultiPolygon:
		return g.SetSRID(srid)
	}
	return g
}
