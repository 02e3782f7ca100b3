package utils

import (
	"math"
	"testing"

	"github.com/deegree/ows/geometry"
)

func TestParseEPSG(t *testing.T) {
	tests := []struct {
		crs  string
		code int
		ok   bool
	}{
		{"EPSG:4326", 4326, true},
		{"epsg:3857", 3857, true},
		{"urn:ogc:def:crs:EPSG::28355", 28355, true},
		{"urn:x-ogc:def:crs:EPSG:4283", 4283, true},
		{"http://www.opengis.net/gml/srs/epsg.xml#4326", 4326, true},
		{"CRS:84", 0, false},
		{"EPSG:abc", 0, false},
	}
	for _, tc := range tests {
		code, err := ParseEPSG(tc.crs)
		if (err == nil) != tc.ok || code != tc.code {
			t.Errorf("%s: got %d %v", tc.crs, code, err)
		}
	}
}

func TestSameCRSAndSwapAxes(t *testing.T) {
	if !SameCRS("EPSG:4326", "urn:ogc:def:crs:EPSG::4326") {
		t.Errorf("EPSG forms differ")
	}
	if SameCRS("EPSG:4326", "EPSG:3857") {
		t.Errorf("different codes reported the same")
	}
	if !SwapAxes("1.3.0", "EPSG:4326") || SwapAxes("1.1.1", "EPSG:4326") || SwapAxes("1.3.0", "EPSG:3857") {
		t.Errorf("axis order rules broken")
	}
	if !CRSSupported([]string{"EPSG:3857", "EPSG:4326"}, "epsg:4326") || CRSSupported([]string{"EPSG:3857"}, "EPSG:4326") {
		t.Errorf("CRSSupported broken")
	}
}

func TestTransformEnvelope(t *testing.T) {
	InitGdal()
	env := geometry.Envelope{MinX: 0, MinY: 0, MaxX: 10, MaxY: 10}

	same, err := TransformEnvelope(env, "EPSG:4326", "urn:ogc:def:crs:EPSG::4326")
	if err != nil || same != env {
		t.Errorf("identity transform: %v %v", same, err)
	}

	merc, err := TransformEnvelope(env, "EPSG:4326", "EPSG:3857")
	if err != nil {
		t.Skipf("projection database unavailable: %v", err)
	}
	if math.Abs(merc.MinX) > 1e-6 || merc.MaxX < 1113194 || merc.MaxX > 1113195 {
		t.Errorf("mercator envelope %v", merc)
	}

	back, err := TransformEnvelope(merc, "EPSG:3857", "EPSG:4326")
	if err != nil {
		t.Fatal(err)
	}
	if back.MaxX < 9.999 || back.MaxX > 10.001 || back.MaxY < 9.999 || back.MaxY > 10.001 {
		t.Errorf("round trip envelope %v", back)
	}

	if _, err = TransformEnvelope(env, "EPSG:4326", "EPSG:999999"); err == nil {
		t.Errorf("unknown CRS accepted")
	}
}

func TestCoordTransform(t *testing.T) {
	InitGdal()
	ct, err := NewCoordTransform("EPSG:4326", "EPSG:3857")
	if err != nil {
		t.Skipf("projection database unavailable: %v", err)
	}
	defer ct.Close()

	out := ct.Transform([][2]float64{{0, 0}, {10, 0}})
	if len(out) != 2 || math.Abs(out[0][0]) > 1e-6 || out[1][0] < 1113194 || out[1][0] > 1113195 {
		t.Errorf("mercator coords %v", out)
	}
	if out := ct.Transform(nil); out != nil {
		t.Errorf("empty coords: %v", out)
	}
}
