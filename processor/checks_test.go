package processor

import (
	"testing"

	"github.com/deegree/ows/geometry"
	"github.com/deegree/ows/utils"
)

func testCoverage() *utils.Coverage {
	return &utils.Coverage{
		Name:           "landsat",
		NativeCRS:      "EPSG:4326",
		Envelope:       []float64{100, -50, 160, -10},
		Envelopes:      map[string][]float64{"EPSG:3857": {1.1e7, -6.4e6, 1.8e7, -1.1e6}},
		SupportedCRS:   []string{"EPSG:4326", "EPSG:3857"},
		ResponseCRS:    []string{"EPSG:4326"},
		Formats:        []string{"GeoTIFF", "NetCDF", "PNG"},
		Interpolations: []string{"nearest neighbor", "bilinear"},
		RangeSet: []utils.RangeAxis{
			{Name: "Band", Values: []string{"red", "green", "blue", "nir"}},
			{Name: "Quality", Values: []string{"good", "poor"}},
		},
		Bands:  []string{"red", "green", "blue", "nir"},
		Levels: []utils.CacheLevel{{Path: "/nonexistent/*.tif", MinRes: 0, MaxRes: 1}},
	}
}

func owsCode(err error) string {
	if e, ok := err.(*utils.OWSException); ok {
		return e.Code
	}
	return ""
}

func TestCheckRangeSet(t *testing.T) {
	cov := testCoverage()
	tests := []struct {
		name   string
		subset map[string][]string
		exp    string
	}{
		{"none", nil, ""},
		{"bands", map[string][]string{"band": {"RED", "nir"}}, ""},
		{"two axes", map[string][]string{"band": {"red"}, "quality": {"good"}}, ""},
		{"unknown axis", map[string][]string{"time": {"2020"}}, utils.InvalidParameterValue},
		{"unknown value", map[string][]string{"band": {"swir"}}, utils.InvalidParameterValue},
	}
	for _, tc := range tests {
		err := CheckRangeSet(cov, tc.subset)
		if owsCode(err) != tc.exp {
			t.Errorf("%s: expecting %q, actual %v", tc.name, tc.exp, err)
		}
	}
}

func TestSelectBands(t *testing.T) {
	cov := testCoverage()
	tests := []struct {
		name   string
		subset map[string][]string
		exp    []string
	}{
		{"all", nil, []string{"red", "green", "blue", "nir"}},
		{"subset", map[string][]string{"band": {"NIR", "red"}}, []string{"nir", "red"}},
		{"non band axis", map[string][]string{"quality": {"good"}}, []string{"red", "green", "blue", "nir"}},
	}
	for _, tc := range tests {
		bands := SelectBands(cov, tc.subset)
		if len(bands) != len(tc.exp) {
			t.Errorf("%s: expecting %v, actual %v", tc.name, tc.exp, bands)
			continue
		}
		for i := range bands {
			if bands[i] != tc.exp[i] {
				t.Errorf("%s: expecting %v, actual %v", tc.name, tc.exp, bands)
				break
			}
		}
	}
}

func TestCheckEnvelope(t *testing.T) {
	cov := testCoverage()
	tests := []struct {
		crs  string
		bbox geometry.Envelope
		exp  string
	}{
		{"EPSG:4326", geometry.Envelope{MinX: 150, MinY: -20, MaxX: 170, MaxY: 0}, ""},
		{"EPSG:4326", geometry.Envelope{MinX: 0, MinY: 0, MaxX: 10, MaxY: 10}, utils.InvalidParameterValue},
		{"EPSG:3857", geometry.Envelope{MinX: 1.2e7, MinY: -3e6, MaxX: 1.3e7, MaxY: -2e6}, ""},
		{"EPSG:3857", geometry.Envelope{MinX: 0, MinY: 0, MaxX: 1e6, MaxY: 1e6}, utils.InvalidParameterValue},
	}
	for _, tc := range tests {
		err := CheckEnvelope(cov, tc.crs, tc.bbox)
		if owsCode(err) != tc.exp {
			t.Errorf("%s %v: expecting %q, actual %v", tc.crs, tc.bbox, tc.exp, err)
		}
	}
}

func TestCheckOutputOptions(t *testing.T) {
	cov := testCoverage()
	tests := []struct {
		name                                    string
		format, interpolation, crs, responseCRS string
		exp                                     string
	}{
		{"defaults", "GeoTIFF", "", "EPSG:4326", "", ""},
		{"geotiff always", "geotiff", "", "EPSG:4326", "", ""},
		{"png", "png", "bilinear", "EPSG:3857", "EPSG:4326", ""},
		{"unlisted format", "JPEG", "", "EPSG:4326", "", utils.InvalidFormat},
		{"interpolation", "GeoTIFF", "bicubic", "EPSG:4326", "", utils.InvalidParameterValue},
		{"crs", "GeoTIFF", "", "EPSG:28355", "", utils.InvalidCRS},
		{"response crs", "GeoTIFF", "", "EPSG:4326", "EPSG:3857", utils.InvalidCRS},
	}
	for _, tc := range tests {
		err := CheckOutputOptions(cov, tc.format, tc.interpolation, tc.crs, tc.responseCRS)
		if owsCode(err) != tc.exp {
			t.Errorf("%s: expecting %q, actual %v", tc.name, tc.exp, err)
		}
	}
}

func TestResampling(t *testing.T) {
	cov := testCoverage()
	tests := map[string]string{
		"":                 "nearest",
		"Nearest Neighbor": "nearest",
		"bilinear":         "bilinear",
		"bicubic":          "cubic",
	}
	for in, exp := range tests {
		alg, err := Resampling(cov, in)
		if err != nil || alg != exp {
			t.Errorf("%q: expecting %s, actual %s, %v", in, exp, alg, err)
		}
	}
	if _, err := Resampling(cov, "lost area"); owsCode(err) != utils.InvalidParameterValue {
		t.Errorf("expecting InvalidParameterValue, actual %v", err)
	}
}

func TestOutputFormat(t *testing.T) {
	tests := map[string]string{
		"png":       "png",
		"image/png": "png",
		"GeoTIFF":   "GTiff",
		"NetCDF":    "netCDF",
	}
	for in, exp := range tests {
		out, err := OutputFormat(in)
		if err != nil || out != exp {
			t.Errorf("%s: expecting %s, actual %s, %v", in, exp, out, err)
		}
	}
	if _, err := OutputFormat("image/jpeg"); owsCode(err) != utils.InvalidFormat {
		t.Errorf("expecting InvalidFormat, actual %v", err)
	}
}

func TestNewCoverageRequest(t *testing.T) {
	cov := testCoverage()
	str := func(s string) *string { return &s }
	num := func(n int) *int { return &n }

	params := utils.WCSParams{
		CRS:         str("EPSG:4326"),
		BBox:        []float64{120, -40, 130, -30},
		Width:       num(100),
		Height:      num(50),
		Format:      str("GeoTIFF"),
		RangeSubset: map[string][]string{"band": {"nir"}},
	}
	req, err := NewCoverageRequest(cov, params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Width != 100 || req.Height != 50 || req.CRS != "EPSG:4326" {
		t.Errorf("unexpected grid %dx%d %s", req.Width, req.Height, req.CRS)
	}
	if len(req.Bands) != 1 || req.Bands[0] != "nir" || req.bandIndex("nir") != 4 {
		t.Errorf("unexpected bands %v", req.Bands)
	}
	if req.Interpolation != "nearest" || len(req.Levels) != 1 {
		t.Errorf("unexpected interpolation %s or levels %v", req.Interpolation, req.Levels)
	}

	params.Width, params.Height = num(2), num(2)
	if _, err := NewCoverageRequest(cov, params); owsCode(err) != utils.InvalidParameterValue {
		t.Errorf("coarse request should not select a level: %v", err)
	}

	cov.MaxWidth = 50
	params.Width, params.Height = num(100), num(50)
	if _, err := NewCoverageRequest(cov, params); owsCode(err) != utils.InvalidParameterValue {
		t.Errorf("oversized request should fail: %v", err)
	}
}
