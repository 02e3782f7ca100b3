package utils

import (
	"testing"
)

func TestWMSParamsChecker(t *testing.T) {
	reMap := CompileWMSRegexMap()

	query, err := ParseQuery("service=WMS&version=1.1.1&request=GetMap&layers=coast,roads&styles=&srs=EPSG:3857&bbox=0,0,100,50&width=200&height=0100&format=image/png&transparent=TRUE&bgcolor=0x00FF00")
	if err != nil {
		t.Fatal(err)
	}
	params, err := WMSParamsChecker(query, reMap)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *params.Request != "GetMap" || *params.CRS != "EPSG:3857" {
		t.Errorf("request %v crs %v", *params.Request, *params.CRS)
	}
	if len(params.Layers) != 2 || params.Layers[1] != "roads" {
		t.Errorf("layers %v", params.Layers)
	}
	if *params.Height != 100 || *params.Width != 200 {
		t.Errorf("size %dx%d", *params.Width, *params.Height)
	}
	if params.Transparent == nil || !*params.Transparent {
		t.Errorf("transparent not set")
	}
	if err = CheckWMSRequired(params); err != nil {
		t.Errorf("complete GetMap rejected: %v", err)
	}
}

func TestWMSParamsCheckerAxisOrder(t *testing.T) {
	reMap := CompileWMSRegexMap()

	tests := []struct {
		query string
		bbox  []float64
	}{
		{"version=1.3.0&request=GetMap&crs=EPSG:4326&bbox=-40,110,-10,155", []float64{110, -40, 155, -10}},
		{"version=1.1.1&request=GetMap&srs=EPSG:4326&bbox=110,-40,155,-10", []float64{110, -40, 155, -10}},
		{"version=1.3.0&request=GetMap&crs=EPSG:3857&bbox=1,2,3,4", []float64{1, 2, 3, 4}},
	}
	for _, tc := range tests {
		query, _ := ParseQuery(tc.query)
		params, err := WMSParamsChecker(query, reMap)
		if err != nil {
			t.Errorf("%s: %v", tc.query, err)
			continue
		}
		for i := range tc.bbox {
			if params.BBox[i] != tc.bbox[i] {
				t.Errorf("%s: bbox %v, expected %v", tc.query, params.BBox, tc.bbox)
				break
			}
		}
	}
}

func TestWMSParamsCheckerErrors(t *testing.T) {
	reMap := CompileWMSRegexMap()

	tests := []struct {
		query string
		code  string
	}{
		{"request=GetMap&bbox=a,b,c,d", InvalidParameterValue},
		{"request=GetLegend", OperationNotSupported},
		{"request=GetMap&crs=4326", InvalidCRS},
		{"request=GetMap&width=-5", InvalidParameterValue},
		{"request=GetMap&format=png", InvalidFormat},
		{"request=GetMap&layers=a\"b", InvalidParameterValue},
		{"request=GetMap&bgcolor=red", InvalidParameterValue},
	}
	for _, tc := range tests {
		query, _ := ParseQuery(tc.query)
		_, err := WMSParamsChecker(query, reMap)
		e, ok := err.(*OWSException)
		if !ok || e.Code != tc.code {
			t.Errorf("%s: expected %s, got %v", tc.query, tc.code, err)
		}
	}
}

func TestCheckWMSRequired(t *testing.T) {
	reMap := CompileWMSRegexMap()

	tests := []struct {
		query   string
		code    string
		locator string
	}{
		{"service=WMS", MissingParameterValue, "REQUEST"},
		{"request=GetCapabilities", "", ""},
		{"request=capabilities&wmtver=1.0.0", "", ""},
		{"request=GetMap&layers=a", MissingParameterValue, "VERSION"},
		{"request=GetMap&version=1.0.0&layers=a", VersionNegotiationFailed, "VERSION"},
		{"request=GetMap&version=1.1.1", MissingParameterValue, "LAYERS"},
		{"request=GetMap&version=1.3.0&layers=a", MissingParameterValue, "CRS"},
		{"request=GetMap&version=1.1.1&layers=a&srs=EPSG:4326&bbox=0,0,1,1&width=10&height=10", MissingParameterValue, "FORMAT"},
		{"request=GetMap&version=1.1.1&layers=a&srs=EPSG:4326&bbox=1,0,1,1&width=10&height=10&format=image/png", InvalidParameterValue, "BBOX"},
		{"request=GetFeatureInfo&version=1.1.1&layers=a&srs=EPSG:4326&bbox=0,0,1,1&width=10&height=10", MissingParameterValue, "QUERY_LAYERS"},
		{"request=GetFeatureInfo&version=1.3.0&layers=a&query_layers=a&crs=EPSG:4326&bbox=0,0,1,1&width=10&height=10", MissingParameterValue, "I/J"},
		{"request=GetFeatureInfo&version=1.1.1&layers=a&query_layers=a&srs=EPSG:4326&bbox=0,0,1,1&width=10&height=10&x=10&y=2", "InvalidPoint", "X/Y"},
		{"request=GetFeatureInfo&version=1.1.1&layers=a&query_layers=a&srs=EPSG:4326&bbox=0,0,1,1&width=10&height=10&x=9&y=2", "", ""},
	}
	for _, tc := range tests {
		query, _ := ParseQuery(tc.query)
		params, err := WMSParamsChecker(query, reMap)
		if err != nil {
			t.Errorf("%s: %v", tc.query, err)
			continue
		}
		err = CheckWMSRequired(params)
		if tc.code == "" {
			if err != nil {
				t.Errorf("%s: unexpected %v", tc.query, err)
			}
			continue
		}
		e, ok := err.(*OWSException)
		if !ok || e.Code != tc.code || e.Locator != tc.locator {
			t.Errorf("%s: expected %s/%s, got %v", tc.query, tc.code, tc.locator, err)
		}
	}
}

func TestGetCoordinates(t *testing.T) {
	x, y, w, h := 0, 9, 10, 10
	params := WMSParams{BBox: []float64{0, 0, 10, 10}, X: &x, Y: &y, Width: &w, Height: &h}
	cx, cy, err := GetCoordinates(params)
	if err != nil {
		t.Fatal(err)
	}
	if cx != 0.5 || cy != 0.5 {
		t.Errorf("got %v,%v", cx, cy)
	}

	if _, _, err = GetCoordinates(WMSParams{}); err == nil {
		t.Errorf("missing bbox accepted")
	}
}

func TestParseBGColor(t *testing.T) {
	r, g, b, err := ParseBGColor("0x10FF7f")
	if err != nil || r != 0x10 || g != 0xff || b != 0x7f {
		t.Errorf("got %x %x %x %v", r, g, b, err)
	}
}
