package utils

import (
	"testing"
)

func TestWCSParamsChecker(t *testing.T) {
	reMap := CompileWCSRegexMap()

	query, _ := ParseQuery("SERVICE=WCS&VERSION=1.0.0&REQUEST=getcoverage&COVERAGE=dem&CRS=EPSG:4326&RESPONSE_CRS=EPSG:3857&BBOX=110,-40,0,155,-10,100&RESX=.01&RESY=1e-2&FORMAT=GeoTIFF&INTERPOLATION=Bilinear&BAND=1,3&rangesubset=time:2020;")
	params, err := WCSParamsChecker(query, reMap)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *params.Request != "GetCoverage" {
		t.Errorf("request %s", *params.Request)
	}
	if len(params.Coverages) != 1 || params.Coverages[0] != "dem" {
		t.Errorf("coverages %v", params.Coverages)
	}
	if len(params.BBox) != 4 || params.BBox[2] != 155 || params.BBox[3] != -10 {
		t.Errorf("bbox %v", params.BBox)
	}
	if *params.ResX != 0.01 || *params.ResY != 0.01 {
		t.Errorf("res %v %v", *params.ResX, *params.ResY)
	}
	if *params.Interpolation != "bilinear" || *params.ResponseCRS != "EPSG:3857" {
		t.Errorf("interpolation %s response crs %s", *params.Interpolation, *params.ResponseCRS)
	}
	if band := params.RangeSubset["band"]; len(band) != 2 || band[1] != "3" {
		t.Errorf("band subset %v", params.RangeSubset)
	}
	if tm := params.RangeSubset["time"]; len(tm) != 1 || tm[0] != "2020" {
		t.Errorf("time subset %v", params.RangeSubset)
	}
	if err = CheckWCSRequired(params); err != nil {
		t.Errorf("complete GetCoverage rejected: %v", err)
	}
}

func TestCheckWCSRequired(t *testing.T) {
	reMap := CompileWCSRegexMap()

	tests := []struct {
		query string
		code  string
	}{
		{"service=WCS", MissingParameterValue},
		{"request=GetCapabilities", ""},
		{"request=GetCapabilities&version=1.1.0", VersionNegotiationFailed},
		{"request=DescribeCoverage&version=1.0.0", ""},
		{"request=DescribeCoverage", MissingParameterValue},
		{"request=GetCoverage&version=1.0.0&coverage=a,b", InvalidParameterValue},
		{"request=GetCoverage&version=1.0.0&coverage=a&bbox=0,0,1,1&format=GeoTIFF", MissingParameterValue},
		{"request=GetCoverage&version=1.0.0&coverage=a&crs=EPSG:4326&bbox=0,0,1,1&format=GeoTIFF", MissingParameterValue},
		{"request=GetCoverage&version=1.0.0&coverage=a&crs=EPSG:4326&bbox=0,0,1,1&format=GeoTIFF&width=10&resx=1", InvalidParameterValue},
		{"request=GetCoverage&version=1.0.0&coverage=a&crs=EPSG:4326&bbox=0,0,1,1&format=GeoTIFF&width=10", InvalidParameterValue},
		{"request=GetCoverage&version=1.0.0&coverage=a&crs=EPSG:4326&bbox=0,0,1,1&format=GeoTIFF&width=10&height=10", ""},
		{"request=GetCoverage&version=1.0.0&coverage=a&crs=EPSG:4326&bbox=2,0,1,1&format=GeoTIFF&width=10&height=10", InvalidParameterValue},
	}
	for _, tc := range tests {
		query, _ := ParseQuery(tc.query)
		params, err := WCSParamsChecker(query, reMap)
		if err != nil {
			t.Errorf("%s: %v", tc.query, err)
			continue
		}
		err = CheckWCSRequired(params)
		if tc.code == "" {
			if err != nil {
				t.Errorf("%s: unexpected %v", tc.query, err)
			}
			continue
		}
		e, ok := err.(*OWSException)
		if !ok || e.Code != tc.code {
			t.Errorf("%s: expected %s, got %v", tc.query, tc.code, err)
		}
	}
}

func TestWCSParamsCheckerErrors(t *testing.T) {
	reMap := CompileWCSRegexMap()

	for _, q := range []string{
		"request=GetCoverage&resx=0",
		"request=GetCoverage&interpolation=magic",
		"request=GetCoverage&bbox=1,2,3",
		"request=GetCoverage&rangesubset=band",
		"request=GetCoverage&section=Contents",
	} {
		query, _ := ParseQuery(q)
		if _, err := WCSParamsChecker(query, reMap); err == nil {
			t.Errorf("%s accepted", q)
		}
	}
}

func TestGetCoverageIndex(t *testing.T) {
	config := &Config{Coverages: []Coverage{{Name: "a"}, {Name: "b"}}}
	if idx, err := GetCoverageIndex("b", config); err != nil || idx != 1 {
		t.Errorf("got %d %v", idx, err)
	}
	_, err := GetCoverageIndex("c", config)
	if e, ok := err.(*OWSException); !ok || e.Code != CoverageNotDefined {
		t.Errorf("unknown coverage: %v", err)
	}
}
