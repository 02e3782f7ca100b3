package utils

import "testing"

func TestParseQuery(t *testing.T) {
	tests := []struct {
		query string
		key   string
		value string
	}{
		{"SERVICE=WMS&Request=GetMap", "request", "GetMap"},
		{"layers=a%2Cb&styles=", "layers", "a,b"},
		{"title=sea+level", "title", "sea level"},
		{"name=a\\&b&x=1", "name", "a&b"},
		{"rangesubset=band:1+2;time:100%&x=1", "rangesubset", "band:1+2;time:100%"},
		{"subset=x%28100%29", "subset", "x(100)"},
		{"&&bbox=1,2,3,4&", "bbox", "1,2,3,4"},
		{"transparent", "transparent", ""},
	}
	for _, tc := range tests {
		m, err := ParseQuery(tc.query)
		if err != nil {
			t.Errorf("%s: unexpected error %v", tc.query, err)
			continue
		}
		if v, ok := m[tc.key]; !ok || len(v) != 1 || v[0] != tc.value {
			t.Errorf("%s: expecting %s=%q, actual %v", tc.query, tc.key, tc.value, m[tc.key])
		}
	}
}

func TestParseQueryErrors(t *testing.T) {
	tests := []struct {
		query   string
		locator string
	}{
		{"bbox=0,0,1,1&BBOX=1,1,2,2", "BBOX"},
		{"layers=a&layers=b", "LAYERS"},
		{"format=image%2", "FORMAT"},
	}
	for _, tc := range tests {
		_, err := ParseQuery(tc.query)
		e, ok := err.(*OWSException)
		if !ok || e.Code != InvalidParameterValue || e.Locator != tc.locator {
			t.Errorf("%s: expecting InvalidParameterValue on %s, actual %v", tc.query, tc.locator, err)
		}
	}
}
