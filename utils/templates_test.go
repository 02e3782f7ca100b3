package utils

import (
	"bytes"
	"strings"
	"testing"

	"github.com/deegree/ows/geometry"
	"github.com/deegree/ows/wmsclient"
)

func testTemplateConfig() *Config {
	return &Config{
		ServiceConfig: ServiceConfig{OWSHostname: "maps.example.com", NameSpace: "marine", Title: "Marine & Coasts", UpdateSequence: "7"},
		Coverages: []Coverage{{
			Name: "sst", NativeCRS: "EPSG:4326", Envelope: []float64{110, -45, 155, -10}, LatLonEnvelope: []float64{110, -45, 155, -10},
			SupportedCRS: []string{"EPSG:4326", "EPSG:3857"}, ResponseCRS: []string{"EPSG:4326"},
			Envelopes:      map[string][]float64{"EPSG:3857": {12245143, -5621521, 17254701, -1118890}},
			Interpolations: []string{"nearest neighbor", "bilinear"},
			RangeSet:       []RangeAxis{{Name: "band", Label: "Band", Values: []string{"1", "2"}}},
		}},
		Layers: []Layer{{Name: "sst", Coverage: "sst", FeatureType: "buoys"}},
	}
}

func TestWMSCapabilitiesTemplate(t *testing.T) {
	tpl := NewTemplates("../templates", true)
	remote := []*wmsclient.RemoteLayer{{Name: "coast", Title: "Coastline", SRS: []string{"EPSG:4326"}, LatLon: geometry.Envelope{MinX: 100, MinY: -50, MaxX: 160, MaxY: 0}}}

	for _, version := range []string{"1.1.1", "1.3.0"} {
		var buf bytes.Buffer
		caps := NewWMSCapabilities(testTemplateConfig(), version, remote)
		if err := tpl.Execute(&buf, "WMS_GetCapabilities.tpl", caps); err != nil {
			t.Fatalf("%s: %v", version, err)
		}
		out := buf.String()

		expected := []string{
			"Marine &amp; Coasts",
			`http://maps.example.com/ows/marine?`,
			"<Name>sst</Name>",
			"<Name>coast</Name>",
			`queryable="1"`,
			`updateSequence="7"`,
		}
		if version == "1.3.0" {
			expected = append(expected, "<WMS_Capabilities", "<CRS>EPSG:3857</CRS>", `CRS="EPSG:4326" minx="-45" miny="110"`, "<westBoundLongitude>100</westBoundLongitude>")
		} else {
			expected = append(expected, "<WMT_MS_Capabilities", "<SRS>EPSG:3857</SRS>", `SRS="EPSG:4326" minx="110" miny="-45"`, `<LatLonBoundingBox minx="100"`)
		}
		for _, s := range expected {
			if !strings.Contains(out, s) {
				t.Errorf("%s: %q missing", version, s)
			}
		}
	}
}

func TestWCSTemplates(t *testing.T) {
	tpl := NewTemplates("../templates", true)
	config := testTemplateConfig()

	caps, err := NewWCSCapabilities(config, nil, "")
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err = tpl.Execute(&buf, "WCS_GetCapabilities.tpl", caps); err != nil {
		t.Fatal(err)
	}
	for _, s := range []string{"<CoverageOfferingBrief>", "<name>sst</name>", "<gml:pos>110 -45</gml:pos>", "<GetCoverage>", "<Service>"} {
		if !strings.Contains(buf.String(), s) {
			t.Errorf("capabilities: %q missing", s)
		}
	}

	caps, _ = NewWCSCapabilities(config, nil, "ContentMetadata")
	buf.Reset()
	if err = tpl.Execute(&buf, "WCS_GetCapabilities.tpl", caps); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(buf.String(), "<Service>") || !strings.Contains(buf.String(), "<ContentMetadata>") {
		t.Errorf("section not honoured")
	}

	desc, err := NewWCSCapabilities(config, []string{"sst"}, "")
	if err != nil {
		t.Fatal(err)
	}
	buf.Reset()
	if err = tpl.Execute(&buf, "WCS_DescribeCoverage.tpl", desc); err != nil {
		t.Fatal(err)
	}
	for _, s := range []string{
		`<gml:Envelope srsName="EPSG:3857">`,
		"<singleValue>2</singleValue>",
		`<supportedInterpolations default="nearest neighbor">`,
		"<formats>GeoTIFF</formats>",
		"<nativeCRSs>EPSG:4326</nativeCRSs>",
	} {
		if !strings.Contains(buf.String(), s) {
			t.Errorf("describe coverage: %q missing", s)
		}
	}

	_, err = NewWCSCapabilities(config, []string{"nope"}, "")
	if e, ok := err.(*OWSException); !ok || e.Code != CoverageNotDefined {
		t.Errorf("unknown coverage: %v", err)
	}
}
