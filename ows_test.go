package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/deegree/ows/cache"
	"github.com/deegree/ows/datastore"
	"github.com/deegree/ows/geometry"
	"github.com/deegree/ows/utils"
	"github.com/deegree/ows/wmsclient"
	"github.com/deegree/ows/worker/rpc"
)

func init() {
	templates = utils.NewTemplates("templates", false)
}

// constWarper fills every tile with one byte value.
type constWarper struct {
	value byte
	calls int32
}

func (w *constWarper) Warp(ctx context.Context, in *rpc.WarpRequest) (*rpc.WarpResult, error) {
	atomic.AddInt32(&w.calls, 1)
	data := make([]byte, in.Width*in.Height)
	for i := range data {
		data[i] = w.value
	}
	return &rpc.WarpResult{Data: data, Type: "Byte", NoData: 255, Width: in.Width, Height: in.Height}, nil
}

func testService(t *testing.T, minRes, maxRes float64) *service {
	t.Helper()
	dir, err := ioutil.TempDir("", "ows")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	if err := ioutil.WriteFile(filepath.Join(dir, "dem.tif"), nil, 0644); err != nil {
		t.Fatal(err)
	}

	conf := &utils.Config{
		ServiceConfig: utils.ServiceConfig{OWSHostname: "localhost:8080", Title: "Test", UpdateSequence: "5"},
		Coverages: []utils.Coverage{{
			Name:           "dem",
			NativeCRS:      "EPSG:4326",
			Envelope:       []float64{0, 0, 64, 32},
			LatLonEnvelope: []float64{0, 0, 64, 32},
			SupportedCRS:   []string{"EPSG:4326"},
			Formats:        []string{"png", "geotiff"},
			Bands:          []string{"elevation"},
			Levels:         []utils.CacheLevel{{Path: filepath.Join(dir, "*.tif"), MinRes: minRes, MaxRes: maxRes}},
		}},
		Layers: []utils.Layer{
			{Name: "dem", Title: "Elevation", Coverage: "dem", ClipValue: 254, MaxWidth: 1024, MaxHeight: 1024},
			{Name: "dem_colour", Coverage: "dem", ClipValue: 254, Palette: &utils.Palette{
				Interpolate: true,
				Colours:     []color.RGBA{{R: 255, A: 255}, {B: 255, A: 255}},
			}},
		},
	}
	conf.ServiceConfig.NameSpace = "."
	return &service{
		conf:   conf,
		cache:  cache.NopCache{},
		warper: &constWarper{value: 100},
		remote: wmsclient.NewRemoteWMSStore(nil, nil),
	}
}

func request(s *service, method, query string, body []byte) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, "/ows?"+query, bytes.NewReader(body))
	w := httptest.NewRecorder()
	generalHandler(s, w, r)
	return w
}

func decodePNG(t *testing.T, w *httptest.ResponseRecorder) image.Image {
	t.Helper()
	if w.Code != 200 {
		t.Fatalf("expecting 200, actual %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Fatalf("unexpected content type %s", ct)
	}
	img, err := png.Decode(w.Body)
	if err != nil {
		t.Fatalf("invalid PNG: %v", err)
	}
	return img
}

func rgba(c color.Color) [4]uint32 {
	r, g, b, a := c.RGBA()
	return [4]uint32{r >> 8, g >> 8, b >> 8, a >> 8}
}

func TestGeneralHandlerErrors(t *testing.T) {
	s := testService(t, 0, 10)
	tests := []struct {
		query  string
		status int
		body   string
	}{
		{"request=Dance", 400, "does not contain a 'service'"},
		{"service=XYZ&request=GetMap", 400, "valid 'service'"},
		{"service=WMS&request=GetMap&version=1.1.1&layers=nope&srs=EPSG:4326&bbox=0,0,1,1&width=10&height=10&format=image/png", 404, "LayerNotDefined"},
		{"service=WMS&request=GetMap&version=1.1.1&srs=EPSG:4326&bbox=0,0,1,1&width=10&height=10&format=image/png", 400, "MissingParameterValue"},
		{"service=WMS&request=GetMap&version=1.1.1&layers=dem&srs=EPSG:4326&bbox=0,0,1,1&width=2000&height=10&format=image/png", 400, "InvalidParameterValue"},
		{"service=WMS&request=GetMap&version=1.1.1&layers=dem&srs=EPSG:3857&bbox=0,0,1,1&width=10&height=10&format=image/png", 400, "InvalidCRS"},
		{"service=WCS&request=GetCoverage&coverage=dem", 400, "VERSION"},
		{"service=WCS&version=1.0.0&request=GetCoverage&coverage=nope&crs=EPSG:4326&bbox=0,0,1,1&width=1&height=1&format=png", 404, "CoverageNotDefined"},
		{"service=WCS&version=1.0.0&request=DescribeCoverage&coverage=nope", 404, "CoverageNotDefined"},
		{"service=WFS&request=GetFeature&typename=roads", 400, "OperationNotSupported"},
		{"service=WMS&request=GetMap&bbox=0,0,1,1&BBOX=1,1,2,2", 400, "BBOX"},
	}
	for _, tc := range tests {
		w := request(s, "GET", tc.query, nil)
		if w.Code != tc.status || !strings.Contains(w.Body.String(), tc.body) {
			t.Errorf("%s: expecting %d with %q, actual %d: %s", tc.query, tc.status, tc.body, w.Code, w.Body.String())
		}
	}
}

func TestServiceInference(t *testing.T) {
	s := testService(t, 0, 10)
	w := request(s, "GET", "request=DescribeCoverage&version=1.0.0&coverage=dem", nil)
	if w.Code != 200 || !strings.Contains(w.Body.String(), "dem") {
		t.Errorf("unexpected response %d: %s", w.Code, w.Body.String())
	}
}

func TestCapabilities(t *testing.T) {
	s := testService(t, 0, 10)

	w := request(s, "GET", "service=WMS&request=GetCapabilities&version=1.1.1", nil)
	if w.Code != 200 || w.Header().Get("Content-Type") != "application/vnd.ogc.wms_xml" {
		t.Fatalf("unexpected response %d %s", w.Code, w.Header().Get("Content-Type"))
	}
	if !strings.Contains(w.Body.String(), "<Name>dem_colour</Name>") {
		t.Errorf("layer missing from capabilities: %s", w.Body.String())
	}

	w = request(s, "GET", "service=WCS&request=GetCapabilities", nil)
	if w.Code != 200 || !strings.Contains(w.Body.String(), "dem") {
		t.Errorf("unexpected WCS capabilities %d: %s", w.Code, w.Body.String())
	}

	for seq, code := range map[string]string{"5": "CurrentUpdateSequence", "6": "InvalidUpdateSequence"} {
		w = request(s, "GET", "service=WCS&request=GetCapabilities&updatesequence="+seq, nil)
		if w.Code != 400 || !strings.Contains(w.Body.String(), code) {
			t.Errorf("updatesequence %s: expecting %s, actual %d: %s", seq, code, w.Code, w.Body.String())
		}
	}
	w = request(s, "GET", "service=WCS&request=GetCapabilities&updatesequence=4", nil)
	if w.Code != 200 {
		t.Errorf("older update sequence should return the document, actual %d", w.Code)
	}
}

func TestCheckUpdateSequence(t *testing.T) {
	tests := []struct {
		requested, current string
		code               string
	}{
		{"", "5", ""},
		{"5", "", ""},
		{"4", "5", ""},
		{"5", "5", utils.CurrentUpdateSequence},
		{"10", "9", utils.InvalidUpdateSequence},
		{"2021-01-01T00:00:00Z", "2021-06-01T00:00:00Z", ""},
		{"2022-01-01T00:00:00Z", "2021-06-01T00:00:00Z", utils.InvalidUpdateSequence},
	}
	for _, tc := range tests {
		err := checkUpdateSequence(tc.requested, tc.current)
		code := ""
		if e, ok := err.(*utils.OWSException); ok {
			code = e.Code
		}
		if code != tc.code {
			t.Errorf("%q vs %q: expecting %q, actual %v", tc.requested, tc.current, tc.code, err)
		}
	}
}

func TestGetMapLocal(t *testing.T) {
	s := testService(t, 0, 10)
	img := decodePNG(t, request(s, "GET", "service=WMS&request=GetMap&version=1.1.1&layers=dem&srs=EPSG:4326&bbox=0,0,64,32&width=64&height=32&format=image/png", nil))
	if b := img.Bounds(); b.Dx() != 64 || b.Dy() != 32 {
		t.Fatalf("unexpected size %v", b)
	}
	if c := rgba(img.At(10, 10)); c != [4]uint32{100, 100, 100, 255} {
		t.Errorf("unexpected pixel %v", c)
	}
	if s.warper.(*constWarper).calls == 0 {
		t.Errorf("coverage was not read")
	}

	// 1.3.0 takes EPSG:4326 bboxes in lat/lon order
	img = decodePNG(t, request(s, "GET", "service=WMS&request=GetMap&version=1.3.0&layers=dem_colour&crs=EPSG:4326&bbox=0,0,32,64&width=64&height=32&format=image/png", nil))
	if c := rgba(img.At(0, 0)); c[3] != 255 || c[1] != 0 || c[0] == 0 || c[2] == 0 {
		t.Errorf("expecting a palette colour, actual %v", c)
	}
}

func TestGetMapNoData(t *testing.T) {
	s := testService(t, 100, 200)
	img := decodePNG(t, request(s, "GET", "service=WMS&request=GetMap&version=1.1.1&layers=dem&srs=EPSG:4326&bbox=0,0,64,32&width=64&height=32&format=image/png&bgcolor=0xFF0000", nil))
	if c := rgba(img.At(5, 5)); c != [4]uint32{255, 0, 0, 255} {
		t.Errorf("expecting the background colour, actual %v", c)
	}
	if s.warper.(*constWarper).calls != 0 {
		t.Errorf("no level serves the resolution, yet %d warps ran", s.warper.(*constWarper).calls)
	}

	// disjoint from the coverage
	img = decodePNG(t, request(s, "GET", "service=WMS&request=GetMap&version=1.1.1&layers=dem&srs=EPSG:4326&bbox=100,50,110,60&width=8&height=8&format=image/png&transparent=true", nil))
	if c := rgba(img.At(1, 1)); c[3] != 0 {
		t.Errorf("expecting a transparent map, actual %v", c)
	}
}

func TestGetMapCache(t *testing.T) {
	dir, err := ioutil.TempDir("", "owscache")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	bc, err := cache.NewBoltCache(filepath.Join(dir, "tiles.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer bc.Close()

	s := testService(t, 0, 10)
	s.cache = bc
	s.conf.ServiceConfig.Cache.TTLSecs = 60
	warper := s.warper.(*constWarper)
	mapQuery := func(bbox string) string {
		return "service=WMS&request=GetMap&version=1.1.1&layers=dem&srs=EPSG:4326&bbox=" + bbox + "&width=64&height=32&format=image/png"
	}
	edited, far := mapQuery("0,0,20,20"), mapQuery("40,10,60,30")

	decodePNG(t, request(s, "GET", edited, nil))
	decodePNG(t, request(s, "GET", far, nil))
	calls := warper.calls

	decodePNG(t, request(s, "GET", edited, nil))
	decodePNG(t, request(s, "GET", far, nil))
	if warper.calls != calls {
		t.Errorf("cached maps were rendered again")
	}

	// an edit near the corner of the first map, far from its centre
	if n := invalidateMaps(s, []geometry.Envelope{{MinX: 1, MinY: 1, MaxX: 1.001, MaxY: 1.001}}); n != 1 {
		t.Errorf("expecting 1 invalidated map, actual %d", n)
	}

	decodePNG(t, request(s, "GET", far, nil))
	if warper.calls != calls {
		t.Errorf("map outside the edit was rendered again")
	}
	decodePNG(t, request(s, "GET", edited, nil))
	if warper.calls == calls {
		t.Errorf("map covering the edit was served from the cache")
	}
}

func TestGetMapFeatures(t *testing.T) {
	s := storeService(t)
	img := decodePNG(t, request(s, "GET", "service=WMS&request=GetMap&version=1.1.1&layers=parks&srs=EPSG:4326&bbox=0,0,20,20&width=16&height=16&format=image/png&transparent=true", nil))
	if c := rgba(img.At(8, 8)); c[3] != 0 {
		t.Errorf("no park in the map, expecting a transparent pixel, actual %v", c)
	}

	s.store = nil
	w := request(s, "GET", "service=WMS&request=GetMap&version=1.1.1&layers=parks&srs=EPSG:4326&bbox=0,0,20,20&width=16&height=16&format=image/png", nil)
	if w.Code != 400 || !strings.Contains(w.Body.String(), "OperationNotSupported") {
		t.Errorf("feature layer without store: expecting OperationNotSupported, actual %d: %s", w.Code, w.Body.String())
	}
}

const remoteCaps = `<?xml version="1.0" encoding="UTF-8"?>
<WMT_MS_Capabilities version="1.1.1" xmlns:xlink="http://www.w3.org/1999/xlink">
  <Service><Name>OGC:WMS</Name><Title>Coasts</Title></Service>
  <Capability>
    <Request>
      <GetCapabilities>
        <Format>application/vnd.ogc.wms_xml</Format>
        <DCPType><HTTP><Get><OnlineResource xlink:href="%[1]s?"/></Get></HTTP></DCPType>
      </GetCapabilities>
      <GetMap>
        <Format>image/png</Format>
        <DCPType><HTTP><Get><OnlineResource xlink:href="%[1]s?"/></Get></HTTP></DCPType>
      </GetMap>
      <GetFeatureInfo>
        <Format>application/vnd.ogc.gml</Format>
        <DCPType><HTTP><Get><OnlineResource xlink:href="%[1]s?"/></Get></HTTP></DCPType>
      </GetFeatureInfo>
    </Request>
    <Layer>
      <Title>Root</Title>
      <SRS>EPSG:4326</SRS>
      <LatLonBoundingBox minx="-180" miny="-90" maxx="180" maxy="90"/>
      <Layer queryable="1">
        <Name>coast</Name>
        <Title>Coastline</Title>
      </Layer>
    </Layer>
  </Capability>
</WMT_MS_Capabilities>`

func remoteWMS(t *testing.T) *httptest.Server {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch strings.ToLower(r.URL.Query().Get("request")) {
		case "getmap":
			img := image.NewRGBA(image.Rect(0, 0, 16, 16))
			for i := 0; i < len(img.Pix); i += 4 {
				img.Pix[i], img.Pix[i+3] = 200, 255
			}
			w.Header().Set("Content-Type", "image/png")
			png.Encode(w, img)
		case "getfeatureinfo":
			w.Header().Set("Content-Type", "application/vnd.ogc.gml")
			fmt.Fprint(w, `<FeatureInfoResponse><FIELDS COAST.NAME="Bass Strait"/></FeatureInfoResponse>`)
		default:
			w.Header().Set("Content-Type", "application/vnd.ogc.wms_xml")
			fmt.Fprintf(w, remoteCaps, srv.URL)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRemoteLayers(t *testing.T) {
	srv := remoteWMS(t)
	s := testService(t, 0, 10)
	if err := s.remote.Connect(context.Background(), []wmsclient.ServiceConfig{{Name: "coasts", URL: srv.URL}}); err != nil {
		t.Fatalf("connect: %v", err)
	}

	w := request(s, "GET", "service=WMS&request=GetCapabilities&version=1.3.0", nil)
	if !strings.Contains(w.Body.String(), "<Name>coast</Name>") {
		t.Errorf("remote layer missing from capabilities: %s", w.Body.String())
	}

	img := decodePNG(t, request(s, "GET", "service=WMS&request=GetMap&version=1.1.1&layers=coast&srs=EPSG:4326&bbox=0,0,16,16&width=16&height=16&format=image/png", nil))
	if c := rgba(img.At(3, 3)); c != [4]uint32{200, 0, 0, 255} {
		t.Errorf("unexpected remote pixel %v", c)
	}

	w = request(s, "GET", "service=WMS&request=GetFeatureInfo&version=1.1.1&layers=coast&query_layers=coast&srs=EPSG:4326&bbox=0,0,16,16&width=16&height=16&x=3&y=3", nil)
	if w.Code != 200 {
		t.Fatalf("unexpected status %d: %s", w.Code, w.Body.String())
	}
	var fc struct {
		Type     string `json:"type"`
		Features []struct {
			Properties map[string]interface{} `json:"properties"`
		} `json:"features"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &fc); err != nil {
		t.Fatalf("invalid JSON %s: %v", w.Body.String(), err)
	}
	if fc.Type != "FeatureCollection" || len(fc.Features) != 1 || fc.Features[0].Properties["NAME"] != "Bass Strait" {
		t.Errorf("unexpected feature info %s", w.Body.String())
	}
}

func TestGetFeatureInfoCoverage(t *testing.T) {
	s := testService(t, 0, 10)
	w := request(s, "GET", "service=WMS&request=GetFeatureInfo&version=1.1.1&layers=dem&query_layers=dem&srs=EPSG:4326&bbox=0,0,64,32&width=64&height=32&x=10&y=10", nil)
	if w.Code != 200 {
		t.Fatalf("unexpected status %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"elevation":100`) {
		t.Errorf("unexpected feature info %s", w.Body.String())
	}

	w = request(s, "GET", "service=WMS&request=GetFeatureInfo&version=1.1.1&layers=dem&query_layers=dem&srs=EPSG:4326&bbox=0,0,64,32&width=64&height=32&x=64&y=10", nil)
	if w.Code != 400 || !strings.Contains(w.Body.String(), "outside") {
		t.Errorf("pixel outside the map: expecting 400, actual %d: %s", w.Code, w.Body.String())
	}
}

func TestGetCoveragePNG(t *testing.T) {
	s := testService(t, 0, 10)
	w := request(s, "GET", "service=WCS&version=1.0.0&request=GetCoverage&coverage=dem&crs=EPSG:4326&bbox=0,0,64,32&width=32&height=16&format=png", nil)
	img := decodePNG(t, w)
	if b := img.Bounds(); b.Dx() != 32 || b.Dy() != 16 {
		t.Errorf("unexpected size %v", b)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "dem.png") {
		t.Errorf("unexpected content disposition %q", cd)
	}

	w = request(s, "GET", "service=WCS&version=1.0.0&request=GetCoverage&coverage=dem&crs=EPSG:4326&bbox=0,0,64,32&width=32&height=16&format=jpeg2000", nil)
	if w.Code != 400 || !strings.Contains(w.Body.String(), "InvalidFormat") {
		t.Errorf("expecting InvalidFormat, actual %d: %s", w.Code, w.Body.String())
	}
}

func TestLegendGraphic(t *testing.T) {
	s := testService(t, 0, 10)
	img := decodePNG(t, request(s, "GET", "service=WMS&request=GetLegendGraphic&layer=dem_colour&format=image/png", nil))
	if b := img.Bounds(); b.Dx() != legendWidth || b.Dy() != legendHeight {
		t.Errorf("unexpected legend size %v", b)
	}
	if c := rgba(img.At(0, 0)); c[0] != 255 || c[2] != 0 {
		t.Errorf("legend should start with the first colour, actual %v", c)
	}

	w := request(s, "GET", "service=WMS&request=GetLegendGraphic&layer=dem", nil)
	if w.Code != 400 {
		t.Errorf("layer without palette: expecting 400, actual %d", w.Code)
	}
}

func storeService(t *testing.T) *service {
	s := testService(t, 0, 10)
	types := map[string]*datastore.FeatureType{
		"roads": {Name: "roads", Table: "roads", IDColumn: "gid", GeometryColumn: "geom", SRID: 4326},
		"parks": {Name: "parks", Table: "parks", IDColumn: "gid", GeometryColumn: "geom", SRID: 4326, Extent: []float64{140, -40, 150, -30}},
	}
	s.store = datastore.NewStore(nil, types, false)
	s.conf.Layers = append(s.conf.Layers, utils.Layer{Name: "parks", FeatureType: "parks"})
	hash, err := utils.HashPassword("secret")
	if err != nil {
		t.Fatal(err)
	}
	s.conf.Users = map[string]string{"editor": hash}
	return s
}

func TestTransactionAccess(t *testing.T) {
	s := storeService(t)
	body := []byte(`{"delete":[{"type_name":"roads","id":"roads.1"}]}`)

	w := request(s, "GET", "service=WFS&request=Transaction", nil)
	if w.Code != 405 {
		t.Errorf("GET transaction: expecting 405, actual %d", w.Code)
	}

	w = request(s, "POST", "service=WFS&request=Transaction", body)
	if w.Code != 401 || w.Header().Get("WWW-Authenticate") == "" {
		t.Errorf("anonymous transaction: expecting 401, actual %d", w.Code)
	}

	r := httptest.NewRequest("POST", "/ows?service=WFS&request=Transaction", bytes.NewReader(body))
	r.SetBasicAuth("editor", "wrong")
	rec := httptest.NewRecorder()
	generalHandler(s, rec, r)
	if rec.Code != 401 {
		t.Errorf("wrong password: expecting 401, actual %d", rec.Code)
	}

	w = request(s, "GET", "service=WFS&request=GetFeature&typename=rivers", nil)
	if w.Code != 400 || !strings.Contains(w.Body.String(), "rivers") {
		t.Errorf("unknown type: expecting 400, actual %d: %s", w.Code, w.Body.String())
	}
	w = request(s, "GET", "service=WFS&request=GetFeature&typename=roads", nil)
	if w.Code != 400 || !strings.Contains(w.Body.String(), "BBOX") {
		t.Errorf("type without extent: expecting a BBOX error, actual %d: %s", w.Code, w.Body.String())
	}
}

type fakeTx struct {
	ops []string
}

func (f *fakeTx) Insert(ctx context.Context, featureType string, props map[string]interface{}, geom geometry.Geometry) (string, error) {
	f.ops = append(f.ops, fmt.Sprintf("insert %s %v", featureType, props["name"]))
	return featureType + ".7", nil
}

func (f *fakeTx) Update(ctx context.Context, featureType, id string, props map[string]interface{}, geom geometry.Geometry) (int64, error) {
	f.ops = append(f.ops, "update "+id)
	return 1, nil
}

func (f *fakeTx) Delete(ctx context.Context, featureType, id string) (int64, error) {
	f.ops = append(f.ops, "delete "+id)
	return 2, nil
}

func TestApplyTransaction(t *testing.T) {
	s := storeService(t)
	treq, err := utils.ParseTransaction(strings.NewReader(`{
		"insert": [{"type_name": "roads", "feature": {"type": "Feature", "properties": {"name": "Hume"}, "geometry": {"type": "LineString", "coordinates": [[144, -37], [151, -33]]}}}],
		"update": [{"type_name": "roads", "id": "roads.3", "feature": {"type": "Feature", "properties": {"name": "Princes"}, "geometry": null}}],
		"delete": [{"type_name": "roads", "id": "roads.4"}]
	}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	tx := &fakeTx{}
	resp, changed, err := applyTransaction(context.Background(), s, tx, treq)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	exp := []string{"insert roads Hume", "update roads.3", "delete roads.4"}
	if strings.Join(tx.ops, ";") != strings.Join(exp, ";") {
		t.Errorf("expecting %v, actual %v", exp, tx.ops)
	}
	if len(resp.InsertedIDs) != 1 || resp.InsertedIDs[0] != "roads.7" || resp.TotalUpdated != 1 || resp.TotalDeleted != 2 {
		t.Errorf("unexpected response %+v", resp)
	}
	inserted := geometry.Envelope{MinX: 144, MinY: -37, MaxX: 151, MaxY: -33}
	if len(changed) != 3 || changed[0] != inserted || changed[1] != worldArea || changed[2] != worldArea {
		t.Errorf("unexpected changed areas %v", changed)
	}

	treq.Insert[0].TypeName = "rivers"
	if _, _, err := applyTransaction(context.Background(), s, &fakeTx{}, treq); err == nil {
		t.Errorf("expecting an error for an unknown feature type")
	}
}

func TestRouter(t *testing.T) {
	s := testService(t, 0, 10)
	services.set("coasts", s)
	defer func() {
		services.mu.Lock()
		delete(services.services, "coasts")
		services.mu.Unlock()
	}()
	srv := httptest.NewServer(newRouter())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/ows/coasts?service=WCS&request=GetCapabilities")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Errorf("expecting 200, actual %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/ows/unknown?service=WCS&request=GetCapabilities")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != 404 {
		t.Errorf("unknown namespace: expecting 404, actual %d", resp.StatusCode)
	}
}
