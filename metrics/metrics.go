package metrics

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/url"
	"time"

	"github.com/deegree/ows/geometry"
	"github.com/deegree/ows/utils"
)

type URLInfo struct {
	RawURL string            `json:"raw_url"`
	Host   string            `json:"host"`
	Path   string            `json:"path"`
	Query  map[string]string `json:"query"`
}

// RequestInfo describes the map or coverage window of a request.
type RequestInfo struct {
	Service   string            `json:"service"`
	Operation string            `json:"operation"`
	Layers    []string          `json:"layers"`
	CRS       string            `json:"crs"`
	BBox      geometry.Envelope `json:"-"`
	Geometry  string            `json:"geometry"`
	// GeometryArea is in square degrees.
	GeometryArea float64 `json:"geometry_area"`
	Width        int     `json:"width"`
	Height       int     `json:"height"`
}

type PipelineInfo struct {
	Duration    time.Duration `json:"duration"`
	NumLevels   int           `json:"num_levels"`
	NumTiles    int           `json:"num_tiles"`
	NumGranules int           `json:"num_granules"`
	Remote      bool          `json:"remote"`
}

type CacheInfo struct {
	Hit   bool   `json:"hit"`
	Key   string `json:"key"`
	Bytes int    `json:"bytes"`
}

type StoreInfo struct {
	Duration    time.Duration `json:"duration"`
	FeatureType string        `json:"feature_type"`
	NumRows     int           `json:"num_rows"`
}

type MetricsInfo struct {
	ReqTime     string        `json:"req_time"`
	ReqDuration time.Duration `json:"req_duration"`
	URL         URLInfo       `json:"url"`
	RemoteAddr  string        `json:"remote_addr"`
	RemoteHost  string        `json:"remote_host"`
	RemotePort  string        `json:"remote_port"`
	HTTPStatus  int           `json:"http_status"`
	User        string        `json:"user,omitempty"`
	Request     *RequestInfo  `json:"request"`
	Pipeline    *PipelineInfo `json:"pipeline"`
	Cache       *CacheInfo    `json:"cache"`
	Store       *StoreInfo    `json:"store"`
}

type MetricsCollector struct {
	Info   *MetricsInfo
	logger Logger
}

func NewMetricsCollector(logger Logger) *MetricsCollector {
	return &MetricsCollector{
		Info: &MetricsInfo{
			Request:  &RequestInfo{BBox: geometry.EmptyEnvelope()},
			Pipeline: &PipelineInfo{},
			Cache:    &CacheInfo{},
			Store:    &StoreInfo{},
		},
		logger: logger,
	}
}

func (m *MetricsCollector) Log() {
	if m.logger != nil {
		m.logger.Log(m.Info)
	}
}

func (i *MetricsInfo) ToJSON() (string, error) {
	i.normaliseNetworkAddr(i.RemoteAddr)
	i.normaliseURLs()
	err := i.normaliseGeometry()
	if err != nil {
		log.Printf("metrics: normaliseGeometry() error: %v", err)
	}

	buf := new(bytes.Buffer)
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	err = enc.Encode(i)
	if err == nil {
		return buf.String(), nil
	} else {
		return "", err
	}
}

func (i *MetricsInfo) normaliseNetworkAddr(addr string) {
	host, port, err := net.SplitHostPort(addr)
	if err == nil {
		i.RemoteHost = host
		i.RemotePort = port
	} else {
		i.RemoteHost = addr
	}
}

func (i *MetricsInfo) normaliseURLs() {
	err := i.normaliseURL(&i.URL)
	if err != nil {
		log.Printf("metrics: normaliseUrl() error: %v", err)
	}
}

func (i *MetricsInfo) normaliseURL(u *URLInfo) error {
	r, err := url.Parse(u.RawURL)
	if err != nil {
		return err
	}

	u.Host = r.Host
	u.Path = r.Path
	query, err := utils.ParseQuery(r.RawQuery)
	if err != nil {
		return err
	}

	if u.Query == nil {
		u.Query = make(map[string]string)
	}
	for k, v := range query {
		u.Query[k] = v[0]
	}
	return nil
}

// normaliseGeometry records the request bbox as a lat/lon polygon.
func (i *MetricsInfo) normaliseGeometry() error {
	if i.Request == nil {
		return nil
	}
	if i.Request.BBox.IsEmpty() {
		i.Request.Geometry = "POLYGON EMPTY"
		return nil
	}

	env := i.Request.BBox
	if i.Request.CRS != "" {
		var err error
		env, err = utils.TransformEnvelope(env, i.Request.CRS, "EPSG:4326")
		if err != nil {
			return fmt.Errorf("Failed to transform geometry: %v", err)
		}
	}
	surface, err := geometry.NewFactory(4326).EnvelopeSurface(env)
	if err != nil {
		return err
	}
	wkt, err := geometry.ToWKT(surface)
	if err != nil {
		return err
	}
	i.Request.Geometry = wkt
	i.Request.GeometryArea, err = geometry.Area(surface)
	return err
}
