package utils

import (
	"strconv"
	"strings"

	"github.com/deegree/ows/wmsclient"
)

// BBoxView is an envelope formatted for the capabilities templates.
type BBoxView struct {
	CRS                    string
	MinX, MinY, MaxX, MaxY string
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func NewBBoxView(crs string, bbox []float64) BBoxView {
	if len(bbox) != 4 {
		return BBoxView{CRS: crs}
	}
	return BBoxView{CRS: crs, MinX: formatFloat(bbox[0]), MinY: formatFloat(bbox[1]), MaxX: formatFloat(bbox[2]), MaxY: formatFloat(bbox[3])}
}

// LayerView is a layer entry of a WMS capabilities document.
type LayerView struct {
	Name        string
	Title       string
	Abstract    string
	MetadataURL string
	LegendURL   string
	Queryable   bool
	CRS         []string
	LatLon      BBoxView
	BBoxes      []BBoxView
}

// WMSCapabilities is the context of the WMS_GetCapabilities templates.
type WMSCapabilities struct {
	Version        string
	OnlineResource string
	Title          string
	Abstract       string
	Keywords       []string
	UpdateSequence string
	MapFormats     []string
	InfoFormats    []string
	Layers         []LayerView
}

// CoverageView is a coverage entry of the WCS templates.
type CoverageView struct {
	Name           string
	Label          string
	Description    string
	MetadataURL    string
	NativeCRS      string
	LonLat         BBoxView
	Envelopes      []BBoxView
	SupportedCRS   []string
	ResponseCRS    []string
	Formats        []string
	Interpolations []string
	RangeSet       []RangeAxis
}

// WCSCapabilities is the context of the WCS templates.
type WCSCapabilities struct {
	Version        string
	OnlineResource string
	Title          string
	Abstract       string
	Keywords       []string
	UpdateSequence string
	// Section limits GetCapabilities to Service, Capability or
	// ContentMetadata. Empty renders every section.
	Section   string
	Coverages []CoverageView
}

func onlineResource(sc *ServiceConfig) string {
	url := "http://" + sc.OWSHostname + "/ows"
	if sc.NameSpace != "" && sc.NameSpace != "." {
		url += "/" + sc.NameSpace
	}
	return url
}

var wmsMapFormats = []string{"image/png", "image/jpeg"}
var wmsInfoFormats = []string{"application/json", "text/plain"}

// NewWMSCapabilities lists the local layers of config followed by the
// cascaded remote layers.
func NewWMSCapabilities(config *Config, version string, remote []*wmsclient.RemoteLayer) *WMSCapabilities {
	sc := &config.ServiceConfig
	caps := &WMSCapabilities{
		Version:        version,
		OnlineResource: onlineResource(sc),
		Title:          sc.Title,
		Abstract:       sc.Abstract,
		Keywords:       sc.Keywords,
		UpdateSequence: sc.UpdateSequence,
		MapFormats:     wmsMapFormats,
		InfoFormats:    wmsInfoFormats,
	}

	for _, layer := range config.Layers {
		lv := LayerView{
			Name:        layer.Name,
			Title:       layer.Title,
			Abstract:    layer.Abstract,
			MetadataURL: layer.MetadataURL,
			Queryable:   layer.FeatureType != "",
		}
		if lv.Title == "" {
			lv.Title = layer.Name
		}
		if layer.LegendPath != "" {
			lv.LegendURL = caps.OnlineResource + "?service=WMS&request=GetLegendGraphic&layer=" + layer.Name
		}
		if cov, ok := config.Coverage(layer.Coverage); ok {
			lv.CRS = cov.SupportedCRS
			lv.LatLon = NewBBoxView("CRS:84", cov.LatLonEnvelope)
			lv.BBoxes = append(lv.BBoxes, bboxForVersion(version, cov.NativeCRS, cov.Envelope))
			for _, crs := range cov.SupportedCRS {
				if env, found := cov.Envelopes[crs]; found && !SameCRS(crs, cov.NativeCRS) {
					lv.BBoxes = append(lv.BBoxes, bboxForVersion(version, crs, env))
				}
			}
		}
		caps.Layers = append(caps.Layers, lv)
	}

	for _, rl := range remote {
		lv := LayerView{Name: rl.Name, Title: rl.Title, CRS: rl.SRS, Queryable: true}
		if lv.Title == "" {
			lv.Title = rl.Name
		}
		if !rl.LatLon.IsEmpty() {
			lv.LatLon = NewBBoxView("CRS:84", []float64{rl.LatLon.MinX, rl.LatLon.MinY, rl.LatLon.MaxX, rl.LatLon.MaxY})
		}
		caps.Layers = append(caps.Layers, lv)
	}
	return caps
}

func bboxForVersion(version, crs string, bbox []float64) BBoxView {
	if len(bbox) == 4 && SwapAxes(version, crs) {
		return NewBBoxView(crs, []float64{bbox[1], bbox[0], bbox[3], bbox[2]})
	}
	return NewBBoxView(crs, bbox)
}

// NewWCSCapabilities describes the named coverages of config, or all
// of them when names is empty.
func NewWCSCapabilities(config *Config, names []string, section string) (*WCSCapabilities, error) {
	if idx := strings.LastIndex(section, "/"); idx >= 0 {
		section = section[idx+1:]
	}
	if strings.EqualFold(section, "WCS_Capabilities") {
		section = ""
	}

	sc := &config.ServiceConfig
	caps := &WCSCapabilities{
		Version:        "1.0.0",
		OnlineResource: onlineResource(sc),
		Title:          sc.Title,
		Abstract:       sc.Abstract,
		Keywords:       sc.Keywords,
		UpdateSequence: sc.UpdateSequence,
		Section:        section,
	}

	var coverages []*Coverage
	if len(names) == 0 {
		for i := range config.Coverages {
			coverages = append(coverages, &config.Coverages[i])
		}
	} else {
		for _, name := range names {
			cov, ok := config.Coverage(name)
			if !ok {
				return nil, NewOWSException(CoverageNotDefined, "COVERAGE", "coverage %s is not defined", name)
			}
			coverages = append(coverages, cov)
		}
	}

	for _, cov := range coverages {
		cv := CoverageView{
			Name:           cov.Name,
			Label:          cov.Label,
			Description:    cov.Description,
			MetadataURL:    cov.MetadataURL,
			NativeCRS:      cov.NativeCRS,
			LonLat:         NewBBoxView("urn:ogc:def:crs:OGC:1.3:CRS84", cov.LatLonEnvelope),
			Envelopes:      []BBoxView{NewBBoxView(cov.NativeCRS, cov.Envelope)},
			SupportedCRS:   cov.SupportedCRS,
			ResponseCRS:    cov.ResponseCRS,
			Formats:        cov.Formats,
			Interpolations: cov.Interpolations,
			RangeSet:       cov.RangeSet,
		}
		if cv.Label == "" {
			cv.Label = cov.Name
		}
		if len(cv.Formats) == 0 {
			cv.Formats = []string{"GeoTIFF"}
		}
		for _, crs := range cov.SupportedCRS {
			if env, found := cov.Envelopes[crs]; found && !SameCRS(crs, cov.NativeCRS) {
				cv.Envelopes = append(cv.Envelopes, NewBBoxView(crs, env))
			}
		}
		caps.Coverages = append(caps.Coverages, cv)
	}
	return caps, nil
}
