package utils

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/deegree/ows/geometry"
)

// WMSParams contains the serialised version
// of the parameters contained in a WMS request.
type WMSParams struct {
	Service        *string   `json:"service,omitempty"`
	Request        *string   `json:"request,omitempty"`
	Version        *string   `json:"version,omitempty"`
	CRS            *string   `json:"crs,omitempty"`
	BBox           []float64 `json:"bbox,omitempty"`
	Format         *string   `json:"format,omitempty"`
	InfoFormat     *string   `json:"info_format,omitempty"`
	X              *int      `json:"x,omitempty"`
	Y              *int      `json:"y,omitempty"`
	Height         *int      `json:"height,omitempty"`
	Width          *int      `json:"width,omitempty"`
	Layers         []string  `json:"layers,omitempty"`
	Styles         []string  `json:"styles,omitempty"`
	QueryLayers    []string  `json:"query_layers,omitempty"`
	FeatureCount   *int      `json:"feature_count,omitempty"`
	Transparent    *bool     `json:"transparent,omitempty"`
	BGColor        *string   `json:"bgcolor,omitempty"`
	Exceptions     *string   `json:"exceptions,omitempty"`
	UpdateSequence *string   `json:"updatesequence,omitempty"`
	Offset         *float64  `json:"offset,omitempty"`
	Clip           *float64  `json:"clip,omitempty"`
}

// WMSRegexpMap maps WMS request parameters to
// regular expressions for doing validation
// when parsing.
// --- These regexp do not avoid every case of
// --- invalid code but filter most of the malformed
// --- cases. Error free JSON deserialisation into types
// --- also validates correct values.
var WMSRegexpMap = map[string]string{"service": `^(?i)WMS$`,
	"request":        `^(?i)(GetCapabilities|capabilities|GetMap|map|GetFeatureInfo|feature_info|GetLegendGraphic)$`,
	"version":        `^\d+\.\d+\.\d+$`,
	"crs":            `^(?i)((?:[A-Z]+):(?:[0-9]+)|urn:(x-)?ogc:def:crs:EPSG:[0-9.]*:[0-9]+)$`,
	"bbox":           `^[-+]?[0-9]*\.?[0-9]*([eE][-+]?[0-9]+)?(,[-+]?[0-9]*\.?[0-9]*([eE][-+]?[0-9]+)?){3}$`,
	"format":         `^[A-Za-z]+/[A-Za-z0-9.+_-]+(;\s*[A-Za-z]+=[A-Za-z0-9._-]+)*$`,
	"x":              `^[0-9]+$`,
	"y":              `^[0-9]+$`,
	"width":          `^[0-9]+$`,
	"height":         `^[0-9]+$`,
	"feature_count":  `^[0-9]+$`,
	"transparent":    `^(?i)(true|false)$`,
	"bgcolor":        `^(?i)0x[0-9a-f]{6}$`,
	"updatesequence": `^[A-Za-z0-9:.+_-]+$`,
	"name":           `^[^"\\]*$`}

// BBox2Geot return the geotransform from the
// parameters received in a WMS GetMap request
func BBox2Geot(width, height int, bbox []float64) []float64 {
	return []float64{bbox[0], (bbox[2] - bbox[0]) / float64(width), 0, bbox[3], 0, (bbox[1] - bbox[3]) / float64(height)}
}

func CompileWMSRegexMap() map[string]*regexp.Regexp {
	REMap := make(map[string]*regexp.Regexp)
	for key, re := range WMSRegexpMap {
		REMap[key] = regexp.MustCompile(re)
	}

	return REMap
}

func CheckWMSVersion(version string) bool {
	return version == "1.3.0" || version == "1.1.1"
}

// wmsRequestNames maps lower-cased request names, including the WMS
// 1.0.0 ones, onto the canonical names.
var wmsRequestNames = map[string]string{"getcapabilities": "GetCapabilities", "getmap": "GetMap", "getfeatureinfo": "GetFeatureInfo", "getlegendgraphic": "GetLegendGraphic",
	"capabilities": "GetCapabilities", "map": "GetMap", "feature_info": "GetFeatureInfo"}

// WMSParamsChecker checks and marshals the content
// of the parameters of a WMS request into a
// WMSParams struct. Malformed values are reported as
// InvalidParameterValue exceptions.
func WMSParamsChecker(params map[string][]string, compREMap map[string]*regexp.Regexp) (WMSParams, error) {
	var wmsParams WMSParams
	jsonFields := []string{}

	invalid := func(key, val string) error {
		return NewOWSException(InvalidParameterValue, strings.ToUpper(key), "invalid value for %s: %q", strings.ToUpper(key), val)
	}

	if service, serviceOK := params["service"]; serviceOK {
		if !compREMap["service"].MatchString(service[0]) {
			return wmsParams, invalid("service", service[0])
		}
		jsonFields = append(jsonFields, `"service":"WMS"`)
	}

	if version, versionOK := params["version"]; versionOK {
		if !compREMap["version"].MatchString(version[0]) {
			return wmsParams, invalid("version", version[0])
		}
		jsonFields = append(jsonFields, fmt.Sprintf(`"version":"%s"`, version[0]))
	} else if wmtver, ok := params["wmtver"]; ok && compREMap["version"].MatchString(wmtver[0]) {
		jsonFields = append(jsonFields, fmt.Sprintf(`"version":"%s"`, wmtver[0]))
	}

	if request, requestOK := params["request"]; requestOK {
		if !compREMap["request"].MatchString(request[0]) {
			return wmsParams, NewOWSException(OperationNotSupported, "REQUEST", "request %q is not supported", request[0])
		}
		req := request[0]
		if name, found := wmsRequestNames[strings.ToLower(req)]; found {
			req = name
		}
		jsonFields = append(jsonFields, fmt.Sprintf(`"request":"%s"`, req))
	}

	// WMS specifies that coordinate reference systems can be designed by either: ["srs", "crs"]
	if value, srsOK := params["srs"]; srsOK {
		params["crs"] = value
		delete(params, "srs")
	}

	if crs, crsOK := params["crs"]; crsOK {
		if !compREMap["crs"].MatchString(crs[0]) {
			return wmsParams, NewOWSException(InvalidCRS, "CRS", "invalid CRS %q", crs[0])
		}
		jsonFields = append(jsonFields, fmt.Sprintf(`"crs":"%s"`, crs[0]))
	}

	if bbox, bboxOK := params["bbox"]; bboxOK {
		if !compREMap["bbox"].MatchString(bbox[0]) {
			return wmsParams, invalid("bbox", bbox[0])
		}
		jsonFields = append(jsonFields, fmt.Sprintf(`"bbox":[%s]`, bbox[0]))
	}

	if i, iOK := params["i"]; iOK {
		params["x"] = i
	}

	if j, jOK := params["j"]; jOK {
		params["y"] = j
	}

	for _, key := range []string{"x", "y", "width", "height", "feature_count"} {
		if val, ok := params[key]; ok {
			if !compREMap[key].MatchString(val[0]) {
				return wmsParams, invalid(key, val[0])
			}
			n, err := strconv.Atoi(val[0])
			if err != nil {
				return wmsParams, invalid(key, val[0])
			}
			jsonFields = append(jsonFields, fmt.Sprintf(`"%s":%d`, key, n))
		}
	}

	for _, key := range []string{"format", "info_format"} {
		if format, formatOK := params[key]; formatOK {
			if !compREMap["format"].MatchString(format[0]) {
				return wmsParams, NewOWSException(InvalidFormat, strings.ToUpper(key), "invalid format %q", format[0])
			}
			jsonFields = append(jsonFields, fmt.Sprintf(`"%s":"%s"`, key, format[0]))
		}
	}

	if transparent, ok := params["transparent"]; ok {
		if !compREMap["transparent"].MatchString(transparent[0]) {
			return wmsParams, invalid("transparent", transparent[0])
		}
		jsonFields = append(jsonFields, fmt.Sprintf(`"transparent":%s`, strings.ToLower(transparent[0])))
	}

	if bgcolor, ok := params["bgcolor"]; ok {
		if !compREMap["bgcolor"].MatchString(bgcolor[0]) {
			return wmsParams, invalid("bgcolor", bgcolor[0])
		}
		jsonFields = append(jsonFields, fmt.Sprintf(`"bgcolor":"%s"`, bgcolor[0]))
	}

	if exceptions, ok := params["exceptions"]; ok && compREMap["name"].MatchString(exceptions[0]) {
		jsonFields = append(jsonFields, fmt.Sprintf(`"exceptions":"%s"`, exceptions[0]))
	}

	if us, ok := params["updatesequence"]; ok {
		if !compREMap["updatesequence"].MatchString(us[0]) {
			return wmsParams, NewOWSException(InvalidUpdateSequence, "UPDATESEQUENCE", "invalid update sequence %q", us[0])
		}
		jsonFields = append(jsonFields, fmt.Sprintf(`"updatesequence":"%s"`, us[0]))
	}

	var layers []string
	if _layers, layersOK := params["layers"]; layersOK {
		layers = _layers
	} else {
		if _layer, layerOK := params["layer"]; layerOK {
			layers = _layer
		}
	}
	for key, val := range map[string][]string{"layers": layers, "styles": params["styles"], "query_layers": params["query_layers"]} {
		if len(val) == 0 {
			continue
		}
		if !compREMap["name"].MatchString(val[0]) {
			return wmsParams, invalid(key, val[0])
		}
		jsonFields = append(jsonFields, fmt.Sprintf(`"%s":["%s"]`, key, strings.Replace(val[0], ",", "\",\"", -1)))
	}

	if scaleRange, scaleRangeOK := params["colorscalerange"]; scaleRangeOK {
		parts := strings.Split(scaleRange[0], ",")
		if len(parts) == 2 {
			lower, err := strconv.ParseFloat(parts[0], 64)
			if err != nil {
				return wmsParams, fmt.Errorf("parsing error in the lower endpoint of colorscalerange: %v", err)
			}
			offset := 0.0 - lower
			jsonFields = append(jsonFields, fmt.Sprintf(`"offset": %f`, offset))

			upper, err := strconv.ParseFloat(parts[1], 64)
			if err != nil {
				return wmsParams, fmt.Errorf("parsing error in the upper endpoint of colorscalerange: %v", err)
			}
			clip := upper - lower
			jsonFields = append(jsonFields, fmt.Sprintf(`"clip": %f`, clip))
		} else {
			return wmsParams, fmt.Errorf("colorscalerange must be in the format of 'min,max': %v", scaleRange[0])
		}
	}

	jsonParams := fmt.Sprintf("{%s}", strings.Join(jsonFields, ","))

	err := json.Unmarshal([]byte(jsonParams), &wmsParams)
	if err != nil {
		return wmsParams, NewOWSException(InvalidParameterValue, "", "malformed request parameters: %v", err)
	}

	if len(wmsParams.BBox) == 4 && wmsParams.Version != nil && wmsParams.CRS != nil && SwapAxes(*wmsParams.Version, *wmsParams.CRS) {
		b := geometry.Envelope{MinX: wmsParams.BBox[0], MinY: wmsParams.BBox[1], MaxX: wmsParams.BBox[2], MaxY: wmsParams.BBox[3]}.SwapAxes()
		wmsParams.BBox = []float64{b.MinX, b.MinY, b.MaxX, b.MaxY}
	}

	return wmsParams, nil
}

// CheckWMSRequired reports the first parameter a WMS operation needs
// but the request lacks.
func CheckWMSRequired(params WMSParams) error {
	if params.Request == nil {
		return NewOWSException(MissingParameterValue, "REQUEST", "REQUEST parameter is missing")
	}
	if *params.Request == "GetCapabilities" {
		return nil
	}
	if *params.Request == "GetLegendGraphic" {
		if len(params.Layers) == 0 {
			return NewOWSException(MissingParameterValue, "LAYER", "LAYER parameter is missing")
		}
		return nil
	}
	if params.Version == nil {
		return NewOWSException(MissingParameterValue, "VERSION", "VERSION parameter is missing")
	}
	if !CheckWMSVersion(*params.Version) {
		return NewOWSException(VersionNegotiationFailed, "VERSION", "WMS version %s is not supported", *params.Version)
	}

	missing := func(name string) error {
		return NewOWSException(MissingParameterValue, name, "%s parameter is missing", name)
	}
	if len(params.Layers) == 0 {
		return missing("LAYERS")
	}
	if params.CRS == nil {
		if *params.Version == "1.3.0" {
			return missing("CRS")
		}
		return missing("SRS")
	}
	if len(params.BBox) != 4 {
		return missing("BBOX")
	}
	if params.Width == nil || *params.Width <= 0 {
		return missing("WIDTH")
	}
	if params.Height == nil || *params.Height <= 0 {
		return missing("HEIGHT")
	}
	if params.BBox[0] >= params.BBox[2] || params.BBox[1] >= params.BBox[3] {
		return NewOWSException(InvalidParameterValue, "BBOX", "BBOX has an empty extent")
	}

	if *params.Request == "GetFeatureInfo" {
		if len(params.QueryLayers) == 0 {
			return missing("QUERY_LAYERS")
		}
		if params.X == nil || params.Y == nil {
			if *params.Version == "1.3.0" {
				return missing("I/J")
			}
			return missing("X/Y")
		}
		if *params.X >= *params.Width || *params.Y >= *params.Height {
			return NewOWSException("InvalidPoint", "X/Y", "point lies outside the map")
		}
		return nil
	}

	if params.Format == nil {
		return missing("FORMAT")
	}
	return nil
}

// GetCoordinates returns the x and y
// coordinates in the original projection
// from the tile relative WMS parameters.
func GetCoordinates(params WMSParams) (float64, float64, error) {
	if len(params.BBox) != 4 {
		return 0, 0, fmt.Errorf("No BBox parameter has been specified")
	}
	if params.Width == nil || params.Height == nil || params.X == nil || params.Y == nil {
		return 0, 0, fmt.Errorf("Width and Height have to be bigger than 0")
	}

	return params.BBox[0] + (params.BBox[2]-params.BBox[0])*(float64(*params.X)+0.5)/float64(*params.Width), params.BBox[3] + (params.BBox[1]-params.BBox[3])*(float64(*params.Y)+0.5)/float64(*params.Height), nil
}

// ParseBGColor turns a 0xRRGGBB colour into its components.
func ParseBGColor(s string) (uint8, uint8, uint8, error) {
	v, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(s), "0x"), 16, 32)
	if err != nil {
		return 0, 0, 0, err
	}
	return uint8(v >> 16), uint8(v >> 8), uint8(v), nil
}
