package utils

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// WCSParams contains the serialised version
// of the parameters contained in a WCS request.
type WCSParams struct {
	Service        *string   `json:"service,omitempty"`
	Version        *string   `json:"version,omitempty"`
	Request        *string   `json:"request,omitempty"`
	Coverages      []string  `json:"coverage,omitempty"`
	CRS            *string   `json:"crs,omitempty"`
	ResponseCRS    *string   `json:"response_crs,omitempty"`
	BBox           []float64 `json:"bbox,omitempty"`
	Height         *int      `json:"height,omitempty"`
	Width          *int      `json:"width,omitempty"`
	ResX           *float64  `json:"resx,omitempty"`
	ResY           *float64  `json:"resy,omitempty"`
	Format         *string   `json:"format,omitempty"`
	Interpolation  *string   `json:"interpolation,omitempty"`
	UpdateSequence *string   `json:"updatesequence,omitempty"`
	Section        *string   `json:"section,omitempty"`

	// RangeSubset maps range axis names to the requested values. It
	// collects the rangesubset parameter as well as the parameters
	// that are not part of the WCS vocabulary, which WCS 1.0.0 uses to
	// name range axes.
	RangeSubset map[string][]string `json:"-"`
}

// WCSRegexpMap maps WCS request parameters to
// regular expressions for doing validation
// when parsing.
var WCSRegexpMap = map[string]string{"service": `^(?i)WCS$`,
	"request":        `^(?i)(GetCapabilities|DescribeCoverage|GetCoverage)$`,
	"version":        `^\d+\.\d+\.\d+$`,
	"coverage":       `^[A-Za-z.:0-9\s_,-]+$`,
	"crs":            `^(?i)((?:[A-Z]+):(?:[0-9]+)|urn:(x-)?ogc:def:crs:EPSG:[0-9.]*:[0-9]+)$`,
	"bbox":           `^[-+]?[0-9]*\.?[0-9]*([eE][-+]?[0-9]+)?(,[-+]?[0-9]*\.?[0-9]*([eE][-+]?[0-9]+)?){3,5}$`,
	"width":          `^[0-9]+$`,
	"height":         `^[0-9]+$`,
	"res":            `^[0-9]*\.?[0-9]*([eE][-+]?[0-9]+)?$`,
	"format":         `^[A-Za-z0-9/._+-]+$`,
	"interpolation":  `^(?i)(nearest neighbor|bilinear|bicubic|cubic|lost area|barycentric)$`,
	"updatesequence": `^[A-Za-z0-9:.+_-]+$`,
	"section":        `^(?i)/?WCS_Capabilities(/(Service|Capability|ContentMetadata))?$`,
	"axis":           `^[A-Za-z_][A-Za-z0-9_.-]*$`}

// wcsKeys are the parameters of the WCS vocabulary. Anything else may
// name a range axis.
var wcsKeys = map[string]bool{"service": true, "version": true, "request": true, "coverage": true,
	"crs": true, "response_crs": true, "bbox": true, "width": true, "height": true, "depth": true,
	"resx": true, "resy": true, "resz": true, "format": true, "interpolation": true,
	"updatesequence": true, "section": true, "exceptions": true, "time": true,
	"rangesubset": true, "parameter": true, "store": true}

var wcsRequestNames = map[string]string{"getcapabilities": "GetCapabilities", "describecoverage": "DescribeCoverage", "getcoverage": "GetCoverage"}

func CompileWCSRegexMap() map[string]*regexp.Regexp {
	REMap := make(map[string]*regexp.Regexp)
	for key, re := range WCSRegexpMap {
		REMap[key] = regexp.MustCompile(re)
	}

	return REMap
}

// WCSParamsChecker checks and marshals the content
// of the parameters of a WCS request into a
// WCSParams struct.
func WCSParamsChecker(params map[string][]string, compREMap map[string]*regexp.Regexp) (WCSParams, error) {
	var wcsParams WCSParams
	jsonFields := []string{}

	invalid := func(key, val string) error {
		return NewOWSException(InvalidParameterValue, strings.ToUpper(key), "invalid value for %s: %q", strings.ToUpper(key), val)
	}

	if service, serviceOK := params["service"]; serviceOK {
		if !compREMap["service"].MatchString(service[0]) {
			return wcsParams, invalid("service", service[0])
		}
		jsonFields = append(jsonFields, `"service":"WCS"`)
	}

	if version, versionOK := params["version"]; versionOK {
		if !compREMap["version"].MatchString(version[0]) {
			return wcsParams, invalid("version", version[0])
		}
		jsonFields = append(jsonFields, fmt.Sprintf(`"version":"%s"`, version[0]))
	}

	if request, requestOK := params["request"]; requestOK {
		if !compREMap["request"].MatchString(request[0]) {
			return wcsParams, NewOWSException(OperationNotSupported, "REQUEST", "request %q is not supported", request[0])
		}
		jsonFields = append(jsonFields, fmt.Sprintf(`"request":"%s"`, wcsRequestNames[strings.ToLower(request[0])]))
	}

	if coverage, coverageOK := params["coverage"]; coverageOK {
		if !compREMap["coverage"].MatchString(coverage[0]) {
			return wcsParams, invalid("coverage", coverage[0])
		}
		var names []string
		for _, c := range strings.Split(coverage[0], ",") {
			if c = strings.TrimSpace(c); c != "" {
				names = append(names, fmt.Sprintf(`"%s"`, c))
			}
		}
		jsonFields = append(jsonFields, fmt.Sprintf(`"coverage":[%s]`, strings.Join(names, ",")))
	}

	for _, key := range []string{"crs", "response_crs"} {
		if crs, crsOK := params[key]; crsOK {
			if !compREMap["crs"].MatchString(crs[0]) {
				return wcsParams, NewOWSException(InvalidParameterValue, strings.ToUpper(key), "invalid CRS %q", crs[0])
			}
			jsonFields = append(jsonFields, fmt.Sprintf(`"%s":"%s"`, key, crs[0]))
		}
	}

	if bbox, bboxOK := params["bbox"]; bboxOK {
		if !compREMap["bbox"].MatchString(bbox[0]) {
			return wcsParams, invalid("bbox", bbox[0])
		}
		parts := strings.Split(bbox[0], ",")
		// minx,miny,minz,maxx,maxy,maxz drops the third dimension
		if len(parts) == 6 {
			parts = []string{parts[0], parts[1], parts[3], parts[4]}
		} else if len(parts) != 4 {
			return wcsParams, invalid("bbox", bbox[0])
		}
		jsonFields = append(jsonFields, fmt.Sprintf(`"bbox":[%s]`, strings.Join(parts, ",")))
	}

	for _, key := range []string{"width", "height"} {
		if val, ok := params[key]; ok {
			if !compREMap[key].MatchString(val[0]) {
				return wcsParams, invalid(key, val[0])
			}
			n, err := strconv.Atoi(val[0])
			if err != nil {
				return wcsParams, invalid(key, val[0])
			}
			jsonFields = append(jsonFields, fmt.Sprintf(`"%s":%d`, key, n))
		}
	}

	for _, key := range []string{"resx", "resy"} {
		if val, ok := params[key]; ok {
			if !compREMap["res"].MatchString(val[0]) {
				return wcsParams, invalid(key, val[0])
			}
			v, err := strconv.ParseFloat(val[0], 64)
			if err != nil || v <= 0 {
				return wcsParams, invalid(key, val[0])
			}
			jsonFields = append(jsonFields, fmt.Sprintf(`"%s":%s`, key, strconv.FormatFloat(v, 'g', -1, 64)))
		}
	}

	if format, formatOK := params["format"]; formatOK {
		if !compREMap["format"].MatchString(format[0]) {
			return wcsParams, NewOWSException(InvalidFormat, "FORMAT", "invalid format %q", format[0])
		}
		jsonFields = append(jsonFields, fmt.Sprintf(`"format":"%s"`, format[0]))
	}

	if interp, ok := params["interpolation"]; ok {
		if !compREMap["interpolation"].MatchString(interp[0]) {
			return wcsParams, invalid("interpolation", interp[0])
		}
		jsonFields = append(jsonFields, fmt.Sprintf(`"interpolation":"%s"`, strings.ToLower(interp[0])))
	}

	if us, ok := params["updatesequence"]; ok {
		if !compREMap["updatesequence"].MatchString(us[0]) {
			return wcsParams, NewOWSException(InvalidUpdateSequence, "UPDATESEQUENCE", "invalid update sequence %q", us[0])
		}
		jsonFields = append(jsonFields, fmt.Sprintf(`"updatesequence":"%s"`, us[0]))
	}

	if section, ok := params["section"]; ok {
		if !compREMap["section"].MatchString(section[0]) {
			return wcsParams, invalid("section", section[0])
		}
		jsonFields = append(jsonFields, fmt.Sprintf(`"section":"%s"`, section[0]))
	}

	jsonParams := fmt.Sprintf("{%s}", strings.Join(jsonFields, ","))

	err := json.Unmarshal([]byte(jsonParams), &wcsParams)
	if err != nil {
		return wcsParams, NewOWSException(InvalidParameterValue, "", "malformed request parameters: %v", err)
	}

	rangeSubset, err := parseRangeSubset(params, compREMap)
	if err != nil {
		return wcsParams, err
	}
	wcsParams.RangeSubset = rangeSubset

	return wcsParams, nil
}

// parseRangeSubset reads rangesubset=axis:v1,v2;axis2:v3 and the
// axis=v1,v2 parameters outside the WCS vocabulary.
func parseRangeSubset(params map[string][]string, compREMap map[string]*regexp.Regexp) (map[string][]string, error) {
	subset := make(map[string][]string)
	add := func(axis, values string) error {
		axis = strings.TrimSpace(axis)
		if !compREMap["axis"].MatchString(axis) {
			return NewOWSException(InvalidParameterValue, "RANGESUBSET", "invalid axis name %q", axis)
		}
		for _, v := range strings.Split(values, ",") {
			if v = strings.TrimSpace(v); v != "" {
				subset[axis] = append(subset[axis], v)
			}
		}
		return nil
	}

	for _, rs := range params["rangesubset"] {
		for _, part := range strings.Split(rs, ";") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			idx := strings.Index(part, ":")
			if idx < 0 {
				return nil, NewOWSException(InvalidParameterValue, "RANGESUBSET", "range subset %q must be axis:values", part)
			}
			if err := add(part[:idx], part[idx+1:]); err != nil {
				return nil, err
			}
		}
	}

	for key, vals := range params {
		if wcsKeys[key] || len(vals) == 0 || !compREMap["axis"].MatchString(key) {
			continue
		}
		if err := add(key, vals[0]); err != nil {
			return nil, err
		}
	}

	if len(subset) == 0 {
		return nil, nil
	}
	return subset, nil
}

// CheckWCSRequired reports the first parameter a WCS operation needs
// but the request lacks.
func CheckWCSRequired(params WCSParams) error {
	missing := func(name string) error {
		return NewOWSException(MissingParameterValue, name, "%s parameter is missing", name)
	}
	if params.Request == nil {
		return missing("REQUEST")
	}
	req := *params.Request
	if req == "GetCapabilities" {
		if params.Version != nil && *params.Version != "1.0.0" {
			return NewOWSException(VersionNegotiationFailed, "VERSION", "WCS version %s is not supported", *params.Version)
		}
		return nil
	}
	if params.Version == nil {
		return missing("VERSION")
	}
	if *params.Version != "1.0.0" {
		return NewOWSException(VersionNegotiationFailed, "VERSION", "WCS version %s is not supported", *params.Version)
	}
	if req == "DescribeCoverage" {
		return nil
	}

	if len(params.Coverages) != 1 {
		return NewOWSException(InvalidParameterValue, "COVERAGE", "exactly one COVERAGE must be requested")
	}
	if params.CRS == nil {
		return missing("CRS")
	}
	if len(params.BBox) != 4 {
		return missing("BBOX")
	}
	if params.BBox[0] > params.BBox[2] || params.BBox[1] > params.BBox[3] {
		return NewOWSException(InvalidParameterValue, "BBOX", "BBOX minimum exceeds its maximum")
	}
	if params.Format == nil {
		return missing("FORMAT")
	}
	hasGrid := params.Width != nil || params.Height != nil
	hasRes := params.ResX != nil || params.ResY != nil
	switch {
	case hasGrid && hasRes:
		return NewOWSException(InvalidParameterValue, "WIDTH", "WIDTH/HEIGHT and RESX/RESY are mutually exclusive")
	case hasGrid:
		if params.Width == nil || params.Height == nil || *params.Width <= 0 || *params.Height <= 0 {
			return NewOWSException(InvalidParameterValue, "WIDTH", "both WIDTH and HEIGHT must be positive")
		}
	case hasRes:
		if params.ResX == nil || params.ResY == nil || *params.ResX <= 0 || *params.ResY <= 0 {
			return NewOWSException(InvalidParameterValue, "RESX", "both RESX and RESY must be positive")
		}
	default:
		return NewOWSException(MissingParameterValue, "WIDTH", "either WIDTH/HEIGHT or RESX/RESY must be given")
	}
	return nil
}

// GetCoverageIndex returns the index of the
// specified coverage inside the Config.Coverages
// field.
func GetCoverageIndex(name string, config *Config) (int, error) {
	for i := range config.Coverages {
		if config.Coverages[i].Name == name {
			return i, nil
		}
	}
	return -1, NewOWSException(CoverageNotDefined, "COVERAGE", "coverage %s is not defined", name)
}
