package processor

import (
	"strings"

	"github.com/deegree/ows/geometry"
	"github.com/deegree/ows/utils"
	"github.com/deegree/ows/worker/gdalprocess"
)

// wcsInterpolations maps WCS 1.0.0 interpolation names onto GDAL
// resampling algorithms.
var wcsInterpolations = map[string]string{
	"nearest neighbor": "nearest",
	"nearest":          "nearest",
	"bilinear":         "bilinear",
	"bicubic":          "cubic",
	"cubic":            "cubic",
	"average":          "average",
}

func findAxis(cov *utils.Coverage, name string) (*utils.RangeAxis, bool) {
	for i := range cov.RangeSet {
		if strings.EqualFold(cov.RangeSet[i].Name, name) {
			return &cov.RangeSet[i], true
		}
	}
	return nil, false
}

func axisValue(axis *utils.RangeAxis, value string) (string, bool) {
	for _, v := range axis.Values {
		if strings.EqualFold(v, value) {
			return v, true
		}
	}
	return "", false
}

// CheckRangeSet verifies that every requested axis is configured for
// cov and requests only configured values.
func CheckRangeSet(cov *utils.Coverage, subset map[string][]string) error {
	for name, values := range subset {
		axis, found := findAxis(cov, name)
		if !found {
			return utils.NewOWSException(utils.InvalidParameterValue, name, "coverage %s has no range axis %s", cov.Name, name)
		}
		for _, v := range values {
			if _, ok := axisValue(axis, v); !ok {
				return utils.NewOWSException(utils.InvalidParameterValue, name, "range axis %s has no value %s", axis.Name, v)
			}
		}
	}
	return nil
}

// SelectBands returns the source bands picked by subset, or all bands
// of cov when no axis of subset names bands.
func SelectBands(cov *utils.Coverage, subset map[string][]string) []string {
	isBand := make(map[string]bool, len(cov.Bands))
	for _, b := range cov.Bands {
		isBand[b] = true
	}
	for name, values := range subset {
		axis, found := findAxis(cov, name)
		if !found || len(values) == 0 {
			continue
		}
		var bands []string
		for _, v := range values {
			canonical, ok := axisValue(axis, v)
			if !ok || !isBand[canonical] {
				bands = nil
				break
			}
			bands = append(bands, canonical)
		}
		if len(bands) > 0 {
			return bands
		}
	}
	return append([]string(nil), cov.Bands...)
}

// CoverageEnvelope returns the envelope of cov in crs: the configured
// one when present, otherwise the native envelope reprojected, or the
// native envelope as is when reprojection fails.
func CoverageEnvelope(cov *utils.Coverage, crs string) geometry.Envelope {
	native := geometry.Envelope{MinX: cov.Envelope[0], MinY: cov.Envelope[1], MaxX: cov.Envelope[2], MaxY: cov.Envelope[3]}
	if utils.SameCRS(crs, cov.NativeCRS) {
		return native
	}
	for name, env := range cov.Envelopes {
		if len(env) == 4 && utils.SameCRS(name, crs) {
			return geometry.Envelope{MinX: env[0], MinY: env[1], MaxX: env[2], MaxY: env[3]}
		}
	}
	if env, err := utils.TransformEnvelope(native, cov.NativeCRS, crs); err == nil {
		return env
	}
	return native
}

// CheckEnvelope fails when bbox, given in crs, is disjoint from cov.
func CheckEnvelope(cov *utils.Coverage, crs string, bbox geometry.Envelope) error {
	if !CoverageEnvelope(cov, crs).Intersects(bbox) {
		return utils.NewOWSException(utils.InvalidParameterValue, "BBOX", "requested envelope %s does not intersect coverage %s", bbox, cov.Name)
	}
	return nil
}

// OutputFormat canonicalises a GetCoverage format: "png" or a GDAL
// driver name.
func OutputFormat(format string) (string, error) {
	switch strings.ToLower(format) {
	case "png", "image/png":
		return "png", nil
	}
	driver, err := utils.GetDriverNameFromFormat(format)
	if err != nil {
		return "", utils.NewOWSException(utils.InvalidFormat, "FORMAT", "unsupported format %s", format)
	}
	return driver, nil
}

// Resampling maps an interpolation name onto a GDAL resampling
// algorithm. An empty name selects the first interpolation of cov.
func Resampling(cov *utils.Coverage, interpolation string) (string, error) {
	if interpolation == "" {
		if len(cov.Interpolations) == 0 {
			return "nearest", nil
		}
		interpolation = cov.Interpolations[0]
	}
	name := strings.ToLower(interpolation)
	if alg, found := wcsInterpolations[name]; found {
		name = alg
	}
	if !gdalprocess.ResamplingSupported(name) {
		return "", utils.NewOWSException(utils.InvalidParameterValue, "INTERPOLATION", "interpolation %s is not supported", interpolation)
	}
	return name, nil
}

// CheckOutputOptions verifies format, interpolation and CRSs of a
// GetCoverage request against cov.
func CheckOutputOptions(cov *utils.Coverage, format, interpolation, crs, responseCRS string) error {
	if !strings.EqualFold(format, "geotiff") && !containsFold(cov.Formats, format) {
		return utils.NewOWSException(utils.InvalidFormat, "FORMAT", "format %s is not supported by coverage %s", format, cov.Name)
	}
	if _, err := OutputFormat(format); err != nil {
		return err
	}
	if interpolation != "" && !containsFold(cov.Interpolations, interpolation) {
		return utils.NewOWSException(utils.InvalidParameterValue, "INTERPOLATION", "interpolation %s is not supported by coverage %s", interpolation, cov.Name)
	}
	if !utils.CRSSupported(cov.SupportedCRS, crs) {
		return utils.NewOWSException(utils.InvalidCRS, "CRS", "CRS %s is not supported by coverage %s", crs, cov.Name)
	}
	if responseCRS != "" && !utils.CRSSupported(cov.ResponseCRS, responseCRS) {
		return utils.NewOWSException(utils.InvalidCRS, "RESPONSE_CRS", "response CRS %s is not supported by coverage %s", responseCRS, cov.Name)
	}
	return nil
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
