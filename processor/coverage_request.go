package processor

import (
	"github.com/deegree/ows/geometry"
	"github.com/deegree/ows/utils"
)

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// NewCoverageRequest validates a GetCoverage request against cov and
// resolves its output grid, levels and bands.
func NewCoverageRequest(cov *utils.Coverage, params utils.WCSParams) (*CoverageRequest, error) {
	crs := deref(params.CRS)
	responseCRS := deref(params.ResponseCRS)
	interpolation := deref(params.Interpolation)

	if err := CheckOutputOptions(cov, deref(params.Format), interpolation, crs, responseCRS); err != nil {
		return nil, err
	}
	if err := CheckRangeSet(cov, params.RangeSubset); err != nil {
		return nil, err
	}

	bbox := geometry.Envelope{MinX: params.BBox[0], MinY: params.BBox[1], MaxX: params.BBox[2], MaxY: params.BBox[3]}
	if err := CheckEnvelope(cov, crs, bbox); err != nil {
		return nil, err
	}

	var width, height int
	var resx, resy float64
	if params.Width != nil && params.Height != nil {
		width, height = *params.Width, *params.Height
	}
	if params.ResX != nil && params.ResY != nil {
		resx, resy = *params.ResX, *params.ResY
	}
	width, height, err := OutputGrid(bbox, width, height, resx, resy)
	if err != nil {
		return nil, err
	}
	if cov.MaxWidth > 0 && width > cov.MaxWidth || cov.MaxHeight > 0 && height > cov.MaxHeight {
		return nil, utils.NewOWSException(utils.InvalidParameterValue, "WIDTH", "requested grid %dx%d exceeds the maximum of coverage %s", width, height, cov.Name)
	}

	res, err := NativeResolution(cov, crs, bbox, width, height)
	if err != nil {
		return nil, utils.NewOWSException(utils.InvalidCRS, "CRS", "%v", err)
	}
	levels, err := SelectResolutions(cov.Levels, res)
	if err != nil {
		return nil, err
	}

	resampling, err := Resampling(cov, interpolation)
	if err != nil {
		return nil, err
	}

	req := &CoverageRequest{
		Coverage:      cov,
		CRS:           utils.NormaliseCRS(crs),
		BBox:          bbox,
		Width:         width,
		Height:        height,
		Interpolation: resampling,
		Levels:        levels,
		Bands:         SelectBands(cov, params.RangeSubset),
	}
	if err := req.setBandExpr(); err != nil {
		return nil, err
	}

	if responseCRS != "" && !utils.SameCRS(responseCRS, crs) {
		out, err := utils.TransformEnvelope(bbox, crs, responseCRS)
		if err != nil {
			return nil, utils.NewOWSException(utils.InvalidCRS, "RESPONSE_CRS", "%v", err)
		}
		req.CRS = utils.NormaliseCRS(responseCRS)
		req.BBox = out
	}
	return req, nil
}

// NewMapRequest resolves a GetMap window over cov. The rendered bands
// are the band expression, or the first band unless cov has exactly
// three bands.
func NewMapRequest(cov *utils.Coverage, crs string, bbox geometry.Envelope, width, height int) (*CoverageRequest, error) {
	if !utils.CRSSupported(cov.SupportedCRS, crs) {
		return nil, utils.NewOWSException(utils.InvalidCRS, "CRS", "CRS %s is not supported by %s", crs, cov.Name)
	}
	res, err := NativeResolution(cov, crs, bbox, width, height)
	if err != nil {
		return nil, utils.NewOWSException(utils.InvalidCRS, "CRS", "%v", err)
	}
	levels, err := SelectResolutions(cov.Levels, res)
	if err != nil {
		return nil, err
	}
	resampling, err := Resampling(cov, "")
	if err != nil {
		return nil, err
	}

	bands := cov.Bands
	if len(bands) != 3 {
		bands = bands[:1]
	}
	req := &CoverageRequest{
		Coverage:      cov,
		CRS:           utils.NormaliseCRS(crs),
		BBox:          bbox,
		Width:         width,
		Height:        height,
		Interpolation: resampling,
		Levels:        levels,
		Bands:         append([]string(nil), bands...),
	}
	if err := req.setBandExpr(); err != nil {
		return nil, err
	}
	return req, nil
}

// setBandExpr reads the bands referenced by the coverage band
// expression instead of the selected ones.
func (r *CoverageRequest) setBandExpr() error {
	if r.Coverage.BandExpr == "" {
		return nil
	}
	expr, err := ParseBandExpression(r.Coverage.BandExpr, r.Coverage.Bands)
	if err != nil {
		return utils.NewOWSException(utils.NoApplicableCode, "", "%v", err)
	}
	r.BandExpr = expr.Text
	r.Bands = expr.Variables
	return nil
}
