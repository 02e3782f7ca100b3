package processor

import (
	"fmt"
	"math"
	"sort"

	"github.com/deegree/ows/geometry"
	"github.com/deegree/ows/utils"
)

// CalcSpatialResolution returns the finer of the x and y resolutions
// of a width by height grid over env.
func CalcSpatialResolution(env geometry.Envelope, width, height int) float64 {
	if width <= 0 || height <= 0 {
		return math.Inf(1)
	}
	return math.Min(env.Width()/float64(width), env.Height()/float64(height))
}

// SelectResolutions returns the levels serving res, finest first.
func SelectResolutions(levels []utils.CacheLevel, res float64) ([]utils.CacheLevel, error) {
	var out []utils.CacheLevel
	for _, level := range levels {
		if level.MinRes <= res && res < level.MaxRes {
			out = append(out, level)
		}
	}
	if len(out) == 0 {
		return nil, utils.NewOWSException(utils.InvalidParameterValue, "",
			"No data source defined the requested combination of spatial resolution and ranges")
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].MinRes < out[j].MinRes })
	return out, nil
}

// OutputGrid sizes the output from WIDTH/HEIGHT when given, else
// from RESX/RESY.
func OutputGrid(env geometry.Envelope, width, height int, resx, resy float64) (int, int, error) {
	if width > 0 && height > 0 {
		return width, height, nil
	}
	if resx <= 0 || resy <= 0 {
		return 0, 0, utils.NewOWSException(utils.MissingParameterValue, "WIDTH", "either WIDTH/HEIGHT or RESX/RESY must be given")
	}
	w := int(.5 + env.Width()/resx)
	h := int(.5 + env.Height()/resy)
	if w <= 0 || h <= 0 {
		return 0, 0, utils.NewOWSException(utils.InvalidParameterValue, "RESX", "resolution %v,%v is coarser than the requested extent", resx, resy)
	}
	return w, h, nil
}

// NativeResolution expresses the resolution of a width by height grid
// over bbox (in crs) in the native units of cov.
func NativeResolution(cov *utils.Coverage, crs string, bbox geometry.Envelope, width, height int) (float64, error) {
	native, err := utils.TransformEnvelope(bbox, crs, cov.NativeCRS)
	if err != nil {
		return 0, fmt.Errorf("resolution of %s: %v", cov.Name, err)
	}
	return CalcSpatialResolution(native, width, height), nil
}
