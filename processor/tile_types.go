package processor

import (
	"github.com/deegree/ows/geometry"
	"github.com/deegree/ows/utils"
)

// CoverageRequest describes an output grid to be filled from the
// source files of a coverage. BBox is in CRS, which is the CRS of
// the output.
type CoverageRequest struct {
	Coverage      *utils.Coverage
	CRS           string
	BBox          geometry.Envelope
	Width, Height int
	Interpolation string

	// Levels are the resolution levels to read, finest first.
	Levels []utils.CacheLevel
	// Bands are the names of the source bands, in output order.
	Bands    []string
	BandExpr string
}

// Geot is the geotransform of the output grid.
func (r *CoverageRequest) Geot() []float64 {
	return utils.BBox2Geot(r.Width, r.Height, []float64{r.BBox.MinX, r.BBox.MinY, r.BBox.MaxX, r.BBox.MaxY})
}

// bandIndex returns the 1-based band of name in the source files.
func (r *CoverageRequest) bandIndex(name string) int {
	for i, b := range r.Coverage.Bands {
		if b == name {
			return i + 1
		}
	}
	return 1
}

// GeoTileRequest is a window of a CoverageRequest.
type GeoTileRequest struct {
	*CoverageRequest
	BBox          geometry.Envelope
	Width, Height int
	OffX, OffY    int
}

// GeoTileGranule is one band of one source file warped into a tile.
type GeoTileGranule struct {
	Path          string
	Band          int
	NameSpace     string
	Level         int
	Seq           int
	CRS           string
	BBox          geometry.Envelope
	Height, Width int
	OffX, OffY    int
	Resampling    string
}

// FlexRaster holds a warped granule in the source data type.
type FlexRaster struct {
	Data          []byte
	Height, Width int
	OffX, OffY    int
	Type          string
	NoData        float64
	NameSpace     string
	Level         int
	Seq           int
}
