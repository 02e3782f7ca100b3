package processor

import (
	"context"
	"fmt"
	"math"

	"github.com/deegree/ows/geometry"
)

const (
	maxXTileSize = 256
	maxYTileSize = 256
)

type TileSplitter struct {
	Context context.Context
	In      chan *CoverageRequest
	Out     chan *GeoTileRequest
	Error   chan error
}

func NewTileSplitter(ctx context.Context, errChan chan error) *TileSplitter {
	return &TileSplitter{
		Context: ctx,
		In:      make(chan *CoverageRequest, 100),
		Out:     make(chan *GeoTileRequest, 100),
		Error:   errChan,
	}
}

func (s *TileSplitter) Run() {
	defer close(s.Out)
	for req := range s.In {
		for _, tile := range SplitRequest(req) {
			select {
			case <-s.Context.Done():
				sendError(s.Error, fmt.Errorf("Tile splitter context has been cancel: %v", s.Context.Err()))
				return
			case s.Out <- tile:
			}
		}
	}
}

// SplitRequest cuts the output grid of req into tiles of at most
// maxXTileSize by maxYTileSize pixels. Tile origins are top left, y
// growing downwards.
func SplitRequest(req *CoverageRequest) []*GeoTileRequest {
	xRes := req.BBox.Width() / float64(req.Width)
	yRes := req.BBox.Height() / float64(req.Height)

	out := []*GeoTileRequest{}
	for y := 0; y < req.Height; y += maxYTileSize {
		for x := 0; x < req.Width; x += maxXTileSize {
			tileW := int(math.Min(maxXTileSize, float64(req.Width-x)))
			tileH := int(math.Min(maxYTileSize, float64(req.Height-y)))

			bbox := geometry.Envelope{
				MinX: req.BBox.MinX + float64(x)*xRes,
				MaxX: req.BBox.MinX + float64(x+tileW)*xRes,
				MaxY: req.BBox.MaxY - float64(y)*yRes,
				MinY: req.BBox.MaxY - float64(y+tileH)*yRes,
			}
			out = append(out, &GeoTileRequest{CoverageRequest: req, BBox: bbox,
				Width: tileW, Height: tileH, OffX: x, OffY: y})
		}
	}
	return out
}

func sendError(errChan chan error, err error) {
	select {
	case errChan <- err:
	default:
	}
}
