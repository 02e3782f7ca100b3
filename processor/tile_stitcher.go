package processor

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/deegree/ows/utils"
)

// RasterStitcher assembles warped granules into one raster per band.
// Granules of finer levels are painted first and a pixel keeps the
// first value that is not nodata.
type RasterStitcher struct {
	In    chan *FlexRaster
	Out   chan []utils.Raster
	Error chan error
}

func NewRasterStitcher(errChan chan error) *RasterStitcher {
	return &RasterStitcher{
		In:    make(chan *FlexRaster, 100),
		Out:   make(chan []utils.Raster, 100),
		Error: errChan,
	}
}

func (stch *RasterStitcher) Run(req *CoverageRequest) {
	defer close(stch.Out)

	bands := make(map[string][]*FlexRaster)
	rasterType := ""
	for raster := range stch.In {
		if rasterType == "" {
			rasterType = raster.Type
		}
		if rasterType != raster.Type {
			sendError(stch.Error, fmt.Errorf("Mixed raster types detected!"))
			for range stch.In {
			}
			return
		}
		bands[raster.NameSpace] = append(bands[raster.NameSpace], raster)
	}

	out, err := Stitch(req.Bands, bands, req.Width, req.Height)
	if err != nil {
		sendError(stch.Error, err)
		return
	}
	stch.Out <- out
}

// Stitch paints the granules of each band onto a width by height
// canvas initialised to nodata.
func Stitch(nameSpaces []string, bands map[string][]*FlexRaster, width, height int) ([]utils.Raster, error) {
	out := make([]utils.Raster, len(nameSpaces))
	for i, nameSpace := range nameSpaces {
		tiles := bands[nameSpace]
		if len(tiles) == 0 {
			dst := &utils.ByteRaster{NameSpace: nameSpace, NoData: 0xFF, Data: make([]uint8, width*height), Width: width, Height: height}
			for j := range dst.Data {
				dst.Data[j] = 0xFF
			}
			out[i] = dst
			continue
		}

		sort.SliceStable(tiles, func(a, b int) bool {
			if tiles[a].Level != tiles[b].Level {
				return tiles[a].Level < tiles[b].Level
			}
			return tiles[a].Seq < tiles[b].Seq
		})

		nodata := tiles[0].NoData
		switch tiles[0].Type {
		case "Byte":
			dst := &utils.ByteRaster{NameSpace: nameSpace, NoData: nodata, Data: make([]uint8, width*height), Width: width, Height: height}
			fill := uint8(nodata)
			for j := range dst.Data {
				dst.Data[j] = fill
			}
			for _, t := range tiles {
				src := uint8(t.NoData)
				paint(t, width, height, func(di, si int) {
					v := t.Data[si]
					if v != src && dst.Data[di] == fill {
						dst.Data[di] = v
					}
				})
			}
			out[i] = dst

		case "Int16":
			dst := &utils.Int16Raster{NameSpace: nameSpace, NoData: nodata, Data: make([]int16, width*height), Width: width, Height: height}
			fill := int16(nodata)
			for j := range dst.Data {
				dst.Data[j] = fill
			}
			for _, t := range tiles {
				src := int16(t.NoData)
				paint(t, width, height, func(di, si int) {
					v := int16(binary.LittleEndian.Uint16(t.Data[si*2:]))
					if v != src && dst.Data[di] == fill {
						dst.Data[di] = v
					}
				})
			}
			out[i] = dst

		case "UInt16":
			dst := &utils.UInt16Raster{NameSpace: nameSpace, NoData: nodata, Data: make([]uint16, width*height), Width: width, Height: height}
			fill := uint16(nodata)
			for j := range dst.Data {
				dst.Data[j] = fill
			}
			for _, t := range tiles {
				src := uint16(t.NoData)
				paint(t, width, height, func(di, si int) {
					v := binary.LittleEndian.Uint16(t.Data[si*2:])
					if v != src && dst.Data[di] == fill {
						dst.Data[di] = v
					}
				})
			}
			out[i] = dst

		case "Float32":
			dst := &utils.Float32Raster{NameSpace: nameSpace, NoData: nodata, Data: make([]float32, width*height), Width: width, Height: height}
			fill := float32(nodata)
			for j := range dst.Data {
				dst.Data[j] = fill
			}
			isFill := func(v float32) bool {
				return v == fill || math.IsNaN(float64(fill)) && math.IsNaN(float64(v))
			}
			for _, t := range tiles {
				src := float32(t.NoData)
				paint(t, width, height, func(di, si int) {
					v := math.Float32frombits(binary.LittleEndian.Uint32(t.Data[si*4:]))
					if v == src || math.IsNaN(float64(v)) {
						return
					}
					if isFill(dst.Data[di]) {
						dst.Data[di] = v
					}
				})
			}
			out[i] = dst

		default:
			return nil, fmt.Errorf("%s not implemented", tiles[0].Type)
		}
	}
	return out, nil
}

// paint calls set for every pixel of t that falls on the canvas.
func paint(t *FlexRaster, width, height int, set func(dstIdx, srcIdx int)) {
	for j := 0; j < t.Height; j++ {
		y := t.OffY + j
		if y < 0 || y >= height {
			continue
		}
		for i := 0; i < t.Width; i++ {
			x := t.OffX + i
			if x < 0 || x >= width {
				continue
			}
			set(y*width+x, j*t.Width+i)
		}
	}
}
