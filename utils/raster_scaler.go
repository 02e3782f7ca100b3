package utils

import (
	"fmt"
	"math"
)

// ScaleParams maps raw values v to bytes: v+Offset is clamped to
// [0, Clip] then multiplied by Scale. A zero Scale stretches [0, Clip]
// over [0, 254]. 0xFF is reserved for nodata.
type ScaleParams struct {
	Offset float64
	Scale  float64
	Clip   float64
}

func scaleValue(value float64, params ScaleParams) uint8 {
	value += params.Offset
	if value > params.Clip {
		value = params.Clip
	}
	if value < 0 {
		value = 0
	}
	if params.Scale == 0 {
		if params.Clip <= 0 {
			return 0
		}
		value = value * 254.0 / params.Clip
	} else {
		value *= params.Scale
	}
	return uint8(math.Min(value, 254))
}

func scale(r Raster, params ScaleParams) (*ByteRaster, error) {
	switch t := r.(type) {
	case *ByteRaster:
		out := &ByteRaster{NameSpace: t.NameSpace, NoData: 0xFF, Data: make([]uint8, len(t.Data)), Width: t.Width, Height: t.Height}
		noData := uint8(t.NoData)
		for i, value := range t.Data {
			if value == noData {
				out.Data[i] = 0xFF
			} else {
				out.Data[i] = scaleValue(float64(value), params)
			}
		}
		return out, nil

	case *Int16Raster:
		out := &ByteRaster{NameSpace: t.NameSpace, NoData: 0xFF, Data: make([]uint8, len(t.Data)), Width: t.Width, Height: t.Height}
		noData := int16(t.NoData)
		for i, value := range t.Data {
			if value == noData {
				out.Data[i] = 0xFF
			} else {
				out.Data[i] = scaleValue(float64(value), params)
			}
		}
		return out, nil

	case *UInt16Raster:
		out := &ByteRaster{NameSpace: t.NameSpace, NoData: 0xFF, Data: make([]uint8, len(t.Data)), Width: t.Width, Height: t.Height}
		noData := uint16(t.NoData)
		for i, value := range t.Data {
			if value == noData {
				out.Data[i] = 0xFF
			} else {
				out.Data[i] = scaleValue(float64(value), params)
			}
		}
		return out, nil

	case *Float32Raster:
		out := &ByteRaster{NameSpace: t.NameSpace, NoData: 0xFF, Data: make([]uint8, len(t.Data)), Width: t.Width, Height: t.Height}
		noData := float32(t.NoData)
		for i, value := range t.Data {
			if value == noData || math.IsNaN(float64(value)) {
				out.Data[i] = 0xFF
			} else {
				out.Data[i] = scaleValue(float64(value), params)
			}
		}
		return out, nil

	default:
		return &ByteRaster{}, fmt.Errorf("Raster type not implemented")
	}
}

func Scale(rs []Raster, params ScaleParams) ([]*ByteRaster, error) {
	out := make([]*ByteRaster, len(rs))

	for i, r := range rs {
		br, err := scale(r, params)
		if err != nil {
			return out, err
		}
		out[i] = br
	}

	return out, nil
}
