package utils

// #include <stdlib.h>
// #include "gdal.h"
// #include "ogr_srs_api.h"
// #cgo pkg-config: gdal
import "C"

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"io/ioutil"
	"os"
	"strings"
	"unsafe"
)

type Raster interface {
	GetNoData() float64
	Size() (int, int)
}

type ByteRaster struct {
	NameSpace     string
	Data          []uint8
	Height, Width int
	NoData        float64
}

func (r *ByteRaster) GetNoData() float64 { return r.NoData }
func (r *ByteRaster) Size() (int, int)   { return r.Width, r.Height }

type Int16Raster struct {
	NameSpace     string
	Data          []int16
	Height, Width int
	NoData        float64
}

func (r *Int16Raster) GetNoData() float64 { return r.NoData }
func (r *Int16Raster) Size() (int, int)   { return r.Width, r.Height }

type UInt16Raster struct {
	NameSpace     string
	Data          []uint16
	Height, Width int
	NoData        float64
}

func (r *UInt16Raster) GetNoData() float64 { return r.NoData }
func (r *UInt16Raster) Size() (int, int)   { return r.Width, r.Height }

type Float32Raster struct {
	NameSpace     string
	Data          []float32
	Height, Width int
	NoData        float64
}

func (r *Float32Raster) GetNoData() float64 { return r.NoData }
func (r *Float32Raster) Size() (int, int)   { return r.Width, r.Height }

func rasterType(r Raster) string {
	switch r.(type) {
	case *ByteRaster:
		return "Byte"
	case *Int16Raster:
		return "Int16"
	case *UInt16Raster:
		return "UInt16"
	case *Float32Raster:
		return "Float32"
	}
	return ""
}

func rasterNameSpace(r Raster) string {
	switch t := r.(type) {
	case *ByteRaster:
		return t.NameSpace
	case *Int16Raster:
		return t.NameSpace
	case *UInt16Raster:
		return t.NameSpace
	case *Float32Raster:
		return t.NameSpace
	}
	return ""
}

// EncodePNG encodes the rendering of br as PNG.
func EncodePNG(br []*ByteRaster, palette *Palette) ([]byte, error) {
	canvas, err := RenderImage(br, palette)
	if err != nil {
		return nil, err
	}
	buf := new(bytes.Buffer)
	err = png.Encode(buf, canvas)
	return buf.Bytes(), err
}

// RenderImage renders one scaled band through palette, or grey when
// palette is nil, or three bands as RGB. 0xFF marks nodata and is
// left transparent.
func RenderImage(br []*ByteRaster, palette *Palette) (*image.RGBA, error) {
	if len(br) == 0 {
		return nil, fmt.Errorf("no bands to encode")
	}
	canvas := image.NewRGBA(image.Rect(0, 0, br[0].Width, br[0].Height))

	switch len(br) {
	case 1:
		plt, err := GradientRGBAPalette(palette)
		if err != nil {
			return nil, err
		}
		for i, val := range br[0].Data {
			if val == 0xFF {
				continue
			}
			start := i * 4
			if plt != nil {
				c := plt[val]
				canvas.Pix[start] = c.R
				canvas.Pix[start+1] = c.G
				canvas.Pix[start+2] = c.B
				canvas.Pix[start+3] = c.A
			} else {
				canvas.Pix[start] = val
				canvas.Pix[start+1] = val
				canvas.Pix[start+2] = val
				canvas.Pix[start+3] = 0xff
			}
		}

	case 3:
		rasterR := br[0]
		rasterG := br[1]
		rasterB := br[2]

		if rasterR == nil || rasterG == nil || rasterB == nil {
			return nil, fmt.Errorf("At least one of the bands is nil")
		}

		for i := 0; i < rasterR.Width*rasterR.Height; i++ {
			if rasterR.Data[i] != 0xFF || rasterG.Data[i] != 0xFF || rasterB.Data[i] != 0xFF {
				start := i * 4
				canvas.Pix[start] = rasterR.Data[i]
				canvas.Pix[start+1] = rasterG.Data[i]
				canvas.Pix[start+2] = rasterB.Data[i]
				canvas.Pix[start+3] = 0xff
			}
		}

	default:
		return nil, fmt.Errorf("Cannot encode other than 1 or 3 namespaces into a PNG: Received %d", len(br))
	}

	return canvas, nil
}

// ValidateRasterSlice checks that all rasters share one type and
// size.
func ValidateRasterSlice(rs []Raster) (int, int, string, error) {
	var width, height int
	var rType string

	for _, r := range rs {
		t := rasterType(r)
		if t == "" {
			return 0, 0, "", fmt.Errorf("Raster type not implemented")
		}
		if rType == "" {
			rType = t
		} else if rType != t {
			return 0, 0, "", fmt.Errorf("Mixed types")
		}

		w, h := r.Size()
		if width == 0 && height == 0 {
			width, height = w, h
		} else if width != w || height != h {
			return 0, 0, "", fmt.Errorf("Mixed raster sizes")
		}
	}

	if width <= 0 || height <= 0 {
		return 0, 0, "", fmt.Errorf("data unavailable")
	}
	return width, height, rType, nil
}

var GDALTypes = map[string]C.GDALDataType{"Unkown": 0, "Byte": 1, "UInt16": 2, "Int16": 3,
	"UInt32": 4, "Int32": 5, "Float32": 6, "Float64": 7}

func GetDriverNameFromFormat(format string) (string, error) {
	switch strings.ToLower(format) {
	case "geotiff", "gtiff", "image/tiff":
		return "GTiff", nil
	case "netcdf":
		return "netCDF", nil
	}
	return "", fmt.Errorf("Unsupported encoding format: %v", format)
}

func driverOptions(driverName string) []string {
	switch driverName {
	case "GTiff":
		return []string{"COMPRESS=DEFLATE", "TILED=YES", "BIGTIFF=IF_SAFER", "INTERLEAVE=BAND"}
	case "netCDF":
		return []string{"COMPRESS=DEFLATE", "ZLEVEL=6"}
	}
	return nil
}

// EncodeGdal writes rs as the bands of a file in format, georeferenced
// by geot in crs, and returns the file content.
func EncodeGdal(tempDir, format string, geot []float64, crs string, rs []Raster) ([]byte, error) {
	width, height, rType, err := ValidateRasterSlice(rs)
	if err != nil {
		return nil, fmt.Errorf("Error validating raster: %v", err)
	}
	if len(geot) != 6 {
		return nil, fmt.Errorf("invalid geotransform %v", geot)
	}

	driverName, err := GetDriverNameFromFormat(format)
	if err != nil {
		return nil, err
	}
	driverNameC := C.CString(driverName)
	defer C.free(unsafe.Pointer(driverNameC))
	hDriver := C.GDALGetDriverByName(driverNameC)
	if hDriver == nil {
		return nil, fmt.Errorf("GDAL driver %s not available", driverName)
	}

	var optsC []*C.char
	for _, opt := range driverOptions(driverName) {
		o := C.CString(opt)
		defer C.free(unsafe.Pointer(o))
		optsC = append(optsC, o)
	}
	// NULL pointer is used to terminate the point array by gdal
	optsC = append(optsC, nil)

	tempFileHandle, err := ioutil.TempFile(tempDir, "raster_")
	if err != nil {
		return nil, fmt.Errorf("failed to create raster temp file: %v", err)
	}
	tempFileHandle.Close()
	tempFile := tempFileHandle.Name()
	defer os.Remove(tempFile)

	tempFileC := C.CString(tempFile)
	defer C.free(unsafe.Pointer(tempFileC))
	hDstDS := C.GDALCreate(hDriver, tempFileC, C.int(width), C.int(height), C.int(len(rs)), GDALTypes[rType], &optsC[0])
	if hDstDS == nil {
		return nil, fmt.Errorf("Error creating raster")
	}

	if err := setDatasetGeoreference(hDstDS, geot, crs); err != nil {
		C.GDALClose(hDstDS)
		return nil, err
	}

	longNameC := C.CString("long_name")
	defer C.free(unsafe.Pointer(longNameC))

	for i, r := range rs {
		hBand := C.GDALGetRasterBand(hDstDS, C.int(i+1))
		C.GDALSetRasterNoDataValue(hBand, C.double(r.GetNoData()))
		if ns := rasterNameSpace(r); ns != "" {
			nsC := C.CString(ns)
			C.GDALSetMetadataItem(C.GDALMajorObjectH(hBand), longNameC, nsC, nil)
			C.GDALSetDescription(C.GDALMajorObjectH(hBand), nsC)
			C.free(unsafe.Pointer(nsC))
		}

		var gerr C.CPLErr
		switch t := r.(type) {
		case *ByteRaster:
			gerr = C.GDALRasterIO(hBand, C.GF_Write, 0, 0, C.int(width), C.int(height), unsafe.Pointer(&t.Data[0]), C.int(width), C.int(height), C.GDT_Byte, 0, 0)
		case *Int16Raster:
			gerr = C.GDALRasterIO(hBand, C.GF_Write, 0, 0, C.int(width), C.int(height), unsafe.Pointer(&t.Data[0]), C.int(width), C.int(height), C.GDT_Int16, 0, 0)
		case *UInt16Raster:
			gerr = C.GDALRasterIO(hBand, C.GF_Write, 0, 0, C.int(width), C.int(height), unsafe.Pointer(&t.Data[0]), C.int(width), C.int(height), C.GDT_UInt16, 0, 0)
		case *Float32Raster:
			gerr = C.GDALRasterIO(hBand, C.GF_Write, 0, 0, C.int(width), C.int(height), unsafe.Pointer(&t.Data[0]), C.int(width), C.int(height), C.GDT_Float32, 0, 0)
		}
		if gerr != 0 {
			C.GDALClose(hDstDS)
			return nil, fmt.Errorf("Error writing raster band: %d", i)
		}
	}
	C.GDALClose(hDstDS)

	return ioutil.ReadFile(tempFile)
}

func setDatasetGeoreference(hDS C.GDALDatasetH, geot []float64, crs string) error {
	crsC := C.CString(NormaliseCRS(crs))
	defer C.free(unsafe.Pointer(crsC))

	hSRS := C.OSRNewSpatialReference(nil)
	defer C.OSRDestroySpatialReference(hSRS)
	if C.OSRSetFromUserInput(hSRS, crsC) != C.OGRERR_NONE {
		return fmt.Errorf("unknown CRS %s", crs)
	}
	var projWKT *C.char
	C.OSRExportToWkt(hSRS, &projWKT)
	defer C.CPLFree(unsafe.Pointer(projWKT))
	C.GDALSetProjection(hDS, projWKT)

	geotC := make([]C.double, 6)
	for i, v := range geot {
		geotC[i] = C.double(v)
	}
	C.GDALSetGeoTransform(hDS, &geotC[0])
	return nil
}
