package gdalprocess

// #include <stdlib.h>
// #include "gdal.h"
// #include "gdalwarper.h"
// #include "gdal_alg.h"
// #include "ogr_api.h"
// #include "ogr_srs_api.h"
// #include "cpl_string.h"
// #cgo pkg-config: gdal
// int
// warp_operation(GDALDatasetH hSrcDS, GDALDatasetH hDstDS, int band, int resampling)
// {
//        const char *srcProjRef;
//        int err;
//        GDALWarpOptions *psWOptions;
//
//        psWOptions = GDALCreateWarpOptions();
//        psWOptions->nBandCount = 1;
//        psWOptions->panSrcBands = (int *) CPLMalloc(sizeof(int) * 1);
//        psWOptions->panSrcBands[0] = band;
//        psWOptions->panDstBands = (int *) CPLMalloc(sizeof(int) * 1);
//        psWOptions->panDstBands[0] = 1;
//
//        srcProjRef = GDALGetProjectionRef(hSrcDS);
//        if(strlen(srcProjRef) == 0) {
//            srcProjRef = "GEOGCS[\"WGS 84\",DATUM[\"WGS_1984\",SPHEROID[\"WGS 84\",6378137,298.257223563,AUTHORITY[\"EPSG\",\"7030\"]],AUTHORITY[\"EPSG\",\"6326\"]],PRIMEM[\"Greenwich\",0,AUTHORITY[\"EPSG\",\"8901\"]],UNIT[\"degree\",0.0174532925199433,AUTHORITY[\"EPSG\",\"9122\"]],AUTHORITY[\"EPSG\",\"4326\"]]";
//        }
//
//        err = GDALReprojectImage(hSrcDS, srcProjRef, hDstDS, GDALGetProjectionRef(hDstDS), (GDALResampleAlg)resampling, 0.0, 0.0, NULL, NULL, psWOptions);
//        GDALDestroyWarpOptions(psWOptions);
//
//        return err;
// }
import "C"

import (
	"fmt"
	"log"
	"reflect"
	"strings"
	"unsafe"

	"github.com/deegree/ows/worker/rpc"
)

const SizeofUint16 = 2
const SizeofInt16 = 2
const SizeofFloat32 = 4

var GDALTypes = map[C.GDALDataType]string{0: "Unkown", 1: "Byte", 2: "UInt16", 3: "Int16",
	4: "UInt32", 5: "Int32", 6: "Float32", 7: "Float64",
	8: "CInt16", 9: "CInt32", 10: "CFloat32", 11: "CFloat64",
	12: "TypeCount"}

var resamplingAlgs = map[string]C.GDALResampleAlg{
	"":                 C.GRA_NearestNeighbour,
	"nearest":          C.GRA_NearestNeighbour,
	"nearest neighbor": C.GRA_NearestNeighbour,
	"bilinear":         C.GRA_Bilinear,
	"cubic":            C.GRA_Cubic,
	"cubicspline":      C.GRA_CubicSpline,
	"lanczos":          C.GRA_Lanczos,
	"average":          C.GRA_Average,
}

// ResamplingSupported reports whether name is a known interpolation.
func ResamplingSupported(name string) bool {
	_, ok := resamplingAlgs[strings.ToLower(name)]
	return ok
}

func initNoDataSlice(rType string, noDataValue float64, size int) []uint8 {
	switch rType {
	case "Byte":
		out := make([]uint8, size)
		fill := uint8(noDataValue)
		for i := 0; i < size; i++ {
			out[i] = fill
		}
		return out
	case "Int16":
		out := make([]int16, size)
		fill := int16(noDataValue)
		for i := 0; i < size; i++ {
			out[i] = fill
		}
		headr := *(*reflect.SliceHeader)(unsafe.Pointer(&out))
		headr.Len *= SizeofInt16
		headr.Cap *= SizeofInt16
		return *(*[]uint8)(unsafe.Pointer(&headr))
	case "UInt16":
		out := make([]uint16, size)
		fill := uint16(noDataValue)
		for i := 0; i < size; i++ {
			out[i] = fill
		}
		headr := *(*reflect.SliceHeader)(unsafe.Pointer(&out))
		headr.Len *= SizeofUint16
		headr.Cap *= SizeofUint16
		return *(*[]uint8)(unsafe.Pointer(&headr))
	case "Float32":
		out := make([]float32, size)
		fill := float32(noDataValue)
		for i := 0; i < size; i++ {
			out[i] = fill
		}
		headr := *(*reflect.SliceHeader)(unsafe.Pointer(&out))
		headr.Len *= SizeofFloat32
		headr.Cap *= SizeofFloat32
		return *(*[]uint8)(unsafe.Pointer(&headr))
	default:
		return []uint8{}
	}
}

// exportWKT turns an EPSG code or any definition accepted by
// OSRSetFromUserInput into WKT.
func exportWKT(crs string) (*C.char, error) {
	crsC := C.CString(crs)
	defer C.free(unsafe.Pointer(crsC))

	hSRS := C.OSRNewSpatialReference(nil)
	defer C.OSRDestroySpatialReference(hSRS)
	if C.OSRSetFromUserInput(hSRS, crsC) != C.OGRERR_NONE {
		return nil, fmt.Errorf("unknown CRS %s", crs)
	}
	var projWKT *C.char
	if C.OSRExportToWkt(hSRS, &projWKT) != C.OGRERR_NONE {
		return nil, fmt.Errorf("failed to export CRS %s", crs)
	}
	return projWKT, nil
}

// WarpRaster reprojects one band of in.Path into the grid described
// by in.Geot and in.CRS. Pixels not covered by the source keep the
// band nodata value.
func WarpRaster(in *rpc.WarpRequest, debug bool) (*rpc.WarpResult, error) {
	dump := func(msg interface{}) error {
		log.Println(
			"warp", in.Path,
			"band", in.Band,
			"width", in.Width,
			"height", in.Height,
			"geotransform", in.Geot,
			"crs", in.CRS,
			"error", msg,
		)
		return fmt.Errorf("%v", msg)
	}

	if in.Width <= 0 || in.Height <= 0 || len(in.Geot) != 6 {
		return nil, dump("invalid destination grid")
	}
	alg, ok := resamplingAlgs[strings.ToLower(in.Resampling)]
	if !ok {
		return nil, dump(fmt.Sprintf("unsupported resampling %q", in.Resampling))
	}
	band := in.Band
	if band <= 0 {
		band = 1
	}

	filePathCStr := C.CString(in.Path)
	defer C.free(unsafe.Pointer(filePathCStr))

	hSrcDS := C.GDALOpen(filePathCStr, C.GA_ReadOnly)
	if hSrcDS == nil {
		return nil, dump("GDALOpen() fail")
	}
	defer C.GDALClose(hSrcDS)

	bandH := C.GDALGetRasterBand(hSrcDS, C.int(band))
	if bandH == nil {
		return nil, dump("GDALGetRasterBand() fail")
	}
	nodata := float64(C.GDALGetRasterNoDataValue(bandH, nil))
	dType := C.GDALGetRasterDataType(bandH)
	rasterType := GDALTypes[dType]

	canvas := initNoDataSlice(rasterType, nodata, in.Width*in.Height)
	if len(canvas) == 0 {
		return nil, dump(fmt.Sprintf("raster type %s not supported", rasterType))
	}
	memStr := C.CString(fmt.Sprintf("MEM:::DATAPOINTER=%d,PIXELS=%d,LINES=%d,DATATYPE=%s", unsafe.Pointer(&canvas[0]), C.int(in.Width), C.int(in.Height), rasterType))
	defer C.free(unsafe.Pointer(memStr))
	hDstDS := C.GDALOpen(memStr, C.GA_Update)
	if hDstDS == nil {
		return nil, dump("GDALOpen(MEM) fail")
	}
	defer C.GDALClose(hDstDS)

	projWKT, err := exportWKT(in.CRS)
	if err != nil {
		return nil, dump(err)
	}
	defer C.CPLFree(unsafe.Pointer(projWKT))

	C.GDALSetProjection(hDstDS, projWKT)
	geot := make([]C.double, 6)
	for i, v := range in.Geot {
		geot[i] = C.double(v)
	}
	C.GDALSetGeoTransform(hDstDS, &geot[0])
	C.GDALSetRasterNoDataValue(C.GDALGetRasterBand(hDstDS, 1), C.double(nodata))

	cErr := C.warp_operation(hSrcDS, hDstDS, C.int(band), C.int(alg))
	if cErr != 0 {
		return nil, dump("warp_operation() fail")
	}

	if debug {
		dump("debug")
	}

	return &rpc.WarpResult{Data: canvas, Type: rasterType, NoData: nodata, Width: in.Width, Height: in.Height}, nil
}

// DatasetInfo describes the raster at path.
func DatasetInfo(path string) (*rpc.DatasetInfo, error) {
	pathC := C.CString(path)
	defer C.free(unsafe.Pointer(pathC))

	hDS := C.GDALOpen(pathC, C.GA_ReadOnly)
	if hDS == nil {
		return nil, fmt.Errorf("failed to open dataset %s", path)
	}
	defer C.GDALClose(hDS)

	info := &rpc.DatasetInfo{
		Path:   path,
		Width:  int(C.GDALGetRasterXSize(hDS)),
		Height: int(C.GDALGetRasterYSize(hDS)),
		Bands:  int(C.GDALGetRasterCount(hDS)),
	}

	var geot [6]C.double
	if C.GDALGetGeoTransform(hDS, &geot[0]) == C.CE_None {
		info.Geot = make([]float64, 6)
		for i := range geot {
			info.Geot[i] = float64(geot[i])
		}
	}
	info.Projection = C.GoString(C.GDALGetProjectionRef(hDS))

	if info.Bands > 0 {
		bandH := C.GDALGetRasterBand(hDS, 1)
		var hasNoData C.int
		info.NoData = float64(C.GDALGetRasterNoDataValue(bandH, &hasNoData))
		info.HasNoData = hasNoData != 0
		info.Type = GDALTypes[C.GDALGetRasterDataType(bandH)]
		info.Overviews = int(C.GDALGetOverviewCount(bandH))
	}
	return info, nil
}
