package utils

// #include <stdlib.h>
// #include "gdal.h"
// #include "ogr_srs_api.h"
// #cgo pkg-config: gdal
// static OGRSpatialReferenceH new_srs(const char *def)
// {
//        OGRSpatialReferenceH hSRS = OSRNewSpatialReference(NULL);
//        if(OSRSetFromUserInput(hSRS, def) != OGRERR_NONE) {
//            OSRDestroySpatialReference(hSRS);
//            return NULL;
//        }
// #if GDAL_VERSION_MAJOR >= 3
//        OSRSetAxisMappingStrategy(hSRS, OAMS_TRADITIONAL_GIS_ORDER);
// #endif
//        return hSRS;
// }
import "C"

import (
	"fmt"
	"math"
	"unsafe"

	"github.com/deegree/ows/geometry"
)

const edgeSamples = 21

// CoordTransform reprojects coordinates between two CRSs with x/y
// (longitude first) axis order.
type CoordTransform struct {
	src, dst C.OGRSpatialReferenceH
	trans    C.OGRCoordinateTransformationH
}

func NewCoordTransform(srcCRS, dstCRS string) (*CoordTransform, error) {
	srcC := C.CString(NormaliseCRS(srcCRS))
	defer C.free(unsafe.Pointer(srcC))
	dstC := C.CString(NormaliseCRS(dstCRS))
	defer C.free(unsafe.Pointer(dstC))

	t := &CoordTransform{}
	if t.src = C.new_srs(srcC); t.src == nil {
		return nil, fmt.Errorf("unknown CRS %s", srcCRS)
	}
	if t.dst = C.new_srs(dstC); t.dst == nil {
		t.Close()
		return nil, fmt.Errorf("unknown CRS %s", dstCRS)
	}
	if t.trans = C.OCTNewCoordinateTransformation(t.src, t.dst); t.trans == nil {
		t.Close()
		return nil, fmt.Errorf("no transformation from %s to %s", srcCRS, dstCRS)
	}
	return t, nil
}

func (t *CoordTransform) Close() {
	if t.trans != nil {
		C.OCTDestroyCoordinateTransformation(t.trans)
	}
	if t.dst != nil {
		C.OSRDestroySpatialReference(t.dst)
	}
	if t.src != nil {
		C.OSRDestroySpatialReference(t.src)
	}
}

// Transform returns the reprojected coords. Points that cannot be
// reprojected are dropped.
func (t *CoordTransform) Transform(coords [][2]float64) [][2]float64 {
	if len(coords) == 0 {
		return nil
	}
	xs := make([]C.double, len(coords))
	ys := make([]C.double, len(coords))
	zs := make([]C.double, len(coords))
	ok := make([]C.int, len(coords))
	for i, c := range coords {
		xs[i], ys[i] = C.double(c[0]), C.double(c[1])
	}
	C.OCTTransformEx(t.trans, C.int(len(coords)), &xs[0], &ys[0], &zs[0], &ok[0])

	out := make([][2]float64, 0, len(coords))
	for i := range xs {
		x, y := float64(xs[i]), float64(ys[i])
		if ok[i] == 0 || math.IsInf(x, 0) || math.IsInf(y, 0) || math.IsNaN(x) || math.IsNaN(y) {
			continue
		}
		out = append(out, [2]float64{x, y})
	}
	return out
}

// TransformEnvelope reprojects env from srcCRS to dstCRS, returning
// the bounding box of points sampled along its edges.
func TransformEnvelope(env geometry.Envelope, srcCRS, dstCRS string) (geometry.Envelope, error) {
	if SameCRS(srcCRS, dstCRS) {
		return env, nil
	}
	t, err := NewCoordTransform(srcCRS, dstCRS)
	if err != nil {
		return env, err
	}
	defer t.Close()

	edges := make([][2]float64, 0, 4*edgeSamples)
	for i := 0; i < edgeSamples; i++ {
		f := float64(i) / float64(edgeSamples-1)
		x := env.MinX + f*env.Width()
		y := env.MinY + f*env.Height()
		edges = append(edges, [2]float64{x, env.MinY}, [2]float64{x, env.MaxY}, [2]float64{env.MinX, y}, [2]float64{env.MaxX, y})
	}

	out := geometry.EmptyEnvelope()
	for _, c := range t.Transform(edges) {
		out = out.Merge(geometry.Envelope{MinX: c[0], MinY: c[1], MaxX: c[0], MaxY: c[1]})
	}
	if out.IsEmpty() {
		return env, fmt.Errorf("envelope %s cannot be transformed from %s to %s", env, srcCRS, dstCRS)
	}
	return out, nil
}
