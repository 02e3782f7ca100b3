package utils

// #include <stdlib.h>
// #include "gdal.h"
// #cgo pkg-config: gdal
import "C"

import (
	"os"
	"path/filepath"
	"unsafe"
)

// leadingDrivers are the formats coverages are read from and
// GetCoverage writes. GDAL tries drivers in registration order, so
// they are moved to the front of the driver list.
var leadingDrivers = []string{"GTiff", "netCDF", "PNG"}

func InitGdal() {
	setDefaultEnv("GDAL_NETCDF_VERIFY_DIMS", "NO")
	setDefaultEnv("GDAL_CACHEMAX", "256")
	setDefaultEnv("GDAL_PAM_ENABLED", "NO")
	setDefaultEnv("GDAL_DISABLE_READDIR_ON_OPEN", "EMPTY_DIR")
	setDefaultEnv("GDAL_MAX_DATASET_POOL_SIZE", "10")

	if exe, err := os.Executable(); err == nil {
		setDefaultEnv("GDAL_DRIVER_PATH", filepath.Dir(exe))
	}

	C.GDALAllRegister()
	orderDrivers(leadingDrivers)
}

func setDefaultEnv(envVar string, defaultVal string) {
	if _, ok := os.LookupEnv(envVar); !ok {
		os.Setenv(envVar, defaultVal)
	}
}

// orderDrivers re-registers the available drivers named in first ahead
// of every other registered driver. Missing drivers are skipped.
func orderDrivers(first []string) {
	var lead []C.GDALDriverH
	for _, name := range first {
		cName := C.CString(name)
		drv := C.GDALGetDriverByName(cName)
		C.free(unsafe.Pointer(cName))
		if drv != nil {
			lead = append(lead, drv)
		}
	}

	var rest []C.GDALDriverH
	for C.GDALGetDriverCount() > 0 {
		drv := C.GDALGetDriver(0)
		C.GDALDeregisterDriver(drv)
		isLead := false
		for _, l := range lead {
			if l == drv {
				isLead = true
				break
			}
		}
		if !isLead {
			rest = append(rest, drv)
		}
	}

	for _, drv := range append(lead, rest...) {
		C.GDALRegisterDriver(drv)
	}
}

// DriverNames lists the short names of the registered GDAL drivers in
// the order they are tried.
func DriverNames() []string {
	n := int(C.GDALGetDriverCount())
	names := make([]string, 0, n)
	for i := 0; i < n; i++ {
		names = append(names, C.GoString(C.GDALGetDriverShortName(C.GDALGetDriver(C.int(i)))))
	}
	return names
}
