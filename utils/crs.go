package utils

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseEPSG extracts the EPSG code of a CRS identifier. It accepts
// EPSG:4326, urn:ogc:def:crs:EPSG::4326, urn:x-ogc:def:crs:EPSG:4326
// and http://www.opengis.net/gml/srs/epsg.xml#4326.
func ParseEPSG(crs string) (int, error) {
	s := strings.TrimSpace(crs)
	lower := strings.ToLower(s)
	var code string
	switch {
	case strings.HasPrefix(lower, "epsg:"):
		code = s[len("epsg:"):]
	case strings.HasPrefix(lower, "urn:ogc:def:crs:epsg:"), strings.HasPrefix(lower, "urn:x-ogc:def:crs:epsg:"):
		code = s[strings.LastIndex(s, ":")+1:]
	case strings.Contains(lower, "epsg.xml#"):
		code = s[strings.LastIndex(s, "#")+1:]
	default:
		return 0, fmt.Errorf("unsupported CRS identifier %s", crs)
	}
	n, err := strconv.Atoi(code)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid EPSG code in %s", crs)
	}
	return n, nil
}

// NormaliseCRS returns the EPSG:<code> form of crs, or crs itself
// when it carries no EPSG code.
func NormaliseCRS(crs string) string {
	code, err := ParseEPSG(crs)
	if err != nil {
		return crs
	}
	return "EPSG:" + strconv.Itoa(code)
}

func SameCRS(a, b string) bool {
	return strings.EqualFold(NormaliseCRS(a), NormaliseCRS(b))
}

// latLonCRS lists geographic CRSs whose authority axis order is
// latitude first.
var latLonCRS = map[int]bool{4326: true, 4283: true, 4258: true, 4269: true, 4167: true, 4230: true, 4612: true}

// SwapAxes reports whether a bbox given in crs under the given WMS
// version lists latitude before longitude.
func SwapAxes(version, crs string) bool {
	if version != "1.3.0" {
		return false
	}
	code, err := ParseEPSG(crs)
	return err == nil && latLonCRS[code]
}

// CRSSupported reports whether crs is one of supported, comparing
// EPSG codes.
func CRSSupported(supported []string, crs string) bool {
	for _, s := range supported {
		if SameCRS(s, crs) {
			return true
		}
	}
	return false
}
