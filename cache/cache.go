package cache

/* cache stores rendered map tiles and coverage responses.
   Keys start with the geohash of the centre of the request area
   so that embedded stores keep neighbouring tiles together,
   followed by the longitude/latitude extent of the request so
   that every entry showing part of an area can be dropped when
   the source data changes. */

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/deegree/ows/geometry"
	"github.com/mmcloughlin/geohash"
	"github.com/pkg/errors"
)

var ErrCacheMiss = errors.New("cache: miss")

// KeyPrecision is the number of geohash characters leading
// every cache key, roughly a 38m x 19m cell.
const KeyPrecision = 8

// nonGeoPrefix leads keys of requests whose longitude/latitude
// extent is unknown.
const nonGeoPrefix = "_"

type TileCache interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
}

// Request describes a cacheable map or coverage request.
type Request struct {
	Namespace string
	Layers    []string
	Styles    []string
	CRS       string
	BBox      geometry.Envelope
	// Area is the longitude/latitude extent of BBox. It defaults
	// to BBox for geographic CRSs.
	Area      geometry.Envelope
	Width     int
	Height    int
	Format    string
	Extra     string
}

// Key builds the cache key of req: the geohash of the centre of
// the request area and the area itself, followed by the md5 of the
// request descriptor. Requests without a known area get the
// nonGeoPrefix instead.
func Key(req Request) string {
	desc := fmt.Sprintf("%s|%s|%s|%s|%s|%d|%d|%s|%s",
		req.Namespace,
		strings.Join(req.Layers, ","),
		strings.Join(req.Styles, ","),
		strings.ToUpper(req.CRS),
		req.BBox.String(),
		req.Width, req.Height,
		req.Format,
		req.Extra)
	buff := md5.Sum([]byte(desc))
	sum := hex.EncodeToString(buff[:])

	area := requestArea(req)
	if area.IsEmpty() {
		return nonGeoPrefix + "/" + sum
	}
	lon, lat := area.Centre()
	return geohash.EncodeWithPrecision(clampLat(lat), clampLon(lon), KeyPrecision) + "/" + area.String() + "/" + sum
}

func requestArea(req Request) geometry.Envelope {
	if req.Area != (geometry.Envelope{}) && !req.Area.IsEmpty() {
		return req.Area
	}
	if IsGeographic(req.CRS) && !req.BBox.IsEmpty() {
		return req.BBox
	}
	return geometry.EmptyEnvelope()
}

// keyArea returns the area recorded in key. ok is false for keys
// without area.
func keyArea(key string) (geometry.Envelope, bool) {
	parts := strings.Split(key, "/")
	if len(parts) != 3 {
		return geometry.Envelope{}, false
	}
	env, err := geometry.ParseBBox(parts[1])
	return env, err == nil
}

// IsGeographic reports whether crs uses longitude/latitude
// coordinates.
func IsGeographic(crs string) bool {
	switch strings.ToUpper(crs) {
	case "EPSG:4326", "CRS:84", "EPSG:4283", "EPSG:4258", "EPSG:4269":
		return true
	}
	return false
}

func clampLat(lat float64) float64 {
	return math.Max(-90, math.Min(90, lat))
}

func clampLon(lon float64) float64 {
	return math.Max(-180, math.Min(180, lon))
}

// NopCache never stores anything.
type NopCache struct{}

func (NopCache) Get(key string) ([]byte, error)                        { return nil, ErrCacheMiss }
func (NopCache) Set(key string, value []byte, ttl time.Duration) error { return nil }
func (NopCache) Delete(key string) error                               { return nil }
