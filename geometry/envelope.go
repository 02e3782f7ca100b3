package geometry

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Envelope is an axis aligned bounding box. An envelope whose
// minimum exceeds its maximum on either axis is empty.
type Envelope struct {
	MinX float64 `json:"min_x"`
	MinY float64 `json:"min_y"`
	MaxX float64 `json:"max_x"`
	MaxY float64 `json:"max_y"`
}

func EmptyEnvelope() Envelope {
	return Envelope{MinX: math.Inf(1), MinY: math.Inf(1), MaxX: math.Inf(-1), MaxY: math.Inf(-1)}
}

// ParseBBox parses the "minx,miny,maxx,maxy" form used by
// OGC KVP requests.
func ParseBBox(s string) (Envelope, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return Envelope{}, fmt.Errorf("bbox must have 4 values, got %d", len(parts))
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Envelope{}, fmt.Errorf("invalid bbox value %q: %v", p, err)
		}
		v[i] = f
	}
	env := Envelope{MinX: v[0], MinY: v[1], MaxX: v[2], MaxY: v[3]}
	if env.IsEmpty() {
		return Envelope{}, fmt.Errorf("bbox minimum exceeds maximum: %s", s)
	}
	return env, nil
}

func (e Envelope) IsEmpty() bool {
	return e.MinX > e.MaxX || e.MinY > e.MaxY
}

func (e Envelope) Width() float64 {
	if e.IsEmpty() {
		return 0
	}
	return e.MaxX - e.MinX
}

func (e Envelope) Height() float64 {
	if e.IsEmpty() {
		return 0
	}
	return e.MaxY - e.MinY
}

func (e Envelope) Centre() (float64, float64) {
	return e.MinX + e.Width()/2, e.MinY + e.Height()/2
}

// Intersects reports whether the envelopes share at least
// one point. Touching edges count as intersecting.
func (e Envelope) Intersects(o Envelope) bool {
	if e.IsEmpty() || o.IsEmpty() {
		return false
	}
	return e.MinX <= o.MaxX && o.MinX <= e.MaxX && e.MinY <= o.MaxY && o.MinY <= e.MaxY
}

// Intersection returns the common area; ok is false when
// the envelopes are disjoint.
func (e Envelope) Intersection(o Envelope) (Envelope, bool) {
	if !e.Intersects(o) {
		return EmptyEnvelope(), false
	}
	return Envelope{
		MinX: math.Max(e.MinX, o.MinX),
		MinY: math.Max(e.MinY, o.MinY),
		MaxX: math.Min(e.MaxX, o.MaxX),
		MaxY: math.Min(e.MaxY, o.MaxY),
	}, true
}

func (e Envelope) Merge(o Envelope) Envelope {
	if e.IsEmpty() {
		return o
	}
	if o.IsEmpty() {
		return e
	}
	return Envelope{
		MinX: math.Min(e.MinX, o.MinX),
		MinY: math.Min(e.MinY, o.MinY),
		MaxX: math.Max(e.MaxX, o.MaxX),
		MaxY: math.Max(e.MaxY, o.MaxY),
	}
}

func (e Envelope) Contains(o Envelope) bool {
	if e.IsEmpty() || o.IsEmpty() {
		return false
	}
	return e.MinX <= o.MinX && e.MinY <= o.MinY && e.MaxX >= o.MaxX && e.MaxY >= o.MaxY
}

func (e Envelope) ContainsPoint(x, y float64) bool {
	return !e.IsEmpty() && x >= e.MinX && x <= e.MaxX && y >= e.MinY && y <= e.MaxY
}

// SwapAxes returns the envelope with x and y exchanged, used
// for WMS 1.3.0 requests in lat/lon axis order.
func (e Envelope) SwapAxes() Envelope {
	return Envelope{MinX: e.MinY, MinY: e.MinX, MaxX: e.MaxY, MaxY: e.MaxX}
}

func (e Envelope) String() string {
	return strconv.FormatFloat(e.MinX, 'f', -1, 64) + "," +
		strconv.FormatFloat(e.MinY, 'f', -1, 64) + "," +
		strconv.FormatFloat(e.MaxX, 'f', -1, 64) + "," +
		strconv.FormatFloat(e.MaxY, 'f', -1, 64)
}
