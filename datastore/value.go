package datastore

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/deegree/ows/geometry"
	"github.com/pkg/errors"
)

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// DetectType picks a column type for a Go value. nil and
// unsupported values yield Unknown.
func DetectType(v interface{}) ColumnType {
	switch v.(type) {
	case int16, int8, uint8:
		return SmallInt
	case int, int32, uint16:
		return Integer
	case int64, uint32:
		return BigInt
	case float32:
		return Float
	case float64:
		return Double
	case time.Time:
		return Date
	case string:
		return Varchar
	case []byte:
		return Blob
	case geometry.Geometry:
		return GeometryColumn
	}
	return Unknown
}

// Coerce converts v to the Go type bound for a column of type t.
// Strings are parsed, numbers widened or narrowed. An Unknown
// target type is resolved with DetectType; values of unsupported
// types are passed through as their string form.
func Coerce(v interface{}, t ColumnType) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	if t == Unknown {
		t = DetectType(v)
	}

	switch t {
	case SmallInt, Integer, BigInt:
		n, err := toInt64(v)
		if err != nil {
			return nil, err
		}
		switch t {
		case SmallInt:
			if n < -32768 || n > 32767 {
				return nil, errors.Errorf("value %d out of smallint range", n)
			}
			return int16(n), nil
		case Integer:
			if n < -2147483648 || n > 2147483647 {
				return nil, errors.Errorf("value %d out of integer range", n)
			}
			return int32(n), nil
		}
		return n, nil
	case Float:
		f, err := toFloat64(v)
		return float32(f), err
	case Double:
		return toFloat64(v)
	case Date:
		return toTime(v)
	case Varchar:
		if s, ok := v.(string); ok {
			return s, nil
		}
		return toString(v), nil
	case Blob:
		switch b := v.(type) {
		case []byte:
			return b, nil
		case string:
			return []byte(b), nil
		}
		return nil, errors.Errorf("cannot use %T as blob", v)
	case GeometryColumn:
		if g, ok := v.(geometry.Geometry); ok {
			return g, nil
		}
		return nil, errors.Errorf("cannot use %T as geometry", v)
	}
	return toString(v), nil
}

func toInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case float32:
		return int64(n), nil
	case float64:
		// JSON numbers arrive as float64
		if n != float64(int64(n)) {
			return 0, errors.Errorf("value %v is not an integer", n)
		}
		return int64(n), nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		return i, errors.Wrapf(err, "parsing integer %q", n)
	}
	return 0, errors.Errorf("cannot convert %T to integer", v)
}

func toFloat64(v interface{}) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, errors.Wrapf(err, "parsing float %q", n)
	}
	if i, err := toInt64(v); err == nil {
		return float64(i), nil
	}
	return 0, errors.Errorf("cannot convert %T to float", v)
}

func toTime(v interface{}) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		for _, layout := range dateLayouts {
			if tm, err := time.Parse(layout, strings.TrimSpace(t)); err == nil {
				return tm, nil
			}
		}
		return time.Time{}, errors.Errorf("cannot parse date %q", t)
	}
	return time.Time{}, errors.Errorf("cannot convert %T to date", v)
}

func toString(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	case time.Time:
		return s.Format(time.RFC3339)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(s), 'f', -1, 32)
	}
	if i, err := toInt64(v); err == nil {
		return strconv.FormatInt(i, 10)
	}
	return fmt.Sprint(v)
}
