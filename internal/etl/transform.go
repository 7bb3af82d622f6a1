package etl

import (
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rbhughes/old-purrio-geographix/internal/domain"
)

// Transform kinds
const (
	KindString    = "string"
	KindNumber    = "number"
	KindDate      = "date"
	KindObject    = "object"
	KindBlobToHex = "blob_to_hex"
)

// dateLayouts covers the ISO 8601 forms found in legacy date columns.
// Seconds may carry a fraction in every layout that has them.
var dateLayouts = []struct {
	layout string
	zoned  bool
}{
	{"2006-01-02T15:04:05Z07:00", true},
	{"2006-01-02 15:04:05Z07:00", true},
	{"2006-01-02T15:04Z07:00", true},
	{"2006-01-02T15:04:05", false},
	{"2006-01-02 15:04:05", false},
	{"2006-01-02T15:04", false},
	{"2006-01-02 15:04", false},
	{"2006-01-02T15", false},
	{"2006-01-02", false},
	{"20060102T150405", false},
	{"20060102T1504", false},
	{"20060102", false},
}

// KindOf returns the transform kind declared by x. An explicit blob_to_hex
// function wins over the column type.
func KindOf(x domain.Xform) string {
	if x.Xform == KindBlobToHex {
		return KindBlobToHex
	}
	return x.TSType
}

// Transform normalizes v according to kind. Values that cannot be
// converted become nil. A kind without an implementation returns v
// unchanged along with ErrUnknownTransform; the error is a warning and the
// returned value is still usable.
func Transform(kind string, v any) (any, error) {
	if v == nil {
		return nil, nil
	}

	switch kind {
	case KindString:
		return stripControl(stringify(v)), nil
	case KindNumber:
		return toNumber(v), nil
	case KindDate:
		return toDate(v), nil
	case KindBlobToHex:
		b, ok := v.([]byte)
		if !ok {
			return nil, nil
		}
		return hex.EncodeToString(b), nil
	case KindObject:
		return nil, fmt.Errorf("%w: %s value %T dropped", domain.ErrUnknownTransform, kind, v)
	default:
		return v, fmt.Errorf("%w: %q", domain.ErrUnknownTransform, kind)
	}
}

func stringify(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	case time.Time:
		return s.Format(time.DateTime)
	default:
		return fmt.Sprint(v)
	}
}

// stripControl removes C0, DEL and C1 control characters.
func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r <= 0x1f || (r >= 0x7f && r <= 0x9f) {
			return -1
		}
		return r
	}, s)
}

func toNumber(v any) any {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int16:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint8:
		f = float64(n)
	case bool:
		if n {
			f = 1
		}
	default:
		s := strings.TrimSpace(stringify(v))
		if s == "" {
			return nil
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil
		}
		f = parsed
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return f
}

// toDate normalizes to ISO 8601. Times read without a zone stay without
// one; driver time values are wall-clock times and are treated the same.
func toDate(v any) any {
	if t, ok := v.(time.Time); ok {
		return isoFormat(t, false)
	}

	s := strings.TrimSpace(stringify(v))
	for _, l := range dateLayouts {
		if t, err := time.Parse(l.layout, s); err == nil {
			return isoFormat(t, l.zoned)
		}
	}
	return nil
}

// isoFormat renders t as YYYY-MM-DDTHH:MM:SS with microseconds when
// non-zero and a numeric offset when zoned.
func isoFormat(t time.Time, zoned bool) string {
	layout := "2006-01-02T15:04:05"
	if t.Nanosecond()/1000 != 0 {
		layout += ".000000"
	}
	if zoned {
		layout += "-07:00"
	}
	return t.Format(layout)
}
