package resolve

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/conduit-lang/opmeta/pkg/opmeta"
)

// ISOLayout is the canonical ISO-8601 form produced by the isoDate transform:
// UTC with millisecond precision, for example 2024-03-01T12:00:00.000Z.
const ISOLayout = "2006-01-02T15:04:05.000Z07:00"

// Apply coerces v with the named transform
func Apply(t opmeta.Transform, v any) (any, error) {
	switch t {
	case opmeta.TransformDate:
		return toTime(v)
	case opmeta.TransformISODate:
		if s, ok := v.(string); ok && isCanonicalISO(s) {
			return s, nil
		}
		ts, err := toTime(v)
		if err != nil {
			return nil, err
		}
		return ts.UTC().Format(ISOLayout), nil
	case opmeta.TransformNumber:
		return toNumber(v)
	case opmeta.TransformString:
		return toString(v)
	case opmeta.TransformBoolean:
		return cast.ToBoolE(v)
	default:
		return nil, fmt.Errorf("unknown transform %q", t)
	}
}

func isCanonicalISO(s string) bool {
	ts, err := time.Parse(ISOLayout, s)
	return err == nil && ts.UTC().Format(ISOLayout) == s
}

func toTime(v any) (time.Time, error) {
	switch val := v.(type) {
	case time.Time:
		return val, nil
	case string:
		s := strings.TrimSpace(val)
		if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return ts, nil
		}
		return cast.ToTimeInDefaultLocationE(s, time.UTC)
	case float64:
		// Numbers are epoch milliseconds.
		return time.UnixMilli(int64(val)).UTC(), nil
	case int, int64, json.Number:
		ms, err := cast.ToInt64E(val)
		if err != nil {
			return time.Time{}, err
		}
		return time.UnixMilli(ms).UTC(), nil
	default:
		return cast.ToTimeE(v)
	}
}

func toNumber(v any) (float64, error) {
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		if s == "" {
			return 0, fmt.Errorf("empty string is not a number")
		}
		return cast.ToFloat64E(s)
	}
	return cast.ToFloat64E(v)
}

func toString(v any) (string, error) {
	switch val := v.(type) {
	case time.Time:
		return val.UTC().Format(ISOLayout), nil
	case map[string]any, []any:
		data, err := json.Marshal(val)
		if err != nil {
			return "", err
		}
		return string(data), nil
	default:
		return cast.ToStringE(v)
	}
}
