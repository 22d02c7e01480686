package descriptor

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/kailas-cloud/indexsync/internal/domain/entity"
)

// Converter renders one attribute value as index text.
type Converter func(v any) (string, error)

// Converters maps a declared attribute kind to its converter.
type Converters map[entity.Kind]Converter

// DefaultConverters renders dates and timestamps as date-only text.
func DefaultConverters() Converters {
	return Converters{
		entity.KindDate:     DateOnly,
		entity.KindDateTime: DateOnly,
	}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.DateTime,
	"2006-01-02T15:04:05",
	time.DateOnly,
}

// DateOnly renders a time value as "2006-01-02".
func DateOnly(v any) (string, error) {
	switch t := v.(type) {
	case time.Time:
		return t.Format(time.DateOnly), nil
	case *time.Time:
		if t == nil {
			return "", nil
		}
		return t.Format(time.DateOnly), nil
	case string:
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed.Format(time.DateOnly), nil
			}
		}
		return "", fmt.Errorf("not a date: %q", t)
	}
	return "", fmt.Errorf("not a date: %T", v)
}

// Text is the generic textual conversion.
func Text(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	case time.Time:
		return x.Format(time.RFC3339), nil
	case entity.Entity:
		return x.Key(), nil
	case fmt.Stringer:
		return x.String(), nil
	case bool:
		return strconv.FormatBool(x), nil
	case int:
		return strconv.Itoa(x), nil
	case int32:
		return strconv.FormatInt(int64(x), 10), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case uint64:
		return strconv.FormatUint(x, 10), nil
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case map[string]any:
		b, err := json.Marshal(x)
		if err != nil {
			return "", fmt.Errorf("encode map: %w", err)
		}
		return string(b), nil
	}
	return fmt.Sprint(v), nil
}

// convertValue renders a single attribute value, expanding lists into several values.
func (c Converters) convertValue(e entity.Entity, name string, v any) ([]string, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case []string:
		return append([]string(nil), x...), nil
	case []entity.Entity:
		out := make([]string, 0, len(x))
		for _, item := range x {
			out = append(out, item.Key())
		}
		return out, nil
	case []any:
		out := make([]string, 0, len(x))
		for _, item := range x {
			vals, err := c.convertValue(e, name, item)
			if err != nil {
				return nil, err
			}
			out = append(out, vals...)
		}
		return out, nil
	}

	conv := Text
	if fn, ok := c[entity.KindOf(e, name, v)]; ok {
		conv = fn
	}
	s, err := conv(v)
	if err != nil {
		return nil, fmt.Errorf("convert %s: %w", name, err)
	}
	return []string{s}, nil
}
