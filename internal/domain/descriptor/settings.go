package descriptor

import (
	"reflect"

	"github.com/kailas-cloud/indexsync/internal/domain"
)

// MergeSettings deep-merges the index settings of descriptors sharing an index.
// A key holding different scalar values in two descriptors is a configuration error.
func MergeSettings(descs ...*Descriptor) (map[string]any, error) {
	merged := make(map[string]any)
	for _, d := range descs {
		if err := mergeInto(merged, d.IndexSettings, ""); err != nil {
			return nil, err
		}
	}
	return merged, nil
}

func mergeInto(dst, src map[string]any, prefix string) error {
	for k, v := range src {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}

		existing, ok := dst[k]
		if !ok {
			dst[k] = cloneValue(v)
			continue
		}

		left, leftMap := asMap(existing)
		right, rightMap := asMap(v)
		switch {
		case leftMap && rightMap:
			if err := mergeInto(left, right, path); err != nil {
				return err
			}
			dst[k] = left
		case !reflect.DeepEqual(existing, v):
			return &domain.SettingsConflictError{Path: path, Left: existing, Right: v}
		}
	}
	return nil
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			ks, ok := k.(string)
			if !ok {
				return nil, false
			}
			out[ks] = val
		}
		return out, true
	}
	return nil, false
}

func cloneValue(v any) any {
	m, ok := asMap(v)
	if !ok {
		return v
	}
	out := make(map[string]any, len(m))
	for k, val := range m {
		out[k] = cloneValue(val)
	}
	return out
}
