package routetree

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// MaxSafeInteger is the largest integer accepted by route and query casting.
const MaxSafeInteger = 1<<53 - 1

// Query parameter kinds used in [QueryParam].
const (
	KindBool   byte = 'b'
	KindInt    byte = 'i'
	KindString byte = 's'
)

// QueryParam describes one field of a method's query contract.
type QueryParam struct {
	Name     string
	Kind     byte
	Optional bool
	Array    bool
}

// ToInteger parses a non-negative decimal integer no larger than MaxSafeInteger.
// Only ASCII digits are accepted: no sign, no whitespace, no exponent.
func ToInteger(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil || v > MaxSafeInteger {
		return 0, false
	}
	return int(v), true
}

// ToBoolean parses "true", "1" and "" as true and "false", "0" as false.
func ToBoolean(s string) (bool, bool) {
	switch s {
	case "true", "1", "":
		return true, true
	case "false", "0":
		return false, true
	default:
		return false, false
	}
}

func castValue(kind byte, s string) (any, bool) {
	switch kind {
	case KindBool:
		return ToBoolean(s)
	case KindInt:
		return ToInteger(s)
	default:
		return s, true
	}
}

// castRouteParams casts every declared integer route parameter.
func castRouteParams(r *http.Request, intParams []string, createError CreateError) (map[string]any, error) {
	result := make(map[string]any, len(intParams))
	for _, key := range intParams {
		value := pathParam(r, key)
		if value == "" {
			return nil, createError(http.StatusBadRequest, fmt.Sprintf("Missing required route parameter %s", key))
		}
		v, ok := ToInteger(value)
		if !ok {
			return nil, createError(http.StatusBadRequest, fmt.Sprintf("Invalid type of route parameter %s", key))
		}
		result[key] = v
	}
	return result, nil
}

// CastQueryParams casts raw query values against paramTypes.
//
// When the whole query is optional and values is empty it returns an empty,
// non-nil map. Array fields accept both "key[]" and "key"; an absent optional
// array is omitted and an absent required array becomes empty. Scalars given
// more than once are an invalid type.
func CastQueryParams(values url.Values, paramTypes []QueryParam, isOptional bool, createError CreateError) (map[string]any, error) {
	if isOptional && len(values) == 0 {
		return map[string]any{}, nil
	}
	result := make(map[string]any, len(paramTypes))
	for _, p := range paramTypes {
		if p.Array {
			raw, ok := values[p.Name+"[]"]
			if !ok {
				raw, ok = values[p.Name]
			}
			if !ok {
				if p.Optional {
					continue
				}
				result[p.Name] = []any{}
				continue
			}
			casted := make([]any, 0, len(raw))
			for _, s := range raw {
				v, ok := castValue(p.Kind, s)
				if !ok {
					return nil, createError(http.StatusBadRequest, fmt.Sprintf("Invalid type of query parameter %s", p.Name))
				}
				casted = append(casted, v)
			}
			result[p.Name] = casted
			continue
		}

		raw, ok := values[p.Name]
		if !ok {
			if p.Optional {
				continue
			}
			return nil, createError(http.StatusBadRequest, fmt.Sprintf("Missing required query parameter %s", p.Name))
		}
		if len(raw) != 1 {
			return nil, createError(http.StatusBadRequest, fmt.Sprintf("Invalid type of query parameter %s", p.Name))
		}
		v, ok := castValue(p.Kind, raw[0])
		if !ok {
			return nil, createError(http.StatusBadRequest, fmt.Sprintf("Invalid type of query parameter %s", p.Name))
		}
		result[p.Name] = v
	}
	return result, nil
}

// encodeCasted renders casted values back into canonical url.Values for the
// struct decoder.
func encodeCasted(casted map[string]any) url.Values {
	out := make(url.Values, len(casted))
	for key, v := range casted {
		switch v := v.(type) {
		case []any:
			vals := make([]string, 0, len(v))
			for _, e := range v {
				vals = append(vals, formatScalar(e))
			}
			out[key] = vals
		default:
			out[key] = []string{formatScalar(v)}
		}
	}
	return out
}

func formatScalar(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}
