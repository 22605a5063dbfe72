package canon

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/roach88/nowhere/internal/ir"
)

// maxExactFloatInt is the largest integer a float64 represents exactly.
const maxExactFloatInt = 1 << 53

// Request builds a CanonicalRequest from loosely typed operation parameters.
//
// Normalization rules:
//   - keys are NFC-normalized, trimmed and lowercased; two keys that collide
//     after normalization are rejected as ambiguous
//   - string values are NFC-normalized with whitespace collapsed; case is kept
//     because parameter values may be case-sensitive
//   - integral floats within 2^53 become integers, other finite floats become
//     their shortest decimal string
//   - nil values are dropped (absent and null mean the same thing)
func Request(actorID, kind string, params map[string]any, correlationKey string, seed uint64) (ir.CanonicalRequest, error) {
	if actorID == "" {
		return ir.CanonicalRequest{}, malformed("actor_id", "must not be empty", nil)
	}
	for field, s := range map[string]string{"actor_id": actorID, "kind": kind, "correlation_key": correlationKey} {
		if !utf8.ValidString(s) {
			return ir.CanonicalRequest{}, malformed(field, "invalid UTF-8", nil)
		}
	}

	obj, err := normalizeObject("params", params)
	if err != nil {
		return ir.CanonicalRequest{}, err
	}

	return ir.CanonicalRequest{
		ActorID:        collapse(actorID),
		Kind:           Text(kind),
		Params:         obj,
		CorrelationKey: collapse(correlationKey),
		Seed:           seed,
	}, nil
}

func normalizeObject(path string, m map[string]any) (ir.IRObject, error) {
	obj := make(ir.IRObject, len(m))
	for k, v := range m {
		if !utf8.ValidString(k) {
			return nil, malformed(path, "invalid UTF-8 in key", nil)
		}
		key := Text(k)
		if key == "" {
			return nil, malformed(path, "empty key", nil)
		}
		if _, dup := obj[key]; dup {
			return nil, malformed(path+"."+key, "keys collide after normalization", nil)
		}
		val, keep, err := normalizeValue(path+"."+key, v)
		if err != nil {
			return nil, err
		}
		if keep {
			obj[key] = val
		}
	}
	return obj, nil
}

// normalizeValue converts v to its canonical IR form. keep is false for
// values that are dropped (nil).
func normalizeValue(path string, v any) (val ir.IRValue, keep bool, err error) {
	switch x := v.(type) {
	case nil:
		return nil, false, nil
	case string:
		return normalizeString(path, x)
	case ir.IRString:
		return normalizeString(path, string(x))
	case bool:
		return ir.IRBool(x), true, nil
	case ir.IRBool:
		return x, true, nil
	case int:
		return ir.IRInt(x), true, nil
	case int32:
		return ir.IRInt(x), true, nil
	case int64:
		return ir.IRInt(x), true, nil
	case ir.IRInt:
		return x, true, nil
	case uint:
		return normalizeUint(uint64(x)), true, nil
	case uint32:
		return ir.IRInt(x), true, nil
	case uint64:
		return normalizeUint(x), true, nil
	case float32:
		return normalizeFloat(path, float64(x))
	case float64:
		return normalizeFloat(path, x)
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return ir.IRInt(n), true, nil
		}
		f, err := x.Float64()
		if err != nil {
			return nil, false, malformed(path, "unparsable number", err)
		}
		return normalizeFloat(path, f)
	case []string:
		arr := make(ir.IRArray, 0, len(x))
		for i, s := range x {
			elem, _, err := normalizeString(fmt.Sprintf("%s[%d]", path, i), s)
			if err != nil {
				return nil, false, err
			}
			arr = append(arr, elem)
		}
		return arr, true, nil
	case []any:
		return normalizeList(path, x)
	case ir.IRArray:
		items := make([]any, len(x))
		for i, e := range x {
			items[i] = e
		}
		return normalizeList(path, items)
	case map[string]any:
		obj, err := normalizeObject(path, x)
		return obj, err == nil, err
	case map[string]string:
		m := make(map[string]any, len(x))
		for k, s := range x {
			m[k] = s
		}
		obj, err := normalizeObject(path, m)
		return obj, err == nil, err
	case ir.IRObject:
		m := make(map[string]any, len(x))
		for k, e := range x {
			m[k] = e
		}
		obj, err := normalizeObject(path, m)
		return obj, err == nil, err
	default:
		return nil, false, malformed(path, fmt.Sprintf("unsupported type %T", v), nil)
	}
}

func normalizeList(path string, items []any) (ir.IRValue, bool, error) {
	arr := make(ir.IRArray, 0, len(items))
	for i, e := range items {
		elem, keep, err := normalizeValue(fmt.Sprintf("%s[%d]", path, i), e)
		if err != nil {
			return nil, false, err
		}
		if keep {
			arr = append(arr, elem)
		}
	}
	return arr, true, nil
}

func normalizeString(path, s string) (ir.IRValue, bool, error) {
	if !utf8.ValidString(s) {
		return nil, false, malformed(path, "invalid UTF-8", nil)
	}
	return ir.IRString(collapse(s)), true, nil
}

func normalizeUint(n uint64) ir.IRValue {
	if n > math.MaxInt64 {
		return ir.IRString(strconv.FormatUint(n, 10))
	}
	return ir.IRInt(int64(n))
}

func normalizeFloat(path string, f float64) (ir.IRValue, bool, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, false, malformed(path, "non-finite number", nil)
	}
	if f == math.Trunc(f) && math.Abs(f) <= maxExactFloatInt {
		return ir.IRInt(int64(f)), true, nil
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	return ir.IRString(strings.ToLower(s)), true, nil
}
