package command

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
)

// Codec converts between a typed value and its wire text.
type Codec[T any] struct {
	Parse  func(raw string) (T, error)
	Format func(v T) (string, error)
}

// StringCodec passes text through unchanged.
func StringCodec() Codec[string] {
	return Codec[string]{
		Parse:  func(raw string) (string, error) { return raw, nil },
		Format: func(v string) (string, error) { return v, nil },
	}
}

// BoolCodec writes "1"/"0" and reads 1/0, ON/OFF or TRUE/FALSE in any case.
func BoolCodec() Codec[bool] {
	return Codec[bool]{
		Parse: func(raw string) (bool, error) {
			switch strings.ToUpper(raw) {
			case "1", "ON", "TRUE":
				return true, nil
			case "0", "OFF", "FALSE":
				return false, nil
			default:
				return false, fmt.Errorf("not a boolean: %q", raw)
			}
		},
		Format: func(v bool) (string, error) {
			if v {
				return "1", nil
			}

			return "0", nil
		},
	}
}

// IntCodec reads and writes decimal integers.
func IntCodec() Codec[int] {
	return Codec[int]{
		Parse: func(raw string) (int, error) {
			v, err := strconv.Atoi(raw)
			if err != nil {
				return 0, fmt.Errorf("not an integer: %q", raw)
			}

			return v, nil
		},
		Format: func(v int) (string, error) { return strconv.Itoa(v), nil },
	}
}

// FloatCodec reads any float notation and writes the shortest exact representation.
func FloatCodec() Codec[float64] {
	return Codec[float64]{
		Parse: func(raw string) (float64, error) {
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return 0, fmt.Errorf("not a float: %q", raw)
			}

			return v, nil
		},
		Format: func(v float64) (string, error) { return strconv.FormatFloat(v, 'g', -1, 64), nil },
	}
}

// DictCodec maps named keys to raw wire values, e.g. {"auto": "0", "manual": "1"}.
//
// Writing a key missing from mapping fails with ErrUnknownKey; reading a raw value
// that no key maps to fails with ErrUnmappedValue.
func DictCodec(mapping map[string]string) Codec[string] {
	mapping = maps.Clone(mapping)
	toKey := make(map[string]string, len(mapping))
	for k, raw := range mapping {
		toKey[raw] = k
	}
	keys := slices.Sorted(maps.Keys(mapping))

	return Codec[string]{
		Parse: func(raw string) (string, error) {
			k, ok := toKey[raw]
			if !ok {
				return "", fmt.Errorf("%w: %q", ErrUnmappedValue, raw)
			}

			return k, nil
		},
		Format: func(k string) (string, error) {
			raw, ok := mapping[k]
			if !ok {
				return "", fmt.Errorf("%w: %q, valid keys %v", ErrUnknownKey, k, keys)
			}

			return raw, nil
		},
	}
}
