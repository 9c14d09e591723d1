package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tetratelabs/wazero/api"
)

// encodeArg parses value as a wasm value of type t.
func encodeArg(value string, t api.ValueType) (uint64, error) {
	value = strings.TrimSpace(value)
	switch t {
	case api.ValueTypeI32:
		v, err := strconv.ParseInt(value, 0, 32)
		if err != nil {
			// accept unsigned spellings of large i32 values
			u, uerr := strconv.ParseUint(value, 0, 32)
			if uerr != nil {
				return 0, err
			}
			return uint64(uint32(u)), nil
		}
		return api.EncodeI32(int32(v)), nil
	case api.ValueTypeI64:
		v, err := strconv.ParseInt(value, 0, 64)
		if err != nil {
			u, uerr := strconv.ParseUint(value, 0, 64)
			if uerr != nil {
				return 0, err
			}
			return u, nil
		}
		return api.EncodeI64(v), nil
	case api.ValueTypeF32:
		v, err := strconv.ParseFloat(value, 32)
		if err != nil {
			return 0, err
		}
		return api.EncodeF32(float32(v)), nil
	case api.ValueTypeF64:
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0, err
		}
		return api.EncodeF64(v), nil
	}
	return 0, fmt.Errorf("unsupported parameter type %s", api.ValueTypeName(t))
}

// encodeArgs fills a value stack of the given size from string arguments.
func encodeArgs(values []string, params []api.ValueType, size int) ([]uint64, error) {
	if len(values) != len(params) {
		return nil, fmt.Errorf("expected %d arguments, got %d", len(params), len(values))
	}
	stack := make([]uint64, max(size, len(params)))
	for i, p := range params {
		v, err := encodeArg(values[i], p)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		stack[i] = v
	}
	return stack, nil
}

func decodeResult(v uint64, t api.ValueType) string {
	switch t {
	case api.ValueTypeI32:
		return strconv.FormatInt(int64(api.DecodeI32(v)), 10)
	case api.ValueTypeI64:
		return strconv.FormatInt(int64(v), 10)
	case api.ValueTypeF32:
		return strconv.FormatFloat(float64(api.DecodeF32(v)), 'g', -1, 32)
	case api.ValueTypeF64:
		return strconv.FormatFloat(api.DecodeF64(v), 'g', -1, 64)
	}
	return fmt.Sprintf("%#x", v)
}

func decodeResults(stack []uint64, results []api.ValueType) string {
	out := make([]string, len(results))
	for i, t := range results {
		out[i] = decodeResult(stack[i], t)
	}
	return strings.Join(out, ", ")
}

func signature(name string, params, results []api.ValueType) string {
	ps := make([]string, len(params))
	for i, p := range params {
		ps[i] = api.ValueTypeName(p)
	}
	s := name + "(" + strings.Join(ps, ", ") + ")"
	if len(results) > 0 {
		rs := make([]string, len(results))
		for i, r := range results {
			rs[i] = api.ValueTypeName(r)
		}
		s += " -> " + strings.Join(rs, ", ")
	}
	return s
}

func splitArgs(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return strings.Split(s, ",")
}
