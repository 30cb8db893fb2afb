package expr

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cast"
)

// Func is a function callable from expressions. Arguments arrive normalized;
// the return value is normalized before use.
type Func func(args ...any) (any, error)

// Funcs is the allow-list of callable functions, keyed by name
type Funcs map[string]Func

// DefaultFuncs returns the built-in allow-list
func DefaultFuncs() Funcs {
	return Funcs{
		"len":    fnLen,
		"sha256": fnSHA256,
		"lower":  stringFunc("lower", strings.ToLower),
		"upper":  stringFunc("upper", strings.ToUpper),
		"trim":   stringFunc("trim", strings.TrimSpace),
		"string": fnString,
		"number": fnNumber,
		"json":   fnJSON,
		"keys":   fnKeys,
		"join":   fnJoin,
	}
}

// With returns a copy of the allow-list with fn registered under name
func (f Funcs) With(name string, fn Func) Funcs {
	out := make(Funcs, len(f)+1)
	for k, v := range f {
		out[k] = v
	}
	out[name] = fn
	return out
}

// Names returns the sorted function names in the allow-list
func (f Funcs) Names() []string {
	names := make([]string, 0, len(f))
	for name := range f {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func arity(name string, args []any, n int) error {
	if len(args) != n {
		return fmt.Errorf("%s expects %d argument(s), got %d", name, n, len(args))
	}
	return nil
}

func fnLen(args ...any) (any, error) {
	if err := arity("len", args, 1); err != nil {
		return nil, err
	}
	switch v := args[0].(type) {
	case nil:
		return float64(0), nil
	case string:
		return float64(utf8.RuneCountInString(v)), nil
	case []any:
		return float64(len(v)), nil
	case map[string]any:
		return float64(len(v)), nil
	default:
		return nil, fmt.Errorf("len: unsupported %s", typeName(v))
	}
}

// fnSHA256 returns the hex digest of the argument's string form
func fnSHA256(args ...any) (any, error) {
	if err := arity("sha256", args, 1); err != nil {
		return nil, err
	}
	sum := sha256.Sum256([]byte(Stringify(args[0])))
	return hex.EncodeToString(sum[:]), nil
}

func stringFunc(name string, fn func(string) string) Func {
	return func(args ...any) (any, error) {
		if err := arity(name, args, 1); err != nil {
			return nil, err
		}
		s, ok := args[0].(string)
		if !ok {
			return nil, fmt.Errorf("%s: expected string, got %s", name, typeName(args[0]))
		}
		return fn(s), nil
	}
}

func fnString(args ...any) (any, error) {
	if err := arity("string", args, 1); err != nil {
		return nil, err
	}
	return Stringify(args[0]), nil
}

func fnNumber(args ...any) (any, error) {
	if err := arity("number", args, 1); err != nil {
		return nil, err
	}
	f, err := cast.ToFloat64E(args[0])
	if err != nil {
		return nil, fmt.Errorf("number: %w", err)
	}
	return f, nil
}

func fnJSON(args ...any) (any, error) {
	if err := arity("json", args, 1); err != nil {
		return nil, err
	}
	data, err := json.Marshal(args[0])
	if err != nil {
		return nil, fmt.Errorf("json: %w", err)
	}
	return string(data), nil
}

func fnKeys(args ...any) (any, error) {
	if err := arity("keys", args, 1); err != nil {
		return nil, err
	}
	m, ok := args[0].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("keys: expected object, got %s", typeName(args[0]))
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]any, len(keys))
	for i, k := range keys {
		out[i] = k
	}
	return out, nil
}

func fnJoin(args ...any) (any, error) {
	if err := arity("join", args, 2); err != nil {
		return nil, err
	}
	items, ok := args[0].([]any)
	if !ok {
		return nil, fmt.Errorf("join: expected array, got %s", typeName(args[0]))
	}
	sep, ok := args[1].(string)
	if !ok {
		return nil, fmt.Errorf("join: expected string separator, got %s", typeName(args[1]))
	}
	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = Stringify(item)
	}
	return strings.Join(parts, sep), nil
}
