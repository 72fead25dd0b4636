package common

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Params reads tool parameters. Values may come straight from an MCP call or
// from a pending action stored as JSON, so numbers can arrive as float64 and
// lists as []any.
type Params map[string]any

// String returns the trimmed string parameter, or "" when absent.
func (p Params) String(name string) (string, error) {
	v, ok := p[name]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%s must be a string", name)
	}
	return strings.TrimSpace(s), nil
}

// RequiredString is like String but fails when the value is empty.
func (p Params) RequiredString(name string) (string, error) {
	s, err := p.String(name)
	if err != nil {
		return "", err
	}
	if s == "" {
		return "", fmt.Errorf("%s is required", name)
	}
	return s, nil
}

// Int returns an integer parameter, or def when absent.
func (p Params) Int(name string, def int64) (int64, error) {
	v, ok := p[name]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("%s must be an integer", name)
		}
		return int64(n), nil
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case string:
		if strings.TrimSpace(n) == "" {
			return def, nil
		}
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%s must be an integer", name)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("%s must be an integer", name)
	}
}

// StringList accepts a comma separated string or an array of strings.
// Blank entries are dropped; an absent parameter yields nil.
func (p Params) StringList(name string) ([]string, error) {
	v, ok := p[name]
	if !ok || v == nil {
		return nil, nil
	}

	var raw []string
	switch list := v.(type) {
	case string:
		raw = strings.Split(list, ",")
	case []string:
		raw = list
	case []any:
		for i, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s[%d] must be a string", name, i)
			}
			raw = append(raw, s)
		}
	default:
		return nil, fmt.Errorf("%s must be a string or array of strings", name)
	}

	var out []string
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}
