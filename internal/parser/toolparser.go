// Package parser implements the two metric-parser families from spec
// section 4.5: a table-driven "key regex -> field" mini-DSL for vendor
// tool text output, and a hand-written Prometheus exposition-format
// tokenizer used by the remote collection strategy. Neither family does
// I/O; both take a byte slice and return structured values.
//
// Go has no macro system, so the tool-output DSL is expressed the way the
// rest of this module expresses declarative rule tables: a []Rule slice
// evaluated by one generic single-pass interpreter, rather than
// per-vendor hand-rolled regex loops.
package parser

import (
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// MaxToolOutputBytes bounds tool-output parsing (spec 4.5: "rejects
// inputs larger than 32 KiB").
const MaxToolOutputBytes = 32 * 1024

// ValueType selects how a Rule's captured text is coerced.
type ValueType int

const (
	ValueString ValueType = iota
	ValueFloat
)

// UnitConv rescales a parsed float value (e.g. permille -> percent,
// microwatts -> watts). Nil means no conversion.
type UnitConv func(float64) float64

// Rule is one mini-DSL entry: Key matches a line of tool output with
// exactly one capture group holding the value text; Value selects the
// coercion; Unit optionally rescales numeric values; Default, when
// non-empty, is used for a rule of either type when no line matches at
// all, and for ValueFloat also when the value text cannot be parsed.
type Rule struct {
	Name    string
	Key     *regexp.Regexp
	Value   ValueType
	Unit    UnitConv
	Default string
}

// MustKey compiles pattern into a Rule's Key field and panics on failure,
// intended for package-level var declarations of rule tables where a bad
// pattern is a programming error, not a runtime condition.
func MustKey(pattern string) *regexp.Regexp {
	return regexp.MustCompile(pattern)
}

// Fields is the mini-DSL's output: rule name -> matched (and
// unit-converted) text.
type Fields map[string]string

// Float returns the field as a float64, or def if absent/unparseable.
func (f Fields) Float(name string, def float64) float64 {
	s, ok := f[name]
	if !ok {
		return def
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return v
}

// String returns the field as-is, or def if absent.
func (f Fields) String(name, def string) string {
	if v, ok := f[name]; ok {
		return v
	}
	return def
}

// ParseToolOutput runs every rule over data in a single pass (one scan
// per line, all rules tried against that line), enforcing the 32 KiB
// input cap from spec 4.5. Oversized input is truncated to
// MaxToolOutputBytes and a debug log is emitted rather than an error,
// since partial tool output is still better than none.
func ParseToolOutput(data []byte, rules []Rule, logger *zap.Logger) Fields {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(data) > MaxToolOutputBytes {
		logger.Debug("tool output truncated", zap.Int("original_bytes", len(data)), zap.Int("cap_bytes", MaxToolOutputBytes))
		data = data[:MaxToolOutputBytes]
	}

	out := make(Fields, len(rules))
	matched := make(map[string]bool, len(rules))

	for _, line := range strings.Split(string(data), "\n") {
		for _, r := range rules {
			if matched[r.Name] {
				continue
			}
			m := r.Key.FindStringSubmatch(line)
			if m == nil || len(m) < 2 {
				continue
			}
			matched[r.Name] = true
			out[r.Name] = coerce(m[1], r)
		}
	}

	for _, r := range rules {
		if !matched[r.Name] && r.Default != "" {
			out[r.Name] = r.Default
		}
	}
	return out
}

func coerce(raw string, r Rule) string {
	raw = strings.TrimSpace(raw)
	if r.Value != ValueFloat {
		return raw
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		if r.Default != "" {
			return r.Default
		}
		return raw
	}
	if v < 0 {
		v = 0
	}
	if r.Unit != nil {
		v = r.Unit(v)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// MicrowattsToWatts converts a microwatt reading reported by some sysfs
// hwmon nodes into watts.
func MicrowattsToWatts(v float64) float64 { return v / 1_000_000 }

// PermilleToPercent converts a permille reading (as seen in Jetson sysfs
// load files) into a percentage.
func PermilleToPercent(v float64) float64 { return v / 10 }
