package parser

import (
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// MaxPrometheusBytes bounds remote-scrape body parsing (spec 4.5/8:
// "bounded to 10 MiB input; larger is truncated"; "exactly 10 MiB:
// accepted; 10 MiB + 1 byte: truncated with debug log, still parsed").
const MaxPrometheusBytes = 10 << 20

// Sample is one parsed Prometheus exposition line: a metric name, its
// label set, and a value. Timestamps (the optional third token) are
// accepted but discarded — this module treats all samples as "now",
// matching the collection engine's own freshness bookkeeping.
type Sample struct {
	Name   string
	Labels map[string]string
	Value  float64
}

// ParsePrometheusText tokenizes a restricted subset of the Prometheus
// exposition format (spec 4.5): lines of the form
// `metric_name{l1="v1",l2="v2"} value` or `metric_name value`, skipping
// comment lines (`#`) and blank lines. Unknown metric names are not an
// error here — the caller (the remote strategy's snapshot reconstruction)
// decides which families it understands and ignores the rest, per spec
// ("Unknown metric names are ignored without error").
func ParsePrometheusText(data []byte, logger *zap.Logger) []Sample {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(data) > MaxPrometheusBytes {
		logger.Debug("prometheus body truncated", zap.Int("original_bytes", len(data)), zap.Int("cap_bytes", MaxPrometheusBytes))
		data = data[:MaxPrometheusBytes]
	}

	var out []Sample
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		s, ok := parseLine(line)
		if !ok {
			continue
		}
		out = append(out, s)
	}
	return out
}

// parseLine parses one non-comment, non-blank exposition line using
// direct string slicing rather than a regex or a generic tokenizer, per
// spec 4.5's "label values are extracted by direct string slicing (no
// intermediate allocations per label)".
func parseLine(line string) (Sample, bool) {
	name := line
	labels := map[string]string{}
	rest := ""

	if brace := strings.IndexByte(line, '{'); brace >= 0 {
		end := strings.IndexByte(line[brace:], '}')
		if end < 0 {
			return Sample{}, false
		}
		end += brace
		name = strings.TrimSpace(line[:brace])
		labelBody := line[brace+1 : end]
		labels = parseLabels(labelBody)
		rest = strings.TrimSpace(line[end+1:])
	} else {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return Sample{}, false
		}
		name = fields[0]
		rest = strings.Join(fields[1:], " ")
	}

	if name == "" {
		return Sample{}, false
	}

	// rest is "value" or "value timestamp"; the timestamp is discarded.
	valueTok := rest
	if sp := strings.IndexByte(rest, ' '); sp >= 0 {
		valueTok = rest[:sp]
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(valueTok), 64)
	if err != nil {
		return Sample{}, false
	}

	return Sample{Name: name, Labels: labels, Value: value}, true
}

// parseLabels splits a label body ("l1=\"v1\",l2=\"v2\"") into a map by
// scanning for the next `key="` then the next unescaped `"`, rather than
// a regex, so each label value is extracted with one slice per label.
func parseLabels(body string) map[string]string {
	labels := make(map[string]string)
	i := 0
	for i < len(body) {
		eq := strings.IndexByte(body[i:], '=')
		if eq < 0 {
			break
		}
		eq += i
		key := strings.TrimSpace(body[i:eq])
		if eq+1 >= len(body) || body[eq+1] != '"' {
			break
		}
		valStart := eq + 2
		valEnd := valStart
		for valEnd < len(body) {
			if body[valEnd] == '"' && body[valEnd-1] != '\\' {
				break
			}
			valEnd++
		}
		if valEnd >= len(body) {
			break
		}
		val := strings.ReplaceAll(body[valStart:valEnd], `\"`, `"`)
		if key != "" {
			labels[key] = val
		}
		i = valEnd + 1
		for i < len(body) && (body[i] == ',' || body[i] == ' ') {
			i++
		}
	}
	return labels
}
