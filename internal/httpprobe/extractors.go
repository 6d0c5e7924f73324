package httpprobe

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Status is the health of a probed endpoint.
type Status string

const (
	StatusUp       Status = "up"
	StatusDown     Status = "down"
	StatusDegraded Status = "degraded"

	// StatusUnknown means the response could not be interpreted.
	StatusUnknown Status = "unknown"
)

func (s Status) String() string {
	return string(s)
}

// ParseStatus parses a status name, case-insensitively.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusUp, StatusDown, StatusDegraded, StatusUnknown:
		return st, nil
	}
	return "", fmt.Errorf("unknown status %q (want up, down, degraded or unknown)", s)
}

// Extractor determines a [Status] from a response body and status code.
// It must be a pure function.
type Extractor func(body []byte, statusCode int) Status

// HTTPStatusExtractor maps 2xx to up, 4xx to degraded and anything else to
// down, ignoring the body.
var HTTPStatusExtractor Extractor = func(_ []byte, statusCode int) Status {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return StatusUp
	case statusCode >= 400 && statusCode < 500:
		return StatusDegraded
	default:
		return StatusDown
	}
}

// JSONFieldExtractor reads the JSON field at a dot-separated path, e.g.
// "data.health.status", and maps its value with the usual health-check
// vocabulary ("ok", "healthy", "pass" and friends are up; "degraded",
// "warning" and friends are degraded; anything else is down). Booleans and
// the numbers 0 and 1 count as false and true.
//
// A body that is not JSON, or has no scalar at path, is unknown.
func JSONFieldExtractor(path string) Extractor {
	parts := strings.Split(path, ".")

	return func(body []byte, _ int) Status {
		var data any
		if err := json.Unmarshal(body, &data); err != nil {
			return StatusUnknown
		}

		value := extractJSONPath(data, parts)
		if value == "" {
			return StatusUnknown
		}
		return mapStringToStatus(value)
	}
}

func extractJSONPath(data any, parts []string) string {
	current := data

	for _, part := range parts {
		obj, ok := current.(map[string]any)
		if !ok {
			return ""
		}
		current, ok = obj[part]
		if !ok {
			return ""
		}
	}

	switch v := current.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		switch v {
		case 0:
			return "false"
		case 1:
			return "true"
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

func mapStringToStatus(s string) Status {
	switch strings.ToLower(s) {
	case "ok", "healthy", "up", "active", "running", "pass", "passed", "true", "green", "none", "operational":
		return StatusUp
	case "degraded", "warning", "partial", "yellow", "amber":
		return StatusDegraded
	default:
		return StatusDown
	}
}

// RegexExtractor matches the body against pattern, which must have a capture
// group, and maps the first group like [JSONFieldExtractor] maps a field.
// No match is unknown.
func RegexExtractor(pattern string) (Extractor, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	if re.NumSubexp() < 1 {
		return nil, fmt.Errorf("pattern %q has no capture group", pattern)
	}

	return func(body []byte, _ int) Status {
		m := re.FindSubmatch(body)
		if len(m) < 2 {
			return StatusUnknown
		}
		return mapStringToStatus(string(m[1]))
	}, nil
}

// ContainsExtractor reports up when the body contains text
// (case-insensitively) and down otherwise.
func ContainsExtractor(text string) Extractor {
	lower := strings.ToLower(text)
	return func(body []byte, _ int) Status {
		if strings.Contains(strings.ToLower(string(body)), lower) {
			return StatusUp
		}
		return StatusDown
	}
}

// FirstMatch tries extractors in order and returns the first result that is
// not [StatusUnknown].
func FirstMatch(extractors ...Extractor) Extractor {
	return func(body []byte, statusCode int) Status {
		for _, extract := range extractors {
			if status := extract(body, statusCode); status != StatusUnknown {
				return status
			}
		}
		return StatusUnknown
	}
}

// DefaultExtractor reads a top-level "status" JSON field and falls back to
// the HTTP status code.
var DefaultExtractor = FirstMatch(
	JSONFieldExtractor("status"),
	HTTPStatusExtractor,
)

// ParseExtractor builds an [Extractor] from its shorthand:
//
//	default          DefaultExtractor (also the empty string)
//	http             HTTPStatusExtractor
//	json:<path>      JSONFieldExtractor(path)
//	contains:<text>  ContainsExtractor(text)
//	regex:<pattern>  RegexExtractor(pattern)
func ParseExtractor(shorthand string) (Extractor, error) {
	kind, arg, hasArg := strings.Cut(strings.TrimSpace(shorthand), ":")

	switch kind {
	case "", "default":
		if hasArg {
			break
		}
		return DefaultExtractor, nil
	case "http":
		if hasArg {
			break
		}
		return HTTPStatusExtractor, nil
	case "json":
		if arg == "" {
			return nil, fmt.Errorf("extractor %q: json needs a field path", shorthand)
		}
		return JSONFieldExtractor(arg), nil
	case "contains":
		if arg == "" {
			return nil, fmt.Errorf("extractor %q: contains needs text", shorthand)
		}
		return ContainsExtractor(arg), nil
	case "regex":
		if arg == "" {
			return nil, fmt.Errorf("extractor %q: regex needs a pattern", shorthand)
		}
		extract, err := RegexExtractor(arg)
		if err != nil {
			return nil, fmt.Errorf("extractor %q: %w", shorthand, err)
		}
		return extract, nil
	}
	return nil, fmt.Errorf("unknown extractor %q (want default, http, json:<path>, contains:<text> or regex:<pattern>)", shorthand)
}
