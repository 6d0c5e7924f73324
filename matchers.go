package eventually

import (
	"cmp"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	gocmp "github.com/google/go-cmp/cmp"
)

// A Matcher reports whether a value satisfies a condition and describes the
// condition and any mismatch for failure messages.
type Matcher[T any] interface {
	// Matches reports whether actual satisfies the condition.
	Matches(actual T) bool

	// String describes the expected condition, e.g. "equal to 6".
	String() string

	// DescribeMismatch explains why actual does not match, e.g. "was 5".
	DescribeMismatch(actual T) string
}

type funcMatcher[T any] struct {
	desc     string
	match    func(T) bool
	mismatch func(T) string
}

func (m funcMatcher[T]) Matches(actual T) bool { return m.match(actual) }

func (m funcMatcher[T]) String() string { return m.desc }

func (m funcMatcher[T]) DescribeMismatch(actual T) string {
	if m.mismatch != nil {
		return m.mismatch(actual)
	}
	return "was " + formatValue(actual)
}

// Satisfies builds a Matcher from a predicate and its description.
func Satisfies[T any](description string, pred func(T) bool) Matcher[T] {
	return funcMatcher[T]{desc: description, match: pred}
}

// EqualTo matches values equal to want, compared with go-cmp. Mismatches on
// structs, maps and slices include a diff.
//
// Like [gocmp.Equal], it panics on structs with unexported fields; inside a
// probe such a panic fails the attempt.
func EqualTo[T any](want T) Matcher[T] {
	return funcMatcher[T]{
		desc:  "equal to " + formatValue(want),
		match: func(actual T) bool { return gocmp.Equal(want, actual) },
		mismatch: func(actual T) string {
			msg := "was " + formatValue(actual)
			switch reflect.ValueOf(actual).Kind() {
			case reflect.Struct, reflect.Map, reflect.Slice, reflect.Array, reflect.Pointer:
				msg += "\ndiff (-want +got):\n" + gocmp.Diff(want, actual)
			}
			return msg
		},
	}
}

// Not inverts a matcher.
func Not[T any](m Matcher[T]) Matcher[T] {
	return funcMatcher[T]{
		desc:  "not " + m.String(),
		match: func(actual T) bool { return !m.Matches(actual) },
	}
}

// AllOf matches when every provided matcher matches. The mismatch names the
// first matcher that failed.
func AllOf[T any](matchers ...Matcher[T]) Matcher[T] {
	return funcMatcher[T]{
		desc: "all of (" + joinDescriptions(matchers) + ")",
		match: func(actual T) bool {
			for _, m := range matchers {
				if !m.Matches(actual) {
					return false
				}
			}
			return true
		},
		mismatch: func(actual T) string {
			for _, m := range matchers {
				if !m.Matches(actual) {
					return m.String() + ": " + m.DescribeMismatch(actual)
				}
			}
			return "was " + formatValue(actual)
		},
	}
}

// AnyOf matches when at least one provided matcher matches.
func AnyOf[T any](matchers ...Matcher[T]) Matcher[T] {
	return funcMatcher[T]{
		desc: "any of (" + joinDescriptions(matchers) + ")",
		match: func(actual T) bool {
			for _, m := range matchers {
				if m.Matches(actual) {
					return true
				}
			}
			return false
		},
	}
}

// GreaterThan matches values strictly greater than bound.
func GreaterThan[T cmp.Ordered](bound T) Matcher[T] {
	return funcMatcher[T]{
		desc:  "greater than " + formatValue(bound),
		match: func(actual T) bool { return cmp.Compare(actual, bound) > 0 },
	}
}

// LessThan matches values strictly less than bound.
func LessThan[T cmp.Ordered](bound T) Matcher[T] {
	return funcMatcher[T]{
		desc:  "less than " + formatValue(bound),
		match: func(actual T) bool { return cmp.Compare(actual, bound) < 0 },
	}
}

// ContainsString matches strings containing substr.
func ContainsString(substr string) Matcher[string] {
	return funcMatcher[string]{
		desc:  fmt.Sprintf("a string containing %q", substr),
		match: func(actual string) bool { return strings.Contains(actual, substr) },
	}
}

// MatchesRegexp matches strings matching the regular expression.
// The pattern is compiled once; an invalid pattern causes a panic.
func MatchesRegexp(pattern string) Matcher[string] {
	re := regexp.MustCompile(pattern)
	return funcMatcher[string]{
		desc:  fmt.Sprintf("a string matching regexp %q", pattern),
		match: re.MatchString,
	}
}

// HasLen matches strings, slices, arrays, maps and channels of length n.
// Values of any other kind never match.
func HasLen[T any](n int) Matcher[T] {
	length := func(v T) (int, bool) {
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.String, reflect.Slice, reflect.Array, reflect.Map, reflect.Chan:
			return rv.Len(), true
		}
		return 0, false
	}
	return funcMatcher[T]{
		desc: fmt.Sprintf("a value of length %d", n),
		match: func(actual T) bool {
			l, ok := length(actual)
			return ok && l == n
		},
		mismatch: func(actual T) string {
			l, ok := length(actual)
			if !ok {
				return fmt.Sprintf("was %s, which has no length", formatValue(actual))
			}
			return fmt.Sprintf("had length %d: %s", l, formatValue(actual))
		},
	}
}

func joinDescriptions[T any](matchers []Matcher[T]) string {
	descs := make([]string, 0, len(matchers))
	for _, m := range matchers {
		descs = append(descs, m.String())
	}
	return strings.Join(descs, ", ")
}

// formatValue renders v for failure messages; strings are quoted.
func formatValue(v any) string {
	if s, ok := v.(string); ok {
		return fmt.Sprintf("%q", s)
	}
	return fmt.Sprintf("%v", v)
}
