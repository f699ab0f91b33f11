package pattern

import (
	"fmt"
	"strings"
)

// expandAlternatives expands a csh-style brace pattern, e.g.
// "foo{bar,baz}-[0-9]*" -> []string{"foobar-[0-9]*", "foobaz-[0-9]*"}.
// Nested braces expand recursively; commas inside nested braces do not
// split the outer list. Malformed (unbalanced) braces raise an error -
// conservative behaviour per spec.md's open question: reject anything
// not strictly balanced rather than guessing at stray closers.
func expandAlternatives(s string) ([]string, error) {
	if !strings.ContainsAny(s, "{}") {
		return []string{s}, nil
	}

	open := strings.IndexByte(s, '{')
	if open < 0 {
		// A stray '}' with no matching '{' is unbalanced.
		return nil, fmt.Errorf("pattern: unbalanced '}' in %q", s)
	}

	prefix := s[:open]
	close_, err := matchingBrace(s, open)
	if err != nil {
		return nil, err
	}
	inner := s[open+1 : close_]
	suffix := s[close_+1:]

	groups := splitTopLevel(inner)
	if len(groups) == 0 {
		return nil, fmt.Errorf("pattern: empty brace group in %q", s)
	}

	suffixExpansions, err := expandAlternatives(suffix)
	if err != nil {
		return nil, err
	}

	var out []string
	for _, g := range groups {
		groupExpansions, err := expandAlternatives(g)
		if err != nil {
			return nil, err
		}
		for _, ge := range groupExpansions {
			for _, se := range suffixExpansions {
				out = append(out, prefix+ge+se)
			}
		}
	}
	return out, nil
}

// matchingBrace returns the index of the '}' matching the '{' at openIdx,
// accounting for nested braces. Returns an error if unbalanced.
func matchingBrace(s string, openIdx int) (int, error) {
	depth := 0
	for i := openIdx; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, nil
			}
		}
	}
	return 0, fmt.Errorf("pattern: unbalanced '{' in %q", s)
}

// splitTopLevel splits s on commas that are not nested inside braces.
func splitTopLevel(s string) []string {
	var out []string
	depth := 0
	last := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, s[last:i])
				last = i + 1
			}
		}
	}
	out = append(out, s[last:])
	return out
}
