// SPDX-License-Identifier: MPL-2.0

package process

import (
	"fmt"
	"regexp"
	"strings"
)

type (
	// Matcher decides whether an output line is the one being waited for.
	Matcher interface {
		Match(line string) bool
		String() string
	}

	// MatcherFunc adapts a plain function to Matcher.
	MatcherFunc func(line string) bool

	containsMatcher string
	prefixMatcher   string
	regexpMatcher   struct{ re *regexp.Regexp }
	tokenMatcher    string
)

// Match calls f(line).
func (f MatcherFunc) Match(line string) bool { return f(line) }

func (f MatcherFunc) String() string { return "custom matcher" }

// Contains matches lines containing s.
func Contains(s string) Matcher { return containsMatcher(s) }

func (m containsMatcher) Match(line string) bool { return strings.Contains(line, string(m)) }
func (m containsMatcher) String() string         { return fmt.Sprintf("contains(%q)", string(m)) }

// Prefix matches lines starting with s, ignoring leading whitespace.
func Prefix(s string) Matcher { return prefixMatcher(s) }

func (m prefixMatcher) Match(line string) bool {
	return strings.HasPrefix(strings.TrimLeft(line, " \t"), string(m))
}
func (m prefixMatcher) String() string { return fmt.Sprintf("prefix(%q)", string(m)) }

// Regexp matches lines matched by re.
func Regexp(re *regexp.Regexp) Matcher { return regexpMatcher{re: re} }

func (m regexpMatcher) Match(line string) bool { return m.re.MatchString(line) }
func (m regexpMatcher) String() string         { return fmt.Sprintf("regexp(%s)", m.re) }

// MarkerValue matches lines carrying the whitespace-delimited token
// key=value exactly, so PAYLOAD=12 does not match PAYLOAD=123.
func MarkerValue(key, value string) Matcher {
	return tokenMatcher(key + "=" + value)
}

// Token matches lines carrying tok as a whitespace-delimited token.
func Token(tok string) Matcher { return tokenMatcher(tok) }

func (m tokenMatcher) Match(line string) bool {
	for _, field := range strings.Fields(line) {
		if field == string(m) {
			return true
		}
	}
	return false
}
func (m tokenMatcher) String() string { return fmt.Sprintf("token(%q)", string(m)) }
