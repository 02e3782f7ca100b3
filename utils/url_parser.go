package utils

import (
	"net/url"
	"strconv"
	"strings"
)

// rawValueKeys hold values taken mostly verbatim: range subsets carry
// literal '%' and '+' characters, so only valid %XX escapes are decoded.
var rawValueKeys = map[string]bool{"rangesubset": true, "subset": true}

// splitKVP splits a query at '&' separators. "\&" escapes a literal
// ampersand inside a value.
func splitKVP(query string) []string {
	var pairs []string
	start := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '&' && (i == 0 || query[i-1] != '\\') {
			pairs = append(pairs, query[start:i])
			start = i + 1
		}
	}
	return append(pairs, query[start:])
}

// unescapeRaw decodes the valid %XX escapes of s and keeps everything
// else as is.
func unescapeRaw(s string) string {
	if !strings.Contains(s, "%") {
		return s
	}
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '%' && i+2 < len(s) {
			if b, err := strconv.ParseUint(s[i+1:i+3], 16, 8); err == nil {
				sb.WriteByte(byte(b))
				i += 2
				continue
			}
		}
		sb.WriteByte(s[i])
	}
	return sb.String()
}

// ParseQuery parses an OGC KVP query string. Keys are lower-cased since
// parameter names are case insensitive, which also makes a parameter
// given twice in different cases a repetition: repeated parameters are
// rejected with an InvalidParameterValue exception.
func ParseQuery(query string) (url.Values, error) {
	m := make(url.Values)
	for _, pair := range splitKVP(query) {
		if pair == "" {
			continue
		}
		key, value := pair, ""
		if i := strings.Index(pair, "="); i >= 0 {
			key, value = pair[:i], strings.Replace(pair[i+1:], "\\&", "&", -1)
		}

		key, err := url.QueryUnescape(key)
		if err != nil {
			return m, NewOWSException(InvalidParameterValue, "", "malformed parameter name %q: %v", key, err)
		}
		key = strings.ToLower(key)
		if _, seen := m[key]; seen {
			return m, NewOWSException(InvalidParameterValue, strings.ToUpper(key), "parameter %s is given more than once", strings.ToUpper(key))
		}

		if rawValueKeys[key] {
			value = unescapeRaw(value)
		} else if value, err = url.QueryUnescape(value); err != nil {
			return m, NewOWSException(InvalidParameterValue, strings.ToUpper(key), "malformed value of %s: %v", strings.ToUpper(key), err)
		}
		m[key] = []string{value}
	}
	return m, nil
}
