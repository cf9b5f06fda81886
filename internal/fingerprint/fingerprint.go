// Package fingerprint derives the deterministic cache key for a request.
//
// A fingerprint is a pure function of the endpoint path and its query
// parameters: the same logical request always maps to the same cache entry
// regardless of parameter order or Unicode encoding of the values.
package fingerprint

import (
	"net/url"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Compute returns the fingerprint for an endpoint and its parameters.
//
// Canonical form:
//  1. Endpoint is NFC normalized and stripped of a trailing slash
//     ("/participants/" and "/participants" are the same request).
//  2. Parameter keys are sorted byte-wise after NFC normalization.
//  3. Pairs are encoded as key=value with URL escaping and joined by "&".
//  4. Endpoint and query are joined by "?"; no parameters means no "?".
//
// NFC normalization matters for user-entered parameter values (names with
// combining accents reach this layer from search fields); without it the
// same search would fragment into distinct cache entries per input method.
func Compute(endpoint string, params map[string]string) string {
	path := norm.NFC.String(endpoint)
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}

	if len(params) == 0 {
		return path
	}

	keys := make([]string, 0, len(params))
	normalized := make(map[string]string, len(params))
	for k, v := range params {
		nk := norm.NFC.String(k)
		keys = append(keys, nk)
		normalized[nk] = norm.NFC.String(v)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(path)
	b.WriteByte('?')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(normalized[k]))
	}
	return b.String()
}
