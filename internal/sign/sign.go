// Package sign implements the processor's CheckMacValue checksum. The
// processor validates it bit-for-bit, so the canonicalization below must not
// drift: case-insensitive key sort, HashKey/HashIV wrapping, query-style
// percent-encoding with the processor's substitutions, lower-case, SHA-256.
package sign

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// FieldName is the parameter carrying the checksum itself. It is always
// excluded from the signed parameter set.
const FieldName = "CheckMacValue"

// Sign computes the checksum over params. Values are taken verbatim, so
// numeric values must already be plain decimal strings (no separators).
func Sign(params map[string]string, key, iv string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if strings.EqualFold(k, FieldName) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := strings.ToLower(keys[i]), strings.ToLower(keys[j])
		if a == b {
			return keys[i] < keys[j]
		}
		return a < b
	})

	var sb strings.Builder
	sb.WriteString("HashKey=")
	sb.WriteString(key)
	for _, k := range keys {
		sb.WriteByte('&')
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(params[k])
	}
	sb.WriteString("&HashIV=")
	sb.WriteString(iv)

	// url.QueryEscape already matches the processor's canonical form: spaces
	// become '+' and ! ' ( ) * are percent-encoded with upper-hex digits.
	encoded := strings.ToLower(url.QueryEscape(sb.String()))

	sum := sha256.Sum256([]byte(encoded))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// Verify recomputes the checksum over params (excluding FieldName) and
// compares it against provided, case-insensitively and in constant time.
func Verify(params map[string]string, provided, key, iv string) bool {
	if provided == "" {
		return false
	}
	expected := Sign(params, key, iv)
	return subtle.ConstantTimeCompare([]byte(strings.ToUpper(provided)), []byte(expected)) == 1
}
