// headers/redact/redact.go
package redact

import "strings"

// Redacted replaces sensitive values in logs.
const Redacted = "REDACTED"

var sensitiveKeys = map[string]struct{}{
	"authorization": {},
	"accesstoken":   {},
	"access_token":  {},
	"refresh_token": {},
	"token":         {},
	"cookie":        {},
	"set-cookie":    {},
}

// IsSensitiveKey reports whether a header, field or cookie name carries credentials.
// Matching is case-insensitive.
func IsSensitiveKey(key string) bool {
	_, found := sensitiveKeys[strings.ToLower(key)]
	return found
}

// RedactSensitiveHeaderData redacts sensitive data based on the hideSensitiveData flag.
func RedactSensitiveHeaderData(hideSensitiveData bool, key, value string) string {
	if hideSensitiveData && IsSensitiveKey(key) {
		return Redacted
	}
	return value
}
