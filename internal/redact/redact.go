// Package redact scrubs sensitive material from strings before they reach
// logs or error responses. Pipeline errors routinely embed upstream request
// detail, so credentials, connection strings, signed artifact URLs, and SQL
// fragments are all replaced with placeholders.
package redact

import "regexp"

// Redaction placeholders
const (
	RedactedCredentialPlaceholder = "[REDACTED_CREDENTIAL]"
	RedactedKeyPlaceholder        = "[REDACTED_KEY]"
	RedactedSignaturePlaceholder  = "[REDACTED_SIGNATURE]"
)

var (
	// Database connection strings with inline credentials
	dbConnRegex = regexp.MustCompile(`(?i)(postgres|postgresql|mysql)://[^@\s]+@`)

	// Bearer tokens on outbound generation service requests
	bearerRegex = regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9_\-.~+/]{8,}`)

	// Generic api keys, tokens, and secrets in key=value or key: value form
	apiKeyRegex = regexp.MustCompile(
		`(?i)(api[_-]?key|token|secret|access[_-]?key)(['"\s:=]+)[A-Za-z0-9_\-.~+/]{8,}`,
	)

	// AWS style access key ids
	awsKeyRegex = regexp.MustCompile(`\bAKIA[A-Z0-9]{8,}\b`)

	// Presigned URL query signatures on artifact URLs
	signatureRegex = regexp.MustCompile(`(?i)([?&](signature|sig|x-amz-signature|token)=)[^&\s]+`)

	// SQL fragments leaking through wrapped store errors
	sqlRegex = regexp.MustCompile(
		`(?i)(SELECT|INSERT|UPDATE|DELETE|CREATE|ALTER|DROP)[\s\w,*()]+(?:FROM|INTO|SET|TABLE|INDEX)(?:[\s\w,*()='"]+)?`,
	)

	replacements = []struct {
		pattern     *regexp.Regexp
		placeholder string
	}{
		{dbConnRegex, RedactedCredentialPlaceholder},
		{bearerRegex, RedactedCredentialPlaceholder},
		{apiKeyRegex, RedactedKeyPlaceholder},
		{awsKeyRegex, RedactedKeyPlaceholder},
		{signatureRegex, "${1}" + RedactedSignaturePlaceholder},
		{sqlRegex, "[REDACTED_SQL]"},
	}
)

// String redacts sensitive information from the input string.
func String(input string) string {
	if input == "" {
		return input
	}
	result := input
	for _, r := range replacements {
		result = r.pattern.ReplaceAllString(result, r.placeholder)
	}
	return result
}

// Error redacts sensitive information from an error's Error() output.
func Error(err error) string {
	if err == nil {
		return ""
	}
	return String(err.Error())
}
