// Package redact scrubs credentials from strings before they are logged or
// returned by the status API. Legacy ODBC connection strings, database
// URLs, API keys and access tokens all travel through error messages.
package redact

import "regexp"

// Placeholders substituted for redacted values.
const (
	CredentialPlaceholder = "[REDACTED_CREDENTIAL]"
	KeyPlaceholder        = "[REDACTED_KEY]"
	JWTPlaceholder        = "[REDACTED_JWT]"
)

type rule struct {
	pattern *regexp.Regexp
	replace string
}

// Rules are applied in order; the JWT rule runs first so tokens inside
// key=value pairs are reported as tokens.
var rules = []rule{
	{regexp.MustCompile(`eyJ[A-Za-z0-9_-]+\.eyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+`), JWTPlaceholder},
	{regexp.MustCompile(`(?i)\b(postgres|postgresql|pgx)://[^@/\s]+@`), "${1}://" + CredentialPlaceholder + "@"},
	{regexp.MustCompile(`(?i)\b(pwd|password|passwd)(\s*[=:]\s*"?)[^;&\s"']+`), "${1}${2}" + CredentialPlaceholder},
	{regexp.MustCompile(`(?i)\b(apikey|api_key|access_token|refresh_token)(\s*[=:]\s*"?)[^;&\s"']+`), "${1}${2}" + KeyPlaceholder},
	{regexp.MustCompile(`(?i)\b(bearer)\s+[A-Za-z0-9_\-.~+/]+=*`), "${1} " + KeyPlaceholder},
}

// String returns input with credentials replaced by placeholders.
func String(input string) string {
	if input == "" {
		return input
	}
	for _, r := range rules {
		input = r.pattern.ReplaceAllString(input, r.replace)
	}
	return input
}

// Error returns the redacted text of err, or "" for nil.
func Error(err error) string {
	if err == nil {
		return ""
	}
	return String(err.Error())
}
