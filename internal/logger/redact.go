package logger

import "regexp"

// sensitiveDataPatterns match credentials that must not reach log output
var sensitiveDataPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(bearer\s+)([A-Za-z0-9-._~+/]+=*)`),
	regexp.MustCompile(`(sk-or-v1-)([A-Za-z0-9]{8,})`),
	regexp.MustCompile(`(?i)((api|access|auth|token|secret|key)[0-9a-z\-_.]*["']?[\s:=]+["']?)([^;,\s"']{5,})`),
}

// RedactSensitiveData replaces credentials in input with "[REDACTED]"
func RedactSensitiveData(input string) string {
	if input == "" {
		return input
	}

	for _, pattern := range sensitiveDataPatterns {
		input = pattern.ReplaceAllString(input, "$1[REDACTED]")
	}

	return input
}
