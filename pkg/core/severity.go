package core

import "strings"

// =============================================================================
// Severity
// =============================================================================

// Severity classifies an execution log entry.
type Severity string

// Severity levels for execution logs.
const (
	// SeverityInfo marks progress messages.
	SeverityInfo Severity = "info"
	// SeveritySuccess marks completed work.
	SeveritySuccess Severity = "success"
	// SeverityWarning marks non-fatal conditions such as a stopped run.
	SeverityWarning Severity = "warning"
	// SeverityError marks failures.
	SeverityError Severity = "error"
)

// String returns the string representation of the severity.
func (s Severity) String() string {
	return string(s)
}

// ParseSeverity converts a string to a Severity value.
// Returns the severity and true if valid, or SeverityInfo and false if invalid.
func ParseSeverity(s string) (Severity, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "info":
		return SeverityInfo, true
	case "success":
		return SeveritySuccess, true
	case "warning", "warn":
		return SeverityWarning, true
	case "error":
		return SeverityError, true
	default:
		return SeverityInfo, false
	}
}
