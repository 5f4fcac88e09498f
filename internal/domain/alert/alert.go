package alert

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Asif90988/banking-dashboard-streaming/internal/domain/errors"
)

// Severity levels, most severe first
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

var severityRank = map[Severity]int{
	SeverityCritical: 5,
	SeverityHigh:     4,
	SeverityMedium:   3,
	SeverityWarning:  2,
	SeverityInfo:     1,
}

// ParseSeverity accepts any casing and "warn" as an alias of warning
func ParseSeverity(s string) (Severity, error) {
	v := Severity(strings.ToLower(strings.TrimSpace(s)))
	if v == "warn" {
		v = SeverityWarning
	}
	if _, ok := severityRank[v]; !ok {
		return "", errors.NewValidationError("INVALID_SEVERITY", "unknown alert severity: "+s)
	}
	return v, nil
}

// AtLeast reports whether s is as severe as other or more
func (s Severity) AtLeast(other Severity) bool {
	return severityRank[s] >= severityRank[other]
}

// Alert is append-only. Consumers may track investigation state elsewhere;
// the record itself is never mutated.
type Alert struct {
	ID        uuid.UUID `json:"id"`
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

func New(severity Severity, message, source string, at time.Time) Alert {
	return Alert{
		ID:        uuid.New(),
		Severity:  severity,
		Message:   message,
		Source:    source,
		Timestamp: at.UTC(),
	}
}
