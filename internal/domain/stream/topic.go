package stream

import (
	"strings"

	"github.com/Asif90988/banking-dashboard-streaming/internal/domain/errors"
)

// Topic is a named logical channel. Identity is the name.
type Topic string

// Well-known topics
const (
	TopicTransactions        Topic = "transaction-stream"
	TopicSanctionsData       Topic = "sanctions-data"
	TopicFlaggedTransactions Topic = "flagged-transactions"
	TopicComplianceAlerts    Topic = "compliance-alerts"
	TopicRiskEvents          Topic = "risk-events"
	TopicBudgetUpdates       Topic = "budget-updates"
	TopicProjectUpdates      Topic = "project-updates"
	TopicSystemMetrics       Topic = "system-metrics"
)

var wellKnownTopics = []Topic{
	TopicTransactions,
	TopicSanctionsData,
	TopicFlaggedTransactions,
	TopicComplianceAlerts,
	TopicRiskEvents,
	TopicBudgetUpdates,
	TopicProjectUpdates,
	TopicSystemMetrics,
}

// WellKnownTopics returns a copy of the topics every bus provisions at startup
func WellKnownTopics() []Topic {
	out := make([]Topic, len(wellKnownTopics))
	copy(out, wellKnownTopics)
	return out
}

// IsWellKnown reports whether t is one of the provisioned topics
func (t Topic) IsWellKnown() bool {
	for _, known := range wellKnownTopics {
		if known == t {
			return true
		}
	}
	return false
}

func (t Topic) String() string {
	return string(t)
}

// ParseTopic validates a topic name. Unknown but well-formed names are
// accepted; topics are created lazily.
func ParseTopic(name string) (Topic, error) {
	name = strings.TrimSpace(strings.ToLower(name))
	if name == "" {
		return "", errors.NewValidationError("EMPTY_TOPIC", "topic name cannot be empty")
	}
	if strings.ContainsAny(name, " \t\n*?[]") {
		return "", errors.NewValidationError("INVALID_TOPIC", "topic name contains invalid characters: "+name)
	}
	return Topic(name), nil
}

// MergeTopics returns the union of both lists, first-seen order, without duplicates
func MergeTopics(base []Topic, extra ...Topic) []Topic {
	seen := make(map[Topic]bool, len(base)+len(extra))
	out := make([]Topic, 0, len(base)+len(extra))
	for _, list := range [][]Topic{base, extra} {
		for _, t := range list {
			if seen[t] {
				continue
			}
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
