// Package classifier maps a symptom frame and the raw message to a severity
// tier using an ordered table of red-flag rules.
package classifier

import (
	"fmt"
	"math"
	"strings"

	"triage-agent/internal/triage"
)

const defaultRationale = "No red flags identified; symptoms appear suitable for self-care with monitoring."

type Classifier struct {
	rules []Rule
}

func New() *Classifier {
	return NewWithRules(DefaultRules())
}

func NewWithRules(rules []Rule) *Classifier {
	return &Classifier{rules: append([]Rule{}, rules...)}
}

// Classify is deterministic: the most urgent tier with a matching rule wins
// and every match within that tier is reported in table order.
func (c *Classifier) Classify(frame triage.SymptomFrame, message string) triage.TriageResult {
	text := normalize(message) + " " + frame.Text()

	severity := triage.SeverityGreen
	var fired []Rule
	for i := len(triage.Severities) - 1; i >= 0 && len(fired) == 0; i-- {
		tier := triage.Severities[i]
		for _, r := range c.rules {
			if r.Severity == tier && r.Match(text, frame) {
				fired = append(fired, r)
			}
		}
		if len(fired) > 0 {
			severity = tier
		}
	}

	flags := make([]string, 0, len(fired))
	for _, r := range fired {
		flags = append(flags, r.ID)
	}
	confidence := Confidence(frame)

	return triage.TriageResult{
		SeverityLevel:     severity,
		Rationale:         rationale(severity, fired),
		RecommendedAction: recommendedAction(severity, fired),
		RedFlagsTriggered: flags,
		Confidence:        &confidence,
	}
}

// Confidence grows by 0.1 per populated frame field from a 0.5 base.
func Confidence(frame triage.SymptomFrame) float64 {
	v := 0.5 + 0.1*float64(frame.Populated())
	v = math.Max(0, math.Min(1, v))
	return math.Round(v*100) / 100
}

func rationale(severity triage.Severity, fired []Rule) string {
	if len(fired) == 0 {
		return defaultRationale
	}
	descs := make([]string, 0, len(fired))
	for _, r := range fired {
		descs = append(descs, r.Description)
	}
	return fmt.Sprintf("%s flags identified: %s.", severity, strings.Join(descs, "; "))
}

func recommendedAction(severity triage.Severity, fired []Rule) triage.ActionType {
	switch severity {
	case triage.SeverityRed:
		return triage.ActionEmergency
	case triage.SeverityAmber:
		for _, r := range fired {
			if !r.PrimaryCare {
				return triage.ActionReferral
			}
		}
		return triage.ActionBookAppointment
	default:
		return triage.ActionSelfCare
	}
}

var apostrophes = strings.NewReplacer("’", "'", "‘", "'", "`", "'")

// normalize lowercases the message and drops negated mentions before
// whitespace is collapsed, so line breaks still end a clause.
func normalize(message string) string {
	text := triage.StripNegated(apostrophes.Replace(strings.ToLower(message)))
	return strings.Join(strings.Fields(text), " ")
}
