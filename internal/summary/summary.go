// Package summary composes the patient and clinician summaries of a turn.
package summary

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"triage-agent/internal/triage"
)

// TextGenerator rewrites a deterministic summary in patient-friendly language.
type TextGenerator interface {
	Rephrase(ctx context.Context, text string) (string, error)
}

type Generator struct {
	gen     TextGenerator
	timeout time.Duration
	logger  *zap.Logger
}

// New returns a Generator. gen may be nil, in which case the patient summary
// is always the deterministic template.
func New(gen TextGenerator, timeout time.Duration, logger *zap.Logger) *Generator {
	return &Generator{gen: gen, timeout: timeout, logger: logger}
}

func (g *Generator) Summarize(ctx context.Context, message string, frame triage.SymptomFrame, t triage.TriageResult, a triage.ActionPlan) triage.SummaryOutcome {
	out := triage.SummaryOutcome{
		Summary: triage.SummaryResult{
			PatientSummary:   PatientTemplate(t, a),
			ClinicianSummary: Clinician(message, frame, t),
		},
	}
	if g.gen == nil {
		return out
	}

	polished, err := g.polish(ctx, out.Summary.PatientSummary)
	if err != nil {
		out.Failure = triage.NewStageFailure(triage.StageSummarizing, err)
		g.logger.Warn("patient summary polish failed, using template",
			zap.String("reason", string(out.Failure.Reason)), zap.Error(err))
		return out
	}
	out.Summary.PatientSummary = polished
	return out
}

func (g *Generator) polish(ctx context.Context, text string) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	polished, err := g.gen.Rephrase(ctx, text)
	if err != nil {
		return "", err
	}
	polished = strings.TrimSpace(polished)
	if polished == "" {
		return "", fmt.Errorf("%w: empty rephrase", triage.ErrMalformedResponse)
	}
	return polished, nil
}

// PatientTemplate is the deterministic patient-facing summary.
func PatientTemplate(t triage.TriageResult, a triage.ActionPlan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Based on your symptoms, you've been triaged as %s. ", t.SeverityLevel)
	fmt.Fprintf(&b, "Recommended action: %s. ", humanize(string(a.Type)))
	if len(a.Instructions) > 0 {
		n := min(3, len(a.Instructions))
		fmt.Fprintf(&b, "Instructions: %s. ", strings.Join(a.Instructions[:n], "; "))
	}
	b.WriteString("This is not a medical diagnosis. Seek professional help if symptoms worsen.")
	return b.String()
}

// Clinician is the deterministic clinician-facing summary. It depends only
// on its inputs.
func Clinician(message string, frame triage.SymptomFrame, t triage.TriageResult) string {
	symptoms := "none reported"
	if len(frame.AssociatedSymptoms) > 0 {
		symptoms = strings.Join(frame.AssociatedSymptoms, ", ")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Chief complaint: %s. ", triage.Deref(frame.ChiefComplaint, strings.TrimSpace(message)))
	fmt.Fprintf(&b, "Duration: %s. ", triage.Deref(frame.Duration, "unknown"))
	fmt.Fprintf(&b, "Self-rated severity: %s. ", triage.Deref(frame.SeveritySelf, "not stated"))
	fmt.Fprintf(&b, "Age band: %s. ", triage.Deref(frame.AgeBand, "unknown"))
	fmt.Fprintf(&b, "Associated symptoms: %s. ", symptoms)
	fmt.Fprintf(&b, "Triage level: %s. ", t.SeverityLevel)
	fmt.Fprintf(&b, "Rationale: %s ", strings.TrimSuffix(t.Rationale, ".")+".")
	if len(t.RedFlagsTriggered) > 0 {
		fmt.Fprintf(&b, "Red flags: %s. ", strings.Join(t.RedFlagsTriggered, ", "))
	}
	fmt.Fprintf(&b, "Recommended action: %s.", t.RecommendedAction)
	return b.String()
}

func humanize(s string) string {
	return strings.ReplaceAll(s, "_", " ")
}
