package summary

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"triage-agent/internal/triage"
)

type stubGenerator struct {
	reply string
	err   error
	delay time.Duration
	calls int
}

func (s *stubGenerator) Rephrase(ctx context.Context, text string) (string, error) {
	s.calls++
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return s.reply, s.err
}

func fixtures() (triage.SymptomFrame, triage.TriageResult, triage.ActionPlan) {
	frame := triage.SymptomFrame{
		ChiefComplaint:     triage.StringPtr("chest pain"),
		Duration:           triage.StringPtr("20 minutes"),
		AssociatedSymptoms: []string{"sweating", "shortness of breath"},
	}
	tr := triage.TriageResult{
		SeverityLevel:     triage.SeverityRed,
		Rationale:         "RED flags identified: chest pain with difficulty breathing.",
		RecommendedAction: triage.ActionEmergency,
		RedFlagsTriggered: []string{"chest_pain_with_breathlessness"},
	}
	plan := triage.ActionPlan{
		Type:         triage.ActionEmergency,
		Urgency:      triage.UrgencyImmediate,
		Instructions: []string{"Call 911", "Do not drive", "Stay with someone", "Unlock the door"},
	}
	return frame, tr, plan
}

func TestClinician_Deterministic(t *testing.T) {
	frame, tr, _ := fixtures()

	got := Clinician("chest pain", frame, tr)

	assert.Equal(t, "Chief complaint: chest pain. Duration: 20 minutes. Self-rated severity: not stated. "+
		"Age band: unknown. Associated symptoms: sweating, shortness of breath. Triage level: RED. "+
		"Rationale: RED flags identified: chest pain with difficulty breathing. "+
		"Red flags: chest_pain_with_breathlessness. Recommended action: emergency.", got)
	assert.Equal(t, got, Clinician("chest pain", frame, tr))
}

func TestClinician_FallsBackToMessage(t *testing.T) {
	got := Clinician("  something feels off ", triage.SymptomFrame{}, triage.TriageResult{SeverityLevel: triage.SeverityGreen, Rationale: "none"})
	assert.Contains(t, got, "Chief complaint: something feels off.")
	assert.Contains(t, got, "Associated symptoms: none reported.")
	assert.NotContains(t, got, "Red flags")
}

func TestPatientTemplate_FirstThreeInstructions(t *testing.T) {
	_, tr, plan := fixtures()

	got := PatientTemplate(tr, plan)

	assert.Equal(t, "Based on your symptoms, you've been triaged as RED. Recommended action: emergency. "+
		"Instructions: Call 911; Do not drive; Stay with someone. "+
		"This is not a medical diagnosis. Seek professional help if symptoms worsen.", got)
}

func TestSummarize_WithoutGenerator(t *testing.T) {
	frame, tr, plan := fixtures()
	g := New(nil, time.Second, zap.NewNop())

	out := g.Summarize(context.Background(), "chest pain", frame, tr, plan)

	assert.Nil(t, out.Failure)
	assert.Equal(t, PatientTemplate(tr, plan), out.Summary.PatientSummary)
}

func TestSummarize_Polished(t *testing.T) {
	frame, tr, plan := fixtures()
	gen := &stubGenerator{reply: "  Please call emergency services right now.  "}
	g := New(gen, time.Second, zap.NewNop())

	out := g.Summarize(context.Background(), "chest pain", frame, tr, plan)

	assert.Nil(t, out.Failure)
	assert.Equal(t, "Please call emergency services right now.", out.Summary.PatientSummary)
	assert.Equal(t, Clinician("chest pain", frame, tr), out.Summary.ClinicianSummary)
}

func TestSummarize_FallsBackVerbatim(t *testing.T) {
	frame, tr, plan := fixtures()
	template := PatientTemplate(tr, plan)

	cases := []struct {
		name   string
		gen    *stubGenerator
		reason triage.FailureReason
	}{
		{"unavailable", &stubGenerator{err: triage.ErrServiceUnavailable}, triage.ReasonServiceUnavailable},
		{"empty reply", &stubGenerator{reply: "   "}, triage.ReasonMalformedResponse},
		{"timeout", &stubGenerator{reply: "late", delay: time.Second}, triage.ReasonTimeout},
		{"other", &stubGenerator{err: errors.New("boom")}, triage.ReasonInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := New(tc.gen, 20*time.Millisecond, zap.NewNop())

			out := g.Summarize(context.Background(), "chest pain", frame, tr, plan)

			require.NotNil(t, out.Failure)
			assert.Equal(t, tc.reason, out.Failure.Reason)
			assert.Equal(t, triage.StageSummarizing, out.Failure.Stage)
			assert.Equal(t, template, out.Summary.PatientSummary)
			assert.Equal(t, 1, tc.gen.calls)
		})
	}
}
