package triage

import (
	"fmt"
	"strings"
)

var safetyInstructions = []string{
	"Monitor your symptoms",
	"Contact your healthcare provider",
	"Seek care if symptoms worsen",
	"Call emergency services if you develop chest pain, difficulty breathing or confusion",
}

var emergencyInstructions = []string{
	"Call your local emergency number now",
	"Do not drive yourself to the hospital",
	"Stay with someone until help arrives",
}

// fallbackPolicy decides what a failed stage is replaced with. It never
// lowers a severity that has already been established.
type fallbackPolicy struct{}

func (fallbackPolicy) triage(f *StageFailure) TriageResult {
	return TriageResult{
		SeverityLevel:     SeverityAmber,
		Rationale:         fmt.Sprintf("Automated assessment incomplete (%s); conservative referral recommended.", f.Reason),
		RecommendedAction: ActionReferral,
		RedFlagsTriggered: []string{},
	}
}

// floor raises t to at least the conservative triage. It is applied when the
// message could not be understood, so a GREEN result cannot be trusted.
func (p fallbackPolicy) floor(t TriageResult, f *StageFailure) TriageResult {
	switch {
	case t.SeverityLevel == SeverityRed:
		return t
	case t.SeverityLevel == SeverityAmber:
		t.RecommendedAction = ActionReferral
		return t
	default:
		return p.triage(f)
	}
}

func (fallbackPolicy) plan(t TriageResult) ActionPlan {
	if t.SeverityLevel == SeverityRed {
		return ActionPlan{
			Type:         ActionEmergency,
			Urgency:      UrgencyImmediate,
			Instructions: append([]string{}, emergencyInstructions...),
			Resources:    []string{},
		}
	}
	return ActionPlan{
		Type:         ActionReferral,
		Urgency:      UrgencyUrgent,
		Instructions: append([]string{}, safetyInstructions...),
		Resources:    []string{},
	}
}

func (fallbackPolicy) summary(message string, frame SymptomFrame, t TriageResult, a ActionPlan) SummaryResult {
	patient := fmt.Sprintf("Based on your symptoms, you've been triaged as %s. Recommended action: %s. "+
		"This is not a medical diagnosis. Seek professional help if symptoms worsen.", t.SeverityLevel, a.Type)
	clinician := fmt.Sprintf("Chief complaint: %s. Associated symptoms: %s. Triage level: %s. Recommended action: %s.",
		Deref(frame.ChiefComplaint, message), strings.Join(frame.AssociatedSymptoms, ", "), t.SeverityLevel, a.Type)
	return SummaryResult{PatientSummary: patient, ClinicianSummary: clinician}
}

// result is the safe response for a turn that could not run at all.
func (p fallbackPolicy) result(caseID string, f *StageFailure) *TurnResult {
	tr := p.triage(f)
	plan := p.plan(tr)
	return &TurnResult{
		CaseID:     caseID,
		Status:     StatusAwaitingInput,
		Stage:      f.Stage,
		Symptoms:   SymptomFrame{AssociatedSymptoms: []string{}},
		Triage:     &tr,
		Action:     &plan,
		Message:    ReplyFor(tr.SeverityLevel),
		Disclaimer: Disclaimer,
		Degraded:   []StageFailure{*f},
	}
}
