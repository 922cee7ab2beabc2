// Package planner turns a triage result into a recommended action plan.
package planner

import (
	"fmt"
	"strings"

	"triage-agent/internal/triage"
)

type Planner struct{}

func New() *Planner { return &Planner{} }

// Plan returns the action plan for the triage result. Every severity tier has
// a mapping; an unknown tier is a programming error and is reported as such.
func (p *Planner) Plan(t triage.TriageResult, frame triage.SymptomFrame) (triage.ActionPlan, error) {
	var plan triage.ActionPlan
	switch t.SeverityLevel {
	case triage.SeverityRed:
		plan = triage.ActionPlan{
			Type:    triage.ActionEmergency,
			Urgency: triage.UrgencyImmediate,
			Instructions: []string{
				"Call your local emergency number (911 / 112 / 999) now",
				"Do not drive yourself to the hospital",
				"Stay with someone and keep your phone nearby",
				"If you have been prescribed emergency medication, use it as directed",
			},
			Resources: []string{"Emergency services", "Nearest emergency department"},
		}
	case triage.SeverityAmber:
		typ := triage.ActionReferral
		if t.RecommendedAction == triage.ActionBookAppointment {
			typ = triage.ActionBookAppointment
		}
		plan = triage.ActionPlan{
			Type:    typ,
			Urgency: triage.UrgencyUrgent,
			Instructions: []string{
				"Arrange to see a doctor or nurse practitioner within 24 hours",
				"Rest and keep hydrated until you are seen",
				"Write down when your symptoms started and any changes",
				"Seek emergency care if symptoms suddenly get worse",
			},
			Resources: []string{"Primary care appointment booking", "Nurse advice line"},
		}
	case triage.SeverityGreen:
		plan = triage.ActionPlan{
			Type:    triage.ActionSelfCare,
			Urgency: triage.UrgencyRoutine,
			Instructions: []string{
				"Rest and drink plenty of fluids",
				"Use over-the-counter remedies as directed on the label if needed",
				"Monitor your symptoms for the next 48 hours",
				"Book a routine appointment if symptoms persist or worsen",
			},
			Resources: []string{"Pharmacist advice"},
		}
	default:
		return triage.ActionPlan{}, fmt.Errorf("no action plan for severity %q", t.SeverityLevel)
	}

	plan.Specialization = specialization(t, frame)
	return plan, nil
}

// specialization suggests a clinical specialty for non self-care plans.
func specialization(t triage.TriageResult, frame triage.SymptomFrame) string {
	if t.SeverityLevel == triage.SeverityGreen {
		return ""
	}
	for _, flag := range t.RedFlagsTriggered {
		switch flag {
		case "chest_pain_with_breathlessness", "cardiac_chest_pain", "chest_discomfort":
			return "cardiology"
		case "thunderclap_headache", "stroke_signs", "loss_of_consciousness":
			return "neurology"
		case "hematemesis", "blood_in_stool_or_urine", "persistent_vomiting":
			return "gastroenterology"
		case "severe_breathing_difficulty", "shortness_of_breath":
			return "pulmonology"
		case "suicidal_ideation":
			return "psychiatry"
		case "pregnancy_concern":
			return "obstetrics"
		case "vulnerable_age_fever":
			if triage.Deref(frame.AgeBand, "") == "infant" {
				return "pediatrics"
			}
		}
	}
	complaint := strings.ToLower(triage.Deref(frame.ChiefComplaint, ""))
	for _, kw := range []struct{ word, area string }{
		{"rash", "dermatology"},
		{"skin", "dermatology"},
		{"cough", "pulmonology"},
		{"stomach", "gastroenterology"},
		{"abdominal", "gastroenterology"},
		{"headache", "neurology"},
	} {
		if strings.Contains(complaint, kw.word) {
			return kw.area
		}
	}
	return "general practice"
}
