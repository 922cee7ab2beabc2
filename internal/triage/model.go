package triage

import (
	"strings"
	"time"
)

// Severity is the urgency tier of a triage result. GREEN < AMBER < RED.
type Severity string

const (
	SeverityGreen Severity = "GREEN"
	SeverityAmber Severity = "AMBER"
	SeverityRed   Severity = "RED"
)

// Severities lists every tier from least to most urgent.
var Severities = []Severity{SeverityGreen, SeverityAmber, SeverityRed}

// Rank orders severities by urgency. Unknown values rank below GREEN.
func (s Severity) Rank() int {
	switch s {
	case SeverityGreen:
		return 1
	case SeverityAmber:
		return 2
	case SeverityRed:
		return 3
	default:
		return 0
	}
}

func (s Severity) Valid() bool { return s.Rank() > 0 }

type ActionType string

const (
	ActionSelfCare        ActionType = "self_care"
	ActionBookAppointment ActionType = "book_appointment"
	ActionReferral        ActionType = "referral"
	ActionEmergency       ActionType = "emergency"
)

type Urgency string

const (
	UrgencyImmediate Urgency = "immediate"
	UrgencyUrgent    Urgency = "urgent"
	UrgencyRoutine   Urgency = "routine"
)

type Status string

const (
	StatusAwaitingInput Status = "AWAITING_INPUT"
	StatusComplete      Status = "COMPLETE"
)

// Stage is a state of the per-turn state machine.
type Stage string

const (
	StageStart         Stage = "START"
	StageExtracting    Stage = "EXTRACTING"
	StageNeedsMoreInfo Stage = "NEEDS_MORE_INFO"
	StageTriaging      Stage = "TRIAGING"
	StagePlanning      Stage = "PLANNING"
	StageSummarizing   Stage = "SUMMARIZING"
	StageDone          Stage = "DONE"
)

// SymptomFrame holds the clinical attributes extracted from the conversation.
// Nil fields are not yet known.
type SymptomFrame struct {
	ChiefComplaint     *string  `json:"chief_complaint"`
	Duration           *string  `json:"duration"`
	SeveritySelf       *string  `json:"severity_self"`
	AgeBand            *string  `json:"age_band"`
	AssociatedSymptoms []string `json:"associated_symptoms"`
}

// Merge returns the frame with incoming applied on top: non-nil incoming
// fields overwrite, associated symptoms are unioned in first-seen order.
func (f SymptomFrame) Merge(incoming SymptomFrame) SymptomFrame {
	out := SymptomFrame{
		ChiefComplaint: pick(f.ChiefComplaint, incoming.ChiefComplaint),
		Duration:       pick(f.Duration, incoming.Duration),
		SeveritySelf:   pick(f.SeveritySelf, incoming.SeveritySelf),
		AgeBand:        pick(f.AgeBand, incoming.AgeBand),
	}
	out.AssociatedSymptoms = NormalizeSymptoms(append(append([]string{}, f.AssociatedSymptoms...), incoming.AssociatedSymptoms...))
	return out
}

func pick(prev, next *string) *string {
	if next != nil {
		v := *next
		return &v
	}
	if prev != nil {
		v := *prev
		return &v
	}
	return nil
}

// Empty reports whether the frame carries neither a chief complaint nor any
// associated symptom.
func (f SymptomFrame) Empty() bool {
	return f.ChiefComplaint == nil && len(f.AssociatedSymptoms) == 0
}

// Populated counts the known fields, associated symptoms counting as one.
func (f SymptomFrame) Populated() int {
	n := 0
	for _, p := range []*string{f.ChiefComplaint, f.Duration, f.SeveritySelf, f.AgeBand} {
		if p != nil {
			n++
		}
	}
	if len(f.AssociatedSymptoms) > 0 {
		n++
	}
	return n
}

// Text flattens the frame into a single lower-cased string for rule matching.
func (f SymptomFrame) Text() string {
	parts := make([]string, 0, 5+len(f.AssociatedSymptoms))
	for _, p := range []*string{f.ChiefComplaint, f.Duration, f.SeveritySelf, f.AgeBand} {
		if p != nil {
			parts = append(parts, *p)
		}
	}
	parts = append(parts, f.AssociatedSymptoms...)
	return strings.ToLower(strings.Join(parts, " "))
}

// NormalizeSymptoms lower-cases, trims and de-duplicates symptom tokens,
// keeping first-seen order. Blank tokens are dropped.
func NormalizeSymptoms(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		s = strings.Join(strings.Fields(strings.ToLower(s)), " ")
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// StringPtr returns a pointer to the trimmed value, or nil when blank.
func StringPtr(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed-to value or def.
func Deref(p *string, def string) string {
	if p == nil {
		return def
	}
	return *p
}

type TriageResult struct {
	SeverityLevel     Severity   `json:"severity_level"`
	Rationale         string     `json:"rationale"`
	RecommendedAction ActionType `json:"recommended_action"`
	RedFlagsTriggered []string   `json:"red_flags_triggered"`
	Confidence        *float64   `json:"confidence,omitempty"`
}

type ActionPlan struct {
	Type           ActionType `json:"type"`
	Urgency        Urgency    `json:"urgency"`
	Instructions   []string   `json:"instructions"`
	Resources      []string   `json:"resources"`
	Specialization string     `json:"specialization,omitempty"`
}

type SummaryResult struct {
	PatientSummary   string `json:"patient_summary"`
	ClinicianSummary string `json:"clinician_summary"`
}

// Turn is one exchange within a case.
type Turn struct {
	UserMessage    string    `json:"user_message"`
	SystemResponse string    `json:"system_response"`
	Stage          Stage     `json:"stage"`
	CreatedAt      time.Time `json:"created_at"`
}

// Case is the aggregate root of a triage conversation.
type Case struct {
	ID           string         `json:"case_id"`
	UserID       string         `json:"user_id,omitempty"`
	Turns        []Turn         `json:"turns"`
	SymptomFrame SymptomFrame   `json:"symptom_frame"`
	Triage       *TriageResult  `json:"triage,omitempty"`
	Action       *ActionPlan    `json:"action,omitempty"`
	Summary      *SummaryResult `json:"summary,omitempty"`
	Status       Status         `json:"status"`
	Version      int64          `json:"version"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

func NewCase(id, userID string, now time.Time) *Case {
	return &Case{
		ID:           id,
		UserID:       userID,
		Turns:        []Turn{},
		SymptomFrame: SymptomFrame{AssociatedSymptoms: []string{}},
		Status:       StatusAwaitingInput,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// RecentTurns returns at most the n most recent turns, oldest first.
func (c *Case) RecentTurns(n int) []Turn {
	if n <= 0 || len(c.Turns) == 0 {
		return nil
	}
	start := len(c.Turns) - n
	if start < 0 {
		start = 0
	}
	out := make([]Turn, len(c.Turns)-start)
	copy(out, c.Turns[start:])
	return out
}

// Clone returns a deep copy so stored snapshots never alias caller memory.
func (c *Case) Clone() *Case {
	if c == nil {
		return nil
	}
	out := *c
	out.Turns = append([]Turn{}, c.Turns...)
	out.SymptomFrame = SymptomFrame{}.Merge(c.SymptomFrame)
	if c.Triage != nil {
		t := *c.Triage
		t.RedFlagsTriggered = append([]string{}, c.Triage.RedFlagsTriggered...)
		if c.Triage.Confidence != nil {
			v := *c.Triage.Confidence
			t.Confidence = &v
		}
		out.Triage = &t
	}
	if c.Action != nil {
		a := *c.Action
		a.Instructions = append([]string{}, c.Action.Instructions...)
		a.Resources = append([]string{}, c.Action.Resources...)
		out.Action = &a
	}
	if c.Summary != nil {
		s := *c.Summary
		out.Summary = &s
	}
	return &out
}

// TurnInput is a single user message addressed to a case.
type TurnInput struct {
	CaseID  string
	UserID  string
	Message string
}

// TurnResult is what a processed turn hands back to the caller.
type TurnResult struct {
	CaseID     string         `json:"case_id"`
	Status     Status         `json:"status"`
	Stage      Stage          `json:"stage"`
	Symptoms   SymptomFrame   `json:"symptoms"`
	Triage     *TriageResult  `json:"triage,omitempty"`
	Action     *ActionPlan    `json:"action,omitempty"`
	Summary    *SummaryResult `json:"summary,omitempty"`
	Message    string         `json:"message"`
	Disclaimer string         `json:"disclaimer"`
	Degraded   []StageFailure `json:"degraded,omitempty"`
}
