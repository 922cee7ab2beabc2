package classifier

import (
	"regexp"
	"strconv"
	"strings"

	"triage-agent/internal/triage"
)

// Rule is a named red flag. Match sees the normalized message joined with
// the flattened symptom frame, plus the frame itself.
type Rule struct {
	ID          string
	Severity    triage.Severity
	Description string
	// PrimaryCare marks AMBER flags that a GP appointment can handle.
	PrimaryCare bool
	Match       func(text string, frame triage.SymptomFrame) bool
}

var (
	chestPain   = regexp.MustCompile(`chest (pain|tightness|pressure|hurts)|pain in (my |the )?chest|(crushing|squeezing) (feeling in (my )?)?chest`)
	breathless  = regexp.MustCompile(`short(ness)? of breath|breathless|difficulty breathing|hard to breathe|trouble breathing|can'?t breathe|cannot breathe|unable to breathe|struggling to breathe|wheez`)
	cannotBreat = regexp.MustCompile(`can'?t breathe|cannot breathe|unable to breathe|struggling to breathe|gasping|choking|(lips?|face) (are |is )?(turning )?blue`)
	cardiacSign = regexp.MustCompile(`radiat|left arm|(my |the )?jaw|sweat|crushing|clammy`)
	thunderclap = regexp.MustCompile(`thunderclap|worst headache|sudden(ly)?,? (severe|excruciating|explosive) headache|headache (that )?(came on|started) (very )?sudden`)
	hematemesis = regexp.MustCompile(`vomit(ing|ed)? (up )?blood|throw(ing)? up blood|threw up blood|hematemesis|haematemesis|coffee[- ]ground`)
	strokeSigns = regexp.MustCompile(`face (is )?droop|facial droop|slurred speech|can'?t (move|feel) (my )?(arm|leg|one side)|weakness (on|in) one side|numb(ness)? (on|in) one side|one side of (my )?(body|face)`)
	anaphylaxis = regexp.MustCompile(`anaphyla|(throat|tongue|lips?) (is |are )?(swelling|swollen|closing)`)
	unconscious = regexp.MustCompile(`passed out|fainted|unconscious|unresponsive|loss of consciousness|seizure|convuls`)
	suicidal    = regexp.MustCompile(`suicid|kill myself|end my life|want to die|self[- ]harm|(want|going|trying|plan(ning)?|urge) to (hurt|cut) myself|thinking (about|of) (hurting|cutting) myself|cutting myself`)
	bleeding    = regexp.MustCompile(`(bleeding|blood) (that )?(won'?t|will not|doesn'?t|does not) stop|uncontrolled bleeding|heavy bleeding|bleeding heavily`)

	highFever    = regexp.MustCompile(`high (fever|temperature)|(fever|temperature|temp) (of |over |above |is )?(39|40|41|102|103|104|105)\b`)
	severePain   = regexp.MustCompile(`(severe|excruciating|unbearable|intense|agoni[sz]ing)\s+([a-z]+\s+){0,3}(pain|ache|headache)`)
	painScore    = regexp.MustCompile(`\b([7-9]|10)\s*(/|out of)\s*10\b`)
	persistent   = regexp.MustCompile(`persistent|won'?t go away|not (getting )?better|for (over |more than )?(\d+|two|three|four|several|a few|many) (weeks|months)|for (a|one) (week|month)|\b(\d+|two|three|several) weeks\b`)
	vomiting     = regexp.MustCompile(`can'?t keep (anything|food|water|fluids|liquids) down|keep (vomiting|throwing up)|(vomiting|throwing up) (for|all|since|every)`)
	bloodInStool = regexp.MustCompile(`blood in (my |the )?(stool|urine|poo|pee)|bloody (stool|urine|diarrh)|black,? tarry stool`)
	fever        = regexp.MustCompile(`fever|temperature|feverish`)
	youngChild   = regexp.MustCompile(`\b(baby|infant|newborn|toddler)\b|\d+[- ]?month[- ]old`)
	pregnant     = regexp.MustCompile(`pregnan`)
	pregConcern  = regexp.MustCompile(`pain|bleed|cramp|spotting|fluid|headache`)
)

func re(p *regexp.Regexp) func(string, triage.SymptomFrame) bool {
	return func(text string, _ triage.SymptomFrame) bool { return p.MatchString(text) }
}

// DefaultRules is the rule table in evaluation order.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID: "chest_pain_with_breathlessness", Severity: triage.SeverityRed,
			Description: "chest pain with difficulty breathing",
			Match: func(text string, _ triage.SymptomFrame) bool {
				return chestPain.MatchString(text) && breathless.MatchString(text)
			},
		},
		{
			ID: "cardiac_chest_pain", Severity: triage.SeverityRed,
			Description: "chest pain with cardiac features (radiation, sweating, crushing quality)",
			Match: func(text string, _ triage.SymptomFrame) bool {
				return chestPain.MatchString(text) && cardiacSign.MatchString(text)
			},
		},
		{ID: "severe_breathing_difficulty", Severity: triage.SeverityRed, Description: "inability to breathe", Match: re(cannotBreat)},
		{ID: "thunderclap_headache", Severity: triage.SeverityRed, Description: "sudden severe (thunderclap) headache", Match: re(thunderclap)},
		{ID: "hematemesis", Severity: triage.SeverityRed, Description: "vomiting blood", Match: re(hematemesis)},
		{ID: "stroke_signs", Severity: triage.SeverityRed, Description: "possible stroke signs", Match: re(strokeSigns)},
		{ID: "anaphylaxis", Severity: triage.SeverityRed, Description: "possible anaphylaxis", Match: re(anaphylaxis)},
		{ID: "loss_of_consciousness", Severity: triage.SeverityRed, Description: "loss of consciousness or seizure", Match: re(unconscious)},
		{ID: "suicidal_ideation", Severity: triage.SeverityRed, Description: "risk of self-harm", Match: re(suicidal)},
		{ID: "uncontrolled_bleeding", Severity: triage.SeverityRed, Description: "bleeding that will not stop", Match: re(bleeding)},

		{ID: "chest_discomfort", Severity: triage.SeverityAmber, Description: "chest discomfort", Match: re(chestPain)},
		{ID: "shortness_of_breath", Severity: triage.SeverityAmber, Description: "shortness of breath", Match: re(breathless)},
		{ID: "high_fever", Severity: triage.SeverityAmber, Description: "high fever", PrimaryCare: true, Match: re(highFever)},
		{
			ID: "severe_pain", Severity: triage.SeverityAmber,
			Description: "severe pain",
			Match: func(text string, frame triage.SymptomFrame) bool {
				return severePain.MatchString(text) || painScore.MatchString(text) || selfRatedSevere(frame.SeveritySelf)
			},
		},
		{ID: "persistent_symptoms", Severity: triage.SeverityAmber, Description: "persistent symptoms", PrimaryCare: true, Match: re(persistent)},
		{ID: "persistent_vomiting", Severity: triage.SeverityAmber, Description: "persistent vomiting", Match: re(vomiting)},
		{ID: "blood_in_stool_or_urine", Severity: triage.SeverityAmber, Description: "blood in stool or urine", Match: re(bloodInStool)},
		{
			ID: "vulnerable_age_fever", Severity: triage.SeverityAmber,
			Description: "fever in an infant or older adult",
			Match: func(text string, frame triage.SymptomFrame) bool {
				if !fever.MatchString(text) {
					return false
				}
				switch triage.Deref(frame.AgeBand, "") {
				case "infant", "older_adult":
					return true
				}
				return youngChild.MatchString(text)
			},
		},
		{
			ID: "pregnancy_concern", Severity: triage.SeverityAmber,
			Description: "symptoms during pregnancy",
			Match: func(text string, _ triage.SymptomFrame) bool {
				return pregnant.MatchString(text) && pregConcern.MatchString(text)
			},
		},
	}
}

// selfRatedSevere reports a self rating of 7/10 or more, or a severe wording.
func selfRatedSevere(s *string) bool {
	if s == nil {
		return false
	}
	v := strings.ToLower(*s)
	switch v {
	case "severe", "very severe", "extreme", "unbearable":
		return true
	}
	fields := strings.FieldsFunc(v, func(r rune) bool { return r < '0' || r > '9' })
	if len(fields) == 0 {
		return false
	}
	n, err := strconv.Atoi(fields[0])
	return err == nil && n >= 7 && n <= 10
}
