package agent

import (
	"context"
	"encoding/json"
	"regexp"
	"sort"
	"strings"

	"triage-agent/internal/triage"
)

type vocabEntry struct {
	name    string
	pattern *regexp.Regexp
}

func vocab(name, pattern string) vocabEntry {
	return vocabEntry{name: name, pattern: regexp.MustCompile(pattern)}
}

var symptomVocab = []vocabEntry{
	vocab("chest pain", `chest (pain|tightness|pressure)|pain in (my |the )?chest`),
	vocab("shortness of breath", `short(ness)? of breath|breathless|can'?t breathe|cannot breathe|difficulty breathing|hard to breathe`),
	vocab("headache", `headache|migraine|head (hurts|is pounding)`),
	vocab("fever", `fever|high temperature|feverish`),
	vocab("cough", `cough`),
	vocab("sore throat", `sore throat|throat (hurts|is sore)`),
	vocab("runny nose", `runny nose|blocked nose|stuffy nose|congest`),
	vocab("sneezing", `sneez`),
	vocab("nausea", `nause|feel(ing)? sick`),
	vocab("vomiting", `vomit|throwing up|threw up`),
	vocab("diarrhoea", `diarrh`),
	vocab("abdominal pain", `stomach (ache|pain|hurts)|abdominal pain|tummy (ache|pain)|belly (ache|pain)`),
	vocab("back pain", `back (pain|ache|hurts)|backache`),
	vocab("dizziness", `dizz|light[- ]?headed|vertigo`),
	vocab("fatigue", `fatigue|tired|exhausted|lack of energy`),
	vocab("rash", `rash|hives`),
	vocab("itching", `itch`),
	vocab("sweating", `sweat`),
	vocab("chills", `chills|shivering`),
	vocab("palpitations", `palpitation|heart (is )?racing|pounding heart`),
	vocab("numbness", `numb|tingling`),
	vocab("swelling", `swell|swollen`),
	vocab("joint pain", `joint pain|(knee|hip|ankle|wrist|elbow|shoulder) (pain|hurts)|my (knee|hip|ankle|wrist|elbow|shoulder) hurts`),
	vocab("muscle aches", `muscle (ache|pain)s?|body aches`),
	vocab("earache", `ear ?ache|ear (pain|hurts)`),
	vocab("toothache", `tooth ?ache|tooth (pain|hurts)`),
	vocab("bleeding", `bleed`),
	vocab("confusion", `confus|disorient`),
	vocab("painful urination", `burn(s|ing)? when (i )?(pee|urinate)|painful urination`),
}

var (
	durationPattern = regexp.MustCompile(`(?:for|since|started|began|starting|lasted)\s+((?:about |around |over |almost |nearly )?` +
		`(?:an?|\d+|one|two|three|four|five|six|seven|ten|a few|few|several|a couple of|couple of)\s+` +
		`(?:minute|hour|day|week|month|year)s?(?:\s+ago)?)`)
	agoPattern     = regexp.MustCompile(`((?:an?|\d+|one|two|three|four|five|a few|several)\s+(?:minute|hour|day|week|month|year)s?\s+ago)`)
	sincePattern   = regexp.MustCompile(`since\s+(yesterday|last night|this morning|this afternoon|last week|monday|tuesday|wednesday|thursday|friday|saturday|sunday)`)
	scorePattern   = regexp.MustCompile(`\b(\d{1,2})\s*(?:/|out of)\s*10\b`)
	severityWord   = regexp.MustCompile(`\b(mild|slight|moderate|severe|terrible|excruciating|unbearable|intense)\b`)
	ageYearPattern = regexp.MustCompile(`\b(\d{1,3})[- ]?(?:years?|yrs?|y/?o)(?:[- ]old)?\b`)
	ageMonthPat    = regexp.MustCompile(`\b(\d{1,2})[- ]?months?[- ]old\b`)
	infantWords    = regexp.MustCompile(`\b(baby|infant|newborn)\b`)
	childWords     = regexp.MustCompile(`\b(toddler|my (son|daughter|child|kid))\b`)
)

// Lexicon is an offline Text Understanding service based on keyword
// matching. It is used when no text service is configured.
type Lexicon struct{}

func NewLexicon() *Lexicon { return &Lexicon{} }

type lexiconFrame struct {
	ChiefComplaint     *string  `json:"chief_complaint"`
	Duration           *string  `json:"duration"`
	SeveritySelf       *string  `json:"severity_self"`
	AgeBand            *string  `json:"age_band"`
	AssociatedSymptoms []string `json:"associated_symptoms"`
}

func (l *Lexicon) UnderstandSymptoms(ctx context.Context, message string, _ []triage.Turn, _ triage.SymptomFrame) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	text := triage.StripNegated(strings.ToLower(strings.ReplaceAll(message, "’", "'")))

	type hit struct {
		name string
		at   int
	}
	var hits []hit
	for _, v := range symptomVocab {
		if loc := v.pattern.FindStringIndex(text); loc != nil {
			hits = append(hits, hit{name: v.name, at: loc[0]})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].at < hits[j].at })

	out := lexiconFrame{AssociatedSymptoms: make([]string, 0, len(hits))}
	for _, h := range hits {
		out.AssociatedSymptoms = append(out.AssociatedSymptoms, h.name)
	}
	if len(hits) > 0 {
		out.ChiefComplaint = &hits[0].name
	}
	out.Duration = firstGroup(text, durationPattern, agoPattern, sincePattern)
	if m := scorePattern.FindStringSubmatch(text); m != nil {
		score := m[1] + "/10"
		out.SeveritySelf = &score
	} else {
		out.SeveritySelf = firstGroup(text, severityWord)
	}
	out.AgeBand = ageBand(text)

	b, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func firstGroup(text string, patterns ...*regexp.Regexp) *string {
	for _, p := range patterns {
		if m := p.FindStringSubmatch(text); m != nil {
			v := m[1]
			return &v
		}
	}
	return nil
}

func ageBand(text string) *string {
	if m := ageMonthPat.FindStringSubmatch(text); m != nil {
		v := m[1] + " months"
		return &v
	}
	if m := ageYearPattern.FindStringSubmatch(text); m != nil {
		return &m[1]
	}
	var band string
	switch {
	case infantWords.MatchString(text):
		band = "infant"
	case childWords.MatchString(text):
		band = "child"
	default:
		return nil
	}
	return &band
}
