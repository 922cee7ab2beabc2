// Package extractor turns a free-text message into a partial symptom frame.
// Language understanding is delegated; validation and defaulting are not.
package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"triage-agent/internal/triage"
)

// TextUnderstanding returns a JSON object describing the symptoms in message.
type TextUnderstanding interface {
	UnderstandSymptoms(ctx context.Context, message string, history []triage.Turn, prior triage.SymptomFrame) (string, error)
}

type Extractor struct {
	svc     TextUnderstanding
	timeout time.Duration
	logger  *zap.Logger
}

func New(svc TextUnderstanding, timeout time.Duration, logger *zap.Logger) *Extractor {
	return &Extractor{svc: svc, timeout: timeout, logger: logger}
}

// Extract never fails: on any service problem the frame is all-null and the
// failure is reported alongside it.
func (e *Extractor) Extract(ctx context.Context, message string, recent []triage.Turn, prior triage.SymptomFrame) triage.ExtractionResult {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	raw, err := e.svc.UnderstandSymptoms(ctx, message, recent, prior)
	if err == nil {
		var frame triage.SymptomFrame
		if frame, err = Parse(raw); err == nil {
			return triage.ExtractionResult{Frame: frame}
		}
	}

	failure := triage.NewStageFailure(triage.StageExtracting, err)
	e.logger.Warn("symptom extraction failed, continuing with empty frame",
		zap.String("reason", string(failure.Reason)), zap.Error(err))
	return triage.ExtractionResult{Frame: emptyFrame(), Failure: failure}
}

func emptyFrame() triage.SymptomFrame {
	return triage.SymptomFrame{AssociatedSymptoms: []string{}}
}

// Parse validates a service reply. Unknown or mistyped fields become null;
// only a reply that holds no JSON object at all is malformed.
func Parse(raw string) (triage.SymptomFrame, error) {
	body := jsonObject(raw)
	if body == "" {
		return emptyFrame(), fmt.Errorf("%w: no JSON object in reply", triage.ErrMalformedResponse)
	}
	var fields map[string]any
	if err := json.Unmarshal([]byte(body), &fields); err != nil {
		return emptyFrame(), fmt.Errorf("%w: %v", triage.ErrMalformedResponse, err)
	}

	frame := triage.SymptomFrame{
		ChiefComplaint:     lowerField(fields["chief_complaint"]),
		Duration:           lowerField(fields["duration"]),
		SeveritySelf:       lowerField(fields["severity_self"]),
		AgeBand:            AgeBand(textField(fields["age_band"])),
		AssociatedSymptoms: symptomsField(fields["associated_symptoms"]),
	}
	return frame, nil
}

// jsonObject cuts the outermost {...} out of a reply that may carry prose or
// markdown fences around it.
func jsonObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return ""
	}
	return raw[start : end+1]
}

var nullWords = map[string]struct{}{
	"": {}, "null": {}, "none": {}, "unknown": {}, "n/a": {}, "na": {}, "not specified": {}, "not stated": {},
}

func textField(v any) *string {
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return nil
	}
	s = strings.TrimSpace(s)
	if _, null := nullWords[strings.ToLower(s)]; null {
		return nil
	}
	return &s
}

func lowerField(v any) *string {
	p := textField(v)
	if p == nil {
		return nil
	}
	s := strings.ToLower(*p)
	return &s
}

func symptomsField(v any) []string {
	var tokens []string
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			if s := textField(item); s != nil {
				tokens = append(tokens, *s)
			}
		}
	case string:
		tokens = strings.FieldsFunc(t, func(r rune) bool { return r == ',' || r == ';' || r == '\n' })
	}
	out := triage.NormalizeSymptoms(tokens)
	filtered := out[:0]
	for _, s := range out {
		if _, null := nullWords[s]; !null {
			filtered = append(filtered, s)
		}
	}
	return filtered
}

// AgeBand buckets an age ("34", "34 years", "6 months") or passes an
// already bucketed label through in snake case.
func AgeBand(p *string) *string {
	if p == nil {
		return nil
	}
	v := strings.ToLower(*p)
	digits := strings.FieldsFunc(v, func(r rune) bool { return r < '0' || r > '9' })
	if len(digits) == 0 {
		band := strings.Join(strings.Fields(v), "_")
		return &band
	}
	n, err := strconv.Atoi(digits[0])
	if err != nil {
		return nil
	}
	var band string
	switch {
	case strings.Contains(v, "month") || strings.Contains(v, "week") || n < 1:
		band = "infant"
	case n < 13:
		band = "child"
	case n < 18:
		band = "adolescent"
	case n < 65:
		band = "adult"
	default:
		band = "older_adult"
	}
	return &band
}
