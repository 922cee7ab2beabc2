package extractor

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

type stubUnderstanding struct {
	reply   string
	err     error
	delay   time.Duration
	history []triage.Turn
}

func (s *stubUnderstanding) UnderstandSymptoms(ctx context.Context, message string, history []triage.Turn, prior triage.SymptomFrame) (string, error) {
	s.history = history
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return s.reply, s.err
}

func TestParse_Valid(t *testing.T) {
	frame, err := Parse(`{"chief_complaint":"Headache","duration":"2 days","severity_self":6,` +
		`"age_band":"34","associated_symptoms":["Nausea"," nausea ","light sensitivity",""]}`)
	require.NoError(t, err)

	assert.Equal(t, "headache", *frame.ChiefComplaint)
	assert.Equal(t, "2 days", *frame.Duration)
	assert.Equal(t, "6", *frame.SeveritySelf)
	assert.Equal(t, "adult", *frame.AgeBand)
	assert.Equal(t, []string{"nausea", "light sensitivity"}, frame.AssociatedSymptoms)
}

func TestParse_TolerantOfShapes(t *testing.T) {
	raw := "Here is the result:\n```json\n" +
		`{"chief_complaint": null, "duration": "unknown", "severity_self": {"score": 3},` +
		` "associated_symptoms": "Cough; runny nose, cough", "mood": "anxious"}` + "\n```"

	frame, err := Parse(raw)
	require.NoError(t, err)

	assert.Nil(t, frame.ChiefComplaint)
	assert.Nil(t, frame.Duration)
	assert.Nil(t, frame.SeveritySelf)
	assert.Nil(t, frame.AgeBand)
	assert.Equal(t, []string{"cough", "runny nose"}, frame.AssociatedSymptoms)
}

func TestParse_Malformed(t *testing.T) {
	for _, raw := range []string{"", "I cannot help with that", `{"chief_complaint": `, "[1,2]"} {
		frame, err := Parse(raw)
		assert.ErrorIs(t, err, triage.ErrMalformedResponse, raw)
		assert.True(t, frame.Empty(), raw)
	}
}

func TestAgeBand(t *testing.T) {
	for in, want := range map[string]string{
		"6 months":    "infant",
		"0":           "infant",
		"7":           "child",
		"16 years":    "adolescent",
		"40":          "adult",
		"82":          "older_adult",
		"Older Adult": "older_adult",
	} {
		s := in
		got := AgeBand(&s)
		require.NotNil(t, got, in)
		assert.Equal(t, want, *got, in)
	}
	assert.Nil(t, AgeBand(nil))
}

func TestExtract_Success(t *testing.T) {
	svc := &stubUnderstanding{reply: `{"chief_complaint":"sore throat","associated_symptoms":["fever"]}`}
	e := New(svc, time.Second, zap.NewNop())
	recent := []triage.Turn{{UserMessage: "hi"}}

	res := e.Extract(context.Background(), "sore throat and fever", recent, triage.SymptomFrame{})

	assert.Nil(t, res.Failure)
	assert.Equal(t, "sore throat", *res.Frame.ChiefComplaint)
	assert.Equal(t, recent, svc.history)
}

func TestExtract_FallsBackToEmptyFrame(t *testing.T) {
	cases := []struct {
		name   string
		svc    *stubUnderstanding
		reason triage.FailureReason
	}{
		{"unavailable", &stubUnderstanding{err: triage.ErrServiceUnavailable}, triage.ReasonServiceUnavailable},
		{"malformed", &stubUnderstanding{reply: "sorry"}, triage.ReasonMalformedResponse},
		{"timeout", &stubUnderstanding{reply: "{}", delay: time.Second}, triage.ReasonTimeout},
		{"unexpected", &stubUnderstanding{err: errors.New("boom")}, triage.ReasonInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := New(tc.svc, 20*time.Millisecond, zap.NewNop())

			res := e.Extract(context.Background(), "my knee hurts", nil, triage.SymptomFrame{})

			require.NotNil(t, res.Failure)
			assert.Equal(t, tc.reason, res.Failure.Reason)
			assert.Equal(t, triage.StageExtracting, res.Failure.Stage)
			assert.True(t, res.Frame.Empty())
			assert.NotNil(t, res.Frame.AssociatedSymptoms)
		})
	}
}
