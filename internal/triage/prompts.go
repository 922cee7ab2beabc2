package triage

const Disclaimer = "This is AI-generated advice and not a substitute for professional medical consultation."

const clarifyingPrompt = "I'd like to help. Could you tell me what symptoms you're experiencing, " +
	"when they started, and how severe they feel on a scale of 1 to 10?"

var replyBySeverity = map[Severity]string{
	SeverityRed: "Based on your symptoms, this requires immediate medical attention. " +
		"Please call emergency services or go to the nearest emergency room right away. " +
		"Your safety is our priority.",
	SeverityAmber: "I recommend speaking with a healthcare provider soon about your symptoms. " +
		"I can help you book an appointment with a doctor or nurse practitioner. " +
		"In the meantime, please follow the instructions below.",
	SeverityGreen: "Based on what you've told me, this appears manageable with self-care. " +
		"I'll provide some recommendations, but please monitor your symptoms. " +
		"If things worsen, don't hesitate to seek medical advice.",
}

// ReplyFor is the conversational reply for a severity tier.
func ReplyFor(s Severity) string {
	if msg, ok := replyBySeverity[s]; ok {
		return msg
	}
	return replyBySeverity[SeverityAmber]
}

// ClarifyingPrompt is returned when a first turn carries no usable information.
func ClarifyingPrompt() string { return clarifyingPrompt }
