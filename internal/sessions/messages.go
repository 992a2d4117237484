package sessions

import (
	"fmt"

	"onboarding-backend/internal/questionnaire"
)

const (
	greetingFounder = "Welcome! I'll help you get set up. To start, what's your company's website?"

	greetingInvestor = "Welcome! I'll help you get set up. To start, what's your firm's website?"

	promptDocumentFounder = "Great, got it. Now upload your pitch deck (PDF, up to 5 MB)."

	promptDocumentInvestor = "Great, got it. Now upload your investment thesis document (PDF, up to 5 MB)."

	msgDocumentSaved = "Your document is saved. While we read through it, a few quick questions."

	msgProcessing = "Thanks, that's everything. We're putting your profile together now, this usually takes a minute or two."

	msgDone = "All set! Your profile is ready."

	msgSubmitFailed = "Something went wrong while saving your answers. Please try submitting again."
)

func greetingFor(kind string) string {
	if kind == KindInvestor {
		return greetingInvestor
	}
	return greetingFounder
}

func promptDocumentFor(kind string) string {
	if kind == KindInvestor {
		return promptDocumentInvestor
	}
	return promptDocumentFounder
}

func questionPrompt(q questionnaire.Question, index, total int) string {
	return fmt.Sprintf("Question %d of %d: %s", index+1, total, q.Title)
}

func otherPrompt(q questionnaire.Question) string {
	return fmt.Sprintf("Tell us in your own words: %s", q.Title)
}
