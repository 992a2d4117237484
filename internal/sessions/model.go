package sessions

import "time"

// Steps of an onboarding session, in order. WaitingExtraction only appears
// under the strict policy where the extraction wait is a visible step.
const (
	StepWebsite           = "website"
	StepDocument          = "document"
	StepWaitingExtraction = "waiting_extraction"
	StepQuestionnaire     = "questionnaire"
	StepCalculating       = "calculating"
	StepDone              = "done"
)

// Applicant kinds. Kind only changes greeting copy; the state set is fixed.
const (
	KindFounder  = "founder"
	KindInvestor = "investor"
)

// Message roles.
const (
	RoleAssistant = "assistant"
	RoleUser      = "user"
)

// Message is one chat-log entry. IDs are sequence-local to the session.
// The log is append-only; no edits or deletes.
type Message struct {
	ID      int       `json:"id"`
	Role    string    `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// Session is the persisted unit of orchestration state for one onboarding
// attempt. Live bookkeeping (question collector, cancellation, waiters)
// stays in the service and never touches the repo.
type Session struct {
	ID             string
	UserID         string
	Kind           string
	Step           string
	WebsiteURL     string
	DocumentKey    string
	QuestionCursor int
	Answers        map[string]string
	CompletedAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
