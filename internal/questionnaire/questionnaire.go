// Package questionnaire manages the six-question profile survey: sequential
// cursor state, the "other" free-text branch, multi-select accumulation, and
// final payload assembly.
package questionnaire

import (
	"errors"
	"fmt"
	"strings"
)

// OtherSentinel is the option value that opens a free-text follow-up.
const OtherSentinel = "other"

// OtherSuffix is appended to a question key to form its override field.
const OtherSuffix = "_other"

var (
	ErrAwaitingOther   = errors.New("awaiting free-text answer for a previous question")
	ErrWrongQuestion   = errors.New("answer does not match the current question")
	ErrNotMultiSelect  = errors.New("question is not multi-select")
	ErrMultiSelect     = errors.New("question is multi-select; use Toggle and Confirm")
	ErrNothingSelected = errors.New("no values selected")
	ErrEmptyAnswer     = errors.New("answer must not be empty")
	ErrIncomplete      = errors.New("questionnaire incomplete")
	ErrMissingOther    = errors.New("missing free-text for an \"other\" answer")
)

// Question pairs a stable storage key with its display title. Keys are
// explicit rather than derived from titles so copy changes never move data.
type Question struct {
	Key     string
	Title   string
	Multi   bool
	Options []string
}

// DefaultQuestions is the canonical six-question survey.
func DefaultQuestions() []Question {
	return []Question{
		{
			Key:     "primary_sector",
			Title:   "Which sector best describes your company?",
			Multi:   true,
			Options: []string{"fintech", "healthtech", "edtech", "saas", "deeptech", "consumer", "climate"},
		},
		{
			Key:     "product_status",
			Title:   "Where is your product today?",
			Options: []string{"idea", "prototype", "beta", "live", "scaling", OtherSentinel},
		},
		{
			Key:     "funding_stage",
			Title:   "What stage are you raising at?",
			Options: []string{"pre_seed", "seed", "series_a", "series_b_plus", OtherSentinel},
		},
		{
			Key:     "round_target",
			Title:   "How much are you looking to raise?",
			Options: []string{"under_500k", "500k_to_1m", "1m_to_3m", "over_3m", OtherSentinel},
		},
		{
			Key:     "entity_type",
			Title:   "How is the company incorporated?",
			Options: []string{"c_corp", "llc", "ltd", "gmbh", "not_incorporated", OtherSentinel},
		},
		{
			Key:     "revenue_model",
			Title:   "How do you make money?",
			Options: []string{"subscription", "transactional", "licensing", "advertising", "services", OtherSentinel},
		},
	}
}

// Collector walks the ordered question list and records answers.
type Collector struct {
	questions []Question
	cursor    int
	answers   map[string]string
	otherKey  string   // question awaiting free text, empty if none
	pending   []string // accumulated multi-select values for the current question
}

// NewCollector builds a Collector over the given questions.
func NewCollector(questions []Question) *Collector {
	if len(questions) == 0 {
		questions = DefaultQuestions()
	}
	return &Collector{
		questions: questions,
		answers:   make(map[string]string, len(questions)),
	}
}

// Cursor returns the index of the current question.
func (c *Collector) Cursor() int {
	return c.cursor
}

// SetCursor positions the collector, used when resuming a session.
func (c *Collector) SetCursor(i int) {
	if i < 0 {
		i = 0
	}
	if i > len(c.questions) {
		i = len(c.questions)
	}
	c.cursor = i
	c.otherKey = ""
	c.pending = nil
}

// Current returns the active question, or false when all are answered.
func (c *Collector) Current() (Question, bool) {
	if c.cursor >= len(c.questions) {
		return Question{}, false
	}
	return c.questions[c.cursor], true
}

// Complete reports whether every question has been answered.
func (c *Collector) Complete() bool {
	return c.cursor >= len(c.questions)
}

// AwaitingOther returns the key blocked on free text, or empty.
func (c *Collector) AwaitingOther() string {
	return c.otherKey
}

// PendingValues returns the accumulated multi-select values for the current
// question.
func (c *Collector) PendingValues() []string {
	out := make([]string, len(c.pending))
	copy(out, c.pending)
	return out
}

// Answer records a single-select answer for the current question. Choosing
// the "other" sentinel enters a free-text micro-state scoped to that key;
// until AnswerOther resolves it, no other answer is accepted. Re-answering
// the same key with a concrete value discards the pending "other".
func (c *Collector) Answer(key, value string) error {
	q, ok := c.Current()
	if !ok {
		return ErrWrongQuestion
	}
	if c.otherKey != "" && c.otherKey != key {
		return ErrAwaitingOther
	}
	if q.Key != key {
		return fmt.Errorf("%w: got %q, current is %q", ErrWrongQuestion, key, q.Key)
	}
	if q.Multi {
		return ErrMultiSelect
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return ErrEmptyAnswer
	}
	if value == OtherSentinel {
		c.otherKey = key
		return nil
	}
	// Switching away from a pending "other" discards the partial entry.
	c.otherKey = ""
	delete(c.answers, key+OtherSuffix)
	c.answers[key] = value
	c.cursor++
	return nil
}

// AnswerOther resolves the free-text micro-state for key.
func (c *Collector) AnswerOther(key, text string) error {
	if c.otherKey == "" || c.otherKey != key {
		return fmt.Errorf("%w: no pending \"other\" for %q", ErrWrongQuestion, key)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyAnswer
	}
	c.answers[key] = OtherSentinel
	c.answers[key+OtherSuffix] = text
	c.otherKey = ""
	c.cursor++
	return nil
}

// Toggle adds or removes a value from the current multi-select question.
func (c *Collector) Toggle(key, value string) error {
	q, ok := c.Current()
	if !ok {
		return ErrWrongQuestion
	}
	if c.otherKey != "" {
		return ErrAwaitingOther
	}
	if q.Key != key {
		return fmt.Errorf("%w: got %q, current is %q", ErrWrongQuestion, key, q.Key)
	}
	if !q.Multi {
		return ErrNotMultiSelect
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return ErrEmptyAnswer
	}
	for i, v := range c.pending {
		if v == value {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			return nil
		}
	}
	c.pending = append(c.pending, value)
	return nil
}

// Confirm joins the pending multi-select values, comma-separated, into the
// stored answer and advances. An empty pending set is rejected, which is
// what disables the confirm action in the UI.
func (c *Collector) Confirm(key string) error {
	q, ok := c.Current()
	if !ok {
		return ErrWrongQuestion
	}
	if q.Key != key {
		return fmt.Errorf("%w: got %q, current is %q", ErrWrongQuestion, key, q.Key)
	}
	if !q.Multi {
		return ErrNotMultiSelect
	}
	if len(c.pending) == 0 {
		return ErrNothingSelected
	}
	c.answers[key] = strings.Join(c.pending, ",")
	c.pending = nil
	c.cursor++
	return nil
}

// Answers returns a copy of the recorded answers so far.
func (c *Collector) Answers() map[string]string {
	out := make(map[string]string, len(c.answers))
	for k, v := range c.answers {
		out[k] = v
	}
	return out
}

// Restore loads previously recorded answers, used when resuming.
func (c *Collector) Restore(answers map[string]string) {
	for k, v := range answers {
		if v != "" {
			c.answers[k] = v
		}
	}
}

// Payload validates the completeness invariant and assembles the submission
// body: every question answered, and every "other" answer carrying a
// non-empty trimmed override. No partial payload is ever returned.
func (c *Collector) Payload() (map[string]string, error) {
	out := make(map[string]string, len(c.answers))
	for _, q := range c.questions {
		v := strings.TrimSpace(c.answers[q.Key])
		if v == "" {
			return nil, fmt.Errorf("%w: %s unanswered", ErrIncomplete, q.Key)
		}
		out[q.Key] = v
		if v == OtherSentinel {
			other := strings.TrimSpace(c.answers[q.Key+OtherSuffix])
			if other == "" {
				return nil, fmt.Errorf("%w: %s", ErrMissingOther, q.Key)
			}
			out[q.Key+OtherSuffix] = other
		}
	}
	return out, nil
}
