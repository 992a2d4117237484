// Package sessions owns the onboarding session state machine: step
// transitions, the append-only message log, the questionnaire flow, and the
// two pipeline waits (extraction, readiness). Live sessions are held in
// memory and journaled to the repo; the live session is authoritative while
// the process is up.
package sessions

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"onboarding-backend/internal/deckcheck"
	"onboarding-backend/internal/poll"
	"onboarding-backend/internal/prefetch"
	"onboarding-backend/internal/queue"
	"onboarding-backend/internal/questionnaire"
	"onboarding-backend/internal/shared/metrics"
	"onboarding-backend/internal/shared/storage/object"
	"onboarding-backend/internal/shared/telemetry"
	"onboarding-backend/internal/statusclient"
)

// PipelineClient is the slice of the pipeline backend this service consumes.
type PipelineClient interface {
	SaveWebsite(ctx context.Context, orgID, website string) error
	UploadDocument(ctx context.Context, orgID, storageKey, fileName string, sizeBytes int64) error
	ExtractionStatus(ctx context.Context, orgID string) (statusclient.ExtractionStatus, error)
	SubmitQuestionnaire(ctx context.Context, orgID string, answers map[string]string) error
	ReadinessStatus(ctx context.Context, orgID string) (statusclient.ReadinessStatus, error)
	OnboardingStatus(ctx context.Context, orgID string) (statusclient.OnboardingStatus, error)
	ClearPartialState(ctx context.Context, orgID string) error
	ResetToStart(ctx context.Context, orgID string) error
}

// WaitConfig tunes the three polling loops.
type WaitConfig struct {
	TrackerInitialDelay  time.Duration
	TrackerInterval      time.Duration
	TrackerMaxAttempts   int
	BlockingWaitInterval time.Duration
	BlockingWaitCeiling  time.Duration
	ReadinessDelay       time.Duration
	ReadinessInterval    time.Duration
	ReadinessCeiling     time.Duration
}

// DefaultWaitConfig mirrors the production pipeline latencies.
func DefaultWaitConfig() WaitConfig {
	return WaitConfig{
		TrackerInitialDelay:  2 * time.Second,
		TrackerInterval:      3 * time.Second,
		TrackerMaxAttempts:   40,
		BlockingWaitInterval: 2 * time.Second,
		BlockingWaitCeiling:  3 * time.Minute,
		ReadinessDelay:       2 * time.Second,
		ReadinessInterval:    2500 * time.Millisecond,
		ReadinessCeiling:     5 * time.Minute,
	}
}

// Service contains the onboarding session business logic.
type Service struct {
	Repo     Repo
	Pipeline PipelineClient
	Store    object.ObjectStore
	Queue    queue.Client
	Prefetch *prefetch.Cache

	Questions []questionnaire.Question
	Waits     WaitConfig

	// StrictExtraction also requires the OCR artifact path before the
	// extraction wait completes.
	StrictExtraction bool

	mu     sync.Mutex
	active map[string]*live
}

// live is the in-memory state of one onboarding session. Its mutex guards
// every mutable field; waiters never touch these fields directly, they go
// through the setter methods below.
type live struct {
	mu sync.Mutex

	sess      Session
	collector *questionnaire.Collector
	msgs      []Message

	extractionReady  bool
	bootstrapStarted bool
	finalizing       bool

	// ctx is cancelled at teardown; every waiter is scoped to it.
	ctx     context.Context
	cancel  context.CancelFunc
	tracker *poll.Handle
}

func (lv *live) append(role, content string) Message {
	msg := Message{
		ID:      len(lv.msgs) + 1,
		Role:    role,
		Content: content,
		At:      time.Now().UTC(),
	}
	lv.msgs = append(lv.msgs, msg)
	return msg
}

// markExtractionReady flips the flag. Monotonic: there is no way back.
func (lv *live) markExtractionReady() {
	lv.mu.Lock()
	defer lv.mu.Unlock()
	lv.extractionReady = true
}

func (lv *live) extractionReadyNow() bool {
	lv.mu.Lock()
	defer lv.mu.Unlock()
	return lv.extractionReady
}

func (lv *live) cancelled() bool {
	return lv.ctx.Err() != nil
}

// Snapshot is the session state exposed to the UI layer.
type Snapshot struct {
	SessionID       string                  `json:"sessionId"`
	Kind            string                  `json:"kind"`
	Step            string                  `json:"step"`
	WebsiteURL      string                  `json:"websiteUrl,omitempty"`
	Messages        []Message               `json:"messages"`
	QuestionIndex   int                     `json:"questionIndex"`
	TotalQuestions  int                     `json:"totalQuestions"`
	CurrentQuestion *questionnaire.Question `json:"currentQuestion,omitempty"`
	PendingValues   []string                `json:"pendingValues,omitempty"`
	AwaitingOther   string                  `json:"awaitingOther,omitempty"`
	ExtractionReady bool                    `json:"extractionReady"`
	Completed       bool                    `json:"completed"`
	CompletedAt     *time.Time              `json:"completedAt,omitempty"`
}

func (s *Service) session(userID string) (*live, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lv, ok := s.active[userID]
	return lv, ok
}

func (s *Service) questionsOrDefault() []questionnaire.Question {
	if len(s.Questions) > 0 {
		return s.Questions
	}
	return questionnaire.DefaultQuestions()
}

// Start creates the live session if needed and seeds the greeting. Seeding
// only happens when the message log is empty, so repeated starts after a
// re-render or reconnect never duplicate the greeting.
func (s *Service) Start(ctx context.Context, userID, kind string) (Snapshot, error) {
	if userID == "" {
		return Snapshot{}, errors.New("userID is required")
	}
	if kind != KindInvestor {
		kind = KindFounder
	}

	s.mu.Lock()
	if s.active == nil {
		s.active = make(map[string]*live)
	}
	lv, ok := s.active[userID]
	if !ok {
		sessCtx, cancel := context.WithCancel(backgroundWithRequestID(ctx))
		now := time.Now().UTC()
		lv = &live{
			sess: Session{
				ID:        uuid.NewString(),
				UserID:    userID,
				Kind:      kind,
				Step:      StepWebsite,
				CreatedAt: now,
				UpdatedAt: now,
			},
			collector: questionnaire.NewCollector(s.questionsOrDefault()),
			ctx:       sessCtx,
			cancel:    cancel,
		}
		s.active[userID] = lv
	}
	s.mu.Unlock()

	lv.mu.Lock()
	seeded := false
	if len(lv.msgs) == 0 {
		msg := lv.append(RoleAssistant, greetingFor(lv.sess.Kind))
		seeded = true
		lv.mu.Unlock()
		metrics.IncSessionStarted()
		s.journal(ctx, lv)
		s.journalMessage(ctx, lv.sess.ID, msg)
	} else {
		lv.mu.Unlock()
	}
	if seeded {
		telemetry.Info("session.started", map[string]any{"user_id": userID, "kind": kind})
	}
	return s.snapshot(lv), nil
}

// SubmitWebsite validates the URL locally, persists it upstream, and moves
// the session to the document step. A validation failure makes no network
// call and changes nothing.
func (s *Service) SubmitWebsite(ctx context.Context, userID, raw string) (Snapshot, error) {
	lv, ok := s.session(userID)
	if !ok {
		return Snapshot{}, ErrNotFound
	}

	lv.mu.Lock()
	step := lv.sess.Step
	lv.mu.Unlock()
	if step == StepDone {
		return Snapshot{}, ErrCompleted
	}
	if step != StepWebsite {
		return Snapshot{}, fmt.Errorf("%w: step is %s", ErrWrongStep, step)
	}

	website, err := NormalizeWebsite(raw)
	if err != nil {
		return Snapshot{}, err
	}

	if err := s.Pipeline.SaveWebsite(ctx, userID, website); err != nil {
		telemetry.Error("session.save_website_failed", map[string]any{"user_id": userID, "error": err.Error()})
		return Snapshot{}, fmt.Errorf("%w: save website: %w", ErrUpstream, err)
	}

	lv.mu.Lock()
	userMsg := lv.append(RoleUser, website)
	promptMsg := lv.append(RoleAssistant, promptDocumentFor(lv.sess.Kind))
	lv.sess.WebsiteURL = website
	lv.sess.Step = StepDocument
	lv.sess.UpdatedAt = time.Now().UTC()
	lv.mu.Unlock()

	s.journal(ctx, lv)
	s.journalMessage(ctx, lv.sess.ID, userMsg)
	s.journalMessage(ctx, lv.sess.ID, promptMsg)
	return s.snapshot(lv), nil
}

// SubmitDocument checks the deck locally, stages it to the object store,
// notifies the pipeline, and advances to the questionnaire while the
// background extraction tracker starts polling.
func (s *Service) SubmitDocument(ctx context.Context, userID, fileName, mimeType string, data []byte) (Snapshot, error) {
	lv, ok := s.session(userID)
	if !ok {
		return Snapshot{}, ErrNotFound
	}

	lv.mu.Lock()
	step := lv.sess.Step
	website := lv.sess.WebsiteURL
	lv.mu.Unlock()
	if step == StepDone {
		return Snapshot{}, ErrCompleted
	}
	if step != StepDocument {
		return Snapshot{}, fmt.Errorf("%w: step is %s", ErrWrongStep, step)
	}
	if website == "" {
		return Snapshot{}, ErrWebsiteRequired
	}

	if err := deckcheck.Verify(data, mimeType, fileName); err != nil {
		return Snapshot{}, err
	}

	// Re-save the website; the upstream call is an idempotent upsert and
	// this heals a lost write from the previous step.
	if err := s.Pipeline.SaveWebsite(ctx, userID, website); err != nil {
		telemetry.Error("session.save_website_failed", map[string]any{"user_id": userID, "error": err.Error()})
		return Snapshot{}, fmt.Errorf("%w: save website: %w", ErrUpstream, err)
	}

	storageKey, sizeBytes, _, err := s.Store.Save(ctx, userID, fileName, bytes.NewReader(data))
	if err != nil {
		telemetry.Error("session.stage_document_failed", map[string]any{"user_id": userID, "error": err.Error()})
		return Snapshot{}, fmt.Errorf("stage document: %w", err)
	}

	if err := s.Pipeline.UploadDocument(ctx, userID, storageKey, fileName, sizeBytes); err != nil {
		telemetry.Error("session.upload_document_failed", map[string]any{"user_id": userID, "error": err.Error()})
		return Snapshot{}, fmt.Errorf("%w: upload document: %w", ErrUpstream, err)
	}

	lv.mu.Lock()
	userMsg := lv.append(RoleUser, fmt.Sprintf("Uploaded %s", fileName))
	savedMsg := lv.append(RoleAssistant, msgDocumentSaved)
	var questionMsg Message
	if q, ok := lv.collector.Current(); ok {
		questionMsg = lv.append(RoleAssistant, questionPrompt(q, lv.collector.Cursor(), len(s.questionsOrDefault())))
	}
	lv.sess.DocumentKey = storageKey
	lv.sess.Step = StepQuestionnaire
	lv.sess.UpdatedAt = time.Now().UTC()
	lv.tracker = s.startExtractionTracker(lv)
	lv.mu.Unlock()

	telemetry.Info("session.document_staged", map[string]any{
		"user_id":     userID,
		"storage_key": storageKey,
		"size_bytes":  sizeBytes,
	})

	s.journal(ctx, lv)
	s.journalMessage(ctx, lv.sess.ID, userMsg)
	s.journalMessage(ctx, lv.sess.ID, savedMsg)
	if questionMsg.ID != 0 {
		s.journalMessage(ctx, lv.sess.ID, questionMsg)
	}
	return s.snapshot(lv), nil
}

// Answer records a single-select answer for the current question. Choosing
// "other" opens the free-text follow-up instead of advancing.
func (s *Service) Answer(ctx context.Context, userID, key, value string) (Snapshot, error) {
	return s.answerWith(ctx, userID, value, func(c *questionnaire.Collector) error {
		return c.Answer(key, value)
	})
}

// AnswerOther resolves a pending "other" follow-up with free text.
func (s *Service) AnswerOther(ctx context.Context, userID, key, text string) (Snapshot, error) {
	return s.answerWith(ctx, userID, text, func(c *questionnaire.Collector) error {
		return c.AnswerOther(key, text)
	})
}

// Toggle adds or removes one value on the current multi-select question.
// Toggles are silent; only Confirm produces chat messages.
func (s *Service) Toggle(ctx context.Context, userID, key, value string) (Snapshot, error) {
	lv, ok := s.session(userID)
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	lv.mu.Lock()
	if lv.sess.Step != StepQuestionnaire {
		step := lv.sess.Step
		lv.mu.Unlock()
		if step == StepDone {
			return Snapshot{}, ErrCompleted
		}
		return Snapshot{}, fmt.Errorf("%w: step is %s", ErrWrongStep, step)
	}
	err := lv.collector.Toggle(key, value)
	lv.mu.Unlock()
	if err != nil {
		return Snapshot{}, err
	}
	return s.snapshot(lv), nil
}

// ConfirmMulti joins the pending multi-select values into the stored answer
// and advances.
func (s *Service) ConfirmMulti(ctx context.Context, userID, key string) (Snapshot, error) {
	lv, ok := s.session(userID)
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	lv.mu.Lock()
	if lv.sess.Step != StepQuestionnaire {
		step := lv.sess.Step
		lv.mu.Unlock()
		if step == StepDone {
			return Snapshot{}, ErrCompleted
		}
		return Snapshot{}, fmt.Errorf("%w: step is %s", ErrWrongStep, step)
	}
	pending := lv.collector.PendingValues()
	if err := lv.collector.Confirm(key); err != nil {
		lv.mu.Unlock()
		return Snapshot{}, err
	}
	userMsg := lv.append(RoleUser, strings.Join(pending, ", "))
	followups := s.advanceLocked(ctx, lv)
	lv.mu.Unlock()

	s.journalAfterAnswer(ctx, lv, userMsg, followups)
	return s.snapshot(lv), nil
}

func (s *Service) answerWith(ctx context.Context, userID, display string, record func(*questionnaire.Collector) error) (Snapshot, error) {
	lv, ok := s.session(userID)
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	lv.mu.Lock()
	if lv.sess.Step != StepQuestionnaire {
		step := lv.sess.Step
		lv.mu.Unlock()
		if step == StepDone {
			return Snapshot{}, ErrCompleted
		}
		return Snapshot{}, fmt.Errorf("%w: step is %s", ErrWrongStep, step)
	}
	if err := record(lv.collector); err != nil {
		lv.mu.Unlock()
		return Snapshot{}, err
	}
	userMsg := lv.append(RoleUser, display)
	followups := s.advanceLocked(ctx, lv)
	lv.mu.Unlock()

	s.journalAfterAnswer(ctx, lv, userMsg, followups)
	return s.snapshot(lv), nil
}

// advanceLocked appends whatever the collector state calls for next: the
// free-text follow-up, the next question, or nothing when finalization has
// been kicked off. Caller holds lv.mu.
func (s *Service) advanceLocked(ctx context.Context, lv *live) []Message {
	var out []Message
	if key := lv.collector.AwaitingOther(); key != "" {
		for _, q := range s.questionsOrDefault() {
			if q.Key == key {
				out = append(out, lv.append(RoleAssistant, otherPrompt(q)))
				break
			}
		}
		return out
	}
	if q, ok := lv.collector.Current(); ok {
		out = append(out, lv.append(RoleAssistant, questionPrompt(q, lv.collector.Cursor(), len(s.questionsOrDefault()))))
		return out
	}
	// Sixth answer recorded; move straight into finalization.
	out = append(out, s.beginFinalizeLocked(ctx, lv)...)
	return out
}

// Finalize validates completeness and kicks off submission. It is also the
// retry entry point after an upstream submit failure.
func (s *Service) Finalize(ctx context.Context, userID string) (Snapshot, error) {
	lv, ok := s.session(userID)
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	lv.mu.Lock()
	switch lv.sess.Step {
	case StepDone:
		lv.mu.Unlock()
		return Snapshot{}, ErrCompleted
	case StepCalculating:
		// Already in flight.
		lv.mu.Unlock()
		return s.snapshot(lv), nil
	case StepQuestionnaire:
	default:
		step := lv.sess.Step
		lv.mu.Unlock()
		return Snapshot{}, fmt.Errorf("%w: step is %s", ErrWrongStep, step)
	}
	if _, err := lv.collector.Payload(); err != nil {
		lv.mu.Unlock()
		return Snapshot{}, err
	}
	followups := s.beginFinalizeLocked(ctx, lv)
	lv.mu.Unlock()

	for _, msg := range followups {
		s.journalMessage(ctx, lv.sess.ID, msg)
	}
	s.journal(ctx, lv)
	return s.snapshot(lv), nil
}

// beginFinalizeLocked moves the session to calculating and spawns the async
// completion flow. Caller holds lv.mu. The completeness gate has already
// passed by the time this runs.
func (s *Service) beginFinalizeLocked(ctx context.Context, lv *live) []Message {
	if lv.finalizing {
		return nil
	}
	lv.finalizing = true
	var out []Message
	if !lv.extractionReady {
		out = append(out, lv.append(RoleAssistant, msgProcessing))
	}
	lv.sess.Step = StepCalculating
	lv.sess.QuestionCursor = lv.collector.Cursor()
	lv.sess.Answers = lv.collector.Answers()
	lv.sess.UpdatedAt = time.Now().UTC()

	go s.completeAsync(lv)
	return out
}

func (s *Service) journalAfterAnswer(ctx context.Context, lv *live, userMsg Message, followups []Message) {
	s.journalMessage(ctx, lv.sess.ID, userMsg)
	for _, msg := range followups {
		s.journalMessage(ctx, lv.sess.ID, msg)
	}
	s.journal(ctx, lv)
}

// Teardown cancels the session's waiters and drops the live state. The
// journal row survives; Resume rebuilds from it and the pipeline.
func (s *Service) Teardown(userID string) {
	s.mu.Lock()
	lv, ok := s.active[userID]
	if ok {
		delete(s.active, userID)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	lv.cancel()
	lv.mu.Lock()
	tracker := lv.tracker
	lv.mu.Unlock()
	if tracker != nil {
		tracker.Cancel()
	}
	telemetry.Info("session.teardown", map[string]any{"user_id": userID})
}

// Delete tears down the live session and removes the journal row.
func (s *Service) Delete(ctx context.Context, userID string) error {
	s.Teardown(userID)
	if s.Repo == nil {
		return nil
	}
	if err := s.Repo.DeleteByUser(ctx, userID); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}

// Get returns the current snapshot for the user's live session.
func (s *Service) Get(ctx context.Context, userID string) (Snapshot, error) {
	lv, ok := s.session(userID)
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return s.snapshot(lv), nil
}

func (s *Service) snapshot(lv *live) Snapshot {
	lv.mu.Lock()
	defer lv.mu.Unlock()

	msgs := make([]Message, len(lv.msgs))
	copy(msgs, lv.msgs)

	snap := Snapshot{
		SessionID:       lv.sess.ID,
		Kind:            lv.sess.Kind,
		Step:            lv.sess.Step,
		WebsiteURL:      lv.sess.WebsiteURL,
		Messages:        msgs,
		QuestionIndex:   lv.collector.Cursor(),
		TotalQuestions:  len(s.questionsOrDefault()),
		AwaitingOther:   lv.collector.AwaitingOther(),
		ExtractionReady: lv.extractionReady,
		Completed:       lv.sess.Step == StepDone,
		CompletedAt:     lv.sess.CompletedAt,
	}
	if q, ok := lv.collector.Current(); ok {
		snap.CurrentQuestion = &q
		if q.Multi {
			snap.PendingValues = lv.collector.PendingValues()
		}
	}
	return snap
}

func (s *Service) journal(ctx context.Context, lv *live) {
	if s.Repo == nil {
		return
	}
	lv.mu.Lock()
	sess := lv.sess
	sess.QuestionCursor = lv.collector.Cursor()
	sess.Answers = lv.collector.Answers()
	lv.mu.Unlock()
	if err := s.Repo.Upsert(ctx, sess); err != nil {
		telemetry.Error("session.journal_failed", map[string]any{"user_id": sess.UserID, "error": err.Error()})
	}
}

func (s *Service) journalMessage(ctx context.Context, sessionID string, msg Message) {
	if s.Repo == nil || msg.ID == 0 {
		return
	}
	if err := s.Repo.AppendMessage(ctx, sessionID, msg); err != nil {
		telemetry.Error("session.journal_message_failed", map[string]any{"session_id": sessionID, "error": err.Error()})
	}
}

// NormalizeWebsite validates a user-entered website and returns the
// canonical form. A missing scheme defaults to https.
func NormalizeWebsite(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalidWebsite
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidWebsite, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: scheme %q", ErrInvalidWebsite, u.Scheme)
	}
	host := u.Hostname()
	if host == "" || !strings.Contains(host, ".") || strings.ContainsAny(host, " ") {
		return "", fmt.Errorf("%w: host %q", ErrInvalidWebsite, host)
	}
	return u.String(), nil
}
