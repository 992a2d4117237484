package sessions

import (
	"context"
	"time"

	"github.com/google/uuid"

	"onboarding-backend/internal/poll"
	"onboarding-backend/internal/queue"
	"onboarding-backend/internal/shared/metrics"
	"onboarding-backend/internal/shared/telemetry"
	"onboarding-backend/internal/statusclient"
)

// extractionComplete is the completion predicate shared by the background
// tracker and the blocking waiter. Transient pipeline errors count as "not
// yet"; the loops retry them silently.
func (s *Service) extractionComplete(ctx context.Context, userID string) bool {
	status, err := s.Pipeline.ExtractionStatus(ctx, userID)
	if err != nil {
		telemetry.Warn("extraction.poll_failed", map[string]any{"user_id": userID, "error": err.Error()})
		return false
	}
	if status.Status != statusclient.StatusReady {
		return false
	}
	if s.StrictExtraction && status.OCRStoragePath == "" {
		return false
	}
	return true
}

// startExtractionTracker launches the fire-and-forget extraction poll. It
// only ever sets the monotonic ready flag; exhausting the retry bound ends
// the loop silently. The retry bound terminates the loop even if the
// session's cancellation is never observed.
func (s *Service) startExtractionTracker(lv *live) *poll.Handle {
	userID := lv.sess.UserID
	task := poll.Task{
		Check:        func(ctx context.Context) bool { return s.extractionComplete(ctx, userID) },
		InitialDelay: s.Waits.TrackerInitialDelay,
		Interval:     s.Waits.TrackerInterval,
		MaxAttempts:  s.Waits.TrackerMaxAttempts,
	}
	return poll.Start(lv.ctx, task, func() {
		lv.markExtractionReady()
		telemetry.Info("extraction.ready", map[string]any{"user_id": userID})
	})
}

// awaitExtraction blocks until extraction is ready or the ceiling elapses.
// It returns true either way unless the session was cancelled; scoring can
// proceed on partial extraction data, so a timeout is not a failure.
func (s *Service) awaitExtraction(lv *live) bool {
	if lv.extractionReadyNow() {
		return true
	}
	userID := lv.sess.UserID
	start := time.Now()
	ok := poll.Wait(lv.ctx, poll.Task{
		Check: func(ctx context.Context) bool {
			if lv.extractionReadyNow() {
				return true
			}
			return s.extractionComplete(ctx, userID)
		},
		Interval: s.Waits.BlockingWaitInterval,
		Ceiling:  s.Waits.BlockingWaitCeiling,
	})
	metrics.ObserveExtractionWaitMs(float64(time.Since(start).Milliseconds()))
	if lv.cancelled() {
		return false
	}
	if ok {
		lv.markExtractionReady()
	} else {
		metrics.IncExtractionTimeout()
		telemetry.Warn("extraction.wait_timeout", map[string]any{"user_id": userID})
	}
	return true
}

// awaitReadiness blocks until the scoring pipeline reports ready or the
// ceiling elapses. Same proceed-anyway policy, longer ceiling.
func (s *Service) awaitReadiness(lv *live) bool {
	userID := lv.sess.UserID
	start := time.Now()
	ok := poll.Wait(lv.ctx, poll.Task{
		Check: func(ctx context.Context) bool {
			status, err := s.Pipeline.ReadinessStatus(ctx, userID)
			if err != nil {
				telemetry.Warn("readiness.poll_failed", map[string]any{"user_id": userID, "error": err.Error()})
				return false
			}
			return status.Status == statusclient.StatusReady
		},
		InitialDelay: s.Waits.ReadinessDelay,
		Interval:     s.Waits.ReadinessInterval,
		Ceiling:      s.Waits.ReadinessCeiling,
	})
	metrics.ObserveReadinessWaitMs(float64(time.Since(start).Milliseconds()))
	if lv.cancelled() {
		return false
	}
	if !ok {
		metrics.IncReadinessTimeout()
		telemetry.Warn("readiness.wait_timeout", map[string]any{"user_id": userID})
	}
	return true
}

// completeAsync runs detached from the request: wait for extraction, submit
// the questionnaire, wait for readiness, then close out the session. Every
// stage checks cancellation before mutating shared state.
func (s *Service) completeAsync(lv *live) {
	ctx := lv.ctx
	userID := lv.sess.UserID

	if !s.awaitExtraction(lv) {
		return
	}

	lv.mu.Lock()
	payload, err := lv.collector.Payload()
	lv.mu.Unlock()
	if err != nil {
		// The gate in Finalize makes this unreachable short of a bug.
		telemetry.Error("session.finalize_incomplete", map[string]any{"user_id": userID, "error": err.Error()})
		s.revertToQuestionnaire(lv, "")
		return
	}

	if err := s.Pipeline.SubmitQuestionnaire(ctx, userID, payload); err != nil {
		telemetry.Error("session.submit_questionnaire_failed", map[string]any{"user_id": userID, "error": err.Error()})
		s.revertToQuestionnaire(lv, msgSubmitFailed)
		return
	}

	if !s.awaitReadiness(lv) {
		return
	}

	s.completeSession(lv)
}

// revertToQuestionnaire returns the session to the questionnaire step so
// Finalize can be retried. No-op when the session was cancelled.
func (s *Service) revertToQuestionnaire(lv *live, note string) {
	if lv.cancelled() {
		return
	}
	lv.mu.Lock()
	lv.finalizing = false
	lv.sess.Step = StepQuestionnaire
	lv.sess.UpdatedAt = time.Now().UTC()
	var msg Message
	if note != "" {
		msg = lv.append(RoleAssistant, note)
	}
	lv.mu.Unlock()

	ctx := backgroundWithRequestID(lv.ctx)
	s.journalMessage(ctx, lv.sess.ID, msg)
	s.journal(ctx, lv)
}

// completeSession marks the session done and kicks off the dashboard
// prefetch, once.
func (s *Service) completeSession(lv *live) {
	if lv.cancelled() {
		return
	}
	now := time.Now().UTC()
	lv.mu.Lock()
	alreadyDone := lv.sess.Step == StepDone
	var doneMsg Message
	if !alreadyDone {
		doneMsg = lv.append(RoleAssistant, msgDone)
		lv.sess.Step = StepDone
		lv.sess.CompletedAt = &now
		lv.sess.UpdatedAt = now
	}
	kickoff := !lv.bootstrapStarted
	lv.bootstrapStarted = true
	sessionID := lv.sess.ID
	userID := lv.sess.UserID
	lv.mu.Unlock()
	if alreadyDone {
		return
	}

	metrics.IncSessionCompleted()
	telemetry.Info("session.completed", map[string]any{"user_id": userID})

	ctx := backgroundWithRequestID(lv.ctx)
	s.journalMessage(ctx, sessionID, doneMsg)
	s.journal(ctx, lv)

	if kickoff {
		s.kickoffPrefetch(ctx, sessionID, userID)
	}
}

// kickoffPrefetch enqueues the dashboard prefetch message. The TTL cache
// suppresses duplicate kickoffs across rapid re-entries; cache staleness
// only risks a redundant message, never a missed one.
func (s *Service) kickoffPrefetch(ctx context.Context, sessionID, userID string) {
	if s.Queue == nil {
		return
	}
	if !s.Prefetch.MarkStarted(userID) {
		return
	}
	msg := queue.Message{
		SessionID:  sessionID,
		UserID:     userID,
		RequestID:  uuid.NewString(),
		EnqueuedAt: time.Now().UTC().Format(time.RFC3339),
		Version:    1,
	}
	if err := s.Queue.Send(ctx, msg); err != nil {
		telemetry.Error("prefetch.enqueue_failed", map[string]any{"user_id": userID, "error": err.Error()})
		s.Prefetch.Forget(userID)
	}
}
