package sessions

import (
	"context"
	"time"

	"github.com/google/uuid"

	"onboarding-backend/internal/questionnaire"
	"onboarding-backend/internal/shared/metrics"
	"onboarding-backend/internal/shared/telemetry"
)

// Persisted step values the pipeline backend reports for a session that
// stopped partway through.
const (
	remoteStepQuestionnaire = "questionnaire"
	remoteStepAwaitingQuest = "awaiting_questionnaire"
)

// Resume reconciles a returning user with the server-persisted onboarding
// state. It returns exit=true when onboarding is already complete and the
// caller should redirect away. Any existing live session is replaced.
func (s *Service) Resume(ctx context.Context, userID, kind string) (Snapshot, bool, error) {
	if userID == "" {
		return Snapshot{}, false, ErrNotFound
	}
	if kind != KindInvestor {
		kind = KindFounder
	}

	status, err := s.Pipeline.OnboardingStatus(ctx, userID)
	if err != nil {
		// The persisted state is advisory; an unreachable backend means a
		// fresh start, not a dead end.
		telemetry.Warn("resume.status_unavailable", map[string]any{"user_id": userID, "error": err.Error()})
		snap, startErr := s.Start(ctx, userID, kind)
		return snap, false, startErr
	}

	if status.Completed {
		// The caller redirects away; a leftover live session would keep its
		// tracker polling with nobody watching.
		s.Teardown(userID)
		telemetry.Info("resume.already_complete", map[string]any{"user_id": userID})
		return Snapshot{}, true, nil
	}

	// Housekeeping; safe to call regardless of where the user stopped.
	if err := s.Pipeline.ClearPartialState(ctx, userID); err != nil {
		telemetry.Warn("resume.clear_partial_failed", map[string]any{"user_id": userID, "error": err.Error()})
	}

	if status.Step == remoteStepQuestionnaire || status.Step == remoteStepAwaitingQuest {
		if s.extractionComplete(ctx, userID) {
			return s.fastForward(ctx, userID, kind), false, nil
		}
		// Abandoned mid-extraction. Resuming into the questionnaire here
		// would let a questionnaire land with no scoring input, so the
		// backend is reset and the user starts over.
		if err := s.Pipeline.ResetToStart(ctx, userID); err != nil {
			telemetry.Error("resume.reset_failed", map[string]any{"user_id": userID, "error": err.Error()})
		}
		metrics.IncSessionReset()
		telemetry.Info("resume.reset_to_start", map[string]any{"user_id": userID})
	}

	s.Teardown(userID)
	snap, err := s.Start(ctx, userID, kind)
	return snap, false, err
}

// fastForward seeds a session directly at the questionnaire step with the
// canonical three-message history, so a reload keeps its conversational
// context. Extraction is known ready, so no tracker is started.
func (s *Service) fastForward(ctx context.Context, userID, kind string) Snapshot {
	s.Teardown(userID)

	sessCtx, cancel := context.WithCancel(backgroundWithRequestID(ctx))
	now := time.Now().UTC()
	questions := s.questionsOrDefault()
	lv := &live{
		sess: Session{
			ID:        uuid.NewString(),
			UserID:    userID,
			Kind:      kind,
			Step:      StepQuestionnaire,
			CreatedAt: now,
			UpdatedAt: now,
		},
		collector:       questionnaire.NewCollector(questions),
		extractionReady: true,
		ctx:             sessCtx,
		cancel:          cancel,
	}
	// Answers journaled before the interruption survive the fast-forward;
	// the cursor still restarts at the first question, and re-answering
	// overwrites. Payload() guards against a journal that went stale.
	if s.Repo != nil {
		if prev, err := s.Repo.GetByUser(ctx, userID); err == nil {
			lv.collector.Restore(prev.Answers)
			lv.collector.SetCursor(0)
			lv.sess.WebsiteURL = prev.WebsiteURL
			lv.sess.DocumentKey = prev.DocumentKey
		}
	}
	lv.append(RoleAssistant, greetingFor(kind))
	lv.append(RoleAssistant, msgDocumentSaved)
	if q, ok := lv.collector.Current(); ok {
		lv.append(RoleAssistant, questionPrompt(q, 0, len(questions)))
	}
	seeded := make([]Message, len(lv.msgs))
	copy(seeded, lv.msgs)

	s.mu.Lock()
	if s.active == nil {
		s.active = make(map[string]*live)
	}
	s.active[userID] = lv
	s.mu.Unlock()

	telemetry.Info("resume.fast_forward", map[string]any{"user_id": userID})
	s.journal(ctx, lv)
	for _, msg := range seeded {
		s.journalMessage(ctx, lv.sess.ID, msg)
	}
	return s.snapshot(lv)
}
