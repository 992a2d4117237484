package sessions

import (
	"context"
	"errors"
	"testing"
	"time"

	"onboarding-backend/internal/questionnaire"
	"onboarding-backend/internal/statusclient"
)

func TestResumeExitsWhenCompleted(t *testing.T) {
	fp := newFakePipeline()
	fp.onboarding = statusclient.OnboardingStatus{Completed: true}
	svc, _ := newTestService(t, fp)

	_, exit, err := svc.Resume(context.Background(), "user-1", KindFounder)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if !exit {
		t.Fatalf("expected exit signal for completed onboarding")
	}
	if n := fp.countCalls("clear-partial-state"); n != 0 {
		t.Fatalf("completed onboarding needs no housekeeping")
	}
}

func TestResumeClearsPartialStateForFreshSession(t *testing.T) {
	fp := newFakePipeline()
	fp.onboarding = statusclient.OnboardingStatus{Step: "website"}
	svc, _ := newTestService(t, fp)

	snap, exit, err := svc.Resume(context.Background(), "user-1", KindFounder)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if exit {
		t.Fatalf("unexpected exit")
	}
	if n := fp.countCalls("clear-partial-state"); n != 1 {
		t.Fatalf("expected one clear-partial-state, got %d", n)
	}
	if snap.Step != StepWebsite || len(snap.Messages) != 1 {
		t.Fatalf("expected fresh website seed, got %+v", snap)
	}
}

func TestResumeFastForwardsWhenExtractionReady(t *testing.T) {
	fp := newFakePipeline()
	fp.onboarding = statusclient.OnboardingStatus{Step: "questionnaire"}
	fp.setExtraction(statusclient.ExtractionStatus{Status: statusclient.StatusReady})
	svc, _ := newTestService(t, fp)

	snap, exit, err := svc.Resume(context.Background(), "user-1", KindFounder)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if exit {
		t.Fatalf("unexpected exit")
	}
	if snap.Step != StepQuestionnaire {
		t.Fatalf("expected fast-forward to questionnaire, got %s", snap.Step)
	}
	if snap.QuestionIndex != 0 {
		t.Fatalf("expected cursor 0, got %d", snap.QuestionIndex)
	}
	// Greeting, document-saved, first question.
	if len(snap.Messages) != 3 {
		t.Fatalf("expected three-message history, got %d", len(snap.Messages))
	}
	if !snap.ExtractionReady {
		t.Fatalf("extraction flag should carry over")
	}
	if n := fp.countCalls("reset-to-start"); n != 0 {
		t.Fatalf("ready extraction must not reset")
	}
}

func TestResumeResetsWhenExtractionPending(t *testing.T) {
	fp := newFakePipeline()
	fp.onboarding = statusclient.OnboardingStatus{Step: "questionnaire"}
	svc, _ := newTestService(t, fp)

	snap, exit, err := svc.Resume(context.Background(), "user-1", KindFounder)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if exit {
		t.Fatalf("unexpected exit")
	}
	if n := fp.countCalls("reset-to-start"); n != 1 {
		t.Fatalf("expected mandatory reset, got %d calls", n)
	}
	if snap.Step != StepWebsite {
		t.Fatalf("expected reset to website, got %s", snap.Step)
	}
	if len(snap.Messages) != 1 || snap.Messages[0].Role != RoleAssistant {
		t.Fatalf("expected greeting only, got %+v", snap.Messages)
	}
}

func TestResumeStartsFreshWhenStatusUnavailable(t *testing.T) {
	fp := newFakePipeline()
	fp.onboardingErr = context.DeadlineExceeded
	svc, _ := newTestService(t, fp)

	snap, exit, err := svc.Resume(context.Background(), "user-1", KindFounder)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if exit {
		t.Fatalf("unexpected exit")
	}
	if snap.Step != StepWebsite {
		t.Fatalf("expected fresh session, got %s", snap.Step)
	}
}

func TestResumeReplacesExistingLiveSession(t *testing.T) {
	fp := newFakePipeline()
	fp.onboarding = statusclient.OnboardingStatus{Step: "questionnaire"}
	fp.setExtraction(statusclient.ExtractionStatus{Status: statusclient.StatusReady})
	svc, _ := newTestService(t, fp)
	ctx := context.Background()

	before, err := svc.Start(ctx, "user-1", KindFounder)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	after, _, err := svc.Resume(ctx, "user-1", KindFounder)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if after.SessionID == before.SessionID {
		t.Fatalf("resume must replace the live session")
	}
}

func TestResumeCompletedTearsDownLiveSession(t *testing.T) {
	fp := newFakePipeline()
	svc, _ := newTestService(t, fp)
	ctx := context.Background()

	if _, err := svc.Start(ctx, "user-1", KindFounder); err != nil {
		t.Fatalf("start: %v", err)
	}
	fp.onboarding = statusclient.OnboardingStatus{Completed: true}

	_, exit, err := svc.Resume(ctx, "user-1", KindFounder)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if !exit {
		t.Fatalf("expected exit signal")
	}
	if _, err := svc.Get(ctx, "user-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("live session should be gone after exit, got %v", err)
	}
}

func TestResumeFastForwardRestoresJournaledAnswers(t *testing.T) {
	fp := newFakePipeline()
	fp.onboarding = statusclient.OnboardingStatus{Step: "questionnaire"}
	fp.setExtraction(statusclient.ExtractionStatus{Status: statusclient.StatusReady})
	fp.setReadiness(statusclient.ReadinessStatus{Status: statusclient.StatusReady})
	svc, _ := newTestService(t, fp)
	ctx := context.Background()

	now := time.Now().UTC()
	seed := Session{
		ID:          "sess-old",
		UserID:      "user-1",
		Kind:        KindFounder,
		Step:        StepCalculating,
		WebsiteURL:  "https://example.com",
		DocumentKey: "user-1/deck.pdf",
		Answers: map[string]string{
			"primary_sector": "fintech",
			"product_status": "beta",
			"funding_stage":  "seed",
			"round_target":   "1m_to_3m",
			"entity_type":    "c_corp",
			"revenue_model":  "subscription",
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := svc.Repo.Upsert(ctx, seed); err != nil {
		t.Fatalf("seed journal: %v", err)
	}

	snap, exit, err := svc.Resume(ctx, "user-1", KindFounder)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if exit {
		t.Fatalf("unexpected exit")
	}
	if snap.QuestionIndex != 0 {
		t.Fatalf("cursor must restart at 0, got %d", snap.QuestionIndex)
	}
	if snap.WebsiteURL != "https://example.com" {
		t.Fatalf("website should carry over from the journal, got %q", snap.WebsiteURL)
	}

	// The journaled answers are complete, so finalize works straight away.
	if _, err := svc.Finalize(ctx, "user-1"); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	waitFor(t, time.Second, func() bool {
		got, err := svc.Get(ctx, "user-1")
		return err == nil && got.Step == StepDone
	})
	if fp.submitted["funding_stage"] != "seed" || fp.submitted["revenue_model"] != "subscription" {
		t.Fatalf("unexpected payload: %v", fp.submitted)
	}
}

func TestResumeFastForwardPartialJournalStaysGated(t *testing.T) {
	fp := newFakePipeline()
	fp.onboarding = statusclient.OnboardingStatus{Step: "questionnaire"}
	fp.setExtraction(statusclient.ExtractionStatus{Status: statusclient.StatusReady})
	svc, _ := newTestService(t, fp)
	ctx := context.Background()

	now := time.Now().UTC()
	seed := Session{
		ID:     "sess-old",
		UserID: "user-1",
		Kind:   KindFounder,
		Step:   StepQuestionnaire,
		Answers: map[string]string{
			"primary_sector": "fintech",
			"product_status": "beta",
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := svc.Repo.Upsert(ctx, seed); err != nil {
		t.Fatalf("seed journal: %v", err)
	}

	if _, _, err := svc.Resume(ctx, "user-1", KindFounder); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if _, err := svc.Finalize(ctx, "user-1"); !errors.Is(err, questionnaire.ErrIncomplete) {
		t.Fatalf("expected ErrIncomplete, got %v", err)
	}
	if n := fp.countCalls("submit-questionnaire"); n != 0 {
		t.Fatalf("incomplete restore must not submit, got %d calls", n)
	}
}
