package sessions

import (
	"context"
	"sync"
)

// MemoryRepo is an in-memory implementation of Repo.
type MemoryRepo struct {
	mu       sync.RWMutex
	byUser   map[string]Session
	messages map[string][]Message // sessionID -> ordered log
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		byUser:   make(map[string]Session),
		messages: make(map[string][]Message),
	}
}

// Upsert stores or replaces the session for its user. A row being replaced
// under a different session id takes its message log with it, matching the
// Postgres cascade.
func (r *MemoryRepo) Upsert(ctx context.Context, s Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.byUser[s.UserID]; ok && prev.ID != s.ID {
		delete(r.messages, prev.ID)
	}
	if s.Answers != nil {
		copied := make(map[string]string, len(s.Answers))
		for k, v := range s.Answers {
			copied[k] = v
		}
		s.Answers = copied
	}
	r.byUser[s.UserID] = s
	return nil
}

// GetByUser returns the session for a user.
func (r *MemoryRepo) GetByUser(ctx context.Context, userID string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byUser[userID]
	if !ok {
		return Session{}, ErrNotFound
	}
	return s, nil
}

// AppendMessage appends one chat message to the session's log.
func (r *MemoryRepo) AppendMessage(ctx context.Context, sessionID string, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages[sessionID] = append(r.messages[sessionID], msg)
	return nil
}

// ListMessages returns the ordered chat log for a session.
func (r *MemoryRepo) ListMessages(ctx context.Context, sessionID string) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	log := r.messages[sessionID]
	out := make([]Message, len(log))
	copy(out, log)
	return out, nil
}

// DeleteByUser removes the session and its log.
func (r *MemoryRepo) DeleteByUser(ctx context.Context, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.byUser[userID]; ok {
		delete(r.messages, s.ID)
		delete(r.byUser, userID)
	}
	return nil
}
