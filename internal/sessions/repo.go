package sessions

import "context"

// Repo journals session state and chat messages. Journaling is advisory:
// the live session in the service is authoritative for an active process,
// the journal feeds audit and debugging.
type Repo interface {
	Upsert(ctx context.Context, s Session) error
	GetByUser(ctx context.Context, userID string) (Session, error)
	AppendMessage(ctx context.Context, sessionID string, msg Message) error
	ListMessages(ctx context.Context, sessionID string) ([]Message, error)
	DeleteByUser(ctx context.Context, userID string) error
}
