package groupchat

// Store is the persistence surface the router depends on. The concrete
// implementation lives in pkg/storage; tests use an in-memory fake.
type Store interface {
	// LoadConversation returns the conversation with the given id, or an
	// error wrapping ErrConversationNotFound.
	LoadConversation(id string) (*Conversation, error)

	// SaveConversation persists conversation metadata, including the
	// roster and the read-only flag.
	SaveConversation(c *Conversation) error

	// AddOrUpdateParticipant upserts one seat's metadata.
	AddOrUpdateParticipant(conversationID string, p *Participant) error

	// AppendLogEntry appends one entry to the append-only log.
	AppendLogEntry(logRef string, e MessageEntry) error

	// ReadLog returns the full ordered log. The log is the sole source of
	// truth for recent-history windows used in prompts.
	ReadLog(logRef string) ([]MessageEntry, error)

	// AppendHistoryEntry records a derived summary entry.
	AppendHistoryEntry(conversationID string, e HistoryEntry) error
}
