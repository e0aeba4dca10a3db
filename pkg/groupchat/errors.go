package groupchat

import "github.com/pkg/errors"

// Sentinel errors for the routing taxonomy. Callers classify with
// errors.Is; wrapped context is added at the failure site.
var (
	// ErrConversationNotFound is returned when the conversation id does
	// not resolve. Never retried.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrConversationNotActive is returned when routing into a closed
	// conversation. Never retried.
	ErrConversationNotActive = errors.New("conversation not active")

	// ErrParticipantNotFound is returned when a named seat does not exist
	// in the conversation.
	ErrParticipantNotFound = errors.New("participant not found")

	// ErrAgentUnavailable is returned before any spawn is attempted when
	// the resolved agent binary is missing locally and no remote binding
	// is configured.
	ErrAgentUnavailable = errors.New("agent unavailable")
)
