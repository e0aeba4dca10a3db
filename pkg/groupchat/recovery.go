package groupchat

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/roundtablehq/roundtable/pkg/logging"
)

// RecoveryController re-synchronizes a participant whose backing session
// was deleted out-of-band. It rebuilds a bounded recovery context from the
// participant's own prior turns and dispatches a fresh invocation without
// any continuation identifier, so the participant starts a new backing
// session with full textual context of what it previously said.
type RecoveryController struct {
	store      Store
	runtime    *RuntimeStore
	dispatcher Dispatcher
	prompts    *PromptBuilder
	log        *logrus.Entry
}

// NewRecoveryController builds a RecoveryController over the shared
// collaborators.
func NewRecoveryController(store Store, runtime *RuntimeStore, dispatcher Dispatcher, historyWindow int) *RecoveryController {
	return &RecoveryController{
		store:      store,
		runtime:    runtime,
		dispatcher: dispatcher,
		prompts:    &PromptBuilder{HistoryWindow: historyWindow},
		log:        logging.NewLogger("recovery"),
	}
}

// RespawnParticipantWithRecovery implements Recoverer. The pending set is
// not touched: the caller re-adds the name if the conversation is still
// awaiting this participant's response.
func (c *RecoveryController) RespawnParticipantWithRecovery(conversationID, participantName string) error {
	conv, err := c.store.LoadConversation(conversationID)
	if err != nil {
		return err
	}
	if conv == nil {
		return errors.Wrap(ErrConversationNotFound, conversationID)
	}
	if !conv.Active {
		return errors.Wrap(ErrConversationNotActive, conversationID)
	}

	p := conv.Participant(participantName)
	if p == nil {
		return errors.Wrap(ErrParticipantNotFound, participantName)
	}

	logEntries, err := c.store.ReadLog(conv.LogRef)
	if err != nil {
		return errors.Wrap(err, "read log for recovery context")
	}

	readOnly := c.runtime.ReadOnly(conversationID)
	prompt := c.prompts.RecoveryPrompt(conv, p, logEntries, readOnly)

	// Dispatch a copy with the continuation id cleared so a fresh backing
	// session is started, and persist the cleared id for future rounds.
	fresh := *p
	fresh.PriorSessionID = ""

	c.log.WithFields(logrus.Fields{
		"conversation": conversationID,
		"participant":  participantName,
	}).Info("Respawning participant with recovery context")

	if err := c.dispatcher.DispatchParticipant(conv, &fresh, prompt); err != nil {
		return errors.Wrapf(err, "respawn participant %s", participantName)
	}

	p.PriorSessionID = ""
	if err := c.store.AddOrUpdateParticipant(conversationID, p); err != nil {
		c.log.WithError(err).Warn("Failed to persist cleared session id after recovery")
	}
	return nil
}
