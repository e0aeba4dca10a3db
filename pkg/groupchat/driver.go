package groupchat

import (
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/roundtablehq/roundtable/pkg/logging"
)

// Driver is the single-threaded inbound dispatcher that feeds agent
// process completions back into the Router. It serializes events per
// conversation and owns the one place where a true return from
// RouteAgentResponse triggers the synthesis round.
type Driver struct {
	router *Router
	log    *logrus.Entry

	mu    sync.Mutex
	lanes map[string]*sync.Mutex
}

// NewDriver creates a Driver over the router.
func NewDriver(router *Router) *Driver {
	return &Driver{
		router: router,
		log:    logging.NewLogger("driver"),
		lanes:  make(map[string]*sync.Mutex),
	}
}

// lane returns the per-conversation mutex serializing inbound events.
func (d *Driver) lane(conversationID string) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.lanes[conversationID]
	if !ok {
		l = &sync.Mutex{}
		d.lanes[conversationID] = l
	}
	return l
}

// ModeratorExited implements ResponseSink for moderator completions.
func (d *Driver) ModeratorExited(conversationID, output string, err error) {
	l := d.lane(conversationID)
	l.Lock()
	defer l.Unlock()

	if err != nil {
		d.log.WithError(err).WithField("conversation", conversationID).Error("Moderator process failed")
		d.router.CloseRound(conversationID)
		return
	}
	if routeErr := d.router.RouteModeratorResponse(conversationID, strings.TrimSpace(output)); routeErr != nil {
		d.log.WithError(routeErr).WithField("conversation", conversationID).Error("Failed to route moderator response")
	}
}

// ParticipantExited implements ResponseSink for participant completions.
// When the response empties the pending set, exactly one synthesis round is
// dispatched.
func (d *Driver) ParticipantExited(conversationID, name, output string, err error) {
	l := d.lane(conversationID)
	l.Lock()
	defer l.Unlock()

	if err != nil {
		d.log.WithError(err).WithFields(logrus.Fields{
			"conversation": conversationID,
			"participant":  name,
		}).Error("Participant process failed")
		// The seat still counts as responded so one crash cannot block the
		// round's synthesis forever.
		if d.router.runtime.MarkParticipantResponded(conversationID, name) {
			d.spawnSynthesis(conversationID)
		}
		d.router.events.participantState(conversationID, name, ActivityIdle)
		return
	}

	last, routeErr := d.router.RouteAgentResponse(conversationID, name, strings.TrimSpace(output))
	if routeErr != nil {
		d.log.WithError(routeErr).WithFields(logrus.Fields{
			"conversation": conversationID,
			"participant":  name,
		}).Error("Failed to route participant response")
		// The round must still make progress: the seat counts as responded
		// even though its message was lost, otherwise the pending set never
		// empties and the conversation stays in agent-working forever.
		if d.router.runtime.MarkParticipantResponded(conversationID, name) {
			d.spawnSynthesis(conversationID)
		}
		d.router.events.participantState(conversationID, name, ActivityIdle)
		return
	}
	if last {
		d.spawnSynthesis(conversationID)
	}
}

func (d *Driver) spawnSynthesis(conversationID string) {
	if err := d.router.SpawnModeratorSynthesis(conversationID); err != nil {
		d.log.WithError(err).WithField("conversation", conversationID).Error("Failed to dispatch synthesis round")
	}
}
