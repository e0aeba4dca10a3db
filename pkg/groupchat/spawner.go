package groupchat

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/roundtablehq/roundtable/pkg/config"
	"github.com/roundtablehq/roundtable/pkg/exec"
	"github.com/roundtablehq/roundtable/pkg/logging"
	"github.com/roundtablehq/roundtable/pkg/remote"
)

// Dispatcher is the router's fire-and-forget spawn surface. Dispatch
// methods return once the process has been started; the response arrives
// later through the ResponseSink as a separate inbound event.
type Dispatcher interface {
	DispatchModerator(conv *Conversation, prompt string) error
	DispatchParticipant(conv *Conversation, p *Participant, prompt string) error
}

// ResponseSink receives agent process completions. The composition root
// wires this back into the Router (see Driver).
type ResponseSink interface {
	ModeratorExited(conversationID, output string, err error)
	ParticipantExited(conversationID, name, output string, err error)
}

// Spawner builds concrete agent invocations and launches them through a
// CommandExecutor, rewriting for remote execution when a binding resolves.
type Spawner struct {
	executor exec.CommandExecutor
	wrapper  *remote.Wrapper
	cfg      *config.Config
	sink     ResponseSink
	log      *logrus.Entry
}

// NewSpawner creates a Spawner. The sink is attached later via SetSink
// because the sink (the Driver) needs the Router, which needs the Spawner.
func NewSpawner(executor exec.CommandExecutor, wrapper *remote.Wrapper, cfg *config.Config) *Spawner {
	return &Spawner{
		executor: executor,
		wrapper:  wrapper,
		cfg:      cfg,
		log:      logging.NewLogger("spawner"),
	}
}

// SetSink attaches the completion sink for all subsequent dispatches.
func (s *Spawner) SetSink(sink ResponseSink) {
	s.sink = sink
}

// DispatchModerator launches one moderator invocation.
func (s *Spawner) DispatchModerator(conv *Conversation, prompt string) error {
	m := conv.Moderator
	ac := s.cfg.AgentConfigFor(m.AgentKind)

	binary := m.Binary
	if binary == "" {
		binary = ac.Binary
	}

	args := append([]string{}, ac.Args...)
	args = append(args, m.Args...)
	model := m.Model
	if model == "" {
		model = ac.Model
	}
	if model != "" {
		args = append(args, "--model", model)
	}

	env := mergeEnv(s.cfg.CustomEnvVars(m.AgentKind), m.Env)
	env["ROUNDTABLE_CONVERSATION_ID"] = conv.ID

	spec := exec.ProcessSpec{
		Command: binary,
		Args:    args,
		Dir:     m.WorkingDir,
		Env:     env,
		Prompt:  prompt,
	}

	id := conv.ID
	return s.start(spec, m.Remote, func(output string, err error) {
		if s.sink != nil {
			s.sink.ModeratorExited(id, output, err)
		}
	})
}

// DispatchParticipant launches one participant invocation. A recorded
// prior session id resumes the participant's backing session; recovery
// dispatches clear it first so a fresh session is started.
func (s *Spawner) DispatchParticipant(conv *Conversation, p *Participant, prompt string) error {
	ac := s.cfg.AgentConfigFor(p.AgentKind)

	args := append([]string{}, ac.Args...)
	args = append(args, p.CustomArgs...)
	model := p.CustomModel
	if model == "" {
		model = ac.Model
	}
	if model != "" {
		args = append(args, "--model", model)
	}
	if p.PriorSessionID != "" {
		args = append(args, "--resume", p.PriorSessionID)
	}

	env := mergeEnv(s.cfg.CustomEnvVars(p.AgentKind), p.CustomEnv)
	env["ROUNDTABLE_CONVERSATION_ID"] = conv.ID
	env["ROUNDTABLE_SEAT"] = p.Name

	spec := exec.ProcessSpec{
		Command: ac.Binary,
		Args:    args,
		Dir:     p.WorkingDir,
		Env:     env,
		Prompt:  prompt,
	}

	id, name := conv.ID, p.Name
	return s.start(spec, p.Remote, func(output string, err error) {
		if s.sink != nil {
			s.sink.ParticipantExited(id, name, output, err)
		}
	})
}

// start checks binary availability, applies the remote rewrite and spawns.
// A binary missing locally is only fatal when no remote binding resolves.
func (s *Spawner) start(spec exec.ProcessSpec, binding *remote.Binding, onExit exec.ExitFunc) error {
	wrapped := s.wrapper.Wrap(spec, binding)

	if !wrapped.UsedRemote {
		if _, err := s.executor.LookPath(wrapped.Command); err != nil {
			return errors.Wrapf(ErrAgentUnavailable, "%s not found locally and no remote binding configured", wrapped.Command)
		}
	}

	handle, err := s.executor.Start(wrapped, onExit)
	if err != nil {
		return errors.Wrapf(err, "spawn %s", wrapped.Command)
	}

	s.log.WithFields(logrus.Fields{
		"command": wrapped.Command,
		"pid":     handle.PID,
		"remote":  wrapped.RemoteDescriptor,
	}).Debug("Agent process started")
	return nil
}

func mergeEnv(layers ...map[string]string) map[string]string {
	merged := map[string]string{}
	for _, layer := range layers {
		for k, v := range layer {
			merged[k] = v
		}
	}
	return merged
}
