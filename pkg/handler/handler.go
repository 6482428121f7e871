package handler

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"polymath/pkg/api"
	"polymath/pkg/chat"
	"polymath/pkg/config"
	"polymath/pkg/llm"
	"polymath/pkg/utils"
)

// ErrorPrefix starts every assistant record produced by a failed run.
const ErrorPrefix = "⚠️ Error: "

// Notices sent outside the transcript.
const (
	NoticeCredentialMissing = "Please enter your %s to use the app."
	NoticeEmptyQuestion     = "Please enter a question to get a response."
	NoticeBusy              = "⏳ Still working on your previous question. Please wait or cancel it."
	NoticeCredentialSaved   = "🔑 API key saved."
	NoticeCredentialCleared = "🔑 API key cleared."
	NoticeCancelling        = "🛑 Cancelling the current answer..."
	NoticeNothingToCancel   = "Nothing to cancel."
)

// AgentFactory builds the agent for one API key. It is called lazily: never
// before the user entered a key, and once per (session, key).
type AgentFactory func(apiKey string) (api.Agent, error)

type cachedAgent struct {
	credential string
	agent      api.Agent
}

// ChatHandler runs the interaction loop: it gates questions on the user's
// credential, appends records to the session transcript, invokes the agent
// asynchronously and renders the outcome through the responder.
type ChatHandler struct {
	factory      AgentFactory
	responder    api.MessageResponder
	config       *config.Config
	systemConfig atomic.Pointer[config.SystemConfig]
	sessions     *chat.Manager

	agentsMu sync.Mutex
	agents   map[string]cachedAgent // keyed by session ID

	wg sync.WaitGroup
}

// NewChatHandler creates a handler. sysCfg may be nil, in which case the
// built-in system defaults apply.
func NewChatHandler(factory AgentFactory, cfg *config.Config, sysCfg *config.SystemConfig, sessions *chat.Manager) *ChatHandler {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if sysCfg == nil {
		sysCfg = config.DefaultSystemConfig()
	}
	h := &ChatHandler{
		factory:  factory,
		config:   cfg,
		sessions: sessions,
		agents:   make(map[string]cachedAgent),
	}
	h.systemConfig.Store(sysCfg)
	return h
}

// SetResponder implements api.ResponderAware.
func (h *ChatHandler) SetResponder(responder api.MessageResponder) {
	h.responder = responder
}

// SetSystemConfig swaps the technical parameters used by subsequent runs.
func (h *ChatHandler) SetSystemConfig(sysCfg *config.SystemConfig) {
	if sysCfg != nil {
		h.systemConfig.Store(sysCfg)
	}
}

// Wait blocks until every in-flight run has finished.
func (h *ChatHandler) Wait() {
	h.wg.Wait()
}

// OnMessage dispatches one incoming message by kind.
func (h *ChatHandler) OnMessage(msg *api.UnifiedMessage) {
	if msg.DebugID == "" {
		msg.DebugID = utils.NewDebugID()
	}
	session := h.sessions.Get(msg.Session.SessionID)

	switch {
	case msg.IsKind(api.KindCredential):
		session.SetCredential(msg.Content)
		h.dropAgent(session.ID)
		if session.HasCredential() {
			h.notify(msg.Session, NoticeCredentialSaved)
		} else {
			h.notify(msg.Session, NoticeCredentialCleared)
		}

	case msg.IsKind(api.KindCancel):
		if session.Cancel() {
			slog.Info("Run cancelled by user", "session", session.ID)
			h.notify(msg.Session, NoticeCancelling)
		} else {
			h.notify(msg.Session, NoticeNothingToCancel)
		}

	case msg.IsKind(api.KindReset):
		if session.Busy() {
			h.notify(msg.Session, NoticeBusy)
			return
		}
		session.Transcript.Reset()
		h.sendHistory(msg.Session, session)

	case msg.IsKind(api.KindHistory):
		h.sendHistory(msg.Session, session)

	case msg.IsKind(api.KindQuestion):
		h.handleQuestion(msg, session)

	default:
		slog.Warn("Unknown message kind", "kind", msg.Kind, "channel", msg.Session.ChannelID)
	}
}

// handleQuestion validates a submission, appends the user record and starts
// the agent run in the background.
func (h *ChatHandler) handleQuestion(msg *api.UnifiedMessage, session *chat.Session) {
	if !session.HasCredential() {
		h.notify(msg.Session, fmt.Sprintf(NoticeCredentialMissing, h.config.CredentialLabel))
		return
	}

	question := strings.TrimSpace(msg.Content)
	if question == "" {
		h.notify(msg.Session, NoticeEmptyQuestion)
		return
	}

	ctx, ok := session.Begin(context.Background())
	if !ok {
		h.notify(msg.Session, NoticeBusy)
		return
	}

	userRec := chat.NewRecord(chat.RoleUser, question)
	session.Transcript.Append(userRec)
	h.sendRecord(msg.Session, userRec)

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.run(ctx, msg, session, question)
	}()
}

// run invokes the agent and appends the assistant record, whatever the outcome.
func (h *ChatHandler) run(ctx context.Context, msg *api.UnifiedMessage, session *chat.Session, question string) {
	sysCfg := h.systemConfig.Load()
	ctx = context.WithValue(ctx, llm.DebugDirContextKey, msg.DebugID)
	if sysCfg.LLMTimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(sysCfg.LLMTimeoutMs)*time.Millisecond)
		defer cancel()
	}

	start := time.Now()
	slog.InfoContext(ctx, "Agent run started", "session", session.ID, "channel", msg.Session.ChannelID)
	h.signal(msg.Session, api.SignalThinking)

	answer, steps := h.answer(ctx, msg.Session, session, question, sysCfg.ShowThoughts)

	assistantRec := chat.NewRecord(chat.RoleAssistant, answer)
	session.Transcript.Append(assistantRec)
	session.End()

	h.sendRecord(msg.Session, assistantRec)
	h.signal(msg.Session, api.SignalIdle)

	slog.InfoContext(ctx, "Agent run finished",
		"session", session.ID,
		"steps", steps,
		"failed", strings.HasPrefix(answer, ErrorPrefix),
		"duration", time.Since(start).String())
}

// answer returns the agent's final text or the formatted error, and the
// number of intermediate steps taken.
func (h *ChatHandler) answer(ctx context.Context, sc api.SessionContext, session *chat.Session, question string, showThoughts bool) (answer string, steps int) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "Agent run panicked", "panic", r, "stack", string(debug.Stack()))
			answer = FormatError(fmt.Errorf("internal error: %v", r))
		}
	}()

	agent, err := h.agentFor(session)
	if err != nil {
		slog.ErrorContext(ctx, "Agent construction failed", "error", err)
		return FormatError(err), 0
	}

	var cb api.AgentCallback = nopCallback{}
	if showThoughts && h.responder != nil {
		stream := newThoughtStream(h.responder, sc, h.systemConfig.Load().StreamBufferSize)
		defer stream.Close()
		cb = stream
	}

	res, err := agent.Run(ctx, question, cb)
	if err != nil {
		slog.WarnContext(ctx, "Agent run failed", "error", err)
		return FormatError(err), 0
	}
	return res.Output, len(res.Steps)
}

// agentFor returns the session's agent, building it when the session has
// none yet or the credential changed since it was built.
func (h *ChatHandler) agentFor(session *chat.Session) (api.Agent, error) {
	key := session.Credential()
	if key == "" {
		return nil, fmt.Errorf("no %s provided", h.config.CredentialLabel)
	}

	h.agentsMu.Lock()
	defer h.agentsMu.Unlock()

	if c, ok := h.agents[session.ID]; ok && c.credential == key {
		return c.agent, nil
	}

	agent, err := h.factory(key)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize the assistant: %w", err)
	}

	// Forget agents of sessions the janitor already removed.
	for id := range h.agents {
		if _, ok := h.sessions.Lookup(id); !ok {
			delete(h.agents, id)
		}
	}
	h.agents[session.ID] = cachedAgent{credential: key, agent: agent}
	slog.Debug("Agent built", "session", session.ID)
	return agent, nil
}

func (h *ChatHandler) dropAgent(sessionID string) {
	h.agentsMu.Lock()
	defer h.agentsMu.Unlock()
	delete(h.agents, sessionID)
}

// FormatError renders a failed run as assistant text.
func FormatError(err error) string {
	return ErrorPrefix + err.Error()
}

func (h *ChatHandler) notify(sc api.SessionContext, text string) {
	if h.responder == nil {
		return
	}
	if err := h.responder.SendReply(sc, text); err != nil {
		slog.Error("Failed to send notice", "channel", sc.ChannelID, "error", err)
	}
}

func (h *ChatHandler) sendRecord(sc api.SessionContext, rec chat.Record) {
	if h.responder == nil {
		return
	}
	if err := h.responder.SendRecord(sc, rec); err != nil {
		slog.Error("Failed to send record", "channel", sc.ChannelID, "role", rec.Role, "error", err)
	}
}

func (h *ChatHandler) sendHistory(sc api.SessionContext, session *chat.Session) {
	if h.responder == nil {
		return
	}
	if err := h.responder.SendHistory(sc, session.Transcript.Records()); err != nil {
		slog.Error("Failed to send history", "channel", sc.ChannelID, "error", err)
	}
}

func (h *ChatHandler) signal(sc api.SessionContext, signal string) {
	if h.responder == nil {
		return
	}
	if err := h.responder.SendSignal(sc, signal); err != nil {
		slog.Debug("Failed to send signal", "channel", sc.ChannelID, "signal", signal, "error", err)
	}
}
