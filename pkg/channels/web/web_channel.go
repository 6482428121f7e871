package web

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"polymath/pkg/api"
	"polymath/pkg/chat"
	"polymath/pkg/llm"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// SessionCookie carries the browser session ID.
const SessionCookie = "polymath_session"

const maxFrameBytes = 64 << 10

type WebConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"` // Default: 8501
	Disabled bool   `json:"disabled"`
	// AllowedOrigins lists extra page origins (e.g. "https://chat.example.com")
	// that may open the socket. The page's own origin is always allowed.
	AllowedOrigins []string `json:"allowed_origins"`
}

// IncomingMessage is a frame sent by the page.
type IncomingMessage struct {
	Type string `json:"type"` // credential | question | cancel | reset | history
	Text string `json:"text"`
}

type outgoingFrame struct {
	Type    string        `json:"type"`
	Text    string        `json:"text,omitempty"`
	Value   string        `json:"value,omitempty"`
	ID      string        `json:"id,omitempty"`
	Role    string        `json:"role,omitempty"`
	Content string        `json:"content,omitempty"`
	Data    []chat.Record `json:"data,omitempty"`
}

type SafeConn struct {
	*websocket.Conn
	mu sync.Mutex
}

func (sc *SafeConn) WriteMessage(messageType int, data []byte) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.Conn.WriteMessage(messageType, data)
}

// WebChannel serves the chat page and one websocket per open tab. Every
// tab of a browser shares the session named by its cookie.
type WebChannel struct {
	config      WebConfig
	page        Page
	server      *http.Server
	upgrader    websocket.Upgrader
	connections map[string]map[*SafeConn]struct{} // session ID -> open sockets
	stopping    bool
	mu          sync.RWMutex
}

func NewWebChannel(cfg WebConfig, page Page) (*WebChannel, error) {
	if cfg.Port < 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid web port %d", cfg.Port)
	}
	c := &WebChannel{
		config:      cfg,
		page:        page,
		connections: make(map[string]map[*SafeConn]struct{}),
	}
	c.upgrader = websocket.Upgrader{CheckOrigin: c.checkOrigin}
	return c, nil
}

// checkOrigin accepts the page's own origin and the configured ones. The
// socket speaks for a session that holds the user's API key, so any other
// site must be refused. Requests without an Origin header do not come from
// a browser page and are let through.
func (c *WebChannel) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err == nil && strings.EqualFold(u.Host, r.Host) {
		return true
	}
	for _, allowed := range c.config.AllowedOrigins {
		if strings.EqualFold(strings.TrimRight(allowed, "/"), origin) {
			return true
		}
	}
	slog.Warn("Rejected cross-origin websocket", "origin", origin, "host", r.Host)
	return false
}

func (c *WebChannel) ID() string {
	return "web"
}

// Handler builds the HTTP routes of the channel.
func (c *WebChannel) Handler(ctx api.ChannelContext) http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/", c.handlePage).Methods(http.MethodGet)
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	router.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		c.handleWebSocket(w, r, ctx)
	}).Methods(http.MethodGet)
	return router
}

func (c *WebChannel) Start(ctx api.ChannelContext) error {
	addr := fmt.Sprintf("%s:%d", c.config.Host, c.config.Port)
	c.server = &http.Server{
		Addr:              addr,
		Handler:           c.Handler(ctx),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("Web page listening", "addr", addr)

	go func() {
		if err := c.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Web server error", "error", err)
		}
	}()

	return nil
}

// Stop shuts the server down and closes every open socket; hijacked
// connections outlive http.Server.Shutdown. Pages reconnect on their own.
func (c *WebChannel) Stop() error {
	var err error
	if c.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := c.server.Shutdown(shutdownCtx); shutdownErr != nil {
			err = c.server.Close()
		}
	}
	c.closeAll()
	return err
}

func (c *WebChannel) closeAll() {
	c.mu.Lock()
	c.stopping = true
	var open []*SafeConn
	for _, set := range c.connections {
		for conn := range set {
			open = append(open, conn)
		}
	}
	c.mu.Unlock()

	bye := websocket.FormatCloseMessage(websocket.CloseServiceRestart, "server restarting")
	for _, conn := range open {
		_ = conn.WriteControl(websocket.CloseMessage, bye, time.Now().Add(time.Second))
		conn.Close()
	}
	if len(open) > 0 {
		slog.Info("Closed web sockets", "count", len(open))
	}
}

// sessionID returns the cookie's session ID, or a fresh one together with
// the cookie that must be set.
func sessionID(r *http.Request) (string, *http.Cookie) {
	if ck, err := r.Cookie(SessionCookie); err == nil {
		if _, err := uuid.Parse(ck.Value); err == nil {
			return ck.Value, nil
		}
	}
	id := uuid.NewString()
	return id, &http.Cookie{
		Name:     SessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

func (c *WebChannel) handlePage(w http.ResponseWriter, r *http.Request) {
	if _, ck := sessionID(r); ck != nil {
		http.SetCookie(w, ck)
	}

	var buf bytes.Buffer
	if err := c.page.render(&buf); err != nil {
		slog.Error("Failed to render page", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func (c *WebChannel) conns(sessionID string) []*SafeConn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	set := c.connections[sessionID]
	out := make([]*SafeConn, 0, len(set))
	for conn := range set {
		out = append(out, conn)
	}
	return out
}

// broadcast writes one frame to every socket of the session.
func (c *WebChannel) broadcast(session api.SessionContext, frame outgoingFrame) error {
	conns := c.conns(session.SessionID)
	if len(conns) == 0 {
		return fmt.Errorf("web session %s not connected", session.SessionID)
	}

	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("failed to marshal %s frame: %w", frame.Type, err)
	}

	var firstErr error
	for _, conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (c *WebChannel) Send(session api.SessionContext, message string) error {
	return c.broadcast(session, outgoingFrame{Type: "notice", Text: message})
}

func (c *WebChannel) SendRecord(session api.SessionContext, record chat.Record) error {
	return c.broadcast(session, outgoingFrame{Type: "record", ID: record.ID, Role: record.Role, Content: record.Content})
}

func (c *WebChannel) SendHistory(session api.SessionContext, records []chat.Record) error {
	if records == nil {
		records = []chat.Record{}
	}
	return c.broadcast(session, outgoingFrame{Type: "history", Data: records})
}

// SendSignal implements the api.SignalingChannel interface
func (c *WebChannel) SendSignal(session api.SessionContext, signal string) error {
	return c.broadcast(session, outgoingFrame{Type: "signal", Value: signal})
}

// Stream forwards each block as a "thinking" frame and ends with "done".
func (c *WebChannel) Stream(session api.SessionContext, blocks <-chan llm.ContentBlock) error {
	if len(c.conns(session.SessionID)) == 0 {
		return fmt.Errorf("web session %s not connected", session.SessionID)
	}

	for block := range blocks {
		if block.Text == "" {
			continue
		}
		if err := c.broadcast(session, outgoingFrame{Type: "thinking", Text: block.Text}); err != nil {
			// The tab went away mid-run; drop the rest quietly.
			slog.Debug("Dropping thought", "session", session.SessionID, "error", err)
		}
	}

	return c.broadcast(session, outgoingFrame{Type: "done"})
}

func (c *WebChannel) register(sessionID string, conn *SafeConn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopping {
		return false
	}
	set, ok := c.connections[sessionID]
	if !ok {
		set = make(map[*SafeConn]struct{})
		c.connections[sessionID] = set
	}
	set[conn] = struct{}{}
	return true
}

// unregister removes the socket and reports whether it was the session's
// last one. Sockets closed by Stop never count as last: a run in flight
// keeps going and its answer is in the transcript after the reconnect.
func (c *WebChannel) unregister(sessionID string, conn *SafeConn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	set := c.connections[sessionID]
	delete(set, conn)
	if len(set) == 0 {
		delete(c.connections, sessionID)
		return !c.stopping
	}
	return false
}

func (c *WebChannel) handleWebSocket(w http.ResponseWriter, r *http.Request, ctx api.ChannelContext) {
	id, ck := sessionID(r)
	var header http.Header
	if ck != nil {
		header = http.Header{"Set-Cookie": []string{ck.String()}}
	}

	rawConn, err := c.upgrader.Upgrade(w, r, header)
	if err != nil {
		slog.Error("WS Upgrade failed", "error", err)
		return
	}
	rawConn.SetReadLimit(maxFrameBytes)

	conn := &SafeConn{Conn: rawConn}
	if !c.register(id, conn) {
		conn.Close()
		return
	}

	session := api.SessionContext{
		ChannelID: c.ID(),
		SessionID: id,
		UserID:    id,
		ChatID:    id,
		Username:  "web-" + id[:8],
	}

	defer func() {
		if c.unregister(id, conn) {
			// Nobody is left to see the answer.
			ctx.OnMessage(c.ID(), &api.UnifiedMessage{Session: session, Kind: api.KindCancel})
		}
		conn.Close()
	}()

	// Render the transcript as soon as the page connects.
	ctx.OnMessage(c.ID(), &api.UnifiedMessage{Session: session, Kind: api.KindHistory})

	for {
		_, msgBytes, err := conn.ReadMessage()
		if err != nil {
			break
		}

		var incoming IncomingMessage
		if err := json.Unmarshal(msgBytes, &incoming); err != nil {
			// Plain text frames are questions.
			incoming = IncomingMessage{Type: api.KindQuestion, Text: string(msgBytes)}
		}

		kind := strings.ToLower(strings.TrimSpace(incoming.Type))
		switch kind {
		case "", api.KindQuestion, api.KindCredential, api.KindCancel, api.KindReset, api.KindHistory:
		default:
			slog.Warn("Unknown web frame type", "type", incoming.Type, "session", id)
			continue
		}

		ctx.OnMessage(c.ID(), &api.UnifiedMessage{
			Session: session,
			Kind:    kind,
			Content: incoming.Text,
		})
	}
}
