package gateway

import (
	"strings"
	"sync"
	"testing"
	"time"

	"polymath/pkg/api"
	"polymath/pkg/chat"
	"polymath/pkg/llm"
	"polymath/pkg/monitor"
)

type fakeChannel struct {
	mu       sync.Mutex
	id       string
	ctx      api.ChannelContext
	notices  []string
	records  []chat.Record
	history  []chat.Record
	streamed []string
	signals  []string
	stopped  bool
}

func (f *fakeChannel) ID() string { return f.id }

func (f *fakeChannel) Start(ctx api.ChannelContext) error {
	f.ctx = ctx
	return nil
}

func (f *fakeChannel) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
	return nil
}

func (f *fakeChannel) Send(_ api.SessionContext, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notices = append(f.notices, message)
	return nil
}

func (f *fakeChannel) SendRecord(_ api.SessionContext, record chat.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, record)
	return nil
}

func (f *fakeChannel) SendHistory(_ api.SessionContext, records []chat.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history = records
	return nil
}

func (f *fakeChannel) Stream(_ api.SessionContext, blocks <-chan llm.ContentBlock) error {
	for b := range blocks {
		f.mu.Lock()
		f.streamed = append(f.streamed, b.Text)
		f.mu.Unlock()
	}
	return nil
}

func (f *fakeChannel) SendSignal(_ api.SessionContext, signal string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signals = append(f.signals, signal)
	return nil
}

type recordingMonitor struct {
	mu   sync.Mutex
	msgs []monitor.MonitorMessage
}

func (m *recordingMonitor) Start() error { return nil }
func (m *recordingMonitor) Stop() error  { return nil }
func (m *recordingMonitor) OnMessage(msg monitor.MonitorMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs = append(m.msgs, msg)
}

type recordingHandler struct {
	responder api.MessageResponder
	got       []*api.UnifiedMessage
}

func (h *recordingHandler) SetResponder(r api.MessageResponder) { h.responder = r }
func (h *recordingHandler) OnMessage(msg *api.UnifiedMessage)   { h.got = append(h.got, msg) }

func TestBuilder_WiresHandlerAndStartsChannels(t *testing.T) {
	ch := &fakeChannel{id: "web"}
	h := &recordingHandler{}
	mon := &recordingMonitor{}

	gw, err := NewGatewayBuilder().WithMonitor(mon).WithChannel(ch).WithHandler(h).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if h.responder == nil {
		t.Fatal("responder not injected")
	}
	if ch.ctx == nil {
		t.Fatal("channel not started")
	}

	session := api.SessionContext{ChannelID: "web", SessionID: "s1", Username: "guest"}
	ch.ctx.OnMessage("web", &api.UnifiedMessage{Session: session, Content: "What is 25 * 13?"})
	if len(h.got) != 1 || h.got[0].Content != "What is 25 * 13?" {
		t.Fatalf("handler got %+v", h.got)
	}

	gw.StopAll()
	if !ch.stopped {
		t.Fatal("channel not stopped")
	}
}

func TestBuilder_NoChannels(t *testing.T) {
	if _, err := NewGatewayBuilder().Build(); err == nil {
		t.Fatal("expected error without channels")
	}
}

func TestOnMessage_RedactsCredential(t *testing.T) {
	ch := &fakeChannel{id: "web"}
	h := &recordingHandler{}
	mon := &recordingMonitor{}
	if _, err := NewGatewayBuilder().WithMonitor(mon).WithChannel(ch).WithHandler(h).Build(); err != nil {
		t.Fatal(err)
	}

	session := api.SessionContext{ChannelID: "web", SessionID: "s1"}
	ch.ctx.OnMessage("web", &api.UnifiedMessage{Session: session, Kind: api.KindCredential, Content: "gsk_secret"})

	if len(h.got) != 1 || h.got[0].Content != "gsk_secret" {
		t.Fatal("handler must receive the credential itself")
	}
	for _, m := range mon.msgs {
		if strings.Contains(m.Content, "gsk_secret") {
			t.Fatalf("credential leaked to monitor: %+v", m)
		}
	}
}

func TestRouting(t *testing.T) {
	ch := &fakeChannel{id: "web"}
	mon := &recordingMonitor{}
	gw := NewGatewayManager()
	gw.SetMonitor(mon)
	gw.Register(ch)

	session := api.SessionContext{ChannelID: "web", SessionID: "s1"}
	if err := gw.SendReply(session, "Please enter a question to get a response."); err != nil {
		t.Fatal(err)
	}
	answer := chat.NewRecord(chat.RoleAssistant, "325")
	if err := gw.SendRecord(session, answer); err != nil {
		t.Fatal(err)
	}
	if err := gw.SendHistory(session, []chat.Record{answer}); err != nil {
		t.Fatal(err)
	}
	if err := gw.SendSignal(session, api.SignalThinking); err != nil {
		t.Fatal(err)
	}

	blocks := make(chan llm.ContentBlock, 2)
	blocks <- llm.NewThinkingBlock("Thought: multiply")
	blocks <- llm.NewThinkingBlock("Observation: Answer: 325")
	close(blocks)
	if err := gw.StreamReply(session, blocks); err != nil {
		t.Fatal(err)
	}

	if len(ch.notices) != 1 || len(ch.records) != 1 || len(ch.history) != 1 {
		t.Fatalf("routing mismatch: %+v", ch)
	}
	if len(ch.signals) != 1 || ch.signals[0] != api.SignalThinking {
		t.Fatalf("signals: %v", ch.signals)
	}
	if len(ch.streamed) != 2 {
		t.Fatalf("streamed: %v", ch.streamed)
	}

	var assistant int
	for _, m := range mon.msgs {
		if m.MessageType == monitor.TypeAssistant {
			assistant++
		}
	}
	if assistant != 1 {
		t.Fatalf("expected one assistant message in monitor, got %d", assistant)
	}
}

func TestRouting_UnknownChannel(t *testing.T) {
	gw := NewGatewayManager()
	session := api.SessionContext{ChannelID: "missing"}
	if err := gw.SendReply(session, "x"); err == nil {
		t.Fatal("expected error")
	}

	blocks := make(chan llm.ContentBlock)
	if err := gw.StreamReply(session, blocks); err == nil {
		t.Fatal("expected error")
	}
	done := make(chan struct{})
	go func() {
		blocks <- llm.NewThinkingBlock("drained")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stream not drained")
	}
	close(blocks)
}
