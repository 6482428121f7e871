package handler

import (
	"context"
	"log/slog"

	"polymath/pkg/api"
	"polymath/pkg/llm"
)

// thoughtStream forwards the agent's intermediate steps to the channel as
// thinking blocks while the run is in progress.
type thoughtStream struct {
	blocks chan llm.ContentBlock
	done   chan struct{}
}

func newThoughtStream(responder api.MessageResponder, sc api.SessionContext, buffer int) *thoughtStream {
	if buffer <= 0 {
		buffer = 100
	}
	s := &thoughtStream{
		blocks: make(chan llm.ContentBlock, buffer),
		done:   make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		if err := responder.StreamReply(sc, s.blocks); err != nil {
			slog.Error("Failed to stream thoughts", "channel", sc.ChannelID, "error", err)
			// Keep draining so callbacks never block.
			for range s.blocks {
			}
		}
	}()
	return s
}

func (s *thoughtStream) emit(text string) {
	if text == "" {
		return
	}
	s.blocks <- llm.NewThinkingBlock(text)
}

func (s *thoughtStream) OnAgentAction(_ context.Context, action api.AgentAction) {
	s.emit(action.Log)
}

func (s *thoughtStream) OnToolEnd(_ context.Context, step api.AgentStep) {
	s.emit("\nObservation: " + step.Observation + "\n")
}

func (s *thoughtStream) OnAgentFinish(_ context.Context, _ string, log string) {
	s.emit(log)
}

// Close ends the stream and waits until the channel rendered it.
func (s *thoughtStream) Close() {
	close(s.blocks)
	<-s.done
}

type nopCallback struct{}

func (nopCallback) OnAgentAction(context.Context, api.AgentAction) {}
func (nopCallback) OnToolEnd(context.Context, api.AgentStep)       {}
func (nopCallback) OnAgentFinish(context.Context, string, string)  {}
