package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"polymath/pkg/api"
	"polymath/pkg/llm"
)

const (
	// exceptionTool names the pseudo-step recorded for unparsable output.
	exceptionTool = "_Exception"

	invalidResponse = "Invalid or incomplete response"

	// StoppedOutput is the answer when the iteration limit is hit.
	StoppedOutput = "Agent stopped due to iteration limit or time limit."

	// DefaultMaxIterations bounds the Thought/Action loop.
	DefaultMaxIterations = 15
)

// Options tune the executor.
type Options struct {
	MaxIterations int
	// HandleParsingErrors feeds malformed completions back to the model as
	// an observation instead of failing the run.
	HandleParsingErrors bool
}

// Executor is a zero-shot ReAct agent: it shows the model the tool
// descriptions, parses Thought/Action/Action Input completions, runs the
// chosen tool and loops until the model gives a final answer.
type Executor struct {
	client  llm.LLMClient
	tools   api.ToolRegistry
	opts    Options
	header  string
	toolSet string
}

// NewExecutor assembles an agent from a client and a tool registry.
func NewExecutor(client llm.LLMClient, tools api.ToolRegistry, opts Options) *Executor {
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultMaxIterations
	}
	return &Executor{
		client:  client,
		tools:   tools,
		opts:    opts,
		header:  buildPromptTemplate(tools.GetAll()),
		toolSet: strings.Join(tools.Names(), ", "),
	}
}

// Run answers question. Tool errors and LLM errors abort the run.
func (e *Executor) Run(ctx context.Context, question string, cb api.AgentCallback) (*api.AgentResult, error) {
	if cb == nil {
		cb = NopCallback{}
	}

	var steps []api.AgentStep
	for iteration := 1; iteration <= e.opts.MaxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		prompt := renderPrompt(e.header, question, steps)
		text, err := llm.Complete(ctx, e.client, []llm.Message{llm.NewUserMessage(prompt)}, &llm.ChatOptions{Stop: stopSequences})
		if err != nil {
			return nil, fmt.Errorf("agent llm call: %w", err)
		}

		out, perr := parseOutput(text)
		if perr != nil {
			var pe *ParseError
			if !errors.As(perr, &pe) || !e.opts.HandleParsingErrors {
				return nil, perr
			}
			observation := invalidResponse
			log := text
			if pe.SendToLLM {
				observation = pe.Observation
				log = pe.LLMOutput
			}
			slog.WarnContext(ctx, "Agent output could not be parsed", "iteration", iteration, "observation", observation)

			action := api.AgentAction{Tool: exceptionTool, Input: observation, Log: log}
			cb.OnAgentAction(ctx, action)
			step := api.AgentStep{Action: action, Observation: observation}
			cb.OnToolEnd(ctx, step)
			steps = append(steps, step)
			continue
		}

		if out.finish != nil {
			cb.OnAgentFinish(ctx, out.finish.output, out.finish.log)
			slog.InfoContext(ctx, "Agent finished", "iterations", iteration, "steps", len(steps))
			return &api.AgentResult{Output: out.finish.output, Steps: steps}, nil
		}

		action := *out.action
		cb.OnAgentAction(ctx, action)

		observation, err := e.callTool(ctx, action)
		if err != nil {
			return nil, err
		}
		step := api.AgentStep{Action: action, Observation: observation}
		cb.OnToolEnd(ctx, step)
		steps = append(steps, step)
	}

	slog.WarnContext(ctx, "Agent hit iteration limit", "max", e.opts.MaxIterations)
	cb.OnAgentFinish(ctx, StoppedOutput, "")
	return &api.AgentResult{Output: StoppedOutput, Steps: steps}, nil
}

// callTool runs one tool. An unknown tool name is answered with an
// observation listing the valid ones.
func (e *Executor) callTool(ctx context.Context, action api.AgentAction) (observation string, err error) {
	tool, ok := e.tools.Get(action.Tool)
	if !ok {
		slog.WarnContext(ctx, "Agent requested unknown tool", "tool", action.Tool)
		return fmt.Sprintf("%s is not a valid tool, try one of [%s].", action.Tool, e.toolSet), nil
	}

	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "Tool execution panicked", "tool", action.Tool, "panic", r)
			err = fmt.Errorf("tool %s panicked: %v", action.Tool, r)
		}
	}()

	slog.InfoContext(ctx, "Executing tool", "tool", action.Tool, "input", action.Input)
	observation, err = tool.Call(ctx, action.Input)
	if err != nil {
		slog.ErrorContext(ctx, "Tool execution error", "tool", action.Tool, "error", err)
		return "", err
	}
	return observation, nil
}

// NopCallback ignores every event.
type NopCallback struct{}

func (NopCallback) OnAgentAction(context.Context, api.AgentAction) {}
func (NopCallback) OnToolEnd(context.Context, api.AgentStep)       {}
func (NopCallback) OnAgentFinish(context.Context, string, string)  {}
