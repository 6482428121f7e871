package agent

import (
	"fmt"
	"strings"

	"polymath/pkg/api"
)

const promptPrefix = "Answer the following questions as best you can. You have access to the following tools:"

const formatInstructions = `Use the following format:

Question: the input question you must answer
Thought: you should always think about what to do
Action: the action to take, should be one of [%s]
Action Input: the input to the action
Observation: the result of the action
... (this Thought/Action/Action Input/Observation can repeat N times)
Thought: I now know the final answer
Final Answer: the final answer to the original input question`

const promptSuffix = `Begin!

Question: %s
Thought:%s`

const (
	observationPrefix = "Observation: "
	llmPrefix         = "Thought:"
)

// stopSequences end a completion before the model hallucinates an observation.
var stopSequences = []string{"\n" + strings.TrimSpace(observationPrefix), "\n\t" + strings.TrimSpace(observationPrefix)}

// buildPromptTemplate renders everything but the question and scratchpad.
func buildPromptTemplate(tools []api.Tool) string {
	lines := make([]string, len(tools))
	names := make([]string, len(tools))
	for i, t := range tools {
		lines[i] = t.Name() + ": " + t.Description()
		names[i] = t.Name()
	}
	return strings.Join([]string{
		promptPrefix,
		strings.Join(lines, "\n"),
		fmt.Sprintf(formatInstructions, strings.Join(names, ", ")),
	}, "\n\n")
}

// constructScratchpad replays the steps taken so far so the model continues
// from its last thought.
func constructScratchpad(steps []api.AgentStep) string {
	var sb strings.Builder
	for _, s := range steps {
		sb.WriteString(s.Action.Log)
		sb.WriteString("\n")
		sb.WriteString(observationPrefix)
		sb.WriteString(s.Observation)
		sb.WriteString("\n")
		sb.WriteString(llmPrefix)
	}
	return sb.String()
}

func renderPrompt(header, question string, steps []api.AgentStep) string {
	return header + "\n\n" + fmt.Sprintf(promptSuffix, question, constructScratchpad(steps))
}
