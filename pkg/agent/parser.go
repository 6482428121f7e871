package agent

import (
	"fmt"
	"regexp"
	"strings"

	"polymath/pkg/api"
)

const finalAnswerAction = "Final Answer:"

const (
	missingActionAfterThought     = "Invalid Format: Missing 'Action:' after 'Thought:'"
	missingActionInputAfterAction = "Invalid Format: Missing 'Action Input:' after 'Action:'"
	finalAnswerAndParsableAction  = "Parsing LLM output produced both a final answer and a parse-able action:"
)

var (
	actionRegex      = regexp.MustCompile(`(?s)Action\s*\d*\s*:[\s]*(.*?)[\s]*Action\s*\d*\s*Input\s*\d*\s*:[\s]*(.*)`)
	actionOnlyRegex  = regexp.MustCompile(`(?s)Action\s*\d*\s*:[\s]*(.*?)`)
	actionInputRegex = regexp.MustCompile(`(?s)[\s]*Action\s*\d*\s*Input\s*\d*\s*:[\s]*(.*)`)
)

// ParseError is a model output the parser could not turn into an action or
// an answer. When SendToLLM is set, Observation tells the model how to fix it.
type ParseError struct {
	Message     string
	Observation string
	LLMOutput   string
	SendToLLM   bool
}

func (e *ParseError) Error() string { return e.Message }

// parsed is either an action or a final answer.
type parsed struct {
	action *api.AgentAction
	finish *finish
}

type finish struct {
	output string
	log    string
}

// parseOutput reads one completion in the Thought/Action/Action Input format.
func parseOutput(text string) (parsed, error) {
	includesAnswer := strings.Contains(text, finalAnswerAction)

	if m := actionRegex.FindStringSubmatch(text); m != nil {
		if includesAnswer {
			return parsed{}, &ParseError{
				Message:   fmt.Sprintf("%s %s", finalAnswerAndParsableAction, text),
				LLMOutput: text,
			}
		}
		input := strings.Trim(strings.Trim(m[2], " "), `"`)
		return parsed{action: &api.AgentAction{
			Tool:  strings.TrimSpace(m[1]),
			Input: input,
			Log:   text,
		}}, nil
	}

	if includesAnswer {
		parts := strings.Split(text, finalAnswerAction)
		return parsed{finish: &finish{
			output: strings.TrimSpace(parts[len(parts)-1]),
			log:    text,
		}}, nil
	}

	msg := fmt.Sprintf("Could not parse LLM output: `%s`", text)
	switch {
	case !actionOnlyRegex.MatchString(text):
		return parsed{}, &ParseError{Message: msg, Observation: missingActionAfterThought, LLMOutput: text, SendToLLM: true}
	case !actionInputRegex.MatchString(text):
		return parsed{}, &ParseError{Message: msg, Observation: missingActionInputAfterAction, LLMOutput: text, SendToLLM: true}
	default:
		return parsed{}, &ParseError{Message: msg, LLMOutput: text}
	}
}
