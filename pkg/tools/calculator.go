package tools

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"

	"polymath/pkg/llm"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/vm"
)

const (
	// CalculatorToolName is the name the agent uses to call the calculator.
	CalculatorToolName = "Calculator"

	calculatorDescription = "A tool to perform calculations."
)

const calculatorPrompt = "Translate a math problem into a single expression that can be evaluated by a calculator. " +
	"The calculator supports + - * / % ** ^, parentheses, the constants pi and e, and the functions " +
	"sqrt, exp, log, log10, sin, cos, tan, arcsin, arccos, arctan, abs, floor, ceil and round. " +
	"Use the output of evaluating the expression to answer the question.\n\n" +
	"Question: ${Question with math problem.}\n" +
	"```text\n" +
	"${single line mathematical expression that solves the problem}\n" +
	"```\n" +
	"...calculate(text)...\n" +
	"```output\n" +
	"${Output of evaluating the expression}\n" +
	"```\n" +
	"Answer: ${Answer}\n\n" +
	"Begin.\n\n" +
	"Question: What is 37593 * 67?\n" +
	"```text\n" +
	"37593 * 67\n" +
	"```\n" +
	"...calculate(\"37593 * 67\")...\n" +
	"```output\n" +
	"2518731\n" +
	"```\n" +
	"Answer: 2518731\n\n" +
	"Question: 37593^(1/5)\n" +
	"```text\n" +
	"37593**(1/5)\n" +
	"```\n" +
	"...calculate(\"37593**(1/5)\")...\n" +
	"```output\n" +
	"8.222831614237718\n" +
	"```\n" +
	"Answer: 8.222831614237718\n\n" +
	"Question: {question}\n"

// calculatorStop ends generation before the model invents an output block.
var calculatorStop = []string{"```output"}

var textBlockRegex = regexp.MustCompile("(?s)^```text(.*?)```")

// CalculatorTool asks the LLM to turn a word problem into an expression and
// evaluates that expression locally.
type CalculatorTool struct {
	client llm.LLMClient
}

// NewCalculatorTool builds the calculator on top of an LLM client.
func NewCalculatorTool(client llm.LLMClient) *CalculatorTool {
	return &CalculatorTool{client: client}
}

func (c *CalculatorTool) Name() string        { return CalculatorToolName }
func (c *CalculatorTool) Description() string { return calculatorDescription }

// Call returns "Answer: <value>".
func (c *CalculatorTool) Call(ctx context.Context, problem string) (string, error) {
	prompt := strings.Replace(calculatorPrompt, "{question}", problem, 1)
	out, err := llm.Complete(ctx, c.client, []llm.Message{llm.NewUserMessage(prompt)}, &llm.ChatOptions{Stop: calculatorStop})
	if err != nil {
		return "", err
	}
	return processCalculatorOutput(ctx, out)
}

func processCalculatorOutput(ctx context.Context, llmOutput string) (string, error) {
	text := strings.TrimSpace(llmOutput)

	if m := textBlockRegex.FindStringSubmatch(text); m != nil {
		expression := strings.TrimSpace(m[1])
		value, err := Evaluate(expression)
		if err != nil {
			return "", fmt.Errorf("calculator: evaluating %q raised error: %w. Please try again with a valid numerical expression", expression, err)
		}
		slog.DebugContext(ctx, "Calculator evaluated expression", "expression", expression, "value", value)
		return "Answer: " + value, nil
	}

	if strings.HasPrefix(text, "Answer:") {
		return text, nil
	}
	if i := strings.LastIndex(text, "Answer:"); i >= 0 {
		return "Answer: " + strings.TrimSpace(text[i+len("Answer:"):]), nil
	}
	return "", fmt.Errorf("unknown format from LLM: %s", llmOutput)
}

// Evaluate computes a single-line arithmetic expression and formats the result.
func Evaluate(expression string) (string, error) {
	expression = strings.TrimSpace(strings.ReplaceAll(expression, "\n", " "))
	if expression == "" {
		return "", fmt.Errorf("empty expression")
	}

	program, err := compile(expression)
	if err != nil {
		return "", err
	}
	out, err := expr.Run(program, calcEnv)
	if err != nil {
		return "", err
	}
	return formatNumber(out)
}

var calcEnv = map[string]any{
	"pi": math.Pi,
	"e":  math.E,
}

func compile(expression string) (*vm.Program, error) {
	opts := []expr.Option{expr.Env(calcEnv), expr.Patch(checkedArithmetic{})}
	for name, fn := range unaryFuncs {
		opts = append(opts, expr.Function(name, unary(name, fn)))
	}
	for op, name := range checkedOps {
		opts = append(opts, expr.Function(name, checked(op)))
	}
	return expr.Compile(expression, opts...)
}

// checkedOps maps the integer operators that can wrap around to the
// functions replacing them.
var checkedOps = map[string]string{
	"+": "_checked_add",
	"-": "_checked_sub",
	"*": "_checked_mul",
}

// checkedArithmetic rewrites a + b, a - b and a * b into calls that switch
// to float64 when the int64 result would overflow.
type checkedArithmetic struct{}

func (checkedArithmetic) Visit(node *ast.Node) {
	n, ok := (*node).(*ast.BinaryNode)
	if !ok {
		return
	}
	name, ok := checkedOps[n.Operator]
	if !ok {
		return
	}
	ast.Patch(node, &ast.CallNode{
		Callee:    &ast.IdentifierNode{Value: name},
		Arguments: []ast.Node{n.Left, n.Right},
	})
}

func checked(op string) func(params ...any) (any, error) {
	return func(params ...any) (any, error) {
		if len(params) != 2 {
			return nil, fmt.Errorf("%s expects 2 operands, got %d", op, len(params))
		}
		a, aInt := toInt(params[0])
		b, bInt := toInt(params[1])
		if aInt && bInt {
			if r, ok := intOp(op, a, b); ok {
				return r, nil
			}
		}
		x, err := toFloat(params[0])
		if err != nil {
			return nil, err
		}
		y, err := toFloat(params[1])
		if err != nil {
			return nil, err
		}
		switch op {
		case "+":
			return x + y, nil
		case "-":
			return x - y, nil
		}
		return x * y, nil
	}
}

// intOp reports false when the result does not fit in an int.
func intOp(op string, a, b int) (int, bool) {
	switch op {
	case "+":
		r := a + b
		return r, (r > a) == (b > 0)
	case "-":
		r := a - b
		return r, (r < a) == (b > 0)
	}
	if a == 0 || b == 0 {
		return 0, true
	}
	r := a * b
	if r/b != a || (a == -1 && b == math.MinInt) || (b == -1 && a == math.MinInt) {
		return 0, false
	}
	return r, true
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	}
	return 0, false
}

var unaryFuncs = map[string]func(float64) float64{
	"sqrt":   math.Sqrt,
	"exp":    math.Exp,
	"log":    math.Log,
	"log10":  math.Log10,
	"sin":    math.Sin,
	"cos":    math.Cos,
	"tan":    math.Tan,
	"arcsin": math.Asin,
	"arccos": math.Acos,
	"arctan": math.Atan,
}

func unary(name string, fn func(float64) float64) func(params ...any) (any, error) {
	return func(params ...any) (any, error) {
		if len(params) != 1 {
			return nil, fmt.Errorf("%s expects 1 argument, got %d", name, len(params))
		}
		x, err := toFloat(params[0])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		return fn(x), nil
	}
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	}
	return 0, fmt.Errorf("not a number: %v", v)
}

// formatNumber prints integral values without a fractional part.
func formatNumber(v any) (string, error) {
	switch n := v.(type) {
	case int:
		return strconv.Itoa(n), nil
	case int64:
		return strconv.FormatInt(n, 10), nil
	case bool:
		return strconv.FormatBool(n), nil
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return "", fmt.Errorf("result is not a finite number: %v", n)
		}
		if n == math.Trunc(n) && math.Abs(n) < 1e15 {
			return strconv.FormatInt(int64(n), 10), nil
		}
		return strconv.FormatFloat(n, 'g', -1, 64), nil
	}
	return "", fmt.Errorf("expression did not produce a number: %v", v)
}
