package tools

import (
	"sync"

	"polymath/pkg/api"
)

// Tool is re-exported so callers need not import api for the common case.
type Tool = api.Tool

// ToolRegistry acts as a central inventory for all tools available to the Agent.
// Tools are kept in registration order, which is the order the agent lists
// them in its prompt.
type ToolRegistry struct {
	mu    sync.RWMutex    // Protects concurrent access to the tools map
	tools map[string]Tool // Internal map of tool name to implementation
	order []string        // Names in registration order
}

// NewToolRegistry creates a new tool registry
func NewToolRegistry(tools ...Tool) *ToolRegistry {
	tr := &ToolRegistry{
		tools: make(map[string]Tool),
	}
	for _, t := range tools {
		tr.Register(t)
	}
	return tr
}

// Register adds a tool to the registry. Registering a name again replaces
// the tool but keeps its position.
func (tr *ToolRegistry) Register(tool Tool) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	name := tool.Name()
	if _, exists := tr.tools[name]; !exists {
		tr.order = append(tr.order, name)
	}
	tr.tools[name] = tool
}

// Unregister removes a tool from the registry
func (tr *ToolRegistry) Unregister(name string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if _, exists := tr.tools[name]; !exists {
		return
	}
	delete(tr.tools, name)
	for i, n := range tr.order {
		if n == name {
			tr.order = append(tr.order[:i], tr.order[i+1:]...)
			break
		}
	}
}

// Get retrieves a tool by name
func (tr *ToolRegistry) Get(name string) (Tool, bool) {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	tool, ok := tr.tools[name]
	return tool, ok
}

// GetAll returns all registered tools in registration order
func (tr *ToolRegistry) GetAll() []Tool {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	tools := make([]Tool, 0, len(tr.order))
	for _, name := range tr.order {
		tools = append(tools, tr.tools[name])
	}
	return tools
}

// Names returns the registered tool names in registration order
func (tr *ToolRegistry) Names() []string {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	names := make([]string, len(tr.order))
	copy(names, tr.order)
	return names
}
