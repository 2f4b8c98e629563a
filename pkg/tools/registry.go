package tools

import (
	"fmt"

	"github.com/quillworks/quill/pkg/llms"
	"github.com/quillworks/quill/pkg/registry"
)

// RegistryError reports a registry operation failure.
type RegistryError struct {
	Action  string
	Message string
	Err     error
}

func (e *RegistryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[tools:%s] %s: %v", e.Action, e.Message, e.Err)
	}
	return fmt.Sprintf("[tools:%s] %s", e.Action, e.Message)
}

func (e *RegistryError) Unwrap() error {
	return e.Err
}

// Registry holds the tools available to an agent, keyed by name.
type Registry struct {
	*registry.BaseRegistry[Tool]
}

func NewRegistry() *Registry {
	return &Registry{
		BaseRegistry: registry.NewBaseRegistry[Tool](),
	}
}

// RegisterTool adds a tool under its declared name.
func (r *Registry) RegisterTool(tool Tool) error {
	info := tool.Info()
	if info.Name == "" {
		return &RegistryError{Action: "register", Message: "tool name cannot be empty"}
	}
	if err := r.Register(info.Name, tool); err != nil {
		return &RegistryError{Action: "register", Message: fmt.Sprintf("failed to register tool %s", info.Name), Err: err}
	}
	return nil
}

// RegisterAll registers each tool, stopping at the first failure.
func (r *Registry) RegisterAll(tools ...Tool) error {
	for _, tool := range tools {
		if err := r.RegisterTool(tool); err != nil {
			return err
		}
	}
	return nil
}

// GetTool resolves a tool by name.
func (r *Registry) GetTool(name string) (Tool, error) {
	tool, exists := r.Get(name)
	if !exists {
		return nil, &RegistryError{Action: "get", Message: fmt.Sprintf("tool %s not found", name)}
	}
	return tool, nil
}

// Describe returns model-facing descriptors for every registered tool in
// name order, so prompts are deterministic.
func (r *Registry) Describe() []llms.ToolDefinition {
	tools := r.List()
	defs := make([]llms.ToolDefinition, 0, len(tools))
	for _, tool := range tools {
		info := tool.Info()
		defs = append(defs, llms.ToolDefinition{
			Name:        info.Name,
			Description: info.Description,
			Parameters:  info.Parameters,
		})
	}
	return defs
}
