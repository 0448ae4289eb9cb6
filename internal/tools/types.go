// Package tools defines the Tool interface, the registry the agent dispatches
// through, and the course retrieval tools.
package tools

import "context"

// Definition is the machine-readable description advertised to the model.
type Definition struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
}

// Citation attributes part of an answer to a course or lesson.
type Citation struct {
	Text string  `json:"text"`
	URL  *string `json:"url"`
}

// NewCitation builds a citation, leaving URL nil when link is empty.
func NewCitation(text, link string) Citation {
	c := Citation{Text: text}
	if link != "" {
		c.URL = &link
	}
	return c
}

// Output is what a tool execution produces. Citations are returned to the
// caller rather than kept on the tool so concurrent queries never share them.
type Output struct {
	Content   string
	Citations []Citation
}

// Tool is a capability the LLM can invoke.
type Tool interface {
	Definition() Definition
	Execute(ctx context.Context, input map[string]interface{}) (Output, error)
}

// Func adapts a definition and a function to the Tool interface.
type Func struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
	Run         func(ctx context.Context, input map[string]interface{}) (Output, error)
}

func (f Func) Definition() Definition {
	return Definition{Name: f.Name, Description: f.Description, InputSchema: f.InputSchema}
}

func (f Func) Execute(ctx context.Context, input map[string]interface{}) (Output, error) {
	return f.Run(ctx, input)
}

// Call is one tool invocation requested by the model.
type Call struct {
	ID    string
	Name  string
	Input map[string]interface{}
}

// Result is the outcome of a Call, correlated by CallID.
type Result struct {
	CallID    string
	Name      string
	Content   string
	IsError   bool
	Citations []Citation
}
