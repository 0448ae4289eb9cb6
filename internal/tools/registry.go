package tools

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// Registry holds tools by name and dispatches calls to them. It is safe for
// concurrent use by many queries.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. The tool must have a non-empty, unused name.
func (r *Registry) Register(t Tool) error {
	def := t.Definition()
	if def.Name == "" {
		return fmt.Errorf("tool must have a name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[def.Name]; exists {
		return fmt.Errorf("tool %q already registered", def.Name)
	}
	r.tools[def.Name] = t
	r.order = append(r.order, def.Name)
	return nil
}

// Definitions returns every tool description in registration order.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].Definition())
	}
	return defs
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Execute runs one call. It never fails: an unknown tool yields
// "Tool '<name>' not found" and a failing or panicking tool yields an
// error-flagged result.
func (r *Registry) Execute(ctx context.Context, call Call) (res Result) {
	res = Result{CallID: call.ID, Name: call.Name}

	r.mu.RLock()
	t, ok := r.tools[call.Name]
	r.mu.RUnlock()
	if !ok {
		res.Content = fmt.Sprintf("Tool '%s' not found", call.Name)
		return res
	}

	defer func() {
		if p := recover(); p != nil {
			log.Error().Str("tool", call.Name).Interface("panic", p).Msg("tool panicked")
			res.Content = fmt.Sprintf("Tool execution error: %v", p)
			res.IsError = true
			res.Citations = nil
		}
	}()

	input := call.Input
	if input == nil {
		input = map[string]interface{}{}
	}
	out, err := t.Execute(ctx, input)
	if err != nil {
		log.Warn().Err(err).Str("tool", call.Name).Msg("tool execution error")
		res.Content = fmt.Sprintf("Tool execution error: %v", err)
		res.IsError = true
		return res
	}
	res.Content = out.Content
	res.Citations = out.Citations
	return res
}

// NewLedger returns an empty citation ledger for one query, ordered like the registry.
func (r *Registry) NewLedger() *CitationLedger {
	r.mu.RLock()
	defer r.mu.RUnlock()
	order := make([]string, len(r.order))
	copy(order, r.order)
	return &CitationLedger{order: order, byTool: make(map[string][]Citation)}
}
