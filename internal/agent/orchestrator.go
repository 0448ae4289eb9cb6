// Package agent drives the tool-calling conversation between the language
// model and the course tools for a single query.
package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/cortexai/coursebot/internal/llm"
	"github.com/cortexai/coursebot/internal/tools"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrUpstream wraps failures of the model service itself.
	ErrUpstream = errors.New("model service error")
	// ErrEmptyReply means the model returned no content blocks.
	ErrEmptyReply = errors.New("no response generated from model")
	// ErrMalformedReply means the reply had content but no text.
	ErrMalformedReply = errors.New("unexpected response format from model")
	// ErrSequential marks a bookkeeping fault of the multi-round loop, such as
	// a missing reply or a malformed tool request. Run recovers from it by
	// falling back to a single tool round. Model service failures are never
	// reported as ErrSequential.
	ErrSequential = errors.New("sequential tool orchestration failed")

	errNilReply = errors.New("nil reply")
)

// Placeholder answers used when a reply inside the tool flow has no usable text.
const (
	PlaceholderNoResponse       = "No response generated from Claude API"
	PlaceholderUnexpected       = "Unexpected response format from Claude API"
	PlaceholderNoResponseTools  = "No response generated after tool execution"
	PlaceholderUnexpectedFormat = "Unexpected response format after tool execution"
)

// State is the orchestrator's position in the tool-calling conversation.
type State int

const (
	StateAwaitingModel State = iota
	StateToolsRequested
	StateDone
	StateFallback
)

func (s State) String() string {
	switch s {
	case StateAwaitingModel:
		return "AWAITING_MODEL"
	case StateToolsRequested:
		return "TOOLS_REQUESTED"
	case StateDone:
		return "DONE"
	case StateFallback:
		return "FALLBACK"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ToolExecutor is the registry surface the orchestrator depends on.
type ToolExecutor interface {
	Definitions() []tools.Definition
	Execute(ctx context.Context, call tools.Call) tools.Result
}

// Options tunes the orchestrator. Zero values fall back to DefaultOptions.
type Options struct {
	MaxRounds        int     // tool rounds per query, default 2
	MaxTokens        int     // per model call, default 800
	Temperature      float64 // default 0
	Sequential       bool    // false uses a single tool round directly
	MaxParallelTools int     // concurrent tool calls within one round, default 4
}

// DefaultOptions allows two sequential tool rounds of 800 tokens each.
func DefaultOptions() Options {
	return Options{MaxRounds: 2, MaxTokens: 800, Sequential: true, MaxParallelTools: 4}
}

// Answer is the outcome of one orchestrated query.
type Answer struct {
	Text       string
	ModelCalls int
	ToolRounds int
	Fallback   bool
	ToolsUsed  []string
	Usage      llm.Usage
}

// Orchestrator runs the bounded sequential tool loop. It holds no per-query
// state and is safe for concurrent use.
type Orchestrator struct {
	client llm.Client
	tools  ToolExecutor
	opts   Options
}

func NewOrchestrator(client llm.Client, executor ToolExecutor, opts Options) *Orchestrator {
	def := DefaultOptions()
	if opts.MaxRounds <= 0 {
		opts.MaxRounds = def.MaxRounds
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = def.MaxTokens
	}
	if opts.MaxParallelTools <= 0 {
		opts.MaxParallelTools = def.MaxParallelTools
	}
	return &Orchestrator{client: client, tools: executor, opts: opts}
}

// run is the per-query state.
type run struct {
	o      *Orchestrator
	ledger *tools.CitationLedger
	answer Answer
	state  State
}

// Run answers query, already framed for the model. history is the opaque
// prior-conversation string, possibly empty. Citations produced by tools are
// recorded in ledger when it is non-nil.
//
// Only two failures are returned: ErrUpstream when the model service fails,
// and ErrEmptyReply / ErrMalformedReply when the first reply has no usable
// text and asked for no tools. A query never makes more than MaxRounds+1
// model calls or MaxRounds tool rounds, fallback included.
func (o *Orchestrator) Run(ctx context.Context, query, history string, ledger *tools.CitationLedger) (*Answer, error) {
	r := &run{o: o, ledger: ledger}

	base := llm.Request{
		System:      buildSystemPrompt(history),
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: []llm.ContentBlock{llm.TextBlock(query)}}},
		Tools:       toLLMTools(o.tools.Definitions()),
		Temperature: o.opts.Temperature,
		MaxTokens:   o.opts.MaxTokens,
	}

	first, err := r.call(ctx, base)
	if err != nil {
		return nil, err
	}

	if !first.RequestsTools() {
		text, err := strictText(first)
		if err != nil {
			return nil, err
		}
		r.setState(StateDone)
		r.answer.Text = text
		return &r.answer, nil
	}

	if !o.opts.Sequential {
		return r.singleRound(ctx, base, first)
	}

	text, err := r.sequential(ctx, base, first)
	if err == nil {
		r.setState(StateDone)
		r.answer.Text = text
		return &r.answer, nil
	}
	if !errors.Is(err, ErrSequential) {
		return nil, err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, ctxErr)
	}

	log.Warn().Err(err).Int("model_calls", r.answer.ModelCalls).Msg("sequential tool loop failed, falling back to single round")
	r.setState(StateFallback)
	r.answer.Fallback = true
	if r.answer.ModelCalls > o.opts.MaxRounds || r.answer.ToolRounds >= o.opts.MaxRounds {
		// No model call or tool round left for the fallback.
		r.setState(StateDone)
		r.answer.Text = PlaceholderNoResponseTools
		return &r.answer, nil
	}
	return r.singleRound(ctx, base, first)
}

// sequential runs up to MaxRounds tool rounds. Bookkeeping faults and panics
// are reported as ErrSequential; model service failures as ErrUpstream.
func (r *run) sequential(ctx context.Context, base llm.Request, first *llm.Reply) (text string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: panic: %v", ErrSequential, p)
		}
	}()

	messages := append([]llm.Message(nil), base.Messages...)
	reply := first
	rounds := 0

	for reply.RequestsTools() && rounds < r.o.opts.MaxRounds {
		if err := checkToolCalls(reply.ToolCalls()); err != nil {
			return "", fmt.Errorf("%w: round %d: %w", ErrSequential, rounds+1, err)
		}
		r.setState(StateToolsRequested)
		messages = append(messages, reply.AsMessage())

		results := r.executeRound(ctx, reply.ToolCalls())
		if len(results) == 0 {
			break
		}
		messages = append(messages, resultsMessage(results))
		rounds++
		r.answer.ToolRounds = rounds

		req := base
		req.Messages = messages
		r.setState(StateAwaitingModel)
		next, callErr := r.call(ctx, req)
		if errors.Is(callErr, errNilReply) {
			return "", fmt.Errorf("%w: round %d: %w", ErrSequential, rounds, callErr)
		}
		if callErr != nil {
			return "", callErr
		}
		reply = next
	}

	return lenientText(reply, PlaceholderNoResponse, PlaceholderUnexpected), nil
}

// singleRound executes the first reply's tool calls once and asks the model
// for a final answer without advertising tools.
func (r *run) singleRound(ctx context.Context, base llm.Request, first *llm.Reply) (*Answer, error) {
	messages := append([]llm.Message(nil), base.Messages...)
	messages = append(messages, first.AsMessage())

	results := r.executeRound(ctx, first.ToolCalls())
	if len(results) > 0 {
		messages = append(messages, resultsMessage(results))
		r.answer.ToolRounds++
	}

	req := base
	req.Messages = messages
	req.Tools = nil
	final, err := r.call(ctx, req)
	if err != nil {
		return nil, err
	}

	r.setState(StateDone)
	r.answer.Text = lenientText(final, PlaceholderNoResponseTools, PlaceholderUnexpectedFormat)
	return &r.answer, nil
}

// executeRound runs every call of one round concurrently. Results keep the
// request order. The registry turns tool failures into error results, so one
// failing call never affects the others.
func (r *run) executeRound(ctx context.Context, calls []llm.ContentBlock) []tools.Result {
	if len(calls) == 0 {
		return nil
	}

	results := make([]tools.Result, len(calls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.o.opts.MaxParallelTools)
	for i, c := range calls {
		g.Go(func() error {
			results[i] = r.o.tools.Execute(gctx, tools.Call{ID: c.ToolUseID, Name: c.ToolName, Input: c.Input})
			return nil
		})
	}
	_ = g.Wait()

	for _, res := range results {
		r.answer.ToolsUsed = append(r.answer.ToolsUsed, res.Name)
		if r.ledger != nil && !res.IsError {
			r.ledger.Record(res.Name, res.Citations)
		}
		log.Debug().
			Str("tool", res.Name).
			Str("call_id", res.CallID).
			Bool("is_error", res.IsError).
			Int("citations", len(res.Citations)).
			Msg("tool executed")
	}
	return results
}

func (r *run) call(ctx context.Context, req llm.Request) (*llm.Reply, error) {
	r.answer.ModelCalls++
	reply, err := r.o.client.Complete(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	if reply == nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, errNilReply)
	}
	r.answer.Usage = r.answer.Usage.Add(reply.Usage)
	return reply, nil
}

func (r *run) setState(s State) {
	if r.state == s {
		return
	}
	log.Debug().Str("from", r.state.String()).Str("to", s.String()).Msg("orchestrator state")
	r.state = s
}

// checkToolCalls rejects tool requests that cannot be answered with a
// matching tool result.
func checkToolCalls(calls []llm.ContentBlock) error {
	for i, c := range calls {
		if c.ToolUseID == "" || c.ToolName == "" {
			return fmt.Errorf("tool call %d has no id or name", i)
		}
	}
	return nil
}

func strictText(reply *llm.Reply) (string, error) {
	if len(reply.Content) == 0 {
		return "", ErrEmptyReply
	}
	text, ok := reply.Text()
	if !ok {
		return "", ErrMalformedReply
	}
	return text, nil
}

func lenientText(reply *llm.Reply, empty, malformed string) string {
	if len(reply.Content) == 0 {
		return empty
	}
	text, ok := reply.Text()
	if !ok {
		return malformed
	}
	return text
}

func resultsMessage(results []tools.Result) llm.Message {
	blocks := make([]llm.ContentBlock, len(results))
	for i, res := range results {
		blocks[i] = llm.ToolResultBlock(res.CallID, res.Content, res.IsError)
	}
	return llm.Message{Role: llm.RoleUser, Content: blocks}
}

func toLLMTools(defs []tools.Definition) []llm.Tool {
	if len(defs) == 0 {
		return nil
	}
	out := make([]llm.Tool, len(defs))
	for i, d := range defs {
		out[i] = llm.Tool{Name: d.Name, Description: d.Description, InputSchema: d.InputSchema}
	}
	return out
}
