package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/cortexai/coursebot/internal/llm"
	"github.com/cortexai/coursebot/internal/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedClient replays canned replies and records every request.
type scriptedClient struct {
	mu       sync.Mutex
	steps    []step
	requests []llm.Request
}

type step struct {
	reply *llm.Reply
	err   error
}

func (c *scriptedClient) Complete(ctx context.Context, req llm.Request) (*llm.Reply, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	if len(c.steps) == 0 {
		return nil, errors.New("unexpected model call")
	}
	s := c.steps[0]
	c.steps = c.steps[1:]
	return s.reply, s.err
}

func (c *scriptedClient) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

func textReply(text string) *llm.Reply {
	return &llm.Reply{
		Content:    []llm.ContentBlock{llm.TextBlock(text)},
		StopReason: llm.StopEndTurn,
		Usage:      llm.Usage{InputTokens: 10, OutputTokens: 5},
	}
}

func toolReply(calls ...llm.ContentBlock) *llm.Reply {
	return &llm.Reply{Content: calls, StopReason: llm.StopToolUse, Usage: llm.Usage{InputTokens: 10, OutputTokens: 5}}
}

func toolUse(id, name string, input map[string]interface{}) llm.ContentBlock {
	return llm.ContentBlock{Type: llm.BlockToolUse, ToolUseID: id, ToolName: name, Input: input}
}

type fixture struct {
	registry *tools.Registry
	searches atomic.Int32
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{registry: tools.NewRegistry()}
	require.NoError(t, f.registry.Register(tools.Func{
		Name:        "search_course_content",
		Description: "search",
		InputSchema: map[string]interface{}{"type": "object"},
		Run: func(_ context.Context, in map[string]interface{}) (tools.Output, error) {
			f.searches.Add(1)
			q, _ := in["query"].(string)
			return tools.Output{
				Content:   "[Course]\nresult for " + q,
				Citations: []tools.Citation{tools.NewCitation("Course - Lesson 1", "https://x/1")},
			}, nil
		},
	}))
	require.NoError(t, f.registry.Register(tools.Func{
		Name:        "broken",
		Description: "always fails",
		InputSchema: map[string]interface{}{"type": "object"},
		Run: func(context.Context, map[string]interface{}) (tools.Output, error) {
			return tools.Output{}, errors.New("index offline")
		},
	}))
	return f
}

func (f *fixture) orchestrator(c llm.Client, sequential bool) *Orchestrator {
	opts := DefaultOptions()
	opts.Sequential = sequential
	return NewOrchestrator(c, f.registry, opts)
}

func lastToolResults(req llm.Request) []llm.ContentBlock {
	return req.Messages[len(req.Messages)-1].Content
}

func TestRun_DirectAnswer(t *testing.T) {
	f := newFixture(t)
	c := &scriptedClient{steps: []step{{reply: textReply("Paris")}}}

	ans, err := f.orchestrator(c, true).Run(context.Background(), FrameQuery("capital?"), "User: hi\nAssistant: hello", f.registry.NewLedger())
	require.NoError(t, err)

	assert.Equal(t, "Paris", ans.Text)
	assert.Equal(t, 1, ans.ModelCalls)
	assert.Equal(t, 0, ans.ToolRounds)
	assert.Equal(t, llm.Usage{InputTokens: 10, OutputTokens: 5}, ans.Usage)

	req := c.requests[0]
	assert.Equal(t, "Answer this question about course materials: capital?", req.Messages[0].Content[0].Text)
	assert.True(t, strings.HasSuffix(req.System, "\n\nPrevious conversation:\nUser: hi\nAssistant: hello"))
	assert.Len(t, req.Tools, 2)
	assert.Equal(t, 0.0, req.Temperature)
	assert.Equal(t, 800, req.MaxTokens)
}

func TestRun_NoHistoryKeepsBasePrompt(t *testing.T) {
	f := newFixture(t)
	c := &scriptedClient{steps: []step{{reply: textReply("ok")}}}

	_, err := f.orchestrator(c, true).Run(context.Background(), "q", "  ", nil)
	require.NoError(t, err)
	assert.Equal(t, baseSystemPrompt, c.requests[0].System)
}

func TestRun_FirstReplyValidation(t *testing.T) {
	tests := []struct {
		name  string
		reply *llm.Reply
		want  error
	}{
		{"empty", &llm.Reply{StopReason: llm.StopEndTurn}, ErrEmptyReply},
		{"no text", &llm.Reply{StopReason: llm.StopEndTurn, Content: []llm.ContentBlock{toolUse("1", "x", nil)}}, ErrMalformedReply},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			c := &scriptedClient{steps: []step{{reply: tt.reply}}}
			_, err := f.orchestrator(c, true).Run(context.Background(), "q", "", nil)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRun_UpstreamFailure(t *testing.T) {
	f := newFixture(t)
	c := &scriptedClient{steps: []step{{err: errors.New("connection refused")}}}

	_, err := f.orchestrator(c, true).Run(context.Background(), "q", "", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstream)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestRun_OneToolRound(t *testing.T) {
	f := newFixture(t)
	c := &scriptedClient{steps: []step{
		{reply: toolReply(toolUse("t1", "search_course_content", map[string]interface{}{"query": "mcp"}))},
		{reply: textReply("MCP is a protocol.")},
	}}
	ledger := f.registry.NewLedger()

	ans, err := f.orchestrator(c, true).Run(context.Background(), "q", "", ledger)
	require.NoError(t, err)

	assert.Equal(t, "MCP is a protocol.", ans.Text)
	assert.Equal(t, 2, ans.ModelCalls)
	assert.Equal(t, 1, ans.ToolRounds)
	assert.False(t, ans.Fallback)
	assert.Equal(t, []string{"search_course_content"}, ans.ToolsUsed)
	assert.Equal(t, llm.Usage{InputTokens: 20, OutputTokens: 10}, ans.Usage)

	second := c.requests[1]
	require.Len(t, second.Messages, 3)
	assert.Equal(t, llm.RoleAssistant, second.Messages[1].Role)
	results := lastToolResults(second)
	require.Len(t, results, 1)
	assert.Equal(t, llm.BlockToolResult, results[0].Type)
	assert.Equal(t, "t1", results[0].ToolUseID)
	assert.Equal(t, "[Course]\nresult for mcp", results[0].Text)
	assert.Len(t, second.Tools, 2, "tools stay advertised inside the loop")

	cites := ledger.Collect()
	require.Len(t, cites, 1)
	assert.Equal(t, "Course - Lesson 1", cites[0].Text)
}

func TestRun_StopsAfterTwoRounds(t *testing.T) {
	f := newFixture(t)
	still := toolReply(llm.TextBlock("Need more."), toolUse("t3", "search_course_content", map[string]interface{}{"query": "c"}))
	c := &scriptedClient{steps: []step{
		{reply: toolReply(toolUse("t1", "search_course_content", map[string]interface{}{"query": "a"}))},
		{reply: toolReply(toolUse("t2", "search_course_content", map[string]interface{}{"query": "b"}))},
		{reply: still},
	}}

	ans, err := f.orchestrator(c, true).Run(context.Background(), "q", "", nil)
	require.NoError(t, err)

	assert.Equal(t, "Need more.", ans.Text)
	assert.Equal(t, 3, ans.ModelCalls)
	assert.Equal(t, 3, c.calls())
	assert.Equal(t, 2, ans.ToolRounds)
	assert.EqualValues(t, 2, f.searches.Load())
}

func TestRun_ToolOnlyFinalReplyDegradesToPlaceholder(t *testing.T) {
	f := newFixture(t)
	c := &scriptedClient{steps: []step{
		{reply: toolReply(toolUse("t1", "search_course_content", nil))},
		{reply: toolReply(toolUse("t2", "search_course_content", nil))},
		{reply: toolReply(toolUse("t3", "search_course_content", nil))},
	}}

	ans, err := f.orchestrator(c, true).Run(context.Background(), "q", "", nil)
	require.NoError(t, err)
	assert.Equal(t, PlaceholderUnexpected, ans.Text)
}

func TestRun_EmptyLoopReplyDegradesToPlaceholder(t *testing.T) {
	f := newFixture(t)
	c := &scriptedClient{steps: []step{
		{reply: toolReply(toolUse("t1", "search_course_content", nil))},
		{reply: &llm.Reply{StopReason: llm.StopEndTurn}},
	}}

	ans, err := f.orchestrator(c, true).Run(context.Background(), "q", "", nil)
	require.NoError(t, err)
	assert.Equal(t, PlaceholderNoResponse, ans.Text)
}

func TestRun_ToolErrorDoesNotAbortRound(t *testing.T) {
	f := newFixture(t)
	c := &scriptedClient{steps: []step{
		{reply: toolReply(
			toolUse("t1", "broken", nil),
			toolUse("t2", "search_course_content", map[string]interface{}{"query": "x"}),
		)},
		{reply: textReply("partial answer")},
	}}

	ans, err := f.orchestrator(c, true).Run(context.Background(), "q", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "partial answer", ans.Text)
	assert.Equal(t, 2, c.calls(), "loop proceeds to the next model call")

	results := lastToolResults(c.requests[1])
	require.Len(t, results, 2)
	assert.Equal(t, "t1", results[0].ToolUseID)
	assert.True(t, results[0].IsError)
	assert.Equal(t, "Tool execution error: index offline", results[0].Text)
	assert.Equal(t, "t2", results[1].ToolUseID)
	assert.False(t, results[1].IsError)
}

func TestRun_UnknownToolResult(t *testing.T) {
	f := newFixture(t)
	c := &scriptedClient{steps: []step{
		{reply: toolReply(toolUse("t1", "nope", nil))},
		{reply: textReply("ok")},
	}}

	_, err := f.orchestrator(c, true).Run(context.Background(), "q", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "Tool 'nope' not found", lastToolResults(c.requests[1])[0].Text)
}

func TestRun_ToolUseStopWithoutCallsEndsLoop(t *testing.T) {
	f := newFixture(t)
	c := &scriptedClient{steps: []step{
		{reply: &llm.Reply{StopReason: llm.StopToolUse, Content: []llm.ContentBlock{llm.TextBlock("nothing to run")}}},
	}}

	ans, err := f.orchestrator(c, true).Run(context.Background(), "q", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "nothing to run", ans.Text)
	assert.Equal(t, 1, ans.ModelCalls)
	assert.Equal(t, 0, ans.ToolRounds)
}

func TestRun_LoopFailureFallsBackToSingleRound(t *testing.T) {
	f := newFixture(t)
	c := &scriptedClient{steps: []step{
		{reply: toolReply(toolUse("t1", "search_course_content", map[string]interface{}{"query": "a"}))},
		{reply: toolReply(toolUse("", "search_course_content", nil))},
		{reply: textReply("fallback answer")},
	}}

	ans, err := f.orchestrator(c, true).Run(context.Background(), "q", "", f.registry.NewLedger())
	require.NoError(t, err)

	assert.Equal(t, "fallback answer", ans.Text)
	assert.True(t, ans.Fallback)
	assert.Equal(t, 3, ans.ModelCalls)
	assert.Equal(t, 2, ans.ToolRounds)
	assert.EqualValues(t, 2, f.searches.Load(), "initial tool request is re-run")

	final := c.requests[2]
	assert.Empty(t, final.Tools, "fallback call advertises no tools")
	require.Len(t, final.Messages, 3)
	assert.Equal(t, "t1", lastToolResults(final)[0].ToolUseID)
}

func TestRun_UpstreamFailureInLoopPropagates(t *testing.T) {
	tests := []struct {
		name      string
		steps     []step
		wantCalls int
	}{
		{
			name: "first round",
			steps: []step{
				{reply: toolReply(toolUse("t1", "search_course_content", nil))},
				{err: errors.New("overloaded")},
				{reply: textReply("never used")},
			},
			wantCalls: 2,
		},
		{
			name: "second round",
			steps: []step{
				{reply: toolReply(toolUse("t1", "search_course_content", nil))},
				{reply: toolReply(toolUse("t2", "search_course_content", nil))},
				{err: errors.New("overloaded")},
				{reply: textReply("never used")},
			},
			wantCalls: 3,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			c := &scriptedClient{steps: tt.steps}

			ans, err := f.orchestrator(c, true).Run(context.Background(), "q", "", nil)
			assert.Nil(t, ans)
			assert.ErrorIs(t, err, ErrUpstream)
			assert.NotErrorIs(t, err, ErrSequential)
			assert.Equal(t, tt.wantCalls, c.calls())
			assert.LessOrEqual(t, c.calls(), 3)
			assert.EqualValues(t, tt.wantCalls-1, f.searches.Load(), "tools are not re-run")
		})
	}
}

func TestRun_FallbackUpstreamFailurePropagates(t *testing.T) {
	f := newFixture(t)
	c := &scriptedClient{steps: []step{
		{reply: toolReply(toolUse("t1", "search_course_content", nil))},
		{reply: nil},
		{err: errors.New("still overloaded")},
	}}

	_, err := f.orchestrator(c, true).Run(context.Background(), "q", "", nil)
	assert.ErrorIs(t, err, ErrUpstream)
	assert.NotErrorIs(t, err, ErrSequential)
	assert.Equal(t, 3, c.calls())
}

func TestRun_FallbackWithoutBudgetDegrades(t *testing.T) {
	f := newFixture(t)
	c := &scriptedClient{steps: []step{
		{reply: toolReply(toolUse("t1", "search_course_content", nil))},
		{reply: toolReply(toolUse("t2", "search_course_content", nil))},
		{reply: nil},
		{reply: textReply("never used")},
	}}

	ans, err := f.orchestrator(c, true).Run(context.Background(), "q", "", nil)
	require.NoError(t, err)
	assert.Equal(t, PlaceholderNoResponseTools, ans.Text)
	assert.True(t, ans.Fallback)
	assert.Equal(t, 3, c.calls())
	assert.Equal(t, 2, ans.ToolRounds)
	assert.EqualValues(t, 2, f.searches.Load())
}

func TestRun_FallbackPlaceholders(t *testing.T) {
	tests := []struct {
		name  string
		final *llm.Reply
		want  string
	}{
		{"empty", &llm.Reply{StopReason: llm.StopEndTurn}, PlaceholderNoResponseTools},
		{"no text", &llm.Reply{StopReason: llm.StopToolUse, Content: []llm.ContentBlock{toolUse("z", "x", nil)}}, PlaceholderUnexpectedFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			c := &scriptedClient{steps: []step{
				{reply: toolReply(toolUse("t1", "search_course_content", nil))},
				{reply: tt.final},
			}}
			ans, err := f.orchestrator(c, false).Run(context.Background(), "q", "", nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ans.Text)
		})
	}
}

func TestRun_SingleRoundMode(t *testing.T) {
	f := newFixture(t)
	c := &scriptedClient{steps: []step{
		{reply: toolReply(toolUse("t1", "search_course_content", map[string]interface{}{"query": "a"}))},
		{reply: textReply("single")},
	}}

	ans, err := f.orchestrator(c, false).Run(context.Background(), "q", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "single", ans.Text)
	assert.False(t, ans.Fallback)
	assert.Equal(t, 1, ans.ToolRounds)
	assert.Empty(t, c.requests[1].Tools)
}

func TestRun_CancelledContextDuringLoop(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	c := &scriptedClient{steps: []step{
		{reply: toolReply(toolUse("t1", "search_course_content", nil))},
		{err: context.Canceled},
	}}
	cancel()

	_, err := f.orchestrator(c, true).Run(ctx, "q", "", nil)
	assert.ErrorIs(t, err, ErrUpstream)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, c.calls(), "no fallback call once the context is done")
}

func TestRun_NilReplyInLoopFallsBack(t *testing.T) {
	reg := tools.NewRegistry()
	require.NoError(t, reg.Register(tools.Func{Name: "ok", InputSchema: map[string]interface{}{}, Run: func(context.Context, map[string]interface{}) (tools.Output, error) {
		return tools.Output{Content: "fine"}, nil
	}}))
	c := &scriptedClient{steps: []step{
		{reply: toolReply(toolUse("t1", "ok", nil))},
		{reply: nil},
		{reply: textReply("recovered")},
	}}

	ans, err := NewOrchestrator(c, reg, DefaultOptions()).Run(context.Background(), "q", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "recovered", ans.Text)
	assert.True(t, ans.Fallback)
	assert.Equal(t, 3, ans.ModelCalls)
	assert.Equal(t, 2, ans.ToolRounds)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "AWAITING_MODEL", StateAwaitingModel.String())
	assert.Equal(t, "TOOLS_REQUESTED", StateToolsRequested.String())
	assert.Equal(t, "DONE", StateDone.String())
	assert.Equal(t, "FALLBACK", StateFallback.String())
}
