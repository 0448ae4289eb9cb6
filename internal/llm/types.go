// Package llm is the language model boundary: provider-neutral request and
// reply types plus the Anthropic Messages API client.
package llm

import (
	"context"
	"strings"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type BlockType string

const (
	BlockText       BlockType = "text"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
)

// ContentBlock is one piece of a message. Which fields are set depends on Type:
// text uses Text; tool_use uses ToolUseID, ToolName and Input; tool_result
// uses ToolUseID, Text and IsError.
type ContentBlock struct {
	Type      BlockType
	Text      string
	ToolUseID string
	ToolName  string
	Input     map[string]interface{}
	IsError   bool
}

func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockText, Text: text}
}

func ToolResultBlock(toolUseID, content string, isError bool) ContentBlock {
	return ContentBlock{Type: BlockToolResult, ToolUseID: toolUseID, Text: content, IsError: isError}
}

type Message struct {
	Role    Role
	Content []ContentBlock
}

// Tool is a tool description advertised to the model.
type Tool struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
}

// Request is a single model call.
type Request struct {
	System      string
	Messages    []Message
	Tools       []Tool // tool choice is automatic whenever Tools is non-empty
	Temperature float64
	MaxTokens   int
}

type StopReason string

const (
	StopEndTurn      StopReason = "end_turn"
	StopToolUse      StopReason = "tool_use"
	StopMaxTokens    StopReason = "max_tokens"
	StopStopSequence StopReason = "stop_sequence"
)

// Usage counts tokens consumed by one call.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

func (u Usage) Add(o Usage) Usage {
	return Usage{InputTokens: u.InputTokens + o.InputTokens, OutputTokens: u.OutputTokens + o.OutputTokens}
}

// Reply is the model's answer to a Request.
type Reply struct {
	Content    []ContentBlock
	StopReason StopReason
	Usage      Usage
}

// RequestsTools reports whether the model stopped to have tools run.
func (r *Reply) RequestsTools() bool {
	return r.StopReason == StopToolUse
}

// ToolCalls returns the tool_use blocks in order.
func (r *Reply) ToolCalls() []ContentBlock {
	var calls []ContentBlock
	for _, b := range r.Content {
		if b.Type == BlockToolUse {
			calls = append(calls, b)
		}
	}
	return calls
}

// Text joins all text blocks. ok is false when there are no text blocks.
func (r *Reply) Text() (text string, ok bool) {
	var sb strings.Builder
	for _, b := range r.Content {
		if b.Type == BlockText {
			ok = true
			sb.WriteString(b.Text)
		}
	}
	return sb.String(), ok
}

// AsMessage turns the reply into an assistant turn for the next request.
func (r *Reply) AsMessage() Message {
	content := make([]ContentBlock, len(r.Content))
	copy(content, r.Content)
	return Message{Role: RoleAssistant, Content: content}
}

// Client sends one request to a model.
type Client interface {
	Complete(ctx context.Context, req Request) (*Reply, error)
}
