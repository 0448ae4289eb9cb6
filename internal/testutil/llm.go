package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/cortexai/coursebot/internal/llm"
)

// ScriptedLLM replays a fixed sequence of replies and records every request.
type ScriptedLLM struct {
	mu       sync.Mutex
	replies  []*llm.Reply
	errs     []error
	Requests []llm.Request
}

// NewScriptedLLM returns a client that answers with replies in order.
func NewScriptedLLM(replies ...*llm.Reply) *ScriptedLLM {
	return &ScriptedLLM{replies: replies, errs: make([]error, len(replies))}
}

// Fail appends a call that returns err.
func (s *ScriptedLLM) Fail(err error) *ScriptedLLM {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies = append(s.replies, nil)
	s.errs = append(s.errs, err)
	return s
}

func (s *ScriptedLLM) Complete(_ context.Context, req llm.Request) (*llm.Reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Requests = append(s.Requests, req)
	if len(s.replies) == 0 {
		return nil, errors.New("scripted llm: no reply left")
	}
	r, err := s.replies[0], s.errs[0]
	s.replies, s.errs = s.replies[1:], s.errs[1:]
	return r, err
}

// Calls reports how many requests were made.
func (s *ScriptedLLM) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Requests)
}

// TextReply is a final answer.
func TextReply(text string) *llm.Reply {
	return &llm.Reply{
		Content:    []llm.ContentBlock{llm.TextBlock(text)},
		StopReason: llm.StopEndTurn,
		Usage:      llm.Usage{InputTokens: 100, OutputTokens: 20},
	}
}

// ToolReply requests one tool call.
func ToolReply(id, name string, input map[string]interface{}) *llm.Reply {
	return &llm.Reply{
		Content: []llm.ContentBlock{
			{Type: llm.BlockToolUse, ToolUseID: id, ToolName: name, Input: input},
		},
		StopReason: llm.StopToolUse,
		Usage:      llm.Usage{InputTokens: 100, OutputTokens: 20},
	}
}
