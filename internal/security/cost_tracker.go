package security

import (
	"crypto/sha256"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Claude Sonnet list prices, USD per million tokens.
const (
	defaultInputPerMTok  = 3.0
	defaultOutputPerMTok = 15.0
)

// Usage is the token count of one query, summed over its model calls.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// CostTracker estimates model spend per query and enforces a token budget.
type CostTracker struct {
	maxTokens     int64
	inputPerMTok  float64
	outputPerMTok float64
}

// NewCostTracker returns a tracker. maxTokens <= 0 disables the budget.
func NewCostTracker(maxTokens int64) *CostTracker {
	return &CostTracker{
		maxTokens:     maxTokens,
		inputPerMTok:  defaultInputPerMTok,
		outputPerMTok: defaultOutputPerMTok,
	}
}

// CostUSD estimates the price of u.
func (ct *CostTracker) CostUSD(u Usage) float64 {
	return float64(u.InputTokens)/1e6*ct.inputPerMTok + float64(u.OutputTokens)/1e6*ct.outputPerMTok
}

// CheckLimits returns false and a message if u exceeds the token budget.
func (ct *CostTracker) CheckLimits(u Usage) (bool, string) {
	total := u.InputTokens + u.OutputTokens
	if ct.maxTokens <= 0 || total <= ct.maxTokens {
		return true, ""
	}
	return false, fmt.Sprintf("Token budget exceeded. Used: %d, Limit: %d", total, ct.maxTokens)
}

// LogQueryCost logs token usage and estimated cost with a hashed session id.
func (ct *CostTracker) LogQueryCost(sessionID string, u Usage, modelCalls int, durationMs int64) {
	cost := ct.CostUSD(u)
	sessionHash := hashStr(sessionID)[:16]

	evt := log.Info()
	if ok, msg := ct.CheckLimits(u); !ok {
		evt = log.Warn().Str("budget", msg)
	}
	evt.
		Str("event", "query_cost").
		Str("session_hash", sessionHash).
		Int64("input_tokens", u.InputTokens).
		Int64("output_tokens", u.OutputTokens).
		Int("model_calls", modelCalls).
		Float64("cost_usd", cost).
		Int64("duration_ms", durationMs).
		Msgf("Query cost: %d in / %d out tokens ($%.4f) | Calls: %d | Duration: %dms",
			u.InputTokens, u.OutputTokens, cost, modelCalls, durationMs)
}

func hashStr(s string) string {
	h := sha256.Sum256([]byte(s))
	return fmt.Sprintf("%x", h)
}
