package security

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// QueryAudit describes one answered (or failed) query. Identifiers are
// hashed before they leave the process.
type QueryAudit struct {
	Query        string
	SessionID    string
	APIKey       string
	Intent       string
	ModelCalls   int
	ToolRounds   int
	Fallback     bool
	ToolsUsed    []string
	SourceCount  int
	InputTokens  int64
	OutputTokens int64
	Duration     time.Duration
	Err          error
}

// AuditRecord is the hashed, masked row written to an AuditSink.
type AuditRecord struct {
	Timestamp     time.Time `bigquery:"timestamp"`
	QueryHash     string    `bigquery:"query_hash"`
	QueryPreview  string    `bigquery:"query_preview"`
	SessionHash   string    `bigquery:"session_hash"`
	APIKeyHash    string    `bigquery:"api_key_hash"`
	Intent        string    `bigquery:"intent"`
	ModelCalls    int       `bigquery:"model_calls"`
	ToolRounds    int       `bigquery:"tool_rounds"`
	Fallback      bool      `bigquery:"fallback"`
	ToolsUsed     []string  `bigquery:"tools_used"`
	SourceCount   int       `bigquery:"source_count"`
	InputTokens   int64     `bigquery:"input_tokens"`
	OutputTokens  int64     `bigquery:"output_tokens"`
	ExecutionTime int64     `bigquery:"execution_time_ms"`
	Success       bool      `bigquery:"success"`
	Error         string    `bigquery:"error"`
}

// AuditSink persists audit records outside the log stream.
type AuditSink interface {
	WriteAudit(ctx context.Context, rec AuditRecord) error
}

// AuditLogger logs security-relevant events with hashed identifiers
type AuditLogger struct {
	enabled bool
	masker  *DataMasker
	sink    AuditSink
	now     func() time.Time
}

// NewAuditLogger returns a logger. sink may be nil.
func NewAuditLogger(enabled bool, sink AuditSink) *AuditLogger {
	return &AuditLogger{enabled: enabled, masker: NewDataMasker(80), sink: sink, now: time.Now}
}

// Record builds the audit row for q.
func (a *AuditLogger) Record(q QueryAudit) AuditRecord {
	rec := AuditRecord{
		Timestamp:     a.now().UTC(),
		QueryHash:     hashStr(q.Query)[:16],
		QueryPreview:  a.masker.Preview(q.Query),
		Intent:        q.Intent,
		ModelCalls:    q.ModelCalls,
		ToolRounds:    q.ToolRounds,
		Fallback:      q.Fallback,
		ToolsUsed:     q.ToolsUsed,
		SourceCount:   q.SourceCount,
		InputTokens:   q.InputTokens,
		OutputTokens:  q.OutputTokens,
		ExecutionTime: q.Duration.Milliseconds(),
		Success:       q.Err == nil,
	}
	if q.SessionID != "" {
		rec.SessionHash = hashStr(q.SessionID)[:16]
	}
	if q.APIKey != "" {
		rec.APIKeyHash = hashStr(q.APIKey)[:16]
	}
	if q.Err != nil {
		rec.Error = q.Err.Error()
	}
	return rec
}

// LogQuery records a query event in the log and, when configured, the sink.
// Sink failures are logged and never returned.
func (a *AuditLogger) LogQuery(ctx context.Context, q QueryAudit) {
	if !a.enabled {
		return
	}
	rec := a.Record(q)

	evt := log.Info().
		Str("event", "query_audit").
		Str("query_hash", rec.QueryHash).
		Str("session_hash", rec.SessionHash).
		Str("api_key_hash", rec.APIKeyHash).
		Str("intent", rec.Intent).
		Int("model_calls", rec.ModelCalls).
		Int("tool_rounds", rec.ToolRounds).
		Bool("fallback", rec.Fallback).
		Strs("tools_used", rec.ToolsUsed).
		Int("source_count", rec.SourceCount).
		Int64("execution_time_ms", rec.ExecutionTime).
		Bool("success", rec.Success)
	if rec.Error != "" {
		evt = evt.Str("error", rec.Error)
	}
	evt.Msg("audit")

	if a.sink == nil {
		return
	}
	if err := a.sink.WriteAudit(ctx, rec); err != nil {
		log.Warn().Err(err).Str("query_hash", rec.QueryHash).Msg("audit sink write failed")
	}
}
