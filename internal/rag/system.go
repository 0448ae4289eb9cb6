// Package rag wires retrieval, tools, the orchestrator and session history
// into the single query entry point used by the HTTP API and the CLI.
package rag

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cortexai/coursebot/internal/agent"
	"github.com/cortexai/coursebot/internal/llm"
	"github.com/cortexai/coursebot/internal/models"
	"github.com/cortexai/coursebot/internal/retrieval"
	"github.com/cortexai/coursebot/internal/security"
	"github.com/cortexai/coursebot/internal/service"
	"github.com/cortexai/coursebot/internal/session"
	"github.com/cortexai/coursebot/internal/tools"
	"github.com/rs/zerolog/log"
)

// ErrInvalidQuery is returned when a question fails prompt validation.
var ErrInvalidQuery = errors.New("invalid query")

const auditTimeout = 10 * time.Second

// Deps are the collaborators of a System. Engine, Client and Sessions are
// required; the security components default to permissive instances.
type Deps struct {
	Engine    *retrieval.Engine
	Client    llm.Client
	Sessions  session.Store
	Validator *security.PromptValidator
	Audit     *security.AuditLogger
	Costs     *security.CostTracker
	Agent     agent.Options
	// Timeout bounds one whole query, every model and tool call included.
	Timeout time.Duration
}

// System answers course questions.
type System struct {
	engine       *retrieval.Engine
	registry     *tools.Registry
	orchestrator *agent.Orchestrator
	sessions     session.Store
	validator    *security.PromptValidator
	audit        *security.AuditLogger
	costs        *security.CostTracker
	intents      *service.IntentClassifier
	timeout      time.Duration

	pending sync.WaitGroup
}

// Request is one question. SessionID may be empty, in which case no history
// is read or written.
type Request struct {
	Query     string
	SessionID string
	APIKey    string
}

// Result is the answer with the citations gathered while producing it.
type Result struct {
	Answer     string
	Sources    []tools.Citation
	SessionID  string
	ModelCalls int
	ToolRounds int
	Fallback   bool
	Usage      llm.Usage
}

func New(d Deps) (*System, error) {
	if d.Engine == nil || d.Client == nil || d.Sessions == nil {
		return nil, fmt.Errorf("rag: engine, client and session store are required")
	}

	registry := tools.NewRegistry()
	if err := registry.Register(tools.CourseSearchTool(d.Engine)); err != nil {
		return nil, err
	}
	if err := registry.Register(tools.CourseOutlineTool(d.Engine)); err != nil {
		return nil, err
	}

	s := &System{
		engine:       d.Engine,
		registry:     registry,
		orchestrator: agent.NewOrchestrator(d.Client, registry, d.Agent),
		sessions:     d.Sessions,
		validator:    d.Validator,
		audit:        d.Audit,
		costs:        d.Costs,
		intents:      service.NewIntentClassifier(),
		timeout:      d.Timeout,
	}
	if s.validator == nil {
		s.validator = security.NewPromptValidator(0)
	}
	if s.audit == nil {
		s.audit = security.NewAuditLogger(false, nil)
	}
	if s.costs == nil {
		s.costs = security.NewCostTracker(0)
	}
	return s, nil
}

// Tools exposes the registry, mainly for listing definitions.
func (s *System) Tools() *tools.Registry { return s.registry }

// Sessions exposes the session store so callers can create sessions.
func (s *System) Sessions() session.Store { return s.sessions }

// Query validates the question, runs the orchestrator with the session's
// history and records the exchange. Citations are scoped to this call.
func (s *System) Query(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	if v := s.validator.Validate(req.Query); !v.Valid {
		return nil, fmt.Errorf("%w: %s", ErrInvalidQuery, v.Message)
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	var history string
	if req.SessionID != "" {
		h, err := s.sessions.History(ctx, req.SessionID)
		if err != nil {
			log.Warn().Err(err).Str("session_id", req.SessionID).Msg("failed to load history, continuing without it")
		}
		history = h
	}

	ledger := s.registry.NewLedger()
	ans, err := s.orchestrator.Run(ctx, agent.FrameQuery(req.Query), history, ledger)

	audit := security.QueryAudit{
		Query:     req.Query,
		SessionID: req.SessionID,
		APIKey:    req.APIKey,
		Intent:    string(s.intents.Classify(req.Query).Intent),
		Err:       err,
	}
	if ans != nil {
		audit.ModelCalls = ans.ModelCalls
		audit.ToolRounds = ans.ToolRounds
		audit.Fallback = ans.Fallback
		audit.ToolsUsed = ans.ToolsUsed
		audit.InputTokens = ans.Usage.InputTokens
		audit.OutputTokens = ans.Usage.OutputTokens
	}

	if err != nil {
		audit.Duration = time.Since(start)
		s.logAudit(ctx, audit)
		return nil, err
	}

	sources := ledger.Collect()
	if req.SessionID != "" {
		if err := s.sessions.AddExchange(ctx, req.SessionID, req.Query, ans.Text); err != nil {
			log.Warn().Err(err).Str("session_id", req.SessionID).Msg("failed to store exchange")
		}
	}

	audit.SourceCount = len(sources)
	audit.Duration = time.Since(start)
	s.logAudit(ctx, audit)
	s.costs.LogQueryCost(req.SessionID, security.Usage{
		InputTokens:  ans.Usage.InputTokens,
		OutputTokens: ans.Usage.OutputTokens,
	}, ans.ModelCalls, audit.Duration.Milliseconds())

	return &Result{
		Answer:     ans.Text,
		Sources:    sources,
		SessionID:  req.SessionID,
		ModelCalls: ans.ModelCalls,
		ToolRounds: ans.ToolRounds,
		Fallback:   ans.Fallback,
		Usage:      ans.Usage,
	}, nil
}

// logAudit writes the audit record in the background so a slow sink never
// delays the answer. Wait blocks until pending writes finish.
func (s *System) logAudit(ctx context.Context, q security.QueryAudit) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditTimeout)
		defer cancel()
		s.audit.LogQuery(actx, q)
	}()
}

// Wait blocks until background audit writes have finished.
func (s *System) Wait() {
	s.pending.Wait()
}

// CourseAnalytics reports the catalog size and titles.
func (s *System) CourseAnalytics(ctx context.Context) (models.CourseStats, error) {
	titles, err := s.engine.CourseTitles(ctx)
	if err != nil {
		return models.CourseStats{}, fmt.Errorf("failed to list courses: %w", err)
	}
	if titles == nil {
		titles = []string{}
	}
	return models.CourseStats{TotalCourses: len(titles), CourseTitles: titles}, nil
}
