package forgemind

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/forgemind/forgemind/core"
)

// Process implements spec.md §6's single entry point: semantic-cache
// lookup first, workflow execution on miss, cache write-back on a
// successful run, then AgentResponse assembly with aggregate token usage
// and timing. It never raises for a downstream collaborator failure that
// spec.md §7 classifies as gracefully degradable; only invalid input
// propagates as an error. A canceled/expired context ends the workflow
// early: the engine records it in the state's errors and the response
// carries whatever output the workflow produced.
func (s *Services) Process(ctx context.Context, req Request) (*core.AgentResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	traceID := req.TraceID
	if traceID == "" {
		traceID = uuid.NewString()
	}
	ctx = core.ContextWithTraceID(ctx, traceID)

	ctx, span := s.Telemetry.StartSpan(ctx, "forgemind.Process")
	span.SetAttribute("trace_id", traceID)
	defer span.End()

	start := newClock()()

	queryEmbedding, err := s.Embedder.Embed(ctx, req.Prompt)
	if err != nil {
		s.Logger.WarnWithContext(ctx, "embedding failed, skipping semantic cache lookup", map[string]interface{}{"error": err.Error()})
		queryEmbedding = nil
	}

	if entry, hit := s.Cache.Get(ctx, req.Prompt, queryEmbedding, s.Config.Cache.SimilarityThreshold); hit {
		span.SetAttribute("cache_hit", true)
		return &core.AgentResponse{
			Result: entry.Response,
			Metadata: core.ResponseMetadata{
				TraceID:          traceID,
				CacheHit:         true,
				ProcessingTimeMS: elapsedMS(start),
				TokensUsed:       0,
				AgentsInvoked:    nil,
				WorkflowIterations: 0,
			},
		}, nil
	}

	maxIterations := req.MaxIterations
	if maxIterations <= 0 {
		maxIterations = s.Config.Workflow.MaxIterations
	}

	state := &core.WorkflowState{
		Prompt:        req.Prompt,
		Framework:     req.Framework,
		MaxIterations: maxIterations,
		TraceID:       traceID,
	}

	result, err := s.Engine.Execute(ctx, state)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	s.Telemetry.RecordMetric("forgemind.workflow_iterations", float64(result.WorkflowIterations), map[string]string{"trace_id": traceID})

	if len(state.Errors) == 0 {
		s.Cache.Set(ctx, req.Prompt, result.Text, queryEmbedding, s.Config.Cache.TTL)
	} else {
		s.Logger.WarnWithContext(ctx, "workflow completed with errors, skipping cache write", map[string]interface{}{"errors": state.Errors})
	}

	return &core.AgentResponse{
		Result: result.Text,
		Metadata: core.ResponseMetadata{
			TraceID:            traceID,
			CacheHit:           false,
			ProcessingTimeMS:   elapsedMS(start),
			TokensUsed:         result.TokensUsed,
			AgentsInvoked:      result.AgentsInvoked,
			WorkflowIterations: result.WorkflowIterations,
		},
	}, nil
}

func elapsedMS(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}
