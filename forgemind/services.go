// Package forgemind wires the framework's collaborators into a single
// entry point, per spec.md §6: one cache-checked call in, one
// AgentResponse out. Services is an explicit struct rather than package
// singletons (REDESIGN FLAGS), so a process can hold more than one
// configuration - e.g. for tests - without global state.
package forgemind

import (
	"time"

	"github.com/forgemind/forgemind/core"
	"github.com/forgemind/forgemind/embedding"
	"github.com/forgemind/forgemind/semanticcache"
	"github.com/forgemind/forgemind/workflow"
)

// Services bundles every collaborator Process needs. Callers in cmd/
// build one of these from a core.Config and the concrete adapters
// (vectorstore.Client, core.RedisClient, llm provider, etc).
type Services struct {
	Cache     *semanticcache.Cache
	Embedder  embedding.Provider
	Engine    *workflow.Engine
	Config    *core.Config
	Logger    core.Logger
	Telemetry core.Telemetry
}

// NewServices validates that every required collaborator is present and
// returns a wired Services. Config may be nil, in which case
// core.DefaultConfig() is used.
func NewServices(cache *semanticcache.Cache, embedder embedding.Provider, engine *workflow.Engine, cfg *core.Config, logger core.Logger) (*Services, error) {
	if cache == nil || embedder == nil || engine == nil {
		return nil, core.NewFrameworkError("forgemind.NewServices", "missing_configuration", core.ErrMissingConfiguration)
	}
	if cfg == nil {
		cfg = core.DefaultConfig()
	}
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Services{
		Cache:     cache,
		Embedder:  embedder,
		Engine:    engine,
		Config:    cfg,
		Logger:    core.WithComponent(logger, "forgemind"),
		Telemetry: &core.NoOpTelemetry{},
	}, nil
}

// WithTelemetry replaces the default no-op Telemetry and returns s for
// chaining at the composition root, e.g. forgemind.NewServices(...) is
// followed by .WithTelemetry(core.NewOtelTelemetry(...)) when a caller
// wants real spans opened around Process.
func (s *Services) WithTelemetry(t core.Telemetry) *Services {
	if t != nil {
		s.Telemetry = t
	}
	return s
}

// Request is Process's input, per spec.md §6's single entry point.
type Request struct {
	Prompt        string
	Framework     string
	MaxIterations int
	TraceID       string
}

// clock lets tests substitute a deterministic time source; production
// callers get time.Now via newClock.
type clock func() time.Time

func newClock() clock { return time.Now }

func validateRequest(req Request) error {
	return core.ValidatePrompt(req.Prompt)
}
