package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/zen-systems/contentflow/pkg/adapter"
	"github.com/zen-systems/contentflow/pkg/archive"
	"github.com/zen-systems/contentflow/pkg/config"
	"github.com/zen-systems/contentflow/pkg/evidence"
	"github.com/zen-systems/contentflow/pkg/pipeline"
	"github.com/zen-systems/contentflow/pkg/plans"
	"github.com/zen-systems/contentflow/pkg/router"
	"github.com/zen-systems/contentflow/pkg/store"
	"github.com/zen-systems/contentflow/pkg/tools"
	"github.com/zen-systems/contentflow/pkg/workspace"
)

// runtime is the wired set of components plans run on.
type runtime struct {
	cfg       *config.Config
	logger    *slog.Logger
	catalog   *plans.Catalog
	workspace *workspace.Workspace
	router    *router.Router
	tools     *tools.Registry
	store     *store.SQLiteStore
	recorder  *evidence.Recorder
}

// newRuntime wires adapters, tools, run history and evidence from cfg. With
// mock set, prompts are answered offline by the mock adapter.
func newRuntime(cfg *config.Config, log *slog.Logger, mock bool) (*runtime, error) {
	catalog, err := plans.Default()
	if err != nil {
		return nil, fmt.Errorf("build plan catalog: %w", err)
	}
	ws, err := workspace.New(cfg.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("open output directory: %w", err)
	}

	adapters := map[string]adapter.Adapter{}
	if mock || cfg.Engine.Mock {
		adapters["mock"] = plans.NewMockAdapter()
	} else {
		adapters, err = createAdapters(cfg)
		if err != nil {
			return nil, err
		}
		if len(adapters) == 0 {
			return nil, errors.New("no model provider API key is set (ANTHROPIC_API_KEY, OPENAI_API_KEY, GOOGLE_API_KEY or DEEPSEEK_API_KEY); use --mock to run offline")
		}
	}

	rt := &runtime{
		cfg:       cfg,
		logger:    log,
		catalog:   catalog,
		workspace: ws,
		router: router.NewRouter(adapters, cfg.RoutingConfig,
			router.WithAliases(cfg.Aliases),
			router.WithLogger(log),
		),
		tools: tools.NewStandardRegistry(tools.Options{
			TavilyAPIKey:     cfg.TavilyAPIKey,
			ElevenLabsAPIKey: cfg.ElevenLabsAPIKey,
			Workspace:        ws,
			Logger:           log,
		}),
	}

	if st, err := store.Open(cfg.DatabasePath(), log); err != nil {
		log.Warn("run history disabled", slog.String("path", cfg.DatabasePath()), slog.Any("error", err))
	} else {
		rt.store = st
	}

	arch, err := archive.NewStore(cfg.ArchiveDir())
	if err != nil {
		log.Warn("output archive disabled", slog.String("path", cfg.ArchiveDir()), slog.Any("error", err))
	}
	rt.recorder = evidence.NewRecorder(cfg.EvidenceDir(), arch, log)
	return rt, nil
}

// newEngine returns an engine for a single run. The executor is returned too
// so callers can read the run's cost report.
func (rt *runtime) newEngine() (*pipeline.Engine, *pipeline.AdapterExecutor) {
	exec := pipeline.NewAdapterExecutor(rt.router,
		pipeline.WithMaxBudget(rt.cfg.Engine.MaxBudgetUSD),
		pipeline.WithSchemaRepairs(rt.cfg.Engine.SchemaRepairs),
		pipeline.WithExecutorLogger(rt.logger),
		pipeline.WithArtifactHook(rt.recorder.RecordArtifact),
	)

	observers := []pipeline.Observer{pipeline.NewLoggingObserver(rt.logger), rt.recorder}
	if rt.store != nil {
		observers = append(observers, rt.store)
	}

	engine := pipeline.NewEngine(
		pipeline.WithPromptExecutor(exec),
		pipeline.WithToolInvoker(rt.tools),
		pipeline.WithObserver(pipeline.NewCompositeObserver(observers...)),
		pipeline.WithLogger(rt.logger),
	)
	return engine, exec
}

func (rt *runtime) Close() error {
	if rt.store != nil {
		return rt.store.Close()
	}
	return nil
}

func createAdapters(cfg *config.Config) (map[string]adapter.Adapter, error) {
	adapters := make(map[string]adapter.Adapter)

	if cfg.AnthropicAPIKey != "" {
		a, err := adapter.NewAnthropicAdapter(cfg.AnthropicAPIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create anthropic adapter: %w", err)
		}
		adapters["anthropic"] = a
	}

	if cfg.OpenAIAPIKey != "" {
		a, err := adapter.NewOpenAIAdapter(cfg.OpenAIAPIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create openai adapter: %w", err)
		}
		adapters["openai"] = a
	}

	if cfg.GoogleAPIKey != "" {
		a, err := adapter.NewGoogleAdapter(cfg.GoogleAPIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create google adapter: %w", err)
		}
		adapters["google"] = a
	}

	if cfg.DeepSeekAPIKey != "" {
		a, err := adapter.NewDeepSeekAdapter(cfg.DeepSeekAPIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create deepseek adapter: %w", err)
		}
		adapters["deepseek"] = a
	}

	return adapters, nil
}
