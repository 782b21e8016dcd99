// Package router picks the adapter and model that answer a prompt step.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/zen-systems/contentflow/pkg/adapter"
	"github.com/zen-systems/contentflow/pkg/config"
)

// ErrNoAdapter is returned when no adapter is registered.
var ErrNoAdapter = errors.New("no adapter available")

// Request carries what a prompt step knows about where it should go.
// Adapter and Model, when set, override routing.
type Request struct {
	TaskType string
	Prompt   string
	Adapter  string
	Model    string
}

// RouteInfo describes a routing rule.
type RouteInfo struct {
	TaskType      string
	Triggers      []string
	Adapter       string
	Model         string // May be alias
	ResolvedModel string // Canonical model name
	Available     bool
}

// Router resolves requests against the routing config and the adapters that
// actually have credentials.
type Router struct {
	adapters map[string]adapter.Adapter
	aliases  *config.ModelAliases
	rules    *RuleSet
	config   *config.RoutingConfig
	logger   *slog.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithAliases sets the model aliases for the router.
func WithAliases(aliases *config.ModelAliases) Option {
	return func(r *Router) {
		r.aliases = aliases
	}
}

// WithLogger sets the logger used for routing decisions.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) {
		r.logger = logger
	}
}

// NewRouter creates a new router with the given adapters and routing config.
// A nil cfg uses config.DefaultRoutingConfig.
func NewRouter(adapters map[string]adapter.Adapter, cfg *config.RoutingConfig, opts ...Option) *Router {
	if cfg == nil {
		cfg = config.DefaultRoutingConfig()
	}
	if adapters == nil {
		adapters = make(map[string]adapter.Adapter)
	}
	r := &Router{
		adapters: adapters,
		rules:    NewRuleSet(cfg),
		config:   cfg,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve decides which adapter and model serve req. Precedence is an
// explicit adapter, then the task type, then prompt triggers, then the
// default route. When the chosen adapter is not registered the default
// adapter is used, then the first registered adapter by name.
func (r *Router) Resolve(req Request) (*Decision, error) {
	if len(r.adapters) == 0 {
		return nil, ErrNoAdapter
	}

	d := &Decision{TaskType: req.TaskType}
	var adapterName, model string

	switch {
	case req.Adapter != "":
		adapterName, model = req.Adapter, req.Model
		d.addReason("adapter %q set on step", req.Adapter)
	case req.TaskType != "" && r.hasTaskType(req.TaskType):
		task := r.config.TaskTypes[req.TaskType]
		adapterName, model = task.Adapter, task.Model
		d.addReason("task type %q", req.TaskType)
	default:
		if req.TaskType != "" {
			d.addReason("unknown task type %q", req.TaskType)
		}
		d.Candidates = r.rules.Candidates(req.Prompt)
		d.TaskType, adapterName, model = r.rules.MatchWithTaskType(req.Prompt)
		if d.TaskType == "default" {
			d.addReason("no trigger matched")
		} else {
			d.addReason("trigger matched task type %q", d.TaskType)
		}
	}
	if req.Adapter == "" && req.Model != "" {
		model = req.Model
		d.addReason("model %q set on step", req.Model)
	}

	if _, ok := r.adapters[adapterName]; !ok {
		fallback := r.config.Default.Adapter
		if _, ok := r.adapters[fallback]; ok && fallback != adapterName {
			d.addReason("adapter %q unavailable, using default %q", adapterName, fallback)
			adapterName, model = fallback, r.config.Default.Model
		} else {
			first := r.available()[0]
			d.addReason("adapter %q unavailable, using %q", adapterName, first)
			adapterName, model = first, ""
		}
	}

	a := r.adapters[adapterName]
	if model == "" {
		if models := a.Models(); len(models) > 0 {
			model = models[0]
		}
	}

	d.Adapter = adapterName
	d.RequestedModel = model
	d.Model = r.resolveModel(model)
	if d.Model != model {
		d.addReason("alias %q resolved to %q", model, d.Model)
	}

	r.logger.Debug("route resolved",
		"task_type", d.TaskType,
		"adapter", d.Adapter,
		"model", d.Model,
	)
	return d, nil
}

// Send routes the request and generates a response.
func (r *Router) Send(ctx context.Context, req Request) (*adapter.Response, *Decision, error) {
	d, err := r.Resolve(req)
	if err != nil {
		return nil, nil, err
	}
	resp, err := r.adapters[d.Adapter].Generate(ctx, d.Model, req.Prompt)
	if err != nil {
		return nil, d, fmt.Errorf("%s/%s: %w", d.Adapter, d.Model, err)
	}
	return resp, d, nil
}

func (r *Router) hasTaskType(name string) bool {
	_, ok := r.config.TaskTypes[name]
	return ok
}

func (r *Router) available() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// resolveModel resolves a model alias to its canonical name.
func (r *Router) resolveModel(model string) string {
	if r.aliases != nil {
		return r.aliases.Resolve(model)
	}
	return model
}

// GetAdapter returns an adapter by name.
func (r *Router) GetAdapter(name string) (adapter.Adapter, bool) {
	a, ok := r.adapters[name]
	return a, ok
}

// Adapters returns the names of the registered adapters.
func (r *Router) Adapters() []string {
	return r.available()
}

// Config returns the routing configuration in use.
func (r *Router) Config() *config.RoutingConfig {
	return r.config
}

// GetRoutes returns all configured routing rules ordered by task type.
func (r *Router) GetRoutes() []RouteInfo {
	routes := make([]RouteInfo, 0, len(r.config.TaskTypes))
	for name, taskType := range r.config.TaskTypes {
		_, ok := r.adapters[taskType.Adapter]
		routes = append(routes, RouteInfo{
			TaskType:      name,
			Triggers:      taskType.Triggers,
			Adapter:       taskType.Adapter,
			Model:         taskType.Model,
			ResolvedModel: r.resolveModel(taskType.Model),
			Available:     ok,
		})
	}
	sort.Slice(routes, func(i, j int) bool { return routes[i].TaskType < routes[j].TaskType })
	return routes
}

// GetAliases returns the model aliases, if configured.
func (r *Router) GetAliases() *config.ModelAliases {
	return r.aliases
}
