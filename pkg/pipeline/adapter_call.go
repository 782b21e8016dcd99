package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/zen-systems/contentflow/pkg/adapter"
	"github.com/zen-systems/contentflow/pkg/artifact"
	"github.com/zen-systems/contentflow/pkg/config"
	"github.com/zen-systems/contentflow/pkg/repair"
	"github.com/zen-systems/contentflow/pkg/router"
)

// AdapterExecutor is a PromptExecutor backed by the model adapters of a
// router. It retries transient failures, walks the configured fallback chain
// and accounts token cost for its whole lifetime, so a budget applies to
// every prompt it serves.
type AdapterExecutor struct {
	router     *router.Router
	routing    *config.RoutingConfig
	tracker    *costTracker
	logger     *slog.Logger
	onArtifact func(ctx context.Context, step string, art *artifact.Artifact)
	maxBudget  float64
	repairs    int
}

// ExecutorOption configures an AdapterExecutor.
type ExecutorOption func(*AdapterExecutor)

// WithMaxBudget stops prompting once estimated spending reaches usd.
// Zero disables the limit.
func WithMaxBudget(usd float64) ExecutorOption {
	return func(e *AdapterExecutor) { e.maxBudget = usd }
}

// WithSchemaRepairs re-prompts up to n times when a structured answer does
// not match its schema. Zero disables repairs.
func WithSchemaRepairs(n int) ExecutorOption {
	return func(e *AdapterExecutor) {
		if n >= 0 {
			e.repairs = n
		}
	}
}

// WithExecutorLogger sets the logger for model calls.
func WithExecutorLogger(l *slog.Logger) ExecutorOption {
	return func(e *AdapterExecutor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithArtifactHook is called with the raw model answer of every successful
// prompt, before JSON decoding.
func WithArtifactHook(fn func(ctx context.Context, step string, art *artifact.Artifact)) ExecutorOption {
	return func(e *AdapterExecutor) { e.onArtifact = fn }
}

// NewAdapterExecutor creates an executor that routes prompts through r.
func NewAdapterExecutor(r *router.Router, opts ...ExecutorOption) *AdapterExecutor {
	e := &AdapterExecutor{
		router:  r,
		routing: r.Config(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.tracker = newCostTracker(e.routing, e.maxBudget)
	return e
}

// ExecutePrompt renders the task, sends it to the routed model and returns
// the answer text. When req.Schema is set the answer is decoded as JSON; text
// that holds no JSON is returned as is and left to schema validation.
func (e *AdapterExecutor) ExecutePrompt(ctx context.Context, req PromptRequest) (any, error) {
	prompt, err := RenderPrompt(req)
	if err != nil {
		return nil, err
	}

	d, err := e.router.Resolve(router.Request{
		TaskType: req.TaskType,
		Prompt:   prompt,
		Adapter:  req.Adapter,
		Model:    req.Model,
	})
	if err != nil {
		return nil, err
	}

	e.logger.DebugContext(ctx, "prompt routed",
		slog.String("step", req.Step),
		slog.String("adapter", d.Adapter),
		slog.String("model", d.Model),
		slog.Any("reasons", d.Reasons),
	)

	resp, reports, err := e.callWithPolicy(ctx, d.Adapter, d.Model, prompt)
	e.tracker.recordReports(req.Step, reports)
	if err != nil {
		return nil, err
	}

	if e.onArtifact != nil && resp.Artifact != nil {
		e.onArtifact(ctx, req.Step, resp.Artifact.WithMetadata("step", req.Step))
	}

	text := resp.Text()
	if req.Schema == nil {
		return text, nil
	}
	return e.structured(ctx, req, d, prompt, text)
}

// structured decodes a structured answer. An answer that is not JSON or does
// not match req.Schema is sent back to the model with its problems, up to the
// configured number of repairs; whatever remains is left to the engine's
// schema validation.
func (e *AdapterExecutor) structured(ctx context.Context, req PromptRequest, d *router.Decision, prompt, text string) (any, error) {
	var previous string
	for attempt := 0; ; attempt++ {
		decoded, decodeErr := DecodeJSONText(text)
		var validateErr error
		if decodeErr == nil {
			_, validateErr = req.Schema.Validate(decoded)
		}
		problems := repair.Problems(decodeErr, validateErr)
		if len(problems) == 0 {
			return decoded, nil
		}

		if attempt >= e.repairs {
			e.logger.WarnContext(ctx, "structured answer does not match schema",
				slog.String("step", req.Step),
				slog.String("schema", req.Schema.Name),
				slog.Any("problems", problems),
			)
			if decodeErr != nil {
				return text, nil
			}
			return decoded, nil
		}

		fix := repair.SchemaPrompt(prompt, text, req.Schema, problems)
		if text == previous {
			fix = repair.EscalationPrompt(prompt, text, req.Schema, problems)
		}
		previous = text

		e.logger.InfoContext(ctx, "repairing structured answer",
			slog.String("step", req.Step),
			slog.Int("attempt", attempt+1),
			slog.Int("problems", len(problems)),
		)
		resp, reports, err := e.callWithPolicy(ctx, d.Adapter, d.Model, fix)
		e.tracker.recordReports(req.Step, reports)
		if err != nil {
			return nil, err
		}
		if e.onArtifact != nil && resp.Artifact != nil {
			art := resp.Artifact.WithMetadata("step", req.Step).WithMetadata("repair", strconv.Itoa(attempt+1))
			e.onArtifact(ctx, req.Step, art)
		}
		text = resp.Text()
	}
}

// CostReport returns usage and cost totals so far.
func (e *AdapterExecutor) CostReport() *CostReport {
	return e.tracker.report()
}

var promptFuncs = template.FuncMap{
	"json": func(v any) (string, error) {
		b, err := json.Marshal(v)
		return string(b), err
	},
	"join": func(v any, sep string) string {
		items, err := stringItems(map[string]any{"v": v}, "v")
		if err != nil {
			return fmt.Sprint(v)
		}
		return strings.Join(items, sep)
	},
}

// RenderPrompt executes req.Task as a text/template over req.Inputs and
// appends the inputs themselves, plus a JSON answer instruction when the
// step has a schema.
func RenderPrompt(req PromptRequest) (string, error) {
	tmpl, err := template.New(req.Step).Funcs(promptFuncs).Option("missingkey=error").Parse(req.Task)
	if err != nil {
		return "", fmt.Errorf("parse task template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, req.Inputs); err != nil {
		return "", fmt.Errorf("render task template: %w", err)
	}

	if len(req.Inputs) > 0 {
		names := make([]string, 0, len(req.Inputs))
		for k := range req.Inputs {
			names = append(names, k)
		}
		sort.Strings(names)

		buf.WriteString("\n\nInputs:\n")
		for _, name := range names {
			fmt.Fprintf(&buf, "- %s: %s\n", name, inputText(req.Inputs[name]))
		}
	}

	if req.Schema != nil {
		buf.WriteString("\nRespond with only a JSON object of this shape, no prose:\n")
		buf.WriteString(req.Schema.Describe())
		buf.WriteString("\n")
	}
	return buf.String(), nil
}

func inputText(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

type callTarget struct {
	Adapter string
	Model   string
}

func (e *AdapterExecutor) callWithPolicy(ctx context.Context, adapterName, model, prompt string) (*adapter.Response, []adapter.CallReport, error) {
	targets := buildTargets(adapterName, model, e.routing)
	retryCfg := retrySettings(e.routing)
	aliases := e.router.GetAliases()
	var reports []adapter.CallReport
	var lastErr error

	for idx, target := range targets {
		target.Model = aliases.Resolve(target.Model)
		adapterImpl, ok := e.router.GetAdapter(target.Adapter)
		if !ok {
			if idx == 0 {
				return nil, reports, fmt.Errorf("adapter %s not found", target.Adapter)
			}
			e.logger.DebugContext(ctx, "skipping unavailable fallback", slog.String("adapter", target.Adapter))
			continue
		}

		for attempt := 0; attempt <= retryCfg.MaxRetries; attempt++ {
			if err := e.tracker.checkBudget(target.Adapter, target.Model); err != nil {
				return nil, reports, err
			}

			resp, err := adapterImpl.Generate(ctx, target.Model, prompt)
			if err == nil {
				usage := normalizeUsage(resp.Usage)
				cost, _ := estimateCost(cfgPricing(e.routing), target.Adapter, target.Model, usage)
				reports = append(reports, adapter.CallReport{
					Adapter:      target.Adapter,
					Model:        target.Model,
					Usage:        usage,
					Cost:         cost,
					Retries:      attempt,
					FallbackUsed: idx > 0,
				})
				return resp, reports, nil
			}

			lastErr = err
			if !adapter.IsTransient(err) || attempt == retryCfg.MaxRetries {
				reports = append(reports, adapter.CallReport{
					Adapter:      target.Adapter,
					Model:        target.Model,
					Cost:         adapter.Cost{Currency: "USD"},
					Retries:      attempt,
					FallbackUsed: idx > 0,
					Error:        err.Error(),
				})
				break
			}

			backoff := computeBackoff(retryCfg.BaseBackoffMs, retryCfg.MaxBackoffMs, attempt)
			e.logger.WarnContext(ctx, "retrying model call",
				slog.String("adapter", target.Adapter),
				slog.Int("attempt", attempt+1),
				slog.Duration("backoff", backoff),
				slog.String("error", err.Error()),
			)
			if err := sleepWithContext(ctx, backoff); err != nil {
				return nil, reports, err
			}
		}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("adapter call failed")
	}
	return nil, reports, lastErr
}

func buildTargets(adapterName, model string, cfg *config.RoutingConfig) []callTarget {
	targets := []callTarget{{Adapter: adapterName, Model: model}}
	if cfg == nil || !cfg.Fallback.AllowFallback {
		return targets
	}
	for _, entry := range resolveFallbackChain(cfg, adapterName, model) {
		targets = append(targets, callTarget{Adapter: entry.Adapter, Model: entry.Model})
	}
	return targets
}

// resolveFallbackChain looks up "adapter/model" first, then "adapter".
func resolveFallbackChain(cfg *config.RoutingConfig, adapterName, model string) []config.RouteTarget {
	if cfg == nil || cfg.Fallback.FallbackChain == nil {
		return nil
	}
	key := fmt.Sprintf("%s/%s", adapterName, model)
	if chain, ok := cfg.Fallback.FallbackChain[key]; ok {
		return chain
	}
	if chain, ok := cfg.Fallback.FallbackChain[adapterName]; ok {
		return chain
	}
	return nil
}

func retrySettings(cfg *config.RoutingConfig) config.RetryConfig {
	if cfg == nil {
		return config.RetryConfig{MaxRetries: 2, BaseBackoffMs: 200, MaxBackoffMs: 2000}
	}
	return cfg.Retry
}

func computeBackoff(baseMs, maxMs, attempt int) time.Duration {
	limit := time.Duration(maxMs) * time.Millisecond
	backoff := time.Duration(baseMs) * time.Millisecond
	for i := 0; i < attempt; i++ {
		backoff *= 2
		if backoff >= limit {
			return limit
		}
	}
	if backoff > limit {
		return limit
	}
	return backoff
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func cfgPricing(cfg *config.RoutingConfig) config.PricingConfig {
	if cfg == nil {
		return nil
	}
	return cfg.Pricing
}
