package pipeline

import (
	"errors"
	"fmt"
	"sync"

	"github.com/zen-systems/contentflow/pkg/adapter"
	"github.com/zen-systems/contentflow/pkg/config"
)

// ErrBudgetExceeded is returned when a prompt would take spending past the
// configured budget.
var ErrBudgetExceeded = errors.New("budget exceeded")

// BudgetStatus reports the spending limit and whether it was hit.
type BudgetStatus struct {
	MaxAmount float64 `json:"max_amount"`
	Exceeded  bool    `json:"exceeded"`
	Reason    string  `json:"reason,omitempty"`
}

// CostReport totals token usage and estimated cost over every model call.
type CostReport struct {
	Currency    string               `json:"currency"`
	TotalAmount float64              `json:"total_amount"`
	TotalUsage  adapter.Usage        `json:"total_usage"`
	Calls       []adapter.CallReport `json:"calls"`
	Budget      *BudgetStatus        `json:"budget,omitempty"`
}

type costTracker struct {
	mu            sync.Mutex
	pricing       config.PricingConfig
	totalUsage    adapter.Usage
	totalAmount   float64
	currency      string
	calls         []adapter.CallReport
	maxBudgetUSD  float64
	budgetStatus  *BudgetStatus
	lastUsageHint *adapter.Usage
}

func newCostTracker(cfg *config.RoutingConfig, maxBudgetUSD float64) *costTracker {
	return &costTracker{
		pricing:      cfgPricing(cfg),
		currency:     "USD",
		maxBudgetUSD: maxBudgetUSD,
	}
}

// checkBudget fails when spending already reached the budget, or when the
// next call, sized like the previous one, would pass it.
func (t *costTracker) checkBudget(adapterName, model string) error {
	if t == nil || t.maxBudgetUSD <= 0 {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.budgetStatus == nil {
		t.budgetStatus = &BudgetStatus{MaxAmount: t.maxBudgetUSD}
	}
	if t.totalAmount >= t.maxBudgetUSD {
		return t.exceeded(fmt.Sprintf("budget %.2f exceeded (current total %.2f)", t.maxBudgetUSD, t.totalAmount))
	}
	if t.lastUsageHint == nil {
		return nil
	}

	cost, ok := estimateCost(t.pricing, adapterName, model, *t.lastUsageHint)
	if !ok {
		return nil
	}
	projected := t.totalAmount + cost.Amount
	if projected > t.maxBudgetUSD {
		return t.exceeded(fmt.Sprintf("budget %.2f exceeded (projected total %.2f)", t.maxBudgetUSD, projected))
	}
	return nil
}

func (t *costTracker) exceeded(reason string) error {
	t.budgetStatus.Exceeded = true
	t.budgetStatus.Reason = reason
	return fmt.Errorf("%w: %s", ErrBudgetExceeded, reason)
}

func (t *costTracker) recordReports(step string, reports []adapter.CallReport) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, report := range reports {
		report.Step = step
		t.calls = append(t.calls, report)
		if report.Error != "" {
			continue
		}
		t.totalAmount += report.Cost.Amount
		t.totalUsage = addUsage(t.totalUsage, report.Usage)
		usage := report.Usage
		t.lastUsageHint = &usage
	}
}

func (t *costTracker) report() *CostReport {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	var budget *BudgetStatus
	if t.budgetStatus != nil {
		b := *t.budgetStatus
		budget = &b
	} else if t.maxBudgetUSD > 0 {
		budget = &BudgetStatus{MaxAmount: t.maxBudgetUSD}
	}
	return &CostReport{
		Currency:    t.currency,
		TotalAmount: t.totalAmount,
		TotalUsage:  t.totalUsage,
		Calls:       append([]adapter.CallReport(nil), t.calls...),
		Budget:      budget,
	}
}

func normalizeUsage(u *adapter.Usage) adapter.Usage {
	if u == nil {
		return adapter.Usage{}
	}
	usage := *u
	if usage.TotalTokens == 0 && (usage.PromptTokens > 0 || usage.CompletionTokens > 0) {
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}
	return usage
}

func estimateCost(pricing config.PricingConfig, adapterName, model string, usage adapter.Usage) (adapter.Cost, bool) {
	entry, ok := pricingFor(pricing, adapterName, model)
	if !ok {
		return adapter.Cost{Currency: "USD"}, false
	}

	promptCost := (float64(usage.PromptTokens) / 1000.0) * entry.PromptPer1K
	completionCost := (float64(usage.CompletionTokens) / 1000.0) * entry.CompletionPer1K
	return adapter.Cost{
		Currency:     "USD",
		Amount:       promptCost + completionCost,
		IsEstimate:   true,
		PricingModel: "per_1k_tokens",
	}, true
}

func pricingFor(pricing config.PricingConfig, adapterName, model string) (config.ModelPricing, bool) {
	if pricing == nil {
		return config.ModelPricing{}, false
	}
	if adapterPricing, ok := pricing[adapterName]; ok {
		if entry, ok := adapterPricing[model]; ok {
			return entry, true
		}
		if entry, ok := adapterPricing["default"]; ok {
			return entry, true
		}
	}
	return config.ModelPricing{}, false
}

func addUsage(a adapter.Usage, b adapter.Usage) adapter.Usage {
	return adapter.Usage{
		PromptTokens:     a.PromptTokens + b.PromptTokens,
		CompletionTokens: a.CompletionTokens + b.CompletionTokens,
		TotalTokens:      a.TotalTokens + b.TotalTokens,
	}
}
