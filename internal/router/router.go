// Package router computes candidate routing decisions for watchlist items.
// Evaluation is a pure function over injected state: all I/O (rule loading,
// metadata enrichment) happens in collaborators before Evaluate is called.
package router

import (
	"sort"

	"github.com/helmarr/helmarr/internal/store"
	"github.com/helmarr/helmarr/internal/watchlist"
)

// Decision is a candidate target for a content item. Decisions are
// non-exclusive: multiple candidates may coexist for one item (fan-out).
type Decision struct {
	InstanceID     int64            `json:"instanceId"`
	TargetType     store.TargetType `json:"targetType"`
	QualityProfile string           `json:"qualityProfile,omitempty"`
	RootFolder     string           `json:"rootFolder,omitempty"`
	Tags           []string         `json:"tags,omitempty"`
	Weight         int64            `json:"weight"`
	RuleID         int64            `json:"ruleId"`

	// Gate flags snapshotted from the matched rule.
	RequiresApproval bool `json:"requiresApproval,omitempty"`
	BypassQuotas     bool `json:"bypassQuotas,omitempty"`

	// Set by Evaluate for deterministic tie-breaking.
	EvaluatorOrder int `json:"-"`
}

// Context carries the evaluation context for one item.
type Context struct {
	User store.User
}

// Evaluator is one pluggable routing rule group. Evaluators run in ascending
// Order; a nil or empty result means no match.
type Evaluator interface {
	Name() string
	Enabled() bool
	Order() int
	EvaluateRouting(item watchlist.Item, rctx Context) []Decision
}

// Evaluate runs all enabled evaluators in ascending order and concatenates
// their candidate decisions. It never fails; no match yields an empty slice.
// The caller falls back to the content type's default instance when the
// result is empty, or selects the highest weight when a single target is
// required.
func Evaluate(item watchlist.Item, rctx Context, evaluators []Evaluator) []Decision {
	ordered := make([]Evaluator, len(evaluators))
	copy(ordered, evaluators)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Order() < ordered[j].Order()
	})

	var decisions []Decision
	for _, ev := range ordered {
		if !ev.Enabled() {
			continue
		}
		results := ev.EvaluateRouting(item, rctx)
		for i := range results {
			results[i].EvaluatorOrder = ev.Order()
		}
		decisions = append(decisions, results...)
	}
	return decisions
}

// SortByWeight orders decisions by weight descending, breaking ties by
// evaluator order then rule ID for determinism.
func SortByWeight(decisions []Decision) {
	sort.SliceStable(decisions, func(i, j int) bool {
		if decisions[i].Weight != decisions[j].Weight {
			return decisions[i].Weight > decisions[j].Weight
		}
		if decisions[i].EvaluatorOrder != decisions[j].EvaluatorOrder {
			return decisions[i].EvaluatorOrder < decisions[j].EvaluatorOrder
		}
		return decisions[i].RuleID < decisions[j].RuleID
	})
}

// RequiresApproval reports whether any matched rule demands approval.
func RequiresApproval(decisions []Decision) bool {
	for _, d := range decisions {
		if d.RequiresApproval {
			return true
		}
	}
	return false
}

// BypassesQuotas reports whether any matched rule bypasses user quotas.
func BypassesQuotas(decisions []Decision) bool {
	for _, d := range decisions {
		if d.BypassQuotas {
			return true
		}
	}
	return false
}
