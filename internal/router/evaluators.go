package router

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/helmarr/helmarr/internal/store"
	"github.com/helmarr/helmarr/internal/watchlist"
)

// Evaluator orders. Lower runs first; the values leave room for custom
// evaluators in between.
const (
	orderUser        = 10
	orderGenre       = 20
	orderYear        = 30
	orderLanguage    = 40
	orderConditional = 50
)

// Criteria is the parsed rule criteria payload.
type Criteria struct {
	Users     []int64         `json:"users,omitempty"`
	Genres    []string        `json:"genres,omitempty"`
	MinYear   int             `json:"minYear,omitempty"`
	MaxYear   int             `json:"maxYear,omitempty"`
	Languages []string        `json:"languages,omitempty"`
	Condition *ConditionGroup `json:"condition,omitempty"`
}

// ConditionGroup combines conditions: All must match and at least one of Any
// must match (an empty group side is ignored).
type ConditionGroup struct {
	All []Condition `json:"all,omitempty"`
	Any []Condition `json:"any,omitempty"`
}

// Condition is a single field test.
type Condition struct {
	Field    string   `json:"field"`    // "genre", "year", "user", "language", "type"
	Operator string   `json:"operator"` // "in", "notIn", "between"
	Values   []string `json:"values"`
}

// ruleEvaluator evaluates all rules of one kind. The concrete match function
// varies per kind; everything else (content type filter, decision building)
// is shared.
type ruleEvaluator struct {
	name    string
	order   int
	rules   []store.RoutingRule
	matches func(c Criteria, item watchlist.Item, rctx Context) bool
	logger  zerolog.Logger
}

func (e *ruleEvaluator) Name() string  { return e.name }
func (e *ruleEvaluator) Enabled() bool { return len(e.rules) > 0 }
func (e *ruleEvaluator) Order() int    { return e.order }

func (e *ruleEvaluator) EvaluateRouting(item watchlist.Item, rctx Context) []Decision {
	var decisions []Decision
	for _, rule := range e.rules {
		if !targetMatchesType(rule.TargetType, item.Type) {
			continue
		}

		var criteria Criteria
		if err := json.Unmarshal(rule.Criteria, &criteria); err != nil {
			e.logger.Warn().Err(err).Int64("ruleID", rule.ID).Str("evaluator", e.name).
				Msg("unparseable rule criteria, skipping rule")
			continue
		}

		if !e.matches(criteria, item, rctx) {
			continue
		}

		decisions = append(decisions, Decision{
			InstanceID:       rule.TargetInstanceID,
			TargetType:       rule.TargetType,
			QualityProfile:   rule.QualityProfile,
			RootFolder:       rule.RootFolder,
			Tags:             rule.Tags,
			Weight:           rule.SortOrder,
			RuleID:           rule.ID,
			RequiresApproval: rule.AlwaysRequireApproval,
			BypassQuotas:     rule.BypassUserQuotas,
		})
	}
	return decisions
}

// FromRules groups routing rules into the standard evaluator set.
// Rules arrive pre-sorted (sort_order, ID) from the store, which preserves
// the stable tie-break within each evaluator.
func FromRules(rules []store.RoutingRule, logger zerolog.Logger) []Evaluator {
	byKind := make(map[store.RuleKind][]store.RoutingRule)
	for _, r := range rules {
		byKind[r.Kind] = append(byKind[r.Kind], r)
	}

	sub := logger.With().Str("component", "router").Logger()
	return []Evaluator{
		&ruleEvaluator{name: "user", order: orderUser, rules: byKind[store.RuleKindUser], matches: matchUser, logger: sub},
		&ruleEvaluator{name: "genre", order: orderGenre, rules: byKind[store.RuleKindGenre], matches: matchGenre, logger: sub},
		&ruleEvaluator{name: "year", order: orderYear, rules: byKind[store.RuleKindYear], matches: matchYear, logger: sub},
		&ruleEvaluator{name: "language", order: orderLanguage, rules: byKind[store.RuleKindLanguage], matches: matchLanguage, logger: sub},
		&ruleEvaluator{name: "conditional", order: orderConditional, rules: byKind[store.RuleKindConditional], matches: matchConditional, logger: sub},
	}
}

func targetMatchesType(target store.TargetType, contentType watchlist.ContentType) bool {
	switch contentType {
	case watchlist.ContentTypeMovie:
		return target == store.TargetRadarr
	case watchlist.ContentTypeShow:
		return target == store.TargetSonarr
	}
	return false
}

func matchUser(c Criteria, _ watchlist.Item, rctx Context) bool {
	for _, id := range c.Users {
		if id == rctx.User.ID {
			return true
		}
	}
	return false
}

func matchGenre(c Criteria, item watchlist.Item, _ Context) bool {
	return anyFold(item.Genres, c.Genres)
}

func matchYear(c Criteria, item watchlist.Item, _ Context) bool {
	if item.Year == 0 {
		return false
	}
	if c.MinYear > 0 && item.Year < c.MinYear {
		return false
	}
	if c.MaxYear > 0 && item.Year > c.MaxYear {
		return false
	}
	return c.MinYear > 0 || c.MaxYear > 0
}

func matchLanguage(c Criteria, item watchlist.Item, _ Context) bool {
	return anyFold(item.Languages, c.Languages)
}

func matchConditional(c Criteria, item watchlist.Item, rctx Context) bool {
	if c.Condition == nil {
		return false
	}
	for _, cond := range c.Condition.All {
		if !evalCondition(cond, item, rctx) {
			return false
		}
	}
	if len(c.Condition.Any) > 0 {
		matched := false
		for _, cond := range c.Condition.Any {
			if evalCondition(cond, item, rctx) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return len(c.Condition.All) > 0 || len(c.Condition.Any) > 0
}

func evalCondition(cond Condition, item watchlist.Item, rctx Context) bool {
	var candidates []string
	switch cond.Field {
	case "genre":
		candidates = item.Genres
	case "language":
		candidates = item.Languages
	case "year":
		candidates = []string{strconv.Itoa(item.Year)}
	case "user":
		candidates = []string{strconv.FormatInt(rctx.User.ID, 10), rctx.User.Name}
	case "type":
		candidates = []string{string(item.Type)}
	default:
		return false
	}

	switch cond.Operator {
	case "notIn":
		return !anyFold(candidates, cond.Values)
	case "between":
		return anyBetween(candidates, cond.Values)
	default:
		return anyFold(candidates, cond.Values)
	}
}

// anyBetween reports whether any numeric candidate falls inside the inclusive
// [min, max] bounds. Non-numeric candidates are skipped.
func anyBetween(candidates, bounds []string) bool {
	if len(bounds) != 2 {
		return false
	}
	lo, loErr := strconv.Atoi(bounds[0])
	hi, hiErr := strconv.Atoi(bounds[1])
	if loErr != nil || hiErr != nil {
		return false
	}

	for _, c := range candidates {
		v, err := strconv.Atoi(c)
		if err != nil {
			continue
		}
		if v >= lo && v <= hi {
			return true
		}
	}
	return false
}

// anyFold reports whether any of haystack matches any of needles,
// case-insensitively.
func anyFold(haystack, needles []string) bool {
	for _, h := range haystack {
		for _, n := range needles {
			if strings.EqualFold(h, n) {
				return true
			}
		}
	}
	return false
}
