package router

import (
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helmarr/helmarr/internal/store"
	"github.com/helmarr/helmarr/internal/watchlist"
)

func testRule(id int64, kind store.RuleKind, target store.TargetType, sortOrder int64, criteria string) store.RoutingRule {
	return store.RoutingRule{
		ID:               id,
		Name:             string(kind),
		Kind:             kind,
		Criteria:         json.RawMessage(criteria),
		TargetType:       target,
		TargetInstanceID: id * 100,
		SortOrder:        sortOrder,
		Enabled:          true,
	}
}

func TestEvaluateConcatenatesInEvaluatorOrder(t *testing.T) {
	rules := []store.RoutingRule{
		testRule(1, store.RuleKindGenre, store.TargetRadarr, 50, `{"genres":["horror"]}`),
		testRule(2, store.RuleKindUser, store.TargetRadarr, 80, `{"users":[7]}`),
	}
	evaluators := FromRules(rules, zerolog.Nop())

	item := watchlist.Item{
		Title:  "The Thing",
		Type:   watchlist.ContentTypeMovie,
		Genres: []string{"Horror", "Sci-Fi"},
	}
	rctx := Context{User: store.User{ID: 7, Name: "alice"}}

	decisions := Evaluate(item, rctx, evaluators)
	require.Len(t, decisions, 2)

	// User evaluator runs before genre regardless of slice order.
	assert.Equal(t, int64(2), decisions[0].RuleID)
	assert.Equal(t, int64(1), decisions[1].RuleID)
}

func TestEvaluateDeterministic(t *testing.T) {
	rules := []store.RoutingRule{
		testRule(1, store.RuleKindGenre, store.TargetRadarr, 10, `{"genres":["drama"]}`),
		testRule(2, store.RuleKindGenre, store.TargetRadarr, 10, `{"genres":["drama"]}`),
		testRule(3, store.RuleKindUser, store.TargetRadarr, 10, `{"users":[1]}`),
	}
	item := watchlist.Item{Title: "Heat", Type: watchlist.ContentTypeMovie, Genres: []string{"Drama"}}
	rctx := Context{User: store.User{ID: 1}}

	first := Evaluate(item, rctx, FromRules(rules, zerolog.Nop()))
	for i := 0; i < 10; i++ {
		again := Evaluate(item, rctx, FromRules(rules, zerolog.Nop()))
		require.Equal(t, first, again)
	}
}

func TestSortByWeight(t *testing.T) {
	decisions := []Decision{
		{RuleID: 1, Weight: 50, EvaluatorOrder: 20},
		{RuleID: 2, Weight: 80, EvaluatorOrder: 10},
		{RuleID: 3, Weight: 50, EvaluatorOrder: 10},
		{RuleID: 4, Weight: 50, EvaluatorOrder: 10},
	}
	SortByWeight(decisions)

	// Highest weight first, then evaluator order, then rule ID.
	assert.Equal(t, int64(2), decisions[0].RuleID)
	assert.Equal(t, int64(3), decisions[1].RuleID)
	assert.Equal(t, int64(4), decisions[2].RuleID)
	assert.Equal(t, int64(1), decisions[3].RuleID)
}

func TestEvaluateNoMatchReturnsEmpty(t *testing.T) {
	rules := []store.RoutingRule{
		testRule(1, store.RuleKindGenre, store.TargetRadarr, 10, `{"genres":["western"]}`),
	}
	item := watchlist.Item{Title: "Alien", Type: watchlist.ContentTypeMovie, Genres: []string{"Horror"}}

	decisions := Evaluate(item, Context{}, FromRules(rules, zerolog.Nop()))
	assert.Empty(t, decisions)
}

func TestContentTypeTargetMismatch(t *testing.T) {
	// A radarr rule must never match a show, even when criteria match.
	rules := []store.RoutingRule{
		testRule(1, store.RuleKindGenre, store.TargetRadarr, 10, `{"genres":["comedy"]}`),
		testRule(2, store.RuleKindGenre, store.TargetSonarr, 10, `{"genres":["comedy"]}`),
	}
	item := watchlist.Item{Title: "Severance", Type: watchlist.ContentTypeShow, Genres: []string{"Comedy"}}

	decisions := Evaluate(item, Context{}, FromRules(rules, zerolog.Nop()))
	require.Len(t, decisions, 1)
	assert.Equal(t, int64(2), decisions[0].RuleID)
}

func TestYearEvaluator(t *testing.T) {
	rules := []store.RoutingRule{
		testRule(1, store.RuleKindYear, store.TargetRadarr, 10, `{"minYear":1980,"maxYear":1989}`),
	}
	evaluators := FromRules(rules, zerolog.Nop())

	in := watchlist.Item{Title: "Blade Runner", Type: watchlist.ContentTypeMovie, Year: 1982}
	out := watchlist.Item{Title: "Alien", Type: watchlist.ContentTypeMovie, Year: 1979}
	unknown := watchlist.Item{Title: "Unknown", Type: watchlist.ContentTypeMovie}

	assert.Len(t, Evaluate(in, Context{}, evaluators), 1)
	assert.Empty(t, Evaluate(out, Context{}, evaluators))
	assert.Empty(t, Evaluate(unknown, Context{}, evaluators))
}

func TestLanguageEvaluatorCaseInsensitive(t *testing.T) {
	rules := []store.RoutingRule{
		testRule(1, store.RuleKindLanguage, store.TargetRadarr, 10, `{"languages":["ko"]}`),
	}
	item := watchlist.Item{Title: "Oldboy", Type: watchlist.ContentTypeMovie, Languages: []string{"KO"}}

	assert.Len(t, Evaluate(item, Context{}, FromRules(rules, zerolog.Nop())), 1)
}

func TestConditionalEvaluator(t *testing.T) {
	criteria := `{"condition":{
		"all":[{"field":"genre","operator":"in","values":["anime"]}],
		"any":[
			{"field":"language","operator":"in","values":["ja"]},
			{"field":"user","operator":"in","values":["admin"]}
		]}}`
	rules := []store.RoutingRule{
		testRule(1, store.RuleKindConditional, store.TargetSonarr, 10, criteria),
	}
	evaluators := FromRules(rules, zerolog.Nop())

	match := watchlist.Item{Title: "Frieren", Type: watchlist.ContentTypeShow, Genres: []string{"Anime"}, Languages: []string{"ja"}}
	wrongAll := watchlist.Item{Title: "The Wire", Type: watchlist.ContentTypeShow, Genres: []string{"Crime"}, Languages: []string{"ja"}}
	wrongAny := watchlist.Item{Title: "Frieren", Type: watchlist.ContentTypeShow, Genres: []string{"Anime"}, Languages: []string{"de"}}

	assert.Len(t, Evaluate(match, Context{}, evaluators), 1)
	assert.Empty(t, Evaluate(wrongAll, Context{}, evaluators))
	assert.Empty(t, Evaluate(wrongAny, Context{}, evaluators))

	// The any branch also accepts the user condition.
	adminMatch := Evaluate(wrongAny, Context{User: store.User{Name: "admin"}}, evaluators)
	assert.Len(t, adminMatch, 1)
}

func TestConditionalBetweenOperator(t *testing.T) {
	criteria := `{"condition":{
		"all":[{"field":"year","operator":"between","values":["1980","1989"]}]}}`
	rules := []store.RoutingRule{
		testRule(1, store.RuleKindConditional, store.TargetRadarr, 10, criteria),
	}
	evaluators := FromRules(rules, zerolog.Nop())

	inside := watchlist.Item{Title: "The Thing", Type: watchlist.ContentTypeMovie, Year: 1982}
	edge := watchlist.Item{Title: "Akira", Type: watchlist.ContentTypeMovie, Year: 1989}
	outside := watchlist.Item{Title: "Heat", Type: watchlist.ContentTypeMovie, Year: 1995}

	assert.Len(t, Evaluate(inside, Context{}, evaluators), 1)
	assert.Len(t, Evaluate(edge, Context{}, evaluators), 1)
	assert.Empty(t, Evaluate(outside, Context{}, evaluators))

	// Malformed bounds never match.
	bad := `{"condition":{
		"all":[{"field":"year","operator":"between","values":["1980"]}]}}`
	badEvals := FromRules([]store.RoutingRule{
		testRule(2, store.RuleKindConditional, store.TargetRadarr, 10, bad),
	}, zerolog.Nop())
	assert.Empty(t, Evaluate(inside, Context{}, badEvals))
}

func TestMalformedCriteriaSkipsRule(t *testing.T) {
	rules := []store.RoutingRule{
		testRule(1, store.RuleKindGenre, store.TargetRadarr, 10, `{not json`),
		testRule(2, store.RuleKindGenre, store.TargetRadarr, 10, `{"genres":["horror"]}`),
	}
	item := watchlist.Item{Title: "The Thing", Type: watchlist.ContentTypeMovie, Genres: []string{"Horror"}}

	decisions := Evaluate(item, Context{}, FromRules(rules, zerolog.Nop()))
	require.Len(t, decisions, 1)
	assert.Equal(t, int64(2), decisions[0].RuleID)
}

func TestDecisionFlags(t *testing.T) {
	rule := testRule(1, store.RuleKindUser, store.TargetRadarr, 10, `{"users":[5]}`)
	rule.AlwaysRequireApproval = true
	rule.BypassUserQuotas = true

	item := watchlist.Item{Title: "Dune", Type: watchlist.ContentTypeMovie}
	decisions := Evaluate(item, Context{User: store.User{ID: 5}}, FromRules([]store.RoutingRule{rule}, zerolog.Nop()))
	require.Len(t, decisions, 1)

	assert.True(t, RequiresApproval(decisions))
	assert.True(t, BypassesQuotas(decisions))
	assert.False(t, RequiresApproval(nil))
}
