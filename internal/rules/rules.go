// Package rules manages the routing rule set backing the router evaluators.
package rules

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/helmarr/helmarr/internal/router"
	"github.com/helmarr/helmarr/internal/store"
)

// Service loads the active rule set and materializes router evaluators.
type Service struct {
	store  *store.Store
	logger zerolog.Logger
}

func NewService(st *store.Store, logger zerolog.Logger) *Service {
	return &Service{
		store:  st,
		logger: logger.With().Str("component", "rules").Logger(),
	}
}

// Evaluators returns the evaluator set for the currently enabled rules.
// The set is rebuilt on each call so rule edits take effect on the next
// sync cycle without a restart.
func (s *Service) Evaluators(ctx context.Context) ([]router.Evaluator, error) {
	rules, err := s.store.ListEnabledRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading routing rules: %w", err)
	}
	return router.FromRules(rules, s.logger), nil
}
