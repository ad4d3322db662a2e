package arr

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/helmarr/helmarr/internal/router"
	"github.com/helmarr/helmarr/internal/watchlist"
)

// Dispatcher fans an item out to every routed instance.
type Dispatcher struct {
	registry *Registry
	logger   zerolog.Logger
}

func NewDispatcher(registry *Registry, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		logger:   logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Dispatch sends the item to each decision's target instance. All targets
// are attempted; failures are joined so a partial fan-out still reaches the
// healthy instances.
func (d *Dispatcher) Dispatch(ctx context.Context, item watchlist.Item, decisions []router.Decision) error {
	var errs []error
	for _, decision := range decisions {
		client, ok := d.registry.Get(decision.InstanceID)
		if !ok {
			// Rule targets an instance that was removed or disabled.
			client, ok = d.registry.DefaultFor(decision.TargetType)
			if !ok {
				errs = append(errs, fmt.Errorf("no %s instance for decision rule %d: %w",
					decision.TargetType, decision.RuleID, ErrInstanceUnavailable))
				continue
			}
		}

		if err := client.Add(ctx, item, decision.RootFolder, decision.QualityProfile); err != nil {
			errs = append(errs, err)
			continue
		}
		d.logger.Debug().
			Str("title", item.Title).
			Str("instance", client.instance.Name).
			Int64("ruleID", decision.RuleID).
			Msg("dispatched to instance")
	}
	return errors.Join(errs...)
}
