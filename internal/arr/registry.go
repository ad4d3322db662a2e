package arr

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/helmarr/helmarr/internal/store"
)

// Registry holds clients for all configured manager instances, keyed by
// instance ID. It is rebuilt from the store on startup and on instance edits.
type Registry struct {
	mu      sync.RWMutex
	clients map[int64]*Client
	logger  zerolog.Logger
	timeout time.Duration
}

func NewRegistry(timeout time.Duration, logger zerolog.Logger) *Registry {
	return &Registry{
		clients: make(map[int64]*Client),
		logger:  logger.With().Str("component", "arr-registry").Logger(),
		timeout: timeout,
	}
}

// Reload replaces the client set from the enabled instances in the store.
// Instances that fail client construction are skipped and logged; the rest
// of the registry still loads.
func (r *Registry) Reload(ctx context.Context, st *store.Store) error {
	instances, err := st.ListEnabledInstances(ctx)
	if err != nil {
		return fmt.Errorf("listing instances: %w", err)
	}

	clients := make(map[int64]*Client, len(instances))
	for _, inst := range instances {
		client, err := NewClient(inst, r.timeout, r.logger)
		if err != nil {
			r.logger.Warn().Err(err).Str("instance", inst.Name).Msg("skipping misconfigured instance")
			continue
		}
		clients[inst.ID] = client
	}

	r.mu.Lock()
	r.clients = clients
	r.mu.Unlock()

	r.logger.Info().Int("instances", len(clients)).Msg("instance registry loaded")
	return nil
}

// Get returns the client for an instance ID.
func (r *Registry) Get(id int64) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[id]
	return c, ok
}

// DefaultFor returns the default instance client for a target type. When none
// is marked default, the lowest-ID instance of that type serves so repeated
// calls pick the same fallback.
func (r *Registry) DefaultFor(target store.TargetType) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var fallback *Client
	for _, c := range r.clients {
		if c.instance.Type != target {
			continue
		}
		if c.instance.IsDefault {
			return c, true
		}
		if fallback == nil || c.instance.ID < fallback.instance.ID {
			fallback = c
		}
	}
	return fallback, fallback != nil
}

// All returns the current client set.
func (r *Registry) All() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	return out
}

// CheckInstancesHealth pings the given instances and returns the IDs that
// failed. Unknown IDs are reported unavailable.
func (r *Registry) CheckInstancesHealth(ctx context.Context, ids []int64) []int64 {
	var unavailable []int64
	for _, id := range ids {
		client, ok := r.Get(id)
		if !ok {
			unavailable = append(unavailable, id)
			continue
		}
		if err := client.Ping(ctx); err != nil {
			r.logger.Warn().Err(err).
				Str("instance", client.instance.Name).
				Msg("instance health check failed")
			unavailable = append(unavailable, id)
		}
	}
	return unavailable
}
