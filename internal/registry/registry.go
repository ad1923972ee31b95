/*

This file contains the Asset Registry: the only durable piece of vault state.
The registry is an ordered list of assets, each with an ordered list of
strategies; order is significant and fixed at initialization. Strategies can be
paused and unpaused but never removed or reordered. Runtime strategy adapters
are bound to registry entries by ID at construction time.

*/

package registry

import (
	"fmt"
	"sync"

	"github.com/meridian-fi/mvm/internal/strategy"
	"github.com/meridian-fi/mvm/internal/types"
)

// Registry holds the static asset configuration plus the runtime strategy
// adapters bound to it. Paused flags are the only mutable part.
type Registry struct {
	mu       sync.RWMutex
	assets   []types.Asset
	index    map[string]int               // denom -> position in assets
	adapters map[string]strategy.Strategy // strategy ID -> adapter
}

// New validates the static configuration against the provided adapters and
// builds the registry. Every configured strategy needs an adapter, every
// adapter's declared asset must equal the asset it is registered under, and
// denoms and strategy IDs must be unique.
func New(assets []types.Asset, adapters map[string]strategy.Strategy) (*Registry, error) {
	if len(assets) == 0 {
		return nil, fmt.Errorf("%w: registry needs at least one asset", types.ErrNotInitialized)
	}

	index := make(map[string]int, len(assets))
	seen := make(map[string]bool)
	for i, asset := range assets {
		if asset.Denom == "" {
			return nil, fmt.Errorf("%w: asset %d has empty denom", types.ErrNotInitialized, i)
		}
		if _, dup := index[asset.Denom]; dup {
			return nil, fmt.Errorf("%w: duplicate asset %s", types.ErrNotInitialized, asset.Denom)
		}
		index[asset.Denom] = i

		for _, st := range asset.Strategies {
			if st.ID == "" {
				return nil, fmt.Errorf("%w: asset %s has strategy with empty ID", types.ErrNotInitialized, asset.Denom)
			}
			if seen[st.ID] {
				return nil, fmt.Errorf("%w: duplicate strategy %s", types.ErrNotInitialized, st.ID)
			}
			seen[st.ID] = true

			adapter, ok := adapters[st.ID]
			if !ok {
				return nil, fmt.Errorf("%w: no adapter bound for strategy %s", types.ErrStrategyNotFound, st.ID)
			}
			if adapter.Asset() != asset.Denom {
				return nil, fmt.Errorf("%w: strategy %s declares asset %s, registered under %s",
					types.ErrWrongAssetAddress, st.ID, adapter.Asset(), asset.Denom)
			}
		}
	}

	// Defensive copy so callers cannot mutate the configured order.
	copied := make([]types.Asset, len(assets))
	for i, a := range assets {
		copied[i] = types.Asset{Denom: a.Denom, Strategies: append([]types.Strategy(nil), a.Strategies...)}
	}

	return &Registry{assets: copied, index: index, adapters: adapters}, nil
}

// Assets returns a snapshot of the registry in configured order.
func (r *Registry) Assets() []types.Asset {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]types.Asset, len(r.assets))
	for i, a := range r.assets {
		out[i] = types.Asset{Denom: a.Denom, Strategies: append([]types.Strategy(nil), a.Strategies...)}
	}
	return out
}

// AssetCount returns the number of registered assets.
func (r *Registry) AssetCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.assets)
}

// AssetAt returns the asset at the given registry position.
func (r *Registry) AssetAt(i int) (types.Asset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if i < 0 || i >= len(r.assets) {
		return types.Asset{}, fmt.Errorf("asset index %d out of range", i)
	}
	a := r.assets[i]
	return types.Asset{Denom: a.Denom, Strategies: append([]types.Strategy(nil), a.Strategies...)}, nil
}

// IndexOf returns the registry position of the given denom, or -1.
func (r *Registry) IndexOf(denom string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if i, ok := r.index[denom]; ok {
		return i
	}
	return -1
}

// Adapter returns the runtime adapter for a strategy ID.
func (r *Registry) Adapter(strategyID string) (strategy.Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	adapter, ok := r.adapters[strategyID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrStrategyNotFound, strategyID)
	}
	return adapter, nil
}

// FindStrategy locates a strategy by ID and returns its owning asset, its
// registry entry and the asset's position.
func (r *Registry) FindStrategy(strategyID string) (types.Asset, types.Strategy, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i, asset := range r.assets {
		for _, st := range asset.Strategies {
			if st.ID == strategyID {
				return asset, st, i, nil
			}
		}
	}
	return types.Asset{}, types.Strategy{}, -1, fmt.Errorf("%w: %s", types.ErrStrategyNotFound, strategyID)
}

// SetPaused flips the paused flag of one strategy and returns its owning asset denom.
func (r *Registry) SetPaused(strategyID string, paused bool) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for ai := range r.assets {
		for si := range r.assets[ai].Strategies {
			if r.assets[ai].Strategies[si].ID == strategyID {
				r.assets[ai].Strategies[si].Paused = paused
				return r.assets[ai].Denom, nil
			}
		}
	}
	return "", fmt.Errorf("%w: %s", types.ErrStrategyNotFound, strategyID)
}

// IsPaused reports whether a strategy is currently paused.
func (r *Registry) IsPaused(strategyID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, asset := range r.assets {
		for _, st := range asset.Strategies {
			if st.ID == strategyID {
				return st.Paused, nil
			}
		}
	}
	return false, fmt.Errorf("%w: %s", types.ErrStrategyNotFound, strategyID)
}
