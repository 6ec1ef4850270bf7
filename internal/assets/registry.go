package assets

import (
	"errors"
	"fmt"
	"strings"

	"github.com/leafsii/dsc-ledger/internal/calc"
	"github.com/leafsii/dsc-ledger/internal/domain"
)

var (
	ErrNoAssets       = errors.New("at least one collateral asset is required")
	ErrLengthMismatch = errors.New("asset and price feed lists must have the same length")
	ErrZeroIdentifier = errors.New("asset and price feed identifiers must not be empty")
	ErrDuplicateAsset = errors.New("duplicate collateral asset")
)

// Registry is the fixed, ordered table of admitted collateral assets. It is built once
// and never mutated.
type Registry struct {
	assets []domain.Asset
	index  map[string]int // asset ID -> position in assets
}

// NewRegistry validates the assets and freezes them in the given admission order.
func NewRegistry(list []domain.Asset) (*Registry, error) {
	if len(list) == 0 {
		return nil, ErrNoAssets
	}

	r := &Registry{
		assets: make([]domain.Asset, 0, len(list)),
		index:  make(map[string]int, len(list)),
	}
	for _, a := range list {
		a.ID = strings.TrimSpace(a.ID)
		a.Feed = strings.TrimSpace(a.Feed)
		if a.ID == "" || a.Feed == "" {
			return nil, ErrZeroIdentifier
		}
		if a.Decimals > calc.MaxDecimals {
			return nil, fmt.Errorf("asset %s: %w", a.ID, calc.ErrUnsupportedDecimals)
		}
		if _, dup := r.index[a.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateAsset, a.ID)
		}
		if a.Symbol == "" {
			a.Symbol = a.ID
		}
		r.index[a.ID] = len(r.assets)
		r.assets = append(r.assets, a)
	}
	return r, nil
}

// FromPairs builds a registry from parallel asset/feed/decimals lists.
func FromPairs(ids, feeds []string, decimals []uint8) (*Registry, error) {
	if len(ids) != len(feeds) || len(ids) != len(decimals) {
		return nil, ErrLengthMismatch
	}
	list := make([]domain.Asset, len(ids))
	for i := range ids {
		list[i] = domain.Asset{ID: ids[i], Feed: feeds[i], Decimals: decimals[i]}
	}
	return NewRegistry(list)
}

// Get returns the admitted asset with the given ID.
func (r *Registry) Get(id string) (domain.Asset, bool) {
	i, ok := r.index[id]
	if !ok {
		return domain.Asset{}, false
	}
	return r.assets[i], true
}

// Supports reports whether id is an admitted asset.
func (r *Registry) Supports(id string) bool {
	_, ok := r.index[id]
	return ok
}

// All returns the assets in admission order.
func (r *Registry) All() []domain.Asset {
	out := make([]domain.Asset, len(r.assets))
	copy(out, r.assets)
	return out
}

// IDs returns the asset IDs in admission order.
func (r *Registry) IDs() []string {
	ids := make([]string, len(r.assets))
	for i, a := range r.assets {
		ids[i] = a.ID
	}
	return ids
}

func (r *Registry) Len() int {
	return len(r.assets)
}
