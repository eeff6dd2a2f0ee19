package debtcache

import (
	"math/big"
	"strconv"
	"strings"

	"tribecore/core/types"
)

const (
	EventTypeDebtSnapshotTaken    = "debtcache.snapshot"
	EventTypeCacheValidityChanged = "debtcache.validity"
	EventTypeCachedDebtUpdated    = "debtcache.updated"
	EventTypeExcludedDebtChanged  = "debtcache.excluded"
	EventTypeCachedDebtPurged     = "debtcache.purged"
)

// DebtSnapshotTaken is emitted after every full recomputation.
type DebtSnapshotTaken struct {
	Debt      *big.Int
	Timestamp int64
	Invalid   bool
}

func (DebtSnapshotTaken) EventType() string { return EventTypeDebtSnapshotTaken }

func (e DebtSnapshotTaken) Event() *types.Event {
	return &types.Event{
		Type: EventTypeDebtSnapshotTaken,
		Attributes: map[string]string{
			"debt":      formatAmount(e.Debt),
			"timestamp": strconv.FormatInt(e.Timestamp, 10),
			"invalid":   strconv.FormatBool(e.Invalid),
		},
	}
}

// CacheValidityChanged is emitted only when the sticky invalid flag actually
// transitions.
type CacheValidityChanged struct {
	Invalid bool
}

func (CacheValidityChanged) EventType() string { return EventTypeCacheValidityChanged }

func (e CacheValidityChanged) Event() *types.Event {
	return &types.Event{
		Type: EventTypeCacheValidityChanged,
		Attributes: map[string]string{
			"invalid": strconv.FormatBool(e.Invalid),
		},
	}
}

// CachedDebtUpdated is emitted by the incremental update paths.
type CachedDebtUpdated struct {
	Assets    []string
	Delta     *big.Int
	TotalDebt *big.Int
}

func (CachedDebtUpdated) EventType() string { return EventTypeCachedDebtUpdated }

func (e CachedDebtUpdated) Event() *types.Event {
	return &types.Event{
		Type: EventTypeCachedDebtUpdated,
		Attributes: map[string]string{
			"assets": strings.Join(e.Assets, ","),
			"delta":  formatAmount(e.Delta),
			"debt":   formatAmount(e.TotalDebt),
		},
	}
}

// ExcludedDebtChanged is emitted when externally-backed debt bookkeeping
// moves.
type ExcludedDebtChanged struct {
	Asset         string
	Excluded      *big.Int
	TotalExcluded *big.Int
}

func (ExcludedDebtChanged) EventType() string { return EventTypeExcludedDebtChanged }

func (e ExcludedDebtChanged) Event() *types.Event {
	return &types.Event{
		Type: EventTypeExcludedDebtChanged,
		Attributes: map[string]string{
			"asset":         e.Asset,
			"excluded":      formatAmount(e.Excluded),
			"totalExcluded": formatAmount(e.TotalExcluded),
		},
	}
}

// CachedDebtPurged is emitted when a deregistered asset's entry is zeroed.
type CachedDebtPurged struct {
	Asset     string
	Removed   *big.Int
	TotalDebt *big.Int
}

func (CachedDebtPurged) EventType() string { return EventTypeCachedDebtPurged }

func (e CachedDebtPurged) Event() *types.Event {
	return &types.Event{
		Type: EventTypeCachedDebtPurged,
		Attributes: map[string]string{
			"asset":   e.Asset,
			"removed": formatAmount(e.Removed),
			"debt":    formatAmount(e.TotalDebt),
		},
	}
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
