package debtcache

import (
	"errors"
	"math/big"
	"time"

	"tribecore/core/events"
	"tribecore/core/fixedpoint"
	"tribecore/crypto"
	nativecommon "tribecore/native/common"
)

var (
	errNilState       = errors.New("debt cache: state not configured")
	errNilRegistry    = errors.New("debt cache: asset registry not configured")
	errNilPrices      = errors.New("debt cache: price source not configured")
	errLengthMismatch = errors.New("debt cache: assets and rates length mismatch")

	// ErrStillRegistered signals a purge attempted before the asset was
	// removed from the registry. Removal happens first, purge second.
	ErrStillRegistered = errors.New("debt cache: tribe still registered")
	// ErrNegativeExcluded signals an excluded-debt delta that would drive
	// the per-asset excluded amount below zero.
	ErrNegativeExcluded = errors.New("debt cache: excluded debt cannot go negative")
)

const moduleName = "debtcache"

// DefaultStaleSeconds is the cache freshness window applied when no explicit
// stale time is configured.
const DefaultStaleSeconds = 3600

type cacheState interface {
	CacheAggregate() (*Aggregate, error)
	PutCacheAggregate(*Aggregate) error
	AssetEntry(asset string) (*Entry, error)
	PutAssetEntry(asset string, entry *Entry) error
	DeleteAssetEntry(asset string) error
	ExcludedDebt(asset string) (*big.Int, error)
	PutExcludedDebt(asset string, amount *big.Int) error
}

// PriceSource resolves the USD price for a tracked asset along with a
// staleness flag. Prices are supplied as already-resolved inputs; the cache
// never fetches mid-operation.
type PriceSource interface {
	PriceOf(asset string) (*big.Int, bool, error)
}

// AssetRegistry enumerates the tracked tribe assets and their issued
// supplies.
type AssetRegistry interface {
	Assets() []string
	TotalSupplyOf(asset string) (*big.Int, error)
	IsRegistered(asset string) bool
}

// FuturesDebtSource reports the derivative market contribution to system
// debt. The boolean reports whether the figure is currently trustworthy.
type FuturesDebtSource interface {
	TotalFuturesDebt() (*big.Int, bool, error)
}

// Cache amortizes the cost of computing total system debt across all tracked
// assets. A full snapshot is strict about price freshness; the incremental
// update paths are lenient but set the sticky invalid flag, so issuance never
// blocks on a single stale feed.
type Cache struct {
	state        cacheState
	prices       PriceSource
	registry     AssetRegistry
	futures      FuturesDebtSource
	auth         nativecommon.AuthProvider
	pauses       nativecommon.PauseView
	emitter      events.Emitter
	stableAsset  string
	staleSeconds int64
	nowFn        func() int64
}

// NewCache constructs a debt cache. The stable asset is the reference unit
// whose mint/burn changes system debt 1:1; zero staleSeconds selects the
// default window.
func NewCache(stableAsset string, staleSeconds int64) *Cache {
	if staleSeconds <= 0 {
		staleSeconds = DefaultStaleSeconds
	}
	return &Cache{
		emitter:      events.NoopEmitter{},
		stableAsset:  stableAsset,
		staleSeconds: staleSeconds,
		nowFn:        func() int64 { return time.Now().Unix() },
	}
}

// SetState wires the cache to the external persistence layer.
func (c *Cache) SetState(state cacheState) { c.state = state }

// SetPrices configures the price source consulted during recomputation.
func (c *Cache) SetPrices(prices PriceSource) {
	if c == nil {
		return
	}
	c.prices = prices
}

// SetRegistry configures the tracked asset registry.
func (c *Cache) SetRegistry(registry AssetRegistry) {
	if c == nil {
		return
	}
	c.registry = registry
}

// SetFutures configures the optional derivative market debt source.
func (c *Cache) SetFutures(futures FuturesDebtSource) {
	if c == nil {
		return
	}
	c.futures = futures
}

// SetAuth configures the capability provider.
func (c *Cache) SetAuth(auth nativecommon.AuthProvider) {
	if c == nil {
		return
	}
	c.auth = auth
}

// SetPauses wires the system suspension view.
func (c *Cache) SetPauses(p nativecommon.PauseView) {
	if c == nil {
		return
	}
	c.pauses = p
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (c *Cache) SetEmitter(emitter events.Emitter) {
	if c == nil {
		return
	}
	if emitter == nil {
		c.emitter = events.NoopEmitter{}
		return
	}
	c.emitter = emitter
}

// SetNowFunc overrides the time source. Primarily intended for tests.
func (c *Cache) SetNowFunc(now func() int64) {
	if c == nil {
		return
	}
	if now == nil {
		c.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	c.nowFn = now
}

// TakeDebtSnapshot recomputes the cached total debt from scratch over every
// tracked asset plus the futures contribution, minus excluded debt. Callable
// by anyone while the system is running; the owner may also call it during a
// pause so the cache can be repaired under an emergency freeze.
func (c *Cache) TakeDebtSnapshot(caller crypto.Address) error {
	if c == nil || c.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(c.pauses, moduleName); err != nil {
		if roleErr := nativecommon.RequireRole(c.auth, caller, nativecommon.RoleOwner); roleErr != nil {
			return err
		}
	}

	total, anyInvalid, perAsset, err := c.recomputeAll()
	if err != nil {
		return err
	}

	agg, err := c.loadAggregate()
	if err != nil {
		return err
	}
	wasInvalid := agg.Invalid
	now := c.now()
	for asset, debt := range perAsset {
		if err := c.state.PutAssetEntry(asset, &Entry{Debt: debt, UpdatedAt: now}); err != nil {
			return err
		}
	}
	total = new(big.Int).Sub(total, agg.TotalExcluded)
	agg.TotalDebt = total
	agg.Timestamp = now
	agg.Invalid = anyInvalid
	if err := c.state.PutCacheAggregate(agg); err != nil {
		return err
	}

	c.emit(DebtSnapshotTaken{Debt: total, Timestamp: now, Invalid: anyInvalid})
	if wasInvalid != anyInvalid {
		c.emit(CacheValidityChanged{Invalid: anyInvalid})
	}
	return nil
}

// UpdateCachedTribeDebtsWithRates is the incremental path used by the
// issuance and exchange subsystems: each asset's cached debt is replaced
// using the supplied rate and the aggregate adjusted by the delta. The cache
// timestamp is left untouched. Invalid rates still apply but flip the sticky
// invalid flag; blocking issuance on one bad feed would be worse than a
// flagged cache.
func (c *Cache) UpdateCachedTribeDebtsWithRates(caller crypto.Address, assets []string, rates []*big.Int, ratesInvalid bool) error {
	if c == nil || c.state == nil {
		return errNilState
	}
	if c.registry == nil {
		return errNilRegistry
	}
	if err := nativecommon.Guard(c.pauses, moduleName); err != nil {
		return err
	}
	if err := nativecommon.RequireRole(c.auth, caller, nativecommon.RoleIssuer); err != nil {
		return err
	}
	if len(assets) != len(rates) {
		return errLengthMismatch
	}

	agg, err := c.loadAggregate()
	if err != nil {
		return err
	}
	now := c.now()
	delta := new(big.Int)
	for i, asset := range assets {
		supply, err := c.registry.TotalSupplyOf(asset)
		if err != nil {
			return err
		}
		newDebt := fixedpoint.Mul(supply, rates[i])
		entry, err := c.loadEntry(asset)
		if err != nil {
			return err
		}
		delta.Add(delta, new(big.Int).Sub(newDebt, entry.Debt))
		if err := c.state.PutAssetEntry(asset, &Entry{Debt: newDebt, UpdatedAt: now}); err != nil {
			return err
		}
	}

	agg.TotalDebt = new(big.Int).Add(agg.TotalDebt, delta)
	wasInvalid := agg.Invalid
	if ratesInvalid {
		agg.Invalid = true
	}
	if err := c.state.PutCacheAggregate(agg); err != nil {
		return err
	}
	c.emit(CachedDebtUpdated{Assets: assets, Delta: delta, TotalDebt: agg.TotalDebt})
	if !wasInvalid && agg.Invalid {
		c.emit(CacheValidityChanged{Invalid: true})
	}
	return nil
}

// UpdateCachedStableDebt is the fast path for the reference stable asset:
// mint and burn change system debt 1:1 with no price lookup. The cached
// entry floors at zero. Restricted to the issuer.
func (c *Cache) UpdateCachedStableDebt(caller crypto.Address, delta *big.Int) error {
	if c == nil || c.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(c.pauses, moduleName); err != nil {
		return err
	}
	if err := nativecommon.RequireRole(c.auth, caller, nativecommon.RoleIssuer); err != nil {
		return err
	}
	if delta == nil || delta.Sign() == 0 {
		return nil
	}

	entry, err := c.loadEntry(c.stableAsset)
	if err != nil {
		return err
	}
	newDebt := new(big.Int).Add(entry.Debt, delta)
	applied := new(big.Int).Set(delta)
	if newDebt.Sign() < 0 {
		applied.Neg(entry.Debt)
		newDebt = big.NewInt(0)
	}
	if err := c.state.PutAssetEntry(c.stableAsset, &Entry{Debt: newDebt, UpdatedAt: c.now()}); err != nil {
		return err
	}

	agg, err := c.loadAggregate()
	if err != nil {
		return err
	}
	agg.TotalDebt = new(big.Int).Add(agg.TotalDebt, applied)
	if err := c.state.PutCacheAggregate(agg); err != nil {
		return err
	}
	c.emit(CachedDebtUpdated{Assets: []string{c.stableAsset}, Delta: applied, TotalDebt: agg.TotalDebt})
	return nil
}

// RecordExcludedDebtChange adjusts the externally-backed debt tracked for an
// asset. Deltas that would drive the excluded amount negative are rejected.
// Restricted to the owner.
func (c *Cache) RecordExcludedDebtChange(caller crypto.Address, asset string, delta *big.Int) error {
	if c == nil || c.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(c.pauses, moduleName); err != nil {
		return err
	}
	if err := nativecommon.RequireRole(c.auth, caller, nativecommon.RoleOwner); err != nil {
		return err
	}
	if delta == nil || delta.Sign() == 0 {
		return nil
	}

	current, err := c.loadExcluded(asset)
	if err != nil {
		return err
	}
	next := new(big.Int).Add(current, delta)
	if next.Sign() < 0 {
		return ErrNegativeExcluded
	}
	if err := c.state.PutExcludedDebt(asset, next); err != nil {
		return err
	}

	agg, err := c.loadAggregate()
	if err != nil {
		return err
	}
	agg.TotalExcluded = new(big.Int).Add(agg.TotalExcluded, delta)
	// Excluded debt is subtracted from protocol-backed reporting, so the
	// cached total moves opposite to the delta.
	agg.TotalDebt = new(big.Int).Sub(agg.TotalDebt, delta)
	if err := c.state.PutCacheAggregate(agg); err != nil {
		return err
	}
	c.emit(ExcludedDebtChanged{Asset: asset, Excluded: next, TotalExcluded: agg.TotalExcluded})
	return nil
}

// ImportExcludedIssuedDebts sets absolute excluded amounts as a migration
// path between cache versions. Restricted to the owner.
func (c *Cache) ImportExcludedIssuedDebts(caller crypto.Address, assets []string, amounts []*big.Int) error {
	if c == nil || c.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(c.pauses, moduleName); err != nil {
		return err
	}
	if err := nativecommon.RequireRole(c.auth, caller, nativecommon.RoleOwner); err != nil {
		return err
	}
	if len(assets) != len(amounts) {
		return errLengthMismatch
	}

	agg, err := c.loadAggregate()
	if err != nil {
		return err
	}
	for i, asset := range assets {
		target := amounts[i]
		if target == nil || target.Sign() < 0 {
			return ErrNegativeExcluded
		}
		current, err := c.loadExcluded(asset)
		if err != nil {
			return err
		}
		if current.Cmp(target) == 0 {
			continue
		}
		delta := new(big.Int).Sub(target, current)
		if err := c.state.PutExcludedDebt(asset, new(big.Int).Set(target)); err != nil {
			return err
		}
		agg.TotalExcluded = new(big.Int).Add(agg.TotalExcluded, delta)
		agg.TotalDebt = new(big.Int).Sub(agg.TotalDebt, delta)
	}
	return c.state.PutCacheAggregate(agg)
}

// PurgeCachedTribeDebt zeroes the cached entry for an asset that has already
// been removed from the registry. Purging a still-registered asset is an
// order-of-operations violation and is rejected. Restricted to the owner.
func (c *Cache) PurgeCachedTribeDebt(caller crypto.Address, asset string) error {
	if c == nil || c.state == nil {
		return errNilState
	}
	if c.registry == nil {
		return errNilRegistry
	}
	if err := nativecommon.Guard(c.pauses, moduleName); err != nil {
		return err
	}
	if err := nativecommon.RequireRole(c.auth, caller, nativecommon.RoleOwner); err != nil {
		return err
	}
	if c.registry.IsRegistered(asset) {
		return ErrStillRegistered
	}

	entry, err := c.loadEntry(asset)
	if err != nil {
		return err
	}
	if entry.Debt.Sign() == 0 {
		return c.state.DeleteAssetEntry(asset)
	}
	agg, err := c.loadAggregate()
	if err != nil {
		return err
	}
	agg.TotalDebt = new(big.Int).Sub(agg.TotalDebt, entry.Debt)
	if err := c.state.DeleteAssetEntry(asset); err != nil {
		return err
	}
	if err := c.state.PutCacheAggregate(agg); err != nil {
		return err
	}
	c.emit(CachedDebtPurged{Asset: asset, Removed: entry.Debt, TotalDebt: agg.TotalDebt})
	return nil
}

// CurrentDebt recomputes total system debt from live inputs without touching
// the cache. The boolean reports whether any input was stale or invalid, so
// callers such as the liquidation engine can refuse to act on it.
func (c *Cache) CurrentDebt() (*big.Int, bool, error) {
	if c == nil || c.state == nil {
		return nil, false, errNilState
	}
	total, anyInvalid, _, err := c.recomputeAll()
	if err != nil {
		return nil, false, err
	}
	agg, err := c.loadAggregate()
	if err != nil {
		return nil, false, err
	}
	return new(big.Int).Sub(total, agg.TotalExcluded), anyInvalid, nil
}

// CurrentTribeDebts recomputes the live per-asset debt values for the
// supplied assets.
func (c *Cache) CurrentTribeDebts(assets []string) ([]*big.Int, bool, error) {
	if c == nil {
		return nil, false, errNilState
	}
	if c.registry == nil {
		return nil, false, errNilRegistry
	}
	if c.prices == nil {
		return nil, false, errNilPrices
	}
	out := make([]*big.Int, len(assets))
	anyInvalid := false
	for i, asset := range assets {
		supply, err := c.registry.TotalSupplyOf(asset)
		if err != nil {
			return nil, false, err
		}
		price, stale, err := c.prices.PriceOf(asset)
		if err != nil {
			return nil, false, err
		}
		if stale {
			anyInvalid = true
		}
		out[i] = fixedpoint.Mul(supply, price)
	}
	return out, anyInvalid, nil
}

// CachedDebt returns the cached aggregate without recomputation.
func (c *Cache) CachedDebt() (*big.Int, error) {
	if c == nil || c.state == nil {
		return nil, errNilState
	}
	agg, err := c.loadAggregate()
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(agg.TotalDebt), nil
}

// CachedTribeDebt returns the cached per-asset debt value.
func (c *Cache) CachedTribeDebt(asset string) (*big.Int, error) {
	if c == nil || c.state == nil {
		return nil, errNilState
	}
	entry, err := c.loadEntry(asset)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(entry.Debt), nil
}

// ExcludedIssuedDebt returns the excluded amount tracked for an asset.
func (c *Cache) ExcludedIssuedDebt(asset string) (*big.Int, error) {
	if c == nil || c.state == nil {
		return nil, errNilState
	}
	return c.loadExcluded(asset)
}

// CacheInfo reports the cached debt together with its timestamp, the sticky
// invalid flag and the time-derived staleness.
func (c *Cache) CacheInfo() (Info, error) {
	if c == nil || c.state == nil {
		return Info{}, errNilState
	}
	agg, err := c.loadAggregate()
	if err != nil {
		return Info{}, err
	}
	return Info{
		Debt:      new(big.Int).Set(agg.TotalDebt),
		Timestamp: agg.Timestamp,
		Invalid:   agg.Invalid,
		Stale:     c.isStale(agg.Timestamp),
	}, nil
}

// CacheStale reports whether the cache timestamp has aged out.
func (c *Cache) CacheStale() (bool, error) {
	info, err := c.CacheInfo()
	if err != nil {
		return false, err
	}
	return info.Stale, nil
}

func (c *Cache) isStale(timestamp int64) bool {
	return c.now()-timestamp > c.staleSeconds
}

// recomputeAll prices every registered asset and the futures contribution.
// Excluded debt is not subtracted here; callers settle it against the
// aggregate record.
func (c *Cache) recomputeAll() (*big.Int, bool, map[string]*big.Int, error) {
	if c.registry == nil {
		return nil, false, nil, errNilRegistry
	}
	if c.prices == nil {
		return nil, false, nil, errNilPrices
	}
	total := new(big.Int)
	anyInvalid := false
	perAsset := make(map[string]*big.Int)
	for _, asset := range c.registry.Assets() {
		supply, err := c.registry.TotalSupplyOf(asset)
		if err != nil {
			return nil, false, nil, err
		}
		price, stale, err := c.prices.PriceOf(asset)
		if err != nil {
			return nil, false, nil, err
		}
		if stale {
			anyInvalid = true
		}
		debt := fixedpoint.Mul(supply, price)
		perAsset[asset] = debt
		total.Add(total, debt)
	}
	if c.futures != nil {
		futuresDebt, ok, err := c.futures.TotalFuturesDebt()
		if err != nil {
			return nil, false, nil, err
		}
		if !ok {
			anyInvalid = true
		}
		if futuresDebt != nil {
			total.Add(total, futuresDebt)
		}
	}
	return total, anyInvalid, perAsset, nil
}

func (c *Cache) loadAggregate() (*Aggregate, error) {
	agg, err := c.state.CacheAggregate()
	if err != nil {
		return nil, err
	}
	if agg == nil {
		agg = &Aggregate{}
	}
	if agg.TotalDebt == nil {
		agg.TotalDebt = big.NewInt(0)
	}
	if agg.TotalExcluded == nil {
		agg.TotalExcluded = big.NewInt(0)
	}
	return agg, nil
}

func (c *Cache) loadEntry(asset string) (*Entry, error) {
	entry, err := c.state.AssetEntry(asset)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		entry = &Entry{}
	}
	if entry.Debt == nil {
		entry.Debt = big.NewInt(0)
	}
	return entry, nil
}

func (c *Cache) loadExcluded(asset string) (*big.Int, error) {
	amount, err := c.state.ExcludedDebt(asset)
	if err != nil {
		return nil, err
	}
	if amount == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(amount), nil
}

func (c *Cache) now() int64 {
	if c == nil || c.nowFn == nil {
		return time.Now().Unix()
	}
	return c.nowFn()
}

func (c *Cache) emit(evt events.Event) {
	if c == nil || c.emitter == nil {
		return
	}
	c.emitter.Emit(evt)
}
