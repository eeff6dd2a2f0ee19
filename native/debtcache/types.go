package debtcache

import "math/big"

// Entry is the cached USD-denominated debt for a single tracked tribe asset.
type Entry struct {
	Debt      *big.Int
	UpdatedAt int64
}

// Clone returns a deep copy of the entry.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	clone := &Entry{UpdatedAt: e.UpdatedAt}
	if e.Debt != nil {
		clone.Debt = new(big.Int).Set(e.Debt)
	} else {
		clone.Debt = big.NewInt(0)
	}
	return clone
}

// Aggregate is the system-wide cache record. TotalDebt already accounts for
// futures debt and excluded externally-backed debt; TotalExcluded mirrors the
// sum of the per-asset excluded amounts so reporting does not rescan them.
type Aggregate struct {
	TotalDebt     *big.Int
	TotalExcluded *big.Int
	Timestamp     int64
	Invalid       bool
}

// Clone returns a deep copy of the aggregate record.
func (a *Aggregate) Clone() *Aggregate {
	if a == nil {
		return nil
	}
	clone := &Aggregate{Timestamp: a.Timestamp, Invalid: a.Invalid}
	if a.TotalDebt != nil {
		clone.TotalDebt = new(big.Int).Set(a.TotalDebt)
	} else {
		clone.TotalDebt = big.NewInt(0)
	}
	if a.TotalExcluded != nil {
		clone.TotalExcluded = new(big.Int).Set(a.TotalExcluded)
	} else {
		clone.TotalExcluded = big.NewInt(0)
	}
	return clone
}

// Info is the read-model snapshot returned by CacheInfo.
type Info struct {
	Debt      *big.Int
	Timestamp int64
	Invalid   bool
	Stale     bool
}
