package debtshare

import (
	"math/big"

	"tribecore/crypto"
)

// Checkpoint records a value change tagged with the period the change
// accrues under. Histories are append-only and ordered by period; only
// periods in which the value actually changed carry an entry.
type Checkpoint struct {
	Period uint64
	Value  *big.Int
}

// Account holds the debt-share position for a single participant: the live
// balance plus the sparse checkpoint history used for retroactive queries.
type Account struct {
	Address crypto.Address
	Balance *big.Int
	History []Checkpoint
}

// Clone returns a deep copy of the account so callers can safely mutate the
// copy without affecting the stored instance.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	clone := &Account{Address: a.Address}
	if a.Balance != nil {
		clone.Balance = new(big.Int).Set(a.Balance)
	} else {
		clone.Balance = big.NewInt(0)
	}
	if len(a.History) > 0 {
		clone.History = make([]Checkpoint, len(a.History))
		for i, cp := range a.History {
			clone.History[i] = Checkpoint{Period: cp.Period}
			if cp.Value != nil {
				clone.History[i].Value = new(big.Int).Set(cp.Value)
			} else {
				clone.History[i].Value = big.NewInt(0)
			}
		}
	}
	return clone
}

// Meta captures the ledger-wide counters: the id of the last sealed period
// and the live share supply. Changes after a snapshot accrue under
// CurrentPeriodID+1 until the next snapshot seals them.
type Meta struct {
	CurrentPeriodID uint64
	TotalSupply     *big.Int
}

// Clone returns a deep copy of the ledger meta record.
func (m *Meta) Clone() *Meta {
	if m == nil {
		return nil
	}
	clone := &Meta{CurrentPeriodID: m.CurrentPeriodID}
	if m.TotalSupply != nil {
		clone.TotalSupply = new(big.Int).Set(m.TotalSupply)
	} else {
		clone.TotalSupply = big.NewInt(0)
	}
	return clone
}
