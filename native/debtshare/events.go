package debtshare

import (
	"math/big"
	"strconv"

	"tribecore/core/types"
	"tribecore/crypto"
)

const (
	EventTypeSharesMinted      = "debtshare.minted"
	EventTypeSharesBurned      = "debtshare.burned"
	EventTypeSnapshotTaken     = "debtshare.snapshot"
	EventTypeSharesTransferred = "debtshare.transferred"
	EventTypeBalancesImported  = "debtshare.imported"
)

// SharesMinted is emitted when new debt shares are issued to an account.
type SharesMinted struct {
	Account crypto.Address
	Amount  *big.Int
	Period  uint64
}

func (SharesMinted) EventType() string { return EventTypeSharesMinted }

func (e SharesMinted) Event() *types.Event {
	return &types.Event{
		Type: EventTypeSharesMinted,
		Attributes: map[string]string{
			"account": e.Account.String(),
			"amount":  formatAmount(e.Amount),
			"period":  strconv.FormatUint(e.Period, 10),
		},
	}
}

// SharesBurned is emitted when debt shares are destroyed.
type SharesBurned struct {
	Account crypto.Address
	Amount  *big.Int
	Period  uint64
}

func (SharesBurned) EventType() string { return EventTypeSharesBurned }

func (e SharesBurned) Event() *types.Event {
	return &types.Event{
		Type: EventTypeSharesBurned,
		Attributes: map[string]string{
			"account": e.Account.String(),
			"amount":  formatAmount(e.Amount),
			"period":  strconv.FormatUint(e.Period, 10),
		},
	}
}

// SnapshotTaken is emitted when the running period is sealed.
type SnapshotTaken struct {
	PreviousPeriod uint64
	NewPeriod      uint64
	TotalSupply    *big.Int
}

func (SnapshotTaken) EventType() string { return EventTypeSnapshotTaken }

func (e SnapshotTaken) Event() *types.Event {
	return &types.Event{
		Type: EventTypeSnapshotTaken,
		Attributes: map[string]string{
			"previousPeriod": strconv.FormatUint(e.PreviousPeriod, 10),
			"newPeriod":      strconv.FormatUint(e.NewPeriod, 10),
			"totalSupply":    formatAmount(e.TotalSupply),
		},
	}
}

// SharesTransferred is emitted when the broker reassigns shares.
type SharesTransferred struct {
	From   crypto.Address
	To     crypto.Address
	Amount *big.Int
	Period uint64
}

func (SharesTransferred) EventType() string { return EventTypeSharesTransferred }

func (e SharesTransferred) Event() *types.Event {
	return &types.Event{
		Type: EventTypeSharesTransferred,
		Attributes: map[string]string{
			"from":   e.From.String(),
			"to":     e.To.String(),
			"amount": formatAmount(e.Amount),
			"period": strconv.FormatUint(e.Period, 10),
		},
	}
}

// BalancesImported is emitted after a migration import adjusts balances.
type BalancesImported struct {
	Count       int
	TotalSupply *big.Int
	Period      uint64
}

func (BalancesImported) EventType() string { return EventTypeBalancesImported }

func (e BalancesImported) Event() *types.Event {
	return &types.Event{
		Type: EventTypeBalancesImported,
		Attributes: map[string]string{
			"count":       strconv.Itoa(e.Count),
			"totalSupply": formatAmount(e.TotalSupply),
			"period":      strconv.FormatUint(e.Period, 10),
		},
	}
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
