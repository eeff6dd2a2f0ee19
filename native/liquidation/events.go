package liquidation

import (
	"math/big"
	"strconv"

	"tribecore/core/types"
	"tribecore/crypto"
)

const (
	EventTypeAccountFlagged    = "liquidation.flagged"
	EventTypeFlagRemoved       = "liquidation.removed"
	EventTypeAccountLiquidated = "liquidation.liquidated"
)

// AccountFlagged is emitted when an undercollateralized account is flagged.
type AccountFlagged struct {
	Account  crypto.Address
	Caller   crypto.Address
	Deadline int64
}

func (AccountFlagged) EventType() string { return EventTypeAccountFlagged }

func (e AccountFlagged) Event() *types.Event {
	return &types.Event{
		Type: EventTypeAccountFlagged,
		Attributes: map[string]string{
			"account":  e.Account.String(),
			"caller":   e.Caller.String(),
			"deadline": strconv.FormatInt(e.Deadline, 10),
		},
	}
}

// FlagRemoved is emitted when a liquidation entry is resolved, either by
// ratio recovery or by execution.
type FlagRemoved struct {
	Account crypto.Address
	Reason  string
}

func (FlagRemoved) EventType() string { return EventTypeFlagRemoved }

func (e FlagRemoved) Event() *types.Event {
	return &types.Event{
		Type: EventTypeFlagRemoved,
		Attributes: map[string]string{
			"account": e.Account.String(),
			"reason":  e.Reason,
		},
	}
}

// AccountLiquidated is emitted after a successful (possibly partial)
// liquidation.
type AccountLiquidated struct {
	Account    crypto.Address
	Caller     crypto.Address
	DebtBurned *big.Int
	Collateral *big.Int
	Self       bool
}

func (AccountLiquidated) EventType() string { return EventTypeAccountLiquidated }

func (e AccountLiquidated) Event() *types.Event {
	return &types.Event{
		Type: EventTypeAccountLiquidated,
		Attributes: map[string]string{
			"account":    e.Account.String(),
			"caller":     e.Caller.String(),
			"debtBurned": formatAmount(e.DebtBurned),
			"collateral": formatAmount(e.Collateral),
			"self":       strconv.FormatBool(e.Self),
		},
	}
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
