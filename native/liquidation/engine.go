package liquidation

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
	errNilState      = errors.New("liquidation engine: state not configured")
	errNilDebts      = errors.New("liquidation engine: debt source not configured")
	errNilCollateral = errors.New("liquidation engine: collateral source not configured")
	errNilPrices     = errors.New("liquidation engine: price source not configured")
	errNoDebt        = errors.New("liquidation engine: account has no debt")

	// ErrConfigurationMissing signals an unset liquidation ratio, target
	// ratio or delay.
	ErrConfigurationMissing = errors.New("liquidation engine: liquidation parameters not configured")
	// ErrStaleRate signals that a price or debt input was stale or invalid
	// at ratio-check time.
	ErrStaleRate = errors.New("liquidation engine: stale or invalid rate")
	// ErrAlreadyFlagged signals a duplicate flag attempt.
	ErrAlreadyFlagged = errors.New("liquidation engine: account already flagged")
	// ErrNotFlagged signals a forced liquidation without an open flag.
	ErrNotFlagged = errors.New("liquidation engine: account not flagged")
	// ErrRatioHealthy signals that the account ratio does not exceed the
	// liquidation threshold.
	ErrRatioHealthy = errors.New("liquidation engine: account ratio within threshold")
	// ErrDeadlineNotPassed signals a forced liquidation before the flag
	// deadline elapsed.
	ErrDeadlineNotPassed = errors.New("liquidation engine: liquidation deadline not passed")
	// ErrRewardNotCovered signals collateral insufficient to pay the
	// flag and liquidate rewards.
	ErrRewardNotCovered = errors.New("liquidation engine: collateral cannot cover liquidation rewards")
	// ErrCannotSelfLiquidate signals a self-liquidation with no liquid
	// collateral; escrowed collateral is never eligible for the self path.
	ErrCannotSelfLiquidate = errors.New("liquidation engine: insufficient liquid balance to self liquidate")
	// ErrNotPositionOwner signals a self-liquidation attempted by a caller
	// other than the account itself.
	ErrNotPositionOwner = errors.New("liquidation engine: self liquidation restricted to the position owner")
)

const moduleName = "liquidation"

type engineState interface {
	LiquidationEntry(addr crypto.Address) (*Entry, error)
	PutLiquidationEntry(addr crypto.Address, entry *Entry) error
	DeleteLiquidationEntry(addr crypto.Address) error
}

// DebtSource reports the USD value of an account's debt-share position and
// burns shares on its behalf during liquidation. The boolean reports whether
// any rate behind the valuation was stale or invalid.
type DebtSource interface {
	DebtBalanceOf(account crypto.Address) (*big.Int, bool, error)
	BurnDebt(account crypto.Address, amount *big.Int) error
}

// CollateralSource is the collateral accounting capability consumed by the
// engine. RevokeEscrowEntry releases the revoked amount into the account's
// liquid balance; redeemed collateral is then paid out with
// TransferCollateral.
type CollateralSource interface {
	LiquidBalanceOf(account crypto.Address) (*big.Int, error)
	TransferCollateral(from, to crypto.Address, amount *big.Int) error
	EscrowEntriesOf(account crypto.Address) ([]EscrowEntry, error)
	RevokeEscrowEntry(account crypto.Address, entryID uint64, amount *big.Int) error
	DepositEscrow(account crypto.Address, amount *big.Int, maturity int64) error
}

// PriceSource resolves the USD price of the native collateral asset.
type PriceSource interface {
	PriceOf(asset string) (*big.Int, bool, error)
}

// Engine flags, times out and resolves undercollateralized accounts. It owns
// only the flagging state; debt and collateral mutations go through the
// injected capabilities.
type Engine struct {
	state           engineState
	debts           DebtSource
	collateral      CollateralSource
	prices          PriceSource
	pauses          nativecommon.PauseView
	emitter         events.Emitter
	params          Params
	collateralAsset string
	nowFn           func() int64
}

// NewEngine constructs a liquidation engine pricing collateral via the
// supplied asset symbol.
func NewEngine(collateralAsset string) *Engine {
	return &Engine{
		emitter:         events.NoopEmitter{},
		collateralAsset: collateralAsset,
		nowFn:           func() int64 { return time.Now().Unix() },
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetDebtSource configures the debt-share valuation and burn capability.
func (e *Engine) SetDebtSource(debts DebtSource) {
	if e == nil {
		return
	}
	e.debts = debts
}

// SetCollateralSource configures the collateral accounting capability.
func (e *Engine) SetCollateralSource(collateral CollateralSource) {
	if e == nil {
		return
	}
	e.collateral = collateral
}

// SetPrices configures the collateral price source.
func (e *Engine) SetPrices(prices PriceSource) {
	if e == nil {
		return
	}
	e.prices = prices
}

// SetPauses wires the system suspension view.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetParams installs the governance-controlled liquidation settings.
func (e *Engine) SetParams(params Params) {
	if e == nil {
		return
	}
	e.params = params.Clone()
}

// SetNowFunc overrides the time source. Primarily intended for tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if e == nil {
		return
	}
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// position captures the inputs of a ratio check, resolved once per operation.
type position struct {
	debt         *big.Int
	price        *big.Int
	liquid       *big.Int
	escrow       []EscrowEntry
	escrowTotal  *big.Int
	eligible     *big.Int // liquid plus escrow for third-party paths
	eligibleSelf *big.Int // liquid only
}

func (p position) collateralValue(amount *big.Int) *big.Int {
	return fixedpoint.Mul(amount, p.price)
}

// Flag opens the liquidation window against an undercollateralized account.
// The flagger is rewarded at execution time, and only if execution succeeds.
func (e *Engine) Flag(caller, account crypto.Address) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if err := e.checkParams(); err != nil {
		return err
	}
	existing, err := e.state.LiquidationEntry(account)
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrAlreadyFlagged
	}

	pos, err := e.loadPosition(account, true)
	if err != nil {
		return err
	}
	if pos.debt.Sign() == 0 {
		return errNoDebt
	}
	if !exceedsRatio(pos.debt, pos.collateralValue(pos.eligible), e.params.LiquidationRatio) {
		return ErrRatioHealthy
	}
	// A position that cannot pay its own liquidation reward is not worth
	// flagging; the check runs against liquid balance only.
	if pos.liquid.Cmp(e.rewardFloor()) < 0 {
		return ErrRewardNotCovered
	}

	deadline := e.now() + e.params.Delay
	entry := &Entry{Deadline: deadline, Caller: caller}
	if err := e.state.PutLiquidationEntry(account, entry); err != nil {
		return err
	}
	e.emit(AccountFlagged{Account: account, Caller: caller, Deadline: deadline})
	return nil
}

// CheckAndRemoveAccountInLiquidation clears the flag when the account ratio
// has recovered below the liquidation threshold. Callable by anyone and
// idempotent: an unflagged account is a no-op.
func (e *Engine) CheckAndRemoveAccountInLiquidation(account crypto.Address) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.checkParams(); err != nil {
		return err
	}
	entry, err := e.state.LiquidationEntry(account)
	if err != nil {
		return err
	}
	if entry == nil {
		return nil
	}
	pos, err := e.loadPosition(account, true)
	if err != nil {
		return err
	}
	if exceedsRatio(pos.debt, pos.collateralValue(pos.eligible), e.params.LiquidationRatio) {
		return nil
	}
	if err := e.state.DeleteLiquidationEntry(account); err != nil {
		return err
	}
	e.emit(FlagRemoved{Account: account, Reason: "recovered"})
	return nil
}

// IsLiquidationOpen reports whether a liquidation may execute right now. The
// self path ignores escrowed collateral and the flag deadline; the
// third-party path requires the deadline to have passed and counts escrow
// toward the reward floor.
func (e *Engine) IsLiquidationOpen(account crypto.Address, isSelf bool) (bool, error) {
	if e == nil || e.state == nil {
		return false, errNilState
	}
	if err := e.checkParams(); err != nil {
		return false, err
	}
	pos, err := e.loadPosition(account, !isSelf)
	if err != nil {
		return false, err
	}
	eligible := pos.eligible
	if isSelf {
		eligible = pos.eligibleSelf
	}
	if pos.debt.Sign() == 0 {
		return false, nil
	}
	if !exceedsRatio(pos.debt, pos.collateralValue(eligible), e.params.LiquidationRatio) {
		return false, nil
	}
	if isSelf {
		return pos.liquid.Sign() > 0, nil
	}
	entry, err := e.state.LiquidationEntry(account)
	if err != nil {
		return false, err
	}
	if entry == nil || e.now() < entry.Deadline {
		return false, nil
	}
	return eligible.Cmp(e.rewardFloor()) >= 0, nil
}

// CalculateAmountToFixCollateral returns the debt amount to redeem so the
// post-liquidation ratio equals the configured target ratio r, solving
// (debt-X)/(collateral-X*(1+penalty)) = r for X. Division truncates like all
// other protocol math. When the target is unreachable the full debt is
// returned.
func (e *Engine) CalculateAmountToFixCollateral(debt, collateralValue, penalty *big.Int) (*big.Int, error) {
	if e == nil {
		return nil, errNilState
	}
	if err := e.checkParams(); err != nil {
		return nil, err
	}
	return fixCollateralAmount(debt, collateralValue, e.params.TargetRatio, penalty), nil
}

func fixCollateralAmount(debt, collateralValue, targetRatio, penalty *big.Int) *big.Int {
	if debt == nil || debt.Sign() <= 0 {
		return big.NewInt(0)
	}
	dividend := new(big.Int).Sub(debt, fixedpoint.Mul(targetRatio, collateralValue))
	if dividend.Sign() <= 0 {
		return big.NewInt(0)
	}
	onePlusPenalty := new(big.Int).Add(fixedpoint.Unit(), penalty)
	divisor := new(big.Int).Sub(fixedpoint.Unit(), fixedpoint.Mul(targetRatio, onePlusPenalty))
	if divisor.Sign() <= 0 {
		return new(big.Int).Set(debt)
	}
	return fixedpoint.Div(dividend, divisor)
}

// Liquidate resolves an undercollateralized position. Self-liquidation uses
// the reduced penalty and only liquid collateral; third-party liquidation is
// deadline-gated, uses the full penalty and cascades into escrow when the
// liquid balance cannot cover the redemption. Insufficient collateral to
// reach the target ratio degrades to a partial liquidation instead of
// failing, leaving the flag open for another round.
func (e *Engine) Liquidate(caller, account crypto.Address, isSelf bool) (*big.Int, *big.Int, error) {
	if e == nil || e.state == nil {
		return nil, nil, errNilState
	}
	if e.debts == nil {
		return nil, nil, errNilDebts
	}
	if e.collateral == nil {
		return nil, nil, errNilCollateral
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, nil, err
	}
	if err := e.checkParams(); err != nil {
		return nil, nil, err
	}
	// Only the account itself may take the self path; everyone else goes
	// through the flag and deadline gate.
	if isSelf && !caller.Equal(account) {
		return nil, nil, ErrNotPositionOwner
	}

	pos, err := e.loadPosition(account, !isSelf)
	if err != nil {
		return nil, nil, err
	}
	if pos.debt.Sign() == 0 {
		return nil, nil, errNoDebt
	}

	entry, err := e.state.LiquidationEntry(account)
	if err != nil {
		return nil, nil, err
	}

	penalty := e.params.Penalty
	eligible := pos.eligible
	if isSelf {
		penalty = e.params.SelfPenalty
		eligible = pos.eligibleSelf
	} else {
		if entry == nil {
			return nil, nil, ErrNotFlagged
		}
		if e.now() < entry.Deadline {
			return nil, nil, ErrDeadlineNotPassed
		}
	}

	if !exceedsRatio(pos.debt, pos.collateralValue(eligible), e.params.LiquidationRatio) {
		// The ratio recovered since flagging; resolve the entry instead
		// of redeeming anything.
		if entry != nil {
			if err := e.state.DeleteLiquidationEntry(account); err != nil {
				return nil, nil, err
			}
			e.emit(FlagRemoved{Account: account, Reason: "recovered"})
		}
		return nil, nil, ErrRatioHealthy
	}
	if isSelf && pos.liquid.Sign() == 0 {
		return nil, nil, ErrCannotSelfLiquidate
	}
	if !isSelf && eligible.Cmp(e.rewardFloor()) < 0 {
		return nil, nil, ErrRewardNotCovered
	}

	debtToRemove := fixCollateralAmount(pos.debt, pos.collateralValue(eligible), e.params.TargetRatio, penalty)
	if debtToRemove.Cmp(pos.debt) > 0 {
		debtToRemove = new(big.Int).Set(pos.debt)
	}
	onePlusPenalty := new(big.Int).Add(fixedpoint.Unit(), penalty)
	collateralToRedeem := fixedpoint.Div(fixedpoint.Mul(debtToRemove, onePlusPenalty), pos.price)
	if collateralToRedeem.Cmp(eligible) > 0 {
		// Partial liquidation: redeem everything available and reduce
		// debt proportionally.
		collateralToRedeem = new(big.Int).Set(eligible)
		debtToRemove = fixedpoint.Div(pos.collateralValue(eligible), onePlusPenalty)
		if debtToRemove.Cmp(pos.debt) > 0 {
			debtToRemove = new(big.Int).Set(pos.debt)
		}
	}
	if debtToRemove.Sign() <= 0 || collateralToRedeem.Sign() <= 0 {
		return nil, nil, ErrRatioHealthy
	}

	if err := e.debts.BurnDebt(account, debtToRemove); err != nil {
		return nil, nil, err
	}

	if !isSelf && collateralToRedeem.Cmp(pos.liquid) > 0 {
		if err := e.releaseEscrow(account, new(big.Int).Sub(collateralToRedeem, pos.liquid), pos.escrow); err != nil {
			return nil, nil, err
		}
	}

	if err := e.payout(caller, account, entry, collateralToRedeem, isSelf); err != nil {
		return nil, nil, err
	}

	postDebt := new(big.Int).Sub(pos.debt, debtToRemove)
	postCollateral := new(big.Int).Sub(eligible, collateralToRedeem)
	if entry != nil {
		if postDebt.Sign() == 0 || !exceedsRatio(postDebt, pos.collateralValue(postCollateral), e.params.LiquidationRatio) {
			if err := e.state.DeleteLiquidationEntry(account); err != nil {
				return nil, nil, err
			}
			e.emit(FlagRemoved{Account: account, Reason: "liquidated"})
		}
	}

	e.emit(AccountLiquidated{
		Account:    account,
		Caller:     caller,
		DebtBurned: debtToRemove,
		Collateral: collateralToRedeem,
		Self:       isSelf,
	})
	return debtToRemove, collateralToRedeem, nil
}

// GetLiquidationDeadlineForAccount returns the flag deadline, or zero when
// the account is not flagged.
func (e *Engine) GetLiquidationDeadlineForAccount(account crypto.Address) (int64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	entry, err := e.state.LiquidationEntry(account)
	if err != nil {
		return 0, err
	}
	if entry == nil {
		return 0, nil
	}
	return entry.Deadline, nil
}

// GetLiquidationCallerForAccount returns the flagging address, or the zero
// address when the account is not flagged.
func (e *Engine) GetLiquidationCallerForAccount(account crypto.Address) (crypto.Address, error) {
	if e == nil || e.state == nil {
		return crypto.Address{}, errNilState
	}
	entry, err := e.state.LiquidationEntry(account)
	if err != nil {
		return crypto.Address{}, err
	}
	if entry == nil {
		return crypto.Address{}, nil
	}
	return entry.Caller, nil
}

// releaseEscrow revokes escrow entries oldest-first until the needed amount
// is covered, splitting the final entry so the account keeps unredeemed
// escrow under the original maturity.
func (e *Engine) releaseEscrow(account crypto.Address, needed *big.Int, entries []EscrowEntry) error {
	remaining := new(big.Int).Set(needed)
	for _, esc := range entries {
		if remaining.Sign() <= 0 {
			return nil
		}
		amount := esc.Amount
		if amount == nil || amount.Sign() <= 0 {
			continue
		}
		if amount.Cmp(remaining) <= 0 {
			if err := e.collateral.RevokeEscrowEntry(account, esc.ID, amount); err != nil {
				return err
			}
			remaining.Sub(remaining, amount)
			continue
		}
		// Split: revoke the whole entry, then re-deposit the surplus as a
		// fresh entry with the same maturity.
		if err := e.collateral.RevokeEscrowEntry(account, esc.ID, amount); err != nil {
			return err
		}
		surplus := new(big.Int).Sub(amount, remaining)
		if err := e.collateral.DepositEscrow(account, surplus, esc.Maturity); err != nil {
			return err
		}
		remaining.SetInt64(0)
	}
	return nil
}

// payout distributes the redeemed collateral: flag and liquidate rewards for
// third-party liquidations, with the remainder routed to the rewards pool.
func (e *Engine) payout(caller, account crypto.Address, entry *Entry, redeemed *big.Int, isSelf bool) error {
	remaining := new(big.Int).Set(redeemed)
	if !isSelf && entry != nil {
		flagReward := capAmount(e.params.FlagReward, remaining)
		if flagReward.Sign() > 0 {
			if err := e.collateral.TransferCollateral(account, entry.Caller, flagReward); err != nil {
				return err
			}
			remaining.Sub(remaining, flagReward)
		}
		liqReward := capAmount(e.params.LiquidateReward, remaining)
		if liqReward.Sign() > 0 {
			if err := e.collateral.TransferCollateral(account, caller, liqReward); err != nil {
				return err
			}
			remaining.Sub(remaining, liqReward)
		}
	}
	if remaining.Sign() > 0 {
		return e.collateral.TransferCollateral(account, e.params.RewardsPool, remaining)
	}
	return nil
}

func (e *Engine) loadPosition(account crypto.Address, withEscrow bool) (position, error) {
	if e.debts == nil {
		return position{}, errNilDebts
	}
	if e.collateral == nil {
		return position{}, errNilCollateral
	}
	if e.prices == nil {
		return position{}, errNilPrices
	}
	debt, invalid, err := e.debts.DebtBalanceOf(account)
	if err != nil {
		return position{}, err
	}
	price, stale, err := e.prices.PriceOf(e.collateralAsset)
	if err != nil {
		return position{}, err
	}
	if invalid || stale {
		return position{}, ErrStaleRate
	}
	liquid, err := e.collateral.LiquidBalanceOf(account)
	if err != nil {
		return position{}, err
	}
	pos := position{
		debt:         orZero(debt),
		price:        orZero(price),
		liquid:       orZero(liquid),
		escrowTotal:  big.NewInt(0),
		eligibleSelf: orZero(liquid),
	}
	if withEscrow {
		entries, err := e.collateral.EscrowEntriesOf(account)
		if err != nil {
			return position{}, err
		}
		pos.escrow = entries
		for _, esc := range entries {
			if esc.Amount != nil {
				pos.escrowTotal.Add(pos.escrowTotal, esc.Amount)
			}
		}
	}
	pos.eligible = new(big.Int).Add(pos.liquid, pos.escrowTotal)
	return pos, nil
}

func (e *Engine) checkParams() error {
	p := e.params
	if p.LiquidationRatio == nil || p.LiquidationRatio.Sign() == 0 {
		return ErrConfigurationMissing
	}
	if p.TargetRatio == nil || p.TargetRatio.Sign() == 0 {
		return ErrConfigurationMissing
	}
	if p.Delay <= 0 {
		return ErrConfigurationMissing
	}
	return nil
}

func (e *Engine) rewardFloor() *big.Int {
	floor := new(big.Int)
	if e.params.FlagReward != nil {
		floor.Add(floor, e.params.FlagReward)
	}
	if e.params.LiquidateReward != nil {
		floor.Add(floor, e.params.LiquidateReward)
	}
	return floor
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(evt)
}

// exceedsRatio reports debt/collateralValue > threshold via
// cross-multiplication, so zero collateral with positive debt counts as
// exceeded rather than faulting on division.
func exceedsRatio(debt, collateralValue, threshold *big.Int) bool {
	if debt == nil || debt.Sign() == 0 {
		return false
	}
	return debt.Cmp(fixedpoint.Mul(threshold, collateralValue)) > 0
}

func capAmount(v, limit *big.Int) *big.Int {
	if v == nil || v.Sign() <= 0 {
		return big.NewInt(0)
	}
	if limit != nil && v.Cmp(limit) > 0 {
		return new(big.Int).Set(limit)
	}
	return new(big.Int).Set(v)
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
