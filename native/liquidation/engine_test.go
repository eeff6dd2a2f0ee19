package liquidation

import (
	"errors"
	"fmt"
	"math/big"
	"testing"

	"tribecore/core/events"
	"tribecore/core/fixedpoint"
	"tribecore/crypto"
)

type mockEngineState struct {
	entries map[string]*Entry
}

func newMockEngineState() *mockEngineState {
	return &mockEngineState{entries: make(map[string]*Entry)}
}

func (m *mockEngineState) LiquidationEntry(addr crypto.Address) (*Entry, error) {
	return m.entries[addr.String()].Clone(), nil
}

func (m *mockEngineState) PutLiquidationEntry(addr crypto.Address, entry *Entry) error {
	m.entries[addr.String()] = entry.Clone()
	return nil
}

func (m *mockEngineState) DeleteLiquidationEntry(addr crypto.Address) error {
	delete(m.entries, addr.String())
	return nil
}

type mockDebts struct {
	debts   map[string]*big.Int
	invalid bool
	burned  *big.Int
}

func newMockDebts() *mockDebts {
	return &mockDebts{debts: make(map[string]*big.Int), burned: big.NewInt(0)}
}

func (m *mockDebts) DebtBalanceOf(account crypto.Address) (*big.Int, bool, error) {
	debt := m.debts[account.String()]
	if debt == nil {
		debt = big.NewInt(0)
	}
	return new(big.Int).Set(debt), m.invalid, nil
}

func (m *mockDebts) BurnDebt(account crypto.Address, amount *big.Int) error {
	debt := m.debts[account.String()]
	if debt == nil || debt.Cmp(amount) < 0 {
		return errors.New("burn exceeds debt")
	}
	m.debts[account.String()] = new(big.Int).Sub(debt, amount)
	m.burned = new(big.Int).Add(m.burned, amount)
	return nil
}

type mockCollateral struct {
	liquid map[string]*big.Int
	escrow map[string][]EscrowEntry
	nextID uint64
}

func newMockCollateral() *mockCollateral {
	return &mockCollateral{
		liquid: make(map[string]*big.Int),
		escrow: make(map[string][]EscrowEntry),
		nextID: 100,
	}
}

func (m *mockCollateral) credit(account crypto.Address, amount *big.Int) {
	key := account.String()
	if m.liquid[key] == nil {
		m.liquid[key] = big.NewInt(0)
	}
	m.liquid[key] = new(big.Int).Add(m.liquid[key], amount)
}

func (m *mockCollateral) addEscrow(account crypto.Address, id uint64, amount *big.Int, maturity int64) {
	key := account.String()
	m.escrow[key] = append(m.escrow[key], EscrowEntry{ID: id, Amount: new(big.Int).Set(amount), Maturity: maturity})
}

func (m *mockCollateral) LiquidBalanceOf(account crypto.Address) (*big.Int, error) {
	if balance := m.liquid[account.String()]; balance != nil {
		return new(big.Int).Set(balance), nil
	}
	return big.NewInt(0), nil
}

func (m *mockCollateral) TransferCollateral(from, to crypto.Address, amount *big.Int) error {
	balance, _ := m.LiquidBalanceOf(from)
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("insufficient liquid balance: %s < %s", balance, amount)
	}
	m.liquid[from.String()] = new(big.Int).Sub(balance, amount)
	m.credit(to, amount)
	return nil
}

func (m *mockCollateral) EscrowEntriesOf(account crypto.Address) ([]EscrowEntry, error) {
	entries := m.escrow[account.String()]
	out := make([]EscrowEntry, len(entries))
	for i, esc := range entries {
		out[i] = EscrowEntry{ID: esc.ID, Amount: new(big.Int).Set(esc.Amount), Maturity: esc.Maturity}
	}
	return out, nil
}

func (m *mockCollateral) RevokeEscrowEntry(account crypto.Address, entryID uint64, amount *big.Int) error {
	key := account.String()
	for i, esc := range m.escrow[key] {
		if esc.ID != entryID {
			continue
		}
		if esc.Amount.Cmp(amount) != 0 {
			return errors.New("revocation must cover the whole entry")
		}
		m.escrow[key] = append(m.escrow[key][:i], m.escrow[key][i+1:]...)
		m.credit(account, amount)
		return nil
	}
	return errors.New("escrow entry not found")
}

func (m *mockCollateral) DepositEscrow(account crypto.Address, amount *big.Int, maturity int64) error {
	balance, _ := m.LiquidBalanceOf(account)
	if balance.Cmp(amount) < 0 {
		return errors.New("insufficient liquid balance for escrow")
	}
	m.liquid[account.String()] = new(big.Int).Sub(balance, amount)
	m.nextID++
	m.addEscrow(account, m.nextID, amount, maturity)
	return nil
}

type mockPrices struct {
	price *big.Int
	stale bool
}

func (m *mockPrices) PriceOf(string) (*big.Int, bool, error) {
	return new(big.Int).Set(m.price), m.stale, nil
}

func testAddr(fill byte) crypto.Address {
	b := make([]byte, crypto.AddressLength)
	for i := range b {
		b[i] = fill
	}
	return crypto.NewAddress(crypto.TribePrefix, b)
}

var (
	debtor     = testAddr(0xaa)
	flagger    = testAddr(0xbb)
	liquidator = testAddr(0xcc)
	pool       = testAddr(0xee)
)

func fp(v int64) *big.Int { return fixedpoint.FromInt(v) }

func dec(t *testing.T, value string) *big.Int {
	t.Helper()
	v, err := fixedpoint.ParseDecimal(value)
	if err != nil {
		t.Fatalf("parse %q: %v", value, err)
	}
	return v
}

func testParams(t *testing.T) Params {
	return Params{
		LiquidationRatio: dec(t, "0.4"),
		TargetRatio:      dec(t, "0.125"),
		Delay:            100,
		Penalty:          dec(t, "0.1"),
		SelfPenalty:      dec(t, "0.02"),
		FlagReward:       fp(2),
		LiquidateReward:  fp(3),
		RewardsPool:      pool,
	}
}

type engineEnv struct {
	engine     *Engine
	state      *mockEngineState
	debts      *mockDebts
	collateral *mockCollateral
	prices     *mockPrices
	recorder   *events.Recorder
	now        int64
}

func newEngineEnv(t *testing.T) *engineEnv {
	env := &engineEnv{
		state:      newMockEngineState(),
		debts:      newMockDebts(),
		collateral: newMockCollateral(),
		prices:     &mockPrices{price: fp(1)},
		recorder:   &events.Recorder{},
		now:        1000,
	}
	env.engine = NewEngine("TRB")
	env.engine.SetState(env.state)
	env.engine.SetDebtSource(env.debts)
	env.engine.SetCollateralSource(env.collateral)
	env.engine.SetPrices(env.prices)
	env.engine.SetParams(testParams(t))
	env.engine.SetEmitter(env.recorder)
	env.engine.SetNowFunc(func() int64 { return env.now })
	return env
}

func mustBig(t *testing.T, value string) *big.Int {
	t.Helper()
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		t.Fatalf("invalid big integer %q", value)
	}
	return v
}

func TestCalculateAmountToFixCollateral(t *testing.T) {
	env := newEngineEnv(t)

	// (300 - 0.125*600) / (1 - 0.125*1.1) with truncating division.
	got, err := env.engine.CalculateAmountToFixCollateral(fp(300), fp(600), dec(t, "0.1"))
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	want := mustBig(t, "260869565217391304347")
	if got.Cmp(want) != 0 {
		t.Fatalf("fix amount = %s, want %s", got, want)
	}

	// Redeeming X at the penalty restores the target ratio.
	postDebt := new(big.Int).Sub(fp(300), got)
	postCollateral := new(big.Int).Sub(fp(600), fixedpoint.Mul(got, dec(t, "1.1")))
	ratio := fixedpoint.Div(postDebt, postCollateral)
	if diff := new(big.Int).Sub(dec(t, "0.125"), ratio); diff.CmpAbs(big.NewInt(10)) > 0 {
		t.Fatalf("post ratio %s not at target", fixedpoint.FormatDecimal(ratio))
	}
}

func TestCalculateAmountEdgeCases(t *testing.T) {
	env := newEngineEnv(t)

	// Already at or below target: nothing to redeem.
	got, err := env.engine.CalculateAmountToFixCollateral(fp(50), fp(600), dec(t, "0.1"))
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if got.Sign() != 0 {
		t.Fatalf("healthy position fix amount = %s, want 0", got)
	}

	// Unreachable target: the whole debt is redeemed.
	params := testParams(t)
	params.TargetRatio = dec(t, "0.5")
	env.engine.SetParams(params)
	got, err = env.engine.CalculateAmountToFixCollateral(fp(300), fp(100), fp(1))
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if got.Cmp(fp(300)) != 0 {
		t.Fatalf("unreachable target fix amount = %s, want full debt", got)
	}
}

func TestCalculateRequiresConfiguration(t *testing.T) {
	env := newEngineEnv(t)
	env.engine.SetParams(Params{})

	if _, err := env.engine.CalculateAmountToFixCollateral(fp(300), fp(600), fp(0)); !errors.Is(err, ErrConfigurationMissing) {
		t.Fatalf("expected ErrConfigurationMissing, got %v", err)
	}
	if err := env.engine.Flag(flagger, debtor); !errors.Is(err, ErrConfigurationMissing) {
		t.Fatalf("expected ErrConfigurationMissing, got %v", err)
	}
}

func TestFlagLifecycle(t *testing.T) {
	env := newEngineEnv(t)
	env.debts.debts[debtor.String()] = fp(300)
	env.collateral.credit(debtor, fp(600))

	if err := env.engine.Flag(flagger, debtor); err != nil {
		t.Fatalf("flag: %v", err)
	}
	deadline, err := env.engine.GetLiquidationDeadlineForAccount(debtor)
	if err != nil {
		t.Fatalf("deadline: %v", err)
	}
	if deadline != 1100 {
		t.Fatalf("deadline = %d, want 1100", deadline)
	}
	caller, err := env.engine.GetLiquidationCallerForAccount(debtor)
	if err != nil {
		t.Fatalf("caller: %v", err)
	}
	if !caller.Equal(flagger) {
		t.Fatalf("caller = %s, want flagger", caller)
	}

	if err := env.engine.Flag(liquidator, debtor); !errors.Is(err, ErrAlreadyFlagged) {
		t.Fatalf("expected ErrAlreadyFlagged, got %v", err)
	}
}

func TestFlagRejectsHealthyAndBoundaryRatio(t *testing.T) {
	env := newEngineEnv(t)
	env.debts.debts[debtor.String()] = fp(240)
	env.collateral.credit(debtor, fp(600))

	// Exactly at the threshold (240/600 = 0.4) is still healthy; the ratio
	// must strictly exceed it.
	if err := env.engine.Flag(flagger, debtor); !errors.Is(err, ErrRatioHealthy) {
		t.Fatalf("expected ErrRatioHealthy, got %v", err)
	}

	env.debts.debts[debtor.String()] = new(big.Int).Add(fp(240), big.NewInt(1))
	if err := env.engine.Flag(flagger, debtor); err != nil {
		t.Fatalf("one wei over the threshold must flag: %v", err)
	}
}

func TestFlagRejectsNoDebtAndUncoveredRewards(t *testing.T) {
	env := newEngineEnv(t)

	if err := env.engine.Flag(flagger, debtor); err == nil {
		t.Fatal("flagging a debt-free account must fail")
	}

	env.debts.debts[debtor.String()] = fp(300)
	env.collateral.credit(debtor, fp(4))
	if err := env.engine.Flag(flagger, debtor); !errors.Is(err, ErrRewardNotCovered) {
		t.Fatalf("expected ErrRewardNotCovered, got %v", err)
	}
}

func TestFlagRejectsStaleInputs(t *testing.T) {
	env := newEngineEnv(t)
	env.debts.debts[debtor.String()] = fp(300)
	env.collateral.credit(debtor, fp(600))

	env.prices.stale = true
	if err := env.engine.Flag(flagger, debtor); !errors.Is(err, ErrStaleRate) {
		t.Fatalf("expected ErrStaleRate for stale price, got %v", err)
	}

	env.prices.stale = false
	env.debts.invalid = true
	if err := env.engine.Flag(flagger, debtor); !errors.Is(err, ErrStaleRate) {
		t.Fatalf("expected ErrStaleRate for invalid debt, got %v", err)
	}
}

func TestThirdPartyLiquidationSettlesRewards(t *testing.T) {
	env := newEngineEnv(t)
	env.debts.debts[debtor.String()] = fp(300)
	env.collateral.credit(debtor, fp(600))

	if err := env.engine.Flag(flagger, debtor); err != nil {
		t.Fatalf("flag: %v", err)
	}

	env.now = 1050
	if _, _, err := env.engine.Liquidate(liquidator, debtor, false); !errors.Is(err, ErrDeadlineNotPassed) {
		t.Fatalf("expected ErrDeadlineNotPassed, got %v", err)
	}

	env.now = 1200
	open, err := env.engine.IsLiquidationOpen(debtor, false)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !open {
		t.Fatal("liquidation should be open after the deadline")
	}

	removed, redeemed, err := env.engine.Liquidate(liquidator, debtor, false)
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	wantRemoved := mustBig(t, "260869565217391304347")
	wantRedeemed := mustBig(t, "286956521739130434781")
	if removed.Cmp(wantRemoved) != 0 {
		t.Fatalf("debt removed = %s, want %s", removed, wantRemoved)
	}
	if redeemed.Cmp(wantRedeemed) != 0 {
		t.Fatalf("collateral redeemed = %s, want %s", redeemed, wantRedeemed)
	}

	if got := env.collateral.liquid[flagger.String()]; got.Cmp(fp(2)) != 0 {
		t.Fatalf("flag reward = %s, want 2", got)
	}
	if got := env.collateral.liquid[liquidator.String()]; got.Cmp(fp(3)) != 0 {
		t.Fatalf("liquidate reward = %s, want 3", got)
	}
	wantPool := new(big.Int).Sub(wantRedeemed, fp(5))
	if got := env.collateral.liquid[pool.String()]; got.Cmp(wantPool) != 0 {
		t.Fatalf("pool payout = %s, want %s", got, wantPool)
	}
	if got := env.debts.burned; got.Cmp(wantRemoved) != 0 {
		t.Fatalf("burned = %s, want %s", got, wantRemoved)
	}

	// The position is back at the target ratio, so the flag is resolved.
	if entry := env.state.entries[debtor.String()]; entry != nil {
		t.Fatal("flag must be removed after a full liquidation")
	}
	if _, _, err := env.engine.Liquidate(liquidator, debtor, false); !errors.Is(err, ErrNotFlagged) {
		t.Fatalf("expected ErrNotFlagged, got %v", err)
	}
}

func TestSelfLiquidationSkipsRewardsAndEscrow(t *testing.T) {
	env := newEngineEnv(t)
	env.debts.debts[debtor.String()] = fp(300)
	env.collateral.credit(debtor, fp(400))
	env.collateral.addEscrow(debtor, 1, fp(200), 5000)

	// No flag required for the self path, and escrowed collateral is
	// ignored both for the ratio and the redemption.
	removed, redeemed, err := env.engine.Liquidate(debtor, debtor, true)
	if err != nil {
		t.Fatalf("self liquidate: %v", err)
	}
	if removed.Sign() <= 0 || redeemed.Sign() <= 0 {
		t.Fatalf("unexpected amounts: removed=%s redeemed=%s", removed, redeemed)
	}

	// X = (300 - 0.125*400) / (1 - 0.125*1.02), redeemed = X*1.02.
	wantRemoved := mustBig(t, "286532951289398280802")
	if removed.Cmp(wantRemoved) != 0 {
		t.Fatalf("debt removed = %s, want %s", removed, wantRemoved)
	}
	if redeemed.Cmp(fixedpoint.Mul(wantRemoved, dec(t, "1.02"))) != 0 {
		t.Fatalf("redeemed = %s, want X*1.02", redeemed)
	}

	// Everything redeemed goes to the pool; no rewards on the self path.
	if got := env.collateral.liquid[pool.String()]; got.Cmp(redeemed) != 0 {
		t.Fatalf("pool payout = %s, want %s", got, redeemed)
	}
	if env.collateral.liquid[flagger.String()] != nil {
		t.Fatal("no flag reward on self liquidation")
	}
	entries, _ := env.collateral.EscrowEntriesOf(debtor)
	if len(entries) != 1 || entries[0].Amount.Cmp(fp(200)) != 0 {
		t.Fatalf("escrow must be untouched, got %+v", entries)
	}
}

func TestSelfLiquidationRequiresPositionOwner(t *testing.T) {
	env := newEngineEnv(t)
	env.debts.debts[debtor.String()] = fp(300)
	env.collateral.credit(debtor, fp(600))

	// A stranger taking the self path would bypass the flag and deadline
	// gate at the reduced penalty.
	if _, _, err := env.engine.Liquidate(liquidator, debtor, true); !errors.Is(err, ErrNotPositionOwner) {
		t.Fatalf("expected ErrNotPositionOwner, got %v", err)
	}
	if got := env.collateral.liquid[debtor.String()]; got.Cmp(fp(600)) != 0 {
		t.Fatalf("debtor liquid = %s, want untouched 600", got)
	}
	if env.debts.burned.Sign() != 0 {
		t.Fatalf("burned = %s, want 0", env.debts.burned)
	}

	// The account itself still may.
	if _, _, err := env.engine.Liquidate(debtor, debtor, true); err != nil {
		t.Fatalf("owner self liquidate: %v", err)
	}
}

func TestSelfLiquidationNeedsLiquidCollateral(t *testing.T) {
	env := newEngineEnv(t)
	env.debts.debts[debtor.String()] = fp(300)
	env.collateral.addEscrow(debtor, 1, fp(600), 5000)

	if _, _, err := env.engine.Liquidate(debtor, debtor, true); !errors.Is(err, ErrCannotSelfLiquidate) {
		t.Fatalf("expected ErrCannotSelfLiquidate, got %v", err)
	}
	open, err := env.engine.IsLiquidationOpen(debtor, true)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if open {
		t.Fatal("self liquidation must not be open with zero liquid balance")
	}
}

// Escrow-only accounts are still reachable through the third-party path.
func TestThirdPartyLiquidationCascadesIntoEscrow(t *testing.T) {
	env := newEngineEnv(t)
	params := testParams(t)
	params.FlagReward = nil
	params.LiquidateReward = nil
	env.engine.SetParams(params)

	env.debts.debts[debtor.String()] = fp(300)
	env.collateral.addEscrow(debtor, 1, fp(200), 5000)
	env.collateral.addEscrow(debtor, 2, fp(400), 6000)

	if err := env.engine.Flag(flagger, debtor); err != nil {
		t.Fatalf("flag: %v", err)
	}
	env.now = 1200

	removed, redeemed, err := env.engine.Liquidate(liquidator, debtor, false)
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	wantRemoved := mustBig(t, "260869565217391304347")
	wantRedeemed := mustBig(t, "286956521739130434781")
	if removed.Cmp(wantRemoved) != 0 || redeemed.Cmp(wantRedeemed) != 0 {
		t.Fatalf("removed=%s redeemed=%s", removed, redeemed)
	}

	// The oldest entry is consumed whole; the second is split with the
	// surplus re-deposited under its original maturity.
	entries, _ := env.collateral.EscrowEntriesOf(debtor)
	if len(entries) != 1 {
		t.Fatalf("expected one surviving escrow entry, got %d", len(entries))
	}
	wantSurplus := new(big.Int).Sub(fp(600), wantRedeemed)
	if entries[0].Amount.Cmp(wantSurplus) != 0 {
		t.Fatalf("surplus escrow = %s, want %s", entries[0].Amount, wantSurplus)
	}
	if entries[0].Maturity != 6000 {
		t.Fatalf("surplus maturity = %d, want 6000", entries[0].Maturity)
	}
	if entries[0].ID == 2 {
		t.Fatal("split must create a fresh entry")
	}

	// With no rewards configured the entire redemption reaches the pool,
	// and the debtor keeps no liquid balance.
	if got := env.collateral.liquid[pool.String()]; got.Cmp(wantRedeemed) != 0 {
		t.Fatalf("pool payout = %s, want %s", got, wantRedeemed)
	}
	if got := env.collateral.liquid[debtor.String()]; got.Sign() != 0 {
		t.Fatalf("debtor liquid = %s, want 0", got)
	}
}

func TestPartialLiquidationKeepsFlagOpen(t *testing.T) {
	env := newEngineEnv(t)
	params := testParams(t)
	params.TargetRatio = dec(t, "0.2")
	env.engine.SetParams(params)

	env.debts.debts[debtor.String()] = fp(500)
	env.collateral.credit(debtor, fp(100))

	if err := env.engine.Flag(flagger, debtor); err != nil {
		t.Fatalf("flag: %v", err)
	}
	env.now = 1200

	removed, redeemed, err := env.engine.Liquidate(liquidator, debtor, false)
	if err != nil {
		t.Fatalf("partial liquidate: %v", err)
	}
	if redeemed.Cmp(fp(100)) != 0 {
		t.Fatalf("redeemed = %s, want all 100", redeemed)
	}
	// debtToRemove degrades to collateralValue/(1+penalty).
	wantRemoved := mustBig(t, "90909090909090909090")
	if removed.Cmp(wantRemoved) != 0 {
		t.Fatalf("removed = %s, want %s", removed, wantRemoved)
	}

	if entry := env.state.entries[debtor.String()]; entry == nil {
		t.Fatal("flag must stay open after a partial liquidation")
	}
}

func TestLiquidateResolvesRecoveredPositions(t *testing.T) {
	env := newEngineEnv(t)
	env.debts.debts[debtor.String()] = fp(300)
	env.collateral.credit(debtor, fp(600))

	if err := env.engine.Flag(flagger, debtor); err != nil {
		t.Fatalf("flag: %v", err)
	}
	env.now = 1200
	env.debts.debts[debtor.String()] = fp(100)

	if _, _, err := env.engine.Liquidate(liquidator, debtor, false); !errors.Is(err, ErrRatioHealthy) {
		t.Fatalf("expected ErrRatioHealthy, got %v", err)
	}
	if entry := env.state.entries[debtor.String()]; entry != nil {
		t.Fatal("recovered position must lose its flag")
	}
}

func TestCheckAndRemoveAccountInLiquidation(t *testing.T) {
	env := newEngineEnv(t)
	env.debts.debts[debtor.String()] = fp(300)
	env.collateral.credit(debtor, fp(600))

	// Unflagged accounts are a no-op.
	if err := env.engine.CheckAndRemoveAccountInLiquidation(debtor); err != nil {
		t.Fatalf("unflagged check: %v", err)
	}

	if err := env.engine.Flag(flagger, debtor); err != nil {
		t.Fatalf("flag: %v", err)
	}
	// Still unhealthy: the flag stays.
	if err := env.engine.CheckAndRemoveAccountInLiquidation(debtor); err != nil {
		t.Fatalf("check: %v", err)
	}
	if env.state.entries[debtor.String()] == nil {
		t.Fatal("flag removed while still unhealthy")
	}

	env.debts.debts[debtor.String()] = fp(100)
	if err := env.engine.CheckAndRemoveAccountInLiquidation(debtor); err != nil {
		t.Fatalf("check after recovery: %v", err)
	}
	if env.state.entries[debtor.String()] != nil {
		t.Fatal("flag must be removed after recovery")
	}
}

func TestCheckAndRemoveRequiresConfiguration(t *testing.T) {
	env := newEngineEnv(t)
	env.debts.debts[debtor.String()] = fp(300)
	env.collateral.credit(debtor, fp(600))

	if err := env.engine.Flag(flagger, debtor); err != nil {
		t.Fatalf("flag: %v", err)
	}

	// With the ratio unset every debtor would read as unhealthy and the
	// flag would silently never clear; the gap must surface instead.
	env.engine.SetParams(Params{})
	err := env.engine.CheckAndRemoveAccountInLiquidation(debtor)
	if !errors.Is(err, ErrConfigurationMissing) {
		t.Fatalf("expected ErrConfigurationMissing, got %v", err)
	}
	if env.state.entries[debtor.String()] == nil {
		t.Fatal("flag must survive a rejected check")
	}
}

func TestUnflaggedQueriesReturnZeroValues(t *testing.T) {
	env := newEngineEnv(t)

	deadline, err := env.engine.GetLiquidationDeadlineForAccount(debtor)
	if err != nil {
		t.Fatalf("deadline: %v", err)
	}
	if deadline != 0 {
		t.Fatalf("deadline = %d, want 0", deadline)
	}
	caller, err := env.engine.GetLiquidationCallerForAccount(debtor)
	if err != nil {
		t.Fatalf("caller: %v", err)
	}
	if !caller.IsZero() {
		t.Fatalf("caller = %s, want zero address", caller)
	}
}

func TestLiquidationEventsEmitted(t *testing.T) {
	env := newEngineEnv(t)
	env.debts.debts[debtor.String()] = fp(300)
	env.collateral.credit(debtor, fp(600))

	if err := env.engine.Flag(flagger, debtor); err != nil {
		t.Fatalf("flag: %v", err)
	}
	env.now = 1200
	if _, _, err := env.engine.Liquidate(liquidator, debtor, false); err != nil {
		t.Fatalf("liquidate: %v", err)
	}

	var flagged, removed, liquidated bool
	for _, evt := range env.recorder.Events {
		switch e := evt.(type) {
		case AccountFlagged:
			flagged = e.Account.Equal(debtor) && e.Caller.Equal(flagger)
		case FlagRemoved:
			removed = e.Reason == "liquidated"
		case AccountLiquidated:
			liquidated = e.Caller.Equal(liquidator) && !e.Self
		}
	}
	if !flagged || !removed || !liquidated {
		t.Fatalf("missing events: flagged=%t removed=%t liquidated=%t", flagged, removed, liquidated)
	}
}

// Every liquidation event flattens into the generic attribute record.
var _ = []events.Payload{AccountFlagged{}, FlagRemoved{}, AccountLiquidated{}}

func TestEventPayloadAttributes(t *testing.T) {
	record := events.Flatten(AccountFlagged{Account: debtor, Caller: flagger, Deadline: 1100})
	if record.Type != EventTypeAccountFlagged {
		t.Fatalf("type = %s, want %s", record.Type, EventTypeAccountFlagged)
	}
	if record.Attributes["account"] != debtor.String() || record.Attributes["deadline"] != "1100" {
		t.Fatalf("unexpected attributes: %+v", record.Attributes)
	}

	record = events.Flatten(AccountLiquidated{Account: debtor, Caller: liquidator, DebtBurned: fp(3), Collateral: fp(4), Self: false})
	if record.Type != EventTypeAccountLiquidated || record.Attributes["self"] != "false" {
		t.Fatalf("unexpected liquidation record: %+v", record)
	}
	if record.Attributes["debtBurned"] != fp(3).String() || record.Attributes["collateral"] != fp(4).String() {
		t.Fatalf("unexpected amounts: %+v", record.Attributes)
	}
}
