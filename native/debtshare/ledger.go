package debtshare

import (
	"errors"
	"math/big"
	"sort"

	"tribecore/core/events"
	"tribecore/core/fixedpoint"
	"tribecore/crypto"
	nativecommon "tribecore/native/common"
)

var (
	errNilState       = errors.New("debt share ledger: state not configured")
	errNegativeAmount = errors.New("debt share ledger: amount must be non-negative")
	errLengthMismatch = errors.New("debt share ledger: addresses and balances length mismatch")
	errZeroAddress    = errors.New("debt share ledger: account address must not be zero")

	// ErrInsufficientBalance signals a burn or transfer exceeding the
	// account's current share balance.
	ErrInsufficientBalance = errors.New("debt share ledger: insufficient balance")
	// ErrHistoryNotFound signals a query for a period older than the
	// retained window.
	ErrHistoryNotFound = errors.New("debt share ledger: period outside retained history")
	// ErrPeriodNotMonotonic signals a snapshot id at or below the current
	// period id.
	ErrPeriodNotMonotonic = errors.New("debt share ledger: snapshot period must increase")
)

const moduleName = "debtshare"

// DefaultRetainedPeriods bounds the historical query window when no explicit
// depth is configured.
const DefaultRetainedPeriods = 256

type ledgerState interface {
	LedgerMeta() (*Meta, error)
	PutLedgerMeta(*Meta) error
	ShareAccount(addr crypto.Address) (*Account, error)
	PutShareAccount(*Account) error
	SupplyHistory() ([]Checkpoint, error)
	PutSupplyHistory([]Checkpoint) error
}

// Ledger owns per-account debt-share balances and the system-wide share
// supply, partitioned into sequential periods. Shares are not freely
// transferable; only the broker role may reassign them.
type Ledger struct {
	state    ledgerState
	auth     nativecommon.AuthProvider
	pauses   nativecommon.PauseView
	emitter  events.Emitter
	retained uint64
}

// NewLedger constructs a ledger retaining the supplied number of periods.
// Zero selects the default window depth.
func NewLedger(retainedPeriods uint64) *Ledger {
	if retainedPeriods == 0 {
		retainedPeriods = DefaultRetainedPeriods
	}
	return &Ledger{
		emitter:  events.NoopEmitter{},
		retained: retainedPeriods,
	}
}

// SetState wires the ledger to the external persistence layer.
func (l *Ledger) SetState(state ledgerState) { l.state = state }

// SetAuth configures the capability provider queried on every mutation.
func (l *Ledger) SetAuth(auth nativecommon.AuthProvider) {
	if l == nil {
		return
	}
	l.auth = auth
}

// SetPauses wires the system suspension view.
func (l *Ledger) SetPauses(p nativecommon.PauseView) {
	if l == nil {
		return
	}
	l.pauses = p
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if l == nil {
		return
	}
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

// RetainedPeriods reports the configured history window depth.
func (l *Ledger) RetainedPeriods() uint64 {
	if l == nil {
		return 0
	}
	return l.retained
}

// Mint increases the account's share balance and the total supply. Zero is a
// legal no-op; negative amounts are rejected. Restricted to the issuer.
func (l *Ledger) Mint(caller, account crypto.Address, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(l.pauses, moduleName); err != nil {
		return err
	}
	if err := nativecommon.RequireRole(l.auth, caller, nativecommon.RoleIssuer); err != nil {
		return err
	}
	if account.IsZero() {
		return errZeroAddress
	}
	if amount == nil || amount.Sign() < 0 {
		return errNegativeAmount
	}
	if amount.Sign() == 0 {
		return nil
	}

	meta, err := l.loadMeta()
	if err != nil {
		return err
	}
	acc, err := l.loadAccount(account)
	if err != nil {
		return err
	}

	acc.Balance = new(big.Int).Add(acc.Balance, amount)
	meta.TotalSupply = new(big.Int).Add(meta.TotalSupply, amount)

	if err := l.persist(meta, acc); err != nil {
		return err
	}
	l.emit(SharesMinted{Account: account, Amount: amount, Period: accrualPeriod(meta)})
	return nil
}

// Burn decreases the account's share balance and the total supply. Restricted
// to the issuer.
func (l *Ledger) Burn(caller, account crypto.Address, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(l.pauses, moduleName); err != nil {
		return err
	}
	if err := nativecommon.RequireRole(l.auth, caller, nativecommon.RoleIssuer); err != nil {
		return err
	}
	if account.IsZero() {
		return errZeroAddress
	}
	if amount == nil || amount.Sign() < 0 {
		return errNegativeAmount
	}
	if amount.Sign() == 0 {
		return nil
	}

	meta, err := l.loadMeta()
	if err != nil {
		return err
	}
	acc, err := l.loadAccount(account)
	if err != nil {
		return err
	}
	if acc.Balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}

	acc.Balance = new(big.Int).Sub(acc.Balance, amount)
	meta.TotalSupply = new(big.Int).Sub(meta.TotalSupply, amount)

	if err := l.persist(meta, acc); err != nil {
		return err
	}
	l.emit(SharesBurned{Account: account, Amount: amount, Period: accrualPeriod(meta)})
	return nil
}

// TakeSnapshot seals the running period under the supplied id. Changes made
// after the call accrue under the next period; balances carry forward
// unchanged. Restricted to the issuer and the snapshotter allow-list.
func (l *Ledger) TakeSnapshot(caller crypto.Address, newPeriodID uint64) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(l.pauses, moduleName); err != nil {
		return err
	}
	if err := nativecommon.RequireRole(l.auth, caller, nativecommon.RoleIssuer, nativecommon.RoleSnapshotter); err != nil {
		return err
	}

	meta, err := l.loadMeta()
	if err != nil {
		return err
	}
	if newPeriodID <= meta.CurrentPeriodID {
		return ErrPeriodNotMonotonic
	}
	previous := meta.CurrentPeriodID
	meta.CurrentPeriodID = newPeriodID

	supply, err := l.state.SupplyHistory()
	if err != nil {
		return err
	}
	supply = pruneCheckpoints(supply, oldestRetained(meta, l.retained))
	if err := l.state.PutSupplyHistory(supply); err != nil {
		return err
	}
	if err := l.state.PutLedgerMeta(meta); err != nil {
		return err
	}
	l.emit(SnapshotTaken{PreviousPeriod: previous, NewPeriod: newPeriodID, TotalSupply: meta.TotalSupply})
	return nil
}

// TransferFrom reassigns shares between accounts. Debt shares are not a
// freely tradable asset; only the broker role may move them.
func (l *Ledger) TransferFrom(caller, from, to crypto.Address, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(l.pauses, moduleName); err != nil {
		return err
	}
	if err := nativecommon.RequireRole(l.auth, caller, nativecommon.RoleBroker); err != nil {
		return err
	}
	if from.IsZero() || to.IsZero() {
		return errZeroAddress
	}
	if amount == nil || amount.Sign() < 0 {
		return errNegativeAmount
	}
	if amount.Sign() == 0 {
		return nil
	}

	meta, err := l.loadMeta()
	if err != nil {
		return err
	}
	fromAcc, err := l.loadAccount(from)
	if err != nil {
		return err
	}
	if fromAcc.Balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	toAcc, err := l.loadAccount(to)
	if err != nil {
		return err
	}

	fromAcc.Balance = new(big.Int).Sub(fromAcc.Balance, amount)
	toAcc.Balance = new(big.Int).Add(toAcc.Balance, amount)

	period := accrualPeriod(meta)
	oldest := oldestRetained(meta, l.retained)
	recordCheckpoint(fromAcc, period, oldest)
	recordCheckpoint(toAcc, period, oldest)
	if err := l.state.PutShareAccount(fromAcc); err != nil {
		return err
	}
	if err := l.state.PutShareAccount(toAcc); err != nil {
		return err
	}
	l.emit(SharesTransferred{From: from, To: to, Amount: amount, Period: period})
	return nil
}

// ImportAddresses sets absolute balances as a migration path. Each call
// recomputes the mint/burn delta against current state, so repeating a call
// with the same targets is a no-op. Restricted to the owner.
func (l *Ledger) ImportAddresses(caller crypto.Address, addrs []crypto.Address, balances []*big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(l.pauses, moduleName); err != nil {
		return err
	}
	if err := nativecommon.RequireRole(l.auth, caller, nativecommon.RoleOwner); err != nil {
		return err
	}
	if len(addrs) != len(balances) {
		return errLengthMismatch
	}

	meta, err := l.loadMeta()
	if err != nil {
		return err
	}
	period := accrualPeriod(meta)
	oldest := oldestRetained(meta, l.retained)
	changed := 0
	for i, addr := range addrs {
		if addr.IsZero() {
			return errZeroAddress
		}
		target := balances[i]
		if target == nil || target.Sign() < 0 {
			return errNegativeAmount
		}
		acc, err := l.loadAccount(addr)
		if err != nil {
			return err
		}
		if acc.Balance.Cmp(target) == 0 {
			continue
		}
		delta := new(big.Int).Sub(target, acc.Balance)
		acc.Balance = new(big.Int).Set(target)
		meta.TotalSupply = new(big.Int).Add(meta.TotalSupply, delta)
		recordCheckpoint(acc, period, oldest)
		if err := l.state.PutShareAccount(acc); err != nil {
			return err
		}
		changed++
	}
	if changed == 0 {
		return nil
	}
	supply, err := l.state.SupplyHistory()
	if err != nil {
		return err
	}
	supply = appendCheckpoint(supply, period, meta.TotalSupply)
	if err := l.state.PutSupplyHistory(pruneCheckpoints(supply, oldest)); err != nil {
		return err
	}
	if err := l.state.PutLedgerMeta(meta); err != nil {
		return err
	}
	l.emit(BalancesImported{Count: changed, TotalSupply: meta.TotalSupply, Period: period})
	return nil
}

// BalanceOf returns the live share balance for the account.
func (l *Ledger) BalanceOf(account crypto.Address) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	acc, err := l.state.ShareAccount(account)
	if err != nil {
		return nil, err
	}
	if acc == nil || acc.Balance == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(acc.Balance), nil
}

// TotalSupply returns the live share supply.
func (l *Ledger) TotalSupply() (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	meta, err := l.loadMeta()
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(meta.TotalSupply), nil
}

// CurrentPeriodID returns the id of the last sealed period.
func (l *Ledger) CurrentPeriodID() (uint64, error) {
	if l == nil || l.state == nil {
		return 0, errNilState
	}
	meta, err := l.loadMeta()
	if err != nil {
		return 0, err
	}
	return meta.CurrentPeriodID, nil
}

// BalanceOfOnPeriod resolves the account balance as of the supplied period
// via the sparse change history. The most recent recorded change at or
// before the period is authoritative; no record means zero.
func (l *Ledger) BalanceOfOnPeriod(account crypto.Address, periodID uint64) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	meta, err := l.loadMeta()
	if err != nil {
		return nil, err
	}
	if periodID < oldestRetained(meta, l.retained) {
		return nil, ErrHistoryNotFound
	}
	acc, err := l.state.ShareAccount(account)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return big.NewInt(0), nil
	}
	return lookupCheckpoint(acc.History, periodID), nil
}

// TotalSupplyOnPeriod resolves the share supply as of the supplied period.
func (l *Ledger) TotalSupplyOnPeriod(periodID uint64) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	meta, err := l.loadMeta()
	if err != nil {
		return nil, err
	}
	if periodID < oldestRetained(meta, l.retained) {
		return nil, ErrHistoryNotFound
	}
	supply, err := l.state.SupplyHistory()
	if err != nil {
		return nil, err
	}
	return lookupCheckpoint(supply, periodID), nil
}

// SharePercent returns the account's live proportional claim on system debt
// as an 18-decimal fraction. Zero supply yields zero, not a division fault.
func (l *Ledger) SharePercent(account crypto.Address) (*big.Int, error) {
	balance, err := l.BalanceOf(account)
	if err != nil {
		return nil, err
	}
	supply, err := l.TotalSupply()
	if err != nil {
		return nil, err
	}
	return fixedpoint.Div(balance, supply), nil
}

// SharePercentOnPeriod returns the account's proportional claim as of the
// supplied period.
func (l *Ledger) SharePercentOnPeriod(account crypto.Address, periodID uint64) (*big.Int, error) {
	balance, err := l.BalanceOfOnPeriod(account, periodID)
	if err != nil {
		return nil, err
	}
	supply, err := l.TotalSupplyOnPeriod(periodID)
	if err != nil {
		return nil, err
	}
	return fixedpoint.Div(balance, supply), nil
}

func (l *Ledger) loadMeta() (*Meta, error) {
	meta, err := l.state.LedgerMeta()
	if err != nil {
		return nil, err
	}
	if meta == nil {
		meta = &Meta{}
	}
	if meta.TotalSupply == nil {
		meta.TotalSupply = big.NewInt(0)
	}
	return meta, nil
}

func (l *Ledger) loadAccount(addr crypto.Address) (*Account, error) {
	acc, err := l.state.ShareAccount(addr)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		acc = &Account{Address: addr}
	}
	if acc.Balance == nil {
		acc.Balance = big.NewInt(0)
	}
	return acc, nil
}

// persist writes a balance mutation: the account checkpoint, the supply
// checkpoint and the meta record.
func (l *Ledger) persist(meta *Meta, acc *Account) error {
	period := accrualPeriod(meta)
	oldest := oldestRetained(meta, l.retained)
	recordCheckpoint(acc, period, oldest)
	if err := l.state.PutShareAccount(acc); err != nil {
		return err
	}
	supply, err := l.state.SupplyHistory()
	if err != nil {
		return err
	}
	supply = appendCheckpoint(supply, period, meta.TotalSupply)
	if err := l.state.PutSupplyHistory(pruneCheckpoints(supply, oldest)); err != nil {
		return err
	}
	return l.state.PutLedgerMeta(meta)
}

func (l *Ledger) emit(evt events.Event) {
	if l == nil || l.emitter == nil {
		return
	}
	l.emitter.Emit(evt)
}

// accrualPeriod is the id changes are recorded under: the period the next
// snapshot will seal.
func accrualPeriod(meta *Meta) uint64 {
	return meta.CurrentPeriodID + 1
}

func oldestRetained(meta *Meta, retained uint64) uint64 {
	accrual := accrualPeriod(meta)
	if accrual <= retained {
		return 0
	}
	return accrual - retained
}

func recordCheckpoint(acc *Account, period, oldest uint64) {
	acc.History = appendCheckpoint(acc.History, period, acc.Balance)
	acc.History = pruneCheckpoints(acc.History, oldest)
}

func appendCheckpoint(history []Checkpoint, period uint64, value *big.Int) []Checkpoint {
	entry := Checkpoint{Period: period, Value: new(big.Int).Set(value)}
	if n := len(history); n > 0 && history[n-1].Period == period {
		history[n-1] = entry
		return history
	}
	return append(history, entry)
}

// pruneCheckpoints drops entries superseded before the retained window. The
// latest entry at or before the oldest retained period survives as the base
// value for queries at the window edge.
func pruneCheckpoints(history []Checkpoint, oldest uint64) []Checkpoint {
	if oldest == 0 || len(history) == 0 {
		return history
	}
	idx := sort.Search(len(history), func(i int) bool {
		return history[i].Period > oldest
	})
	// idx is the first entry after the window edge; the entry before it is
	// the base and must be kept.
	if idx <= 1 {
		return history
	}
	return append(history[:0:0], history[idx-1:]...)
}

// lookupCheckpoint resolves the nearest entry at or before the period.
func lookupCheckpoint(history []Checkpoint, periodID uint64) *big.Int {
	idx := sort.Search(len(history), func(i int) bool {
		return history[i].Period > periodID
	})
	if idx == 0 {
		return big.NewInt(0)
	}
	if history[idx-1].Value == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(history[idx-1].Value)
}
