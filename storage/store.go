package storage

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"tribecore/crypto"
	"tribecore/native/debtcache"
	"tribecore/native/debtshare"
	"tribecore/native/liquidation"
)

type storedCheckpoint struct {
	Period uint64
	Value  string
}

type storedLedgerMeta struct {
	CurrentPeriodID uint64
	TotalSupply     string
}

type storedShareAccount struct {
	Prefix  string
	Address []byte
	Balance string
	History []storedCheckpoint
}

type storedSupplyHistory struct {
	Checkpoints []storedCheckpoint
}

type storedCacheAggregate struct {
	TotalDebt     string
	TotalExcluded string
	Timestamp     uint64
	Invalid       bool
}

type storedAssetEntry struct {
	Debt      string
	UpdatedAt uint64
}

type storedLiquidationEntry struct {
	Deadline     uint64
	CallerPrefix string
	Caller       []byte
}

// Store persists debt-share, debt-cache and liquidation state over a
// key-value database. It implements the state interfaces each engine
// declares, with records RLP-encoded under module-prefixed keys.
type Store struct {
	db Database
}

// NewStore constructs a Store backed by the provided database.
func NewStore(db Database) *Store {
	return &Store{db: db}
}

// --- debtshare state ---

// LedgerMeta loads the ledger counters, or nil when uninitialised.
func (s *Store) LedgerMeta() (*debtshare.Meta, error) {
	var stored storedLedgerMeta
	ok, err := s.load(ledgerMetaKey, &stored)
	if err != nil || !ok {
		return nil, err
	}
	supply, err := parseAmount(stored.TotalSupply)
	if err != nil {
		return nil, err
	}
	return &debtshare.Meta{CurrentPeriodID: stored.CurrentPeriodID, TotalSupply: supply}, nil
}

// PutLedgerMeta writes the ledger counters.
func (s *Store) PutLedgerMeta(meta *debtshare.Meta) error {
	if meta == nil {
		return fmt.Errorf("storage: ledger meta must not be nil")
	}
	return s.save(ledgerMetaKey, storedLedgerMeta{
		CurrentPeriodID: meta.CurrentPeriodID,
		TotalSupply:     formatAmount(meta.TotalSupply),
	})
}

// ShareAccount loads a debt-share account, or nil when the address has no
// recorded position.
func (s *Store) ShareAccount(addr crypto.Address) (*debtshare.Account, error) {
	var stored storedShareAccount
	ok, err := s.load(shareAccountKey(addr), &stored)
	if err != nil || !ok {
		return nil, err
	}
	balance, err := parseAmount(stored.Balance)
	if err != nil {
		return nil, err
	}
	history, err := decodeCheckpoints(stored.History)
	if err != nil {
		return nil, err
	}
	address, err := decodeStoredAddress(stored.Prefix, stored.Address)
	if err != nil {
		return nil, err
	}
	return &debtshare.Account{
		Address: address,
		Balance: balance,
		History: history,
	}, nil
}

// PutShareAccount writes a debt-share account.
func (s *Store) PutShareAccount(acc *debtshare.Account) error {
	if acc == nil {
		return fmt.Errorf("storage: share account must not be nil")
	}
	if err := checkStoredAddress(acc.Address); err != nil {
		return err
	}
	return s.save(shareAccountKey(acc.Address), storedShareAccount{
		Prefix:  string(acc.Address.Prefix()),
		Address: acc.Address.Bytes(),
		Balance: formatAmount(acc.Balance),
		History: encodeCheckpoints(acc.History),
	})
}

// SupplyHistory loads the total-supply checkpoint series.
func (s *Store) SupplyHistory() ([]debtshare.Checkpoint, error) {
	var stored storedSupplyHistory
	ok, err := s.load(ledgerSupplyKey, &stored)
	if err != nil || !ok {
		return nil, err
	}
	return decodeCheckpoints(stored.Checkpoints)
}

// PutSupplyHistory writes the total-supply checkpoint series.
func (s *Store) PutSupplyHistory(history []debtshare.Checkpoint) error {
	return s.save(ledgerSupplyKey, storedSupplyHistory{Checkpoints: encodeCheckpoints(history)})
}

// --- debtcache state ---

// CacheAggregate loads the aggregate cache record, or nil when no snapshot
// has ever been taken.
func (s *Store) CacheAggregate() (*debtcache.Aggregate, error) {
	var stored storedCacheAggregate
	ok, err := s.load(cacheAggregateKey, &stored)
	if err != nil || !ok {
		return nil, err
	}
	total, err := parseAmount(stored.TotalDebt)
	if err != nil {
		return nil, err
	}
	excluded, err := parseAmount(stored.TotalExcluded)
	if err != nil {
		return nil, err
	}
	return &debtcache.Aggregate{
		TotalDebt:     total,
		TotalExcluded: excluded,
		Timestamp:     int64(stored.Timestamp),
		Invalid:       stored.Invalid,
	}, nil
}

// PutCacheAggregate writes the aggregate cache record.
func (s *Store) PutCacheAggregate(agg *debtcache.Aggregate) error {
	if agg == nil {
		return fmt.Errorf("storage: cache aggregate must not be nil")
	}
	return s.save(cacheAggregateKey, storedCacheAggregate{
		TotalDebt:     formatAmount(agg.TotalDebt),
		TotalExcluded: formatAmount(agg.TotalExcluded),
		Timestamp:     uint64(agg.Timestamp),
		Invalid:       agg.Invalid,
	})
}

// AssetEntry loads the cached per-asset debt, or nil when untracked.
func (s *Store) AssetEntry(asset string) (*debtcache.Entry, error) {
	var stored storedAssetEntry
	ok, err := s.load(assetEntryKey(asset), &stored)
	if err != nil || !ok {
		return nil, err
	}
	debt, err := parseAmount(stored.Debt)
	if err != nil {
		return nil, err
	}
	return &debtcache.Entry{Debt: debt, UpdatedAt: int64(stored.UpdatedAt)}, nil
}

// PutAssetEntry writes the cached per-asset debt.
func (s *Store) PutAssetEntry(asset string, entry *debtcache.Entry) error {
	if entry == nil {
		return fmt.Errorf("storage: asset entry must not be nil")
	}
	return s.save(assetEntryKey(asset), storedAssetEntry{
		Debt:      formatAmount(entry.Debt),
		UpdatedAt: uint64(entry.UpdatedAt),
	})
}

// DeleteAssetEntry removes the cached per-asset debt record.
func (s *Store) DeleteAssetEntry(asset string) error {
	return s.db.Delete(assetEntryKey(asset))
}

// ExcludedDebt loads the externally-backed debt recorded for an asset, or
// nil when none is tracked.
func (s *Store) ExcludedDebt(asset string) (*big.Int, error) {
	value, err := s.db.Get(excludedDebtKey(asset))
	if errors.Is(err, ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var stored string
	if err := rlp.DecodeBytes(value, &stored); err != nil {
		return nil, err
	}
	return parseAmount(stored)
}

// PutExcludedDebt writes the externally-backed debt recorded for an asset.
func (s *Store) PutExcludedDebt(asset string, amount *big.Int) error {
	return s.save(excludedDebtKey(asset), formatAmount(amount))
}

// --- liquidation state ---

// LiquidationEntry loads the flag raised against an account, or nil when
// the account is not flagged.
func (s *Store) LiquidationEntry(addr crypto.Address) (*liquidation.Entry, error) {
	var stored storedLiquidationEntry
	ok, err := s.load(liquidationEntryKey(addr), &stored)
	if err != nil || !ok {
		return nil, err
	}
	caller, err := decodeStoredAddress(stored.CallerPrefix, stored.Caller)
	if err != nil {
		return nil, err
	}
	return &liquidation.Entry{
		Deadline: int64(stored.Deadline),
		Caller:   caller,
	}, nil
}

// PutLiquidationEntry writes the flag raised against an account.
func (s *Store) PutLiquidationEntry(addr crypto.Address, entry *liquidation.Entry) error {
	if entry == nil {
		return fmt.Errorf("storage: liquidation entry must not be nil")
	}
	if err := checkStoredAddress(entry.Caller); err != nil {
		return err
	}
	return s.save(liquidationEntryKey(addr), storedLiquidationEntry{
		Deadline:     uint64(entry.Deadline),
		CallerPrefix: string(entry.Caller.Prefix()),
		Caller:       entry.Caller.Bytes(),
	})
}

// DeleteLiquidationEntry removes the flag raised against an account.
func (s *Store) DeleteLiquidationEntry(addr crypto.Address) error {
	return s.db.Delete(liquidationEntryKey(addr))
}

// --- helpers ---

func (s *Store) load(key []byte, out interface{}) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("storage: store not initialised")
	}
	value, err := s.db.Get(key)
	if errors.Is(err, ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := rlp.DecodeBytes(value, out); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) save(key []byte, record interface{}) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("storage: store not initialised")
	}
	encoded, err := rlp.EncodeToBytes(record)
	if err != nil {
		return err
	}
	return s.db.Put(key, encoded)
}

// checkStoredAddress rejects address payloads that would not survive a
// round trip; crypto.NewAddress panics on anything but 20 bytes.
func checkStoredAddress(addr crypto.Address) error {
	if len(addr.Bytes()) != crypto.AddressLength {
		return fmt.Errorf("storage: address payload must be %d bytes, got %d", crypto.AddressLength, len(addr.Bytes()))
	}
	return nil
}

func decodeStoredAddress(prefix string, payload []byte) (crypto.Address, error) {
	if len(payload) != crypto.AddressLength {
		return crypto.Address{}, fmt.Errorf("storage: stored address payload must be %d bytes, got %d", crypto.AddressLength, len(payload))
	}
	return crypto.NewAddress(crypto.AddressPrefix(prefix), payload), nil
}

func encodeCheckpoints(history []debtshare.Checkpoint) []storedCheckpoint {
	out := make([]storedCheckpoint, len(history))
	for i, cp := range history {
		out[i] = storedCheckpoint{Period: cp.Period, Value: formatAmount(cp.Value)}
	}
	return out
}

func decodeCheckpoints(stored []storedCheckpoint) ([]debtshare.Checkpoint, error) {
	if len(stored) == 0 {
		return nil, nil
	}
	out := make([]debtshare.Checkpoint, len(stored))
	for i, cp := range stored {
		value, err := parseAmount(cp.Value)
		if err != nil {
			return nil, err
		}
		out[i] = debtshare.Checkpoint{Period: cp.Period, Value: value}
	}
	return out, nil
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func parseAmount(s string) (*big.Int, error) {
	if s == "" {
		return big.NewInt(0), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("storage: invalid amount %q", s)
	}
	return v, nil
}
