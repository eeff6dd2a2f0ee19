package storage

import (
	"encoding/hex"
	"strings"

	"tribecore/crypto"
)

var (
	ledgerMetaKey          = []byte("debtshare/meta")
	ledgerSupplyKey        = []byte("debtshare/supply")
	shareAccountPrefix     = []byte("debtshare/account/")
	cacheAggregateKey      = []byte("debtcache/aggregate")
	assetEntryPrefix       = []byte("debtcache/asset/")
	excludedDebtPrefix     = []byte("debtcache/excluded/")
	liquidationEntryPrefix = []byte("liquidation/entry/")
)

func shareAccountKey(addr crypto.Address) []byte {
	return appendKey(shareAccountPrefix, hex.EncodeToString(addr.Bytes()))
}

func assetEntryKey(asset string) []byte {
	return appendKey(assetEntryPrefix, normalizeAsset(asset))
}

func excludedDebtKey(asset string) []byte {
	return appendKey(excludedDebtPrefix, normalizeAsset(asset))
}

func liquidationEntryKey(addr crypto.Address) []byte {
	return appendKey(liquidationEntryPrefix, hex.EncodeToString(addr.Bytes()))
}

func normalizeAsset(asset string) string {
	return strings.ToUpper(strings.TrimSpace(asset))
}

func appendKey(prefix []byte, suffix string) []byte {
	buf := make([]byte, len(prefix)+len(suffix))
	copy(buf, prefix)
	copy(buf[len(prefix):], suffix)
	return buf
}
