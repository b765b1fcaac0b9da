// Package idhash derives deterministic identifiers from their defining fields.
package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"onchain-analytics/internal/domain"
)

// CacheFingerprint identifies the invalidation epoch a cache entry was computed in.
// Formula: SHA256(key|invalidated_at_ms)
// Returns hex-encoded hash (64 characters).
func CacheFingerprint(key string, invalidatedAtMs int64) string {
	data := fmt.Sprintf("%s|%d", key, invalidatedAtMs)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// EventID computes a deterministic id for a trade event.
// Formula: SHA256(signature|wallet|mint|kind|source)
// A transaction yields at most one event per (wallet, mint, kind, source).
func EventID(e domain.TradeEvent) string {
	data := fmt.Sprintf("%s|%s|%s|%s|%s",
		e.Signature,
		e.Wallet,
		e.Mint,
		string(e.Kind),
		string(e.Source),
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
