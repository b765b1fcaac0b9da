package domain

// CacheKind names a family of cached results. Each kind has its own freshness window.
type CacheKind string

const (
	CacheKindTrades CacheKind = "trades"
	CacheKindCensus CacheKind = "census"
	CacheKindBuyers CacheKind = "buyers"
)

// Key builds the cache key for a subject (wallet or mint) of this kind.
func (k CacheKind) Key(subject string) string {
	return string(k) + ":" + subject
}

// CacheEntry is a stored computed result.
type CacheEntry struct {
	Key               string    // "<kind>:<subject>"
	Kind              CacheKind // freshness family
	Payload           []byte    // JSON-encoded result
	ComputedAtMs      int64     // when the result was computed
	SourceFingerprint string    // invalidation fingerprint, see idhash.CacheFingerprint
}
