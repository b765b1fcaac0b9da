package domain

// NativeMint is the sentinel mint used for native SOL movements.
const NativeMint = "SOL"

// WrappedSOLMint is the SPL mint of wrapped SOL. It is treated as the native asset.
const WrappedSOLMint = "So11111111111111111111111111111111111111112"

// NativeDecimals is the number of decimals of the native asset (lamports per SOL = 1e9).
const NativeDecimals = 9

// IsNativeMint reports whether mint denotes the native asset.
func IsNativeMint(mint string) bool {
	return mint == NativeMint || mint == WrappedSOLMint
}

// RawTransferRecord is one asset movement as reported by an upstream provider.
type RawTransferRecord struct {
	Signature   string // transaction signature
	TimestampMs int64  // block time in milliseconds
	Mint        string // asset identifier, NativeMint for SOL
	FromAccount string // sending owner
	ToAccount   string // receiving owner
	RawAmount   string // integer amount in base units, as reported upstream
	Decimals    *int   // nil when the provider did not report decimals
}

// IsNative reports whether the record moves the native asset.
func (r RawTransferRecord) IsNative() bool {
	return IsNativeMint(r.Mint)
}

// SwapLeg pairs the two sides of a router-mediated swap.
// TokenIn is what Owner gave up, TokenOut is what Owner received.
type SwapLeg struct {
	Signature   string            // transaction signature
	TimestampMs int64             // block time in milliseconds
	Owner       string            // account that initiated the swap
	Program     string            // router or AMM that executed it (informational)
	TokenIn     RawTransferRecord // asset given up
	TokenOut    RawTransferRecord // asset received
}
