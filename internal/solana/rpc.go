package solana

import "context"

// RPCClient defines the Solana JSON-RPC methods the analytics engine reads.
type RPCClient interface {
	// GetSignaturesForAddress retrieves signatures for an address, newest first.
	GetSignaturesForAddress(ctx context.Context, address string, opts *SignaturesOpts) ([]SignatureInfo, error)

	// GetBlockTime retrieves the estimated production time of a block.
	GetBlockTime(ctx context.Context, slot int64) (*int64, error)

	// GetTokenSupply retrieves the total supply of a mint.
	GetTokenSupply(ctx context.Context, mint string) (*TokenAmount, error)

	// GetTokenAccounts retrieves one page of token accounts holding a mint.
	GetTokenAccounts(ctx context.Context, mint string, page, limit int) (*TokenAccountsPage, error)
}

// SignatureInfo from getSignaturesForAddress.
type SignatureInfo struct {
	Signature string
	Slot      int64
	BlockTime *int64
	Err       interface{}
}

// SignaturesOpts defines optional pagination parameters for getSignaturesForAddress.
type SignaturesOpts struct {
	Before string // Start searching backwards from this signature
	Until  string // Search until this signature
	Limit  int    // Maximum number of signatures to return
}

// TokenAmount is an integer amount in base units with its decimals.
type TokenAmount struct {
	Amount   string
	Decimals int
}

// TokenAccount is one SPL token account.
type TokenAccount struct {
	Address string
	Mint    string
	Owner   string
	Amount  uint64 // base units
}

// TokenAccountsPage is one page of the getTokenAccounts listing.
type TokenAccountsPage struct {
	Page     int
	Limit    int
	Total    int // accounts on this page, not across the listing
	Accounts []TokenAccount
}
