// Package stub provides an in-memory solana.RPCClient for tests.
package stub

import (
	"context"
	"errors"
	"sync"

	"onchain-analytics/internal/solana"
)

// ErrNotFound is returned for a mint the stub knows nothing about.
var ErrNotFound = errors.New("not found")

// RPCClient implements solana.RPCClient over in-memory fixtures.
type RPCClient struct {
	mu sync.Mutex

	Signatures map[string][]solana.SignatureInfo // newest first
	BlockTimes map[int64]int64                   // slot -> unix seconds
	Supplies   map[string]solana.TokenAmount
	Accounts   map[string][]solana.TokenAccount

	// Calls counts calls per method.
	Calls map[string]int
}

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Signatures: make(map[string][]solana.SignatureInfo),
		BlockTimes: make(map[int64]int64),
		Supplies:   make(map[string]solana.TokenAmount),
		Accounts:   make(map[string][]solana.TokenAccount),
		Calls:      make(map[string]int),
	}
}

func (c *RPCClient) count(method string) {
	c.mu.Lock()
	c.Calls[method]++
	c.mu.Unlock()
}

// CallCount returns how often method was called.
func (c *RPCClient) CallCount(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Calls[method]
}

// GetSignaturesForAddress pages through the stored signatures, honoring Before and Limit.
func (c *RPCClient) GetSignaturesForAddress(_ context.Context, address string, opts *solana.SignaturesOpts) ([]solana.SignatureInfo, error) {
	c.count("getSignaturesForAddress")
	sigs := c.Signatures[address]

	if opts != nil && opts.Before != "" {
		for i, s := range sigs {
			if s.Signature == opts.Before {
				sigs = sigs[i+1:]
				break
			}
		}
	}
	if opts != nil && opts.Limit > 0 && opts.Limit < len(sigs) {
		sigs = sigs[:opts.Limit]
	}
	return append([]solana.SignatureInfo(nil), sigs...), nil
}

// GetBlockTime returns the stored block time of slot, or nil.
func (c *RPCClient) GetBlockTime(_ context.Context, slot int64) (*int64, error) {
	c.count("getBlockTime")
	bt, ok := c.BlockTimes[slot]
	if !ok {
		return nil, nil
	}
	return &bt, nil
}

// GetTokenSupply returns the stored supply of mint.
func (c *RPCClient) GetTokenSupply(_ context.Context, mint string) (*solana.TokenAmount, error) {
	c.count("getTokenSupply")
	supply, ok := c.Supplies[mint]
	if !ok {
		return nil, ErrNotFound
	}
	return &supply, nil
}

// GetTokenAccounts returns the stored accounts of mint split into pages.
func (c *RPCClient) GetTokenAccounts(_ context.Context, mint string, page, limit int) (*solana.TokenAccountsPage, error) {
	c.count("getTokenAccounts")
	all := c.Accounts[mint]
	if page < 1 {
		page = 1
	}
	start := min((page-1)*limit, len(all))
	end := min(start+limit, len(all))

	return &solana.TokenAccountsPage{
		Page:     page,
		Limit:    limit,
		Total:    end - start,
		Accounts: append([]solana.TokenAccount(nil), all[start:end]...),
	}, nil
}

// AddSignatures adds signatures for an address to the stub store.
func (c *RPCClient) AddSignatures(address string, sigs []solana.SignatureInfo) {
	c.Signatures[address] = sigs
}

// AddTokenAccounts adds token accounts of a mint to the stub store.
func (c *RPCClient) AddTokenAccounts(mint string, accounts ...solana.TokenAccount) {
	c.Accounts[mint] = append(c.Accounts[mint], accounts...)
}
