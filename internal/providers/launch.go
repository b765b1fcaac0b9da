package providers

import (
	"context"

	"onchain-analytics/internal/orchestrator"
	"onchain-analytics/internal/solana"
)

// Launch finds the launch time of a mint from its oldest signature.
type Launch struct {
	rpc      solana.RPCClient
	orch     *orchestrator.Orchestrator
	maxPages int
}

// NewLaunch creates a Launch provider. maxPages caps the backwards signature walk.
func NewLaunch(rpc solana.RPCClient, orch *orchestrator.Orchestrator, maxPages int) *Launch {
	return &Launch{rpc: rpc, orch: orch, maxPages: maxPages}
}

type launchResult struct {
	ms         int64
	exhaustive bool
}

// LaunchTimestamp returns the block time (ms) of the oldest signature of mint.
// exhaustive is false when the walk stopped at the page cap.
func (l *Launch) LaunchTimestamp(ctx context.Context, mint string) (int64, bool, error) {
	out := l.orch.Fetch(ctx, orchestrator.Request{
		Key:    "launch:" + mint,
		Source: SourceRPC,
		Do: func(ctx context.Context) (any, error) {
			ms, exhaustive, err := solana.LaunchTime(ctx, l.rpc, mint, l.maxPages)
			if err != nil {
				return nil, err
			}
			return launchResult{ms: ms, exhaustive: exhaustive}, nil
		},
	})
	res, err := orchestrator.Value[launchResult](out)
	if err != nil {
		return 0, false, err
	}
	return res.ms, res.exhaustive, nil
}
