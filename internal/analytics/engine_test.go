package analytics

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onchain-analytics/internal/cache"
	"onchain-analytics/internal/domain"
	"onchain-analytics/internal/ingestion"
	"onchain-analytics/internal/orchestrator"
	"onchain-analytics/internal/providers"
	"onchain-analytics/internal/storage/memory"
)

const (
	testWallet = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"
	testMint   = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	otherBuyer = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"
	pool       = "11111111111111111111111111111111"

	t0 = int64(1_700_000_000_000)
)

func ptr[T any](v T) *T { return &v }

// swapRecords returns the two transfers of a direct trade between wallet and the pool.
// lamports move opposite to the tokens.
func swapRecords(sig string, ts int64, wallet, mint string, buy bool, tokensRaw, lamports string) []domain.RawTransferRecord {
	token := domain.RawTransferRecord{
		Signature: sig, TimestampMs: ts, Mint: mint, RawAmount: tokensRaw, Decimals: ptr(6),
		FromAccount: pool, ToAccount: wallet,
	}
	native := domain.RawTransferRecord{
		Signature: sig, TimestampMs: ts, Mint: domain.NativeMint, RawAmount: lamports, Decimals: ptr(9),
		FromAccount: wallet, ToAccount: pool,
	}
	if !buy {
		token.FromAccount, token.ToAccount = wallet, pool
		native.FromAccount, native.ToAccount = pool, wallet
	}
	return []domain.RawTransferRecord{token, native}
}

// walletBatch buys 1000 tokens for 1 SOL, then sells 500 for 0.75 SOL.
func walletBatch() *ingestion.Batch {
	var records []domain.RawTransferRecord
	records = append(records, swapRecords("buy-1", t0, testWallet, testMint, true, "1000000000", "1000000000")...)
	records = append(records, swapRecords("sell-1", t0+60_000, testWallet, testMint, false, "500000000", "750000000")...)
	return &ingestion.Batch{Transfers: records}
}

// mintBatch has two buyers, testWallet first.
func mintBatch() *ingestion.Batch {
	var records []domain.RawTransferRecord
	records = append(records, swapRecords("buy-1", t0, testWallet, testMint, true, "1000000000", "1000000000")...)
	records = append(records, swapRecords("buy-2", t0+5*60_000, otherBuyer, testMint, true, "2000000000", "1000000000")...)
	return &ingestion.Batch{Transfers: records}
}

type fakeHistory struct {
	mu          sync.Mutex
	wallets     map[string]*ingestion.Batch
	mints       map[string]*ingestion.Batch
	walletCalls int
	mintCalls   int
	walletErr   error

	// When gate is set WalletHistory signals started and blocks until gate is closed.
	gate    chan struct{}
	started chan struct{}
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{
		wallets: map[string]*ingestion.Batch{testWallet: walletBatch()},
		mints:   map[string]*ingestion.Batch{testMint: mintBatch()},
	}
}

func (f *fakeHistory) WalletHistory(ctx context.Context, wallet string) (*ingestion.Batch, error) {
	f.mu.Lock()
	f.walletCalls++
	gate, started, err := f.gate, f.started, f.walletErr
	batch := f.wallets[wallet]
	f.mu.Unlock()

	if gate != nil {
		select {
		case started <- struct{}{}:
		default:
		}
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if batch == nil {
		return &ingestion.Batch{}, nil
	}
	return batch, nil
}

func (f *fakeHistory) MintHistory(_ context.Context, mint string) (*ingestion.Batch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mintCalls++
	if batch, ok := f.mints[mint]; ok {
		return batch, nil
	}
	return &ingestion.Batch{}, nil
}

func (f *fakeHistory) calls() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.walletCalls, f.mintCalls
}

type fakeOwnership struct {
	holdings *providers.Holdings
	err      error
}

func (f fakeOwnership) Holdings(context.Context, string) (*providers.Holdings, error) {
	return f.holdings, f.err
}

func testHoldings() *providers.Holdings {
	return &providers.Holdings{
		Supply:      domain.TokenSupply{Mint: testMint, RawAmount: "10000000000", Decimals: 6},
		TotalSupply: 10_000,
		Records: []domain.OwnershipRecord{
			{TokenAccount: "acct-1", Owner: testWallet, Mint: testMint, Amount: 500},
			{TokenAccount: "acct-2", Owner: otherBuyer, Mint: testMint, Amount: 2000},
			{TokenAccount: "acct-3", Owner: otherBuyer, Mint: testMint, Amount: 500},
			{TokenAccount: "acct-4", Owner: pool, Mint: testMint, Amount: 0.5},
		},
		Pages: 1,
	}
}

type fakeLaunch struct {
	ms         int64
	exhaustive bool
	err        error
}

func (f fakeLaunch) LaunchTimestamp(context.Context, string) (int64, bool, error) {
	return f.ms, f.exhaustive, f.err
}

type quoterFunc func(ctx context.Context, mint string) (float64, error)

func (f quoterFunc) Price(ctx context.Context, mint string) (float64, error) { return f(ctx, mint) }

func fixedPrice(p float64) quoterFunc {
	return func(context.Context, string) (float64, error) { return p, nil }
}

// hangingPrice blocks until the request deadline.
func hangingPrice() quoterFunc {
	return func(ctx context.Context, _ string) (float64, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	}
}

func priceProvider(q providers.Quoter) *providers.Prices {
	orch := orchestrator.New(orchestrator.Options{
		Timeout: 100 * time.Millisecond,
		Retry:   orchestrator.RetryPolicy{MaxAttempts: 1},
	})
	return providers.NewPrices(q, orch)
}

type engineOption func(*Deps)

func newTestEngine(t *testing.T, history *fakeHistory, opts ...engineOption) *Engine {
	t.Helper()
	deps := Deps{
		History:   history,
		Ownership: fakeOwnership{holdings: testHoldings()},
		Prices:    priceProvider(fixedPrice(0.002)),
		Launch:    fakeLaunch{ms: t0 - 5_000, exhaustive: true},
	}
	for _, opt := range opts {
		opt(&deps)
	}
	e, err := New(deps)
	require.NoError(t, err)
	return e
}

func TestNew_RequiresProviders(t *testing.T) {
	_, err := New(Deps{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestAnalyze_InvalidQueryFetchesNothing(t *testing.T) {
	history := newFakeHistory()
	e := newTestEngine(t, history)

	tests := []struct {
		name  string
		query Query
	}{
		{"empty", Query{}},
		{"bad wallet", Query{Wallet: "not-an-address"}},
		{"bad mint", Query{Wallet: testWallet, Mint: "0OIl"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := e.Analyze(context.Background(), tt.query)
			assert.Nil(t, r)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}

	walletCalls, mintCalls := history.calls()
	assert.Zero(t, walletCalls)
	assert.Zero(t, mintCalls)
}

func TestWalletReport_PositionsAndUnrealized(t *testing.T) {
	e := newTestEngine(t, newFakeHistory())

	r, err := e.WalletReport(context.Background(), testWallet)
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, r.Status())
	assert.Empty(t, r.Failures)
	require.NotNil(t, r.Trades)
	assert.Len(t, r.Trades.Events, 2)

	require.Len(t, r.Positions, 1)
	p := r.Positions[0]
	assert.Equal(t, testMint, p.Mint)
	assert.InDelta(t, 0.25, p.RealizedPnL, 1e-9)
	assert.InDelta(t, 500, p.RemainingTokens, 1e-9)
	assert.InDelta(t, 0.5, p.CostBasisTotal, 1e-9)
	require.NotNil(t, p.UnrealizedPnL)
	assert.InDelta(t, 500*0.002-0.5, *p.UnrealizedPnL, 1e-9)

	assert.Nil(t, r.Census)
	assert.Nil(t, r.Buyers)
}

func TestAnalyze_PriceTimeoutIsIsolated(t *testing.T) {
	e := newTestEngine(t, newFakeHistory(), func(d *Deps) {
		d.Prices = priceProvider(hangingPrice())
	})

	r, err := e.Analyze(context.Background(), Query{Wallet: testWallet, Mint: testMint})
	require.NoError(t, err)
	assert.Equal(t, StatusPartial, r.Status())

	require.Len(t, r.Failures, 1)
	f := r.Failures[0]
	assert.Equal(t, MetricUnrealizedPrefix+testMint, f.Metric)
	assert.Equal(t, providers.SourcePrice, f.Source)
	assert.Equal(t, domain.FailureTimeout, f.Kind)

	require.Len(t, r.Positions, 1)
	assert.InDelta(t, 0.25, r.Positions[0].RealizedPnL, 1e-9)
	assert.Nil(t, r.Positions[0].UnrealizedPnL)

	require.NotNil(t, r.Census)
	assert.Equal(t, 2, r.Census.TotalHolderCount)
	require.NotNil(t, r.Buyers)
	assert.Equal(t, 2, r.Buyers.UniqueBuyerCount)
}

func TestAnalyze_ConcurrentCallersShareOneFetch(t *testing.T) {
	history := newFakeHistory()
	history.gate = make(chan struct{})
	history.started = make(chan struct{}, 1)
	e := newTestEngine(t, history)

	const callers = 3
	reports := make([]*Report, callers)
	var wg sync.WaitGroup
	run := func(i int) {
		defer wg.Done()
		r, err := e.WalletReport(context.Background(), testWallet)
		assert.NoError(t, err)
		reports[i] = r
	}

	wg.Add(1)
	go run(0)
	<-history.started

	wg.Add(callers - 1)
	for i := 1; i < callers; i++ {
		go run(i)
	}
	// Let the late callers join the in-flight computation.
	time.Sleep(50 * time.Millisecond)
	close(history.gate)
	wg.Wait()

	walletCalls, _ := history.calls()
	assert.Equal(t, 1, walletCalls)
	for _, r := range reports {
		require.NotNil(t, r)
		assert.Equal(t, reports[0].Trades, r.Trades)
		assert.Equal(t, reports[0].Positions, r.Positions)
	}
}

func TestAnalyze_CacheHitSkipsFetch(t *testing.T) {
	history := newFakeHistory()
	e := newTestEngine(t, history)
	ctx := context.Background()

	first, err := e.Analyze(ctx, Query{Wallet: testWallet, Mint: testMint})
	require.NoError(t, err)
	second, err := e.Analyze(ctx, Query{Wallet: testWallet, Mint: testMint})
	require.NoError(t, err)

	walletCalls, mintCalls := history.calls()
	assert.Equal(t, 1, walletCalls)
	assert.Equal(t, 1, mintCalls)
	assert.Equal(t, first.Trades, second.Trades)
	assert.Equal(t, first.Census, second.Census)
	assert.Equal(t, first.Buyers, second.Buyers)
}

func TestRescan_ForcesRecompute(t *testing.T) {
	history := newFakeHistory()
	e := newTestEngine(t, history)
	ctx := context.Background()

	_, err := e.Analyze(ctx, Query{Wallet: testWallet, Mint: testMint})
	require.NoError(t, err)
	require.NoError(t, e.Rescan(ctx, testWallet, testMint, "test"))
	_, err = e.Analyze(ctx, Query{Wallet: testWallet, Mint: testMint})
	require.NoError(t, err)

	walletCalls, mintCalls := history.calls()
	assert.Equal(t, 2, walletCalls)
	assert.Equal(t, 2, mintCalls)
}

func TestRescan_RejectsInvalidWallet(t *testing.T) {
	e := newTestEngine(t, newFakeHistory())
	err := e.Rescan(context.Background(), "bad", "", "test")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestRescan_DuringComputationDiscardsResult(t *testing.T) {
	history := newFakeHistory()
	history.gate = make(chan struct{})
	history.started = make(chan struct{}, 1)
	e := newTestEngine(t, history)
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := e.WalletReport(ctx, testWallet)
		assert.NoError(t, err)
	}()
	<-history.started
	require.NoError(t, e.Rescan(ctx, testWallet, "", "test"))
	close(history.gate)
	<-done

	_, ok := e.trades.Load(ctx, testWallet)
	assert.False(t, ok, "result computed before the rescan must not be cached")
}

func TestAnalyze_HistoryFailureKeepsTokenMetrics(t *testing.T) {
	history := newFakeHistory()
	history.walletErr = &domain.SourceFailure{
		Source: providers.SourceHelius, Key: "wallet:" + testWallet, Kind: domain.FailureRateLimited,
		Attempts: 3, Err: errors.New("429"),
	}
	e := newTestEngine(t, history)

	r, err := e.Analyze(context.Background(), Query{Wallet: testWallet, Mint: testMint})
	require.NoError(t, err)

	assert.True(t, r.Failed(MetricTrades))
	assert.True(t, r.Failed(MetricPositions))
	assert.False(t, r.Failed(MetricHolders))
	for _, f := range r.Failures {
		assert.Equal(t, providers.SourceHelius, f.Source)
		assert.Equal(t, domain.FailureRateLimited, f.Kind)
	}
	assert.Nil(t, r.Trades)
	assert.NotNil(t, r.Census)
	assert.NotNil(t, r.Buyers)
}

func TestAnalyze_FailureIsNotCached(t *testing.T) {
	history := newFakeHistory()
	e := newTestEngine(t, history, func(d *Deps) {
		d.Ownership = fakeOwnership{err: fmt.Errorf("das: %w", domain.ErrConfiguration)}
	})
	ctx := context.Background()

	for range 2 {
		r, err := e.TokenReport(ctx, testMint)
		require.NoError(t, err)
		require.True(t, r.Failed(MetricHolders))
		assert.NotNil(t, r.Buyers)
	}
	_, ok := e.censuses.Load(ctx, testMint)
	assert.False(t, ok)
}

func TestTokenReport_CensusAndBuyers(t *testing.T) {
	e := newTestEngine(t, newFakeHistory())

	r, err := e.TokenReport(context.Background(), testMint)
	require.NoError(t, err)
	assert.Empty(t, r.Failures)

	require.NotNil(t, r.Census)
	assert.Equal(t, 2, r.Census.TotalHolderCount)
	assert.Equal(t, otherBuyer, r.Census.Holders[0].Owner)
	assert.Equal(t, 1, r.Census.DustOwnersDropped)

	require.NotNil(t, r.Buyers)
	assert.Equal(t, t0-5_000, r.Buyers.LaunchTimestampMs)
	assert.False(t, r.Buyers.LaunchEstimated)
	require.Len(t, r.Buyers.Buyers, 2)
	assert.Equal(t, testWallet, r.Buyers.Buyers[0].Wallet)
	assert.Equal(t, domain.BuyerLabelSniper, r.Buyers.Buyers[0].Label)
	// Outside the sniper window but within the default rank ceiling.
	assert.Equal(t, domain.BuyerLabelSniper, r.Buyers.Buyers[1].Label)
	assert.Equal(t, 2, r.Buyers.SniperCount)
}

func TestTokenReport_LaunchFallsBackToEarliestBuy(t *testing.T) {
	tests := []struct {
		name   string
		launch fakeLaunch
		want   int64
	}{
		{"launch failed", fakeLaunch{err: errors.New("rpc down")}, t0},
		{"not exhaustive, oldest seen is later", fakeLaunch{ms: t0 + 1000}, t0},
		{"not exhaustive, oldest seen is earlier", fakeLaunch{ms: t0 - 1000}, t0 - 1000},
		{"no signatures", fakeLaunch{exhaustive: true}, t0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(t, newFakeHistory(), func(d *Deps) { d.Launch = tt.launch })

			r, err := e.TokenReport(context.Background(), testMint)
			require.NoError(t, err)
			require.NotNil(t, r.Buyers)
			assert.True(t, r.Buyers.LaunchEstimated)
			assert.Equal(t, tt.want, r.Buyers.LaunchTimestampMs)
			assert.Empty(t, r.Failures)
		})
	}
}

func TestAnalyze_WritesHistorySinks(t *testing.T) {
	trades := memory.NewTradeEventStore()
	censuses := memory.NewCensusSnapshotStore()
	e := newTestEngine(t, newFakeHistory(), func(d *Deps) {
		d.TradeSink = trades
		d.CensusSink = censuses
	})
	ctx := context.Background()

	_, err := e.Analyze(ctx, Query{Wallet: testWallet, Mint: testMint})
	require.NoError(t, err)

	events, err := trades.GetByWallet(ctx, testWallet)
	require.NoError(t, err)
	assert.Len(t, events, 2)

	latest, err := censuses.GetLatest(ctx, testMint)
	require.NoError(t, err)
	assert.Equal(t, 2, latest.TotalHolderCount)
}

func TestAnalyze_SharedCacheAcrossEngines(t *testing.T) {
	store := memory.NewCacheStore()
	shared := cache.New(store, cache.Options{})
	history := newFakeHistory()

	a := newTestEngine(t, history, func(d *Deps) { d.Cache = shared })
	b := newTestEngine(t, history, func(d *Deps) { d.Cache = shared })
	ctx := context.Background()

	_, err := a.WalletReport(ctx, testWallet)
	require.NoError(t, err)
	_, err = b.WalletReport(ctx, testWallet)
	require.NoError(t, err)

	walletCalls, _ := history.calls()
	assert.Equal(t, 1, walletCalls)
	assert.Equal(t, 1, store.Len())
}

func TestFailureOf(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		source string
		kind   domain.FailureKind
	}{
		{"source failure", &domain.SourceFailure{Source: "x", Kind: domain.FailureMalformed, Err: errors.New("bad")}, "x", domain.FailureMalformed},
		{"wrapped source failure", fmt.Errorf("ctx: %w", &domain.SourceFailure{Source: "y", Kind: domain.FailureTimeout}), "y", domain.FailureTimeout},
		{"deadline", context.DeadlineExceeded, sourceEngine, domain.FailureTimeout},
		{"canceled", fmt.Errorf("k: %w", context.Canceled), sourceEngine, domain.FailureCanceled},
		{"ledger", fmt.Errorf("apply: %w", domain.ErrOutOfOrder), sourceEngine, domain.FailureMalformed},
		{"other", errors.New("boom"), sourceEngine, domain.FailureUpstream},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := failureOf("m", tt.err)
			assert.Equal(t, "m", f.Metric)
			assert.Equal(t, tt.source, f.Source)
			assert.Equal(t, tt.kind, f.Kind)
			assert.NotEmpty(t, f.Reason)
		})
	}
}

func TestMetricLabel(t *testing.T) {
	assert.Equal(t, "unrealized_pnl", metricLabel(MetricUnrealizedPrefix+testMint))
	assert.Equal(t, MetricHolders, metricLabel(MetricHolders))
}
