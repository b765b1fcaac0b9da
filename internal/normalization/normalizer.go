// Package normalization turns provider transfer records and swap legs into
// a deterministic, ordered sequence of wallet trade events.
package normalization

import (
	"iter"
	"slices"

	"go.uber.org/zap"

	"onchain-analytics/internal/domain"
)

// DefaultSanityCeiling is the whole-token amount above which an event is flagged suspect.
const DefaultSanityCeiling = 1e12

// Options configures a Normalizer.
type Options struct {
	// SanityCeiling flags events whose token amount exceeds it. Zero uses DefaultSanityCeiling.
	SanityCeiling float64
	Logger        *zap.Logger
}

// Normalizer classifies raw records into trade events. It holds no per-call state.
type Normalizer struct {
	ceiling float64
	logger  *zap.Logger
}

// New creates a Normalizer.
func New(opts Options) *Normalizer {
	ceiling := opts.SanityCeiling
	if ceiling <= 0 {
		ceiling = DefaultSanityCeiling
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Normalizer{ceiling: ceiling, logger: logger}
}

// Result is the normalized trade history of a wallet (or of every buyer of a mint).
type Result struct {
	Subject      string              `json:"subject"`
	Events       []domain.TradeEvent `json:"events"`
	Drops        domain.DropStats    `json:"drops"`
	SuspectCount int                 `json:"suspectCount"`
}

// All yields every event in order. The sequence can be ranged over repeatedly.
func (r *Result) All() iter.Seq[domain.TradeEvent] {
	return func(yield func(domain.TradeEvent) bool) {
		for _, e := range r.Events {
			if !yield(e) {
				return
			}
		}
	}
}

// LedgerInput yields the events that may be applied to a position ledger.
func (r *Result) LedgerInput() iter.Seq[domain.TradeEvent] {
	return func(yield func(domain.TradeEvent) bool) {
		for _, e := range r.Events {
			if e.Suspect {
				continue
			}
			if !yield(e) {
				return
			}
		}
	}
}

// transfer is a record whose amount parsed cleanly.
type transfer struct {
	domain.RawTransferRecord
	amount float64
}

// leg is a swap leg whose amounts parsed cleanly.
type leg struct {
	domain.SwapLeg
	in  float64
	out float64
}

// receiver is the account that observes the output side.
func (l leg) receiver() string {
	if l.TokenOut.ToAccount != "" {
		return l.TokenOut.ToAccount
	}
	return l.Owner
}

// payer is the account that observes the input side.
func (l leg) payer() string {
	if l.TokenIn.FromAccount != "" {
		return l.TokenIn.FromAccount
	}
	return l.Owner
}

// prepared holds parsed input indexed for per-wallet classification.
type prepared struct {
	bySig        map[string][]transfer
	sigsByWallet map[string][]string
	legs         []leg
	legsByWallet map[string][]int
	drops        domain.DropStats
}

// prepare parses amounts once and indexes records by signature and participant.
func prepare(records []domain.RawTransferRecord, legs []domain.SwapLeg) *prepared {
	p := &prepared{
		bySig:        make(map[string][]transfer),
		sigsByWallet: make(map[string][]string),
		legsByWallet: make(map[string][]int),
	}

	seen := make(map[string]map[string]struct{})
	addSig := func(wallet, sig string) {
		if wallet == "" {
			return
		}
		sigs, ok := seen[wallet]
		if !ok {
			sigs = make(map[string]struct{})
			seen[wallet] = sigs
		}
		if _, dup := sigs[sig]; dup {
			return
		}
		sigs[sig] = struct{}{}
		p.sigsByWallet[wallet] = append(p.sigsByWallet[wallet], sig)
	}

	for _, r := range records {
		amount, err := recordAmount(r)
		if err != nil || r.Signature == "" || r.Mint == "" {
			p.drops.Malformed++
			continue
		}
		if amount == 0 {
			p.drops.ZeroAmount++
			continue
		}
		p.bySig[r.Signature] = append(p.bySig[r.Signature], transfer{RawTransferRecord: r, amount: amount})
		addSig(r.FromAccount, r.Signature)
		addSig(r.ToAccount, r.Signature)
	}

	for _, l := range legs {
		in, errIn := recordAmount(withTime(l.TokenIn, l.TimestampMs))
		out, errOut := recordAmount(withTime(l.TokenOut, l.TimestampMs))
		if errIn != nil || errOut != nil || l.Signature == "" || l.TimestampMs <= 0 {
			p.drops.Malformed++
			continue
		}
		if in == 0 || out == 0 {
			p.drops.ZeroAmount++
			continue
		}
		lg := leg{SwapLeg: l, in: in, out: out}
		idx := len(p.legs)
		p.legs = append(p.legs, lg)

		receiver, payer := lg.receiver(), lg.payer()
		if receiver != "" {
			p.legsByWallet[receiver] = append(p.legsByWallet[receiver], idx)
		}
		if payer != "" && payer != receiver {
			p.legsByWallet[payer] = append(p.legsByWallet[payer], idx)
		}
	}

	return p
}

// withTime fills a leg side's timestamp from the leg when the side omits it.
func withTime(r domain.RawTransferRecord, ts int64) domain.RawTransferRecord {
	if r.TimestampMs == 0 {
		r.TimestampMs = ts
	}
	return r
}

// Normalize classifies the records observed by wallet into ordered trade events.
//
// A swap leg takes precedence over the raw records of the same transaction.
// Otherwise an incoming token paired with an outgoing native transfer is a
// direct buy, an outgoing token paired with incoming native is a direct sell,
// and an unpaired incoming token is an airdrop. Everything else is counted and dropped.
func (n *Normalizer) Normalize(wallet string, records []domain.RawTransferRecord, legs []domain.SwapLeg) *Result {
	p := prepare(records, legs)
	res := &Result{Subject: wallet, Drops: p.drops}

	events, drops := n.classify(wallet, p)
	res.Drops.Add(drops)

	// Records never touching the wallet.
	walletSigs := make(map[string]struct{}, len(p.sigsByWallet[wallet]))
	for _, sig := range p.sigsByWallet[wallet] {
		walletSigs[sig] = struct{}{}
	}
	for sig, group := range p.bySig {
		if _, ok := walletSigs[sig]; !ok {
			res.Drops.Unrelated += len(group)
		}
	}

	res.Events = n.finish(events, &res.SuspectCount)
	n.logger.Debug("normalized wallet history",
		zap.String("wallet", wallet),
		zap.Int("events", len(res.Events)),
		zap.Int("dropped", res.Drops.Total()),
		zap.Int("suspect", res.SuspectCount),
	)
	return res
}

// NormalizeMint classifies the trades of every participant in mint's history
// and keeps the events for mint.
func (n *Normalizer) NormalizeMint(mint string, records []domain.RawTransferRecord, legs []domain.SwapLeg) *Result {
	p := prepare(records, legs)
	res := &Result{Subject: mint, Drops: p.drops}

	wallets := make(map[string]struct{})
	for w := range p.sigsByWallet {
		wallets[w] = struct{}{}
	}
	for w := range p.legsByWallet {
		wallets[w] = struct{}{}
	}
	ordered := make([]string, 0, len(wallets))
	for w := range wallets {
		ordered = append(ordered, w)
	}
	slices.Sort(ordered)

	var events []domain.TradeEvent
	for _, w := range ordered {
		walletEvents, _ := n.classify(w, p)
		for _, e := range walletEvents {
			if e.Mint == mint {
				events = append(events, e)
			}
		}
	}

	res.Events = n.finish(events, &res.SuspectCount)
	n.logger.Debug("normalized mint history",
		zap.String("mint", mint),
		zap.Int("wallets", len(ordered)),
		zap.Int("events", len(res.Events)),
	)
	return res
}

// finish flags suspect events and sorts.
func (n *Normalizer) finish(events []domain.TradeEvent, suspect *int) []domain.TradeEvent {
	for i := range events {
		if events[i].TokenAmount > n.ceiling {
			events[i].Suspect = true
			*suspect++
		}
	}
	SortEvents(events)
	if events == nil {
		events = []domain.TradeEvent{}
	}
	return events
}

// classify produces the events of one wallet from prepared input.
func (n *Normalizer) classify(wallet string, p *prepared) ([]domain.TradeEvent, domain.DropStats) {
	var (
		events []domain.TradeEvent
		drops  domain.DropStats
	)

	legSigs := make(map[string]struct{})
	for _, idx := range p.legsByWallet[wallet] {
		l := p.legs[idx]
		legSigs[l.Signature] = struct{}{}
		legEvents := fromLeg(wallet, l)
		if len(legEvents) == 0 {
			drops.NativeOnly++
		}
		events = append(events, legEvents...)
	}

	for _, sig := range p.sigsByWallet[wallet] {
		group := p.bySig[sig]
		if _, ok := legSigs[sig]; ok {
			for _, t := range group {
				if t.FromAccount == wallet || t.ToAccount == wallet {
					drops.PairedBySwap++
				} else {
					drops.Unrelated++
				}
			}
			continue
		}
		sigEvents, sigDrops := fromTransfers(wallet, group)
		events = append(events, sigEvents...)
		drops.Add(sigDrops)
	}

	return events, drops
}

// fromLeg derives the events a swap leg produces for wallet. Only the sides
// wallet observes count: receiving the output is a buy, supplying the input
// is a sell. A token-for-token leg seen from both sides is a buy and a sell
// without a native price.
func fromLeg(wallet string, l leg) []domain.TradeEvent {
	inNative := l.TokenIn.IsNative()
	outNative := l.TokenOut.IsNative()

	base := domain.TradeEvent{
		Signature:   l.Signature,
		TimestampMs: l.TimestampMs,
		Wallet:      wallet,
		Source:      domain.TradeSourceRouterSwap,
	}

	var events []domain.TradeEvent
	if !outNative && wallet == l.receiver() {
		buy := base
		buy.Kind = domain.TradeKindBuy
		buy.Mint = l.TokenOut.Mint
		buy.TokenAmount = l.out
		if inNative {
			buy.SolAmount = l.in
			buy.PricePerToken = price(l.in, l.out)
		} else {
			buy.CounterMint = l.TokenIn.Mint
			buy.CounterAmount = l.in
		}
		events = append(events, buy)
	}
	if !inNative && wallet == l.payer() {
		sell := base
		sell.Kind = domain.TradeKindSell
		sell.Mint = l.TokenIn.Mint
		sell.TokenAmount = l.in
		if outNative {
			sell.SolAmount = l.out
			sell.PricePerToken = price(l.out, l.in)
		} else {
			sell.CounterMint = l.TokenOut.Mint
			sell.CounterAmount = l.out
		}
		events = append(events, sell)
	}
	return events
}

// fromTransfers classifies the raw records of one transaction for wallet.
// Native movements in the transaction are summed per direction and paired
// once, with the first token received (buy) or sent (sell).
func fromTransfers(wallet string, group []transfer) ([]domain.TradeEvent, domain.DropStats) {
	var (
		drops            domain.DropStats
		nativeIn         float64
		nativeOut        float64
		nativeInRecords  int
		nativeOutRecords int
		received, sent   []transfer
	)

	for _, t := range group {
		from := t.FromAccount == wallet
		to := t.ToAccount == wallet
		switch {
		case from == to:
			// Neither side, or a self-transfer: no change in holdings.
			drops.Unrelated++
		case t.IsNative() && to:
			nativeIn += t.amount
			nativeInRecords++
		case t.IsNative() && from:
			nativeOut += t.amount
			nativeOutRecords++
		case to:
			received = append(received, t)
		default:
			sent = append(sent, t)
		}
	}

	var events []domain.TradeEvent
	nativeOutUsed := false
	for _, t := range received {
		e := domain.TradeEvent{
			Signature:   t.Signature,
			TimestampMs: t.TimestampMs,
			Wallet:      wallet,
			Mint:        t.Mint,
			Kind:        domain.TradeKindBuy,
			TokenAmount: t.amount,
		}
		if !nativeOutUsed && nativeOut > 0 {
			nativeOutUsed = true
			e.Source = domain.TradeSourceDirectTransfer
			e.SolAmount = nativeOut
			e.PricePerToken = price(nativeOut, t.amount)
		} else {
			e.Source = domain.TradeSourceAirdrop
		}
		events = append(events, e)
	}

	nativeInUsed := false
	for _, t := range sent {
		if nativeInUsed || nativeIn <= 0 {
			drops.TransferOut++
			continue
		}
		nativeInUsed = true
		events = append(events, domain.TradeEvent{
			Signature:     t.Signature,
			TimestampMs:   t.TimestampMs,
			Wallet:        wallet,
			Mint:          t.Mint,
			Kind:          domain.TradeKindSell,
			Source:        domain.TradeSourceDirectTransfer,
			TokenAmount:   t.amount,
			SolAmount:     nativeIn,
			PricePerToken: price(nativeIn, t.amount),
		})
	}

	if !nativeOutUsed {
		drops.NativeOnly += nativeOutRecords
	}
	if !nativeInUsed {
		drops.NativeOnly += nativeInRecords
	}
	return events, drops
}

func price(sol, tokens float64) *float64 {
	if tokens <= 0 {
		return nil
	}
	p := sol / tokens
	return &p
}
