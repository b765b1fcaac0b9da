package reporting

import (
	"fmt"
	"strings"
	"time"

	"onchain-analytics/internal/analytics"
	"onchain-analytics/internal/domain"
)

// maxHolderRows caps the holder table; the census itself is never truncated.
const maxHolderRows = 25

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *analytics.Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# Analytics Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s | Status: %s\n\n",
		time.UnixMilli(r.GeneratedAtMs).UTC().Format(time.RFC3339), r.Status()))
	if r.Wallet != "" {
		sb.WriteString(fmt.Sprintf("Wallet: `%s`\n\n", r.Wallet))
	}
	if r.Mint != "" {
		sb.WriteString(fmt.Sprintf("Mint: `%s`\n\n", r.Mint))
	}

	if r.Wallet != "" {
		writeTrades(&sb, r.Trades)
		writePositions(&sb, r.Positions, r.Failed(analytics.MetricPositions))
	}
	if r.Mint != "" {
		writeCensus(&sb, r.Census)
		writeBuyers(&sb, r.Buyers)
	}

	// Failures
	if len(r.Failures) > 0 {
		sb.WriteString("## Unavailable Metrics\n\n")
		sb.WriteString("| Metric | Source | Kind | Reason |\n")
		sb.WriteString("|--------|--------|------|--------|\n")
		for _, f := range r.Failures {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n",
				f.Metric, f.Source, f.Kind, escapeCell(f.Reason)))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

func writeTrades(sb *strings.Builder, h *domain.TradeHistory) {
	sb.WriteString("## Trade History\n\n")
	if h == nil {
		sb.WriteString("Trade history unavailable.\n\n")
		return
	}
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Trade Events | %d |\n", len(h.Events)))
	sb.WriteString(fmt.Sprintf("| Suspect Events | %d |\n", h.SuspectCount))
	sb.WriteString(fmt.Sprintf("| Records Dropped | %d |\n", h.Drops.Total()))
	sb.WriteString(fmt.Sprintf("| Truncated | %t |\n", h.Truncated))
	sb.WriteString("\n")
}

func writePositions(sb *strings.Builder, ps []domain.PositionSummary, failed bool) {
	sb.WriteString("## Positions\n\n")
	if failed {
		sb.WriteString("Positions unavailable.\n\n")
		return
	}
	if len(ps) == 0 {
		sb.WriteString("No positions.\n\n")
		return
	}
	sb.WriteString("| Mint | Trades | Remaining | Cost Basis | Avg Cost | Realized PnL | Price | Unrealized PnL |\n")
	sb.WriteString("|------|--------|-----------|------------|----------|--------------|-------|----------------|\n")
	for _, p := range ps {
		sb.WriteString(fmt.Sprintf("| %s | %d | %.6f | %.9f | %.9f | %.9f | %s | %s |\n",
			p.Mint, p.TradeCount, p.RemainingTokens, p.CostBasisTotal, p.AverageCost(), p.RealizedPnL,
			optional(p.CurrentPrice), optional(p.UnrealizedPnL)))
	}
	sb.WriteString("\n")
}

func writeCensus(sb *strings.Builder, c *domain.Census) {
	sb.WriteString("## Holders\n\n")
	if c == nil {
		sb.WriteString("Holder census unavailable.\n\n")
		return
	}
	sb.WriteString(fmt.Sprintf("Holders: %d | Top 10: %.2f%% | Supply: %.6f\n\n",
		c.TotalHolderCount, c.Top10ConcentrationPercent, c.TotalSupply))
	if c.SupplyAdjusted {
		sb.WriteString(fmt.Sprintf("Reported supply %.6f was below the sum of balances and was adjusted.\n\n", c.ReportedSupply))
	}
	if len(c.Holders) == 0 {
		return
	}
	sb.WriteString("| # | Owner | Balance | % Supply | Accounts | Program |\n")
	sb.WriteString("|---|-------|---------|----------|----------|---------|\n")
	for i, h := range c.Holders {
		if i == maxHolderRows {
			sb.WriteString(fmt.Sprintf("\n%d more holders omitted.\n", len(c.Holders)-maxHolderRows))
			break
		}
		sb.WriteString(fmt.Sprintf("| %d | %s | %.6f | %.4f | %d | %t |\n",
			i+1, h.Owner, h.Balance, h.PercentOfSupply, h.TokenAccounts, h.ProgramOwned))
	}
	sb.WriteString("\n")
}

func writeBuyers(sb *strings.Builder, b *domain.BuyerCensus) {
	sb.WriteString("## Early Buyers\n\n")
	if b == nil {
		sb.WriteString("Buyer classification unavailable.\n\n")
		return
	}
	launch := time.UnixMilli(b.LaunchTimestampMs).UTC().Format(time.RFC3339)
	if b.LaunchEstimated {
		launch += " (estimated)"
	}
	sb.WriteString(fmt.Sprintf("Launch: %s | Buyers: %d | Snipers: %d | Early: %d | Organic: %d\n\n",
		launch, b.UniqueBuyerCount, b.SniperCount, b.EarlyCount, b.OrganicCount))
	if b.HistoryTruncated {
		sb.WriteString("**History truncated.** Buyers after the page cap are missing.\n\n")
	}
	if len(b.Buyers) == 0 {
		return
	}
	sb.WriteString("| Rank | Wallet | Label | Since Launch | Bought | Spent SOL |\n")
	sb.WriteString("|------|--------|-------|--------------|--------|-----------|\n")
	for _, c := range b.Buyers {
		if c.Label == domain.BuyerLabelOrganic {
			continue
		}
		sb.WriteString(fmt.Sprintf("| %d | %s | %s | %s | %.6f | %.9f |\n",
			c.FirstBuyRank, c.Wallet, c.Label, time.Duration(c.MsSinceLaunch)*time.Millisecond,
			c.TotalBoughtTokens, c.TotalSpentSol))
	}
	sb.WriteString("\n")
}

func optional(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.9f", *v)
}

func escapeCell(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "|", `\|`), "\n", " ")
}
