package reporting

import (
	"fmt"
	"strings"

	"onchain-analytics/internal/analytics"
)

// RenderCSV renders the tables of a report as CSV blocks separated by a blank
// line: positions, holders, buyers, failures. Empty tables are omitted.
func RenderCSV(r *analytics.Report) string {
	var blocks []string

	if len(r.Positions) > 0 {
		var sb strings.Builder
		sb.WriteString("wallet,mint,trade_count,tokens_acquired,tokens_sold,remaining_tokens,")
		sb.WriteString("cost_basis_total,realized_proceeds,realized_pnl,current_price,unrealized_pnl\n")
		for _, p := range r.Positions {
			sb.WriteString(fmt.Sprintf("%s,%s,%d,%.9f,%.9f,%.9f,%.9f,%.9f,%.9f,%s,%s\n",
				p.Wallet, p.Mint, p.TradeCount,
				p.TokensAcquired, p.TokensSold, p.RemainingTokens,
				p.CostBasisTotal, p.RealizedProceeds, p.RealizedPnL,
				csvOptional(p.CurrentPrice), csvOptional(p.UnrealizedPnL),
			))
		}
		blocks = append(blocks, sb.String())
	}

	if r.Census != nil && len(r.Census.Holders) > 0 {
		var sb strings.Builder
		sb.WriteString("mint,rank,owner,balance,percent_of_supply,token_accounts,program_owned\n")
		for i, h := range r.Census.Holders {
			sb.WriteString(fmt.Sprintf("%s,%d,%s,%.9f,%.6f,%d,%t\n",
				r.Census.Mint, i+1, h.Owner, h.Balance, h.PercentOfSupply, h.TokenAccounts, h.ProgramOwned))
		}
		blocks = append(blocks, sb.String())
	}

	if r.Buyers != nil && len(r.Buyers.Buyers) > 0 {
		var sb strings.Builder
		sb.WriteString("mint,first_buy_rank,wallet,label,first_buy_timestamp_ms,ms_since_launch,total_bought_tokens,total_spent_sol,buy_count\n")
		for _, b := range r.Buyers.Buyers {
			sb.WriteString(fmt.Sprintf("%s,%d,%s,%s,%d,%d,%.9f,%.9f,%d\n",
				r.Buyers.Mint, b.FirstBuyRank, b.Wallet, b.Label,
				b.FirstBuyTimestampMs, b.MsSinceLaunch, b.TotalBoughtTokens, b.TotalSpentSol, b.BuyCount))
		}
		blocks = append(blocks, sb.String())
	}

	if len(r.Failures) > 0 {
		var sb strings.Builder
		sb.WriteString("metric,source,kind,reason\n")
		for _, f := range r.Failures {
			sb.WriteString(fmt.Sprintf("%s,%s,%s,%s\n", f.Metric, f.Source, f.Kind, csvQuote(f.Reason)))
		}
		blocks = append(blocks, sb.String())
	}

	return strings.Join(blocks, "\n")
}

func csvOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%.9f", *v)
}

// csvQuote quotes free text that may contain separators.
func csvQuote(s string) string {
	if !strings.ContainsAny(s, ",\"\n") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
