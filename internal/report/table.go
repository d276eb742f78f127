package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"optionsagent/internal/analysis/indicator"
	"optionsagent/internal/analysis/voltrack"
	"optionsagent/internal/scanner"
	"optionsagent/internal/strategy"
)

// 终端报表。所有 Render* 输出到给定 writer，供 CLI 子命令直接使用。

func newTable(w io.Writer, title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	if title != "" {
		t.SetTitle(title)
	}
	return t
}

func fmtPtr(v *float64, format string) string {
	if v == nil {
		return "N/A"
	}
	return fmt.Sprintf(format, *v)
}

// RenderAlerts 打印一批异动告警，按调用方给定的顺序。
func RenderAlerts(w io.Writer, results []scanner.Result) {
	t := newTable(w, "Unusual Options Activity")
	t.AppendHeader(table.Row{"Ticker", "Type", "Contract", "Strike", "Exp", "Vol", "OI", "Flow", "Why"})
	total := 0
	for _, res := range results {
		for _, a := range res.Alerts {
			t.AppendRow(table.Row{
				a.Ticker,
				a.Type,
				a.Side,
				fmt.Sprintf("%.1f", a.Strike),
				a.Expiration,
				humanize.Comma(a.Volume),
				humanize.Comma(a.OpenInterest),
				"$" + humanize.CommafWithDigits(a.PremiumFlow, 0),
				text.WrapSoft(a.Interpretation, 48),
			})
			total++
		}
	}
	if total == 0 {
		fmt.Fprintln(w, "No unusual activity detected.")
		return
	}
	t.Render()
}

// RenderIVDashboard 打印关注列表的 IV 看板。
func RenderIVDashboard(w io.Writer, rows []voltrack.DashboardRow) {
	t := newTable(w, "IV Dashboard")
	t.AppendHeader(table.Row{"Ticker", "Close", "IV%", "IV Pctl", "IV Rank", "HV20%", "IV-HV", "Days"})
	for _, r := range rows {
		if r.Status != "" {
			t.AppendRow(table.Row{r.Ticker, "-", "-", "-", "-", "-", r.Status, r.DataPoints})
			continue
		}
		ivhv := "N/A"
		if r.IVHVDiff != nil {
			ivhv = fmt.Sprintf("%+.1f", *r.IVHVDiff)
		}
		t.AppendRow(table.Row{
			r.Ticker,
			fmt.Sprintf("%.2f", r.Close),
			fmtPtr(r.CurrentIV, "%.1f"),
			fmtPtr(r.IVPercentile, "%.1f"),
			fmtPtr(r.IVRank, "%.1f"),
			fmtPtr(r.HV20, "%.1f"),
			ivhv,
			r.DataPoints,
		})
	}
	t.Render()
}

// RenderTechnical 打印一只标的的技术面概览。
func RenderTechnical(w io.Writer, p *indicator.Profile) {
	t := newTable(w, fmt.Sprintf("%s Technical Profile", p.Ticker))
	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRows([]table.Row{
		{"Price", fmt.Sprintf("%.2f (%+.2f, %+.2f%%)", p.CurrentPrice, p.Change, p.ChangePct)},
		{"Trend", p.Trend},
		{"SMA 20/50/200", fmt.Sprintf("%s / %s / %s",
			fmtPtr(p.SMA20, "%.2f"), fmtPtr(p.SMA50, "%.2f"), fmtPtr(p.SMA200, "%.2f"))},
		{"RSI(14)", fmt.Sprintf("%s (%s)", fmtPtr(p.RSI, "%.1f"), p.RSISignal)},
		{"MACD", fmt.Sprintf("%s hist=%s cross=%s",
			fmtPtr(p.MACD, "%.3f"), fmtPtr(p.MACDHistogram, "%.3f"), p.MACDCross)},
		{"Bollinger", fmt.Sprintf("%s / %s / %s (%s)",
			fmtPtr(p.BBUpper, "%.2f"), fmtPtr(p.BBMiddle, "%.2f"), fmtPtr(p.BBLower, "%.2f"), p.BBPosition)},
		{"Stochastic K/D", fmt.Sprintf("%s / %s", fmtPtr(p.StochK, "%.1f"), fmtPtr(p.StochD, "%.1f"))},
		{"ATR(14)", fmt.Sprintf("%s (%s%%)", fmtPtr(p.ATR, "%.2f"), fmtPtr(p.ATRPct, "%.2f"))},
		{"Volume ratio", fmt.Sprintf("%.2f", p.VolumeRatio)},
		{"Support / Resistance", fmt.Sprintf("%.2f / %.2f", p.Support20, p.Resistance20)},
		{"Signal", fmt.Sprintf("%s (strength %d/5)", p.Signal, p.Strength)},
	})
	t.Render()
}

// RenderStrategies 打印策略推荐卡片。
func RenderStrategies(w io.Writer, recs []strategy.Recommendation) {
	if len(recs) == 0 {
		fmt.Fprintln(w, "No actionable strategy for the current conditions.")
		return
	}
	for i, r := range recs {
		t := newTable(w, fmt.Sprintf("Strategy %d: %s", i+1, r.Name))
		t.AppendHeader(table.Row{"Field", "Value"})
		legs := make([]string, 0, len(r.Legs))
		for _, leg := range r.Legs {
			s := fmt.Sprintf("%s %s $%.1f", leg.Action, leg.Type, leg.Strike)
			if leg.Note != "" {
				s += " (" + leg.Note + ")"
			}
			legs = append(legs, s)
		}
		sizing := r.Position
		if r.SizingNote != "" {
			sizing = r.SizingNote + "; " + r.Position
		}
		t.AppendRows([]table.Row{
			{"Name", r.NameCN},
			{"Direction", r.Direction},
			{"Legs", strings.Join(legs, "\n")},
			{"DTE", r.DTERange},
			{"Max profit", r.MaxProfit},
			{"Max loss", r.MaxLoss},
			{"Win rate est", r.WinRateEst},
			{"Sizing", sizing},
			{"Exit rules", strings.Join(r.ExitRules, "\n")},
		})
		t.Render()
		fmt.Fprintln(w)
	}
}
