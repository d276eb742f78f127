package scanner

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"optionsagent/internal/logger"
	"optionsagent/internal/market"
)

// Alert types, 与历史数据兼容的固定标签。
const (
	AlertVolOISurge  = "VOL/OI_SURGE"
	AlertHighVolume  = "HIGH_VOLUME"
	AlertFarMonth    = "INSTITUTIONAL_FAR_MONTH"
	AlertATMOIMagnet = "ATM_OI_MAGNET"
	AlertExtremePCR  = "EXTREME_PC_RATIO"
)

// Thresholds 把扫描规则里的魔法数字集中到一处，便于测试覆盖。
type Thresholds struct {
	VolOIRatio       float64 `toml:"vol_oi_ratio"`        // 规则1：volume/OI 下限
	VolOIMinVolume   int64   `toml:"vol_oi_min_volume"`   // 规则1：最小成交量
	HighVolume       int64   `toml:"high_volume"`         // 规则2：绝对成交量下限
	HighVolumeMinMid float64 `toml:"high_volume_min_mid"` // 规则2：过滤无价值深虚值
	FarMonthDTE      int     `toml:"far_month_dte"`       // 规则3：远月界线
	FarMonthVolume   int64   `toml:"far_month_volume"`    // 规则3：最小成交量
	FarMonthFlow     float64 `toml:"far_month_flow"`      // 规则3：最小权利金流
	ATMWindow        float64 `toml:"atm_window"`          // 规则4：距现价比例
	ATMMinOI         int64   `toml:"atm_min_oi"`          // 规则4：OI 下限
	PCRatioHigh      float64 `toml:"pc_ratio_high"`       // 规则5：看跌倾斜界线
	PCRatioLow       float64 `toml:"pc_ratio_low"`        // 规则5：看涨倾斜界线
	BatchParallel    int     `toml:"batch_parallel"`      // 批量扫描并发度
}

// NormalizeThresholds fills zero fields with the documented defaults.
func NormalizeThresholds(t Thresholds) Thresholds {
	if t.VolOIRatio <= 0 {
		t.VolOIRatio = 3
	}
	if t.VolOIMinVolume <= 0 {
		t.VolOIMinVolume = 100
	}
	if t.HighVolume <= 0 {
		t.HighVolume = 5000
	}
	if t.HighVolumeMinMid <= 0 {
		t.HighVolumeMinMid = 0.10
	}
	if t.FarMonthDTE <= 0 {
		t.FarMonthDTE = 90
	}
	if t.FarMonthVolume <= 0 {
		t.FarMonthVolume = 1000
	}
	if t.FarMonthFlow <= 0 {
		t.FarMonthFlow = 100000
	}
	if t.ATMWindow <= 0 {
		t.ATMWindow = 0.05
	}
	if t.ATMMinOI <= 0 {
		t.ATMMinOI = 10000
	}
	if t.PCRatioHigh <= 0 {
		t.PCRatioHigh = 1.5
	}
	if t.PCRatioLow <= 0 {
		t.PCRatioLow = 0.5
	}
	if t.BatchParallel <= 0 {
		t.BatchParallel = 4
	}
	return t
}

// Alert 一条异动告警。聚合类告警（磁吸位、P/C 比）没有单一合约，
// premium_flow 为 0，排序时自然沉底。
type Alert struct {
	Ticker         string  `json:"ticker"`
	Type           string  `json:"type"`
	Contract       string  `json:"contract,omitempty"`
	Side           string  `json:"side,omitempty"` // CALL / PUT
	Strike         float64 `json:"strike,omitempty"`
	Expiration     string  `json:"expiration,omitempty"`
	DTE            int     `json:"dte,omitempty"`
	Volume         int64   `json:"volume,omitempty"`
	OpenInterest   int64   `json:"open_interest,omitempty"`
	VolOIRatio     float64 `json:"vol_oi_ratio,omitempty"`
	IV             float64 `json:"iv,omitempty"`
	MidPrice       float64 `json:"mid_price,omitempty"`
	PremiumFlow    float64 `json:"premium_flow"`
	PutVolume      int64   `json:"put_volume,omitempty"`
	CallVolume     int64   `json:"call_volume,omitempty"`
	PCRatio        float64 `json:"pc_ratio,omitempty"`
	Interpretation string  `json:"interpretation"`
}

// dedupKey 合约符号优先，聚合类告警退化为 ticker_type_strike 组合键。
func (a Alert) dedupKey() string {
	if a.Contract != "" {
		return a.Contract
	}
	return fmt.Sprintf("%s_%s_%v", a.Ticker, a.Type, a.Strike)
}

// Result is one instrument's scan outcome. Malformed counts contracts that
// were skipped for missing strike/type/expiration.
type Result struct {
	Ticker    string  `json:"ticker"`
	Alerts    []Alert `json:"alerts"`
	Malformed int     `json:"malformed,omitempty"`
}

// Scanner 对期权链快照执行五条独立的异动检测规则。
type Scanner struct {
	th Thresholds
}

func New(th Thresholds) *Scanner {
	return &Scanner{th: NormalizeThresholds(th)}
}

// Scan 评估单个标的快照，返回去重后的告警（不排序，批量侧统一排序）。
func (s *Scanner) Scan(snap *market.ChainSnapshot) Result {
	res := Result{}
	if snap == nil || snap.Ticker == "" {
		return res
	}
	res.Ticker = snap.Ticker
	price := snap.UnderlyingPrice
	if price <= 0 || len(snap.Contracts) == 0 {
		return res
	}
	asOf := snap.AsOf
	if asOf.IsZero() {
		asOf = time.Now()
	}

	var alerts []Alert
	var totalCallVol, totalPutVol int64
	var atmBest *market.Contract // 5% 窗口内 OI 最高的合约

	for i := range snap.Contracts {
		c := snap.Contracts[i]
		if !c.Valid() {
			res.Malformed++
			continue
		}
		side := "CALL"
		if c.Type == market.Put {
			side = "PUT"
		}
		dte := daysBetween(asOf, c.Expiration)
		mid := c.Mid()
		flow := float64(c.Volume) * mid * 100

		if c.Type == market.Call {
			totalCallVol += c.Volume
		} else {
			totalPutVol += c.Volume
		}

		if math.Abs(c.Strike-price)/price < s.th.ATMWindow {
			if atmBest == nil || c.OpenInterest > atmBest.OpenInterest {
				atmBest = &snap.Contracts[i]
			}
		}

		// 规则1：Vol/OI 激增（新开仓）
		if c.OpenInterest > 0 && float64(c.Volume)/float64(c.OpenInterest) > s.th.VolOIRatio &&
			c.Volume > s.th.VolOIMinVolume {
			ratio := float64(c.Volume) / float64(c.OpenInterest)
			sentiment := "Bullish"
			if side == "PUT" {
				sentiment = "Bearish"
			}
			alerts = append(alerts, Alert{
				Ticker: snap.Ticker, Type: AlertVolOISurge,
				Contract: c.Symbol, Side: side, Strike: c.Strike,
				Expiration: c.Expiration.Format(market.DateLayout), DTE: dte,
				Volume: c.Volume, OpenInterest: c.OpenInterest,
				VolOIRatio: round(ratio, 1), IV: round(c.ImpliedVol*100, 1),
				MidPrice: round(mid, 2), PremiumFlow: math.Round(flow),
				Interpretation: fmt.Sprintf("New positions surging: %.1fx OI traded today. %s signal.", ratio, sentiment),
			})
		}

		// 规则2：绝对成交量异常
		if c.Volume > s.th.HighVolume && mid > s.th.HighVolumeMinMid {
			alerts = append(alerts, Alert{
				Ticker: snap.Ticker, Type: AlertHighVolume,
				Contract: c.Symbol, Side: side, Strike: c.Strike,
				Expiration: c.Expiration.Format(market.DateLayout), DTE: dte,
				Volume: c.Volume, OpenInterest: c.OpenInterest,
				IV: round(c.ImpliedVol*100, 1), MidPrice: round(mid, 2),
				PremiumFlow: math.Round(flow),
				Interpretation: fmt.Sprintf("Heavy %s activity: %s contracts traded, $%s premium flow.",
					side, humanize.Comma(c.Volume), humanize.CommafWithDigits(math.Round(flow), 0)),
			})
		}

		// 规则3：远月大单（机构建仓）
		if dte > s.th.FarMonthDTE && c.Volume > s.th.FarMonthVolume && flow > s.th.FarMonthFlow {
			alerts = append(alerts, Alert{
				Ticker: snap.Ticker, Type: AlertFarMonth,
				Contract: c.Symbol, Side: side, Strike: c.Strike,
				Expiration: c.Expiration.Format(market.DateLayout), DTE: dte,
				Volume: c.Volume, OpenInterest: c.OpenInterest,
				IV: round(c.ImpliedVol*100, 1), MidPrice: round(mid, 2),
				PremiumFlow: math.Round(flow),
				Interpretation: fmt.Sprintf("Possible institutional positioning: %d DTE, $%s flow in far-month %s.",
					dte, humanize.CommafWithDigits(math.Round(flow), 0), side),
			})
		}
	}

	// 规则4：ATM 高 OI 磁吸位
	if atmBest != nil && atmBest.OpenInterest > s.th.ATMMinOI {
		side := "CALL"
		if atmBest.Type == market.Put {
			side = "PUT"
		}
		alerts = append(alerts, Alert{
			Ticker: snap.Ticker, Type: AlertATMOIMagnet,
			Side: side, Strike: atmBest.Strike,
			Expiration: atmBest.Expiration.Format(market.DateLayout),
			OpenInterest: atmBest.OpenInterest, PremiumFlow: 0,
			Interpretation: fmt.Sprintf("Large OI at $%.0f (%s contracts) - potential price magnet.",
				atmBest.Strike, humanize.Comma(atmBest.OpenInterest)),
		})
	}

	// 规则5：极端 Put/Call 成交量比
	if totalCallVol > 0 {
		pc := float64(totalPutVol) / float64(totalCallVol)
		if pc > s.th.PCRatioHigh || pc < s.th.PCRatioLow {
			sentiment := "bullish (heavy call buying)"
			if pc > s.th.PCRatioHigh {
				sentiment = "bearish (heavy put buying)"
			}
			alerts = append(alerts, Alert{
				Ticker: snap.Ticker, Type: AlertExtremePCR,
				PutVolume: totalPutVol, CallVolume: totalCallVol,
				PCRatio: round(pc, 2), PremiumFlow: 0,
				Interpretation: fmt.Sprintf("Put/Call ratio %.2f - %s.", pc, sentiment),
			})
		}
	}

	res.Alerts = dedup(alerts)
	return res
}

// dedup 按合约身份合并，保留 premium_flow 最高的一条；保持首次出现的顺序。
func dedup(alerts []Alert) []Alert {
	if len(alerts) == 0 {
		return nil
	}
	index := make(map[string]int, len(alerts))
	out := make([]Alert, 0, len(alerts))
	for _, a := range alerts {
		key := a.dedupKey()
		if i, ok := index[key]; ok {
			if a.PremiumFlow > out[i].PremiumFlow {
				out[i] = a
			}
			continue
		}
		index[key] = len(out)
		out = append(out, a)
	}
	return out
}

// ScanBatch 并发扫描整个列表，汇总后按 premium_flow 降序稳定排序。
// 单个标的失败只记日志，不影响其余标的。
func (s *Scanner) ScanBatch(ctx context.Context, src market.Source, tickers []string, window market.ExpirationWindow) []Alert {
	traceID := uuid.NewString()
	results := make([]Result, len(tickers))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.th.BatchParallel)
	for i, ticker := range tickers {
		i, ticker := i, ticker
		g.Go(func() error {
			snap, err := src.FetchChainSnapshot(ctx, ticker, window)
			if err != nil {
				logger.Warnf("[scanner] %s fetch chain for %s: %v", traceID, ticker, err)
				return nil
			}
			results[i] = s.Scan(snap)
			if results[i].Malformed > 0 {
				logger.Debugf("[scanner] %s %s: skipped %d malformed contracts", traceID, ticker, results[i].Malformed)
			}
			return nil
		})
	}
	g.Wait() // goroutine 从不返回错误，聚合失败都已记日志

	var all []Alert
	for _, r := range results {
		all = append(all, r.Alerts...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].PremiumFlow > all[j].PremiumFlow
	})
	logger.Infof("[scanner] %s scanned %d tickers, %d alerts", traceID, len(tickers), len(all))
	return all
}

// daysBetween 按自然日计算 DTE（忽略时分秒）。
func daysBetween(from, to time.Time) int {
	f := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	t := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return int(t.Sub(f).Hours() / 24)
}

func round(v float64, digits int) float64 {
	factor := math.Pow10(digits)
	return math.Round(v*factor) / factor
}
