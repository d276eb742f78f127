package scanner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"optionsagent/internal/market"
)

var scanTime = time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)

func contract(symbol string, typ market.OptionType, strike float64, dte int, vol, oi int64, mid float64) market.Contract {
	return market.Contract{
		Symbol:       symbol,
		Ticker:       "TSLA",
		Type:         typ,
		Strike:       strike,
		Expiration:   scanTime.AddDate(0, 0, dte),
		Bid:          mid - 0.05,
		Ask:          mid + 0.05,
		Volume:       vol,
		OpenInterest: oi,
		ImpliedVol:   0.55,
	}
}

func snapshot(price float64, contracts ...market.Contract) *market.ChainSnapshot {
	return &market.ChainSnapshot{
		Ticker:          "TSLA",
		UnderlyingPrice: price,
		AsOf:            scanTime,
		Contracts:       contracts,
	}
}

func alertTypes(res Result) []string {
	out := make([]string, 0, len(res.Alerts))
	for _, a := range res.Alerts {
		out = append(out, a.Type)
	}
	return out
}

func hasType(res Result, typ string) *Alert {
	for i := range res.Alerts {
		if res.Alerts[i].Type == typ {
			return &res.Alerts[i]
		}
	}
	return nil
}

func TestScanNilAndEmpty(t *testing.T) {
	s := New(Thresholds{})
	if res := s.Scan(nil); len(res.Alerts) != 0 {
		t.Fatal("nil snapshot should produce nothing")
	}
	if res := s.Scan(snapshot(0)); len(res.Alerts) != 0 {
		t.Fatal("zero price should produce nothing")
	}
}

func TestScanVolOISurge(t *testing.T) {
	s := New(Thresholds{})
	// vol/oi = 4 > 3, vol 2000 > 100
	res := s.Scan(snapshot(400,
		contract("TSLA250404C00420000", market.Call, 420, 30, 2000, 500, 3.0),
		// 对照：比例高但量太小
		contract("TSLA250404C00430000", market.Call, 430, 30, 80, 10, 1.0),
		// 对照：OI 为 0 不触发（避免除零）
		contract("TSLA250404C00440000", market.Call, 440, 30, 500, 0, 1.0),
	))
	a := hasType(res, AlertVolOISurge)
	if a == nil {
		t.Fatalf("expected surge alert, got %v", alertTypes(res))
	}
	if a.Contract != "TSLA250404C00420000" {
		t.Fatalf("wrong contract: %s", a.Contract)
	}
	if a.VolOIRatio != 4.0 {
		t.Fatalf("ratio = %v, want 4.0", a.VolOIRatio)
	}
	if !strings.Contains(a.Interpretation, "Bullish") {
		t.Fatalf("call surge should read bullish: %q", a.Interpretation)
	}
	// flow = 2000 * 3.0 * 100
	if a.PremiumFlow != 600000 {
		t.Fatalf("premium flow = %v", a.PremiumFlow)
	}
}

func TestScanPutSurgeIsBearish(t *testing.T) {
	s := New(Thresholds{})
	res := s.Scan(snapshot(400,
		contract("TSLA250404P00380000", market.Put, 380, 30, 2000, 400, 2.0),
	))
	a := hasType(res, AlertVolOISurge)
	if a == nil || !strings.Contains(a.Interpretation, "Bearish") {
		t.Fatalf("put surge should read bearish: %+v", a)
	}
	if a.Side != "PUT" {
		t.Fatalf("side = %q", a.Side)
	}
}

func TestScanHighVolumeNeedsRealPremium(t *testing.T) {
	s := New(Thresholds{})
	res := s.Scan(snapshot(400,
		contract("BIG", market.Call, 420, 30, 6000, 50000, 2.5),
		// 量够大但权利金近乎为零，过滤掉
		contract("DUST", market.Call, 900, 30, 7000, 50000, 0.05),
	))
	a := hasType(res, AlertHighVolume)
	if a == nil {
		t.Fatalf("expected high-volume alert, got %v", alertTypes(res))
	}
	if a.Contract != "BIG" {
		t.Fatalf("wrong contract flagged: %s", a.Contract)
	}
	if !strings.Contains(a.Interpretation, "6,000") {
		t.Fatalf("volume should be comma-formatted: %q", a.Interpretation)
	}
}

func TestScanFarMonthInstitutional(t *testing.T) {
	s := New(Thresholds{})
	res := s.Scan(snapshot(400,
		// 120 DTE, vol 1500, flow = 1500*8*100 = 1.2M
		contract("FAR", market.Call, 450, 120, 1500, 2000, 8.0),
		// 近月大单不触发规则3
		contract("NEAR", market.Call, 450, 30, 1500, 2000, 8.0),
	))
	a := hasType(res, AlertFarMonth)
	if a == nil {
		t.Fatalf("expected far-month alert, got %v", alertTypes(res))
	}
	if a.Contract != "FAR" {
		t.Fatalf("wrong contract: %s", a.Contract)
	}
	if a.DTE != 120 {
		t.Fatalf("dte = %d", a.DTE)
	}
}

func TestScanATMMagnet(t *testing.T) {
	s := New(Thresholds{})
	res := s.Scan(snapshot(400,
		// 距现价 2.5%，OI 最大
		contract("ATM", market.Call, 410, 30, 10, 50000, 5.0),
		// 窗口内但 OI 较小
		contract("ATM2", market.Put, 395, 30, 10, 30000, 5.0),
		// OI 巨大但距现价 12%，不在窗口
		contract("OTM", market.Call, 450, 30, 10, 90000, 1.0),
	))
	a := hasType(res, AlertATMOIMagnet)
	if a == nil {
		t.Fatalf("expected magnet alert, got %v", alertTypes(res))
	}
	if a.Strike != 410 {
		t.Fatalf("magnet strike = %v, want 410", a.Strike)
	}
	if a.PremiumFlow != 0 {
		t.Fatalf("aggregate alert should carry zero flow: %v", a.PremiumFlow)
	}
}

func TestScanExtremePCRatio(t *testing.T) {
	s := New(Thresholds{})

	bearish := s.Scan(snapshot(400,
		contract("C1", market.Call, 410, 30, 1000, 5000, 2.0),
		contract("P1", market.Put, 390, 30, 2000, 5000, 2.0),
	))
	a := hasType(bearish, AlertExtremePCR)
	if a == nil {
		t.Fatal("pc=2.0 should alert")
	}
	if a.PCRatio != 2.0 || !strings.Contains(a.Interpretation, "bearish") {
		t.Fatalf("unexpected: %+v", a)
	}

	bullish := s.Scan(snapshot(400,
		contract("C2", market.Call, 410, 30, 4000, 5000, 2.0),
		contract("P2", market.Put, 390, 30, 1000, 5000, 2.0),
	))
	a = hasType(bullish, AlertExtremePCR)
	if a == nil || !strings.Contains(a.Interpretation, "bullish") {
		t.Fatalf("pc=0.25 should read bullish: %+v", a)
	}

	balanced := s.Scan(snapshot(400,
		contract("C3", market.Call, 410, 30, 1000, 5000, 2.0),
		contract("P3", market.Put, 390, 30, 1000, 5000, 2.0),
	))
	if hasType(balanced, AlertExtremePCR) != nil {
		t.Fatal("pc=1.0 must not alert")
	}
}

func TestScanCountsMalformed(t *testing.T) {
	s := New(Thresholds{})
	bad := market.Contract{Symbol: "BROKEN", Ticker: "TSLA", Type: "wat", Volume: 9999}
	res := s.Scan(snapshot(400,
		bad,
		market.Contract{Symbol: "NOSTRIKE", Ticker: "TSLA", Type: market.Call, Expiration: scanTime.AddDate(0, 0, 30)},
		contract("OK", market.Call, 410, 30, 10, 10, 1.0),
	))
	if res.Malformed != 2 {
		t.Fatalf("malformed = %d, want 2", res.Malformed)
	}
}

func TestDedupKeepsMaxFlowFirstSeenOrder(t *testing.T) {
	s := New(Thresholds{})
	// 同一合约同时满足规则1和规则2：surge 先出现，flow 相同的情况下保留先出现的那条
	res := s.Scan(snapshot(400,
		contract("DOUBLE", market.Call, 420, 30, 6000, 1000, 3.0),
	))
	count := 0
	for _, a := range res.Alerts {
		if a.Contract == "DOUBLE" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("dedup should leave 1 alert for DOUBLE, got %d", count)
	}
}

func TestDedupPrefersHigherFlow(t *testing.T) {
	alerts := []Alert{
		{Ticker: "TSLA", Type: AlertVolOISurge, Contract: "X", PremiumFlow: 100},
		{Ticker: "TSLA", Type: AlertHighVolume, Contract: "X", PremiumFlow: 900},
		{Ticker: "TSLA", Type: AlertHighVolume, Contract: "Y", PremiumFlow: 50},
	}
	out := dedup(alerts)
	if len(out) != 2 {
		t.Fatalf("len = %d, want 2", len(out))
	}
	// X 保留 flow 更高的那条，但仍占据首次出现的位置
	if out[0].Contract != "X" || out[0].PremiumFlow != 900 {
		t.Fatalf("out[0] = %+v", out[0])
	}
	if out[1].Contract != "Y" {
		t.Fatalf("out[1] = %+v", out[1])
	}
}

// fakeSource 按 ticker 返回预置快照。
type fakeSource struct {
	snaps map[string]*market.ChainSnapshot
	fail  map[string]bool
}

func (f *fakeSource) FetchPriceSeries(ctx context.Context, ticker string, days int) ([]market.Bar, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeSource) FetchChainSnapshot(ctx context.Context, ticker string, window market.ExpirationWindow) (*market.ChainSnapshot, error) {
	if f.fail[ticker] {
		return nil, fmt.Errorf("boom: %s", ticker)
	}
	return f.snaps[ticker], nil
}

func (f *fakeSource) FetchVolatilitySample(ctx context.Context, ticker string) (*market.VolSample, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeSource) Close() error { return nil }

func namedSnapshot(ticker string, price float64, contracts ...market.Contract) *market.ChainSnapshot {
	snap := snapshot(price, contracts...)
	snap.Ticker = ticker
	return snap
}

func TestScanBatchSortsAndSurvivesFailures(t *testing.T) {
	s := New(Thresholds{})
	src := &fakeSource{
		snaps: map[string]*market.ChainSnapshot{
			// flow = 2000*2*100 = 400k
			"AAA": namedSnapshot("AAA", 400, contract("A1", market.Call, 420, 30, 2000, 400, 2.0)),
			// flow = 2000*5*100 = 1M
			"BBB": namedSnapshot("BBB", 400, contract("B1", market.Call, 420, 30, 2000, 400, 5.0)),
		},
		fail: map[string]bool{"CCC": true},
	}

	alerts := s.ScanBatch(context.Background(), src, []string{"AAA", "CCC", "BBB"}, market.ExpirationWindow{MinDTE: 3, MaxDTE: 60})
	if len(alerts) != 2 {
		t.Fatalf("alerts = %d, want 2 (CCC failure must not abort)", len(alerts))
	}
	if alerts[0].Ticker != "BBB" || alerts[1].Ticker != "AAA" {
		t.Fatalf("expected flow-desc order BBB,AAA got %s,%s", alerts[0].Ticker, alerts[1].Ticker)
	}
}

func TestScanBatchStableForEqualFlow(t *testing.T) {
	s := New(Thresholds{})
	src := &fakeSource{
		snaps: map[string]*market.ChainSnapshot{
			"AAA": namedSnapshot("AAA", 400, contract("A1", market.Call, 420, 30, 2000, 400, 2.0)),
			"BBB": namedSnapshot("BBB", 400, contract("B1", market.Call, 420, 30, 2000, 400, 2.0)),
		},
	}
	// premium flow 相同时保持输入顺序
	alerts := s.ScanBatch(context.Background(), src, []string{"BBB", "AAA"}, market.ExpirationWindow{MinDTE: 3, MaxDTE: 60})
	if len(alerts) != 2 || alerts[0].Ticker != "BBB" || alerts[1].Ticker != "AAA" {
		t.Fatalf("tie order broken: %+v", alerts)
	}
}

func TestNormalizeThresholdsDefaults(t *testing.T) {
	th := NormalizeThresholds(Thresholds{})
	if th.VolOIRatio != 3 || th.VolOIMinVolume != 100 || th.HighVolume != 5000 {
		t.Fatalf("rule1/2 defaults: %+v", th)
	}
	if th.FarMonthDTE != 90 || th.FarMonthFlow != 100000 {
		t.Fatalf("rule3 defaults: %+v", th)
	}
	if th.ATMWindow != 0.05 || th.ATMMinOI != 10000 {
		t.Fatalf("rule4 defaults: %+v", th)
	}
	if th.PCRatioHigh != 1.5 || th.PCRatioLow != 0.5 || th.BatchParallel != 4 {
		t.Fatalf("rule5/batch defaults: %+v", th)
	}
	// 显式值不被覆盖
	custom := NormalizeThresholds(Thresholds{HighVolume: 9000})
	if custom.HighVolume != 9000 {
		t.Fatalf("custom threshold overwritten: %+v", custom)
	}
}
