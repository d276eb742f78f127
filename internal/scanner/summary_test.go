package scanner

import (
	"testing"

	"optionsagent/internal/market"
)

func TestSummarize(t *testing.T) {
	snap := snapshot(400,
		contract("C1", market.Call, 410, 30, 100, 5000, 2.0),
		contract("C2", market.Call, 420, 30, 100, 9000, 1.0),
		contract("P1", market.Put, 390, 30, 100, 7000, 2.0),
		market.Contract{Symbol: "BROKEN", Ticker: "TSLA"}, // 残缺合约不计入
	)
	sum := Summarize(snap)
	if sum.Ticker != "TSLA" || sum.Count != 3 {
		t.Fatalf("summary = %+v", sum)
	}
	if sum.AvgIV == nil || *sum.AvgIV != 0.55 {
		t.Fatalf("avg iv = %v, want 0.55", sum.AvgIV)
	}
	if sum.HighestOICall == nil || sum.HighestOICall.Symbol != "C2" {
		t.Fatalf("highest OI call = %+v", sum.HighestOICall)
	}
	if sum.HighestOIPut == nil || sum.HighestOIPut.Symbol != "P1" {
		t.Fatalf("highest OI put = %+v", sum.HighestOIPut)
	}
}

func TestSummarizeNil(t *testing.T) {
	sum := Summarize(nil)
	if sum.Count != 0 || sum.AvgIV != nil {
		t.Fatalf("nil snapshot summary = %+v", sum)
	}
}
