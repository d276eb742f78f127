package voltrack

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"optionsagent/internal/market"
	"optionsagent/internal/store"
)

func fp(v float64) *float64 { return &v }

func seed(t *testing.T, tr *Tracker, ticker string, ivs []float64) {
	t.Helper()
	for i, iv := range ivs {
		sample := market.VolSample{
			Ticker:     ticker,
			Date:       fmt.Sprintf("2025-03-%02d", i+1),
			ATMIV:      fp(iv),
			ClosePrice: 100,
		}
		if err := tr.Record(context.Background(), sample); err != nil {
			t.Fatal(err)
		}
	}
}

func TestRecordValidation(t *testing.T) {
	tr := New(store.NewMemoryIVStore())
	err := tr.Record(context.Background(), market.VolSample{Ticker: "SPY"})
	if err == nil {
		t.Fatal("expected error for sample without date")
	}
}

func TestRecordOverwritesSameDay(t *testing.T) {
	st := store.NewMemoryIVStore()
	tr := New(st)
	ctx := context.Background()

	for _, iv := range []float64{0.20, 0.25} {
		sample := market.VolSample{Ticker: "SPY", Date: "2025-03-01", ATMIV: fp(iv), ClosePrice: 500}
		if err := tr.Record(ctx, sample); err != nil {
			t.Fatal(err)
		}
	}
	ivs, err := st.RecentIVs(ctx, "SPY", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(ivs) != 1 || ivs[0] != 0.25 {
		t.Fatalf("same-day record should overwrite, got %v", ivs)
	}
}

func TestProfileNeedsTwoSamples(t *testing.T) {
	tr := New(store.NewMemoryIVStore())
	seed(t, tr, "TSLA", []float64{0.5})

	p, err := tr.Profile(context.Background(), "TSLA", 0)
	if err != nil {
		t.Fatal(err)
	}
	if p.IVPercentile != nil || p.IVRank != nil {
		t.Fatalf("expected nil stats with one sample: %+v", p)
	}
	if p.DataPoints != 1 {
		t.Fatalf("data points = %d, want 1", p.DataPoints)
	}
	if !strings.Contains(p.Message, "Need more data") {
		t.Fatalf("message = %q", p.Message)
	}
}

func TestProfilePercentileAndRank(t *testing.T) {
	tr := New(store.NewMemoryIVStore())
	// 历史按日期升序写入，最新一天 0.15 为当前值
	seed(t, tr, "NVDA", []float64{0.10, 0.12, 0.14, 0.16, 0.18, 0.15})

	p, err := tr.Profile(context.Background(), "NVDA", 252)
	if err != nil {
		t.Fatal(err)
	}
	// 历史 {0.10,0.12,0.14,0.16,0.18}，低于 0.15 的有 3 个 → 60.0
	if p.IVPercentile == nil || *p.IVPercentile != 60.0 {
		t.Fatalf("percentile = %v, want 60.0", p.IVPercentile)
	}
	// rank = (0.15-0.10)/(0.18-0.10)*100 = 62.5
	if p.IVRank == nil || *p.IVRank != 62.5 {
		t.Fatalf("rank = %v, want 62.5", p.IVRank)
	}
	if p.CurrentIV == nil || *p.CurrentIV != 15.0 {
		t.Fatalf("current IV = %v, want 15.0 (percent)", p.CurrentIV)
	}
	if p.IVMin == nil || *p.IVMin != 10.0 || p.IVMax == nil || *p.IVMax != 18.0 {
		t.Fatalf("min/max = %v/%v", p.IVMin, p.IVMax)
	}
	if p.DataPoints != 6 {
		t.Fatalf("data points = %d", p.DataPoints)
	}
}

func TestProfileFlatHistory(t *testing.T) {
	tr := New(store.NewMemoryIVStore())
	seed(t, tr, "KO", []float64{0.20, 0.20, 0.20, 0.20})

	p, err := tr.Profile(context.Background(), "KO", 252)
	if err != nil {
		t.Fatal(err)
	}
	if p.IVRank == nil || *p.IVRank != 50.0 {
		t.Fatalf("flat history rank = %v, want 50.0", p.IVRank)
	}
	if p.IVPercentile == nil || *p.IVPercentile != 0.0 {
		t.Fatalf("flat history percentile = %v, want 0.0", p.IVPercentile)
	}
}

func TestDashboardIsolatesFailures(t *testing.T) {
	tr := New(store.NewMemoryIVStore())
	seed(t, tr, "SPY", []float64{0.18, 0.22})

	rows := tr.Dashboard(context.Background(), []string{"SPY", "EMPTY"})
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[0].Ticker != "SPY" || rows[0].Status != "" {
		t.Fatalf("SPY row unexpected: %+v", rows[0])
	}
	if rows[0].CurrentIV == nil || *rows[0].CurrentIV != 22.0 {
		t.Fatalf("SPY current IV = %v", rows[0].CurrentIV)
	}
	if rows[1].Status != "no data" {
		t.Fatalf("EMPTY row status = %q", rows[1].Status)
	}
}
