package store

import (
	"context"
	"path/filepath"
	"testing"

	"optionsagent/internal/market"
)

func fp(v float64) *float64 { return &v }

// 两种实现行为必须一致，共用同一组断言。
func runStoreSuite(t *testing.T, st IVStore) {
	ctx := context.Background()

	if err := st.Upsert(ctx, market.VolSample{Ticker: "SPY"}); err == nil {
		t.Fatal("expected error for missing date")
	}

	samples := []market.VolSample{
		{Ticker: "SPY", Date: "2025-03-01", ATMIV: fp(0.18), HV20: fp(0.15), ClosePrice: 500},
		{Ticker: "SPY", Date: "2025-03-02", ATMIV: nil, ClosePrice: 502}, // IV 缺失的样本
		{Ticker: "SPY", Date: "2025-03-03", ATMIV: fp(0.22), HV20: fp(0.16), ClosePrice: 505},
		{Ticker: "QQQ", Date: "2025-03-03", ATMIV: fp(0.30), ClosePrice: 400},
	}
	for _, s := range samples {
		if err := st.Upsert(ctx, s); err != nil {
			t.Fatal(err)
		}
	}
	// 覆盖写
	if err := st.Upsert(ctx, market.VolSample{Ticker: "SPY", Date: "2025-03-03", ATMIV: fp(0.25), ClosePrice: 506}); err != nil {
		t.Fatal(err)
	}

	ivs, err := st.RecentIVs(ctx, "SPY", 252)
	if err != nil {
		t.Fatal(err)
	}
	// IV 为空的 03-02 被跳过，降序
	want := []float64{0.25, 0.18}
	if len(ivs) != len(want) {
		t.Fatalf("RecentIVs = %v, want %v", ivs, want)
	}
	for i := range want {
		if ivs[i] != want[i] {
			t.Fatalf("RecentIVs[%d] = %v, want %v", i, ivs[i], want[i])
		}
	}

	latest, err := st.Latest(ctx, "SPY")
	if err != nil {
		t.Fatal(err)
	}
	if latest == nil || latest.Date != "2025-03-03" || latest.ClosePrice != 506 {
		t.Fatalf("Latest = %+v", latest)
	}

	none, err := st.Latest(ctx, "MISSING")
	if err != nil {
		t.Fatal(err)
	}
	if none != nil {
		t.Fatalf("Latest for unknown ticker = %+v, want nil", none)
	}

	hist, err := st.History(ctx, "SPY", 252)
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 3 {
		t.Fatalf("History len = %d, want 3", len(hist))
	}
	if hist[0].Date != "2025-03-01" || hist[2].Date != "2025-03-03" {
		t.Fatalf("History order wrong: %s .. %s", hist[0].Date, hist[2].Date)
	}
	if hist[1].ATMIV != nil {
		t.Fatalf("missing IV should survive round-trip as nil: %+v", hist[1])
	}

	limited, err := st.History(ctx, "SPY", 2)
	if err != nil {
		t.Fatal(err)
	}
	// limit 取最近 2 条，仍按升序
	if len(limited) != 2 || limited[0].Date != "2025-03-02" || limited[1].Date != "2025-03-03" {
		t.Fatalf("limited history = %+v", limited)
	}
}

func TestMemoryIVStore(t *testing.T) {
	st := NewMemoryIVStore()
	defer st.Close()
	runStoreSuite(t, st)
}

func TestSQLiteIVStore(t *testing.T) {
	st, err := OpenSQLite(filepath.Join(t.TempDir(), "iv.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	runStoreSuite(t, st)
}

func TestSQLiteReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "iv.db")
	ctx := context.Background()

	st, err := OpenSQLite(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := st.Upsert(ctx, market.VolSample{Ticker: "AMD", Date: "2025-03-01", ATMIV: fp(0.45), ClosePrice: 150}); err != nil {
		t.Fatal(err)
	}
	if err := st.Close(); err != nil {
		t.Fatal(err)
	}

	st2, err := OpenSQLite(path)
	if err != nil {
		t.Fatal(err)
	}
	defer st2.Close()
	latest, err := st2.Latest(ctx, "AMD")
	if err != nil {
		t.Fatal(err)
	}
	if latest == nil || latest.ATMIV == nil || *latest.ATMIV != 0.45 {
		t.Fatalf("reopened store lost data: %+v", latest)
	}
}
