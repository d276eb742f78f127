package voltrack

import (
	"context"
	"fmt"
	"math"

	"optionsagent/internal/logger"
	"optionsagent/internal/market"
	"optionsagent/internal/store"
)

// DefaultLookback 约等于一个交易年的样本数。
const DefaultLookback = 252

// Tracker 维护每个标的的波动率样本序列并计算 IV 百分位/排名。
type Tracker struct {
	store store.IVStore
}

func New(st store.IVStore) *Tracker {
	return &Tracker{store: st}
}

// Record 写入一日样本；同一 (ticker, date) 重复写入为覆盖。
func (t *Tracker) Record(ctx context.Context, sample market.VolSample) error {
	if sample.Ticker == "" || sample.Date == "" {
		return fmt.Errorf("voltrack: sample missing ticker/date")
	}
	return t.store.Upsert(ctx, sample)
}

// IVProfile describes where the latest IV sits against its own history.
// Percentile/rank are nil until at least two usable samples exist.
// IV 值以百分数输出（存储为小数，输出 ×100）。
type IVProfile struct {
	Ticker       string   `json:"ticker"`
	CurrentIV    *float64 `json:"current_iv"`
	IVPercentile *float64 `json:"iv_percentile"`
	IVRank       *float64 `json:"iv_rank"`
	IVMin        *float64 `json:"iv_min"`
	IVMax        *float64 `json:"iv_max"`
	DataPoints   int      `json:"data_points"`
	Message      string   `json:"message,omitempty"`
}

// Profile 计算最近 lookback 个样本下的 IV 百分位与排名。
//
// 百分位 = 历史样本中低于当前值的占比 ×100；
// 排名 = (当前 - 历史最小) / (历史最大 - 历史最小) ×100，历史走平时取 50。
func (t *Tracker) Profile(ctx context.Context, ticker string, lookback int) (*IVProfile, error) {
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	ivs, err := t.store.RecentIVs(ctx, ticker, lookback)
	if err != nil {
		return nil, fmt.Errorf("voltrack: read samples for %s: %w", ticker, err)
	}
	if len(ivs) < 2 {
		return &IVProfile{
			Ticker:     ticker,
			DataPoints: len(ivs),
			Message:    fmt.Sprintf("Need more data (%d days collected, recommend 30+ for meaningful percentile)", len(ivs)),
		}, nil
	}

	current := ivs[0]
	historical := ivs[1:]

	below := 0
	minIV, maxIV := historical[0], historical[0]
	for _, iv := range historical {
		if iv < current {
			below++
		}
		if iv < minIV {
			minIV = iv
		}
		if iv > maxIV {
			maxIV = iv
		}
	}
	percentile := float64(below) / float64(len(historical)) * 100

	rank := 50.0
	if maxIV != minIV {
		rank = (current - minIV) / (maxIV - minIV) * 100
	}

	return &IVProfile{
		Ticker:       ticker,
		CurrentIV:    round1p(current * 100),
		IVPercentile: round1p(percentile),
		IVRank:       round1p(rank),
		IVMin:        round1p(minIV * 100),
		IVMax:        round1p(maxIV * 100),
		DataPoints:   len(ivs),
	}, nil
}

// DashboardRow 是看板里的一行：最新样本 + 百分位统计。
type DashboardRow struct {
	Ticker       string   `json:"ticker"`
	Close        float64  `json:"close,omitempty"`
	CurrentIV    *float64 `json:"current_iv"`
	IVPercentile *float64 `json:"iv_percentile"`
	IVRank       *float64 `json:"iv_rank"`
	HV20         *float64 `json:"hv20"`
	HV60         *float64 `json:"hv60"`
	IVHVDiff     *float64 `json:"iv_hv_diff"`
	DataPoints   int      `json:"data_points"`
	Status       string   `json:"status,omitempty"`
}

// Dashboard 汇总整个关注列表的 IV 概况；单个标的出错不影响其余行。
func (t *Tracker) Dashboard(ctx context.Context, tickers []string) []DashboardRow {
	rows := make([]DashboardRow, 0, len(tickers))
	for _, ticker := range tickers {
		latest, err := t.store.Latest(ctx, ticker)
		if err != nil {
			logger.Warnf("[voltrack] dashboard read %s: %v", ticker, err)
			rows = append(rows, DashboardRow{Ticker: ticker, Status: "error: " + err.Error()})
			continue
		}
		if latest == nil {
			rows = append(rows, DashboardRow{Ticker: ticker, Status: "no data"})
			continue
		}
		profile, err := t.Profile(ctx, ticker, DefaultLookback)
		if err != nil {
			rows = append(rows, DashboardRow{Ticker: ticker, Status: "error: " + err.Error()})
			continue
		}
		row := DashboardRow{
			Ticker:       ticker,
			Close:        latest.ClosePrice,
			IVPercentile: profile.IVPercentile,
			IVRank:       profile.IVRank,
			DataPoints:   profile.DataPoints,
		}
		if latest.ATMIV != nil {
			row.CurrentIV = round1p(*latest.ATMIV * 100)
		}
		if latest.HV20 != nil {
			row.HV20 = round1p(*latest.HV20 * 100)
		}
		if latest.HV60 != nil {
			row.HV60 = round1p(*latest.HV60 * 100)
		}
		if latest.ATMIV != nil && latest.HV20 != nil {
			row.IVHVDiff = round1p((*latest.ATMIV - *latest.HV20) * 100)
		}
		rows = append(rows, row)
	}
	return rows
}

func round1p(v float64) *float64 {
	r := math.Round(v*10) / 10
	return &r
}
