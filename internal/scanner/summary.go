package scanner

import (
	"math"

	"optionsagent/internal/market"
)

// ChainSummary 快照级别的概览，供链路端点直接返回。
type ChainSummary struct {
	Ticker        string           `json:"ticker"`
	Count         int              `json:"total_contracts"`
	AvgIV         *float64         `json:"avg_iv"`
	HighestOICall *market.Contract `json:"highest_oi_call,omitempty"`
	HighestOIPut  *market.Contract `json:"highest_oi_put,omitempty"`
}

// Summarize 统计合约数、平均 IV 以及双边 OI 最高的合约。
func Summarize(snap *market.ChainSnapshot) ChainSummary {
	sum := ChainSummary{}
	if snap == nil {
		return sum
	}
	sum.Ticker = snap.Ticker
	var ivTotal float64
	var ivCount int
	var bestCall, bestPut *market.Contract
	for i := range snap.Contracts {
		c := &snap.Contracts[i]
		if !c.Valid() {
			continue
		}
		sum.Count++
		if c.ImpliedVol > 0 {
			ivTotal += c.ImpliedVol
			ivCount++
		}
		switch c.Type {
		case market.Call:
			if bestCall == nil || c.OpenInterest > bestCall.OpenInterest {
				bestCall = c
			}
		case market.Put:
			if bestPut == nil || c.OpenInterest > bestPut.OpenInterest {
				bestPut = c
			}
		}
	}
	if ivCount > 0 {
		avg := math.Round(ivTotal/float64(ivCount)*10000) / 10000
		sum.AvgIV = &avg
	}
	sum.HighestOICall = bestCall
	sum.HighestOIPut = bestPut
	return sum
}
