package polygon

import (
	"context"
	"fmt"
	"math"
	"time"

	"optionsagent/internal/logger"
	"optionsagent/internal/market"
)

// FetchVolatilitySample 采集单日样本：
// 近 90 天收盘价算 HV20/HV60（年化），再从 20-45 DTE 的 call 链里取
// 离现价最近的行权价 IV 作为 ATM IV。IV 拿不到时样本仍然有效。
func (c *Client) FetchVolatilitySample(ctx context.Context, ticker string) (*market.VolSample, error) {
	bars, err := c.FetchPriceSeries(ctx, ticker, 90)
	if err != nil {
		return nil, err
	}
	if len(bars) < 5 {
		return nil, fmt.Errorf("polygon: insufficient price data for %s (%d bars)", ticker, len(bars))
	}

	closes := make([]float64, 0, len(bars))
	for _, b := range bars {
		if b.Close > 0 {
			closes = append(closes, b.Close)
		}
	}
	if len(closes) < 5 {
		return nil, fmt.Errorf("polygon: insufficient close data for %s", ticker)
	}

	sample := &market.VolSample{
		Ticker:     ticker,
		Date:       time.Now().Format(market.DateLayout),
		ClosePrice: closes[len(closes)-1],
		HV20:       annualizedHV(closes, 20),
		HV60:       annualizedHV(closes, 60),
	}

	iv, err := c.atmIV(ctx, ticker, sample.ClosePrice)
	if err != nil {
		logger.Warnf("[polygon] %s ATM IV unavailable: %v", ticker, err)
	} else if iv != nil {
		sample.ATMIV = iv
	}
	return sample, nil
}

// annualizedHV 对最近 n 个对数收益取总体标准差并年化（×√252）。
// 样本不足 n 时返回 nil。
func annualizedHV(closes []float64, n int) *float64 {
	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		returns = append(returns, math.Log(closes[i]/closes[i-1]))
	}
	if len(returns) < n {
		return nil
	}
	tail := returns[len(returns)-n:]

	var sum float64
	for _, r := range tail {
		sum += r
	}
	mean := sum / float64(n)
	var sq float64
	for _, r := range tail {
		d := r - mean
		sq += d * d
	}
	hv := math.Sqrt(sq/float64(n)) * math.Sqrt(252)
	return &hv
}

// atmIV 在 20-45 DTE 的 call 合约中取行权价离现价最近且 IV>0 的那个。
func (c *Client) atmIV(ctx context.Context, ticker string, price float64) (*float64, error) {
	snap, err := c.fetchChain(ctx, ticker, market.ExpirationWindow{MinDTE: 20, MaxDTE: 45}, "call")
	if err != nil {
		return nil, err
	}
	var best *float64
	bestDist := math.Inf(1)
	for _, ct := range snap.Contracts {
		if ct.ImpliedVol <= 0 || ct.Strike <= 0 {
			continue
		}
		dist := math.Abs(ct.Strike - price)
		if dist < bestDist {
			bestDist = dist
			iv := ct.ImpliedVol
			best = &iv
		}
	}
	return best, nil
}
