package market

import "context"

// Source 统一对接外部行情供应商。
// 实现负责限速、重试与超时；引擎侧只消费返回值。
type Source interface {
	// FetchPriceSeries 拉取最近 days 天的日线并按日期升序返回。
	// 空切片表示"无数据"，不是错误。
	FetchPriceSeries(ctx context.Context, ticker string, days int) ([]Bar, error)
	// FetchChainSnapshot 拉取到期窗口内的期权链快照（含标的现价）。
	FetchChainSnapshot(ctx context.Context, ticker string, window ExpirationWindow) (*ChainSnapshot, error)
	// FetchVolatilitySample 取当日波动率样本（ATM IV + HV20/HV60 + 收盘价）。
	FetchVolatilitySample(ctx context.Context, ticker string) (*VolSample, error)
	// Close 释放底层资源。
	Close() error
}
