package market

import "time"

// DateLayout 是样本与到期日使用的日期格式（与数据源返回格式一致）。
const DateLayout = "2006-01-02"

// Bar 一根日线行情。
type Bar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// OptionType is the contract side, "call" or "put".
type OptionType string

const (
	Call OptionType = "call"
	Put  OptionType = "put"
)

// Contract is one row of an options-chain snapshot.
type Contract struct {
	Symbol       string     `json:"symbol,omitempty"` // OCC contract symbol, may be empty
	Ticker       string     `json:"ticker"`
	Type         OptionType `json:"type"`
	Strike       float64    `json:"strike"`
	Expiration   time.Time  `json:"expiration"`
	Bid          float64    `json:"bid"`
	Ask          float64    `json:"ask"`
	Volume       int64      `json:"volume"`
	OpenInterest int64      `json:"open_interest"`
	ImpliedVol   float64    `json:"iv,omitempty"` // fraction, 0 when the source had none
}

// Mid returns the bid/ask midpoint.
func (c Contract) Mid() float64 {
	return (c.Bid + c.Ask) / 2
}

// Valid reports whether the contract carries the fields every rule needs.
// 缺 strike/type/expiration 的残缺合约会被扫描器跳过并计数。
func (c Contract) Valid() bool {
	if c.Strike <= 0 || c.Expiration.IsZero() {
		return false
	}
	return c.Type == Call || c.Type == Put
}

// ChainSnapshot 某一标的在一个到期窗口内的期权链快照。
type ChainSnapshot struct {
	Ticker          string     `json:"ticker"`
	UnderlyingPrice float64    `json:"underlying_price"`
	AsOf            time.Time  `json:"as_of"`
	Contracts       []Contract `json:"contracts"`
}

// ExpirationWindow bounds a chain snapshot by days to expiration.
type ExpirationWindow struct {
	MinDTE int
	MaxDTE int
}

// VolSample 单日波动率样本，(ticker, date) 唯一。
// 指针字段表示数据源缺失该值。
type VolSample struct {
	Ticker     string   `json:"ticker"`
	Date       string   `json:"date"` // DateLayout
	ATMIV      *float64 `json:"atm_iv,omitempty"`
	HV20       *float64 `json:"hv20,omitempty"`
	HV60       *float64 `json:"hv60,omitempty"`
	ClosePrice float64  `json:"close_price"`
}
