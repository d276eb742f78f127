package strategy

// 策略选择器：把 (趋势, IV 环境, 风险偏好) 映射为具体的期权策略模板。
// 权利金估算是宽度/现价的固定比例启发值，不是定价模型，字段语义与
// 历史报告保持兼容。

// Risk levels.
const (
	RiskConservative = "conservative"
	RiskModerate     = "moderate"
	RiskAggressive   = "aggressive"
)

// riskMultipliers 单笔最大风险占账户的比例。
var riskMultipliers = map[string]float64{
	RiskConservative: 0.02,
	RiskModerate:     0.05,
	RiskAggressive:   0.10,
}

// Params 一次推荐请求的全部输入。
// IVPercentile 为 nil 时按中位数 50 处理；ATR 为 nil 时取现价的 3%。
type Params struct {
	Ticker       string
	Price        float64
	Trend        string // bullish / bearish / neutral
	IVPercentile *float64
	DTE          int
	RiskLevel    string
	AccountSize  float64
	ATR          *float64
}

// Leg is one side of a multi-leg position.
type Leg struct {
	Action string  `json:"action"` // BUY / SELL
	Type   string  `json:"type"`   // CALL / PUT
	Strike float64 `json:"strike"`
	Note   string  `json:"note,omitempty"`
}

// Recommendation 一个可执行的策略模板：腿、行权价、仓位与离场规则。
type Recommendation struct {
	Name       string   `json:"name_en"`
	NameCN     string   `json:"name_cn"`
	Direction  string   `json:"direction"`
	Legs       []Leg    `json:"legs"`
	DTERange   string   `json:"dte_range"`
	MaxProfit  string   `json:"max_profit"`
	MaxLoss    string   `json:"max_loss"`
	WinRateEst string   `json:"win_rate_est"`
	Contracts  int      `json:"contracts,omitempty"`
	SizingNote string   `json:"sizing_note,omitempty"` // 非定义风险策略没有合约数，只给提示
	ExitRules  []string `json:"exit_rules"`
	Position   string   `json:"position_size"`

	// Echoed request context.
	Ticker          string  `json:"ticker"`
	CurrentPrice    float64 `json:"current_price"`
	IVEnvironment   string  `json:"iv_environment"` // high / low
	TrendUsed       string  `json:"trend_used"`
	RiskLevel       string  `json:"risk_level"`
	AccountSize     float64 `json:"account_size"`
	MaxRiskPerTrade float64 `json:"max_risk_per_trade"`
}

// Recommend 按决策矩阵给出一组策略。未知的 (趋势, 环境) 组合返回空列表，
// 调用方应视为"无可操作策略"而非错误。
func Recommend(p Params) []Recommendation {
	ivPct := 50.0
	if p.IVPercentile != nil {
		ivPct = *p.IVPercentile
	}
	highIV := ivPct >= 50

	mult, ok := riskMultipliers[p.RiskLevel]
	if !ok {
		mult = riskMultipliers[RiskModerate]
	}
	maxRisk := p.AccountSize * mult

	atr := p.Price * 0.03
	if p.ATR != nil && *p.ATR > 0 {
		atr = *p.ATR
	}

	var recs []Recommendation
	switch {
	case p.Trend == "bullish" && highIV:
		recs = append(recs, bullPutSpread(p.Price, p.DTE, maxRisk, atr))
		if p.RiskLevel != RiskConservative {
			recs = append(recs, shortPut(p.Price, p.DTE, maxRisk, atr))
		}
	case p.Trend == "bullish":
		recs = append(recs, bullCallSpread(p.Price, p.DTE, maxRisk, atr))
		if p.RiskLevel == RiskAggressive {
			recs = append(recs, longCall(p.Price, p.DTE, maxRisk))
		}
	case p.Trend == "bearish" && highIV:
		recs = append(recs, bearCallSpread(p.Price, p.DTE, maxRisk, atr))
	case p.Trend == "bearish":
		recs = append(recs, bearPutSpread(p.Price, p.DTE, maxRisk, atr))
		if p.RiskLevel == RiskAggressive {
			recs = append(recs, longPut(p.Price, p.DTE, maxRisk))
		}
	case p.Trend == "neutral" && highIV:
		recs = append(recs, ironCondor(p.Price, p.DTE, maxRisk, atr))
		if p.RiskLevel != RiskConservative {
			recs = append(recs, shortStrangle(p.Price, p.DTE, atr))
		}
	case p.Trend == "neutral":
		recs = append(recs, longStraddle(p.Price, p.DTE, maxRisk))
		recs = append(recs, calendarSpread(p.Price, p.DTE, maxRisk))
	}

	env := "low"
	if highIV {
		env = "high"
	}
	for i := range recs {
		recs[i].Ticker = p.Ticker
		recs[i].CurrentPrice = p.Price
		recs[i].IVEnvironment = env
		recs[i].TrendUsed = p.Trend
		recs[i].RiskLevel = p.RiskLevel
		recs[i].AccountSize = p.AccountSize
		recs[i].MaxRiskPerTrade = maxRisk
	}
	return recs
}
