package indicator

import (
	"errors"
	"math"

	"github.com/markcheno/go-talib"

	"optionsagent/internal/market"
)

// ErrInsufficientData 序列为空时返回；调用方应视为"无数据"而非故障。
var ErrInsufficientData = errors.New("insufficient price data")

// 各指标可计算所需的最短序列长度。长度不足时该指标缺省，
// 在综合打分里按中性（0 贡献）处理，而不是报错。
const (
	minBarsSMA20  = 20
	minBarsSMA50  = 50
	minBarsSMA200 = 200
	minBarsRSI    = 15
	minBarsMACD   = 33 // talib.Macd 前置窗口：慢线 25 + 信号线 8，首个 MACD 值落在第 33 根
	minBarsBB     = 20
	minBarsStoch  = 20
	minBarsATR    = 15
)

// Profile is an immutable technical snapshot of one price series.
// Pointer fields are nil when history was too short to compute them.
type Profile struct {
	Ticker       string  `json:"ticker"`
	CurrentPrice float64 `json:"current_price"`
	Change       float64 `json:"change"`
	ChangePct    float64 `json:"change_pct"`

	SMA20  *float64 `json:"sma20"`
	SMA50  *float64 `json:"sma50"`
	SMA200 *float64 `json:"sma200"`
	Trend  string   `json:"trend"` // bullish / bearish / neutral / unknown

	RSI       *float64 `json:"rsi"`
	RSISignal string   `json:"rsi_signal"` // overbought / oversold / neutral

	MACD          *float64 `json:"macd"`
	MACDSignal    *float64 `json:"macd_signal"`
	MACDHistogram *float64 `json:"macd_histogram"`
	MACDCross     string   `json:"macd_cross"` // bullish_crossover / bearish_crossover / neutral

	BBUpper    *float64 `json:"bb_upper"`
	BBMiddle   *float64 `json:"bb_middle"`
	BBLower    *float64 `json:"bb_lower"`
	BBPosition string   `json:"bb_position"`

	StochK *float64 `json:"stoch_k"`
	StochD *float64 `json:"stoch_d"`

	ATR    *float64 `json:"atr"`
	ATRPct *float64 `json:"atr_pct"`

	Volume      int64   `json:"volume"`
	VolumeSMA20 float64 `json:"volume_sma20"`
	VolumeRatio float64 `json:"volume_ratio"`

	Support20    float64 `json:"support_20d"`
	Resistance20 float64 `json:"resistance_20d"`

	Signal   string `json:"signal"`   // bullish / bearish / neutral
	Strength int    `json:"strength"` // 1-5
}

// ComputeProfile runs the full indicator set over an ascending daily series
// and reduces it to a composite trend/signal/strength snapshot.
func ComputeProfile(ticker string, bars []market.Bar) (*Profile, error) {
	if len(bars) == 0 {
		return nil, ErrInsufficientData
	}

	n := len(bars)
	closes := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	volumes := make([]float64, n)
	for i, b := range bars {
		closes[i] = b.Close
		highs[i] = b.High
		lows[i] = b.Low
		volumes[i] = float64(b.Volume)
	}

	current := closes[n-1]
	prevClose := current
	if n > 1 {
		prevClose = closes[n-2]
	}
	change := current - prevClose
	changePct := 0.0
	if prevClose != 0 {
		changePct = change / prevClose * 100
	}

	p := &Profile{
		Ticker:       ticker,
		CurrentPrice: current,
		Change:       change,
		ChangePct:    changePct,
		RSISignal:    "neutral",
		MACDCross:    "neutral",
		BBPosition:   "unknown",
	}

	// --- Moving averages + trend ---
	if n >= minBarsSMA20 {
		p.SMA20 = lastOf(talib.Sma(closes, 20))
	}
	if n >= minBarsSMA50 {
		p.SMA50 = lastOf(talib.Sma(closes, 50))
	}
	if n >= minBarsSMA200 {
		p.SMA200 = lastOf(talib.Sma(closes, 200))
	}
	p.Trend = determineTrend(current, p.SMA20, p.SMA50, p.SMA200)

	// --- RSI ---
	if n >= minBarsRSI {
		p.RSI = lastOf(talib.Rsi(closes, 14))
		p.RSISignal = rsiState(p.RSI)
	}

	// --- MACD(12,26,9) 及金叉死叉判定 ---
	if n >= minBarsMACD {
		macdLine, signalLine, hist := talib.Macd(closes, 12, 26, 9)
		p.MACD = lastOf(macdLine)
		p.MACDSignal = lastOf(signalLine)
		// 柱状图和交叉判定都要求已成形的 MACD 值再多一根
		if n > minBarsMACD {
			p.MACDHistogram = lastOf(hist)
			p.MACDCross = macdCross(macdLine, signalLine)
		}
	}

	// --- Bollinger Bands(20, 2) ---
	if n >= minBarsBB {
		upper, middle, lower := talib.BBands(closes, 20, 2, 2, talib.SMA)
		p.BBUpper = lastOf(upper)
		p.BBMiddle = lastOf(middle)
		p.BBLower = lastOf(lower)
		p.BBPosition = bbPosition(current, p.BBUpper, p.BBLower)
	}

	// --- Stochastic(14,3,3) ---
	if n >= minBarsStoch {
		k, d := talib.Stoch(highs, lows, closes, 14, 3, talib.SMA, 3, talib.SMA)
		p.StochK = lastOf(k)
		p.StochD = lastOf(d)
	}

	// --- ATR(14) ---
	if n >= minBarsATR {
		p.ATR = lastOf(talib.Atr(highs, lows, closes, 14))
		if p.ATR != nil && current != 0 {
			v := *p.ATR / current * 100
			p.ATRPct = &v
		}
	}

	// --- Volume vs 20 日均量 ---
	p.Volume = bars[n-1].Volume
	if n >= 20 {
		if v := lastOf(talib.Sma(volumes, 20)); v != nil {
			p.VolumeSMA20 = *v
		}
	} else {
		p.VolumeSMA20 = mean(volumes)
	}
	p.VolumeRatio = 1.0
	if p.VolumeSMA20 > 0 {
		p.VolumeRatio = float64(p.Volume) / p.VolumeSMA20
	}

	// --- 20 日支撑/压力 ---
	p.Support20, p.Resistance20 = supportResistance(bars, 20)

	score := compositeScore(p.Trend, p.RSISignal, p.MACDCross, p.MACDHistogram,
		p.BBPosition, p.StochK, p.VolumeRatio)
	p.Signal = signalOf(score)
	p.Strength = strengthBucket(score)
	return p, nil
}

// determineTrend 依据均线排列投票：价>SMA20、SMA20>SMA50，
// 有 SMA200 时再加 价>SMA200、SMA50>SMA200 两票。
func determineTrend(price float64, sma20, sma50, sma200 *float64) string {
	if sma20 == nil || sma50 == nil {
		return "unknown"
	}
	bullish, bearish := 0, 0
	vote := func(cond bool) {
		if cond {
			bullish++
		} else {
			bearish++
		}
	}
	vote(price > *sma20)
	vote(*sma20 > *sma50)
	if sma200 != nil {
		vote(price > *sma200)
		vote(*sma50 > *sma200)
	}
	switch {
	case bullish >= 3:
		return "bullish"
	case bearish >= 3:
		return "bearish"
	default:
		return "neutral"
	}
}

func rsiState(rsi *float64) string {
	if rsi == nil {
		return "neutral"
	}
	switch {
	case *rsi > 70:
		return "overbought"
	case *rsi < 30:
		return "oversold"
	default:
		return "neutral"
	}
}

// macdCross 比较最后两根柱上 (MACD-signal) 的符号翻转。
func macdCross(macdLine, signalLine []float64) string {
	n := len(macdLine)
	if n < 2 || len(signalLine) != n {
		return "neutral"
	}
	cur := macdLine[n-1] - signalLine[n-1]
	prev := macdLine[n-2] - signalLine[n-2]
	switch {
	case prev <= 0 && cur > 0:
		return "bullish_crossover"
	case prev >= 0 && cur < 0:
		return "bearish_crossover"
	default:
		return "neutral"
	}
}

// bbPosition buckets the normalized position inside the bands.
func bbPosition(price float64, upper, lower *float64) string {
	if upper == nil || lower == nil {
		return "unknown"
	}
	width := *upper - *lower
	if width == 0 {
		return "unknown"
	}
	pos := (price - *lower) / width
	switch {
	case pos > 0.9:
		return "near_upper"
	case pos < 0.1:
		return "near_lower"
	case pos > 0.4 && pos < 0.6:
		return "near_middle"
	case pos >= 0.6:
		return "upper_half"
	default:
		return "lower_half"
	}
}

// compositeScore 加权求和：趋势 ±2，RSI ±1，MACD 交叉 ±1.5（否则柱状图 ±0.5），
// 布林带 ±1，随机指标 ±1，放量（>1.5x）沿现有方向再加 ±0.5。
func compositeScore(trend, rsiSignal, macdCross string, macdHist *float64,
	bbPos string, stochK *float64, volRatio float64) float64 {
	score := 0.0

	switch trend {
	case "bullish":
		score += 2
	case "bearish":
		score -= 2
	}

	switch rsiSignal {
	case "oversold":
		score++ // potential bounce
	case "overbought":
		score--
	}

	switch macdCross {
	case "bullish_crossover":
		score += 1.5
	case "bearish_crossover":
		score -= 1.5
	default:
		if macdHist != nil {
			if *macdHist > 0 {
				score += 0.5
			} else {
				score -= 0.5
			}
		}
	}

	switch bbPos {
	case "near_lower":
		score++
	case "near_upper":
		score--
	}

	if stochK != nil {
		if *stochK < 20 {
			score++
		} else if *stochK > 80 {
			score--
		}
	}

	if volRatio > 1.5 {
		if score > 0 {
			score += 0.5
		} else if score < 0 {
			score -= 0.5
		}
	}
	return score
}

func signalOf(score float64) string {
	switch {
	case score > 1:
		return "bullish"
	case score < -1:
		return "bearish"
	default:
		return "neutral"
	}
}

func strengthBucket(score float64) int {
	abs := math.Abs(score)
	switch {
	case abs >= 5:
		return 5
	case abs >= 3.5:
		return 4
	case abs >= 2:
		return 3
	case abs >= 1:
		return 2
	default:
		return 1
	}
}

func supportResistance(bars []market.Bar, window int) (support, resistance float64) {
	start := len(bars) - window
	if start < 0 {
		start = 0
	}
	support = math.MaxFloat64
	for _, b := range bars[start:] {
		if b.Low < support {
			support = b.Low
		}
		if b.High > resistance {
			resistance = b.High
		}
	}
	if support == math.MaxFloat64 {
		support = 0
	}
	return support, resistance
}

// lastOf returns the last finite value of a talib series, or nil.
func lastOf(series []float64) *float64 {
	for i := len(series) - 1; i >= 0; i-- {
		v := series[i]
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			return &v
		}
	}
	return nil
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
