package strategy

import (
	"fmt"
	"math"

	"github.com/dustin/go-humanize"
)

// strikeStep 按价位选择行权价间距。
func strikeStep(price float64) float64 {
	switch {
	case price < 5:
		return 0.5
	case price < 25:
		return 1
	case price < 200:
		return 5
	default:
		return 10
	}
}

// roundStrike 取整到最近的行权价档位。
func roundStrike(price, step float64) float64 {
	return math.Round(price/step) * step
}

func sizeBy(maxRisk, lossPerContract float64) int {
	if lossPerContract <= 0 {
		return 1
	}
	n := int(maxRisk / lossPerContract)
	if n < 1 {
		return 1
	}
	return n
}

func dollars(v float64) string {
	return fmt.Sprintf("$%.0f", v)
}

func dollarsComma(v float64) string {
	return "$" + humanize.CommafWithDigits(math.Round(v), 0)
}

func bullPutSpread(price float64, dte int, maxRisk, atr float64) Recommendation {
	sellStrike := roundStrike(price-atr, strikeStep(price-atr))
	wing := strikeStep(price)
	buyStrike := roundStrike(sellStrike-wing, strikeStep(sellStrike-wing))
	width := sellStrike - buyStrike
	// 权利金为宽度的固定比例估算，非实时报价
	estCredit := width * 0.35
	maxLoss := (width - estCredit) * 100
	contracts := sizeBy(maxRisk, maxLoss)
	total := maxLoss * float64(contracts)

	return Recommendation{
		Name:      "Bull Put Spread",
		NameCN:    "Bull Put Spread (看涨卖出看跌价差)",
		Direction: "bullish",
		Legs: []Leg{
			{Action: "SELL", Type: "PUT", Strike: sellStrike},
			{Action: "BUY", Type: "PUT", Strike: buyStrike},
		},
		DTERange:   fmt.Sprintf("%d-%d days", maxInt(dte-10, 20), dte+15),
		MaxProfit:  fmt.Sprintf("$%.0f (credit received)", estCredit*100*float64(contracts)),
		MaxLoss:    dollars(total),
		WinRateEst: "65-70%",
		Contracts:  contracts,
		ExitRules: []string{
			"Take profit: Close at 50% of max profit",
			"Stop loss: Close if loss reaches 200% of credit received",
			"Time exit: Close at 21 DTE if not already profitable",
		},
		Position: fmt.Sprintf("%d contract(s), risking %s", contracts, dollars(total)),
	}
}

func shortPut(price float64, dte int, maxRisk, atr float64) Recommendation {
	strike := roundStrike(price-atr*1.5, strikeStep(price-atr*1.5))
	estPremium := price * 0.02
	// 现金担保：名义占用极大，按名义的 1/5 风险预算折算张数
	contracts := sizeBy(maxRisk, strike*100/5)
	collateral := strike * 100 * float64(contracts)

	return Recommendation{
		Name:      "Short Put (Cash-Secured)",
		NameCN:    "Short Put (现金担保卖出看跌)",
		Direction: "bullish",
		Legs: []Leg{
			{Action: "SELL", Type: "PUT", Strike: strike},
		},
		DTERange:   fmt.Sprintf("%d-%d days", maxInt(dte-10, 20), dte+15),
		MaxProfit:  fmt.Sprintf("~$%.0f (premium received)", estPremium*100*float64(contracts)),
		MaxLoss:    fmt.Sprintf("$%.0f (if stock goes to $0, requires cash collateral)", collateral),
		WinRateEst: "70-80%",
		Contracts:  contracts,
		ExitRules: []string{
			"Take profit: Close at 50% of premium received",
			"Stop loss: Close if loss reaches 2x premium",
			"Assignment: Accept shares if willing to own at strike price",
		},
		Position: fmt.Sprintf("%d contract(s), collateral needed: %s", contracts, dollarsComma(collateral)),
	}
}

func longCall(price float64, dte int, maxRisk float64) Recommendation {
	strike := roundStrike(price*1.02, strikeStep(price*1.02)) // 轻微虚值
	estPremium := price * 0.04
	contracts := sizeBy(maxRisk, estPremium*100)
	cost := estPremium * 100 * float64(contracts)

	return Recommendation{
		Name:      "Long Call",
		NameCN:    "Long Call (买入看涨期权)",
		Direction: "bullish",
		Legs: []Leg{
			{Action: "BUY", Type: "CALL", Strike: strike},
		},
		DTERange:   fmt.Sprintf("%d-%d days", maxInt(dte, 30), dte+30),
		MaxProfit:  "Unlimited",
		MaxLoss:    fmt.Sprintf("~$%.0f (premium paid)", cost),
		WinRateEst: "35-45%",
		Contracts:  contracts,
		ExitRules: []string{
			"Take profit: Close at 50-100% gain on premium",
			"Stop loss: Close if premium drops 50%",
			"Time exit: Close at 14 DTE to avoid theta decay",
		},
		Position: fmt.Sprintf("%d contract(s), cost ~%s", contracts, dollars(cost)),
	}
}

func bullCallSpread(price float64, dte int, maxRisk, atr float64) Recommendation {
	buyStrike := roundStrike(price, strikeStep(price)) // ATM
	sellStrike := roundStrike(price+atr*2, strikeStep(price+atr*2))
	// ATR 小于档位间距时两腿会折到同一价，至少拉开一档
	if sellStrike <= buyStrike {
		sellStrike = buyStrike + strikeStep(price)
	}
	width := sellStrike - buyStrike
	estDebit := width * 0.55
	maxLoss := estDebit * 100
	contracts := sizeBy(maxRisk, maxLoss)
	total := maxLoss * float64(contracts)

	return Recommendation{
		Name:      "Bull Call Spread",
		NameCN:    "Bull Call Spread (看涨买入看涨价差)",
		Direction: "bullish",
		Legs: []Leg{
			{Action: "BUY", Type: "CALL", Strike: buyStrike},
			{Action: "SELL", Type: "CALL", Strike: sellStrike},
		},
		DTERange:   fmt.Sprintf("%d-%d days", maxInt(dte, 30), dte+30),
		MaxProfit:  fmt.Sprintf("$%.0f", (width-estDebit)*100*float64(contracts)),
		MaxLoss:    fmt.Sprintf("$%.0f (debit paid)", total),
		WinRateEst: "45-55%",
		Contracts:  contracts,
		ExitRules: []string{
			"Take profit: Close at 50% of max profit",
			"Stop loss: Close if debit drops 50%",
			"Time exit: Close at 14 DTE",
		},
		Position: fmt.Sprintf("%d contract(s), cost ~%s", contracts, dollars(total)),
	}
}

func bearCallSpread(price float64, dte int, maxRisk, atr float64) Recommendation {
	sellStrike := roundStrike(price+atr, strikeStep(price+atr))
	wing := strikeStep(price)
	buyStrike := roundStrike(sellStrike+wing, strikeStep(sellStrike+wing))
	width := buyStrike - sellStrike
	estCredit := width * 0.35
	maxLoss := (width - estCredit) * 100
	contracts := sizeBy(maxRisk, maxLoss)
	total := maxLoss * float64(contracts)

	return Recommendation{
		Name:      "Bear Call Spread",
		NameCN:    "Bear Call Spread (看跌卖出看涨价差)",
		Direction: "bearish",
		Legs: []Leg{
			{Action: "SELL", Type: "CALL", Strike: sellStrike},
			{Action: "BUY", Type: "CALL", Strike: buyStrike},
		},
		DTERange:   fmt.Sprintf("%d-%d days", maxInt(dte-10, 20), dte+15),
		MaxProfit:  fmt.Sprintf("$%.0f (credit received)", estCredit*100*float64(contracts)),
		MaxLoss:    dollars(total),
		WinRateEst: "65-70%",
		Contracts:  contracts,
		ExitRules: []string{
			"Take profit: Close at 50% of max profit",
			"Stop loss: Close if loss reaches 200% of credit",
			"Time exit: Close at 21 DTE",
		},
		Position: fmt.Sprintf("%d contract(s), risking %s", contracts, dollars(total)),
	}
}

func bearPutSpread(price float64, dte int, maxRisk, atr float64) Recommendation {
	buyStrike := roundStrike(price, strikeStep(price)) // ATM
	sellStrike := roundStrike(price-atr*2, strikeStep(price-atr*2))
	// ATR 小于档位间距时两腿会折到同一价，至少拉开一档
	if sellStrike >= buyStrike {
		sellStrike = buyStrike - strikeStep(price)
	}
	width := buyStrike - sellStrike
	estDebit := width * 0.55
	maxLoss := estDebit * 100
	contracts := sizeBy(maxRisk, maxLoss)
	total := maxLoss * float64(contracts)

	return Recommendation{
		Name:      "Bear Put Spread",
		NameCN:    "Bear Put Spread (看跌买入看跌价差)",
		Direction: "bearish",
		Legs: []Leg{
			{Action: "BUY", Type: "PUT", Strike: buyStrike},
			{Action: "SELL", Type: "PUT", Strike: sellStrike},
		},
		DTERange:   fmt.Sprintf("%d-%d days", maxInt(dte, 30), dte+30),
		MaxProfit:  fmt.Sprintf("$%.0f", (width-estDebit)*100*float64(contracts)),
		MaxLoss:    fmt.Sprintf("$%.0f (debit paid)", total),
		WinRateEst: "45-55%",
		Contracts:  contracts,
		ExitRules: []string{
			"Take profit: Close at 50% of max profit",
			"Stop loss: Close if debit drops 50%",
			"Time exit: Close at 14 DTE",
		},
		Position: fmt.Sprintf("%d contract(s), cost ~%s", contracts, dollars(total)),
	}
}

func longPut(price float64, dte int, maxRisk float64) Recommendation {
	strike := roundStrike(price*0.98, strikeStep(price*0.98)) // 轻微虚值
	estPremium := price * 0.035
	contracts := sizeBy(maxRisk, estPremium*100)
	cost := estPremium * 100 * float64(contracts)

	return Recommendation{
		Name:      "Long Put",
		NameCN:    "Long Put (买入看跌期权)",
		Direction: "bearish",
		Legs: []Leg{
			{Action: "BUY", Type: "PUT", Strike: strike},
		},
		DTERange:   fmt.Sprintf("%d-%d days", maxInt(dte, 30), dte+30),
		MaxProfit:  fmt.Sprintf("%s (if stock goes to $0)", dollarsComma((strike-estPremium)*100*float64(contracts))),
		MaxLoss:    fmt.Sprintf("~$%.0f (premium paid)", cost),
		WinRateEst: "35-45%",
		Contracts:  contracts,
		ExitRules: []string{
			"Take profit: Close at 50-100% gain on premium",
			"Stop loss: Close if premium drops 50%",
			"Time exit: Close at 14 DTE",
		},
		Position: fmt.Sprintf("%d contract(s), cost ~%s", contracts, dollars(cost)),
	}
}

func ironCondor(price float64, dte int, maxRisk, atr float64) Recommendation {
	wing := strikeStep(price)
	sellCall := roundStrike(price+atr*1.5, strikeStep(price+atr*1.5))
	buyCall := roundStrike(sellCall+wing, strikeStep(sellCall+wing))
	sellPut := roundStrike(price-atr*1.5, strikeStep(price-atr*1.5))
	buyPut := roundStrike(sellPut-wing, strikeStep(sellPut-wing))
	// 两侧合计的估算净收款
	estCredit := wing * 0.30
	maxLoss := (wing - estCredit) * 100
	contracts := sizeBy(maxRisk, maxLoss)
	total := maxLoss * float64(contracts)

	return Recommendation{
		Name:      "Iron Condor",
		NameCN:    "Iron Condor (铁鹰价差)",
		Direction: "neutral",
		Legs: []Leg{
			{Action: "SELL", Type: "CALL", Strike: sellCall},
			{Action: "BUY", Type: "CALL", Strike: buyCall},
			{Action: "SELL", Type: "PUT", Strike: sellPut},
			{Action: "BUY", Type: "PUT", Strike: buyPut},
		},
		DTERange:   fmt.Sprintf("%d-%d days", maxInt(dte-5, 25), dte+15),
		MaxProfit:  fmt.Sprintf("$%.0f (total credit)", estCredit*100*float64(contracts)),
		MaxLoss:    fmt.Sprintf("$%.0f (one side breached)", total),
		WinRateEst: "60-70%",
		Contracts:  contracts,
		ExitRules: []string{
			"Take profit: Close at 50% of max profit",
			"Stop loss: Close if loss = 2x credit received",
			"Adjust: Roll tested side if price approaches short strike",
			"Time exit: Close at 21 DTE",
		},
		Position: fmt.Sprintf("%d contract(s), risking %s", contracts, dollars(total)),
	}
}

func shortStrangle(price float64, dte int, atr float64) Recommendation {
	sellCall := roundStrike(price+atr*2, strikeStep(price+atr*2))
	sellPut := roundStrike(price-atr*2, strikeStep(price-atr*2))
	estCredit := price * 0.03

	return Recommendation{
		Name:      "Short Strangle",
		NameCN:    "Short Strangle (卖出宽跨式)",
		Direction: "neutral",
		Legs: []Leg{
			{Action: "SELL", Type: "CALL", Strike: sellCall},
			{Action: "SELL", Type: "PUT", Strike: sellPut},
		},
		DTERange:   fmt.Sprintf("%d-%d days", maxInt(dte, 30), dte+15),
		MaxProfit:  fmt.Sprintf("~$%.0f/contract (credit received)", estCredit*100),
		MaxLoss:    "Unlimited (naked position, requires margin)",
		WinRateEst: "70-80%",
		SizingNote: "Size based on margin requirements",
		ExitRules: []string{
			"Take profit: Close at 50% of credit",
			"Stop loss: Close if loss = 2x credit received",
			"Adjustment: Roll tested side out in time",
		},
		Position: "Requires significant margin, use caution",
	}
}

func longStraddle(price float64, dte int, maxRisk float64) Recommendation {
	strike := roundStrike(price, strikeStep(price))
	estDebit := price * 0.06 // call + put 合计权利金
	contracts := sizeBy(maxRisk, estDebit*100)
	cost := estDebit * 100 * float64(contracts)

	return Recommendation{
		Name:      "Long Straddle",
		NameCN:    "Long Straddle (买入跨式)",
		Direction: "neutral (expecting big move)",
		Legs: []Leg{
			{Action: "BUY", Type: "CALL", Strike: strike},
			{Action: "BUY", Type: "PUT", Strike: strike},
		},
		DTERange:   fmt.Sprintf("%d-%d days", maxInt(dte, 30), dte+30),
		MaxProfit:  "Unlimited (if stock moves significantly)",
		MaxLoss:    fmt.Sprintf("~$%.0f (total premium paid)", cost),
		WinRateEst: "30-40% (needs big move to profit)",
		Contracts:  contracts,
		ExitRules: []string{
			"Take profit: Close at 25-50% gain (take profits early)",
			"Stop loss: Close if total premium drops 40%",
			"Time exit: Close at 21 DTE, theta accelerates",
		},
		Position: fmt.Sprintf("%d contract(s), cost ~%s", contracts, dollars(cost)),
	}
}

func calendarSpread(price float64, dte int, maxRisk float64) Recommendation {
	strike := roundStrike(price, strikeStep(price))
	estDebit := price * 0.015
	contracts := sizeBy(maxRisk, estDebit*100)
	cost := estDebit * 100 * float64(contracts)

	return Recommendation{
		Name:      "Calendar Spread",
		NameCN:    "Calendar Spread (日历价差)",
		Direction: "neutral (betting on IV increase)",
		Legs: []Leg{
			{Action: "SELL", Type: "CALL", Strike: strike, Note: fmt.Sprintf("~%d DTE", dte)},
			{Action: "BUY", Type: "CALL", Strike: strike, Note: fmt.Sprintf("~%d DTE", dte+30)},
		},
		DTERange:   fmt.Sprintf("Front: %d DTE, Back: %d DTE", dte, dte+30),
		MaxProfit:  "Variable (max when stock at strike at front expiry)",
		MaxLoss:    fmt.Sprintf("~$%.0f (net debit)", cost),
		WinRateEst: "45-55%",
		Contracts:  contracts,
		ExitRules: []string{
			"Take profit: Close at 25-50% gain",
			"Stop loss: Close if debit drops 40%",
			"Close before front month expiration",
		},
		Position: fmt.Sprintf("%d contract(s), cost ~%s", contracts, dollars(cost)),
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
