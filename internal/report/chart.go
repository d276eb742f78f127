package report

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"optionsagent/internal/market"
)

// RenderChartPage 生成自包含的 HTML 页面：上面日线 K 线，下面 IV/HV 走势。
// bars 与 samples 任一为空时对应图表省略。
func RenderChartPage(w io.Writer, ticker string, bars []market.Bar, samples []market.VolSample) error {
	page := components.NewPage()
	page.PageTitle = fmt.Sprintf("%s - optionsagent", ticker)

	if len(bars) > 0 {
		page.AddCharts(klineChart(ticker, bars))
	}
	if len(samples) > 0 {
		page.AddCharts(ivChart(ticker, samples))
	}
	return page.Render(w)
}

func klineChart(ticker string, bars []market.Bar) *charts.Kline {
	kline := charts.NewKLine()
	kline.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: fmt.Sprintf("%s Daily", ticker)}),
		charts.WithXAxisOpts(opts.XAxis{SplitNumber: 20}),
		charts.WithYAxisOpts(opts.YAxis{Scale: opts.Bool(true)}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", Start: 60, End: 100}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
	)

	dates := make([]string, 0, len(bars))
	data := make([]opts.KlineData, 0, len(bars))
	for _, b := range bars {
		dates = append(dates, b.Date.Format(market.DateLayout))
		// echarts K 线点序为 [open, close, low, high]
		data = append(data, opts.KlineData{Value: [4]float64{b.Open, b.Close, b.Low, b.High}})
	}
	kline.SetXAxis(dates).AddSeries("price", data)
	return kline
}

func ivChart(ticker string, samples []market.VolSample) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: fmt.Sprintf("%s Volatility (%%)", ticker)}),
		charts.WithYAxisOpts(opts.YAxis{Scale: opts.Bool(true)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)

	dates := make([]string, 0, len(samples))
	iv := make([]opts.LineData, 0, len(samples))
	hv20 := make([]opts.LineData, 0, len(samples))
	hv60 := make([]opts.LineData, 0, len(samples))
	for _, s := range samples {
		dates = append(dates, s.Date)
		iv = append(iv, pctPoint(s.ATMIV))
		hv20 = append(hv20, pctPoint(s.HV20))
		hv60 = append(hv60, pctPoint(s.HV60))
	}
	line.SetXAxis(dates).
		AddSeries("ATM IV", iv).
		AddSeries("HV20", hv20).
		AddSeries("HV60", hv60).
		SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}))
	return line
}

func pctPoint(v *float64) opts.LineData {
	if v == nil {
		return opts.LineData{Value: nil}
	}
	return opts.LineData{Value: *v * 100}
}
